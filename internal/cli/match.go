package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/crosslink/crosslink/internal/worker"
)

func matchCmd() *cobra.Command {
	var wait bool
	var format string

	cmd := &cobra.Command{
		Use:   "match",
		Short: "Trigger a connection match scan on the server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			client := NewClient()

			jobID, err := client.StartMatch(ctx)
			if err != nil {
				return err
			}
			if !wait {
				fmt.Printf("scan started: %s\n", jobID)
				return nil
			}

			job, err := client.WaitForMatch(ctx, jobID)
			if err != nil {
				return err
			}

			if format == "json" {
				return outputJSON(job)
			}

			fmt.Printf("scan %s: %s\n", job.ID, job.Status)
			if job.Summary != nil {
				fmt.Printf("  created: %d\n", job.Summary.CreatedConnections)
				fmt.Printf("  skipped: %d\n", job.Summary.SkippedConnections)
				for _, e := range job.Summary.Errors {
					fmt.Printf("  error: %s\n", e)
				}
			}
			if job.Status == worker.JobStatusFailed {
				return fmt.Errorf("scan failed: %s", job.Error)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&wait, "wait", true, "Wait for the scan to finish")
	cmd.Flags().StringVar(&format, "format", "text", "Output format (text/json)")

	return cmd
}
