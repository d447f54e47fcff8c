package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/crosslink/crosslink/internal/graph"
)

// uploadFile is the JSON shape the extraction pipeline writes: one file per
// project+branch analysis run.
type uploadFile struct {
	Project string            `json:"project"`
	Addr    string            `json:"addr,omitempty"`
	Type    graph.ProjectType `json:"type,omitempty"`
	Branch  string            `json:"branch"`
	Nodes   []*graph.Node     `json:"nodes"`
}

func uploadCmd() *cobra.Command {
	var batchSize int
	var noCommit bool

	cmd := &cobra.Command{
		Use:   "upload <nodes-file.json>",
		Short: "Upload extracted nodes and commit the branch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			raw, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read nodes file: %w", err)
			}
			var file uploadFile
			if err := json.Unmarshal(raw, &file); err != nil {
				return fmt.Errorf("parse nodes file: %w", err)
			}
			if file.Project == "" || file.Branch == "" {
				return fmt.Errorf("nodes file must carry project and branch")
			}
			if file.Type == "" {
				file.Type = graph.ProjectTypeApp
			}

			client := NewClient()
			project, err := client.EnsureProject(ctx, file.Project, file.Addr, file.Type)
			if err != nil {
				return err
			}

			// Stage in batches; roll back the whole branch if any batch fails.
			for i := 0; i < len(file.Nodes); i += batchSize {
				end := i + batchSize
				if end > len(file.Nodes) {
					end = len(file.Nodes)
				}
				if err := client.UploadNodes(ctx, project.ID, file.Branch, file.Nodes[i:end]); err != nil {
					_ = client.RollbackBranch(ctx, project.ID, file.Branch)
					return fmt.Errorf("upload batch %d-%d: %w", i, end, err)
				}
			}
			fmt.Printf("staged %d nodes for %s@%s\n", len(file.Nodes), file.Project, file.Branch)

			if noCommit {
				fmt.Println("left staged (--no-commit); commit or rollback via the API")
				return nil
			}
			if err := client.CommitBranch(ctx, project.ID, file.Branch); err != nil {
				return err
			}
			fmt.Println("committed")
			return nil
		},
	}

	cmd.Flags().IntVar(&batchSize, "batch-size", 500, "Nodes per upload request")
	cmd.Flags().BoolVar(&noCommit, "no-commit", false, "Stage only, without committing the branch")

	return cmd
}
