package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/crosslink/crosslink/internal/dependency"
)

func graphCmd() *cobra.Command {
	var depth int
	var branch string
	var kind string

	cmd := &cobra.Command{
		Use:   "graph <node-id | project-id | *>",
		Short: "Fetch a dependency graph",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			client := NewClient()
			id := args[0]

			switch kind {
			case "node":
				g, err := client.NodeGraph(ctx, id, depth)
				if err != nil {
					return err
				}
				return outputJSON(g)
			case "project":
				if id == dependency.Wildcard {
					graphs, err := client.AllProjectGraphs(ctx, branch, depth)
					if err != nil {
						return err
					}
					return outputJSON(graphs)
				}
				g, err := client.ProjectGraph(ctx, id, branch, depth)
				if err != nil {
					return err
				}
				return outputJSON(g)
			default:
				return fmt.Errorf("unknown graph kind %q (node|project)", kind)
			}
		},
	}

	cmd.Flags().IntVar(&depth, "depth", dependency.DefaultDepth, "Traversal depth limit")
	cmd.Flags().StringVar(&branch, "branch", "", "Branch filter for project graphs")
	cmd.Flags().StringVar(&kind, "kind", "node", "Graph kind (node/project)")

	return cmd
}

func cyclesCmd() *cobra.Command {
	var depth int
	var branch string

	cmd := &cobra.Command{
		Use:   "cycles",
		Short: "List project-level dependency cycles",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			client := NewClient()

			graphs, err := client.AllProjectGraphs(ctx, branch, depth)
			if err != nil {
				return err
			}

			found := 0
			seen := map[string]bool{}
			for _, g := range graphs {
				for _, cycle := range g.Cycles {
					key := ""
					for _, m := range cycle {
						key += m.ID + "→"
					}
					if seen[key] {
						continue
					}
					seen[key] = true
					found++
					fmt.Printf("cycle %d:", found)
					for i, m := range cycle {
						if i > 0 {
							fmt.Print(" →")
						}
						fmt.Printf(" %s(%s)", m.Name, m.Type)
					}
					fmt.Println()
				}
			}
			if found == 0 {
				fmt.Println("no cycles")
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&depth, "depth", dependency.DefaultDepth, "Traversal depth limit")
	cmd.Flags().StringVar(&branch, "branch", "", "Branch filter")

	return cmd
}

func statsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show aggregate graph statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := NewClient()
			stats, err := client.Stats(cmd.Context())
			if err != nil {
				return err
			}

			fmt.Printf("projects:    %d\n", stats.TotalProjects)
			fmt.Printf("nodes:       %d\n", stats.TotalNodes)
			fmt.Printf("connections: %d\n", stats.TotalConnections)
			for _, tc := range stats.NodesByType {
				fmt.Printf("  %-24s %d\n", tc.Type, tc.Count)
			}
			return nil
		},
	}
	return cmd
}
