package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// RegisterCommands adds all subcommands to the root command.
func RegisterCommands(rootCmd *cobra.Command) {
	rootCmd.AddCommand(uploadCmd())
	rootCmd.AddCommand(matchCmd())
	rootCmd.AddCommand(graphCmd())
	rootCmd.AddCommand(cyclesCmd())
	rootCmd.AddCommand(statsCmd())
}

// outputJSON pretty-prints a value to stdout.
func outputJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("cli: encode output: %w", err)
	}
	return nil
}
