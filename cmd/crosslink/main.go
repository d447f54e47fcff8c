package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/crosslink/crosslink/internal/cli"
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "crosslink",
		Short:        "Client for the crosslink dependency-tracking server",
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&cli.ServerURL, "server",
		envOr("CROSSLINK_SERVER", "http://localhost:8080"), "Server base URL")

	cli.RegisterCommands(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
