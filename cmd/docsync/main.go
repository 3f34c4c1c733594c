package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/teranos/docsync/cmd/docsync/commands"
	"github.com/teranos/docsync/logger"
)

var (
	cfgFile string
	verbose int
)

var rootCmd = &cobra.Command{
	Use:   "docsync",
	Short: "docsync — a client-side coordinator for a remote document-sync backend",
	Long: `docsync runs the Remote Store coordinator against a local mutation
queue and a remote watch/write gRPC backend.

Available commands:
  start   - run the coordinator daemon against a configured endpoint
  listen  - issue a one-off Listen against a running daemon (manual testing)`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return logger.InitializeWithLevel(false, logger.VerbosityToLevel(verbose))
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to config.toml (default ~/.docsync/config.toml)")
	rootCmd.PersistentFlags().CountVarP(&verbose, "verbose", "v", "increase output verbosity (repeat for more detail)")

	rootCmd.AddCommand(commands.NewStartCmd(&cfgFile))
	rootCmd.AddCommand(commands.NewListenCmd(&cfgFile))
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
