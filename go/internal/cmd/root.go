package main

import (
	"os"

	"github.com/spf13/cobra"
)

// rootOptions holds global flags for all commands.
type rootOptions struct {
	ConfigPath string
	Verbose    bool
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "duel",
		Short: "Rock-paper-scissors match engine",
		Long: `duel runs timed rock-paper-scissors matches between chat participants.

Participants connect over WebSocket, challenge each other and answer private
prompts before their countdown runs out. Finalized matches are recorded in the
history ledger and lifecycle events can be published to NATS JetStream.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", os.Getenv("DUEL_CONFIG"), "path to YAML config file")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "debug logging")

	cmd.AddCommand(newServeCommand(opts))
	cmd.AddCommand(newMigrateCommand(opts))

	return cmd
}
