package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/teranos/docsync/cmd/docsync/config"
	"github.com/teranos/docsync/errors"
)

// NewListenCmd builds the `docsync listen` subcommand: a manual-testing
// client that issues a one-off listen/unlisten against a running `docsync
// start` daemon over its control socket.
func NewListenCmd(cfgFile *string) *cobra.Command {
	var unlistenTarget string

	cmd := &cobra.Command{
		Use:   "listen <collection-path> [filter]",
		Short: "issue a one-off Listen against a running daemon (manual testing)",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgFile)
			if err != nil {
				return errors.Wrap(err, "load config")
			}

			var line string
			switch {
			case unlistenTarget != "":
				line = "UNLISTEN " + unlistenTarget
			case len(args) == 0:
				return errors.New("listen requires a collection path, or --unlisten <target-id>")
			default:
				line = "LISTEN " + strings.Join(args, " ")
			}

			resp, err := dialControl(cfg.ControlSock, line)
			if err != nil {
				return err
			}
			fmt.Println(resp)
			return nil
		},
	}

	cmd.Flags().StringVar(&unlistenTarget, "unlisten", "", "target id to unlisten instead of listening")
	return cmd
}
