package commands

import (
	"context"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/teranos/docsync/cmd/docsync/config"
	"github.com/teranos/docsync/errors"
	"github.com/teranos/docsync/logger"
	"github.com/teranos/docsync/remotestore"
	"github.com/teranos/docsync/remotestore/localstore"
	"github.com/teranos/docsync/remotestore/transport/grpcstream"
)

// NewStartCmd builds the `docsync start` subcommand: it wires a RemoteStore
// against a SQLite local store and a gRPC datastore, enables networking, and
// blocks until SIGINT/SIGTERM.
func NewStartCmd(cfgFile *string) *cobra.Command {
	var collections []string

	cmd := &cobra.Command{
		Use:   "start",
		Short: "run the coordinator daemon against a configured endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStart(*cfgFile, collections)
		},
	}

	cmd.Flags().StringSliceVar(&collections, "listen", nil, "collection path to listen on at startup (repeatable)")
	return cmd
}

func runStart(cfgPath string, collections []string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return errors.Wrap(err, "load config")
	}
	if cfg.JSONLogs {
		if err := logger.Initialize(true); err != nil {
			return errors.Wrap(err, "reinitialize logger in json mode")
		}
	}

	db, err := localstore.Open(cfg.DatabasePath, logger.Logger)
	if err != nil {
		return errors.Wrap(err, "open local store")
	}
	defer db.Close()
	store := localstore.New(db)

	creds := grpcstream.NewJWTCredentials([]byte(cfg.JWTSecret), cfg.UserID, 0)
	datastore := grpcstream.New(cfg.Endpoint, logger.Logger, creds)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := datastore.Start(ctx); err != nil {
		return errors.Wrapf(err, "start datastore against %s", cfg.Endpoint)
	}

	engine := newDemoSyncEngine(logger.Logger, store)
	rs := remotestore.NewRemoteStore(logger.Logger, datastore, store, engine)
	rs.Start()

	for i, path := range collections {
		rs.Listen(remotestore.QueryData{
			Query:    remotestore.Query{CollectionPath: path},
			TargetID: remotestore.TargetID(i + 1),
			Purpose:  remotestore.PurposeListen,
		})
	}

	removeStaleSocket(cfg.ControlSock)
	ln, err := net.Listen("unix", cfg.ControlSock)
	if err != nil {
		return errors.Wrapf(err, "listen on control socket %s", cfg.ControlSock)
	}
	defer ln.Close()
	go serveControl(ln, rs)

	logger.Logger.Infow("docsync started",
		"endpoint", cfg.Endpoint,
		"database", cfg.DatabasePath,
		"control_socket", cfg.ControlSock,
	)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	logger.Logger.Infow("docsync shutting down")
	rs.Shutdown()
	return nil
}
