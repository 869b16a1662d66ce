package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"gigescrow/internal/logger"
	"gigescrow/internal/server"
)

func init() {
	RootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		log := logger.NewSublogger("serve")

		st, err := openStore(ctx, conf)
		if err != nil {
			return err
		}
		defer st.Close()

		ledger, signer, err := newLedger(conf)
		if err != nil {
			return err
		}

		apiServer := server.NewServer(conf, ledger, signer, st)
		errCh := make(chan error, 1)
		go func() {
			errCh <- apiServer.Start()
		}()

		select {
		case err := <-errCh:
			return err
		case <-ctx.Done():
		}

		log.Info("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), conf.HTTP.ShutdownTimeout)
		defer cancel()
		return apiServer.Shutdown(shutdownCtx)
	},
}
