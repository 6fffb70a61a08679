package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/bryan-buckman/dropwatch/internal/server"
)

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serves the API and runs the daily refresh.",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(os.Getenv)
		if err != nil {
			return err
		}
		defer a.Close()

		srv := server.New(server.Options{
			Releases:     a.reconciler,
			Resale:       a.resale,
			Maintainer:   a.refresher,
			DatabaseType: a.store.DatabaseType(),
			StaticDir:    a.cfg.StaticDir,
			Production:   a.cfg.IsProduction(),
			Logger:       a.logger,
		})

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		errc := make(chan error, 1)
		go func() { errc <- srv.Start(a.cfg.Addr()) }()

		select {
		case err := <-errc:
			return err
		case <-ctx.Done():
		}
		a.logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Stop(shutdownCtx); err != nil {
			return err
		}
		return <-errc
	},
}
