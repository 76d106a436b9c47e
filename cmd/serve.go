package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/trialfunnel-cli/internal/httpapi"
	"github.com/KaramelBytes/trialfunnel-cli/internal/metrics"
	"github.com/KaramelBytes/trialfunnel-cli/internal/snapshot"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve saved snapshots over a read-only HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := requireConfig()
		if err != nil {
			return err
		}
		addr := c.HTTPAddr
		if serveAddr != "" {
			addr = serveAddr
		}
		st := snapshot.NewStore(c.SnapshotsDir)
		exp := metrics.New()
		if s, err := st.Latest(); err == nil {
			exp.Observe(s.Output)
		} else if !errors.Is(err, snapshot.ErrNotFound) {
			return err
		}

		srv := &http.Server{
			Addr:              addr,
			Handler:           httpapi.NewRouter(logger, st, exp.Handler()),
			ReadHeaderTimeout: 5 * time.Second,
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		errCh := make(chan error, 1)
		go func() {
			logger.Info("http listening", "addr", addr, "snapshots_dir", c.SnapshotsDir)
			errCh <- srv.ListenAndServe()
		}()
		select {
		case err := <-errCh:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return fmt.Errorf("serve: %w", err)
		case <-ctx.Done():
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides http_addr)")
}
