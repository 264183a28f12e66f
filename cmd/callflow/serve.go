package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/ringwire/callflow"
	"github.com/ringwire/callflow/internal/presentation/tui"
	callhttp "github.com/ringwire/callflow/pkg/adapters/http"
	"github.com/ringwire/callflow/pkg/observability"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Long: `Starts the call engine behind a JSON API over HTTP.

Flows can be loaded at startup with --flow agent=path (repeatable), which is
the usual way to seed the memory driver.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		seeds, _ := cmd.Flags().GetStringToString("flow")
		quiet, _ := cmd.Flags().GetBool("quiet")

		metrics := observability.NewMetrics(prometheus.DefaultRegisterer)
		hooks := observability.Chain(metrics.Hooks(), observability.LoggingHooks(logger))

		engine, storage, err := openEngine(ctx, callflow.WithLifecycleHooks(hooks))
		if err != nil {
			return err
		}
		defer storage.Close()
		defer engine.Close()

		for agentID, path := range seeds {
			flow, err := readFlowFile(path)
			if err != nil {
				return err
			}
			if err := engine.SaveFlow(ctx, agentID, flow); err != nil {
				return fmt.Errorf("load flow for %s: %w", agentID, err)
			}
		}

		srv := &http.Server{
			Addr:              cfg.Server.Addr,
			Handler:           callhttp.NewHandler(engine, callhttp.WithLogger(logger)),
			ReadHeaderTimeout: 10 * time.Second,
		}

		if !quiet {
			tui.PrintBanner(cmd.ErrOrStderr(), callflow.Version)
		}

		// Channel to listen for errors coming from the listener.
		serverErrors := make(chan error, 1)
		go func() {
			logger.Info("http server listening", "addr", srv.Addr, "storage", cfg.Storage.Driver)
			serverErrors <- srv.ListenAndServe()
		}()

		shutdown := make(chan os.Signal, 1)
		signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(shutdown)

		select {
		case err := <-serverErrors:
			return fmt.Errorf("server error: %w", err)

		case sig := <-shutdown:
			logger.Info("shutting down", "signal", sig.String())

			// Give outstanding requests a deadline for completion.
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Error("graceful shutdown did not complete", "err", err)
				if err := srv.Close(); err != nil {
					return fmt.Errorf("could not stop server: %w", err)
				}
			}
			logger.Info("http server stopped")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("addr", "", "address to listen on (default :8080)")
	serveCmd.Flags().StringToString("flow", nil, "load a flow at startup: agent=path (repeatable)")
	serveCmd.Flags().BoolP("quiet", "q", false, "do not print the banner")
	bindFlag("server.addr", serveCmd.Flags().Lookup("addr"))
}
