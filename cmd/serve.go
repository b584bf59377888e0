package cmd

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/lehigh-university-libraries/imagepicker/internal/handlers"
	"github.com/lehigh-university-libraries/imagepicker/internal/metrics"
	"github.com/lehigh-university-libraries/imagepicker/internal/objecturl"
	"github.com/lehigh-university-libraries/imagepicker/internal/storage"
	"github.com/lehigh-university-libraries/imagepicker/internal/submit"
)

func newServeCmd(a *app) *cobra.Command {
	var port string
	var formAction string
	var fetchRemote bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the image picker API",
		Long: `Starts the image picker HTTP API on the specified port.

Each picker form gets a session. File, URL, drop and paste events are posted
to the session, which validates the source, renders a preview in the
background and mirrors the accepted source onto its form fields.`,
		Example: `  # Start server on default port 8888
  imagepicker serve

  # Download URL sources before previewing them, forward submissions
  imagepicker serve --fetch-remote --form-action https://example.com/submit`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("port") {
				a.cfg.Port = port
			}
			if cmd.Flags().Changed("form-action") {
				a.cfg.FormAction = formAction
			}
			if cmd.Flags().Changed("fetch-remote") {
				a.cfg.FetchRemote = fetchRemote
			}
			if err := a.cfg.Validate(); err != nil {
				return err
			}

			reg := prometheus.NewRegistry()
			reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
			observer := metrics.New(reg)

			store, err := storage.New(a.cfg.MaxSessions)
			if err != nil {
				return err
			}
			defer store.Purge()

			objects := objecturl.New(a.cfg.Origin)

			var forwarder *submit.Forwarder
			if a.cfg.FormAction != "" {
				forwarder = submit.NewForwarder(a.cfg.FormAction, a.cfg.FetchTimeout)
			}

			handler := handlers.New(store, a.resolverFactory(objects, observer), forwarder, a.cfg.MaxImageBytes)

			addr := ":" + a.cfg.Port
			server := &http.Server{
				Addr:              addr,
				Handler:           handler.Router(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})),
				ReadHeaderTimeout: 10 * time.Second,
			}

			// Start server in goroutine
			serverErr := make(chan error, 1)
			go func() {
				slog.Info("Image picker API available", "addr", addr, "url", "http://localhost"+addr, "fetch_remote", a.cfg.FetchRemote)
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					serverErr <- err
				}
			}()

			// Wait for context cancellation (Ctrl+C) or server error
			select {
			case <-cmd.Context().Done():
				slog.Info("Shutting down server...")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := server.Shutdown(shutdownCtx); err != nil {
					slog.Error("Server shutdown failed", "err", err)
					return err
				}
				slog.Info("Server stopped", "live_object_urls", objects.Len())
				return nil
			case err := <-serverErr:
				return err
			}
		},
	}

	cmd.Flags().StringVarP(&port, "port", "p", "8888", "Port to listen on")
	cmd.Flags().StringVar(&formAction, "form-action", "", "URL submissions are forwarded to")
	cmd.Flags().BoolVar(&fetchRemote, "fetch-remote", false, "Download URL sources and preview them as files")

	return cmd
}
