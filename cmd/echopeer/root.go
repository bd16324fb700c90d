package main

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	transactor "github.com/wagiedev/transactor-go"
)

// flags holds the command line settings of one invocation.
type flags struct {
	codec       string
	logLevel    string
	metricsAddr string
}

func newRootCmd() *cobra.Command {
	f := &flags{}

	cmd := &cobra.Command{
		Use:   "echopeer",
		Short: "Answer transactor requests on stdin/stdout with their own body",
		Long: `echopeer serves the transactor protocol on its standard streams.
Every request is answered with a response carrying the same body. Logs go
to stderr so they never mix with frames.`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, f)
		},
	}

	cmd.Flags().StringVar(&f.codec, "codec", "json", "wire codec: json or cbor")
	cmd.Flags().StringVar(&f.logLevel, "log-level", "info", "log level: debug, info, warn or error")
	cmd.Flags().StringVar(&f.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address (disabled when empty)")

	return cmd
}

func newLogger(w io.Writer, level string) (*slog.Logger, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.ToUpper(level))); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: l})), nil
}

func run(cmd *cobra.Command, f *flags) error {
	log, err := newLogger(cmd.ErrOrStderr(), f.logLevel)
	if err != nil {
		return err
	}

	c, ok := transactor.CodecByName(f.codec)
	if !ok {
		return fmt.Errorf("unknown codec %q", f.codec)
	}

	reg := prometheus.NewRegistry()

	if f.metricsAddr != "" {
		srv := serveMetrics(log, f.metricsAddr, reg)

		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	t, err := transactor.New(cmd.InOrStdin(), cmd.OutOrStdout(), transactor.Echo(),
		transactor.WithLogger(log),
		transactor.WithCodec(c),
		transactor.WithRegisterer(reg),
		transactor.WithAnomalyHandler(func(err error) {
			log.Debug("Anomaly", "error", err)
		}),
	)
	if err != nil {
		return err
	}

	if err := t.Start(ctx); err != nil {
		return err
	}

	// Cancelling ctx wakes the loop, so this returns on a signal too.
	runErr := t.Wait(context.Background())

	t.Stop()

	if err := t.Close(); err != nil {
		log.Warn("Failed to close transactor", "error", err)
	}

	if stderrors.Is(runErr, transactor.ErrInboundClosed) {
		log.Info("Parent closed the stream")

		return nil
	}

	return runErr
}

func serveMetrics(log *slog.Logger, addr string, reg *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info("Serving metrics", "addr", addr)

		if err := srv.ListenAndServe(); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			log.Error("Metrics server failed", "error", err)
		}
	}()

	return srv
}
