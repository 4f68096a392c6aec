package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/ahrav/go-spout/infrastructure/middleware"
	"github.com/ahrav/go-spout/internal/application"
)

// app holds the state shared by every subcommand once the root command's
// pre-run hook has loaded the configuration.
type app struct {
	configPath  string
	logLevel    string
	logFormat   string
	metricsAddr string

	cfg      application.Config
	logger   *slog.Logger
	registry *prometheus.Registry
	metrics  *middleware.PrometheusMetrics
	server   *http.Server

	// pipelineOpts are appended to every pipeline's options.
	pipelineOpts []application.PipelineOption
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "spout",
		Short: "Spout - LLM candidate factory and tournament judge",
		Long: `Spout asks an LLM for lists of candidates (names, taglines, phrases),
spreads the work over mutated variants of the brief, and picks a winner
through a knockout tournament judged by an LLM.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&a.configPath, "config", "c", "", "path to a YAML config file")
	pf.StringVar(&a.logLevel, "log-level", "info", "log level (debug|info|warn|error)")
	pf.StringVar(&a.logFormat, "log-format", "text", "log format (text|json)")
	pf.StringVar(&a.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address, e.g. :9090")

	root.AddCommand(
		factoryCmd(a),
		tournamentCmd(a),
		configCmd(a),
		versionCmd(),
	)
	return root
}

func (a *app) setup(cmd *cobra.Command) error {
	logger, err := newLogger(cmd.ErrOrStderr(), a.logLevel, a.logFormat)
	if err != nil {
		return err
	}
	a.logger = logger

	a.cfg = application.DefaultConfig()
	if a.configPath != "" {
		if a.cfg, err = application.LoadConfig(a.configPath); err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
	}

	a.registry = prometheus.NewRegistry()
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	a.metrics = middleware.NewPrometheusMetrics(a.registry)

	if a.metricsAddr != "" {
		return a.serveMetrics()
	}
	return nil
}

func (a *app) serveMetrics() error {
	ln, err := net.Listen("tcp", a.metricsAddr)
	if err != nil {
		return fmt.Errorf("metrics listener on %s: %w", a.metricsAddr, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{Registry: a.registry}))
	a.server = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := a.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("metrics: server stopped", "error", err)
		}
	}()
	a.logger.Info("metrics: serving", "addr", ln.Addr().String())
	return nil
}

// close stops the metrics server, if one was started.
func (a *app) close() {
	if a.server == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.server.Shutdown(ctx); err != nil {
		a.logger.Warn("metrics: shutdown failed", "error", err)
	}
	a.server = nil
}

func (a *app) newPipeline(cfg application.Config) (*application.Pipeline, error) {
	opts := []application.PipelineOption{
		application.WithLogger(a.logger),
		application.WithMetrics(a.metrics),
		application.WithObserver(middleware.NewOTelRoundObserver(nil)),
	}
	return application.NewPipeline(cfg, append(opts, a.pipelineOpts...)...)
}

// newLogger returns a slog logger writing to w with the named level and
// handler format.
func newLogger(w io.Writer, level, format string) (*slog.Logger, error) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "info", "":
		lvl = slog.LevelInfo
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		return nil, fmt.Errorf("invalid log level %q (want debug, info, warn, or error)", level)
	}

	opts := &slog.HandlerOptions{Level: lvl}
	switch format {
	case "text", "":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("invalid log format %q (want text or json)", format)
	}
}
