package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/okian/textguard/internal/adapters/http/api"
	"github.com/okian/textguard/internal/adapters/http/site"
	"github.com/okian/textguard/internal/adapters/http/swagger"
	"github.com/okian/textguard/internal/adapters/lm"
	app "github.com/okian/textguard/internal/app"
	"github.com/okian/textguard/internal/config"
	"github.com/okian/textguard/internal/domain/detect"
	"github.com/okian/textguard/internal/domain/similarity"
	"github.com/okian/textguard/pkg/logger"
	"github.com/okian/textguard/pkg/metrics"
)

// HTTP server timeout constants.
const (
	readTimeout               = 10 * time.Second
	writeTimeout              = 10 * time.Second
	idleTimeout               = 60 * time.Second
	readHeaderTimeout         = 5 * time.Second
	shutdownTimeout           = 30 * time.Second
	systemMetricsInterval     = 10 * time.Second
	nanosecondsPerMillisecond = 1e6
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "textguard",
		Short:         "textguard detects AI-generated text and screens document pairs for plagiarism",
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context())
		},
	}
	root.AddCommand(newServeCmd(), newSnapshotCmd(), newVersionCmd())
	return root
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server (default)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context())
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "textguard %s\n", version)
		},
	}
}

func newSnapshotCmd() *cobra.Command {
	snap := lm.Snapshot{}
	var out string

	cmd := &cobra.Command{
		Use:     "snapshot",
		Short:   "Write the model snapshot loaded by serve",
		Example: "textguard snapshot --endpoint http://127.0.0.1:8081 --out ai_detection_model.yaml",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := lm.SaveSnapshot(out, snap); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "model snapshot written to %s\n", out)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVarP(&out, "out", "o", config.DefaultModelSnapshot, "snapshot file to write")
	f.StringVar(&snap.ModelName, "model", lm.DefaultModelName, "causal language model served by the endpoint")
	f.StringVar(&snap.Encoding, "encoding", lm.DefaultEncoding, "tiktoken encoding matching the model vocabulary")
	f.StringVar(&snap.Endpoint, "endpoint", "", "base URL of the text-generation inference server")
	f.IntVar(&snap.MaxRetries, "max-retries", 0, "retries after a failed inference call")
	f.IntVar(&snap.TimeoutMS, "timeout-ms", lm.DefaultTimeoutMS, "timeout of one inference call in milliseconds")
	_ = cmd.MarkFlagRequired("endpoint")
	return cmd
}

// runServe loads configuration and the model snapshot, then serves HTTP
// until SIGINT or SIGTERM.
func runServe(parent context.Context) error {
	// Disable default Go metrics collection to avoid duplicate metrics
	// We collect our own custom system metrics instead
	prometheus.Unregister(collectors.NewGoCollector())
	prometheus.Unregister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	if parent == nil {
		parent = context.Background()
	}
	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration (defaults -> optional file -> env)
	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := logger.InitWith(os.Stdout, cfg.LogFormat); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer func() { _ = logger.Sync() }()
	log := logger.Get()

	// Apply configured log level (fallback to info on invalid input)
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	snap, err := lm.LoadSnapshot(cfg.ModelSnapshot)
	if err != nil {
		log.Error(ctx, "model snapshot unavailable; run `textguard snapshot` first",
			logger.String("path", cfg.ModelSnapshot), logger.Error(err))
		return err
	}

	svc, err := buildService(ctx, cfg, snap)
	if err != nil {
		return err
	}
	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("failed to start service: %w", err)
	}
	defer svc.Stop()

	handler, err := buildHandler(ctx, cfg, svc)
	if err != nil {
		return err
	}

	go startSystemMetricsUpdater(ctx)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeoutFor(snap),
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	// Wait for shutdown signal or a listener failure
	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			log.Error(ctx, "HTTP server failed", logger.Error(err))
			return err
		}
	}
	log.Info(ctx, "shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "server shutdown failed", logger.Error(err))
		return err
	}

	log.Info(ctx, "server stopped")
	return nil
}

// buildService wires the language model client, both engines and the memo.
func buildService(ctx context.Context, cfg *config.Config, snap lm.Snapshot) (*app.Service, error) {
	log := logger.Get()

	var tok lm.Tokenizer
	tiktok, err := lm.NewTiktoken(snap.Encoding)
	if err != nil {
		log.Warn(ctx, "BPE tokenizer unavailable; counting whitespace words instead",
			logger.String("encoding", snap.Encoding), logger.Error(err))
		tok = lm.FieldsTokenizer{}
	} else {
		tok = tiktok
	}

	client, err := lm.NewClient(snap, lm.WithTokenizer(tok), lm.WithLogger(logger.Named("lm")))
	if err != nil {
		return nil, err
	}

	return app.New(
		app.WithLogger(log),
		app.WithDetector(detect.New(detect.WithLanguageModel(client))),
		app.WithComparer(similarity.New()),
		app.WithMemoSize(cfg.MemoSize),
		app.WithEncoding(snap.Encoding),
	), nil
}

// buildHandler registers every route on one mux. The site is the catch-all.
func buildHandler(ctx context.Context, cfg *config.Config, svc *app.Service) (http.Handler, error) {
	mux := http.NewServeMux()

	swagger.Register(ctx, mux)

	apiServer := api.NewServer(svc,
		api.WithMaxUploadBytes(cfg.MaxUploadBytes),
		api.WithCORSOrigins(cfg.CORSOrigins),
		api.WithLogger(logger.Named("api")),
	)
	apiServer.Register(ctx, mux)

	if err := site.Register(ctx, mux, site.WithDir(cfg.StaticDir)); err != nil {
		return nil, err
	}
	return api.RequestID(mux), nil
}

// writeTimeoutFor leaves room for every inference attempt a request may make.
func writeTimeoutFor(snap lm.Snapshot) time.Duration {
	need := snap.Timeout()*time.Duration(snap.MaxRetries+1) + writeTimeout
	if need < writeTimeout {
		return writeTimeout
	}
	return need
}

// startSystemMetricsUpdater starts a background goroutine that updates system metrics.
func startSystemMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(systemMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateSystemMetrics()
		}
	}
}

// updateSystemMetrics updates system-level metrics.
func updateSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	var avgPauseMs float64
	if m.NumGC > 0 {
		avgPauseMs = float64(m.PauseTotalNs) / float64(m.NumGC) / nanosecondsPerMillisecond
	}
	metrics.UpdateSystem(m.Alloc, runtime.NumGoroutine(), avgPauseMs)
}
