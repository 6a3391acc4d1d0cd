package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/JonMunkholm/sheetkit/internal/config"
	"github.com/JonMunkholm/sheetkit/internal/core"
	_ "github.com/JonMunkholm/sheetkit/internal/core/tables" // Register built-in templates
	"github.com/JonMunkholm/sheetkit/internal/logging"
	"github.com/JonMunkholm/sheetkit/internal/metrics"
	"github.com/JonMunkholm/sheetkit/internal/schema"
	"github.com/JonMunkholm/sheetkit/internal/store"
	"github.com/JonMunkholm/sheetkit/internal/web"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Info("no .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Debug("configuration loaded", "config", cfg.String())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := core.DefaultRegistry()
	if cfg.Templates.Dir != "" {
		loader := schema.NewLoader(cfg.Templates.Dir, reg, slog.Default())
		res, err := loader.Load()
		if err != nil {
			// Broken files are skipped; the rest of the directory still loads.
			slog.Warn("some template files failed to load", "error", err)
		}
		slog.Info("template files loaded", "dir", cfg.Templates.Dir, "files", res.Files, "templates", res.Templates)

		if cfg.Templates.Watch {
			watcher, err := schema.NewWatcher(cfg.Templates.Dir, 0, slog.Default())
			if err != nil {
				slog.Error("failed to create template watcher", "error", err)
				os.Exit(1)
			}
			defer watcher.Stop()
			go func() {
				if err := watcher.Watch(ctx, loader.Reload); err != nil {
					slog.Error("template watcher failed", "error", err)
				}
			}()
		}
	}
	slog.Info("templates registered", "count", reg.Count(), "groups", len(reg.Groups()))

	limiter := core.NewUploadLimiter(cfg.Upload.MaxConcurrent, cfg.Upload.MaxWaitTime)
	svcCfg := core.ServiceConfig{
		BatchSize:       cfg.Read.BatchSize,
		HeadRows:        cfg.Read.HeadRows,
		MaxFileSize:     cfg.Upload.MaxFileSize,
		RowSpan:         cfg.Render.RowSpan,
		ColumnSpan:      cfg.Render.ColumnSpan,
		SkipFieldChecks: !cfg.Read.ValidateFields,
		Writer: core.WriterConfig{
			Render: core.RendererConfig{
				HeadRows:          cfg.Read.HeadRows,
				HiddenColumnRange: cfg.Render.HiddenColumnRange,
				HiddenRowRange:    cfg.Render.HiddenRowRange,
			},
			Annotate: core.AnnotatorConfig{
				FillColor: cfg.Annotate.FillColor,
				Prefix:    cfg.Annotate.Prefix,
				Suffix:    cfg.Annotate.Suffix,
				Author:    cfg.Annotate.Author,
			},
		},
		Limiter: limiter,
		Logger:  slog.Default(),
	}

	var collector *metrics.Collector
	if cfg.Metrics.Enabled {
		promReg := prometheus.NewRegistry()
		promReg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		collector = metrics.NewCollector(cfg.Metrics.Namespace, promReg)
		collector.WatchLimiter(cfg.Metrics.Namespace, limiter)
		svcCfg.Observer = collector
	}

	if cfg.Database.Enabled() {
		pool, err := store.Open(ctx, store.PoolConfig{
			URL:      cfg.Database.URL,
			MaxConns: int32(cfg.Database.MaxConns),
			MinConns: int32(cfg.Database.MinConns),
		})
		if err != nil {
			slog.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer pool.Close()
		svcCfg.Sink = store.NewCopySink(pool, slog.Default())
		slog.Info("connected to database", "max_conns", cfg.Database.MaxConns)
	}

	service := core.NewService(reg, svcCfg)
	server := web.NewServer(service, cfg, collector)

	done := make(chan struct{})
	go func() {
		defer close(done)
		<-ctx.Done()
		slog.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if st := limiter.Status(); st.Active > 0 {
			slog.Info("waiting for uploads to complete", "active", st.Active)
			if err := limiter.WaitForDrain(shutdownCtx); err != nil {
				slog.Warn("uploads did not complete in time", "error", err)
			}
		}
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
	}()

	if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server stopped", "error", err)
		os.Exit(1)
	}
	<-done
	slog.Info("server stopped")
}
