package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/avelis/boardsync/internal/auditlog"
	"github.com/avelis/boardsync/internal/auditstore"
	"github.com/avelis/boardsync/internal/config"
	"github.com/avelis/boardsync/internal/database"
	"github.com/avelis/boardsync/internal/gateway"
	"github.com/avelis/boardsync/internal/health"
	"github.com/avelis/boardsync/internal/model"
	"github.com/avelis/boardsync/internal/mux"
	"github.com/avelis/boardsync/internal/notify"
	"github.com/avelis/boardsync/internal/reconnect"
	"github.com/avelis/boardsync/internal/router"
	"github.com/avelis/boardsync/internal/service"
	"github.com/avelis/boardsync/internal/version"
)

const shutdownTimeout = 30 * time.Second

func main() {
	configPath := flag.String("config", "", "path to config file (optional, env overlay always applies)")
	flag.Parse()

	// Set up structured logging
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	slog.SetDefault(logger)

	logger.Info("starting syncd",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
	)

	// Load configuration
	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Info("configuration loaded",
		"instance_id", cfg.Instance.ID,
		"gateway_url", cfg.Gateway.URL,
		"audit_persist", !cfg.Audit.PersistDisabled,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Audit persistence sink
	var sink auditlog.Sink
	if !cfg.Audit.PersistDisabled {
		logger.Info("connecting to audit database",
			"host", cfg.Database.Host,
			"port", cfg.Database.Port,
			"database", cfg.Database.Name,
		)
		pool, err := database.Connect(ctx, cfg.Database)
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer pool.Close()
		sink = auditstore.New(pool, logger)
		logger.Info("audit database connected")
	}

	batcher := auditlog.NewBatcher(auditlog.Config{
		FlushInterval:   cfg.Audit.FlushInterval,
		BatchSize:       cfg.Audit.BatchSize,
		MaxRetries:      cfg.Audit.MaxRetries,
		MaxQueue:        cfg.Audit.MaxQueue,
		PersistDisabled: cfg.Audit.PersistDisabled,
	}, sink, logger)

	// Gateway
	gw := gateway.NewWS(gateway.Config{
		URL:              cfg.Gateway.URL,
		AuthToken:        cfg.Gateway.AuthToken,
		HandshakeTimeout: cfg.Gateway.HandshakeTimeout,
		WriteTimeout:     cfg.Gateway.WriteTimeout,
		CommandTimeout:   cfg.Gateway.CommandTimeout,
		PingInterval:     cfg.Gateway.PingInterval,
		PongTimeout:      cfg.Gateway.PongTimeout,
		EventBufferSize:  cfg.Gateway.EventBufferSize,
	}, logger.With("component", "gateway"))

	// Core components
	rt := router.New(batcher, logger.With("component", "router"))
	multiplexer := mux.New(gw, rt, logger.With("component", "mux"))

	monitor := health.NewMonitor(health.Config{
		Interval:     cfg.Health.ProbeInterval,
		ProbeTimeout: cfg.Health.ProbeTimeout,
	}, gw, logger.With("component", "health"))

	ctrl := reconnect.NewController(reconnect.Config{
		BaseDelay:   cfg.Reconnect.BaseDelay,
		MaxDelay:    cfg.Reconnect.MaxDelay,
		MaxAttempts: cfg.Reconnect.MaxAttempts,
	}, gw, monitor, multiplexer, monitor.Degraded(), logger.With("component", "reconnect"))

	svc := service.New(gw, monitor, ctrl, multiplexer, rt, batcher, logger)
	if err := svc.Start(ctx); err != nil {
		logger.Error("failed to start realtime service", "error", err)
		os.Exit(1)
	}

	// Default notification subscriptions, quiet hours respected
	if cfg.Notify.Enabled {
		window, err := notify.ParseWindow(cfg.Notify.QuietStart, cfg.Notify.QuietEnd)
		if err != nil {
			logger.Error("invalid quiet hours window", "error", err)
			os.Exit(1)
		}
		notifier := notify.New(window, batcher, logger.With("component", "notify"))
		for _, resource := range []string{"tasks", "projects"} {
			key := model.Key(resource, cfg.Instance.ID)
			if _, err := svc.Subscribe(ctx, key, notifier); err != nil {
				logger.Warn("notification subscription failed",
					"key", key.String(),
					"error", err,
				)
			}
		}
	}

	// Status endpoint
	statusServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Status.Port),
		Handler: createStatusHandler(cfg.Status.Path, svc, rt, multiplexer, batcher),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting status server", "port", cfg.Status.Port)
		if err := statusServer.ListenAndServe(); err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return statusServer.Shutdown(shutdownCtx)
	})

	<-ctx.Done()

	stopCtx, stopCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stopCancel()

	if err := svc.Stop(stopCtx); err != nil {
		logger.Warn("service stop", "error", err)
	}
	if err := g.Wait(); err != nil {
		logger.Warn("status server", "error", err)
	}

	logger.Info("syncd stopped")
}

// createStatusHandler serves the connection status and component stats.
func createStatusHandler(path string, svc *service.Service, rt *router.Router, m *mux.Mux, batcher *auditlog.Batcher) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
		status := struct {
			Version    string                   `json:"version"`
			Connection service.ConnectionStatus `json:"connection"`
			Router     router.Stats             `json:"router"`
			Channels   int                      `json:"channels"`
			Audit      auditlog.Metrics         `json:"audit"`
		}{
			Version:    version.String(),
			Connection: svc.ConnectionStatus(),
			Router:     rt.Stats(),
			Channels:   m.Stats().Channels,
			Audit:      batcher.Stats(),
		}

		w.Header().Set("Content-Type", "application/json")
		if !status.Connection.IsConnected {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(status)
	})
	// Operator escape hatch out of the exhausted reconnect state
	mux.HandleFunc(path+"/reset", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		svc.ResetReconnect()
		w.WriteHeader(http.StatusNoContent)
	})
	return mux
}
