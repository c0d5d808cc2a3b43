package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fabriqa/takt/internal/scheduler"
	"github.com/fabriqa/takt/pkg/mcp"
)

// cmdServe starts the MCP goal service over stdio, plus the scheduler and
// metrics listener when configured. Runs until stdin closes or a signal
// arrives.
func cmdServe(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	noScheduler := fs.Bool("no-scheduler", false, "disable the schedule runner")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg := loadConfig()
	logger := newLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := buildStack(ctx, cfg, logger, true)
	if err != nil {
		return err
	}
	defer st.close()

	logger.Info("takt starting",
		"db_path", cfg.DBPath,
		"kb_path", cfg.KBPath,
		"master_data", cfg.MasterDataPath,
		"pool_size", cfg.PoolSize,
		"scheduler", cfg.SchedulerEnabled && !*noScheduler,
		"metrics_addr", cfg.MetricsAddr,
	)

	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsSrv := &http.Server{Addr: cfg.MetricsAddr, Handler: mux}
		go func() {
			if srvErr := metricsSrv.ListenAndServe(); srvErr != nil && !errors.Is(srvErr, http.ErrServerClosed) {
				logger.Error("metrics listener failed", "error", srvErr.Error())
			}
		}()
		defer func() {
			shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = metricsSrv.Shutdown(shutCtx)
		}()
	}

	if cfg.SchedulerEnabled && !*noScheduler {
		sched := scheduler.NewScheduler(st.store, st.svc, st.hub, st.sink, logger)
		if err := sched.RecoverMissed(ctx); err != nil {
			logger.Error("missed schedule recovery failed", "error", err.Error())
		}
		if err := sched.Start(ctx); err != nil {
			return err
		}
		defer func() { _ = sched.Stop() }()
	}

	sessions := mcp.NewSessionRegistry()
	srv := mcp.NewTaktServer(mcp.TaktServerDeps{
		Service:  st.svc,
		Store:    st.store,
		Hub:      st.hub,
		Logger:   logger,
		Sessions: sessions,
	})
	notifier := mcp.NewRunNotifier(srv.MCPServer(), st.hub, sessions, logger)
	if err := notifier.Start(ctx); err != nil {
		return err
	}

	err = srv.Serve(ctx)
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	logger.Info("takt stopped")
	return err
}
