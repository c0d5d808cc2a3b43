package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/fabriqa/takt/internal/actions"
	"github.com/fabriqa/takt/internal/agent"
	"github.com/fabriqa/takt/internal/container"
	"github.com/fabriqa/takt/internal/expressions"
	"github.com/fabriqa/takt/internal/factory"
	"github.com/fabriqa/takt/internal/logging"
	"github.com/fabriqa/takt/internal/metrics"
	"github.com/fabriqa/takt/internal/ontology"
	"github.com/fabriqa/takt/internal/registry"
	"github.com/fabriqa/takt/internal/service"
	"github.com/fabriqa/takt/internal/snapshot"
	"github.com/fabriqa/takt/internal/store"
	"github.com/fabriqa/takt/internal/streaming"
	"github.com/fabriqa/takt/internal/validation"
)

// stack is the wired application: everything a subcommand needs, plus the
// teardown order.
type stack struct {
	cfg      Config
	logger   *slog.Logger
	store    *store.LibSQLStore // nil for one-shot commands
	svc      *service.Service
	hub      *streaming.MemoryHub
	pool     *agent.RunPool
	provider *factory.Provider
	sink     metrics.Sink
}

func (s *stack) close() {
	s.pool.Shutdown()
	if s.store != nil {
		_ = s.store.Close()
	}
}

func newLogger(cfg Config) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var inner slog.Handler
	if strings.EqualFold(cfg.LogFormat, "json") {
		inner = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		inner = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(logging.NewCorrelationHandler(inner))
}

// buildStack wires the goal service. withStore opens the libSQL database
// (knowledge base, snapshots, schedules); one-shot commands instead load
// the knowledge base and snapshots from the configured files.
func buildStack(ctx context.Context, cfg Config, logger *slog.Logger, withStore bool) (*stack, error) {
	validator, err := validation.New()
	if err != nil {
		return nil, fmt.Errorf("compile schemas: %w", err)
	}
	engines, err := expressions.NewEngines()
	if err != nil {
		return nil, fmt.Errorf("build query engines: %w", err)
	}

	var sink metrics.Sink = metrics.NewNoopSink()
	if withStore && cfg.MetricsAddr != "" {
		sink = metrics.NewPrometheusSink(prometheus.DefaultRegisterer)
	}

	var st *store.LibSQLStore
	var kb ontology.KnowledgeBase
	if withStore {
		st, err = store.NewLibSQLStore("file:" + cfg.DBPath)
		if err != nil {
			return nil, err
		}
		if err := st.Migrate(ctx); err != nil {
			_ = st.Close()
			return nil, fmt.Errorf("migrate store: %w", err)
		}
		if cfg.KBPath != "" {
			doc, loadErr := ontology.LoadFile(cfg.KBPath)
			if loadErr != nil {
				_ = st.Close()
				return nil, fmt.Errorf("load knowledge base: %w", loadErr)
			}
			if seedErr := st.SeedKnowledgeBase(ctx, doc); seedErr != nil {
				_ = st.Close()
				return nil, fmt.Errorf("seed knowledge base: %w", seedErr)
			}
		}
		kb = st
	} else {
		if cfg.KBPath == "" {
			return nil, fmt.Errorf("no knowledge base: set TAKT_KB_PATH")
		}
		doc, loadErr := ontology.LoadFile(cfg.KBPath)
		if loadErr != nil {
			return nil, fmt.Errorf("load knowledge base: %w", loadErr)
		}
		kb, err = ontology.NewMemoryKB(doc)
		if err != nil {
			return nil, err
		}
	}

	var source snapshot.Source
	switch {
	case cfg.SnapshotDir != "":
		source = snapshot.NewDirSource(cfg.SnapshotDir)
	case st != nil:
		source = st
	default:
		source = snapshot.NewMemorySource()
	}

	var provider *factory.Provider
	if cfg.MasterDataPath != "" {
		md, loadErr := factory.Load(cfg.MasterDataPath)
		if loadErr != nil {
			if st != nil {
				_ = st.Close()
			}
			return nil, fmt.Errorf("load master data: %w", loadErr)
		}
		provider = factory.NewProvider(md)
	}

	reg := actions.NewRegistry()
	if err := reg.Register(actions.NewQueryHandler(engines, source, logger)); err != nil {
		return nil, err
	}
	if cfg.RegistryURL != "" {
		client, clientErr := registry.NewClient(registry.Config{
			BaseURL: cfg.RegistryURL,
			Timeout: cfg.backendTimeout(),
			Metrics: sink,
		}, logger)
		if clientErr != nil {
			return nil, fmt.Errorf("registry client: %w", clientErr)
		}
		if err := reg.Register(actions.NewSubmodelHandler(client, logger)); err != nil {
			return nil, err
		}
	}
	if cfg.ContainerURL != "" {
		client, clientErr := container.NewClient(container.Config{
			Endpoint: cfg.ContainerURL,
			Timeout:  cfg.backendTimeout(),
			Metrics:  sink,
		}, validator, logger)
		if clientErr != nil {
			return nil, fmt.Errorf("container client: %w", clientErr)
		}
		if err := reg.Register(actions.NewContainerHandler(client, logger)); err != nil {
			return nil, err
		}
	}
	var fallback *agent.FallbackEstimator
	if provider != nil {
		simHandler, simErr := actions.NewSimulateHandler(provider, actions.SimulateConfig{
			RemoteURL: cfg.SimURL,
			Timeout:   cfg.backendTimeout(),
			Metrics:   sink,
		}, logger)
		if simErr != nil {
			return nil, fmt.Errorf("simulate handler: %w", simErr)
		}
		if err := reg.Register(simHandler); err != nil {
			return nil, err
		}
		fallback = agent.NewFallbackEstimator(provider, logger)
	}

	hub := streaming.NewMemoryHub()
	ag, err := agent.New(agent.Deps{
		Registry: reg,
		Fallback: fallback,
		Breakers: agent.NewBreakerRegistry(agent.DefaultBreakerConfig(), sink),
		Hub:      hub,
		Metrics:  sink,
		Logger:   logger,
	})
	if err != nil {
		return nil, err
	}

	pool := agent.NewRunPool(cfg.PoolSize)
	svc, err := service.New(service.Deps{
		Validator: validator,
		Resolver:  ontology.NewResolver(kb, logger),
		KB:        kb,
		Agent:     ag,
		Pool:      pool,
		Provider:  provider,
		Logger:    logger,
	})
	if err != nil {
		pool.Shutdown()
		return nil, err
	}

	return &stack{
		cfg:      cfg,
		logger:   logger,
		store:    st,
		svc:      svc,
		hub:      hub,
		pool:     pool,
		provider: provider,
		sink:     sink,
	}, nil
}
