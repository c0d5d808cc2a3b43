package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/fabriqa/takt/internal/actions"
	"github.com/fabriqa/takt/internal/agent"
	"github.com/fabriqa/takt/internal/factory"
	"github.com/fabriqa/takt/internal/ontology"
	"github.com/fabriqa/takt/internal/service"
	"github.com/fabriqa/takt/internal/timeline"
	"github.com/fabriqa/takt/internal/validation"
)

type simFlags struct {
	productID     string
	quantity      int
	targetMachine string
	seed          int64
	start         string
}

func (f *simFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&f.productID, "product", "", "product id (required)")
	fs.IntVar(&f.quantity, "quantity", 1, "batch size")
	fs.StringVar(&f.targetMachine, "target-machine", "", "force all routing steps onto this machine")
	fs.Int64Var(&f.seed, "seed", 0, "random seed for reproducible runs")
	fs.StringVar(&f.start, "start", "", "simulation start time, RFC 3339 (default now)")
}

func (f *simFlags) request() (service.SimulateRequest, error) {
	req := service.SimulateRequest{
		ProductID:     f.productID,
		Quantity:      f.quantity,
		TargetMachine: f.targetMachine,
		Seed:          f.seed,
	}
	if f.start != "" {
		start, err := time.Parse(time.RFC3339, f.start)
		if err != nil {
			return req, fmt.Errorf("invalid -start: %w", err)
		}
		req.Start = start
	}
	return req, nil
}

// cmdSimulate runs the embedded simulator and prints the prediction document.
func cmdSimulate(args []string) error {
	fs := flag.NewFlagSet("simulate", flag.ExitOnError)
	var flags simFlags
	flags.register(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	res, err := runSimulation(&flags)
	if err != nil {
		return err
	}
	return printJSON(res.Prediction.Document())
}

// cmdTimeline runs the embedded simulator and renders the machine timeline.
func cmdTimeline(args []string) error {
	fs := flag.NewFlagSet("timeline", flag.ExitOnError)
	var flags simFlags
	flags.register(fs)
	format := fs.String("format", "text", "chart format: text or mermaid")
	width := fs.Int("width", timeline.DefaultTextWidth, "bar area width for text charts")
	if err := fs.Parse(args); err != nil {
		return err
	}

	res, err := runSimulation(&flags)
	if err != nil {
		return err
	}

	chart, err := timeline.Build(fmt.Sprintf("Batch of %s", flags.productID), res.Result.Timeline)
	if err != nil {
		return err
	}
	switch *format {
	case "mermaid":
		fmt.Fprint(os.Stdout, timeline.RenderMermaidGantt(chart))
	case "text":
		fmt.Fprint(os.Stdout, timeline.RenderText(chart, *width))
	default:
		return fmt.Errorf("unknown format %q", *format)
	}
	return nil
}

func runSimulation(flags *simFlags) (*service.SimulateResult, error) {
	if flags.productID == "" {
		return nil, fmt.Errorf("-product is required")
	}

	cfg := loadConfig()
	logger := newLogger(cfg)

	svc, pool, err := simOnlyService(cfg, logger)
	if err != nil {
		return nil, err
	}
	defer pool.Shutdown()

	req, err := flags.request()
	if err != nil {
		return nil, err
	}
	return svc.Simulate(context.Background(), req)
}

// simOnlyService wires the minimal stack the simulator subcommands need:
// master data plus an empty knowledge base.
func simOnlyService(cfg Config, logger *slog.Logger) (*service.Service, *agent.RunPool, error) {
	if cfg.MasterDataPath == "" {
		return nil, nil, fmt.Errorf("no master data: set TAKT_MASTER_DATA_PATH")
	}
	md, err := factory.Load(cfg.MasterDataPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load master data: %w", err)
	}

	validator, err := validation.New()
	if err != nil {
		return nil, nil, err
	}
	kb, err := ontology.NewMemoryKB(&ontology.Document{})
	if err != nil {
		return nil, nil, err
	}
	ag, err := agent.New(agent.Deps{Registry: actions.NewRegistry(), Logger: logger})
	if err != nil {
		return nil, nil, err
	}

	pool := agent.NewRunPool(1)
	svc, err := service.New(service.Deps{
		Validator: validator,
		Resolver:  ontology.NewResolver(kb, logger),
		KB:        kb,
		Agent:     ag,
		Pool:      pool,
		Provider:  factory.NewProvider(md),
		Logger:    logger,
	})
	if err != nil {
		pool.Shutdown()
		return nil, nil, err
	}
	return svc, pool, nil
}
