package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/fabriqa/takt/pkg/schema"
)

// cmdRun executes one goal and prints the result document as JSON.
func cmdRun(args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	date := fs.String("date", "", "snapshot date (YYYY-MM-DD)")
	productID := fs.String("product", "", "product id")
	quantity := fs.Int("quantity", 0, "batch size")
	targetMachine := fs.String("target-machine", "", "force all routing steps onto this machine")
	rangeStart := fs.String("from", "", "date range start (YYYY-MM-DD)")
	rangeEnd := fs.String("to", "", "date range end (YYYY-MM-DD)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: takt run [flags] <goal>")
	}

	cfg := loadConfig()
	logger := newLogger(cfg)
	ctx := context.Background()

	st, err := buildStack(ctx, cfg, logger, false)
	if err != nil {
		return err
	}
	defer st.close()

	req := &schema.GoalRequest{
		Goal:          fs.Arg(0),
		Date:          *date,
		ProductID:     *productID,
		Quantity:      *quantity,
		TargetMachine: *targetMachine,
	}
	if *rangeStart != "" || *rangeEnd != "" {
		req.DateRange = &schema.DateRange{Start: *rangeStart, End: *rangeEnd}
	}

	result, err := st.svc.Execute(ctx, req)
	if err != nil {
		return err
	}
	return printJSON(result)
}

// cmdPlan resolves a goal and prints its ordered action list.
func cmdPlan(args []string) error {
	fs := flag.NewFlagSet("plan", flag.ExitOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: takt plan <goal>")
	}

	cfg := loadConfig()
	logger := newLogger(cfg)
	ctx := context.Background()

	st, err := buildStack(ctx, cfg, logger, false)
	if err != nil {
		return err
	}
	defer st.close()

	plan, err := st.svc.Plan(ctx, fs.Arg(0))
	if err != nil {
		return err
	}
	return printJSON(plan)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
