// Package timeline renders simulation timelines for operators: a Mermaid
// Gantt document for embedding in reports and a fixed-width text chart for
// terminals. Both renderers consume the same intermediate Chart model built
// from timeline entries.
package timeline

import (
	"sort"
	"time"

	"github.com/fabriqa/takt/internal/sim"
	"github.com/fabriqa/takt/pkg/schema"
)

// Chart is the intermediate representation shared by all renderers: one
// lane per machine, bars in chronological order within each lane.
type Chart struct {
	Title string
	Start time.Time
	End   time.Time
	Lanes []Lane
}

// Lane holds the scheduled intervals of one machine.
type Lane struct {
	Machine string
	Bars    []Bar
}

// Bar is one machine-operation interval.
type Bar struct {
	Job       string
	Part      string
	Operation string
	Start     time.Time
	End       time.Time
}

// Span returns the chart's total duration.
func (c *Chart) Span() time.Duration {
	return c.End.Sub(c.Start)
}

// Build groups timeline entries into per-machine lanes. Lanes are sorted by
// machine id and bars by start time (job id breaking ties), so rendering is
// deterministic regardless of entry order.
func Build(title string, entries []sim.TimelineEntry) (*Chart, error) {
	if len(entries) == 0 {
		return nil, schema.NewError(schema.ErrCodeValidation, "timeline has no entries")
	}

	byMachine := make(map[string][]Bar)
	chart := &Chart{Title: title, Start: entries[0].Start, End: entries[0].End}

	for _, e := range entries {
		byMachine[e.Machine] = append(byMachine[e.Machine], Bar{
			Job:       e.Job,
			Part:      e.Part,
			Operation: e.Operation,
			Start:     e.Start,
			End:       e.End,
		})
		if e.Start.Before(chart.Start) {
			chart.Start = e.Start
		}
		if e.End.After(chart.End) {
			chart.End = e.End
		}
	}

	machines := make([]string, 0, len(byMachine))
	for m := range byMachine {
		machines = append(machines, m)
	}
	sort.Strings(machines)

	for _, m := range machines {
		bars := byMachine[m]
		sort.Slice(bars, func(i, j int) bool {
			if !bars[i].Start.Equal(bars[j].Start) {
				return bars[i].Start.Before(bars[j].Start)
			}
			return bars[i].Job < bars[j].Job
		})
		chart.Lanes = append(chart.Lanes, Lane{Machine: m, Bars: bars})
	}

	return chart, nil
}
