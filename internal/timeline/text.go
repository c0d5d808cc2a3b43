package timeline

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// DefaultTextWidth is the bar area width used when the caller passes 0.
const DefaultTextWidth = 72

// barSymbols cycle per job so adjacent intervals of different jobs are
// distinguishable in the chart.
const barSymbols = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"

// RenderText renders a Chart as a fixed-width terminal chart: one row per
// machine, time scaled onto width columns, plus a legend mapping each
// symbol to its job.
func RenderText(chart *Chart, width int) string {
	if width <= 0 {
		width = DefaultTextWidth
	}
	span := chart.Span()
	if span <= 0 {
		span = time.Minute
	}

	symbols := assignSymbols(chart)
	nameWidth := 0
	for _, lane := range chart.Lanes {
		if len(lane.Machine) > nameWidth {
			nameWidth = len(lane.Machine)
		}
	}

	var b strings.Builder
	if chart.Title != "" {
		b.WriteString(fmt.Sprintf("=== %s ===\n", chart.Title))
	}
	b.WriteString(fmt.Sprintf("%s .. %s (%s)\n\n",
		chart.Start.UTC().Format(time.RFC3339),
		chart.End.UTC().Format(time.RFC3339),
		span.Round(time.Second),
	))

	for _, lane := range chart.Lanes {
		row := make([]byte, width)
		for i := range row {
			row[i] = '.'
		}
		for _, bar := range lane.Bars {
			from := column(chart.Start, bar.Start, span, width)
			to := column(chart.Start, bar.End, span, width)
			if to <= from {
				to = from + 1 // zero-duration operations still get one cell
			}
			sym := symbols[bar.Job]
			for i := from; i < to && i < width; i++ {
				row[i] = sym
			}
		}
		b.WriteString(fmt.Sprintf("%-*s |%s|\n", nameWidth, lane.Machine, row))
	}

	b.WriteString("\n")
	for _, job := range orderedJobs(chart) {
		b.WriteString(fmt.Sprintf("  %c = %s\n", symbols[job], job))
	}

	return b.String()
}

// column maps a timestamp onto a chart column.
func column(origin, t time.Time, span time.Duration, width int) int {
	frac := float64(t.Sub(origin)) / float64(span)
	col := int(frac * float64(width))
	if col < 0 {
		return 0
	}
	if col > width {
		return width
	}
	return col
}

// assignSymbols gives each job a stable symbol in first-appearance order.
func assignSymbols(chart *Chart) map[string]byte {
	symbols := make(map[string]byte)
	for _, job := range orderedJobs(chart) {
		symbols[job] = barSymbols[len(symbols)%len(barSymbols)]
	}
	return symbols
}

// orderedJobs lists distinct jobs by earliest bar start.
func orderedJobs(chart *Chart) []string {
	type first struct {
		job string
		at  time.Time
	}
	seen := make(map[string]time.Time)
	for _, lane := range chart.Lanes {
		for _, bar := range lane.Bars {
			if at, ok := seen[bar.Job]; !ok || bar.Start.Before(at) {
				seen[bar.Job] = bar.Start
			}
		}
	}

	firsts := make([]first, 0, len(seen))
	for job, at := range seen {
		firsts = append(firsts, first{job, at})
	}
	sort.Slice(firsts, func(i, j int) bool {
		if !firsts[i].at.Equal(firsts[j].at) {
			return firsts[i].at.Before(firsts[j].at)
		}
		return firsts[i].job < firsts[j].job
	})

	jobs := make([]string, len(firsts))
	for i, f := range firsts {
		jobs[i] = f.job
	}
	return jobs
}
