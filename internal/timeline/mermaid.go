package timeline

import (
	"fmt"
	"strings"
	"time"
)

const mermaidTimeLayout = "2006-01-02T15:04:05"

// RenderMermaidGantt renders a Chart as a Mermaid gantt document, one
// section per machine.
func RenderMermaidGantt(chart *Chart) string {
	var b strings.Builder

	b.WriteString("gantt\n")
	if chart.Title != "" {
		b.WriteString(fmt.Sprintf("    title %s\n", mermaidEscape(chart.Title)))
	}
	b.WriteString("    dateFormat YYYY-MM-DDTHH:mm:ss\n")
	b.WriteString(fmt.Sprintf("    axisFormat %s\n", axisFormat(chart.Span())))

	for _, lane := range chart.Lanes {
		b.WriteString(fmt.Sprintf("    section %s\n", mermaidEscape(lane.Machine)))
		for i, bar := range lane.Bars {
			b.WriteString(fmt.Sprintf("    %s : %s, %s, %s\n",
				mermaidEscape(bar.Job+" "+bar.Operation),
				mermaidTaskID(lane.Machine, i),
				bar.Start.UTC().Format(mermaidTimeLayout),
				bar.End.UTC().Format(mermaidTimeLayout),
			))
		}
	}

	return b.String()
}

// axisFormat picks a tick label granularity matching the chart span.
func axisFormat(span time.Duration) string {
	switch {
	case span >= 48*time.Hour:
		return "%m-%d"
	case span >= 2*time.Hour:
		return "%H:%M"
	default:
		return "%H:%M:%S"
	}
}

// mermaidTaskID builds a task id safe for Mermaid syntax.
func mermaidTaskID(machine string, index int) string {
	return fmt.Sprintf("%s_%d", sanitizeID(machine), index)
}

func sanitizeID(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

// mermaidEscape strips characters that break Mermaid line parsing.
func mermaidEscape(s string) string {
	s = strings.ReplaceAll(s, ":", " ")
	s = strings.ReplaceAll(s, "#", " ")
	s = strings.ReplaceAll(s, "\n", " ")
	return strings.TrimSpace(s)
}
