package sim

import (
	"encoding/csv"
	"io"
	"sort"
	"time"
)

// Timeline export event markers.
const (
	EventStart = "start"
	EventEnd   = "end"
)

// TimelineRow is one exported timeline event. Consumers pair start/end rows
// by (part, job, operation) to reconstruct intervals, so rows are always
// emitted in matched pairs.
type TimelineRow struct {
	Part      string    `json:"part"`
	Job       string    `json:"job"`
	Operation string    `json:"operation"`
	Machine   string    `json:"machine"`
	Event     string    `json:"event"`
	Time      time.Time `json:"time"`
}

// ExportRows flattens timeline entries into chronologically ordered event
// rows, one start and one end row per entry.
func ExportRows(entries []TimelineEntry) []TimelineRow {
	rows := make([]TimelineRow, 0, len(entries)*2)
	for _, e := range entries {
		rows = append(rows,
			TimelineRow{Part: e.Part, Job: e.Job, Operation: e.Operation, Machine: e.Machine, Event: EventStart, Time: e.Start},
			TimelineRow{Part: e.Part, Job: e.Job, Operation: e.Operation, Machine: e.Machine, Event: EventEnd, Time: e.End},
		)
	}

	sort.SliceStable(rows, func(i, j int) bool {
		if !rows[i].Time.Equal(rows[j].Time) {
			return rows[i].Time.Before(rows[j].Time)
		}
		if rows[i].Job != rows[j].Job {
			return rows[i].Job < rows[j].Job
		}
		if rows[i].Operation != rows[j].Operation {
			return rows[i].Operation < rows[j].Operation
		}
		// A zero-duration operation still lists its start before its end.
		return eventRank(rows[i].Event) < eventRank(rows[j].Event)
	})

	return rows
}

func eventRank(event string) int {
	if event == EventStart {
		return 0
	}
	return 1
}

// WriteCSV writes export rows as CSV with a header, times in RFC 3339.
func WriteCSV(w io.Writer, rows []TimelineRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"part", "job", "operation", "machine", "event", "time"}); err != nil {
		return err
	}
	for _, r := range rows {
		record := []string{r.Part, r.Job, r.Operation, r.Machine, r.Event, r.Time.Format(time.RFC3339)}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
