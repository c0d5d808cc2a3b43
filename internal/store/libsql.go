package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/tursodatabase/go-libsql"

	"github.com/fabriqa/takt/internal/ontology"
	"github.com/fabriqa/takt/pkg/schema"
)

// LibSQLStore implements the Store interface using libSQL (embedded SQLite fork).
type LibSQLStore struct {
	db *sql.DB
}

// NewLibSQLStore opens a libSQL database at the given path and returns a Store.
// The path should be a file URI, e.g. "file:/path/to/db.db".
func NewLibSQLStore(dbPath string) (*LibSQLStore, error) {
	db, err := sql.Open("libsql", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open libsql: %w", err)
	}
	db.SetMaxOpenConns(1)

	// Apply connection-level PRAGMAs. Some PRAGMAs return rows so we use QueryRow.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA cache_size=-20000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA temp_store=MEMORY",
	}
	for _, p := range pragmas {
		var result string
		_ = db.QueryRow(p).Scan(&result)
	}

	return &LibSQLStore{db: db}, nil
}

// DB returns the underlying *sql.DB for advanced usage.
func (s *LibSQLStore) DB() *sql.DB { return s.db }

// Close closes the database.
func (s *LibSQLStore) Close() error { return s.db.Close() }

// Migrate runs all pending database migrations.
func (s *LibSQLStore) Migrate(ctx context.Context) error {
	return runMigrations(ctx, s.db)
}

// Vacuum runs VACUUM on the database.
func (s *LibSQLStore) Vacuum(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "VACUUM")
	return err
}

// --- Knowledge base ---

// SeedKnowledgeBase replaces the stored knowledge base with the given
// document. The swap is transactional so readers never observe a half-loaded
// ontology.
func (s *LibSQLStore) SeedKnowledgeBase(ctx context.Context, doc *ontology.Document) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin seed: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, table := range []string{"kb_goals", "kb_cells", "kb_actions"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}
	for _, g := range doc.Goals {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO kb_goals (name, description, head) VALUES (?, ?, ?)`,
			g.Name, nullStr(g.Description), g.Head,
		); err != nil {
			return fmt.Errorf("insert goal %q: %w", g.Name, err)
		}
	}
	for _, c := range doc.Cells {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO kb_cells (id, first, rest) VALUES (?, ?, ?)`,
			c.ID, c.First, nullStr(c.Rest),
		); err != nil {
			return fmt.Errorf("insert cell %q: %w", c.ID, err)
		}
	}
	for _, a := range doc.Actions {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO kb_actions (id, execution_type, target_id, output_variable, params, final)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			a.ID, string(a.ExecutionType), nullStr(a.TargetID), nullStr(a.OutputVariable), nullRaw(a.Params), a.Final,
		); err != nil {
			return fmt.Errorf("insert action %q: %w", a.ID, err)
		}
	}
	return tx.Commit()
}

func (s *LibSQLStore) Goal(ctx context.Context, name string) (*ontology.GoalEntry, error) {
	g := &ontology.GoalEntry{}
	var desc sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT name, description, head FROM kb_goals WHERE name = ?`, name,
	).Scan(&g.Name, &desc, &g.Head)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("goal", name)
	}
	if err != nil {
		return nil, err
	}
	g.Description = desc.String
	return g, nil
}

func (s *LibSQLStore) Cell(ctx context.Context, id string) (*ontology.ListCell, error) {
	c := &ontology.ListCell{}
	var rest sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT id, first, rest FROM kb_cells WHERE id = ?`, id,
	).Scan(&c.ID, &c.First, &rest)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("cell", id)
	}
	if err != nil {
		return nil, err
	}
	c.Rest = rest.String
	return c, nil
}

func (s *LibSQLStore) Action(ctx context.Context, id string) (*ontology.ActionEntry, error) {
	a := &ontology.ActionEntry{}
	var execType string
	var targetID, outputVar, params sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT id, execution_type, target_id, output_variable, params, final
		 FROM kb_actions WHERE id = ?`, id,
	).Scan(&a.ID, &execType, &targetID, &outputVar, &params, &a.Final)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("action", id)
	}
	if err != nil {
		return nil, err
	}
	a.ExecutionType = schema.ExecutionType(execType)
	a.TargetID = targetID.String
	a.OutputVariable = outputVar.String
	a.Params = jsonOrNil(params)
	return a, nil
}

func (s *LibSQLStore) Goals(ctx context.Context) ([]ontology.GoalEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, description, head FROM kb_goals ORDER BY name`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var goals []ontology.GoalEntry
	for rows.Next() {
		var g ontology.GoalEntry
		var desc sql.NullString
		if err := rows.Scan(&g.Name, &desc, &g.Head); err != nil {
			return nil, err
		}
		g.Description = desc.String
		goals = append(goals, g)
	}
	return goals, rows.Err()
}

// --- Snapshots ---

func (s *LibSQLStore) PutSnapshot(ctx context.Context, date string, document map[string]any) error {
	doc, err := json.Marshal(document)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO snapshots (date, document, created_at) VALUES (?, ?, ?)
		 ON CONFLICT(date) DO UPDATE SET document=excluded.document`,
		date, string(doc), time.Now().UTC(),
	)
	return err
}

func (s *LibSQLStore) Snapshot(ctx context.Context, date string) (map[string]any, error) {
	var doc string
	var err error
	if date == "" {
		// Empty date selects the most recent capture.
		err = s.db.QueryRowContext(ctx,
			`SELECT document FROM snapshots ORDER BY date DESC LIMIT 1`,
		).Scan(&doc)
		if err == sql.ErrNoRows {
			return nil, schema.NewError(schema.ErrCodeNotFound, "no snapshots available")
		}
	} else {
		err = s.db.QueryRowContext(ctx,
			`SELECT document FROM snapshots WHERE date = ?`, date,
		).Scan(&doc)
		if err == sql.ErrNoRows {
			return nil, storeNotFound("snapshot", date)
		}
	}
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(doc), &m); err != nil {
		return nil, fmt.Errorf("decode snapshot %s: %w", date, err)
	}
	return m, nil
}

func (s *LibSQLStore) Dates(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT date FROM snapshots ORDER BY date`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var dates []string
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, err
		}
		dates = append(dates, canonicalDate(d))
	}
	return dates, rows.Err()
}

// --- Schedules ---

func (s *LibSQLStore) CreateSchedule(ctx context.Context, sched *Schedule) error {
	now := timeOrNow(sched.CreatedAt)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO schedules (id, goal, cron_expression, params, enabled, last_run_at, next_run_at, last_run_status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sched.ID, sched.Goal, sched.CronExpression, nullRaw(sched.Params), sched.Enabled,
		nullTime(sched.LastRunAt), nullTime(sched.NextRunAt), nullStr(sched.LastRunStatus), now, now,
	)
	return err
}

func (s *LibSQLStore) GetSchedule(ctx context.Context, id string) (*Schedule, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, goal, cron_expression, params, enabled, last_run_at, next_run_at, last_run_status, created_at, updated_at
		 FROM schedules WHERE id = ?`, id,
	)
	sched, err := scanSchedule(row.Scan)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("schedule", id)
	}
	return sched, err
}

func (s *LibSQLStore) UpdateSchedule(ctx context.Context, id string, update ScheduleUpdate) error {
	sets := []string{"updated_at = CURRENT_TIMESTAMP"}
	args := []any{}
	if update.LastRunAt != nil {
		sets = append(sets, "last_run_at = ?")
		args = append(args, *update.LastRunAt)
	}
	if update.NextRunAt != nil {
		sets = append(sets, "next_run_at = ?")
		args = append(args, *update.NextRunAt)
	}
	if update.LastRunStatus != nil {
		sets = append(sets, "last_run_status = ?")
		args = append(args, *update.LastRunStatus)
	}
	if update.Enabled != nil {
		sets = append(sets, "enabled = ?")
		args = append(args, *update.Enabled)
	}
	args = append(args, id)

	query := "UPDATE schedules SET " + strings.Join(sets, ", ") + " WHERE id = ?"
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "schedule", id)
}

func (s *LibSQLStore) ListSchedules(ctx context.Context, filter ScheduleFilter) ([]*Schedule, error) {
	query := `SELECT id, goal, cron_expression, params, enabled, last_run_at, next_run_at, last_run_status, created_at, updated_at
		 FROM schedules WHERE 1=1`
	args := []any{}
	if filter.Goal != "" {
		query += " AND goal = ?"
		args = append(args, filter.Goal)
	}
	if filter.Enabled != nil {
		query += " AND enabled = ?"
		args = append(args, *filter.Enabled)
	}
	query += " ORDER BY created_at"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var scheds []*Schedule
	for rows.Next() {
		sched, err := scanSchedule(rows.Scan)
		if err != nil {
			return nil, err
		}
		scheds = append(scheds, sched)
	}
	return scheds, rows.Err()
}

func (s *LibSQLStore) DeleteSchedule(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM schedules WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "schedule", id)
}

func scanSchedule(scan func(...any) error) (*Schedule, error) {
	sched := &Schedule{}
	var params, status sql.NullString
	var lastRun, nextRun sql.NullTime
	err := scan(&sched.ID, &sched.Goal, &sched.CronExpression, &params, &sched.Enabled,
		&lastRun, &nextRun, &status, &sched.CreatedAt, &sched.UpdatedAt)
	if err != nil {
		return nil, err
	}
	sched.Params = jsonOrNil(params)
	sched.LastRunStatus = status.String
	if lastRun.Valid {
		sched.LastRunAt = &lastRun.Time
	}
	if nextRun.Valid {
		sched.NextRunAt = &nextRun.Time
	}
	return sched, nil
}

// --- Helpers ---

func storeNotFound(resource, id string) *schema.TaktError {
	return schema.NewErrorf(schema.ErrCodeNotFound, "%s %q not found", resource, id)
}

// canonicalDate strips the time component the driver tacks onto date
// columns on the way out; callers store and expect bare YYYY-MM-DD strings.
func canonicalDate(date string) string {
	if len(date) > 10 {
		return date[:10]
	}
	return date
}

func checkRowsAffected(res sql.Result, resource, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storeNotFound(resource, id)
	}
	return nil
}

func timeOrNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullRaw(r json.RawMessage) any {
	if len(r) == 0 {
		return nil
	}
	return string(r)
}

func jsonOrNil(ns sql.NullString) json.RawMessage {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	return json.RawMessage(ns.String)
}
