package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/ahermangesh/Leads/internal/model"
)

// sqliteTime is fixed width so stored timestamps compare lexically.
const sqliteTime = "2006-01-02T15:04:05.000000000Z"

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	// A single connection serializes writers across pipeline workers.
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS leads (
	id         TEXT PRIMARY KEY,
	campaign   TEXT NOT NULL DEFAULT '',
	name       TEXT NOT NULL,
	state      TEXT NOT NULL,
	score      INTEGER,
	data       TEXT NOT NULL,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	status      TEXT NOT NULL,
	report      TEXT,
	started_at  TEXT NOT NULL,
	finished_at TEXT
);

CREATE TABLE IF NOT EXISTS transitions (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id     TEXT NOT NULL DEFAULT '',
	lead_id    TEXT NOT NULL,
	from_state TEXT NOT NULL,
	to_state   TEXT NOT NULL,
	reason     TEXT NOT NULL DEFAULT '',
	retries    INTEGER NOT NULL DEFAULT 0,
	at         TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS outcome_events (
	seq       INTEGER PRIMARY KEY,
	id        TEXT NOT NULL UNIQUE,
	lead_id   TEXT NOT NULL,
	stage     TEXT NOT NULL DEFAULT '',
	kind      TEXT NOT NULL,
	strategy  TEXT NOT NULL DEFAULT '',
	tone      TEXT NOT NULL DEFAULT '',
	industry  TEXT NOT NULL DEFAULT '',
	ts        TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_leads_state ON leads(state);
CREATE INDEX IF NOT EXISTS idx_leads_campaign ON leads(campaign);
CREATE INDEX IF NOT EXISTS idx_transitions_lead_id ON transitions(lead_id);
CREATE INDEX IF NOT EXISTS idx_outcome_events_kind_ts ON outcome_events(kind, ts);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) SaveLead(ctx context.Context, lead *model.Lead) error {
	data, err := json.Marshal(lead)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal lead")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO leads (id, campaign, name, state, score, data, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   campaign = excluded.campaign, name = excluded.name, state = excluded.state,
		   score = excluded.score, data = excluded.data, updated_at = excluded.updated_at`,
		lead.ID, lead.Campaign, lead.Source.Name, string(lead.State), scoreColumn(lead), string(data),
		fmtTime(lead.CreatedAt), fmtTime(lead.UpdatedAt),
	)
	return eris.Wrapf(err, "sqlite: save lead %s", lead.ID)
}

func (s *SQLiteStore) GetLead(ctx context.Context, id string) (*model.Lead, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT data FROM leads WHERE id = ?`, id).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, eris.Wrapf(ErrNotFound, "lead %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get lead %s", id)
	}
	return decodeLead([]byte(data))
}

func (s *SQLiteStore) ListLeads(ctx context.Context, filter LeadFilter) ([]model.Lead, error) {
	query := `SELECT data FROM leads WHERE 1=1`
	var args []any

	if len(filter.States) > 0 {
		query += ` AND state IN (?` + strings.Repeat(`, ?`, len(filter.States)-1) + `)`
		for _, st := range filter.States {
			args = append(args, string(st))
		}
	}
	if filter.Campaign != "" {
		query += ` AND campaign = ?`
		args = append(args, filter.Campaign)
	}
	query += ` ORDER BY created_at, id`

	limit := filter.Limit
	if limit <= 0 {
		limit = 1000
	}
	query += ` LIMIT ?`
	args = append(args, limit)
	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list leads")
	}
	defer rows.Close()

	var leads []model.Lead
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan lead")
		}
		l, err := decodeLead([]byte(data))
		if err != nil {
			return nil, err
		}
		leads = append(leads, *l)
	}
	return leads, eris.Wrap(rows.Err(), "sqlite: list leads iterate")
}

func (s *SQLiteStore) CountLeadsByState(ctx context.Context) (map[model.State]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT state, COUNT(*) FROM leads GROUP BY state`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: count leads")
	}
	defer rows.Close()

	counts := make(map[model.State]int)
	for rows.Next() {
		var st string
		var n int
		if err := rows.Scan(&st, &n); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan count")
		}
		counts[model.State(st)] = n
	}
	return counts, eris.Wrap(rows.Err(), "sqlite: count leads iterate")
}

func (s *SQLiteStore) AppendTransition(ctx context.Context, tr model.Transition) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO transitions (run_id, lead_id, from_state, to_state, reason, retries, at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		tr.RunID, tr.LeadID, string(tr.From), string(tr.To), string(tr.Reason), tr.Retries, fmtTime(tr.At),
	)
	return eris.Wrapf(err, "sqlite: append transition %s", tr.LeadID)
}

func (s *SQLiteStore) ListTransitions(ctx context.Context, leadID string) ([]model.Transition, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, lead_id, from_state, to_state, reason, retries, at FROM transitions WHERE lead_id = ? ORDER BY id`,
		leadID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list transitions")
	}
	defer rows.Close()

	var out []model.Transition
	for rows.Next() {
		var tr model.Transition
		var from, to, reason, at string
		if err := rows.Scan(&tr.RunID, &tr.LeadID, &from, &to, &reason, &tr.Retries, &at); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan transition")
		}
		tr.From, tr.To, tr.Reason = model.State(from), model.State(to), model.ReasonCode(reason)
		if tr.At, err = parseTime(at); err != nil {
			return nil, err
		}
		out = append(out, tr)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list transitions iterate")
}

func (s *SQLiteStore) CreateRun(ctx context.Context, runID string, startedAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, status, started_at) VALUES (?, ?, ?)`,
		runID, string(model.RunStatusRunning), fmtTime(startedAt),
	)
	return eris.Wrapf(err, "sqlite: create run %s", runID)
}

func (s *SQLiteStore) FinishRun(ctx context.Context, report *model.RunReport) error {
	data, err := json.Marshal(report)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal report")
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, report = ?, finished_at = ? WHERE id = ?`,
		string(report.Status), string(data), fmtTime(report.FinishedAt), report.RunID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: finish run %s", report.RunID)
	}
	return checkRowsAffected(res, "run", report.RunID)
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.RunReport, error) {
	var status, startedAt string
	var report sql.NullString
	err := s.db.QueryRowContext(ctx, `SELECT status, report, started_at FROM runs WHERE id = ?`, runID).
		Scan(&status, &report, &startedAt)
	if err == sql.ErrNoRows {
		return nil, eris.Wrapf(ErrNotFound, "run %s", runID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get run %s", runID)
	}
	if report.Valid {
		var r model.RunReport
		if err := json.Unmarshal([]byte(report.String), &r); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal report")
		}
		return &r, nil
	}
	started, err := parseTime(startedAt)
	if err != nil {
		return nil, err
	}
	return &model.RunReport{RunID: runID, Status: model.RunStatus(status), StartedAt: started}, nil
}

func (s *SQLiteStore) AppendEvent(ctx context.Context, ev model.OutcomeEvent) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO outcome_events (seq, id, lead_id, stage, kind, strategy, tone, industry, ts) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.Seq, ev.ID, ev.LeadID, string(ev.Stage), string(ev.Kind), string(ev.Strategy), string(ev.Tone), ev.Industry, fmtTime(ev.Timestamp),
	)
	return eris.Wrapf(err, "sqlite: append event %d", ev.Seq)
}

func (s *SQLiteStore) ListEvents(ctx context.Context) ([]model.OutcomeEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT seq, id, lead_id, stage, kind, strategy, tone, industry, ts FROM outcome_events ORDER BY seq`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list events")
	}
	defer rows.Close()

	var out []model.OutcomeEvent
	for rows.Next() {
		var ev model.OutcomeEvent
		var stage, kind, strategy, tone, ts string
		if err := rows.Scan(&ev.Seq, &ev.ID, &ev.LeadID, &stage, &kind, &strategy, &tone, &ev.Industry, &ts); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan event")
		}
		ev.Stage, ev.Kind = model.State(stage), model.OutcomeKind(kind)
		ev.Strategy, ev.Tone = model.Strategy(strategy), model.Tone(tone)
		if ev.Timestamp, err = parseTime(ts); err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list events iterate")
}

func (s *SQLiteStore) CountEvents(ctx context.Context, kind model.OutcomeKind, since time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM outcome_events WHERE kind = ? AND ts >= ?`, string(kind), fmtTime(since),
	).Scan(&n)
	return n, eris.Wrap(err, "sqlite: count events")
}

// helpers

func fmtTime(t time.Time) string {
	return t.UTC().Format(sqliteTime)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(sqliteTime, s)
	return t, eris.Wrapf(err, "sqlite: parse time %q", s)
}

func decodeLead(data []byte) (*model.Lead, error) {
	var l model.Lead
	if err := json.Unmarshal(data, &l); err != nil {
		return nil, eris.Wrap(err, "store: unmarshal lead")
	}
	return &l, nil
}

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "%s %s", entity, id)
	}
	return nil
}
