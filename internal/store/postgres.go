package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/ahermangesh/Leads/internal/model"
)

// Pool is the subset of pgxpool.Pool used by PostgresStore. pgxmock pools
// satisfy it in tests.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(1)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS leads (
	id         TEXT PRIMARY KEY,
	campaign   TEXT NOT NULL DEFAULT '',
	name       TEXT NOT NULL,
	state      TEXT NOT NULL,
	score      INTEGER,
	data       JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	status      TEXT NOT NULL,
	report      JSONB,
	started_at  TIMESTAMPTZ NOT NULL,
	finished_at TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS transitions (
	id         BIGSERIAL PRIMARY KEY,
	run_id     TEXT NOT NULL DEFAULT '',
	lead_id    TEXT NOT NULL,
	from_state TEXT NOT NULL,
	to_state   TEXT NOT NULL,
	reason     TEXT NOT NULL DEFAULT '',
	retries    INTEGER NOT NULL DEFAULT 0,
	at         TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS outcome_events (
	seq      BIGINT PRIMARY KEY,
	id       TEXT NOT NULL UNIQUE,
	lead_id  TEXT NOT NULL,
	stage    TEXT NOT NULL DEFAULT '',
	kind     TEXT NOT NULL,
	strategy TEXT NOT NULL DEFAULT '',
	tone     TEXT NOT NULL DEFAULT '',
	industry TEXT NOT NULL DEFAULT '',
	ts       TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_leads_state ON leads(state);
CREATE INDEX IF NOT EXISTS idx_leads_campaign ON leads(campaign);
CREATE INDEX IF NOT EXISTS idx_transitions_lead_id ON transitions(lead_id);
CREATE INDEX IF NOT EXISTS idx_outcome_events_kind_ts ON outcome_events(kind, ts);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) SaveLead(ctx context.Context, lead *model.Lead) error {
	data, err := json.Marshal(lead)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal lead")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO leads (id, campaign, name, state, score, data, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (id) DO UPDATE SET
		   campaign = EXCLUDED.campaign, name = EXCLUDED.name, state = EXCLUDED.state,
		   score = EXCLUDED.score, data = EXCLUDED.data, updated_at = EXCLUDED.updated_at`,
		lead.ID, lead.Campaign, lead.Source.Name, string(lead.State), scoreColumn(lead), data,
		lead.CreatedAt.UTC(), lead.UpdatedAt.UTC(),
	)
	return eris.Wrapf(err, "postgres: save lead %s", lead.ID)
}

func (s *PostgresStore) GetLead(ctx context.Context, id string) (*model.Lead, error) {
	var data []byte
	err := s.pool.QueryRow(ctx, `SELECT data FROM leads WHERE id = $1`, id).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "lead %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get lead %s", id)
	}
	return decodeLead(data)
}

func (s *PostgresStore) ListLeads(ctx context.Context, filter LeadFilter) ([]model.Lead, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 1000
	}
	var states []string
	if len(filter.States) > 0 {
		states = stateStrings(filter.States)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT data FROM leads
		 WHERE ($1::text[] IS NULL OR state = ANY($1))
		   AND ($2 = '' OR campaign = $2)
		 ORDER BY created_at, id
		 LIMIT $3 OFFSET $4`,
		states, filter.Campaign, limit, filter.Offset,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list leads")
	}
	defer rows.Close()

	var leads []model.Lead
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, eris.Wrap(err, "postgres: scan lead")
		}
		l, err := decodeLead(data)
		if err != nil {
			return nil, err
		}
		leads = append(leads, *l)
	}
	return leads, eris.Wrap(rows.Err(), "postgres: list leads iterate")
}

func (s *PostgresStore) CountLeadsByState(ctx context.Context) (map[model.State]int, error) {
	rows, err := s.pool.Query(ctx, `SELECT state, COUNT(*) FROM leads GROUP BY state`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: count leads")
	}
	defer rows.Close()

	counts := make(map[model.State]int)
	for rows.Next() {
		var st string
		var n int64
		if err := rows.Scan(&st, &n); err != nil {
			return nil, eris.Wrap(err, "postgres: scan count")
		}
		counts[model.State(st)] = int(n)
	}
	return counts, eris.Wrap(rows.Err(), "postgres: count leads iterate")
}

func (s *PostgresStore) AppendTransition(ctx context.Context, tr model.Transition) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO transitions (run_id, lead_id, from_state, to_state, reason, retries, at) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		tr.RunID, tr.LeadID, string(tr.From), string(tr.To), string(tr.Reason), tr.Retries, tr.At.UTC(),
	)
	return eris.Wrapf(err, "postgres: append transition %s", tr.LeadID)
}

func (s *PostgresStore) ListTransitions(ctx context.Context, leadID string) ([]model.Transition, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT run_id, lead_id, from_state, to_state, reason, retries, at FROM transitions WHERE lead_id = $1 ORDER BY id`,
		leadID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list transitions")
	}
	defer rows.Close()

	var out []model.Transition
	for rows.Next() {
		var tr model.Transition
		var from, to, reason string
		if err := rows.Scan(&tr.RunID, &tr.LeadID, &from, &to, &reason, &tr.Retries, &tr.At); err != nil {
			return nil, eris.Wrap(err, "postgres: scan transition")
		}
		tr.From, tr.To, tr.Reason = model.State(from), model.State(to), model.ReasonCode(reason)
		out = append(out, tr)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list transitions iterate")
}

func (s *PostgresStore) CreateRun(ctx context.Context, runID string, startedAt time.Time) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO runs (id, status, started_at) VALUES ($1, $2, $3)`,
		runID, string(model.RunStatusRunning), startedAt.UTC(),
	)
	return eris.Wrapf(err, "postgres: create run %s", runID)
}

func (s *PostgresStore) FinishRun(ctx context.Context, report *model.RunReport) error {
	data, err := json.Marshal(report)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal report")
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET status = $1, report = $2, finished_at = $3 WHERE id = $4`,
		string(report.Status), data, report.FinishedAt.UTC(), report.RunID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: finish run %s", report.RunID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "run %s", report.RunID)
	}
	return nil
}

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.RunReport, error) {
	var status string
	var report []byte
	var startedAt time.Time
	err := s.pool.QueryRow(ctx, `SELECT status, report, started_at FROM runs WHERE id = $1`, runID).
		Scan(&status, &report, &startedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "run %s", runID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get run %s", runID)
	}
	if len(report) > 0 {
		var r model.RunReport
		if err := json.Unmarshal(report, &r); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal report")
		}
		return &r, nil
	}
	return &model.RunReport{RunID: runID, Status: model.RunStatus(status), StartedAt: startedAt}, nil
}

func (s *PostgresStore) AppendEvent(ctx context.Context, ev model.OutcomeEvent) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO outcome_events (seq, id, lead_id, stage, kind, strategy, tone, industry, ts) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		ev.Seq, ev.ID, ev.LeadID, string(ev.Stage), string(ev.Kind), string(ev.Strategy), string(ev.Tone), ev.Industry, ev.Timestamp.UTC(),
	)
	return eris.Wrapf(err, "postgres: append event %d", ev.Seq)
}

func (s *PostgresStore) ListEvents(ctx context.Context) ([]model.OutcomeEvent, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT seq, id, lead_id, stage, kind, strategy, tone, industry, ts FROM outcome_events ORDER BY seq`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list events")
	}
	defer rows.Close()

	var out []model.OutcomeEvent
	for rows.Next() {
		var ev model.OutcomeEvent
		var stage, kind, strategy, tone string
		if err := rows.Scan(&ev.Seq, &ev.ID, &ev.LeadID, &stage, &kind, &strategy, &tone, &ev.Industry, &ev.Timestamp); err != nil {
			return nil, eris.Wrap(err, "postgres: scan event")
		}
		ev.Stage, ev.Kind = model.State(stage), model.OutcomeKind(kind)
		ev.Strategy, ev.Tone = model.Strategy(strategy), model.Tone(tone)
		out = append(out, ev)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list events iterate")
}

func (s *PostgresStore) CountEvents(ctx context.Context, kind model.OutcomeKind, since time.Time) (int, error) {
	var n int64
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM outcome_events WHERE kind = $1 AND ts >= $2`, string(kind), since.UTC(),
	).Scan(&n)
	return int(n), eris.Wrap(err, "postgres: count events")
}
