package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/prospector/internal/db"
	"github.com/sells-group/prospector/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

const prospectColumns = `website, business_name, city, intelligence_status, intelligence_run_id,
	last_intelligence_gather, homepage_screenshot_url, tavily_research_data, ai_markdown, icebreakers,
	ai_grade, ai_grade_reason, ai_music_focus, phone, email, facebook_page, instagram_page,
	created_at, updated_at`

const (
	pgGetProspect = `SELECT ` + prospectColumns + ` FROM prospects WHERE website = $1`

	pgInsertProspect = `INSERT INTO prospects (website, business_name, city, intelligence_status, homepage_screenshot_url, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7) ON CONFLICT (website) DO NOTHING`

	pgBeginRun = `UPDATE prospects SET intelligence_status = $1, intelligence_run_id = $2, last_intelligence_gather = $3, updated_at = $4
	WHERE website = $5`

	pgSaveResearch = `UPDATE prospects SET tavily_research_data = $1, updated_at = $2
	WHERE website = $3 AND intelligence_run_id = $4 AND intelligence_status = $5`

	pgTransition = `UPDATE prospects SET intelligence_status = $1, updated_at = $2
	WHERE website = $3 AND intelligence_run_id = $4 AND intelligence_status = $5`

	pgCompleteRun = `UPDATE prospects SET ai_markdown = $1, icebreakers = $2, ai_grade = $3, ai_grade_reason = $4, ai_music_focus = $5,
	phone = COALESCE(NULLIF($6, ''), phone), email = COALESCE(NULLIF($7, ''), email),
	facebook_page = COALESCE(NULLIF($8, ''), facebook_page), instagram_page = COALESCE(NULLIF($9, ''), instagram_page),
	intelligence_status = $10, updated_at = $11
	WHERE website = $12 AND intelligence_run_id = $13 AND intelligence_status = $14`

	pgFailRun = `UPDATE prospects SET intelligence_status = $1, updated_at = $2
	WHERE website = $3 AND intelligence_run_id = $4 AND intelligence_status IN ($5, $6)`

	pgUpdateProspect = `UPDATE prospects SET business_name = COALESCE($1, business_name), city = COALESCE($2, city),
	phone = COALESCE(NULLIF($3, ''), phone), email = COALESCE(NULLIF($4, ''), email),
	facebook_page = COALESCE(NULLIF($5, ''), facebook_page), instagram_page = COALESCE(NULLIF($6, ''), instagram_page),
	updated_at = $7
	WHERE website = $8`

	pgInsertRun = `INSERT INTO intelligence_runs (id, website, requested_by, status, started_at) VALUES ($1, $2, $3, $4, $5)`

	pgFinishRun = `UPDATE intelligence_runs SET status = $1, error = $2, finished_at = $3 WHERE id = $4`

	pgListRuns = `SELECT id, website, requested_by, status, error, started_at, finished_at FROM intelligence_runs
	WHERE website = $1 ORDER BY started_at DESC LIMIT $2`
)

// preparedStatements lists queries to prepare on each new connection. The
// poll endpoint and run transitions hit these on every tick and stage.
var preparedStatements = map[string]string{
	"get_prospect":   pgGetProspect,
	"begin_run":      pgBeginRun,
	"save_research":  pgSaveResearch,
	"transition":     pgTransition,
	"complete_run":   pgCompleteRun,
	"fail_run":       pgFailRun,
	"insert_run":     pgInsertRun,
	"finish_run":     pgFinishRun,
	"list_runs":      pgListRuns,
	"update_details": pgUpdateProspect,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
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

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

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
CREATE TABLE IF NOT EXISTS prospects (
	website                  TEXT PRIMARY KEY,
	business_name            TEXT,
	city                     TEXT,
	intelligence_status      TEXT NOT NULL DEFAULT 'idle',
	intelligence_run_id      TEXT,
	last_intelligence_gather TIMESTAMPTZ,
	homepage_screenshot_url  TEXT,
	tavily_research_data     JSONB,
	ai_markdown              TEXT,
	icebreakers              TEXT,
	ai_grade                 TEXT,
	ai_grade_reason          TEXT,
	ai_music_focus           BOOLEAN,
	phone                    TEXT,
	email                    TEXT,
	facebook_page            TEXT,
	instagram_page           TEXT,
	created_at               TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at               TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_prospects_status ON prospects(intelligence_status);
CREATE INDEX IF NOT EXISTS idx_prospects_grade ON prospects(ai_grade);

CREATE TABLE IF NOT EXISTS intelligence_runs (
	id           TEXT PRIMARY KEY,
	website      TEXT NOT NULL REFERENCES prospects(website),
	requested_by TEXT NOT NULL DEFAULT '',
	status       TEXT NOT NULL,
	error        TEXT NOT NULL DEFAULT '',
	started_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	finished_at  TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_intelligence_runs_website ON intelligence_runs(website, started_at DESC);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
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

func (s *PostgresStore) CreateProspect(ctx context.Context, p model.Prospect) (*model.Prospect, error) {
	now := time.Now().UTC()
	_, err := s.pool.Exec(ctx, pgInsertProspect,
		p.Website, model.StringPtr(p.BusinessName), model.StringPtr(p.City),
		string(model.StatusIdle), p.ScreenshotURL, now, now,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: insert prospect %s", p.Website)
	}
	return s.GetProspect(ctx, p.Website)
}

func (s *PostgresStore) GetProspect(ctx context.Context, website string) (*model.Prospect, error) {
	p, err := scanPgProspect(s.pool.QueryRow(ctx, pgGetProspect, website))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get prospect %s", website)
	}
	return p, nil
}

func (s *PostgresStore) ListProspects(ctx context.Context, filter ProspectFilter) ([]model.Prospect, error) {
	query := `SELECT ` + prospectColumns + ` FROM prospects WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(` AND intelligence_status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	if filter.Grade != "" {
		query += fmt.Sprintf(` AND ai_grade = $%d`, argIdx)
		args = append(args, string(filter.Grade))
		argIdx++
	}
	query += ` ORDER BY updated_at DESC`

	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, listLimit(filter.Limit))
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list prospects")
	}
	defer rows.Close()

	var out []model.Prospect
	for rows.Next() {
		p, err := scanPgProspect(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan prospect")
		}
		out = append(out, *p)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate prospects")
}

func (s *PostgresStore) UpdateProspect(ctx context.Context, website string, upd model.ProspectUpdate) (*model.Prospect, error) {
	tag, err := s.pool.Exec(ctx, pgUpdateProspect,
		upd.BusinessName, upd.City,
		nullableString(upd.Contacts.Phone), nullableString(upd.Contacts.Email),
		nullableString(upd.Contacts.Facebook), nullableString(upd.Contacts.Instagram),
		time.Now().UTC(), website,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: update prospect %s", website)
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrNotFound
	}
	return s.GetProspect(ctx, website)
}

func (s *PostgresStore) BeginRun(ctx context.Context, website, runID string, startedAt time.Time) error {
	tag, err := s.pool.Exec(ctx, pgBeginRun,
		string(model.StatusResearching), runID, startedAt.UTC(), time.Now().UTC(), website,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: begin run %s", website)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) SaveResearch(ctx context.Context, website, runID string, data json.RawMessage) error {
	tag, err := s.pool.Exec(ctx, pgSaveResearch,
		nullableJSON(data), time.Now().UTC(), website, runID, string(model.StatusResearching),
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: save research %s", website)
	}
	if tag.RowsAffected() == 0 {
		return ErrStaleRun
	}
	return nil
}

func (s *PostgresStore) Transition(ctx context.Context, website, runID string, from, to model.IntelligenceStatus) error {
	if !model.CanTransition(from, to) {
		return eris.Errorf("postgres: illegal transition %s -> %s", from, to)
	}
	tag, err := s.pool.Exec(ctx, pgTransition,
		string(to), time.Now().UTC(), website, runID, string(from),
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: transition %s to %s", website, to)
	}
	if tag.RowsAffected() == 0 {
		return ErrStaleRun
	}
	return nil
}

func (s *PostgresStore) CompleteRun(ctx context.Context, website, runID string, r model.IntelligenceResult) error {
	tag, err := s.pool.Exec(ctx, pgCompleteRun,
		r.Markdown, r.Icebreakers, string(r.Grade), r.GradeReason, r.MusicFocus,
		nullableString(r.Contacts.Phone), nullableString(r.Contacts.Email),
		nullableString(r.Contacts.Facebook), nullableString(r.Contacts.Instagram),
		string(model.StatusComplete), time.Now().UTC(),
		website, runID, string(model.StatusGenerating),
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete run %s", website)
	}
	if tag.RowsAffected() == 0 {
		return ErrStaleRun
	}
	return nil
}

func (s *PostgresStore) FailRun(ctx context.Context, website, runID string) error {
	tag, err := s.pool.Exec(ctx, pgFailRun,
		string(model.StatusError), time.Now().UTC(), website, runID,
		string(model.StatusResearching), string(model.StatusGenerating),
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: fail run %s", website)
	}
	if tag.RowsAffected() == 0 {
		return ErrStaleRun
	}
	return nil
}

func (s *PostgresStore) CreateRun(ctx context.Context, run model.IntelligenceRun) error {
	_, err := s.pool.Exec(ctx, pgInsertRun,
		run.ID, run.Website, run.RequestedBy, string(run.Status), run.StartedAt.UTC(),
	)
	return eris.Wrapf(err, "postgres: insert run %s", run.ID)
}

func (s *PostgresStore) FinishRun(ctx context.Context, runID string, status model.IntelligenceStatus, errMsg string) error {
	_, err := s.pool.Exec(ctx, pgFinishRun, string(status), errMsg, time.Now().UTC(), runID)
	return eris.Wrapf(err, "postgres: finish run %s", runID)
}

func (s *PostgresStore) ListRuns(ctx context.Context, website string, limit int) ([]model.IntelligenceRun, error) {
	rows, err := s.pool.Query(ctx, pgListRuns, website, listLimit(limit))
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.IntelligenceRun
	for rows.Next() {
		var r model.IntelligenceRun
		var status string
		if err := rows.Scan(&r.ID, &r.Website, &r.RequestedBy, &status, &r.Error, &r.StartedAt, &r.FinishedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		r.Status = model.IntelligenceStatus(status)
		runs = append(runs, r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: iterate runs")
}

func scanPgProspect(row pgx.Row) (*model.Prospect, error) {
	var (
		p                        model.Prospect
		name, city, runID, grade *string
		status                   string
		research                 *[]byte
	)
	err := row.Scan(
		&p.Website, &name, &city, &status, &runID,
		&p.LastGather, &p.ScreenshotURL, &research, &p.AIMarkdown, &p.Icebreakers,
		&grade, &p.AIGradeReason, &p.AIMusicFocus,
		&p.Phone, &p.Email, &p.Facebook, &p.Instagram,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.BusinessName = model.Deref(name)
	p.City = model.Deref(city)
	p.Status = model.IntelligenceStatus(status)
	p.RunID = model.Deref(runID)
	if research != nil {
		p.ResearchData = json.RawMessage(*research)
	}
	if grade != nil {
		g := model.Grade(*grade)
		p.AIGrade = &g
	}
	return &p, nil
}
