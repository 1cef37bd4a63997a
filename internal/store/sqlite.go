package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/prospector/internal/model"
)

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
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	// A single writer keeps background runs and the poll endpoint from
	// tripping over SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS prospects (
	website                  TEXT PRIMARY KEY,
	business_name            TEXT,
	city                     TEXT,
	intelligence_status      TEXT NOT NULL DEFAULT 'idle',
	intelligence_run_id      TEXT,
	last_intelligence_gather DATETIME,
	homepage_screenshot_url  TEXT,
	tavily_research_data     TEXT,
	ai_markdown              TEXT,
	icebreakers              TEXT,
	ai_grade                 TEXT,
	ai_grade_reason          TEXT,
	ai_music_focus           BOOLEAN,
	phone                    TEXT,
	email                    TEXT,
	facebook_page            TEXT,
	instagram_page           TEXT,
	created_at               DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at               DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_prospects_status ON prospects(intelligence_status);
CREATE INDEX IF NOT EXISTS idx_prospects_grade ON prospects(ai_grade);

CREATE TABLE IF NOT EXISTS intelligence_runs (
	id           TEXT PRIMARY KEY,
	website      TEXT NOT NULL REFERENCES prospects(website),
	requested_by TEXT NOT NULL DEFAULT '',
	status       TEXT NOT NULL,
	error        TEXT NOT NULL DEFAULT '',
	started_at   DATETIME NOT NULL DEFAULT (datetime('now')),
	finished_at  DATETIME
);

CREATE INDEX IF NOT EXISTS idx_intelligence_runs_website ON intelligence_runs(website, started_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateProspect(ctx context.Context, p model.Prospect) (*model.Prospect, error) {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO prospects (website, business_name, city, intelligence_status, homepage_screenshot_url, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?) ON CONFLICT (website) DO NOTHING`,
		p.Website, nullableString(model.StringPtr(p.BusinessName)), nullableString(model.StringPtr(p.City)),
		string(model.StatusIdle), nullableString(p.ScreenshotURL), now, now,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: insert prospect %s", p.Website)
	}
	return s.GetProspect(ctx, p.Website)
}

func (s *SQLiteStore) GetProspect(ctx context.Context, website string) (*model.Prospect, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+prospectColumns+` FROM prospects WHERE website = ?`, website,
	)
	p, err := scanSQLiteProspect(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get prospect %s", website)
	}
	return p, nil
}

func (s *SQLiteStore) ListProspects(ctx context.Context, filter ProspectFilter) ([]model.Prospect, error) {
	query := `SELECT ` + prospectColumns + ` FROM prospects WHERE 1=1`
	args := []any{}

	if filter.Status != "" {
		query += ` AND intelligence_status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.Grade != "" {
		query += ` AND ai_grade = ?`
		args = append(args, string(filter.Grade))
	}
	query += ` ORDER BY updated_at DESC LIMIT ?`
	args = append(args, listLimit(filter.Limit))

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list prospects")
	}
	defer rows.Close()

	var out []model.Prospect
	for rows.Next() {
		p, err := scanSQLiteProspect(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan prospect")
		}
		out = append(out, *p)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate prospects")
}

func (s *SQLiteStore) UpdateProspect(ctx context.Context, website string, upd model.ProspectUpdate) (*model.Prospect, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE prospects SET business_name = COALESCE(?, business_name), city = COALESCE(?, city),
		phone = COALESCE(NULLIF(?, ''), phone), email = COALESCE(NULLIF(?, ''), email),
		facebook_page = COALESCE(NULLIF(?, ''), facebook_page), instagram_page = COALESCE(NULLIF(?, ''), instagram_page),
		updated_at = ?
		WHERE website = ?`,
		nullableText(upd.BusinessName), nullableText(upd.City),
		nullableString(upd.Contacts.Phone), nullableString(upd.Contacts.Email),
		nullableString(upd.Contacts.Facebook), nullableString(upd.Contacts.Instagram),
		time.Now().UTC(), website,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: update prospect %s", website)
	}
	if err := checkRowsAffected(res, ErrNotFound); err != nil {
		return nil, err
	}
	return s.GetProspect(ctx, website)
}

func (s *SQLiteStore) BeginRun(ctx context.Context, website, runID string, startedAt time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE prospects SET intelligence_status = ?, intelligence_run_id = ?, last_intelligence_gather = ?, updated_at = ?
		WHERE website = ?`,
		string(model.StatusResearching), runID, startedAt.UTC(), time.Now().UTC(), website,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: begin run %s", website)
	}
	return checkRowsAffected(res, ErrNotFound)
}

func (s *SQLiteStore) SaveResearch(ctx context.Context, website, runID string, data json.RawMessage) error {
	var payload any
	if len(data) > 0 {
		payload = string(data)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE prospects SET tavily_research_data = ?, updated_at = ?
		WHERE website = ? AND intelligence_run_id = ? AND intelligence_status = ?`,
		payload, time.Now().UTC(), website, runID, string(model.StatusResearching),
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: save research %s", website)
	}
	return checkRowsAffected(res, ErrStaleRun)
}

func (s *SQLiteStore) Transition(ctx context.Context, website, runID string, from, to model.IntelligenceStatus) error {
	if !model.CanTransition(from, to) {
		return eris.Errorf("sqlite: illegal transition %s -> %s", from, to)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE prospects SET intelligence_status = ?, updated_at = ?
		WHERE website = ? AND intelligence_run_id = ? AND intelligence_status = ?`,
		string(to), time.Now().UTC(), website, runID, string(from),
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: transition %s to %s", website, to)
	}
	return checkRowsAffected(res, ErrStaleRun)
}

func (s *SQLiteStore) CompleteRun(ctx context.Context, website, runID string, r model.IntelligenceResult) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE prospects SET ai_markdown = ?, icebreakers = ?, ai_grade = ?, ai_grade_reason = ?, ai_music_focus = ?,
		phone = COALESCE(NULLIF(?, ''), phone), email = COALESCE(NULLIF(?, ''), email),
		facebook_page = COALESCE(NULLIF(?, ''), facebook_page), instagram_page = COALESCE(NULLIF(?, ''), instagram_page),
		intelligence_status = ?, updated_at = ?
		WHERE website = ? AND intelligence_run_id = ? AND intelligence_status = ?`,
		r.Markdown, r.Icebreakers, string(r.Grade), r.GradeReason, r.MusicFocus,
		nullableString(r.Contacts.Phone), nullableString(r.Contacts.Email),
		nullableString(r.Contacts.Facebook), nullableString(r.Contacts.Instagram),
		string(model.StatusComplete), time.Now().UTC(),
		website, runID, string(model.StatusGenerating),
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete run %s", website)
	}
	return checkRowsAffected(res, ErrStaleRun)
}

func (s *SQLiteStore) FailRun(ctx context.Context, website, runID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE prospects SET intelligence_status = ?, updated_at = ?
		WHERE website = ? AND intelligence_run_id = ? AND intelligence_status IN (?, ?)`,
		string(model.StatusError), time.Now().UTC(), website, runID,
		string(model.StatusResearching), string(model.StatusGenerating),
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: fail run %s", website)
	}
	return checkRowsAffected(res, ErrStaleRun)
}

func (s *SQLiteStore) CreateRun(ctx context.Context, run model.IntelligenceRun) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO intelligence_runs (id, website, requested_by, status, started_at) VALUES (?, ?, ?, ?, ?)`,
		run.ID, run.Website, run.RequestedBy, string(run.Status), run.StartedAt.UTC(),
	)
	return eris.Wrapf(err, "sqlite: insert run %s", run.ID)
}

func (s *SQLiteStore) FinishRun(ctx context.Context, runID string, status model.IntelligenceStatus, errMsg string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE intelligence_runs SET status = ?, error = ?, finished_at = ? WHERE id = ?`,
		string(status), errMsg, time.Now().UTC(), runID,
	)
	return eris.Wrapf(err, "sqlite: finish run %s", runID)
}

func (s *SQLiteStore) ListRuns(ctx context.Context, website string, limit int) ([]model.IntelligenceRun, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, website, requested_by, status, error, started_at, finished_at FROM intelligence_runs
		WHERE website = ? ORDER BY started_at DESC LIMIT ?`,
		website, listLimit(limit),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()

	var runs []model.IntelligenceRun
	for rows.Next() {
		var r model.IntelligenceRun
		var status string
		var finished sql.NullTime
		if err := rows.Scan(&r.ID, &r.Website, &r.RequestedBy, &status, &r.Error, &r.StartedAt, &finished); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan run")
		}
		r.Status = model.IntelligenceStatus(status)
		if finished.Valid {
			t := finished.Time
			r.FinishedAt = &t
		}
		runs = append(runs, r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: iterate runs")
}

func checkRowsAffected(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return notFound
	}
	return nil
}

// nullableText maps a nil editor field to NULL so COALESCE keeps the old value.
func nullableText(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

type scannable interface {
	Scan(dest ...any) error
}

func scanSQLiteProspect(row scannable) (*model.Prospect, error) {
	var (
		p                                model.Prospect
		name, city, runID, grade, reason sql.NullString
		markdown, icebreakers            sql.NullString
		screenshot, research             sql.NullString
		phone, email, facebook, insta    sql.NullString
		status                           string
		gathered                         sql.NullTime
		music                            sql.NullBool
	)
	err := row.Scan(
		&p.Website, &name, &city, &status, &runID,
		&gathered, &screenshot, &research, &markdown, &icebreakers,
		&grade, &reason, &music,
		&phone, &email, &facebook, &insta,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.BusinessName = name.String
	p.City = city.String
	p.Status = model.IntelligenceStatus(status)
	p.RunID = runID.String
	if gathered.Valid {
		t := gathered.Time
		p.LastGather = &t
	}
	if research.Valid && research.String != "" {
		p.ResearchData = json.RawMessage(research.String)
	}
	if grade.Valid && grade.String != "" {
		g := model.Grade(grade.String)
		p.AIGrade = &g
	}
	if music.Valid {
		b := music.Bool
		p.AIMusicFocus = &b
	}
	p.ScreenshotURL = fromNull(screenshot)
	p.AIMarkdown = fromNull(markdown)
	p.Icebreakers = fromNull(icebreakers)
	p.AIGradeReason = fromNull(reason)
	p.Phone = fromNull(phone)
	p.Email = fromNull(email)
	p.Facebook = fromNull(facebook)
	p.Instagram = fromNull(insta)
	return &p, nil
}

func fromNull(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}
