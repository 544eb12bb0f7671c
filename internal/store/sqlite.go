package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"formfiller/internal/models"
)

// SQLiteStore keeps profiles in a local file for the CLI.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the database at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	query := `
	CREATE TABLE IF NOT EXISTS profiles (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		url TEXT NOT NULL DEFAULT '',
		actions TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		profile_id TEXT NOT NULL,
		url TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		total INTEGER NOT NULL DEFAULT 0,
		succeeded INTEGER NOT NULL DEFAULT 0,
		failed INTEGER NOT NULL DEFAULT 0,
		skipped INTEGER NOT NULL DEFAULT 0,
		start_time TEXT NOT NULL,
		end_time TEXT,
		duration INTEGER NOT NULL DEFAULT 0,
		logs TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_runs_profile_id ON runs(profile_id);`
	if _, err := s.db.ExecContext(context.Background(), query); err != nil {
		return fmt.Errorf("migrate sqlite: %w", err)
	}
	return nil
}

func formatTime(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

type scanner interface {
	Scan(dest ...any) error
}

func scanProfile(row scanner) (*models.Profile, error) {
	var p models.Profile
	var created, updated string
	if err := row.Scan(&p.ID, &p.Name, &p.URL, &p.ActionsJSON, &created, &updated); err != nil {
		return nil, err
	}
	p.CreatedAt = parseTime(created)
	p.UpdatedAt = parseTime(updated)
	if err := p.AfterFind(nil); err != nil {
		return nil, fmt.Errorf("decode actions of %s: %w", p.ID, err)
	}
	return &p, nil
}

const profileColumns = `id, name, url, actions, created_at, updated_at`

func (s *SQLiteStore) ListProfiles(ctx context.Context) ([]models.Profile, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+profileColumns+` FROM profiles ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []models.Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) GetProfile(ctx context.Context, id string) (*models.Profile, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+profileColumns+` FROM profiles WHERE id = ?`, id)
	p, err := scanProfile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("profile %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get profile: %w", err)
	}
	return p, nil
}

func (s *SQLiteStore) UpsertProfile(ctx context.Context, p *models.Profile) error {
	if len(p.Actions) == 0 {
		return models.ErrEmptyProfile
	}
	if err := p.BeforeSave(nil); err != nil {
		return fmt.Errorf("encode actions: %w", err)
	}
	now := time.Now()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	_, err := s.db.ExecContext(ctx, `
	INSERT INTO profiles (`+profileColumns+`) VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		name = excluded.name,
		url = excluded.url,
		actions = excluded.actions,
		updated_at = excluded.updated_at`,
		p.ID, p.Name, p.URL, p.ActionsJSON, formatTime(p.CreatedAt), formatTime(p.UpdatedAt))
	if err != nil {
		return fmt.Errorf("save profile: %w", err)
	}
	return nil
}

func (s *SQLiteStore) DeleteProfile(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM profiles WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete profile: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("profile %s: %w", id, ErrNotFound)
	}
	return nil
}

func (s *SQLiteStore) CreateRun(ctx context.Context, r *models.Run) error {
	now := time.Now()
	r.CreatedAt, r.UpdatedAt = now, now
	res, err := s.db.ExecContext(ctx, `
	INSERT INTO runs (profile_id, url, status, total, succeeded, failed, skipped, start_time, end_time, duration, logs, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ProfileID, r.URL, r.Status, r.Total, r.Succeeded, r.Failed, r.Skipped,
		formatTime(r.StartTime), endTime(r.EndTime), r.Duration, r.Logs, formatTime(now), formatTime(now))
	if err != nil {
		return fmt.Errorf("create run: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("create run: %w", err)
	}
	r.ID = uint(id)
	return nil
}

func (s *SQLiteStore) UpdateRun(ctx context.Context, r *models.Run) error {
	r.UpdatedAt = time.Now()
	res, err := s.db.ExecContext(ctx, `
	UPDATE runs SET status = ?, total = ?, succeeded = ?, failed = ?, skipped = ?, end_time = ?, duration = ?, logs = ?, updated_at = ?
	WHERE id = ?`,
		r.Status, r.Total, r.Succeeded, r.Failed, r.Skipped, endTime(r.EndTime), r.Duration, r.Logs, formatTime(r.UpdatedAt), r.ID)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("run %d: %w", r.ID, ErrNotFound)
	}
	return nil
}

const runColumns = `id, profile_id, url, status, total, succeeded, failed, skipped, start_time, end_time, duration, logs, created_at, updated_at`

func scanRun(row scanner) (models.Run, error) {
	var r models.Run
	var id int64
	var start, created, updated string
	var end sql.NullString
	if err := row.Scan(&id, &r.ProfileID, &r.URL, &r.Status, &r.Total, &r.Succeeded, &r.Failed, &r.Skipped,
		&start, &end, &r.Duration, &r.Logs, &created, &updated); err != nil {
		return r, err
	}
	r.ID = uint(id)
	r.StartTime = parseTime(start)
	if end.Valid {
		t := parseTime(end.String)
		r.EndTime = &t
	}
	r.CreatedAt = parseTime(created)
	r.UpdatedAt = parseTime(updated)
	return r, nil
}

func (s *SQLiteStore) queryRuns(ctx context.Context, query string, args ...any) ([]models.Run, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []models.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) ListRuns(ctx context.Context, profileID string, limit int) ([]models.Run, error) {
	runs, err := s.queryRuns(ctx, `SELECT `+runColumns+` FROM runs WHERE profile_id = ? ORDER BY id DESC LIMIT ?`,
		profileID, runLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return runs, nil
}

// StaleRuns compares start times after parsing; the stored text does not
// sort chronologically.
func (s *SQLiteStore) StaleRuns(ctx context.Context, startedBefore time.Time) ([]models.Run, error) {
	runs, err := s.queryRuns(ctx, `SELECT `+runColumns+` FROM runs WHERE status = ? ORDER BY id`, models.RunRunning)
	if err != nil {
		return nil, fmt.Errorf("stale runs: %w", err)
	}
	out := runs[:0]
	for _, r := range runs {
		if r.StartTime.Before(startedBefore) {
			out = append(out, r)
		}
	}
	return out, nil
}

func endTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func (s *SQLiteStore) Close() error { return s.db.Close() }
