package store

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// Session statuses.
const (
	StatusRecording = "recording"
	StatusStopped   = "stopped"
)

// SessionRow is one persisted session snapshot.
type SessionRow struct {
	ID           string
	Status       string
	StartedAt    int64
	EndedAt      int64
	Pages        int
	Visits       int
	Interactions int
	Raw          []byte
	UpdatedAt    int64
}

// SaveSession inserts or replaces the snapshot of a session.
func (s *Store) SaveSession(ctx context.Context, r *SessionRow) error {
	r.UpdatedAt = time.Now().UnixMilli()
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO sessions (id, status, started_at, ended_at, pages, visits, interactions, raw, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status=excluded.status, ended_at=excluded.ended_at,
			pages=excluded.pages, visits=excluded.visits, interactions=excluded.interactions,
			raw=excluded.raw, updated_at=excluded.updated_at`,
		r.ID, r.Status, r.StartedAt, r.EndedAt, r.Pages, r.Visits, r.Interactions, string(r.Raw), r.UpdatedAt,
	)
	return err
}

// GetSession returns a session by ID, or nil if not found.
func (s *Store) GetSession(ctx context.Context, id string) (*SessionRow, error) {
	row := s.DB.QueryRowContext(ctx, `
		SELECT id, status, started_at, ended_at, pages, visits, interactions, raw, updated_at
		FROM sessions WHERE id = ?`, id)
	r, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return r, err
}

// ListSessions returns session summaries (without the raw document), most
// recent first.
func (s *Store) ListSessions(ctx context.Context, limit int) ([]*SessionRow, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, status, started_at, ended_at, pages, visits, interactions, '', updated_at
		FROM sessions ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*SessionRow
	for rows.Next() {
		r, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// MarkInterrupted flags sessions left in recording state by a previous
// process as stopped. Returns the number of rows changed.
func (s *Store) MarkInterrupted(ctx context.Context) (int64, error) {
	res, err := s.DB.ExecContext(ctx,
		`UPDATE sessions SET status = ? WHERE status = ?`, StatusStopped, StatusRecording)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(sc scanner) (*SessionRow, error) {
	var r SessionRow
	var raw string
	if err := sc.Scan(&r.ID, &r.Status, &r.StartedAt, &r.EndedAt, &r.Pages, &r.Visits,
		&r.Interactions, &raw, &r.UpdatedAt); err != nil {
		return nil, err
	}
	if raw != "" {
		r.Raw = []byte(raw)
	}
	return &r, nil
}
