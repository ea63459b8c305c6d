package store

import (
	"context"
	"time"
)

// ExportRow records one export of a session.
type ExportRow struct {
	ID          string `json:"id"`
	SessionID   string `json:"session_id"`
	Dir         string `json:"dir"`
	RawFile     string `json:"raw_file"`
	FlowMapFile string `json:"flowmap_file"`
	ReportFile  string `json:"report_file,omitempty"`
	Steps       int    `json:"steps"`
	CreatedAt   int64  `json:"created_at"`
}

// InsertExport records an export.
func (s *Store) InsertExport(ctx context.Context, e *ExportRow) error {
	if e.CreatedAt == 0 {
		e.CreatedAt = time.Now().UnixMilli()
	}
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO exports (id, session_id, dir, raw_file, flowmap_file, report_file, steps, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.SessionID, e.Dir, e.RawFile, e.FlowMapFile, e.ReportFile, e.Steps, e.CreatedAt,
	)
	return err
}

// ListExports returns the exports of a session, most recent first.
func (s *Store) ListExports(ctx context.Context, sessionID string) ([]*ExportRow, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, session_id, dir, raw_file, flowmap_file, report_file, steps, created_at
		FROM exports WHERE session_id = ? ORDER BY created_at DESC, id DESC`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*ExportRow
	for rows.Next() {
		var e ExportRow
		if err := rows.Scan(&e.ID, &e.SessionID, &e.Dir, &e.RawFile, &e.FlowMapFile,
			&e.ReportFile, &e.Steps, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}
