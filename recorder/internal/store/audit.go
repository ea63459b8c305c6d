package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/hazyhaar/flowrec/dbopen"
	"github.com/hazyhaar/flowrec/idgen"
)

// AuditEntry is one operator command in the audit trail.
type AuditEntry struct {
	ID         string `json:"id"`
	TS         int64  `json:"ts"`
	Command    string `json:"command"`
	Transport  string `json:"transport,omitempty"`
	SessionID  string `json:"session_id,omitempty"`
	Status     string `json:"status"` // "success" or "error"
	Error      string `json:"error,omitempty"`
	DurationMs int64  `json:"duration_ms"`
}

// AuditLogger persists audit entries asynchronously, in batches.
type AuditLogger struct {
	store  *Store
	logger *slog.Logger
	newID  idgen.Generator
	ch     chan *AuditEntry
	stop   chan struct{}
	done   chan struct{}
}

// NewAuditLogger creates an async audit logger. Recommended bufferSize: 256.
func NewAuditLogger(s *Store, bufferSize int, logger *slog.Logger) *AuditLogger {
	if logger == nil {
		logger = slog.Default()
	}
	a := &AuditLogger{
		store:  s,
		logger: logger,
		newID:  idgen.Audit,
		ch:     make(chan *AuditEntry, bufferSize),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go a.flushLoop()
	return a
}

// Log inserts an entry synchronously.
func (a *AuditLogger) Log(ctx context.Context, e *AuditEntry) error {
	a.fillDefaults(e)
	return a.store.insertAudit(ctx, []*AuditEntry{e})
}

// LogAsync queues an entry. Falls back to a synchronous insert when the
// buffer is full.
func (a *AuditLogger) LogAsync(e *AuditEntry) {
	a.fillDefaults(e)
	select {
	case a.ch <- e:
	default:
		a.logger.Warn("store: audit buffer full, sync fallback", "command", e.Command)
		if err := a.store.insertAudit(context.Background(), []*AuditEntry{e}); err != nil {
			a.logger.Error("store: audit sync fallback failed", "error", err)
		}
	}
}

// Close drains the buffer and stops the flush goroutine.
func (a *AuditLogger) Close() error {
	close(a.stop)
	<-a.done
	return nil
}

func (a *AuditLogger) fillDefaults(e *AuditEntry) {
	if e.ID == "" {
		e.ID = a.newID()
	}
	if e.TS == 0 {
		e.TS = time.Now().UnixMilli()
	}
	if e.Status == "" {
		e.Status = "success"
		if e.Error != "" {
			e.Status = "error"
		}
	}
}

func (a *AuditLogger) flushLoop() {
	defer close(a.done)
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	batch := make([]*AuditEntry, 0, 64)

	flush := func() {
		if len(batch) == 0 {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := a.store.insertAudit(ctx, batch); err != nil {
			a.logger.Error("store: audit flush", "entries", len(batch), "error", err)
		}
		batch = batch[:0]
	}

	for {
		select {
		case e := <-a.ch:
			batch = append(batch, e)
			if len(batch) >= cap(batch) {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-a.stop:
			for {
				select {
				case e := <-a.ch:
					batch = append(batch, e)
				default:
					flush()
					return
				}
			}
		}
	}
}

func (s *Store) insertAudit(ctx context.Context, entries []*AuditEntry) error {
	return dbopen.RunTx(ctx, s.DB, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO audit_log (id, ts, command, transport, session_id, status, error, duration_ms)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("prepare: %w", err)
		}
		defer stmt.Close()

		for _, e := range entries {
			if _, err := stmt.ExecContext(ctx, e.ID, e.TS, e.Command, e.Transport,
				e.SessionID, e.Status, e.Error, e.DurationMs); err != nil {
				return fmt.Errorf("insert audit %s: %w", e.ID, err)
			}
		}
		return nil
	})
}

// ListAudit returns the most recent audit entries.
func (s *Store) ListAudit(ctx context.Context, limit int) ([]*AuditEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, ts, command, transport, session_id, status, error, duration_ms
		FROM audit_log ORDER BY ts DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query audit log: %w", err)
	}
	defer rows.Close()

	var out []*AuditEntry
	for rows.Next() {
		var e AuditEntry
		if err := rows.Scan(&e.ID, &e.TS, &e.Command, &e.Transport, &e.SessionID,
			&e.Status, &e.Error, &e.DurationMs); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}
