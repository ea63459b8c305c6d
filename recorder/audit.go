package recorder

import (
	"context"
	"time"

	"github.com/hazyhaar/flowrec/kit"
	"github.com/hazyhaar/flowrec/recorder/internal/store"
	"github.com/hazyhaar/flowrec/session"
)

// AuditEntry is one recorded operator command.
type AuditEntry = store.AuditEntry

// audited commands change state or produce artifacts; status polling and
// listings are left out of the trail.
var audited = map[string]bool{
	"start":           true,
	"stop":            true,
	"build_flowmap":   true,
	"export":          true,
	"compile_session": true,
}

// auditing records every call of a command in the audit log.
func (r *Recorder) auditing(name string) kit.Middleware {
	return func(next kit.Endpoint) kit.Endpoint {
		return func(ctx context.Context, req any) (any, error) {
			start := time.Now()
			resp, err := next(ctx, req)
			e := &store.AuditEntry{
				TS:         start.UnixMilli(),
				Command:    name,
				Transport:  kit.GetTransport(ctx),
				SessionID:  sessionOf(req, resp),
				DurationMs: time.Since(start).Milliseconds(),
			}
			if err != nil {
				e.Error = err.Error()
			}
			r.audit.LogAsync(e)
			return resp, err
		}
	}
}

func sessionOf(req, resp any) string {
	switch v := resp.(type) {
	case Status:
		return v.SessionID
	case *session.Session:
		if v != nil {
			return v.Meta.ID
		}
	case *ExportResult:
		if v != nil {
			return v.SessionID
		}
	}
	if sr, ok := req.(*sessionRequest); ok {
		return sr.ID
	}
	return ""
}

// Audit returns the most recent audited commands.
func (r *Recorder) Audit(ctx context.Context, limit int) ([]*AuditEntry, error) {
	return r.store.ListAudit(ctx, limit)
}
