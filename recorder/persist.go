package recorder

import (
	"context"
	"time"

	"github.com/hazyhaar/flowrec/recorder/internal/store"
	"github.com/hazyhaar/flowrec/session"
)

type writeReq struct {
	row   *store.SessionRow
	reply chan result
}

// persist hands the current session to the writer if it changed. Writes
// are fire-and-forget unless reply is set, in which case the writer answers
// once the row is stored.
func (a *Aggregator) persist(reply chan result) {
	if !a.dirty || a.sess == nil || a.cfg.Store == nil {
		if reply != nil {
			reply <- result{}
		}
		return
	}
	raw, err := session.Encode(a.sess)
	if err != nil {
		a.logger.Error("recorder: encode session", "error", err)
		if reply != nil {
			reply <- result{err: err}
		}
		return
	}
	status := store.StatusStopped
	if a.active {
		status = store.StatusRecording
	}
	a.dirty = false
	a.writes <- writeReq{
		row: &store.SessionRow{
			ID:           a.sess.Meta.ID,
			Status:       status,
			StartedAt:    a.sess.Meta.StartedAt,
			EndedAt:      a.sess.Meta.EndedAt,
			Pages:        len(a.sess.Pages),
			Visits:       a.sess.VisitCount(),
			Interactions: a.sess.InteractionCount(),
			Raw:          raw,
		},
		reply: reply,
	}
}

// writer stores rows in arrival order until the channel is closed.
func (a *Aggregator) writer(done chan<- struct{}) {
	defer close(done)
	for req := range a.writes {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err := a.cfg.Store.SaveSession(ctx, req.row)
		cancel()
		if err != nil {
			a.logger.Error("recorder: persist session", "session", req.row.ID, "error", err)
		} else {
			a.logger.Debug("recorder: session persisted", "session", req.row.ID,
				"interactions", req.row.Interactions)
		}
		if req.reply != nil {
			req.reply <- result{err: err}
		}
	}
}
