package recorder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/hazyhaar/flowrec/horosafe"
	"github.com/hazyhaar/flowrec/kit"
	"github.com/hazyhaar/flowrec/session"
)

// Command requests shared by the MCP and HTTP transports.

type buildRequest struct {
	// Raw is the raw session document, either inline JSON or a JSON string
	// holding pasted document text.
	Raw     json.RawMessage `json:"raw"`
	RawFile string          `json:"raw_file,omitempty"`
}

type sessionRequest struct {
	ID    string `json:"id,omitempty"`
	Limit int    `json:"limit,omitempty"`
}

// rawDocument unwraps a document passed as a JSON string.
func rawDocument(raw json.RawMessage) []byte {
	var text string
	if len(raw) > 0 && raw[0] == '"' && json.Unmarshal(raw, &text) == nil {
		return []byte(text)
	}
	return raw
}

// endpoints builds the command set, each wrapped with logging and, for
// state-changing commands, the audit trail.
func (r *Recorder) endpoints() map[string]kit.Endpoint {
	eps := map[string]kit.Endpoint{
		"start": func(ctx context.Context, _ any) (any, error) {
			return r.Start(ctx)
		},
		"stop": func(ctx context.Context, _ any) (any, error) {
			return r.Stop(ctx)
		},
		"status": func(ctx context.Context, _ any) (any, error) {
			return r.Status(ctx)
		},
		"build_flowmap": func(_ context.Context, req any) (any, error) {
			br := req.(*buildRequest)
			return r.BuildFlowMap(rawDocument(br.Raw), br.RawFile)
		},
		"export": func(ctx context.Context, req any) (any, error) {
			if sr, ok := req.(*sessionRequest); ok && sr.ID != "" {
				return r.ExportStored(ctx, sr.ID)
			}
			return r.Export(ctx)
		},
		"sessions": func(ctx context.Context, req any) (any, error) {
			sr, _ := req.(*sessionRequest)
			limit := 0
			if sr != nil {
				limit = sr.Limit
			}
			return r.Sessions(ctx, limit)
		},
		"audit": func(ctx context.Context, req any) (any, error) {
			sr, _ := req.(*sessionRequest)
			limit := 0
			if sr != nil {
				limit = sr.Limit
			}
			return r.Audit(ctx, limit)
		},
		"compile_session": func(ctx context.Context, req any) (any, error) {
			sr := req.(*sessionRequest)
			if sr.ID == "" {
				return nil, fmt.Errorf("%w: id is required", ErrNoSession)
			}
			return r.CompileStored(ctx, sr.ID)
		},
	}
	for name, ep := range eps {
		mw := []kit.Middleware{kit.Logging(r.logger, name)}
		if audited[name] {
			mw = append(mw, r.auditing(name))
		}
		eps[name] = kit.Chain(mw...)(ep)
	}
	return eps
}

// statusCode maps command errors onto HTTP statuses.
func statusCode(err error) int {
	switch {
	case errors.Is(err, session.ErrMalformed):
		return http.StatusBadRequest
	case errors.Is(err, horosafe.ErrTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, ErrNotRecording):
		return http.StatusConflict
	case errors.Is(err, ErrNoSession):
		return http.StatusNotFound
	case errors.Is(err, ErrClosed):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// decodeRawBody reads a raw session document from the request body.
func decodeRawBody(req *http.Request) (any, error) {
	data, err := horosafe.LimitedReadAll(req.Body, horosafe.MaxRawSession)
	if err != nil {
		return nil, err
	}
	return &buildRequest{Raw: data, RawFile: req.URL.Query().Get("raw_file")}, nil
}

func decodeSessionQuery(req *http.Request) (any, error) {
	sr := &sessionRequest{ID: req.URL.Query().Get("id")}
	if s := req.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			return nil, fmt.Errorf("limit: %w", err)
		}
		sr.Limit = n
	}
	return sr, nil
}
