// CLAUDE:SUMMARY Operator HTTP panel: chi routes for the recorder commands, live status page, audit trail, optional bcrypt basic auth, MCP over streamable HTTP.
package recorder

import (
	"crypto/subtle"
	"html/template"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"golang.org/x/crypto/bcrypt"

	"github.com/hazyhaar/flowrec/flowmap"
	"github.com/hazyhaar/flowrec/horosafe"
	"github.com/hazyhaar/flowrec/kit"
	"github.com/hazyhaar/flowrec/shield"
)

// panelUser is the basic-auth user name of the operator panel.
const panelUser = "operator"

// Handler returns the operator panel. When mcpSrv is non-nil it is served
// over streamable HTTP at /mcp.
func (r *Recorder) Handler(mcpSrv *mcp.Server) http.Handler {
	eps := r.endpoints()
	mux := chi.NewRouter()
	// MCP requests carry the raw document escaped inside JSON-RPC; the
	// endpoints enforce the exact limit.
	for _, mw := range shield.PanelStack(2 * horosafe.MaxRawSession) {
		mux.Use(mw)
	}
	if r.cfg.Panel.PasswordHash != "" {
		mux.Use(basicAuth([]byte(r.cfg.Panel.PasswordHash)))
	}

	mux.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		kit.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.Get("/", r.servePanel)

	mux.Route("/api", func(api chi.Router) {
		api.Post("/start", kit.HTTPHandler(eps["start"], kit.NoBody, statusCode))
		api.Post("/stop", kit.HTTPHandler(eps["stop"], kit.NoBody, statusCode))
		api.Get("/status", kit.HTTPHandler(eps["status"], kit.NoBody, statusCode))
		api.Post("/flowmap", kit.HTTPHandler(eps["build_flowmap"], decodeRawBody, statusCode))
		api.Post("/export", kit.HTTPHandler(eps["export"], decodeSessionQuery, statusCode))
		api.Get("/audit", kit.HTTPHandler(eps["audit"], decodeSessionQuery, statusCode))
		api.Get("/sessions", kit.HTTPHandler(eps["sessions"], decodeSessionQuery, statusCode))
		api.Get("/sessions/{id}/flowmap", kit.HTTPHandler(eps["compile_session"], pathID, statusCode))
		api.Get("/sessions/{id}/report", r.serveReport)
		api.Get("/sessions/{id}/exports", func(w http.ResponseWriter, req *http.Request) {
			list, err := r.Exports(req.Context(), chi.URLParam(req, "id"))
			if err != nil {
				kit.WriteJSON(w, statusCode(err), map[string]string{"error": err.Error()})
				return
			}
			kit.WriteJSON(w, http.StatusOK, list)
		})
	})

	if mcpSrv != nil {
		h := mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return mcpSrv }, nil)
		mux.Handle("/mcp", h)
		mux.Handle("/mcp/*", h)
	}
	return mux
}

func pathID(req *http.Request) (any, error) {
	return &sessionRequest{ID: chi.URLParam(req, "id")}, nil
}

// serveReport renders a stored session's FlowMap as Markdown.
func (r *Recorder) serveReport(w http.ResponseWriter, req *http.Request) {
	fm, err := r.CompileStored(req.Context(), chi.URLParam(req, "id"))
	if err != nil {
		kit.WriteJSON(w, statusCode(err), map[string]string{"error": err.Error()})
		return
	}
	md, err := flowmap.RenderMarkdown(fm)
	if err != nil {
		kit.WriteJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.Write([]byte(md))
}

var panelTmpl = template.Must(template.New("panel").Parse(`<!DOCTYPE html>
<html><head><meta charset="utf-8"><title>flowrec</title></head>
<body>
<h1>flowrec</h1>
<p>Status: <strong id="state">{{if .Recording}}recording{{else}}idle{{end}}</strong>
 &middot; session <code id="sid">{{.SessionID}}</code>
 &middot; <span id="count">{{.Interactions}}</span> events on <span id="pages">{{.Pages}}</span> pages</p>
<p>
<button onclick="cmd('start')">Start</button>
<button onclick="cmd('stop')">Stop</button>
<button onclick="cmd('export')">Export</button>
</p>
<pre id="out"></pre>
<script>
async function cmd(name) {
  const r = await fetch('/api/' + name, {method: 'POST'});
  document.getElementById('out').textContent = r.ok ? name + ': ok' : await r.text();
  refresh();
}
async function refresh() {
  const r = await fetch('/api/status');
  if (!r.ok) return;
  const s = (await r.json()).status;
  document.getElementById('state').textContent = s.recording ? 'recording' : 'idle';
  document.getElementById('sid').textContent = s.session_id || '';
  document.getElementById('count').textContent = s.interactions;
  document.getElementById('pages').textContent = s.pages;
}
setInterval(refresh, 1000);
</script>
</body></html>
`))

func (r *Recorder) servePanel(w http.ResponseWriter, req *http.Request) {
	st, err := r.agg.Status(req.Context())
	if err != nil {
		http.Error(w, err.Error(), statusCode(err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	panelTmpl.Execute(w, st)
}

// basicAuth guards the panel with the operator password (bcrypt hash).
func basicAuth(hash []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			user, pass, ok := req.BasicAuth()
			if !ok || subtle.ConstantTimeCompare([]byte(user), []byte(panelUser)) != 1 ||
				bcrypt.CompareHashAndPassword(hash, []byte(pass)) != nil {
				w.Header().Set("WWW-Authenticate", `Basic realm="flowrec"`)
				kit.WriteJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
				return
			}
			next.ServeHTTP(w, req)
		})
	}
}
