package kit

import (
	"encoding/json"
	"net/http"
)

// HTTPDecoder extracts the typed request from an HTTP request.
type HTTPDecoder func(*http.Request) (any, error)

// HTTPHandler serves an Endpoint over HTTP. Decode failures answer 400;
// endpoint errors are mapped through status (nil means 500).
func HTTPHandler(endpoint Endpoint, decode HTTPDecoder, status func(error) int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, err := decode(r)
		if err != nil {
			WriteJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		ctx := WithTransport(r.Context(), "http")
		resp, err := endpoint(ctx, req)
		if err != nil {
			code := http.StatusInternalServerError
			if status != nil {
				code = status(err)
			}
			WriteJSON(w, code, map[string]string{"error": err.Error()})
			return
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

// NoBody decodes requests that carry no payload.
func NoBody(*http.Request) (any, error) { return nil, nil }

// WriteJSON writes v as a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
