// CLAUDE:SUMMARY HTTP middleware for the operator panel: security headers, body limit, HEAD handling, request IDs.
// Package shield provides the HTTP middleware stack of the operator panel.
//
// Usage:
//
//	r := chi.NewRouter()
//	for _, mw := range shield.PanelStack(horosafe.MaxRawSession) {
//	    r.Use(mw)
//	}
package shield

import "net/http"

// PanelStack returns the middleware stack for the operator panel.
// Order: HeadToGet → SecurityHeaders → MaxBody → RequestID.
func PanelStack(maxBody int64) []func(http.Handler) http.Handler {
	return []func(http.Handler) http.Handler{
		HeadToGet,
		SecurityHeaders(PanelHeaders()),
		MaxBody(maxBody),
		RequestID,
	}
}
