package main

import (
	"encoding/json"
	"lyrics-sync-go/middleware"
	"net/http"
)

// APIResponse sets the standard headers (X-Auth-Mode, X-Cache-Status,
// X-RateLimit-Type, X-Lyrics-Source) from the request context and writes
// a JSON body.
type APIResponse struct {
	w           http.ResponseWriter
	r           *http.Request
	cacheStatus string
	source      string
}

// Respond creates a response helper for r.
func Respond(w http.ResponseWriter, r *http.Request) *APIResponse {
	return &APIResponse{w: w, r: r}
}

// SetCacheStatus sets X-Cache-Status.
func (a *APIResponse) SetCacheStatus(status string) *APIResponse {
	a.cacheStatus = status
	return a
}

// SetSource sets X-Lyrics-Source.
func (a *APIResponse) SetSource(source string) *APIResponse {
	a.source = source
	return a
}

func (a *APIResponse) writeHeaders() {
	h := a.w.Header()
	h.Set("Content-Type", "application/json")

	if a.cacheStatus != "" {
		h.Set("X-Cache-Status", a.cacheStatus)
	}
	if a.source != "" {
		h.Set("X-Lyrics-Source", a.source)
	}
	if mode := middleware.AuthModeFrom(a.r.Context()); mode != middleware.AuthNone {
		h.Set("X-Auth-Mode", string(mode))
	}
	if tier := middleware.TierFrom(a.r.Context()); tier != "" {
		h.Set("X-RateLimit-Type", tier)
	}
}

// JSON writes a 200 with data.
func (a *APIResponse) JSON(data interface{}) error {
	a.writeHeaders()
	return json.NewEncoder(a.w).Encode(data)
}

// Error writes statusCode with data.
func (a *APIResponse) Error(statusCode int, data interface{}) error {
	a.writeHeaders()
	a.w.WriteHeader(statusCode)
	return json.NewEncoder(a.w).Encode(data)
}
