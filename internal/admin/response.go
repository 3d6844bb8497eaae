// Package admin exposes the bridge daemon's own operational HTTP surface:
// /healthz (supervisor connectivity), /readyz (topology reconciled), and a
// /swagger/* doc endpoint, following the shape of the teacher's
// internal/delivery/http package but scoped to the bridge process itself
// rather than a business API.
package admin

import (
	"bytes"
	"encoding/json"
	"net/http"
)

// writeJSON mirrors the teacher's response.JSON: buffer the encode so a
// marshal failure never leaves a half-written response on the wire.
func writeJSON(w http.ResponseWriter, statusCode int, data any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(data); err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "failed to encode response"})
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_, _ = buf.WriteTo(w)
}
