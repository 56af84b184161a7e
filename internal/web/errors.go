package web

// errors.go renders failures as JSON.
//
// Every error body carries the technical error for programmatic clients
// (the chunk client surfaces "error" verbatim) plus the coded user message
// from ingest.MapError. Errors that do not map to a known pattern are not
// echoed; the client sees the generic ERR000 text and the detail goes to the
// log with the request id.

import (
	"encoding/json"
	"net/http"

	"github.com/JonMunkholm/refimport/internal/ingest"
	"github.com/JonMunkholm/refimport/internal/logging"
)

// ErrorResponse is the JSON body of every error.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`
}

func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error, status int) {
	msg := ingest.MapError(err)

	logger := logging.FromContext(r.Context())
	attrs := []any{"path", r.URL.Path, "status", status, "code", msg.Code, "error", err}
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", attrs...)
	} else {
		logger.Warn("request rejected", attrs...)
	}

	text := msg.Message
	if ingest.IsUserFacing(err) {
		text = err.Error()
	}
	writeJSONStatus(w, status, ErrorResponse{
		Error:   text,
		Message: msg.Message,
		Action:  msg.Action,
		Code:    msg.Code,
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	writeJSONStatus(w, http.StatusOK, v)
}

func writeJSONStatus(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
