// Package api exposes the vault over HTTP: account registration, sync and
// export triggers with pollable status, read access to the locally stored
// mailboxes, and a WebSocket feed of status events.
package api

import (
	"bytes"
	"encoding/json"
	"net/http"

	"github.com/imapvault/server/internal/logging"
)

// WriteJSONResponse encodes v into the response. Encoding happens into a
// buffer first so a marshaling failure yields a clean 500 instead of a torn
// body. Returns false when nothing useful was written.
func WriteJSONResponse(w http.ResponseWriter, v any) bool {
	return writeJSONStatus(w, http.StatusOK, v)
}

func writeJSONStatus(w http.ResponseWriter, status int, v any) bool {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		logging.Logger(logging.API).WithError(err).Error("Could not encode response")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return false
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
	return true
}
