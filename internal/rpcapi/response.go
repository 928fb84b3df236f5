package rpcapi

import (
	"encoding/json"
	"net/http"

	"github.com/hostfleet/fleetnet/internal/logger"
)

// envelope is the sync/error response shape every handler returns,
// mirroring the {type, status, status_code, metadata} envelope the
// teacher's own REST API documents (lxd/api.go's "Get the supported
// API endpoints" swagger response).
type envelope struct {
	Type       string `json:"type"`
	Status     string `json:"status"`
	StatusCode int    `json:"status_code"`
	Metadata   any    `json:"metadata,omitempty"`
	Error      string `json:"error,omitempty"`
}

func writeSync(w http.ResponseWriter, metadata any) {
	writeJSON(w, http.StatusOK, envelope{
		Type:       "sync",
		Status:     "Success",
		StatusCode: http.StatusOK,
		Metadata:   metadata,
	})
}

func writeError(w http.ResponseWriter, statusCode int, err error) {
	writeJSON(w, statusCode, envelope{
		Type:       "error",
		Status:     http.StatusText(statusCode),
		StatusCode: statusCode,
		Error:      err.Error(),
	})
}

func writeJSON(w http.ResponseWriter, statusCode int, body envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Warn("failed to encode rpc response", logger.Ctx{"err": err})
	}
}
