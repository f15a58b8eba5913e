package http

import (
	"encoding/json"
	"net/http"

	"github.com/helpq/helpq/pkg/apperror"
)

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, err error) {
	appErr := apperror.Map(err)
	writeJSON(w, appErr.Status, map[string]interface{}{"error": appErr})
}
