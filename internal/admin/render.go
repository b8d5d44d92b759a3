package admin

import (
	"encoding/json"
	"net/http"
)

type errorResponse struct {
	Message string `json:"message"`
	Status  string `json:"status"`
}

func renderJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		alog.Warn("encoding response", "err", err)
	}
}

func renderAPIError(w http.ResponseWriter, code int, message string) {
	renderJSON(w, code, errorResponse{
		Message: message,
		Status:  http.StatusText(code),
	})
}
