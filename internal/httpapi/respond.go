package httpapi

import (
	"encoding/json"
	"net/http"
)

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

type errorBody struct {
	Error     string `json:"error"`
	ErrorKind string `json:"error_kind,omitempty"`
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, errorBody{Error: message})
}

func respondErrorKind(w http.ResponseWriter, status int, kind, message string) {
	respondJSON(w, status, errorBody{Error: message, ErrorKind: kind})
}
