package mw

import (
	"encoding/json"
	"net/http"
)

// reject answers with the same JSON error shape as the API handlers.
func reject(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
