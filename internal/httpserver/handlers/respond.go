package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/MrSnakeDoc/voicectl/internal/logger"
	"github.com/MrSnakeDoc/voicectl/internal/proxy"
	"github.com/MrSnakeDoc/voicectl/internal/supervisor"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// writeFailure maps a domain error onto its HTTP status.
func writeFailure(w http.ResponseWriter, log logger.Logger, err error) {
	var upstream *proxy.UpstreamError

	switch {
	case errors.Is(err, supervisor.ErrUnknownService):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, proxy.ErrInvalidAudio):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &upstream), errors.Is(err, proxy.ErrUnreachable):
		writeError(w, http.StatusBadGateway, err.Error())
	case errors.Is(err, supervisor.ErrSpawn):
		log.Warn("spawn failed", logger.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		log.Error("request failed", logger.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// queryInt reads a positive-or-zero integer query parameter. ok is false when
// the parameter is present but not a number.
func queryInt(r *http.Request, key string, def int) (int, bool) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return v, true
}
