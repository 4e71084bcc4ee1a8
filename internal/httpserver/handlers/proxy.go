package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/MrSnakeDoc/voicectl/internal/httpserver/deps"
	"github.com/MrSnakeDoc/voicectl/internal/logger"
	"github.com/MrSnakeDoc/voicectl/internal/proxy"
)

// maxProxyBody bounds a proxied request (base64 audio included).
const maxProxyBody = 64 << 20

type transcribeRequest struct {
	AudioBase64 string `json:"audio_base64"`
	Filename    string `json:"filename"`
}

func Transcribe(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in transcribeRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxProxyBody)).Decode(&in); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
			return
		}
		if in.AudioBase64 == "" {
			writeError(w, http.StatusBadRequest, "audio_base64 is required")
			return
		}

		out, err := d.Proxy.Transcribe(r.Context(), in.AudioBase64, in.Filename)
		if err != nil {
			d.Logger.Warn("transcription failed", logger.Error(err))
			writeFailure(w, d.Logger, err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func Synthesize(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in proxy.SynthesisRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxProxyBody)).Decode(&in); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
			return
		}
		if strings.TrimSpace(in.Text) == "" {
			writeError(w, http.StatusBadRequest, "text is required")
			return
		}

		out, err := d.Proxy.Synthesize(r.Context(), in)
		if err != nil {
			d.Logger.Warn("synthesis failed", logger.Error(err))
			writeFailure(w, d.Logger, err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	}
}
