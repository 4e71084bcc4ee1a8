package proxy

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(ts *httptest.Server) *Client {
	return NewClient(Config{
		Transcribe:     Endpoint{Service: "whisper", BaseURL: ts.URL, Path: "/transcribe"},
		Synthesize:     Endpoint{Service: "tts", BaseURL: ts.URL, Path: "/synthesize"},
		Timeout:        5 * time.Second,
		ConnectTimeout: time.Second,
	})
}

func TestTranscribe(t *testing.T) {
	audio := []byte("RIFF....WAVEfmt ")

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/transcribe", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)

		file, header, err := r.FormFile("audio")
		if !assert.NoError(t, err) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		defer file.Close()
		got, _ := io.ReadAll(file)
		assert.Equal(t, audio, got)
		assert.Equal(t, "clip.wav", header.Filename)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"text":"hello there","language":"en","duration":1.5}`))
	}))
	defer ts.Close()

	out, err := newTestClient(ts).Transcribe(context.Background(), base64.StdEncoding.EncodeToString(audio), "clip.wav")
	require.NoError(t, err)
	assert.Equal(t, "hello there", out["text"])
	assert.Equal(t, 1.5, out["duration"])
}

func TestTranscribeDefaultFilename(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, header, err := r.FormFile("audio")
		if assert.NoError(t, err) {
			assert.Equal(t, DefaultFilename, header.Filename)
		}
		_, _ = w.Write([]byte(`{}`))
	}))
	defer ts.Close()

	_, err := newTestClient(ts).Transcribe(context.Background(), base64.StdEncoding.EncodeToString([]byte("x")), "")
	require.NoError(t, err)
}

func TestTranscribeInvalidBase64(t *testing.T) {
	c := NewClient(Config{Timeout: time.Second})
	_, err := c.Transcribe(context.Background(), "!!not base64!!", "a.wav")
	assert.ErrorIs(t, err, ErrInvalidAudio)
}

func TestSynthesize(t *testing.T) {
	wav := []byte("RIFF\x24\x00\x00\x00WAVE")

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/synthesize", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req SynthesisRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, SynthesisRequest{
			Text:     "good morning",
			Speaker:  DefaultSpeaker,
			Language: DefaultLanguage,
		}, req)

		w.Header().Set("X-Duration", "0.82")
		w.Header().Set("Content-Type", "audio/wav")
		_, _ = w.Write(wav)
	}))
	defer ts.Close()

	res, err := newTestClient(ts).Synthesize(context.Background(), SynthesisRequest{Text: "good morning"})
	require.NoError(t, err)
	assert.Equal(t, SynthesisResult{
		AudioBase64:       base64.StdEncoding.EncodeToString(wav),
		Format:            "wav",
		SizeBytes:         len(wav),
		SynthesisDuration: "0.82",
	}, res)
}

func TestUpstreamError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"detail":"model not loaded"}`, http.StatusServiceUnavailable)
	}))
	defer ts.Close()

	_, err := newTestClient(ts).Synthesize(context.Background(), SynthesisRequest{Text: "hi"})
	require.Error(t, err)

	var upErr *UpstreamError
	require.True(t, errors.As(err, &upErr))
	assert.Equal(t, "tts", upErr.Service)
	assert.Equal(t, http.StatusServiceUnavailable, upErr.StatusCode)
	assert.Contains(t, upErr.Body, "model not loaded")
}

func TestUnreachable(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	c := newTestClient(ts)
	ts.Close()

	_, err := c.Transcribe(context.Background(), base64.StdEncoding.EncodeToString([]byte("x")), "a.wav")
	require.Error(t, err)

	var upErr *UpstreamError
	assert.False(t, errors.As(err, &upErr))
}

func TestBaseURL(t *testing.T) {
	assert.Equal(t, "http://127.0.0.1:8100", BaseURL(8100))
}
