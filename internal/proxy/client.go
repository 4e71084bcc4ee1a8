// Package proxy forwards transcription and synthesis requests to the
// supervised voice services.
package proxy

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/MrSnakeDoc/voicectl/internal/utils"
)

// Defaults applied to synthesis requests.
const (
	DefaultSpeaker  = "Ryan"
	DefaultLanguage = "English"
	DefaultFilename = "audio.wav"
)

// maxErrorBody bounds how much of a failed upstream response is kept.
const maxErrorBody = 4 << 10

// ErrInvalidAudio is returned when the audio payload is not valid base64.
var ErrInvalidAudio = errors.New("audio is not valid base64")

// ErrUnreachable is returned when the voice service cannot be contacted.
var ErrUnreachable = errors.New("voice service unreachable")

// UpstreamError is a non-2xx answer from a voice service.
type UpstreamError struct {
	Service    string
	StatusCode int
	Body       string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s returned %d: %s", e.Service, e.StatusCode, e.Body)
}

// Endpoint locates one upstream operation.
type Endpoint struct {
	Service string
	BaseURL string
	Path    string
}

func (e Endpoint) url() string { return e.BaseURL + e.Path }

// Config holds the upstream locations and timeouts.
type Config struct {
	Transcribe     Endpoint
	Synthesize     Endpoint
	Timeout        time.Duration
	ConnectTimeout time.Duration
}

// SynthesisRequest is the JSON body sent to the TTS service.
type SynthesisRequest struct {
	Text     string `json:"text"`
	Speaker  string `json:"speaker"`
	Language string `json:"language"`
	Instruct string `json:"instruct"`
}

// SynthesisResult carries the generated audio back to the caller.
type SynthesisResult struct {
	AudioBase64       string `json:"audio_base64"`
	Format            string `json:"format"`
	SizeBytes         int    `json:"size_bytes"`
	SynthesisDuration string `json:"synthesis_duration,omitempty"`
}

// Client talks to the voice services over HTTP.
type Client struct {
	cfg  Config
	http *http.Client
}

// NewClient creates a proxy client.
func NewClient(cfg Config) *Client {
	return &Client{
		cfg: cfg,
		http: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout: cfg.ConnectTimeout,
				}).DialContext,
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

// Transcribe uploads base64-encoded audio as the multipart field "audio" and
// returns the service's JSON answer.
func (c *Client) Transcribe(ctx context.Context, audioBase64, filename string) (map[string]any, error) {
	audio, err := base64.StdEncoding.DecodeString(audioBase64)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAudio, err)
	}
	if filename == "" {
		filename = DefaultFilename
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("audio", filename)
	if err != nil {
		return nil, fmt.Errorf("build multipart body: %w", err)
	}
	if _, err := part.Write(audio); err != nil {
		return nil, fmt.Errorf("build multipart body: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("build multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Transcribe.url(), &body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	raw, _, err := c.do(req, c.cfg.Transcribe.Service)
	if err != nil {
		return nil, err
	}

	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode %s response: %w", c.cfg.Transcribe.Service, err)
	}
	return out, nil
}

// Synthesize sends the text to the TTS service and returns the WAV audio
// base64-encoded.
func (c *Client) Synthesize(ctx context.Context, in SynthesisRequest) (SynthesisResult, error) {
	if in.Speaker == "" {
		in.Speaker = DefaultSpeaker
	}
	if in.Language == "" {
		in.Language = DefaultLanguage
	}

	payload, err := json.Marshal(in)
	if err != nil {
		return SynthesisResult{}, fmt.Errorf("encode synthesis request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Synthesize.url(), bytes.NewReader(payload))
	if err != nil {
		return SynthesisResult{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	audio, header, err := c.do(req, c.cfg.Synthesize.Service)
	if err != nil {
		return SynthesisResult{}, err
	}

	return SynthesisResult{
		AudioBase64:       base64.StdEncoding.EncodeToString(audio),
		Format:            "wav",
		SizeBytes:         len(audio),
		SynthesisDuration: header.Get("X-Duration"),
	}, nil
}

func (c *Client) do(req *http.Request, service string) ([]byte, http.Header, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %s request failed: %v", ErrUnreachable, service, err)
	}
	defer utils.Close(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, nil, &UpstreamError{
			Service:    service,
			StatusCode: resp.StatusCode,
			Body:       string(snippet),
		}
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("read %s response: %w", service, err)
	}
	return raw, resp.Header, nil
}

// BaseURL returns the local URL of a service listening on port.
func BaseURL(port int) string {
	return "http://" + net.JoinHostPort("127.0.0.1", strconv.Itoa(port))
}
