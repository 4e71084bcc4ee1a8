package routes

import (
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/voicectl/internal/httpserver/deps"
	"github.com/MrSnakeDoc/voicectl/internal/httpserver/handlers"
	"github.com/MrSnakeDoc/voicectl/internal/httpserver/mw"
)

func init() { Register(registerProxy) }

func registerProxy(r chi.Router, d deps.Deps) {
	p := controlAccess(r, d).With(mw.RateLimit(mw.RateLimitConfig{
		Burst:             d.ProxyRateBurst,
		RefillPerIPPerMin: d.ProxyRatePerMin,
		MaxEntries:        4096,
		SweepInterval:     time.Minute,
		IdleTTL:           15 * time.Minute,
		TrustProxy:        d.TrustProxy,
		Logger:            d.Logger,
	}))

	p.Post("/api/transcribe", handlers.Transcribe(d))
	p.Post("/api/synthesize", handlers.Synthesize(d))
}
