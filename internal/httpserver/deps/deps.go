package deps

import (
	"time"

	"github.com/MrSnakeDoc/voicectl/internal/gpu"
	"github.com/MrSnakeDoc/voicectl/internal/logger"
	"github.com/MrSnakeDoc/voicectl/internal/metrics"
	"github.com/MrSnakeDoc/voicectl/internal/proxy"
	"github.com/MrSnakeDoc/voicectl/internal/scheduler"
	redisstore "github.com/MrSnakeDoc/voicectl/internal/store/redis"
	"github.com/MrSnakeDoc/voicectl/internal/supervisor"
)

type Deps struct {
	Logger          logger.Logger
	StartTime       time.Time
	Version         string
	Commit          string
	BuildDate       string
	GoVersion       string
	TimeNow         func() time.Time         // for testing, defaults to time.Now
	AllowedHosts    []string                 // Host headers allowed on control routes
	AllowedCIDRS    []string                 // IPs allowed on control routes
	TrustProxy      bool                     // true if running behind a trusted reverse proxy
	RequestTimeout  time.Duration            // Timeout for query routes (status, logs, gpu...)
	ProxyRateBurst  int                      // per-IP burst on /api/transcribe and /api/synthesize
	ProxyRatePerMin int                      // per-IP refill on the proxy routes
	Controller      *supervisor.Controller   // Process supervisor
	Health          *scheduler.HealthMonitor // Health loop and on-demand checks
	GPU             *gpu.Monitor             // nvidia-smi wrapper
	Proxy           *proxy.Client            // Client for the whisper/tts APIs
	Store           *redisstore.Store        // Event journal, nil when Redis is disabled
	Metrics         *metrics.Metrics         // Prometheus collectors
	HealthTrigger   chan struct{}            // Channel to trigger a health round outside the ticker
}

// Now returns the current time through TimeNow when set.
func (d Deps) Now() time.Time {
	if d.TimeNow != nil {
		return d.TimeNow()
	}
	return time.Now()
}
