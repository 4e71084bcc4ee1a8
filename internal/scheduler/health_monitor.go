package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrSnakeDoc/voicectl/internal/catalog"
	"github.com/MrSnakeDoc/voicectl/internal/health"
	"github.com/MrSnakeDoc/voicectl/internal/index"
	"github.com/MrSnakeDoc/voicectl/internal/logger"
	redisstore "github.com/MrSnakeDoc/voicectl/internal/store/redis"
	"github.com/MrSnakeDoc/voicectl/internal/supervisor"
)

// HealthRecorder receives the outcome of every check.
type HealthRecorder interface {
	SetHealth(service string, ok bool)
}

// HealthMonitor periodically probes every running service and keeps the
// latest result in the memory index.
type HealthMonitor struct {
	controller    *supervisor.Controller
	checker       *health.Checker
	store         *redisstore.Store
	index         *index.MemoryIndex
	recorder      HealthRecorder
	logger        logger.Logger
	interval      time.Duration
	stopCh        chan struct{}
	stopOnce      sync.Once
	started       atomic.Bool
	done          chan struct{}
	manualTrigger chan struct{}
}

// NewHealthMonitor creates a new health monitor. store and recorder may be nil.
// An interval of zero disables the periodic loop; manual triggers and
// on-demand checks still work.
func NewHealthMonitor(
	controller *supervisor.Controller,
	checker *health.Checker,
	store *redisstore.Store,
	idx *index.MemoryIndex,
	recorder HealthRecorder,
	log logger.Logger,
	interval time.Duration,
	manualTrigger chan struct{},
) *HealthMonitor {
	return &HealthMonitor{
		controller:    controller,
		checker:       checker,
		store:         store,
		index:         idx,
		recorder:      recorder,
		logger:        log,
		interval:      interval,
		stopCh:        make(chan struct{}),
		done:          make(chan struct{}),
		manualTrigger: manualTrigger,
	}
}

// Start runs a first round of checks and then the periodic loop
func (hm *HealthMonitor) Start(ctx context.Context) {
	hm.CheckAll(ctx)

	var ticker *time.Ticker
	var tick <-chan time.Time
	if hm.interval > 0 {
		ticker = time.NewTicker(hm.interval)
		tick = ticker.C
	}
	hm.started.Store(true)
	go hm.loop(ctx, ticker, tick)
}

func (hm *HealthMonitor) loop(ctx context.Context, ticker *time.Ticker, tick <-chan time.Time) {
	defer close(hm.done)
	if ticker != nil {
		defer ticker.Stop()
	}
	for {
		select {
		case <-tick:
			hm.CheckAll(ctx)
		case <-hm.manualTrigger:
			hm.logger.Info("manual health check triggered")
			hm.CheckAll(ctx)
		case <-hm.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Stop stops the monitor and waits for the loop to exit
func (hm *HealthMonitor) Stop() {
	hm.stopOnce.Do(func() { close(hm.stopCh) })
	if hm.started.Load() {
		<-hm.done
	}
}

// CheckAll probes every running service concurrently. Services that are not
// running have their stored result dropped.
func (hm *HealthMonitor) CheckAll(ctx context.Context) []health.Result {
	reg := hm.controller.Registry()
	names := reg.Names()

	results := make([]health.Result, len(names))
	checked := make([]bool, len(names))

	var g errgroup.Group
	for i, name := range names {
		rec, err := reg.GetOrCreate(name)
		if err != nil || !rec.Running() {
			hm.forget(ctx, name)
			continue
		}
		i := i
		g.Go(func() error {
			results[i] = hm.check(ctx, rec.Definition())
			checked[i] = true
			return nil
		})
	}
	_ = g.Wait()

	out := make([]health.Result, 0, len(names))
	var failing int
	for i := range results {
		if !checked[i] {
			continue
		}
		if !results[i].OK() {
			failing++
		}
		out = append(out, results[i])
	}

	hm.logger.Debug("health checks completed",
		logger.Int("checked", len(out)),
		logger.Int("failing", failing))
	return out
}

// CheckService probes one service on demand, running or not, and stores the
// result.
func (hm *HealthMonitor) CheckService(ctx context.Context, name string) (health.Result, error) {
	rec, err := hm.controller.Registry().GetOrCreate(name)
	if err != nil {
		return health.Result{}, err
	}
	return hm.check(ctx, rec.Definition()), nil
}

// LastCheck returns when a result was last stored.
func (hm *HealthMonitor) LastCheck() time.Time {
	return hm.index.LastUpdate()
}

// Latest returns the stored result of a service, if any.
func (hm *HealthMonitor) Latest(name string) (health.Result, bool) {
	return hm.index.Get(name)
}

func (hm *HealthMonitor) check(ctx context.Context, def catalog.Definition) health.Result {
	res := hm.checker.Check(ctx, def)
	hm.index.Put(res)

	if hm.recorder != nil {
		hm.recorder.SetHealth(res.Service, res.OK())
	}

	if !res.OK() {
		hm.logger.Warn("service health check failed",
			logger.String("service", res.Service),
			logger.String("status", res.Status),
			logger.String("error", res.Error))
	}

	// Update Redis store (best effort)
	if hm.store != nil {
		if err := hm.store.SaveHealth(ctx, res, hm.cacheTTL()); err != nil {
			hm.logger.Warn("failed to save health result to redis",
				logger.String("service", res.Service),
				logger.Error(err))
		}
	}
	return res
}

func (hm *HealthMonitor) forget(ctx context.Context, name string) {
	if _, ok := hm.index.Get(name); !ok {
		return
	}
	hm.index.Delete(name)
	if hm.recorder != nil {
		hm.recorder.SetHealth(name, false)
	}
	if hm.store != nil {
		if err := hm.store.DeleteHealth(ctx, name); err != nil {
			hm.logger.Warn("failed to delete health result from redis",
				logger.String("service", name),
				logger.Error(err))
		}
	}
}

// cacheTTL keeps a cached result alive for three missed rounds.
func (hm *HealthMonitor) cacheTTL() time.Duration {
	if hm.interval <= 0 {
		return 0
	}
	return 3 * hm.interval
}
