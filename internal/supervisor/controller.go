// Package supervisor owns the lifecycle of the voice service processes:
// spawning them, capturing their output, and stopping them with a bounded
// grace window before a forced kill.
package supervisor

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrSnakeDoc/voicectl/internal/logger"
)

// DefaultStopTimeout is the grace window between the cooperative stop signal
// and the forced kill.
const DefaultStopTimeout = 10 * time.Second

// Controller implements start, stop, restart, status and log retrieval over a
// Registry. Operations on different services never block each other.
type Controller struct {
	registry    *Registry
	terminator  Terminator
	stopTimeout time.Duration
	now         func() time.Time
	logger      logger.Logger
	observers   []Observer
}

// Option configures a Controller.
type Option func(*Controller)

// WithTerminator overrides the platform stop mechanism.
func WithTerminator(t Terminator) Option {
	return func(c *Controller) { c.terminator = t }
}

// WithStopTimeout sets the grace window. Non-positive values are ignored.
func WithStopTimeout(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.stopTimeout = d
		}
	}
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// WithObserver registers an observer for lifecycle events.
func WithObserver(o Observer) Option {
	return func(c *Controller) { c.observers = append(c.observers, o) }
}

// NewController creates a controller over reg.
func NewController(reg *Registry, opts ...Option) *Controller {
	c := &Controller{
		registry:    reg,
		terminator:  DefaultTerminator(),
		stopTimeout: DefaultStopTimeout,
		now:         time.Now,
		logger:      logger.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Registry returns the registry the controller operates on.
func (c *Controller) Registry() *Registry { return c.registry }

// StopTimeout returns the configured grace window.
func (c *Controller) StopTimeout() time.Duration { return c.stopTimeout }

// Start launches the service unless it is already running, in which case it
// returns the current status with MessageAlreadyRunning.
func (c *Controller) Start(ctx context.Context, name string) (StatusSnapshot, error) {
	rec, err := c.registry.GetOrCreate(name)
	if err != nil {
		return StatusSnapshot{}, err
	}

	rec.lifecycle.Lock()
	defer rec.lifecycle.Unlock()
	return c.startLocked(ctx, rec)
}

// Stop asks the service to exit, waits up to the stop timeout, then kills it.
// A service that is not running yields MessageNotRunning and no signal.
func (c *Controller) Stop(ctx context.Context, name string) (StatusSnapshot, error) {
	rec, err := c.registry.GetOrCreate(name)
	if err != nil {
		return StatusSnapshot{}, err
	}

	rec.lifecycle.Lock()
	defer rec.lifecycle.Unlock()
	return c.stopLocked(ctx, rec), nil
}

// Restart stops then starts the service. Start is attempted whatever the
// outcome of the stop.
func (c *Controller) Restart(ctx context.Context, name string) (StatusSnapshot, error) {
	rec, err := c.registry.GetOrCreate(name)
	if err != nil {
		return StatusSnapshot{}, err
	}

	rec.lifecycle.Lock()
	defer rec.lifecycle.Unlock()

	c.stopLocked(ctx, rec)
	return c.startLocked(ctx, rec)
}

// Status returns the current status of the service.
func (c *Controller) Status(_ context.Context, name string) (StatusSnapshot, error) {
	rec, err := c.registry.GetOrCreate(name)
	if err != nil {
		return StatusSnapshot{}, err
	}
	return rec.snapshot(c.now(), ""), nil
}

// ViewLogs returns the most recent lines of the service output. lines is
// clamped to [1, LogBufferSize].
func (c *Controller) ViewLogs(name string, lines int) (LogSnapshot, error) {
	rec, err := c.registry.GetOrCreate(name)
	if err != nil {
		return LogSnapshot{}, err
	}

	n := clamp(lines, 1, rec.logs.Cap())
	recent := rec.logs.Last(n)
	return LogSnapshot{
		Service:        name,
		LinesRequested: n,
		LinesReturned:  len(recent),
		Logs:           recent,
	}, nil
}

// FollowLogs returns the last backlog lines and a channel of new lines. The
// caller must call cancel when done.
func (c *Controller) FollowLogs(name string, backlog, queue int) ([]string, <-chan string, func(), error) {
	rec, err := c.registry.GetOrCreate(name)
	if err != nil {
		return nil, nil, nil, err
	}
	lines, ch, cancel := rec.logs.Follow(clamp(backlog, 0, rec.logs.Cap()), queue)
	return lines, ch, cancel, nil
}

// StopAll stops every running service concurrently.
func (c *Controller) StopAll(ctx context.Context) error {
	var g errgroup.Group
	for _, rec := range c.registry.Records() {
		if !rec.Running() {
			continue
		}
		rec := rec
		g.Go(func() error {
			_, err := c.Stop(ctx, rec.Name())
			return err
		})
	}
	return g.Wait()
}

func (c *Controller) startLocked(_ context.Context, rec *Record) (StatusSnapshot, error) {
	if rec.Running() {
		return rec.snapshot(c.now(), MessageAlreadyRunning), nil
	}

	// A process that exited on its own may still have a capture task.
	c.release(rec)
	rec.logs.Reset()

	def := rec.Definition()
	now := c.now()
	p, pipe, err := spawn(def, now, c.watchExit(rec.Name()))
	if err != nil {
		ev := newEvent(def.Name, EventSpawnFailed, now)
		ev.Detail = err.Error()
		c.emit(ev)
		c.logger.Error("failed to start service",
			logger.String("service", def.Name),
			logger.String("command", def.Command),
			logger.Error(err))
		return rec.snapshot(now, MessageNotRunning), &SpawnError{Name: def.Name, Command: def.Command, Err: err}
	}

	rec.attach(p, startCapture(pipe, rec.logs))

	c.logger.Info("service started",
		logger.String("service", def.Name),
		logger.Int("pid", p.pid),
		logger.Int("port", def.Port))

	ev := newEvent(def.Name, EventStarted, now)
	ev.PID = p.pid
	c.emit(ev)

	return rec.snapshot(c.now(), MessageStarted), nil
}

func (c *Controller) stopLocked(ctx context.Context, rec *Record) StatusSnapshot {
	p := rec.current()
	if p == nil || !p.alive() {
		c.release(rec)
		return rec.snapshot(c.now(), MessageNotRunning)
	}

	name := rec.Name()
	begin := time.Now()
	p.stopRequested.Store(true)

	// Best effort: the process may already be on its way out.
	if err := c.terminator.Interrupt(p.cmd.Process); err != nil {
		c.logger.Debug("graceful stop signal failed",
			logger.String("service", name),
			logger.Int("pid", p.pid),
			logger.Error(err))
	}

	kind := EventStopped
	timer := time.NewTimer(c.stopTimeout)
	defer timer.Stop()

	select {
	case <-p.done:
	case <-timer.C:
		kind = EventKilled
		c.logger.Warn("service ignored stop signal, killing",
			logger.String("service", name),
			logger.Int("pid", p.pid),
			logger.Duration("timeout", c.stopTimeout))
		c.kill(p)
	case <-ctx.Done():
		kind = EventKilled
		c.logger.Warn("stop cancelled during grace window, killing",
			logger.String("service", name),
			logger.Int("pid", p.pid),
			logger.Error(ctx.Err()))
		c.kill(p)
	}

	c.release(rec)

	elapsed := time.Since(begin)
	c.logger.Info("service stopped",
		logger.String("service", name),
		logger.Int("pid", p.pid),
		logger.String("outcome", string(kind)),
		logger.Duration("elapsed", elapsed))

	code := p.ExitCode()
	ev := newEvent(name, kind, c.now())
	ev.PID = p.pid
	ev.ExitCode = &code
	ev.StopSeconds = elapsed.Seconds()
	c.emit(ev)

	return rec.snapshot(c.now(), MessageStopped)
}

// kill forces the process down and waits for the exit, without a deadline.
func (c *Controller) kill(p *process) {
	if err := c.terminator.Kill(p.cmd.Process); err != nil {
		c.logger.Debug("kill failed", logger.Int("pid", p.pid), logger.Error(err))
	}
	<-p.done
}

// release clears the record's handle and joins its capture task.
func (c *Controller) release(rec *Record) {
	_, capture := rec.detach()
	if capture == nil {
		return
	}
	if !capture.stop(c.stopTimeout) {
		c.logger.Warn("log capture did not finish in time",
			logger.String("service", rec.Name()))
	}
}

// watchExit reports exits that were not requested by stop.
func (c *Controller) watchExit(name string) func(*process) {
	return func(p *process) {
		if p.stopRequested.Load() {
			return
		}
		code := p.exitCode
		c.logger.Warn("service exited unexpectedly",
			logger.String("service", name),
			logger.Int("pid", p.pid),
			logger.Int("exit_code", code))

		ev := newEvent(name, EventExited, c.now())
		ev.PID = p.pid
		ev.ExitCode = &code
		c.emit(ev)
	}
}

func (c *Controller) emit(e Event) {
	for _, o := range c.observers {
		o.Observe(e)
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
