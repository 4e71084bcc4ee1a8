//go:build !windows

package supervisor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"golang.org/x/sys/unix"

	"github.com/MrSnakeDoc/voicectl/internal/catalog"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// Fixture scripts. Each service prints something recognisable and then stays
// alive until signalled, except crash which exits on its own.
var fixtures = map[string]string{
	"echo": `echo line-1
echo line-2
exec sleep 30`,
	"stubborn": `trap '' TERM
echo ready
while :; do sleep 0.05; done`,
	"flood": `i=1
while [ $i -le 501 ]; do echo line-$i; i=$((i+1)); done
exec sleep 30`,
	"crash": `echo bye
exit 3`,
	"invalid": `printf 'ok\377done\n'
exec sleep 30`,
}

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) Observe(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) kinds(service string) []EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []EventKind
	for _, e := range r.events {
		if e.Service == service {
			out = append(out, e.Kind)
		}
	}
	return out
}

func (r *recorder) last(service string) Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.events) - 1; i >= 0; i-- {
		if r.events[i].Service == service {
			return r.events[i]
		}
	}
	return Event{}
}

func newTestController(t *testing.T, opts ...Option) (*Controller, *recorder) {
	t.Helper()

	dir := t.TempDir()
	defs := []catalog.Definition{{
		Name:    "missing",
		Dir:     dir,
		Command: filepath.Join(dir, "no-such-binary"),
		Port:    9999,
	}}
	port := 9000
	for name, script := range fixtures {
		path := filepath.Join(dir, name+".sh")
		require.NoError(t, os.WriteFile(path, []byte(script+"\n"), 0o755))
		port++
		defs = append(defs, catalog.Definition{
			Name:    name,
			Dir:     dir,
			Command: "/bin/sh",
			Args:    []string{path},
			Port:    port,
		})
	}

	rec := &recorder{}
	opts = append([]Option{WithObserver(rec), WithStopTimeout(2 * time.Second)}, opts...)
	c := NewController(NewRegistry(testCatalog(t, defs...)), opts...)

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = c.StopAll(ctx)
		for _, r := range c.Registry().Records() {
			c.release(r)
		}
	})
	return c, rec
}

func waitForLogs(t *testing.T, c *Controller, name string, n int) []string {
	t.Helper()
	var logs []string
	require.Eventually(t, func() bool {
		snap, err := c.ViewLogs(name, LogBufferSize)
		if err != nil {
			return false
		}
		logs = snap.Logs
		return len(logs) >= n
	}, 5*time.Second, 10*time.Millisecond, "waiting for %d lines from %s", n, name)
	return logs
}

func TestUnknownServiceEverywhere(t *testing.T) {
	c, _ := newTestController(t)
	ctx := context.Background()

	ops := map[string]func() error{
		"start":   func() error { _, err := c.Start(ctx, "nope"); return err },
		"stop":    func() error { _, err := c.Stop(ctx, "nope"); return err },
		"restart": func() error { _, err := c.Restart(ctx, "nope"); return err },
		"status":  func() error { _, err := c.Status(ctx, "nope"); return err },
		"logs":    func() error { _, err := c.ViewLogs("nope", 10); return err },
		"follow":  func() error { _, _, _, err := c.FollowLogs("nope", 10, 1); return err },
	}
	for name, op := range ops {
		t.Run(name, func(t *testing.T) {
			assert.ErrorIs(t, op(), ErrUnknownService)
		})
	}

	_, ok := c.Registry().Lookup("nope")
	assert.False(t, ok, "no record may be created for an unknown name")
}

func TestStartStatusStop(t *testing.T) {
	c, rec := newTestController(t)
	ctx := context.Background()

	started, err := c.Start(ctx, "echo")
	require.NoError(t, err)
	assert.Equal(t, MessageStarted, started.Message)
	assert.True(t, started.Running)
	require.NotNil(t, started.PID)
	require.NotNil(t, started.UptimeSeconds)

	// The reported pid is a live OS process.
	require.NoError(t, unix.Kill(*started.PID, 0))

	status, err := c.Status(ctx, "echo")
	require.NoError(t, err)
	assert.True(t, status.Running)
	assert.Equal(t, *started.PID, *status.PID)
	assert.Empty(t, status.Message)

	assert.Equal(t, []string{"line-1", "line-2"}, waitForLogs(t, c, "echo", 2))

	stopped, err := c.Stop(ctx, "echo")
	require.NoError(t, err)
	assert.Equal(t, MessageStopped, stopped.Message)
	assert.False(t, stopped.Running)
	assert.Nil(t, stopped.PID)
	assert.Nil(t, stopped.UptimeSeconds)

	r, ok := c.Registry().Lookup("echo")
	require.True(t, ok)
	assert.False(t, r.captureActive(), "capture must be joined after stop")

	// Logs survive the stop until the next start.
	logs, err := c.ViewLogs("echo", 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"line-1", "line-2"}, logs.Logs)

	assert.Equal(t, []EventKind{EventStarted, EventStopped}, rec.kinds("echo"))
	last := rec.last("echo")
	assert.Equal(t, *started.PID, last.PID)
	assert.NotEmpty(t, last.ID)
}

func TestStartIsIdempotent(t *testing.T) {
	c, _ := newTestController(t)
	ctx := context.Background()

	first, err := c.Start(ctx, "echo")
	require.NoError(t, err)

	second, err := c.Start(ctx, "echo")
	require.NoError(t, err)
	assert.Equal(t, MessageAlreadyRunning, second.Message)
	assert.True(t, second.Running)
	assert.Equal(t, *first.PID, *second.PID)
}

func TestStopWhenNotRunning(t *testing.T) {
	c, rec := newTestController(t)
	ctx := context.Background()

	snap, err := c.Stop(ctx, "echo")
	require.NoError(t, err)
	assert.Equal(t, MessageNotRunning, snap.Message)
	assert.False(t, snap.Running)

	_, err = c.Start(ctx, "echo")
	require.NoError(t, err)
	_, err = c.Stop(ctx, "echo")
	require.NoError(t, err)

	again, err := c.Stop(ctx, "echo")
	require.NoError(t, err)
	assert.Equal(t, MessageNotRunning, again.Message)
	assert.Equal(t, []EventKind{EventStarted, EventStopped}, rec.kinds("echo"))
}

func TestStopEscalatesToKill(t *testing.T) {
	c, rec := newTestController(t, WithStopTimeout(300*time.Millisecond))
	ctx := context.Background()

	started, err := c.Start(ctx, "stubborn")
	require.NoError(t, err)
	waitForLogs(t, c, "stubborn", 1)

	begin := time.Now()
	snap, err := c.Stop(ctx, "stubborn")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(begin), 300*time.Millisecond)

	assert.Equal(t, MessageStopped, snap.Message)
	assert.False(t, snap.Running)
	assert.ErrorIs(t, unix.Kill(*started.PID, 0), unix.ESRCH)

	ev := rec.last("stubborn")
	assert.Equal(t, EventKilled, ev.Kind)
	require.NotNil(t, ev.ExitCode)
	assert.Equal(t, -1, *ev.ExitCode, "signalled processes report -1")
	assert.GreaterOrEqual(t, ev.StopSeconds, 0.3)
}

func TestStopCancelledContextKills(t *testing.T) {
	c, rec := newTestController(t, WithStopTimeout(time.Minute))

	_, err := c.Start(context.Background(), "stubborn")
	require.NoError(t, err)
	waitForLogs(t, c, "stubborn", 1)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	snap, err := c.Stop(ctx, "stubborn")
	require.NoError(t, err)
	assert.False(t, snap.Running)
	assert.Equal(t, EventKilled, rec.last("stubborn").Kind)
}

func TestRestartGivesNewProcess(t *testing.T) {
	c, rec := newTestController(t)
	ctx := context.Background()

	first, err := c.Start(ctx, "echo")
	require.NoError(t, err)
	waitForLogs(t, c, "echo", 2)

	second, err := c.Restart(ctx, "echo")
	require.NoError(t, err)
	assert.Equal(t, MessageStarted, second.Message)
	assert.True(t, second.Running)
	assert.NotEqual(t, *first.PID, *second.PID)

	// The buffer was cleared on start, so only the new run's lines are held.
	assert.Equal(t, []string{"line-1", "line-2"}, waitForLogs(t, c, "echo", 2))
	assert.Equal(t, []EventKind{EventStarted, EventStopped, EventStarted}, rec.kinds("echo"))
}

func TestRestartFromStopped(t *testing.T) {
	c, _ := newTestController(t)

	snap, err := c.Restart(context.Background(), "echo")
	require.NoError(t, err)
	assert.Equal(t, MessageStarted, snap.Message)
	assert.True(t, snap.Running)
}

func TestSpawnFailure(t *testing.T) {
	c, rec := newTestController(t)

	snap, err := c.Start(context.Background(), "missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSpawn)

	var spawnErr *SpawnError
	require.ErrorAs(t, err, &spawnErr)
	assert.Equal(t, "missing", spawnErr.Name)

	assert.Equal(t, "missing", snap.Service)
	assert.False(t, snap.Running)
	assert.Nil(t, snap.PID)
	assert.Equal(t, []EventKind{EventSpawnFailed}, rec.kinds("missing"))
}

func TestUnexpectedExit(t *testing.T) {
	c, rec := newTestController(t)
	ctx := context.Background()

	_, err := c.Start(ctx, "crash")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		s, _ := c.Status(ctx, "crash")
		return !s.Running
	}, 5*time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		return slices.Contains(rec.kinds("crash"), EventExited)
	}, time.Second, 5*time.Millisecond)

	ev := rec.last("crash")
	require.NotNil(t, ev.ExitCode)
	assert.Equal(t, 3, *ev.ExitCode)

	snap, err := c.Stop(ctx, "crash")
	require.NoError(t, err)
	assert.Equal(t, MessageNotRunning, snap.Message)

	r, _ := c.Registry().Lookup("crash")
	assert.False(t, r.captureActive())

	logs, err := c.ViewLogs("crash", 5)
	require.NoError(t, err)
	assert.Equal(t, []string{"bye"}, logs.Logs)
}

func TestViewLogsClampsAndEvicts(t *testing.T) {
	c, _ := newTestController(t)

	_, err := c.Start(context.Background(), "flood")
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		r, _ := c.Registry().Lookup("flood")
		return r.Logs().Appended() == 501
	}, 5*time.Second, 10*time.Millisecond)
	logs := waitForLogs(t, c, "flood", LogBufferSize)
	assert.Equal(t, "line-2", logs[0])
	assert.Equal(t, "line-501", logs[len(logs)-1])

	tests := []struct {
		requested int
		want      int
	}{
		{10000, LogBufferSize},
		{0, 1},
		{-5, 1},
		{3, 3},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.requested), func(t *testing.T) {
			snap, err := c.ViewLogs("flood", tt.requested)
			require.NoError(t, err)
			assert.Equal(t, tt.want, snap.LinesRequested)
			assert.Equal(t, tt.want, snap.LinesReturned)
			assert.Len(t, snap.Logs, tt.want)
			assert.Equal(t, "line-501", snap.Logs[len(snap.Logs)-1])
		})
	}
}

func TestViewLogsNeverStarted(t *testing.T) {
	c, _ := newTestController(t)

	snap, err := c.ViewLogs("echo", 50)
	require.NoError(t, err)
	assert.Equal(t, 50, snap.LinesRequested)
	assert.Equal(t, 0, snap.LinesReturned)
	assert.NotNil(t, snap.Logs)
	assert.Empty(t, snap.Logs)
}

func TestInvalidBytesAreReplaced(t *testing.T) {
	c, _ := newTestController(t)

	_, err := c.Start(context.Background(), "invalid")
	require.NoError(t, err)
	assert.Equal(t, []string{"ok�done"}, waitForLogs(t, c, "invalid", 1))
}

func TestFollowLogsSeesNewLines(t *testing.T) {
	c, _ := newTestController(t)

	backlog, lines, cancel, err := c.FollowLogs("echo", 10, 16)
	require.NoError(t, err)
	defer cancel()
	assert.Empty(t, backlog)

	_, err = c.Start(context.Background(), "echo")
	require.NoError(t, err)

	for _, want := range []string{"line-1", "line-2"} {
		select {
		case got := <-lines:
			assert.Equal(t, want, got)
		case <-time.After(5 * time.Second):
			t.Fatalf("no line %q from follower", want)
		}
	}
}

func TestConcurrentStopsSignalOnce(t *testing.T) {
	c, rec := newTestController(t)
	ctx := context.Background()

	_, err := c.Start(ctx, "echo")
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make([]StatusSnapshot, 4)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = c.Stop(ctx, "echo")
		}(i)
	}
	wg.Wait()

	var stopped int
	for _, r := range results {
		assert.False(t, r.Running)
		if r.Message == MessageStopped {
			stopped++
		} else {
			assert.Equal(t, MessageNotRunning, r.Message)
		}
	}
	assert.Equal(t, 1, stopped)
	assert.Equal(t, []EventKind{EventStarted, EventStopped}, rec.kinds("echo"))
}

func TestServicesAreIndependent(t *testing.T) {
	c, _ := newTestController(t, WithStopTimeout(time.Second))
	ctx := context.Background()

	_, err := c.Start(ctx, "stubborn")
	require.NoError(t, err)
	waitForLogs(t, c, "stubborn", 1)
	_, err = c.Start(ctx, "echo")
	require.NoError(t, err)

	stopDone := make(chan struct{})
	go func() {
		defer close(stopDone)
		_, _ = c.Stop(ctx, "stubborn")
	}()

	// While stubborn sits in its grace window, echo and stubborn's own status
	// still answer at once.
	time.Sleep(100 * time.Millisecond)
	begin := time.Now()
	s, err := c.Status(ctx, "echo")
	require.NoError(t, err)
	assert.True(t, s.Running)
	_, err = c.Status(ctx, "stubborn")
	require.NoError(t, err)
	assert.Less(t, time.Since(begin), 200*time.Millisecond)

	<-stopDone
}

func TestUptimeUsesClock(t *testing.T) {
	var mu sync.Mutex
	now := testNow
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	c, _ := newTestController(t, WithClock(clock))
	ctx := context.Background()

	_, err := c.Start(ctx, "echo")
	require.NoError(t, err)

	mu.Lock()
	now = now.Add(12340 * time.Millisecond)
	mu.Unlock()

	s, err := c.Status(ctx, "echo")
	require.NoError(t, err)
	require.NotNil(t, s.UptimeSeconds)
	assert.Equal(t, 12.3, *s.UptimeSeconds)
}
