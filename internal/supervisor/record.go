package supervisor

import (
	"math"
	"sync"
	"time"

	"github.com/MrSnakeDoc/voicectl/internal/catalog"
)

// Status messages carried by lifecycle snapshots.
const (
	MessageAlreadyRunning = "Already running"
	MessageStarted        = "Started"
	MessageNotRunning     = "Not running"
	MessageStopped        = "Stopped"
)

// StatusSnapshot is the view of one service returned by every lifecycle
// operation.
type StatusSnapshot struct {
	Service       string   `json:"service"`
	Running       bool     `json:"running"`
	PID           *int     `json:"pid"`
	Port          int      `json:"port"`
	UptimeSeconds *float64 `json:"uptime_seconds"`
	Message       string   `json:"message,omitempty"`
}

// LogSnapshot is the result of ViewLogs.
type LogSnapshot struct {
	Service        string   `json:"service"`
	LinesRequested int      `json:"lines_requested"`
	LinesReturned  int      `json:"lines_returned"`
	Logs           []string `json:"logs"`
}

// Record is the supervisor's state for one named service. It is created on
// first lookup and lives as long as the registry.
type Record struct {
	def  catalog.Definition
	logs *LogBuffer

	// lifecycle serializes start, stop and restart for this service. It can
	// be held for the whole grace window of a stop.
	lifecycle sync.Mutex

	// mu guards proc and capture and is only held briefly, so status and log
	// reads never wait on a stop in progress.
	mu      sync.RWMutex
	proc    *process
	capture *captureTask
}

func newRecord(def catalog.Definition) *Record {
	return &Record{
		def:  def,
		logs: NewLogBuffer(LogBufferSize),
	}
}

// Name returns the service name.
func (r *Record) Name() string { return r.def.Name }

// Definition returns the static definition the record was created from.
func (r *Record) Definition() catalog.Definition { return r.def }

// Logs returns the record's output buffer.
func (r *Record) Logs() *LogBuffer { return r.logs }

// Running reports whether the current process is alive.
func (r *Record) Running() bool {
	p := r.current()
	return p != nil && p.alive()
}

func (r *Record) current() *process {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.proc
}

// attach installs a freshly spawned process and its capture task.
func (r *Record) attach(p *process, c *captureTask) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.proc = p
	r.capture = c
}

// detach clears the handle and returns what was installed.
func (r *Record) detach() (*process, *captureTask) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, c := r.proc, r.capture
	r.proc, r.capture = nil, nil
	return p, c
}

// captureActive reports whether a capture goroutine is still reading.
func (r *Record) captureActive() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.capture != nil && !r.capture.finished()
}

// snapshot derives the current status; running is read from the process
// handle every call.
func (r *Record) snapshot(now time.Time, message string) StatusSnapshot {
	s := StatusSnapshot{
		Service: r.def.Name,
		Port:    r.def.Port,
		Message: message,
	}

	p := r.current()
	if p == nil || !p.alive() {
		return s
	}

	pid := p.pid
	uptime := math.Round(now.Sub(p.startedAt).Seconds()*10) / 10
	s.Running = true
	s.PID = &pid
	s.UptimeSeconds = &uptime
	return s
}
