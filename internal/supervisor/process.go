package supervisor

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync/atomic"
	"time"

	"github.com/MrSnakeDoc/voicectl/internal/catalog"
)

// process is the handle of one spawned service process. A handle is never
// reused: each start creates a new one.
type process struct {
	cmd       *exec.Cmd
	pid       int
	startedAt time.Time

	// done is closed once the OS has reported the exit and the process is reaped.
	done     chan struct{}
	exitCode int

	// stopRequested is set by stop before signalling, so the exit watcher
	// can tell a requested stop from a crash.
	stopRequested atomic.Bool
}

// spawn launches def with stdout and stderr sharing one pipe and returns the
// handle plus the read end of that pipe. onExit runs on the watcher goroutine
// after the process has been reaped.
func spawn(def catalog.Definition, now time.Time, onExit func(*process)) (*process, *os.File, error) {
	r, w, err := os.Pipe()
	if err != nil {
		return nil, nil, fmt.Errorf("create output pipe: %w", err)
	}

	cmd := exec.Command(def.Command, def.Args...)
	cmd.Dir = def.Dir
	cmd.Env = append(os.Environ(), def.Env...)
	cmd.Stdout = w
	cmd.Stderr = w
	cmd.SysProcAttr = processGroupAttr()

	if err := cmd.Start(); err != nil {
		_ = r.Close()
		_ = w.Close()
		return nil, nil, err
	}
	// The child has its own copy of the write end; ours must go so the
	// reader sees EOF when the child exits.
	_ = w.Close()

	p := &process{
		cmd:       cmd,
		pid:       cmd.Process.Pid,
		startedAt: now,
		done:      make(chan struct{}),
		exitCode:  -1,
	}
	go p.wait(onExit)

	return p, r, nil
}

func (p *process) wait(onExit func(*process)) {
	err := p.cmd.Wait()

	code := -1
	if p.cmd.ProcessState != nil {
		code = p.cmd.ProcessState.ExitCode()
	} else {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			code = exitErr.ExitCode()
		}
	}
	p.exitCode = code
	close(p.done)

	if onExit != nil {
		onExit(p)
	}
}

// alive reports whether the OS has not yet reported the process exit.
func (p *process) alive() bool {
	select {
	case <-p.done:
		return false
	default:
		return true
	}
}

// ExitCode is only meaningful after done is closed.
func (p *process) ExitCode() int {
	<-p.done
	return p.exitCode
}
