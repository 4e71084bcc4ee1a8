package supervisor

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"strings"
	"time"
	"unicode/utf8"
)

// captureTask drains one process's combined output into a LogBuffer. It is
// bound to exactly one process handle and dies with it.
type captureTask struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// startCapture reads src line by line on its own goroutine. Cancelling the
// task closes src, which unblocks a pending read; src is closed exactly once
// on every exit path.
func startCapture(src io.ReadCloser, sink *LogBuffer) *captureTask {
	ctx, cancel := context.WithCancel(context.Background())
	t := &captureTask{
		cancel: cancel,
		done:   make(chan struct{}),
	}

	stopClose := context.AfterFunc(ctx, func() { _ = src.Close() })

	go func() {
		defer close(t.done)
		defer func() {
			if stopClose() {
				_ = src.Close()
			}
		}()

		reader := bufio.NewReader(src)
		for {
			line, err := reader.ReadBytes('\n')
			if len(line) > 0 && ctx.Err() == nil {
				sink.Append(decodeLine(line))
			}
			// EOF, or the stream was closed under us by cancel.
			if err != nil || ctx.Err() != nil {
				return
			}
		}
	}()

	return t
}

// captureDrain is how long stop lets the reader reach end of stream on its
// own before cancelling it, so the last lines of an exiting process are kept.
const captureDrain = 200 * time.Millisecond

// stop cancels the task and waits up to timeout for it to finish. It reports
// whether the goroutine finished in time.
func (t *captureTask) stop(timeout time.Duration) bool {
	drain := time.NewTimer(min(captureDrain, timeout))
	select {
	case <-t.done:
		drain.Stop()
		t.cancel()
		return true
	case <-drain.C:
	}

	t.cancel()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-t.done:
		return true
	case <-timer.C:
		return false
	}
}

// finished reports whether the reader goroutine has returned.
func (t *captureTask) finished() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

// decodeLine strips the line terminator and replaces each invalid UTF-8 byte
// with U+FFFD.
func decodeLine(b []byte) string {
	b = bytes.TrimSuffix(b, []byte("\n"))
	b = bytes.TrimSuffix(b, []byte("\r"))
	if utf8.Valid(b) {
		return string(b)
	}

	var sb strings.Builder
	sb.Grow(len(b) + 8)
	for len(b) > 0 {
		r, size := utf8.DecodeRune(b)
		if r == utf8.RuneError && size == 1 {
			sb.WriteRune(utf8.RuneError)
		} else {
			sb.Write(b[:size])
		}
		b = b[size:]
	}
	return sb.String()
}
