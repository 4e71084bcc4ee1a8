package supervisor

import (
	"sync"
	"sync/atomic"
)

// LogBufferSize is the number of output lines kept per service.
const LogBufferSize = 500

// LogBuffer is a fixed-capacity ring of text lines. When full, appending
// evicts the oldest line. It is safe for concurrent use.
type LogBuffer struct {
	mu    sync.RWMutex
	lines []string
	head  int // next write position
	size  int

	// appended counts every line ever written, across resets.
	appended atomic.Uint64

	followers map[chan string]struct{}
}

// NewLogBuffer creates a buffer holding at most capacity lines.
func NewLogBuffer(capacity int) *LogBuffer {
	if capacity <= 0 {
		capacity = 1
	}
	return &LogBuffer{
		lines:     make([]string, capacity),
		followers: make(map[chan string]struct{}),
	}
}

// Append adds a line, dropping the oldest one if the buffer is full.
// Followers that are not keeping up miss the line rather than stall the
// writer.
func (b *LogBuffer) Append(line string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.lines[b.head] = line
	b.head = (b.head + 1) % len(b.lines)
	if b.size < len(b.lines) {
		b.size++
	}
	b.appended.Add(1)

	for ch := range b.followers {
		select {
		case ch <- line:
		default:
		}
	}
}

// Last returns up to n of the most recent lines, oldest first.
func (b *LogBuffer) Last(n int) []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastLocked(n)
}

func (b *LogBuffer) lastLocked(n int) []string {
	if n > b.size {
		n = b.size
	}
	if n < 0 {
		n = 0
	}

	out := make([]string, n)
	start := b.head - n
	if start < 0 {
		start += len(b.lines)
	}
	for i := 0; i < n; i++ {
		out[i] = b.lines[(start+i)%len(b.lines)]
	}
	return out
}

// Len returns the number of lines currently held.
func (b *LogBuffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.size
}

// Cap returns the buffer capacity.
func (b *LogBuffer) Cap() int { return len(b.lines) }

// Appended returns the total number of lines ever appended.
func (b *LogBuffer) Appended() uint64 { return b.appended.Load() }

// Reset drops all held lines. Followers stay subscribed.
func (b *LogBuffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	clear(b.lines)
	b.head = 0
	b.size = 0
}

// Follow returns the last n lines and a channel receiving every line appended
// afterwards, with no gap between the two. cancel must be called to release
// the subscription; it closes the channel.
func (b *LogBuffer) Follow(n, queue int) (backlog []string, lines <-chan string, cancel func()) {
	if queue < 1 {
		queue = 1
	}
	ch := make(chan string, queue)

	b.mu.Lock()
	backlog = b.lastLocked(n)
	b.followers[ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	cancel = func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.followers, ch)
			b.mu.Unlock()
			close(ch)
		})
	}
	return backlog, ch, cancel
}
