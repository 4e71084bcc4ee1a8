package supervisor

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogBufferEvictsOldest(t *testing.T) {
	b := NewLogBuffer(LogBufferSize)
	for i := 1; i <= LogBufferSize+1; i++ {
		b.Append(fmt.Sprintf("line-%d", i))
	}

	require.Equal(t, LogBufferSize, b.Len())
	got := b.Last(LogBufferSize)
	require.Len(t, got, LogBufferSize)
	assert.Equal(t, "line-2", got[0])
	assert.Equal(t, "line-501", got[len(got)-1])
	assert.NotContains(t, got, "line-1")
}

func TestLogBufferLast(t *testing.T) {
	b := NewLogBuffer(4)
	for _, l := range []string{"a", "b", "c"} {
		b.Append(l)
	}

	tests := []struct {
		name string
		n    int
		want []string
	}{
		{"fewer than held", 2, []string{"b", "c"}},
		{"exactly held", 3, []string{"a", "b", "c"}},
		{"more than held", 10, []string{"a", "b", "c"}},
		{"zero", 0, []string{}},
		{"negative", -1, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, b.Last(tt.n))
		})
	}
}

func TestLogBufferWrapsInOrder(t *testing.T) {
	b := NewLogBuffer(3)
	for _, l := range []string{"1", "2", "3", "4", "5"} {
		b.Append(l)
	}
	assert.Equal(t, []string{"3", "4", "5"}, b.Last(3))
	assert.Equal(t, []string{"5"}, b.Last(1))
}

func TestLogBufferResetKeepsCounter(t *testing.T) {
	b := NewLogBuffer(3)
	b.Append("x")
	b.Append("y")
	b.Reset()

	assert.Equal(t, 0, b.Len())
	assert.Empty(t, b.Last(3))
	assert.Equal(t, uint64(2), b.Appended())

	b.Append("z")
	assert.Equal(t, []string{"z"}, b.Last(3))
	assert.Equal(t, uint64(3), b.Appended())
}

func TestLogBufferFollow(t *testing.T) {
	b := NewLogBuffer(10)
	b.Append("old-1")
	b.Append("old-2")

	backlog, lines, cancel := b.Follow(1, 4)
	assert.Equal(t, []string{"old-2"}, backlog)

	b.Append("new-1")
	b.Append("new-2")
	assert.Equal(t, "new-1", <-lines)
	assert.Equal(t, "new-2", <-lines)

	cancel()
	cancel()
	_, open := <-lines
	assert.False(t, open, "channel should be closed after cancel")

	// Appending after cancel must not panic on the closed channel.
	b.Append("after")
}

func TestLogBufferSlowFollowerDoesNotBlock(t *testing.T) {
	b := NewLogBuffer(10)
	_, _, cancel := b.Follow(0, 1)
	defer cancel()

	for i := 0; i < 100; i++ {
		b.Append("spam")
	}
	assert.Equal(t, uint64(100), b.Appended())
}

func TestLogBufferConcurrentAppend(t *testing.T) {
	b := NewLogBuffer(LogBufferSize)

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				b.Append("line")
				_ = b.Last(10)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, uint64(1600), b.Appended())
	assert.Equal(t, LogBufferSize, b.Len())
}
