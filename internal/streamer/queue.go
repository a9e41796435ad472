package streamer

import (
	"context"
	"sync"
	"time"

	"github.com/vk/rfnocgo/internal/action"
)

// DefaultQueueDepth bounds how many events wait for a reader.
const DefaultQueueDepth = 1000

// AsyncQueue buffers async events until a reader pops them. A full queue
// drops new events instead of blocking the sender, which runs inside action
// delivery.
type AsyncQueue struct {
	ch chan action.AsyncEvent

	mu      sync.Mutex
	dropped uint64
}

// NewAsyncQueue returns a queue holding up to depth events. A depth below
// one uses DefaultQueueDepth.
func NewAsyncQueue(depth int) *AsyncQueue {
	if depth < 1 {
		depth = DefaultQueueDepth
	}
	return &AsyncQueue{ch: make(chan action.AsyncEvent, depth)}
}

// Push enqueues ev and reports whether there was room.
func (q *AsyncQueue) Push(ev action.AsyncEvent) bool {
	select {
	case q.ch <- ev:
		return true
	default:
		q.mu.Lock()
		q.dropped++
		q.mu.Unlock()
		return false
	}
}

// Pop waits up to timeout for an event. A zero timeout polls. It returns
// false on timeout or when ctx is done.
func (q *AsyncQueue) Pop(ctx context.Context, timeout time.Duration) (action.AsyncEvent, bool) {
	select {
	case ev := <-q.ch:
		return ev, true
	default:
	}
	if timeout <= 0 {
		return action.AsyncEvent{}, false
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case ev := <-q.ch:
		return ev, true
	case <-timer.C:
		return action.AsyncEvent{}, false
	case <-ctx.Done():
		return action.AsyncEvent{}, false
	}
}

func (q *AsyncQueue) Len() int { return len(q.ch) }

// Dropped counts events lost to a full queue.
func (q *AsyncQueue) Dropped() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}
