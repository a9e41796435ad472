package eventrelay

import (
	"context"
	"sync"
	"time"

	"github.com/vk/rfnocgo/internal/action"
	"github.com/vk/rfnocgo/internal/ctxlog"
	"github.com/vk/rfnocgo/internal/streamer"
)

const (
	// DefaultEvent is the socket.io event name messages are emitted under.
	DefaultEvent = "async_event"
	// DefaultPollInterval bounds how long one queue read blocks.
	DefaultPollInterval = 100 * time.Millisecond
)

// Emitter sends one event to the monitor.
type Emitter interface {
	Emit(event string, payload any)
}

// Source is a named queue to drain.
type Source struct {
	Name  string
	Queue *streamer.AsyncQueue
}

// Message is the payload of one emitted event.
type Message struct {
	Streamer string   `json:"streamer"`
	Code     string   `json:"code"`
	Channel  int      `json:"channel"`
	Time     *float64 `json:"time,omitempty"`
}

// NewMessage converts an async event.
func NewMessage(source string, ev action.AsyncEvent) Message {
	m := Message{Streamer: source, Code: ev.Code.String(), Channel: ev.Channel}
	if ev.Time != nil {
		secs := ev.Time.Seconds()
		m.Time = &secs
	}
	return m
}

// Relay drains streamer queues into an Emitter.
type Relay struct {
	emitter Emitter
	event   string
	poll    time.Duration
}

// Option configures a Relay.
type Option func(*Relay)

// WithEvent overrides DefaultEvent.
func WithEvent(name string) Option {
	return func(r *Relay) {
		if name != "" {
			r.event = name
		}
	}
}

// WithPollInterval overrides DefaultPollInterval.
func WithPollInterval(d time.Duration) Option {
	return func(r *Relay) {
		if d > 0 {
			r.poll = d
		}
	}
}

// New creates a relay that emits through e.
func New(e Emitter, opts ...Option) *Relay {
	r := &Relay{emitter: e, event: DefaultEvent, poll: DefaultPollInterval}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run drains every source until ctx is done. It returns the number of
// emitted messages.
func (r *Relay) Run(ctx context.Context, sources []Source) int {
	logger := ctxlog.FromContext(ctx).With("component", "eventrelay")
	logger.Info("📡 Relaying async events.", "sources", len(sources), "event", r.event)

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		total int
	)
	for _, src := range sources {
		wg.Add(1)
		go func(src Source) {
			defer wg.Done()
			n := r.drain(ctx, src)
			mu.Lock()
			total += n
			mu.Unlock()
		}(src)
	}
	wg.Wait()

	logger.Debug("Event relay stopped.", "emitted", total)
	return total
}

func (r *Relay) drain(ctx context.Context, src Source) int {
	logger := ctxlog.FromContext(ctx).With("streamer", src.Name)
	emitted := 0
	for ctx.Err() == nil {
		ev, ok := src.Queue.Pop(ctx, r.poll)
		if !ok {
			continue
		}
		msg := NewMessage(src.Name, ev)
		logger.Debug("Emitting async event.", "code", msg.Code, "channel", msg.Channel)
		r.emitter.Emit(r.event, msg)
		emitted++
	}
	return emitted
}
