package streamer

import (
	"context"
	"time"

	"github.com/vk/rfnocgo/internal/action"
	"github.com/vk/rfnocgo/internal/ctxlog"
	"github.com/vk/rfnocgo/internal/node"
	"github.com/vk/rfnocgo/internal/property"
)

// Edge properties a streamer picks up from its neighbour.
const (
	PropSampRate = "samp_rate"
	PropTickRate = "tick_rate"
	PropMTU      = "mtu"
)

type endpoint struct {
	*node.Node
	port   property.SourceInfo
	events *AsyncQueue

}

func newEndpoint(id string, numIn, numOut int, port property.SourceInfo, eventKey string, depth int) *endpoint {
	e := &endpoint{
		Node:   node.New(id, numIn, numOut),
		port:   port,
		events: NewAsyncQueue(depth),
	}
	e.RegisterProperty(property.NewUnset[float64](PropSampRate, port))
	e.RegisterProperty(property.NewUnset[float64](PropTickRate, port))
	e.RegisterProperty(property.NewUnset[uint64](PropMTU, port))
	e.SetPropForwardingPolicy(node.Drop, "")
	e.SetActionForwardingPolicy(node.Drop, "")
	e.RegisterActionHandler(eventKey, func(ctx context.Context, src property.SourceInfo, a *action.Info) error {
		if a.Event == nil {
			return nil
		}
		logger := ctxlog.FromContext(ctx).With("streamer", id)
		if !e.events.Push(*a.Event) {
			logger.Warn("Async message queue is full, dropping event.", "event", a.Event.String())
			return nil
		}
		logger.Debug("Queued async event.", "event", a.Event.String())
		return nil
	})
	return e
}

func (e *endpoint) edgeValue(id string) any {
	for _, v := range e.Snapshot() {
		if v.ID == id && v.Source == e.port {
			return v.Value
		}
	}
	return nil
}

// SampRate returns the rate negotiated on the streamer's edge, if any.
func (e *endpoint) SampRate() (float64, bool) {
	v, ok := e.edgeValue(PropSampRate).(float64)
	return v, ok
}

// MTU returns the MTU negotiated on the streamer's edge, if any.
func (e *endpoint) MTU() (uint64, bool) {
	v, ok := e.edgeValue(PropMTU).(uint64)
	return v, ok
}

// RecvAsyncMsg pops the next async event, waiting up to timeout.
func (e *endpoint) RecvAsyncMsg(ctx context.Context, timeout time.Duration) (action.AsyncEvent, bool) {
	return e.events.Pop(ctx, timeout)
}

// Queue exposes the event queue, for relaying events elsewhere.
func (e *endpoint) Queue() *AsyncQueue { return e.events }

// RxStreamer sits at the end of a receive chain with a single input port.
type RxStreamer struct {
	*endpoint
}

// NewRxStreamer creates an RX streamer. depth bounds its event queue.
func NewRxStreamer(id string, depth int) *RxStreamer {
	return &RxStreamer{endpoint: newEndpoint(id, 1, 0, property.InputEdgeSource(0), action.KeyRxEvent, depth)}
}

// IssueStreamCmd sends cmd upstream towards the radio.
func (s *RxStreamer) IssueStreamCmd(ctx context.Context, cmd action.StreamCommand) error {
	ctxlog.FromContext(ctx).Info("▶️ Issuing stream command.", "streamer", s.ID(), "command", cmd.String())
	return s.PostAction(ctx, s.port, action.NewStreamCmd(cmd))
}

// TxStreamer feeds a transmit chain through a single output port.
type TxStreamer struct {
	*endpoint
}

func NewTxStreamer(id string, depth int) *TxStreamer {
	return &TxStreamer{endpoint: newEndpoint(id, 0, 1, property.OutputEdgeSource(0), action.KeyTxEvent, depth)}
}

// IssueStreamCmd sends cmd downstream, for blocks that accept timed bursts.
func (s *TxStreamer) IssueStreamCmd(ctx context.Context, cmd action.StreamCommand) error {
	ctxlog.FromContext(ctx).Info("▶️ Issuing stream command.", "streamer", s.ID(), "command", cmd.String())
	return s.PostAction(ctx, s.port, action.NewStreamCmd(cmd))
}
