// Package action defines the messages that travel through a graph
// independently of property resolution: stream commands flowing towards
// radios and asynchronous events flowing back towards streamers.
package action

import (
	"fmt"
	"sync/atomic"
)

// Well-known action keys.
const (
	KeyStreamCmd = "stream_cmd"
	KeyRxEvent   = "rx_event"
	KeyTxEvent   = "tx_event"
)

// Kind selects which payload an Info carries.
type Kind int

const (
	Generic Kind = iota
	StreamCommandKind
	AsyncEventKind
)

func (k Kind) String() string {
	switch k {
	case Generic:
		return "generic"
	case StreamCommandKind:
		return "stream_command"
	case AsyncEventKind:
		return "async_event"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

var nextID atomic.Uint64

// Info is the envelope shared by every action. Exactly one of StreamCmd and
// Event is set, matching Kind.
type Info struct {
	ID      uint64
	Key     string
	Kind    Kind
	Payload []byte

	StreamCmd *StreamCommand
	Event     *AsyncEvent
}

// New creates a generic action carrying an opaque payload.
func New(key string, payload []byte) *Info {
	return &Info{ID: nextID.Add(1), Key: key, Kind: Generic, Payload: payload}
}

// NewStreamCmd wraps a stream command under the stream_cmd key.
func NewStreamCmd(cmd StreamCommand) *Info {
	return &Info{ID: nextID.Add(1), Key: KeyStreamCmd, Kind: StreamCommandKind, StreamCmd: &cmd}
}

// NewAsyncEvent wraps an event under key (usually rx_event or tx_event).
func NewAsyncEvent(key string, ev AsyncEvent) *Info {
	return &Info{ID: nextID.Add(1), Key: key, Kind: AsyncEventKind, Event: &ev}
}

// Clone returns a copy with a fresh id. Handlers that rewrite a payload
// before forwarding it clone first so other recipients see it unchanged.
func (a *Info) Clone() *Info {
	c := *a
	c.ID = nextID.Add(1)
	if a.Payload != nil {
		c.Payload = append([]byte(nil), a.Payload...)
	}
	if a.StreamCmd != nil {
		cmd := *a.StreamCmd
		c.StreamCmd = &cmd
	}
	if a.Event != nil {
		ev := *a.Event
		c.Event = &ev
	}
	return &c
}

func (a *Info) String() string {
	switch a.Kind {
	case StreamCommandKind:
		return fmt.Sprintf("%s#%d(%s)", a.Key, a.ID, a.StreamCmd)
	case AsyncEventKind:
		return fmt.Sprintf("%s#%d(%s)", a.Key, a.ID, a.Event)
	default:
		return fmt.Sprintf("%s#%d", a.Key, a.ID)
	}
}

// TimeSpec is a device timestamp split into whole and fractional seconds.
// A nil *TimeSpec means "as soon as possible".
type TimeSpec struct {
	FullSecs int64
	FracSecs float64
}

func (t TimeSpec) Seconds() float64 {
	return float64(t.FullSecs) + t.FracSecs
}

// StreamMode selects how a radio streams after receiving a command.
type StreamMode int

const (
	StartContinuous StreamMode = iota
	StopContinuous
	NumSampsAndDone
	NumSampsAndMore
)

func (m StreamMode) String() string {
	switch m {
	case StartContinuous:
		return "START_CONTINUOUS"
	case StopContinuous:
		return "STOP_CONTINUOUS"
	case NumSampsAndDone:
		return "NUM_SAMPS_AND_DONE"
	case NumSampsAndMore:
		return "NUM_SAMPS_AND_MORE"
	default:
		return fmt.Sprintf("MODE(%d)", int(m))
	}
}

// StreamCommand asks the radio at the far end of the chain to start or stop
// producing samples.
type StreamCommand struct {
	Mode      StreamMode
	NumSamps  uint64
	StreamNow bool
	Time      *TimeSpec
}

func (c *StreamCommand) String() string {
	if c == nil {
		return "<nil>"
	}
	return fmt.Sprintf("%s num_samps=%d now=%t", c.Mode, c.NumSamps, c.StreamNow)
}

// EventCode classifies an asynchronous event.
type EventCode int

const (
	BurstAck EventCode = iota
	Underflow
	UnderflowInPacket
	SeqError
	SeqErrorInBurst
	Overflow
	TimeError
	UserPayload
)

func (c EventCode) String() string {
	switch c {
	case BurstAck:
		return "BURST_ACK"
	case Underflow:
		return "UNDERFLOW"
	case UnderflowInPacket:
		return "UNDERFLOW_IN_PACKET"
	case SeqError:
		return "SEQ_ERROR"
	case SeqErrorInBurst:
		return "SEQ_ERROR_IN_BURST"
	case Overflow:
		return "OVERFLOW"
	case TimeError:
		return "TIME_ERROR"
	case UserPayload:
		return "USER_PAYLOAD"
	default:
		return fmt.Sprintf("EVENT(%d)", int(c))
	}
}

// AsyncEvent reports something that happened on the data path.
type AsyncEvent struct {
	Code    EventCode
	Channel int
	Time    *TimeSpec
}

func (e *AsyncEvent) String() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("%s chan=%d", e.Code, e.Channel)
}
