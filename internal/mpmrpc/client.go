// Package mpmrpc is a small MessagePack-RPC client for the management
// daemon that runs on the device. Blocks use it for settings that live in
// firmware rather than in registers, such as the master clock rate.
//
// Requests are encoded as [0, msgid, method, params] and responses as
// [1, msgid, error, result]. Calls are serialized over a single connection.
package mpmrpc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/vk/rfnocgo/internal/ctxlog"
	"github.com/vmihailenco/msgpack/v5"
)

const (
	requestType  = 0
	responseType = 1

	// DefaultTimeout bounds one call when the context has no earlier deadline.
	DefaultTimeout = 2 * time.Second
)

var (
	// ErrRemote is wrapped around errors reported by the server.
	ErrRemote = errors.New("rpc server error")
	// ErrClosed is returned once the connection is gone and cannot be redialed.
	ErrClosed = errors.New("rpc connection closed")
)

type request struct {
	_msgpack struct{} `msgpack:",as_array"`
	Type     int
	MsgID    uint32
	Method   string
	Params   []any
}

type response struct {
	_msgpack struct{} `msgpack:",as_array"`
	Type     int
	MsgID    uint32
	Error    any
	Result   msgpack.RawMessage
}

// Client talks to one server over conn. A transport error or an out of
// order response drops the connection; the next call redials when the
// client knows how to.
type Client struct {
	mu      sync.Mutex
	conn    net.Conn
	enc     *msgpack.Encoder
	dec     *msgpack.Decoder
	nextID  uint32
	timeout time.Duration
	redial  func(ctx context.Context) (net.Conn, error)
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout overrides DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithRedial sets how a dropped connection is replaced.
func WithRedial(fn func(ctx context.Context) (net.Conn, error)) Option {
	return func(c *Client) { c.redial = fn }
}

// New wraps an established connection.
func New(conn net.Conn, opts ...Option) *Client {
	c := &Client{timeout: DefaultTimeout}
	c.attach(conn)
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) attach(conn net.Conn) {
	c.conn = conn
	c.enc = msgpack.NewEncoder(conn)
	c.dec = msgpack.NewDecoder(conn)
}

// dropLocked closes a connection whose stream can no longer be trusted.
func (c *Client) dropLocked() {
	if c.conn == nil {
		return
	}
	_ = c.conn.Close()
	c.conn, c.enc, c.dec = nil, nil, nil
}

func (c *Client) connectLocked(ctx context.Context) error {
	if c.conn != nil {
		return nil
	}
	if c.redial == nil {
		return ErrClosed
	}
	conn, err := c.redial(ctx)
	if err != nil {
		return fmt.Errorf("%w: redial: %w", ErrClosed, err)
	}
	ctxlog.FromContext(ctx).Debug("Reconnected to RPC server.", "component", "mpmrpc")
	c.attach(conn)
	return nil
}

// Dial connects to addr over TCP.
func Dial(ctx context.Context, addr string, opts ...Option) (*Client, error) {
	dial := func(ctx context.Context) (net.Conn, error) {
		var d net.Dialer
		conn, err := d.DialContext(ctx, "tcp", addr)
		if err != nil {
			return nil, fmt.Errorf("dialing rpc server %s: %w", addr, err)
		}
		return conn, nil
	}
	conn, err := dial(ctx)
	if err != nil {
		return nil, err
	}
	return New(conn, append([]Option{WithRedial(dial)}, opts...)...), nil
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.redial = nil
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn, c.enc, c.dec = nil, nil, nil
	return err
}

// CallInto invokes method and decodes the result into out, which may be nil
// to discard it.
func (c *Client) CallInto(ctx context.Context, out any, method string, args ...any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	logger := ctxlog.FromContext(ctx).With("component", "mpmrpc", "method", method)
	if err := c.connectLocked(ctx); err != nil {
		return fmt.Errorf("rpc %s: %w", method, err)
	}
	conn := c.conn

	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetDeadline(deadline); err != nil {
		c.dropLocked()
		return fmt.Errorf("rpc %s: setting deadline: %w", method, err)
	}
	defer conn.SetDeadline(time.Time{})

	c.nextID++
	id := c.nextID
	if args == nil {
		args = []any{}
	}
	logger.Debug("Sending RPC request.", "msgid", id)
	if err := c.enc.Encode(&request{Type: requestType, MsgID: id, Method: method, Params: args}); err != nil {
		c.dropLocked()
		return fmt.Errorf("rpc %s: sending request: %w", method, err)
	}

	var resp response
	if err := c.dec.Decode(&resp); err != nil {
		c.dropLocked()
		return fmt.Errorf("rpc %s: reading response: %w", method, err)
	}
	if resp.Type != responseType {
		c.dropLocked()
		return fmt.Errorf("rpc %s: unexpected message type %d", method, resp.Type)
	}
	if resp.MsgID != id {
		c.dropLocked()
		logger.Warn("Dropping RPC connection, response is out of sequence.", "msgid", id, "got", resp.MsgID)
		return fmt.Errorf("rpc %s: response id %d does not match request id %d", method, resp.MsgID, id)
	}
	if resp.Error != nil {
		logger.Warn("RPC call failed on the server.", "error", resp.Error)
		return fmt.Errorf("%w: %s: %v", ErrRemote, method, resp.Error)
	}
	if out == nil {
		return nil
	}
	if err := msgpack.Unmarshal(resp.Result, out); err != nil {
		return fmt.Errorf("rpc %s: decoding result: %w", method, err)
	}
	return nil
}

// Call invokes method and returns the result decoded into generic values.
func (c *Client) Call(ctx context.Context, method string, args ...any) (any, error) {
	var out any
	if err := c.CallInto(ctx, &out, method, args...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetMasterClockRate(ctx context.Context) (float64, error) {
	var rate float64
	if err := c.CallInto(ctx, &rate, "get_master_clock_rate"); err != nil {
		return 0, err
	}
	return rate, nil
}

// SetMasterClockRate asks the firmware for rate and returns the rate it
// actually configured.
func (c *Client) SetMasterClockRate(ctx context.Context, rate float64) (float64, error) {
	var actual float64
	if err := c.CallInto(ctx, &actual, "set_master_clock_rate", rate); err != nil {
		return 0, err
	}
	return actual, nil
}
