package eventrelay

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/url"
	"time"

	"github.com/vk/rfnocgo/internal/ctxlog"
	"github.com/zishang520/engine.io-client-go/transports"
	"github.com/zishang520/engine.io/v2/types"
	"github.com/zishang520/socket.io-client-go/socket"
)

// ConnectTimeout bounds the wait for the monitor to accept the connection.
const ConnectTimeout = 15 * time.Second

// ClientConfig selects the monitor to connect to.
type ClientConfig struct {
	URL                string
	Namespace          string
	InsecureSkipVerify bool
}

// Client is a connected socket.io client.
type Client struct {
	io *socket.Socket
}

var _ Emitter = (*Client)(nil)

// Dial connects to the monitor over WebSocket and waits for the connect
// event.
func Dial(ctx context.Context, cfg ClientConfig) (*Client, error) {
	logger := ctxlog.FromContext(ctx).With("component", "eventrelay", "url", cfg.URL)
	logger.Debug("Connecting to monitor...")

	parsedURL, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse URL: %w", err)
	}
	if parsedURL.Scheme == "" || parsedURL.Host == "" {
		return nil, fmt.Errorf("relay URL %q needs a scheme and a host", cfg.URL)
	}

	opts := socket.DefaultOptions()
	opts.SetPath(parsedURL.Path)
	if cfg.InsecureSkipVerify {
		logger.Warn("Skipping TLS certificate verification")
		opts.SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true})
	}
	opts.SetTransports(types.NewSet(transports.WebSocket))

	connectChan := make(chan error, 1)

	baseURL := fmt.Sprintf("%s://%s", parsedURL.Scheme, parsedURL.Host)
	manager := socket.NewManager(baseURL, opts)
	io := manager.Socket(cfg.Namespace, opts)

	io.Once(types.EventName("connect"), func(...any) {
		logger.Info("🔌 Connected to monitor", "sid", io.Id())
		connectChan <- nil
	})
	io.Once(types.EventName("connect_error"), func(errs ...any) {
		err, ok := errs[0].(error)
		if !ok {
			err = fmt.Errorf("%v", errs[0])
		}
		logger.Debug("connect_error event fired", "error", err)
		connectChan <- err
	})

	io.Connect()

	select {
	case err := <-connectChan:
		if err != nil {
			io.Disconnect()
			return nil, fmt.Errorf("socket.io connection failed: %w", err)
		}
		return &Client{io: io}, nil
	case <-ctx.Done():
		io.Disconnect()
		return nil, fmt.Errorf("context cancelled while waiting for socket.io connection")
	case <-time.After(ConnectTimeout):
		io.Disconnect()
		return nil, fmt.Errorf("timed out after %s waiting for socket.io connection", ConnectTimeout)
	}
}

// Emit sends payload under event. Messages sent while disconnected are
// buffered by the client.
func (c *Client) Emit(event string, payload any) {
	c.io.Emit(event, payload)
}

// Close disconnects from the monitor.
func (c *Client) Close() {
	c.io.Disconnect()
}
