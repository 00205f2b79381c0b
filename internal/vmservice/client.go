// Package vmservice is a JSON-RPC 2.0 client for the Dart VM service
// WebSocket endpoint. It correlates calls with responses through a
// tracker and classifies unsolicited stream notifications into typed
// domain events.
package vmservice

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ftermdev/fterm/internal/errors"
	"github.com/ftermdev/fterm/internal/protocol"
	"github.com/ftermdev/fterm/internal/tracker"
)

const (
	// eventQueueSize bounds the classified event stream.
	eventQueueSize = 256

	// staleSweepInterval is how often pending requests are swept.
	staleSweepInterval = 30 * time.Second

	// staleRequestAge is the age past which a pending request with no
	// response is abandoned by the sweep.
	staleRequestAge = 2 * time.Minute

	// codeStreamAlreadySubscribed is the VM service error for a repeated
	// streamListen; harmless.
	codeStreamAlreadySubscribed = 103
)

// Client is one VM service connection. All methods are safe for
// concurrent use.
type Client struct {
	log     *slog.Logger
	conn    *websocket.Conn
	tracker *tracker.Tracker[*protocol.Response]
	events  chan protocol.DomainEvent

	writeMu sync.Mutex

	errMu    sync.RWMutex
	fatalErr error

	closing   atomic.Bool
	closeOnce sync.Once
	done      chan struct{}
	wg        sync.WaitGroup
}

// Dial connects to the VM service WebSocket URI and starts the read
// pump and the stale-request sweeper.
func Dial(ctx context.Context, log *slog.Logger, uri string) (*Client, error) {
	log = log.With("component", "vm_service")
	log.Info("Connecting to VM service", "uri", uri)

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, uri, nil)
	if err != nil {
		log.Error("VM service dial failed", "uri", uri, "error", err)

		return nil, fmt.Errorf("dial vm service: %w", err)
	}

	c := &Client{
		log:     log,
		conn:    conn,
		tracker: tracker.New[*protocol.Response](),
		events:  make(chan protocol.DomainEvent, eventQueueSize),
		done:    make(chan struct{}),
	}

	c.events <- &protocol.ServiceConnectedEvent{URI: uri}

	c.wg.Add(2)

	go c.readLoop()
	go c.sweepLoop()

	log.Info("VM service connected")

	return c, nil
}

// Events returns the classified stream notification channel. It closes
// when the connection is lost or the client is closed.
func (c *Client) Events() <-chan protocol.DomainEvent {
	return c.events
}

// Done returns a channel closed when the client stops.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// FatalError returns the transport error that stopped the client, if any.
func (c *Client) FatalError() error {
	c.errMu.RLock()
	defer c.errMu.RUnlock()

	return c.fatalErr
}

// setFatalError stores the first transport error and wakes all waiters.
func (c *Client) setFatalError(err error) {
	c.errMu.Lock()

	if c.fatalErr == nil {
		c.fatalErr = err
	}

	c.errMu.Unlock()

	c.closeDone()
}

func (c *Client) closeDone() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

// Call sends one JSON-RPC request and waits for its correlated
// response, bounded by timeout. An error response with the
// method-not-found code comes back as ExtensionUnavailableError so
// callers can fall back to an older API; transport failures propagate
// immediately and terminally.
func (c *Client) Call(
	ctx context.Context,
	method string,
	params map[string]any,
	timeout time.Duration,
) (json.RawMessage, error) {
	select {
	case <-c.done:
		if err := c.FatalError(); err != nil {
			return nil, fmt.Errorf("transport error: %w", err)
		}

		return nil, errors.ErrClientClosed
	default:
	}

	id, responseCh := c.tracker.Register()

	req := map[string]any{
		"jsonrpc": "2.0",
		"id":      id,
		"method":  method,
	}

	if params != nil {
		req["params"] = params
	}

	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	c.log.Debug("Sending service request", "id", id, "method", method)

	c.writeMu.Lock()
	err = c.conn.WriteMessage(websocket.TextMessage, data)
	c.writeMu.Unlock()

	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}

	select {
	case resp := <-responseCh:
		if resp.Error != nil {
			if resp.Error.Code == errors.CodeMethodNotFound {
				c.log.Debug("Service extension not available", "method", method)

				return nil, &errors.ExtensionUnavailableError{Method: method}
			}

			return nil, resp.Error
		}

		return resp.Result, nil

	case <-time.After(timeout):
		c.log.Warn("Service request timed out", "id", id, "method", method, "timeout", timeout)

		return nil, fmt.Errorf("%s: %w after %s", method, errors.ErrRequestTimeout, timeout)

	case <-c.done:
		if err := c.FatalError(); err != nil {
			return nil, fmt.Errorf("transport error: %w", err)
		}

		return nil, errors.ErrClientClosed

	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// StreamListen subscribes to a VM service stream (Logging, GC,
// Extension, ...). Subscribing twice is harmless.
func (c *Client) StreamListen(ctx context.Context, streamID string, timeout time.Duration) error {
	_, err := c.Call(ctx, "streamListen", map[string]any{"streamId": streamID}, timeout)

	var rpcErr *errors.RPCError
	if stderrors.As(err, &rpcErr) && rpcErr.Code == codeStreamAlreadySubscribed {
		return nil
	}

	return err
}

// CallExtension invokes a service extension against an isolate.
func (c *Client) CallExtension(
	ctx context.Context,
	method string,
	isolateID string,
	params map[string]any,
	timeout time.Duration,
) (json.RawMessage, error) {
	merged := map[string]any{"isolateId": isolateID}

	for k, v := range params {
		merged[k] = v
	}

	return c.Call(ctx, method, merged, timeout)
}

// Close tears the connection down. Safe to call multiple times.
func (c *Client) Close() error {
	c.closing.Store(true)
	c.closeDone()

	err := c.conn.Close()

	c.wg.Wait()

	return err
}

// readLoop reads frames until the connection drops, completing
// responses and emitting classified events. A single unparseable frame
// is logged and skipped, never fatal to the stream.
func (c *Client) readLoop() {
	defer c.wg.Done()
	defer close(c.events)

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if c.closing.Load() {
				c.log.Debug("VM service connection closed")
			} else {
				c.log.Warn("VM service connection lost", "error", err)
				// Emit before closing done so the disconnect event is not
				// dropped by emit's shutdown guard.
				c.emit(&protocol.ServiceDisconnectedEvent{Err: err})
				c.setFatalError(err)
			}

			c.closeDone()

			return
		}

		switch msg := protocol.ParseServiceFrame(data).(type) {
		case *protocol.Response:
			if !c.tracker.Complete(msg.ID, msg) {
				c.log.Debug("Response with no pending request", "id", msg.ID)
			}

		case *protocol.Event:
			c.emit(protocol.ClassifyServiceEvent(msg))

		case *protocol.Unknown:
			c.log.Debug("Unclassifiable service frame", "frame", msg.Raw)
		}
	}
}

// sweepLoop periodically abandons long-hanging requests. Their callers
// have their own timeouts; this keeps the tracker map from growing.
func (c *Client) sweepLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(staleSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if stale := c.tracker.CleanupStale(staleRequestAge); len(stale) > 0 {
				c.log.Warn("Abandoned stale service requests", "ids", stale)
			}

		case <-c.done:
			return
		}
	}
}

// emit delivers one event unless the client is stopping.
func (c *Client) emit(ev protocol.DomainEvent) {
	select {
	case c.events <- ev:
	case <-c.done:
	}
}
