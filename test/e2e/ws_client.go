package e2e

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/require"
)

// WSEvent is one received WebSocket message.
type WSEvent struct {
	Type     string
	Raw      json.RawMessage
	Parsed   map[string]any
	Received time.Time
}

// WSClient connects to the event stream endpoint and collects everything the
// server sends in a background goroutine.
type WSClient struct {
	conn   *websocket.Conn
	events []WSEvent
	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
	doneCh chan struct{}
}

// WSConnect dials the app's WebSocket endpoint as the test tenant and waits
// for the connection acknowledgement. Closed via t.Cleanup.
func (app *TestApp) WSConnect(t *testing.T) *WSClient {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	conn, _, err := websocket.Dial(ctx, app.WSURL, &websocket.DialOptions{
		HTTPHeader: http.Header{"X-Tenant-ID": []string{TestTenant}},
	})
	if err != nil {
		cancel()
		require.NoError(t, err, "WebSocket dial %s", app.WSURL)
	}

	c := &WSClient{
		conn:   conn,
		ctx:    ctx,
		cancel: cancel,
		doneCh: make(chan struct{}),
	}
	go c.readLoop()
	t.Cleanup(func() { _ = c.Close() })

	_, err = c.WaitForEventType("connection.established", 5*time.Second)
	require.NoError(t, err)
	return c
}

// Subscribe subscribes to a channel and waits for the confirmation.
func (c *WSClient) Subscribe(t *testing.T, channel string) {
	t.Helper()
	data, err := json.Marshal(map[string]string{"action": "subscribe", "channel": channel})
	require.NoError(t, err)
	require.NoError(t, c.conn.Write(c.ctx, websocket.MessageText, data))

	_, err = c.WaitForEvent(func(e WSEvent) bool {
		return e.Type == "subscription.confirmed" && e.Parsed["channel"] == channel
	}, 5*time.Second)
	require.NoError(t, err)
}

// WaitForEvent polls the collected events until one matches the predicate or
// the timeout expires.
func (c *WSClient) WaitForEvent(predicate func(WSEvent) bool, timeout time.Duration) (*WSEvent, error) {
	deadline := time.After(timeout)
	tick := time.NewTicker(25 * time.Millisecond)
	defer tick.Stop()

	for {
		select {
		case <-deadline:
			return nil, fmt.Errorf("timeout waiting for event (collected %d events)", len(c.Events()))
		case <-tick.C:
			c.mu.Lock()
			for i := range c.events {
				if predicate(c.events[i]) {
					evt := c.events[i]
					c.mu.Unlock()
					return &evt, nil
				}
			}
			c.mu.Unlock()
		}
	}
}

// WaitForEventType waits for the first event with the given type.
func (c *WSClient) WaitForEventType(eventType string, timeout time.Duration) (*WSEvent, error) {
	return c.WaitForEvent(func(e WSEvent) bool {
		return e.Type == eventType
	}, timeout)
}

// Events returns a snapshot of all collected events.
func (c *WSClient) Events() []WSEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]WSEvent, len(c.events))
	copy(out, c.events)
	return out
}

// EventsByType returns the collected events of one type, in receipt order.
func (c *WSClient) EventsByType(eventType string) []WSEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []WSEvent
	for _, e := range c.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

// Close tears the connection down and waits for the read loop to exit.
func (c *WSClient) Close() error {
	c.cancel()
	_ = c.conn.CloseNow()
	<-c.doneCh
	return nil
}

func (c *WSClient) readLoop() {
	defer close(c.doneCh)
	for {
		_, data, err := c.conn.Read(c.ctx)
		if err != nil {
			return
		}

		var parsed map[string]any
		if err := json.Unmarshal(data, &parsed); err != nil {
			continue
		}

		evt := WSEvent{
			Raw:      json.RawMessage(data),
			Parsed:   parsed,
			Received: time.Now(),
		}
		if t, ok := parsed["type"].(string); ok {
			evt.Type = t
		}

		c.mu.Lock()
		c.events = append(c.events, evt)
		c.mu.Unlock()
	}
}
