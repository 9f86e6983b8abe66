package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"

	"github.com/gorilla/websocket"
)

// WSTransport speaks the backend's websocket stream protocol: the client
// sends {"op":"subscribe","channel":...} frames and the server pushes
// {"channel":...,"data":...} envelopes.
type WSTransport struct {
	dialer *websocket.Dialer
}

func NewWSTransport() *WSTransport {
	return &WSTransport{dialer: websocket.DefaultDialer}
}

func (t *WSTransport) Dial(ctx context.Context, rawURL string) (Conn, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid stream url: %w", err)
	}
	switch parsed.Scheme {
	case "http":
		parsed.Scheme = "ws"
	case "https":
		parsed.Scheme = "wss"
	}

	conn, resp, err := t.dialer.DialContext(ctx, parsed.String(), nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("failed to open websocket (status %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("failed to open websocket: %w", err)
	}
	return &wsConn{conn: conn}, nil
}

type wsConn struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

type wsEnvelope struct {
	Op      string          `json:"op,omitempty"`
	Channel string          `json:"channel,omitempty"`
	Event   string          `json:"event,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (c *wsConn) Recv() (Frame, error) {
	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			return Frame{}, err
		}

		var env wsEnvelope
		if err := json.Unmarshal(msg, &env); err != nil {
			// not an envelope; surface raw text on the default channel
			return Frame{Channel: "message", Data: msg}, nil
		}
		if env.Op == "ping" {
			c.writeJSON(wsEnvelope{Op: "pong"})
			continue
		}
		if env.Op != "" {
			// subscription acks and other control frames
			continue
		}

		channel := env.Channel
		if channel == "" {
			channel = env.Event
		}
		if channel == "" {
			channel = "message"
		}
		data := []byte(env.Data)
		if len(data) == 0 {
			data = msg
		}
		return Frame{Channel: channel, Data: data}, nil
	}
}

func (c *wsConn) Subscribe(channel string) error {
	return c.writeJSON(wsEnvelope{Op: "subscribe", Channel: channel})
}

func (c *wsConn) writeJSON(v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(v)
}

func (c *wsConn) Close() error {
	return c.conn.Close()
}
