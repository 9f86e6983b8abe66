package stream

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Frame is one decoded server-push event: the channel it was published on and
// the raw payload text.
type Frame struct {
	Channel string
	Data    []byte
}

// Conn is one live transport-level subscription. Recv blocks until the next
// frame arrives and returns an error once the connection is unusable. Close
// releases the underlying resources and unblocks any pending Recv.
type Conn interface {
	Recv() (Frame, error)
	Subscribe(channel string) error
	Close() error
}

// Transport dials resource-scoped stream URLs.
type Transport interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// PoolSettings sizes the shared HTTP connection pool.
type PoolSettings struct {
	MaxIdleConns    int
	MaxConnsPerHost int
	IdleConnTimeout time.Duration
}

// SSETransport consumes text/event-stream endpoints over a pooled HTTP
// client. The server scopes events by URL, so channel subscriptions are
// implicit and Subscribe is a no-op.
type SSETransport struct {
	client *http.Client
}

// NewSSETransport builds an SSE transport with its own pooled http.Client.
// No overall timeout is set on the client: the stream body stays open for the
// lifetime of the subscription.
func NewSSETransport(pool PoolSettings) *SSETransport {
	transport := &http.Transport{
		MaxIdleConns:       pool.MaxIdleConns,
		MaxConnsPerHost:    pool.MaxConnsPerHost,
		IdleConnTimeout:    pool.IdleConnTimeout,
		DisableCompression: false,
	}
	return &SSETransport{client: &http.Client{Transport: transport}}
}

func (t *SSETransport) Dial(ctx context.Context, url string) (Conn, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build stream request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to open stream: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("stream endpoint returned status %d", resp.StatusCode)
	}

	return &sseConn{resp: resp, scanner: bufio.NewScanner(resp.Body)}, nil
}

type sseConn struct {
	resp    *http.Response
	scanner *bufio.Scanner
}

// Recv parses the next event from the stream. Lines follow the
// text/event-stream grammar: "event:" names the channel, "data:" lines carry
// the payload, a blank line terminates the event. Comment and id/retry lines
// are skipped.
func (c *sseConn) Recv() (Frame, error) {
	event := ""
	var data []string

	for c.scanner.Scan() {
		line := c.scanner.Text()
		if line == "" {
			if len(data) == 0 {
				// heartbeat or bare event separator
				event = ""
				continue
			}
			channel := event
			if channel == "" {
				channel = "message"
			}
			return Frame{Channel: channel, Data: []byte(strings.Join(data, "\n"))}, nil
		}
		if strings.HasPrefix(line, ":") {
			continue
		}
		field, value := line, ""
		if i := strings.Index(line, ":"); i >= 0 {
			field, value = line[:i], strings.TrimPrefix(line[i+1:], " ")
		}
		switch field {
		case "event":
			event = value
		case "data":
			data = append(data, value)
		}
	}

	if err := c.scanner.Err(); err != nil {
		return Frame{}, err
	}
	return Frame{}, fmt.Errorf("stream closed by server")
}

// Subscribe is a no-op: the SSE endpoint already scopes events to the
// resource named in the URL.
func (c *sseConn) Subscribe(channel string) error {
	return nil
}

func (c *sseConn) Close() error {
	return c.resp.Body.Close()
}
