package stream

import (
	"fmt"
	"net/url"
	"sync"

	"launchflow/logger"
)

// Topic is one of the backend's logical stream categories.
type Topic string

const (
	TopicTrades Topic = "trades"
	TopicToken  Topic = "token"
	TopicChat   Topic = "chat"
)

// Valid reports whether the topic is one the backend serves.
func (t Topic) Valid() bool {
	switch t {
	case TopicTrades, TopicToken, TopicChat:
		return true
	default:
		return false
	}
}

// StreamKey uniquely identifies one logical subscription.
type StreamKey struct {
	Topic Topic
	Mint  string
}

// Registry owns one shared Connection per (topic, mint) pair so callers
// subscribing to the same resource share a transport. Entries are created
// lazily and removed only by explicit disconnect; nothing auto-expires.
type Registry struct {
	baseURL   string
	transport Transport
	opts      Options
	log       *logger.Entry

	mu    sync.Mutex
	conns map[StreamKey]*Connection
}

// NewRegistry builds a registry producing connections against the given
// stream base URL.
func NewRegistry(baseURL string, transport Transport, opts Options) *Registry {
	log := opts.Log
	if log == nil {
		log = logger.GetLogger()
	}
	return &Registry{
		baseURL:   baseURL,
		transport: transport,
		opts:      opts,
		log:       log.WithComponent("stream_registry"),
		conns:     make(map[StreamKey]*Connection),
	}
}

// GetOrCreate returns the shared Connection for the key, constructing an
// unconnected one on first request. The caller still has to call Connect.
func (r *Registry) GetOrCreate(topic Topic, mint string) *Connection {
	key := StreamKey{Topic: topic, Mint: mint}

	r.mu.Lock()
	defer r.mu.Unlock()
	if conn, ok := r.conns[key]; ok {
		return conn
	}

	streamURL := fmt.Sprintf("%s/stream/%s?mint=%s", r.baseURL, topic, url.QueryEscape(mint))
	conn := NewConnection(streamURL, r.transport, r.opts)
	r.conns[key] = conn

	r.log.WithFields(logger.Fields{"topic": string(topic), "mint": mint}).Debug("stream connection created")
	return conn
}

// Disconnect tears down and removes the connection for the key. It is a
// no-op when no such entry exists.
func (r *Registry) Disconnect(topic Topic, mint string) {
	key := StreamKey{Topic: topic, Mint: mint}

	r.mu.Lock()
	conn, ok := r.conns[key]
	delete(r.conns, key)
	r.mu.Unlock()

	if ok {
		conn.Disconnect()
	}
}

// DisconnectAll tears down every connection and empties the registry. Host
// processes call this once on shutdown.
func (r *Registry) DisconnectAll() {
	r.mu.Lock()
	conns := r.conns
	r.conns = make(map[StreamKey]*Connection)
	r.mu.Unlock()

	for _, conn := range conns {
		conn.Disconnect()
	}
	if len(conns) > 0 {
		r.log.WithFields(logger.Fields{"connections": len(conns)}).Info("all streams disconnected")
	}
}

// Len reports the number of live registry entries.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns)
}
