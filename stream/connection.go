package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/jpillora/backoff"

	"launchflow/logger"
)

// Event channel names pushed by the backend.
const (
	ChannelTrade     = "trade"
	ChannelUpdate    = "update"
	ChannelConnected = "connected"
	ChannelMessage   = "message"
)

// ErrReconnectExhausted is wrapped into the terminal error emitted once the
// reconnect attempt limit is hit.
var ErrReconnectExhausted = errors.New("reconnect attempts exhausted")

// State is the connection lifecycle state.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateOpen
	StateReconnecting
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateReconnecting:
		return "reconnecting"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Default reconnect policy.
const (
	DefaultReconnectDelay       = 3 * time.Second
	DefaultMaxReconnectAttempts = 10
)

// Options configures a Connection's reconnect behaviour.
type Options struct {
	AutoReconnect        bool
	ReconnectDelay       time.Duration
	MaxReconnectAttempts int
	Log                  *logger.Log
}

// DefaultOptions returns the documented defaults: auto-reconnect on, 3s base
// delay, 10 attempts.
func DefaultOptions() Options {
	return Options{
		AutoReconnect:        true,
		ReconnectDelay:       DefaultReconnectDelay,
		MaxReconnectAttempts: DefaultMaxReconnectAttempts,
	}
}

// Listener receives the decoded JSON payload of one event.
type Listener func(payload any)

// Connection maintains a single logical subscription to a server-push event
// source. It owns at most one live transport handle at a time; a reconnect
// always tears down the previous handle before dialing again. All state
// transitions happen under one mutex and event dispatch is serialized by the
// single read loop, so listeners observe transport order.
type Connection struct {
	url       string
	transport Transport
	opts      Options
	log       *logger.Entry

	mu             sync.Mutex
	ctx            context.Context
	state          State
	conn           Conn
	gen            int
	nextID         int
	listeners      map[string]map[int]Listener
	connectCbs     map[int]func()
	disconnectCbs  map[int]func()
	errorCbs       map[int]func(error)
	attempts       int
	manuallyClosed bool
	everOpened     bool
	retryTimer     *time.Timer
	delay          *backoff.Backoff
}

// NewConnection builds an unconnected Connection for the given stream URL.
func NewConnection(url string, transport Transport, opts Options) *Connection {
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = DefaultReconnectDelay
	}
	if opts.MaxReconnectAttempts <= 0 {
		opts.MaxReconnectAttempts = DefaultMaxReconnectAttempts
	}
	log := opts.Log
	if log == nil {
		log = logger.GetLogger()
	}

	return &Connection{
		url:           url,
		transport:     transport,
		opts:          opts,
		log:           log.WithComponent("stream").WithFields(logger.Fields{"url": url}),
		state:         StateIdle,
		listeners:     make(map[string]map[int]Listener),
		connectCbs:    make(map[int]func()),
		disconnectCbs: make(map[int]func()),
		errorCbs:      make(map[int]func(error)),
		// Factor 1.5 with no jitter gives delay = base * 1.5^(n-1) for the
		// nth retry; Max is effectively unbounded, only the attempt cap
		// stops growth.
		delay: &backoff.Backoff{
			Min:    opts.ReconnectDelay,
			Max:    time.Duration(math.MaxInt64),
			Factor: 1.5,
			Jitter: false,
		},
	}
}

// URL returns the resource-scoped stream URL.
func (c *Connection) URL() string {
	return c.url
}

// State returns the current lifecycle state.
func (c *Connection) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connect opens the transport-level subscription. It is accepted from Idle,
// Closed and the failed Reconnecting state; calling it while a connection is
// active or a retry is pending is an error. The dial itself happens on a
// goroutine; the outcome is reported through the lifecycle callbacks.
func (c *Connection) Connect(ctx context.Context) error {
	c.mu.Lock()
	switch c.state {
	case StateConnecting, StateOpen:
		c.mu.Unlock()
		return fmt.Errorf("connection already %s", c.state)
	case StateReconnecting:
		if c.retryTimer != nil {
			c.mu.Unlock()
			return fmt.Errorf("reconnect already pending")
		}
	}
	if ctx == nil {
		ctx = context.Background()
	}
	c.ctx = ctx
	c.manuallyClosed = false
	c.attempts = 0
	c.state = StateConnecting
	gen := c.gen
	c.mu.Unlock()

	c.log.Debug("connecting")
	go c.dial(gen)
	return nil
}

// Disconnect closes the connection: any pending backoff timer is cancelled
// synchronously, the transport handle is torn down and no reconnect fires.
// The on-disconnect callbacks run only if the connection had reached Open
// since the last disconnect notification. Calling Disconnect on an already
// closed connection is a no-op.
func (c *Connection) Disconnect() {
	c.mu.Lock()
	c.manuallyClosed = true
	c.gen++
	if c.retryTimer != nil {
		c.retryTimer.Stop()
		c.retryTimer = nil
	}
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	notify := c.everOpened
	c.everOpened = false
	c.state = StateClosed
	var cbs []func()
	if notify {
		cbs = c.snapshotFuncsLocked(c.disconnectCbs)
	}
	c.mu.Unlock()

	if notify {
		c.log.Debug("disconnected")
	}
	for _, cb := range cbs {
		cb()
	}
}

// On registers a listener for a named event channel and returns an
// unsubscribe capability. Registering the first listener for a channel while
// the transport is open attaches the channel-level subscription immediately;
// channels registered earlier are attached when the transport opens. The
// returned function removes exactly this listener; calling it twice, or from
// inside the listener itself, is safe.
func (c *Connection) On(channel string, cb Listener) func() {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	first := c.insertListenerLocked(channel, id, cb)
	conn := c.conn
	open := c.state == StateOpen
	c.mu.Unlock()

	if first && open && conn != nil {
		c.subscribeChannel(conn, channel)
	}
	return func() { c.removeListener(channel, id) }
}

// Once registers a listener that fires at most once, unsubscribing itself
// before invoking the callback so that reentrant unsubscribes are harmless.
func (c *Connection) Once(channel string, cb Listener) func() {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	remove := func() { c.removeListener(channel, id) }
	var once sync.Once
	wrapper := func(payload any) {
		once.Do(func() {
			remove()
			cb(payload)
		})
	}
	first := c.insertListenerLocked(channel, id, wrapper)
	conn := c.conn
	open := c.state == StateOpen
	c.mu.Unlock()

	if first && open && conn != nil {
		c.subscribeChannel(conn, channel)
	}
	return remove
}

// OnConnect registers a callback fired each time the connection reaches Open.
func (c *Connection) OnConnect(cb func()) func() {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.connectCbs[id] = cb
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		delete(c.connectCbs, id)
		c.mu.Unlock()
	}
}

// OnDisconnect registers a callback fired when a previously-open connection
// goes down, whether by transport failure or explicit Disconnect.
func (c *Connection) OnDisconnect(cb func()) func() {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.disconnectCbs[id] = cb
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		delete(c.disconnectCbs, id)
		c.mu.Unlock()
	}
}

// OnError registers a callback receiving transport errors and the terminal
// reconnect-exhaustion error. Stream failures are only ever surfaced here,
// never returned from another method.
func (c *Connection) OnError(cb func(error)) func() {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.errorCbs[id] = cb
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		delete(c.errorCbs, id)
		c.mu.Unlock()
	}
}

func (c *Connection) insertListenerLocked(channel string, id int, cb Listener) bool {
	set, ok := c.listeners[channel]
	if !ok {
		set = make(map[int]Listener)
		c.listeners[channel] = set
	}
	first := len(set) == 0
	set[id] = cb
	return first
}

func (c *Connection) removeListener(channel string, id int) {
	c.mu.Lock()
	if set, ok := c.listeners[channel]; ok {
		delete(set, id)
	}
	c.mu.Unlock()
}

func (c *Connection) subscribeChannel(conn Conn, channel string) {
	if err := conn.Subscribe(channel); err != nil {
		c.log.WithError(err).WithFields(logger.Fields{"channel": channel}).Warn("failed to subscribe channel")
	}
}

// dial opens the transport and promotes the connection to Open. A generation
// counter taken under the lock detects a Disconnect that raced the dial.
func (c *Connection) dial(gen int) {
	conn, err := c.transport.Dial(c.ctx, c.url)

	c.mu.Lock()
	if gen != c.gen || c.manuallyClosed {
		c.mu.Unlock()
		if err == nil {
			conn.Close()
		}
		return
	}
	if err != nil {
		c.failLocked(nil, err)
		return
	}

	c.conn = conn
	c.state = StateOpen
	c.attempts = 0
	c.everOpened = true
	channels := make([]string, 0, len(c.listeners))
	for ch := range c.listeners {
		channels = append(channels, ch)
	}
	cbs := c.snapshotFuncsLocked(c.connectCbs)
	c.mu.Unlock()

	c.log.Info("stream connected")
	for _, ch := range channels {
		c.subscribeChannel(conn, ch)
	}
	for _, cb := range cbs {
		cb()
	}

	go c.readLoop(conn, gen)
}

func (c *Connection) readLoop(conn Conn, gen int) {
	for {
		frame, err := conn.Recv()
		if err != nil {
			c.mu.Lock()
			if gen != c.gen || c.manuallyClosed || c.conn != conn {
				// stale loop; Disconnect or a newer dial already took over
				c.mu.Unlock()
				return
			}
			c.failLocked(conn, err)
			return
		}
		c.dispatch(frame)
	}
}

// dispatch decodes one frame and delivers it to every listener registered on
// the frame's channel. Malformed payloads are dropped; a bad message must not
// tear down the subscription.
func (c *Connection) dispatch(frame Frame) {
	var payload any
	if err := json.Unmarshal(frame.Data, &payload); err != nil {
		logger.IncrementDroppedFrame()
		c.log.WithError(err).WithFields(logger.Fields{"channel": frame.Channel}).Debug("dropping undecodable frame")
		return
	}

	c.mu.Lock()
	cbs := make([]Listener, 0, len(c.listeners[frame.Channel]))
	for _, cb := range c.listeners[frame.Channel] {
		cbs = append(cbs, cb)
	}
	c.mu.Unlock()

	logger.IncrementStreamEvent(frame.Channel, len(frame.Data))
	for _, cb := range cbs {
		cb(payload)
	}
}

// failLocked handles a transport failure. Called with c.mu held; releases it.
func (c *Connection) failLocked(conn Conn, err error) {
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}

	notifyDisconnect := c.everOpened
	c.everOpened = false

	var discCbs []func()
	if notifyDisconnect {
		discCbs = c.snapshotFuncsLocked(c.disconnectCbs)
	}
	errCbs := c.snapshotErrFuncsLocked()

	if !c.opts.AutoReconnect {
		c.state = StateClosed
		c.mu.Unlock()

		c.log.WithError(err).Warn("stream failed, auto-reconnect disabled")
		for _, cb := range discCbs {
			cb()
		}
		for _, cb := range errCbs {
			cb(err)
		}
		return
	}

	c.state = StateReconnecting
	c.attempts++
	attempt := c.attempts

	if attempt >= c.opts.MaxReconnectAttempts {
		c.mu.Unlock()

		terminal := fmt.Errorf("%w after %d attempts: %v", ErrReconnectExhausted, attempt, err)
		c.log.WithError(terminal).Error("giving up on stream")
		for _, cb := range discCbs {
			cb()
		}
		for _, cb := range errCbs {
			cb(err)
		}
		for _, cb := range errCbs {
			cb(terminal)
		}
		return
	}

	wait := c.delay.ForAttempt(float64(attempt - 1))
	gen := c.gen
	c.retryTimer = time.AfterFunc(wait, func() { c.redial(gen) })
	c.mu.Unlock()

	c.log.WithError(err).WithFields(logger.Fields{
		"attempt": attempt,
		"delay":   wait.String(),
	}).Warn("stream dropped, reconnecting")
	for _, cb := range discCbs {
		cb()
	}
	for _, cb := range errCbs {
		cb(err)
	}
}

func (c *Connection) redial(gen int) {
	c.mu.Lock()
	if gen != c.gen || c.manuallyClosed || c.state != StateReconnecting {
		c.mu.Unlock()
		return
	}
	c.retryTimer = nil
	c.state = StateConnecting
	c.mu.Unlock()

	logger.IncrementReconnect()
	c.dial(gen)
}

func (c *Connection) snapshotFuncsLocked(set map[int]func()) []func() {
	out := make([]func(), 0, len(set))
	for _, cb := range set {
		out = append(out, cb)
	}
	return out
}

func (c *Connection) snapshotErrFuncsLocked() []func(error) {
	out := make([]func(error), 0, len(c.errorCbs))
	for _, cb := range c.errorCbs {
		out = append(out, cb)
	}
	return out
}
