// Package gzclient implements the websocket client for a Gazebo-style
// simulation server. A Client owns the socket, drives the session handshake
// and state machine, and routes inbound frames to the schema registry, the
// topic registry and the asset channel. All per-session collections are
// cleared when the session ends; the client can be reconnected and will
// negotiate a fresh schema.
package gzclient

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/gazebo-web/gzweb-sub000/errors"
	"github.com/gazebo-web/gzweb-sub000/metric"
	"github.com/gazebo-web/gzweb-sub000/pkg/retry"
	"github.com/gazebo-web/gzweb-sub000/schema"
	"github.com/gazebo-web/gzweb-sub000/topic"
	"github.com/gazebo-web/gzweb-sub000/wire"
)

const defaultHandshakeTimeout = 10 * time.Second

// Handshake responses the server sends as plain text before the schema blob.
const (
	handshakeAuthorized = "authorized"
	handshakeInvalid    = "invalid"
)

// Client is a simulation server session. Create one with New and open it
// with Connect; the zero value is not usable.
type Client struct {
	url              string
	key              string
	dialer           *websocket.Dialer
	handshakeTimeout time.Duration
	logger           *slog.Logger
	metrics          *metric.CoreMetrics
	publishLimiter   *rate.Limiter
	reconnect        bool
	reconnectCfg     retry.Config

	mu         sync.RWMutex
	conn       *websocket.Conn
	state      State
	world      string
	readerDone chan struct{}

	writeMu sync.Mutex

	schemas *schema.Registry
	topics  *topic.Registry
	assets  *assetChannel

	handlerMu     sync.RWMutex
	stateHandlers []StateHandler
	sceneHandlers []SceneHandler

	// closing distinguishes a deliberate Disconnect from a socket failure.
	closing atomic.Bool
}

// New creates a client for the given websocket URL. The session is not
// opened until Connect is called.
func New(url string, opts ...ClientOption) (*Client, error) {
	if url == "" {
		return nil, fmt.Errorf("server URL cannot be empty")
	}

	c := &Client{
		url:              url,
		dialer:           websocket.DefaultDialer,
		handshakeTimeout: defaultHandshakeTimeout,
		logger:           slog.Default(),
		state:            StateDisconnected,
		schemas:          schema.NewRegistry(),
		topics:           topic.NewRegistry(),
		assets:           newAssetChannel(),
	}

	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, fmt.Errorf("failed to apply client option: %w", err)
		}
	}

	return c, nil
}

// Connect opens the socket and starts the handshake. An existing session is
// force-disconnected first, so a client never holds more than one socket.
// Connect returns once the socket is open and the first handshake frame has
// been sent; use OnStateChange to observe the session reaching Connected and
// Ready.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.RLock()
	connected := c.conn != nil
	c.mu.RUnlock()
	if connected {
		if err := c.Disconnect(); err != nil {
			return err
		}
	}
	return c.dial(ctx)
}

func (c *Client) dial(ctx context.Context) error {
	dialer := *c.dialer
	dialer.HandshakeTimeout = c.handshakeTimeout

	conn, resp, err := dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
		}
		return errors.WrapTransient(err, "Client", "Connect", "dial "+c.url)
	}

	// Install the socket only if the slot is still free. Losing the race
	// (a reconnect attempt crossing a user Connect, or two concurrent
	// Connects) must never displace a live session.
	done := make(chan struct{})
	c.mu.Lock()
	if c.conn != nil {
		c.mu.Unlock()
		conn.Close()
		return errors.WrapInvalid(errors.ErrAlreadyConnected, "Client", "dial", "install socket")
	}
	c.conn = conn
	c.readerDone = done
	c.mu.Unlock()
	c.closing.Store(false)

	c.setState(StateAwaitingSchema, nil)

	first := wire.Frame{Operation: wire.OpProtos}
	if c.key != "" {
		first = wire.Frame{Operation: wire.OpAuth, Payload: []byte(c.key)}
	}
	if err := c.send(first); err != nil {
		conn.Close()
		c.mu.Lock()
		c.conn = nil
		c.readerDone = nil
		c.mu.Unlock()
		c.setState(StateDisconnected, nil)
		close(done)
		return err
	}

	go c.readLoop(conn, done)
	return nil
}

// Disconnect closes the session. All subscriptions, advertised topics, the
// loaded schema and the active world name are cleared, and outstanding asset
// requests fail with ErrConnectionLost. Disconnecting an already-closed
// client is a no-op.
func (c *Client) Disconnect() error {
	c.closing.Store(true)

	c.mu.Lock()
	conn := c.conn
	done := c.readerDone
	c.mu.Unlock()

	if conn == nil {
		// A failed session may have left state at Error.
		c.setState(StateDisconnected, nil)
		return nil
	}

	deadline := time.Now().Add(time.Second)
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = conn.WriteControl(websocket.CloseMessage, msg, deadline)
	conn.Close()

	if done != nil {
		<-done
	}
	return nil
}

// readLoop consumes inbound messages until the socket closes. Before the
// schema is loaded every text message belongs to the handshake; afterwards
// every message is a wire frame.
func (c *Client) readLoop(conn *websocket.Conn, done chan struct{}) {
	defer close(done)

	var loopErr error
	for {
		msgType, raw, err := conn.ReadMessage()
		if err != nil {
			if !c.closing.Load() {
				loopErr = errors.WrapTransient(errors.ErrConnectionLost, "Client", "readLoop", err.Error())
			}
			break
		}

		if !c.schemas.Loaded() {
			if err := c.handleHandshake(msgType, raw); err != nil {
				loopErr = err
				break
			}
			continue
		}

		c.handleFrame(raw)
	}

	c.teardown(loopErr)
}

// handleHandshake processes one pre-schema message. A non-nil error ends the
// session: the handshake cannot recover from a rejected key or a bad schema.
func (c *Client) handleHandshake(msgType int, raw []byte) error {
	if msgType != websocket.TextMessage {
		return errors.WrapFatal(errors.ErrSchemaMissing, "Client", "handleHandshake",
			"binary frame received before schema")
	}

	switch string(raw) {
	case handshakeAuthorized:
		c.logger.Debug("authorization accepted", "url", c.url)
		return c.send(wire.Frame{Operation: wire.OpProtos})

	case handshakeInvalid:
		return errors.WrapFatal(errors.ErrUnauthorized, "Client", "handleHandshake", "authorize session")

	default:
		if err := c.schemas.Load(raw); err != nil {
			return errors.WrapFatal(err, "Client", "handleHandshake", "load schema blob")
		}
		c.logger.Info("schema loaded", "types", len(c.schemas.TypeNames()))

		if err := c.send(wire.Frame{Operation: wire.OpTopicsTypes}); err != nil {
			return err
		}
		if err := c.send(wire.Frame{Operation: wire.OpWorlds}); err != nil {
			return err
		}
		c.setState(StateConnected, nil)
		return nil
	}
}

// handleFrame decodes and routes one post-handshake frame. Frame-level
// errors are logged and counted but never end the session.
func (c *Client) handleFrame(raw []byte) {
	frame, err := wire.Decode(raw)
	if err != nil {
		c.logger.Warn("dropping malformed frame", "error", err)
		c.countDecodeError("frame")
		return
	}

	if c.metrics != nil {
		c.metrics.FramesReceived.WithLabelValues(frame.Operation).Inc()
	}

	switch frame.Operation {
	case wire.OpTopicsTypes, wire.OpTopics:
		c.handleTopicList(frame)
	case wire.OpWorlds:
		c.handleWorlds(frame)
	case wire.OpScene:
		c.handleScene(frame)
	case wire.OpAsset:
		c.handleAsset(frame)
	default:
		c.handleTopicData(frame)
	}
}

func (c *Client) handleTopicList(frame wire.Frame) {
	var topics []topic.AdvertisedTopic
	if err := json.Unmarshal(frame.Payload, &topics); err != nil {
		c.logger.Warn("dropping unparseable topic list", "operation", frame.Operation, "error", err)
		c.countDecodeError("payload")
		return
	}
	c.topics.SetAdvertised(topics)
	c.logger.Debug("advertised topics updated", "count", len(topics))
}

// handleWorlds records the active world and requests its scene. The server
// reports every loaded world; the first one is the session's world, matching
// the single-world behavior of the web client.
func (c *Client) handleWorlds(frame wire.Frame) {
	var worlds []string
	if err := json.Unmarshal(frame.Payload, &worlds); err != nil {
		c.logger.Warn("dropping unparseable worlds response", "error", err)
		c.countDecodeError("payload")
		return
	}
	if len(worlds) == 0 {
		c.logger.Warn("worlds response names no worlds")
		return
	}

	c.mu.Lock()
	c.world = worlds[0]
	c.mu.Unlock()

	if err := c.send(wire.Frame{Operation: wire.OpScene, Topic: worlds[0]}); err != nil {
		c.logger.Error("failed to request scene", "world", worlds[0], "error", err)
	}
}

func (c *Client) handleScene(frame wire.Frame) {
	msg, err := c.schemas.Decode(frame.TypeName, frame.Payload)
	if err != nil {
		c.logger.Warn("dropping undecodable scene payload", "type", frame.TypeName, "error", err)
		c.countDecodeError("payload")
		return
	}

	c.handlerMu.RLock()
	handlers := append([]SceneHandler(nil), c.sceneHandlers...)
	c.handlerMu.RUnlock()
	for _, h := range handlers {
		h(msg)
	}

	c.setState(StateReady, nil)
}

// handleAsset correlates an asset response to its request via the echoed URI
// and delivers the raw bytes to the registered callback. Image content skips
// the typed decode; anything else is a typed response whose data field
// carries the bytes.
func (c *Client) handleAsset(frame wire.Frame) {
	uri := frame.Topic
	cb, ok := c.assets.take(uri)
	if !ok {
		c.logger.Debug("dropping asset response with no outstanding request", "uri", uri)
		return
	}

	var data []byte
	if frame.TypeName == "" || c.schemas.IsImage(frame.TypeName) {
		data = make([]byte, len(frame.Payload))
		copy(data, frame.Payload)
	} else {
		msg, err := c.schemas.Decode(frame.TypeName, frame.Payload)
		if err != nil {
			c.countDecodeError("payload")
			cb(uri, nil, errors.Wrap(err, "Client", "handleAsset", "decode asset response"))
			return
		}
		var isBytes bool
		data, isBytes = msg["data"].([]byte)
		if !isBytes {
			cb(uri, nil, errors.WrapInvalid(errors.ErrDecodeFailed,
				"Client", "handleAsset", "asset response carries no data field"))
			return
		}
	}

	if c.metrics != nil {
		c.metrics.AssetsServed.Inc()
	}
	cb(uri, data, nil)
}

// handleTopicData delivers a subscribed-topic payload. Image-typed payloads
// bypass the interpreter and arrive under the "data" key; everything else is
// decoded against the schema. An unknown type is a protocol error and the
// frame is dropped.
func (c *Client) handleTopicData(frame wire.Frame) {
	var msg schema.Message
	if c.schemas.IsImage(frame.TypeName) {
		data := make([]byte, len(frame.Payload))
		copy(data, frame.Payload)
		msg = schema.Message{"data": data}
	} else {
		var err error
		msg, err = c.schemas.Decode(frame.TypeName, frame.Payload)
		if err != nil {
			c.logger.Warn("dropping undecodable topic payload",
				"topic", frame.Topic, "type", frame.TypeName, "error", err)
			c.countDecodeError("payload")
			return
		}
	}

	if !c.topics.Dispatch(frame.Topic, msg) {
		// The server may still be flushing frames from a recent unsubscribe.
		c.logger.Debug("dropping payload for unsubscribed topic", "topic", frame.Topic)
	}
}

// teardown ends the session: the socket is closed, per-session collections
// are cleared and outstanding asset requests fail. A socket error surfaces
// as an Error transition before Disconnected and, when enabled, starts the
// reconnect loop.
func (c *Client) teardown(loopErr error) {
	c.mu.Lock()
	if c.conn != nil {
		c.conn.Close()
	}
	c.world = ""
	c.mu.Unlock()

	c.topics.Clear()
	c.schemas.Reset()
	c.assets.failAll(errors.ErrConnectionLost)
	if c.metrics != nil {
		c.metrics.SubscriptionsActive.Set(0)
	}

	if loopErr != nil {
		c.logger.Error("session ended", "error", loopErr)
		c.setState(StateError, loopErr)
	}

	// Release the socket slot only after every per-session collection is
	// cleared. A Connect issued mid-teardown sees the occupied slot, goes
	// through Disconnect and waits on the reader, so its fresh session can
	// never be clobbered by this cleanup.
	c.mu.Lock()
	c.conn = nil
	c.readerDone = nil
	c.mu.Unlock()
	c.setState(StateDisconnected, nil)

	if loopErr != nil && c.reconnect && !c.closing.Load() && !errors.IsFatal(loopErr) {
		go c.reconnectLoop()
	}
}

func (c *Client) reconnectLoop() {
	err := retry.Do(context.Background(), c.reconnectCfg, func() error {
		if c.closing.Load() {
			return retry.NonRetryable(errors.ErrNotConnected)
		}
		c.mu.RLock()
		alive := c.conn != nil
		c.mu.RUnlock()
		if alive {
			// The caller reconnected during the backoff window.
			return nil
		}
		if c.metrics != nil {
			c.metrics.Reconnects.Inc()
		}
		c.logger.Info("reconnecting", "url", c.url)
		if err := c.dial(context.Background()); err != nil {
			if stderrors.Is(err, errors.ErrAlreadyConnected) {
				return nil
			}
			return err
		}
		return nil
	})
	if err != nil {
		c.logger.Error("reconnect abandoned", "url", c.url, "error", err)
	}
}

// send encodes and writes one frame. Frames are sent as websocket text
// messages; outbound payloads are always textual.
func (c *Client) send(f wire.Frame) error {
	buf, err := wire.Encode(f)
	if err != nil {
		return err
	}

	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()
	if conn == nil {
		return errors.WrapInvalid(errors.ErrNotConnected, "Client", "send", "write "+f.Operation+" frame")
	}

	c.writeMu.Lock()
	err = conn.WriteMessage(websocket.TextMessage, buf)
	c.writeMu.Unlock()
	if err != nil {
		return errors.WrapTransient(err, "Client", "send", "write "+f.Operation+" frame")
	}

	if c.metrics != nil {
		c.metrics.FramesSent.WithLabelValues(f.Operation).Inc()
	}
	return nil
}

// requireSession rejects outbound calls issued before the handshake has
// completed. Handshake frames themselves bypass this gate.
func (c *Client) requireSession(method string) error {
	c.mu.RLock()
	st := c.state
	c.mu.RUnlock()
	if st != StateConnected && st != StateReady {
		return errors.WrapInvalid(errors.ErrNotConnected, "Client", method,
			fmt.Sprintf("session is %s", st))
	}
	return nil
}

// Subscribe registers cb for a topic and asks the server to start delivering
// it. A second Subscribe for the same name replaces the earlier callback.
// Topics advertised with an image type use the server's lighter-weight image
// delivery mode.
func (c *Client) Subscribe(name string, cb topic.Callback) error {
	if err := c.requireSession("Subscribe"); err != nil {
		return err
	}

	op := wire.OpSub
	typeName, _ := c.topics.TypeOf(name)
	if typeName != "" && c.schemas.IsImage(typeName) {
		op = wire.OpImage
	}

	c.topics.Register(&topic.Subscription{Name: name, Callback: cb})
	if c.metrics != nil {
		c.metrics.SubscriptionsActive.Set(float64(c.topics.Len()))
	}

	return c.send(wire.Frame{Operation: op, Topic: name, TypeName: typeName})
}

// Unsubscribe removes the subscription for name, running its teardown hook,
// and asks the server to stop delivering it.
func (c *Client) Unsubscribe(name string) error {
	if err := c.requireSession("Unsubscribe"); err != nil {
		return err
	}

	if !c.topics.Remove(name) {
		return errors.WrapInvalid(errors.ErrKeyNotFound, "Client", "Unsubscribe",
			fmt.Sprintf("no subscription for %s", name))
	}
	if c.metrics != nil {
		c.metrics.SubscriptionsActive.Set(float64(c.topics.Len()))
	}

	return c.send(wire.Frame{Operation: wire.OpUnsub, Topic: name})
}

// Throttle asks the server to cap delivery for a topic at msgsPerSec.
func (c *Client) Throttle(name string, msgsPerSec int) error {
	if err := c.requireSession("Throttle"); err != nil {
		return err
	}
	if msgsPerSec < 1 {
		return errors.WrapInvalid(errors.ErrMalformedFrame, "Client", "Throttle",
			fmt.Sprintf("rate must be >= 1, got %d", msgsPerSec))
	}
	return c.send(wire.Frame{
		Operation: wire.OpThrottle,
		Topic:     name,
		Payload:   []byte(strconv.Itoa(msgsPerSec)),
	})
}

// Advertise announces that this client will publish messages of typeName on
// a topic.
func (c *Client) Advertise(name, typeName string) error {
	if err := c.requireSession("Advertise"); err != nil {
		return err
	}
	return c.send(wire.Frame{Operation: wire.OpAdvertise, Topic: name, TypeName: typeName})
}

// Publish encodes msg against the schema for typeName and publishes it on a
// topic. When a publish rate limit is configured, publishes above the limit
// are rejected rather than queued.
func (c *Client) Publish(name, typeName string, msg schema.Message) error {
	if err := c.requireSession("Publish"); err != nil {
		return err
	}
	if c.publishLimiter != nil && !c.publishLimiter.Allow() {
		return errors.WrapTransient(fmt.Errorf("publish rate limit exceeded"),
			"Client", "Publish", "publish "+name)
	}

	payload, err := c.schemas.Encode(typeName, msg)
	if err != nil {
		return err
	}
	return c.send(wire.Frame{
		Operation: wire.OpPublishIn,
		Topic:     name,
		TypeName:  typeName,
		Payload:   payload,
	})
}

// RequestService sends a service request on a topic and returns the
// correlation id injected into the request properties.
func (c *Client) RequestService(name, typeName string, properties schema.Message) (string, error) {
	if err := c.requireSession("RequestService"); err != nil {
		return "", err
	}

	id := uuid.NewString()
	req := make(schema.Message, len(properties)+1)
	for k, v := range properties {
		req[k] = v
	}
	req["id"] = id

	payload, err := json.Marshal(req)
	if err != nil {
		return "", errors.WrapInvalid(err, "Client", "RequestService", "marshal request properties")
	}

	if err := c.send(wire.Frame{
		Operation: wire.OpRequest,
		Topic:     name,
		TypeName:  typeName,
		Payload:   payload,
	}); err != nil {
		return "", err
	}
	return id, nil
}

// RequestAsset fetches an opaque binary blob by URI over the session socket.
// Requests are not coalesced: a second request for the same URI before the
// first response arrives replaces the earlier callback. Route concurrent
// requests for shared URIs through a resolver.Resolver.
func (c *Client) RequestAsset(uri string, cb AssetCallback) error {
	if err := c.requireSession("RequestAsset"); err != nil {
		return err
	}
	if cb == nil {
		return errors.WrapInvalid(fmt.Errorf("callback cannot be nil"),
			"Client", "RequestAsset", "register asset request")
	}

	token := c.assets.register(uri, cb)
	if err := c.send(wire.Frame{Operation: wire.OpAsset, Payload: []byte(uri)}); err != nil {
		// Withdraw only this registration; a concurrent request for the
		// same URI may already have replaced it.
		c.assets.cancel(uri, token)
		return err
	}
	return nil
}

// State returns the current session state.
func (c *Client) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// World returns the active world name, empty until the worlds response
// arrives.
func (c *Client) World() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.world
}

// AvailableTopics returns the topics the server currently advertises.
func (c *Client) AvailableTopics() []topic.AdvertisedTopic {
	return c.topics.Advertised()
}

// SubscribedTopics returns the sorted names of active subscriptions.
func (c *Client) SubscribedTopics() []string {
	return c.topics.Names()
}

// OnStateChange registers a handler for session state transitions. Handlers
// run synchronously on the socket goroutine and must not block.
func (c *Client) OnStateChange(h StateHandler) {
	c.handlerMu.Lock()
	c.stateHandlers = append(c.stateHandlers, h)
	c.handlerMu.Unlock()
}

// OnScene registers a handler for scene snapshots.
func (c *Client) OnScene(h SceneHandler) {
	c.handlerMu.Lock()
	c.sceneHandlers = append(c.sceneHandlers, h)
	c.handlerMu.Unlock()
}

func (c *Client) setState(to State, err error) {
	c.mu.Lock()
	from := c.state
	if from == to && err == nil {
		c.mu.Unlock()
		return
	}
	c.state = to
	c.mu.Unlock()

	if c.metrics != nil {
		c.metrics.SessionState.Set(float64(to))
		c.metrics.StateTransitions.WithLabelValues(from.String(), to.String()).Inc()
	}
	c.logger.Debug("session state changed", "from", from.String(), "to", to.String())

	c.handlerMu.RLock()
	handlers := append([]StateHandler(nil), c.stateHandlers...)
	c.handlerMu.RUnlock()
	for _, h := range handlers {
		h(StateChange{From: from, To: to, Err: err})
	}
}

func (c *Client) countDecodeError(kind string) {
	if c.metrics != nil {
		c.metrics.DecodeErrors.WithLabelValues(kind).Inc()
	}
}
