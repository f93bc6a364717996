// Package ha is a Home Assistant websocket API client used to read and write
// helper entities and to drive media players.
package ha

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// ErrNotConnected is returned for requests made while disconnected
var ErrNotConnected = errors.New("not connected")

// HAClient defines the interface for Home Assistant WebSocket client
type HAClient interface {
	Connect() error
	Disconnect() error
	IsConnected() bool
	GetState(entityID string) (*State, error)
	GetAllStates() ([]*State, error)
	CallService(ctx context.Context, domain, service string, data map[string]interface{}) error
	SubscribeStateChanges(entityID string, handler StateChangeHandler) (Subscription, error)
	SetInputBoolean(name string, value bool) error
	SetInputNumber(name string, value float64) error
	SetInputText(name string, value string) error
}

// Options tunes client timeouts
type Options struct {
	// DialTimeout bounds the websocket handshake and authentication
	DialTimeout time.Duration
	// RequestTimeout bounds requests whose context carries no deadline
	RequestTimeout time.Duration
	// MaxBackoff caps the reconnect delay
	MaxBackoff time.Duration
}

// DefaultOptions returns the client defaults
func DefaultOptions() Options {
	return Options{
		DialTimeout:    10 * time.Second,
		RequestTimeout: 10 * time.Second,
		MaxBackoff:     30 * time.Second,
	}
}

// subscriberEntry holds a handler with its unique subscription ID
type subscriberEntry struct {
	subID   int
	handler StateChangeHandler
}

// Client implements HAClient interface
type Client struct {
	url    string
	token  string
	opts   Options
	logger *zap.Logger

	conn      *websocket.Conn
	connected bool
	connMu    sync.RWMutex
	writeMu   sync.Mutex // serializes websocket writes

	msgID   int
	msgIDMu sync.Mutex

	pending   map[int]chan Message
	pendingMu sync.Mutex

	subscribers map[string][]subscriberEntry
	nextSubID   int
	subsMu      sync.RWMutex

	ctx       context.Context
	cancel    context.CancelFunc
	reconnect bool
}

// NewClient creates a new Home Assistant WebSocket client
func NewClient(url, token string, logger *zap.Logger) *Client {
	return NewClientWithOptions(url, token, DefaultOptions(), logger)
}

// NewClientWithOptions creates a client with custom timeouts
func NewClientWithOptions(url, token string, opts Options, logger *zap.Logger) *Client {
	defaults := DefaultOptions()
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = defaults.DialTimeout
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = defaults.RequestTimeout
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = defaults.MaxBackoff
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		url:         url,
		token:       token,
		opts:        opts,
		logger:      logger.Named("ha"),
		pending:     make(map[int]chan Message),
		subscribers: make(map[string][]subscriberEntry),
		ctx:         ctx,
		cancel:      cancel,
		reconnect:   true,
	}
}

// Connect establishes WebSocket connection and authenticates. Existing
// state subscriptions survive a reconnect.
func (c *Client) Connect() error {
	c.connMu.Lock()

	if c.connected {
		c.connMu.Unlock()
		return fmt.Errorf("already connected")
	}

	conn, err := c.dial()
	if err != nil {
		c.connMu.Unlock()
		return err
	}
	c.conn = conn

	if c.cancel != nil {
		c.cancel()
	}
	c.ctx, c.cancel = context.WithCancel(context.Background())
	c.connected = true
	c.reconnect = true
	c.logger.Info("Connected to Home Assistant")

	go c.receiveMessages(c.ctx, conn)

	// Release lock before subscribing, sendMessage takes it again
	c.connMu.Unlock()

	if err := c.subscribeToStateChanges(); err != nil {
		c.logger.Warn("Failed to subscribe to state changes", zap.Error(err))
	}

	return nil
}

// dial opens the socket and completes the auth handshake
func (c *Client) dial() (*websocket.Conn, error) {
	ctx, cancel := context.WithTimeout(context.Background(), c.opts.DialTimeout)
	defer cancel()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to WebSocket: %w", err)
	}

	fail := func(err error) (*websocket.Conn, error) {
		conn.Close()
		return nil, err
	}

	_ = conn.SetReadDeadline(time.Now().Add(c.opts.DialTimeout))

	var authRequired Message
	if err := conn.ReadJSON(&authRequired); err != nil {
		return fail(fmt.Errorf("failed to read auth_required: %w", err))
	}
	if authRequired.Type != "auth_required" {
		return fail(fmt.Errorf("expected auth_required, got %s", authRequired.Type))
	}

	if err := conn.WriteJSON(AuthMessage{Type: "auth", AccessToken: c.token}); err != nil {
		return fail(fmt.Errorf("failed to send auth: %w", err))
	}

	var authResponse Message
	if err := conn.ReadJSON(&authResponse); err != nil {
		return fail(fmt.Errorf("failed to read auth response: %w", err))
	}
	switch authResponse.Type {
	case "auth_ok":
	case "auth_invalid":
		return fail(fmt.Errorf("authentication failed: invalid token"))
	default:
		return fail(fmt.Errorf("expected auth_ok, got %s", authResponse.Type))
	}

	_ = conn.SetReadDeadline(time.Time{})
	return conn, nil
}

// Disconnect closes the WebSocket connection
func (c *Client) Disconnect() error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	if !c.connected {
		c.reconnect = false
		c.cancel()
		return nil
	}

	c.reconnect = false
	c.cancel()
	c.connected = false

	if c.conn != nil {
		c.writeMu.Lock()
		_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.writeMu.Unlock()

		c.conn.Close()
		c.conn = nil
	}

	c.subsMu.Lock()
	c.subscribers = make(map[string][]subscriberEntry)
	c.subsMu.Unlock()

	c.logger.Info("Disconnected from Home Assistant")
	return nil
}

// IsConnected returns true if client is connected
func (c *Client) IsConnected() bool {
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	return c.connected
}

func (c *Client) nextMsgID() int {
	c.msgIDMu.Lock()
	defer c.msgIDMu.Unlock()
	c.msgID++
	return c.msgID
}

// sendMessage sends a request and waits for its result
func (c *Client) sendMessage(ctx context.Context, req request) (*Message, error) {
	c.connMu.RLock()
	if !c.connected {
		c.connMu.RUnlock()
		return nil, ErrNotConnected
	}
	conn := c.conn
	clientCtx := c.ctx
	c.connMu.RUnlock()

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.RequestTimeout)
		defer cancel()
	}

	id := req.messageID()
	respChan := make(chan Message, 1)
	c.pendingMu.Lock()
	c.pending[id] = respChan
	c.pendingMu.Unlock()

	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, id)
		c.pendingMu.Unlock()
	}()

	c.writeMu.Lock()
	err := conn.WriteJSON(req)
	c.writeMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("failed to send message: %w", err)
	}

	select {
	case resp := <-respChan:
		if resp.Success != nil && !*resp.Success {
			if resp.Error != nil {
				return &resp, fmt.Errorf("HA error: %s - %s", resp.Error.Code, resp.Error.Message)
			}
			return &resp, fmt.Errorf("request failed")
		}
		return &resp, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("waiting for response: %w", ctx.Err())
	case <-clientCtx.Done():
		return nil, fmt.Errorf("client disconnected")
	}
}

// receiveMessages reads from one connection until it fails or ctx ends
func (c *Client) receiveMessages(ctx context.Context, conn *websocket.Conn) {
	for {
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			select {
			case <-ctx.Done():
				return
			default:
			}
			c.logger.Error("Failed to read message", zap.Error(err))
			c.handleDisconnect(conn)
			return
		}

		if msg.Type == "event" {
			c.handleEvent(&msg)
			continue
		}

		if msg.ID > 0 {
			c.pendingMu.Lock()
			if ch, ok := c.pending[msg.ID]; ok {
				select {
				case ch <- msg:
				default:
					c.logger.Warn("Response channel full", zap.Int("msg_id", msg.ID))
				}
			}
			c.pendingMu.Unlock()
		}
	}
}

// handleEvent dispatches state_changed events to subscribers
func (c *Client) handleEvent(msg *Message) {
	if msg.Event == nil || msg.Event.EventType != "state_changed" {
		return
	}

	var eventData StateChangedEvent
	if err := json.Unmarshal(msg.Event.Data, &eventData); err != nil {
		c.logger.Error("Failed to unmarshal state_changed event", zap.Error(err))
		return
	}

	c.subsMu.RLock()
	entries := append([]subscriberEntry(nil), c.subscribers[eventData.EntityID]...)
	c.subsMu.RUnlock()

	for _, entry := range entries {
		entry.handler(eventData.EntityID, eventData.OldState, eventData.NewState)
	}
}

// handleDisconnect marks the client offline and starts reconnecting
func (c *Client) handleDisconnect(conn *websocket.Conn) {
	c.connMu.Lock()
	if c.conn != conn {
		c.connMu.Unlock()
		return
	}
	c.connected = false
	c.conn = nil
	reconnect := c.reconnect
	c.connMu.Unlock()
	conn.Close()

	c.logger.Warn("Connection lost")

	if reconnect {
		go c.attemptReconnect()
	}
}

// attemptReconnect retries Connect with exponential backoff
func (c *Client) attemptReconnect() {
	backoff := time.Second

	for {
		time.Sleep(backoff)

		c.connMu.RLock()
		stop := !c.reconnect || c.connected
		c.connMu.RUnlock()
		if stop {
			return
		}

		c.logger.Info("Attempting to reconnect...")
		if err := c.Connect(); err != nil {
			c.logger.Error("Reconnection failed", zap.Error(err), zap.Duration("backoff", backoff))
			backoff *= 2
			if backoff > c.opts.MaxBackoff {
				backoff = c.opts.MaxBackoff
			}
			continue
		}

		c.logger.Info("Reconnected successfully")
		return
	}
}

func (c *Client) subscribeToStateChanges() error {
	req := &SubscribeEventsRequest{
		ID:        c.nextMsgID(),
		Type:      "subscribe_events",
		EventType: "state_changed",
	}

	_, err := c.sendMessage(context.Background(), req)
	return err
}

// GetState retrieves the state of an entity
func (c *Client) GetState(entityID string) (*State, error) {
	states, err := c.GetAllStates()
	if err != nil {
		return nil, err
	}

	for _, state := range states {
		if state.EntityID == entityID {
			return state, nil
		}
	}

	return nil, fmt.Errorf("entity %s not found", entityID)
}

// GetAllStates retrieves all entity states
func (c *Client) GetAllStates() ([]*State, error) {
	req := &GetStatesRequest{
		ID:   c.nextMsgID(),
		Type: "get_states",
	}

	resp, err := c.sendMessage(context.Background(), req)
	if err != nil {
		return nil, err
	}

	var states []*State
	if err := json.Unmarshal(resp.Result, &states); err != nil {
		return nil, fmt.Errorf("failed to unmarshal states: %w", err)
	}

	return states, nil
}

// CallService calls a Home Assistant service. A rejected call returns a
// *ServiceError.
func (c *Client) CallService(ctx context.Context, domain, service string, data map[string]interface{}) error {
	req := &CallServiceRequest{
		ID:          c.nextMsgID(),
		Type:        "call_service",
		Domain:      domain,
		Service:     service,
		ServiceData: data,
	}

	resp, err := c.sendMessage(ctx, req)
	if err != nil && resp != nil && resp.Error != nil {
		return &ServiceError{Domain: domain, Service: service, Code: resp.Error.Code, Message: resp.Error.Message}
	}
	if err != nil {
		return fmt.Errorf("calling %s.%s: %w", domain, service, err)
	}
	return nil
}

// SubscribeStateChanges subscribes to state changes for a specific entity
func (c *Client) SubscribeStateChanges(entityID string, handler StateChangeHandler) (Subscription, error) {
	c.subsMu.Lock()
	subID := c.nextSubID
	c.nextSubID++
	c.subscribers[entityID] = append(c.subscribers[entityID], subscriberEntry{
		subID:   subID,
		handler: handler,
	})
	c.subsMu.Unlock()

	return &subscription{
		entityID: entityID,
		subID:    subID,
		client:   c,
	}, nil
}

// unsubscribe removes a specific subscription by entity ID and subscription ID
func (c *Client) unsubscribe(entityID string, subID int) error {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()

	entries := c.subscribers[entityID]
	for i, entry := range entries {
		if entry.subID == subID {
			c.subscribers[entityID] = append(entries[:i:i], entries[i+1:]...)
			break
		}
	}
	if len(c.subscribers[entityID]) == 0 {
		delete(c.subscribers, entityID)
	}

	return nil
}

// SetInputBoolean sets the value of an input_boolean
func (c *Client) SetInputBoolean(name string, value bool) error {
	service := "turn_off"
	if value {
		service = "turn_on"
	}

	return c.CallService(context.Background(), "input_boolean", service, map[string]interface{}{
		"entity_id": fmt.Sprintf("input_boolean.%s", name),
	})
}

// SetInputNumber sets the value of an input_number
func (c *Client) SetInputNumber(name string, value float64) error {
	return c.CallService(context.Background(), "input_number", "set_value", map[string]interface{}{
		"entity_id": fmt.Sprintf("input_number.%s", name),
		"value":     value,
	})
}

// SetInputText sets the value of an input_text
func (c *Client) SetInputText(name string, value string) error {
	return c.CallService(context.Background(), "input_text", "set_value", map[string]interface{}{
		"entity_id": fmt.Sprintf("input_text.%s", name),
		"value":     value,
	})
}
