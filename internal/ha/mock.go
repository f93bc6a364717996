package ha

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// ServiceCall records a service call for testing
type ServiceCall struct {
	Domain  string
	Service string
	Data    map[string]interface{}
	Time    time.Time
}

// ServiceFailure decides whether a recorded call should fail. Returning nil
// lets the call through.
type ServiceFailure func(call ServiceCall) error

// MockClient implements HAClient in memory. Service calls are recorded and
// applied to the stored states the way Home Assistant would.
type MockClient struct {
	states   map[string]*State
	statesMu sync.RWMutex

	subscribers map[string][]subscriberEntry
	nextSubID   int
	subsMu      sync.RWMutex

	connected bool
	connMu    sync.RWMutex

	serviceCalls []ServiceCall
	failures     []ServiceFailure
	callsMu      sync.Mutex
}

type mockSubscription struct {
	entityID string
	subID    int
	mock     *MockClient
}

func (s *mockSubscription) Unsubscribe() error {
	return s.mock.unsubscribe(s.entityID, s.subID)
}

// NewMockClient creates a new mock HA client
func NewMockClient() *MockClient {
	return &MockClient{
		states:      make(map[string]*State),
		subscribers: make(map[string][]subscriberEntry),
	}
}

// Connect simulates connecting to Home Assistant
func (m *MockClient) Connect() error {
	m.connMu.Lock()
	defer m.connMu.Unlock()

	if m.connected {
		return fmt.Errorf("already connected")
	}
	m.connected = true
	return nil
}

// Disconnect simulates disconnecting
func (m *MockClient) Disconnect() error {
	m.connMu.Lock()
	m.connected = false
	m.connMu.Unlock()

	m.subsMu.Lock()
	m.subscribers = make(map[string][]subscriberEntry)
	m.subsMu.Unlock()
	return nil
}

// IsConnected returns connection status
func (m *MockClient) IsConnected() bool {
	m.connMu.RLock()
	defer m.connMu.RUnlock()
	return m.connected
}

// GetState retrieves a mock state
func (m *MockClient) GetState(entityID string) (*State, error) {
	m.statesMu.RLock()
	defer m.statesMu.RUnlock()

	state, ok := m.states[entityID]
	if !ok {
		return nil, fmt.Errorf("entity %s not found", entityID)
	}
	return state, nil
}

// GetAllStates retrieves all mock states
func (m *MockClient) GetAllStates() ([]*State, error) {
	m.statesMu.RLock()
	defer m.statesMu.RUnlock()

	states := make([]*State, 0, len(m.states))
	for _, state := range m.states {
		states = append(states, state)
	}
	return states, nil
}

// FailServiceCalls registers a failure rule checked on every call
func (m *MockClient) FailServiceCalls(rule ServiceFailure) {
	m.callsMu.Lock()
	m.failures = append(m.failures, rule)
	m.callsMu.Unlock()
}

// CallService records a service call and applies it to the mock states
func (m *MockClient) CallService(ctx context.Context, domain, service string, data map[string]interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	call := ServiceCall{Domain: domain, Service: service, Data: data, Time: time.Now()}

	m.callsMu.Lock()
	m.serviceCalls = append(m.serviceCalls, call)
	failures := append([]ServiceFailure(nil), m.failures...)
	m.callsMu.Unlock()

	for _, rule := range failures {
		if err := rule(call); err != nil {
			return err
		}
	}

	if entityID, ok := data["entity_id"].(string); ok {
		m.applyServiceCall(entityID, domain, service, data)
	}
	return nil
}

// SubscribeStateChanges subscribes to state changes
func (m *MockClient) SubscribeStateChanges(entityID string, handler StateChangeHandler) (Subscription, error) {
	m.subsMu.Lock()
	subID := m.nextSubID
	m.nextSubID++
	m.subscribers[entityID] = append(m.subscribers[entityID], subscriberEntry{
		subID:   subID,
		handler: handler,
	})
	m.subsMu.Unlock()

	return &mockSubscription{entityID: entityID, subID: subID, mock: m}, nil
}

func (m *MockClient) unsubscribe(entityID string, subID int) error {
	m.subsMu.Lock()
	defer m.subsMu.Unlock()

	entries := m.subscribers[entityID]
	for i, entry := range entries {
		if entry.subID == subID {
			m.subscribers[entityID] = append(entries[:i:i], entries[i+1:]...)
			break
		}
	}
	if len(m.subscribers[entityID]) == 0 {
		delete(m.subscribers, entityID)
	}
	return nil
}

// SetInputBoolean sets a mock input_boolean
func (m *MockClient) SetInputBoolean(name string, value bool) error {
	service := "turn_off"
	if value {
		service = "turn_on"
	}
	return m.CallService(context.Background(), "input_boolean", service, map[string]interface{}{
		"entity_id": fmt.Sprintf("input_boolean.%s", name),
	})
}

// SetInputNumber sets a mock input_number
func (m *MockClient) SetInputNumber(name string, value float64) error {
	return m.CallService(context.Background(), "input_number", "set_value", map[string]interface{}{
		"entity_id": fmt.Sprintf("input_number.%s", name),
		"value":     value,
	})
}

// SetInputText sets a mock input_text
func (m *MockClient) SetInputText(name string, value string) error {
	return m.CallService(context.Background(), "input_text", "set_value", map[string]interface{}{
		"entity_id": fmt.Sprintf("input_text.%s", name),
		"value":     value,
	})
}

// SetState sets a mock state and notifies subscribers
func (m *MockClient) SetState(entityID string, stateValue string, attributes map[string]interface{}) {
	now := time.Now()
	newState := &State{
		EntityID:    entityID,
		State:       stateValue,
		Attributes:  attributes,
		LastChanged: now,
		LastUpdated: now,
	}

	m.statesMu.Lock()
	oldState := m.states[entityID]
	m.states[entityID] = newState
	m.statesMu.Unlock()

	m.notifySubscribers(entityID, oldState, newState)
}

// SimulateStateChange changes an entity's state keeping its attributes
func (m *MockClient) SimulateStateChange(entityID string, newStateValue string) {
	attributes := make(map[string]interface{})
	m.statesMu.RLock()
	if old, ok := m.states[entityID]; ok && old.Attributes != nil {
		attributes = old.Attributes
	}
	m.statesMu.RUnlock()

	m.SetState(entityID, newStateValue, attributes)
}

// GetServiceCalls returns all recorded service calls
func (m *MockClient) GetServiceCalls() []ServiceCall {
	m.callsMu.Lock()
	defer m.callsMu.Unlock()

	calls := make([]ServiceCall, len(m.serviceCalls))
	copy(calls, m.serviceCalls)
	return calls
}

// ServiceCallsFor returns the recorded calls for one domain and service
func (m *MockClient) ServiceCallsFor(domain, service string) []ServiceCall {
	var out []ServiceCall
	for _, call := range m.GetServiceCalls() {
		if call.Domain == domain && call.Service == service {
			out = append(out, call)
		}
	}
	return out
}

// ClearServiceCalls clears the service call history
func (m *MockClient) ClearServiceCalls() {
	m.callsMu.Lock()
	defer m.callsMu.Unlock()
	m.serviceCalls = nil
}

// applyServiceCall mirrors what Home Assistant does with a successful call
func (m *MockClient) applyServiceCall(entityID, domain, service string, data map[string]interface{}) {
	m.statesMu.Lock()
	oldState := m.states[entityID]

	value := ""
	attributes := make(map[string]interface{})
	if oldState != nil {
		value = oldState.State
		for k, v := range oldState.Attributes {
			attributes[k] = v
		}
	}

	switch domain {
	case "input_boolean":
		switch service {
		case "turn_on":
			value = "on"
		case "turn_off":
			value = "off"
		}
	case "input_number":
		if v, ok := data["value"].(float64); ok {
			value = fmt.Sprintf("%.2f", v)
		}
	case "input_text":
		if v, ok := data["value"].(string); ok {
			value = v
		}
	case "media_player":
		switch service {
		case "turn_on":
			value = "on"
		case "volume_set":
			attributes["volume_level"] = data["volume_level"]
		case "play_media":
			value = "playing"
			attributes["media_content_id"] = data["media_content_id"]
			attributes["media_content_type"] = data["media_content_type"]
		case "media_stop":
			value = "idle"
		}
	}

	now := time.Now()
	newState := &State{
		EntityID:    entityID,
		State:       value,
		Attributes:  attributes,
		LastChanged: now,
		LastUpdated: now,
	}
	m.states[entityID] = newState
	m.statesMu.Unlock()

	m.notifySubscribers(entityID, oldState, newState)
}

func (m *MockClient) notifySubscribers(entityID string, oldState, newState *State) {
	m.subsMu.RLock()
	entries := append([]subscriberEntry(nil), m.subscribers[entityID]...)
	m.subsMu.RUnlock()

	for _, entry := range entries {
		entry.handler(entityID, oldState, newState)
	}
}
