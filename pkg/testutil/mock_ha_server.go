// Package testutil provides a mock Home Assistant websocket server, canned
// prayer schedules and a wired test environment for integration tests.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// connWrapper wraps a WebSocket connection with its write mutex
type connWrapper struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func (w *connWrapper) send(msg Message) {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()
	_ = w.conn.WriteJSON(msg)
}

// MockHAServer simulates the parts of the Home Assistant websocket API the
// service uses: auth, get_states, subscribe_events and call_service.
type MockHAServer struct {
	server *httptest.Server
	token  string
	logger *zap.Logger

	states   map[string]*EntityState
	statesMu sync.RWMutex

	connections []*connWrapper
	connsMu     sync.Mutex

	serviceCalls []ServiceCall
	failures     map[string]string // "domain.service" -> error message
	callsMu      sync.Mutex
}

// EntityState represents a Home Assistant entity state
type EntityState struct {
	EntityID    string                 `json:"entity_id"`
	State       string                 `json:"state"`
	Attributes  map[string]interface{} `json:"attributes"`
	LastChanged time.Time              `json:"last_changed"`
	LastUpdated time.Time              `json:"last_updated"`
}

// Message represents a WebSocket message
type Message struct {
	ID      int             `json:"id,omitempty"`
	Type    string          `json:"type"`
	Success *bool           `json:"success,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *ErrorPayload   `json:"error,omitempty"`
	Event   *Event          `json:"event,omitempty"`
}

// ErrorPayload is the error object of a failed result
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Event represents a Home Assistant event
type Event struct {
	EventType string          `json:"event_type"`
	Data      json.RawMessage `json:"data"`
	Origin    string          `json:"origin"`
	TimeFired time.Time       `json:"time_fired"`
}

// StateChangedEvent represents a state_changed event
type StateChangedEvent struct {
	EntityID string       `json:"entity_id"`
	NewState *EntityState `json:"new_state"`
	OldState *EntityState `json:"old_state"`
}

type inbound struct {
	ID          int                    `json:"id"`
	Type        string                 `json:"type"`
	AccessToken string                 `json:"access_token,omitempty"`
	Domain      string                 `json:"domain,omitempty"`
	Service     string                 `json:"service,omitempty"`
	ServiceData map[string]interface{} `json:"service_data,omitempty"`
}

// NewMockHAServer starts a mock server on a random local port
func NewMockHAServer(token string, logger *zap.Logger) *MockHAServer {
	s := &MockHAServer{
		token:    token,
		logger:   logger.Named("mock-ha"),
		states:   make(map[string]*EntityState),
		failures: make(map[string]string),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/websocket", s.handleWebSocket)
	s.server = httptest.NewServer(mux)
	return s
}

// URL returns the websocket URL clients connect to
func (s *MockHAServer) URL() string {
	return "ws" + strings.TrimPrefix(s.server.URL, "http") + "/api/websocket"
}

// Close closes all connections and stops the server
func (s *MockHAServer) Close() {
	s.connsMu.Lock()
	for _, w := range s.connections {
		w.conn.Close()
	}
	s.connections = nil
	s.connsMu.Unlock()
	s.server.Close()
}

// SetState sets an entity's state and broadcasts state_changed
func (s *MockHAServer) SetState(entityID, state string, attributes map[string]interface{}) {
	if attributes == nil {
		attributes = make(map[string]interface{})
	}
	now := time.Now()

	s.statesMu.Lock()
	oldState := s.states[entityID]
	newState := &EntityState{
		EntityID:    entityID,
		State:       state,
		Attributes:  attributes,
		LastChanged: now,
		LastUpdated: now,
	}
	s.states[entityID] = newState
	s.statesMu.Unlock()

	s.broadcastStateChange(entityID, oldState, newState)
}

// GetState returns an entity's state or nil
func (s *MockHAServer) GetState(entityID string) *EntityState {
	s.statesMu.RLock()
	defer s.statesMu.RUnlock()
	return s.states[entityID]
}

// InitializeStates creates the helper entities and one media player
func (s *MockHAServer) InitializeStates(mediaPlayer string) {
	for _, name := range []string{"azan_enabled", "reset"} {
		s.SetState("input_boolean.solat_"+name, "off", map[string]interface{}{"friendly_name": name})
	}
	for _, prayer := range []string{"fajr", "dhuhr", "asr", "maghrib", "isha"} {
		s.SetState("input_boolean.solat_azan_"+prayer, "on", nil)
	}
	s.SetState("input_number.solat_azan_volume", "0.70", map[string]interface{}{"min": 0, "max": 1})

	for _, name := range []string{"next_prayer", "next_prayer_time", "time_to_next_prayer", "hijri_date",
		"fajr_time", "syuruk_time", "dhuhr_time", "asr_time", "maghrib_time", "isha_time"} {
		s.SetState("input_text.solat_"+name, "", nil)
	}

	if mediaPlayer != "" {
		s.SetState(mediaPlayer, "off", map[string]interface{}{"volume_level": 0.3})
	}
}

// FailService makes every call to domain.service fail with message
func (s *MockHAServer) FailService(domain, service, message string) {
	s.callsMu.Lock()
	defer s.callsMu.Unlock()
	s.failures[domain+"."+service] = message
}

func (s *MockHAServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("Failed to upgrade connection", zap.Error(err))
		return
	}
	wrapper := &connWrapper{conn: conn}

	defer func() {
		s.connsMu.Lock()
		for i, c := range s.connections {
			if c == wrapper {
				s.connections = append(s.connections[:i], s.connections[i+1:]...)
				break
			}
		}
		s.connsMu.Unlock()
		conn.Close()
	}()

	wrapper.send(Message{Type: "auth_required"})

	var auth inbound
	if err := conn.ReadJSON(&auth); err != nil {
		return
	}
	if auth.AccessToken != s.token {
		wrapper.send(Message{Type: "auth_invalid"})
		return
	}
	wrapper.send(Message{Type: "auth_ok"})

	s.connsMu.Lock()
	s.connections = append(s.connections, wrapper)
	s.connsMu.Unlock()

	for {
		var msg inbound
		if err := conn.ReadJSON(&msg); err != nil {
			s.logger.Debug("Connection closed", zap.Error(err))
			return
		}

		switch msg.Type {
		case "subscribe_events":
			wrapper.send(result(msg.ID, nil))
		case "get_states":
			wrapper.send(result(msg.ID, s.statesJSON()))
		case "call_service":
			wrapper.send(s.handleCallService(msg))
		default:
			wrapper.send(result(msg.ID, nil))
		}
	}
}

func result(id int, payload json.RawMessage) Message {
	success := true
	return Message{ID: id, Type: "result", Success: &success, Result: payload}
}

func (s *MockHAServer) statesJSON() json.RawMessage {
	s.statesMu.RLock()
	states := make([]*EntityState, 0, len(s.states))
	for _, state := range s.states {
		states = append(states, state)
	}
	s.statesMu.RUnlock()

	data, _ := json.Marshal(states)
	return data
}

func (s *MockHAServer) handleCallService(req inbound) Message {
	s.callsMu.Lock()
	s.serviceCalls = append(s.serviceCalls, ServiceCall{
		Timestamp:   time.Now(),
		Domain:      req.Domain,
		Service:     req.Service,
		ServiceData: req.ServiceData,
	})
	failure, failing := s.failures[req.Domain+"."+req.Service]
	s.callsMu.Unlock()

	if failing {
		success := false
		return Message{ID: req.ID, Type: "result", Success: &success,
			Error: &ErrorPayload{Code: "home_assistant_error", Message: failure}}
	}

	entityID, _ := req.ServiceData["entity_id"].(string)
	old := s.GetState(entityID)
	if old == nil {
		return result(req.ID, nil)
	}
	attrs := make(map[string]interface{}, len(old.Attributes))
	for k, v := range old.Attributes {
		attrs[k] = v
	}

	switch req.Domain + "." + req.Service {
	case "input_boolean.turn_on":
		s.SetState(entityID, "on", attrs)
	case "input_boolean.turn_off":
		s.SetState(entityID, "off", attrs)
	case "input_number.set_value":
		if value, ok := req.ServiceData["value"].(float64); ok {
			s.SetState(entityID, fmt.Sprintf("%.2f", value), attrs)
		}
	case "input_text.set_value":
		if value, ok := req.ServiceData["value"].(string); ok {
			s.SetState(entityID, value, attrs)
		}
	case "media_player.turn_on":
		s.SetState(entityID, "idle", attrs)
	case "media_player.volume_set":
		attrs["volume_level"] = req.ServiceData["volume_level"]
		s.SetState(entityID, old.State, attrs)
	case "media_player.play_media":
		attrs["media_content_id"] = req.ServiceData["media_content_id"]
		attrs["media_content_type"] = req.ServiceData["media_content_type"]
		s.SetState(entityID, "playing", attrs)
	case "media_player.media_stop":
		s.SetState(entityID, "idle", attrs)
	}

	return result(req.ID, nil)
}

func (s *MockHAServer) broadcastStateChange(entityID string, oldState, newState *EntityState) {
	data, _ := json.Marshal(StateChangedEvent{
		EntityID: entityID,
		NewState: newState,
		OldState: oldState,
	})
	msg := Message{
		Type: "event",
		Event: &Event{
			EventType: "state_changed",
			Data:      data,
			Origin:    "LOCAL",
			TimeFired: time.Now(),
		},
	}

	s.connsMu.Lock()
	wrappers := append([]*connWrapper(nil), s.connections...)
	s.connsMu.Unlock()

	for _, w := range wrappers {
		w.send(msg)
	}
}

// GetServiceCalls returns all service calls since last clear
func (s *MockHAServer) GetServiceCalls() []ServiceCall {
	s.callsMu.Lock()
	defer s.callsMu.Unlock()
	return append([]ServiceCall(nil), s.serviceCalls...)
}

// ClearServiceCalls resets the service call log
func (s *MockHAServer) ClearServiceCalls() {
	s.callsMu.Lock()
	defer s.callsMu.Unlock()
	s.serviceCalls = nil
}

// CountServiceCalls counts service calls matching domain and service
func (s *MockHAServer) CountServiceCalls(domain, service string) int {
	return len(FilterServiceCalls(s.GetServiceCalls(), domain, service))
}
