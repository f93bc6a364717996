package state

import (
	"encoding/json"
	"fmt"
	"strconv"
	"sync"

	"github.com/walnadz/solatsyncmy/internal/ha"

	"go.uber.org/zap"
)

// StateChangeHandler is called when a state variable changes
type StateChangeHandler func(key string, oldValue, newValue interface{})

// Subscription represents an active state change subscription
type Subscription interface {
	Unsubscribe()
}

type subscription struct {
	key     string
	id      uint64
	manager *Manager
}

func (s *subscription) Unsubscribe() {
	s.manager.unsubscribe(s.key, s.id)
}

// Manager manages state synchronization with Home Assistant
type Manager struct {
	client      ha.HAClient
	logger      *zap.Logger
	readOnly    bool
	cache       map[string]interface{}
	cacheMu     sync.RWMutex
	variables   map[string]StateVariable
	entityToKey map[string]string
	subscribers map[string]map[uint64]StateChangeHandler
	nextSubID   uint64
	subsMu      sync.RWMutex
	haSubs      map[string]ha.Subscription
	haSubsMu    sync.Mutex
}

// NewManager creates a new state manager. In read-only mode values are kept
// locally and never written to Home Assistant.
func NewManager(client ha.HAClient, logger *zap.Logger, readOnly bool) *Manager {
	variables := VariablesByKey()
	entityToKey := make(map[string]string)

	for key, v := range variables {
		if v.LocalOnly {
			continue
		}
		entityToKey[v.EntityID] = key
	}

	return &Manager{
		client:      client,
		logger:      logger.Named("state"),
		readOnly:    readOnly,
		cache:       make(map[string]interface{}),
		variables:   variables,
		entityToKey: entityToKey,
		subscribers: make(map[string]map[uint64]StateChangeHandler),
		haSubs:      make(map[string]ha.Subscription),
	}
}

// SyncFromHA reads all state variables from Home Assistant
func (m *Manager) SyncFromHA() error {
	m.logger.Info("Syncing state from Home Assistant...")

	states, err := m.client.GetAllStates()
	if err != nil {
		return fmt.Errorf("failed to get states: %w", err)
	}

	stateMap := make(map[string]*ha.State)
	for _, state := range states {
		stateMap[state.EntityID] = state
	}

	syncCount := 0
	localCount := 0
	for _, variable := range AllVariables {
		if variable.LocalOnly {
			m.setCached(variable.Key, variable.Default)
			localCount++
			m.logger.Debug("Initialized local-only variable",
				zap.String("key", variable.Key))
			continue
		}

		state, ok := stateMap[variable.EntityID]
		if !ok {
			m.logger.Warn("Entity not found in HA, using default",
				zap.String("entity_id", variable.EntityID),
				zap.String("key", variable.Key))
			m.setCached(variable.Key, variable.Default)
			continue
		}

		value, err := m.parseStateValue(state.State, variable.Type)
		if err != nil {
			m.logger.Error("Failed to parse state value",
				zap.String("entity_id", variable.EntityID),
				zap.String("key", variable.Key),
				zap.Error(err))
			m.setCached(variable.Key, variable.Default)
			continue
		}

		m.setCached(variable.Key, value)
		syncCount++

		// Outputs are written by this service only
		if variable.ReadOnly {
			continue
		}

		if err := m.subscribeToEntity(variable.EntityID, variable.Key); err != nil {
			m.logger.Warn("Failed to subscribe to entity",
				zap.String("entity_id", variable.EntityID),
				zap.Error(err))
		}
	}

	m.logger.Info("State sync complete",
		zap.Int("synced", syncCount),
		zap.Int("local_only", localCount),
		zap.Int("total", len(AllVariables)),
		zap.Bool("read_only", m.readOnly))

	return nil
}

// parseStateValue parses a state string into the appropriate type
func (m *Manager) parseStateValue(stateStr string, varType StateType) (interface{}, error) {
	switch varType {
	case TypeBool:
		return stateStr == "on", nil
	case TypeNumber:
		return strconv.ParseFloat(stateStr, 64)
	case TypeString:
		return stateStr, nil
	case TypeJSON:
		var result interface{}
		if err := json.Unmarshal([]byte(stateStr), &result); err != nil {
			return map[string]interface{}{}, nil
		}
		return result, nil
	default:
		return nil, fmt.Errorf("unknown type: %s", varType)
	}
}

// subscribeToEntity subscribes to state changes for an entity
func (m *Manager) subscribeToEntity(entityID, key string) error {
	m.haSubsMu.Lock()
	defer m.haSubsMu.Unlock()

	if _, ok := m.haSubs[entityID]; ok {
		return nil
	}

	sub, err := m.client.SubscribeStateChanges(entityID, func(entity string, oldState, newState *ha.State) {
		if newState == nil {
			return
		}

		variable, ok := m.variables[key]
		if !ok {
			return
		}

		newValue, err := m.parseStateValue(newState.State, variable.Type)
		if err != nil {
			m.logger.Error("Failed to parse state change",
				zap.String("entity_id", entityID),
				zap.String("key", key),
				zap.Error(err))
			return
		}

		m.cacheMu.Lock()
		oldValue := m.cache[key]
		m.cache[key] = newValue
		m.cacheMu.Unlock()

		if variable.Type != TypeJSON && oldValue == newValue {
			return
		}

		m.logger.Debug("State changed",
			zap.String("key", key),
			zap.Any("old", oldValue),
			zap.Any("new", newValue))

		m.notifySubscribers(key, oldValue, newValue)
	})
	if err != nil {
		return err
	}

	m.haSubs[entityID] = sub
	return nil
}

// notifySubscribers calls every handler for key in turn. A panicking handler
// is logged and does not stop the others.
func (m *Manager) notifySubscribers(key string, oldValue, newValue interface{}) {
	m.subsMu.RLock()
	handlers := make([]StateChangeHandler, 0, len(m.subscribers[key]))
	for _, handler := range m.subscribers[key] {
		handlers = append(handlers, handler)
	}
	m.subsMu.RUnlock()

	for _, handler := range handlers {
		m.callHandler(handler, key, oldValue, newValue)
	}
}

func (m *Manager) callHandler(handler StateChangeHandler, key string, oldValue, newValue interface{}) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("State change handler panicked",
				zap.String("key", key),
				zap.Any("panic", r))
		}
	}()
	handler(key, oldValue, newValue)
}

func (m *Manager) setCached(key string, value interface{}) interface{} {
	m.cacheMu.Lock()
	defer m.cacheMu.Unlock()
	old := m.cache[key]
	m.cache[key] = value
	return old
}

var typeMismatch = map[StateType]string{
	TypeBool:   "not a boolean",
	TypeString: "not a string",
	TypeNumber: "not a number",
	TypeJSON:   "not JSON",
}

func (m *Manager) lookup(key string, want StateType) (StateVariable, error) {
	variable, ok := m.variables[key]
	if !ok {
		return StateVariable{}, fmt.Errorf("variable %s not found", key)
	}
	if variable.Type != want {
		return StateVariable{}, fmt.Errorf("variable %s is %s", key, typeMismatch[want])
	}
	return variable, nil
}

// write updates the cache and pushes the value to HA, rolling back on failure
func (m *Manager) write(variable StateVariable, value interface{}, push func(name string) error) error {
	oldValue := m.setCached(variable.Key, value)

	if variable.LocalOnly {
		return nil
	}

	if m.readOnly {
		m.logger.Debug("READ-ONLY mode: Would update HA entity",
			zap.String("entity_id", variable.EntityID),
			zap.Any("value", value))
		return nil
	}

	if err := push(extractEntityName(variable.EntityID)); err != nil {
		m.setCached(variable.Key, oldValue)
		return fmt.Errorf("failed to set HA value: %w", err)
	}
	return nil
}

// GetBool retrieves a boolean state variable
func (m *Manager) GetBool(key string) (bool, error) {
	variable, err := m.lookup(key, TypeBool)
	if err != nil {
		return false, err
	}

	m.cacheMu.RLock()
	value, ok := m.cache[key]
	m.cacheMu.RUnlock()

	if !ok {
		return variable.Default.(bool), nil
	}

	boolValue, ok := value.(bool)
	if !ok {
		return false, fmt.Errorf("cached value for %s is not a boolean", key)
	}
	return boolValue, nil
}

// SetBool sets a boolean state variable
func (m *Manager) SetBool(key string, value bool) error {
	variable, err := m.lookup(key, TypeBool)
	if err != nil {
		return err
	}
	return m.write(variable, value, func(name string) error {
		return m.client.SetInputBoolean(name, value)
	})
}

// GetString retrieves a string state variable
func (m *Manager) GetString(key string) (string, error) {
	variable, err := m.lookup(key, TypeString)
	if err != nil {
		return "", err
	}

	m.cacheMu.RLock()
	value, ok := m.cache[key]
	m.cacheMu.RUnlock()

	if !ok {
		return variable.Default.(string), nil
	}

	strValue, ok := value.(string)
	if !ok {
		return "", fmt.Errorf("cached value for %s is not a string", key)
	}
	return strValue, nil
}

// SetString sets a string state variable. Unchanged values are not re-sent.
func (m *Manager) SetString(key string, value string) error {
	variable, err := m.lookup(key, TypeString)
	if err != nil {
		return err
	}

	m.cacheMu.RLock()
	current, ok := m.cache[key]
	m.cacheMu.RUnlock()
	if ok && current == value {
		return nil
	}

	return m.write(variable, value, func(name string) error {
		return m.client.SetInputText(name, value)
	})
}

// GetNumber retrieves a number state variable
func (m *Manager) GetNumber(key string) (float64, error) {
	variable, err := m.lookup(key, TypeNumber)
	if err != nil {
		return 0, err
	}

	m.cacheMu.RLock()
	value, ok := m.cache[key]
	m.cacheMu.RUnlock()

	if !ok {
		return variable.Default.(float64), nil
	}

	numValue, ok := value.(float64)
	if !ok {
		return 0, fmt.Errorf("cached value for %s is not a number", key)
	}
	return numValue, nil
}

// SetNumber sets a number state variable
func (m *Manager) SetNumber(key string, value float64) error {
	variable, err := m.lookup(key, TypeNumber)
	if err != nil {
		return err
	}
	return m.write(variable, value, func(name string) error {
		return m.client.SetInputNumber(name, value)
	})
}

// GetJSON retrieves a JSON state variable
func (m *Manager) GetJSON(key string, target interface{}) error {
	variable, err := m.lookup(key, TypeJSON)
	if err != nil {
		return err
	}

	m.cacheMu.RLock()
	value, ok := m.cache[key]
	m.cacheMu.RUnlock()

	if !ok {
		value = variable.Default
	}

	jsonBytes, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal cached value: %w", err)
	}
	return json.Unmarshal(jsonBytes, target)
}

// SetJSON sets a JSON state variable
func (m *Manager) SetJSON(key string, value interface{}) error {
	variable, err := m.lookup(key, TypeJSON)
	if err != nil {
		return err
	}

	jsonBytes, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	return m.write(variable, value, func(name string) error {
		return m.client.SetInputText(name, string(jsonBytes))
	})
}

// CompareAndSwapBool atomically compares and swaps a boolean value
func (m *Manager) CompareAndSwapBool(key string, old, new bool) (bool, error) {
	variable, err := m.lookup(key, TypeBool)
	if err != nil {
		return false, err
	}

	m.cacheMu.Lock()

	currentValue, ok := m.cache[key]
	if !ok {
		currentValue = variable.Default
	}

	currentBool, ok := currentValue.(bool)
	if !ok {
		m.cacheMu.Unlock()
		return false, fmt.Errorf("cached value for %s is not a boolean", key)
	}

	if currentBool != old {
		m.cacheMu.Unlock()
		return false, nil
	}

	m.cache[key] = new

	// Release lock before calling HA client to avoid deadlock
	m.cacheMu.Unlock()

	if variable.LocalOnly || m.readOnly {
		return true, nil
	}

	entityName := extractEntityName(variable.EntityID)
	if err := m.client.SetInputBoolean(entityName, new); err != nil {
		m.cacheMu.Lock()
		m.cache[key] = old
		m.cacheMu.Unlock()
		return false, fmt.Errorf("failed to set HA value: %w", err)
	}

	return true, nil
}

// Subscribe subscribes to state changes for a variable
func (m *Manager) Subscribe(key string, handler StateChangeHandler) (Subscription, error) {
	if _, ok := m.variables[key]; !ok {
		return nil, fmt.Errorf("variable %s not found", key)
	}

	m.subsMu.Lock()
	m.nextSubID++
	id := m.nextSubID
	if m.subscribers[key] == nil {
		m.subscribers[key] = make(map[uint64]StateChangeHandler)
	}
	m.subscribers[key][id] = handler
	m.subsMu.Unlock()

	return &subscription{
		key:     key,
		id:      id,
		manager: m,
	}, nil
}

// unsubscribe removes one handler
func (m *Manager) unsubscribe(key string, id uint64) {
	m.subsMu.Lock()
	defer m.subsMu.Unlock()

	delete(m.subscribers[key], id)
	if len(m.subscribers[key]) == 0 {
		delete(m.subscribers, key)
	}
}

// IsReadOnly reports whether HA writes are suppressed
func (m *Manager) IsReadOnly() bool {
	return m.readOnly
}

// Variables returns the variable definitions in declaration order
func (m *Manager) Variables() []StateVariable {
	out := make([]StateVariable, len(AllVariables))
	copy(out, AllVariables)
	return out
}

// GetAllValues returns all cached values
func (m *Manager) GetAllValues() map[string]interface{} {
	m.cacheMu.RLock()
	defer m.cacheMu.RUnlock()

	values := make(map[string]interface{})
	for k, v := range m.cache {
		values[k] = v
	}
	return values
}

// extractEntityName extracts the entity name from full entity ID
// e.g., "input_boolean.solat_azan_enabled" -> "solat_azan_enabled"
func extractEntityName(entityID string) string {
	for i := len(entityID) - 1; i >= 0; i-- {
		if entityID[i] == '.' {
			return entityID[i+1:]
		}
	}
	return entityID
}
