package shadowstate

import (
	"fmt"
	"sync"

	"github.com/walnadz/solatsyncmy/internal/state"

	"go.uber.org/zap"
)

// ShadowInputUpdater is the interface that shadow trackers must implement
// to receive automatic input updates from SubscriptionHelper.
type ShadowInputUpdater interface {
	UpdateCurrentInputs(inputs map[string]interface{})
}

// SubscriptionHelper wraps state subscriptions so the subscribed values are
// captured into the plugin's shadow inputs before each handler runs.
type SubscriptionHelper struct {
	stateManager  *state.Manager
	shadowTracker ShadowInputUpdater
	pluginName    string
	logger        *zap.Logger

	mu   sync.Mutex
	keys []string
	subs []state.Subscription
}

// NewSubscriptionHelper creates a new subscription helper for a plugin
func NewSubscriptionHelper(stateManager *state.Manager, shadowTracker ShadowInputUpdater, pluginName string, logger *zap.Logger) *SubscriptionHelper {
	return &SubscriptionHelper{
		stateManager:  stateManager,
		shadowTracker: shadowTracker,
		pluginName:    pluginName,
		logger:        logger,
	}
}

// SubscribeToState subscribes to a state variable change
func (h *SubscriptionHelper) SubscribeToState(key string, handler state.StateChangeHandler) error {
	sub, err := h.stateManager.Subscribe(key, func(k string, oldValue, newValue interface{}) {
		h.CaptureInputs()
		handler(k, oldValue, newValue)
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", key, err)
	}

	h.mu.Lock()
	h.keys = appendUnique(h.keys, key)
	h.subs = append(h.subs, sub)
	h.mu.Unlock()
	return nil
}

// Track adds a key to the captured inputs without subscribing to it
func (h *SubscriptionHelper) Track(key string) {
	h.mu.Lock()
	h.keys = appendUnique(h.keys, key)
	h.mu.Unlock()
}

// Keys returns the tracked state keys
func (h *SubscriptionHelper) Keys() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.keys...)
}

// CaptureInputs reads every tracked key and pushes the values to the tracker
func (h *SubscriptionHelper) CaptureInputs() map[string]interface{} {
	inputs := make(map[string]interface{})
	for _, key := range h.Keys() {
		if val, err := h.value(key); err == nil {
			inputs[key] = val
		} else {
			h.logger.Debug("Failed to capture shadow input",
				zap.String("plugin", h.pluginName),
				zap.String("key", key),
				zap.Error(err))
		}
	}
	if h.shadowTracker != nil {
		h.shadowTracker.UpdateCurrentInputs(inputs)
	}
	return inputs
}

func (h *SubscriptionHelper) value(key string) (interface{}, error) {
	variable, ok := state.VariablesByKey()[key]
	if !ok {
		return nil, fmt.Errorf("unknown state variable %s", key)
	}
	switch variable.Type {
	case state.TypeBool:
		return h.stateManager.GetBool(key)
	case state.TypeNumber:
		return h.stateManager.GetNumber(key)
	case state.TypeString:
		return h.stateManager.GetString(key)
	default:
		var v interface{}
		err := h.stateManager.GetJSON(key, &v)
		return v, err
	}
}

// UnsubscribeAll cleans up all subscriptions
func (h *SubscriptionHelper) UnsubscribeAll() {
	h.mu.Lock()
	subs := h.subs
	h.subs = nil
	h.mu.Unlock()

	for _, sub := range subs {
		sub.Unsubscribe()
	}
}

func appendUnique(keys []string, key string) []string {
	for _, k := range keys {
		if k == key {
			return keys
		}
	}
	return append(keys, key)
}
