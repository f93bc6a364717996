package shadowstate

import (
	"sort"
	"sync"
	"time"
)

// maxRecentActions bounds the azan action history
const maxRecentActions = 20

// Tracker manages shadow state for all plugins
type Tracker struct {
	mu             sync.RWMutex
	pluginStates   map[string]PluginShadowState
	stateProviders map[string]func() PluginShadowState
}

// NewTracker creates a new shadow state tracker
func NewTracker() *Tracker {
	return &Tracker{
		pluginStates:   make(map[string]PluginShadowState),
		stateProviders: make(map[string]func() PluginShadowState),
	}
}

// RegisterPlugin registers a plugin's shadow state
func (t *Tracker) RegisterPlugin(pluginName string, state PluginShadowState) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pluginStates[pluginName] = state
}

// RegisterPluginProvider registers a function that provides a plugin's shadow state dynamically
func (t *Tracker) RegisterPluginProvider(pluginName string, provider func() PluginShadowState) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stateProviders[pluginName] = provider
}

// GetPluginState retrieves a plugin's shadow state. Providers win over
// static registrations.
func (t *Tracker) GetPluginState(pluginName string) (PluginShadowState, bool) {
	t.mu.RLock()
	provider, ok := t.stateProviders[pluginName]
	state, static := t.pluginStates[pluginName]
	t.mu.RUnlock()

	if ok {
		return provider(), true
	}
	return state, static
}

// GetAllPluginStates retrieves all plugin shadow states
func (t *Tracker) GetAllPluginStates() map[string]PluginShadowState {
	t.mu.RLock()
	states := make(map[string]PluginShadowState, len(t.pluginStates)+len(t.stateProviders))
	for k, v := range t.pluginStates {
		states[k] = v
	}
	providers := make(map[string]func() PluginShadowState, len(t.stateProviders))
	for k, p := range t.stateProviders {
		providers[k] = p
	}
	t.mu.RUnlock()

	// Providers run outside the lock since they take their own locks
	for k, provider := range providers {
		states[k] = provider()
	}
	return states
}

// PluginNames returns the registered plugin names in sorted order
func (t *Tracker) PluginNames() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	seen := make(map[string]struct{}, len(t.pluginStates)+len(t.stateProviders))
	for k := range t.pluginStates {
		seen[k] = struct{}{}
	}
	for k := range t.stateProviders {
		seen[k] = struct{}{}
	}
	names := make([]string, 0, len(seen))
	for k := range seen {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// ScheduleTracker manages shadow state for the schedule plugin
type ScheduleTracker struct {
	mu    sync.RWMutex
	state *ScheduleShadowState
}

// NewScheduleTracker creates a new schedule shadow state tracker
func NewScheduleTracker(zone string) *ScheduleTracker {
	return &ScheduleTracker{
		state: NewScheduleShadowState(zone),
	}
}

// UpdateCurrentInputs updates the current input values
func (st *ScheduleTracker) UpdateCurrentInputs(inputs map[string]interface{}) {
	st.mu.Lock()
	defer st.mu.Unlock()

	for key, value := range inputs {
		st.state.Inputs.Current[key] = value
	}
	st.state.Metadata.LastUpdated = time.Now()
}

// RecordSuccess records a successful tick and what it published
func (st *ScheduleTracker) RecordSuccess(at time.Time, nextPrayer string, nextTime time.Time, isTomorrow bool, hijri string, times map[string]string) {
	st.mu.Lock()
	defer st.mu.Unlock()

	st.state.Inputs.AtLastAction = make(map[string]interface{}, len(st.state.Inputs.Current))
	for k, v := range st.state.Inputs.Current {
		st.state.Inputs.AtLastAction[k] = v
	}

	out := &st.state.Outputs
	out.NextPrayer = nextPrayer
	out.NextPrayerTime = nextTime
	out.IsTomorrow = isTomorrow
	out.HijriDate = hijri
	out.PrayerTimes = make(map[string]string, len(times))
	for k, v := range times {
		out.PrayerTimes[k] = v
	}
	out.LastSuccess = at
	out.ConsecutiveFailures = 0
	out.Ticks++
	st.state.Metadata.LastUpdated = time.Now()
}

// RecordFailure records a failed tick. Published outputs are left alone.
func (st *ScheduleTracker) RecordFailure(at time.Time, err error) {
	st.mu.Lock()
	defer st.mu.Unlock()

	st.state.Outputs.LastError = err.Error()
	st.state.Outputs.LastErrorTime = at
	st.state.Outputs.ConsecutiveFailures++
	st.state.Outputs.Ticks++
	st.state.Metadata.LastUpdated = time.Now()
}

// GetState returns the current shadow state (thread-safe copy)
func (st *ScheduleTracker) GetState() *ScheduleShadowState {
	st.mu.RLock()
	defer st.mu.RUnlock()

	stateCopy := *st.state
	stateCopy.Inputs = st.state.Inputs.clone()
	stateCopy.Outputs.PrayerTimes = make(map[string]string, len(st.state.Outputs.PrayerTimes))
	for k, v := range st.state.Outputs.PrayerTimes {
		stateCopy.Outputs.PrayerTimes[k] = v
	}
	return &stateCopy
}

// AzanTracker manages shadow state for the azan plugin
type AzanTracker struct {
	mu    sync.RWMutex
	state *AzanShadowState
}

// NewAzanTracker creates a new azan shadow state tracker
func NewAzanTracker() *AzanTracker {
	return &AzanTracker{
		state: NewAzanShadowState(),
	}
}

// UpdateCurrentInputs updates the current input values
func (at *AzanTracker) UpdateCurrentInputs(inputs map[string]interface{}) {
	at.mu.Lock()
	defer at.mu.Unlock()

	for key, value := range inputs {
		at.state.Inputs.Current[key] = value
	}
	at.state.Metadata.LastUpdated = time.Now()
}

// SetArmed replaces the set of armed timers
func (at *AzanTracker) SetArmed(armed map[string]time.Time) {
	at.mu.Lock()
	defer at.mu.Unlock()

	at.state.Outputs.Armed = make(map[string]time.Time, len(armed))
	for k, v := range armed {
		at.state.Outputs.Armed[k] = v
	}
	at.state.Metadata.LastUpdated = time.Now()
}

// RecordAction appends an action to the bounded history and snapshots inputs
func (at *AzanTracker) RecordAction(actionType, reason string, details map[string]interface{}) {
	at.mu.Lock()
	defer at.mu.Unlock()

	now := time.Now()
	at.snapshotInputsLocked()
	at.appendActionLocked(ActionRecord{
		Timestamp:  now,
		ActionType: actionType,
		Reason:     reason,
		Details:    details,
	})
	at.state.Outputs.LastActionTime = now
	at.state.Metadata.LastUpdated = now
}

// RecordPlayback records the outcome of a playback
func (at *AzanTracker) RecordPlayback(p AzanPlayback) {
	at.mu.Lock()
	defer at.mu.Unlock()

	if p.Timestamp.IsZero() {
		p.Timestamp = time.Now()
	}
	at.snapshotInputsLocked()

	actionType := "play_azan"
	reason := "scheduled azan"
	if !p.Success {
		actionType = "play_azan_failed"
		reason = p.Error
	}
	at.appendActionLocked(ActionRecord{
		Timestamp:  p.Timestamp,
		ActionType: actionType,
		Reason:     reason,
		Details: map[string]interface{}{
			"prayer":       p.Prayer,
			"date":         p.Date,
			"media_player": p.MediaPlayer,
		},
	})

	at.state.Outputs.LastPlayback = &p
	at.state.Outputs.LastActionTime = p.Timestamp
	at.state.Metadata.LastUpdated = time.Now()
}

func (at *AzanTracker) snapshotInputsLocked() {
	at.state.Inputs.AtLastAction = make(map[string]interface{}, len(at.state.Inputs.Current))
	for k, v := range at.state.Inputs.Current {
		at.state.Inputs.AtLastAction[k] = v
	}
}

func (at *AzanTracker) appendActionLocked(record ActionRecord) {
	actions := append(at.state.Outputs.RecentActions, record)
	if len(actions) > maxRecentActions {
		actions = actions[len(actions)-maxRecentActions:]
	}
	at.state.Outputs.RecentActions = actions
}

// GetState returns the current shadow state (thread-safe copy)
func (at *AzanTracker) GetState() *AzanShadowState {
	at.mu.RLock()
	defer at.mu.RUnlock()

	stateCopy := *at.state
	stateCopy.Inputs = at.state.Inputs.clone()
	stateCopy.Outputs.Armed = make(map[string]time.Time, len(at.state.Outputs.Armed))
	for k, v := range at.state.Outputs.Armed {
		stateCopy.Outputs.Armed[k] = v
	}
	stateCopy.Outputs.RecentActions = append([]ActionRecord(nil), at.state.Outputs.RecentActions...)
	if at.state.Outputs.LastPlayback != nil {
		last := *at.state.Outputs.LastPlayback
		stateCopy.Outputs.LastPlayback = &last
	}
	return &stateCopy
}
