package shadowstate

import "time"

// PluginShadowState is the interface that all plugin shadow states must implement
type PluginShadowState interface {
	GetCurrentInputs() map[string]interface{}
	GetLastActionInputs() map[string]interface{}
	GetOutputs() interface{}
	GetMetadata() StateMetadata
}

// StateMetadata contains metadata about the shadow state
type StateMetadata struct {
	LastUpdated time.Time `json:"lastUpdated"`
	PluginName  string    `json:"pluginName"`
}

// ActionRecord represents a single action taken by a plugin
type ActionRecord struct {
	Timestamp  time.Time              `json:"timestamp"`
	ActionType string                 `json:"actionType"`
	Reason     string                 `json:"reason"`
	Details    map[string]interface{} `json:"details,omitempty"`
}

// PluginInputs tracks current and last-action input values
type PluginInputs struct {
	Current      map[string]interface{} `json:"current"`
	AtLastAction map[string]interface{} `json:"atLastAction"`
}

func newPluginInputs() PluginInputs {
	return PluginInputs{
		Current:      make(map[string]interface{}),
		AtLastAction: make(map[string]interface{}),
	}
}

func (in PluginInputs) clone() PluginInputs {
	out := newPluginInputs()
	for k, v := range in.Current {
		out.Current[k] = v
	}
	for k, v := range in.AtLastAction {
		out.AtLastAction[k] = v
	}
	return out
}

// ScheduleShadowState represents the shadow state for the schedule plugin
type ScheduleShadowState struct {
	Plugin   string          `json:"plugin"`
	Inputs   PluginInputs    `json:"inputs"`
	Outputs  ScheduleOutputs `json:"outputs"`
	Metadata StateMetadata   `json:"metadata"`
}

// ScheduleOutputs is what the last tick published
type ScheduleOutputs struct {
	Zone                string            `json:"zone"`
	NextPrayer          string            `json:"nextPrayer,omitempty"`
	NextPrayerTime      time.Time         `json:"nextPrayerTime,omitempty"`
	IsTomorrow          bool              `json:"isTomorrow"`
	HijriDate           string            `json:"hijriDate,omitempty"`
	PrayerTimes         map[string]string `json:"prayerTimes"`
	LastSuccess         time.Time         `json:"lastSuccess,omitempty"`
	LastError           string            `json:"lastError,omitempty"`
	LastErrorTime       time.Time         `json:"lastErrorTime,omitempty"`
	ConsecutiveFailures int               `json:"consecutiveFailures"`
	Ticks               int               `json:"ticks"`
}

// GetCurrentInputs implements PluginShadowState
func (s *ScheduleShadowState) GetCurrentInputs() map[string]interface{} {
	return s.Inputs.Current
}

// GetLastActionInputs implements PluginShadowState
func (s *ScheduleShadowState) GetLastActionInputs() map[string]interface{} {
	return s.Inputs.AtLastAction
}

// GetOutputs implements PluginShadowState
func (s *ScheduleShadowState) GetOutputs() interface{} {
	return s.Outputs
}

// GetMetadata implements PluginShadowState
func (s *ScheduleShadowState) GetMetadata() StateMetadata {
	return s.Metadata
}

// NewScheduleShadowState creates a new schedule shadow state
func NewScheduleShadowState(zone string) *ScheduleShadowState {
	return &ScheduleShadowState{
		Plugin: "schedule",
		Inputs: newPluginInputs(),
		Outputs: ScheduleOutputs{
			Zone:        zone,
			PrayerTimes: make(map[string]string),
		},
		Metadata: StateMetadata{
			LastUpdated: time.Now(),
			PluginName:  "schedule",
		},
	}
}

// AzanShadowState represents the shadow state for the azan plugin
type AzanShadowState struct {
	Plugin   string        `json:"plugin"`
	Inputs   PluginInputs  `json:"inputs"`
	Outputs  AzanOutputs   `json:"outputs"`
	Metadata StateMetadata `json:"metadata"`
}

// AzanOutputs tracks armed timers and playback history
type AzanOutputs struct {
	// Armed maps prayer name to the time its timer fires
	Armed          map[string]time.Time `json:"armed"`
	LastPlayback   *AzanPlayback        `json:"lastPlayback,omitempty"`
	RecentActions  []ActionRecord       `json:"recentActions"`
	LastActionTime time.Time            `json:"lastActionTime"`
}

// AzanPlayback records one azan playback
type AzanPlayback struct {
	Prayer      string    `json:"prayer"`
	Date        string    `json:"date"`
	MediaPlayer string    `json:"mediaPlayer"`
	URL         string    `json:"url,omitempty"`
	Profile     string    `json:"profile,omitempty"`
	Attempt     int       `json:"attempt,omitempty"`
	Success     bool      `json:"success"`
	DryRun      bool      `json:"dryRun,omitempty"`
	Error       string    `json:"error,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// GetCurrentInputs implements PluginShadowState
func (a *AzanShadowState) GetCurrentInputs() map[string]interface{} {
	return a.Inputs.Current
}

// GetLastActionInputs implements PluginShadowState
func (a *AzanShadowState) GetLastActionInputs() map[string]interface{} {
	return a.Inputs.AtLastAction
}

// GetOutputs implements PluginShadowState
func (a *AzanShadowState) GetOutputs() interface{} {
	return a.Outputs
}

// GetMetadata implements PluginShadowState
func (a *AzanShadowState) GetMetadata() StateMetadata {
	return a.Metadata
}

// NewAzanShadowState creates a new azan shadow state
func NewAzanShadowState() *AzanShadowState {
	return &AzanShadowState{
		Plugin: "azan",
		Inputs: newPluginInputs(),
		Outputs: AzanOutputs{
			Armed:         make(map[string]time.Time),
			RecentActions: make([]ActionRecord, 0),
		},
		Metadata: StateMetadata{
			LastUpdated: time.Now(),
			PluginName:  "azan",
		},
	}
}
