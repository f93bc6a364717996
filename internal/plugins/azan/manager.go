// Package azan arms a timer for every enabled prayer still ahead and plays
// the azan through Home Assistant when it fires.
package azan

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	playback "github.com/walnadz/solatsyncmy/internal/azan"
	"github.com/walnadz/solatsyncmy/internal/clock"
	"github.com/walnadz/solatsyncmy/internal/prayertime"
	"github.com/walnadz/solatsyncmy/internal/shadowstate"
	"github.com/walnadz/solatsyncmy/internal/state"
)

// playTimeout bounds one playback including every profile attempt
const playTimeout = 2 * time.Minute

// lastAzan is stored under state.KeyLastAzan to avoid playing a prayer twice
type lastAzan struct {
	Prayer      string    `json:"prayer"`
	Date        string    `json:"date"`
	MediaPlayer string    `json:"media_player,omitempty"`
	URL         string    `json:"url,omitempty"`
	PlayedAt    time.Time `json:"played_at"`
}

type armedTimer struct {
	at    time.Time
	timer clock.Timer
}

// Manager owns the azan timers
type Manager struct {
	cache         *prayertime.Cache
	stateManager  *state.Manager
	player        *playback.Player
	clock         clock.Clock
	defaultVolume float64
	logger        *zap.Logger
	readOnly      bool

	mu      sync.Mutex
	started bool
	timers  map[prayertime.Prayer]armedTimer

	inflight sync.WaitGroup

	helper        *shadowstate.SubscriptionHelper
	shadowTracker *shadowstate.AzanTracker
}

// NewManager creates an azan timer manager. defaultVolume is used when the
// volume helper holds no usable value.
func NewManager(
	cache *prayertime.Cache,
	stateManager *state.Manager,
	player *playback.Player,
	clk clock.Clock,
	defaultVolume float64,
	logger *zap.Logger,
	readOnly bool,
) *Manager {
	if clk == nil {
		clk = clock.NewRealClock()
	}
	if defaultVolume < 0 || defaultVolume > 1 {
		defaultVolume = playback.DefaultVolume
	}

	tracker := shadowstate.NewAzanTracker()
	named := logger.Named("azan-timer")
	return &Manager{
		cache:         cache,
		stateManager:  stateManager,
		player:        player,
		clock:         clk,
		defaultVolume: defaultVolume,
		logger:        named,
		readOnly:      readOnly,
		timers:        make(map[prayertime.Prayer]armedTimer),
		helper:        shadowstate.NewSubscriptionHelper(stateManager, tracker, "azan", named),
		shadowTracker: tracker,
	}
}

// GetShadowState returns the current shadow state
func (m *Manager) GetShadowState() *shadowstate.AzanShadowState {
	return m.shadowTracker.GetState()
}

// Start subscribes to the enable switches and the schedule and arms timers
// from the current snapshot.
func (m *Manager) Start() error {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return fmt.Errorf("azan manager already started")
	}
	m.started = true
	m.mu.Unlock()

	m.logger.Info("Starting Azan Manager",
		zap.String("media_player", m.player.MediaPlayer()),
		zap.Bool("read_only", m.readOnly))

	switches := []string{state.KeyAzanEnabled}
	for _, p := range prayertime.AzanPrayers {
		switches = append(switches, state.AzanSwitchKey(string(p)))
	}
	for _, key := range switches {
		if err := m.helper.SubscribeToState(key, m.handleSwitchChange); err != nil {
			m.Stop()
			return err
		}
	}
	m.helper.Track(state.KeyAzanVolume)
	m.helper.CaptureInputs()

	m.cache.OnUpdate(func(snap prayertime.Snapshot) {
		m.arm(snap, "schedule updated")
	})
	m.arm(m.cache.Snapshot(), "startup")

	m.logger.Info("Azan Manager started successfully")
	return nil
}

// Stop cancels pending timers and waits for a playback in progress
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.started {
		m.mu.Unlock()
		return
	}
	m.started = false
	m.stopTimersLocked()
	m.mu.Unlock()

	m.helper.UnsubscribeAll()
	m.inflight.Wait()
	m.shadowTracker.SetArmed(nil)

	m.logger.Info("Azan Manager stopped")
}

// Reset re-arms timers from the current snapshot
func (m *Manager) Reset() error {
	m.logger.Info("Resetting azan timers")
	m.helper.CaptureInputs()
	m.arm(m.cache.Snapshot(), "reset")
	return nil
}

// Armed returns the armed prayers and their fire times
func (m *Manager) Armed() map[prayertime.Prayer]time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[prayertime.Prayer]time.Time, len(m.timers))
	for p, t := range m.timers {
		out[p] = t.at
	}
	return out
}

func (m *Manager) handleSwitchChange(key string, oldValue, newValue interface{}) {
	m.logger.Debug("Azan switch changed",
		zap.String("key", key),
		zap.Any("old", oldValue),
		zap.Any("new", newValue))
	m.arm(m.cache.Snapshot(), fmt.Sprintf("%s changed", key))
}

// enabled reports whether the master switch and the prayer's switch are on
func (m *Manager) enabled(p prayertime.Prayer) (bool, string) {
	master, err := m.stateManager.GetBool(state.KeyAzanEnabled)
	if err != nil || !master {
		return false, "azan disabled"
	}
	on, err := m.stateManager.GetBool(state.AzanSwitchKey(string(p)))
	if err != nil || !on {
		return false, fmt.Sprintf("azan for %s disabled", p)
	}
	return true, ""
}

// arm replaces every timer with one per enabled azan prayer after now:
// today's remaining prayers plus the snapshot's next prayer, which covers
// tomorrow's fajr after isha.
func (m *Manager) arm(snap prayertime.Snapshot, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.started {
		return
	}
	m.stopTimersLocked()

	if !snap.Ready() {
		m.logger.Debug("No schedule yet, nothing to arm")
		m.shadowTracker.SetArmed(nil)
		return
	}

	now := m.clock.Now()
	due := make(map[prayertime.Prayer]time.Time)
	for _, p := range prayertime.AzanPrayers {
		if t, ok := snap.Daily.Time(p); ok && t.After(now) {
			due[p] = t
		}
	}
	if next := snap.Next; next.Prayer.HasAzan() && next.Time.After(now) {
		if t, ok := due[next.Prayer]; !ok || next.Time.Before(t) {
			due[next.Prayer] = next.Time
		}
	}

	armed := make(map[string]time.Time, len(due))
	for p, at := range due {
		if ok, _ := m.enabled(p); !ok {
			continue
		}
		prayer, fireAt := p, at
		timer := m.clock.AfterFunc(m.clock.Until(fireAt), func() {
			m.fire(prayer, fireAt)
		})
		m.timers[p] = armedTimer{at: fireAt, timer: timer}
		armed[string(p)] = fireAt
	}

	m.shadowTracker.SetArmed(armed)
	m.logger.Debug("Azan timers armed",
		zap.String("reason", reason),
		zap.Int("count", len(armed)))
}

func (m *Manager) stopTimersLocked() {
	for p, t := range m.timers {
		t.timer.Stop()
		delete(m.timers, p)
	}
}

// fire runs when a timer expires. The switches are checked again because
// they may have changed through a path that did not re-arm.
func (m *Manager) fire(p prayertime.Prayer, at time.Time) {
	m.mu.Lock()
	current, ok := m.timers[p]
	if !m.started || !ok || !current.at.Equal(at) {
		m.mu.Unlock()
		return
	}
	delete(m.timers, p)
	m.inflight.Add(1)
	m.mu.Unlock()
	defer m.inflight.Done()

	m.helper.CaptureInputs()
	date := at.In(m.cache.Location()).Format("2006-01-02")
	logger := m.logger.With(zap.String("prayer", string(p)), zap.String("date", date))

	if ok, reason := m.enabled(p); !ok {
		logger.Info("Skipping azan", zap.String("reason", reason))
		m.shadowTracker.RecordAction("skip_azan", reason, map[string]interface{}{"prayer": string(p), "date": date})
		return
	}

	var last lastAzan
	if err := m.stateManager.GetJSON(state.KeyLastAzan, &last); err == nil && last.Prayer == string(p) && last.Date == date {
		logger.Info("Azan already played for this prayer")
		m.shadowTracker.RecordAction("skip_azan", "already played", map[string]interface{}{"prayer": string(p), "date": date})
		return
	}

	volume := m.volume()
	ctx, cancel := context.WithTimeout(context.Background(), playTimeout)
	defer cancel()

	result, err := m.player.Play(ctx, playback.Request{Prayer: p, Volume: &volume})
	record := shadowstate.AzanPlayback{
		Prayer:      string(p),
		Date:        date,
		MediaPlayer: m.player.MediaPlayer(),
		Timestamp:   m.clock.Now(),
	}
	if err != nil {
		if errors.Is(err, playback.ErrPlaybackInProgress) {
			logger.Warn("Azan skipped, another playback is running")
		} else {
			logger.Error("Azan playback failed", zap.Error(err))
		}
		record.Error = err.Error()
		m.shadowTracker.RecordPlayback(record)
		return
	}

	record.Success = true
	record.MediaPlayer = result.MediaPlayer
	record.URL = result.URL
	record.Profile = result.Profile
	record.Attempt = result.Attempt
	record.DryRun = result.DryRun
	m.shadowTracker.RecordPlayback(record)

	if err := m.stateManager.SetJSON(state.KeyLastAzan, lastAzan{
		Prayer:      string(p),
		Date:        date,
		MediaPlayer: result.MediaPlayer,
		URL:         result.URL,
		PlayedAt:    result.StartedAt,
	}); err != nil {
		logger.Warn("Failed to record last azan", zap.Error(err))
	}
}

// volume reads the volume helper, falling back to the configured default
func (m *Manager) volume() float64 {
	v, err := m.stateManager.GetNumber(state.KeyAzanVolume)
	if err != nil || v < 0 || v > 1 {
		return m.defaultVolume
	}
	return v
}
