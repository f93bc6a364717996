package schedule

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/walnadz/solatsyncmy/internal/clock"
	"github.com/walnadz/solatsyncmy/internal/prayertime"
	"github.com/walnadz/solatsyncmy/internal/shadowstate"
	"github.com/walnadz/solatsyncmy/internal/state"
)

const (
	// DefaultInterval is how often the schedule is refreshed
	DefaultInterval = 15 * time.Minute

	// tickTimeout bounds one refresh, including any month fetch
	tickTimeout = 30 * time.Second

	countdownSpec = "@every 1m"
)

// Publisher mirrors each successful refresh somewhere else
type Publisher interface {
	PublishSnapshot(snap prayertime.Snapshot) error
}

// Manager drives Cache.Tick on a cron schedule and publishes the result to
// the Home Assistant helper entities.
type Manager struct {
	cache        *prayertime.Cache
	stateManager *state.Manager
	publisher    Publisher
	clock        clock.Clock
	interval     time.Duration
	logger       *zap.Logger
	readOnly     bool

	mu      sync.Mutex
	cron    *cron.Cron
	started bool

	// lastFailure holds back countdown refreshes until a poll interval has
	// passed since the last failed refresh
	failMu      sync.Mutex
	lastFailure time.Time

	// Shadow state tracking
	shadowTracker *shadowstate.ScheduleTracker
}

// NewManager creates a new schedule manager. publisher may be nil.
func NewManager(
	cache *prayertime.Cache,
	stateManager *state.Manager,
	publisher Publisher,
	clk clock.Clock,
	interval time.Duration,
	logger *zap.Logger,
	readOnly bool,
) *Manager {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if clk == nil {
		clk = clock.NewRealClock()
	}
	return &Manager{
		cache:         cache,
		stateManager:  stateManager,
		publisher:     publisher,
		clock:         clk,
		interval:      interval,
		logger:        logger.Named("schedule"),
		readOnly:      readOnly,
		shadowTracker: shadowstate.NewScheduleTracker(cache.Zone()),
	}
}

// GetShadowState returns the current shadow state
func (m *Manager) GetShadowState() *shadowstate.ScheduleShadowState {
	return m.shadowTracker.GetState()
}

// Start runs an initial refresh and schedules the periodic ones. A failed
// initial refresh is logged, not returned; the cron job retries.
func (m *Manager) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.started {
		return fmt.Errorf("schedule manager already started")
	}

	m.logger.Info("Starting Schedule Manager",
		zap.String("zone", m.cache.Zone()),
		zap.Duration("interval", m.interval),
		zap.Bool("read_only", m.readOnly))

	if err := m.refresh(context.Background()); err != nil {
		m.logger.Warn("Initial prayer time refresh failed, will retry", zap.Error(err))
	}

	c := cron.New(
		cron.WithLocation(m.cache.Location()),
		cron.WithChain(cron.SkipIfStillRunning(cronLogger{m.logger.Sugar()})),
	)
	if _, err := c.AddFunc(fmt.Sprintf("@every %s", m.interval), m.runTick); err != nil {
		return fmt.Errorf("failed to schedule refresh: %w", err)
	}
	if _, err := c.AddFunc(countdownSpec, m.runCountdown); err != nil {
		return fmt.Errorf("failed to schedule countdown: %w", err)
	}
	c.Start()

	m.cron = c
	m.started = true

	m.logger.Info("Schedule Manager started successfully")
	return nil
}

// Stop stops the cron scheduler and waits for a running refresh
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.started {
		m.logger.Info("Schedule Manager was not started, nothing to stop")
		return
	}

	<-m.cron.Stop().Done()
	m.cron = nil
	m.started = false

	m.logger.Info("Schedule Manager stopped")
}

// Reset drops cached months and refreshes from upstream
func (m *Manager) Reset() error {
	m.logger.Info("Resetting schedule - refetching prayer times")

	m.cache.Invalidate()
	if err := m.refresh(context.Background()); err != nil {
		return fmt.Errorf("failed to reset schedule: %w", err)
	}

	m.logger.Info("Successfully reset schedule")
	return nil
}

// Refresh runs a refresh now
func (m *Manager) Refresh(ctx context.Context) error {
	return m.refresh(ctx)
}

func (m *Manager) runTick() {
	if err := m.refresh(context.Background()); err != nil && !errors.Is(err, prayertime.ErrTickInProgress) {
		m.logger.Debug("Scheduled refresh failed", zap.Error(err))
	}
}

// runCountdown keeps the remaining-time text current between refreshes and
// refreshes early once the next prayer is due. After a failed refresh the
// retry waits for the poll interval.
func (m *Manager) runCountdown() {
	snap := m.cache.Snapshot()
	if !snap.Ready() {
		return
	}

	now := m.clock.Now()
	if !snap.Next.Time.After(now) {
		if last := m.lastFailed(); !last.IsZero() && now.Sub(last) < m.interval {
			m.logger.Debug("Next prayer is due, waiting for the poll interval after a failed refresh",
				zap.Time("last_failure", last))
			return
		}
		m.runTick()
		return
	}
	m.publishCountdown(snap.Next.At(now))
}

func (m *Manager) refresh(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, tickTimeout)
	defer cancel()

	now := m.clock.Now()
	m.shadowTracker.UpdateCurrentInputs(map[string]interface{}{
		"zone":          m.cache.Zone(),
		"now":           now.In(m.cache.Location()).Format(time.RFC3339),
		"cached_months": m.cache.CachedMonths(),
	})

	if err := m.cache.Tick(ctx); err != nil {
		if !errors.Is(err, prayertime.ErrTickInProgress) {
			m.shadowTracker.RecordFailure(now, err)
			m.setLastFailure(now)
		}
		return err
	}
	m.setLastFailure(time.Time{})

	snap := m.cache.Snapshot()
	m.publish(snap)
	return nil
}

func (m *Manager) lastFailed() time.Time {
	m.failMu.Lock()
	defer m.failMu.Unlock()
	return m.lastFailure
}

func (m *Manager) setLastFailure(t time.Time) {
	m.failMu.Lock()
	m.lastFailure = t
	m.failMu.Unlock()
}

// publish writes a successful snapshot to the helper entities and the
// optional publisher. Write failures are logged; the snapshot stands.
func (m *Manager) publish(snap prayertime.Snapshot) {
	daily, next := snap.Daily, snap.Next
	formatted := daily.Formatted()

	times := make(map[string]string, len(formatted))
	for p, hhmm := range formatted {
		times[string(p)] = hhmm
	}

	m.shadowTracker.RecordSuccess(snap.UpdatedAt, string(next.Prayer), next.Time, next.IsTomorrow, daily.Hijri, times)

	if m.readOnly {
		m.logger.Info("READ-ONLY mode: Would update prayer time entities",
			zap.String("next_prayer", next.Prayer.MalayName()),
			zap.Time("next_prayer_time", next.Time),
			zap.String("time_to_next_prayer", next.RemainingText),
			zap.String("hijri_date", daily.Hijri))
	}

	m.setString(state.KeyNextPrayer, next.Prayer.MalayName())
	m.setString(state.KeyNextPrayerTime, next.Time.Format(time.RFC3339))
	m.setString(state.KeyTimeToNextPrayer, next.RemainingText)
	m.setString(state.KeyHijriDate, daily.Hijri)
	for _, p := range prayertime.AllPrayers {
		if hhmm, ok := formatted[p]; ok {
			m.setString(state.PrayerTimeKey(string(p)), hhmm)
		}
	}

	if err := m.stateManager.SetJSON(state.KeyTodaySchedule, map[string]interface{}{
		"zone":       daily.Zone,
		"date":       daily.Date.Format("2006-01-02"),
		"hijri_date": daily.Hijri,
		"times":      times,
		"updated_at": snap.UpdatedAt.Format(time.RFC3339),
	}); err != nil {
		m.logger.Warn("Failed to store today's schedule", zap.Error(err))
	}

	if m.publisher != nil {
		if err := m.publisher.PublishSnapshot(snap); err != nil {
			m.logger.Warn("Failed to publish prayer times", zap.Error(err))
		}
	}
}

func (m *Manager) publishCountdown(next prayertime.NextPrayerInfo) {
	if m.readOnly {
		m.logger.Debug("READ-ONLY mode: Would update time to next prayer",
			zap.String("value", next.RemainingText))
	}
	m.setString(state.KeyTimeToNextPrayer, next.RemainingText)
}

// setString writes one helper entity. In read-only mode the state manager
// only updates its cache.
func (m *Manager) setString(key, value string) {
	if err := m.stateManager.SetString(key, value); err != nil {
		m.logger.Warn("Failed to update helper entity",
			zap.String("key", key),
			zap.String("value", value),
			zap.Error(err))
	}
}

// cronLogger adapts zap to cron.Logger
type cronLogger struct {
	sugar *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.sugar.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.sugar.Errorw(msg, append(keysAndValues, "error", err)...)
}
