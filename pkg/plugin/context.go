package plugin

import (
	"time"

	"go.uber.org/zap"

	"github.com/walnadz/solatsyncmy/internal/azan"
	"github.com/walnadz/solatsyncmy/internal/clock"
	"github.com/walnadz/solatsyncmy/internal/config"
	"github.com/walnadz/solatsyncmy/internal/ha"
	"github.com/walnadz/solatsyncmy/internal/prayertime"
	"github.com/walnadz/solatsyncmy/internal/shadowstate"
	"github.com/walnadz/solatsyncmy/internal/state"
)

// SnapshotPublisher mirrors each published schedule to another system,
// such as MQTT discovery sensors.
type SnapshotPublisher interface {
	PublishSnapshot(snap prayertime.Snapshot) error
}

// Context provides dependencies to plugins during initialization.
type Context struct {
	// HAClient provides access to Home Assistant for service calls
	// and entity state subscriptions.
	HAClient ha.HAClient

	// StateManager holds the helper entities the service reads and writes.
	StateManager *state.Manager

	// Cache owns the zone's prayer schedule.
	Cache *prayertime.Cache

	// Player plays the azan on a media player.
	Player *azan.Player

	// Publisher is optional; nil when MQTT is not configured.
	Publisher SnapshotPublisher

	// Shadow collects plugin shadow states for the API.
	Shadow *shadowstate.Tracker

	// Clock drives timers. Tests pass a clock.MockClock.
	Clock clock.Clock

	// Config is the loaded service configuration.
	Config *config.Config

	// Logger is a structured logger for the plugin to use.
	// Plugins should use logger.Named("pluginname") for namespacing.
	Logger *zap.Logger

	// ReadOnly indicates whether the application is in read-only mode.
	// When true, plugins log what they would do instead of changing
	// Home Assistant entities.
	ReadOnly bool

	// Timezone is the zone's local timezone.
	Timezone *time.Location
}

// NewContext creates a new plugin context with the always-required
// dependencies. Optional services are assigned on the returned value.
func NewContext(
	haClient ha.HAClient,
	stateManager *state.Manager,
	cache *prayertime.Cache,
	logger *zap.Logger,
	readOnly bool,
	timezone *time.Location,
) *Context {
	return &Context{
		HAClient:     haClient,
		StateManager: stateManager,
		Cache:        cache,
		Shadow:       shadowstate.NewTracker(),
		Clock:        clock.NewRealClock(),
		Logger:       logger,
		ReadOnly:     readOnly,
		Timezone:     timezone,
	}
}
