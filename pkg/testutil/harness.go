package testutil

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/walnadz/solatsyncmy/internal/azan"
	"github.com/walnadz/solatsyncmy/internal/clock"
	"github.com/walnadz/solatsyncmy/internal/config"
	"github.com/walnadz/solatsyncmy/internal/ha"
	"github.com/walnadz/solatsyncmy/internal/prayertime"
	"github.com/walnadz/solatsyncmy/internal/state"
	"github.com/walnadz/solatsyncmy/pkg/plugin"
)

const (
	// TestToken is the access token the mock server accepts
	TestToken = "test_token"
	// TestZone is the zone the test environment serves
	TestZone = "SGR01"
	// TestMediaPlayer is the media player InitializeStates creates
	TestMediaPlayer = "media_player.living_room"
)

// TestEnv wires a mock Home Assistant server, a connected client, a synced
// state manager, a prayer time cache fed by a StaticFetcher and an azan
// player. Plugins are created from the global registry by StartPlugins.
type TestEnv struct {
	Server       *MockHAServer
	Client       *ha.Client
	StateManager *state.Manager
	Fetcher      *StaticFetcher
	Cache        *prayertime.Cache
	Player       *azan.Player
	Clock        *clock.MockClock
	Logger       *zap.Logger

	plugins []plugin.Plugin
}

// NewTestEnv starts the mock server and connects a client to it. The mock
// clock starts at now.
func NewTestEnv(now time.Time) (*TestEnv, error) {
	logger, _ := zap.NewDevelopment()

	server := NewMockHAServer(TestToken, logger)
	server.InitializeStates(TestMediaPlayer)

	client := ha.NewClient(server.URL(), TestToken, logger)
	if err := client.Connect(); err != nil {
		server.Close()
		return nil, fmt.Errorf("failed to connect client: %w", err)
	}

	stateManager := state.NewManager(client, logger, false)
	if err := stateManager.SyncFromHA(); err != nil {
		client.Disconnect()
		server.Close()
		return nil, fmt.Errorf("failed to sync state: %w", err)
	}

	clk := clock.NewMockClock(now)
	fetcher := &StaticFetcher{}
	cache := prayertime.NewCache(prayertime.Options{
		Zone:     TestZone,
		Location: MYT,
		Fetcher:  fetcher,
		Clock:    clk,
	}, logger)

	player := azan.NewPlayer(azan.Options{
		Client:      client,
		Source:      azan.Source{Kind: config.AudioBundled, BaseURL: "http://solatsync.local:8080"},
		MediaPlayer: TestMediaPlayer,
		Volume:      azan.DefaultVolume,
		Clock:       clk,
	}, logger)

	return &TestEnv{
		Server:       server,
		Client:       client,
		StateManager: stateManager,
		Fetcher:      fetcher,
		Cache:        cache,
		Player:       player,
		Clock:        clk,
		Logger:       logger,
	}, nil
}

// PluginContext returns the context plugins are created with
func (e *TestEnv) PluginContext() *plugin.Context {
	ctx := plugin.NewContext(e.Client, e.StateManager, e.Cache, e.Logger, false, MYT)
	ctx.Player = e.Player
	ctx.Clock = e.Clock
	return ctx
}

// StartPlugins creates and starts every registered plugin. The caller
// imports the plugin packages it wants registered.
func (e *TestEnv) StartPlugins() ([]plugin.Plugin, error) {
	plugins, err := plugin.CreateAll(e.PluginContext())
	if err != nil {
		return nil, err
	}
	if err := plugin.StartAll(plugins); err != nil {
		return nil, err
	}
	e.plugins = plugins
	return plugins, nil
}

// Cleanup stops plugins, the client and the server.
// Always call this in a defer after creating the TestEnv.
func (e *TestEnv) Cleanup() {
	plugin.StopAll(e.plugins)
	e.plugins = nil
	if e.Client != nil {
		e.Client.Disconnect()
	}
	if e.Server != nil {
		e.Server.Close()
	}
}

// GetServiceCalls returns all service calls made to the mock server
func (e *TestEnv) GetServiceCalls() []ServiceCall {
	return e.Server.GetServiceCalls()
}

// ClearServiceCalls clears the recorded service calls
func (e *TestEnv) ClearServiceCalls() {
	e.Server.ClearServiceCalls()
}
