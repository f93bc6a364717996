package azan

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	playback "github.com/walnadz/solatsyncmy/internal/azan"
	"github.com/walnadz/solatsyncmy/internal/clock"
	"github.com/walnadz/solatsyncmy/internal/config"
	"github.com/walnadz/solatsyncmy/internal/ha"
	"github.com/walnadz/solatsyncmy/internal/prayertime"
	"github.com/walnadz/solatsyncmy/internal/state"
	"github.com/walnadz/solatsyncmy/pkg/plugin"
	"github.com/walnadz/solatsyncmy/pkg/testutil"
)

const mediaPlayer = "media_player.living_room"

type testSetup struct {
	manager *Manager
	client  *ha.MockClient
	state   *state.Manager
	cache   *prayertime.Cache
	fetcher *testutil.StaticFetcher
	clock   *clock.MockClock
	player  *playback.Player
}

func newTestSetup(t *testing.T, now time.Time, readOnly bool) *testSetup {
	t.Helper()
	logger := zap.NewNop()

	client := ha.NewMockClient()
	client.SetState("input_boolean.solat_azan_enabled", "on", nil)
	for _, p := range []string{"fajr", "dhuhr", "asr", "maghrib", "isha"} {
		client.SetState("input_boolean.solat_azan_"+p, "on", nil)
	}
	client.SetState("input_number.solat_azan_volume", "0.50", nil)
	client.SetState(mediaPlayer, "off", map[string]interface{}{"volume_level": 0.3})
	require.NoError(t, client.Connect())

	stateManager := state.NewManager(client, logger, readOnly)
	require.NoError(t, stateManager.SyncFromHA())

	clk := clock.NewMockClock(now)
	fetcher := &testutil.StaticFetcher{}
	cache := prayertime.NewCache(prayertime.Options{
		Zone:     "SGR01",
		Location: testutil.MYT,
		Fetcher:  fetcher,
		Clock:    clk,
	}, logger)

	player := playback.NewPlayer(playback.Options{
		Client:      client,
		Source:      playback.Source{Kind: config.AudioBundled, BaseURL: "http://solatsync.local:8080"},
		MediaPlayer: mediaPlayer,
		Volume:      0.7,
		ReadOnly:    readOnly,
		Clock:       clk,
	}, logger)

	manager := NewManager(cache, stateManager, player, clk, 0.7, logger, readOnly)
	t.Cleanup(manager.Stop)

	return &testSetup{
		manager: manager,
		client:  client,
		state:   stateManager,
		cache:   cache,
		fetcher: fetcher,
		clock:   clk,
		player:  player,
	}
}

func (s *testSetup) tick(t *testing.T) {
	t.Helper()
	require.NoError(t, s.cache.Tick(context.Background()))
}

func at(hh, mm int) time.Time {
	return time.Date(2025, 6, 10, hh, mm, 0, 0, testutil.MYT)
}

func TestManager_ArmsRemainingPrayers(t *testing.T) {
	s := newTestSetup(t, at(12, 0), false)
	s.tick(t)

	require.NoError(t, s.manager.Start())

	armed := s.manager.Armed()
	assert.Len(t, armed, 4)
	assert.Equal(t, at(13, 5), armed[prayertime.Dhuhr])
	assert.Equal(t, at(20, 35), armed[prayertime.Isha])
	assert.NotContains(t, armed, prayertime.Fajr)
	assert.NotContains(t, armed, prayertime.Syuruk)

	shadow := s.manager.GetShadowState()
	assert.Len(t, shadow.Outputs.Armed, 4)
	assert.Equal(t, true, shadow.Inputs.Current[state.KeyAzanEnabled])
	assert.Equal(t, 0.5, shadow.Inputs.Current[state.KeyAzanVolume])
}

func TestManager_NoScheduleArmsNothing(t *testing.T) {
	s := newTestSetup(t, at(12, 0), false)

	require.NoError(t, s.manager.Start())
	assert.Empty(t, s.manager.Armed())
	assert.Empty(t, s.clock.Pending())

	// The first successful tick arms through the cache listener
	s.tick(t)
	assert.Len(t, s.manager.Armed(), 4)
}

func TestManager_AfterIshaArmsTomorrowsFajr(t *testing.T) {
	s := newTestSetup(t, at(21, 0), false)
	s.tick(t)

	require.NoError(t, s.manager.Start())

	armed := s.manager.Armed()
	require.Len(t, armed, 1)
	assert.Equal(t, time.Date(2025, 6, 11, 5, 45, 0, 0, testutil.MYT), armed[prayertime.Fajr])
}

func TestManager_FirePlaysAzan(t *testing.T) {
	s := newTestSetup(t, at(12, 0), false)
	s.tick(t)
	require.NoError(t, s.manager.Start())

	s.clock.Set(at(13, 5))

	plays := s.client.ServiceCallsFor("media_player", "play_media")
	require.Len(t, plays, 1)
	assert.Equal(t, mediaPlayer, plays[0].Data["entity_id"])
	assert.Equal(t, "http://solatsync.local:8080/audio/azan.mp3", plays[0].Data["media_content_id"])
	assert.Equal(t, "music", plays[0].Data["media_content_type"])

	volumes := s.client.ServiceCallsFor("media_player", "volume_set")
	require.Len(t, volumes, 1)
	assert.Equal(t, 0.5, volumes[0].Data["volume_level"])

	var last lastAzan
	require.NoError(t, s.state.GetJSON(state.KeyLastAzan, &last))
	assert.Equal(t, "dhuhr", last.Prayer)
	assert.Equal(t, "2025-06-10", last.Date)

	shadow := s.manager.GetShadowState()
	require.NotNil(t, shadow.Outputs.LastPlayback)
	assert.True(t, shadow.Outputs.LastPlayback.Success)
	assert.Equal(t, "dhuhr", shadow.Outputs.LastPlayback.Prayer)
	assert.NotContains(t, s.manager.Armed(), prayertime.Dhuhr)
}

func TestManager_FajrUsesFajrAudio(t *testing.T) {
	s := newTestSetup(t, at(4, 0), false)
	s.tick(t)
	require.NoError(t, s.manager.Start())

	s.clock.Set(at(5, 45))

	plays := s.client.ServiceCallsFor("media_player", "play_media")
	require.Len(t, plays, 1)
	assert.Equal(t, "http://solatsync.local:8080/audio/azanfajr.mp3", plays[0].Data["media_content_id"])
}

func TestManager_MasterSwitchOff(t *testing.T) {
	s := newTestSetup(t, at(12, 0), false)
	s.tick(t)
	require.NoError(t, s.manager.Start())
	require.Len(t, s.manager.Armed(), 4)

	s.client.SimulateStateChange("input_boolean.solat_azan_enabled", "off")

	assert.Empty(t, s.manager.Armed())
	assert.Empty(t, s.clock.Pending())

	s.clock.Set(at(21, 0))
	assert.Empty(t, s.client.ServiceCallsFor("media_player", "play_media"))

	s.client.SimulateStateChange("input_boolean.solat_azan_enabled", "on")
	assert.Empty(t, s.manager.Armed(), "all of today's prayers have passed")
}

func TestManager_PerPrayerSwitch(t *testing.T) {
	s := newTestSetup(t, at(12, 0), false)
	s.tick(t)
	require.NoError(t, s.manager.Start())

	s.client.SimulateStateChange("input_boolean.solat_azan_asr", "off")

	armed := s.manager.Armed()
	assert.Len(t, armed, 3)
	assert.NotContains(t, armed, prayertime.Asr)

	s.clock.Set(at(16, 30))
	plays := s.client.ServiceCallsFor("media_player", "play_media")
	require.Len(t, plays, 1, "only dhuhr should have played")
}

func TestManager_SkipsAlreadyPlayed(t *testing.T) {
	s := newTestSetup(t, at(12, 0), false)
	s.tick(t)
	require.NoError(t, s.manager.Start())

	require.NoError(t, s.state.SetJSON(state.KeyLastAzan, lastAzan{Prayer: "dhuhr", Date: "2025-06-10"}))

	s.clock.Set(at(13, 5))

	assert.Empty(t, s.client.ServiceCallsFor("media_player", "play_media"))
	actions := s.manager.GetShadowState().Outputs.RecentActions
	require.NotEmpty(t, actions)
	assert.Equal(t, "skip_azan", actions[len(actions)-1].ActionType)
	assert.Equal(t, "already played", actions[len(actions)-1].Reason)
}

func TestManager_PlaybackFailureRecorded(t *testing.T) {
	s := newTestSetup(t, at(12, 0), false)
	s.tick(t)
	require.NoError(t, s.manager.Start())

	s.client.FailServiceCalls(func(call ha.ServiceCall) error {
		if call.Service == "play_media" {
			return errors.New("unsupported media")
		}
		return nil
	})

	s.clock.Set(at(13, 5))

	// Both attempts of the default profile are tried
	assert.Len(t, s.client.ServiceCallsFor("media_player", "play_media"), 2)

	shadow := s.manager.GetShadowState()
	require.NotNil(t, shadow.Outputs.LastPlayback)
	assert.False(t, shadow.Outputs.LastPlayback.Success)
	assert.Contains(t, shadow.Outputs.LastPlayback.Error, "unsupported media")

	var last lastAzan
	require.NoError(t, s.state.GetJSON(state.KeyLastAzan, &last))
	assert.Empty(t, last.Prayer, "a failed playback is not recorded as played")
}

func TestManager_ReadOnlyDoesNotCallHA(t *testing.T) {
	s := newTestSetup(t, at(12, 0), true)
	s.tick(t)
	require.NoError(t, s.manager.Start())

	s.clock.Set(at(13, 5))

	assert.Empty(t, s.client.GetServiceCalls())
	shadow := s.manager.GetShadowState()
	require.NotNil(t, shadow.Outputs.LastPlayback)
	assert.True(t, shadow.Outputs.LastPlayback.DryRun)
}

func TestManager_ScheduleUpdateRearms(t *testing.T) {
	s := newTestSetup(t, at(12, 0), false)
	s.tick(t)
	require.NoError(t, s.manager.Start())

	s.clock.Set(at(17, 0))
	s.client.ClearServiceCalls()
	s.tick(t)

	armed := s.manager.Armed()
	assert.Len(t, armed, 2)
	assert.Contains(t, armed, prayertime.Maghrib)
	assert.Contains(t, armed, prayertime.Isha)
}

func TestManager_StopCancelsTimers(t *testing.T) {
	s := newTestSetup(t, at(12, 0), false)
	s.tick(t)
	require.NoError(t, s.manager.Start())
	require.NotEmpty(t, s.clock.Pending())

	s.manager.Stop()

	assert.Empty(t, s.clock.Pending())
	assert.Empty(t, s.manager.Armed())

	// Later cache updates are ignored once stopped
	s.tick(t)
	assert.Empty(t, s.manager.Armed())
}

func TestManager_Reset(t *testing.T) {
	s := newTestSetup(t, at(12, 0), false)
	s.tick(t)
	require.NoError(t, s.manager.Start())

	require.NoError(t, s.manager.Reset())
	assert.Len(t, s.manager.Armed(), 4)
	assert.Len(t, s.clock.Pending(), 4)
}

func TestRegistration_EnabledRequiresMediaPlayer(t *testing.T) {
	info := plugin.Get(PluginName)
	require.NotNil(t, info)
	assert.Equal(t, 50, info.Order)

	assert.False(t, info.Enabled(&plugin.Context{}))

	noPlayer := playback.NewPlayer(playback.Options{}, zap.NewNop())
	assert.False(t, info.Enabled(&plugin.Context{Player: noPlayer}))

	s := newTestSetup(t, at(12, 0), false)
	assert.True(t, info.Enabled(&plugin.Context{Player: s.player}))
}
