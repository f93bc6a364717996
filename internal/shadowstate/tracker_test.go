package shadowstate

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestNewTracker(t *testing.T) {
	tracker := NewTracker()
	if tracker == nil {
		t.Fatal("NewTracker returned nil")
	}
	if tracker.pluginStates == nil {
		t.Error("pluginStates map not initialized")
	}
	if tracker.stateProviders == nil {
		t.Error("stateProviders map not initialized")
	}
}

func TestTrackerRegisterPlugin(t *testing.T) {
	tracker := NewTracker()
	tracker.RegisterPlugin("schedule", NewScheduleShadowState("SGR01"))

	retrieved, ok := tracker.GetPluginState("schedule")
	if !ok {
		t.Fatal("Failed to retrieve registered plugin state")
	}
	if retrieved.GetMetadata().PluginName != "schedule" {
		t.Errorf("Expected plugin name 'schedule', got %s", retrieved.GetMetadata().PluginName)
	}

	if _, ok := tracker.GetPluginState("missing"); ok {
		t.Error("Expected unknown plugin to be absent")
	}
}

func TestTrackerProviderTakesPrecedence(t *testing.T) {
	tracker := NewTracker()
	calls := 0

	tracker.RegisterPlugin("azan", NewScheduleShadowState("SGR01"))
	tracker.RegisterPluginProvider("azan", func() PluginShadowState {
		calls++
		return NewAzanShadowState()
	})

	state, ok := tracker.GetPluginState("azan")
	if !ok {
		t.Fatal("Failed to retrieve state from provider")
	}
	if _, isAzan := state.(*AzanShadowState); !isAzan {
		t.Errorf("Expected provider state, got %T", state)
	}

	all := tracker.GetAllPluginStates()
	if len(all) != 1 {
		t.Errorf("Expected 1 plugin state, got %d", len(all))
	}
	if calls != 2 {
		t.Errorf("Expected provider to be called twice, was called %d times", calls)
	}
}

func TestTrackerPluginNames(t *testing.T) {
	tracker := NewTracker()
	tracker.RegisterPluginProvider("schedule", func() PluginShadowState { return NewScheduleShadowState("SGR01") })
	tracker.RegisterPluginProvider("azan", func() PluginShadowState { return NewAzanShadowState() })
	tracker.RegisterPlugin("azan", NewAzanShadowState())

	names := tracker.PluginNames()
	if fmt.Sprint(names) != "[azan schedule]" {
		t.Errorf("Expected sorted unique names, got %v", names)
	}
}

func TestScheduleTrackerRecordSuccess(t *testing.T) {
	st := NewScheduleTracker("WLY01")
	st.UpdateCurrentInputs(map[string]interface{}{"zone": "WLY01"})

	at := time.Date(2025, 6, 10, 13, 0, 0, 0, time.UTC)
	next := at.Add(20 * time.Minute)
	st.RecordSuccess(at, "dhuhr", next, false, "14 Dhul Hijjah 1446", map[string]string{"fajr": "05:41"})

	state := st.GetState()
	if state.Outputs.NextPrayer != "dhuhr" {
		t.Errorf("Expected NextPrayer 'dhuhr', got %s", state.Outputs.NextPrayer)
	}
	if !state.Outputs.NextPrayerTime.Equal(next) {
		t.Errorf("Expected NextPrayerTime %v, got %v", next, state.Outputs.NextPrayerTime)
	}
	if state.Outputs.PrayerTimes["fajr"] != "05:41" {
		t.Errorf("Expected fajr 05:41, got %s", state.Outputs.PrayerTimes["fajr"])
	}
	if state.Inputs.AtLastAction["zone"] != "WLY01" {
		t.Error("Expected inputs to be snapshotted at last action")
	}
	if state.Outputs.Ticks != 1 {
		t.Errorf("Expected 1 tick, got %d", state.Outputs.Ticks)
	}
}

func TestScheduleTrackerRecordFailureKeepsOutputs(t *testing.T) {
	st := NewScheduleTracker("WLY01")
	at := time.Date(2025, 6, 10, 13, 0, 0, 0, time.UTC)
	st.RecordSuccess(at, "asr", at.Add(3*time.Hour), false, "", map[string]string{"asr": "16:30"})

	st.RecordFailure(at.Add(15*time.Minute), errors.New("network unreachable"))
	st.RecordFailure(at.Add(30*time.Minute), errors.New("network unreachable"))

	state := st.GetState()
	if state.Outputs.NextPrayer != "asr" {
		t.Errorf("Expected outputs to survive failure, got %s", state.Outputs.NextPrayer)
	}
	if state.Outputs.ConsecutiveFailures != 2 {
		t.Errorf("Expected 2 consecutive failures, got %d", state.Outputs.ConsecutiveFailures)
	}
	if state.Outputs.LastError != "network unreachable" {
		t.Errorf("Unexpected LastError %q", state.Outputs.LastError)
	}
	if !state.Outputs.LastSuccess.Equal(at) {
		t.Error("Expected LastSuccess to be unchanged")
	}

	st.RecordSuccess(at.Add(45*time.Minute), "asr", at.Add(3*time.Hour), false, "", nil)
	if st.GetState().Outputs.ConsecutiveFailures != 0 {
		t.Error("Expected success to clear the failure count")
	}
}

func TestScheduleTrackerGetStateIsCopy(t *testing.T) {
	st := NewScheduleTracker("SGR01")
	st.RecordSuccess(time.Now(), "isha", time.Now(), false, "", map[string]string{"isha": "20:35"})

	state := st.GetState()
	state.Outputs.PrayerTimes["isha"] = "00:00"
	state.Inputs.Current["x"] = 1

	fresh := st.GetState()
	if fresh.Outputs.PrayerTimes["isha"] != "20:35" {
		t.Error("Mutating the copy changed the tracker")
	}
	if _, ok := fresh.Inputs.Current["x"]; ok {
		t.Error("Mutating copied inputs changed the tracker")
	}
}

func TestAzanTrackerSetArmed(t *testing.T) {
	at := NewAzanTracker()
	fire := time.Date(2025, 6, 10, 13, 20, 0, 0, time.UTC)

	at.SetArmed(map[string]time.Time{"dhuhr": fire, "asr": fire.Add(3 * time.Hour)})
	if len(at.GetState().Outputs.Armed) != 2 {
		t.Fatal("Expected 2 armed timers")
	}

	at.SetArmed(map[string]time.Time{"asr": fire.Add(3 * time.Hour)})
	armed := at.GetState().Outputs.Armed
	if _, ok := armed["dhuhr"]; ok {
		t.Error("Expected dhuhr to be replaced")
	}
}

func TestAzanTrackerRecordPlayback(t *testing.T) {
	at := NewAzanTracker()
	at.UpdateCurrentInputs(map[string]interface{}{"azanEnabled": true})

	at.RecordPlayback(AzanPlayback{Prayer: "maghrib", Date: "2025-06-10", MediaPlayer: "media_player.ruang_tamu", Success: true})
	at.RecordPlayback(AzanPlayback{Prayer: "isha", Date: "2025-06-10", MediaPlayer: "media_player.ruang_tamu", Error: "device offline"})

	state := at.GetState()
	if state.Outputs.LastPlayback == nil || state.Outputs.LastPlayback.Prayer != "isha" {
		t.Fatalf("Expected last playback isha, got %+v", state.Outputs.LastPlayback)
	}
	if len(state.Outputs.RecentActions) != 2 {
		t.Fatalf("Expected 2 actions, got %d", len(state.Outputs.RecentActions))
	}
	if state.Outputs.RecentActions[1].ActionType != "play_azan_failed" {
		t.Errorf("Expected failed action, got %s", state.Outputs.RecentActions[1].ActionType)
	}
	if state.Outputs.RecentActions[1].Reason != "device offline" {
		t.Errorf("Expected failure reason, got %s", state.Outputs.RecentActions[1].Reason)
	}
	if state.Inputs.AtLastAction["azanEnabled"] != true {
		t.Error("Expected inputs snapshot on playback")
	}
}

func TestAzanTrackerActionHistoryIsBounded(t *testing.T) {
	at := NewAzanTracker()
	for i := 0; i < maxRecentActions+5; i++ {
		at.RecordAction("skip", fmt.Sprintf("reason %d", i), nil)
	}

	actions := at.GetState().Outputs.RecentActions
	if len(actions) != maxRecentActions {
		t.Fatalf("Expected %d actions, got %d", maxRecentActions, len(actions))
	}
	if actions[0].Reason != "reason 5" {
		t.Errorf("Expected oldest actions to be dropped, first is %q", actions[0].Reason)
	}
}

func TestAzanTrackerConcurrentAccess(t *testing.T) {
	at := NewAzanTracker()
	var wg sync.WaitGroup

	for i := 0; i < 10; i++ {
		wg.Add(3)
		go func(i int) {
			defer wg.Done()
			at.UpdateCurrentInputs(map[string]interface{}{"n": i})
		}(i)
		go func() {
			defer wg.Done()
			at.RecordAction("arm", "cache update", nil)
		}()
		go func() {
			defer wg.Done()
			_ = at.GetState()
		}()
	}
	wg.Wait()
}
