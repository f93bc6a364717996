package shadowstate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/walnadz/solatsyncmy/internal/ha"
	"github.com/walnadz/solatsyncmy/internal/state"
)

func newTestManager(t *testing.T) (*state.Manager, *ha.MockClient) {
	t.Helper()
	client := ha.NewMockClient()
	client.SetState("input_boolean.solat_azan_enabled", "off", map[string]interface{}{})
	client.SetState("input_boolean.solat_azan_fajr", "on", map[string]interface{}{})
	client.SetState("input_boolean.solat_azan_asr", "on", map[string]interface{}{})
	require.NoError(t, client.Connect())
	manager := state.NewManager(client, zap.NewNop(), false)
	require.NoError(t, manager.SyncFromHA())
	return manager, client
}

func TestSubscriptionHelper_CapturesBeforeHandler(t *testing.T) {
	manager, client := newTestManager(t)
	tracker := NewAzanTracker()
	helper := NewSubscriptionHelper(manager, tracker, "azan", zap.NewNop())

	var seen interface{}
	err := helper.SubscribeToState(state.KeyAzanEnabled, func(key string, oldValue, newValue interface{}) {
		seen = tracker.GetState().Inputs.Current[state.KeyAzanEnabled]
	})
	require.NoError(t, err)
	helper.Track(state.KeyAzanVolume)

	client.SimulateStateChange("input_boolean.solat_azan_enabled", "on")

	assert.Equal(t, true, seen)
	inputs := tracker.GetState().Inputs.Current
	assert.Equal(t, 0.7, inputs[state.KeyAzanVolume])
}

func TestSubscriptionHelper_Keys(t *testing.T) {
	manager, _ := newTestManager(t)
	helper := NewSubscriptionHelper(manager, nil, "azan", zap.NewNop())

	require.NoError(t, helper.SubscribeToState("azanFajr", func(string, interface{}, interface{}) {}))
	require.NoError(t, helper.SubscribeToState("azanFajr", func(string, interface{}, interface{}) {}))
	helper.Track(state.KeyLastAzan)

	assert.Equal(t, []string{"azanFajr", state.KeyLastAzan}, helper.Keys())

	inputs := helper.CaptureInputs()
	assert.Equal(t, true, inputs["azanFajr"])
	assert.Contains(t, inputs, state.KeyLastAzan)
}

func TestSubscriptionHelper_UnknownKey(t *testing.T) {
	manager, _ := newTestManager(t)
	helper := NewSubscriptionHelper(manager, nil, "azan", zap.NewNop())

	err := helper.SubscribeToState("doesNotExist", func(string, interface{}, interface{}) {})
	assert.Error(t, err)

	helper.Track("doesNotExist")
	assert.NotContains(t, helper.CaptureInputs(), "doesNotExist")
}

func TestSubscriptionHelper_UnsubscribeAll(t *testing.T) {
	manager, client := newTestManager(t)
	helper := NewSubscriptionHelper(manager, nil, "azan", zap.NewNop())

	calls := 0
	require.NoError(t, helper.SubscribeToState("azanAsr", func(string, interface{}, interface{}) { calls++ }))

	client.SimulateStateChange("input_boolean.solat_azan_asr", "off")
	helper.UnsubscribeAll()
	client.SimulateStateChange("input_boolean.solat_azan_asr", "on")

	assert.Equal(t, 1, calls)
}
