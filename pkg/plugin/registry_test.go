package plugin

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// mockPlugin implements the Plugin interface for testing
type mockPlugin struct {
	name     string
	startErr error
	events   *[]string
}

func (m *mockPlugin) Name() string { return m.name }

func (m *mockPlugin) Start() error {
	if m.events != nil {
		*m.events = append(*m.events, "start "+m.name)
	}
	return m.startErr
}

func (m *mockPlugin) Stop() {
	if m.events != nil {
		*m.events = append(*m.events, "stop "+m.name)
	}
}

func factoryFor(p *mockPlugin) Factory {
	return func(ctx *Context) (Plugin, error) { return p, nil }
}

func TestRegistry_Register(t *testing.T) {
	tests := []struct {
		name        string
		info        PluginInfo
		errContains string
	}{
		{
			name: "valid registration",
			info: PluginInfo{Name: "schedule", Description: "Prayer schedule poller", Factory: factoryFor(&mockPlugin{name: "schedule"})},
		},
		{
			name:        "empty name",
			info:        PluginInfo{Name: "", Factory: factoryFor(&mockPlugin{})},
			errContains: "name cannot be empty",
		},
		{
			name:        "nil factory",
			info:        PluginInfo{Name: "azan"},
			errContains: "factory cannot be nil",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			registry := NewRegistry()
			err := registry.Register(tt.info)
			if tt.errContains != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errContains)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestRegistry_DuplicateName(t *testing.T) {
	registry := NewRegistry()
	require.NoError(t, registry.Register(PluginInfo{Name: "azan", Factory: factoryFor(&mockPlugin{name: "azan"})}))

	err := registry.Register(PluginInfo{Name: "azan", Factory: factoryFor(&mockPlugin{name: "azan"})})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already registered")
}

func TestRegistry_ListOrder(t *testing.T) {
	registry := NewRegistry()
	registry.Register(PluginInfo{Name: "reset", Order: 90, Factory: factoryFor(&mockPlugin{name: "reset"})})
	registry.Register(PluginInfo{Name: "schedule", Order: 10, Factory: factoryFor(&mockPlugin{name: "schedule"})})
	registry.Register(PluginInfo{Name: "azan", Factory: factoryFor(&mockPlugin{name: "azan"})})
	registry.Register(PluginInfo{Name: "announce", Order: 50, Factory: factoryFor(&mockPlugin{name: "announce"})})

	assert.Equal(t, []string{"schedule", "announce", "azan", "reset"}, registry.Names())
	assert.Equal(t, DefaultOrder, registry.Get("azan").Order)
	assert.Nil(t, registry.Get("nonexistent"))
}

func TestRegistry_CreateAll(t *testing.T) {
	registry := NewRegistry()
	created := make([]string, 0)

	registry.Register(PluginInfo{
		Name:  "azan",
		Order: 50,
		Factory: func(ctx *Context) (Plugin, error) {
			created = append(created, "azan")
			return &mockPlugin{name: "azan"}, nil
		},
	})
	registry.Register(PluginInfo{
		Name:  "schedule",
		Order: 10,
		Factory: func(ctx *Context) (Plugin, error) {
			created = append(created, "schedule")
			return &mockPlugin{name: "schedule"}, nil
		},
	})

	plugins, err := registry.CreateAll(nil)
	require.NoError(t, err)
	require.Len(t, plugins, 2)
	assert.Equal(t, []string{"schedule", "azan"}, created)
	assert.Equal(t, "schedule", plugins[0].Name())
}

func TestRegistry_CreateAll_Disabled(t *testing.T) {
	registry := NewRegistry()
	ctx := &Context{Logger: zap.NewNop()}

	registry.Register(PluginInfo{Name: "schedule", Order: 10, Factory: factoryFor(&mockPlugin{name: "schedule"})})
	registry.Register(PluginInfo{
		Name:    "azan",
		Factory: factoryFor(&mockPlugin{name: "azan"}),
		Enabled: func(ctx *Context) bool { return ctx.Player != nil },
	})

	plugins, err := registry.CreateAll(ctx)
	require.NoError(t, err)
	require.Len(t, plugins, 1)
	assert.Equal(t, "schedule", plugins[0].Name())
}

func TestRegistry_CreateAll_ErrorCleanup(t *testing.T) {
	registry := NewRegistry()
	events := []string{}

	registry.Register(PluginInfo{Name: "first", Order: 10, Factory: factoryFor(&mockPlugin{name: "first", events: &events})})
	registry.Register(PluginInfo{
		Name:  "second",
		Order: 20,
		Factory: func(ctx *Context) (Plugin, error) {
			return nil, errors.New("creation failed")
		},
	})

	plugins, err := registry.CreateAll(nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to create plugin second")
	assert.Nil(t, plugins)
	assert.Equal(t, []string{"stop first"}, events)
}

func TestStartAll_RollsBackOnFailure(t *testing.T) {
	events := []string{}
	plugins := []Plugin{
		&mockPlugin{name: "schedule", events: &events},
		&mockPlugin{name: "azan", events: &events},
		&mockPlugin{name: "reset", events: &events, startErr: errors.New("boom")},
	}

	err := StartAll(plugins)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to start plugin reset")
	assert.Equal(t, []string{
		"start schedule", "start azan", "start reset",
		"stop azan", "stop schedule",
	}, events)
}

func TestStopAll_ReverseOrder(t *testing.T) {
	events := []string{}
	StopAll([]Plugin{
		&mockPlugin{name: "schedule", events: &events},
		&mockPlugin{name: "azan", events: &events},
	})
	assert.Equal(t, []string{"stop azan", "stop schedule"}, events)
}

func TestRegistry_Clear(t *testing.T) {
	registry := NewRegistry()
	registry.Register(PluginInfo{Name: "test", Factory: factoryFor(&mockPlugin{})})
	assert.Len(t, registry.Names(), 1)

	registry.Clear()

	assert.Empty(t, registry.Names())
	assert.Nil(t, registry.Get("test"))
}

func TestGlobalRegistry(t *testing.T) {
	saved := List()
	ClearGlobal()
	t.Cleanup(func() {
		ClearGlobal()
		for _, info := range saved {
			Register(info)
		}
	})

	MustRegister(PluginInfo{
		Name:        "global-test",
		Description: "Testing global registry",
		Factory:     factoryFor(&mockPlugin{name: "global"}),
	})

	info := Get("global-test")
	require.NotNil(t, info)
	assert.Equal(t, "Testing global registry", info.Description)
	assert.Len(t, List(), 1)
	assert.Equal(t, []string{"global-test"}, Names())

	plugins, err := CreateAll(nil)
	require.NoError(t, err)
	require.Len(t, plugins, 1)
	assert.Equal(t, "global", plugins[0].Name())

	assert.Panics(t, func() {
		MustRegister(PluginInfo{Name: "global-test", Factory: factoryFor(&mockPlugin{})})
	})
}
