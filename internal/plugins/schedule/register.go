package schedule

import (
	"context"
	"fmt"

	"github.com/walnadz/solatsyncmy/internal/shadowstate"
	"github.com/walnadz/solatsyncmy/pkg/plugin"
)

// PluginName is the registry name of the schedule plugin
const PluginName = "schedule"

func init() {
	plugin.MustRegister(plugin.PluginInfo{
		Name:        PluginName,
		Description: "Polls the prayer schedule and publishes today's times and the next prayer",
		Order:       10,
		Factory:     createPlugin,
	})
}

func createPlugin(ctx *plugin.Context) (plugin.Plugin, error) {
	if ctx.Cache == nil {
		return nil, fmt.Errorf("schedule plugin requires a prayer time cache")
	}
	if ctx.StateManager == nil {
		return nil, fmt.Errorf("schedule plugin requires a state manager")
	}

	interval := DefaultInterval
	if ctx.Config != nil {
		interval = ctx.Config.WaktuSolat.PollInterval
	}

	var publisher Publisher
	if ctx.Publisher != nil {
		publisher = ctx.Publisher
	}

	manager := NewManager(ctx.Cache, ctx.StateManager, publisher, ctx.Clock, interval, ctx.Logger, ctx.ReadOnly)
	if ctx.Shadow != nil {
		ctx.Shadow.RegisterPluginProvider(PluginName, func() shadowstate.PluginShadowState {
			return manager.GetShadowState()
		})
	}
	return &pluginAdapter{manager: manager}, nil
}

// pluginAdapter wraps the Manager to implement the plugin.Plugin interface.
type pluginAdapter struct {
	manager *Manager
}

func (p *pluginAdapter) Name() string {
	return PluginName
}

func (p *pluginAdapter) Start() error {
	return p.manager.Start()
}

func (p *pluginAdapter) Stop() {
	p.manager.Stop()
}

// Implement plugin.Resettable
func (p *pluginAdapter) Reset() error {
	return p.manager.Reset()
}

// Implement plugin.ShadowStateProvider
func (p *pluginAdapter) GetShadowState() shadowstate.PluginShadowState {
	return p.manager.GetShadowState()
}

// Refresh lets the API trigger a refresh
func (p *pluginAdapter) Refresh(ctx context.Context) error {
	return p.manager.Refresh(ctx)
}

// GetManager returns the underlying Manager instance.
func (p *pluginAdapter) GetManager() *Manager {
	return p.manager
}
