package azan

import (
	"fmt"

	playback "github.com/walnadz/solatsyncmy/internal/azan"
	"github.com/walnadz/solatsyncmy/internal/shadowstate"
	"github.com/walnadz/solatsyncmy/pkg/plugin"
)

// PluginName is the registry name of the azan timer plugin
const PluginName = "azan"

func init() {
	plugin.MustRegister(plugin.PluginInfo{
		Name:        PluginName,
		Description: "Plays the azan on a media player at each enabled prayer time",
		Order:       50,
		Factory:     createPlugin,
		Enabled: func(ctx *plugin.Context) bool {
			return ctx != nil && ctx.Player != nil && ctx.Player.MediaPlayer() != ""
		},
	})
}

func createPlugin(ctx *plugin.Context) (plugin.Plugin, error) {
	if ctx.Cache == nil || ctx.StateManager == nil || ctx.Player == nil {
		return nil, fmt.Errorf("azan plugin requires a cache, state manager and player")
	}

	volume := playback.DefaultVolume
	if ctx.Config != nil {
		volume = ctx.Config.Azan.Volume
	}

	manager := NewManager(ctx.Cache, ctx.StateManager, ctx.Player, ctx.Clock, volume, ctx.Logger, ctx.ReadOnly)
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

// GetManager returns the underlying Manager instance.
func (p *pluginAdapter) GetManager() *Manager {
	return p.manager
}
