// Package plugin provides the plugin system interfaces and registry for
// solatsync. Plugins register themselves with the global registry from init()
// functions and are created in order at startup.
package plugin

import "github.com/walnadz/solatsyncmy/internal/shadowstate"

// Plugin is the core interface that all plugins must implement.
type Plugin interface {
	// Name returns the unique identifier for this plugin.
	Name() string

	// Start sets up subscriptions and background work.
	Start() error

	// Stop unsubscribes, stops background goroutines and releases resources.
	Stop()
}

// Resettable is an optional interface for plugins that support the
// system-wide reset triggered by input_boolean.solat_reset.
type Resettable interface {
	// Reset re-evaluates all conditions and recalculates state.
	Reset() error
}

// ShadowStateProvider is an optional interface for plugins that record the
// inputs behind each decision for the /api/shadow endpoint.
type ShadowStateProvider interface {
	GetShadowState() shadowstate.PluginShadowState
}

// Factory is a function that creates a new plugin instance given a context.
type Factory func(ctx *Context) (Plugin, error)
