package plugin

import (
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// DefaultOrder is used when a plugin registers without an Order
const DefaultOrder = 50

// PluginInfo contains metadata about a registered plugin.
type PluginInfo struct {
	// Name is the unique identifier for the plugin.
	Name string

	// Description is a human-readable description of the plugin.
	Description string

	// Factory creates new instances of the plugin.
	Factory Factory

	// Order specifies the startup order. Lower values start first and stop
	// last. The schedule poller is 10, azan timers 50.
	Order int

	// Enabled reports whether the plugin should be created for ctx.
	// Nil means always.
	Enabled func(ctx *Context) bool
}

// Registry manages plugin registration and instantiation.
type Registry struct {
	mu      sync.RWMutex
	plugins map[string]PluginInfo
}

// NewRegistry creates a new plugin registry.
func NewRegistry() *Registry {
	return &Registry{
		plugins: make(map[string]PluginInfo),
	}
}

// Register adds a plugin to the registry. Registering a name twice is an
// error.
func (r *Registry) Register(info PluginInfo) error {
	if info.Name == "" {
		return fmt.Errorf("plugin name cannot be empty")
	}
	if info.Factory == nil {
		return fmt.Errorf("plugin %s: factory cannot be nil", info.Name)
	}
	if info.Order == 0 {
		info.Order = DefaultOrder
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.plugins[info.Name]; exists {
		return fmt.Errorf("plugin %s already registered", info.Name)
	}
	r.plugins[info.Name] = info
	return nil
}

// Get returns the plugin info for a given name, or nil if not found.
func (r *Registry) Get(name string) *PluginInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	info, ok := r.plugins[name]
	if !ok {
		return nil
	}
	return &info
}

// List returns all registered plugins sorted by Order, then Name.
func (r *Registry) List() []PluginInfo {
	r.mu.RLock()
	result := make([]PluginInfo, 0, len(r.plugins))
	for _, info := range r.plugins {
		result = append(result, info)
	}
	r.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool {
		if result[i].Order != result[j].Order {
			return result[i].Order < result[j].Order
		}
		return result[i].Name < result[j].Name
	})
	return result
}

// Names returns the names of all registered plugins in startup order.
func (r *Registry) Names() []string {
	list := r.List()
	names := make([]string, len(list))
	for i, info := range list {
		names[i] = info.Name
	}
	return names
}

// CreateAll instantiates every enabled plugin in startup order. If a
// factory fails, plugins created so far are stopped.
func (r *Registry) CreateAll(ctx *Context) ([]Plugin, error) {
	logger := zap.NewNop()
	if ctx != nil && ctx.Logger != nil {
		logger = ctx.Logger.Named("plugin")
	}

	infos := r.List()
	result := make([]Plugin, 0, len(infos))

	for _, info := range infos {
		if info.Enabled != nil && !info.Enabled(ctx) {
			logger.Info("Plugin disabled by configuration", zap.String("plugin", info.Name))
			continue
		}

		p, err := info.Factory(ctx)
		if err != nil {
			StopAll(result)
			return nil, fmt.Errorf("failed to create plugin %s: %w", info.Name, err)
		}
		logger.Debug("Plugin created",
			zap.String("plugin", info.Name),
			zap.Int("order", info.Order))
		result = append(result, p)
	}

	return result, nil
}

// StartAll starts plugins in order. On failure the plugins already started
// are stopped and the error returned.
func StartAll(plugins []Plugin) error {
	for i, p := range plugins {
		if err := p.Start(); err != nil {
			StopAll(plugins[:i])
			return fmt.Errorf("failed to start plugin %s: %w", p.Name(), err)
		}
	}
	return nil
}

// StopAll stops plugins in reverse order.
func StopAll(plugins []Plugin) {
	for i := len(plugins) - 1; i >= 0; i-- {
		plugins[i].Stop()
	}
}

// Clear removes all registered plugins. Useful for testing.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.plugins = make(map[string]PluginInfo)
}

var globalRegistry = NewRegistry()

// Register adds a plugin to the global registry.
// This is typically called from init() functions in plugin packages.
func Register(info PluginInfo) error {
	return globalRegistry.Register(info)
}

// MustRegister is Register for init() functions; it panics on error.
func MustRegister(info PluginInfo) {
	if err := Register(info); err != nil {
		panic(err)
	}
}

// Get returns plugin info from the global registry.
func Get(name string) *PluginInfo {
	return globalRegistry.Get(name)
}

// List returns all plugins from the global registry.
func List() []PluginInfo {
	return globalRegistry.List()
}

// CreateAll creates all plugins from the global registry.
func CreateAll(ctx *Context) ([]Plugin, error) {
	return globalRegistry.CreateAll(ctx)
}

// Names returns all plugin names from the global registry.
func Names() []string {
	return globalRegistry.Names()
}

// ClearGlobal clears the global registry. Useful for testing.
func ClearGlobal() {
	globalRegistry.Clear()
}
