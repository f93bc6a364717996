// Package reset turns input_boolean.solat_reset into a service-wide reset:
// playback profiles are reloaded and cached schedules refetched.
package reset

import (
	"fmt"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/walnadz/solatsyncmy/internal/state"
)

// Resettable is an interface for plugins that can be reset
type Resettable interface {
	Reset() error
}

// ResetFunc adapts a function to Resettable
type ResetFunc func() error

// Reset calls f
func (f ResetFunc) Reset() error {
	return f()
}

// PluginWithName pairs a resettable plugin with its name for logging
type PluginWithName struct {
	Name   string
	Plugin Resettable
}

// Coordinator watches the reset boolean and orchestrates service-wide resets
type Coordinator struct {
	stateManager *state.Manager
	logger       *zap.Logger
	readOnly     bool
	plugins      []PluginWithName

	mu           sync.Mutex
	subscription state.Subscription
}

// NewCoordinator creates a new reset coordinator. Plugins reset in the
// order given.
func NewCoordinator(stateManager *state.Manager, logger *zap.Logger, readOnly bool, plugins []PluginWithName) *Coordinator {
	return &Coordinator{
		stateManager: stateManager,
		logger:       logger.Named("reset"),
		readOnly:     readOnly,
		plugins:      plugins,
	}
}

// Start begins monitoring the reset boolean
func (c *Coordinator) Start() error {
	c.logger.Info("Starting Reset Coordinator",
		zap.Int("plugin_count", len(c.plugins)),
		zap.Bool("read_only", c.readOnly))

	sub, err := c.stateManager.Subscribe(state.KeyReset, c.handleResetChange)
	if err != nil {
		return fmt.Errorf("failed to subscribe to reset: %w", err)
	}

	c.mu.Lock()
	c.subscription = sub
	c.mu.Unlock()

	c.logger.Info("Reset Coordinator started successfully")
	return nil
}

// Stop cleans up the coordinator. It is safe to call more than once.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.subscription != nil {
		c.subscription.Unsubscribe()
		c.subscription = nil
	}
	c.logger.Info("Reset Coordinator stopped")
}

// Trigger runs a reset immediately and returns the combined plugin errors
func (c *Coordinator) Trigger() error {
	c.logger.Info("Reset requested")
	return c.executeReset()
}

func (c *Coordinator) handleResetChange(key string, oldValue, newValue interface{}) {
	newReset, ok := newValue.(bool)
	if !ok {
		c.logger.Warn("Reset value is not a boolean", zap.Any("value", newValue))
		return
	}

	// Only act when reset goes from false -> true
	if !newReset {
		return
	}

	c.logger.Info("Reset triggered - coordinating service-wide reset")

	// Turn reset back off first so a second toggle is seen as a new request
	if !c.readOnly {
		if err := c.stateManager.SetBool(state.KeyReset, false); err != nil {
			c.logger.Error("Failed to turn reset off", zap.Error(err))
		} else {
			c.logger.Info("Reset boolean turned off")
		}
	} else {
		c.logger.Info("READ-ONLY: Would turn reset boolean off")
	}

	if err := c.executeReset(); err != nil {
		c.logger.Warn("Reset finished with errors", zap.Error(err))
	}
}

// executeReset calls Reset() on all plugins in order. A failing plugin does
// not stop the rest.
func (c *Coordinator) executeReset() error {
	c.logger.Info("Executing reset on all plugins",
		zap.Int("plugin_count", len(c.plugins)))

	var errs error
	successCount := 0

	for _, p := range c.plugins {
		c.logger.Info("Resetting plugin", zap.String("plugin", p.Name))

		if err := p.Plugin.Reset(); err != nil {
			c.logger.Error("Failed to reset plugin",
				zap.String("plugin", p.Name),
				zap.Error(err))
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", p.Name, err))
			continue
		}
		c.logger.Info("Successfully reset plugin", zap.String("plugin", p.Name))
		successCount++
	}

	c.logger.Info("Reset complete",
		zap.Int("success", successCount),
		zap.Int("errors", len(multierr.Errors(errs))),
		zap.Int("total", len(c.plugins)))
	return errs
}
