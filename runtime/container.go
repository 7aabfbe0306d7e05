package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// Container holds the plugins of a process and drives their lifecycle.
type Container struct {
	plugins      map[string]any
	initializers []string
	shutdowners  []string
}

func NewContainer() *Container {
	return &Container{
		plugins: make(map[string]any),
	}
}

// RegisterPlugin registers a plugin instance and detects its lifecycle hooks.
func (c *Container) RegisterPlugin(name string, plugin any) error {
	if plugin == nil {
		return fmt.Errorf("plugin %s cannot be nil", name)
	}
	if _, exists := c.plugins[name]; exists {
		return fmt.Errorf("plugin %s already registered", name)
	}

	c.plugins[name] = plugin

	if _, ok := plugin.(Initializer); ok {
		c.initializers = append(c.initializers, name)
	}
	if _, ok := plugin.(Shutdowner); ok {
		c.shutdowners = append(c.shutdowners, name)
	}
	return nil
}

// GetPlugin returns a plugin instance by name
func (c *Container) GetPlugin(name string) any {
	return c.plugins[name]
}

// Initialize calls Initialize on plugins in registration order and stops at
// the first failure.
func (c *Container) Initialize(ctx context.Context) error {
	for _, name := range c.initializers {
		slog.InfoContext(ctx, "Initializing plugin", "plugin", name)
		if err := c.plugins[name].(Initializer).Initialize(ctx); err != nil {
			return fmt.Errorf("plugin %s initialization failed: %w", name, err)
		}
	}
	return nil
}

// Shutdown calls Shutdown on all plugins in reverse registration order.
func (c *Container) Shutdown(ctx context.Context) error {
	var errs []error
	for i := len(c.shutdowners) - 1; i >= 0; i-- {
		name := c.shutdowners[i]
		if err := c.plugins[name].(Shutdowner).Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("plugin %s shutdown failed: %w", name, err))
		}
	}
	return errors.Join(errs...)
}
