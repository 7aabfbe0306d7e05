package runtime

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
)

// App is the set of flows a process serves. It implements FlowSource for
// local flows and falls back to an optional remote source.
type App struct {
	Container *Container

	mu          sync.RWMutex
	flows       map[string]*Flow
	byExtension map[string]*Flow
	fallback    FlowSource
}

func NewApp() *App {
	return &App{
		Container:   NewContainer(),
		flows:       make(map[string]*Flow),
		byExtension: make(map[string]*Flow),
	}
}

// LoadDir registers every flow file in dir understood by one of loaders.
func (a *App) LoadDir(dir string, loaders ...FlowLoader) error {
	for _, loader := range loaders {
		for _, ext := range loader.Extensions() {
			files, err := filepath.Glob(filepath.Join(dir, "*"+ext))
			if err != nil {
				return fmt.Errorf("error reading directory: %w", err)
			}
			for _, file := range files {
				flow, err := loader.Load(file)
				if err != nil {
					return err
				}
				if err := a.RegisterFlow(&flow); err != nil {
					return fmt.Errorf("%s: %w", file, err)
				}
			}
		}
	}
	return nil
}

func (a *App) RegisterFlow(flow *Flow) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, exists := a.flows[flow.ID]; exists {
		return fmt.Errorf("duplicate flow id %q", flow.ID)
	}
	if flow.Extension != "" {
		if other, exists := a.byExtension[flow.Extension]; exists {
			return fmt.Errorf("extension %s already served by flow %q", flow.Extension, other.ID)
		}
		a.byExtension[flow.Extension] = flow
	}
	a.flows[flow.ID] = flow
	return nil
}

// SetFallback installs the source consulted for extensions with no local flow.
func (a *App) SetFallback(source FlowSource) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.fallback = source
}

// Flow returns a local flow by id.
func (a *App) Flow(id string) (*Flow, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	f, ok := a.flows[id]
	return f, ok
}

// Flows lists local flows sorted by id.
func (a *App) Flows() []*Flow {
	a.mu.RLock()
	defer a.mu.RUnlock()

	out := make([]*Flow, 0, len(a.flows))
	for _, f := range a.flows {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (a *App) FlowFor(ctx context.Context, extension string) (*Flow, error) {
	a.mu.RLock()
	f, ok := a.byExtension[extension]
	if !ok {
		f, ok = a.flows[extension]
	}
	fallback := a.fallback
	a.mu.RUnlock()

	if ok {
		return f, nil
	}
	if fallback != nil {
		return fallback.FlowFor(ctx, extension)
	}
	return nil, fmt.Errorf("extension %s: %w", extension, ErrFlowNotFound)
}
