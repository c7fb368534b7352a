// Package plugin provides the send-time middleware chain wrapped around a
// transport call: per-recipient decoration, rate throttling and anti-flood
// pauses. Plugins run in declaration order, the first declared wrapping
// outermost. No other ordering between plugins is enforced.
package plugin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"sync"
	"time"

	"dario.cat/mergo"
	"github.com/samber/lo"

	"github.com/shineum/mailkit/internal/email"
)

// ErrUnknownPlugin is returned when registering a plugin kind that has no factory.
var ErrUnknownPlugin = errors.New("unknown plugin")

// Outcome is the result of handing one message to the next stage.
type Outcome struct {
	// Sent counts recipients the transport accepted.
	Sent int
	// Failures lists recipients the transport refused.
	Failures []string
	// Err is set when the stage failed as a whole.
	Err error
}

// Merge folds o into a running total over several deliveries.
func (a Outcome) Merge(o Outcome) Outcome {
	a.Sent += o.Sent
	a.Failures = append(a.Failures, o.Failures...)
	if o.Err != nil {
		a.Err = errors.Join(a.Err, o.Err)
	}
	return a
}

// SendFunc delivers a message and reports the outcome.
type SendFunc func(ctx context.Context, msg *email.Message) Outcome

// Plugin wraps a SendFunc with send-time behavior.
type Plugin interface {
	Name() string
	Wrap(next SendFunc) SendFunc
}

// Config declares one plugin entry. A nil Active leaves the active flag of
// an existing entry untouched; a new entry starts inactive.
type Config struct {
	Name   string         `yaml:"name" validate:"required"`
	Active *bool          `yaml:"active"`
	Params map[string]any `yaml:"params"`
}

// IsActive reports whether the entry is switched on.
func (c Config) IsActive() bool {
	return c.Active != nil && *c.Active
}

// Deps are the collaborators handed to plugin factories.
type Deps struct {
	Logger *slog.Logger
	// Sleep pauses the sending path. Defaults to a context-aware timer.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Factory builds a plugin from its parameters.
type Factory func(params map[string]any, deps Deps) (Plugin, error)

var builtins = map[string]Factory{
	DecoratorName: newDecorator,
	ThrottlerName: newThrottler,
	AntiFloodName: newAntiFlood,
}

// defaultParams seed a new entry before the declared params are merged in.
var defaultParams = map[string]map[string]any{
	ThrottlerName: {"rate": defaultThrottleRate, "mode": ModeMessages},
	AntiFloodName: {"threshold": defaultFloodThreshold, "sleep": defaultFloodSleep},
}

// Registry holds at most one entry per plugin kind, in declaration order.
// Built plugins are kept between sends so that counters and limiters
// persist; an entry is rebuilt only after it is registered again.
type Registry struct {
	mu        sync.Mutex
	deps      Deps
	factories map[string]Factory
	entries   []*Config
	built     map[string]Plugin
}

// NewRegistry creates a registry knowing the built-in plugin kinds.
func NewRegistry(deps Deps) *Registry {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Sleep == nil {
		deps.Sleep = sleepWithContext
	}
	return &Registry{
		deps:      deps,
		factories: maps.Clone(builtins),
		built:     make(map[string]Plugin),
	}
}

// Register declares a plugin entry. Registering a kind that already exists
// merges the new parameters over the old ones instead of adding a second
// entry, and changes its active flag only when cfg sets one. A new entry
// starts from the kind's default parameters.
func (r *Registry) Register(cfg Config) error {
	if _, ok := r.factories[cfg.Name]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownPlugin, cfg.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	entry := r.entry(cfg.Name)
	if entry == nil {
		entry = &Config{Name: cfg.Name, Active: lo.ToPtr(false), Params: maps.Clone(defaultParams[cfg.Name])}
		if entry.Params == nil {
			entry.Params = make(map[string]any)
		}
		r.entries = append(r.entries, entry)
	}

	delete(r.built, cfg.Name)
	if cfg.Active != nil {
		entry.Active = lo.ToPtr(*cfg.Active)
	}
	if len(cfg.Params) == 0 {
		return nil
	}
	if err := mergo.Merge(&entry.Params, cfg.Params, mergo.WithOverride); err != nil {
		return fmt.Errorf("failed to merge %s params: %w", cfg.Name, err)
	}
	return nil
}

func (r *Registry) entry(name string) *Config {
	for _, e := range r.entries {
		if e.Name == name {
			return e
		}
	}
	return nil
}

// Configs returns a copy of the declared entries in order.
func (r *Registry) Configs() []Config {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Config, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, Config{Name: e.Name, Active: lo.ToPtr(e.IsActive()), Params: maps.Clone(e.Params)})
	}
	return out
}

// Active returns the built plugins of every active entry in declaration order.
func (r *Registry) Active() ([]Plugin, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var plugins []Plugin
	for _, e := range r.entries {
		if !e.IsActive() {
			continue
		}
		p, ok := r.built[e.Name]
		if !ok {
			var err error
			p, err = r.factories[e.Name](e.Params, r.deps)
			if err != nil {
				return nil, fmt.Errorf("failed to build %s plugin: %w", e.Name, err)
			}
			r.built[e.Name] = p
		}
		plugins = append(plugins, p)
	}
	return plugins, nil
}

// Chain wraps terminal with every active plugin.
func (r *Registry) Chain(terminal SendFunc) (SendFunc, error) {
	plugins, err := r.Active()
	if err != nil {
		return nil, err
	}
	next := terminal
	for i := len(plugins) - 1; i >= 0; i-- {
		next = plugins[i].Wrap(next)
	}
	return next, nil
}

// sleepWithContext waits for the specified duration or until the context is cancelled.
func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
