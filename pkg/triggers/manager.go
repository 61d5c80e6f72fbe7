// Package triggers runs user-supplied hooks before and after resource operations.
package triggers

import (
	"context"
	"fmt"
	"os"
	"sync"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/ekaya-inc/resource-engine/pkg/apperrors"
	"github.com/ekaya-inc/resource-engine/pkg/models"
)

// Event describes the operation a trigger is fired for.
type Event struct {
	Resource string
	Request  *models.Request
	// Before is true ahead of execution and false once it has completed.
	Before bool
}

// Trigger is a hook bound to one or more resources. Returning an error vetoes
// the operation.
type Trigger interface {
	Name() string
	Fire(ctx context.Context, ev Event) error
}

type funcTrigger struct {
	name string
	fn   func(ctx context.Context, ev Event) error
}

func (t *funcTrigger) Name() string { return t.name }

func (t *funcTrigger) Fire(ctx context.Context, ev Event) error { return t.fn(ctx, ev) }

// TriggerFunc adapts a function into a named Trigger.
func TriggerFunc(name string, fn func(ctx context.Context, ev Event) error) Trigger {
	return &funcTrigger{name: name, fn: fn}
}

// Runner fires the triggers bound to a resource.
type Runner interface {
	Run(ctx context.Context, resource string, req *models.Request, before bool) error
}

// Manager holds trigger bindings per resource. Safe for concurrent use.
type Manager struct {
	logger *zap.Logger

	mu       sync.RWMutex
	triggers map[string][]Trigger
}

var _ Runner = (*Manager)(nil)

// NewManager creates a manager with no bindings.
func NewManager(logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		logger:   logger.Named("triggers"),
		triggers: make(map[string][]Trigger),
	}
}

// Register binds t to resource. Triggers fire in registration order.
func (m *Manager) Register(resource string, t Trigger) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.triggers[resource] = append(m.triggers[resource], t)
}

// Triggers returns the triggers bound to resource.
func (m *Manager) Triggers(resource string) []Trigger {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Trigger, len(m.triggers[resource]))
	copy(out, m.triggers[resource])
	return out
}

// HasTriggers reports whether any trigger is bound to resource.
func (m *Manager) HasTriggers(resource string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.triggers[resource]) > 0
}

// Run fires every trigger bound to resource, stopping at the first failure.
// Failures are returned as *apperrors.TriggerError.
func (m *Manager) Run(ctx context.Context, resource string, req *models.Request, before bool) error {
	ev := Event{Resource: resource, Request: req, Before: before}
	for _, t := range m.Triggers(resource) {
		if err := t.Fire(ctx, ev); err != nil {
			m.logger.Warn("Trigger rejected request",
				zap.String("resource", resource),
				zap.String("trigger", t.Name()),
				zap.Bool("before", before),
				zap.String("request_id", req.ID.String()),
				zap.Error(err))
			return &apperrors.TriggerError{Resource: resource, Trigger: t.Name(), Before: before, Err: err}
		}
	}
	return nil
}

// Bindings maps resource names to the names of the triggers bound to them.
type Bindings struct {
	Triggers map[string][]string `yaml:"triggers"`
}

// LoadBindings reads a YAML bindings file and registers the named triggers
// from catalog:
//
//	triggers:
//	  sakila.Film: [log, read_only]
func (m *Manager) LoadBindings(path string, catalog map[string]Trigger) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read trigger bindings: %w", err)
	}

	var b Bindings
	if err := yaml.Unmarshal(data, &b); err != nil {
		return fmt.Errorf("failed to parse trigger bindings %s: %w", path, err)
	}
	return m.Bind(b, catalog)
}

// Bind registers bindings, failing before registering anything if a name is
// missing from catalog.
func (m *Manager) Bind(b Bindings, catalog map[string]Trigger) error {
	for resource, names := range b.Triggers {
		for _, name := range names {
			if _, ok := catalog[name]; !ok {
				return fmt.Errorf("resource %s: unknown trigger %q", resource, name)
			}
		}
	}

	for resource, names := range b.Triggers {
		for _, name := range names {
			m.Register(resource, catalog[name])
		}
		m.logger.Info("Bound triggers", zap.String("resource", resource), zap.Strings("triggers", names))
	}
	return nil
}
