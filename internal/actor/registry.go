package actor

import (
	"fmt"
	"plugin"
	"sort"
	"strings"
	"sync"

	"distributed-actor-rl/internal/config"
)

// Factory builds an Implementation for one actor.
type Factory func(cfg *config.Config, deps Deps) (Implementation, error)

// Loader makes the actor types of a named module available in a registry.
type Loader interface {
	Load(name string, reg *Registry) error
}

// Registry maps configured actor type names to factories. It is meant to be
// built once at startup and passed to whoever creates actors.
type Registry struct {
	mu        sync.Mutex
	factories map[string]Factory
	loaded    map[string]bool
	loader    Loader
}

// NewRegistry returns an empty registry. loader may be nil when no modules
// need loading.
func NewRegistry(loader Loader) *Registry {
	return &Registry{
		factories: make(map[string]Factory),
		loaded:    make(map[string]bool),
		loader:    loader,
	}
}

func (r *Registry) Register(name string, factory Factory) error {
	if name == "" {
		return fmt.Errorf("%w: empty name", ErrDuplicateRegistration)
	}
	if factory == nil {
		return fmt.Errorf("%w: %s has no factory", ErrDuplicateRegistration, name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.factories[name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateRegistration, name)
	}
	r.factories[name] = factory
	return nil
}

func (r *Registry) Lookup(name string) (Factory, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.factories[name]
	return f, ok
}

// Names lists registered actor types in sorted order.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// LoadModules loads every named module once.
func (r *Registry) LoadModules(names []string) error {
	for _, name := range names {
		r.mu.Lock()
		done := r.loaded[name]
		r.mu.Unlock()
		if done {
			continue
		}
		if r.loader == nil {
			return fmt.Errorf("%w: %s (no loader)", ErrUnknownModule, name)
		}
		if err := r.loader.Load(name, r); err != nil {
			return fmt.Errorf("load module %s: %w", name, err)
		}
		r.mu.Lock()
		r.loaded[name] = true
		r.mu.Unlock()
	}
	return nil
}

// Create loads cfg.Actor.ImportNames, then constructs the actor type named by
// cfg.Actor.ActorType. Nothing is constructed when the type is unknown.
func (r *Registry) Create(cfg *config.Config, opts ...Option) (*Controller, error) {
	if err := r.LoadModules(cfg.Actor.ImportNames); err != nil {
		return nil, err
	}
	factory, ok := r.Lookup(cfg.Actor.ActorType)
	if !ok {
		return nil, fmt.Errorf("%w: %q (registered: %s)", ErrUnknownActorType,
			cfg.Actor.ActorType, strings.Join(r.Names(), ", "))
	}
	return New(cfg, factory, opts...)
}

// StaticLoader loads modules compiled into the binary.
type StaticLoader map[string]func(*Registry) error

func (s StaticLoader) Load(name string, reg *Registry) error {
	register, ok := s[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownModule, name)
	}
	return register(reg)
}

// PluginLoader opens module names ending in ".so" as Go plugins exporting
//
//	func Register(*actor.Registry) error
//
// Other names go to Fallback.
type PluginLoader struct {
	Fallback Loader
}

func (p PluginLoader) Load(name string, reg *Registry) error {
	if !strings.HasSuffix(name, ".so") {
		if p.Fallback == nil {
			return fmt.Errorf("%w: %s", ErrUnknownModule, name)
		}
		return p.Fallback.Load(name, reg)
	}
	pl, err := plugin.Open(name)
	if err != nil {
		return err
	}
	sym, err := pl.Lookup("Register")
	if err != nil {
		return err
	}
	register, ok := sym.(func(*Registry) error)
	if !ok {
		return fmt.Errorf("%w: %s: Register has type %T", ErrUnknownModule, name, sym)
	}
	return register(reg)
}
