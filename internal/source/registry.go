// Package source resolves the tagged references stored on notifications.
//
// Any entity can be a notification source. Instead of an interface the entity
// must implement, a source type registers a loader plus named render and
// recipient methods; the queue processor looks these up by (type, name).
package source

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/ricirt/pigeonpost/internal/domain"
)

// Entity is a loaded source instance. It is nil for type-only notifications.
type Entity any

// LoadFunc fetches a source instance by id. It must return an error wrapping
// domain.ErrMissingSource when the instance no longer exists.
type LoadFunc func(ctx context.Context, id string) (Entity, error)

// RenderFunc produces the message for one recipient, or nil when the
// recipient should not receive anything.
type RenderFunc func(ctx context.Context, src Entity, r domain.Recipient) (*domain.Message, error)

// RecipientsFunc computes candidate recipients from the source.
type RecipientsFunc func(ctx context.Context, src Entity) ([]domain.Recipient, error)

// Type describes one kind of notification source. A type with
// RequiresInstance set has no type-only notifications.
type Type struct {
	Name             string
	RequiresInstance bool
	Load             LoadFunc
	Renderers        map[string]RenderFunc
	RecipientMethods map[string]RecipientsFunc
}

// Registry is the dispatch table from type names to source types.
// It is safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	types map[string]Type
}

func NewRegistry() *Registry {
	return &Registry{types: make(map[string]Type)}
}

// Register adds a source type. Registering the same name twice is an error.
func (r *Registry) Register(t Type) error {
	if t.Name == "" {
		return fmt.Errorf("register source type: empty name")
	}
	if len(t.Renderers) == 0 {
		return fmt.Errorf("register source type %q: no renderers", t.Name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.types[t.Name]; exists {
		return fmt.Errorf("register source type %q: already registered", t.Name)
	}
	r.types[t.Name] = t
	return nil
}

// MustRegister is Register for package-level wiring; it panics on error.
func (r *Registry) MustRegister(t Type) {
	if err := r.Register(t); err != nil {
		panic(err)
	}
}

func (r *Registry) lookup(name string) (Type, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.types[name]
	if !ok {
		return Type{}, fmt.Errorf("%w: %q", domain.ErrUnknownSourceType, name)
	}
	return t, nil
}

// Check reports whether ref names a registered type and carries an instance
// id when the type needs one.
func (r *Registry) Check(ref domain.SourceRef) error {
	t, err := r.lookup(ref.Type)
	if err != nil {
		return err
	}
	if t.RequiresInstance && ref.ID == "" {
		return fmt.Errorf("%w: %q", domain.ErrSourceIDRequired, ref.Type)
	}
	return nil
}

// Load resolves a reference to its entity. Type-only references load as nil.
func (r *Registry) Load(ctx context.Context, ref domain.SourceRef) (Entity, error) {
	t, err := r.lookup(ref.Type)
	if err != nil {
		return nil, err
	}
	if ref.ID == "" {
		if t.RequiresInstance {
			return nil, fmt.Errorf("source type %q without instance id: %w", ref.Type, domain.ErrMissingSource)
		}
		return nil, nil
	}
	if t.Load == nil {
		return nil, fmt.Errorf("source type %q cannot load instances: %w", ref.Type, domain.ErrMissingSource)
	}
	return t.Load(ctx, ref.ID)
}

// Renderer returns the named render method of a source type.
func (r *Registry) Renderer(typeName, method string) (RenderFunc, error) {
	t, err := r.lookup(typeName)
	if err != nil {
		return nil, err
	}
	fn, ok := t.Renderers[method]
	if !ok {
		return nil, fmt.Errorf("%w: %s.%s", domain.ErrUnknownRenderMethod, typeName, method)
	}
	return fn, nil
}

// RecipientMethod returns the named recipient method of a source type.
func (r *Registry) RecipientMethod(typeName, method string) (RecipientsFunc, error) {
	t, err := r.lookup(typeName)
	if err != nil {
		return nil, err
	}
	fn, ok := t.RecipientMethods[method]
	if !ok {
		return nil, fmt.Errorf("%w: %s.%s", domain.ErrUnknownRecipientFunc, typeName, method)
	}
	return fn, nil
}

// Types lists registered type names in sorted order.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.types))
	for name := range r.types {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
