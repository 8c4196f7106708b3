package messaging

import (
	"reflect"
	"sync"

	"github.com/reactivedomain/reactivedomain/rderrors"
)

// Registry indexes every known Message type by simple name (one-to-many,
// since two packages may reuse a short name) and by full name (one-to-one).
// It also answers "ancestor"/"descendant" queries, reinterpreting the
// source's class-hierarchy lookup as Go's nearest analog: a type's chain of
// embedded (anonymous) struct fields. Subscribe(includeDerived=true) in the
// bus package uses AncestorsAndSelf/DescendantsAndSelf to decide whether a
// concrete event satisfies a handler registered for one of its embedded
// base types.
type Registry struct {
	mu sync.RWMutex

	byName     map[string][]reflect.Type
	byFullName map[string]reflect.Type

	ancestorCache   map[reflect.Type][]reflect.Type
	descendants     map[reflect.Type][]reflect.Type
	descendantsBuilt bool
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byName:        make(map[string][]reflect.Type),
		byFullName:    make(map[string]reflect.Type),
		ancestorCache: make(map[reflect.Type][]reflect.Type),
		descendants:   make(map[reflect.Type][]reflect.Type),
	}
}

func elemType(t reflect.Type) reflect.Type {
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t
}

func fullName(t reflect.Type) string {
	t = elemType(t)
	if t.PkgPath() == "" {
		return t.Name()
	}
	return t.PkgPath() + "." + t.Name()
}

// Register adds t to the registry under its simple and full name. It does
// not need to also register t's embedded base types: AncestorsAndSelf walks
// the embedding chain structurally, independent of what else has been
// registered. A duplicate full name is an error.
func (r *Registry) Register(t reflect.Type) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.registerLocked(t)
}

func (r *Registry) registerLocked(t reflect.Type) error {
	t = elemType(t)
	full := fullName(t)
	if existing, ok := r.byFullName[full]; ok && existing != t {
		return rderrors.DuplicateType("Registry.Register: " + full)
	}
	if _, ok := r.byFullName[full]; !ok {
		r.byFullName[full] = t
		r.byName[t.Name()] = append(r.byName[t.Name()], t)
		r.descendantsBuilt = false
		r.ancestorCache[t] = nil // invalidate, recomputed lazily
	}
	return nil
}

// RegisterMessage is a convenience wrapper that registers the concrete type
// of a Message value.
func (r *Registry) RegisterMessage(m Message) error {
	return r.Register(reflect.TypeOf(m))
}

// Reindex replaces the registry's contents with exactly the given types,
// satisfying "re-scan when new type collections are introduced" (§4.1): a
// host application that dynamically loads new message types calls this with
// the full updated type list rather than relying on stale results.
func (r *Registry) Reindex(types []reflect.Type) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byName = make(map[string][]reflect.Type)
	r.byFullName = make(map[string]reflect.Type)
	r.ancestorCache = make(map[reflect.Type][]reflect.Type)
	r.descendants = make(map[reflect.Type][]reflect.Type)
	r.descendantsBuilt = false
	for _, t := range types {
		if err := r.registerLocked(t); err != nil {
			return err
		}
	}
	return nil
}

// GetByName returns every registered type with the given simple name.
func (r *Registry) GetByName(simple string) []reflect.Type {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]reflect.Type, len(r.byName[simple]))
	copy(out, r.byName[simple])
	return out
}

// GetByFullName returns the unique type registered under full, if any.
func (r *Registry) GetByFullName(full string) (reflect.Type, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.byFullName[full]
	return t, ok
}

// MustGetByFullName behaves like GetByFullName but fails with
// rderrors.UnknownMessageType when throwOnNotFound is true and full isn't
// registered (§4.1).
func (r *Registry) MustGetByFullName(full string, throwOnNotFound bool) (reflect.Type, error) {
	t, ok := r.GetByFullName(full)
	if !ok && throwOnNotFound {
		return nil, rderrors.UnknownMessageType("Registry.MustGetByFullName: " + full)
	}
	return t, nil
}

// ancestorChain computes t's embedding chain without touching the cache or
// any lock, for reuse by both AncestorsAndSelf and the descendant builder.
func ancestorChain(t reflect.Type) []reflect.Type {
	chain := []reflect.Type{t}
	cur := t
	for cur.Kind() == reflect.Struct {
		var embedded reflect.Type
		found := false
		for i := 0; i < cur.NumField(); i++ {
			f := cur.Field(i)
			if !f.Anonymous {
				continue
			}
			ft := elemType(f.Type)
			if ft.Kind() != reflect.Struct {
				continue
			}
			embedded = ft
			found = true
			break
		}
		if !found {
			break
		}
		chain = append(chain, embedded)
		cur = embedded
	}
	return chain
}

// AncestorsAndSelf returns t's embedding chain, including t itself, in
// traversal order (t first, then each anonymous struct field that is itself
// a registered Message-implementing type, walked depth-first).
func (r *Registry) AncestorsAndSelf(t reflect.Type) []reflect.Type {
	t = elemType(t)
	r.mu.RLock()
	if cached, ok := r.ancestorCache[t]; ok && cached != nil {
		r.mu.RUnlock()
		return cached
	}
	r.mu.RUnlock()

	chain := ancestorChain(t)

	r.mu.Lock()
	r.ancestorCache[t] = chain
	r.mu.Unlock()
	return chain
}

// DescendantsAndSelf returns every registered type that embeds t
// (transitively), including t itself. The reverse edge table is built once
// from the current registry contents and cached until the next Register or
// Reindex call invalidates it (§9: "descendant lookup is cached after first
// use").
func (r *Registry) DescendantsAndSelf(t reflect.Type) []reflect.Type {
	t = elemType(t)
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.descendantsBuilt {
		r.buildDescendantsLocked()
	}
	return append([]reflect.Type(nil), r.descendants[t]...)
}

func (r *Registry) buildDescendantsLocked() {
	r.descendants = make(map[reflect.Type][]reflect.Type)
	for _, t := range r.byFullName {
		chain, ok := r.ancestorCache[t]
		if !ok || chain == nil {
			chain = ancestorChain(t)
			r.ancestorCache[t] = chain
		}
		for _, ancestor := range chain {
			r.descendants[ancestor] = append(r.descendants[ancestor], t)
		}
	}
	r.descendantsBuilt = true
}
