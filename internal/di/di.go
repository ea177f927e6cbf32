// Package di provides the minimal service container used by the composition
// root to wire bounded-context modules together without a global registry.
package di

import "sync"

// ServiceRegistry is the read side of the container: modules use it to look
// up dependencies registered by earlier modules or the root app.
type ServiceRegistry interface {
	Get(name string) any
}

// Container is the read/write side, used during RegisterServices.
type Container interface {
	ServiceRegistry
	Register(name string, svc any)
}

// container is a plain string-keyed map guarded by a mutex. Token-based
// registrations (RegisterToken) are stored as lazily-evaluated factories
// under their own named slot so construction order across modules does not
// matter.
type container struct {
	mu   sync.RWMutex
	svcs map[string]any
}

// NewContainer creates an empty container.
func NewContainer() *container {
	return &container{svcs: make(map[string]any)}
}

func (c *container) Register(name string, svc any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.svcs[name] = svc
}

func (c *container) Get(name string) any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.svcs[name]
}

// tokenEntry memoizes a factory's result behind sync.Once so each token is
// constructed at most once, regardless of how many GetXxx calls race for it.
type tokenEntry struct {
	once    sync.Once
	build   func(ServiceRegistry) any
	value   any
}

// RegisterToken installs a lazily-constructed singleton under token. The
// factory receives the container itself (as a ServiceRegistry) so it can
// pull its own dependencies by name or by other tokens.
func RegisterToken[T any](c Container, token string, factory func(ServiceRegistry) T) {
	entry := &tokenEntry{
		build: func(sr ServiceRegistry) any { return factory(sr) },
	}
	c.Register(token, entry)
}

// ResolveToken fetches (and, on first use, builds) the value registered
// under token. It panics if nothing was registered under that name or if
// the stored value is not a token entry, since both indicate a wiring bug in
// RegisterServices rather than a recoverable runtime condition.
func ResolveToken[T any](sr ServiceRegistry, token string) T {
	raw := sr.Get(token)
	entry, ok := raw.(*tokenEntry)
	if !ok {
		panic("di: token not registered: " + token)
	}
	entry.once.Do(func() {
		entry.value = entry.build(sr)
	})
	v, ok := entry.value.(T)
	if !ok {
		panic("di: token type mismatch: " + token)
	}
	return v
}
