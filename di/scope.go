package di

import (
	"reflect"
	"sync"
)

// Scope is a bounded lifetime window for scoped-lifetime services. Every
// scoped service resolved through the scope is cached for the scope's
// lifetime and discarded on Close. Transient and singleton services
// resolved through a scope behave exactly as they do on the container.
type Scope struct {
	container *Container

	mu     sync.Mutex
	cache  map[reflect.Type]reflect.Value
	closed bool
}

// Resolve constructs or fetches an instance of the service type within this
// scope.
func (s *Scope) Resolve(serviceType reflect.Type) (any, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, newContainerError(serviceType, "resolve", "", ErrScopeClosed)
	}
	s.mu.Unlock()

	v, err := s.container.resolve(serviceType, nil, s, false)
	if err != nil {
		return nil, err
	}
	return v.Interface(), nil
}

// Close discards the scope's cached instances. The container's own service
// registrations and singleton cache are untouched, so the state visible
// after Close is exactly the pre-scope state. Closing twice is a no-op.
func (s *Scope) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.cache = nil
}

// resolveScoped returns the scope-cached instance, constructing it on first
// use within the scope.
func (s *Scope) resolveScoped(d *descriptor, stack []reflect.Type) (reflect.Value, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return reflect.Value{}, newContainerError(d.serviceType, "resolve", "", ErrScopeClosed)
	}
	if v, ok := s.cache[d.serviceType]; ok {
		s.mu.Unlock()
		return v, nil
	}
	s.mu.Unlock()

	v, err := s.container.construct(d, stack, s)
	if err != nil {
		return reflect.Value{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return reflect.Value{}, newContainerError(d.serviceType, "resolve", "", ErrScopeClosed)
	}
	// Another goroutine may have populated the cache while constructing.
	if cached, ok := s.cache[d.serviceType]; ok {
		return cached, nil
	}
	s.cache[d.serviceType] = v
	return v, nil
}
