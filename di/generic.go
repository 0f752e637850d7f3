package di

import (
	"reflect"
)

// TypeOf returns the reflect.Type of S, including interface types.
func TypeOf[S any]() reflect.Type {
	return reflect.TypeOf((*S)(nil)).Elem()
}

// Register binds service type S to implementation type I with the given
// lifetime.
func Register[S any, I any](c *Container, lifetime Lifetime) error {
	return c.RegisterType(TypeOf[S](), TypeOf[I](), lifetime)
}

// RegisterFactory binds service type S to a factory function with the
// given lifetime.
func RegisterFactory[S any](c *Container, factory any, lifetime Lifetime) error {
	return c.RegisterFactory(TypeOf[S](), factory, lifetime)
}

// RegisterInstance binds an existing instance to service type S as a
// singleton.
func RegisterInstance[S any](c *Container, instance S) error {
	return c.RegisterInstance(TypeOf[S](), instance)
}

// Resolve constructs or fetches an instance of service type S.
func Resolve[S any](c *Container) (S, error) {
	var zero S
	v, err := c.Resolve(TypeOf[S]())
	if err != nil {
		return zero, err
	}
	return v.(S), nil
}

// ResolveScoped constructs or fetches an instance of S within a scope.
func ResolveScoped[S any](s *Scope) (S, error) {
	var zero S
	v, err := s.Resolve(TypeOf[S]())
	if err != nil {
		return zero, err
	}
	return v.(S), nil
}

// IsRegistered reports whether service type S has a registration.
func IsRegistered[S any](c *Container) bool {
	return c.IsRegistered(TypeOf[S]())
}
