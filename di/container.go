package di

import (
	"fmt"
	"reflect"
	"sync"
)

// Lifetime is the caching policy applied to a registered service.
type Lifetime int

const (
	// Transient services are constructed on every resolve.
	Transient Lifetime = iota
	// Singleton services are constructed at most once per container and
	// reused for all later resolves.
	Singleton
	// Scoped services are cached per open scope and discarded when the
	// scope closes.
	Scoped
)

// String returns the lifetime name.
func (l Lifetime) String() string {
	switch l {
	case Transient:
		return "transient"
	case Singleton:
		return "singleton"
	case Scoped:
		return "scoped"
	default:
		return fmt.Sprintf("lifetime(%d)", int(l))
	}
}

var errType = reflect.TypeOf((*error)(nil)).Elem()

// descriptor is one service registration. For singletons, instance and
// built are guarded by mu so first construction has a single writer.
type descriptor struct {
	serviceType reflect.Type
	factory     reflect.Value // func(deps...) (T) or (T, error)
	lifetime    Lifetime

	mu       sync.Mutex
	instance reflect.Value
	built    bool
}

// Container registers service types with factories and lifetimes and
// resolves dependency graphs by inspecting factory parameter types.
//
// The container is an explicit instance owned by its creator; there is no
// package-level default container.
type Container struct {
	mu       sync.RWMutex
	services map[reflect.Type]*descriptor
}

// New creates an empty container.
func New() *Container {
	return &Container{services: make(map[reflect.Type]*descriptor)}
}

// RegisterType binds a service type to an implementation type with the
// given lifetime. The implementation must be assignable to the service
// type; it is constructed as a zero value (use RegisterFactory when the
// implementation has dependencies of its own).
func (c *Container) RegisterType(serviceType, implType reflect.Type, lifetime Lifetime) error {
	if serviceType == nil || implType == nil {
		return newContainerError(serviceType, "register", "nil type", ErrInvalidBinding)
	}
	concrete := implType
	if concrete.Kind() == reflect.Ptr {
		concrete = concrete.Elem()
	}
	if concrete.Kind() != reflect.Struct {
		return newContainerError(serviceType, "register",
			fmt.Sprintf("implementation %s is not a concrete struct type", implType), ErrInvalidBinding)
	}
	produced := reflect.PtrTo(concrete)
	if !produced.AssignableTo(serviceType) && !concrete.AssignableTo(serviceType) {
		return newContainerError(serviceType, "register",
			fmt.Sprintf("implementation %s does not satisfy %s", implType, serviceType), ErrInvalidBinding)
	}

	factory := reflect.MakeFunc(
		reflect.FuncOf(nil, []reflect.Type{serviceType}, false),
		func([]reflect.Value) []reflect.Value {
			v := reflect.New(concrete)
			if concrete.AssignableTo(serviceType) && !produced.AssignableTo(serviceType) {
				return []reflect.Value{v.Elem().Convert(serviceType)}
			}
			out := reflect.New(serviceType).Elem()
			out.Set(v)
			return []reflect.Value{out}
		},
	)
	return c.registerDescriptor(serviceType, factory, lifetime)
}

// RegisterFactory binds a service type to a factory function with the given
// lifetime. The factory's parameters are its declared dependencies and are
// resolved recursively at construction time. It must return the service
// type, optionally with a trailing error. Variadic parameters are treated
// as optional dependencies: when the element type cannot be resolved, the
// factory is invoked without them.
func (c *Container) RegisterFactory(serviceType reflect.Type, factory any, lifetime Lifetime) error {
	if factory == nil {
		return newContainerError(serviceType, "register", "nil factory", ErrInvalidBinding)
	}
	fv := reflect.ValueOf(factory)
	ft := fv.Type()
	if ft.Kind() != reflect.Func {
		return newContainerError(serviceType, "register", "factory is not a function", ErrInvalidBinding)
	}
	switch ft.NumOut() {
	case 1:
		if !ft.Out(0).AssignableTo(serviceType) {
			return newContainerError(serviceType, "register",
				fmt.Sprintf("factory returns %s", ft.Out(0)), ErrInvalidBinding)
		}
	case 2:
		if !ft.Out(0).AssignableTo(serviceType) || ft.Out(1) != errType {
			return newContainerError(serviceType, "register",
				"factory must return (service) or (service, error)", ErrInvalidBinding)
		}
	default:
		return newContainerError(serviceType, "register",
			"factory must return (service) or (service, error)", ErrInvalidBinding)
	}
	return c.registerDescriptor(serviceType, fv, lifetime)
}

// RegisterInstance binds an already-constructed instance to a service type.
// The registration is always a singleton.
func (c *Container) RegisterInstance(serviceType reflect.Type, instance any) error {
	iv := reflect.ValueOf(instance)
	if !iv.IsValid() || !iv.Type().AssignableTo(serviceType) {
		return newContainerError(serviceType, "register",
			fmt.Sprintf("instance of type %v does not satisfy service type", iv.Type()), ErrInvalidBinding)
	}
	d := &descriptor{
		serviceType: serviceType,
		lifetime:    Singleton,
		built:       true,
	}
	out := reflect.New(serviceType).Elem()
	out.Set(iv)
	d.instance = out

	c.mu.Lock()
	defer c.mu.Unlock()
	c.services[serviceType] = d
	return nil
}

// IsRegistered reports whether the service type has a registration.
func (c *Container) IsRegistered(serviceType reflect.Type) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.services[serviceType]
	return ok
}

// Services lists the registered service types.
func (c *Container) Services() []reflect.Type {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]reflect.Type, 0, len(c.services))
	for t := range c.services {
		out = append(out, t)
	}
	return out
}

// Resolve constructs (or fetches from cache) an instance of the service
// type. Unregistered concrete struct types are auto-registered as transient
// before resolution proceeds.
func (c *Container) Resolve(serviceType reflect.Type) (any, error) {
	v, err := c.resolve(serviceType, nil, nil, false)
	if err != nil {
		return nil, err
	}
	return v.Interface(), nil
}

// NewScope opens a scope for scoped-lifetime resolution. Closing the scope
// discards every instance cached during its lifetime; the container's own
// caches are untouched, so the pre-scope state is restored exactly.
func (c *Container) NewScope() *Scope {
	return &Scope{container: c, cache: make(map[reflect.Type]reflect.Value)}
}

func (c *Container) registerDescriptor(serviceType reflect.Type, factory reflect.Value, lifetime Lifetime) error {
	if lifetime < Transient || lifetime > Scoped {
		return newContainerError(serviceType, "register",
			fmt.Sprintf("unknown lifetime %d", lifetime), ErrInvalidBinding)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.services[serviceType] = &descriptor{
		serviceType: serviceType,
		factory:     factory,
		lifetime:    lifetime,
	}
	return nil
}

func (c *Container) lookup(serviceType reflect.Type) (*descriptor, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	d, ok := c.services[serviceType]
	return d, ok
}

func isConcrete(t reflect.Type) bool {
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Kind() == reflect.Struct
}

// resolve is the core resolution walk. stack is the in-progress chain used
// for circular detection; scope carries the scoped cache, if any. optional
// marks variadic factory parameters, whose absence is not an error.
func (c *Container) resolve(serviceType reflect.Type, stack []reflect.Type, scope *Scope, optional bool) (reflect.Value, error) {
	for _, inProgress := range stack {
		if inProgress == serviceType {
			return reflect.Value{}, newContainerError(serviceType, "resolve",
				fmt.Sprintf("chain: %s -> %s", chainString(stack), serviceType), ErrCircularDependency)
		}
	}

	d, ok := c.lookup(serviceType)
	if !ok {
		if !isConcrete(serviceType) {
			if optional {
				return reflect.Value{}, newContainerError(serviceType, "resolve", "not registered", ErrNotRegistered)
			}
			if len(stack) > 0 {
				return reflect.Value{}, newContainerError(serviceType, "resolve",
					fmt.Sprintf("cannot resolve dependency %s for type %s", serviceType, stack[len(stack)-1]),
					ErrNotRegistered)
			}
			return reflect.Value{}, newContainerError(serviceType, "resolve", "abstract type not registered", ErrNotRegistered)
		}
		// Concrete unregistered types are auto-registered as transient.
		if err := c.RegisterType(serviceType, serviceType, Transient); err != nil {
			return reflect.Value{}, err
		}
		d, _ = c.lookup(serviceType)
	}

	switch d.lifetime {
	case Singleton:
		return c.resolveSingleton(d, stack, scope)
	case Scoped:
		if scope == nil {
			return reflect.Value{}, newContainerError(serviceType, "resolve", "", ErrScopeRequired)
		}
		return scope.resolveScoped(d, stack)
	default:
		return c.construct(d, stack, scope)
	}
}

// resolveSingleton builds the instance once under the descriptor lock so
// concurrent first resolves see a single writer.
func (c *Container) resolveSingleton(d *descriptor, stack []reflect.Type, scope *Scope) (reflect.Value, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.built {
		return d.instance, nil
	}
	v, err := c.construct(d, stack, scope)
	if err != nil {
		return reflect.Value{}, err
	}
	d.instance = v
	d.built = true
	return v, nil
}

// construct invokes the descriptor's factory, resolving each declared
// parameter type in order.
func (c *Container) construct(d *descriptor, stack []reflect.Type, scope *Scope) (reflect.Value, error) {
	ft := d.factory.Type()
	stack = append(stack, d.serviceType)

	fixed := ft.NumIn()
	if ft.IsVariadic() {
		fixed--
	}

	args := make([]reflect.Value, 0, ft.NumIn())
	for i := 0; i < fixed; i++ {
		arg, err := c.resolve(ft.In(i), stack, scope, false)
		if err != nil {
			return reflect.Value{}, err
		}
		args = append(args, arg)
	}
	if ft.IsVariadic() {
		elem := ft.In(fixed).Elem()
		if arg, err := c.resolve(elem, stack, scope, true); err == nil {
			args = append(args, arg)
		}
	}

	out := d.factory.Call(args)
	if len(out) == 2 && !out[1].IsNil() {
		return reflect.Value{}, newContainerError(d.serviceType, "resolve",
			"factory returned error", out[1].Interface().(error))
	}
	return out[0], nil
}
