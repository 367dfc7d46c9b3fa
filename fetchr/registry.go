package fetchr

import (
	"reflect"
	"sort"
	"sync"

	"github.com/cockroachdb/errors"
)

// Registry holds services by name. It is normally populated during startup and only read
// afterward, but it is safe for concurrent use either way.
type Registry struct {
	services map[string]Service
	lock     sync.RWMutex
}

func NewRegistry() *Registry {
	return &Registry{services: make(map[string]Service)}
}

// Register adds a service under its declared name. Names must be unique: registering a name
// twice fails with ErrDuplicateService and leaves the first registration in place. A nil
// service, including a nil pointer of a concrete service type, fails with ErrInvalidService.
func (r *Registry) Register(s Service) error {
	if isNil(s) {
		return errors.Wrap(ErrInvalidService, "service is nil")
	}
	name := s.Name()
	if name == "" {
		return errors.Wrap(ErrInvalidService, "service name cannot be empty")
	}
	if v, ok := s.(Validator); ok {
		if err := v.Validate(); err != nil {
			return errors.Wrapf(ErrInvalidService, "%s", err)
		}
	}

	r.lock.Lock()
	defer r.lock.Unlock()
	if _, exists := r.services[name]; exists {
		return errors.Wrapf(ErrDuplicateService, "service %q", name)
	}
	r.services[name] = s
	return nil
}

// Lookup returns the named service, or a *ServiceNotFoundError.
func (r *Registry) Lookup(name string) (Service, error) {
	r.lock.RLock()
	s, ok := r.services[name]
	r.lock.RUnlock()
	if !ok {
		return nil, &ServiceNotFoundError{Name: name}
	}
	return s, nil
}

// Names returns the sorted names of all registered services.
func (r *Registry) Names() []string {
	r.lock.RLock()
	names := make([]string, 0, len(r.services))
	for name := range r.services {
		names = append(names, name)
	}
	r.lock.RUnlock()
	sort.Strings(names)
	return names
}

func isNil(s Service) bool {
	if s == nil {
		return true
	}
	v := reflect.ValueOf(s)
	switch v.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Func, reflect.Interface, reflect.Slice, reflect.Chan:
		return v.IsNil()
	}
	return false
}
