package drivers

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"datahandler/internal/config"
	"datahandler/internal/logging"
	"datahandler/internal/services"
)

// Factory builds a driver from its configuration.
type Factory func(cfg config.Driver, logger *slog.Logger) (Driver, error)

var (
	factoriesMu sync.RWMutex
	factories   = map[string]Factory{
		KindStatic: NewStatic,
	}
)

// RegisterKind makes a driver kind available to NewRegistry.
func RegisterKind(kind string, factory Factory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	factories[kind] = factory
}

// Registry holds the configured drivers in declaration order.
type Registry struct {
	drivers map[string]Driver
	order   []string
}

// NewRegistry builds every driver declared in cfg.
func NewRegistry(cfg *config.Config, logger *slog.Logger) (*Registry, error) {
	reg := &Registry{drivers: make(map[string]Driver, len(cfg.Drivers))}
	for _, dc := range cfg.Drivers {
		factoriesMu.RLock()
		factory, ok := factories[dc.Kind]
		factoriesMu.RUnlock()
		if !ok {
			return nil, services.Wrap(services.ErrConfiguration, "drivers", "build", fmt.Sprintf("driver %s has unknown kind %q", dc.Name, dc.Kind), nil)
		}
		driver, err := factory(dc, logging.NewComponentLogger(logger, "driver").With(logging.String(logging.FieldDriver, dc.Name)))
		if err != nil {
			return nil, services.Wrap(services.ErrConfiguration, "drivers", "build", "driver "+dc.Name, err)
		}
		reg.Add(driver)
	}
	return reg, nil
}

// Add registers driver under its name, replacing any previous entry.
func (r *Registry) Add(driver Driver) {
	if r.drivers == nil {
		r.drivers = map[string]Driver{}
	}
	if _, exists := r.drivers[driver.Name()]; !exists {
		r.order = append(r.order, driver.Name())
	}
	r.drivers[driver.Name()] = driver
}

// Get returns the named driver or an ErrUnknownDriver error.
func (r *Registry) Get(name string) (Driver, error) {
	if r != nil {
		if d, ok := r.drivers[name]; ok {
			return d, nil
		}
	}
	return nil, services.Wrap(services.ErrUnknownDriver, "drivers", "lookup", fmt.Sprintf("driver %q is not configured", name), nil)
}

// Names returns driver names in declaration order.
func (r *Registry) Names() []string {
	if r == nil {
		return nil
	}
	return append([]string(nil), r.order...)
}

// Kinds returns the registered driver kinds, sorted.
func Kinds() []string {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()
	kinds := make([]string, 0, len(factories))
	for k := range factories {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}
