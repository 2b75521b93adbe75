package storekit

import (
	"fmt"
	"sort"
	"sync"
)

// DriverFactory is a function that creates an Accessor from a config
type DriverFactory func(cfg *Config) (Accessor, error)

var (
	driverFactories = make(map[string]DriverFactory)
	factoryMutex    sync.RWMutex
)

// RegisterDriver registers a driver factory function
func RegisterDriver(name string, factory DriverFactory) {
	factoryMutex.Lock()
	defer factoryMutex.Unlock()
	driverFactories[name] = factory
}

// Drivers returns the names of all registered drivers, sorted.
func Drivers() []string {
	factoryMutex.RLock()
	defer factoryMutex.RUnlock()

	names := make([]string, 0, len(driverFactories))
	for name := range driverFactories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CreateDriver creates a driver instance from config
func CreateDriver(cfg *Config) (Accessor, error) {
	factoryMutex.RLock()
	factory, exists := driverFactories[cfg.Driver]
	factoryMutex.RUnlock()

	if !exists {
		return nil, NewError(KindConfigInvalid, fmt.Sprintf("driver %s not registered", cfg.Driver)).
			WithContext("driver", cfg.Driver)
	}

	return factory(cfg)
}
