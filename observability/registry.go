package observability

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

var (
	observers = map[string]Observer{
		"noop":  NoOpObserver{},
		"slog":  defaultSlogObserver{},
		"trace": TraceObserver{},
	}
	mutex sync.RWMutex
)

// defaultSlogObserver logs through whatever slog.Default() is at event time,
// so a logger installed after package init is honored.
type defaultSlogObserver struct{}

func (defaultSlogObserver) OnEvent(ctx context.Context, event Event) {
	NewSlogObserver(slog.Default()).OnEvent(ctx, event)
}

// GetObserver returns a registered observer by name.
// Pre-registered observers: "noop" (NoOpObserver), "slog" (default logger)
// and "trace" (span events on the active OTel span).
func GetObserver(name string) (Observer, error) {
	mutex.RLock()
	defer mutex.RUnlock()

	obs, exists := observers[name]
	if !exists {
		return nil, fmt.Errorf("unknown observer: %s", name)
	}
	return obs, nil
}

// GetObservers resolves each name and combines the results in a
// MultiObserver.
func GetObservers(names ...string) (Observer, error) {
	resolved := make([]Observer, 0, len(names))
	for _, name := range names {
		obs, err := GetObserver(name)
		if err != nil {
			return nil, err
		}
		resolved = append(resolved, obs)
	}
	if len(resolved) == 1 {
		return resolved[0], nil
	}
	return NewMultiObserver(resolved...), nil
}

// RegisterObserver adds or replaces a named observer in the global registry.
func RegisterObserver(name string, observer Observer) {
	mutex.Lock()
	defer mutex.Unlock()

	observers[name] = observer
}

// ObserverNames lists the registered observer names in sorted order.
func ObserverNames() []string {
	mutex.RLock()
	defer mutex.RUnlock()

	names := make([]string, 0, len(observers))
	for name := range observers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
