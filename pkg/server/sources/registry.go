package sources

import (
	"fmt"
	"sort"
	"sync"

	"github.com/StrathCole/pricespread/pkg/logging"
)

// Deps are the shared collaborators injected into every client.
type Deps struct {
	Catalog *Catalog
	HTTP    JSONGetter
	Logger  *logging.Logger
}

var (
	registry = make(map[ExchangeID]ClientFactory)
	mu       sync.RWMutex
)

// Register adds a client factory to the registry
func Register(id ExchangeID, factory ClientFactory) {
	mu.Lock()
	defer mu.Unlock()
	registry[id] = factory
}

// Create creates a new client instance by exchange
func Create(id ExchangeID, deps Deps, config map[string]interface{}) (Client, error) {
	mu.RLock()
	factory, ok := registry[id]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownExchange, id)
	}
	if deps.Catalog == nil || deps.HTTP == nil {
		return nil, fmt.Errorf("%w: %s needs a catalog and an HTTP transport", ErrInvalidConfig, id)
	}
	if config == nil {
		config = map[string]interface{}{}
	}
	return factory(deps, config)
}

// List returns all registered exchanges in canonical order
func List() []ExchangeID {
	mu.RLock()
	defer mu.RUnlock()

	ids := make([]ExchangeID, 0, len(registry))
	for id := range registry {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].Rank() < ids[j].Rank() })
	return ids
}
