package extractor

import (
	"fmt"
	"sync"

	"incidentproxy/internal/config"
	"incidentproxy/internal/domain"
)

// Extractor is the per-provider parsing contract: decide whether a raw
// payload is worth processing, then pull zero or more incidents out of
// it. Extracted incidents are still unformatted; the batch runs them
// through the formatter before anything downstream sees them.
type Extractor interface {
	SourceOfInterest(payload []byte) bool
	Extract(payload []byte) ([]domain.Incident, error)
	// Ext is the artifact file extension this extractor consumes when
	// scanning folders, e.g. ".json".
	Ext() string
}

// Factory builds a provider's extractor from its configuration.
type Factory func(provider string, cfg config.ProviderConfig) (Extractor, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
)

// Register installs a provider-specific extractor factory. Providers
// without a registered factory fall back to the generic JSON extractor.
func Register(provider string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[provider] = factory
}

// For returns the extractor for a provider.
func For(provider string, cfg config.ProviderConfig) (Extractor, error) {
	registryMu.RLock()
	factory, ok := registry[provider]
	registryMu.RUnlock()
	if ok {
		return factory(provider, cfg)
	}
	ex, err := NewJSONExtractor(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("provider %s: %w", provider, err)
	}
	return ex, nil
}
