package cache

import (
	cn "github.com/LerianStudio/lib-activation-go/constant"
	"github.com/LerianStudio/lib-activation-go/model"
	"github.com/LerianStudio/lib-commons/commons/log"
	"github.com/dgraph-io/ristretto/v2"
)

// Manager holds the most recent verdict per activation code in memory
type Manager struct {
	cache  *ristretto.Cache[string, model.Verdict]
	logger log.Logger
}

// New creates a new verdict cache manager
func New(logger log.Logger) (*Manager, error) {
	cache, err := ristretto.NewCache(&ristretto.Config[string, model.Verdict]{
		NumCounters: cn.CacheNumCounters,
		MaxCost:     cn.CacheMaxCost,
		BufferItems: cn.CacheBufferItems,
	})
	if err != nil {
		return nil, err
	}

	return &Manager{
		cache:  cache,
		logger: logger,
	}, nil
}

// Get retrieves the cached verdict for a code
func (m *Manager) Get(code string) (model.Verdict, bool) {
	if verdict, found := m.cache.Get(code); found {
		m.logger.Debugf("Verdict cached for code %s [valid: %t | offline: %t]", code, verdict.Valid, verdict.Offline)
		return verdict, true
	}

	return model.Verdict{}, false
}

// Store caches a verdict with a fixed TTL. Writes are applied synchronously
// so a following Get observes them.
func (m *Manager) Store(code string, verdict model.Verdict) {
	m.cache.SetWithTTL(code, verdict, 1, cn.CacheTTL)
	m.cache.Wait()

	m.logger.Debugf("Stored verdict for code %s", code)
}

// Invalidate drops the cached verdict for a code
func (m *Manager) Invalidate(code string) {
	m.cache.Del(code)
	m.cache.Wait()
}

// Close releases the cache goroutines
func (m *Manager) Close() {
	m.cache.Close()
}
