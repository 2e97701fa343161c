package state

import (
	"sync"
	"time"
)

// MarketParams are the lending-protocol parameters the deposit flow reads
// repeatedly (key sets, limits). Fetching them is a network round trip, so
// they are cached with an explicit TTL.
type MarketParams struct {
	VaultProviderPubkey        string   `json:"vault_provider_pubkey"`
	VaultKeeperPubkeys         []string `json:"vault_keeper_pubkeys"`
	UniversalChallengerPubkeys []string `json:"universal_challenger_pubkeys"`
	MinDepositAmount           uint64   `json:"min_deposit_amount"`
	MaxDepositAmount           uint64   `json:"max_deposit_amount"`
}

// ParamsCache caches market parameters with a TTL. It is injected into the
// orchestrator by its caller; nothing holds it as a package-level singleton.
type ParamsCache struct {
	mu        sync.RWMutex
	ttl       time.Duration
	params    *MarketParams
	fetchedAt time.Time
}

func NewParamsCache(ttl time.Duration) *ParamsCache {
	return &ParamsCache{ttl: ttl}
}

// Get returns the cached parameters, or ok=false when empty or expired.
func (c *ParamsCache) Get() (*MarketParams, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.params == nil || time.Since(c.fetchedAt) > c.ttl {
		return nil, false
	}
	return c.params, true
}

// Set stores freshly fetched parameters.
func (c *ParamsCache) Set(params *MarketParams) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.params = params
	c.fetchedAt = time.Now()
}

// Clear invalidates the cache immediately.
func (c *ParamsCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.params = nil
	c.fetchedAt = time.Time{}
}
