package eligibility

import (
	lru "github.com/hashicorp/golang-lru"

	"github.com/ethereum/go-ethereum/common"

	"github.com/cyclofinance/cy-ledger/cyclo"
)

const factoryCacheSize = 4096

// Classifier answers whether an address is an approved reward source: a
// member of the static allow-list, or a pool deployed by a recognized
// factory. Factory lookups go through the Registry collaborator; a failed
// lookup degrades to allow-list-only. Since a contract's factory is
// immutable, results are cached across events.
type Classifier struct {
	rules    cyclo.Rules
	registry Registry
	cache    *lru.Cache // address -> factoryResult
}

type factoryResult struct {
	factory common.Address
	ok      bool
}

// NewClassifier builds a classifier over the network rules and registry.
func NewClassifier(rules cyclo.Rules, registry Registry) *Classifier {
	cache, err := lru.New(factoryCacheSize)
	if err != nil {
		panic(err) // only fails for non-positive size
	}
	return &Classifier{
		rules:    rules,
		registry: registry,
		cache:    cache,
	}
}

// IsApproved reports whether transfers originating from addr count toward
// recipient eligibility.
func (c *Classifier) IsApproved(addr common.Address) bool {
	if c.rules.IsRewardSource(addr) {
		return true
	}
	if factory, ok := c.factoryOf(addr); ok && c.rules.IsFactory(factory) {
		return true
	}
	return false
}

// factoryOf is the cached Registry.FactoryOf. Negative results are cached
// too: most senders are EOAs whose lookup always fails.
func (c *Classifier) factoryOf(addr common.Address) (common.Address, bool) {
	if v, hit := c.cache.Get(addr); hit {
		res := v.(factoryResult)
		return res.factory, res.ok
	}
	factory, ok := c.registry.FactoryOf(addr)
	c.cache.Add(addr, factoryResult{factory: factory, ok: ok})
	return factory, ok
}
