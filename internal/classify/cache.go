package classify

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/openledger/banksync/internal/banking/domain"
)

// DefaultCacheTTL is how long the rule/MCC/taxonomy snapshot stays valid.
const DefaultCacheTTL = 5 * time.Minute

// RuleSource loads the durable rule data the engine classifies against.
type RuleSource interface {
	ListCategoryRules(ctx context.Context) ([]domain.CategoryRule, error)
	ListMCCMappings(ctx context.Context) ([]domain.MCCMapping, error)
	ListTaxonomyPairs(ctx context.Context) ([]domain.CategoryPair, error)
}

// RuleCache is the process-wide snapshot of category rules, the MCC map and
// the valid taxonomy pairs. It is read-shared across concurrent syncs;
// concurrent refreshes are tolerated since the content is derived purely from
// durable storage (last writer wins).
type RuleCache struct {
	source RuleSource
	ttl    time.Duration

	mu          sync.RWMutex
	refreshedAt time.Time
	userRules   map[string][]domain.CategoryRule
	globalRules []domain.CategoryRule
	mccMap      map[string]domain.MCCMapping
	validPairs  map[domain.CategoryPair]struct{}
}

func NewRuleCache(source RuleSource, ttl time.Duration) *RuleCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &RuleCache{source: source, ttl: ttl}
}

// RefreshIfStale reloads the snapshot when it is older than the TTL.
func (c *RuleCache) RefreshIfStale(ctx context.Context, now time.Time) error {
	c.mu.RLock()
	fresh := !c.refreshedAt.IsZero() && now.Sub(c.refreshedAt) < c.ttl
	c.mu.RUnlock()
	if fresh {
		return nil
	}

	rules, err := c.source.ListCategoryRules(ctx)
	if err != nil {
		return err
	}
	mappings, err := c.source.ListMCCMappings(ctx)
	if err != nil {
		return err
	}
	pairs, err := c.source.ListTaxonomyPairs(ctx)
	if err != nil {
		return err
	}

	userRules := make(map[string][]domain.CategoryRule)
	var globalRules []domain.CategoryRule
	for _, rule := range rules {
		if !rule.IsActive {
			continue
		}
		if rule.UserID == nil {
			globalRules = append(globalRules, rule)
			continue
		}
		userRules[*rule.UserID] = append(userRules[*rule.UserID], rule)
	}
	byPriority := func(rules []domain.CategoryRule) {
		sort.SliceStable(rules, func(i, j int) bool { return rules[i].Priority < rules[j].Priority })
	}
	byPriority(globalRules)
	for _, rules := range userRules {
		byPriority(rules)
	}

	mccMap := make(map[string]domain.MCCMapping, len(mappings))
	for _, mapping := range mappings {
		mccMap[mapping.Code] = mapping
	}

	validPairs := make(map[domain.CategoryPair]struct{}, len(pairs))
	for _, pair := range pairs {
		validPairs[pair] = struct{}{}
	}

	c.mu.Lock()
	c.refreshedAt = now
	c.userRules = userRules
	c.globalRules = globalRules
	c.mccMap = mccMap
	c.validPairs = validPairs
	c.mu.Unlock()
	return nil
}

// RulesFor returns the user's rules followed by the global ones, each ordered
// by ascending priority. User rules shadow global rules.
func (c *RuleCache) RulesFor(userID string) []domain.CategoryRule {
	c.mu.RLock()
	defer c.mu.RUnlock()
	rules := make([]domain.CategoryRule, 0, len(c.userRules[userID])+len(c.globalRules))
	rules = append(rules, c.userRules[userID]...)
	rules = append(rules, c.globalRules...)
	return rules
}

func (c *RuleCache) MCCMapping(code string) (domain.MCCMapping, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	mapping, ok := c.mccMap[code]
	return mapping, ok
}

// IsValidPair reports whether the pair exists in the taxonomy.
func (c *RuleCache) IsValidPair(pair domain.CategoryPair) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.validPairs[pair]
	return ok
}

// ValidPairs returns the taxonomy as a sorted slice, for prompt building.
func (c *RuleCache) ValidPairs() []domain.CategoryPair {
	c.mu.RLock()
	pairs := make([]domain.CategoryPair, 0, len(c.validPairs))
	for pair := range c.validPairs {
		pairs = append(pairs, pair)
	}
	c.mu.RUnlock()
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].Main != pairs[j].Main {
			return pairs[i].Main < pairs[j].Main
		}
		return pairs[i].Sub < pairs[j].Sub
	})
	return pairs
}
