package classify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/openledger/banksync/internal/banking/domain"
)

func TestRuleCache_RefreshOnlyWhenStale(t *testing.T) {
	source := &stubRuleSource{pairs: defaultTaxonomy()}
	cache := NewRuleCache(source, 5*time.Minute)

	start := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	assert.NoError(t, cache.RefreshIfStale(context.Background(), start))
	assert.Equal(t, 1, source.loads)

	// Within the TTL nothing reloads.
	assert.NoError(t, cache.RefreshIfStale(context.Background(), start.Add(4*time.Minute)))
	assert.Equal(t, 1, source.loads)

	// Past the TTL the snapshot is rebuilt.
	assert.NoError(t, cache.RefreshIfStale(context.Background(), start.Add(6*time.Minute)))
	assert.Equal(t, 2, source.loads)
}

func TestRuleCache_RefreshErrorKeepsOldSnapshot(t *testing.T) {
	source := &stubRuleSource{
		mappings: []domain.MCCMapping{{Code: "5411", Category: pairGroceries, Confidence: 0.8}},
		pairs:    defaultTaxonomy(),
	}
	cache := NewRuleCache(source, time.Minute)

	start := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	assert.NoError(t, cache.RefreshIfStale(context.Background(), start))

	source.err = errors.New("connection refused")
	err := cache.RefreshIfStale(context.Background(), start.Add(2*time.Minute))
	assert.Error(t, err)

	// The previous snapshot is still served.
	_, ok := cache.MCCMapping("5411")
	assert.True(t, ok)
}

func TestRuleCache_UserRulesPrecedeGlobalRules(t *testing.T) {
	user := "user-1"
	source := &stubRuleSource{
		rules: []domain.CategoryRule{
			{ID: 1, Type: domain.RuleTypeMerchant, Pattern: "a", Priority: 1, IsActive: true},
			{ID: 2, UserID: &user, Type: domain.RuleTypeMerchant, Pattern: "b", Priority: 9, IsActive: true},
			{ID: 3, UserID: &user, Type: domain.RuleTypeMerchant, Pattern: "c", Priority: 2, IsActive: true},
			{ID: 4, Type: domain.RuleTypeMerchant, Pattern: "d", Priority: 3, IsActive: false},
		},
		pairs: defaultTaxonomy(),
	}
	cache := NewRuleCache(source, time.Minute)
	assert.NoError(t, cache.RefreshIfStale(context.Background(), time.Now()))

	rules := cache.RulesFor(user)
	assert.Len(t, rules, 3)
	// User rules first, each block sorted by ascending priority; the
	// inactive global rule is dropped.
	assert.Equal(t, int64(3), rules[0].ID)
	assert.Equal(t, int64(2), rules[1].ID)
	assert.Equal(t, int64(1), rules[2].ID)

	other := cache.RulesFor("someone-else")
	assert.Len(t, other, 1)
	assert.Equal(t, int64(1), other[0].ID)
}

func TestRuleCache_ValidPairsSorted(t *testing.T) {
	source := &stubRuleSource{
		pairs: []domain.CategoryPair{pairTaxi, pairGroceries, pairEatingOut},
	}
	cache := NewRuleCache(source, time.Minute)
	assert.NoError(t, cache.RefreshIfStale(context.Background(), time.Now()))

	pairs := cache.ValidPairs()
	assert.Equal(t, []domain.CategoryPair{pairEatingOut, pairGroceries, pairTaxi}, pairs)

	assert.True(t, cache.IsValidPair(pairTaxi))
	assert.False(t, cache.IsValidPair(domain.CategoryPair{Main: "nope", Sub: "nope"}))
}
