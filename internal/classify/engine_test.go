package classify

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/openledger/banksync/internal/banking/domain"
)

// stubRuleSource serves a fixed snapshot and counts loads.
type stubRuleSource struct {
	rules    []domain.CategoryRule
	mappings []domain.MCCMapping
	pairs    []domain.CategoryPair
	loads    int
	err      error
}

func (s *stubRuleSource) ListCategoryRules(_ context.Context) ([]domain.CategoryRule, error) {
	s.loads++
	return s.rules, s.err
}

func (s *stubRuleSource) ListMCCMappings(_ context.Context) ([]domain.MCCMapping, error) {
	return s.mappings, s.err
}

func (s *stubRuleSource) ListTaxonomyPairs(_ context.Context) ([]domain.CategoryPair, error) {
	return s.pairs, s.err
}

func strPtr(s string) *string { return &s }

func defaultTaxonomy() []domain.CategoryPair {
	return []domain.CategoryPair{
		pairIncomeSalary, pairIncomeInterest, pairIncomeOther,
		pairGroceries, pairEatingOut,
		pairStreaming, pairSubscriptions,
		pairTaxi, pairFuel, pairPublicTransport,
		pairOnlineShopping, pairHome, pairRent, pairUtilities,
		pairPharmacy, pairInsurance, pairBankFees, pairCashATM,
		domain.FallbackPair,
	}
}

func newTestEngine(source *stubRuleSource) *Engine {
	cache := NewRuleCache(source, DefaultCacheTTL)
	return NewEngine(cache, zerolog.Nop())
}

func bookedTx() domain.Transaction {
	return domain.Transaction{
		ExternalTransactionID: "tx-1",
		UserID:                "user-1",
		AmountUnscaled:        -4550,
		AmountScale:           2,
		CurrencyCode:          "EUR",
		BookedDate:            time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
		Status:                domain.StatusBooked,
	}
}

func TestClassify_ProviderCategoryWinsFirst(t *testing.T) {
	source := &stubRuleSource{pairs: defaultTaxonomy()}
	engine := newTestEngine(source)

	tx := bookedTx()
	tx.ProviderCategory = strPtr("Groceries")
	tx.MerchantName = strPtr("Netflix") // would match a merchant pattern

	assert.NoError(t, engine.Classify(context.Background(), &tx))
	assert.Equal(t, "food", tx.MainCategory)
	assert.Equal(t, "groceries", tx.SubCategory)
	assert.Equal(t, domain.SourceProvider, tx.CategorySource)
	assert.Equal(t, providerConfidence, tx.CategoryConfidence)
	assert.False(t, tx.NeedsReview)
	assert.False(t, tx.CategorizedAt.IsZero())
}

func TestClassify_UserRuleBeatsGlobalRuleAndMCC(t *testing.T) {
	source := &stubRuleSource{
		rules: []domain.CategoryRule{
			{ID: 1, Type: domain.RuleTypeMerchant, Pattern: "acme", Category: pairOnlineShopping, Priority: 5, IsActive: true},
			{ID: 2, UserID: strPtr("user-1"), Type: domain.RuleTypeMerchant, Pattern: "acme", Category: pairHome, Confidence: 0.95, Priority: 10, IsActive: true},
		},
		mappings: []domain.MCCMapping{{Code: "5411", Category: pairGroceries, Confidence: 0.8}},
		pairs:    defaultTaxonomy(),
	}
	engine := newTestEngine(source)

	tx := bookedTx()
	tx.MerchantName = strPtr("ACME Stores")
	tx.MerchantCategoryCode = strPtr("5411")

	assert.NoError(t, engine.Classify(context.Background(), &tx))
	assert.Equal(t, "home", tx.MainCategory)
	assert.Equal(t, domain.SourceUserRule, tx.CategorySource)
	assert.Equal(t, 0.95, tx.CategoryConfidence)
}

func TestClassify_GlobalRulesOrderedByPriority(t *testing.T) {
	source := &stubRuleSource{
		rules: []domain.CategoryRule{
			{ID: 1, Type: domain.RuleTypeDescription, Pattern: "transfer", Category: pairOnlineShopping, Priority: 20, IsActive: true},
			{ID: 2, Type: domain.RuleTypeDescription, Pattern: "transfer", Category: pairBankFees, Priority: 1, IsActive: true},
			{ID: 3, Type: domain.RuleTypeDescription, Pattern: "transfer", Category: pairHome, Priority: 5, IsActive: false},
		},
		pairs: defaultTaxonomy(),
	}
	engine := newTestEngine(source)

	tx := bookedTx()
	tx.Description = "Outgoing transfer"

	assert.NoError(t, engine.Classify(context.Background(), &tx))
	assert.Equal(t, "fees", tx.MainCategory)
	assert.Equal(t, "bank_fees", tx.SubCategory)
}

func TestClassify_MCCMapping(t *testing.T) {
	source := &stubRuleSource{
		mappings: []domain.MCCMapping{{Code: "5812", Category: pairEatingOut, Confidence: 0.8}},
		pairs:    defaultTaxonomy(),
	}
	engine := newTestEngine(source)

	tx := bookedTx()
	tx.MerchantCategoryCode = strPtr("5812")

	assert.NoError(t, engine.Classify(context.Background(), &tx))
	assert.Equal(t, domain.SourceMCC, tx.CategorySource)
	assert.Equal(t, "eating_out", tx.SubCategory)
	assert.Equal(t, 0.8, tx.CategoryConfidence)
}

func TestClassify_MerchantPattern(t *testing.T) {
	source := &stubRuleSource{pairs: defaultTaxonomy()}
	engine := newTestEngine(source)

	tx := bookedTx()
	tx.MerchantName = strPtr("NETFLIX.COM Amsterdam")

	assert.NoError(t, engine.Classify(context.Background(), &tx))
	assert.Equal(t, domain.SourceMerchantPattern, tx.CategorySource)
	assert.Equal(t, "streaming", tx.SubCategory)
}

func TestClassify_DescriptionPattern(t *testing.T) {
	source := &stubRuleSource{pairs: defaultTaxonomy()}
	engine := newTestEngine(source)

	tx := bookedTx()
	tx.AmountUnscaled = 450000
	tx.Description = "Monthly salary February"

	assert.NoError(t, engine.Classify(context.Background(), &tx))
	assert.Equal(t, domain.SourceDescriptionPattern, tx.CategorySource)
	assert.Equal(t, "salary", tx.SubCategory)
	assert.False(t, tx.NeedsReview)
}

func TestClassify_AmountHeuristics(t *testing.T) {
	source := &stubRuleSource{pairs: defaultTaxonomy()}
	engine := newTestEngine(source)

	income := bookedTx()
	income.AmountUnscaled = 750000 // 7500.00, above the income threshold
	assert.NoError(t, engine.Classify(context.Background(), &income))
	assert.Equal(t, domain.SourceAmountHeuristic, income.CategorySource)
	assert.Equal(t, "income", income.MainCategory)
	assert.True(t, income.NeedsReview)
	assert.Equal(t, heuristicConfidence, income.CategoryConfidence)

	fee := bookedTx()
	fee.AmountUnscaled = -250 // -2.50, inside the small-fee window
	assert.NoError(t, engine.Classify(context.Background(), &fee))
	assert.Equal(t, domain.SourceAmountHeuristic, fee.CategorySource)
	assert.Equal(t, "bank_fees", fee.SubCategory)
	assert.True(t, fee.NeedsReview)
}

func TestClassify_Defaults(t *testing.T) {
	source := &stubRuleSource{pairs: defaultTaxonomy()}
	engine := newTestEngine(source)

	positive := bookedTx()
	positive.AmountUnscaled = 120000 // 1200.00, below the income threshold
	assert.NoError(t, engine.Classify(context.Background(), &positive))
	assert.Equal(t, domain.SourceDefault, positive.CategorySource)
	assert.Equal(t, "income", positive.MainCategory)
	assert.True(t, positive.NeedsReview)

	negative := bookedTx()
	negative.AmountUnscaled = -12000 // -120.00
	assert.NoError(t, engine.Classify(context.Background(), &negative))
	assert.Equal(t, domain.SourceDefault, negative.CategorySource)
	assert.Equal(t, domain.FallbackPair.Main, negative.MainCategory)
	assert.Equal(t, domain.FallbackPair.Sub, negative.SubCategory)
	assert.True(t, negative.NeedsReview)
	assert.Equal(t, defaultConfidence, negative.CategoryConfidence)
}

func TestClassify_PairOutsideTaxonomyIsCoerced(t *testing.T) {
	// Taxonomy without the food main category: the provider hit must be
	// coerced to the fallback and flagged.
	source := &stubRuleSource{pairs: []domain.CategoryPair{pairIncomeOther, domain.FallbackPair}}
	engine := newTestEngine(source)

	tx := bookedTx()
	tx.ProviderCategory = strPtr("groceries")

	assert.NoError(t, engine.Classify(context.Background(), &tx))
	assert.Equal(t, domain.FallbackPair.Main, tx.MainCategory)
	assert.Equal(t, domain.FallbackPair.Sub, tx.SubCategory)
	assert.Equal(t, domain.SourceProvider, tx.CategorySource)
	assert.True(t, tx.NeedsReview)
}

func TestClassifyAll_RefreshesCacheOnce(t *testing.T) {
	source := &stubRuleSource{pairs: defaultTaxonomy()}
	engine := newTestEngine(source)

	batch := []domain.Transaction{bookedTx(), bookedTx(), bookedTx()}
	assert.NoError(t, engine.ClassifyAll(context.Background(), batch))
	assert.Equal(t, 1, source.loads)
	for _, tx := range batch {
		assert.NotEmpty(t, tx.MainCategory)
	}
}
