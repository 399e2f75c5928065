package classify

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/openledger/banksync/internal/banking/domain"
)

// Result is one classification decision before it is written onto a
// transaction.
type Result struct {
	Category    domain.CategoryPair
	Source      string
	Confidence  float64
	NeedsReview bool
}

// Engine runs the cascading classifier: provider category, user and global
// rules, MCC mapping, merchant patterns, description patterns, amount
// heuristics, default. First match wins.
type Engine struct {
	cache *RuleCache
	log   zerolog.Logger
	now   func() time.Time
}

func NewEngine(cache *RuleCache, log zerolog.Logger) *Engine {
	return &Engine{cache: cache, log: log, now: time.Now}
}

// ClassifyAll refreshes the cache once and classifies every transaction in
// place.
func (e *Engine) ClassifyAll(ctx context.Context, transactions []domain.Transaction) error {
	if err := e.cache.RefreshIfStale(ctx, e.now()); err != nil {
		return err
	}
	for i := range transactions {
		e.apply(&transactions[i])
	}
	return nil
}

// Classify classifies a single transaction in place.
func (e *Engine) Classify(ctx context.Context, tx *domain.Transaction) error {
	if err := e.cache.RefreshIfStale(ctx, e.now()); err != nil {
		return err
	}
	e.apply(tx)
	return nil
}

func (e *Engine) apply(tx *domain.Transaction) {
	result := e.classify(tx)
	tx.MainCategory = result.Category.Main
	tx.SubCategory = result.Category.Sub
	tx.CategorySource = result.Source
	tx.CategoryConfidence = result.Confidence
	tx.NeedsReview = result.NeedsReview
	tx.CategorizedAt = e.now()
}

func (e *Engine) classify(tx *domain.Transaction) Result {
	// 1. Provider-native category label.
	if tx.ProviderCategory != nil {
		if pair, ok := providerCategoryMap[strings.ToLower(*tx.ProviderCategory)]; ok {
			return e.validated(tx, Result{Category: pair, Source: domain.SourceProvider, Confidence: providerConfidence})
		}
	}

	// 2. User rules, then global rules, ascending priority.
	for _, rule := range e.cache.RulesFor(tx.UserID) {
		if rule.Matches(tx) {
			return e.validated(tx, Result{
				Category:   rule.Category,
				Source:     domain.SourceUserRule,
				Confidence: rule.EffectiveConfidence(),
			})
		}
	}

	// 3. Global MCC mapping, exact code lookup.
	if tx.MerchantCategoryCode != nil {
		if mapping, ok := e.cache.MCCMapping(*tx.MerchantCategoryCode); ok {
			return e.validated(tx, Result{Category: mapping.Category, Source: domain.SourceMCC, Confidence: mapping.Confidence})
		}
	}

	// 4. Merchant-name patterns.
	if tx.MerchantName != nil {
		merchant := strings.ToLower(*tx.MerchantName)
		if result, ok := matchPatterns(merchantPatterns, merchant, domain.SourceMerchantPattern); ok {
			return e.validated(tx, result)
		}
	}

	// 5. Description patterns.
	description := strings.ToLower(tx.Description + " " + tx.OriginalDescription)
	if result, ok := matchPatterns(descriptionPatterns, description, domain.SourceDescriptionPattern); ok {
		return e.validated(tx, result)
	}

	// 6. Amount heuristics, tentative only.
	amount := tx.Amount()
	if amount > incomeThreshold {
		return Result{Category: pairIncomeOther, Source: domain.SourceAmountHeuristic, Confidence: heuristicConfidence, NeedsReview: true}
	}
	if amount >= feeFloor && amount < 0 {
		return Result{Category: pairBankFees, Source: domain.SourceAmountHeuristic, Confidence: heuristicConfidence, NeedsReview: true}
	}

	// 7. Default.
	if amount > 0 {
		return Result{Category: pairIncomeOther, Source: domain.SourceDefault, Confidence: defaultConfidence, NeedsReview: true}
	}
	return Result{Category: domain.FallbackPair, Source: domain.SourceDefault, Confidence: defaultConfidence, NeedsReview: true}
}

func matchPatterns(entries []patternEntry, text, source string) (Result, bool) {
	for _, entry := range entries {
		for _, substring := range entry.substrings {
			if strings.Contains(text, substring) {
				return Result{Category: entry.category, Source: source, Confidence: entry.confidence}, true
			}
		}
	}
	return Result{}, false
}

// validated coerces a candidate pair that is not in the taxonomy to the
// reserved fallback. This guards against stale or externally-sourced category
// names that no longer exist.
func (e *Engine) validated(tx *domain.Transaction, result Result) Result {
	if e.cache.IsValidPair(result.Category) {
		return result
	}
	e.log.Warn().
		Str("external_transaction_id", tx.ExternalTransactionID).
		Str("main_category", result.Category.Main).
		Str("sub_category", result.Category.Sub).
		Str("source", result.Source).
		Msg("classification produced a pair outside the taxonomy, coercing to fallback")
	return Result{
		Category:    domain.FallbackPair,
		Source:      result.Source,
		Confidence:  result.Confidence,
		NeedsReview: true,
	}
}
