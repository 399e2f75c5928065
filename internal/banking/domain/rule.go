package domain

import (
	"fmt"
	"strings"
)

type RuleType string

const (
	RuleTypeMerchant    RuleType = "merchant"
	RuleTypeDescription RuleType = "description"
	RuleTypeMCC         RuleType = "mcc"
	RuleTypeAmountRange RuleType = "amount_range"
)

// CategoryPair is one (main, sub) combination from the taxonomy.
type CategoryPair struct {
	Main string
	Sub  string
}

// FallbackPair is the reserved pair every invalid or unresolvable
// classification is coerced to.
var FallbackPair = CategoryPair{Main: "uncategorized", Sub: "needs_review"}

const DefaultRuleConfidence = 0.9

type CategoryRule struct {
	ID         int64
	UserID     *string // nil for global rules
	Type       RuleType
	Pattern    string
	MinAmount  float64 // amount_range only
	MaxAmount  float64 // amount_range only
	Category   CategoryPair
	Confidence float64
	Priority   int
	IsActive   bool
}

// RuleMatcher is the closed set of matching behaviours, one per rule type.
type RuleMatcher interface {
	Matches(tx *Transaction) bool
}

type merchantMatcher struct{ pattern string }

func (m merchantMatcher) Matches(tx *Transaction) bool {
	if tx.MerchantName == nil {
		return false
	}
	return strings.Contains(strings.ToLower(*tx.MerchantName), m.pattern)
}

type descriptionMatcher struct{ pattern string }

func (m descriptionMatcher) Matches(tx *Transaction) bool {
	return strings.Contains(strings.ToLower(tx.Description), m.pattern) ||
		strings.Contains(strings.ToLower(tx.OriginalDescription), m.pattern)
}

type mccMatcher struct{ code string }

func (m mccMatcher) Matches(tx *Transaction) bool {
	return tx.MerchantCategoryCode != nil && *tx.MerchantCategoryCode == m.code
}

type amountRangeMatcher struct{ min, max float64 }

func (m amountRangeMatcher) Matches(tx *Transaction) bool {
	amount := tx.Amount()
	return amount >= m.min && amount <= m.max
}

// Matcher builds the matcher for this rule's type.
func (r CategoryRule) Matcher() (RuleMatcher, error) {
	switch r.Type {
	case RuleTypeMerchant:
		return merchantMatcher{pattern: strings.ToLower(r.Pattern)}, nil
	case RuleTypeDescription:
		return descriptionMatcher{pattern: strings.ToLower(r.Pattern)}, nil
	case RuleTypeMCC:
		return mccMatcher{code: r.Pattern}, nil
	case RuleTypeAmountRange:
		return amountRangeMatcher{min: r.MinAmount, max: r.MaxAmount}, nil
	default:
		return nil, fmt.Errorf("unknown rule type %q", r.Type)
	}
}

// Matches reports whether the rule applies to the transaction. Rules with an
// unknown type never match.
func (r CategoryRule) Matches(tx *Transaction) bool {
	matcher, err := r.Matcher()
	if err != nil {
		return false
	}
	return matcher.Matches(tx)
}

// EffectiveConfidence returns the rule's stored confidence, or the default
// when none was set.
func (r CategoryRule) EffectiveConfidence() float64 {
	if r.Confidence <= 0 {
		return DefaultRuleConfidence
	}
	return r.Confidence
}
