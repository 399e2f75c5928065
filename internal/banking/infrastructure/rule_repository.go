package infrastructure

import (
	"context"
	"database/sql"

	"github.com/openledger/banksync/internal/banking/domain"
)

// RuleRepository loads the read-mostly classification data: category rules,
// the MCC mapping table and the taxonomy. It backs the classifier's cache.
type RuleRepository struct {
	db *sql.DB
}

func NewRuleRepository(db *sql.DB) *RuleRepository {
	return &RuleRepository{db: db}
}

func (r *RuleRepository) ListCategoryRules(ctx context.Context) ([]domain.CategoryRule, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, rule_type, pattern, COALESCE(min_amount, 0), COALESCE(max_amount, 0),
			main_category, sub_category, confidence, priority, is_active
		FROM category_rules
		WHERE is_active = TRUE
		ORDER BY priority`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []domain.CategoryRule
	for rows.Next() {
		var rule domain.CategoryRule
		var ruleType string
		err := rows.Scan(&rule.ID, &rule.UserID, &ruleType, &rule.Pattern,
			&rule.MinAmount, &rule.MaxAmount,
			&rule.Category.Main, &rule.Category.Sub,
			&rule.Confidence, &rule.Priority, &rule.IsActive)
		if err != nil {
			return nil, err
		}
		rule.Type = domain.RuleType(ruleType)
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

func (r *RuleRepository) ListMCCMappings(ctx context.Context) ([]domain.MCCMapping, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT code, main_category, sub_category, confidence FROM mcc_mappings`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var mappings []domain.MCCMapping
	for rows.Next() {
		var mapping domain.MCCMapping
		if err := rows.Scan(&mapping.Code, &mapping.Category.Main, &mapping.Category.Sub, &mapping.Confidence); err != nil {
			return nil, err
		}
		mappings = append(mappings, mapping)
	}
	return mappings, rows.Err()
}

func (r *RuleRepository) ListTaxonomyPairs(ctx context.Context) ([]domain.CategoryPair, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT main_category, sub_category FROM category_taxonomy`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pairs []domain.CategoryPair
	for rows.Next() {
		var pair domain.CategoryPair
		if err := rows.Scan(&pair.Main, &pair.Sub); err != nil {
			return nil, err
		}
		pairs = append(pairs, pair)
	}
	return pairs, rows.Err()
}
