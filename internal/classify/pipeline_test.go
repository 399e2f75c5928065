package classify

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/openledger/banksync/internal/banking/domain"
)

func TestPipeline_OnlyUnresolvedGoToTheModel(t *testing.T) {
	source := &stubRuleSource{pairs: defaultTaxonomy()}
	cache := NewRuleCache(source, DefaultCacheTTL)
	engine := newTestEngine(source)

	caller := &fakeCaller{responses: []string{
		`[{"mainCategory":"transport","subCategory":"taxi"}]`,
	}}
	fallback := NewBatchClassifier(caller, cache, NewAnonymizer("salt"), engine.log)
	pipeline := NewPipeline(engine, fallback)

	resolved := bookedTx()
	resolved.ExternalTransactionID = "tx-resolved"
	resolved.ProviderCategory = strPtr("groceries")

	unresolved := bookedTx()
	unresolved.ExternalTransactionID = "tx-unresolved"
	unresolved.AmountUnscaled = -12000

	batch := []domain.Transaction{resolved, unresolved}
	assert.NoError(t, pipeline.ClassifyAll(context.Background(), batch))

	assert.Equal(t, 1, caller.calls)
	assert.Equal(t, domain.SourceProvider, batch[0].CategorySource)
	assert.Equal(t, "groceries", batch[0].SubCategory)
	assert.Equal(t, domain.SourceAI, batch[1].CategorySource)
	assert.Equal(t, "taxi", batch[1].SubCategory)
}

func TestPipeline_NoModelCallWhenEverythingResolves(t *testing.T) {
	source := &stubRuleSource{pairs: defaultTaxonomy()}
	cache := NewRuleCache(source, DefaultCacheTTL)
	engine := newTestEngine(source)

	caller := &fakeCaller{}
	pipeline := NewPipeline(engine, NewBatchClassifier(caller, cache, NewAnonymizer("salt"), engine.log))

	tx := bookedTx()
	tx.MerchantName = strPtr("Spotify AB")

	assert.NoError(t, pipeline.ClassifyAll(context.Background(), []domain.Transaction{tx}))
	assert.Equal(t, 0, caller.calls)
}

func TestPipeline_NilFallbackKeepsEngineResult(t *testing.T) {
	source := &stubRuleSource{pairs: defaultTaxonomy()}
	pipeline := NewPipeline(newTestEngine(source), nil)

	tx := bookedTx()
	tx.AmountUnscaled = -12000

	batch := []domain.Transaction{tx}
	assert.NoError(t, pipeline.ClassifyAll(context.Background(), batch))
	assert.Equal(t, domain.SourceDefault, batch[0].CategorySource)
	assert.Equal(t, domain.FallbackPair.Main, batch[0].MainCategory)
}
