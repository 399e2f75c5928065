package classify

import (
	"context"

	"github.com/openledger/banksync/internal/banking/domain"
)

// Pipeline runs the deterministic cascade first and hands transactions the
// cascade could only default to over to the model-backed classifier. With a
// nil fallback it behaves exactly like the engine alone.
type Pipeline struct {
	engine   *Engine
	fallback *BatchClassifier
}

func NewPipeline(engine *Engine, fallback *BatchClassifier) *Pipeline {
	return &Pipeline{engine: engine, fallback: fallback}
}

func (p *Pipeline) ClassifyAll(ctx context.Context, transactions []domain.Transaction) error {
	if err := p.engine.ClassifyAll(ctx, transactions); err != nil {
		return err
	}
	if p.fallback == nil {
		return nil
	}

	var unresolved []int
	for i := range transactions {
		if transactions[i].CategorySource == domain.SourceDefault {
			unresolved = append(unresolved, i)
		}
	}
	if len(unresolved) == 0 {
		return nil
	}

	pending := make([]domain.Transaction, len(unresolved))
	for j, i := range unresolved {
		pending[j] = transactions[i]
	}
	if err := p.fallback.ClassifyAll(ctx, pending); err != nil {
		return err
	}
	for j, i := range unresolved {
		transactions[i] = pending[j]
	}
	return nil
}
