package classify

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/genai"

	"github.com/openledger/banksync/internal/banking/domain"
)

const (
	// aiBatchSize bounds how many transactions go to the model in one call.
	aiBatchSize = 20
	// aiCallTimeout is the wall-clock bound on one model call; expiry is
	// treated like any other call failure.
	aiCallTimeout = 30 * time.Second

	aiConfidence     = 0.6
	defaultModelName = "gemini-2.0-flash"
)

// ModelCaller is the external classifier call. Implementations send the
// taxonomy as system text and the batch as user text and return the raw
// response.
type ModelCaller interface {
	GenerateText(ctx context.Context, system, user string) (string, error)
}

// GeminiCaller calls the Gemini API through the genai SDK.
type GeminiCaller struct {
	client *genai.Client
	model  string
}

func NewGeminiCaller(ctx context.Context) (*GeminiCaller, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		HTTPOptions: genai.HTTPOptions{APIVersion: "v1"},
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	model := os.Getenv("CLASSIFIER_MODEL")
	if model == "" {
		model = defaultModelName
	}
	return &GeminiCaller{client: client, model: model}, nil
}

func (g *GeminiCaller) GenerateText(ctx context.Context, system, user string) (string, error) {
	contents := []*genai.Content{
		{
			Role: "user",
			Parts: []*genai.Part{
				{Text: system},
				{Text: user},
			},
		},
	}
	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, nil)
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}
	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("empty response from model")
	}
	return text, nil
}

// BatchClassifier delegates unresolved transactions to the external model in
// anonymized fixed-size batches. A failed batch degrades to the reserved
// needs-review result; failures never abandon the whole run.
type BatchClassifier struct {
	caller     ModelCaller
	cache      *RuleCache
	anonymizer *Anonymizer
	batchSize  int
	timeout    time.Duration
	log        zerolog.Logger
	now        func() time.Time
}

func NewBatchClassifier(caller ModelCaller, cache *RuleCache, anonymizer *Anonymizer, log zerolog.Logger) *BatchClassifier {
	return &BatchClassifier{
		caller:     caller,
		cache:      cache,
		anonymizer: anonymizer,
		batchSize:  aiBatchSize,
		timeout:    aiCallTimeout,
		log:        log,
		now:        time.Now,
	}
}

// ClassifyAll classifies every transaction in place via the external model.
func (b *BatchClassifier) ClassifyAll(ctx context.Context, transactions []domain.Transaction) error {
	if err := b.cache.RefreshIfStale(ctx, b.now()); err != nil {
		return err
	}

	for start := 0; start < len(transactions); start += b.batchSize {
		end := start + b.batchSize
		if end > len(transactions) {
			end = len(transactions)
		}
		batch := transactions[start:end]

		pairs, err := b.classifyBatch(ctx, batch)
		if err != nil {
			b.log.Warn().Err(err).
				Int("batch_start", start).
				Int("batch_end", end-1).
				Msg("model classification failed, falling back to needs-review for the batch")
			for i := range batch {
				b.applyResult(&batch[i], domain.FallbackPair, 0, true)
			}
			continue
		}
		for i := range batch {
			b.applyResult(&batch[i], pairs[i], aiConfidence, false)
		}
	}
	return nil
}

func (b *BatchClassifier) applyResult(tx *domain.Transaction, pair domain.CategoryPair, confidence float64, needsReview bool) {
	tx.MainCategory = pair.Main
	tx.SubCategory = pair.Sub
	tx.CategorySource = domain.SourceAI
	tx.CategoryConfidence = confidence
	tx.NeedsReview = needsReview
	tx.CategorizedAt = b.now()
}

func (b *BatchClassifier) classifyBatch(ctx context.Context, batch []domain.Transaction) ([]domain.CategoryPair, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	raw, err := b.caller.GenerateText(ctx, b.systemPrompt(), b.batchPrompt(batch))
	if err != nil {
		return nil, err
	}

	var parsed []struct {
		MainCategory string `json:"mainCategory"`
		SubCategory  string `json:"subCategory"`
	}
	if err := json.Unmarshal([]byte(cleanModelJSON(raw)), &parsed); err != nil {
		return nil, fmt.Errorf("unmarshal model response: %w", err)
	}
	if len(parsed) != len(batch) {
		return nil, fmt.Errorf("model returned %d results for %d transactions", len(parsed), len(batch))
	}

	pairs := make([]domain.CategoryPair, len(parsed))
	for i, item := range parsed {
		pair := domain.CategoryPair{Main: item.MainCategory, Sub: item.SubCategory}
		if !b.cache.IsValidPair(pair) {
			return nil, fmt.Errorf("model returned pair (%q, %q) outside the taxonomy", pair.Main, pair.Sub)
		}
		pairs[i] = pair
	}
	return pairs, nil
}

func (b *BatchClassifier) systemPrompt() string {
	var sb strings.Builder
	sb.WriteString("You are a transaction categorizer for a personal finance service.\n\n")
	sb.WriteString("Use ONLY the following (mainCategory, subCategory) pairs:\n")
	for _, pair := range b.cache.ValidPairs() {
		sb.WriteString("- " + pair.Main + " / " + pair.Sub + "\n")
	}
	sb.WriteString("\nRules:\n")
	sb.WriteString("- Output STRICT JSON only: one array of objects, no extra text.\n")
	sb.WriteString("- Each object has exactly the fields \"mainCategory\" and \"subCategory\".\n")
	sb.WriteString("- The array must have exactly one entry per input line, in input order.\n")
	sb.WriteString("- Do NOT wrap the response in code fences.\n")
	sb.WriteString("- Output must begin with \"[\" and end with \"]\".\n")
	return sb.String()
}

func (b *BatchClassifier) batchPrompt(batch []domain.Transaction) string {
	var sb strings.Builder
	sb.WriteString("Classify these transactions:\n")
	for i, tx := range batch {
		merchant := ""
		if tx.MerchantName != nil {
			merchant = b.anonymizer.MerchantHash(*tx.MerchantName)
		}
		mcc := ""
		if tx.MerchantCategoryCode != nil {
			mcc = *tx.MerchantCategoryCode
		}
		fmt.Fprintf(&sb, "%d. amount=%.2f %s merchant=%s mcc=%s description=%q\n",
			i+1, tx.Amount(), tx.CurrencyCode, merchant, mcc,
			b.anonymizer.RedactDescription(tx.Description))
	}
	return sb.String()
}

// cleanModelJSON strips markdown fences the model may add despite
// instructions.
func cleanModelJSON(raw string) string {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx != -1 {
			s = s[idx+1:]
		} else {
			return s
		}
		s = strings.TrimSpace(s)
	}
	if idx := strings.LastIndex(s, "```"); idx != -1 {
		s = s[:idx]
	}
	return strings.TrimSpace(s)
}
