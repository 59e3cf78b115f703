package services

import (
	"context"
	"math"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"
	"go.uber.org/zap"
)

// IntentUnknown is returned when no intent scores above the threshold or the
// embedding provider is unavailable.
const IntentUnknown = "unknown"

// intentThreshold is the minimum cosine similarity for a classification.
const intentThreshold = 0.4

// intentExamples defines each intent's prototype phrases. The embeddings of
// these phrases form the intent's semantic centroid.
var intentExamples = map[string][]string{
	"buy": {
		"i want to buy milk",
		"buy two bags of rice",
		"order a pizza for me",
		"add bread to my cart",
		"i would like to purchase eggs",
	},
	"find": {
		"find shoes",
		"search for headphones",
		"show me what vegetables you have",
		"do you sell phone chargers",
		"looking for a gift",
	},
	"view_cart": {
		"show my cart",
		"what is in my basket",
		"view cart",
		"my shopping cart",
	},
	"check_wallet": {
		"check my wallet",
		"what is my balance",
		"how much money do i have",
		"wallet balance",
	},
	"track": {
		"track my order",
		"where is my delivery",
		"order status",
		"has my package shipped",
	},
	"greeting": {
		"hi",
		"hello",
		"good morning",
		"hey there",
	},
}

// stopPhrases are stripped from the start of text to pull out the product
// entity. Ordered longest first at init so the longest match wins. This is a
// heuristic slot extraction, not NER.
var stopPhrases = []string{
	"i would like to purchase",
	"i would like to buy",
	"i want to purchase",
	"i want to order",
	"i want to buy",
	"do you sell",
	"looking for",
	"search for",
	"show me",
	"find me",
	"get me",
	"buy me",
	"i want",
	"order",
	"find",
	"buy",
}

// Embedder is the slice of the embeddings provider this service needs.
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
}

// IntentClassifier scores free text against cached intent prototype
// embeddings. The prototype cache is built on first use; a failed build is
// not latched, so the next Classify retries it.
type IntentClassifier struct {
	embedder Embedder
	logger   *zap.Logger

	mu         sync.Mutex
	prototypes map[string][][]float32
}

// NewIntentClassifier creates a new intent classifier
func NewIntentClassifier(embedder Embedder, logger *zap.Logger) *IntentClassifier {
	return &IntentClassifier{
		embedder: embedder,
		logger:   logger,
	}
}

// NewOpenAIEmbedder builds the default embeddings provider from the
// environment (OPENAI_API_KEY, optional OPENAI_BASE_URL).
func NewOpenAIEmbedder(model string) (Embedder, error) {
	opts := []openai.Option{
		openai.WithEmbeddingModel(model),
	}
	if base := os.Getenv("OPENAI_BASE_URL"); base != "" {
		opts = append(opts, openai.WithBaseURL(base))
	}
	llm, err := openai.New(opts...)
	if err != nil {
		return nil, err
	}
	return embeddings.NewEmbedder(llm)
}

// Classify embeds text and returns the best-scoring intent and its score.
// Empty text, a cold provider, or every score below the threshold all yield
// (IntentUnknown, 0.0). It never returns an error: a broken embedding
// provider must not break the conversation.
func (c *IntentClassifier) Classify(ctx context.Context, text string) (string, float64) {
	text = strings.TrimSpace(text)
	if text == "" || c.embedder == nil {
		return IntentUnknown, 0.0
	}

	prototypes, err := c.loadPrototypes(ctx)
	if err != nil {
		c.logger.Warn("intent prototypes unavailable", zap.Error(err))
		return IntentUnknown, 0.0
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	vector, err := c.embedder.EmbedQuery(ctx, strings.ToLower(text))
	if err != nil {
		c.logger.Warn("embedding provider unavailable", zap.Error(err))
		return IntentUnknown, 0.0
	}

	bestIntent := IntentUnknown
	bestScore := 0.0
	for intent, protos := range prototypes {
		for _, proto := range protos {
			if score := Cosine(vector, proto); score > bestScore {
				bestIntent, bestScore = intent, score
			}
		}
	}

	if bestScore < intentThreshold {
		return IntentUnknown, 0.0
	}
	return bestIntent, bestScore
}

// loadPrototypes returns the cached prototype embeddings, embedding all
// example phrases on first use. The cache is only set on a fully successful
// build, so a provider outage at startup does not disable classification for
// the process lifetime.
func (c *IntentClassifier) loadPrototypes(ctx context.Context) (map[string][][]float32, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.prototypes != nil {
		return c.prototypes, nil
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	prototypes := make(map[string][][]float32, len(intentExamples))
	for intent, phrases := range intentExamples {
		vectors, err := c.embedder.EmbedDocuments(ctx, phrases)
		if err != nil {
			return nil, err
		}
		prototypes[intent] = vectors
	}
	c.prototypes = prototypes
	c.logger.Info("intent prototypes cached", zap.Int("intents", len(prototypes)))
	return c.prototypes, nil
}

// ExtractEntity strips the longest matching stop-phrase from the start of
// lowercased text, leaving the product term.
func ExtractEntity(text string) string {
	entity := strings.ToLower(strings.TrimSpace(text))
	for _, phrase := range stopPhrases {
		if strings.HasPrefix(entity, phrase+" ") {
			entity = strings.TrimSpace(strings.TrimPrefix(entity, phrase))
			break
		}
	}
	return strings.Trim(entity, " .!?")
}

// Cosine returns the cosine similarity of two vectors. Zero-norm vectors or
// mismatched lengths score 0.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
