package llm

import (
	"context"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/knowledger-ai/knowledger/pkg/apperrors"
)

// maxEmbeddingChars caps the text sent to the embedding provider. Longer
// inputs are truncated rather than rejected.
const maxEmbeddingChars = 10000

// DefaultDimensions is the vector size used when no dimensions are configured.
// It must match the VECTOR column width in the embeddings table.
const DefaultDimensions = 768

// Embedder turns text into dense vectors via an external provider.
type Embedder interface {
	// Embed generates a vector for a single text. An empty or whitespace-only
	// text is an error.
	Embed(ctx context.Context, text string) ([]float32, error)
	// EmbedBatch generates one vector per input text. A failed item degrades
	// to a zero vector in its slot instead of failing the batch.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	// EmbedEntry generates the vector for a knowledge entry, weighting the
	// title by repeating it ahead of the content.
	EmbedEntry(ctx context.Context, title, content string) ([]float32, error)
	// Model returns the provider model name embeddings are generated with.
	Model() string
	// Dimensions returns the configured vector size.
	Dimensions() int
	// TestConnection reports whether the provider can serve an embedding
	// request right now. It never returns an error.
	TestConnection(ctx context.Context) bool
}

// EmbedderConfig holds provider settings for the embedding client.
type EmbedderConfig struct {
	Endpoint   string
	APIKey     string
	Model      string
	Dimensions int
}

type embeddingClient struct {
	client     *openai.Client
	model      string
	dimensions int
	logger     *zap.Logger
}

// NewEmbedder creates an Embedder backed by an OpenAI-compatible endpoint.
func NewEmbedder(cfg EmbedderConfig, logger *zap.Logger) Embedder {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.Endpoint != "" {
		clientCfg.BaseURL = cfg.Endpoint
	}

	dimensions := cfg.Dimensions
	if dimensions <= 0 {
		dimensions = DefaultDimensions
	}

	return &embeddingClient{
		client:     openai.NewClientWithConfig(clientCfg),
		model:      cfg.Model,
		dimensions: dimensions,
		logger:     logger.Named("embeddings"),
	}
}

var _ Embedder = (*embeddingClient)(nil)

func (c *embeddingClient) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, apperrors.ErrEmptyInput
	}
	text = prepareText(text)

	resp, err := c.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Model:      openai.EmbeddingModel(c.model),
		Input:      []string{text},
		Dimensions: c.dimensions,
	})
	if err != nil {
		return nil, fmt.Errorf("embedding request failed: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("embedding response contained no data")
	}

	return resp.Data[0].Embedding, nil
}

func (c *embeddingClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vector, err := c.Embed(ctx, text)
		if err != nil {
			c.logger.Warn("batch item failed, substituting zero vector",
				zap.Int("index", i),
				zap.Error(err))
			vector = make([]float32, c.dimensions)
		}
		vectors[i] = vector
	}
	return vectors, nil
}

func (c *embeddingClient) EmbedEntry(ctx context.Context, title, content string) ([]float32, error) {
	// The title is embedded twice so it carries more weight than the body.
	return c.Embed(ctx, title+"\n\n"+title+"\n\n"+content)
}

func (c *embeddingClient) Model() string {
	return c.model
}

func (c *embeddingClient) Dimensions() int {
	return c.dimensions
}

func (c *embeddingClient) TestConnection(ctx context.Context) bool {
	if _, err := c.Embed(ctx, "connection test"); err != nil {
		c.logger.Warn("embedding provider unreachable", zap.Error(err))
		return false
	}
	return true
}

func prepareText(text string) string {
	if len(text) > maxEmbeddingChars {
		text = text[:maxEmbeddingChars]
	}
	return text
}
