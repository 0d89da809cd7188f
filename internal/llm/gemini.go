package llm

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"github.com/barrulus/clepho/internal/config"
)

// GeminiClient implements Client against the Gemini API, grounded on the
// teacher's GeminiProvider (internal/ai/gemini.go): same inline-image
// content part, same UsageMetadata-driven cost tracking.
type GeminiClient struct {
	client         *genai.Client
	visionModel    string
	embeddingModel string
	pricing        config.ModelPricing
	usage          Usage
}

// NewGeminiClient builds a Client backed by the Gemini API.
func NewGeminiClient(ctx context.Context, apiKey, visionModel, embeddingModel string, pricing config.ModelPricing) (*GeminiClient, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("llm: create gemini client: %w", err)
	}
	return &GeminiClient{
		client:         client,
		visionModel:    visionModel,
		embeddingModel: embeddingModel,
		pricing:        pricing,
	}, nil
}

func (c *GeminiClient) Name() string { return c.visionModel }

func (c *GeminiClient) Usage() Usage { return c.usage }

func (c *GeminiClient) trackUsage(inputTokens, outputTokens int32) {
	c.usage.InputTokens += int(inputTokens)
	c.usage.OutputTokens += int(outputTokens)
	c.usage.TotalCostUSD += float64(inputTokens) / 1_000_000 * c.pricing.Standard.Input
	c.usage.TotalCostUSD += float64(outputTokens) / 1_000_000 * c.pricing.Standard.Output
}

func (c *GeminiClient) Describe(ctx context.Context, imageData []byte, prompt string) (Description, error) {
	resized, err := resizeForVision(imageData, 800)
	if err != nil {
		return Description{}, fmt.Errorf("llm: resize for gemini: %w", err)
	}

	contents := []*genai.Content{
		{
			Role: "user",
			Parts: []*genai.Part{
				{Text: prompt},
				{InlineData: &genai.Blob{Data: resized, MIMEType: "image/jpeg"}},
			},
		},
	}

	result, err := c.client.Models.GenerateContent(ctx, c.visionModel, contents, nil)
	if err != nil {
		return Description{}, fmt.Errorf("llm: gemini generate content: %w", err)
	}
	if result.UsageMetadata != nil {
		c.trackUsage(result.UsageMetadata.PromptTokenCount, result.UsageMetadata.CandidatesTokenCount)
	}

	text := result.Text()
	if text == "" {
		return Description{}, fmt.Errorf("llm: gemini returned no content")
	}
	return parseDescription(text), nil
}

func (c *GeminiClient) Embed(ctx context.Context, text string) ([]float32, error) {
	contents := []*genai.Content{
		{Role: "user", Parts: []*genai.Part{{Text: text}}},
	}

	resp, err := c.client.Models.EmbedContent(ctx, c.embeddingModel, contents, nil)
	if err != nil {
		return nil, fmt.Errorf("llm: gemini embed content: %w", err)
	}
	if len(resp.Embeddings) == 0 {
		return nil, fmt.Errorf("llm: gemini returned no embeddings")
	}
	return resp.Embeddings[0].Values, nil
}
