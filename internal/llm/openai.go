package llm

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/barrulus/clepho/internal/config"
)

// OpenAIClient implements Client against the OpenAI API, grounded on the
// teacher's OpenAIProvider (internal/ai/openai.go): same resize-before-send,
// same low-detail image part, same prompt-token/completion-token usage
// accounting, generalized from album sorting to arbitrary directory prompts.
type OpenAIClient struct {
	client         *openai.Client
	visionModel    string
	embeddingModel string
	pricing        config.ModelPricing
	usage          Usage
}

// NewOpenAIClient builds a Client for the given model names and pricing
// (looked up by the caller via config.GetModelPricing).
func NewOpenAIClient(apiKey, visionModel, embeddingModel string, pricing config.ModelPricing) *OpenAIClient {
	client := openai.NewClient(option.WithAPIKey(apiKey))
	return &OpenAIClient{
		client:         &client,
		visionModel:    visionModel,
		embeddingModel: embeddingModel,
		pricing:        pricing,
	}
}

func (c *OpenAIClient) Name() string { return c.visionModel }

func (c *OpenAIClient) Usage() Usage { return c.usage }

func (c *OpenAIClient) trackUsage(inputTokens, outputTokens int64) {
	c.usage.InputTokens += int(inputTokens)
	c.usage.OutputTokens += int(outputTokens)
	c.usage.TotalCostUSD += float64(inputTokens) / 1_000_000 * c.pricing.Standard.Input
	c.usage.TotalCostUSD += float64(outputTokens) / 1_000_000 * c.pricing.Standard.Output
}

// Describe sends a resized photo plus the directory prompt to the chat
// completions endpoint and returns the parsed description/tags.
func (c *OpenAIClient) Describe(ctx context.Context, imageData []byte, prompt string) (Description, error) {
	resized, err := resizeForVision(imageData, 800)
	if err != nil {
		return Description{}, fmt.Errorf("llm: resize for openai: %w", err)
	}
	imageURL := "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(resized)

	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: c.visionModel,
		Messages: []openai.ChatCompletionMessageParamUnion{
			{
				OfUser: &openai.ChatCompletionUserMessageParam{
					Content: openai.ChatCompletionUserMessageParamContentUnion{
						OfArrayOfContentParts: []openai.ChatCompletionContentPartUnionParam{
							openai.TextContentPart(prompt),
							openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
								URL:    imageURL,
								Detail: "low",
							}),
						},
					},
				},
			},
		},
		MaxTokens: openai.Int(500),
	})
	if err != nil {
		return Description{}, fmt.Errorf("llm: openai chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return Description{}, fmt.Errorf("llm: openai returned no choices")
	}

	if resp.Usage.PromptTokens > 0 || resp.Usage.CompletionTokens > 0 {
		c.trackUsage(resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
	}

	return parseDescription(resp.Choices[0].Message.Content), nil
}

// Embed embeds text via the OpenAI embeddings endpoint.
func (c *OpenAIClient) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := c.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Model: c.embeddingModel,
		Input: openai.EmbeddingNewParamsInputUnion{OfString: openai.String(text)},
	})
	if err != nil {
		return nil, fmt.Errorf("llm: openai embedding: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("llm: openai returned no embeddings")
	}

	if resp.Usage.PromptTokens > 0 {
		c.trackUsage(resp.Usage.PromptTokens, 0)
	}

	vec := make([]float32, len(resp.Data[0].Embedding))
	for i, f := range resp.Data[0].Embedding {
		vec[i] = float32(f)
	}
	return vec, nil
}
