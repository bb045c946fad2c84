package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/clipbot/clipbot/internal/config"
	"github.com/clipbot/clipbot/internal/logger"
	"google.golang.org/genai"
)

// GeminiSDKClient talks to Gemini through the official SDK
type GeminiSDKClient struct {
	client    *genai.Client
	modelName string
}

func NewGeminiSDKClient(cfg *config.Config) (*GeminiSDKClient, error) {
	if cfg == nil || cfg.LLMToken == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey: cfg.LLMToken,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GeminiSDKClient{
		client:    client,
		modelName: cfg.LLMModel,
	}, nil
}

// Reply generates one answer for text under the given system instruction
func (gc *GeminiSDKClient) Reply(ctx context.Context, system, text string) (string, *Usage, error) {
	if gc.client == nil {
		return "", nil, fmt.Errorf("gemini SDK client not initialized")
	}

	cfg := &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: system}}},
		Temperature:       genai.Ptr(float32(0.7)),
		MaxOutputTokens:   maxReplyTokens,
		ThinkingConfig: &genai.ThinkingConfig{
			ThinkingBudget: genai.Ptr(int32(0)),
		},
	}

	resp, err := gc.client.Models.GenerateContent(ctx, gc.modelName, genai.Text(text), cfg)
	if err != nil {
		return "", nil, fmt.Errorf("failed to generate reply: %w", err)
	}

	logger.Debug("Gemini reply", map[string]interface{}{
		"candidates_count": len(resp.Candidates),
	})

	if len(resp.Candidates) == 0 {
		return "", nil, fmt.Errorf("no candidates in Gemini response")
	}
	candidate := resp.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return "", nil, fmt.Errorf("no content parts in Gemini response")
	}

	var b strings.Builder
	for _, part := range candidate.Content.Parts {
		b.WriteString(part.Text)
	}

	var usage *Usage
	if resp.UsageMetadata != nil {
		usage = &Usage{
			PromptTokens:     int(resp.UsageMetadata.PromptTokenCount),
			CompletionTokens: int(resp.UsageMetadata.CandidatesTokenCount),
			TotalTokens:      int(resp.UsageMetadata.TotalTokenCount),
		}
	}

	return strings.TrimSpace(b.String()), usage, nil
}

// Close is a no-op, the SDK holds no connections of its own
func (gc *GeminiSDKClient) Close() error {
	return nil
}
