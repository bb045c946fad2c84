// Package llm holds the rule based message analysis and the optional
// language model assistant that answers free text questions.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/clipbot/clipbot/internal/config"
	"github.com/clipbot/clipbot/internal/database"
	"github.com/clipbot/clipbot/internal/i18n"
	"github.com/clipbot/clipbot/internal/logger"
)

var ErrDisabled = errors.New("assistant is not configured")

const maxReplyTokens = 300

type Client struct {
	cfg          *config.Config
	httpClient   *http.Client
	geminiClient *GeminiSDKClient
}

type ChatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ChatResponse struct {
	Choices []Choice `json:"choices"`
	Usage   *Usage   `json:"usage,omitempty"`
}

type Choice struct {
	Message Message `json:"message"`
}

type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ReplyContext is what the assistant knows about the asking user
type ReplyContext struct {
	Lang           string
	Tier           database.Tier
	DownloadsToday int
	Limit          int
	LastError      string
}

func NewClient(cfg *config.Config) *Client {
	client := &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}

	if cfg != nil && cfg.HasLLMConfig() && strings.EqualFold(cfg.LLMProvider, "gemini") {
		geminiClient, err := NewGeminiSDKClient(cfg)
		if err != nil {
			logger.Warn("Gemini client unavailable, using HTTP API", map[string]interface{}{
				"error": err.Error(),
			})
		} else {
			client.geminiClient = geminiClient
		}
	}

	return client
}

func (c *Client) Enabled() bool {
	return c != nil && c.cfg != nil && c.cfg.HasLLMConfig()
}

// SmartReply answers a free text message in the user's language
func (c *Client) SmartReply(ctx context.Context, text string, rc ReplyContext) (string, error) {
	if !c.Enabled() {
		return "", ErrDisabled
	}

	system := SystemPrompt(rc)
	var (
		reply string
		usage *Usage
		err   error
	)
	if c.geminiClient != nil {
		reply, usage, err = c.geminiClient.Reply(ctx, system, text)
	} else {
		reply, usage, err = c.chat(ctx, system, text)
	}
	if err != nil {
		return "", err
	}

	if usage != nil {
		logger.Debug("Assistant token usage", map[string]interface{}{
			"prompt_tokens":     usage.PromptTokens,
			"completion_tokens": usage.CompletionTokens,
			"total_tokens":      usage.TotalTokens,
		})
	}
	reply = strings.TrimSpace(reply)
	if reply == "" {
		return "", fmt.Errorf("empty assistant reply")
	}
	return reply, nil
}

// chat calls an OpenAI compatible /chat/completions endpoint
func (c *Client) chat(ctx context.Context, system, text string) (string, *Usage, error) {
	reqBody := ChatRequest{
		Model: c.cfg.LLMModel,
		Messages: []Message{
			{Role: "system", Content: system},
			{Role: "user", Content: text},
		},
		Temperature: 0.7,
		MaxTokens:   maxReplyTokens,
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return "", nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	endpoint := strings.TrimRight(c.cfg.LLMEndpoint, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewBuffer(jsonBody))
	if err != nil {
		return "", nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.LLMToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", nil, fmt.Errorf("failed to send request to %s: %w", req.URL.String(), err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", nil, fmt.Errorf("LLM API returned status %d: %s", resp.StatusCode, string(body))
	}

	var chatResp ChatResponse
	if err := json.Unmarshal(body, &chatResp); err != nil {
		return "", nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	if len(chatResp.Choices) == 0 {
		return "", nil, fmt.Errorf("no choices in LLM response")
	}

	return chatResp.Choices[0].Message.Content, chatResp.Usage, nil
}

// SystemPrompt describes the bot and the user's standing to the model
func SystemPrompt(rc ReplyContext) string {
	lang := "English"
	if rc.Lang == i18n.Arabic {
		lang = "Arabic"
	}
	tier := rc.Tier
	if tier == "" {
		tier = database.TierFree
	}

	var b strings.Builder
	b.WriteString("You are the assistant of ClipBot, a Telegram bot that downloads videos, photos and audio from TikTok, Instagram and YouTube. ")
	b.WriteString("Users send a link and get the media back. Adding the word \"audio\" or \"mp3\" to a link downloads only the sound. ")
	b.WriteString("Paid plans raise the daily download limit and are bought with /subscribe.\n")
	fmt.Fprintf(&b, "User plan: %s. Downloads today: %d of %d.\n", tier, rc.DownloadsToday, rc.Limit)
	if rc.LastError != "" {
		fmt.Fprintf(&b, "The user's last download failed with: %s\n", rc.LastError)
	}
	fmt.Fprintf(&b, "Reply in %s, in at most three short sentences, friendly and without markdown.", lang)
	return b.String()
}

// Close cleans up the client resources
func (c *Client) Close() error {
	if c != nil && c.geminiClient != nil {
		return c.geminiClient.Close()
	}
	return nil
}
