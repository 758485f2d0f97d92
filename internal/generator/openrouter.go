package generator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

const (
	defaultOpenRouterURL   = "https://openrouter.ai/api/v1"
	defaultOpenRouterModel = "anthropic/claude-3.5-sonnet"
)

type OpenRouter struct {
	apiKey  string
	baseURL string
	model   string
	client  *http.Client
}

func NewOpenRouter(cfg Config) *OpenRouter {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultOpenRouterURL
	}
	if cfg.Model == "" {
		cfg.Model = defaultOpenRouterModel
	}
	return &OpenRouter{
		apiKey:  cfg.APIKey,
		baseURL: cfg.BaseURL,
		model:   cfg.Model,
		client:  &http.Client{Timeout: cfg.timeout()},
	}
}

func (s *OpenRouter) Name() string {
	return "openrouter"
}

type openRouterImageURL struct {
	URL string `json:"url"`
}

type openRouterPart struct {
	Type     string              `json:"type"`
	Text     string              `json:"text,omitempty"`
	ImageURL *openRouterImageURL `json:"image_url,omitempty"`
}

type openRouterMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type openRouterRequest struct {
	Model       string              `json:"model"`
	Messages    []openRouterMessage `json:"messages"`
	MaxTokens   int                 `json:"max_tokens,omitempty"`
	Temperature float64             `json:"temperature"`
}

type openRouterResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

func (s *OpenRouter) Generate(ctx context.Context, req Request) (string, error) {
	if s.apiKey == "" {
		return "", fmt.Errorf("OpenRouter API key required")
	}

	var parts []openRouterPart
	if len(req.Image) > 0 {
		parts = append(parts, openRouterPart{Type: "image_url", ImageURL: &openRouterImageURL{URL: dataURI(req)}})
	}
	parts = append(parts, openRouterPart{Type: "text", Text: req.Prompt})

	var messages []openRouterMessage
	if req.System != "" {
		messages = append(messages, openRouterMessage{Role: "system", Content: req.System})
	}
	messages = append(messages, openRouterMessage{Role: "user", Content: parts})

	jsonData, err := json.Marshal(openRouterRequest{
		Model:       s.model,
		Messages:    messages,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/chat/completions", bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+s.apiKey)
	httpReq.Header.Set("HTTP-Referer", "https://reclone.local")
	httpReq.Header.Set("X-Title", "reclone")

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var errResp map[string]any
		_ = json.NewDecoder(resp.Body).Decode(&errResp)
		return "", fmt.Errorf("API returned status %d: %v", resp.StatusCode, errResp)
	}

	var out openRouterResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	if len(out.Choices) == 0 || out.Choices[0].Message.Content == "" {
		return "", ErrEmptyResponse
	}

	return out.Choices[0].Message.Content, nil
}
