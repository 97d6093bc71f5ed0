package llm

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// AnthropicProvider talks to the Anthropic messages API.
type AnthropicProvider struct {
	baseProvider
}

// NewAnthropicProvider creates an Anthropic provider.
func NewAnthropicProvider(cfg *ProviderConfig) *AnthropicProvider {
	return &AnthropicProvider{
		baseProvider: newBaseProvider(cfg, ProviderAnthropic),
	}
}

// Chat sends a messages request. The system prompt travels in its own field.
func (p *AnthropicProvider) Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	if p.config.APIKey == "" {
		return nil, fmt.Errorf("Anthropic API key not configured")
	}

	start := time.Now()

	anthropicReq := anthropicChatRequest{
		Model:       p.model(req),
		System:      req.SystemPrompt,
		MaxTokens:   p.maxTokens(req),
		Temperature: p.temperature(req),
	}
	for _, msg := range req.Messages {
		if msg.Role == "system" {
			continue
		}
		anthropicReq.Messages = append(anthropicReq.Messages, anthropicMessage(msg))
	}

	headers := map[string]string{
		"x-api-key":         p.config.APIKey,
		"anthropic-version": "2023-06-01",
	}
	var anthropicResp anthropicChatResponse
	if err := p.postJSON(ctx, "/v1/messages", headers, anthropicReq, &anthropicResp, "Anthropic"); err != nil {
		return nil, err
	}

	var content strings.Builder
	for _, block := range anthropicResp.Content {
		if block.Type == "text" {
			content.WriteString(block.Text)
		}
	}

	return &ChatResponse{
		Content:          content.String(),
		Model:            anthropicResp.Model,
		PromptTokens:     anthropicResp.Usage.InputTokens,
		CompletionTokens: anthropicResp.Usage.OutputTokens,
		TokensUsed:       anthropicResp.Usage.InputTokens + anthropicResp.Usage.OutputTokens,
		Duration:         time.Since(start),
		FinishReason:     anthropicResp.StopReason,
	}, nil
}

type anthropicChatRequest struct {
	Model       string             `json:"model"`
	Messages    []anthropicMessage `json:"messages"`
	System      string             `json:"system,omitempty"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature float64            `json:"temperature,omitempty"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicChatResponse struct {
	Model      string `json:"model"`
	StopReason string `json:"stop_reason"`
	Content    []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}
