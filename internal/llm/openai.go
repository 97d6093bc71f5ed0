package llm

import (
	"context"
	"fmt"
	"time"
)

// OpenAIProvider talks to the OpenAI chat completions API, or any server
// that speaks it.
type OpenAIProvider struct {
	baseProvider
}

// NewOpenAIProvider creates an OpenAI provider.
func NewOpenAIProvider(cfg *ProviderConfig) *OpenAIProvider {
	return &OpenAIProvider{
		baseProvider: newBaseProvider(cfg, ProviderOpenAI),
	}
}

// Chat sends a chat completion request.
func (p *OpenAIProvider) Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	if p.config.APIKey == "" {
		return nil, fmt.Errorf("OpenAI API key not configured")
	}

	start := time.Now()

	openaiReq := openAIChatRequest{
		Model:       p.model(req),
		MaxTokens:   p.maxTokens(req),
		Temperature: p.temperature(req),
	}
	if req.SystemPrompt != "" {
		openaiReq.Messages = append(openaiReq.Messages, openAIMessage{Role: "system", Content: req.SystemPrompt})
	}
	for _, msg := range req.Messages {
		openaiReq.Messages = append(openaiReq.Messages, openAIMessage(msg))
	}

	var openaiResp openAIChatResponse
	headers := map[string]string{"Authorization": "Bearer " + p.config.APIKey}
	if err := p.postJSON(ctx, "/chat/completions", headers, openaiReq, &openaiResp, "OpenAI"); err != nil {
		return nil, err
	}
	if len(openaiResp.Choices) == 0 {
		return nil, fmt.Errorf("no choices in response")
	}

	choice := openaiResp.Choices[0]
	return &ChatResponse{
		Content:          choice.Message.Content,
		Model:            openaiResp.Model,
		PromptTokens:     openaiResp.Usage.PromptTokens,
		CompletionTokens: openaiResp.Usage.CompletionTokens,
		TokensUsed:       openaiResp.Usage.TotalTokens,
		Duration:         time.Since(start),
		FinishReason:     choice.FinishReason,
	}, nil
}

type openAIChatRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
	Temperature float64         `json:"temperature,omitempty"`
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIChatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message      openAIMessage `json:"message"`
		FinishReason string        `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}
