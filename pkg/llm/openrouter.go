package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/stagehand-dev/stagehand/pkg/llm/types"
	"github.com/stagehand-dev/stagehand/pkg/param"
)

const OpenRouterAPIURL = "https://openrouter.ai/api/v1/chat/completions"

// OpenRouterMessage represents a message in OpenRouter API format
type OpenRouterMessage struct {
	Role    string `json:"role"`
	Content string `json:"content,omitempty"`
}

// OpenRouterRequest represents the request body for OpenRouter API
type OpenRouterRequest struct {
	Model     string              `json:"model"`
	Messages  []OpenRouterMessage `json:"messages"`
	Stream    bool                `json:"stream"`
	MaxTokens *int                `json:"max_tokens,omitempty"`
}

// OpenRouterResponse represents the response from OpenRouter API
type OpenRouterResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
			Role    string `json:"role"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

func callOpenRouterChat(ctx context.Context, cfg ProviderConfig, system string, messages []types.Message) (string, error) {
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = param.Get().OpenRouterAPIKey
	}
	if apiKey == "" {
		return "", fmt.Errorf("OPENROUTER_API_KEY environment variable not set")
	}

	url := cfg.BaseURL
	if url == "" {
		url = OpenRouterAPIURL
	}

	orMessages := make([]OpenRouterMessage, 0, len(messages)+1)
	if system != "" {
		orMessages = append(orMessages, OpenRouterMessage{Role: types.RoleSystem, Content: system})
	}
	for _, msg := range messages {
		orMessages = append(orMessages, OpenRouterMessage{Role: msg.Role, Content: msg.Content})
	}

	maxTokens := defaultMaxTokens
	reqBody := OpenRouterRequest{
		Model:     cfg.Model,
		Messages:  orMessages,
		Stream:    false,
		MaxTokens: &maxTokens,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+apiKey)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", &HTTPError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var orResp OpenRouterResponse
	if err := json.Unmarshal(body, &orResp); err != nil {
		return "", fmt.Errorf("failed to unmarshal response: %w", err)
	}

	if len(orResp.Choices) == 0 {
		return "", ErrEmptyResponse
	}

	return orResp.Choices[0].Message.Content, nil
}
