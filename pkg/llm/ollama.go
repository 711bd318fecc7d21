package llm

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	ollama "github.com/ollama/ollama/api"
	"github.com/stagehand-dev/stagehand/pkg/llm/types"
	"github.com/stagehand-dev/stagehand/pkg/param"
)

const defaultOllamaModel = "llama3.1:8b"

func callOllama(ctx context.Context, cfg ProviderConfig, system string, messages []types.Message) (string, error) {
	address := cfg.BaseURL
	if address == "" {
		address = param.Get().OllamaAddress
	}
	if address == "" {
		address = "http://localhost:11434"
	}

	baseURL, err := url.Parse(address)
	if err != nil {
		return "", fmt.Errorf("failed to parse ollama URL: %w", err)
	}

	client := ollama.NewClient(baseURL, http.DefaultClient)

	model := cfg.Model
	if model == "" {
		model = defaultOllamaModel
	}

	ollamaMessages := make([]ollama.Message, 0, len(messages)+1)
	if system != "" {
		ollamaMessages = append(ollamaMessages, ollama.Message{Role: types.RoleSystem, Content: system})
	}
	for _, msg := range messages {
		ollamaMessages = append(ollamaMessages, ollama.Message{Role: msg.Role, Content: msg.Content})
	}

	req := &ollama.ChatRequest{
		Model:    model,
		Messages: ollamaMessages,
		Stream:   new(bool),
	}

	var sb strings.Builder
	respFunc := func(resp ollama.ChatResponse) error {
		sb.WriteString(resp.Message.Content)
		return nil
	}

	if err := client.Chat(ctx, req, respFunc); err != nil {
		return "", fmt.Errorf("failed to call Ollama API: %w", err)
	}

	return sb.String(), nil
}
