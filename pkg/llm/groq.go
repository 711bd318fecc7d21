package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/jpoz/groq"
	"github.com/stagehand-dev/stagehand/pkg/llm/types"
	"github.com/stagehand-dev/stagehand/pkg/param"
)

const defaultGroqModel = "llama-3.3-70b-versatile"

func callGroq(ctx context.Context, cfg ProviderConfig, system string, messages []types.Message) (string, error) {
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = param.Get().GroqAPIKey
	}
	if apiKey == "" {
		return "", fmt.Errorf("GROQ_API_KEY environment variable not set")
	}

	client := groq.NewClient(groq.WithAPIKey(apiKey))

	model := cfg.Model
	if model == "" {
		model = defaultGroqModel
	}

	groqMessages := make([]groq.Message, 0, len(messages)+1)
	if system != "" {
		groqMessages = append(groqMessages, groq.Message{Role: types.RoleSystem, Content: system})
	}
	for _, msg := range messages {
		groqMessages = append(groqMessages, groq.Message{Role: msg.Role, Content: msg.Content})
	}

	// CreateChatCompletion takes no context, so the deadline on ctx
	// cannot abort an in-flight request for this backend.
	chatCompletion, err := client.CreateChatCompletion(groq.CompletionCreateParams{
		Model:    model,
		Messages: groqMessages,
	})
	if err != nil {
		return "", fmt.Errorf("failed to call Groq API: %w", err)
	}

	if len(chatCompletion.Choices) == 0 {
		return "", ErrEmptyResponse
	}

	return strings.TrimSpace(chatCompletion.Choices[0].Message.Content), nil
}
