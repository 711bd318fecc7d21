package llm

import (
	"context"
	"fmt"
	"strings"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/stagehand-dev/stagehand/pkg/llm/types"
	"github.com/stagehand-dev/stagehand/pkg/param"
)

func newAnthropicClient(cfg ProviderConfig) (*anthropic.Client, error) {
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = param.Get().AnthropicAPIKey
	}
	if apiKey == "" {
		return nil, fmt.Errorf("ANTHROPIC_API_KEY environment variable not set")
	}

	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return anthropic.NewClient(opts...), nil
}

func callAnthropic(ctx context.Context, cfg ProviderConfig, system string, messages []types.Message) (string, error) {
	client, err := newAnthropicClient(cfg)
	if err != nil {
		return "", err
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.F(cfg.Model),
		MaxTokens: anthropic.F(int64(defaultMaxTokens)),
		Messages:  anthropic.F(toAnthropicMessages(messages)),
	}
	if system != "" {
		params.System = anthropic.F([]anthropic.TextBlockParam{anthropic.NewTextBlock(system)})
	}

	resp, err := client.Messages.New(ctx, params)
	if err != nil {
		return "", err
	}

	if resp == nil || len(resp.Content) == 0 {
		return "", ErrEmptyResponse
	}

	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == anthropic.ContentBlockTypeText {
			sb.WriteString(block.Text)
		}
	}
	return sb.String(), nil
}

// toAnthropicMessages folds system messages out of the history and coalesces
// consecutive same-role entries; the Messages API requires strictly
// alternating user/assistant turns.
func toAnthropicMessages(messages []types.Message) []anthropic.MessageParam {
	var out []anthropic.MessageParam
	var pendingRole string
	var pending []string

	flush := func() {
		if len(pending) == 0 {
			return
		}
		text := strings.Join(pending, "\n\n")
		if pendingRole == types.RoleAssistant {
			out = append(out, anthropic.NewAssistantMessage(anthropic.NewTextBlock(text)))
		} else {
			out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(text)))
		}
		pending = nil
	}

	for _, msg := range messages {
		role := msg.Role
		if role == types.RoleSystem {
			role = types.RoleUser
		}
		if role != pendingRole {
			flush()
			pendingRole = role
		}
		pending = append(pending, msg.Content)
	}
	flush()

	return out
}
