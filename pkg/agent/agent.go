package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/stagehand-dev/stagehand/pkg/llm"
	llmtypes "github.com/stagehand-dev/stagehand/pkg/llm/types"
	"github.com/stagehand-dev/stagehand/pkg/logger"
	"github.com/stagehand-dev/stagehand/pkg/workspace"
	workspacetypes "github.com/stagehand-dev/stagehand/pkg/workspace/types"
)

const (
	defaultMaxTurns = 16

	// autoChainLimit bounds how many read-only actions are executed
	// locally within one turn sequence before control returns.
	autoChainLimit = 1

	providerTimeout = 120 * time.Second
)

var (
	// ErrTurnLimit means the conversation used its full turn budget
	// without the model completing.
	ErrTurnLimit = errors.New("turn limit reached")

	// ErrProtocolExhausted means the model failed to produce a valid
	// action again after a fallback was already used. The caller should
	// stop retrying and surface the failure.
	ErrProtocolExhausted = errors.New("action protocol exhausted")
)

// TaskState is the durable conversation state for one workflow. It is an
// opaque blob to everything but this package.
type TaskState struct {
	Messages  []llmtypes.Message `json:"messages"`
	Turns     int                `json:"turns"`
	Fallbacks int                `json:"fallbacks"`
}

// Options configures one turn sequence. CallFn and ContextFn default to
// the real provider and workspace; tests swap them.
type Options struct {
	ProjectID string
	Provider  llm.ProviderConfig
	Mode      string
	AutoChain bool
	MaxTurns  int

	// Streamer receives incremental progress. Optional.
	Streamer func(kind, data string)

	CallFn     func(ctx context.Context, cfg llm.ProviderConfig, system string, messages []llmtypes.Message, timeout time.Duration) (string, error)
	ContextFn  func(projectID string, action llmtypes.Action) (string, error)
	DocumentFn func(projectID string, path string) (*workspacetypes.Document, error)
}

// Result is the outcome of one turn sequence.
type Result struct {
	Action     *llmtypes.Action
	Proposals  []ProposalDraft
	PlanUpdate *PlanUpdate
	Done       bool
	RawText    string
}

func (o *Options) defaults() {
	if o.MaxTurns == 0 {
		o.MaxTurns = defaultMaxTurns
	}
	if o.CallFn == nil {
		o.CallFn = llm.Call
	}
	if o.ContextFn == nil {
		o.ContextFn = workspace.ExecuteContextAction
	}
	if o.DocumentFn == nil {
		o.DocumentFn = func(projectID string, path string) (*workspacetypes.Document, error) {
			return workspace.GetDocument(projectID, path)
		}
	}
	if o.Streamer == nil {
		o.Streamer = func(string, string) {}
	}
}

// RunTurn executes one turn sequence: call the model, extract exactly one
// action, auto-chain read-only actions locally, and map the final action
// onto proposals for external approval. State is updated in place only on
// success; a provider failure leaves it untouched.
func RunTurn(ctx context.Context, opts Options, state *TaskState, userMessage string) (*Result, error) {
	opts.defaults()

	system := llm.SystemPromptForMode(opts.Mode)
	if projectContext, err := workspaceContext(opts.ProjectID); err == nil && projectContext != "" {
		system = system + "\n\n" + projectContext
	}

	working := state.clone()
	working.Messages = append(working.Messages, llmtypes.Message{
		Role:    llmtypes.RoleUser,
		Content: userMessage,
	})

	chained := 0
	sequenceFallbacks := 0

	for {
		if working.Turns >= opts.MaxTurns {
			return nil, fmt.Errorf("%w after %d turns", ErrTurnLimit, working.Turns)
		}
		working.Turns++

		opts.Streamer("status", "calling provider")
		raw, err := opts.CallFn(ctx, opts.Provider, system, working.Messages, providerTimeout)
		if err != nil {
			return nil, fmt.Errorf("provider call failed: %w", err)
		}
		opts.Streamer("delta", raw)

		action, err := llm.ExtractAction(raw)
		if err != nil {
			if !llm.IsRecoverable(err) {
				return nil, err
			}
			if sequenceFallbacks >= 1 || working.Fallbacks >= 1 {
				return nil, fmt.Errorf("%w: %v", ErrProtocolExhausted, err)
			}
			sequenceFallbacks++
			working.Fallbacks++
			working.Messages = append(working.Messages, llmtypes.Message{
				Role:    llmtypes.RoleAssistant,
				Content: raw,
			})
			logger.Infof("falling back after unusable model response: %v", err)

			result := fallbackResult(raw, err)
			*state = working
			return result, nil
		}

		working.Messages = append(working.Messages, llmtypes.Message{
			Role:    llmtypes.RoleAssistant,
			Content: action.Raw,
		})

		if action.IsReadOnly() && opts.AutoChain && chained < autoChainLimit {
			chained++
			opts.Streamer("status", fmt.Sprintf("executing %s", action.Name))

			toolResult, err := opts.ContextFn(opts.ProjectID, *action)
			if err != nil {
				toolResult = fmt.Sprintf(`{"error":%q}`, err.Error())
			}
			working.Messages = append(working.Messages, llmtypes.Message{
				Role:    llmtypes.RoleUser,
				Content: fmt.Sprintf("%s %s %s", llm.ToolResultPrefix, action.Name, toolResult),
			})
			continue
		}

		result, err := mapAction(opts, *action, raw)
		if err != nil {
			return nil, err
		}

		*state = working
		return result, nil
	}
}

func (s *TaskState) clone() TaskState {
	out := *s
	out.Messages = append([]llmtypes.Message(nil), s.Messages...)
	return out
}

func workspaceContext(projectID string) (string, error) {
	if projectID == "" {
		return "", nil
	}
	return workspace.BuildProjectContext(projectID)
}
