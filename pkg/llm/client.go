package llm

import (
	"context"
	"strings"
	"time"

	"github.com/stagehand-dev/stagehand/pkg/llm/types"
	"github.com/stagehand-dev/stagehand/pkg/logger"
	"github.com/stagehand-dev/stagehand/pkg/param"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	ProviderAnthropic  = "anthropic"
	ProviderOpenRouter = "openrouter"
	ProviderGroq       = "groq"
	ProviderOllama     = "ollama"

	DefaultModel           = "claude-sonnet-4-5-20250929"
	DefaultOpenRouterModel = "anthropic/claude-sonnet-4.5"

	defaultMaxTokens = 8192
	maxAttempts      = 3
	backoffBase      = 500 * time.Millisecond
)

// 5 requests per second with burst of 10, shared across all providers
var providerRateLimiter = rate.NewLimiter(rate.Every(200*time.Millisecond), 10)

// ProviderConfig selects the backend for one call. APIKey and BaseURL
// override the process-wide params when set.
type ProviderConfig struct {
	Name    string `json:"name"`
	APIKey  string `json:"apiKey,omitempty"`
	BaseURL string `json:"baseUrl,omitempty"`
	Model   string `json:"model,omitempty"`
}

// Resolve fills unset fields from params. A model id containing a slash is
// routed to OpenRouter, matching how model ids are written there.
func (c ProviderConfig) Resolve() ProviderConfig {
	out := c
	if out.Name == "" {
		out.Name = param.Get().DefaultProvider
	}
	if out.Model == "" {
		out.Model = param.Get().DefaultModel
	}
	if out.Name == "" {
		if strings.Contains(out.Model, "/") {
			out.Name = ProviderOpenRouter
		} else {
			out.Name = ProviderAnthropic
		}
	}
	if out.Model == "" {
		if out.Name == ProviderOpenRouter {
			out.Model = DefaultOpenRouterModel
		} else {
			out.Model = DefaultModel
		}
	}
	return out
}

type callFn func(ctx context.Context, cfg ProviderConfig, system string, messages []types.Message) (string, error)

// Call sends a chat-completion request to the configured backend and
// returns the single text blob it produced. Retries are applied only to
// timeout/5xx class failures; auth and validation errors fail immediately.
// Adapters hold no state across calls.
func Call(ctx context.Context, cfg ProviderConfig, system string, messages []types.Message, timeout time.Duration) (string, error) {
	cfg = cfg.Resolve()

	var fn callFn
	switch cfg.Name {
	case ProviderOpenRouter:
		fn = callOpenRouterChat
	case ProviderGroq:
		fn = callGroq
	case ProviderOllama:
		fn = callOllama
	default:
		fn = callAnthropic
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := providerRateLimiter.Wait(ctx); err != nil {
			return "", err
		}

		callCtx := ctx
		var cancel context.CancelFunc
		if timeout > 0 {
			callCtx, cancel = context.WithTimeout(ctx, timeout)
		}
		text, err := fn(callCtx, cfg, system, messages)
		if cancel != nil {
			cancel()
		}
		if err == nil {
			if strings.TrimSpace(text) == "" {
				return "", ErrEmptyResponse
			}
			return text, nil
		}

		lastErr = err
		if !IsRetryable(err) || attempt == maxAttempts {
			break
		}
		if ctx.Err() != nil {
			break
		}

		wait := backoffBase << (attempt - 1)
		logger.Warn("provider call failed, retrying",
			zap.String("provider", cfg.Name),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", wait),
			zap.Error(err))

		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	return "", lastErr
}
