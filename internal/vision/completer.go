package vision

import (
	"context"
	"errors"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	openaisdk "github.com/openai/openai-go"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/menu-cli/internal/model"
	"github.com/sells-group/menu-cli/internal/resilience"
	"github.com/sells-group/menu-cli/pkg/anthropic"
	"github.com/sells-group/menu-cli/pkg/openai"
)

// Request is a single provider call: a stage prompt with at most one image.
type Request struct {
	Stage     model.Stage
	Model     string
	System    string
	Prompt    string
	ImageURL  string
	MaxTokens int64
}

// Response is the raw text answer plus token usage.
type Response struct {
	Text         string
	Model        string
	InputTokens  int64
	OutputTokens int64
}

// Completer sends one prompt to a vision-capable model.
type Completer interface {
	Complete(ctx context.Context, req Request) (*Response, error)
}

var zeroTemp = 0.0

// AnthropicCompleter adapts the anthropic client to Completer.
type AnthropicCompleter struct {
	client anthropic.Client
}

// NewAnthropicCompleter wraps an anthropic client.
func NewAnthropicCompleter(client anthropic.Client) *AnthropicCompleter {
	return &AnthropicCompleter{client: client}
}

// Complete implements Completer.
func (c *AnthropicCompleter) Complete(ctx context.Context, req Request) (*Response, error) {
	msg := anthropic.Message{Role: "user", Content: req.Prompt}
	if req.ImageURL != "" {
		msg.ImageURLs = []string{req.ImageURL}
	}

	resp, err := c.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:       req.Model,
		MaxTokens:   req.MaxTokens,
		System:      anthropic.BuildCachedSystemBlocks(req.System),
		Messages:    []anthropic.Message{msg},
		Temperature: &zeroTemp,
	})
	if err != nil {
		var apiErr *anthropicsdk.Error
		if errors.As(err, &apiErr) {
			return nil, resilience.ClassifyStatus(err, apiErr.StatusCode)
		}
		return nil, err
	}

	modelID := resp.Model
	if modelID == "" {
		modelID = req.Model
	}
	zap.L().Debug("vision: anthropic call complete",
		zap.String("stage", string(req.Stage)),
		zap.String("model", modelID),
		zap.Int64("input_tokens", resp.Usage.BillableInput()),
		zap.Int64("output_tokens", resp.Usage.OutputTokens),
	)
	return &Response{
		Text:         resp.Text(),
		Model:        modelID,
		InputTokens:  resp.Usage.BillableInput(),
		OutputTokens: resp.Usage.OutputTokens,
	}, nil
}

// OpenAICompleter adapts the openai client to Completer.
type OpenAICompleter struct {
	client openai.Client
}

// NewOpenAICompleter wraps an openai client.
func NewOpenAICompleter(client openai.Client) *OpenAICompleter {
	return &OpenAICompleter{client: client}
}

// Complete implements Completer. Every stage prompt asks for JSON, so JSON
// mode is always on.
func (c *OpenAICompleter) Complete(ctx context.Context, req Request) (*Response, error) {
	chat := openai.ChatRequest{
		Model:       req.Model,
		System:      req.System,
		Prompt:      req.Prompt,
		MaxTokens:   req.MaxTokens,
		Temperature: &zeroTemp,
		JSONMode:    true,
	}
	if req.ImageURL != "" {
		chat.ImageURLs = []string{req.ImageURL}
	}

	resp, err := c.client.CreateChatCompletion(ctx, chat)
	if err != nil {
		var apiErr *openaisdk.Error
		if errors.As(err, &apiErr) {
			return nil, resilience.ClassifyStatus(err, apiErr.StatusCode)
		}
		return nil, err
	}

	modelID := resp.Model
	if modelID == "" {
		modelID = req.Model
	}
	zap.L().Debug("vision: openai call complete",
		zap.String("stage", string(req.Stage)),
		zap.String("model", modelID),
		zap.Int64("input_tokens", resp.Usage.PromptTokens),
		zap.Int64("output_tokens", resp.Usage.CompletionTokens),
	)
	return &Response{
		Text:         resp.Content,
		Model:        modelID,
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
	}, nil
}

// RateLimited guards a Completer with an adaptive rate limiter and a
// circuit breaker. Either may be nil.
type RateLimited struct {
	next    Completer
	limiter *AdaptiveLimiter
	breaker *resilience.CircuitBreaker
}

// NewRateLimited wraps next.
func NewRateLimited(next Completer, limiter *AdaptiveLimiter, breaker *resilience.CircuitBreaker) *RateLimited {
	return &RateLimited{next: next, limiter: limiter, breaker: breaker}
}

// Complete implements Completer.
func (r *RateLimited) Complete(ctx context.Context, req Request) (*Response, error) {
	if r.limiter != nil {
		if err := r.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "vision: rate limit wait")
		}
	}

	call := func(ctx context.Context) (*Response, error) {
		return r.next.Complete(ctx, req)
	}

	var resp *Response
	var err error
	if r.breaker != nil {
		resp, err = resilience.ExecuteVal(ctx, r.breaker, call)
	} else {
		resp, err = call(ctx)
	}

	if r.limiter != nil {
		switch {
		case err == nil:
			r.limiter.OnSuccess()
		case resilience.IsRateLimited(err):
			r.limiter.OnRateLimit()
		}
	}
	return resp, err
}

// TripOnProviderFailure is the breaker predicate for vision calls. Caller
// cancellation does not count against the provider.
func TripOnProviderFailure(err error) bool {
	return !errors.Is(err, context.Canceled)
}
