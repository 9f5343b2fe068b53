package vision

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/menu-cli/internal/model"
	"github.com/sells-group/menu-cli/internal/resilience"
	"github.com/sells-group/menu-cli/pkg/anthropic"
	anthropicmocks "github.com/sells-group/menu-cli/pkg/anthropic/mocks"
	"github.com/sells-group/menu-cli/pkg/openai"
	openaimocks "github.com/sells-group/menu-cli/pkg/openai/mocks"
)

func TestAnthropicCompleter_Complete(t *testing.T) {
	client := anthropicmocks.NewMockClient(t)
	client.On("CreateMessage", mock.Anything, mock.MatchedBy(func(req anthropic.MessageRequest) bool {
		return req.Model == "claude-haiku-4-5-20251001" &&
			req.MaxTokens == 1000 &&
			len(req.System) == 1 && req.System[0].Text == "sys" &&
			len(req.Messages) == 1 &&
			req.Messages[0].Content == "is it a menu?" &&
			len(req.Messages[0].ImageURLs) == 1 &&
			req.Temperature != nil && *req.Temperature == 0
	})).Return(&anthropic.MessageResponse{
		Model:   "claude-haiku-4-5-20251001",
		Content: []anthropic.ContentBlock{{Type: "text", Text: `{"is_menu":true}`}},
		Usage:   anthropic.TokenUsage{InputTokens: 100, CacheReadInputTokens: 50, OutputTokens: 20},
	}, nil)

	resp, err := NewAnthropicCompleter(client).Complete(context.Background(), Request{
		Stage:     model.StageClassify,
		Model:     "claude-haiku-4-5-20251001",
		System:    "sys",
		Prompt:    "is it a menu?",
		ImageURL:  "https://img/p/1",
		MaxTokens: 1000,
	})
	require.NoError(t, err)
	assert.Equal(t, `{"is_menu":true}`, resp.Text)
	assert.Equal(t, int64(150), resp.InputTokens)
	assert.Equal(t, int64(20), resp.OutputTokens)
}

func TestAnthropicCompleter_FallsBackToRequestModel(t *testing.T) {
	client := anthropicmocks.NewMockClient(t)
	client.On("CreateMessage", mock.Anything, mock.Anything).Return(&anthropic.MessageResponse{}, nil)

	resp, err := NewAnthropicCompleter(client).Complete(context.Background(), Request{Model: "m"})
	require.NoError(t, err)
	assert.Equal(t, "m", resp.Model)
}

func TestAnthropicCompleter_ClassifiesAPIErrors(t *testing.T) {
	client := anthropicmocks.NewMockClient(t)
	client.On("CreateMessage", mock.Anything, mock.Anything).
		Return(nil, &anthropicsdk.Error{
			StatusCode: http.StatusTooManyRequests,
			Request:    httptest.NewRequest(http.MethodPost, "https://api.anthropic.com/v1/messages", nil),
			Response:   &http.Response{StatusCode: http.StatusTooManyRequests},
		})

	_, err := NewAnthropicCompleter(client).Complete(context.Background(), Request{Model: "m"})
	require.Error(t, err)
	assert.True(t, resilience.IsRateLimited(err))
}

func TestOpenAICompleter_Complete(t *testing.T) {
	client := openaimocks.NewMockClient(t)
	client.On("CreateChatCompletion", mock.Anything, mock.MatchedBy(func(req openai.ChatRequest) bool {
		return req.Model == "gpt-4.1" && req.JSONMode && req.System == "sys" &&
			len(req.ImageURLs) == 0 && req.MaxTokens == 3000
	})).Return(&openai.ChatResponse{
		Model:   "gpt-4.1-2025-04-14",
		Content: `{"menu_items":[]}`,
		Usage:   openai.TokenUsage{PromptTokens: 500, CompletionTokens: 40},
	}, nil)

	resp, err := NewOpenAICompleter(client).Complete(context.Background(), Request{
		Stage:     model.StageAggregate,
		Model:     "gpt-4.1",
		System:    "sys",
		Prompt:    "merge",
		MaxTokens: 3000,
	})
	require.NoError(t, err)
	assert.Equal(t, "gpt-4.1-2025-04-14", resp.Model)
	assert.Equal(t, int64(500), resp.InputTokens)
	assert.Equal(t, int64(40), resp.OutputTokens)
}

func TestOpenAICompleter_PassesImage(t *testing.T) {
	client := openaimocks.NewMockClient(t)
	client.On("CreateChatCompletion", mock.Anything, mock.MatchedBy(func(req openai.ChatRequest) bool {
		return len(req.ImageURLs) == 1 && req.ImageURLs[0] == "https://img/p/9"
	})).Return(&openai.ChatResponse{Content: "{}"}, nil)

	_, err := NewOpenAICompleter(client).Complete(context.Background(), Request{Model: "gpt-4.1", ImageURL: "https://img/p/9"})
	require.NoError(t, err)
}

func TestOpenAICompleter_Error(t *testing.T) {
	client := openaimocks.NewMockClient(t)
	client.On("CreateChatCompletion", mock.Anything, mock.Anything).Return(nil, errors.New("dial tcp: refused"))

	_, err := NewOpenAICompleter(client).Complete(context.Background(), Request{Model: "gpt-4.1"})
	assert.Error(t, err)
}

// scriptedCompleter returns the queued errors in order, then succeeds.
type scriptedCompleter struct {
	errs  []error
	calls int
}

func (s *scriptedCompleter) Complete(context.Context, Request) (*Response, error) {
	s.calls++
	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]
		return nil, err
	}
	return &Response{Text: "{}"}, nil
}

func TestRateLimited_AdjustsLimiter(t *testing.T) {
	next := &scriptedCompleter{errs: []error{
		resilience.NewTransientError(errors.New("slow down"), http.StatusTooManyRequests),
	}}
	lim := NewAdaptiveLimiter(1000, 10)
	rl := NewRateLimited(next, lim, nil)

	_, err := rl.Complete(context.Background(), Request{})
	require.Error(t, err)
	assert.InDelta(t, 500.0, float64(lim.Limit()), 0.1)

	_, err = rl.Complete(context.Background(), Request{})
	require.NoError(t, err)
	assert.InDelta(t, 600.0, float64(lim.Limit()), 0.1)
}

func TestRateLimited_BreakerOpens(t *testing.T) {
	boom := errors.New("provider down")
	next := &scriptedCompleter{errs: []error{boom, boom, boom}}
	cfg := resilience.NewCircuitConfig("vision", 2, 60)
	cfg.ShouldTrip = TripOnProviderFailure
	rl := NewRateLimited(next, nil, resilience.NewCircuitBreaker(cfg))

	for range 2 {
		_, err := rl.Complete(context.Background(), Request{})
		require.ErrorIs(t, err, boom)
	}

	_, err := rl.Complete(context.Background(), Request{})
	require.ErrorIs(t, err, resilience.ErrCircuitOpen)
	assert.Equal(t, 2, next.calls)
}

func TestRateLimited_NoGuards(t *testing.T) {
	next := &scriptedCompleter{}
	resp, err := NewRateLimited(next, nil, nil).Complete(context.Background(), Request{})
	require.NoError(t, err)
	assert.Equal(t, "{}", resp.Text)
}

func TestRateLimited_WaitCancelled(t *testing.T) {
	next := &scriptedCompleter{}
	rl := NewRateLimited(next, NewAdaptiveLimiter(0.001, 0), nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := rl.Complete(ctx, Request{})
	require.Error(t, err)
	assert.Zero(t, next.calls)
}

func TestTripOnProviderFailure(t *testing.T) {
	assert.False(t, TripOnProviderFailure(context.Canceled))
	assert.True(t, TripOnProviderFailure(context.DeadlineExceeded))
	assert.True(t, TripOnProviderFailure(errors.New("500")))
}
