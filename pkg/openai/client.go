// Package openai wraps the official openai-go SDK behind a narrow
// chat-completion interface with image URL inputs.
package openai

import (
	"context"

	sdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
	"github.com/rotisserie/eris"
)

// Client defines the OpenAI API operations used by the menu pipeline.
type Client interface {
	CreateChatCompletion(ctx context.Context, req ChatRequest) (*ChatResponse, error)
}

// ChatRequest is a single-turn chat request: a system prompt and one user
// message that may carry image URLs.
type ChatRequest struct {
	Model       string
	System      string
	Prompt      string
	ImageURLs   []string
	MaxTokens   int64
	Temperature *float64
	JSONMode    bool
}

// ChatResponse is our own response type from CreateChatCompletion.
type ChatResponse struct {
	ID           string
	Model        string
	Content      string
	FinishReason string
	Usage        TokenUsage
}

// TokenUsage tracks token consumption.
type TokenUsage struct {
	PromptTokens     int64
	CompletionTokens int64
}

type sdkClient struct {
	client sdk.Client
}

// NewClient creates a new OpenAI client backed by the SDK. An empty baseURL
// keeps the SDK default.
func NewClient(apiKey, baseURL string) Client {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &sdkClient{client: sdk.NewClient(opts...)}
}

func (c *sdkClient) CreateChatCompletion(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	params := sdk.ChatCompletionNewParams{
		Model:    sdk.ChatModel(req.Model),
		Messages: toSDKMessages(req),
	}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = sdk.Int(req.MaxTokens)
	}
	if req.Temperature != nil {
		params.Temperature = sdk.Float(*req.Temperature)
	}
	if req.JSONMode {
		params.ResponseFormat = sdk.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		}
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, eris.Wrap(err, "openai: create chat completion")
	}
	if len(resp.Choices) == 0 {
		return nil, eris.New("openai: create chat completion: no choices returned")
	}

	return &ChatResponse{
		ID:           resp.ID,
		Model:        resp.Model,
		Content:      resp.Choices[0].Message.Content,
		FinishReason: resp.Choices[0].FinishReason,
		Usage: TokenUsage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
		},
	}, nil
}

func toSDKMessages(req ChatRequest) []sdk.ChatCompletionMessageParamUnion {
	msgs := make([]sdk.ChatCompletionMessageParamUnion, 0, 2)
	if req.System != "" {
		msgs = append(msgs, sdk.SystemMessage(req.System))
	}

	if len(req.ImageURLs) == 0 {
		return append(msgs, sdk.UserMessage(req.Prompt))
	}

	parts := make([]sdk.ChatCompletionContentPartUnionParam, 0, len(req.ImageURLs)+1)
	parts = append(parts, sdk.TextContentPart(req.Prompt))
	for _, u := range req.ImageURLs {
		parts = append(parts, sdk.ImageContentPart(sdk.ChatCompletionContentPartImageImageURLParam{
			URL:    u,
			Detail: "high",
		}))
	}
	return append(msgs, sdk.UserMessage(parts))
}
