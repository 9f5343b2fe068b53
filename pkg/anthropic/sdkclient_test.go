package anthropic

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestClient creates an sdkClient pointing at a local test server.
func newTestClient(baseURL string) *sdkClient {
	return &sdkClient{
		client: sdk.NewClient(
			option.WithAPIKey("test-key"),
			option.WithBaseURL(baseURL),
			option.WithMaxRetries(0),
		),
	}
}

func writeMessage(w http.ResponseWriter, id, text string) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{ //nolint:errcheck
		"id":   id,
		"type": "message",
		"role": "assistant",
		"content": []map[string]any{
			{"type": "text", "text": text},
		},
		"model":       "claude-haiku-4-5",
		"stop_reason": "end_turn",
		"usage": map[string]any{
			"input_tokens":                1200,
			"output_tokens":               80,
			"cache_creation_input_tokens": 0,
			"cache_read_input_tokens":     300,
		},
	})
}

func TestSDKClient_CreateMessage(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Contains(t, r.URL.Path, "/messages")
		writeMessage(w, "msg_test_001", `{"is_menu": true}`)
	}))
	defer ts.Close()

	client := newTestClient(ts.URL)
	resp, err := client.CreateMessage(context.Background(), MessageRequest{
		Model:     "claude-haiku-4-5",
		MaxTokens: 1000,
		Messages:  []Message{{Role: "user", Content: "Is this a menu?"}},
	})
	require.NoError(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, "msg_test_001", resp.ID)
	assert.Equal(t, "claude-haiku-4-5", resp.Model)
	assert.Equal(t, "end_turn", resp.StopReason)
	assert.Equal(t, `{"is_menu": true}`, resp.Text())
	assert.Equal(t, int64(1200), resp.Usage.InputTokens)
	assert.Equal(t, int64(80), resp.Usage.OutputTokens)
	assert.Equal(t, int64(1500), resp.Usage.BillableInput())
}

func TestSDKClient_CreateMessage_SendsImageBlocks(t *testing.T) {
	var body map[string]any
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(raw, &body))
		writeMessage(w, "msg_img", "ok")
	}))
	defer ts.Close()

	client := newTestClient(ts.URL)
	temp := 0.0
	_, err := client.CreateMessage(context.Background(), MessageRequest{
		Model:       "claude-sonnet-4-5",
		MaxTokens:   5000,
		System:      BuildCachedSystemBlocks("You extract menu items."),
		Temperature: &temp,
		Messages: []Message{{
			Role:      "user",
			Content:   "Extract every item.",
			ImageURLs: []string{"https://lh3.googleusercontent.com/p/menu1"},
		}},
	})
	require.NoError(t, err)

	msgs := body["messages"].([]any)
	require.Len(t, msgs, 1)
	content := msgs[0].(map[string]any)["content"].([]any)
	require.Len(t, content, 2)

	img := content[0].(map[string]any)
	assert.Equal(t, "image", img["type"])
	src := img["source"].(map[string]any)
	assert.Equal(t, "url", src["type"])
	assert.Equal(t, "https://lh3.googleusercontent.com/p/menu1", src["url"])

	txt := content[1].(map[string]any)
	assert.Equal(t, "text", txt["type"])
	assert.Equal(t, "Extract every item.", txt["text"])

	system := body["system"].([]any)
	require.Len(t, system, 1)
	assert.Contains(t, system[0].(map[string]any), "cache_control")
}

func TestSDKClient_CreateMessage_Error(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]any{ //nolint:errcheck
			"type": "error",
			"error": map[string]any{
				"type":    "api_error",
				"message": "Internal server error",
			},
		})
	}))
	defer ts.Close()

	client := newTestClient(ts.URL)
	_, err := client.CreateMessage(context.Background(), MessageRequest{
		Model:     "claude-haiku-4-5",
		MaxTokens: 1000,
		Messages:  []Message{{Role: "user", Content: "Hello"}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "anthropic: create message")
}

func TestMessageResponse_Text(t *testing.T) {
	var nilResp *MessageResponse
	assert.Empty(t, nilResp.Text())

	resp := &MessageResponse{Content: []ContentBlock{
		{Type: "text", Text: "first"},
		{Type: "tool_use"},
		{Type: "text", Text: "second"},
	}}
	assert.Equal(t, "first\nsecond", resp.Text())
}

func TestBuildCachedSystemBlocks(t *testing.T) {
	blocks := BuildCachedSystemBlocks("prompt")
	require.Len(t, blocks, 1)
	assert.Equal(t, "prompt", blocks[0].Text)
	require.NotNil(t, blocks[0].CacheControl)
	assert.Equal(t, "5m", blocks[0].CacheControl.TTL)
}

func TestNewClient(t *testing.T) {
	assert.NotNil(t, NewClient("key", ""))
	assert.NotNil(t, NewClient("key", "http://localhost:1"))
}
