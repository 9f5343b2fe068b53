package vision

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/menu-cli/internal/cost"
	"github.com/sells-group/menu-cli/internal/model"
)

// fakeCompleter returns canned responses per stage and records requests.
type fakeCompleter struct {
	mu       sync.Mutex
	text     map[model.Stage]string
	err      error
	requests []Request
	delay    time.Duration
}

func (f *fakeCompleter) Complete(ctx context.Context, req Request) (*Response, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return &Response{
		Text:         f.text[req.Stage],
		Model:        req.Model,
		InputTokens:  1000,
		OutputTokens: 200,
	}, nil
}

func testModels() Models {
	return Models{Classify: "gpt-4.1-mini", Analyze: "gpt-4.1", Aggregate: "gpt-4.1"}
}

func newTestService(fc *fakeCompleter) *Service {
	return NewService(fc, testModels(), Timeouts{}, cost.NewCalculator(cost.DefaultRates()))
}

func ptr[T any](v T) *T { return &v }

func TestService_Classify(t *testing.T) {
	fc := &fakeCompleter{text: map[model.Stage]string{
		model.StageClassify: "```json\n{\"is_menu\": true, \"confidence_level\": \"High\", \"reasoning\": \"lists dishes\", \"image_type\": \"printed_menu\"}\n```",
	}}
	svc := newTestService(fc)

	res, err := svc.Classify(context.Background(), "https://img/p/1")
	require.NoError(t, err)
	assert.True(t, res.IsMenu)
	assert.True(t, res.Accepted())
	assert.Equal(t, model.ConfidenceHigh, res.Confidence)
	assert.Equal(t, "printed_menu", res.ImageType)
	assert.Equal(t, "gpt-4.1-mini", res.Usage.Model)
	assert.Equal(t, int64(1000), res.Usage.InputTokens)
	// 1000 * 0.40/1M + 200 * 1.60/1M = 0.00072
	assert.True(t, decimal.RequireFromString("0.00072").Equal(res.Usage.Cost), res.Usage.Cost.String())

	require.Len(t, fc.requests, 1)
	req := fc.requests[0]
	assert.Equal(t, "https://img/p/1", req.ImageURL)
	assert.Equal(t, int64(classifyMaxTokens), req.MaxTokens)
	assert.Equal(t, model.StageClassify, req.Stage)
}

func TestService_Classify_ConfidenceFallbackField(t *testing.T) {
	fc := &fakeCompleter{text: map[model.Stage]string{
		model.StageClassify: `{"is_menu": false, "confidence": "medium"}`,
	}}
	res, err := newTestService(fc).Classify(context.Background(), "u")
	require.NoError(t, err)
	assert.False(t, res.IsMenu)
	assert.Equal(t, model.ConfidenceMedium, res.Confidence)
}

func TestService_Classify_ParseErrorKeepsUsage(t *testing.T) {
	fc := &fakeCompleter{text: map[model.Stage]string{model.StageClassify: "I cannot tell."}}
	res, err := newTestService(fc).Classify(context.Background(), "u")
	require.Error(t, err)
	assert.Equal(t, "u", res.PhotoURL)
	assert.False(t, res.IsMenu)
	assert.Equal(t, int64(1000), res.Usage.InputTokens)
}

func TestService_Classify_ProviderError(t *testing.T) {
	fc := &fakeCompleter{err: errors.New("boom")}
	res, err := newTestService(fc).Classify(context.Background(), "u")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
	assert.Equal(t, model.ConfidenceLow, res.Confidence)
	assert.Zero(t, res.Usage.InputTokens)
}

func TestService_Classify_Timeout(t *testing.T) {
	fc := &fakeCompleter{delay: time.Second}
	svc := NewService(fc, testModels(), Timeouts{Classify: 20 * time.Millisecond}, nil)

	_, err := svc.Classify(context.Background(), "u")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestService_Analyze(t *testing.T) {
	fc := &fakeCompleter{text: map[model.Stage]string{model.StageAnalyze: `{
		"menu_items": [
			{"name": "Margherita", "price": "$14", "category": "Pizza", "description": "tomato, basil"},
			{"name": "", "price": 3},
			{"name": "Garlic Knots", "price": null, "calories": "320 kcal"}
		],
		"total_items": 3,
		"has_prices": false,
		"has_descriptions": false
	}`}}
	ectx := model.EntityContext{Name: "Tony's", Address: "1 Main St", Latitude: 40.1, Longitude: -73.2}

	res, err := newTestService(fc).Analyze(context.Background(), "https://img/p/2", ectx)
	require.NoError(t, err)
	require.Len(t, res.Items, 2)
	assert.Equal(t, "Margherita", res.Items[0].Name)
	assert.Equal(t, "14", res.Items[0].Price.String())
	assert.Equal(t, "pizza", *res.Items[0].Category)
	assert.Equal(t, "https://img/p/2", res.Items[0].SourcePhoto)
	assert.Nil(t, res.Items[1].Price)
	assert.Equal(t, 320, *res.Items[1].Calories)
	assert.True(t, res.HasPrices)
	assert.True(t, res.HasDescriptions)

	require.Len(t, fc.requests, 1)
	assert.Contains(t, fc.requests[0].Prompt, "Tony's")
	assert.Contains(t, fc.requests[0].Prompt, "1 Main St")
	assert.Equal(t, int64(analyzeMaxTokens), fc.requests[0].MaxTokens)
}

func TestService_Analyze_ParseError(t *testing.T) {
	fc := &fakeCompleter{text: map[model.Stage]string{model.StageAnalyze: "sorry"}}
	res, err := newTestService(fc).Analyze(context.Background(), "u", model.EntityContext{})
	require.Error(t, err)
	require.NotNil(t, res)
	assert.Empty(t, res.Items)
	assert.Equal(t, int64(200), res.Usage.OutputTokens)
}

func TestService_Aggregate(t *testing.T) {
	fc := &fakeCompleter{text: map[model.Stage]string{model.StageAggregate: `{
		"menu_items": [
			{"name": "Caesar Salad", "price": 11, "category": "salads", "allergens": ["dairy"], "source_photos": ["a", "b"]}
		],
		"total_items": 1,
		"categories": ["salads"],
		"notes": "merged duplicates"
	}`}}
	items := []model.LineItem{
		{Name: "Caesar Salad", Price: ptr(decimal.NewFromInt(10)), SourcePhoto: "a"},
		{Name: "Caesar salad", Price: ptr(decimal.NewFromInt(11)), SourcePhoto: "b"},
	}

	out, usage, err := newTestService(fc).Aggregate(context.Background(), items, model.EntityContext{Name: "Bistro"})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "Caesar Salad", out[0].Name)
	assert.Equal(t, []string{"dairy"}, out[0].Allergens)
	assert.Equal(t, []string{"a", "b"}, out[0].SourcePhotos)
	assert.Equal(t, "gpt-4.1", usage.Model)
	assert.True(t, usage.Cost.IsPositive())

	require.Len(t, fc.requests, 1)
	req := fc.requests[0]
	assert.Empty(t, req.ImageURL)
	assert.Contains(t, req.Prompt, "These 2 items")

	start := strings.Index(req.Prompt, "{")
	var sent struct {
		MenuItems []wireItem `json:"menu_items"`
	}
	require.NoError(t, json.Unmarshal([]byte(req.Prompt[start:]), &sent))
	require.Len(t, sent.MenuItems, 2)
	assert.Equal(t, "10.00", *sent.MenuItems[0].Price)
	assert.Equal(t, []string{"b"}, sent.MenuItems[1].SourcePhotos)
}

func TestService_Aggregate_EmptyInputNoCall(t *testing.T) {
	fc := &fakeCompleter{}
	out, usage, err := newTestService(fc).Aggregate(context.Background(), nil, model.EntityContext{})
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.Zero(t, usage.TotalTokens())
	assert.Empty(t, fc.requests)
}

func TestService_Aggregate_NoItemsIsError(t *testing.T) {
	fc := &fakeCompleter{text: map[model.Stage]string{model.StageAggregate: `{"menu_items": []}`}}
	_, usage, err := newTestService(fc).Aggregate(context.Background(),
		[]model.LineItem{{Name: "Soup"}}, model.EntityContext{})
	require.Error(t, err)
	assert.Equal(t, int64(1000), usage.InputTokens)
}

func TestService_Estimate(t *testing.T) {
	fc := &fakeCompleter{text: map[model.Stage]string{
		model.StageAggregate: `{"calories": 650, "protein": "35g", "carbs": 40, "fat": null, "confidence": "medium"}`,
	}}
	est, err := newTestService(fc).Estimate(context.Background(), "Chicken Burrito", "rice, beans")
	require.NoError(t, err)
	assert.Equal(t, "Chicken Burrito", est.Name)
	assert.Equal(t, 650, *est.Calories)
	assert.InDelta(t, 35.0, *est.Protein, 0.001)
	assert.Nil(t, est.Fat)
	assert.Equal(t, model.ConfidenceMedium, est.Confidence)
	assert.Contains(t, fc.requests[0].Prompt, "rice, beans")
	assert.Equal(t, int64(estimateMaxTokens), fc.requests[0].MaxTokens)
}

func TestService_Estimate_RequiresName(t *testing.T) {
	_, err := newTestService(&fakeCompleter{}).Estimate(context.Background(), "", "")
	assert.Error(t, err)
}

func TestService_NilResponse(t *testing.T) {
	svc := NewService(nilCompleter{}, testModels(), Timeouts{}, nil)
	_, err := svc.Classify(context.Background(), "u")
	assert.Error(t, err)
}

type nilCompleter struct{}

func (nilCompleter) Complete(context.Context, Request) (*Response, error) { return nil, nil }
