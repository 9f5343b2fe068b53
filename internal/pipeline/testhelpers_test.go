package pipeline

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/menu-cli/internal/model"
	"github.com/sells-group/menu-cli/internal/store"
)

func ptr[T any](v T) *T { return &v }

func price(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	s, err := store.NewSQLite(filepath.Join(t.TempDir(), "pipeline.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func seedRestaurant(t *testing.T, s store.Store, placeID string, status model.RestaurantStatus, photos ...string) *model.Restaurant {
	t.Helper()
	ctx := context.Background()
	r, err := s.CreateRestaurant(ctx, model.Restaurant{
		PlaceID:   placeID,
		Name:      "Restaurant " + placeID,
		Latitude:  40.7,
		Longitude: -74.0,
		Photos:    photos,
		Status:    model.StatusNew,
	})
	require.NoError(t, err)
	if status != model.StatusNew {
		require.NoError(t, s.UpdateStatus(ctx, placeID, status, ""))
		r.Status = status
	}
	return r
}

// scriptedVision is a deterministic stand-in for the vision collaborators.
// Photos absent from menus are classified as not-menu; photos in failClassify
// or failAnalyze error at that stage.
type scriptedVision struct {
	mu           sync.Mutex
	menus        map[string][]model.LineItem
	failClassify map[string]bool
	failAnalyze  map[string]bool
	failAggreg   bool
	classified   []string
	analyzed     []string
	aggregated   int
}

func newScriptedVision() *scriptedVision {
	return &scriptedVision{
		menus:        make(map[string][]model.LineItem),
		failClassify: make(map[string]bool),
		failAnalyze:  make(map[string]bool),
	}
}

func (v *scriptedVision) Classify(_ context.Context, photoURL string) (model.ClassificationResult, error) {
	v.mu.Lock()
	v.classified = append(v.classified, photoURL)
	v.mu.Unlock()

	usage := model.Usage{Model: "test-classify", InputTokens: 100, OutputTokens: 10, Cost: decimal.RequireFromString("0.001")}
	if v.failClassify[photoURL] {
		return model.ClassificationResult{PhotoURL: photoURL, Usage: usage}, eris.New("classify timeout")
	}
	_, isMenu := v.menus[photoURL]
	conf := model.ConfidenceLow
	if isMenu {
		conf = model.ConfidenceHigh
	}
	return model.ClassificationResult{PhotoURL: photoURL, IsMenu: isMenu, Confidence: conf, Usage: usage}, nil
}

func (v *scriptedVision) Analyze(_ context.Context, photoURL string, _ model.EntityContext) (*model.AnalysisResult, error) {
	v.mu.Lock()
	v.analyzed = append(v.analyzed, photoURL)
	v.mu.Unlock()

	usage := model.Usage{Model: "test-analyze", InputTokens: 1000, OutputTokens: 400, Cost: decimal.RequireFromString("0.01")}
	if v.failAnalyze[photoURL] {
		return &model.AnalysisResult{PhotoURL: photoURL, Usage: usage}, eris.New("analyze failed")
	}
	items := make([]model.LineItem, len(v.menus[photoURL]))
	for i, it := range v.menus[photoURL] {
		it.SourcePhoto = photoURL
		items[i] = it
	}
	return &model.AnalysisResult{PhotoURL: photoURL, Items: items, Usage: usage}, nil
}

func (v *scriptedVision) Aggregate(_ context.Context, items []model.LineItem, _ model.EntityContext) ([]model.MenuItem, model.Usage, error) {
	v.mu.Lock()
	v.aggregated++
	v.mu.Unlock()

	usage := model.Usage{Model: "test-aggregate", InputTokens: 500, OutputTokens: 300, Cost: decimal.RequireFromString("0.005")}
	if v.failAggreg {
		return nil, usage, eris.New("aggregation provider down")
	}
	return MergeLineItems(items, DefaultSimilarityThreshold), usage, nil
}

func (v *scriptedVision) calls() (classified, analyzed, aggregated int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.classified), len(v.analyzed), v.aggregated
}

func newScriptedProcessor(st store.Store, v *scriptedVision) *Processor {
	return NewProcessor(st, v, v, v, ProcessorConfig{ClassifyWorkers: 5, AnalyzeWorkers: 3})
}
