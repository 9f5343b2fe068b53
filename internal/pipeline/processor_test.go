package pipeline

import (
	"context"
	"errors"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/menu-cli/internal/model"
	"github.com/sells-group/menu-cli/internal/resilience"
	"github.com/sells-group/menu-cli/internal/store"
)

func fastRetry() resilience.RetryConfig {
	return resilience.RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     time.Millisecond,
	}
}

func TestProcessor_ZeroPhotosEndsInError(t *testing.T) {
	st := newTestStore(t)
	r := seedRestaurant(t, st, "empty", model.StatusProcessing)
	v := newScriptedVision()

	report, err := newScriptedProcessor(st, v).Process(context.Background(), *r)
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrNoPhotos))
	assert.Equal(t, model.StatusError, report.Status)

	classified, analyzed, aggregated := v.calls()
	assert.Zero(t, classified)
	assert.Zero(t, analyzed)
	assert.Zero(t, aggregated)

	got, err := st.GetRestaurant(context.Background(), "empty")
	require.NoError(t, err)
	assert.Equal(t, model.StatusError, got.Status)
	assert.Equal(t, "no images available", got.StatusError)

	q, err := st.GetQueueEntry(context.Background(), r.ID, model.TaskMenuExtraction)
	require.NoError(t, err)
	assert.Equal(t, model.StatusError, q.Status)
	assert.Equal(t, model.PhaseError, q.Phase)
	assert.Equal(t, 1, q.Attempts)
}

func TestProcessor_AllNotMenuFinishesEmpty(t *testing.T) {
	st := newTestStore(t)
	r := seedRestaurant(t, st, "no-menu", model.StatusProcessing, "food1", "food2", "interior")
	v := newScriptedVision()

	report, err := newScriptedProcessor(st, v).Process(context.Background(), *r)
	require.NoError(t, err)
	assert.Equal(t, model.StatusFinished, report.Status)
	assert.Equal(t, 3, report.PhotosTotal)
	assert.Zero(t, report.MenuPhotos)
	assert.Zero(t, report.FinalItems)

	classified, analyzed, aggregated := v.calls()
	assert.Equal(t, 3, classified)
	assert.Zero(t, analyzed)
	assert.Zero(t, aggregated)

	got, err := st.GetRestaurant(context.Background(), "no-menu")
	require.NoError(t, err)
	assert.Equal(t, model.StatusFinished, got.Status)
	assert.NotNil(t, got.ProcessedAt)

	items, err := st.ListMenuItems(context.Background(), r.ID)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestProcessor_ConcreteScenario(t *testing.T) {
	st := newTestStore(t)
	r := seedRestaurant(t, st, "E", model.StatusProcessing, "p1", "p2", "p3")

	v := newScriptedVision()
	v.menus["p1"] = []model.LineItem{
		{Name: "Margherita Pizza", Price: price("12.00"), Category: ptr("pizza")},
		{Name: "Caesar Salad", Price: price("9.00")},
	}
	v.menus["p3"] = []model.LineItem{
		{Name: "Caesar Salads", Price: price("9.50"), Description: ptr("romaine, parmesan")},
	}

	report, err := newScriptedProcessor(st, v).Process(context.Background(), *r)
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"p1", "p2", "p3"}, v.classified)
	assert.ElementsMatch(t, []string{"p1", "p3"}, v.analyzed)
	assert.Equal(t, 1, v.aggregated)

	assert.Equal(t, 2, report.MenuPhotos)
	assert.Equal(t, 2, report.AnalyzedPhotos)
	assert.Equal(t, 3, report.RawItems)
	assert.Equal(t, 2, report.FinalItems)
	assert.False(t, report.FailedOpen)
	assert.Equal(t, model.StatusFinished, report.Status)

	items, err := st.ListMenuItems(context.Background(), r.ID)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.LessOrEqual(t, len(items), 3)

	salad := items[1]
	assert.Equal(t, "Caesar Salad", salad.Name)
	assert.Equal(t, "9.5", salad.Price.String())
	assert.Equal(t, "romaine, parmesan", *salad.Description)
	assert.ElementsMatch(t, []string{"p1", "p3"}, salad.SourcePhotos)

	got, err := st.GetRestaurant(context.Background(), "E")
	require.NoError(t, err)
	assert.Equal(t, model.StatusFinished, got.Status)

	summary, err := st.CostSummary(context.Background(), store.CostFilter{RestaurantID: r.ID})
	require.NoError(t, err)
	calls := map[model.Stage]int{}
	for _, s := range summary {
		calls[s.Stage] = s.Calls
	}
	assert.Equal(t, 3, calls[model.StageClassify])
	assert.Equal(t, 2, calls[model.StageAnalyze])
	assert.Equal(t, 1, calls[model.StageAggregate])
}

func TestProcessor_ClassificationFailureIsolated(t *testing.T) {
	st := newTestStore(t)
	dishes := map[string]string{"a": "Ramen", "b": "Udon", "c": "Soba", "d": "Tempura", "e": "Sushi"}
	photos := []string{"a", "b", "c", "d", "e"}
	r := seedRestaurant(t, st, "iso", model.StatusProcessing, photos...)

	v := newScriptedVision()
	for _, p := range photos {
		v.menus[p] = []model.LineItem{{Name: dishes[p]}}
	}
	v.failClassify["c"] = true

	report, err := newScriptedProcessor(st, v).Process(context.Background(), *r)
	require.NoError(t, err)
	assert.Equal(t, 4, report.MenuPhotos)
	assert.ElementsMatch(t, []string{"a", "b", "d", "e"}, v.analyzed)
	assert.Equal(t, 4, report.FinalItems)

	summary, err := st.CostSummary(context.Background(), store.CostFilter{RestaurantID: r.ID})
	require.NoError(t, err)
	for _, s := range summary {
		if s.Stage == model.StageClassify {
			assert.Equal(t, 5, s.Calls)
			assert.Equal(t, 1, s.Failures)
		}
	}
}

func TestProcessor_AnalysisFailureExcluded(t *testing.T) {
	st := newTestStore(t)
	r := seedRestaurant(t, st, "partial", model.StatusProcessing, "m1", "m2")

	v := newScriptedVision()
	v.menus["m1"] = []model.LineItem{{Name: "Ramen"}}
	v.menus["m2"] = []model.LineItem{{Name: "Gyoza"}}
	v.failAnalyze["m2"] = true

	report, err := newScriptedProcessor(st, v).Process(context.Background(), *r)
	require.NoError(t, err)
	assert.Equal(t, 1, report.AnalyzedPhotos)
	assert.Equal(t, 1, report.FinalItems)
}

func TestProcessor_AllExtractionsFailedKeepsStoredMenu(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	r := seedRestaurant(t, st, "outage", model.StatusProcessing, "p1", "p2")
	require.NoError(t, st.ReplaceMenuItems(ctx, r.ID, []model.MenuItem{{RestaurantID: r.ID, Name: "Old Burger"}}))

	v := newScriptedVision()
	v.menus["p1"] = []model.LineItem{{Name: "New Burger"}}
	v.menus["p2"] = []model.LineItem{{Name: "Fries"}}
	v.failAnalyze["p1"] = true
	v.failAnalyze["p2"] = true

	report, err := newScriptedProcessor(st, v).Process(ctx, *r)
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrExtractionFailed))
	assert.Equal(t, model.StatusError, report.Status)
	assert.Equal(t, 2, report.MenuPhotos)
	assert.Zero(t, report.AnalyzedPhotos)

	_, _, aggregated := v.calls()
	assert.Zero(t, aggregated)

	got, err := st.GetRestaurant(ctx, "outage")
	require.NoError(t, err)
	assert.Equal(t, model.StatusError, got.Status)
	assert.Equal(t, ErrExtractionFailed.Error(), got.StatusError)
	assert.True(t, got.Status.Claimable(), "an outage leaves the restaurant re-triggerable")

	items, err := st.ListMenuItems(ctx, r.ID)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Old Burger", items[0].Name)
}

func TestProcessor_AllClassificationsFailedKeepsStoredMenu(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	r := seedRestaurant(t, st, "dark", model.StatusProcessing, "p1", "p2", "p3")
	require.NoError(t, st.ReplaceMenuItems(ctx, r.ID, []model.MenuItem{{RestaurantID: r.ID, Name: "Old Burger"}}))

	v := newScriptedVision()
	for _, p := range []string{"p1", "p2", "p3"} {
		v.menus[p] = []model.LineItem{{Name: "Burger"}}
		v.failClassify[p] = true
	}

	report, err := newScriptedProcessor(st, v).Process(ctx, *r)
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrClassificationFailed))
	assert.Equal(t, model.StatusError, report.Status)

	_, analyzed, _ := v.calls()
	assert.Zero(t, analyzed)

	got, err := st.GetRestaurant(ctx, "dark")
	require.NoError(t, err)
	assert.Equal(t, model.StatusError, got.Status)

	items, err := st.ListMenuItems(ctx, r.ID)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Old Burger", items[0].Name)
}

func TestProcessor_EmptyExtractionFinishes(t *testing.T) {
	st := newTestStore(t)
	r := seedRestaurant(t, st, "blank", model.StatusProcessing, "m1")

	v := newScriptedVision()
	v.menus["m1"] = []model.LineItem{}

	report, err := newScriptedProcessor(st, v).Process(context.Background(), *r)
	require.NoError(t, err)
	assert.Equal(t, model.StatusFinished, report.Status)
	assert.Equal(t, 1, report.AnalyzedPhotos)
	assert.Zero(t, report.FinalItems)
}

func TestProcessor_FailOpenAggregation(t *testing.T) {
	st := newTestStore(t)
	r := seedRestaurant(t, st, "failopen", model.StatusProcessing, "m1", "m2")

	v := newScriptedVision()
	v.menus["m1"] = []model.LineItem{{Name: "Tacos"}, {Name: "Nachos"}}
	v.menus["m2"] = []model.LineItem{{Name: "Taco"}}
	v.failAggreg = true

	report, err := newScriptedProcessor(st, v).Process(context.Background(), *r)
	require.NoError(t, err)
	assert.True(t, report.FailedOpen)
	assert.Equal(t, 3, report.FinalItems)

	items, err := st.ListMenuItems(context.Background(), r.ID)
	require.NoError(t, err)
	assert.Len(t, items, 3)
}

func TestProcessor_Idempotent(t *testing.T) {
	st := newTestStore(t)
	r := seedRestaurant(t, st, "idem", model.StatusProcessing, "m1", "m2", "x")

	v := newScriptedVision()
	v.menus["m1"] = []model.LineItem{{Name: "Burger", Price: price("10")}, {Name: "Fries"}}
	v.menus["m2"] = []model.LineItem{{Name: "Burgers", Price: price("11")}, {Name: "Milkshake"}}
	proc := newScriptedProcessor(st, v)

	names := func() []string {
		items, err := st.ListMenuItems(context.Background(), r.ID)
		require.NoError(t, err)
		out := make([]string, len(items))
		for i, it := range items {
			out[i] = it.Name
			if it.Price != nil {
				out[i] += "@" + it.Price.String()
			}
		}
		sort.Strings(out)
		return out
	}

	_, err := proc.Process(context.Background(), *r)
	require.NoError(t, err)
	first := names()

	require.NoError(t, st.UpdateStatus(context.Background(), "idem", model.StatusProcessing, ""))
	_, err = proc.Process(context.Background(), *r)
	require.NoError(t, err)
	second := names()

	assert.Equal(t, first, second)
	assert.Len(t, second, 3)

	q, err := st.GetQueueEntry(context.Background(), r.ID, model.TaskMenuExtraction)
	require.NoError(t, err)
	assert.Equal(t, 2, q.Attempts)
	assert.Equal(t, model.StatusFinished, q.Status)
}

func TestProcessor_MaxPhotosHonoursPriority(t *testing.T) {
	st := newTestStore(t)
	r := seedRestaurant(t, st, "budget", model.StatusProcessing,
		"https://x/other.jpg",
		"https://lh3.googleusercontent.com/p/menu",
	)
	v := newScriptedVision()
	v.menus["https://lh3.googleusercontent.com/p/menu"] = []model.LineItem{{Name: "Bagel"}}

	proc := NewProcessor(st, v, v, v, ProcessorConfig{MaxPhotos: 1, Priority: testPriority(t)})
	report, err := proc.Process(context.Background(), *r)
	require.NoError(t, err)
	assert.Equal(t, 1, report.PhotosTotal)
	assert.Equal(t, []string{"https://lh3.googleusercontent.com/p/menu"}, v.classified)
	assert.Equal(t, 1, report.FinalItems)
}

func TestProcessor_CancelledRunRecordsError(t *testing.T) {
	st := newTestStore(t)
	r := seedRestaurant(t, st, "cancel", model.StatusProcessing, "m1")
	v := newScriptedVision()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := newScriptedProcessor(st, v).Process(ctx, *r)
	require.Error(t, err)
	assert.Equal(t, model.StatusError, report.Status)

	got, gerr := st.GetRestaurant(context.Background(), "cancel")
	require.NoError(t, gerr)
	assert.Equal(t, model.StatusError, got.Status)
}

func TestProcessor_PersistFailureEndsInError(t *testing.T) {
	ms := new(mockStore)
	r := model.Restaurant{ID: "rid", PlaceID: "pid", Status: model.StatusProcessing}
	v := newScriptedVision()
	v.menus["m1"] = []model.LineItem{{Name: "Pho"}}

	ms.On("BeginQueueEntry", mock.Anything, "rid", model.TaskMenuExtraction).
		Return(&model.QueueEntry{ID: "q1", RestaurantID: "rid", TaskType: model.TaskMenuExtraction, Attempts: 1}, nil)
	ms.On("UpdateQueueEntry", mock.Anything, mock.Anything).Return(nil)
	ms.On("ListPhotos", mock.Anything, "pid").Return([]string{"m1"}, nil)
	ms.On("InsertProcessingLogs", mock.Anything, mock.Anything).Return(nil)
	ms.On("ReplaceMenuItems", mock.Anything, "rid", mock.Anything).Return(errors.New("tx aborted"))
	ms.On("TouchProcessing", mock.Anything, []string{"pid"}).Return(int64(1), nil)
	ms.On("UpdateStatus", mock.Anything, "pid", model.StatusError, mock.MatchedBy(func(msg string) bool {
		return strings.Contains(msg, "persist menu items") && strings.Contains(msg, "tx aborted")
	})).Return(nil)

	proc := NewProcessor(ms, v, v, v, ProcessorConfig{Retry: fastRetry()})
	report, err := proc.Process(context.Background(), r)
	require.Error(t, err)
	assert.Equal(t, model.StatusError, report.Status)
	assert.Equal(t, model.PhaseError, report.Phase)
	ms.AssertExpectations(t)
	// fetching, classifying, analyzing, aggregating, persisting
	ms.AssertNumberOfCalls(t, "TouchProcessing", 5)
}

func TestProcessor_RefreshClaimFailureIsNotFatal(t *testing.T) {
	ms := new(mockStore)
	r := model.Restaurant{ID: "rid", PlaceID: "pid"}
	v := newScriptedVision()

	ms.On("BeginQueueEntry", mock.Anything, "rid", model.TaskMenuExtraction).Return(nil, errors.New("no queue"))
	ms.On("TouchProcessing", mock.Anything, []string{"pid"}).Return(int64(0), errors.New("db busy"))
	ms.On("ListPhotos", mock.Anything, "pid").Return([]string{"food"}, nil)
	ms.On("InsertProcessingLogs", mock.Anything, mock.Anything).Return(nil)
	ms.On("ReplaceMenuItems", mock.Anything, "rid", []model.MenuItem(nil)).Return(nil)
	ms.On("UpdateStatus", mock.Anything, "pid", model.StatusFinished, "").Return(nil)

	proc := NewProcessor(ms, v, v, v, ProcessorConfig{Retry: fastRetry()})
	report, err := proc.Process(context.Background(), r)
	require.NoError(t, err)
	assert.Equal(t, model.StatusFinished, report.Status)
}

func TestProcessor_RetriesTerminalStatusWrite(t *testing.T) {
	ms := new(mockStore)
	r := model.Restaurant{ID: "rid", PlaceID: "pid"}
	v := newScriptedVision()

	ms.On("BeginQueueEntry", mock.Anything, "rid", model.TaskMenuExtraction).Return(nil, errors.New("queue table missing"))
	ms.On("TouchProcessing", mock.Anything, []string{"pid"}).Return(int64(1), nil)
	ms.On("ListPhotos", mock.Anything, "pid").Return([]string{"food"}, nil)
	ms.On("InsertProcessingLogs", mock.Anything, mock.Anything).Return(errors.New("log write failed"))
	ms.On("ReplaceMenuItems", mock.Anything, "rid", []model.MenuItem(nil)).Return(nil)
	ms.On("UpdateStatus", mock.Anything, "pid", model.StatusFinished, "").
		Return(resilience.NewTransientError(errors.New("connection reset"), 0)).Once()
	ms.On("UpdateStatus", mock.Anything, "pid", model.StatusFinished, "").Return(nil).Once()

	proc := NewProcessor(ms, v, v, v, ProcessorConfig{Retry: fastRetry()})
	report, err := proc.Process(context.Background(), r)
	require.NoError(t, err)
	assert.Equal(t, model.StatusFinished, report.Status)
	ms.AssertNumberOfCalls(t, "UpdateStatus", 2)
	ms.AssertNotCalled(t, "UpdateQueueEntry", mock.Anything, mock.Anything)
}

func TestProcessor_TerminalWriteFailureSurfaces(t *testing.T) {
	ms := new(mockStore)
	r := model.Restaurant{ID: "rid", PlaceID: "pid"}
	v := newScriptedVision()

	ms.On("BeginQueueEntry", mock.Anything, "rid", model.TaskMenuExtraction).Return(nil, errors.New("no queue"))
	ms.On("ListPhotos", mock.Anything, "pid").Return([]string{}, nil)
	ms.On("TouchProcessing", mock.Anything, []string{"pid"}).Return(int64(1), nil)
	ms.On("UpdateStatus", mock.Anything, "pid", model.StatusError, "no images available").Return(errors.New("permission denied"))

	proc := NewProcessor(ms, v, v, v, ProcessorConfig{Retry: fastRetry()})
	_, err := proc.Process(context.Background(), r)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "permission denied")
	ms.AssertNumberOfCalls(t, "UpdateStatus", 1)
}

func TestProcessor_WithPhotoSource(t *testing.T) {
	st := newTestStore(t)
	r := seedRestaurant(t, st, "external", model.StatusProcessing)
	v := newScriptedVision()
	v.menus["ext1"] = []model.LineItem{{Name: "Kebab"}}

	proc := newScriptedProcessor(st, v).WithPhotoSource(staticPhotos{"ext1"})
	report, err := proc.Process(context.Background(), *r)
	require.NoError(t, err)
	assert.Equal(t, 1, report.FinalItems)
}

type staticPhotos []string

func (s staticPhotos) ListPhotos(context.Context, string) ([]string, error) { return s, nil }
