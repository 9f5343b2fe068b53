package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/menu-cli/internal/model"
	"github.com/sells-group/menu-cli/internal/store"
)

// --- Store Mock ---

type mockStore struct {
	mock.Mock
}

func (m *mockStore) GetRestaurant(ctx context.Context, placeID string) (*model.Restaurant, error) {
	args := m.Called(ctx, placeID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Restaurant), args.Error(1)
}

func (m *mockStore) CreateRestaurant(ctx context.Context, r model.Restaurant) (*model.Restaurant, error) {
	args := m.Called(ctx, r)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Restaurant), args.Error(1)
}

func (m *mockStore) UpsertRestaurants(ctx context.Context, rs []model.Restaurant) (int64, error) {
	args := m.Called(ctx, rs)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockStore) ListRestaurants(ctx context.Context, filter store.RestaurantFilter) ([]model.Restaurant, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Restaurant), args.Error(1)
}

func (m *mockStore) ListPhotos(ctx context.Context, placeID string) ([]string, error) {
	args := m.Called(ctx, placeID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *mockStore) BatchStatuses(ctx context.Context, placeIDs []string) (map[string]model.RestaurantStatus, error) {
	args := m.Called(ctx, placeIDs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]model.RestaurantStatus), args.Error(1)
}

func (m *mockStore) ClaimForProcessing(ctx context.Context, placeID string) (bool, error) {
	args := m.Called(ctx, placeID)
	return args.Bool(0), args.Error(1)
}

func (m *mockStore) UpdateStatus(ctx context.Context, placeID string, status model.RestaurantStatus, errMsg string) error {
	args := m.Called(ctx, placeID, status, errMsg)
	return args.Error(0)
}

func (m *mockStore) CountByStatus(ctx context.Context) (map[model.RestaurantStatus]int, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[model.RestaurantStatus]int), args.Error(1)
}

func (m *mockStore) TouchProcessing(ctx context.Context, placeIDs []string) (int64, error) {
	args := m.Called(ctx, placeIDs)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockStore) ResetStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	args := m.Called(ctx, olderThan)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockStore) ReplaceMenuItems(ctx context.Context, restaurantID string, items []model.MenuItem) error {
	args := m.Called(ctx, restaurantID, items)
	return args.Error(0)
}

func (m *mockStore) ListMenuItems(ctx context.Context, restaurantID string) ([]model.MenuItem, error) {
	args := m.Called(ctx, restaurantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.MenuItem), args.Error(1)
}

func (m *mockStore) InsertProcessingLogs(ctx context.Context, entries []model.ProcessingLogEntry) error {
	args := m.Called(ctx, entries)
	return args.Error(0)
}

func (m *mockStore) BeginQueueEntry(ctx context.Context, restaurantID, taskType string) (*model.QueueEntry, error) {
	args := m.Called(ctx, restaurantID, taskType)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.QueueEntry), args.Error(1)
}

func (m *mockStore) UpdateQueueEntry(ctx context.Context, e model.QueueEntry) error {
	args := m.Called(ctx, e)
	return args.Error(0)
}

func (m *mockStore) GetQueueEntry(ctx context.Context, restaurantID, taskType string) (*model.QueueEntry, error) {
	args := m.Called(ctx, restaurantID, taskType)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.QueueEntry), args.Error(1)
}

func (m *mockStore) CostSummary(ctx context.Context, filter store.CostFilter) ([]model.CostSummary, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.CostSummary), args.Error(1)
}

func (m *mockStore) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *mockStore) Migrate(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *mockStore) Close() error {
	args := m.Called()
	return args.Error(0)
}

// --- Runner Mock ---

// recordingRunner counts runs per place id and optionally blocks until
// released.
type recordingRunner struct {
	mu      sync.Mutex
	runs    map[string]int
	release chan struct{}
	started chan string
}

func newRecordingRunner() *recordingRunner {
	return &recordingRunner{runs: make(map[string]int)}
}

func (r *recordingRunner) Process(ctx context.Context, rest model.Restaurant) (*model.RunReport, error) {
	r.mu.Lock()
	r.runs[rest.PlaceID]++
	r.mu.Unlock()

	if r.started != nil {
		r.started <- rest.PlaceID
	}
	if r.release != nil {
		select {
		case <-r.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return &model.RunReport{PlaceID: rest.PlaceID, Status: model.StatusFinished}, nil
}

func (r *recordingRunner) count(placeID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.runs[placeID]
}

// --- RunLock Fake ---

type fakeLock struct {
	mu     sync.Mutex
	held   map[string]bool
	err    error
	unlock int
}

func newFakeLock() *fakeLock {
	return &fakeLock{held: make(map[string]bool)}
}

func (l *fakeLock) TryLock(_ context.Context, placeID string) (func(), bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return nil, false, l.err
	}
	if l.held[placeID] {
		return nil, false, nil
	}
	l.held[placeID] = true
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.held, placeID)
		l.unlock++
	}, true, nil
}

func (l *fakeLock) isHeld(placeID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.held[placeID]
}
