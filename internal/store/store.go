package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/menu-cli/internal/model"
)

// ErrNotFound is returned (wrapped) when a requested row does not exist.
var ErrNotFound = eris.New("store: not found")

// RestaurantFilter specifies criteria for listing restaurants.
type RestaurantFilter struct {
	Status model.RestaurantStatus `json:"status,omitempty"`
	Limit  int                    `json:"limit,omitempty"`
	Offset int                    `json:"offset,omitempty"`
}

// CostFilter narrows a cost rollup.
type CostFilter struct {
	RestaurantID string    `json:"restaurant_id,omitempty"`
	Since        time.Time `json:"since,omitempty"`
}

// Store defines the persistence interface for the menu pipeline.
type Store interface {
	// Restaurants
	GetRestaurant(ctx context.Context, placeID string) (*model.Restaurant, error)
	CreateRestaurant(ctx context.Context, r model.Restaurant) (*model.Restaurant, error)
	UpsertRestaurants(ctx context.Context, rs []model.Restaurant) (int64, error)
	ListRestaurants(ctx context.Context, filter RestaurantFilter) ([]model.Restaurant, error)
	ListPhotos(ctx context.Context, placeID string) ([]string, error)

	// Status
	BatchStatuses(ctx context.Context, placeIDs []string) (map[string]model.RestaurantStatus, error)
	ClaimForProcessing(ctx context.Context, placeID string) (bool, error)
	UpdateStatus(ctx context.Context, placeID string, status model.RestaurantStatus, errMsg string) error
	CountByStatus(ctx context.Context) (map[model.RestaurantStatus]int, error)
	TouchProcessing(ctx context.Context, placeIDs []string) (int64, error)
	ResetStale(ctx context.Context, olderThan time.Duration) (int64, error)

	// Menu items
	ReplaceMenuItems(ctx context.Context, restaurantID string, items []model.MenuItem) error
	ListMenuItems(ctx context.Context, restaurantID string) ([]model.MenuItem, error)

	// Accounting
	InsertProcessingLogs(ctx context.Context, entries []model.ProcessingLogEntry) error
	BeginQueueEntry(ctx context.Context, restaurantID, taskType string) (*model.QueueEntry, error)
	UpdateQueueEntry(ctx context.Context, e model.QueueEntry) error
	GetQueueEntry(ctx context.Context, restaurantID, taskType string) (*model.QueueEntry, error)
	CostSummary(ctx context.Context, filter CostFilter) ([]model.CostSummary, error)

	// Lifecycle
	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}
