package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Stage names a remote step that is accounted for in the processing log.
type Stage string

const (
	StageClassify  Stage = "classify"
	StageAnalyze   Stage = "analyze"
	StageAggregate Stage = "aggregate"
)

// Phase is the internal sub-state of an entity run. Only the restaurant status
// is externally visible; phases are logged and recorded on the queue entry.
type Phase string

const (
	PhaseFetching    Phase = "fetching"
	PhaseClassifying Phase = "classifying"
	PhaseAnalyzing   Phase = "analyzing"
	PhaseAggregating Phase = "aggregating"
	PhasePersisting  Phase = "persisting"
	PhaseFinished    Phase = "finished"
	PhaseError       Phase = "error"
)

// TaskMenuExtraction is the queue task type for a full menu run.
const TaskMenuExtraction = "menu_extraction"

// Log entry outcomes.
const (
	LogStatusSuccess = "success"
	LogStatusFailed  = "failed"
)

// ProcessingLogEntry is an append-only record of one remote call.
type ProcessingLogEntry struct {
	ID           string          `json:"id"`
	RestaurantID string          `json:"restaurant_id"`
	PlaceID      string          `json:"place_id"`
	PhotoURL     string          `json:"photo_url,omitempty"`
	Stage        Stage           `json:"stage"`
	Status       string          `json:"status"`
	Model        string          `json:"model,omitempty"`
	InputTokens  int64           `json:"input_tokens"`
	OutputTokens int64           `json:"output_tokens"`
	Cost         decimal.Decimal `json:"cost"`
	ItemCount    int             `json:"item_count"`
	IsMenu       *bool           `json:"is_menu,omitempty"`
	DurationMs   int64           `json:"duration_ms"`
	Error        string          `json:"error,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

// QueueEntry tracks one (restaurant, task) pair. It is advisory; the
// restaurant status is authoritative.
type QueueEntry struct {
	ID           string           `json:"id"`
	RestaurantID string           `json:"restaurant_id"`
	TaskType     string           `json:"task_type"`
	Status       RestaurantStatus `json:"status"`
	Phase        Phase            `json:"phase,omitempty"`
	Attempts     int              `json:"attempts"`
	LastError    string           `json:"last_error,omitempty"`
	CreatedAt    time.Time        `json:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at"`
}

// CostSummary rolls up processing log entries by stage.
type CostSummary struct {
	Stage        Stage           `json:"stage"`
	Calls        int             `json:"calls"`
	Failures     int             `json:"failures"`
	InputTokens  int64           `json:"input_tokens"`
	OutputTokens int64           `json:"output_tokens"`
	Cost         decimal.Decimal `json:"cost"`
}

// RunReport summarises a single entity run.
type RunReport struct {
	RestaurantID   string           `json:"restaurant_id"`
	PlaceID        string           `json:"place_id"`
	Status         RestaurantStatus `json:"status"`
	Phase          Phase            `json:"phase"`
	PhotosTotal    int              `json:"photos_total"`
	MenuPhotos     int              `json:"menu_photos"`
	AnalyzedPhotos int              `json:"analyzed_photos"`
	RawItems       int              `json:"raw_items"`
	FinalItems     int              `json:"final_items"`
	FailedOpen     bool             `json:"failed_open"`
	Usage          Usage            `json:"usage"`
	Duration       time.Duration    `json:"duration"`
	Error          string           `json:"error,omitempty"`
}
