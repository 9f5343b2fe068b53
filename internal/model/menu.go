package model

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Confidence is the classifier's self-reported certainty.
type Confidence string

const (
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
)

// ParseConfidence normalises a confidence label. Anything unrecognised is low.
func ParseConfidence(s string) Confidence {
	switch Confidence(strings.ToLower(strings.TrimSpace(s))) {
	case ConfidenceHigh:
		return ConfidenceHigh
	case ConfidenceMedium:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

// Usage records token consumption and cost of one or more model calls.
type Usage struct {
	Model        string          `json:"model,omitempty"`
	InputTokens  int64           `json:"input_tokens"`
	OutputTokens int64           `json:"output_tokens"`
	Cost         decimal.Decimal `json:"cost"`
}

// TotalTokens returns input plus output tokens.
func (u Usage) TotalTokens() int64 {
	return u.InputTokens + u.OutputTokens
}

// Add accumulates another usage record. The model name of the receiver is kept
// unless it is empty.
func (u *Usage) Add(other Usage) {
	if u.Model == "" {
		u.Model = other.Model
	}
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
	u.Cost = u.Cost.Add(other.Cost)
}

// ClassificationResult is the verdict for a single photograph.
type ClassificationResult struct {
	PhotoURL   string        `json:"photo_url"`
	IsMenu     bool          `json:"is_menu"`
	Confidence Confidence    `json:"confidence"`
	ImageType  string        `json:"image_type,omitempty"`
	Reasoning  string        `json:"reasoning,omitempty"`
	Usage      Usage         `json:"usage"`
	Duration   time.Duration `json:"duration"`
	Error      string        `json:"error,omitempty"`
}

// Accepted reports whether the photograph proceeds to analysis.
func (c ClassificationResult) Accepted() bool {
	return c.IsMenu && c.Error == ""
}

// FailedClassification builds the fail-closed verdict for a photo whose call
// could not complete.
func FailedClassification(photoURL string, err error) ClassificationResult {
	return ClassificationResult{
		PhotoURL:   photoURL,
		IsMenu:     false,
		Confidence: ConfidenceLow,
		ImageType:  "unknown",
		Error:      err.Error(),
	}
}

// LineItem is a raw menu entry as read from one photograph. Optional fields are
// nil when the source did not show them.
type LineItem struct {
	Name        string           `json:"name"`
	Description *string          `json:"description,omitempty"`
	Price       *decimal.Decimal `json:"price,omitempty"`
	Category    *string          `json:"category,omitempty"`
	Calories    *int             `json:"calories,omitempty"`
	ServingSize *string          `json:"serving_size,omitempty"`
	Protein     *float64         `json:"protein,omitempty"`
	Carbs       *float64         `json:"carbs,omitempty"`
	Fat         *float64         `json:"fat,omitempty"`
	SourcePhoto string           `json:"source_photo,omitempty"`
}

// MenuItem converts the raw entry into a final item without altering any field.
func (li LineItem) MenuItem() MenuItem {
	mi := MenuItem{
		Name:        li.Name,
		Description: li.Description,
		Price:       li.Price,
		Category:    li.Category,
		Calories:    li.Calories,
		ServingSize: li.ServingSize,
		Protein:     li.Protein,
		Carbs:       li.Carbs,
		Fat:         li.Fat,
	}
	if li.SourcePhoto != "" {
		mi.SourcePhotos = []string{li.SourcePhoto}
	}
	return mi
}

// AnalysisResult holds the line items extracted from one menu photograph.
type AnalysisResult struct {
	PhotoURL        string        `json:"photo_url"`
	Items           []LineItem    `json:"items"`
	HasPrices       bool          `json:"has_prices"`
	HasDescriptions bool          `json:"has_descriptions"`
	Usage           Usage         `json:"usage"`
	Duration        time.Duration `json:"duration"`
	Error           string        `json:"error,omitempty"`
}

// MenuItem is a consolidated entry persisted for a restaurant.
type MenuItem struct {
	ID              string           `json:"id,omitempty"`
	RestaurantID    string           `json:"restaurant_id,omitempty"`
	Name            string           `json:"name"`
	Description     *string          `json:"description,omitempty"`
	Price           *decimal.Decimal `json:"price,omitempty"`
	Category        *string          `json:"category,omitempty"`
	Calories        *int             `json:"calories,omitempty"`
	ServingSize     *string          `json:"serving_size,omitempty"`
	Protein         *float64         `json:"protein,omitempty"`
	Carbs           *float64         `json:"carbs,omitempty"`
	Fat             *float64         `json:"fat,omitempty"`
	DietaryTags     []string         `json:"dietary_tags,omitempty"`
	Allergens       []string         `json:"allergens,omitempty"`
	SpiceLevel      *string          `json:"spice_level,omitempty"`
	ConfidenceScore *float64         `json:"confidence_score,omitempty"`
	Availability    *string          `json:"availability,omitempty"`
	SourcePhotos    []string         `json:"source_photos,omitempty"`
	CreatedAt       time.Time        `json:"created_at,omitempty"`
}

// AggregationResult is the consolidated menu for a restaurant.
type AggregationResult struct {
	Items      []MenuItem `json:"items"`
	Categories []string   `json:"categories,omitempty"`
	Notes      string     `json:"notes,omitempty"`
	Usage      Usage      `json:"usage"`
	FailedOpen bool       `json:"failed_open"`
	Error      string     `json:"error,omitempty"`
}

// NutritionEstimate is a standalone nutrition guess for a single dish.
type NutritionEstimate struct {
	Name       string     `json:"name"`
	Calories   *int       `json:"calories,omitempty"`
	Protein    *float64   `json:"protein,omitempty"`
	Carbs      *float64   `json:"carbs,omitempty"`
	Fat        *float64   `json:"fat,omitempty"`
	Confidence Confidence `json:"confidence"`
	Usage      Usage      `json:"usage"`
}
