package vision

import (
	"bytes"
	"encoding/json"
	"math"
	"regexp"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"

	"github.com/sells-group/menu-cli/internal/model"
)

// cleanJSON attempts to extract a JSON object from text that may contain
// markdown code fences or other wrapping.
func cleanJSON(text string) string {
	text = strings.TrimSpace(text)

	if strings.HasPrefix(text, "```json") {
		text = strings.TrimPrefix(text, "```json")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	} else if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		text = text[start : end+1]
	}

	return strings.TrimSpace(text)
}

func decodeJSON(text string, v any) error {
	cleaned := cleanJSON(text)
	if cleaned == "" {
		return eris.New("empty response")
	}
	if err := json.Unmarshal([]byte(cleaned), v); err != nil {
		return eris.Wrapf(err, "decode %q", truncate(cleaned, 120))
	}
	return nil
}

var numberPattern = regexp.MustCompile(`-?\d+(?:\.\d+)?`)

// flexNumber accepts JSON numbers, numeric strings ("$12.99", "450 kcal",
// "1,200") and null. Anything without a number stays absent.
type flexNumber struct {
	value *decimal.Decimal
}

func (f *flexNumber) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		f.value = nil
		return nil
	}

	var raw string
	if b[0] == '"' {
		if err := json.Unmarshal(b, &raw); err != nil {
			return err
		}
	} else {
		raw = string(b)
	}

	raw = strings.ReplaceAll(raw, ",", "")
	match := numberPattern.FindString(raw)
	if match == "" {
		f.value = nil
		return nil
	}
	d, err := decimal.NewFromString(match)
	if err != nil {
		f.value = nil
		return nil //nolint:nilerr
	}
	f.value = &d
	return nil
}

func (f flexNumber) decimal() *decimal.Decimal {
	if f.value == nil {
		return nil
	}
	d := *f.value
	return &d
}

func (f flexNumber) int() *int {
	if f.value == nil {
		return nil
	}
	n := int(f.value.Round(0).IntPart())
	return &n
}

func (f flexNumber) float() *float64 {
	if f.value == nil {
		return nil
	}
	v := f.value.InexactFloat64()
	return &v
}

type rawClassification struct {
	IsMenu          bool   `json:"is_menu"`
	ConfidenceLevel string `json:"confidence_level"`
	Confidence      string `json:"confidence"`
	Reasoning       string `json:"reasoning"`
	ImageType       string `json:"image_type"`
}

type rawItem struct {
	Name            string     `json:"name"`
	Description     *string    `json:"description"`
	Price           flexNumber `json:"price"`
	Category        *string    `json:"category"`
	Calories        flexNumber `json:"calories"`
	ServingSize     *string    `json:"serving_size"`
	Protein         flexNumber `json:"protein"`
	Carbs           flexNumber `json:"carbs"`
	Fat             flexNumber `json:"fat"`
	DietaryTags     []string   `json:"dietary_tags"`
	Allergens       []string   `json:"allergens"`
	SpiceLevel      *string    `json:"spice_level"`
	ConfidenceScore flexNumber `json:"confidence_score"`
	Availability    *string    `json:"availability"`
	SourcePhotos    []string   `json:"source_photos"`
}

type rawAnalysis struct {
	MenuItems       []rawItem `json:"menu_items"`
	TotalItems      int       `json:"total_items"`
	HasPrices       bool      `json:"has_prices"`
	HasDescriptions bool      `json:"has_descriptions"`
}

type rawAggregation struct {
	MenuItems  []rawItem `json:"menu_items"`
	TotalItems int       `json:"total_items"`
	Categories []string  `json:"categories"`
	Notes      string    `json:"notes"`
}

type rawNutrition struct {
	Calories   flexNumber `json:"calories"`
	Protein    flexNumber `json:"protein"`
	Carbs      flexNumber `json:"carbs"`
	Fat        flexNumber `json:"fat"`
	Confidence string     `json:"confidence"`
}

// lineItem converts a raw item; ok is false when the item has no name.
func (r rawItem) lineItem(sourcePhoto string) (model.LineItem, bool) {
	name := strings.TrimSpace(r.Name)
	if name == "" {
		return model.LineItem{}, false
	}
	return model.LineItem{
		Name:        name,
		Description: trimmed(r.Description),
		Price:       nonNegative(r.Price.decimal()),
		Category:    lowerTrimmed(r.Category),
		Calories:    r.Calories.int(),
		ServingSize: trimmed(r.ServingSize),
		Protein:     r.Protein.float(),
		Carbs:       r.Carbs.float(),
		Fat:         r.Fat.float(),
		SourcePhoto: sourcePhoto,
	}, true
}

func (r rawItem) menuItem() (model.MenuItem, bool) {
	li, ok := r.lineItem("")
	if !ok {
		return model.MenuItem{}, false
	}
	mi := li.MenuItem()
	mi.DietaryTags = cleanList(r.DietaryTags)
	mi.Allergens = cleanList(r.Allergens)
	mi.SpiceLevel = lowerTrimmed(r.SpiceLevel)
	mi.Availability = trimmed(r.Availability)
	mi.SourcePhotos = cleanList(r.SourcePhotos)
	if f := r.ConfidenceScore.float(); f != nil {
		v := math.Max(0, math.Min(1, *f))
		mi.ConfidenceScore = &v
	}
	return mi, true
}

// wireItem is the JSON shape sent to the aggregation model.
type wireItem struct {
	Name         string   `json:"name"`
	Description  *string  `json:"description,omitempty"`
	Price        *string  `json:"price,omitempty"`
	Category     *string  `json:"category,omitempty"`
	Calories     *int     `json:"calories,omitempty"`
	ServingSize  *string  `json:"serving_size,omitempty"`
	Protein      *float64 `json:"protein,omitempty"`
	Carbs        *float64 `json:"carbs,omitempty"`
	Fat          *float64 `json:"fat,omitempty"`
	SourcePhotos []string `json:"source_photos,omitempty"`
}

func toWire(items []model.LineItem) []wireItem {
	out := make([]wireItem, len(items))
	for i, it := range items {
		w := wireItem{
			Name:        it.Name,
			Description: it.Description,
			Category:    it.Category,
			Calories:    it.Calories,
			ServingSize: it.ServingSize,
			Protein:     it.Protein,
			Carbs:       it.Carbs,
			Fat:         it.Fat,
		}
		if it.Price != nil {
			p := it.Price.StringFixed(2)
			w.Price = &p
		}
		if it.SourcePhoto != "" {
			w.SourcePhotos = []string{it.SourcePhoto}
		}
		out[i] = w
	}
	return out
}

func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" || strings.EqualFold(v, "null") || strings.EqualFold(v, "n/a") {
		return nil
	}
	return &v
}

func lowerTrimmed(s *string) *string {
	v := trimmed(s)
	if v == nil {
		return nil
	}
	l := strings.ToLower(*v)
	return &l
}

func nonNegative(d *decimal.Decimal) *decimal.Decimal {
	if d == nil || d.IsNegative() {
		return nil
	}
	return d
}

func cleanList(in []string) []string {
	var out []string
	seen := make(map[string]bool, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
