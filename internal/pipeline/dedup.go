package pipeline

import (
	"math"
	"slices"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/sells-group/menu-cli/internal/model"
)

// DefaultSimilarityThreshold is the Jaccard score above which two item names
// are treated as the same dish.
const DefaultSimilarityThreshold = 0.75

var nameStopWords = map[string]bool{
	"with": true, "w": true, "and": true, "the": true, "of": true,
	"a": true, "our": true, "house": true, "style": true,
}

// nameKey is the normalized form of a menu item name.
type nameKey struct {
	joined string
	words  map[string]bool
}

// normalizeName strips accents and punctuation, lowercases, drops filler words
// and singularizes plurals so that "Fish & Chips" and "fish and chip" agree.
func normalizeName(name string) nameKey {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, name)
	if err != nil {
		folded = name
	}
	folded = strings.ToLower(strings.ReplaceAll(folded, "&", " and "))

	fields := strings.FieldsFunc(folded, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	key := nameKey{words: make(map[string]bool, len(fields))}
	var kept []string
	for _, f := range fields {
		if nameStopWords[f] {
			continue
		}
		if len(f) > 3 && strings.HasSuffix(f, "s") && !strings.HasSuffix(f, "ss") {
			f = strings.TrimSuffix(f, "s")
		}
		kept = append(kept, f)
		key.words[f] = true
	}
	if len(kept) == 0 {
		// Names made only of filler words still need a key.
		kept = fields
		for _, f := range fields {
			key.words[f] = true
		}
	}
	key.joined = strings.Join(kept, "")
	return key
}

// jaccard returns |a∩b| / |a∪b| over word sets.
func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	inter := 0
	for w := range a {
		if b[w] {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}

// equivalent reports whether two normalized names denote the same dish.
func equivalent(a, b nameKey, threshold float64) bool {
	if a.joined == "" || b.joined == "" {
		return false
	}
	if a.joined == b.joined {
		return true
	}
	return jaccard(a.words, b.words) >= threshold
}

// MergeItems groups equivalent items and merges each group into one menu
// item. Output follows first appearance; a singleton group passes through
// unchanged.
func MergeItems(items []model.MenuItem, threshold float64) []model.MenuItem {
	if len(items) == 0 {
		return nil
	}
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultSimilarityThreshold
	}

	type group struct {
		key     nameKey
		members []model.MenuItem
	}
	var groups []*group

	for _, it := range items {
		key := normalizeName(it.Name)
		var target *group
		for _, g := range groups {
			if equivalent(g.key, key, threshold) {
				target = g
				break
			}
		}
		if target == nil {
			groups = append(groups, &group{key: key, members: []model.MenuItem{it}})
			continue
		}
		target.members = append(target.members, it)
	}

	out := make([]model.MenuItem, 0, len(groups))
	for _, g := range groups {
		out = append(out, mergeGroup(g.members))
	}
	return out
}

// MergeLineItems converts raw items and merges duplicates.
func MergeLineItems(items []model.LineItem, threshold float64) []model.MenuItem {
	return MergeItems(toMenuItems(items), threshold)
}

func toMenuItems(items []model.LineItem) []model.MenuItem {
	if len(items) == 0 {
		return nil
	}
	out := make([]model.MenuItem, len(items))
	for i, li := range items {
		out[i] = li.MenuItem()
	}
	return out
}

// mergeGroup folds duplicates: the longest description, the last observed
// price, the median of each nutrition value, the first category and a union
// of tags and source photos.
func mergeGroup(members []model.MenuItem) model.MenuItem {
	if len(members) == 1 {
		return members[0]
	}

	merged := members[0]
	var (
		calories             []float64
		protein, carbs, fats []float64
	)
	for _, m := range members {
		if m.Description != nil && (merged.Description == nil || len(*m.Description) > len(*merged.Description)) {
			merged.Description = m.Description
		}
		if m.Price != nil {
			merged.Price = m.Price
		}
		merged.Category = firstNonNil(merged.Category, m.Category)
		merged.ServingSize = firstNonNil(merged.ServingSize, m.ServingSize)
		merged.SpiceLevel = firstNonNil(merged.SpiceLevel, m.SpiceLevel)
		merged.Availability = firstNonNil(merged.Availability, m.Availability)

		if m.Calories != nil {
			calories = append(calories, float64(*m.Calories))
		}
		if m.Protein != nil {
			protein = append(protein, *m.Protein)
		}
		if m.Carbs != nil {
			carbs = append(carbs, *m.Carbs)
		}
		if m.Fat != nil {
			fats = append(fats, *m.Fat)
		}
	}
	for _, m := range members[1:] {
		merged.DietaryTags = union(merged.DietaryTags, m.DietaryTags)
		merged.Allergens = union(merged.Allergens, m.Allergens)
		merged.SourcePhotos = union(merged.SourcePhotos, m.SourcePhotos)
	}

	if v := median(calories); v != nil {
		n := int(math.Round(*v))
		merged.Calories = &n
	}
	merged.Protein = median(protein)
	merged.Carbs = median(carbs)
	merged.Fat = median(fats)

	bump := math.Min(1, 0.5+0.25*float64(len(members)-1))
	if merged.ConfidenceScore == nil || *merged.ConfidenceScore < bump {
		merged.ConfidenceScore = &bump
	}
	return merged
}

func firstNonNil[T any](a, b *T) *T {
	if a != nil {
		return a
	}
	return b
}

func union(a, b []string) []string {
	out := slices.Clone(a)
	for _, s := range b {
		if !slices.Contains(out, s) {
			out = append(out, s)
		}
	}
	return out
}

func median(vals []float64) *float64 {
	if len(vals) == 0 {
		return nil
	}
	sorted := slices.Clone(vals)
	slices.Sort(sorted)
	mid := len(sorted) / 2
	m := sorted[mid]
	if len(sorted)%2 == 0 {
		m = (sorted[mid-1] + sorted[mid]) / 2
	}
	return &m
}
