package pipeline

import (
	"context"
	"regexp"
	"slices"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/menu-cli/internal/model"
	"github.com/sells-group/menu-cli/internal/vision"
)

// DefaultClassifyWorkers bounds concurrent classification calls per restaurant.
const DefaultClassifyWorkers = 5

// PhotoPriority ranks photographs so the likeliest menu shots are classified
// first. Place photos uploaded by the owner tend to match the primary pattern;
// user-contributed street-view style photos match the secondary one.
type PhotoPriority struct {
	primary   *regexp.Regexp
	secondary *regexp.Regexp
}

// NewPhotoPriority compiles the tier patterns. Empty patterns never match.
func NewPhotoPriority(primary, secondary string) (*PhotoPriority, error) {
	p := &PhotoPriority{}
	var err error
	if primary != "" {
		if p.primary, err = regexp.Compile(primary); err != nil {
			return nil, eris.Wrap(err, "classify: compile primary photo pattern")
		}
	}
	if secondary != "" {
		if p.secondary, err = regexp.Compile(secondary); err != nil {
			return nil, eris.Wrap(err, "classify: compile secondary photo pattern")
		}
	}
	return p, nil
}

// Tier returns 0 for primary matches, 1 for secondary matches and 2 otherwise.
func (p *PhotoPriority) Tier(photoURL string) int {
	switch {
	case p == nil:
		return 2
	case p.primary != nil && p.primary.MatchString(photoURL):
		return 0
	case p.secondary != nil && p.secondary.MatchString(photoURL):
		return 1
	default:
		return 2
	}
}

// SelectPhotos returns a copy of photos ordered by tier, stable within a tier,
// truncated to maxPhotos when positive. Blank and repeated URLs are dropped.
func SelectPhotos(photos []string, priority *PhotoPriority, maxPhotos int) []string {
	seen := make(map[string]bool, len(photos))
	out := make([]string, 0, len(photos))
	for _, u := range photos {
		if u == "" || seen[u] {
			continue
		}
		seen[u] = true
		out = append(out, u)
	}

	slices.SortStableFunc(out, func(a, b string) int {
		return priority.Tier(a) - priority.Tier(b)
	})

	if maxPhotos > 0 && len(out) > maxPhotos {
		out = out[:maxPhotos]
	}
	return out
}

// ClassifyPhotos runs the classifier over every photo with at most workers
// calls in flight. It never fails: a photo whose call errors gets a
// fail-closed verdict carrying the error message. Results keep input order.
func ClassifyPhotos(ctx context.Context, photos []string, classifier vision.Classifier, workers int) []model.ClassificationResult {
	results := make([]model.ClassificationResult, len(photos))
	if len(photos) == 0 {
		return results
	}
	if workers < 1 {
		workers = DefaultClassifyWorkers
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i, photoURL := range photos {
		g.Go(func() error {
			res, err := classifier.Classify(gCtx, photoURL)
			if err != nil {
				zap.L().Warn("classify: photo failed",
					zap.String("photo_url", photoURL),
					zap.Error(err),
				)
				failed := model.FailedClassification(photoURL, err)
				failed.Usage = res.Usage
				failed.Duration = res.Duration
				results[i] = failed
				return nil
			}
			res.PhotoURL = photoURL
			results[i] = res
			return nil
		})
	}

	_ = g.Wait()
	return results
}

// MenuPhotos returns the URLs of accepted menu photographs in result order.
func MenuPhotos(results []model.ClassificationResult) []string {
	var out []string
	for _, r := range results {
		if r.Accepted() {
			out = append(out, r.PhotoURL)
		}
	}
	return out
}

// classificationUsage sums usage across results.
func classificationUsage(results []model.ClassificationResult) model.Usage {
	var total model.Usage
	for _, r := range results {
		total.Add(r.Usage)
	}
	return total
}
