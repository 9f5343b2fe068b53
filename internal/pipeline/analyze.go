package pipeline

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/menu-cli/internal/model"
	"github.com/sells-group/menu-cli/internal/vision"
)

// DefaultAnalyzeWorkers bounds concurrent extraction calls per restaurant.
const DefaultAnalyzeWorkers = 3

// AnalyzePhotos extracts line items from each menu photo with at most workers
// calls in flight. A failed photo yields a result with no items and Error set;
// it never stops the others. Results keep input order.
func AnalyzePhotos(ctx context.Context, photos []string, ectx model.EntityContext, analyzer vision.Analyzer, workers int) []model.AnalysisResult {
	results := make([]model.AnalysisResult, len(photos))
	if len(photos) == 0 {
		return results
	}
	if workers < 1 {
		workers = DefaultAnalyzeWorkers
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i, photoURL := range photos {
		g.Go(func() error {
			res, err := analyzer.Analyze(gCtx, photoURL, ectx)
			if res == nil {
				res = &model.AnalysisResult{}
			}
			res.PhotoURL = photoURL
			if err != nil {
				zap.L().Warn("analyze: photo failed",
					zap.String("place_id", ectx.PlaceID),
					zap.String("photo_url", photoURL),
					zap.Error(err),
				)
				res.Items = nil
				res.Error = err.Error()
			}
			results[i] = *res
			return nil
		})
	}

	_ = g.Wait()
	return results
}

// CollectItems flattens the items of successful analyses in photo order.
func CollectItems(results []model.AnalysisResult) []model.LineItem {
	var items []model.LineItem
	for _, r := range results {
		if r.Error != "" {
			continue
		}
		items = append(items, r.Items...)
	}
	return items
}

func analysisUsage(results []model.AnalysisResult) model.Usage {
	var total model.Usage
	for _, r := range results {
		total.Add(r.Usage)
	}
	return total
}
