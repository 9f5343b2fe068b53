package vision

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/menu-cli/internal/cost"
	"github.com/sells-group/menu-cli/internal/model"
)

// Classifier decides whether a photograph is a readable menu.
type Classifier interface {
	Classify(ctx context.Context, photoURL string) (model.ClassificationResult, error)
}

// Analyzer extracts line items from a menu photograph.
type Analyzer interface {
	Analyze(ctx context.Context, photoURL string, ectx model.EntityContext) (*model.AnalysisResult, error)
}

// Aggregator consolidates line items from several photographs.
type Aggregator interface {
	Aggregate(ctx context.Context, items []model.LineItem, ectx model.EntityContext) ([]model.MenuItem, model.Usage, error)
}

// Estimator guesses nutrition for a single dish.
type Estimator interface {
	Estimate(ctx context.Context, name, description string) (*model.NutritionEstimate, error)
}

// Token budgets per stage.
const (
	classifyMaxTokens  = 1000
	analyzeMaxTokens   = 5000
	aggregateMaxTokens = 3000
	estimateMaxTokens  = 200
)

// Models names the model used for each stage.
type Models struct {
	Classify  string
	Analyze   string
	Aggregate string
}

// Timeouts bounds each stage call. Zero means no per-call deadline.
type Timeouts struct {
	Classify  time.Duration
	Analyze   time.Duration
	Aggregate time.Duration
}

// Service implements every vision collaborator on top of one Completer.
type Service struct {
	completer Completer
	models    Models
	timeouts  Timeouts
	calc      *cost.Calculator
}

var (
	_ Classifier = (*Service)(nil)
	_ Analyzer   = (*Service)(nil)
	_ Aggregator = (*Service)(nil)
	_ Estimator  = (*Service)(nil)
)

// NewService creates a Service. A nil calculator uses the default rates.
func NewService(completer Completer, models Models, timeouts Timeouts, calc *cost.Calculator) *Service {
	if calc == nil {
		calc = cost.NewCalculator(cost.DefaultRates())
	}
	return &Service{completer: completer, models: models, timeouts: timeouts, calc: calc}
}

// Classify asks whether photoURL shows a menu. The returned result always
// carries the photo URL and whatever usage was incurred, even on error.
func (s *Service) Classify(ctx context.Context, photoURL string) (model.ClassificationResult, error) {
	start := time.Now()
	result := model.ClassificationResult{PhotoURL: photoURL, Confidence: model.ConfidenceLow}

	resp, err := s.complete(ctx, s.timeouts.Classify, Request{
		Stage:     model.StageClassify,
		Model:     s.models.Classify,
		System:    classifySystemPrompt,
		Prompt:    classifyUserPrompt,
		ImageURL:  photoURL,
		MaxTokens: classifyMaxTokens,
	})
	result.Duration = time.Since(start)
	if err != nil {
		return result, eris.Wrap(err, "vision: classify")
	}
	result.Usage = s.usage(resp)

	var raw rawClassification
	if err := decodeJSON(resp.Text, &raw); err != nil {
		return result, eris.Wrap(err, "vision: parse classification")
	}

	label := raw.ConfidenceLevel
	if label == "" {
		label = raw.Confidence
	}
	result.IsMenu = raw.IsMenu
	result.Confidence = model.ParseConfidence(label)
	result.ImageType = raw.ImageType
	result.Reasoning = raw.Reasoning
	return result, nil
}

// Analyze extracts the line items visible in a menu photograph.
func (s *Service) Analyze(ctx context.Context, photoURL string, ectx model.EntityContext) (*model.AnalysisResult, error) {
	start := time.Now()
	result := &model.AnalysisResult{PhotoURL: photoURL}

	resp, err := s.complete(ctx, s.timeouts.Analyze, Request{
		Stage:     model.StageAnalyze,
		Model:     s.models.Analyze,
		System:    analyzeSystemPrompt,
		Prompt:    analyzeUserPrompt(ectx),
		ImageURL:  photoURL,
		MaxTokens: analyzeMaxTokens,
	})
	result.Duration = time.Since(start)
	if err != nil {
		return result, eris.Wrap(err, "vision: analyze")
	}
	result.Usage = s.usage(resp)

	var raw rawAnalysis
	if err := decodeJSON(resp.Text, &raw); err != nil {
		return result, eris.Wrap(err, "vision: parse analysis")
	}

	for _, ri := range raw.MenuItems {
		li, ok := ri.lineItem(photoURL)
		if !ok {
			continue
		}
		result.Items = append(result.Items, li)
		if li.Price != nil {
			result.HasPrices = true
		}
		if li.Description != nil {
			result.HasDescriptions = true
		}
	}
	result.HasPrices = result.HasPrices || raw.HasPrices
	result.HasDescriptions = result.HasDescriptions || raw.HasDescriptions

	if raw.TotalItems > 0 && raw.TotalItems != len(result.Items) {
		zap.L().Debug("vision: analysis item count mismatch",
			zap.String("photo_url", photoURL),
			zap.Int("reported", raw.TotalItems),
			zap.Int("parsed", len(result.Items)),
		)
	}
	return result, nil
}

// Aggregate consolidates items into a single menu. Empty input makes no call.
// A response with no items for non-empty input is an error so the caller can
// fall back to the raw items.
func (s *Service) Aggregate(ctx context.Context, items []model.LineItem, ectx model.EntityContext) ([]model.MenuItem, model.Usage, error) {
	if len(items) == 0 {
		return nil, model.Usage{}, nil
	}

	payload, err := json.Marshal(map[string]any{"menu_items": toWire(items)})
	if err != nil {
		return nil, model.Usage{}, eris.Wrap(err, "vision: marshal aggregation input")
	}

	resp, err := s.complete(ctx, s.timeouts.Aggregate, Request{
		Stage:     model.StageAggregate,
		Model:     s.models.Aggregate,
		System:    aggregateSystemPrompt,
		Prompt:    aggregateUserPrompt(ectx, string(payload), len(items)),
		MaxTokens: aggregateMaxTokens,
	})
	if err != nil {
		return nil, model.Usage{}, eris.Wrap(err, "vision: aggregate")
	}
	usage := s.usage(resp)

	var raw rawAggregation
	if err := decodeJSON(resp.Text, &raw); err != nil {
		return nil, usage, eris.Wrap(err, "vision: parse aggregation")
	}

	out := make([]model.MenuItem, 0, len(raw.MenuItems))
	for _, ri := range raw.MenuItems {
		if mi, ok := ri.menuItem(); ok {
			out = append(out, mi)
		}
	}
	if len(out) == 0 {
		return nil, usage, eris.Errorf("vision: aggregation returned no items for %d inputs", len(items))
	}
	return out, usage, nil
}

// Estimate returns a nutrition guess for a dish by name and description.
func (s *Service) Estimate(ctx context.Context, name, description string) (*model.NutritionEstimate, error) {
	if name == "" {
		return nil, eris.New("vision: estimate requires a dish name")
	}

	resp, err := s.complete(ctx, s.timeouts.Aggregate, Request{
		Stage:     model.StageAggregate,
		Model:     s.models.Aggregate,
		System:    nutritionSystemPrompt,
		Prompt:    nutritionUserPrompt(name, description),
		MaxTokens: estimateMaxTokens,
	})
	if err != nil {
		return nil, eris.Wrap(err, "vision: estimate")
	}

	est := &model.NutritionEstimate{Name: name, Usage: s.usage(resp)}
	var raw rawNutrition
	if err := decodeJSON(resp.Text, &raw); err != nil {
		return est, eris.Wrap(err, "vision: parse estimate")
	}
	est.Calories = raw.Calories.int()
	est.Protein = raw.Protein.float()
	est.Carbs = raw.Carbs.float()
	est.Fat = raw.Fat.float()
	est.Confidence = model.ParseConfidence(raw.Confidence)
	return est, nil
}

func (s *Service) complete(ctx context.Context, timeout time.Duration, req Request) (*Response, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	resp, err := s.completer.Complete(ctx, req)
	if err != nil {
		return nil, err
	}
	if resp == nil {
		return nil, eris.New("empty provider response")
	}
	return resp, nil
}

func (s *Service) usage(resp *Response) model.Usage {
	return model.Usage{
		Model:        resp.Model,
		InputTokens:  resp.InputTokens,
		OutputTokens: resp.OutputTokens,
		Cost:         s.calc.Cost(resp.Model, resp.InputTokens, resp.OutputTokens),
	}
}
