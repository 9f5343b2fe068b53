package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/menu-cli/internal/config"
	"github.com/sells-group/menu-cli/internal/cost"
	"github.com/sells-group/menu-cli/internal/lock"
	"github.com/sells-group/menu-cli/internal/pipeline"
	"github.com/sells-group/menu-cli/internal/resilience"
	"github.com/sells-group/menu-cli/internal/store"
	"github.com/sells-group/menu-cli/internal/vision"
	anthropicpkg "github.com/sells-group/menu-cli/pkg/anthropic"
	openaipkg "github.com/sells-group/menu-cli/pkg/openai"
)

// appEnv holds the initialized store, vision service and pipeline needed by
// the process/trigger/scan/serve commands.
type appEnv struct {
	Store      store.Store
	Vision     *vision.Service
	Processor  *pipeline.Processor
	Controller *pipeline.Controller
	Lock       *lock.Locker // may be nil
}

// Close cancels in-flight runs and releases resources.
func (e *appEnv) Close() {
	if e.Controller != nil {
		e.Controller.Shutdown()
	}
	if e.Lock != nil {
		_ = e.Lock.Close()
	}
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initEnv validates config for mode and builds the full pipeline. Callers
// should defer env.Close().
func initEnv(ctx context.Context, mode string) (*appEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	svc, err := initVision(cfg)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	proc, err := newProcessor(cfg.Pipeline, st, svc)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	env := &appEnv{Store: st, Vision: svc, Processor: proc}

	opts := []pipeline.ControllerOption{pipeline.WithHeartbeat(secs(cfg.Pipeline.HeartbeatSecs))}
	if cfg.Redis.Addr != "" {
		l, err := lock.New(ctx, cfg.Redis)
		if err != nil {
			zap.L().Warn("redis run lock unavailable, relying on store claims", zap.Error(err))
		} else {
			env.Lock = l
			opts = append(opts, pipeline.WithRunLock(l))
			zap.L().Info("redis run lock enabled", zap.String("addr", cfg.Redis.Addr))
		}
	}
	env.Controller = pipeline.NewController(st, proc, cfg.Pipeline.EntityWorkers, opts...)

	return env, nil
}

// initVision builds the vision service for the configured provider, wrapped
// in the adaptive limiter and circuit breaker.
func initVision(c *config.Config) (*vision.Service, error) {
	var (
		completer vision.Completer
		models    vision.Models
	)
	switch c.Vision.Provider {
	case "anthropic":
		completer = vision.NewAnthropicCompleter(anthropicpkg.NewClient(c.Anthropic.Key, c.Anthropic.BaseURL))
		models = vision.Models{
			Classify:  c.Anthropic.ClassifyModel,
			Analyze:   c.Anthropic.AnalyzeModel,
			Aggregate: c.Anthropic.AggregateModel,
		}
	case "openai":
		completer = vision.NewOpenAICompleter(openaipkg.NewClient(c.OpenAI.Key, c.OpenAI.BaseURL))
		models = vision.Models{
			Classify:  c.OpenAI.ClassifyModel,
			Analyze:   c.OpenAI.AnalyzeModel,
			Aggregate: c.OpenAI.AggregateModel,
		}
	default:
		return nil, eris.Errorf("unsupported vision provider: %s", c.Vision.Provider)
	}

	var limiter *vision.AdaptiveLimiter
	if c.Vision.RequestsPerSecond > 0 {
		limiter = vision.NewAdaptiveLimiter(rate.Limit(c.Vision.RequestsPerSecond), c.Vision.Burst)
	}
	breakerCfg := resilience.NewCircuitConfig("vision."+c.Vision.Provider, c.Vision.CircuitFailureThreshold, c.Vision.CircuitResetSecs)
	breakerCfg.ShouldTrip = vision.TripOnProviderFailure
	guarded := vision.NewRateLimited(completer, limiter, resilience.NewCircuitBreaker(breakerCfg))

	rates := make(map[string]cost.ModelRate, len(c.Pricing.Models))
	for name, p := range c.Pricing.Models {
		rates[name] = cost.ModelRate{Input: p.Input, Output: p.Output}
	}
	calc := cost.NewCalculator(cost.DefaultRates().Merge(rates, c.Pricing.FallbackPer1K))

	return vision.NewService(guarded, models, vision.Timeouts{
		Classify:  secs(c.Vision.ClassifyTimeoutSecs),
		Analyze:   secs(c.Vision.AnalyzeTimeoutSecs),
		Aggregate: secs(c.Vision.AggregateTimeoutSecs),
	}, calc), nil
}

func newProcessor(pc config.PipelineConfig, st store.Store, svc *vision.Service) (*pipeline.Processor, error) {
	priority, err := pipeline.NewPhotoPriority(pc.PrimaryPhotoPattern, pc.SecondaryPhotoPattern)
	if err != nil {
		return nil, eris.Wrap(err, "photo priority patterns")
	}
	aggregator := pipeline.NewAggregator(pc.AggregationMode, svc, pc.SimilarityThreshold)
	return pipeline.NewProcessor(st, svc, svc, aggregator, pipeline.ProcessorConfig{
		ClassifyWorkers: pc.ClassifyWorkers,
		AnalyzeWorkers:  pc.AnalyzeWorkers,
		MaxPhotos:       pc.MaxPhotos,
		Priority:        priority,
		RunTimeout:      secs(pc.RunTimeoutSecs),
	}), nil
}

func secs(n int) time.Duration {
	if n <= 0 {
		return 0
	}
	return time.Duration(n) * time.Second
}
