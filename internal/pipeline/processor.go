package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/menu-cli/internal/model"
	"github.com/sells-group/menu-cli/internal/resilience"
	"github.com/sells-group/menu-cli/internal/store"
	"github.com/sells-group/menu-cli/internal/vision"
)

// Terminal errors that end a run before anything is persisted.
var (
	ErrNoPhotos             = eris.New("no images available")
	ErrClassificationFailed = eris.New("classification failed for every photo")
	ErrExtractionFailed     = eris.New("no menu items could be extracted: every menu photo failed")
)

// bookkeepingTimeout bounds terminal writes made after the run context ends.
const bookkeepingTimeout = 30 * time.Second

// PhotoSource lists the photographs of a restaurant.
type PhotoSource interface {
	ListPhotos(ctx context.Context, placeID string) ([]string, error)
}

// ProcessorConfig bounds a single restaurant run.
type ProcessorConfig struct {
	ClassifyWorkers int
	AnalyzeWorkers  int
	MaxPhotos       int
	Priority        *PhotoPriority
	RunTimeout      time.Duration
	Retry           resilience.RetryConfig
}

// Processor drives one restaurant through classification, analysis,
// aggregation and persistence.
type Processor struct {
	store      store.Store
	photos     PhotoSource
	classifier vision.Classifier
	analyzer   vision.Analyzer
	aggregator vision.Aggregator
	cfg        ProcessorConfig
}

// NewProcessor creates a Processor. Photos are read from the store.
func NewProcessor(st store.Store, classifier vision.Classifier, analyzer vision.Analyzer, aggregator vision.Aggregator, cfg ProcessorConfig) *Processor {
	if cfg.ClassifyWorkers < 1 {
		cfg.ClassifyWorkers = DefaultClassifyWorkers
	}
	if cfg.AnalyzeWorkers < 1 {
		cfg.AnalyzeWorkers = DefaultAnalyzeWorkers
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = resilience.StoreRetryConfig()
	}
	return &Processor{
		store:      st,
		photos:     st,
		classifier: classifier,
		analyzer:   analyzer,
		aggregator: aggregator,
		cfg:        cfg,
	}
}

// WithPhotoSource overrides where photographs are read from.
func (p *Processor) WithPhotoSource(src PhotoSource) *Processor {
	p.photos = src
	return p
}

// run carries the per-restaurant state of one Process call.
type run struct {
	p      *Processor
	r      model.Restaurant
	log    *zap.Logger
	report *model.RunReport
	queue  *model.QueueEntry
	start  time.Time
}

// Process runs the full extraction for a restaurant already claimed as
// processing. The restaurant always ends finished or error; the returned
// error is non-nil exactly when it ends in error.
func (p *Processor) Process(ctx context.Context, r model.Restaurant) (*model.RunReport, error) {
	if p.cfg.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.RunTimeout)
		defer cancel()
	}

	rn := &run{
		p:     p,
		r:     r,
		log:   zap.L().With(zap.String("place_id", r.PlaceID), zap.String("restaurant_id", r.ID)),
		start: time.Now(),
		report: &model.RunReport{
			RestaurantID: r.ID,
			PlaceID:      r.PlaceID,
			Status:       model.StatusProcessing,
		},
	}
	rn.log.Info("processor: starting run")

	queue, err := p.store.BeginQueueEntry(ctx, r.ID, model.TaskMenuExtraction)
	if err != nil {
		rn.log.Warn("processor: begin queue entry failed", zap.Error(err))
	}
	rn.queue = queue

	items, err := rn.extract(ctx)
	if err != nil {
		return rn.fail(err)
	}

	rn.enter(ctx, model.PhasePersisting)
	for i := range items {
		items[i].RestaurantID = r.ID
	}
	if err := p.store.ReplaceMenuItems(ctx, r.ID, items); err != nil {
		return rn.fail(eris.Wrap(err, "persist menu items"))
	}
	rn.report.FinalItems = len(items)
	return rn.finish()
}

// extract runs the remote stages and returns the items to persist.
func (rn *run) extract(ctx context.Context) ([]model.MenuItem, error) {
	p := rn.p

	rn.enter(ctx, model.PhaseFetching)
	photos, err := p.photos.ListPhotos(ctx, rn.r.PlaceID)
	if err != nil {
		return nil, eris.Wrap(err, "fetch photos")
	}
	photos = SelectPhotos(photos, p.cfg.Priority, p.cfg.MaxPhotos)
	if len(photos) == 0 {
		return nil, ErrNoPhotos
	}
	rn.report.PhotosTotal = len(photos)

	rn.enter(ctx, model.PhaseClassifying)
	classified := ClassifyPhotos(ctx, photos, p.classifier, p.cfg.ClassifyWorkers)
	rn.record(ctx, classifyLogs(rn.r, classified))
	rn.report.Usage.Add(classificationUsage(classified))
	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "classification interrupted")
	}
	if firstErr, failed := firstFailure(classified); failed == len(classified) {
		rn.log.Warn("processor: every classification failed",
			zap.Int("photos", failed),
			zap.String("first_error", firstErr),
		)
		return nil, ErrClassificationFailed
	}

	menuPhotos := MenuPhotos(classified)
	rn.report.MenuPhotos = len(menuPhotos)
	if len(menuPhotos) == 0 {
		rn.log.Info("processor: no menu photographs found", zap.Int("photos", len(photos)))
		return nil, nil
	}

	rn.enter(ctx, model.PhaseAnalyzing)
	analyzed := AnalyzePhotos(ctx, menuPhotos, rn.r.Context(), p.analyzer, p.cfg.AnalyzeWorkers)
	rn.record(ctx, analyzeLogs(rn.r, analyzed))
	rn.report.Usage.Add(analysisUsage(analyzed))
	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "analysis interrupted")
	}

	var firstErr string
	for _, a := range analyzed {
		if a.Error == "" {
			rn.report.AnalyzedPhotos++
		} else if firstErr == "" {
			firstErr = a.Error
		}
	}
	if rn.report.AnalyzedPhotos == 0 {
		// A provider outage must not replace a stored menu with nothing.
		rn.log.Warn("processor: every extraction failed",
			zap.Int("menu_photos", len(menuPhotos)),
			zap.String("first_error", firstErr),
		)
		return nil, ErrExtractionFailed
	}

	raw := CollectItems(analyzed)
	rn.report.RawItems = len(raw)
	if len(raw) == 0 {
		rn.log.Info("processor: no line items extracted", zap.Int("menu_photos", len(menuPhotos)))
		return nil, nil
	}

	rn.enter(ctx, model.PhaseAggregating)
	start := time.Now()
	agg := AggregateItems(ctx, raw, rn.r.Context(), p.aggregator)
	if entry, ok := aggregateLog(rn.r, agg, time.Since(start)); ok {
		rn.record(ctx, []model.ProcessingLogEntry{entry})
	}
	rn.report.Usage.Add(agg.Usage)
	rn.report.FailedOpen = agg.FailedOpen
	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "aggregation interrupted")
	}
	return agg.Items, nil
}

// enter moves the run into a new internal phase. Only the queue entry and the
// log see it; the restaurant stays processing, with its claim refreshed so the
// stale sweep leaves it alone.
func (rn *run) enter(ctx context.Context, phase model.Phase) {
	rn.report.Phase = phase
	rn.log.Debug("processor: phase", zap.String("phase", string(phase)))
	if _, err := rn.p.store.TouchProcessing(ctx, []string{rn.r.PlaceID}); err != nil {
		rn.log.Warn("processor: refresh claim failed", zap.String("phase", string(phase)), zap.Error(err))
	}
	if rn.queue == nil {
		return
	}
	rn.queue.Phase = phase
	if err := rn.p.store.UpdateQueueEntry(ctx, *rn.queue); err != nil {
		rn.log.Warn("processor: update queue entry failed", zap.String("phase", string(phase)), zap.Error(err))
	}
}

// record appends processing log entries. Accounting failures never fail the run.
func (rn *run) record(ctx context.Context, entries []model.ProcessingLogEntry) {
	if len(entries) == 0 {
		return
	}
	if err := rn.p.store.InsertProcessingLogs(ctx, entries); err != nil {
		rn.log.Warn("processor: insert processing logs failed", zap.Int("entries", len(entries)), zap.Error(err))
	}
}

func (rn *run) finish() (*model.RunReport, error) {
	rn.report.Status = model.StatusFinished
	rn.report.Phase = model.PhaseFinished
	rn.report.Duration = time.Since(rn.start)

	if err := rn.terminal(model.StatusFinished, ""); err != nil {
		rn.report.Status = model.StatusError
		rn.report.Error = err.Error()
		return rn.report, err
	}

	rn.log.Info("processor: run finished",
		zap.Int("photos", rn.report.PhotosTotal),
		zap.Int("menu_photos", rn.report.MenuPhotos),
		zap.Int("raw_items", rn.report.RawItems),
		zap.Int("final_items", rn.report.FinalItems),
		zap.Bool("failed_open", rn.report.FailedOpen),
		zap.Int64("input_tokens", rn.report.Usage.InputTokens),
		zap.Int64("output_tokens", rn.report.Usage.OutputTokens),
		zap.String("cost_usd", rn.report.Usage.Cost.StringFixed(6)),
		zap.Duration("duration", rn.report.Duration),
	)
	return rn.report, nil
}

func (rn *run) fail(cause error) (*model.RunReport, error) {
	rn.report.Status = model.StatusError
	rn.report.Phase = model.PhaseError
	rn.report.Error = cause.Error()
	rn.report.Duration = time.Since(rn.start)

	rn.log.Error("processor: run failed", zap.Error(cause))
	if err := rn.terminal(model.StatusError, cause.Error()); err != nil {
		return rn.report, errors.Join(cause, err)
	}
	return rn.report, eris.Wrapf(cause, "processor: %s", rn.r.PlaceID)
}

// terminal writes the final restaurant status and queue state. It runs on a
// context detached from the run so a timed-out run still records its outcome.
func (rn *run) terminal(status model.RestaurantStatus, errMsg string) error {
	ctx, cancel := context.WithTimeout(context.Background(), bookkeepingTimeout)
	defer cancel()

	cfg := rn.p.cfg.Retry
	cfg.OnRetry = resilience.RetryLogger("processor", "update status")
	err := resilience.Do(ctx, cfg, func(ctx context.Context) error {
		return rn.p.store.UpdateStatus(ctx, rn.r.PlaceID, status, errMsg)
	})
	if err != nil {
		rn.log.Error("processor: terminal status write failed", zap.String("status", string(status)), zap.Error(err))
		err = eris.Wrap(err, "processor: update status")
	}

	if rn.queue != nil {
		rn.queue.Status = status
		rn.queue.Phase = rn.report.Phase
		rn.queue.LastError = errMsg
		qcfg := rn.p.cfg.Retry
		qcfg.OnRetry = resilience.RetryLogger("processor", "update queue entry")
		if qerr := resilience.Do(ctx, qcfg, func(ctx context.Context) error {
			return rn.p.store.UpdateQueueEntry(ctx, *rn.queue)
		}); qerr != nil {
			rn.log.Warn("processor: final queue update failed", zap.Error(qerr))
		}
	}
	return err
}

// firstFailure returns the first classification error and how many failed.
func firstFailure(results []model.ClassificationResult) (string, int) {
	var first string
	failed := 0
	for _, c := range results {
		if c.Error == "" {
			continue
		}
		if failed == 0 {
			first = c.Error
		}
		failed++
	}
	return first, failed
}

func classifyLogs(r model.Restaurant, results []model.ClassificationResult) []model.ProcessingLogEntry {
	entries := make([]model.ProcessingLogEntry, 0, len(results))
	for _, c := range results {
		isMenu := c.IsMenu
		e := model.ProcessingLogEntry{
			RestaurantID: r.ID,
			PlaceID:      r.PlaceID,
			PhotoURL:     c.PhotoURL,
			Stage:        model.StageClassify,
			Status:       model.LogStatusSuccess,
			Model:        c.Usage.Model,
			InputTokens:  c.Usage.InputTokens,
			OutputTokens: c.Usage.OutputTokens,
			Cost:         c.Usage.Cost,
			IsMenu:       &isMenu,
			DurationMs:   c.Duration.Milliseconds(),
		}
		if c.Error != "" {
			e.Status = model.LogStatusFailed
			e.Error = c.Error
		}
		entries = append(entries, e)
	}
	return entries
}

func analyzeLogs(r model.Restaurant, results []model.AnalysisResult) []model.ProcessingLogEntry {
	entries := make([]model.ProcessingLogEntry, 0, len(results))
	for _, a := range results {
		e := model.ProcessingLogEntry{
			RestaurantID: r.ID,
			PlaceID:      r.PlaceID,
			PhotoURL:     a.PhotoURL,
			Stage:        model.StageAnalyze,
			Status:       model.LogStatusSuccess,
			Model:        a.Usage.Model,
			InputTokens:  a.Usage.InputTokens,
			OutputTokens: a.Usage.OutputTokens,
			Cost:         a.Usage.Cost,
			ItemCount:    len(a.Items),
			DurationMs:   a.Duration.Milliseconds(),
		}
		if a.Error != "" {
			e.Status = model.LogStatusFailed
			e.Error = a.Error
		}
		entries = append(entries, e)
	}
	return entries
}

// aggregateLog builds the log entry for a remote aggregation call. Local
// merges make no call and are not logged.
func aggregateLog(r model.Restaurant, agg model.AggregationResult, d time.Duration) (model.ProcessingLogEntry, bool) {
	if agg.Usage.TotalTokens() == 0 && agg.Error == "" {
		return model.ProcessingLogEntry{}, false
	}
	e := model.ProcessingLogEntry{
		RestaurantID: r.ID,
		PlaceID:      r.PlaceID,
		Stage:        model.StageAggregate,
		Status:       model.LogStatusSuccess,
		Model:        agg.Usage.Model,
		InputTokens:  agg.Usage.InputTokens,
		OutputTokens: agg.Usage.OutputTokens,
		Cost:         agg.Usage.Cost,
		ItemCount:    len(agg.Items),
		DurationMs:   d.Milliseconds(),
	}
	if agg.FailedOpen {
		e.Status = model.LogStatusFailed
		e.Error = agg.Error
	}
	return e, true
}
