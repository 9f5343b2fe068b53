package pipeline

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/menu-cli/internal/model"
	"github.com/sells-group/menu-cli/internal/store"
)

// DefaultEntityWorkers bounds how many restaurants run at once.
const DefaultEntityWorkers = 3

// DefaultHeartbeat is how often claims of queued and running restaurants are
// refreshed. The stale sweep window must be several heartbeats long.
const DefaultHeartbeat = time.Minute

// Runner processes a single claimed restaurant.
type Runner interface {
	Process(ctx context.Context, r model.Restaurant) (*model.RunReport, error)
}

// RunLock is an optional cross-process barrier taken before a claim and held
// for the whole run.
type RunLock interface {
	TryLock(ctx context.Context, placeID string) (unlock func(), ok bool, err error)
}

// TriggerResult is the triage outcome returned to the caller.
type TriggerResult struct {
	Total             int                               `json:"total"`
	Accepted          int                               `json:"accepted"`
	Skipped           int                               `json:"skipped"`
	SkippedWithStatus map[string]model.RestaurantStatus `json:"skipped_with_status"`
	Dispatched        bool                              `json:"dispatched"`
	AcceptedIDs       []string                          `json:"accepted_ids,omitempty"`
}

// skip counts a skipped candidate. An empty status means none is known and
// the candidate is left out of SkippedWithStatus.
func (r *TriggerResult) skip(placeID string, status model.RestaurantStatus) {
	r.Skipped++
	if status != "" {
		r.SkippedWithStatus[placeID] = status
	}
}

// Controller triages candidates, claims them and runs them in the background
// with a bounded number of concurrent restaurants.
type Controller struct {
	store  store.Store
	runner Runner
	lock   RunLock

	base      context.Context
	cancel    context.CancelFunc
	group     *errgroup.Group
	wg        sync.WaitGroup
	heartbeat time.Duration

	// inflight holds place ids claimed by this controller and not yet done.
	mu       sync.Mutex
	inflight map[string]struct{}
}

// ControllerOption configures a Controller.
type ControllerOption func(*Controller)

// WithRunLock adds a cross-process lock in front of the store claim.
func WithRunLock(l RunLock) ControllerOption {
	return func(c *Controller) { c.lock = l }
}

// WithHeartbeat sets how often in-flight claims are refreshed. Non-positive
// values keep DefaultHeartbeat.
func WithHeartbeat(d time.Duration) ControllerOption {
	return func(c *Controller) {
		if d > 0 {
			c.heartbeat = d
		}
	}
}

// NewController creates a Controller that runs at most workers restaurants
// concurrently.
func NewController(st store.Store, runner Runner, workers int, opts ...ControllerOption) *Controller {
	if workers < 1 {
		workers = DefaultEntityWorkers
	}
	base, cancel := context.WithCancel(context.Background())
	g := &errgroup.Group{}
	g.SetLimit(workers)

	c := &Controller{
		store:     st,
		runner:    runner,
		base:      base,
		cancel:    cancel,
		group:     g,
		heartbeat: DefaultHeartbeat,
		inflight:  make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	go c.beat()
	return c
}

// beat refreshes the claims of every restaurant this controller still owns,
// including ones waiting for a worker slot, until Shutdown.
func (c *Controller) beat() {
	ticker := time.NewTicker(c.heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-c.base.Done():
			return
		case <-ticker.C:
			ids := c.owned()
			if len(ids) == 0 {
				continue
			}
			if _, err := c.store.TouchProcessing(c.base, ids); err != nil {
				zap.L().Warn("controller: heartbeat failed", zap.Int("restaurants", len(ids)), zap.Error(err))
			}
		}
	}
}

func (c *Controller) owned() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]string, 0, len(c.inflight))
	for id := range c.inflight {
		ids = append(ids, id)
	}
	return ids
}

// own marks placeID as in flight here. It reports false if it already was.
func (c *Controller) own(placeID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.inflight[placeID]; ok {
		return false
	}
	c.inflight[placeID] = struct{}{}
	return true
}

func (c *Controller) disown(placeID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.inflight, placeID)
}

// claimed is a restaurant this controller now owns.
type claimed struct {
	restaurant model.Restaurant
	unlock     func()
}

// Trigger decides which candidates need a run, claims them and starts the runs
// in the background. It returns as soon as triage is done; run outcomes are
// only visible through restaurant status.
func (c *Controller) Trigger(ctx context.Context, candidates []model.Candidate) (*TriggerResult, error) {
	unique := make([]model.Candidate, 0, len(candidates))
	seen := make(map[string]bool, len(candidates))
	for i, cand := range candidates {
		cand.PlaceID = strings.TrimSpace(cand.PlaceID)
		if cand.PlaceID == "" {
			return nil, eris.Errorf("controller: candidate %d has no place id", i)
		}
		if seen[cand.PlaceID] {
			continue
		}
		seen[cand.PlaceID] = true
		unique = append(unique, cand)
	}

	result := &TriggerResult{
		Total:             len(unique),
		SkippedWithStatus: make(map[string]model.RestaurantStatus),
	}
	if len(unique) == 0 {
		return result, nil
	}

	ids := make([]string, len(unique))
	for i, cand := range unique {
		ids[i] = cand.PlaceID
	}
	statuses, err := c.store.BatchStatuses(ctx, ids)
	if err != nil {
		return nil, eris.Wrap(err, "controller: batch statuses")
	}

	var runs []claimed
	for _, cand := range unique {
		status, known := statuses[cand.PlaceID]
		if known && !status.Claimable() {
			result.skip(cand.PlaceID, status)
			continue
		}

		cl, outcome := c.claim(ctx, cand, status)
		if !outcome.won {
			result.skip(cand.PlaceID, outcome.status)
			continue
		}
		runs = append(runs, cl)
		result.Accepted++
		result.AcceptedIDs = append(result.AcceptedIDs, cand.PlaceID)
	}

	zap.L().Info("controller: triage complete",
		zap.Int("total", result.Total),
		zap.Int("accepted", result.Accepted),
		zap.Int("skipped", result.Skipped),
	)

	if len(runs) > 0 {
		c.dispatch(runs)
		result.Dispatched = true
	}
	return result, nil
}

type claimOutcome struct {
	won    bool
	status model.RestaurantStatus
}

// claim creates unknown restaurants, takes the optional run lock and performs
// the conditional status update. prior is the status read at triage, empty
// for unknown restaurants. A lost claim reports processing; a store error
// reports prior.
func (c *Controller) claim(ctx context.Context, cand model.Candidate, prior model.RestaurantStatus) (claimed, claimOutcome) {
	log := zap.L().With(zap.String("place_id", cand.PlaceID))
	lost := claimOutcome{status: model.StatusProcessing}
	failed := claimOutcome{status: prior}

	// A run still owned here is never started twice, whatever the store says.
	if !c.own(cand.PlaceID) {
		log.Info("controller: run already in flight")
		return claimed{}, lost
	}
	won := false
	defer func() {
		if !won {
			c.disown(cand.PlaceID)
		}
	}()

	if prior == "" {
		if _, err := c.store.CreateRestaurant(ctx, cand.Restaurant()); err != nil {
			log.Error("controller: create restaurant failed", zap.Error(err))
			return claimed{}, failed
		}
	}

	var unlock func()
	if c.lock != nil {
		release, ok, err := c.lock.TryLock(ctx, cand.PlaceID)
		if err != nil {
			log.Warn("controller: run lock unavailable, relying on store claim", zap.Error(err))
		} else if !ok {
			log.Info("controller: run lock held elsewhere")
			return claimed{}, lost
		} else {
			unlock = release
		}
	}
	releaseLock := func() {
		if unlock != nil {
			unlock()
		}
	}

	ok, err := c.store.ClaimForProcessing(ctx, cand.PlaceID)
	if err != nil {
		releaseLock()
		log.Error("controller: claim failed", zap.Error(err))
		return claimed{}, failed
	}
	if !ok {
		releaseLock()
		log.Info("controller: claim lost to a concurrent trigger")
		return claimed{}, lost
	}
	won = true

	r, err := c.store.GetRestaurant(ctx, cand.PlaceID)
	if err != nil {
		// The claim stands; the run reads what it can and records the outcome.
		log.Warn("controller: reload after claim failed", zap.Error(err))
		fallback := cand.Restaurant()
		fallback.Status = model.StatusProcessing
		r = &fallback
	}
	return claimed{restaurant: *r, unlock: unlock}, claimOutcome{won: true, status: model.StatusProcessing}
}

// dispatch hands claimed restaurants to the worker group without blocking the
// caller. Runs use the controller's own context, not the trigger's.
func (c *Controller) dispatch(runs []claimed) {
	c.wg.Add(len(runs))
	go func() {
		for _, cl := range runs {
			c.group.Go(func() error {
				defer c.wg.Done()
				defer c.disown(cl.restaurant.PlaceID)
				if cl.unlock != nil {
					defer cl.unlock()
				}
				c.execute(cl.restaurant)
				return nil
			})
		}
	}()
}

func (c *Controller) execute(r model.Restaurant) {
	log := zap.L().With(zap.String("place_id", r.PlaceID))
	defer func() {
		if rec := recover(); rec != nil {
			log.Error("controller: run panicked", zap.Any("panic", rec))
			ctx, cancel := context.WithTimeout(context.Background(), bookkeepingTimeout)
			defer cancel()
			if err := c.store.UpdateStatus(ctx, r.PlaceID, model.StatusError, "internal error"); err != nil {
				log.Error("controller: status write after panic failed", zap.Error(err))
			}
		}
	}()

	// The claim may have waited a while for a worker slot.
	if _, err := c.store.TouchProcessing(c.base, []string{r.PlaceID}); err != nil {
		log.Warn("controller: refresh claim failed", zap.Error(err))
	}

	report, err := c.runner.Process(c.base, r)
	if err != nil {
		log.Warn("controller: run ended in error", zap.Error(err))
		return
	}
	if report != nil {
		log.Info("controller: run complete", zap.Int("items", report.FinalItems))
	}
}

// Wait blocks until every dispatched run has finished.
func (c *Controller) Wait() {
	c.wg.Wait()
}

// Shutdown cancels in-flight runs and waits for them to record their outcome.
func (c *Controller) Shutdown() {
	c.cancel()
	c.wg.Wait()
}
