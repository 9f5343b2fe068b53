package discovery

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/sells-group/menu-cli/internal/config"
	"github.com/sells-group/menu-cli/internal/model"
	"github.com/sells-group/menu-cli/internal/pipeline"
	"github.com/sells-group/menu-cli/internal/store"
	"github.com/sells-group/menu-cli/pkg/google"
)

const (
	defaultMaxPhotos    = 10
	defaultPhotoWidthPx = 1600
	photoWorkers        = 4
)

// Triggerer hands discovered restaurants to the extraction controller.
type Triggerer interface {
	Trigger(ctx context.Context, candidates []model.Candidate) (*pipeline.TriggerResult, error)
}

// ScanRequest describes an area (or text query) to scan for restaurants.
type ScanRequest struct {
	Latitude     float64 `json:"latitude" validate:"gte=-90,lte=90"`
	Longitude    float64 `json:"longitude" validate:"gte=-180,lte=180"`
	RadiusMeters float64 `json:"radius_meters,omitempty" validate:"omitempty,gt=0,lte=50000"`
	Query        string  `json:"query,omitempty" validate:"omitempty,max=200"`
	MaxResults   int     `json:"max_results,omitempty" validate:"omitempty,gt=0,lte=20"`
}

// ScanResult reports what a scan found and what it dispatched.
type ScanResult struct {
	Found   int                     `json:"found"`
	Saved   int64                   `json:"saved"`
	Photos  int                     `json:"photos"`
	Trigger *pipeline.TriggerResult `json:"trigger,omitempty"`
}

// Scanner discovers restaurants through Google Places, stores them and
// triggers menu extraction for the ones that need it.
type Scanner struct {
	store   store.Store
	places  google.Client
	trigger Triggerer
	limiter *rate.Limiter
	cfg     config.GoogleConfig
}

// NewScanner creates a Scanner. Photo lookups share one limiter at
// cfg.RateLimit requests per second.
func NewScanner(st store.Store, places google.Client, trigger Triggerer, cfg config.GoogleConfig) *Scanner {
	rps := cfg.RateLimit
	if rps <= 0 {
		rps = 10
	}
	return &Scanner{
		store:   st,
		places:  places,
		trigger: trigger,
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
		cfg:     cfg,
	}
}

// Scan searches, upserts the restaurants it finds and triggers extraction.
func (s *Scanner) Scan(ctx context.Context, req ScanRequest) (*ScanResult, error) {
	log := zap.L().With(zap.String("component", "discovery.scan"))

	places, err := s.search(ctx, req)
	if err != nil {
		return nil, err
	}
	log.Info("scan: places found", zap.Int("count", len(places)))

	candidates := make([]model.Candidate, len(places))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(photoWorkers)
	for i, p := range places {
		g.Go(func() error {
			candidates[i] = model.Candidate{
				PlaceID:   p.ID,
				Name:      p.DisplayName.Text,
				Address:   p.FormattedAddress,
				Latitude:  p.Location.Latitude,
				Longitude: p.Location.Longitude,
				Photos:    s.resolvePhotos(gCtx, p),
			}
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "scan: resolve photos")
	}

	result := &ScanResult{Found: len(candidates)}
	if len(candidates) == 0 {
		return result, nil
	}

	rows := make([]model.Restaurant, len(candidates))
	for i, c := range candidates {
		rows[i] = c.Restaurant()
		result.Photos += len(c.Photos)
	}
	saved, err := s.store.UpsertRestaurants(ctx, rows)
	if err != nil {
		return nil, eris.Wrap(err, "scan: upsert restaurants")
	}
	result.Saved = saved

	tr, err := s.trigger.Trigger(ctx, candidates)
	if err != nil {
		return nil, eris.Wrap(err, "scan: trigger")
	}
	result.Trigger = tr

	log.Info("scan: complete",
		zap.Int("found", result.Found),
		zap.Int64("saved", result.Saved),
		zap.Int("photos", result.Photos),
		zap.Int("accepted", tr.Accepted),
	)
	return result, nil
}

func (s *Scanner) search(ctx context.Context, req ScanRequest) ([]google.Place, error) {
	var (
		resp *google.SearchResponse
		err  error
	)
	if q := strings.TrimSpace(req.Query); q != "" {
		resp, err = s.places.TextSearch(ctx, q)
	} else {
		radius := req.RadiusMeters
		if radius <= 0 {
			radius = float64(s.cfg.RadiusMeters)
		}
		maxResults := req.MaxResults
		if maxResults <= 0 {
			maxResults = s.cfg.MaxResults
		}
		resp, err = s.places.NearbySearch(ctx, google.NearbySearchRequest{
			Latitude:     req.Latitude,
			Longitude:    req.Longitude,
			RadiusMeters: radius,
			MaxResults:   maxResults,
		})
	}
	if err != nil {
		return nil, eris.Wrap(err, "scan: places search")
	}

	var places []google.Place
	seen := make(map[string]bool)
	for _, p := range resp.Places {
		if p.ID == "" || seen[p.ID] {
			continue
		}
		seen[p.ID] = true
		places = append(places, p)
	}
	return places, nil
}

// resolvePhotos turns photo resource names into image URLs. Failed lookups
// are skipped.
func (s *Scanner) resolvePhotos(ctx context.Context, p google.Place) []string {
	limit := s.cfg.MaxPhotos
	if limit <= 0 {
		limit = defaultMaxPhotos
	}
	refs := p.Photos
	if len(refs) > limit {
		refs = refs[:limit]
	}

	var urls []string
	for _, ref := range refs {
		if err := s.limiter.Wait(ctx); err != nil {
			return urls
		}
		uri, err := s.places.PhotoURI(ctx, ref.Name, defaultPhotoWidthPx)
		if err != nil {
			zap.L().Debug("scan: photo lookup failed",
				zap.String("place_id", p.ID),
				zap.String("photo", ref.Name),
				zap.Error(err),
			)
			continue
		}
		urls = append(urls, uri)
	}
	return urls
}
