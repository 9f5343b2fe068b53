package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/sells-group/menu-cli/internal/discovery"
	"github.com/sells-group/menu-cli/internal/model"
	"github.com/sells-group/menu-cli/internal/store"
)

const (
	maxBodyBytes = 1 << 20
	maxListLimit = 500
)

// CandidateRequest is one restaurant in a trigger request.
type CandidateRequest struct {
	PlaceID   string   `json:"place_id" validate:"required,max=255"`
	Name      string   `json:"name,omitempty" validate:"max=500"`
	Address   string   `json:"address,omitempty" validate:"max=1000"`
	Latitude  float64  `json:"latitude,omitempty" validate:"gte=-90,lte=90"`
	Longitude float64  `json:"longitude,omitempty" validate:"gte=-180,lte=180"`
	Photos    []string `json:"photos,omitempty" validate:"max=100,dive,url"`
}

// TriggerRequest is the body of POST /trigger.
type TriggerRequest struct {
	Restaurants []CandidateRequest `json:"restaurants" validate:"required,min=1,max=200,dive"`
}

func (req TriggerRequest) candidates() []model.Candidate {
	out := make([]model.Candidate, len(req.Restaurants))
	for i, c := range req.Restaurants {
		out[i] = model.Candidate{
			PlaceID:   c.PlaceID,
			Name:      c.Name,
			Address:   c.Address,
			Latitude:  c.Latitude,
			Longitude: c.Longitude,
			Photos:    c.Photos,
		}
	}
	return out
}

// RestaurantResponse is the body of GET /restaurants/{placeID}.
type RestaurantResponse struct {
	Restaurant *model.Restaurant `json:"restaurant"`
	ItemCount  int               `json:"item_count"`
}

// MenuResponse is the body of GET /restaurants/{placeID}/menu.
type MenuResponse struct {
	PlaceID    string                 `json:"place_id"`
	Status     model.RestaurantStatus `json:"status"`
	Categories []string               `json:"categories"`
	Items      []model.MenuItem       `json:"items"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleTrigger(w http.ResponseWriter, r *http.Request) {
	var req TriggerRequest
	if !s.decode(w, r, &req) {
		return
	}

	res, err := s.trigger.Trigger(r.Context(), req.candidates())
	if err != nil {
		zap.L().Error("api: trigger failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "trigger failed")
		return
	}
	writeJSON(w, http.StatusAccepted, res)
}

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	if s.scanner == nil {
		writeError(w, http.StatusNotImplemented, "scan is not configured")
		return
	}
	var req discovery.ScanRequest
	if !s.decode(w, r, &req) {
		return
	}

	res, err := s.scanner.Scan(r.Context(), req)
	if err != nil {
		zap.L().Error("api: scan failed", zap.Error(err))
		writeError(w, http.StatusBadGateway, "scan failed")
		return
	}
	writeJSON(w, http.StatusAccepted, res)
}

// handleListRestaurants pages through restaurants, newest update first.
// Query parameters: status, limit (max 500), offset.
func (s *Server) handleListRestaurants(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var filter store.RestaurantFilter

	if raw := q.Get("status"); raw != "" {
		status, ok := model.ParseStatus(raw)
		if !ok {
			writeError(w, http.StatusBadRequest, "unknown status", raw)
			return
		}
		filter.Status = status
	}
	for name, dst := range map[string]*int{"limit": &filter.Limit, "offset": &filter.Offset} {
		raw := q.Get(name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, name+" must be a non-negative integer")
			return
		}
		*dst = n
	}
	if filter.Limit > maxListLimit {
		filter.Limit = maxListLimit
	}

	rs, err := s.store.ListRestaurants(r.Context(), filter)
	if err != nil {
		zap.L().Error("api: list restaurants", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list restaurants")
		return
	}
	if rs == nil {
		rs = []model.Restaurant{}
	}
	writeJSON(w, http.StatusOK, rs)
}

func (s *Server) handleGetRestaurant(w http.ResponseWriter, r *http.Request) {
	rest, ok := s.lookup(w, r)
	if !ok {
		return
	}
	items, err := s.store.ListMenuItems(r.Context(), rest.ID)
	if err != nil {
		zap.L().Error("api: list menu items", zap.String("place_id", rest.PlaceID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load menu")
		return
	}
	writeJSON(w, http.StatusOK, RestaurantResponse{Restaurant: rest, ItemCount: len(items)})
}

func (s *Server) handleGetMenu(w http.ResponseWriter, r *http.Request) {
	rest, ok := s.lookup(w, r)
	if !ok {
		return
	}
	items, err := s.store.ListMenuItems(r.Context(), rest.ID)
	if err != nil {
		zap.L().Error("api: list menu items", zap.String("place_id", rest.PlaceID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load menu")
		return
	}
	if items == nil {
		items = []model.MenuItem{}
	}

	cats := []string{}
	seen := make(map[string]bool)
	for _, it := range items {
		if it.Category != nil && *it.Category != "" && !seen[*it.Category] {
			seen[*it.Category] = true
			cats = append(cats, *it.Category)
		}
	}
	writeJSON(w, http.StatusOK, MenuResponse{
		PlaceID:    rest.PlaceID,
		Status:     rest.Status,
		Categories: cats,
		Items:      items,
	})
}

// handleCosts rolls up processing log costs by stage. Query parameters:
// place_id narrows to one restaurant, hours limits to a trailing window.
func (s *Server) handleCosts(w http.ResponseWriter, r *http.Request) {
	var filter store.CostFilter
	q := r.URL.Query()

	if placeID := q.Get("place_id"); placeID != "" {
		rest, err := s.store.GetRestaurant(r.Context(), placeID)
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "restaurant not found")
			return
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to load restaurant")
			return
		}
		filter.RestaurantID = rest.ID
	}
	if h := q.Get("hours"); h != "" {
		hours, err := strconv.Atoi(h)
		if err != nil || hours <= 0 {
			writeError(w, http.StatusBadRequest, "hours must be a positive integer")
			return
		}
		filter.Since = time.Now().UTC().Add(-time.Duration(hours) * time.Hour)
	}

	stages, err := s.store.CostSummary(r.Context(), filter)
	if err != nil {
		zap.L().Error("api: cost summary", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load costs")
		return
	}
	if stages == nil {
		stages = []model.CostSummary{}
	}

	total := model.CostSummary{Stage: "total"}
	for _, st := range stages {
		total.Calls += st.Calls
		total.Failures += st.Failures
		total.InputTokens += st.InputTokens
		total.OutputTokens += st.OutputTokens
		total.Cost = total.Cost.Add(st.Cost)
	}
	writeJSON(w, http.StatusOK, map[string]any{"stages": stages, "total": total})
}

func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (*model.Restaurant, bool) {
	placeID := chi.URLParam(r, "placeID")
	rest, err := s.store.GetRestaurant(r.Context(), placeID)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "restaurant not found")
		return nil, false
	}
	if err != nil {
		zap.L().Error("api: get restaurant", zap.String("place_id", placeID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load restaurant")
		return nil, false
	}
	return rest, true
}

// decode reads and validates a JSON body, writing a 400 on failure.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return false
	}
	if err := s.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			details := make([]string, len(verrs))
			for i, fe := range verrs {
				details[i] = fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag())
			}
			writeError(w, http.StatusBadRequest, "validation failed", details...)
			return false
		}
		writeError(w, http.StatusBadRequest, "validation failed", err.Error())
		return false
	}
	return true
}
