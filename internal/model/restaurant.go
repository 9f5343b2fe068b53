package model

import (
	"strings"
	"time"
)

// RestaurantStatus is the externally visible processing state of a restaurant.
type RestaurantStatus string

const (
	StatusNew        RestaurantStatus = "new"
	StatusPending    RestaurantStatus = "pending"
	StatusProcessing RestaurantStatus = "processing"
	StatusFinished   RestaurantStatus = "finished"
	StatusError      RestaurantStatus = "error"
)

// AllStatuses returns every known restaurant status in lifecycle order.
func AllStatuses() []RestaurantStatus {
	return []RestaurantStatus{StatusNew, StatusPending, StatusProcessing, StatusFinished, StatusError}
}

// ParseStatus converts a raw status string. Unknown values report false.
func ParseStatus(s string) (RestaurantStatus, bool) {
	st := RestaurantStatus(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range AllStatuses() {
		if st == known {
			return st, true
		}
	}
	return "", false
}

// Claimable reports whether a trigger may move the restaurant into processing.
// Anything other than processing or finished is claimable, including statuses
// this build does not recognise.
func (s RestaurantStatus) Claimable() bool {
	return s != StatusProcessing && s != StatusFinished
}

// Terminal reports whether a run ended in this status.
func (s RestaurantStatus) Terminal() bool {
	return s == StatusFinished || s == StatusError
}

// Restaurant is a place whose photographs are mined for a menu.
type Restaurant struct {
	ID          string           `json:"id"`
	PlaceID     string           `json:"place_id"`
	Name        string           `json:"name"`
	Address     string           `json:"address,omitempty"`
	Latitude    float64          `json:"latitude"`
	Longitude   float64          `json:"longitude"`
	Photos      []string         `json:"photos,omitempty"`
	Status      RestaurantStatus `json:"status"`
	StatusError string           `json:"status_error,omitempty"`
	ProcessedAt *time.Time       `json:"processed_at,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

// Context returns the entity context passed to the vision collaborators.
func (r Restaurant) Context() EntityContext {
	return EntityContext{
		PlaceID:   r.PlaceID,
		Name:      r.Name,
		Address:   r.Address,
		Latitude:  r.Latitude,
		Longitude: r.Longitude,
	}
}

// Candidate is a restaurant offered to the trigger controller. Only PlaceID is
// required; the remaining fields seed a new row when the place is unknown.
type Candidate struct {
	PlaceID   string   `json:"place_id"`
	Name      string   `json:"name,omitempty"`
	Address   string   `json:"address,omitempty"`
	Latitude  float64  `json:"latitude,omitempty"`
	Longitude float64  `json:"longitude,omitempty"`
	Photos    []string `json:"photos,omitempty"`
}

// Restaurant converts the candidate into a pending restaurant row.
func (c Candidate) Restaurant() Restaurant {
	return Restaurant{
		PlaceID:   c.PlaceID,
		Name:      c.Name,
		Address:   c.Address,
		Latitude:  c.Latitude,
		Longitude: c.Longitude,
		Photos:    c.Photos,
		Status:    StatusPending,
	}
}

// EntityContext carries the restaurant facts used to ground extraction prompts.
type EntityContext struct {
	PlaceID   string  `json:"place_id"`
	Name      string  `json:"name"`
	Address   string  `json:"address,omitempty"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}
