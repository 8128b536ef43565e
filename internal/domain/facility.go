package domain

import "time"

// Location is a WGS84 point.
type Location struct {
	Latitude  float64
	Longitude float64
}

// Facility is a washroom with its denormalized rating aggregate.
type Facility struct {
	ID               string
	Name             string
	Description      string
	Address          string
	City             string
	Country          string
	Location         Location
	OpeningHours     *string
	WheelchairAccess bool
	OverallRating    float64
	RatingCount      int64
	CreatedBy        *string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}
