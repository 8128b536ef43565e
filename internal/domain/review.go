package domain

import "time"

const (
	MinRating = 1
	MaxRating = 5
)

// Review is a single author's rating of one facility.
type Review struct {
	ID         string
	FacilityID string
	AuthorID   string
	Rating     int
	Title      *string
	Body       *string
	Likes      int
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// ValidRating reports whether r is an accepted star rating.
func ValidRating(r int) bool {
	return r >= MinRating && r <= MaxRating
}
