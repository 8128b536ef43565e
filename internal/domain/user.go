package domain

import "time"

// User is the profile stored for a verified identity. ID is the identity's
// stable id; PublicID is safe to expose to other users.
type User struct {
	ID        string
	PublicID  string
	Username  string
	Email     string
	FirstName string
	LastName  string
	CreatedAt time.Time
	UpdatedAt time.Time
}
