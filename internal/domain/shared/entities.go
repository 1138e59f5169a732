package shared

import (
	"time"

	"github.com/google/uuid"
)

// Bidder represents an authenticated marketplace user allowed to bid
type Bidder struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

// Vehicle is the catalog entry an auction is bound to. The catalog itself
// is an external collaborator; only the reference is held here.
type Vehicle struct {
	Ref       string    `json:"ref"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
