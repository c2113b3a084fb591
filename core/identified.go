package core

import (
	"time"

	"github.com/google/uuid"
)

// Identified is embedded by every persisted entity. The identity is assigned
// at construction and restored verbatim on decode.
type Identified struct {
	ID        string    `json:"uuid"`
	CreatedAt time.Time `json:"created_at"`
}

// NewIdentified returns a fresh identity stamped with the current UTC time.
func NewIdentified() Identified {
	return Identified{ID: NewID(), CreatedAt: time.Now().UTC()}
}

// Identity returns the embedded identity.
func (i Identified) Identity() Identified { return i }

// NewID returns a new random identifier.
func NewID() string {
	return uuid.NewString()
}
