package domain

import "github.com/google/uuid"

// UserIdentity is the display identity of an actor, read from the user directory.
type UserIdentity struct {
	ID    uuid.UUID `json:"id"`
	Name  string    `json:"name"`
	Email string    `json:"email"`
	Role  string    `json:"role"`
}
