package core

import "github.com/google/uuid"

// NewID generates a unique identifier for sessions, agents, messages and
// knowledge records. Returns a string representation of a new UUID.
func NewID() string { return uuid.NewString() }
