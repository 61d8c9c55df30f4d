package utils

import (
	"github.com/google/uuid"
)

// GenerateID returns a new unique identifier string. IDs are UUIDv7, so
// auctions created later sort after earlier ones in the store.
func GenerateID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
