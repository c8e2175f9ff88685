// Package models holds the shared domain types for the competitor
// intelligence core: companies, crawl scheduling, news, snapshots,
// change events, and notification/digest records.
package models

import "github.com/google/uuid"

// ID is the opaque 128-bit identifier shared by every entity in the
// system. It is a thin alias over uuid.UUID so repositories can store
// and compare IDs without importing google/uuid everywhere.
type ID = uuid.UUID

// NewID generates a fresh random ID.
func NewID() ID {
	return uuid.New()
}

// ParseID parses a string-form ID, returning uuid.Nil on failure.
func ParseID(s string) (ID, error) {
	return uuid.Parse(s)
}
