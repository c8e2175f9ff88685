package models

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewID_GeneratesDistinctIDs(t *testing.T) {
	a := NewID()
	b := NewID()
	assert.NotEqual(t, a, b)
}

func TestParseID_RoundTripsNewID(t *testing.T) {
	id := NewID()
	parsed, err := ParseID(id.String())
	require.NoError(t, err)
	assert.Equal(t, id, parsed)
}

func TestParseID_ReturnsNilAndErrorForInvalidString(t *testing.T) {
	parsed, err := ParseID("not-a-uuid")
	assert.Error(t, err)
	assert.Equal(t, uuid.Nil, parsed)
}
