package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCompany_IsGlobal_TrueWhenOwnerIDNil(t *testing.T) {
	c := Company{}
	assert.True(t, c.IsGlobal())
}

func TestCompany_IsGlobal_FalseWhenOwned(t *testing.T) {
	owner := NewID()
	c := Company{OwnerID: &owner}
	assert.False(t, c.IsGlobal())
}
