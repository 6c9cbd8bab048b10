package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestClockStrictlyIncreases(t *testing.T) {
	fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	c := &Clock{now: func() time.Time { return fixed }}

	a := c.Now()
	b := c.Now()
	assert.Equal(t, fixed, a)
	assert.True(t, b.After(a))
	assert.Equal(t, time.Millisecond, b.Sub(a))
}

func TestNewIDUnique(t *testing.T) {
	assert.NotEqual(t, NewID(), NewID())
}
