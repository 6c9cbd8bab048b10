package utils

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

func NewID() string {
	return uuid.New().String()
}

// Clock hands out UTC timestamps truncated to milliseconds (the precision Mongo
// keeps) that strictly increase within the process.
type Clock struct {
	mu   sync.Mutex
	last time.Time
	now  func() time.Time
}

func NewClock() *Clock {
	return &Clock{now: time.Now}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.now().UTC().Truncate(time.Millisecond)
	if !t.After(c.last) {
		t = c.last.Add(time.Millisecond)
	}
	c.last = t
	return t
}
