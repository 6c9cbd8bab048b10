package presence

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRegisterIsIdempotent(t *testing.T) {
	r := NewRegistry()
	r.Register("bob", "h1")
	r.Register("bob", "h1")
	r.Register("bob", "h2")

	assert.Equal(t, []string{"h1", "h2"}, r.ActiveHandles("bob"))
	assert.True(t, r.Online("bob"))
}

func TestUnregisterTwiceIsNoop(t *testing.T) {
	r := NewRegistry()
	r.Register("bob", "h1")
	r.Register("bob", "h2")

	assert.True(t, r.Unregister("bob", "h1"))
	assert.False(t, r.Unregister("bob", "h1"))
	assert.Equal(t, []string{"h2"}, r.ActiveHandles("bob"))

	assert.True(t, r.Unregister("bob", "h2"))
	assert.False(t, r.Online("bob"))
	assert.Zero(t, r.Users())
	assert.Empty(t, r.ActiveHandles("bob"))
}

func TestUnknownUser(t *testing.T) {
	r := NewRegistry()
	assert.Empty(t, r.ActiveHandles("nobody"))
	assert.False(t, r.Unregister("nobody", "h"))
}

func TestConcurrentLifecycles(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			h := fmt.Sprintf("h%d", i)
			r.Register("bob", h)
			_ = r.ActiveHandles("bob")
			r.Unregister("bob", h)
		}(i)
	}
	wg.Wait()
	assert.False(t, r.Online("bob"))
}
