package client

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTokenHolder(t *testing.T) {
	h := NewTokenHolder()

	_, ok := h.Get()
	assert.False(t, ok)

	h.Set("tok-1")
	tok, ok := h.Get()
	assert.True(t, ok)
	assert.Equal(t, "tok-1", tok)

	h.Set("tok-2")
	tok, _ = h.Get()
	assert.Equal(t, "tok-2", tok)

	h.Clear()
	_, ok = h.Get()
	assert.False(t, ok)
}

func TestTokenHolderConcurrentAccess(t *testing.T) {
	h := NewTokenHolder()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			h.Set("tok")
		}()
		go func() {
			defer wg.Done()
			h.Get()
		}()
	}
	wg.Wait()

	tok, ok := h.Get()
	assert.True(t, ok)
	assert.Equal(t, "tok", tok)
}
