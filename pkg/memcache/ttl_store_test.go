package mem

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTTLStoreNoExpiry(t *testing.T) {
	s := NewTTLStore[int]()
	s.Set("free", 1, 0)

	v, ok := s.Get("free")
	assert.True(t, ok)
	assert.Equal(t, 1, v)
	assert.Equal(t, 1, s.Len())
}

func TestTTLStoreExpires(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s := NewTTLStore[string]()
	s.now = func() time.Time { return now }

	s.Set("k", "v", time.Minute)
	_, ok := s.Get("k")
	assert.True(t, ok)

	now = now.Add(2 * time.Minute)
	_, ok = s.Get("k")
	assert.False(t, ok)
	assert.Equal(t, 0, s.Len())
}

func TestTTLStoreDelete(t *testing.T) {
	s := NewTTLStore[string]()
	s.Set("k", "v", 0)
	s.Delete("k")

	_, ok := s.Get("k")
	assert.False(t, ok)
}
