package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeyFromString(t *testing.T) {
	assert.Equal(t, "900150983cd24fb0d6963f7d28e17f72", KeyFromString("abc"))
	assert.Equal(t, KeyFromString("abc"), KeyFromBytes([]byte("abc")))
}

func TestRequestCacheKey(t *testing.T) {
	base := NewRequest("system prompt", "classify this")
	base.Model = "gpt-4o"

	same := NewRequest("system prompt", "classify this")
	same.Model = "gpt-4o"
	assert.Equal(t, base.CacheKey(), same.CacheKey())

	hotter := base
	hotter.Temperature = 0.9
	assert.NotEqual(t, base.CacheKey(), hotter.CacheKey())

	other := NewRequest("system prompt", "classify that")
	other.Model = "gpt-4o"
	assert.NotEqual(t, base.CacheKey(), other.CacheKey())
}

func TestNewRequestDefaults(t *testing.T) {
	req := NewRequest("sys", "usr")
	assert.Equal(t, []Message{
		{Role: RoleSystem, Content: "sys"},
		{Role: RoleUser, Content: "usr"},
	}, req.Messages)
	assert.Equal(t, 0.1, req.Temperature)
	assert.Equal(t, 0.1, req.TopP)
	assert.Equal(t, 4000, req.MaxTokens)
}
