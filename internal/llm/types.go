package llm

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
)

// Role tags a message in a conversation.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one role-tagged entry in a conversation.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// SystemMessage builds a system message.
func SystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

// UserMessage builds a user message.
func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// Request is one chat-completion call: the ordered message list plus the
// sampling parameters that shape the response. The whole struct participates
// in cache-key derivation, so two requests differing only in temperature are
// distinct cache entries.
type Request struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	TopP        float64   `json:"top_p"`
	MaxTokens   int       `json:"max_tokens"`
}

// NewRequest builds a request with the analysis defaults: near-deterministic
// sampling and a budget that fits a structured verdict.
func NewRequest(system, prompt string) Request {
	return Request{
		Messages: []Message{
			SystemMessage(system),
			UserMessage(prompt),
		},
		Temperature: 0.1,
		TopP:        0.1,
		MaxTokens:   4000,
	}
}

// CacheKey returns the stable content hash of the normalized request.
func (r Request) CacheKey() string {
	normalized, _ := json.Marshal(r)
	return KeyFromBytes(normalized)
}

// KeyFromBytes hashes arbitrary request content into a cache key.
func KeyFromBytes(content []byte) string {
	sum := md5.Sum(content)
	return hex.EncodeToString(sum[:])
}

// KeyFromString hashes a precomputed identity string, such as a generated
// function signature, into a cache key.
func KeyFromString(content string) string {
	return KeyFromBytes([]byte(content))
}
