// Package cache implements response caching keyed by a deterministic hash
// of the full prompt context. Any change to the final system prompt,
// including the injected pipeline block, changes the key: different
// pipeline states must never share a cached answer.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// Entry is one cached completion.
type Entry struct {
	PromptHash string    `json:"prompt_hash"`
	Response   string    `json:"response"`
	Model      string    `json:"model"`
	ExpiresAt  time.Time `json:"expires_at"`
	HitCount   int64     `json:"hit_count"`
	CreatedAt  time.Time `json:"created_at"`
}

// Store persists cache entries.
type Store interface {
	// Get returns the entry for hash if it has not expired, else nil.
	// Implementations record the hit asynchronously; a failed hit count
	// increment must not fail the lookup.
	Get(ctx context.Context, hash string) (*Entry, error)

	// Put inserts the entry. A concurrent duplicate insert is a no-op.
	Put(ctx context.Context, entry *Entry) error

	// PurgeExpired removes entries past their expiry and returns the count.
	PurgeExpired(ctx context.Context) (int64, error)
}

// promptKey is the canonical hashed shape. Field order is fixed; struct
// marshalling keeps it deterministic.
type promptKey struct {
	SystemPrompt string                         `json:"system_prompt"`
	Messages     []openai.ChatCompletionMessage `json:"messages"`
	Model        string                         `json:"model"`
}

// PromptHash computes the SHA-256 cache key over the final system prompt,
// the full message history and the model name.
func PromptHash(systemPrompt string, messages []openai.ChatCompletionMessage, model string) (string, error) {
	payload, err := json.Marshal(promptKey{
		SystemPrompt: systemPrompt,
		Messages:     messages,
		Model:        model,
	})
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:]), nil
}

// Replayer re-chunks a cached response into the same delta transport shape
// the live path produces, so the client code path is identical for hits
// and misses.
type Replayer struct {
	ChunkSize int
	Delay     time.Duration
}

// Replay slices the cached text into fixed-size rune chunks and feeds each
// to write, pausing between chunks to preserve streaming UI semantics.
// write receives the raw delta text; SSE framing is the caller's concern.
func (r Replayer) Replay(ctx context.Context, response string, write func(chunk string) error) error {
	size := r.ChunkSize
	if size <= 0 {
		size = 48
	}

	runes := []rune(response)
	for start := 0; start < len(runes); start += size {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		if err := write(string(runes[start:end])); err != nil {
			return err
		}
		if r.Delay > 0 && end < len(runes) {
			select {
			case <-time.After(r.Delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return nil
}
