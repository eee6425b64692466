// Package memstore provides the shared key/value memory used for
// cross-component hand-off: validation fingerprint caching, router telemetry,
// and agent-visible scratch state. Entries carry an owner tag, a creation
// timestamp and a TTL; expired entries are invisible to reads and reaped in
// the background. A process-local implementation and a Redis-backed one share
// the same interface, so deployments pick per configuration.
package memstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrNotOwner is returned by Delete when the caller's owner tag does not
	// match the entry's.
	ErrNotOwner = errors.New("memstore: owner mismatch")

	// ErrBadPattern is returned by Query for patterns with a wildcard
	// anywhere but the end.
	ErrBadPattern = errors.New("memstore: pattern wildcard must be a trailing %")
)

// Entry is one stored record.
type Entry struct {
	Key       string    `json:"key"`
	Value     any       `json:"value"`
	Owner     string    `json:"owner,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Query selects entries by key pattern and optional filters. Pattern is a
// literal key, or a prefix followed by a single trailing % that matches any
// suffix ("execution-metrics:%"). A bare "%" matches everything.
type Query struct {
	Pattern string
	Owner   string
	MaxAge  time.Duration
	Limit   int
}

// Store is the shared-memory contract. Writes are atomic per key with
// last-write-wins semantics; reads never observe expired entries.
type Store interface {
	Set(ctx context.Context, key string, value any, owner string, ttl time.Duration) error
	Get(ctx context.Context, key string) (Entry, bool, error)
	Delete(ctx context.Context, key, owner string) error
	Query(ctx context.Context, q Query) ([]Entry, error)
	Len(ctx context.Context) (int, error)
	Close() error
}

// splitPattern returns the literal prefix and whether the pattern ends in the
// % wildcard.
func splitPattern(pattern string) (prefix string, wildcard bool, err error) {
	prefix, wildcard = strings.CutSuffix(pattern, "%")
	if strings.Contains(prefix, "%") {
		return "", false, ErrBadPattern
	}
	return prefix, wildcard, nil
}

func matchPattern(key, prefix string, wildcard bool) bool {
	if wildcard {
		return strings.HasPrefix(key, prefix)
	}
	return key == prefix
}

// DecodeValue copies a stored value into target. Values read back from the
// Redis backend arrive as JSON; process-local values are re-encoded, so the
// same consumer code works against either implementation.
func DecodeValue(v any, target any) error {
	switch raw := v.(type) {
	case json.RawMessage:
		return json.Unmarshal(raw, target)
	case []byte:
		return json.Unmarshal(raw, target)
	case string:
		return json.Unmarshal([]byte(raw), target)
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("memstore: encode value: %w", err)
		}
		return json.Unmarshal(encoded, target)
	}
}
