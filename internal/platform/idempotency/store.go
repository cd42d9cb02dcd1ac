// Package idempotency replays the stored response of a create request when a
// client retries it with the same Idempotency-Key.
package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"
	"time"
)

// DefaultTTL is how long a completed response stays replayable.
const DefaultTTL = 24 * time.Hour

// Status is the lifecycle state of a stored key.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
)

// Outcome of a reservation attempt.
type Outcome int

const (
	// OutcomeReserved means the caller owns the key and should run the handler.
	OutcomeReserved Outcome = iota
	// OutcomeReplay means a completed response exists for the key.
	OutcomeReplay
	// OutcomeInFlight means another request holds the key right now.
	OutcomeInFlight
)

// Record is the persisted state of one key.
type Record struct {
	Key         string
	Fingerprint string
	Status      Status
	StatusCode  int
	Headers     map[string][]string
	Body        []byte
	CreatedAt   time.Time
	ExpiresAt   time.Time
}

func (r Record) expired(now time.Time) bool {
	return !r.ExpiresAt.IsZero() && !now.Before(r.ExpiresAt)
}

// Response is what the handler wrote, captured for replay.
type Response struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
}

// Store persists reservations and completed responses.
type Store interface {
	Reserve(ctx context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (Outcome, Record, error)
	Complete(ctx context.Context, key, fingerprint string, resp Response, now time.Time, ttl time.Duration) error
	Release(ctx context.Context, key string) error
	Purge(ctx context.Context, now time.Time, limit int) (int, error)
}

// ErrFingerprintMismatch is returned when a key is reused for a different request.
var ErrFingerprintMismatch = errors.New("idempotency: key already used for a different request")

func documentID(key string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(key)))
	return hex.EncodeToString(sum[:])
}

func pendingRecord(key, fingerprint string, now time.Time, ttl time.Duration) Record {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return Record{
		Key:         key,
		Fingerprint: fingerprint,
		Status:      StatusPending,
		CreatedAt:   now,
		ExpiresAt:   now.Add(ttl),
	}
}

// reserve applies the reservation rules to the stored record, if any.
func reserve(existing *Record, key, fingerprint string, now time.Time, ttl time.Duration) (Outcome, Record, bool, error) {
	if existing == nil || existing.expired(now) {
		return OutcomeReserved, pendingRecord(key, fingerprint, now, ttl), true, nil
	}
	if existing.Fingerprint != fingerprint {
		return 0, Record{}, false, ErrFingerprintMismatch
	}
	if existing.Status == StatusCompleted {
		return OutcomeReplay, *existing, false, nil
	}
	return OutcomeInFlight, *existing, false, nil
}

func complete(existing *Record, key, fingerprint string, resp Response, now time.Time, ttl time.Duration) (Record, error) {
	record := pendingRecord(key, fingerprint, now, ttl)
	if existing != nil {
		if existing.Fingerprint != fingerprint {
			return Record{}, ErrFingerprintMismatch
		}
		record.CreatedAt = existing.CreatedAt
	}
	record.Status = StatusCompleted
	record.StatusCode = resp.StatusCode
	record.Headers = replayableHeaders(resp.Headers)
	if len(resp.Body) > 0 {
		record.Body = append([]byte(nil), resp.Body...)
	}
	return record, nil
}

func replayableHeaders(header http.Header) map[string][]string {
	out := make(map[string][]string, len(header))
	for name, values := range header {
		switch strings.ToLower(name) {
		case "content-length", "date", "connection", "transfer-encoding", "set-cookie", "x-request-id":
			continue
		}
		out[http.CanonicalHeaderKey(name)] = append([]string(nil), values...)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
