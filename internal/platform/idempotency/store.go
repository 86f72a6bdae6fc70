package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"
)

// DefaultTTL is how long completed records are retained for replay.
const DefaultTTL = 24 * time.Hour

// Outcome describes what Begin found for an idempotency key.
type Outcome int

const (
	// OutcomeNew means the key was reserved and the caller should process the
	// request.
	OutcomeNew Outcome = iota
	// OutcomeReplay means a stored response exists and should be returned
	// verbatim.
	OutcomeReplay
	// OutcomeInFlight means another request holds the key right now.
	OutcomeInFlight
)

// Record is the stored response for a completed idempotent request. Responses
// are always JSON, so a single content type plus body is enough to replay.
type Record struct {
	Fingerprint string
	StatusCode  int
	ContentType string
	Body        []byte
	CreatedAt   time.Time
	ExpiresAt   time.Time
}

// Store persists idempotency reservations and completed responses.
type Store interface {
	// Begin reserves the key for processing. At most one concurrent caller
	// observes OutcomeNew for a given key until Finish or Abandon.
	Begin(ctx context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (Outcome, Record, error)
	// Finish stores the response to replay for subsequent requests.
	Finish(ctx context.Context, key, fingerprint string, record Record) error
	// Abandon releases the reservation so the client may retry.
	Abandon(ctx context.Context, key string) error
	// Purge removes expired records, returning how many were deleted.
	Purge(ctx context.Context, now time.Time, limit int) (int, error)
}

// ErrFingerprintMismatch is returned when a key is reused with a different
// request payload.
var ErrFingerprintMismatch = errors.New("idempotency: key reused with a different request")

func documentID(key string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(key)))
	return hex.EncodeToString(sum[:])
}

func hashHex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
