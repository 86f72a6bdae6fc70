package idempotency

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	defaultCollection  = "checkout_idempotency"
	defaultMaxAttempts = 5
)

// FirestoreOption customises the FirestoreStore.
type FirestoreOption func(*FirestoreStore)

// WithCollection overrides the collection holding idempotency records.
func WithCollection(name string) FirestoreOption {
	return func(s *FirestoreStore) {
		if name != "" {
			s.collection = name
		}
	}
}

// FirestoreStore implements Store on Google Cloud Firestore. Reservations use
// a transaction so concurrent requests with the same key serialise on the
// document.
type FirestoreStore struct {
	client     *firestore.Client
	collection string
}

var _ Store = (*FirestoreStore)(nil)

// NewFirestoreStore constructs a Firestore-backed idempotency store.
func NewFirestoreStore(client *firestore.Client, opts ...FirestoreOption) *FirestoreStore {
	store := &FirestoreStore{
		client:     client,
		collection: defaultCollection,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(store)
		}
	}
	return store
}

type storedRecord struct {
	Fingerprint string    `firestore:"fingerprint"`
	Completed   bool      `firestore:"completed"`
	StatusCode  int       `firestore:"statusCode"`
	ContentType string    `firestore:"contentType"`
	Body        []byte    `firestore:"body"`
	CreatedAt   time.Time `firestore:"createdAt"`
	ExpiresAt   time.Time `firestore:"expiresAt"`
}

func (r storedRecord) toRecord() Record {
	return Record{
		Fingerprint: r.Fingerprint,
		StatusCode:  r.StatusCode,
		ContentType: r.ContentType,
		Body:        r.Body,
		CreatedAt:   r.CreatedAt,
		ExpiresAt:   r.ExpiresAt,
	}
}

// Begin implements Store.
func (s *FirestoreStore) Begin(ctx context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (Outcome, Record, error) {
	now = now.UTC()
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	ref := s.client.Collection(s.collection).Doc(documentID(key))

	var outcome Outcome
	var record Record
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil && status.Code(err) != codes.NotFound {
			return err
		}

		var stored storedRecord
		exists := err == nil
		if exists {
			if err := snap.DataTo(&stored); err != nil {
				return err
			}
		}

		// Expired reservations are reclaimed as if absent.
		if !exists || (!stored.ExpiresAt.IsZero() && !now.Before(stored.ExpiresAt)) {
			stored = storedRecord{
				Fingerprint: fingerprint,
				CreatedAt:   now,
				ExpiresAt:   now.Add(ttl),
			}
			if err := tx.Set(ref, stored); err != nil {
				return err
			}
			outcome = OutcomeNew
			record = stored.toRecord()
			return nil
		}

		if stored.Fingerprint != fingerprint {
			return ErrFingerprintMismatch
		}
		if stored.Completed {
			outcome = OutcomeReplay
		} else {
			outcome = OutcomeInFlight
		}
		record = stored.toRecord()
		return nil
	}, firestore.MaxAttempts(defaultMaxAttempts))

	return outcome, record, err
}

// Finish implements Store.
func (s *FirestoreStore) Finish(ctx context.Context, key, fingerprint string, record Record) error {
	ref := s.client.Collection(s.collection).Doc(documentID(key))
	return s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil && status.Code(err) != codes.NotFound {
			return err
		}
		if err == nil {
			var stored storedRecord
			if err := snap.DataTo(&stored); err != nil {
				return err
			}
			if stored.Fingerprint != fingerprint {
				return ErrFingerprintMismatch
			}
		}
		return tx.Set(ref, storedRecord{
			Fingerprint: fingerprint,
			Completed:   true,
			StatusCode:  record.StatusCode,
			ContentType: record.ContentType,
			Body:        record.Body,
			CreatedAt:   record.CreatedAt,
			ExpiresAt:   record.ExpiresAt,
		})
	}, firestore.MaxAttempts(defaultMaxAttempts))
}

// Abandon implements Store.
func (s *FirestoreStore) Abandon(ctx context.Context, key string) error {
	_, err := s.client.Collection(s.collection).Doc(documentID(key)).Delete(ctx)
	if status.Code(err) == codes.NotFound {
		return nil
	}
	return err
}

// Purge implements Store.
func (s *FirestoreStore) Purge(ctx context.Context, now time.Time, limit int) (int, error) {
	if limit <= 0 {
		limit = 100
	}
	query := s.client.Collection(s.collection).Where("expiresAt", "<=", now.UTC()).Limit(limit)
	docs, err := query.Documents(ctx).GetAll()
	if err != nil {
		return 0, err
	}
	if len(docs) == 0 {
		return 0, nil
	}

	batch := s.client.Batch()
	for _, doc := range docs {
		batch.Delete(doc.Ref)
	}
	if _, err := batch.Commit(ctx); err != nil {
		return 0, err
	}
	return len(docs), nil
}
