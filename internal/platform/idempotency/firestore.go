package idempotency

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"

	pfirestore "github.com/northline-logistics/api/internal/platform/firestore"
)

const defaultCollection = "idempotency_keys"

// FirestoreStore keeps keys in a Firestore collection. Reservation and
// completion run in transactions so two replicas never both own a key.
type FirestoreStore struct {
	provider *pfirestore.Provider
	keys     *pfirestore.Collection[keyDocument]
}

var _ Store = (*FirestoreStore)(nil)

// NewFirestoreStore binds the store to provider. An empty collection uses idempotency_keys.
func NewFirestoreStore(provider *pfirestore.Provider, collection string) *FirestoreStore {
	if collection == "" {
		collection = defaultCollection
	}
	return &FirestoreStore{
		provider: provider,
		keys:     pfirestore.NewCollection[keyDocument](provider, collection),
	}
}

func (s *FirestoreStore) Reserve(ctx context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (Outcome, Record, error) {
	var (
		outcome Outcome
		result  Record
	)
	id := documentID(key)
	err := s.provider.RunTransaction(ctx, func(ctx context.Context, _ *firestore.Transaction) error {
		existing, err := s.load(ctx, id)
		if err != nil {
			return err
		}
		var write bool
		outcome, result, write, err = reserve(existing, key, fingerprint, now.UTC(), ttl)
		if err != nil || !write {
			return err
		}
		return s.keys.Set(ctx, id, fromRecord(result))
	})
	return outcome, result, err
}

func (s *FirestoreStore) Complete(ctx context.Context, key, fingerprint string, resp Response, now time.Time, ttl time.Duration) error {
	id := documentID(key)
	return s.provider.RunTransaction(ctx, func(ctx context.Context, _ *firestore.Transaction) error {
		existing, err := s.load(ctx, id)
		if err != nil {
			return err
		}
		record, err := complete(existing, key, fingerprint, resp, now.UTC(), ttl)
		if err != nil {
			return err
		}
		return s.keys.Set(ctx, id, fromRecord(record))
	})
}

func (s *FirestoreStore) Release(ctx context.Context, key string) error {
	return s.keys.Delete(ctx, documentID(key))
}

// Purge deletes up to limit expired keys in one transaction.
func (s *FirestoreStore) Purge(ctx context.Context, now time.Time, limit int) (int, error) {
	if limit <= 0 || limit > 500 {
		limit = 500
	}
	expired, err := s.keys.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("expiresAt", "<=", now.UTC()).Limit(limit)
	})
	if err != nil || len(expired) == 0 {
		return 0, err
	}
	err = s.provider.RunTransaction(ctx, func(ctx context.Context, _ *firestore.Transaction) error {
		for _, doc := range expired {
			if err := s.keys.Delete(ctx, doc.ID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(expired), nil
}

func (s *FirestoreStore) load(ctx context.Context, id string) (*Record, error) {
	doc, err := s.keys.Get(ctx, id)
	if err != nil {
		if pfirestore.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	record := doc.Data.toRecord()
	return &record, nil
}

type keyDocument struct {
	Key         string              `firestore:"key"`
	Fingerprint string              `firestore:"fingerprint"`
	Status      string              `firestore:"status"`
	StatusCode  int                 `firestore:"statusCode"`
	Headers     map[string][]string `firestore:"headers,omitempty"`
	Body        []byte              `firestore:"body,omitempty"`
	CreatedAt   time.Time           `firestore:"createdAt"`
	ExpiresAt   time.Time           `firestore:"expiresAt"`
}

func fromRecord(r Record) keyDocument {
	return keyDocument{
		Key:         r.Key,
		Fingerprint: r.Fingerprint,
		Status:      string(r.Status),
		StatusCode:  r.StatusCode,
		Headers:     r.Headers,
		Body:        r.Body,
		CreatedAt:   r.CreatedAt,
		ExpiresAt:   r.ExpiresAt,
	}
}

func (d keyDocument) toRecord() Record {
	return Record{
		Key:         d.Key,
		Fingerprint: d.Fingerprint,
		Status:      Status(d.Status),
		StatusCode:  d.StatusCode,
		Headers:     d.Headers,
		Body:        d.Body,
		CreatedAt:   d.CreatedAt,
		ExpiresAt:   d.ExpiresAt,
	}
}
