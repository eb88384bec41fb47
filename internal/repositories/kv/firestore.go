package kv

import (
	"context"
	"errors"
	"strings"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/mekongcart/api/internal/repositories"
)

const firestoreValueField = "value"

// Firestore adapts a Firestore collection to the KV contract, one document per
// key. Firestore document writes are atomic, which satisfies the per-key
// atomicity requirement.
type Firestore struct {
	client     *firestore.Client
	collection string
}

// NewFirestore constructs a Firestore-backed store rooted at the collection.
func NewFirestore(client *firestore.Client, collection string) (*Firestore, error) {
	if client == nil {
		return nil, errors.New("kv: firestore client is required")
	}
	collection = strings.TrimSpace(collection)
	if collection == "" {
		collection = "kv"
	}
	return &Firestore{client: client, collection: collection}, nil
}

// Get implements repositories.KV.
func (s *Firestore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	snap, err := s.client.Collection(s.collection).Doc(docID(key)).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, false, nil
		}
		return nil, false, wrapFirestoreError("kv get", err)
	}
	raw, err := snap.DataAt(firestoreValueField)
	if err != nil {
		return nil, false, wrapFirestoreError("kv get", err)
	}
	value, ok := raw.([]byte)
	if !ok {
		return nil, false, repositories.Unavailable("kv get", errors.New("unexpected value type"))
	}
	return value, true, nil
}

// Set implements repositories.KV.
func (s *Firestore) Set(ctx context.Context, key string, value []byte) error {
	_, err := s.client.Collection(s.collection).Doc(docID(key)).Set(ctx, map[string]any{
		firestoreValueField: value,
	})
	if err != nil {
		return wrapFirestoreError("kv set", err)
	}
	return nil
}

// Remove implements repositories.KV.
func (s *Firestore) Remove(ctx context.Context, key string) error {
	_, err := s.client.Collection(s.collection).Doc(docID(key)).Delete(ctx)
	if err != nil {
		return wrapFirestoreError("kv remove", err)
	}
	return nil
}

// docID flattens hierarchical keys; Firestore document ids may not contain "/".
func docID(key string) string {
	return strings.ReplaceAll(key, "/", "__")
}

func wrapFirestoreError(op string, err error) error {
	switch status.Code(err) {
	case codes.NotFound:
		return repositories.NotFound(op, err)
	case codes.AlreadyExists, codes.FailedPrecondition, codes.Aborted:
		return repositories.Conflict(op, err)
	default:
		return repositories.Unavailable(op, err)
	}
}
