package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
)

// QueryBuilder customises Firestore queries before execution.
type QueryBuilder func(query firestore.Query) firestore.Query

// Document pairs a decoded value with its document id.
type Document[T any] struct {
	ID   string
	Data T
}

// Collection provides typed access to a collection whose documents decode into T. The name may be a
// slash separated subcollection path such as "serviceRequests/sr_1/events".
type Collection[T any] struct {
	provider *Provider
	name     string
}

// NewCollection binds a typed collection helper to the provider.
func NewCollection[T any](provider *Provider, name string) *Collection[T] {
	return &Collection[T]{provider: provider, name: strings.TrimSpace(name)}
}

// Name returns the collection name.
func (c *Collection[T]) Name() string {
	return c.name
}

// Ref returns the collection reference.
func (c *Collection[T]) Ref(ctx context.Context) (*firestore.CollectionRef, error) {
	if c == nil || c.provider == nil {
		return nil, WrapError(c.op("collection"), errors.New("firestore: provider is nil"))
	}
	return c.provider.Collection(ctx, c.name)
}

// Doc returns a document reference, rejecting blank ids.
func (c *Collection[T]) Doc(ctx context.Context, id string) (*firestore.DocumentRef, error) {
	if strings.TrimSpace(id) == "" {
		return nil, WrapError(c.op("document"), errors.New("firestore: document id is required"))
	}
	coll, err := c.Ref(ctx)
	if err != nil {
		return nil, err
	}
	return coll.Doc(id), nil
}

// Get fetches and decodes a document. A missing document yields an error whose IsNotFound is true.
func (c *Collection[T]) Get(ctx context.Context, id string) (T, error) {
	var zero T
	ref, err := c.Doc(ctx, id)
	if err != nil {
		return zero, err
	}
	snap, err := ref.Get(ctx)
	if err != nil {
		return zero, WrapError(c.op("get"), err)
	}
	return c.Decode(snap)
}

// Decode hydrates T from a snapshot.
func (c *Collection[T]) Decode(snap *firestore.DocumentSnapshot) (T, error) {
	var target T
	if err := snap.DataTo(&target); err != nil {
		return target, fmt.Errorf("firestore: decode %s/%s: %w", c.name, snap.Ref.ID, err)
	}
	return target, nil
}

// Page runs the query built by build, starting after the document identified by afterID, and returns
// at most limit decoded documents plus the id to resume from when more results exist.
func (c *Collection[T]) Page(ctx context.Context, build QueryBuilder, afterID string, limit int) ([]Document[T], string, error) {
	coll, err := c.Ref(ctx)
	if err != nil {
		return nil, "", err
	}
	query := coll.Query
	if build != nil {
		query = build(query)
	}
	if afterID = strings.TrimSpace(afterID); afterID != "" {
		snap, err := coll.Doc(afterID).Get(ctx)
		if err != nil {
			return nil, "", WrapError(c.op("cursor"), err)
		}
		query = query.StartAfter(snap)
	}
	if limit > 0 {
		// One extra document tells us whether another page exists.
		query = query.Limit(limit + 1)
	}

	iter := query.Documents(ctx)
	defer iter.Stop()

	var (
		items  []Document[T]
		lastID string
	)
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, "", WrapError(c.op("query"), err)
		}
		if limit > 0 && len(items) == limit {
			return items, lastID, nil
		}
		item, err := c.Decode(snap)
		if err != nil {
			return nil, "", err
		}
		items = append(items, Document[T]{ID: snap.Ref.ID, Data: item})
		lastID = snap.Ref.ID
	}
	return items, "", nil
}

func (c *Collection[T]) op(action string) string {
	name := "firestore"
	if c != nil && c.name != "" {
		name = c.name
	}
	return name + "." + action
}
