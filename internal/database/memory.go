package database

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"sync"

	"github.com/emilythestrangee/terakoya-timeline/backend/internal/models"
)

// MemoryStore keeps both collections in process memory. Items are stored as
// attribute maps so updates behave like a document store.
type MemoryStore struct {
	posts    *memoryTable[models.PostItem]
	comments *memoryTable[models.CommentItem]
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		posts:    newMemoryTable(postSchema),
		comments: newMemoryTable(commentSchema),
	}
}

func (s *MemoryStore) Posts() Table[models.PostItem]       { return s.posts }
func (s *MemoryStore) Comments() Table[models.CommentItem] { return s.comments }

func (s *MemoryStore) Health(context.Context) map[string]string {
	return map[string]string{
		"status":   "up",
		"driver":   "memory",
		"posts":    fmt.Sprintf("%d", s.posts.len()),
		"comments": fmt.Sprintf("%d", s.comments.len()),
	}
}

func (s *MemoryStore) Close() error { return nil }

type document map[string]any

type memoryTable[T any] struct {
	mu     sync.RWMutex
	schema schema[T]
	docs   map[string]document
}

func newMemoryTable[T any](s schema[T]) *memoryTable[T] {
	return &memoryTable[T]{schema: s, docs: make(map[string]document)}
}

func (t *memoryTable[T]) len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.docs)
}

func (t *memoryTable[T]) Get(_ context.Context, key string) (T, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var item T
	doc, ok := t.docs[key]
	if !ok {
		return item, ErrNotFound
	}
	return item, fromDocument(doc, &item)
}

func (t *memoryTable[T]) Put(_ context.Context, item T) error {
	doc, err := toDocument(item)
	if err != nil {
		return err
	}
	key := t.schema.keyOf(item)
	if key == "" {
		return fmt.Errorf("%s item has empty %s", t.schema.name, t.schema.key)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.docs[key] = doc
	return nil
}

func (t *memoryTable[T]) UpdateSet(_ context.Context, key string, attrs map[string]any, conds ...Condition) error {
	values := make(document, len(attrs))
	for name, v := range attrs {
		nv, err := normalize(v)
		if err != nil {
			return fmt.Errorf("error encoding %s: %w", name, err)
		}
		values[name] = nv
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	doc, ok := t.docs[key]
	if !ok {
		return ErrNotFound
	}
	for _, c := range conds {
		want, err := normalize(c.Equals)
		if err != nil {
			return err
		}
		got := doc[c.Attr]
		if got == nil && want == float64(0) {
			continue
		}
		if !reflect.DeepEqual(got, want) {
			return ErrConditionFailed
		}
	}
	for name, v := range values {
		doc[name] = v
	}
	return nil
}

func (t *memoryTable[T]) UpdateIncrement(_ context.Context, key, attr string, delta int64) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	doc, ok := t.docs[key]
	if !ok {
		return ErrNotFound
	}
	var current float64
	switch v := doc[attr].(type) {
	case nil:
	case float64:
		current = v
	default:
		return fmt.Errorf("attribute %s is not numeric", attr)
	}
	doc[attr] = current + float64(delta)
	return nil
}

func (t *memoryTable[T]) Query(_ context.Context, q Query) (Page[T], error) {
	var page Page[T]
	partAttr, err := t.schema.partitionAttr(q.Index)
	if err != nil {
		return page, err
	}
	start, err := decodeToken(q.StartToken)
	if err != nil {
		return page, err
	}

	t.mu.RLock()
	items := make([]T, 0)
	for _, doc := range t.docs {
		if doc[partAttr] != q.PartitionValue {
			continue
		}
		var item T
		if err := fromDocument(doc, &item); err != nil {
			t.mu.RUnlock()
			return page, err
		}
		items = append(items, item)
	}
	t.mu.RUnlock()

	less := func(a, b T) bool {
		sa, sb := t.schema.sortOf(a), t.schema.sortOf(b)
		if sa != sb {
			return sa < sb
		}
		return t.schema.keyOf(a) < t.schema.keyOf(b)
	}
	sort.Slice(items, func(i, j int) bool {
		if q.ScanForward {
			return less(items[i], items[j])
		}
		return less(items[j], items[i])
	})

	if start != nil {
		key, ts, err := start.position(t.schema.key)
		if err != nil {
			return page, err
		}
		idx := sort.Search(len(items), func(i int) bool {
			s, k := t.schema.sortOf(items[i]), t.schema.keyOf(items[i])
			if q.ScanForward {
				return s > ts || (s == ts && k > key)
			}
			return s < ts || (s == ts && k < key)
		})
		items = items[idx:]
	}

	if q.Limit > 0 && len(items) > int(q.Limit) {
		items = items[:q.Limit]
		last := items[len(items)-1]
		page.NextToken = encodeToken(positionToken(t.schema.key, t.schema.keyOf(last), t.schema.sortOf(last)))
	}
	page.Items = items
	return page, nil
}

func toDocument(v any) (document, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var doc document
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func fromDocument(doc document, out any) error {
	b, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, out)
}

// normalize converts a Go value into the form it takes inside a document.
func normalize(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}
