package timeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/emilythestrangee/terakoya-timeline/backend/internal/database"
	"github.com/emilythestrangee/terakoya-timeline/backend/internal/models"
)

// faultyTable wraps a table and injects errors per operation and key.
// An empty key matches every key.
type faultyTable[T any] struct {
	database.Table[T]

	mu       sync.Mutex
	always   map[string]error
	queued   map[string][]error
	calls    map[string]int
	onUpdate func(key string)
	afterGet func(key string)
}

func newFaultyTable[T any](inner database.Table[T]) *faultyTable[T] {
	return &faultyTable[T]{
		Table:  inner,
		always: make(map[string]error),
		queued: make(map[string][]error),
		calls:  make(map[string]int),
	}
}

func (f *faultyTable[T]) failAlways(op, key string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.always[op+"|"+key] = err
}

func (f *faultyTable[T]) failTimes(op, key string, n int, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := 0; i < n; i++ {
		f.queued[op+"|"+key] = append(f.queued[op+"|"+key], err)
	}
}

func (f *faultyTable[T]) callCount(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *faultyTable[T]) inject(op, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[op]++
	for _, k := range []string{op + "|" + key, op + "|"} {
		if err, ok := f.always[k]; ok {
			return err
		}
		if q := f.queued[k]; len(q) > 0 {
			f.queued[k] = q[1:]
			return q[0]
		}
	}
	return nil
}

func (f *faultyTable[T]) Get(ctx context.Context, key string) (T, error) {
	if err := f.inject("get", key); err != nil {
		var zero T
		return zero, err
	}
	item, err := f.Table.Get(ctx, key)
	if f.afterGet != nil {
		f.afterGet(key)
	}
	return item, err
}

func (f *faultyTable[T]) Put(ctx context.Context, item T) error {
	if err := f.inject("put", ""); err != nil {
		return err
	}
	return f.Table.Put(ctx, item)
}

func (f *faultyTable[T]) UpdateSet(ctx context.Context, key string, attrs map[string]any, conds ...database.Condition) error {
	if f.onUpdate != nil {
		f.onUpdate(key)
	}
	if err := f.inject("update", key); err != nil {
		return err
	}
	return f.Table.UpdateSet(ctx, key, attrs, conds...)
}

func (f *faultyTable[T]) UpdateIncrement(ctx context.Context, key, attr string, delta int64) error {
	if err := f.inject("increment", key); err != nil {
		return err
	}
	return f.Table.UpdateIncrement(ctx, key, attr, delta)
}

func (f *faultyTable[T]) Query(ctx context.Context, q database.Query) (database.Page[T], error) {
	if err := f.inject("query", q.PartitionValue); err != nil {
		return database.Page[T]{}, err
	}
	return f.Table.Query(ctx, q)
}

type faultyStore struct {
	*database.MemoryStore
	posts    *faultyTable[models.PostItem]
	comments *faultyTable[models.CommentItem]
}

func newFaultyStore() *faultyStore {
	mem := database.NewMemoryStore()
	return &faultyStore{
		MemoryStore: mem,
		posts:       newFaultyTable(mem.Posts()),
		comments:    newFaultyTable(mem.Comments()),
	}
}

func (s *faultyStore) Posts() database.Table[models.PostItem]       { return s.posts }
func (s *faultyStore) Comments() database.Table[models.CommentItem] { return s.comments }

type recordingPublisher struct {
	mu     sync.Mutex
	events []models.TimelineEvent
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, event models.TimelineEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return p.err
}

func (p *recordingPublisher) types() []models.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]models.EventType, len(p.events))
	for i, e := range p.events {
		out[i] = e.Type
	}
	return out
}

// mapCache mirrors the generation guard of the Redis cache.
type mapCache struct {
	mu          sync.Mutex
	posts       map[string]models.PostItem
	generations map[string]int64
	invalidated []string
	rejected    int
}

func newMapCache() *mapCache {
	return &mapCache{
		posts:       make(map[string]models.PostItem),
		generations: make(map[string]int64),
	}
}

func (c *mapCache) Get(_ context.Context, postID string) (*models.PostItem, int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	gen := c.generations[postID]
	p, ok := c.posts[postID]
	if !ok {
		return nil, gen, nil
	}
	return &p, gen, nil
}

func (c *mapCache) Fill(_ context.Context, post *models.PostItem, generation int64) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generations[post.PostID] != generation {
		c.rejected++
		return false, nil
	}
	c.posts[post.PostID] = *post
	return true, nil
}

func (c *mapCache) Invalidate(_ context.Context, postIDs ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range postIDs {
		c.generations[id]++
		delete(c.posts, id)
		c.invalidated = append(c.invalidated, id)
	}
	return nil
}

var testEpoch = time.Date(2024, 4, 1, 9, 0, 0, 0, time.UTC)

// newTestService wires a service with a ticking clock, sequential ids and
// fast store retries.
func newTestService(t *testing.T, store database.Store, opts ...Option) *Service {
	t.Helper()

	var ticks, ids atomic.Int64
	base := []Option{
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithStoreRetry(3, time.Millisecond),
		WithClock(func() time.Time {
			return testEpoch.Add(time.Duration(ticks.Add(1)) * time.Millisecond)
		}),
		WithIDGenerator(func() string {
			return fmt.Sprintf("id-%03d", ids.Add(1))
		}),
	}
	return NewService(store, append(base, opts...)...)
}

func newPost(uuid, content string) models.PostItem {
	return models.PostItem{UUID: uuid, UserName: "name-" + uuid, Content: content}
}

func newComment(uuid, content string) models.CommentItem {
	return models.CommentItem{UUID: uuid, UserName: "name-" + uuid, Content: content}
}
