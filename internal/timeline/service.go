// Package timeline implements the post, comment and reaction operations on
// top of a document store.
//
// Reactions are written with an optimistic compare-and-swap on the record's
// version attribute. Creating a comment is two store writes (the comment,
// then the parent's comment_count) and is reported as a partial failure when
// only the first succeeds. User info propagation fans out over a bounded
// worker pool and collects per-record failures.
package timeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/emilythestrangee/terakoya-timeline/backend/internal/database"
	"github.com/emilythestrangee/terakoya-timeline/backend/internal/models"
)

const (
	DefaultPageSize           = 20
	DefaultReactionRetries    = 5
	DefaultPropagationWorkers = 4
	DefaultStoreRetries       = 3
)

// Publisher receives an event after each successful write.
type Publisher interface {
	Publish(ctx context.Context, event models.TimelineEvent) error
}

// PostCache serves direct post reads. Get reports a miss as a nil post and
// returns the generation to hand back to Fill, which must refuse to store
// the post when Invalidate ran for it in between.
type PostCache interface {
	Get(ctx context.Context, postID string) (*models.PostItem, int64, error)
	Fill(ctx context.Context, post *models.PostItem, generation int64) (bool, error)
	Invalidate(ctx context.Context, postIDs ...string) error
}

type Service struct {
	posts    database.Table[models.PostItem]
	comments database.Table[models.CommentItem]

	publisher Publisher
	cache     PostCache
	log       *slog.Logger

	pageSize        int32
	reactionRetries int
	workers         int
	storeRetries    uint64
	retryInterval   time.Duration

	now   func() time.Time
	newID func() string
}

type Option func(*Service)

func WithPublisher(p Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

func WithCache(c PostCache) Option {
	return func(s *Service) { s.cache = c }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.log = l }
}

func WithPageSize(n int32) Option {
	return func(s *Service) {
		if n > 0 {
			s.pageSize = n
		}
	}
}

// WithReactionRetries bounds how often a reaction write is retried after
// losing a race with another writer.
func WithReactionRetries(n int) Option {
	return func(s *Service) {
		if n >= 0 {
			s.reactionRetries = n
		}
	}
}

func WithPropagationWorkers(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.workers = n
		}
	}
}

// WithStoreRetry sets how transient store errors are retried.
func WithStoreRetry(maxRetries uint64, initialInterval time.Duration) Option {
	return func(s *Service) {
		s.storeRetries = maxRetries
		s.retryInterval = initialInterval
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithIDGenerator(newID func() string) Option {
	return func(s *Service) { s.newID = newID }
}

func NewService(store database.Store, opts ...Option) *Service {
	s := &Service{
		posts:           store.Posts(),
		comments:        store.Comments(),
		publisher:       nopPublisher{},
		log:             slog.Default(),
		pageSize:        DefaultPageSize,
		reactionRetries: DefaultReactionRetries,
		workers:         DefaultPropagationWorkers,
		storeRetries:    DefaultStoreRetries,
		retryInterval:   50 * time.Millisecond,
		now:             time.Now,
		newID:           uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With("component", "timeline")
	return s
}

func (s *Service) timestamp() int64 {
	return s.now().UnixMilli()
}

func (s *Service) publish(ctx context.Context, event models.TimelineEvent) {
	event.OccurredAt = s.now().UTC()
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.log.WarnContext(ctx, "failed to publish timeline event", "type", event.Type, "error", err)
	}
}

func (s *Service) invalidate(ctx context.Context, postIDs ...string) {
	if s.cache == nil || len(postIDs) == 0 {
		return
	}
	if err := s.cache.Invalidate(ctx, postIDs...); err != nil {
		s.log.WarnContext(ctx, "failed to invalidate cached posts", "count", len(postIDs), "error", err)
	}
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, models.TimelineEvent) error { return nil }
