package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/emilythestrangee/terakoya-timeline/backend/internal/models"
)

var (
	// ErrNotFound is returned when the addressed item does not exist.
	ErrNotFound = errors.New("item not found")
	// ErrConditionFailed is returned when a conditional update did not match.
	ErrConditionFailed = errors.New("condition check failed")
	// ErrUnavailable marks throttling and connectivity failures. Callers may
	// retry them.
	ErrUnavailable = errors.New("store unavailable")
	// ErrInvalidToken is returned for continuation tokens that cannot be decoded.
	ErrInvalidToken = errors.New("invalid continuation token")
)

// Index names a secondary index. Every index is sorted by timestamp.
type Index string

const (
	IndexAllPosts        Index = "post-all"
	IndexPostsByUser     Index = "post-by-user"
	IndexCommentsForPost Index = "comment-for-post"
	IndexCommentsByUser  Index = "comment-by-user"
)

const sortKey = "timestamp"

// Query selects one partition of an index. Limit 0 reads the whole partition.
type Query struct {
	Index          Index
	PartitionValue string
	Limit          int32
	ScanForward    bool
	StartToken     string
}

// Page is one page of query results. NextToken is empty on the last page.
type Page[T any] struct {
	Items     []T
	NextToken string
}

// Condition guards an update: the attribute must currently equal Equals.
type Condition struct {
	Attr   string
	Equals any
}

// Table is the document store capability for one collection.
type Table[T any] interface {
	Get(ctx context.Context, key string) (T, error)
	Put(ctx context.Context, item T) error
	// UpdateSet overwrites attributes of an existing item.
	UpdateSet(ctx context.Context, key string, attrs map[string]any, conds ...Condition) error
	// UpdateIncrement atomically adds delta to a numeric attribute.
	UpdateIncrement(ctx context.Context, key, attr string, delta int64) error
	Query(ctx context.Context, q Query) (Page[T], error)
}

// Store exposes the timeline collections.
type Store interface {
	Posts() Table[models.PostItem]
	Comments() Table[models.CommentItem]

	// Health returns a map of health status information.
	Health(ctx context.Context) map[string]string

	// Close releases the underlying connections.
	Close() error
}

// schema describes how a collection is keyed and indexed.
type schema[T any] struct {
	name    string
	key     string
	indexes map[Index]string
	keyOf   func(T) string
	sortOf  func(T) int64
}

func (s schema[T]) partitionAttr(idx Index) (string, error) {
	attr, ok := s.indexes[idx]
	if !ok {
		return "", fmt.Errorf("index %s is not defined on %s", idx, s.name)
	}
	return attr, nil
}

var postSchema = schema[models.PostItem]{
	name: "post",
	key:  "post_id",
	indexes: map[Index]string{
		IndexAllPosts:    "pk_for_all_post_gsi",
		IndexPostsByUser: "uuid",
	},
	keyOf:  func(p models.PostItem) string { return p.PostID },
	sortOf: func(p models.PostItem) int64 { return p.Timestamp },
}

var commentSchema = schema[models.CommentItem]{
	name: "comment",
	key:  "comment_id",
	indexes: map[Index]string{
		IndexCommentsForPost: "post_id",
		IndexCommentsByUser:  "uuid",
	},
	keyOf:  func(c models.CommentItem) string { return c.CommentID },
	sortOf: func(c models.CommentItem) int64 { return c.Timestamp },
}
