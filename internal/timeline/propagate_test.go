package timeline

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emilythestrangee/terakoya-timeline/backend/internal/database"
	"github.com/emilythestrangee/terakoya-timeline/backend/internal/models"
)

type propagationFixture struct {
	posts    []string
	comments []string
	other    string
}

func seedPropagation(t *testing.T, svc *Service) propagationFixture {
	t.Helper()
	ctx := context.Background()
	var f propagationFixture

	for i := 0; i < 3; i++ {
		id, err := svc.CreatePost(ctx, newPost("alice", "post"))
		require.NoError(t, err)
		f.posts = append(f.posts, id)
	}
	require.NoError(t, svc.DeletePost(ctx, f.posts[0]))

	other, err := svc.CreatePost(ctx, newPost("bob", "post"))
	require.NoError(t, err)
	f.other = other

	for _, postID := range []string{f.posts[1], other} {
		id, err := svc.CreateComment(ctx, postID, newComment("alice", "comment"))
		require.NoError(t, err)
		f.comments = append(f.comments, id)
	}
	_, err = svc.CreateComment(ctx, other, newComment("bob", "comment"))
	require.NoError(t, err)
	return f
}

func TestPropagateUserInfo(t *testing.T) {
	ctx := context.Background()
	store := database.NewMemoryStore()
	pub := &recordingPublisher{}
	svc := newTestService(t, store, WithPublisher(pub))
	f := seedPropagation(t, svc)

	info := models.UserInfo{UUID: "alice", UserName: "Alice", UserProfileImgURL: "https://img/alice.png"}
	report, err := svc.PropagateUserInfo(ctx, info)
	require.NoError(t, err)
	assert.Equal(t, 3, report.PostsUpdated)
	assert.Equal(t, 2, report.CommentsUpdated)
	assert.Empty(t, report.Failures)
	assert.Equal(t, 5, report.Total())

	for _, id := range f.posts {
		p, err := store.Posts().Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, "Alice", p.UserName)
		assert.Equal(t, "https://img/alice.png", p.UserProfileImgURL)
	}
	deleted, err := store.Posts().Get(ctx, f.posts[0])
	require.NoError(t, err)
	assert.True(t, deleted.IsDeleted)

	for _, id := range f.comments {
		c, err := store.Comments().Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, "Alice", c.UserName)
	}

	bob, err := store.Posts().Get(ctx, f.other)
	require.NoError(t, err)
	assert.Equal(t, "name-bob", bob.UserName)
	assert.Equal(t, int64(2), bob.CommentCount)

	again, err := svc.PropagateUserInfo(ctx, info)
	require.NoError(t, err)
	assert.Equal(t, report.PostsUpdated, again.PostsUpdated)
	assert.Equal(t, report.CommentsUpdated, again.CommentsUpdated)

	assert.Contains(t, pub.types(), models.EventUserPropagated)
}

func TestPropagateUserInfoNoRecords(t *testing.T) {
	svc := newTestService(t, database.NewMemoryStore())

	report, err := svc.PropagateUserInfo(context.Background(), models.UserInfo{UUID: "ghost", UserName: "Ghost"})
	require.NoError(t, err)
	assert.Zero(t, report.Total())

	_, err = svc.PropagateUserInfo(context.Background(), models.UserInfo{UserName: "Nobody"})
	assert.Error(t, err)
}

func TestPropagateUserInfoPartialFailure(t *testing.T) {
	ctx := context.Background()
	store := newFaultyStore()
	svc := newTestService(t, store)
	f := seedPropagation(t, svc)

	boom := errors.New("boom")
	store.posts.failAlways("update", f.posts[2], boom)
	store.comments.failAlways("update", f.comments[0], boom)

	report, err := svc.PropagateUserInfo(ctx, models.UserInfo{UUID: "alice", UserName: "Alice"})
	require.Error(t, err)
	require.NotNil(t, report)
	assert.ErrorIs(t, err, boom)

	var batch *PartialBatchError
	require.True(t, errors.As(err, &batch))
	assert.Same(t, report, batch.Report)

	assert.Equal(t, 2, report.PostsUpdated)
	assert.Equal(t, 1, report.CommentsUpdated)
	require.Len(t, report.Failures, 2)
	assert.Equal(t, RecordFailure{Collection: "post", Key: f.posts[2], Err: boom, Message: "boom"}, report.Failures[0])
	assert.Equal(t, "comment", report.Failures[1].Collection)
	assert.Equal(t, f.comments[0], report.Failures[1].Key)

	updated, err := store.MemoryStore.Posts().Get(ctx, f.posts[1])
	require.NoError(t, err)
	assert.Equal(t, "Alice", updated.UserName)
	failed, err := store.MemoryStore.Posts().Get(ctx, f.posts[2])
	require.NoError(t, err)
	assert.Equal(t, "name-alice", failed.UserName)
}

func TestPropagateUserInfoQueryFailure(t *testing.T) {
	store := newFaultyStore()
	svc := newTestService(t, store)
	store.comments.failAlways("query", "alice", database.ErrUnavailable)

	report, err := svc.PropagateUserInfo(context.Background(), models.UserInfo{UUID: "alice", UserName: "Alice"})
	assert.Nil(t, report)
	assert.ErrorIs(t, err, database.ErrUnavailable)
}

func TestPropagateUserInfoBoundsWorkers(t *testing.T) {
	ctx := context.Background()
	store := newFaultyStore()
	svc := newTestService(t, store, WithPropagationWorkers(2))
	for i := 0; i < 8; i++ {
		_, err := svc.CreatePost(ctx, newPost("alice", "post"))
		require.NoError(t, err)
	}

	var inFlight, peak atomic.Int32
	var mu sync.Mutex
	store.posts.onUpdate = func(string) {
		n := inFlight.Add(1)
		mu.Lock()
		if n > peak.Load() {
			peak.Store(n)
		}
		mu.Unlock()
		time.Sleep(5 * time.Millisecond)
		inFlight.Add(-1)
	}

	report, err := svc.PropagateUserInfo(ctx, models.UserInfo{UUID: "alice", UserName: "Alice"})
	require.NoError(t, err)
	assert.Equal(t, 8, report.PostsUpdated)
	assert.LessOrEqual(t, peak.Load(), int32(2))
}
