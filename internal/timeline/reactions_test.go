package timeline

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emilythestrangee/terakoya-timeline/backend/internal/database"
	"github.com/emilythestrangee/terakoya-timeline/backend/internal/models"
)

func TestReactToPostScenario(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, database.NewMemoryStore())

	postID, err := svc.CreatePost(ctx, newPost("author", "post"))
	require.NoError(t, err)

	got, err := svc.ReactToPost(ctx, postID, "a", models.ReactionLike)
	require.NoError(t, err)
	assert.Equal(t, models.Reactions{{UUID: "a", Type: models.ReactionLike}}, got)

	got, err = svc.ReactToPost(ctx, postID, "a", models.ReactionLike)
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = svc.ReactToPost(ctx, postID, "a", models.ReactionLove)
	require.NoError(t, err)
	got, err = svc.ReactToPost(ctx, postID, "b", models.ReactionLike)
	require.NoError(t, err)
	assert.Equal(t, models.Reactions{
		{UUID: "a", Type: models.ReactionLove},
		{UUID: "b", Type: models.ReactionLike},
	}, got)

	_, err = svc.ReactToPost(ctx, postID, "a", models.ReactionLike)
	assert.ErrorIs(t, err, ErrReactionConflict)

	post, err := svc.FetchPost(ctx, postID)
	require.NoError(t, err)
	assert.Equal(t, got, post.Reactions)
	assert.Equal(t, int64(4), post.Version)
}

func TestReactToPostRejectsInput(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, database.NewMemoryStore())

	postID, err := svc.CreatePost(ctx, newPost("author", "post"))
	require.NoError(t, err)

	_, err = svc.ReactToPost(ctx, postID, "a", models.ReactionType("ANGRY"))
	assert.ErrorIs(t, err, ErrInvalidReaction)
	_, err = svc.ReactToPost(ctx, postID, "", models.ReactionLike)
	assert.ErrorIs(t, err, ErrInvalidReaction)
	_, err = svc.ReactToPost(ctx, "missing", "a", models.ReactionLike)
	assert.ErrorIs(t, err, database.ErrNotFound)
}

func TestReactToComment(t *testing.T) {
	ctx := context.Background()
	pub := &recordingPublisher{}
	svc := newTestService(t, database.NewMemoryStore(), WithPublisher(pub))

	postID, err := svc.CreatePost(ctx, newPost("author", "post"))
	require.NoError(t, err)
	commentID, err := svc.CreateComment(ctx, postID, newComment("reader", "c"))
	require.NoError(t, err)

	got, err := svc.ReactToComment(ctx, commentID, "a", models.ReactionSad)
	require.NoError(t, err)
	assert.Equal(t, models.Reactions{{UUID: "a", Type: models.ReactionSad}}, got)

	got, err = svc.ReactToComment(ctx, commentID, "a", models.ReactionSad)
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = svc.ReactToComment(ctx, "missing", "a", models.ReactionSad)
	assert.ErrorIs(t, err, database.ErrNotFound)

	pub.mu.Lock()
	defer pub.mu.Unlock()
	last := pub.events[len(pub.events)-1]
	assert.Equal(t, models.EventCommentReacted, last.Type)
	assert.Equal(t, "removed", last.Outcome)
	assert.Equal(t, models.ReactionSad, last.Reaction)
	assert.Equal(t, models.ReactionSad.Label(), last.Label)
}

func TestReactRetriesAfterLostRace(t *testing.T) {
	ctx := context.Background()
	store := newFaultyStore()
	svc := newTestService(t, store)

	postID, err := svc.CreatePost(ctx, newPost("author", "post"))
	require.NoError(t, err)

	var once sync.Once
	store.posts.onUpdate = func(key string) {
		once.Do(func() {
			// another writer lands between our read and our write
			other := newTestService(t, store.MemoryStore)
			_, err := other.ReactToPost(ctx, key, "b", models.ReactionLaugh)
			require.NoError(t, err)
		})
	}

	got, err := svc.ReactToPost(ctx, postID, "a", models.ReactionLike)
	require.NoError(t, err)
	assert.ElementsMatch(t, models.Reactions{
		{UUID: "a", Type: models.ReactionLike},
		{UUID: "b", Type: models.ReactionLaugh},
	}, got)
	assert.Equal(t, 2, store.posts.callCount("get"))

	post, err := store.MemoryStore.Posts().Get(ctx, postID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), post.Version)
}

func TestReactGivesUpAfterRetries(t *testing.T) {
	ctx := context.Background()
	store := newFaultyStore()
	svc := newTestService(t, store, WithReactionRetries(2))

	postID, err := svc.CreatePost(ctx, newPost("author", "post"))
	require.NoError(t, err)

	bumps := 0
	store.posts.onUpdate = func(key string) {
		bumps++
		post, err := store.MemoryStore.Posts().Get(ctx, key)
		require.NoError(t, err)
		require.NoError(t, store.MemoryStore.Posts().UpdateSet(ctx, key,
			map[string]any{"version": post.Version + 1}))
	}

	_, err = svc.ReactToPost(ctx, postID, "a", models.ReactionLike)
	assert.ErrorIs(t, err, ErrConcurrentUpdate)
	assert.Equal(t, 3, bumps)

	post, err := store.MemoryStore.Posts().Get(ctx, postID)
	require.NoError(t, err)
	assert.Empty(t, post.Reactions)
}

func TestReactTransientErrors(t *testing.T) {
	ctx := context.Background()
	store := newFaultyStore()
	svc := newTestService(t, store)

	postID, err := svc.CreatePost(ctx, newPost("author", "post"))
	require.NoError(t, err)

	store.posts.failTimes("get", postID, 1, database.ErrUnavailable)
	_, err = svc.ReactToPost(ctx, postID, "a", models.ReactionLike)
	require.NoError(t, err)

	store.posts.failTimes("update", postID, 1, database.ErrUnavailable)
	_, err = svc.ReactToPost(ctx, postID, "b", models.ReactionLike)
	assert.ErrorIs(t, err, database.ErrUnavailable)

	post, err := svc.FetchPost(ctx, postID)
	require.NoError(t, err)
	assert.Equal(t, models.Reactions{{UUID: "a", Type: models.ReactionLike}}, post.Reactions)
}

func TestConcurrentReactionsAreNotLost(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, database.NewMemoryStore(), WithReactionRetries(64))

	postID, err := svc.CreatePost(ctx, newPost("author", "post"))
	require.NoError(t, err)

	const users = 24
	var wg sync.WaitGroup
	errs := make(chan error, users)
	for i := 0; i < users; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.ReactToPost(ctx, postID, fmt.Sprintf("user-%02d", i), models.ReactionLike)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	post, err := svc.FetchPost(ctx, postID)
	require.NoError(t, err)
	assert.Len(t, post.Reactions, users)
	assert.Equal(t, int64(users), post.Version)
}

func TestReactionInvalidatesCachedPost(t *testing.T) {
	ctx := context.Background()
	cache := newMapCache()
	svc := newTestService(t, database.NewMemoryStore(), WithCache(cache))

	postID, err := svc.CreatePost(ctx, newPost("author", "post"))
	require.NoError(t, err)
	_, err = svc.FetchPost(ctx, postID)
	require.NoError(t, err)

	_, err = svc.ReactToPost(ctx, postID, "a", models.ReactionLove)
	require.NoError(t, err)

	post, err := svc.FetchPost(ctx, postID)
	require.NoError(t, err)
	assert.Len(t, post.Reactions, 1)
}
