package timeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/emilythestrangee/terakoya-timeline/backend/internal/database"
	"github.com/emilythestrangee/terakoya-timeline/backend/internal/models"
)

// ListPosts returns one page of the global timeline, most recent first.
//
// Deleted posts are filtered out after the store query, so a page can hold
// fewer than the page size even when more active posts exist. NextToken is
// the store's token for the following page.
func (s *Service) ListPosts(ctx context.Context, token string) (database.Page[models.PostItem], error) {
	return s.listActivePosts(ctx, database.Query{
		Index:          database.IndexAllPosts,
		PartitionValue: models.PKForAllPost,
		Limit:          s.pageSize,
		StartToken:     token,
	})
}

// ListUserPosts is ListPosts restricted to one author.
func (s *Service) ListUserPosts(ctx context.Context, uuid, token string) (database.Page[models.PostItem], error) {
	return s.listActivePosts(ctx, database.Query{
		Index:          database.IndexPostsByUser,
		PartitionValue: uuid,
		Limit:          s.pageSize,
		StartToken:     token,
	})
}

func (s *Service) listActivePosts(ctx context.Context, q database.Query) (database.Page[models.PostItem], error) {
	var page database.Page[models.PostItem]
	err := s.retry(ctx, "query posts", func() (err error) {
		page, err = s.posts.Query(ctx, q)
		return err
	})
	if err != nil {
		return database.Page[models.PostItem]{}, fmt.Errorf("error listing posts: %w", err)
	}

	active := make([]models.PostItem, 0, len(page.Items))
	for _, p := range page.Items {
		if !p.IsDeleted {
			active = append(active, p)
		}
	}
	page.Items = active
	return page, nil
}

// CreatePost stores post as given, filling in the identifier, timestamp and
// index fields when they are empty. It returns the post id.
func (s *Service) CreatePost(ctx context.Context, post models.PostItem) (string, error) {
	if post.PostID == "" {
		post.PostID = s.newID()
	}
	if post.Timestamp == 0 {
		post.Timestamp = s.timestamp()
	}
	if post.Reactions == nil {
		post.Reactions = models.Reactions{}
	}
	post.PKForAllPostGSI = models.PKForAllPost
	post.CommentCount = 0
	post.IsDeleted = false
	post.Version = 0

	err := s.retry(ctx, "put post", func() error {
		return s.posts.Put(ctx, post)
	})
	if err != nil {
		return "", fmt.Errorf("error creating post: %w", err)
	}

	s.log.InfoContext(ctx, "post created", "post_id", post.PostID, "uuid", post.UUID)
	s.publish(ctx, models.TimelineEvent{Type: models.EventPostCreated, PostID: post.PostID, UUID: post.UUID})
	return post.PostID, nil
}

// DeletePost soft deletes a post. Deleting a missing or already deleted post
// succeeds without changes.
func (s *Service) DeletePost(ctx context.Context, postID string) error {
	err := s.retry(ctx, "delete post", func() error {
		return s.posts.UpdateSet(ctx, postID, map[string]any{"is_deleted": true})
	})
	if errors.Is(err, database.ErrNotFound) {
		s.log.InfoContext(ctx, "delete of unknown post ignored", "post_id", postID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("error deleting post %s: %w", postID, err)
	}

	s.invalidate(ctx, postID)
	s.log.InfoContext(ctx, "post deleted", "post_id", postID)
	s.publish(ctx, models.TimelineEvent{Type: models.EventPostDeleted, PostID: postID})
	return nil
}

// FetchPost reads a post by key, including soft deleted ones.
func (s *Service) FetchPost(ctx context.Context, postID string) (models.PostItem, error) {
	var (
		generation int64
		fillable   bool
	)
	if s.cache != nil {
		cached, gen, err := s.cache.Get(ctx, postID)
		switch {
		case err != nil:
			s.log.WarnContext(ctx, "post cache read failed", "post_id", postID, "error", err)
		case cached != nil:
			return *cached, nil
		default:
			generation, fillable = gen, true
		}
	}

	var post models.PostItem
	err := s.retry(ctx, "get post", func() (err error) {
		post, err = s.posts.Get(ctx, postID)
		return err
	})
	if err != nil {
		return models.PostItem{}, fmt.Errorf("error fetching post %s: %w", postID, err)
	}

	if fillable {
		stored, err := s.cache.Fill(ctx, &post, generation)
		if err != nil {
			s.log.WarnContext(ctx, "post cache write failed", "post_id", postID, "error", err)
		} else if !stored {
			s.log.DebugContext(ctx, "post changed during fetch, not cached", "post_id", postID)
		}
	}
	return post, nil
}
