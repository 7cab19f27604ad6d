package timeline

import (
	"context"
	"fmt"

	"github.com/emilythestrangee/terakoya-timeline/backend/internal/database"
	"github.com/emilythestrangee/terakoya-timeline/backend/internal/models"
)

// ListComments returns one page of a post's comments, most recent first.
func (s *Service) ListComments(ctx context.Context, postID, token string) (database.Page[models.CommentItem], error) {
	var page database.Page[models.CommentItem]
	err := s.retry(ctx, "query comments", func() (err error) {
		page, err = s.comments.Query(ctx, database.Query{
			Index:          database.IndexCommentsForPost,
			PartitionValue: postID,
			Limit:          s.pageSize,
			StartToken:     token,
		})
		return err
	})
	if err != nil {
		return database.Page[models.CommentItem]{}, fmt.Errorf("error listing comments: %w", err)
	}
	return page, nil
}

// CreateComment stores comment under postID and then bumps the post's
// comment_count. The two writes are not atomic: if the increment still fails
// after retries the comment stays stored and a *PartialFailureError is
// returned together with the comment id.
func (s *Service) CreateComment(ctx context.Context, postID string, comment models.CommentItem) (string, error) {
	err := s.retry(ctx, "get post", func() error {
		_, err := s.posts.Get(ctx, postID)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("error creating comment on post %s: %w", postID, err)
	}

	if comment.CommentID == "" {
		comment.CommentID = s.newID()
	}
	if comment.Timestamp == 0 {
		comment.Timestamp = s.timestamp()
	}
	if comment.Reactions == nil {
		comment.Reactions = models.Reactions{}
	}
	comment.PostID = postID
	comment.Version = 0

	err = s.retry(ctx, "put comment", func() error {
		return s.comments.Put(ctx, comment)
	})
	if err != nil {
		return "", fmt.Errorf("error creating comment on post %s: %w", postID, err)
	}

	err = s.retry(ctx, "increment comment_count", func() error {
		return s.posts.UpdateIncrement(ctx, postID, "comment_count", 1)
	})
	if err != nil {
		s.log.ErrorContext(ctx, "comment stored without count increment",
			"post_id", postID, "comment_id", comment.CommentID, "error", err)
		return comment.CommentID, &PartialFailureError{
			Step:      "comment_count increment",
			PostID:    postID,
			CommentID: comment.CommentID,
			Err:       err,
		}
	}

	s.invalidate(ctx, postID)
	s.log.InfoContext(ctx, "comment created", "post_id", postID, "comment_id", comment.CommentID)
	s.publish(ctx, models.TimelineEvent{
		Type:      models.EventCommentCreated,
		PostID:    postID,
		CommentID: comment.CommentID,
		UUID:      comment.UUID,
	})
	return comment.CommentID, nil
}
