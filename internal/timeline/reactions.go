package timeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/emilythestrangee/terakoya-timeline/backend/internal/database"
	"github.com/emilythestrangee/terakoya-timeline/backend/internal/models"
	"github.com/emilythestrangee/terakoya-timeline/backend/internal/reaction"
)

// ReactToPost applies a reaction from uuid to a post and returns the post's
// reactions after the write.
func (s *Service) ReactToPost(ctx context.Context, postID, uuid string, reactionType models.ReactionType) (models.Reactions, error) {
	out, err := react(ctx, s, s.posts, postID, models.Reaction{UUID: uuid, Type: reactionType},
		func(p models.PostItem) (models.Reactions, int64) { return p.Reactions, p.Version })
	if err != nil {
		return nil, fmt.Errorf("error reacting to post %s: %w", postID, err)
	}

	s.invalidate(ctx, postID)
	s.publish(ctx, models.TimelineEvent{
		Type:     models.EventPostReacted,
		PostID:   postID,
		UUID:     uuid,
		Reaction: reactionType,
		Label:    reactionType.Label(),
		Outcome:  out.outcome.String(),
	})
	return out.reactions, nil
}

// ReactToComment is ReactToPost for comments.
func (s *Service) ReactToComment(ctx context.Context, commentID, uuid string, reactionType models.ReactionType) (models.Reactions, error) {
	out, err := react(ctx, s, s.comments, commentID, models.Reaction{UUID: uuid, Type: reactionType},
		func(c models.CommentItem) (models.Reactions, int64) { return c.Reactions, c.Version })
	if err != nil {
		return nil, fmt.Errorf("error reacting to comment %s: %w", commentID, err)
	}

	s.publish(ctx, models.TimelineEvent{
		Type:      models.EventCommentReacted,
		CommentID: commentID,
		UUID:      uuid,
		Reaction:  reactionType,
		Label:     reactionType.Label(),
		Outcome:   out.outcome.String(),
	})
	return out.reactions, nil
}

type reactResult struct {
	reactions models.Reactions
	outcome   reaction.Outcome
}

// react runs the read, reconcile, conditional write loop against one
// record. The write only lands when the stored version still equals the one
// that was read; otherwise the record is re-read and the reaction
// reconciled again. A transient failure of the conditional write is not
// retried since the first attempt may have been applied.
func react[T any](ctx context.Context, s *Service, table database.Table[T], key string,
	incoming models.Reaction, fields func(T) (models.Reactions, int64)) (reactResult, error) {
	if !incoming.Type.Valid() {
		return reactResult{}, fmt.Errorf("%w: %q", ErrInvalidReaction, incoming.Type)
	}
	if incoming.UUID == "" {
		return reactResult{}, fmt.Errorf("%w: missing uuid", ErrInvalidReaction)
	}

	attempts := 1 + s.reactionRetries
	for attempt := 1; attempt <= attempts; attempt++ {
		var item T
		err := s.retry(ctx, "get for reaction", func() (err error) {
			item, err = table.Get(ctx, key)
			return err
		})
		if err != nil {
			return reactResult{}, err
		}

		existing, version := fields(item)
		next, outcome, err := reaction.Reconcile(existing, incoming)
		if err != nil {
			return reactResult{}, err
		}
		reactions := models.Reactions(next)
		if reactions == nil {
			reactions = models.Reactions{}
		}

		err = table.UpdateSet(ctx, key,
			map[string]any{"reactions": reactions, "version": version + 1},
			database.Condition{Attr: "version", Equals: version},
		)
		switch {
		case err == nil:
			return reactResult{reactions: reactions, outcome: outcome}, nil
		case errors.Is(err, database.ErrConditionFailed):
			s.log.DebugContext(ctx, "reaction lost version race", "key", key, "attempt", attempt, "version", version)
			continue
		default:
			return reactResult{}, err
		}
	}
	s.log.WarnContext(ctx, "reaction retries exhausted", "key", key, "attempts", attempts)
	return reactResult{}, ErrConcurrentUpdate
}
