package timeline

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/emilythestrangee/terakoya-timeline/backend/internal/database"
	"github.com/emilythestrangee/terakoya-timeline/backend/internal/models"
)

// PropagationReport summarizes one user info sweep.
type PropagationReport struct {
	UUID            string          `json:"uuid"`
	PostsUpdated    int             `json:"posts_updated"`
	CommentsUpdated int             `json:"comments_updated"`
	Failures        []RecordFailure `json:"failures"`
}

// Total is the number of records the sweep attempted.
func (r *PropagationReport) Total() int {
	return r.PostsUpdated + r.CommentsUpdated + len(r.Failures)
}

// PropagateUserInfo copies the user's display name and profile image into
// every post and comment they authored, including soft deleted posts.
//
// Records are updated independently by a bounded pool of workers. A failed
// record does not stop the sweep; when any record fails the report is
// returned together with a *PartialBatchError. Rerunning the sweep is safe.
func (s *Service) PropagateUserInfo(ctx context.Context, info models.UserInfo) (*PropagationReport, error) {
	if info.UUID == "" {
		return nil, fmt.Errorf("user info propagation requires a uuid")
	}

	var posts []models.PostItem
	err := s.retry(ctx, "query user posts", func() error {
		page, err := s.posts.Query(ctx, database.Query{Index: database.IndexPostsByUser, PartitionValue: info.UUID})
		posts = page.Items
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("error listing posts of %s: %w", info.UUID, err)
	}

	var comments []models.CommentItem
	err = s.retry(ctx, "query user comments", func() error {
		page, err := s.comments.Query(ctx, database.Query{Index: database.IndexCommentsByUser, PartitionValue: info.UUID})
		comments = page.Items
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("error listing comments of %s: %w", info.UUID, err)
	}

	attrs := map[string]any{
		"user_name":            info.UserName,
		"user_profile_img_url": info.UserProfileImgURL,
	}

	report := &PropagationReport{UUID: info.UUID, Failures: []RecordFailure{}}
	var (
		mu      sync.Mutex
		touched []string
	)
	record := func(collection, key string, err error) {
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			report.Failures = append(report.Failures, RecordFailure{
				Collection: collection,
				Key:        key,
				Err:        err,
				Message:    err.Error(),
			})
			return
		}
		if collection == "post" {
			report.PostsUpdated++
			touched = append(touched, key)
		} else {
			report.CommentsUpdated++
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for _, p := range posts {
		g.Go(func() error {
			record("post", p.PostID, s.retry(gctx, "propagate post", func() error {
				return s.posts.UpdateSet(gctx, p.PostID, attrs)
			}))
			return nil
		})
	}
	for _, c := range comments {
		g.Go(func() error {
			record("comment", c.CommentID, s.retry(gctx, "propagate comment", func() error {
				return s.comments.UpdateSet(gctx, c.CommentID, attrs)
			}))
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(report.Failures, func(i, j int) bool {
		a, b := report.Failures[i], report.Failures[j]
		if a.Collection != b.Collection {
			return a.Collection > b.Collection
		}
		return a.Key < b.Key
	})

	s.invalidate(ctx, touched...)
	s.log.InfoContext(ctx, "user info propagated",
		"uuid", info.UUID,
		"posts", report.PostsUpdated,
		"comments", report.CommentsUpdated,
		"failures", len(report.Failures),
	)
	s.publish(ctx, models.TimelineEvent{
		Type:    models.EventUserPropagated,
		UUID:    info.UUID,
		Updated: report.PostsUpdated + report.CommentsUpdated,
	})

	if len(report.Failures) > 0 {
		return report, &PartialBatchError{Report: report}
	}
	return report, nil
}
