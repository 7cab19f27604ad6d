package handlers

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/emilythestrangee/terakoya-timeline/backend/internal/database"
	"github.com/emilythestrangee/terakoya-timeline/backend/internal/middleware"
	"github.com/emilythestrangee/terakoya-timeline/backend/internal/timeline"
)

// Handler combines all handler types
type Handler struct {
	Post    *PostHandler
	Comment *CommentHandler
	User    *UserHandler
}

// NewHandler creates a unified handler with all sub-handlers
func NewHandler(svc *timeline.Service) *Handler {
	return &Handler{
		Post:    NewPostHandler(svc),
		Comment: NewCommentHandler(svc),
		User:    NewUserHandler(svc),
	}
}

// pageResponse renders a page as {"items": [...], "last_evaluated_key": ...}.
// The key is null on the last page.
func pageResponse[T any](page database.Page[T]) gin.H {
	items := page.Items
	if items == nil {
		items = []T{}
	}
	var next any
	if page.NextToken != "" {
		next = page.NextToken
	}
	return gin.H{"items": items, "last_evaluated_key": next}
}

// resolveUUID prefers the authenticated caller over the uuid in the body.
func resolveUUID(c *gin.Context, fromBody string) string {
	if uuid, ok := middleware.CallerUUID(c); ok {
		return uuid
	}
	return fromBody
}

// respondError maps service and store errors to HTTP responses.
func respondError(c *gin.Context, err error) {
	var partial *timeline.PartialFailureError
	var batch *timeline.PartialBatchError

	switch {
	case errors.As(err, &batch):
		c.JSON(http.StatusMultiStatus, batch.Report)
	case errors.As(err, &partial):
		log.Printf("❌ partial write: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":      "Comment was saved but the post's comment count was not updated",
			"comment_id": partial.CommentID,
			"post_id":    partial.PostID,
		})
	case errors.Is(err, timeline.ErrReactionConflict):
		c.JSON(http.StatusConflict, gin.H{"error": "Remove your current reaction before choosing another"})
	case errors.Is(err, timeline.ErrConcurrentUpdate):
		c.JSON(http.StatusConflict, gin.H{"error": "Too many concurrent updates, try again"})
	case errors.Is(err, timeline.ErrInvalidReaction):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid reaction"})
	case errors.Is(err, database.ErrInvalidToken):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid last_evaluated_key"})
	case errors.Is(err, database.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
	case errors.Is(err, database.ErrUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Storage is temporarily unavailable"})
	default:
		log.Printf("❌ request failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}
