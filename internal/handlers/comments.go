package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/emilythestrangee/terakoya-timeline/backend/internal/models"
	"github.com/emilythestrangee/terakoya-timeline/backend/internal/timeline"
)

type CommentHandler struct {
	svc *timeline.Service
}

func NewCommentHandler(svc *timeline.Service) *CommentHandler {
	return &CommentHandler{svc: svc}
}

// GetComments returns a page of comments for a post
func (h *CommentHandler) GetComments(c *gin.Context) {
	page, err := h.svc.ListComments(c.Request.Context(), c.Param("id"), c.Query("last_evaluated_key"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, pageResponse(page))
}

func (h *CommentHandler) CreateComment(c *gin.Context) {
	var input models.CreateCommentRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_name and content are required"})
		return
	}

	uuid := resolveUUID(c, input.UUID)
	if uuid == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "uuid is required"})
		return
	}

	commentID, err := h.svc.CreateComment(c.Request.Context(), c.Param("id"), models.CommentItem{
		UUID:              uuid,
		UserName:          input.UserName,
		UserProfileImgURL: input.UserProfileImgURL,
		Content:           input.Content,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"comment_id": commentID})
}

func (h *CommentHandler) ReactToComment(c *gin.Context) {
	uuid, reactionType, ok := bindReaction(c)
	if !ok {
		return
	}

	reactions, err := h.svc.ReactToComment(c.Request.Context(), c.Param("id"), uuid, reactionType)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"reactions": reactions})
}
