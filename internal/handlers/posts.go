package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/emilythestrangee/terakoya-timeline/backend/internal/models"
	"github.com/emilythestrangee/terakoya-timeline/backend/internal/timeline"
)

type PostHandler struct {
	svc *timeline.Service
}

func NewPostHandler(svc *timeline.Service) *PostHandler {
	return &PostHandler{svc: svc}
}

// GetPosts returns a page of the global timeline
func (h *PostHandler) GetPosts(c *gin.Context) {
	page, err := h.svc.ListPosts(c.Request.Context(), c.Query("last_evaluated_key"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, pageResponse(page))
}

// GetUserPosts returns a page of one user's posts
func (h *PostHandler) GetUserPosts(c *gin.Context) {
	page, err := h.svc.ListUserPosts(c.Request.Context(), c.Param("uuid"), c.Query("last_evaluated_key"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, pageResponse(page))
}

// GetPost returns a single post by ID, deleted or not
func (h *PostHandler) GetPost(c *gin.Context) {
	post, err := h.svc.FetchPost(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, post)
}

func (h *PostHandler) CreatePost(c *gin.Context) {
	var input models.CreatePostRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_name and content are required"})
		return
	}

	uuid := resolveUUID(c, input.UUID)
	if uuid == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "uuid is required"})
		return
	}

	postID, err := h.svc.CreatePost(c.Request.Context(), models.PostItem{
		UUID:              uuid,
		UserName:          input.UserName,
		UserProfileImgURL: input.UserProfileImgURL,
		Content:           input.Content,
		ImageURL:          input.ImageURL,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"post_id": postID})
}

// DeletePost soft deletes a post. Unknown posts are not an error.
func (h *PostHandler) DeletePost(c *gin.Context) {
	postID := c.Param("id")
	if err := h.svc.DeletePost(c.Request.Context(), postID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Post deleted successfully", "post_id": postID})
}

func (h *PostHandler) ReactToPost(c *gin.Context) {
	uuid, reactionType, ok := bindReaction(c)
	if !ok {
		return
	}

	reactions, err := h.svc.ReactToPost(c.Request.Context(), c.Param("id"), uuid, reactionType)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"reactions": reactions})
}

// bindReaction reads a ReactionRequest and writes a 400 when it is unusable.
func bindReaction(c *gin.Context) (string, models.ReactionType, bool) {
	var input models.ReactionRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "type is required"})
		return "", "", false
	}

	reactionType, err := models.ParseReactionType(input.Type)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return "", "", false
	}

	uuid := resolveUUID(c, input.UUID)
	if uuid == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "uuid is required"})
		return "", "", false
	}
	return uuid, reactionType, true
}
