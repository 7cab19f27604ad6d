package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/emilythestrangee/terakoya-timeline/backend/internal/middleware"
	"github.com/emilythestrangee/terakoya-timeline/backend/internal/models"
	"github.com/emilythestrangee/terakoya-timeline/backend/internal/timeline"
)

type UserHandler struct {
	svc *timeline.Service
}

func NewUserHandler(svc *timeline.Service) *UserHandler {
	return &UserHandler{svc: svc}
}

// UpdateUserInfo copies new display fields into the user's posts and
// comments. Per-record failures are reported with 207.
func (h *UserHandler) UpdateUserInfo(c *gin.Context) {
	var input models.UserInfo
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_name is required"})
		return
	}

	uuid := c.Param("uuid")
	if caller, ok := middleware.CallerUUID(c); ok && caller != uuid {
		c.JSON(http.StatusForbidden, gin.H{"error": "You can only update your own profile"})
		return
	}
	input.UUID = uuid

	report, err := h.svc.PropagateUserInfo(c.Request.Context(), input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}
