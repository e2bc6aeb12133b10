package handler

import (
	"net/http"

	"github.com/mediagate/modgate/internal/middleware"
	"github.com/mediagate/modgate/internal/model"
	"github.com/mediagate/modgate/internal/pkg/apperrors"
	"github.com/mediagate/modgate/internal/service"

	"github.com/gin-gonic/gin"
)

type ModerationHandler struct {
	svc *service.ModerationService
}

func NewModerationHandler(svc *service.ModerationService) *ModerationHandler {
	return &ModerationHandler{svc: svc}
}

func (h *ModerationHandler) FlagClient(c *gin.Context) {
	actor, _ := middleware.ActorFrom(c)

	var req model.FlagClientRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(apperrors.NewValidation(err.Error()))
		return
	}
	if req.OrganizationID == "" {
		req.OrganizationID = actor.OrganizationID
	}

	flag, err := h.svc.FlagClient(c.Request.Context(), req, actor.ID, c.ClientIP())
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, flag)
}

func (h *ModerationHandler) BanToken(c *gin.Context) {
	actor, _ := middleware.ActorFrom(c)

	var req model.BanTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(apperrors.NewValidation(err.Error()))
		return
	}
	if req.OrganizationID == "" {
		req.OrganizationID = actor.OrganizationID
	}

	resp, err := h.svc.BanToken(c.Request.Context(), req, actor.ID, c.ClientIP())
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *ModerationHandler) GetActiveFlags(c *gin.Context) {
	flags, err := h.svc.GetActiveFlags(c.Request.Context(),
		c.Query("client_id"), c.Query("token_id"), c.Query("ip_address"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"flags": flags})
}

func (h *ModerationHandler) IsFlagged(c *gin.Context) {
	flagged, err := h.svc.IsFlagged(c.Request.Context(),
		c.Query("client_id"), c.Query("token_id"), c.Query("ip_address"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"flagged": flagged})
}

func (h *ModerationHandler) DeactivateFlag(c *gin.Context) {
	actor, _ := middleware.ActorFrom(c)
	flagID := c.Param("id")

	if err := h.svc.DeactivateFlag(c.Request.Context(), flagID, actor.ID, c.ClientIP()); err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deactivated", "flag_id": flagID})
}

type setRoleRequest struct {
	Role string `json:"role" binding:"required"`
}

// SetRole grants or changes the moderator role for a user.
func (h *ModerationHandler) SetRole(c *gin.Context) {
	actor, _ := middleware.ActorFrom(c)
	userID := c.Param("id")

	var req setRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(apperrors.NewValidation(err.Error()))
		return
	}

	if err := h.svc.SetModeratorRole(c.Request.Context(), userID, req.Role, actor.ID, c.ClientIP()); err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user_id": userID, "role": req.Role})
}

// Permissions reports the capability map for an arbitrary user id, so the
// upstream HTTP layer can gate its own routes.
func (h *ModerationHandler) Permissions(c *gin.Context) {
	userID := c.Param("id")
	if userID == "" {
		_ = c.Error(apperrors.NewValidation("user id required"))
		return
	}

	perms, err := h.svc.GetModeratorPermissions(c.Request.Context(), userID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user_id": userID, "permissions": perms})
}
