package middleware

import (
	"github.com/mediagate/modgate/internal/pkg/apperrors"
	"github.com/mediagate/modgate/internal/service"

	"github.com/gin-gonic/gin"
)

// Actor identity arrives already resolved by the upstream auth layer; this
// core only consumes the headers and gates on the moderator capability map.
const (
	HeaderActorID   = "X-Actor-ID"
	HeaderActorMail = "X-Actor-Email"
	HeaderOrgID     = "X-Organization-ID"

	ContextActorKey = "actor"
)

// Actor is the resolved caller identity for one request.
type Actor struct {
	ID             string
	Email          string
	OrganizationID string
}

func ActorFrom(c *gin.Context) (Actor, bool) {
	val, ok := c.Get(ContextActorKey)
	if !ok {
		return Actor{}, false
	}
	actor, ok := val.(Actor)
	return actor, ok
}

// ModeratorAuth requires a resolved actor holding any moderator role.
func ModeratorAuth(svc *service.ModerationService) gin.HandlerFunc {
	return func(c *gin.Context) {
		actorID := c.GetHeader(HeaderActorID)
		if actorID == "" {
			c.AbortWithStatusJSON(401, gin.H{"error": "missing actor identity"})
			return
		}

		ok, err := svc.VerifyModeratorAccess(c.Request.Context(), actorID)
		if err != nil {
			_ = c.Error(err)
			c.Abort()
			return
		}
		if !ok {
			c.AbortWithStatusJSON(403, gin.H{"error": "moderator access required"})
			return
		}

		c.Set(ContextActorKey, Actor{
			ID:             actorID,
			Email:          c.GetHeader(HeaderActorMail),
			OrganizationID: c.GetHeader(HeaderOrgID),
		})
		c.Next()
	}
}

// RequirePermission gates a route on one capability from the moderator
// permission map. Must run after ModeratorAuth.
func RequirePermission(svc *service.ModerationService, perm service.Permission) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := ActorFrom(c)
		if !ok {
			c.AbortWithStatusJSON(401, gin.H{"error": "missing actor identity"})
			return
		}

		allowed, err := svc.HasPermission(c.Request.Context(), actor.ID, perm)
		if err != nil {
			_ = c.Error(err)
			c.Abort()
			return
		}
		if !allowed {
			_ = c.Error(apperrors.New(apperrors.ErrForbidden, "missing permission "+string(perm), nil))
			c.Abort()
			return
		}
		c.Next()
	}
}
