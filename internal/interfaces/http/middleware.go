package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/agency-workflow/internal/domain/entity"
	"github.com/garyjia/agency-workflow/pkg/utils"
)

// Identity headers set by the upstream authentication layer, which is trusted
const (
	HeaderActorID   = "X-Actor-ID"
	HeaderActorRole = "X-Actor-Role"
)

const actorKey = "actor"

// identityMiddleware reads the caller identity and rejects requests without one
func identityMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor := entity.Actor{
			ID:   c.GetHeader(HeaderActorID),
			Role: entity.Role(c.GetHeader(HeaderActorRole)),
		}

		if actor.ID == "" {
			abort(c, http.StatusBadRequest, CodeInvalidInput, "missing "+HeaderActorID+" header")
			return
		}
		if err := utils.ValidateIdentifier(HeaderActorID, actor.ID); err != nil {
			abort(c, http.StatusBadRequest, CodeInvalidInput, err.Error())
			return
		}
		if !actor.Role.IsValid() {
			abort(c, http.StatusBadRequest, CodeInvalidInput, "unknown role "+string(actor.Role))
			return
		}

		c.Set(actorKey, actor)
		c.Next()
	}
}

func actorFrom(c *gin.Context) entity.Actor {
	v, _ := c.Get(actorKey)
	actor, _ := v.(entity.Actor)
	return actor
}

func abort(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, Response{
		Success: false,
		Error:   message,
		Code:    code,
	})
}
