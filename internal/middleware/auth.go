package middleware

import (
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/pipelabs/pipegate/internal/model"
	"github.com/pipelabs/pipegate/internal/pkg/apperrors"
)

const (
	HeaderGatewayKey = "X-Gateway-Key"
	ContextActorKey  = "actor"
)

// ActorResolver maps a bearer credential to an actor. The token
// registry satisfies it.
type ActorResolver interface {
	Resolve(token string, now time.Time) (*model.Actor, bool)
}

// BearerToken pulls the caller credential from the Authorization header,
// falling back to X-Gateway-Key for console clients.
func BearerToken(c *gin.Context) string {
	if h := c.GetHeader("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	return c.GetHeader(HeaderGatewayKey)
}

// Auth resolves the credential and stores the actor in the request
// context. Gated action routes skip this middleware on purpose: their
// identity denials must flow through the evaluation pipeline so the
// attempt lands in the audit trail. Console routes that never evaluate
// an action use Auth directly.
func Auth(reg ActorResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := reg.Resolve(BearerToken(c), time.Now().UTC())
		if !ok {
			abortWith(c, apperrors.New(apperrors.ErrUnauthenticated, "unknown or expired credential", nil))
			return
		}
		c.Set(ContextActorKey, actor)
		c.Next()
	}
}

// RequireAdmin must run after Auth.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor := ActorFromContext(c)
		if actor == nil || actor.Role != model.RoleAdmin {
			abortWith(c, apperrors.NewForbidden("admin role required"))
			return
		}
		c.Next()
	}
}

func ActorFromContext(c *gin.Context) *model.Actor {
	v, ok := c.Get(ContextActorKey)
	if !ok {
		return nil
	}
	actor, _ := v.(*model.Actor)
	return actor
}

func abortWith(c *gin.Context, err *apperrors.AppError) {
	if err.RetryAfter > 0 {
		c.Header("Retry-After", strconv.Itoa(err.RetryAfter))
	}
	c.AbortWithStatusJSON(err.HTTPStatus, err)
}
