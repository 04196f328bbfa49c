package server

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"
	admindomain "github.com/smallbiznis/invoicekit/internal/admin/domain"
	"github.com/smallbiznis/invoicekit/internal/authorization"
	obscontext "github.com/smallbiznis/invoicekit/internal/observability/context"
	"github.com/smallbiznis/invoicekit/internal/observability/logger"
	"github.com/smallbiznis/invoicekit/pkg/tenantctx"
	"go.uber.org/zap"
)

const (
	contextUserIDKey     = "user_id"
	contextAdminActorKey = "admin_actor"
	contextTokenKey      = "session_token"

	actorTypeUser  = "user"
	actorTypeAdmin = "admin"
)

// UserAuthRequired resolves the user session cookie and scopes the request
// context to that user.
func (s *Server) UserAuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := s.sessions.User.ReadToken(c)
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		sess, err := s.authsvc.Authenticate(c.Request.Context(), token)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		if sess.UserID == nil {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		userID := *sess.UserID
		ctx := tenantctx.WithUserID(c.Request.Context(), userID)
		ctx = obscontext.WithActor(ctx, actorTypeUser, userID.String())
		c.Request = c.Request.WithContext(ctx)
		c.Set(contextUserIDKey, userID.String())
		c.Set(contextTokenKey, token)
		c.Next()
	}
}

// AdminAuthRequired resolves the admin console cookie and loads the admin's
// current role for authorization.
func (s *Server) AdminAuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := s.sessions.Admin.ReadToken(c)
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		sess, err := s.authsvc.AuthenticateAdmin(c.Request.Context(), token)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		if sess.AdminID == nil {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		adm, err := s.adminSvc.GetAdmin(c.Request.Context(), *sess.AdminID)
		if err != nil {
			// A deleted admin's session is no longer valid.
			if errors.Is(err, admindomain.ErrAdminNotFound) {
				AbortWithError(c, ErrUnauthorized)
				return
			}
			AbortWithError(c, err)
			return
		}

		ctx := obscontext.WithActor(c.Request.Context(), actorTypeAdmin, adm.ID.String())
		c.Request = c.Request.WithContext(ctx)
		c.Set(contextAdminActorKey, authorization.Actor{ID: adm.ID, Role: adm.Role})
		c.Set(contextTokenKey, token)
		c.Next()
	}
}

func adminActorFromContext(c *gin.Context) (authorization.Actor, bool) {
	v, ok := c.Get(contextAdminActorKey)
	if !ok {
		return authorization.Actor{}, false
	}
	actor, ok := v.(authorization.Actor)
	return actor, ok && actor.ID != 0
}

func (s *Server) authorize(object, action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := s.authorizeAdmin(c, object, action); err != nil {
			AbortWithError(c, err)
			return
		}
		c.Next()
	}
}

func (s *Server) authorizeAdmin(c *gin.Context, object, action string) error {
	actor, ok := adminActorFromContext(c)
	if !ok {
		return ErrUnauthorized
	}
	if s.authzSvc == nil {
		return ErrForbidden
	}
	return s.authzSvc.Authorize(c.Request.Context(), actor, object, action)
}

// LoginRateLimit applies the per-IP login bucket for scope. Without a
// configured limiter every request passes.
func (s *Server) LoginRateLimit(scope string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.loginLimiter.Enabled() {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		result, err := s.loginLimiter.Allow(ctx, scope, c.ClientIP())
		if err != nil {
			logger.FromContext(ctx).Warn("login rate limit check failed",
				zap.String("scope", scope),
				zap.Error(err),
			)
			AbortWithError(c, ErrServiceUnavailable)
			return
		}

		if result.Limit > 0 {
			c.Header("X-RateLimit-Limit", strconv.Itoa(result.Limit))
			c.Header("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
		}
		if !result.Allowed {
			retry := int(result.RetryAfter.Seconds())
			if retry < 1 {
				retry = 1
			}
			logger.FromContext(ctx).Warn("login rate limit exceeded", zap.String("scope", scope))
			c.Header("Retry-After", strconv.Itoa(retry))
			AbortWithError(c, ErrRateLimited)
			return
		}
		c.Next()
	}
}
