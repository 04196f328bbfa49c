package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	admindomain "github.com/smallbiznis/invoicekit/internal/admin/domain"
	auditdomain "github.com/smallbiznis/invoicekit/internal/audit/domain"
	"github.com/smallbiznis/invoicekit/internal/authorization"
	"github.com/smallbiznis/invoicekit/internal/observability/logger"
	"go.uber.org/zap"
)

type adminLoginRequest struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

type createAdminRequest struct {
	Email string `json:"email"`
	Role  string `json:"role"`
}

type changeCodeRequest struct {
	Code string `json:"code"`
}

type createAdminResponse struct {
	Admin *admindomain.Admin `json:"admin"`
	// Code is returned once and never stored in plain form.
	Code string `json:"code"`
}

func (s *Server) AdminLogin(c *gin.Context) {
	var req adminLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	ctx := c.Request.Context()
	adm, err := s.adminSvc.VerifyAdmin(ctx, req.Email, req.Code)
	if err != nil {
		if errors.Is(err, admindomain.ErrAdminNotFound) || errors.Is(err, admindomain.ErrInvalidCredential) {
			err = ErrUnauthorized
		}
		AbortWithError(c, err)
		return
	}

	result, err := s.authsvc.IssueAdminSession(ctx, adm.ID, c.Request.UserAgent(), c.ClientIP())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	s.sessions.Admin.Set(c, result.RawToken, result.ExpiresAt)
	c.JSON(http.StatusOK, gin.H{"data": adm})
}

func (s *Server) AdminLogout(c *gin.Context) {
	ctx := c.Request.Context()
	actor, _ := adminActorFromContext(c)

	if err := s.adminSvc.RecordLogout(ctx, actor.ID); err != nil {
		logger.FromContext(ctx).Warn("admin logout not recorded", zap.Error(err))
	}
	if token := c.GetString(contextTokenKey); token != "" {
		if err := s.authsvc.Logout(ctx, token); err != nil && !isUnauthorized(err) {
			AbortWithError(c, err)
			return
		}
	}

	s.sessions.Admin.Clear(c)
	c.Status(http.StatusNoContent)
}

func (s *Server) ListAdmins(c *gin.Context) {
	admins, err := s.adminSvc.ListAdmins(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": admins})
}

func (s *Server) CreateAdmin(c *gin.Context) {
	actor, ok := adminActorFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req createAdminRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	role := strings.TrimSpace(req.Role)
	if role == "" {
		role = admindomain.RoleAdmin
	}

	adm, code, err := s.adminSvc.AddAdmin(c.Request.Context(), actor.ID, req.Email, role)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": createAdminResponse{Admin: adm, Code: code}})
}

func (s *Server) DeleteAdmin(c *gin.Context) {
	actor, ok := adminActorFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if id == actor.ID {
		AbortWithError(c, ErrForbidden)
		return
	}

	if err := s.adminSvc.DeleteAdmin(c.Request.Context(), actor.ID, id); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// ChangeAdminCode rotates an admin's code. Rotating one's own code and
// rotating another admin's code are separate permissions.
func (s *Server) ChangeAdminCode(c *gin.Context) {
	actor, ok := adminActorFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	action := authorization.ActionAdminCodeRotateAny
	if id == actor.ID {
		action = authorization.ActionAdminCodeRotateOwn
	}
	if err := s.authorizeAdmin(c, authorization.ObjectAdminCode, action); err != nil {
		AbortWithError(c, err)
		return
	}

	var req changeCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	if err := s.adminSvc.ChangeCode(c.Request.Context(), actor.ID, id, req.Code); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (s *Server) ListActivities(c *gin.Context) {
	limit, err := parseOptionalInt(c.Query("limit"), auditdomain.DefaultListLimit)
	if err != nil {
		AbortWithError(c, newValidationError("limit", "invalid_limit", "invalid limit"))
		return
	}
	adminID, err := parseOptionalSnowflakeID(c.Query("admin_id"))
	if err != nil {
		AbortWithError(c, newValidationError("admin_id", "invalid_admin_id", "invalid admin_id"))
		return
	}

	items, err := s.auditSvc.List(c.Request.Context(), auditdomain.ListRequest{
		Limit:   limit,
		Action:  strings.TrimSpace(c.Query("action")),
		AdminID: adminID,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": items})
}

func (s *Server) ListUsers(c *gin.Context) {
	limit, err := parseOptionalInt(c.Query("limit"), 0)
	if err != nil {
		AbortWithError(c, newValidationError("limit", "invalid_limit", "invalid limit"))
		return
	}

	users, err := s.authsvc.ListUsers(c.Request.Context(), limit)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": users})
}
