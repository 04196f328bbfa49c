package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (s *Server) GetUserDashboard(c *gin.Context) {
	stats, err := s.dashboardSvc.UserStats(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": stats})
}

func (s *Server) GetAdminDashboard(c *gin.Context) {
	stats, err := s.dashboardSvc.AdminStats(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": stats})
}
