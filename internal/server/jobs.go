package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// The job endpoints run one policy sweep synchronously. They exist for
// operational reruns and tests; the scheduler binary drives the same jobs on a
// ticker.

func (s *Server) HandleAutoReleaseJob(c *gin.Context) {
	if err := s.scheduler.AutoReleaseJob(c.Request.Context()); err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"job": "auto_release", "status": "completed"})
}

func (s *Server) HandleSLARefundJob(c *gin.Context) {
	if err := s.scheduler.SLARefundJob(c.Request.Context()); err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"job": "sla_refund", "status": "completed"})
}

func (s *Server) HandleInactivityFlagJob(c *gin.Context) {
	if err := s.scheduler.InactivityFlagJob(c.Request.Context()); err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"job": "inactivity_flag", "status": "completed"})
}
