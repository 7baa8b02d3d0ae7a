package server

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	bookingdomain "github.com/fixlane/fixlane/internal/booking/domain"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	headerActorRole       = "X-Actor-Role"
	headerActorID         = "X-Actor-ID"
	headerSchedulerSecret = "X-Scheduler-Secret"
)

var errBadRequest = errors.New("bad_request")

// RequestLogger emits one structured line per request.
func RequestLogger(log *zap.Logger) gin.HandlerFunc {
	log = log.Named("http.request")
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		log.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}

// actorFromRequest reads the caller identity from headers. Authentication
// mechanics live upstream; the gateway forwards a verified role and id.
func actorFromRequest(c *gin.Context) (bookingdomain.Actor, error) {
	role := bookingdomain.Role(c.GetHeader(headerActorRole))
	switch role {
	case bookingdomain.RoleCustomer, bookingdomain.RoleTechnician, bookingdomain.RoleAdmin:
	default:
		return bookingdomain.Actor{}, fmt.Errorf("%w: missing or unknown %s header", errBadRequest, headerActorRole)
	}

	rawID := c.GetHeader(headerActorID)
	if rawID == "" {
		return bookingdomain.Actor{}, fmt.Errorf("%w: missing %s header", errBadRequest, headerActorID)
	}
	id, err := snowflake.ParseString(rawID)
	if err != nil {
		return bookingdomain.Actor{}, fmt.Errorf("%w: invalid %s header", errBadRequest, headerActorID)
	}

	return bookingdomain.Actor{Role: role, ID: id}, nil
}

// SchedulerSecretRequired gates the internal job-trigger endpoints. With no
// secret configured the endpoints are disabled outright.
func (s *Server) SchedulerSecretRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		secret := s.cfg.SchedulerSecret
		provided := c.GetHeader(headerSchedulerSecret)
		if secret == "" || subtle.ConstantTimeCompare([]byte(secret), []byte(provided)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse{
				Error: errorPayload{Type: "unauthorized", Message: "invalid scheduler secret"},
			})
			return
		}
		c.Next()
	}
}

func pathID(c *gin.Context, name string) (snowflake.ID, error) {
	return parseID(c.Param(name), name)
}

func parseID(raw, name string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid %s", errBadRequest, name)
	}
	return id, nil
}
