package server

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
)

const headerGatewaySignature = "X-Gateway-Signature"

// HandleGatewayWebhook feeds the raw body to the reconciler. The signature is
// computed over the exact bytes received, so the payload is never re-encoded.
func (s *Server) HandleGatewayWebhook(c *gin.Context) {
	payload, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, 1<<20))
	if err != nil {
		AbortWithError(c, errBadRequest)
		return
	}

	if err := s.webhookSvc.Ingest(c.Request.Context(), payload, c.GetHeader(headerGatewaySignature)); err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
