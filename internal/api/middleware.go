package api

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"scriptlab/internal/logging"
	"scriptlab/internal/services"
)

const (
	headerAccountID = "X-Account-ID"
	headerRequestID = "X-Request-ID"
	ctxAccountID    = "account_id"
)

// requestContext tags the request context with a correlation ID.
func (s *Server) requestContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(headerRequestID))
		if id == "" {
			id = uuid.NewString()
		}
		c.Header(headerRequestID, id)
		c.Request = c.Request.WithContext(services.WithRequestID(c.Request.Context(), id))
		c.Next()
	}
}

// accessLog records one line per request.
func (s *Server) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		status := c.Writer.Status()
		attrs := []logging.Attr{
			logging.String("method", c.Request.Method),
			logging.String("path", c.Request.URL.Path),
			logging.Int("status", status),
			logging.Duration("duration", time.Since(start)),
		}
		logger := logging.WithContext(c.Request.Context(), s.logger)
		if status >= http.StatusInternalServerError {
			logger.Warn("http request", logging.Args(attrs...)...)
			return
		}
		logger.Debug("http request", logging.Args(attrs...)...)
	}
}

// authenticate validates bearer tokens. With no token configured every
// request passes.
func (s *Server) authenticate() gin.HandlerFunc {
	token := strings.TrimSpace(s.cfg.API.Token)
	return func(c *gin.Context) {
		if token == "" {
			c.Next()
			return
		}
		presented, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
		if !ok {
			presented = c.Query("access_token")
		}
		if subtle.ConstantTimeCompare([]byte(strings.TrimSpace(presented)), []byte(token)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized", Kind: "unauthorized"})
			return
		}
		c.Next()
	}
}

// requireAccount reads the caller's account from X-Account-ID.
func (s *Server) requireAccount() gin.HandlerFunc {
	return func(c *gin.Context) {
		account := strings.TrimSpace(c.GetHeader(headerAccountID))
		if account == "" {
			account = strings.TrimSpace(c.Query("account_id"))
		}
		if account == "" {
			s.fail(c, services.Wrap(services.ErrValidation, "api", "account", headerAccountID+" header required", nil))
			return
		}
		c.Set(ctxAccountID, account)
		c.Next()
	}
}

func accountID(c *gin.Context) string {
	return c.GetString(ctxAccountID)
}
