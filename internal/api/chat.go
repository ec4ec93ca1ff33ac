package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"scriptlab/internal/advisory"
	"scriptlab/internal/logging"
)

// handleChat runs one advisory turn and streams its events as server-sent
// frames. Headers are written with the first event, so failures before the
// turn starts still get a JSON error response.
func (s *Server) handleChat(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Message) == "" {
		s.fail(c, badRequest("message required", err))
		return
	}

	var writer *advisory.Writer
	emit := func(ev advisory.Event) error {
		if writer == nil {
			c.Header("Content-Type", "text/event-stream")
			c.Header("Cache-Control", "no-cache")
			c.Header("Connection", "keep-alive")
			c.Header("X-Accel-Buffering", "no")
			c.Status(http.StatusOK)
			writer = advisory.NewWriter(c.Writer)
		}
		return writer.Emit(ev)
	}

	_, err := sess.Chat(c.Request.Context(), req.Message, emit)
	if err == nil {
		return
	}
	if writer == nil {
		s.fail(c, err)
		return
	}
	// The advisor has already reported provider failures on the stream.
	logging.WarnWithContext(logging.WithContext(c.Request.Context(), s.logger), "advisory turn ended with error", "advisory_turn_failed",
		logging.Error(err),
		logging.ErrorKind(err),
		logging.String(logging.FieldImpact, "reply may be incomplete"),
	)
}
