package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"scriptlab/internal/logging"
)

const (
	defaultLogLimit = 200
	maxFollowWait   = 30 * time.Second
)

// handleLogs pages through buffered daemon logs. follow=1 long-polls for the
// next event; tail=1 returns the most recent events.
func (s *Server) handleLogs(c *gin.Context) {
	if s.logs == nil {
		c.JSON(http.StatusOK, LogStreamResponse{})
		return
	}

	since, _ := strconv.ParseUint(c.Query("since"), 10, 64)
	limit, _ := strconv.Atoi(c.Query("limit"))
	if limit <= 0 {
		limit = defaultLogLimit
	}
	follow := queryFlag(c, "follow")
	tail := queryFlag(c, "tail")
	workflowID := strings.TrimSpace(c.Query("workflow"))
	component := strings.TrimSpace(c.Query("component"))

	var (
		events []logging.LogEvent
		next   uint64
	)
	if tail && since == 0 && !follow {
		events, next = s.logs.Tail(limit)
	} else {
		ctx, cancel := context.WithTimeout(c.Request.Context(), maxFollowWait)
		defer cancel()
		var err error
		events, next, err = s.logs.Fetch(ctx, since, limit, follow)
		if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			s.fail(c, err)
			return
		}
		if next < since {
			next = since
		}
	}

	filtered := make([]logging.LogEvent, 0, len(events))
	for _, evt := range events {
		if workflowID != "" && evt.WorkflowID != workflowID {
			continue
		}
		if component != "" && !strings.EqualFold(component, evt.Component) {
			continue
		}
		filtered = append(filtered, evt)
	}
	c.JSON(http.StatusOK, LogStreamResponse{Events: filtered, Next: next})
}

func queryFlag(c *gin.Context, name string) bool {
	value := c.Query(name)
	return value == "1" || strings.EqualFold(value, "true")
}
