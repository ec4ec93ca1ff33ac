package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"scriptlab/internal/logging"
	"scriptlab/internal/workflow"
)

const (
	liveWriteWait  = 10 * time.Second
	livePongWait   = 60 * time.Second
	livePingPeriod = livePongWait * 9 / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Access is gated by the bearer token, not the origin.
	CheckOrigin: func(*http.Request) bool { return true },
}

// handleLive upgrades to a websocket, sends the current session view, then
// pushes a change after every mutation until the client goes away.
func (s *Server) handleLive(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	sub := s.manager.Broadcaster().Subscribe(sess.ID())
	defer sub.Close()

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already written an HTTP error.
		s.logger.Debug("websocket upgrade failed", logging.Error(err))
		return
	}
	defer conn.Close()
	logger := logging.WithContext(c.Request.Context(), s.logger).With(logging.String(logging.FieldWorkflowID, sess.ID()))

	// The read side only services control frames and notices disconnects.
	done := make(chan struct{})
	conn.SetReadLimit(4096)
	_ = conn.SetReadDeadline(time.Now().Add(livePongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(livePongWait))
	})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	write := func(change workflow.Change) error {
		_ = conn.SetWriteDeadline(time.Now().Add(liveWriteWait))
		return conn.WriteJSON(change)
	}
	if err := write(workflow.Change{WorkflowID: sess.ID(), Reason: "snapshot", View: sess.View()}); err != nil {
		return
	}

	ticker := time.NewTicker(livePingPeriod)
	defer ticker.Stop()
	for {
		select {
		case change, ok := <-sub.Changes:
			if !ok {
				return
			}
			if err := write(change); err != nil {
				logger.Debug("live push failed", logging.Error(err))
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(liveWriteWait)); err != nil {
				return
			}
		case <-done:
			return
		case <-c.Request.Context().Done():
			return
		}
	}
}
