package api

import (
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"scriptlab/internal/assets"
	"scriptlab/internal/merge"
	"scriptlab/internal/workflow"
)

const defaultListLimit = 50

// session opens the workflow named by the :id path parameter.
func (s *Server) session(c *gin.Context) (*workflow.Session, bool) {
	sess, err := s.manager.Open(c.Request.Context(), accountID(c), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return nil, false
	}
	return sess, true
}

func (s *Server) handleCreateWorkflow(c *gin.Context) {
	var req CreateWorkflowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, badRequest("invalid workflow request", err))
		return
	}
	sess, err := s.manager.Create(c.Request.Context(), accountID(c), req.Brief)
	if err != nil {
		s.fail(c, err)
		return
	}
	if !req.Generate {
		c.JSON(http.StatusCreated, sess.View())
		return
	}
	view, err := sess.GeneratePlan(c.Request.Context())
	if err != nil {
		body := errorBody(err)
		body.WorkflowID = view.ID
		s.failWith(c, err, body)
		return
	}
	c.JSON(http.StatusCreated, view)
}

func (s *Server) handleListWorkflows(c *gin.Context) {
	limit := defaultListLimit
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			s.fail(c, badRequest("limit must be a positive integer", err))
			return
		}
		limit = parsed
	}
	items, err := s.manager.List(c.Request.Context(), accountID(c), limit)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, WorkflowListResponse{Workflows: items})
}

func (s *Server) handleGetWorkflow(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, sess.View())
}

func (s *Server) handleDeleteWorkflow(c *gin.Context) {
	if err := s.manager.Delete(c.Request.Context(), accountID(c), c.Param("id")); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleGeneratePlan(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	view, err := sess.GeneratePlan(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (s *Server) handleApplyUpdate(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, 1<<20))
	if err != nil {
		s.fail(c, badRequest("read update", err))
		return
	}
	update, err := merge.Decode(body)
	if err != nil {
		s.fail(c, err)
		return
	}
	view, err := sess.ApplyUpdate(c.Request.Context(), update)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (s *Server) handleSetDefaults(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	var defaults assets.SessionDefaults
	if err := c.ShouldBindJSON(&defaults); err != nil {
		s.fail(c, badRequest("invalid defaults", err))
		return
	}
	saved, err := sess.SetDefaults(c.Request.Context(), defaults)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, saved)
}

func (s *Server) handleGenerateAll(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	report, err := sess.GenerateAll(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (s *Server) handleGenerateScene(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		s.fail(c, badRequest("scene index must be an integer", err))
		return
	}
	var req SceneGenerateRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			s.fail(c, badRequest("invalid scene request", err))
			return
		}
	}
	var opts *assets.SceneOptions
	if req.Regenerate {
		opts = &assets.SceneOptions{Keyword: req.Keyword, Overlay: req.Overlay}
	}
	report, err := sess.GenerateScene(c.Request.Context(), index, opts)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (s *Server) handleGetCreator(c *gin.Context) {
	creator, err := s.manager.Creator(c.Request.Context(), accountID(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, creator)
}

func (s *Server) handlePutCreator(c *gin.Context) {
	var creator assets.CreatorAssets
	if err := c.ShouldBindJSON(&creator); err != nil {
		s.fail(c, badRequest("invalid creator assets", err))
		return
	}
	saved, err := s.manager.SetCreator(c.Request.Context(), accountID(c), creator)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, saved)
}
