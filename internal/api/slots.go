package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"scriptlab/internal/assets"
	"scriptlab/internal/media"
	"scriptlab/internal/plan"
	"scriptlab/internal/services"
)

func (s *Server) handleGetSlot(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	view, err := sess.Slot(c.Param("slot"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, SlotResponse{Slot: view})
}

func (s *Server) handleGenerateSlot(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	view, err := sess.GenerateSlot(c.Request.Context(), c.Param("slot"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, SlotResponse{Slot: view})
}

func (s *Server) handleClearSlot(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	view, err := sess.ClearSlot(c.Request.Context(), c.Param("slot"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, SlotResponse{Slot: view})
}

// handleAttachReference stages a reference from a JSON body naming a URL or
// from a multipart "file" upload. Uploaded files are temporary: they are
// deleted once a generation consumes them or the reference is removed.
func (s *Server) handleAttachReference(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	var ref assets.Reference
	if isMultipart(c) {
		saved, err := s.receiveFile(c)
		if err != nil {
			s.fail(c, err)
			return
		}
		ref = assets.Reference{
			URL:       saved.URL,
			LocalPath: saved.Path,
			Medium:    mediumFor(c.PostForm("medium"), saved.ContentType),
			Temporary: true,
		}
	} else {
		var req AttachReferenceRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			s.fail(c, badRequest("invalid reference", err))
			return
		}
		ref = assets.Reference{ID: req.ID, URL: req.URL, Medium: plan.NormalizeMedium(string(req.Medium))}
	}
	attached, err := sess.AttachReference(c.Request.Context(), c.Param("slot"), ref)
	if err != nil {
		if ref.Temporary {
			_ = s.media.Remove(ref.LocalPath)
		}
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, ReferenceResponse{Reference: attached})
}

func (s *Server) handleRemoveReference(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	if err := sess.RemoveReference(c.Request.Context(), c.Param("slot"), c.Param("ref")); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// handleUploadResult installs a multipart "file" upload as the slot result.
func (s *Server) handleUploadResult(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	if !isMultipart(c) {
		s.fail(c, badRequest("multipart file upload required", nil))
		return
	}
	saved, err := s.receiveFile(c)
	if err != nil {
		s.fail(c, err)
		return
	}
	view, err := sess.UploadResult(c.Request.Context(), c.Param("slot"), saved.URL, map[string]string{
		"filename":     saved.Name,
		"content_type": saved.ContentType,
		"size":         strconv.FormatInt(saved.Size, 10),
	})
	if err != nil {
		_ = s.media.Remove(saved.Path)
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, SlotResponse{Slot: view})
}

func (s *Server) receiveFile(c *gin.Context) (media.Saved, error) {
	if s.media == nil {
		return media.Saved{}, services.Wrap(services.ErrConfiguration, "api", "upload", "media storage unavailable", nil)
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.maxBytes)
	header, err := c.FormFile("file")
	if err != nil {
		return media.Saved{}, badRequest("file field required", err)
	}
	file, err := header.Open()
	if err != nil {
		return media.Saved{}, badRequest("open upload", err)
	}
	defer file.Close()
	saved, err := s.media.Save(file, header.Filename, header.Header.Get("Content-Type"))
	if err != nil {
		return media.Saved{}, services.Wrap(services.ErrValidation, "api", "upload", "store upload", err)
	}
	return saved, nil
}

func isMultipart(c *gin.Context) bool {
	return strings.HasPrefix(c.ContentType(), "multipart/")
}

// mediumFor prefers an explicit medium and otherwise guesses from the
// content type.
func mediumFor(explicit, contentType string) plan.Medium {
	if strings.TrimSpace(explicit) != "" {
		return plan.NormalizeMedium(explicit)
	}
	switch {
	case strings.HasPrefix(contentType, "video/"):
		return plan.MediumVideo
	case strings.HasPrefix(contentType, "audio/"):
		return plan.MediumAudio
	default:
		return plan.MediumImage
	}
}
