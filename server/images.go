package server

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/ytget/twitvid/errs"
	"github.com/ytget/twitvid/upload"
)

// multipart overhead allowed on top of the file size limit
const formSlack = 1 << 20

func (s *Server) handleUploadImage(c *gin.Context) {
	limit := s.opts.MaxUploadSize + formSlack
	if c.Request.ContentLength > limit {
		c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{"error": s.deps.Images.TooLargeMessage()})
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
	fh, err := c.FormFile("file")
	if err != nil {
		var tooBig *http.MaxBytesError
		switch {
		case errors.As(err, &tooBig):
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{"error": s.deps.Images.TooLargeMessage()})
		case errors.Is(err, http.ErrMissingFile):
			writeError(c, errs.ErrNoFile)
		default:
			writeError(c, fmt.Errorf("%w: %v", errs.ErrNoFile, err))
		}
		return
	}
	f, err := fh.Open()
	if err != nil {
		writeError(c, err)
		return
	}
	defer f.Close()

	res, err := s.deps.Images.Upload(c.Request.Context(), upload.File{
		Name:        fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Size:        fh.Size,
		Reader:      f,
	})
	if err != nil {
		if errors.Is(err, errs.ErrFileTooLarge) {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{"error": s.deps.Images.TooLargeMessage()})
			return
		}
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) handleImageInfo(c *gin.Context) {
	code := c.Param("code")
	rec, err := s.deps.Images.Resolve(c.Request.Context(), code)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"encoded":    code,
		"name":       rec.Name,
		"file_type":  rec.FileType,
		"file_size":  rec.FileSize,
		"created_at": rec.CreatedAt,
	})
}

func (s *Server) handleShortLink(c *gin.Context) {
	ctx := c.Request.Context()
	rec, err := s.deps.Images.Resolve(ctx, c.Param("code"))
	if err != nil {
		writeError(c, err)
		return
	}
	rc, info, err := s.deps.Images.Open(ctx, rec)
	if err != nil {
		writeError(c, err)
		return
	}
	defer rc.Close()

	extra := map[string]string{}
	if cc := strings.TrimSpace(info.CacheControl); cc != "" {
		if !strings.Contains(cc, "=") {
			cc = "public, max-age=" + cc
		}
		extra["Cache-Control"] = cc
	}
	c.DataFromReader(http.StatusOK, info.Size, info.ContentType, rc, extra)
}
