package server

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"github.com/ytget/twitvid/errs"
	"github.com/ytget/twitvid/internal/logger"
	"github.com/ytget/twitvid/twitter/links"
	"github.com/ytget/twitvid/types"
)

type resolveRequest struct {
	URL string `json:"url"`
}

type batchRequest struct {
	URLs []string `json:"urls"`
}

type batchItem struct {
	URL   string           `json:"url"`
	Video *types.VideoInfo `json:"video,omitempty"`
	Error string           `json:"error,omitempty"`
}

func (s *Server) handleResolve(c *gin.Context) {
	var req resolveRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.URL) == "" {
		writeError(c, fmt.Errorf("%w: url is required", errs.ErrInvalidURL))
		return
	}
	info, err := s.deps.Resolver.Resolve(c.Request.Context(), req.URL)
	if err != nil {
		writeError(c, err)
		return
	}
	s.remember(c.Request.Context(), userID(c), info)
	c.JSON(http.StatusOK, info)
}

func (s *Server) handleBatch(c *gin.Context) {
	var req batchRequest
	if err := c.ShouldBindJSON(&req); err != nil || len(req.URLs) == 0 {
		writeError(c, fmt.Errorf("%w: urls are required", errs.ErrInvalidURL))
		return
	}
	if len(req.URLs) > s.opts.BatchLimit {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("too many urls, max %d", s.opts.BatchLimit)})
		return
	}

	ctx := c.Request.Context()
	user := userID(c)
	results := make([]batchItem, len(req.URLs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.BatchWorkers)
	for i, u := range req.URLs {
		i, u := i, u
		g.Go(func() error {
			results[i].URL = u
			info, err := s.deps.Resolver.Resolve(gctx, u)
			if err != nil {
				results[i].Error = errorMessage(err, statusFor(err))
				return nil
			}
			results[i].Video = info
			s.remember(gctx, user, info)
			return nil
		})
	}
	_ = g.Wait()
	c.JSON(http.StatusOK, gin.H{"results": results})
}

// remember records a resolved video in the user's history. Failures are
// logged and do not fail the request.
func (s *Server) remember(ctx context.Context, user string, info *types.VideoInfo) {
	if user == "" {
		return
	}
	_, err := s.deps.History.UpsertHistory(ctx, types.HistoryEntry{
		UserID:      user,
		SourceURL:   info.SourceURL,
		Description: info.Description,
		Creator:     info.Creator,
		Thumbnail:   info.Thumbnail,
		VideoHD:     info.Links.HD,
		VideoSD:     info.Links.SD,
		Audio:       info.Links.Audio,
	})
	if err != nil {
		log.Warn("history upsert failed", logger.Fields{"user": user, "error": err.Error()})
	}
}

func (s *Server) handleDownload(c *gin.Context) {
	rawURL := c.Query("url")
	if strings.TrimSpace(rawURL) == "" {
		writeError(c, fmt.Errorf("%w: url is required", errs.ErrInvalidURL))
		return
	}
	quality, err := links.ParseQuality(c.Query("quality"))
	if err != nil {
		writeError(c, err)
		return
	}
	ctx := c.Request.Context()
	info, err := s.deps.Resolver.Resolve(ctx, rawURL)
	if err != nil {
		writeError(c, err)
		return
	}
	mediaURL, chosen, err := links.Select(info.Links, quality)
	if err != nil {
		writeError(c, err)
		return
	}
	filename := links.Filename(chosen, mediaURL, s.now())

	started := false
	n, err := s.deps.Streamer.Stream(ctx, mediaURL, c.Writer, func(h http.Header) {
		started = true
		contentType := h.Get("Content-Type")
		if contentType == "" {
			contentType = "video/mp4"
		}
		c.Header("Content-Type", contentType)
		if cl := h.Get("Content-Length"); cl != "" {
			if _, perr := strconv.ParseInt(cl, 10, 64); perr == nil {
				c.Header("Content-Length", cl)
			}
		}
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
		c.Status(http.StatusOK)
	})
	if s.deps.Metrics != nil && n > 0 {
		s.deps.Metrics.DownloadBytes.Add(float64(n))
	}
	if err != nil {
		if !started {
			writeError(c, fmt.Errorf("%w: %v", errs.ErrProviderFailed, err))
			return
		}
		_ = c.Error(err)
		log.Warn("stream interrupted", logger.Fields{"url": mediaURL, "bytes": n, "error": err.Error()})
		return
	}
	log.Info("media streamed", logger.Fields{"quality": string(chosen), "bytes": n, "filename": filename})
}

func (s *Server) handleListHistory(c *gin.Context) {
	list, err := s.deps.History.ListHistory(c.Request.Context(), userID(c), s.opts.HistoryLimit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"history": list})
}

func (s *Server) handleClearHistory(c *gin.Context) {
	n, err := s.deps.History.ClearHistory(c.Request.Context(), userID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": n})
}
