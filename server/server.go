// Package server exposes the resolver, history and image short links over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ytget/twitvid/internal/logger"
	"github.com/ytget/twitvid/internal/metrics"
	"github.com/ytget/twitvid/store"
	"github.com/ytget/twitvid/types"
	"github.com/ytget/twitvid/upload"
)

var log = logger.WithComponent(logger.ComponentServer)

// VideoResolver resolves a post URL into media links.
type VideoResolver interface {
	Resolve(ctx context.Context, videoURL string) (*types.VideoInfo, error)
}

// MediaStreamer copies a remote media resource into w.
type MediaStreamer interface {
	Stream(ctx context.Context, url string, w io.Writer, onHeader func(http.Header)) (int64, error)
}

// History persists resolved videos per user.
type History interface {
	UpsertHistory(ctx context.Context, e types.HistoryEntry) (types.HistoryEntry, error)
	ListHistory(ctx context.Context, userID string, limit int) ([]types.HistoryEntry, error)
	ClearHistory(ctx context.Context, userID string) (int64, error)
}

// Images stores uploads and resolves short links.
type Images interface {
	Upload(ctx context.Context, f upload.File) (*upload.Result, error)
	Resolve(ctx context.Context, encoded string) (*types.ImageRecord, error)
	Open(ctx context.Context, rec *types.ImageRecord) (io.ReadCloser, store.ObjectInfo, error)
	TooLargeMessage() string
}

// Deps are the collaborators behind the handlers. Metrics is optional.
type Deps struct {
	Resolver VideoResolver
	Streamer MediaStreamer
	History  History
	Images   Images
	Metrics  *metrics.Metrics
}

// Options tunes the HTTP surface.
type Options struct {
	Address         string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	BatchLimit      int
	BatchWorkers    int
	HistoryLimit    int
	MaxUploadSize   int64
	SecureCookies   bool
}

const (
	defaultBatchLimit   = 10
	defaultBatchWorkers = 4
	defaultHistoryLimit = 10
	defaultUploadSize   = 5 << 20
)

// Server is the HTTP front end.
type Server struct {
	deps   Deps
	opts   Options
	engine *gin.Engine
	now    func() time.Time
}

// New builds the gin engine and registers every route.
func New(deps Deps, opts Options) (*Server, error) {
	if deps.Resolver == nil || deps.Streamer == nil || deps.History == nil || deps.Images == nil {
		return nil, errors.New("server: resolver, streamer, history and images are required")
	}
	if opts.BatchLimit <= 0 {
		opts.BatchLimit = defaultBatchLimit
	}
	if opts.BatchWorkers <= 0 {
		opts.BatchWorkers = defaultBatchWorkers
	}
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = defaultHistoryLimit
	}
	if opts.MaxUploadSize <= 0 {
		opts.MaxUploadSize = defaultUploadSize
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 10 * time.Second
	}

	if gin.Mode() == gin.DebugMode {
		gin.SetMode(gin.ReleaseMode)
	}
	s := &Server{deps: deps, opts: opts, engine: gin.New(), now: time.Now}
	s.routes()
	return s, nil
}

func (s *Server) routes() {
	r := s.engine
	r.Use(recovery(), requestID(), accessLog(), instrument(s.deps.Metrics), anonUser(s.opts.SecureCookies))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if s.deps.Metrics != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.deps.Metrics.Registry, promhttp.HandlerOpts{})))
	}

	api := r.Group("/api")
	api.POST("/videos/resolve", s.handleResolve)
	api.POST("/videos/batch", s.handleBatch)
	api.GET("/videos/download", s.handleDownload)
	api.GET("/history", s.handleListHistory)
	api.DELETE("/history", s.handleClearHistory)
	api.POST("/images", s.handleUploadImage)
	api.GET("/images/:code", s.handleImageInfo)

	r.GET("/s/cipher/:code", s.handleShortLink)

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	})
}

// Handler returns the root http.Handler.
func (s *Server) Handler() http.Handler { return s.engine }

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.opts.Address,
		Handler:           s.engine,
		ReadTimeout:       s.opts.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      s.opts.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", logger.Fields{"address": s.opts.Address})
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("listen: %w", err)
	case <-ctx.Done():
	}

	log.Info("shutting down", logger.Fields{"timeout": s.opts.ShutdownTimeout.String()})
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
