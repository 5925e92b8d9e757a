// Package upload turns image uploads into short cipher links and resolves
// those links back to stored images.
package upload

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/ytget/twitvid/errs"
	"github.com/ytget/twitvid/internal/logger"
	"github.com/ytget/twitvid/internal/metrics"
	"github.com/ytget/twitvid/internal/mimeext"
	"github.com/ytget/twitvid/internal/sanitize"
	"github.com/ytget/twitvid/shortcode"
	"github.com/ytget/twitvid/store"
	"github.com/ytget/twitvid/types"
)

var log = logger.WithComponent(logger.ComponentUpload)

const (
	// DefaultMaxFileSize is the upload limit used when Config.MaxFileSize is zero.
	DefaultMaxFileSize = 5 * 1024 * 1024
	// DefaultAttempts bounds short code generation retries.
	DefaultAttempts = 3
	// CipherPath prefixes every full short URL.
	CipherPath = "/s/cipher/"
	// ObjectPrefix is the folder uploads are stored under.
	ObjectPrefix = "public"
	cacheControl = "3600"
)

// Config controls upload validation and link construction.
type Config struct {
	MaxFileSize  int64
	AllowedTypes []string
	Origin       string
	Attempts     int
}

// Metadata is the subset of store.DB the service needs.
type Metadata interface {
	InsertImage(ctx context.Context, rec *types.ImageRecord) error
	ImageByShortCode(ctx context.Context, code string) (*types.ImageRecord, error)
}

// Blobs is the subset of store.FileBlobStore the service needs.
type Blobs interface {
	Put(ctx context.Context, path string, r io.Reader, opts store.PutOptions) (int64, error)
	Open(ctx context.Context, path string) (io.ReadCloser, store.ObjectInfo, error)
	Delete(ctx context.Context, path string) error
}

// File is an incoming upload.
type File struct {
	Name        string
	ContentType string
	Size        int64
	Reader      io.Reader
}

// Result describes a stored upload and its links.
type Result struct {
	ShortCode   string             `json:"short_code"`
	EncodedCode string             `json:"encoded"`
	FullURL     string             `json:"full_url"`
	DisplayURL  string             `json:"display_url"`
	Record      *types.ImageRecord `json:"-"`
}

// Service handles uploads and short link resolution.
type Service struct {
	cfg      Config
	codec    *shortcode.Codec
	db       Metadata
	blobs    Blobs
	metrics  *metrics.Metrics
	newToken func() (string, error)
}

// New creates a Service. Zero config values take the package defaults.
func New(cfg Config, codec *shortcode.Codec, db Metadata, blobs Blobs) (*Service, error) {
	if codec == nil || db == nil || blobs == nil {
		return nil, fmt.Errorf("upload: codec, metadata and blob store are required")
	}
	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = DefaultMaxFileSize
	}
	if len(cfg.AllowedTypes) == 0 {
		cfg.AllowedTypes = mimeext.ImageTypes
	}
	if cfg.Attempts <= 0 {
		cfg.Attempts = DefaultAttempts
	}
	cfg.Origin = strings.TrimRight(cfg.Origin, "/")
	return &Service{
		cfg:      cfg,
		codec:    codec,
		db:       db,
		blobs:    blobs,
		newToken: shortcode.NewToken,
	}, nil
}

// SetMetrics enables instrumentation.
func (s *Service) SetMetrics(m *metrics.Metrics) { s.metrics = m }

// TooLargeMessage is the user-facing message for oversized files.
func (s *Service) TooLargeMessage() string {
	return fmt.Sprintf("File is too large. Max size is %dMB.", s.cfg.MaxFileSize/(1024*1024))
}

// Upload validates f, stores it and returns its short links.
func (s *Service) Upload(ctx context.Context, f File) (*Result, error) {
	res, err := s.upload(ctx, f)
	s.count(err)
	return res, err
}

func (s *Service) upload(ctx context.Context, f File) (*Result, error) {
	if f.Reader == nil {
		return nil, errs.ErrNoFile
	}
	if f.Size > s.cfg.MaxFileSize {
		return nil, fmt.Errorf("%w: %s", errs.ErrFileTooLarge, s.TooLargeMessage())
	}
	declared := mimeext.Base(f.ContentType)
	if declared != "" && !mimeext.Allowed(declared, s.cfg.AllowedTypes) {
		return nil, fmt.Errorf("%w: %s", errs.ErrUnsupportedType, declared)
	}

	data, err := io.ReadAll(io.LimitReader(f.Reader, s.cfg.MaxFileSize+1))
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	if int64(len(data)) > s.cfg.MaxFileSize {
		return nil, fmt.Errorf("%w: %s", errs.ErrFileTooLarge, s.TooLargeMessage())
	}
	if len(data) == 0 {
		return nil, errs.ErrNoFile
	}
	sniffed, _, err := mimeext.Sniff(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("detect type: %w", err)
	}
	if !mimeext.Allowed(sniffed, s.cfg.AllowedTypes) || (declared != "" && declared != sniffed) {
		return nil, fmt.Errorf("%w: %s", errs.ErrUnsupportedType, sniffed)
	}

	name := sanitize.ObjectName(f.Name)
	for attempt := 1; attempt <= s.cfg.Attempts; attempt++ {
		rec, err := s.store(ctx, name, sniffed, data)
		if err == nil {
			return s.result(rec)
		}
		if !errors.Is(err, errs.ErrShortCodeConflict) {
			return nil, err
		}
		if s.metrics != nil {
			s.metrics.CodeConflicts.Inc()
		}
		log.Warn("short code conflict, retrying", logger.Fields{"attempt": attempt})
	}
	return nil, fmt.Errorf("%w: gave up after %d attempts", errs.ErrShortCodeConflict, s.cfg.Attempts)
}

// store writes one blob and its record under a fresh token.
func (s *Service) store(ctx context.Context, name, mime string, data []byte) (*types.ImageRecord, error) {
	token, err := s.newToken()
	if err != nil {
		return nil, fmt.Errorf("generate token: %w", err)
	}
	objectPath := fmt.Sprintf("%s/%s-%s", ObjectPrefix, token, name)
	n, err := s.blobs.Put(ctx, objectPath, bytes.NewReader(data), store.PutOptions{
		ContentType:  mime,
		CacheControl: cacheControl,
	})
	if err != nil {
		if errors.Is(err, store.ErrObjectExists) {
			return nil, fmt.Errorf("%w: %v", errs.ErrShortCodeConflict, err)
		}
		return nil, fmt.Errorf("store blob: %w", err)
	}

	rec := &types.ImageRecord{
		Name:        name,
		ShortCode:   token,
		StoragePath: objectPath,
		FileType:    mime,
		FileSize:    n,
	}
	if err := s.db.InsertImage(ctx, rec); err != nil {
		if derr := s.blobs.Delete(context.WithoutCancel(ctx), objectPath); derr != nil {
			log.Error("cleanup blob failed", logger.Fields{"path": objectPath, "error": derr.Error()})
		}
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.UploadBytes.Add(float64(n))
	}
	log.Info("image uploaded", logger.Fields{"path": objectPath, "size": n, "type": mime})
	return rec, nil
}

func (s *Service) result(rec *types.ImageRecord) (*Result, error) {
	encoded, err := s.codec.Encode(rec.ShortCode)
	if err != nil {
		return nil, fmt.Errorf("encode short code: %w", err)
	}
	return &Result{
		ShortCode:   rec.ShortCode,
		EncodedCode: encoded,
		FullURL:     s.cfg.Origin + CipherPath + encoded,
		DisplayURL:  displayHost(s.cfg.Origin) + "/" + encoded,
		Record:      rec,
	}, nil
}

func displayHost(origin string) string {
	if u, err := url.Parse(origin); err == nil && u.Host != "" {
		return u.Host
	}
	return origin
}

// Resolve maps an encoded code to its image record. Malformed and unknown
// codes both yield errs.ErrLinkNotFound.
func (s *Service) Resolve(ctx context.Context, encoded string) (*types.ImageRecord, error) {
	token, err := s.codec.Decode(encoded)
	if err != nil {
		log.Debug("undecodable short link", logger.Fields{"code": encoded, "error": err.Error()})
		s.lookup(false)
		return nil, errs.ErrLinkNotFound
	}
	rec, err := s.db.ImageByShortCode(ctx, token)
	if err != nil {
		if errors.Is(err, errs.ErrLinkNotFound) {
			s.lookup(false)
			return nil, errs.ErrLinkNotFound
		}
		return nil, err
	}
	s.lookup(true)
	return rec, nil
}

// Open returns the stored bytes of rec.
func (s *Service) Open(ctx context.Context, rec *types.ImageRecord) (io.ReadCloser, store.ObjectInfo, error) {
	rc, info, err := s.blobs.Open(ctx, rec.StoragePath)
	if err != nil {
		if errors.Is(err, store.ErrObjectNotFound) {
			return nil, store.ObjectInfo{}, fmt.Errorf("%w: %v", errs.ErrLinkNotFound, err)
		}
		return nil, store.ObjectInfo{}, err
	}
	if info.ContentType == "" || info.ContentType == "application/octet-stream" {
		info.ContentType = rec.FileType
	}
	return rc, info, nil
}

func (s *Service) lookup(found bool) {
	if s.metrics == nil {
		return
	}
	if found {
		s.metrics.LinkLookups.WithLabelValues("found").Inc()
	} else {
		s.metrics.LinkLookups.WithLabelValues("not_found").Inc()
	}
}

func (s *Service) count(err error) {
	if s.metrics == nil {
		return
	}
	result := "ok"
	switch {
	case err == nil:
	case errors.Is(err, errs.ErrFileTooLarge):
		result = "too_large"
	case errors.Is(err, errs.ErrUnsupportedType):
		result = "unsupported"
	case errors.Is(err, errs.ErrNoFile):
		result = "no_file"
	case errors.Is(err, errs.ErrShortCodeConflict):
		result = "conflict"
	default:
		result = "error"
	}
	s.metrics.Uploads.WithLabelValues(result).Inc()
}
