package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/ytget/twitvid/internal/logger"
)

var (
	// ErrObjectExists is returned by Put when the object exists and Upsert is false.
	ErrObjectExists = errors.New("object already exists")
	// ErrObjectNotFound is returned by Open for missing objects.
	ErrObjectNotFound = errors.New("object not found")
	// ErrInvalidObjectPath is returned for paths escaping the bucket.
	ErrInvalidObjectPath = errors.New("invalid object path")
)

const metaDir = ".meta"

// PutOptions controls how an object is written.
type PutOptions struct {
	ContentType  string
	CacheControl string
	Upsert       bool
}

// ObjectInfo describes a stored object.
type ObjectInfo struct {
	Path         string    `json:"path"`
	Size         int64     `json:"size"`
	ContentType  string    `json:"content_type"`
	CacheControl string    `json:"cache_control,omitempty"`
	ModTime      time.Time `json:"mod_time"`
}

// FileBlobStore stores objects as files below root/bucket.
type FileBlobStore struct {
	root   string
	bucket string
}

// NewFileBlobStore creates the bucket directory if needed.
func NewFileBlobStore(root, bucket string) (*FileBlobStore, error) {
	if root == "" {
		return nil, fmt.Errorf("blob store: empty root")
	}
	if bucket == "" || strings.ContainsAny(bucket, `/\`) || bucket == "." || bucket == ".." || bucket == metaDir {
		return nil, fmt.Errorf("blob store: invalid bucket %q", bucket)
	}
	for _, dir := range []string{filepath.Join(root, bucket), filepath.Join(root, metaDir, bucket)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("blob store: %w", err)
		}
	}
	return &FileBlobStore{root: root, bucket: bucket}, nil
}

// Bucket returns the bucket name.
func (s *FileBlobStore) Bucket() string { return s.bucket }

func cleanObjectPath(p string) (string, error) {
	if p == "" || strings.Contains(p, `\`) || strings.HasPrefix(p, "/") {
		return "", fmt.Errorf("%w: %q", ErrInvalidObjectPath, p)
	}
	c := path.Clean(p)
	if c == "." || c == ".." || strings.HasPrefix(c, "../") {
		return "", fmt.Errorf("%w: %q", ErrInvalidObjectPath, p)
	}
	return c, nil
}

func (s *FileBlobStore) paths(p string) (data, meta string, err error) {
	c, err := cleanObjectPath(p)
	if err != nil {
		return "", "", err
	}
	data = filepath.Join(s.root, s.bucket, filepath.FromSlash(c))
	meta = filepath.Join(s.root, metaDir, s.bucket, filepath.FromSlash(c)) + ".json"
	return data, meta, nil
}

// Put writes r to the object at p and returns the number of bytes stored.
func (s *FileBlobStore) Put(ctx context.Context, p string, r io.Reader, opts PutOptions) (int64, error) {
	data, meta, err := s.paths(p)
	if err != nil {
		return 0, err
	}
	if !opts.Upsert {
		if _, err := os.Stat(data); err == nil {
			return 0, fmt.Errorf("%w: %s", ErrObjectExists, p)
		}
	}
	if err := os.MkdirAll(filepath.Dir(data), 0o755); err != nil {
		return 0, err
	}

	tmp, err := os.CreateTemp(filepath.Dir(data), ".upload-*")
	if err != nil {
		return 0, err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	n, err := io.Copy(tmp, &ctxReader{ctx: ctx, r: r})
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return 0, fmt.Errorf("write object: %w", err)
	}

	if opts.Upsert {
		err = os.Rename(tmpName, data)
	} else {
		// link fails atomically when another writer got there first
		err = os.Link(tmpName, data)
		if errors.Is(err, fs.ErrExist) {
			return 0, fmt.Errorf("%w: %s", ErrObjectExists, p)
		}
	}
	if err != nil {
		return 0, fmt.Errorf("commit object: %w", err)
	}

	info := ObjectInfo{Path: p, Size: n, ContentType: opts.ContentType, CacheControl: opts.CacheControl, ModTime: time.Now().UTC()}
	if err := writeMeta(meta, info); err != nil {
		_ = os.Remove(data)
		return 0, err
	}
	log.Debug("object stored", logger.Fields{"bucket": s.bucket, "path": p, "size": n})
	return n, nil
}

func writeMeta(name string, info ObjectInfo) error {
	if err := os.MkdirAll(filepath.Dir(name), 0o755); err != nil {
		return err
	}
	b, err := json.Marshal(info)
	if err != nil {
		return err
	}
	return os.WriteFile(name, b, 0o644)
}

// Stat returns the metadata of the object at p.
func (s *FileBlobStore) Stat(ctx context.Context, p string) (ObjectInfo, error) {
	data, meta, err := s.paths(p)
	if err != nil {
		return ObjectInfo{}, err
	}
	fi, err := os.Stat(data)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ObjectInfo{}, fmt.Errorf("%w: %s", ErrObjectNotFound, p)
		}
		return ObjectInfo{}, err
	}
	info := ObjectInfo{Path: p}
	if b, err := os.ReadFile(meta); err == nil {
		_ = json.Unmarshal(b, &info)
	}
	info.Size = fi.Size()
	info.ModTime = fi.ModTime().UTC()
	if info.ContentType == "" {
		info.ContentType = "application/octet-stream"
	}
	return info, nil
}

// Open returns a reader for the object at p along with its metadata.
func (s *FileBlobStore) Open(ctx context.Context, p string) (io.ReadCloser, ObjectInfo, error) {
	info, err := s.Stat(ctx, p)
	if err != nil {
		return nil, ObjectInfo{}, err
	}
	data, _, _ := s.paths(p)
	f, err := os.Open(data)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ObjectInfo{}, fmt.Errorf("%w: %s", ErrObjectNotFound, p)
		}
		return nil, ObjectInfo{}, err
	}
	return f, info, nil
}

// Delete removes the object at p. Missing objects are not an error.
func (s *FileBlobStore) Delete(ctx context.Context, p string) error {
	data, meta, err := s.paths(p)
	if err != nil {
		return err
	}
	if err := os.Remove(data); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	if err := os.Remove(meta); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
