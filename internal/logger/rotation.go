package logger

import (
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// DefaultLogFile is used when a rotating writer is requested without a path.
const DefaultLogFile = "twitvid.log"

const backupTimeFormat = "20060102-150405.000"

// RotatingWriter is an io.WriteCloser that rolls the active file over when it
// exceeds maxSize bytes or is older than maxAge. Rolled files are named
// <base>.<timestamp><ext>[.gz] next to the active file.
type RotatingWriter struct {
	mu sync.Mutex

	filename   string
	maxSize    int64
	maxAge     time.Duration
	maxBackups int
	compress   bool

	file     *os.File
	size     int64
	openedAt time.Time
}

// NewRotatingWriter opens (or creates) filename for appending.
func NewRotatingWriter(filename string, maxSize int64, maxAge time.Duration, maxBackups int, compress bool) (*RotatingWriter, error) {
	if filename == "" {
		filename = DefaultLogFile
	}
	rw := &RotatingWriter{
		filename:   filename,
		maxSize:    maxSize,
		maxAge:     maxAge,
		maxBackups: maxBackups,
		compress:   compress,
	}
	if err := rw.open(); err != nil {
		return nil, err
	}
	return rw, nil
}

func (rw *RotatingWriter) open() error {
	if err := os.MkdirAll(filepath.Dir(rw.filename), 0o755); err != nil {
		return fmt.Errorf("create log directory: %w", err)
	}
	f, err := os.OpenFile(rw.filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("stat log file: %w", err)
	}
	rw.file = f
	rw.size = st.Size()
	rw.openedAt = time.Now()
	return nil
}

// Write implements io.Writer.
func (rw *RotatingWriter) Write(p []byte) (int, error) {
	rw.mu.Lock()
	defer rw.mu.Unlock()

	if rw.file == nil {
		return 0, os.ErrClosed
	}
	if rw.due(int64(len(p))) {
		if err := rw.rotateLocked(); err != nil {
			return 0, err
		}
	}
	n, err := rw.file.Write(p)
	rw.size += int64(n)
	return n, err
}

// Rotate forces a rollover regardless of size and age.
func (rw *RotatingWriter) Rotate() error {
	rw.mu.Lock()
	defer rw.mu.Unlock()
	if rw.file == nil {
		return os.ErrClosed
	}
	return rw.rotateLocked()
}

// Close implements io.Closer.
func (rw *RotatingWriter) Close() error {
	rw.mu.Lock()
	defer rw.mu.Unlock()
	if rw.file == nil {
		return nil
	}
	err := rw.file.Close()
	rw.file = nil
	return err
}

func (rw *RotatingWriter) due(incoming int64) bool {
	if rw.maxSize > 0 && rw.size+incoming > rw.maxSize && rw.size > 0 {
		return true
	}
	return rw.maxAge > 0 && time.Since(rw.openedAt) > rw.maxAge
}

func (rw *RotatingWriter) rotateLocked() error {
	if err := rw.file.Close(); err != nil {
		return fmt.Errorf("close log file: %w", err)
	}
	rw.file = nil

	backup := rw.backupName(time.Now())
	if err := os.Rename(rw.filename, backup); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("rename log file: %w", err)
	}
	if rw.compress {
		if err := gzipFile(backup); err != nil {
			return err
		}
	}
	if err := rw.open(); err != nil {
		return err
	}
	return rw.prune()
}

func (rw *RotatingWriter) backupName(t time.Time) string {
	ext := filepath.Ext(rw.filename)
	base := strings.TrimSuffix(rw.filename, ext)
	return fmt.Sprintf("%s.%s%s", base, t.Format(backupTimeFormat), ext)
}

// backups returns rolled files, newest first.
func (rw *RotatingWriter) backups() ([]string, error) {
	ext := filepath.Ext(rw.filename)
	base := strings.TrimSuffix(filepath.Base(rw.filename), ext)
	dir := filepath.Dir(rw.filename)

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read log directory: %w", err)
	}
	var out []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || name == filepath.Base(rw.filename) {
			continue
		}
		if strings.HasPrefix(name, base+".") {
			out = append(out, filepath.Join(dir, name))
		}
	}
	// the timestamp format sorts lexically
	sort.Sort(sort.Reverse(sort.StringSlice(out)))
	return out, nil
}

func (rw *RotatingWriter) prune() error {
	files, err := rw.backups()
	if err != nil {
		return err
	}
	cutoff := time.Now().Add(-rw.maxAge)
	for i, path := range files {
		remove := rw.maxBackups > 0 && i >= rw.maxBackups
		if !remove && rw.maxAge > 0 {
			if st, err := os.Stat(path); err == nil && st.ModTime().Before(cutoff) {
				remove = true
			}
		}
		if remove {
			if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("remove old log: %w", err)
			}
		}
	}
	return nil
}

func gzipFile(path string) error {
	src, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open backup: %w", err)
	}
	defer src.Close()

	dst, err := os.Create(path + ".gz")
	if err != nil {
		return fmt.Errorf("create gzip backup: %w", err)
	}
	zw := gzip.NewWriter(dst)
	if _, err := io.Copy(zw, src); err != nil {
		zw.Close()
		dst.Close()
		return fmt.Errorf("compress backup: %w", err)
	}
	if err := zw.Close(); err != nil {
		dst.Close()
		return fmt.Errorf("flush gzip backup: %w", err)
	}
	if err := dst.Close(); err != nil {
		return fmt.Errorf("close gzip backup: %w", err)
	}
	src.Close()
	return os.Remove(path)
}
