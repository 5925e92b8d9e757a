// Package downloader fetches media files with ranged HTTP requests. Downloads
// go to <output>.tmp first and are renamed on completion; an existing .tmp is
// resumed. Each chunk is retried with exponential backoff and throughput can
// be capped with a token bucket.
package downloader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/ytget/twitvid/internal/logger"
)

const (
	defaultChunkSizeBytes  = 1 << 20 // 1MB
	defaultMaxRetries      = 3       // chunk retries
	temporaryFileSuffix    = ".tmp"  // suffix for temp download
	initialBackoffDuration = 200 * time.Millisecond
	maxBackoffDuration     = 3 * time.Second
	copyBufferSizeBytes    = 32 * 1024 // 32KB

	headerRange          = "Range"
	headerContentRange   = "Content-Range"
	headerContentLength  = "Content-Length"
	headerUserAgent      = "User-Agent"
	headerAccept         = "Accept"
	headerAcceptLanguage = "Accept-Language"
	headerAcceptEncoding = "Accept-Encoding"
	headerReferer        = "Referer"
	headerOrigin         = "Origin"
	headerCacheControl   = "Cache-Control"

	successMinHTTPStatusCode      = 200
	successMaxHTTPStatusExclusive = 300

	userAgentValue = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/135.0.0.0 Safari/537.36"
	twitterOrigin  = "https://x.com"
)

// ErrEmptyDownload is returned when the server sent no bytes at all.
var ErrEmptyDownload = errors.New("empty download: 0 bytes written")

var log = logger.WithComponent(logger.ComponentDownloader)

// Progress holds information about download progress.
type Progress struct {
	TotalSize      int64
	DownloadedSize int64
	Percent        float64
}

// Downloader is responsible for downloading media files with chunked HTTP
// requests, simple retry/backoff, and optional rate limiting.
type Downloader struct {
	Client       *http.Client
	ProgressFunc func(Progress)

	chunkSize  int64
	maxRetries int
	limiter    *rate.Limiter
	backoff    time.Duration
}

// New creates a new downloader instance with sane defaults.
// If client is nil, a default http.Client is used. rateLimitBps=0 disables limiting.
func New(client *http.Client, progressFunc func(Progress), rateLimitBps int64) *Downloader {
	if client == nil {
		client = &http.Client{}
	}
	d := &Downloader{
		Client:       client,
		ProgressFunc: progressFunc,
		chunkSize:    defaultChunkSizeBytes,
		maxRetries:   defaultMaxRetries,
		backoff:      initialBackoffDuration,
	}
	d.SetRateLimit(rateLimitBps)
	return d
}

// SetRateLimit caps throughput at bps bytes per second; bps <= 0 removes the cap.
func (d *Downloader) SetRateLimit(bps int64) {
	if bps <= 0 {
		d.limiter = nil
		return
	}
	d.limiter = rate.NewLimiter(rate.Limit(bps), copyBufferSizeBytes)
}

// SetChunkSize sets the size of each ranged request; n <= 0 restores the default.
func (d *Downloader) SetChunkSize(n int64) {
	if n <= 0 {
		n = defaultChunkSizeBytes
	}
	d.chunkSize = n
}

// SetRetries sets attempts per chunk; n <= 0 restores the default.
func (d *Downloader) SetRetries(n int) {
	if n <= 0 {
		n = defaultMaxRetries
	}
	d.maxRetries = n
}

func isTwitterMediaHost(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	h := strings.ToLower(u.Hostname())
	return h == "twimg.com" || strings.HasSuffix(h, ".twimg.com")
}

func (d *Downloader) newRequest(ctx context.Context, method, urlStr string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, urlStr, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set(headerUserAgent, userAgentValue)
	req.Header.Set(headerAccept, "*/*")
	req.Header.Set(headerAcceptLanguage, "en-US,en;q=0.9")
	req.Header.Set(headerAcceptEncoding, "identity")
	req.Header.Set(headerCacheControl, "no-cache")
	if isTwitterMediaHost(urlStr) {
		req.Header.Set(headerReferer, twitterOrigin+"/")
		req.Header.Set(headerOrigin, twitterOrigin)
	}
	return req, nil
}

// sizeFromHeaders reads the total size from Content-Range, then Content-Length.
func sizeFromHeaders(h http.Header) (int64, bool) {
	if cr := h.Get(headerContentRange); cr != "" {
		parts := strings.Split(cr, "/")
		if len(parts) == 2 {
			if v, err := strconv.ParseInt(parts[1], 10, 64); err == nil {
				return v, true
			}
		}
	}
	if cl := h.Get(headerContentLength); cl != "" {
		if v, err := strconv.ParseInt(cl, 10, 64); err == nil {
			return v, true
		}
	}
	return 0, false
}

// detectTotalSize tries HEAD first, then GET range 0-1 to infer total size.
func (d *Downloader) detectTotalSize(ctx context.Context, urlStr string) (int64, error) {
	headReq, err := d.newRequest(ctx, http.MethodHead, urlStr)
	if err != nil {
		return 0, err
	}
	if headResp, err := d.Client.Do(headReq); err == nil {
		_ = headResp.Body.Close()
		log.Trace("HEAD response", logger.Fields{"status": headResp.StatusCode})
		if headResp.StatusCode < successMaxHTTPStatusExclusive {
			if v, ok := sizeFromHeaders(headResp.Header); ok {
				return v, nil
			}
		}
	}

	getReq, err := d.newRequest(ctx, http.MethodGet, urlStr)
	if err != nil {
		return 0, err
	}
	getReq.Header.Set(headerRange, "bytes=0-1")
	getResp, err := d.Client.Do(getReq)
	if err != nil {
		return 0, err
	}
	defer func() { _ = getResp.Body.Close() }()
	log.Trace("GET range response", logger.Fields{"status": getResp.StatusCode})

	if getResp.StatusCode == http.StatusPartialContent {
		// Content-Length of a partial response is the range length
		if cr := getResp.Header.Get(headerContentRange); cr != "" {
			if v, ok := sizeFromHeaders(http.Header{headerContentRange: []string{cr}}); ok {
				return v, nil
			}
		}
		return 0, errors.New("cannot determine total size")
	}
	if getResp.StatusCode < successMaxHTTPStatusExclusive {
		if v, ok := sizeFromHeaders(getResp.Header); ok {
			return v, nil
		}
	}
	return 0, errors.New("cannot determine total size")
}

// waitForRate blocks until n bytes may be written.
func (d *Downloader) waitForRate(ctx context.Context, n int) error {
	if d.limiter == nil || n <= 0 {
		return nil
	}
	return d.limiter.WaitN(ctx, n)
}

func (d *Downloader) sleep(ctx context.Context, dur time.Duration) error {
	t := time.NewTimer(dur)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// fetchRange requests bytes [start, end] with retries. end < 0 requests the
// rest of the file.
func (d *Downloader) fetchRange(ctx context.Context, urlStr string, start, end int64) (*http.Response, error) {
	attempts := d.maxRetries
	if attempts < 1 {
		attempts = 1
	}
	backoff := d.backoff
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			if err := d.sleep(ctx, backoff); err != nil {
				return nil, err
			}
			backoff *= 2
			if backoff > maxBackoffDuration {
				backoff = maxBackoffDuration
			}
		}
		req, err := d.newRequest(ctx, http.MethodGet, urlStr)
		if err != nil {
			return nil, err
		}
		if end >= 0 {
			req.Header.Set(headerRange, fmt.Sprintf("bytes=%d-%d", start, end))
		} else if start > 0 {
			req.Header.Set(headerRange, fmt.Sprintf("bytes=%d-", start))
		}

		resp, err := d.Client.Do(req)
		if err == nil && resp.StatusCode >= successMinHTTPStatusCode && resp.StatusCode < successMaxHTTPStatusExclusive {
			return resp, nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
		} else {
			_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
			_ = resp.Body.Close()
			lastErr = fmt.Errorf("HTTP status %d", resp.StatusCode)
			if resp.StatusCode == http.StatusRequestedRangeNotSatisfiable {
				return nil, lastErr
			}
		}
		log.Debug("chunk request failed", logger.Fields{"attempt": attempt + 1, "start": start, "end": end, "error": lastErr})
	}
	return nil, fmt.Errorf("download chunk failed: %w", lastErr)
}

// copyBody writes the body to w, honoring the rate limit and reporting
// progress relative to base and total.
func (d *Downloader) copyBody(ctx context.Context, w io.Writer, body io.Reader, base, total int64) (int64, error) {
	buf := make([]byte, copyBufferSizeBytes)
	var written int64
	for {
		n, rerr := body.Read(buf)
		if n > 0 {
			if err := d.waitForRate(ctx, n); err != nil {
				return written, err
			}
			if _, werr := w.Write(buf[:n]); werr != nil {
				return written, fmt.Errorf("failed to write chunk: %w", werr)
			}
			written += int64(n)
			if d.ProgressFunc != nil {
				p := Progress{TotalSize: total, DownloadedSize: base + written}
				if total > 0 {
					p.Percent = float64(base+written) / float64(total) * 100
				}
				d.ProgressFunc(p)
			}
		}
		if rerr == io.EOF {
			return written, nil
		}
		if rerr != nil {
			return written, fmt.Errorf("failed to read response body: %w", rerr)
		}
	}
}

// Download downloads a file by URL and saves it to outputPath. It supports
// resuming from an existing temporary file and reports progress periodically.
func (d *Downloader) Download(ctx context.Context, urlStr string, outputPath string) error {
	tmpPath := outputPath + temporaryFileSuffix
	outFile, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open temp file: %w", err)
	}
	defer func() { _ = outFile.Close() }()

	info, err := outFile.Stat()
	if err != nil {
		return fmt.Errorf("stat temp file: %w", err)
	}
	downloaded := info.Size()

	totalSize, err := d.detectTotalSize(ctx, urlStr)
	if err != nil {
		log.Debug("total size unknown", logger.Fields{"url": urlStr, "error": err})
		totalSize = 0
	}
	log.Info("download started", logger.Fields{"output": outputPath, "resume_from": downloaded, "total": totalSize})

	if totalSize > 0 && downloaded > totalSize {
		// stale temp file from a different resource
		if err := outFile.Truncate(0); err != nil {
			return fmt.Errorf("truncate temp file: %w", err)
		}
		downloaded = 0
	}

	if totalSize > 0 {
		for downloaded < totalSize {
			end := downloaded + d.chunkSize - 1
			if end >= totalSize {
				end = totalSize - 1
			}
			resp, err := d.fetchRange(ctx, urlStr, downloaded, end)
			if err != nil {
				return err
			}
			if resp.StatusCode != http.StatusPartialContent && downloaded > 0 {
				// server ignored Range and is sending the whole file
				if err := outFile.Truncate(0); err != nil {
					_ = resp.Body.Close()
					return fmt.Errorf("truncate temp file: %w", err)
				}
				downloaded = 0
			}
			n, err := d.copyBody(ctx, outFile, resp.Body, downloaded, totalSize)
			_ = resp.Body.Close()
			downloaded += n
			if err != nil {
				return err
			}
			if n == 0 {
				return fmt.Errorf("download stalled at %d of %d bytes", downloaded, totalSize)
			}
		}
	} else {
		resp, err := d.fetchRange(ctx, urlStr, downloaded, -1)
		if err != nil {
			return err
		}
		if resp.StatusCode != http.StatusPartialContent && downloaded > 0 {
			if err := outFile.Truncate(0); err != nil {
				_ = resp.Body.Close()
				return fmt.Errorf("truncate temp file: %w", err)
			}
			downloaded = 0
		}
		n, err := d.copyBody(ctx, outFile, resp.Body, downloaded, 0)
		_ = resp.Body.Close()
		downloaded += n
		if err != nil {
			return err
		}
	}

	if err := outFile.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if downloaded == 0 {
		_ = os.Remove(tmpPath)
		return ErrEmptyDownload
	}
	if err := os.Rename(tmpPath, outputPath); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}
	log.Info("download finished", logger.Fields{"output": outputPath, "bytes": downloaded})
	return nil
}

// Stream copies the resource at urlStr to w without touching the filesystem.
// onHeader, when set, sees the upstream headers before the first byte is
// written. It returns the number of bytes written.
func (d *Downloader) Stream(ctx context.Context, urlStr string, w io.Writer, onHeader func(http.Header)) (int64, error) {
	resp, err := d.fetchRange(ctx, urlStr, 0, -1)
	if err != nil {
		return 0, err
	}
	defer func() { _ = resp.Body.Close() }()
	if onHeader != nil {
		onHeader(resp.Header)
	}
	total, _ := sizeFromHeaders(resp.Header)
	return d.copyBody(ctx, w, resp.Body, 0, total)
}
