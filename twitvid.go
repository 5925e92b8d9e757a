package twitvid

import (
	"context"
	"fmt"
	"net/http"
	"net/http/pprof"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/ytget/twitvid/client"
	"github.com/ytget/twitvid/downloader"
	"github.com/ytget/twitvid/internal/cache"
	"github.com/ytget/twitvid/internal/logger"
	"github.com/ytget/twitvid/internal/mimeext"
	"github.com/ytget/twitvid/internal/sanitize"
	"github.com/ytget/twitvid/twitter/links"
	"github.com/ytget/twitvid/twitter/resolver"
	"github.com/ytget/twitvid/twitter/script"
	"github.com/ytget/twitvid/types"
)

var log = logger.WithComponent(logger.ComponentApp)

// Options contains configuration for resolve and download invocations.
//
// Use chainable setters on Downloader to populate these options.
type Options struct {
	HTTPClient   *http.Client
	Provider     string
	Endpoint     string
	ScriptEngine string
	ScriptPath   string
	Quality      types.Quality
	OutputPath   string
	NameFromText bool
	ProgressFunc func(Progress)
	RateLimitBps int64
	Cache        cache.Cache
	CacheTTL     time.Duration
}

// Progress describes current progress of an ongoing download.
type Progress struct {
	TotalSize      int64
	DownloadedSize int64
	Percent        float64
}

// DownloadResult describes a finished download.
type DownloadResult struct {
	Video    *types.VideoInfo
	Quality  types.Quality
	MediaURL string
	Path     string
}

// Downloader resolves post URLs and downloads their media.
type Downloader struct {
	options Options
	now     func() time.Time
}

var pprofOnce sync.Once

// startPprofServer starts a pprof server for debugging
func startPprofServer() {
	pprofOnce.Do(func() {
		go func() {
			mux := http.NewServeMux()
			mux.HandleFunc("/debug/pprof/", pprof.Index)
			mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
			mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
			mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
			mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

			log.Info("starting pprof server", logger.Fields{"address": ":6060"})
			if err := http.ListenAndServe(":6060", mux); err != nil {
				log.Error("pprof server error", logger.Fields{"error": err.Error()})
			}
		}()
	})
}

// New creates a new Downloader with default options: the sparky provider,
// best quality and the current directory as output.
func New() *Downloader {
	if os.Getenv("TWITVID_PPROF") == "1" {
		startPprofServer()
	}
	return &Downloader{options: Options{Quality: types.QualityBest}, now: time.Now}
}

// WithHTTPClient sets a custom HTTP client to be used for all network calls.
func (d *Downloader) WithHTTPClient(c *http.Client) *Downloader {
	d.options.HTTPClient = c
	return d
}

// WithProvider selects the resolver API: "sparky", "cyril" or "script".
func (d *Downloader) WithProvider(name string) *Downloader {
	d.options.Provider = strings.ToLower(strings.TrimSpace(name))
	return d
}

// WithEndpoint overrides the provider endpoint.
func (d *Downloader) WithEndpoint(endpoint string) *Downloader {
	d.options.Endpoint = strings.TrimSpace(endpoint)
	return d
}

// WithScript maps provider responses with a JavaScript file run by engine
// ("goja" or "otto"). It implies the script provider.
func (d *Downloader) WithScript(engine, path string) *Downloader {
	d.options.ScriptEngine = engine
	d.options.ScriptPath = path
	d.options.Provider = resolver.ProviderScript
	return d
}

// WithQuality sets the requested variant. Empty means best.
func (d *Downloader) WithQuality(q types.Quality) *Downloader {
	if q == "" {
		q = types.QualityBest
	}
	d.options.Quality = q
	return d
}

// WithOutputPath sets the output file path. If empty, a filename is derived
// in the current directory. If a directory path is provided, the derived
// filename is placed inside that directory.
func (d *Downloader) WithOutputPath(path string) *Downloader {
	d.options.OutputPath = path
	return d
}

// WithNameFromText derives filenames from the post text instead of
// twitter_video_<quality>_<millis>.
func (d *Downloader) WithNameFromText(enabled bool) *Downloader {
	d.options.NameFromText = enabled
	return d
}

// WithProgress registers a callback that receives progress updates.
func (d *Downloader) WithProgress(f func(Progress)) *Downloader {
	d.options.ProgressFunc = f
	return d
}

// WithRateLimit sets a download rate limit in bytes per second. Zero disables limiting.
func (d *Downloader) WithRateLimit(bytesPerSecond int64) *Downloader {
	if bytesPerSecond < 0 {
		bytesPerSecond = 0
	}
	d.options.RateLimitBps = bytesPerSecond
	return d
}

// WithCache memoises resolver answers in c for ttl (zero uses the cache default).
func (d *Downloader) WithCache(c cache.Cache, ttl time.Duration) *Downloader {
	d.options.Cache = c
	d.options.CacheTTL = ttl
	return d
}

func (d *Downloader) newResolver() (*resolver.Resolver, error) {
	httpClient := client.New()
	if d.options.HTTPClient != nil {
		httpClient.HTTPClient = d.options.HTTPClient
	}
	opts := resolver.Options{
		Provider: d.options.Provider,
		Endpoint: d.options.Endpoint,
		Cache:    d.options.Cache,
		CacheTTL: d.options.CacheTTL,
	}
	if opts.Provider == resolver.ProviderScript {
		m, err := script.New(d.options.ScriptEngine, d.options.ScriptPath)
		if err != nil {
			return nil, err
		}
		opts.Mapper = m
	}
	return resolver.New(httpClient, opts)
}

// Resolve returns the metadata and media links of the post at videoURL.
func (d *Downloader) Resolve(ctx context.Context, videoURL string) (*types.VideoInfo, error) {
	r, err := d.newResolver()
	if err != nil {
		return nil, err
	}
	return r.Resolve(ctx, videoURL)
}

// Download resolves videoURL, picks the requested quality and downloads it to disk.
func (d *Downloader) Download(ctx context.Context, videoURL string) (*DownloadResult, error) {
	log.Info("starting download", logger.Fields{"url": videoURL, "quality": string(d.options.Quality)})

	info, err := d.Resolve(ctx, videoURL)
	if err != nil {
		return nil, err
	}
	mediaURL, chosen, err := links.Select(info.Links, d.options.Quality)
	if err != nil {
		return nil, err
	}

	outputPath := d.outputPath(info, chosen, mediaURL)
	dl := downloader.New(d.options.HTTPClient, func(p downloader.Progress) {
		if d.options.ProgressFunc != nil {
			d.options.ProgressFunc(Progress{TotalSize: p.TotalSize, DownloadedSize: p.DownloadedSize, Percent: p.Percent})
		}
	}, d.options.RateLimitBps)
	if err := dl.Download(ctx, mediaURL, outputPath); err != nil {
		return nil, fmt.Errorf("download failed: %w", err)
	}

	return &DownloadResult{Video: info, Quality: chosen, MediaURL: mediaURL, Path: outputPath}, nil
}

func (d *Downloader) outputPath(info *types.VideoInfo, chosen types.Quality, mediaURL string) string {
	name := links.Filename(chosen, mediaURL, d.now())
	if d.options.NameFromText && strings.TrimSpace(info.Description) != "" {
		ext := strings.TrimPrefix(filepath.Ext(name), ".")
		if ext == "" {
			ext = mimeext.DefaultExt
		}
		name = sanitize.ToSafeFilename(info.Description, ext)
	}

	out := d.options.OutputPath
	if out == "" {
		return name
	}
	if fi, statErr := os.Stat(out); statErr == nil && fi.IsDir() {
		return filepath.Join(out, name)
	}
	return out
}
