package resolver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ytget/twitvid/client"
	"github.com/ytget/twitvid/errs"
	"github.com/ytget/twitvid/internal/cache"
	"github.com/ytget/twitvid/internal/logger"
	"github.com/ytget/twitvid/internal/metrics"
	"github.com/ytget/twitvid/twitter/links"
	"github.com/ytget/twitvid/twitter/script"
	"github.com/ytget/twitvid/types"
)

var log = logger.WithComponent(logger.ComponentResolver)

// Options configures a Resolver. Zero values select the sparky provider with
// its default endpoint and no cache.
type Options struct {
	Provider string
	Endpoint string
	// Mapper is required for the script provider.
	Mapper   script.Mapper
	Cache    cache.Cache
	CacheTTL time.Duration
	Metrics  *metrics.Metrics
}

// Resolver calls a downloader API for post URLs.
type Resolver struct {
	http     *client.Client
	provider string
	endpoint string
	parse    parseFunc
	cache    cache.Cache
	cacheTTL time.Duration
	metrics  *metrics.Metrics
	now      func() time.Time
}

// New creates a Resolver. A nil httpClient uses client.New().
func New(httpClient *client.Client, opts Options) (*Resolver, error) {
	if httpClient == nil {
		httpClient = client.New()
	}
	r := &Resolver{
		http:     httpClient,
		provider: opts.Provider,
		endpoint: opts.Endpoint,
		cache:    opts.Cache,
		cacheTTL: opts.CacheTTL,
		metrics:  opts.Metrics,
		now:      time.Now,
	}
	if r.provider == "" {
		r.provider = ProviderSparky
	}
	switch r.provider {
	case ProviderSparky:
		r.parse = parseSparky
		if r.endpoint == "" {
			r.endpoint = SparkyEndpoint
		}
	case ProviderCyril:
		r.parse = parseCyril
		if r.endpoint == "" {
			r.endpoint = CyrilEndpoint
		}
	case ProviderScript:
		if opts.Mapper == nil {
			return nil, errors.New("resolver: script provider requires a mapper")
		}
		if r.endpoint == "" {
			return nil, errors.New("resolver: script provider requires an endpoint")
		}
		r.parse = scriptParser(opts.Mapper)
	default:
		return nil, fmt.Errorf("resolver: unknown provider %q", r.provider)
	}
	return r, nil
}

// Provider returns the configured provider name.
func (r *Resolver) Provider() string { return r.provider }

// Resolve validates videoURL and returns its media links.
func (r *Resolver) Resolve(ctx context.Context, videoURL string) (*types.VideoInfo, error) {
	videoURL = strings.TrimSpace(videoURL)
	if err := links.ValidateTweetURL(videoURL); err != nil {
		return nil, err
	}

	key := cache.KeyFromURL(videoURL)
	if r.cache != nil {
		if info, ok := r.cache.Get(key); ok {
			r.countCache("hit")
			log.Debug("cache hit", logger.Fields{"url": videoURL})
			info.SourceURL = videoURL
			return &info, nil
		}
		r.countCache("miss")
	}

	start := r.now()
	info, err := r.fetch(ctx, videoURL)
	elapsed := r.now().Sub(start)
	if r.metrics != nil {
		r.metrics.ResolveDuration.WithLabelValues(r.provider).Observe(elapsed.Seconds())
		r.metrics.Resolves.WithLabelValues(r.provider, resultLabel(err)).Inc()
	}
	if err != nil {
		log.Warn("resolve failed", logger.Fields{"url": videoURL, "provider": r.provider, "error": err})
		return nil, err
	}

	info.SourceURL = videoURL
	info.Provider = r.provider
	info.ResolvedAt = r.now().UTC()
	if r.cache != nil {
		r.cache.Set(key, *info, r.cacheTTL)
	}
	log.Info("resolved video", logger.Fields{
		"url":      videoURL,
		"provider": r.provider,
		"hd":       info.Links.HD != "",
		"sd":       info.Links.SD != "",
		"audio":    info.Links.Audio != "",
		"elapsed":  elapsed.String(),
	})
	return info, nil
}

func (r *Resolver) fetch(ctx context.Context, videoURL string) (*types.VideoInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.endpoint+url.QueryEscape(videoURL), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", errs.ErrProviderFailed, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Accept-Encoding", acceptEncoding)

	resp, err := r.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", errs.ErrProviderFailed, err)
	}
	defer resp.Body.Close()

	body, err := readBody(resp.Body, resp.Header.Get("Content-Encoding"))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrProviderFailed, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := errorMessage(body, resp.StatusCode)
		if resp.StatusCode == http.StatusTooManyRequests {
			return nil, fmt.Errorf("%w: %s", errs.ErrRateLimited, msg)
		}
		return nil, fmt.Errorf("%w: %s", errs.ErrProviderFailed, msg)
	}
	return r.parse(ctx, body)
}

func (r *Resolver) countCache(result string) {
	if r.metrics != nil {
		r.metrics.CacheLookups.WithLabelValues(result).Inc()
	}
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, errs.ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, errs.ErrVideoNotFound), errors.Is(err, errs.ErrNoLinks):
		return "not_found"
	default:
		return "error"
	}
}
