// Package links validates post URLs and picks the media link to download.
package links

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/ytget/twitvid/errs"
	"github.com/ytget/twitvid/internal/mimeext"
	"github.com/ytget/twitvid/types"
)

var tweetHosts = map[string]bool{
	"twitter.com":        true,
	"www.twitter.com":    true,
	"mobile.twitter.com": true,
	"x.com":              true,
	"www.x.com":          true,
}

// ValidateTweetURL accepts absolute http(s) URLs on a Twitter/X host whose
// path contains /status/.
func ValidateTweetURL(raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fmt.Errorf("%w: empty url", errs.ErrInvalidURL)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %v", errs.ErrInvalidURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: unsupported scheme %q", errs.ErrInvalidURL, u.Scheme)
	}
	if !tweetHosts[strings.ToLower(u.Hostname())] {
		return fmt.Errorf("%w: unsupported host %q", errs.ErrInvalidURL, u.Hostname())
	}
	if !strings.Contains(u.Path, "/status/") {
		return fmt.Errorf("%w: not a status url", errs.ErrInvalidURL)
	}
	return nil
}

// ParseQuality parses a user-supplied quality. Empty means best.
func ParseQuality(s string) (types.Quality, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "BEST":
		return types.QualityBest, nil
	case "HD":
		return types.QualityHD, nil
	case "SD":
		return types.QualitySD, nil
	case "AUDIO":
		return types.QualityAudio, nil
	default:
		return "", fmt.Errorf("%w: unknown quality %q", errs.ErrQualityUnavailable, s)
	}
}

var bestOrder = []types.Quality{types.QualityHD, types.QualitySD, types.QualityAudio}

// Select returns the media URL for q and the quality actually chosen.
// QualityBest falls back from HD to SD to audio.
func Select(l types.MediaLinks, q types.Quality) (string, types.Quality, error) {
	if l.Empty() {
		return "", "", errs.ErrNoLinks
	}
	if q == "" || q == types.QualityBest {
		for _, cand := range bestOrder {
			if u := l.Get(cand); u != "" {
				return u, cand, nil
			}
		}
		return "", "", errs.ErrNoLinks
	}
	u := l.Get(q)
	if u == "" {
		return "", "", fmt.Errorf("%w: %s", errs.ErrQualityUnavailable, q)
	}
	return u, q, nil
}

// Filename returns twitter_video_<quality>_<unix millis>.<ext>. The
// extension comes from the media URL path when it names a known media type.
func Filename(chosen types.Quality, mediaURL string, now time.Time) string {
	fallback := mimeext.ExtFromMime(mimeext.MimeVideoMP4)
	if chosen == types.QualityAudio {
		fallback = mimeext.ExtFromMime(mimeext.MimeAudioMP4)
	}
	ext := mimeext.ExtFromPath(mediaURL, fallback)
	return fmt.Sprintf("twitter_video_%s_%d.%s", chosen, now.UnixMilli(), ext)
}
