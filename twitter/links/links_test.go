package links

import (
	"errors"
	"testing"
	"time"

	"github.com/ytget/twitvid/errs"
	"github.com/ytget/twitvid/types"
)

func TestValidateTweetURL(t *testing.T) {
	valid := []string{
		"https://twitter.com/user/status/1234567890",
		"https://x.com/user/status/1234567890?s=20",
		"https://www.x.com/user/status/1",
		"https://mobile.twitter.com/user/status/1/video/1",
		"  https://X.com/user/status/1  ",
	}
	for _, u := range valid {
		if err := ValidateTweetURL(u); err != nil {
			t.Errorf("%q should be valid: %v", u, err)
		}
	}

	invalid := []string{
		"",
		"not a url",
		"ftp://twitter.com/user/status/1",
		"https://youtube.com/watch?v=1",
		"https://twitter.com/user",
		"https://evil-x.com/user/status/1",
		"https://x.com.evil.io/user/status/1",
	}
	for _, u := range invalid {
		err := ValidateTweetURL(u)
		if !errors.Is(err, errs.ErrInvalidURL) {
			t.Errorf("%q: expected ErrInvalidURL, got %v", u, err)
		}
	}
}

func TestParseQuality(t *testing.T) {
	cases := map[string]types.Quality{
		"":      types.QualityBest,
		"best":  types.QualityBest,
		"hd":    types.QualityHD,
		" SD ":  types.QualitySD,
		"Audio": types.QualityAudio,
	}
	for in, want := range cases {
		got, err := ParseQuality(in)
		if err != nil || got != want {
			t.Errorf("ParseQuality(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	if _, err := ParseQuality("4k"); !errors.Is(err, errs.ErrQualityUnavailable) {
		t.Errorf("expected ErrQualityUnavailable, got %v", err)
	}
}

func TestSelect(t *testing.T) {
	full := types.MediaLinks{HD: "hd", SD: "sd", Audio: "audio"}
	sdOnly := types.MediaLinks{SD: "sd"}
	audioOnly := types.MediaLinks{Audio: "audio"}

	cases := []struct {
		name   string
		links  types.MediaLinks
		q      types.Quality
		url    string
		chosen types.Quality
		err    error
	}{
		{"best picks hd", full, types.QualityBest, "hd", types.QualityHD, nil},
		{"empty quality is best", full, "", "hd", types.QualityHD, nil},
		{"best falls back to sd", sdOnly, types.QualityBest, "sd", types.QualitySD, nil},
		{"best falls back to audio", audioOnly, types.QualityBest, "audio", types.QualityAudio, nil},
		{"explicit sd", full, types.QualitySD, "sd", types.QualitySD, nil},
		{"explicit missing hd", sdOnly, types.QualityHD, "", "", errs.ErrQualityUnavailable},
		{"no links", types.MediaLinks{HD: "  "}, types.QualityBest, "", "", errs.ErrNoLinks},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			u, chosen, err := Select(c.links, c.q)
			if c.err != nil {
				if !errors.Is(err, c.err) {
					t.Fatalf("expected %v, got %v", c.err, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if u != c.url || chosen != c.chosen {
				t.Errorf("got (%q, %q), want (%q, %q)", u, chosen, c.url, c.chosen)
			}
		})
	}
}

func TestFilename(t *testing.T) {
	now := time.UnixMilli(1700000000123)

	if got := Filename(types.QualityHD, "https://video.twimg.com/a/b.mp4?tag=12", now); got != "twitter_video_HD_1700000000123.mp4" {
		t.Errorf("got %q", got)
	}
	if got := Filename(types.QualitySD, "https://cdn.example.com/dl?id=1", now); got != "twitter_video_SD_1700000000123.mp4" {
		t.Errorf("got %q", got)
	}
	if got := Filename(types.QualityAudio, "https://cdn.example.com/dl?id=1", now); got != "twitter_video_AUDIO_1700000000123.m4a" {
		t.Errorf("got %q", got)
	}
	if got := Filename(types.QualityAudio, "https://cdn.example.com/a.mp3", now); got != "twitter_video_AUDIO_1700000000123.mp3" {
		t.Errorf("got %q", got)
	}
}
