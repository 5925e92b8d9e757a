package twitvid

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ytget/twitvid/errs"
	"github.com/ytget/twitvid/internal/cache"
	"github.com/ytget/twitvid/types"
)

const tweet = "https://x.com/user/status/1234567890"

func newAPI(t *testing.T, media []byte, apiCalls *int) *httptest.Server {
	t.Helper()
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/api":
			if apiCalls != nil {
				*apiCalls++
			}
			if r.URL.Query().Get("url") != tweet {
				w.Header().Set("Content-Type", "application/json")
				fmt.Fprint(w, `{"status":false,"message":"Video not found"}`)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprintf(w, `{"status":true,"data":{"HD":"","SD":"%s/media/sd.mp4","thumbnail":"%s/thumb.jpg"}}`, srv.URL, srv.URL)
		case strings.HasPrefix(r.URL.Path, "/media/"):
			http.ServeContent(w, r, "sd.mp4", time.Time{}, bytes.NewReader(media))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestResolve(t *testing.T) {
	srv := newAPI(t, nil, nil)
	info, err := New().WithEndpoint(srv.URL + "/api?url=").Resolve(context.Background(), tweet)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if info.Links.SD != srv.URL+"/media/sd.mp4" || info.Links.HD != "" {
		t.Fatalf("unexpected links: %+v", info.Links)
	}
	if info.Provider != "sparky" {
		t.Fatalf("provider = %q", info.Provider)
	}
}

func TestResolveInvalidURL(t *testing.T) {
	_, err := New().Resolve(context.Background(), "https://example.com/watch")
	if !errors.Is(err, errs.ErrInvalidURL) {
		t.Fatalf("want ErrInvalidURL, got %v", err)
	}
}

func TestResolveUnknownProvider(t *testing.T) {
	if _, err := New().WithProvider("nope").Resolve(context.Background(), tweet); err == nil {
		t.Fatal("expected error for unknown provider")
	}
}

func TestDownloadToDirectory(t *testing.T) {
	media := bytes.Repeat([]byte("v"), 4096)
	srv := newAPI(t, media, nil)
	dir := t.TempDir()

	var last Progress
	d := New().WithEndpoint(srv.URL + "/api?url=").WithOutputPath(dir).WithProgress(func(p Progress) { last = p })
	d.now = func() time.Time { return time.UnixMilli(1700000000000) }

	res, err := d.Download(context.Background(), tweet)
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if res.Quality != types.QualitySD {
		t.Fatalf("quality = %q, want SD fallback", res.Quality)
	}
	want := filepath.Join(dir, "twitter_video_SD_1700000000000.mp4")
	if res.Path != want {
		t.Fatalf("path = %q, want %q", res.Path, want)
	}
	got, err := os.ReadFile(want)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, media) {
		t.Fatalf("content mismatch: %d bytes", len(got))
	}
	if last.DownloadedSize != int64(len(media)) {
		t.Fatalf("last progress = %+v", last)
	}
}

func TestDownloadQualityUnavailable(t *testing.T) {
	srv := newAPI(t, nil, nil)
	_, err := New().WithEndpoint(srv.URL + "/api?url=").WithQuality(types.QualityHD).Download(context.Background(), tweet)
	if !errors.Is(err, errs.ErrQualityUnavailable) {
		t.Fatalf("want ErrQualityUnavailable, got %v", err)
	}
}

func TestDownloadNameFromText(t *testing.T) {
	srv := newAPI(t, []byte("data"), nil)
	dir := t.TempDir()
	d := New().WithEndpoint(srv.URL + "/api?url=").WithOutputPath(dir).WithNameFromText(true)
	info := &types.VideoInfo{Description: "funny: cat?"}
	got := d.outputPath(info, types.QualitySD, srv.URL+"/media/sd.mp4")
	if got != filepath.Join(dir, "funny_ cat_.mp4") {
		t.Fatalf("outputPath = %q", got)
	}
}

func TestOutputPathExplicitFile(t *testing.T) {
	d := New().WithOutputPath("/tmp/does-not-exist/out.mp4")
	got := d.outputPath(&types.VideoInfo{}, types.QualityHD, "https://video.twimg.com/a.mp4")
	if got != "/tmp/does-not-exist/out.mp4" {
		t.Fatalf("outputPath = %q", got)
	}
}

func TestResolveUsesCache(t *testing.T) {
	calls := 0
	srv := newAPI(t, nil, &calls)
	c := cache.NewMemoryCache(8)
	d := New().WithEndpoint(srv.URL+"/api?url=").WithCache(c, time.Minute)
	for i := 0; i < 3; i++ {
		if _, err := d.Resolve(context.Background(), tweet); err != nil {
			t.Fatalf("Resolve: %v", err)
		}
	}
	if calls != 1 {
		t.Fatalf("api calls = %d, want 1", calls)
	}
}

func TestWithScriptSelectsProvider(t *testing.T) {
	d := New().WithScript("goja", "/nonexistent/map.js")
	if d.options.Provider != "script" {
		t.Fatalf("provider = %q", d.options.Provider)
	}
	if _, err := d.Resolve(context.Background(), tweet); err == nil {
		t.Fatal("expected error for missing script")
	}
}

func TestWithRateLimitClamps(t *testing.T) {
	if d := New().WithRateLimit(-5); d.options.RateLimitBps != 0 {
		t.Fatalf("rate = %d", d.options.RateLimitBps)
	}
}
