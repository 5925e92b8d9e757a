package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ytget/twitvid/errs"
	"github.com/ytget/twitvid/internal/metrics"
	"github.com/ytget/twitvid/shortcode"
	"github.com/ytget/twitvid/store"
	"github.com/ytget/twitvid/twitter/links"
	"github.com/ytget/twitvid/types"
	"github.com/ytget/twitvid/upload"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeResolver struct {
	mu    sync.Mutex
	calls int
	infos map[string]*types.VideoInfo
	errs  map[string]error
}

func (f *fakeResolver) Resolve(_ context.Context, u string) (*types.VideoInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if err := f.errs[u]; err != nil {
		return nil, err
	}
	if err := links.ValidateTweetURL(u); err != nil {
		return nil, err
	}
	if info, ok := f.infos[u]; ok {
		cp := *info
		cp.SourceURL = u
		return &cp, nil
	}
	return nil, errs.ErrVideoNotFound
}

type fakeStreamer struct {
	body    string
	header  http.Header
	err     error
	lastURL string
}

func (f *fakeStreamer) Stream(_ context.Context, u string, w io.Writer, onHeader func(http.Header)) (int64, error) {
	f.lastURL = u
	if f.err != nil {
		return 0, f.err
	}
	if onHeader != nil {
		onHeader(f.header)
	}
	n, err := io.Copy(w, strings.NewReader(f.body))
	return n, err
}

const (
	tweetA = "https://x.com/user/status/1"
	tweetB = "https://twitter.com/user/status/2"
)

type fixture struct {
	srv      *Server
	resolver *fakeResolver
	streamer *fakeStreamer
	metrics  *metrics.Metrics
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	db, err := store.Open(filepath.Join(dir, "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	blobs, err := store.NewFileBlobStore(filepath.Join(dir, "blobs"), "images")
	require.NoError(t, err)
	codec, err := shortcode.New(shortcode.DefaultKey)
	require.NoError(t, err)
	images, err := upload.New(upload.Config{Origin: "http://localhost:8080"}, codec, db, blobs)
	require.NoError(t, err)

	res := &fakeResolver{
		infos: map[string]*types.VideoInfo{
			tweetA: {Description: "first video", Creator: "@user", Links: types.MediaLinks{HD: "https://video.twimg.com/hd.mp4", SD: "https://video.twimg.com/sd.mp4"}},
			tweetB: {Description: "second video", Links: types.MediaLinks{SD: "https://video.twimg.com/sd2.mp4"}},
		},
		errs: map[string]error{},
	}
	st := &fakeStreamer{body: "media-bytes", header: http.Header{"Content-Type": {"video/mp4"}, "Content-Length": {"11"}}}
	m := metrics.New()
	images.SetMetrics(m)

	srv, err := New(Deps{Resolver: res, Streamer: st, History: db, Images: images, Metrics: m}, Options{BatchLimit: 3, BatchWorkers: 2})
	require.NoError(t, err)
	srv.now = func() time.Time { return time.UnixMilli(1700000000000) }
	return &fixture{srv: srv, resolver: res, streamer: st, metrics: m}
}

func (f *fixture) do(t *testing.T, req *http.Request, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	for _, c := range cookies {
		req.AddCookie(c)
	}
	w := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(w, req)
	return w
}

func jsonBody(t *testing.T, v any) io.Reader {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return bytes.NewReader(b)
}

func userCookie(t *testing.T, w *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range w.Result().Cookies() {
		if c.Name == UserCookie {
			return c
		}
	}
	t.Fatalf("no %s cookie set", UserCookie)
	return nil
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v))
}

func TestHealthz(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
	assert.NotEmpty(t, w.Header().Get(RequestIDHeader))
}

func TestRequestIDPropagated(t *testing.T) {
	f := newFixture(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(RequestIDHeader, "req-123")
	w := f.do(t, req)
	assert.Equal(t, "req-123", w.Header().Get(RequestIDHeader))
}

func TestAnonCookie(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	c := userCookie(t, w)
	assert.True(t, strings.HasPrefix(c.Value, "anon_"))
	assert.Len(t, c.Value, len("anon_")+13)
	assert.True(t, c.HttpOnly)

	// an existing valid cookie is kept
	w = f.do(t, httptest.NewRequest(http.MethodGet, "/healthz", nil), c)
	assert.Empty(t, w.Result().Cookies())
}

func TestResolveAndHistory(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, httptest.NewRequest(http.MethodPost, "/api/videos/resolve", jsonBody(t, resolveRequest{URL: tweetA})))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var info types.VideoInfo
	decode(t, w, &info)
	assert.Equal(t, "first video", info.Description)
	assert.Equal(t, "https://video.twimg.com/hd.mp4", info.Links.HD)
	cookie := userCookie(t, w)

	w = f.do(t, httptest.NewRequest(http.MethodPost, "/api/videos/resolve", jsonBody(t, resolveRequest{URL: tweetB})), cookie)
	require.Equal(t, http.StatusOK, w.Code)

	w = f.do(t, httptest.NewRequest(http.MethodGet, "/api/history", nil), cookie)
	require.Equal(t, http.StatusOK, w.Code)
	var hist struct {
		History []types.HistoryEntry `json:"history"`
	}
	decode(t, w, &hist)
	require.Len(t, hist.History, 2)
	assert.Equal(t, "second video", hist.History[0].Description)
	assert.Equal(t, "first video", hist.History[1].Description)

	// another user sees nothing
	w = f.do(t, httptest.NewRequest(http.MethodGet, "/api/history", nil))
	decode(t, w, &hist)
	assert.Empty(t, hist.History)

	w = f.do(t, httptest.NewRequest(http.MethodDelete, "/api/history", nil), cookie)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"deleted":2}`, w.Body.String())

	w = f.do(t, httptest.NewRequest(http.MethodGet, "/api/history", nil), cookie)
	decode(t, w, &hist)
	assert.Empty(t, hist.History)
}

func TestResolveErrors(t *testing.T) {
	f := newFixture(t)
	f.resolver.errs["https://x.com/user/status/429"] = fmt.Errorf("%w: slow down", errs.ErrRateLimited)
	f.resolver.errs["https://x.com/user/status/502"] = fmt.Errorf("%w: API responded with status: 500", errs.ErrProviderFailed)
	f.resolver.errs["https://x.com/user/status/500"] = errors.New("boom")

	cases := []struct {
		url    string
		status int
	}{
		{"", http.StatusBadRequest},
		{"https://youtube.com/watch?v=1", http.StatusBadRequest},
		{"https://x.com/user/status/404", http.StatusNotFound},
		{"https://x.com/user/status/429", http.StatusTooManyRequests},
		{"https://x.com/user/status/502", http.StatusBadGateway},
		{"https://x.com/user/status/500", http.StatusInternalServerError},
	}
	for _, tc := range cases {
		w := f.do(t, httptest.NewRequest(http.MethodPost, "/api/videos/resolve", jsonBody(t, resolveRequest{URL: tc.url})))
		assert.Equal(t, tc.status, w.Code, tc.url)
		var body map[string]string
		decode(t, w, &body)
		assert.NotEmpty(t, body["error"], tc.url)
	}

	w := f.do(t, httptest.NewRequest(http.MethodPost, "/api/videos/resolve", strings.NewReader("{not json")))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestInternalErrorHidden(t *testing.T) {
	f := newFixture(t)
	f.resolver.errs["https://x.com/user/status/500"] = errors.New("secret database path /var/x")
	w := f.do(t, httptest.NewRequest(http.MethodPost, "/api/videos/resolve", jsonBody(t, resolveRequest{URL: "https://x.com/user/status/500"})))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":"internal server error"}`, w.Body.String())
}

func TestBatch(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, httptest.NewRequest(http.MethodPost, "/api/videos/batch", jsonBody(t, batchRequest{URLs: []string{tweetA, "bad", tweetB}})))
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Results []batchItem `json:"results"`
	}
	decode(t, w, &body)
	require.Len(t, body.Results, 3)
	assert.Equal(t, tweetA, body.Results[0].URL)
	require.NotNil(t, body.Results[0].Video)
	assert.Equal(t, "first video", body.Results[0].Video.Description)
	assert.Nil(t, body.Results[1].Video)
	assert.Contains(t, body.Results[1].Error, "invalid video url")
	require.NotNil(t, body.Results[2].Video)

	w = f.do(t, httptest.NewRequest(http.MethodPost, "/api/videos/batch", jsonBody(t, batchRequest{URLs: []string{tweetA, tweetA, tweetA, tweetA}})))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, httptest.NewRequest(http.MethodPost, "/api/videos/batch", jsonBody(t, batchRequest{})))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDownload(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, httptest.NewRequest(http.MethodGet, "/api/videos/download?url="+tweetA+"&quality=sd", nil))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "media-bytes", w.Body.String())
	assert.Equal(t, "video/mp4", w.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="twitter_video_SD_1700000000000.mp4"`, w.Header().Get("Content-Disposition"))
	assert.Equal(t, "https://video.twimg.com/sd.mp4", f.streamer.lastURL)

	// best falls back from HD
	w = f.do(t, httptest.NewRequest(http.MethodGet, "/api/videos/download?url="+tweetB, nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Disposition"), "twitter_video_SD_")
}

func TestDownloadErrors(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, httptest.NewRequest(http.MethodGet, "/api/videos/download", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, httptest.NewRequest(http.MethodGet, "/api/videos/download?url="+tweetA+"&quality=4k", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, httptest.NewRequest(http.MethodGet, "/api/videos/download?url="+tweetB+"&quality=hd", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	f.streamer.err = errors.New("connection refused")
	w = f.do(t, httptest.NewRequest(http.MethodGet, "/api/videos/download?url="+tweetA, nil))
	assert.Equal(t, http.StatusBadGateway, w.Code)
}

var pngData = append([]byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"), bytes.Repeat([]byte{0}, 64)...)

func multipartRequest(t *testing.T, field, name, contentType string, data []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if field != "" {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, field, name))
		h.Set("Content-Type", contentType)
		part, err := mw.CreatePart(h)
		require.NoError(t, err)
		_, err = part.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	req := httptest.NewRequest(http.MethodPost, "/api/images", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestImageUploadAndShortLink(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, multipartRequest(t, "file", "cat.png", "image/png", pngData))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var res map[string]string
	decode(t, w, &res)
	require.NotEmpty(t, res["encoded"])
	assert.True(t, shortcode.IsToken(res["short_code"]))
	assert.Equal(t, "http://localhost:8080/s/cipher/"+res["encoded"], res["full_url"])
	assert.Equal(t, "localhost:8080/"+res["encoded"], res["display_url"])

	w = f.do(t, httptest.NewRequest(http.MethodGet, "/s/cipher/"+res["encoded"], nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, pngData, w.Body.Bytes())
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	assert.Equal(t, "public, max-age=3600", w.Header().Get("Cache-Control"))

	w = f.do(t, httptest.NewRequest(http.MethodGet, "/api/images/"+res["encoded"], nil))
	require.Equal(t, http.StatusOK, w.Code)
	var meta map[string]any
	decode(t, w, &meta)
	assert.Equal(t, "cat.png", meta["name"])
	assert.Equal(t, "image/png", meta["file_type"])
}

func TestShortLinkNotFound(t *testing.T) {
	f := newFixture(t)
	for _, code := range []string{"qaN2sX7M", "not-valid-base64!!!", "===="} {
		w := f.do(t, httptest.NewRequest(http.MethodGet, "/s/cipher/"+code, nil))
		assert.Equal(t, http.StatusNotFound, w.Code, code)
		assert.JSONEq(t, `{"error":"link not found"}`, w.Body.String(), code)
	}
}

func TestImageUploadErrors(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, multipartRequest(t, "", "", "", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, multipartRequest(t, "file", "doc.pdf", "application/pdf", []byte("%PDF-1.4 hello")))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	big := append(append([]byte{}, pngData...), bytes.Repeat([]byte{1}, 6<<20)...)
	w = f.do(t, multipartRequest(t, "file", "big.png", "image/png", big))
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.JSONEq(t, `{"error":"File is too large. Max size is 5MB."}`, w.Body.String())
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t)
	f.do(t, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	w := f.do(t, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `twitvid_http_requests_total{code="200",method="GET",route="/healthz"} 1`)
}

func TestNoRoute(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestStatusFor(t *testing.T) {
	cases := map[error]int{
		errs.ErrInvalidURL:         http.StatusBadRequest,
		errs.ErrUnsupportedType:    http.StatusBadRequest,
		errs.ErrNoFile:             http.StatusBadRequest,
		errs.ErrQualityUnavailable: http.StatusBadRequest,
		errs.ErrFileTooLarge:       http.StatusRequestEntityTooLarge,
		errs.ErrVideoNotFound:      http.StatusNotFound,
		errs.ErrNoLinks:            http.StatusNotFound,
		errs.ErrLinkNotFound:       http.StatusNotFound,
		errs.ErrRateLimited:        http.StatusTooManyRequests,
		errs.ErrShortCodeConflict:  http.StatusConflict,
		errs.ErrProviderFailed:     http.StatusBadGateway,
		errors.New("other"):        http.StatusInternalServerError,
	}
	for err, want := range cases {
		assert.Equal(t, want, statusFor(fmt.Errorf("wrapped: %w", err)), err.Error())
	}
}

func TestNewRequiresDeps(t *testing.T) {
	_, err := New(Deps{}, Options{})
	assert.Error(t, err)
}

func TestRunShutdown(t *testing.T) {
	f := newFixture(t)
	f.srv.opts.Address = "127.0.0.1:0"
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.srv.Run(ctx) }()
	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
