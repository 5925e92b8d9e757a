package client

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func noSleep(context.Context, time.Duration) error { return nil }

func TestNewDefaults(t *testing.T) {
	c := New()
	if c.HTTPClient == nil || c.HTTPClient.Timeout != defaultTimeout {
		t.Fatalf("unexpected http client: %+v", c.HTTPClient)
	}
	if c.Retries != defaultRetries || c.UserAgent != userAgentValue {
		t.Fatalf("retries=%d ua=%q", c.Retries, c.UserAgent)
	}
}

func TestNewWith(t *testing.T) {
	cases := []struct {
		name    string
		cfg     Config
		timeout time.Duration
		retries int
		ua      string
	}{
		{"custom", Config{Timeout: 10 * time.Second, Retries: 5, UserAgent: "twitvid-test", ProxyURL: "http://proxy.example.com:8080"}, 10 * time.Second, 5, "twitvid-test"},
		{"zero", Config{}, defaultTimeout, defaultRetries, userAgentValue},
		{"negative", Config{Timeout: -time.Second, Retries: -1}, defaultTimeout, defaultRetries, userAgentValue},
		// a bad proxy is logged and ignored
		{"invalid proxy", Config{ProxyURL: "invalid-proxy-url"}, defaultTimeout, defaultRetries, userAgentValue},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := NewWith(tc.cfg)
			if c.HTTPClient == nil {
				t.Fatal("HTTPClient not initialised")
			}
			if c.HTTPClient.Timeout != tc.timeout {
				t.Errorf("timeout = %v, want %v", c.HTTPClient.Timeout, tc.timeout)
			}
			if c.Retries != tc.retries {
				t.Errorf("retries = %d, want %d", c.Retries, tc.retries)
			}
			if c.UserAgent != tc.ua {
				t.Errorf("user agent = %q, want %q", c.UserAgent, tc.ua)
			}
		})
	}
}

func TestGetSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("test response"))
	}))
	defer server.Close()

	client := New()
	resp, err := client.Get(context.Background(), server.URL)

	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if resp == nil {
		t.Fatal("Expected response to be non-nil")
	}

	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status code %d, got %d", http.StatusOK, resp.StatusCode)
	}

	_ = resp.Body.Close()
}

func TestGetWithCustomUserAgent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userAgent := r.Header.Get("User-Agent")
		if userAgent != userAgentValue {
			t.Errorf("Expected User-Agent '%s', got '%s'", userAgentValue, userAgent)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := New()
	resp, err := client.Get(context.Background(), server.URL)

	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	_ = resp.Body.Close()
}

func TestGetWithEmptyUserAgent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userAgent := r.Header.Get("User-Agent")
		if userAgent != userAgentValue {
			t.Errorf("Expected User-Agent '%s', got '%s'", userAgentValue, userAgent)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := &Client{
		HTTPClient: &http.Client{Timeout: 5 * time.Second},
		Retries:    1,
		UserAgent:  "", // Empty user agent
	}

	resp, err := client.Get(context.Background(), server.URL)

	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	_ = resp.Body.Close()
}

func TestGetWithZeroRetries(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := &Client{
		HTTPClient: &http.Client{Timeout: 5 * time.Second},
		Retries:    0, // Zero retries
		UserAgent:  userAgentValue,
	}

	resp, err := client.Get(context.Background(), server.URL)

	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	_ = resp.Body.Close()
}

func TestGetWithNegativeRetries(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := &Client{
		HTTPClient: &http.Client{Timeout: 5 * time.Second},
		Retries:    -1, // Negative retries
		UserAgent:  userAgentValue,
	}

	resp, err := client.Get(context.Background(), server.URL)

	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	_ = resp.Body.Close()
}

func TestProxyFromURLString(t *testing.T) {
	proxyURL := "http://proxy.example.com:8080"
	proxyFunc, err := proxyFromURLString(proxyURL)

	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if proxyFunc == nil {
		t.Fatal("Expected proxy function to be non-nil")
	}
}

func TestProxyFromURLStringInvalid(t *testing.T) {
	proxyURL := "://invalid-url"
	_, err := proxyFromURLString(proxyURL)

	if err == nil {
		t.Fatal("Expected error for invalid proxy URL")
	}
}

func TestGetRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer server.Close()

	client := NewWith(Config{Retries: 3})
	client.sleep = noSleep

	resp, err := client.Get(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected 200, got %d", resp.StatusCode)
	}
	if calls.Load() != 3 {
		t.Errorf("Expected 3 calls, got %d", calls.Load())
	}
}

func TestGetReturnsLastServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("down"))
	}))
	defer server.Close()

	client := NewWith(Config{Retries: 2})
	client.sleep = noSleep

	resp, err := client.Get(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("Expected 503, got %d", resp.StatusCode)
	}
}

func TestGetDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := NewWith(Config{Retries: 3})
	client.sleep = noSleep

	resp, err := client.Get(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	resp.Body.Close()
	if calls.Load() != 1 {
		t.Errorf("Expected a single call, got %d", calls.Load())
	}
}

func TestGetHonorsContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	client := NewWith(Config{Retries: 5})
	client.sleep = func(context.Context, time.Duration) error {
		cancel()
		return ctx.Err()
	}

	_, err := client.Get(ctx, server.URL)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected context.Canceled, got %v", err)
	}
}

func TestDoRewindsBody(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		buf := new(strings.Builder)
		_, _ = io.Copy(buf, r.Body)
		if buf.String() != "payload" {
			t.Errorf("attempt %d saw body %q", calls.Load()+1, buf.String())
		}
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewWith(Config{Retries: 2})
	client.sleep = noSleep

	req, _ := http.NewRequest(http.MethodPost, server.URL, strings.NewReader("payload"))
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	resp.Body.Close()
	if calls.Load() != 2 {
		t.Errorf("Expected 2 calls, got %d", calls.Load())
	}
}

func TestDoKeepsExplicitUserAgent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("User-Agent"); got != "twitvid-test" {
			t.Errorf("User-Agent = %q", got)
		}
	}))
	defer server.Close()

	req, _ := http.NewRequest(http.MethodGet, server.URL, nil)
	req.Header.Set("User-Agent", "twitvid-test")
	resp, err := New().Do(req)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	resp.Body.Close()
}
