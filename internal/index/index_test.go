package index

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"pyforge/internal/channel"
	"pyforge/internal/platform"
)

var testPlatform = platform.Platform{OS: platform.Linux, Arch: platform.X8664}

func testClient() *Client {
	return NewClient(ClientOptions{Timeout: 5 * time.Second, MaxRetries: 3})
}

func listingJSON(versions ...string) []byte {
	var entries []remoteEntry
	for _, v := range versions {
		entries = append(entries, remoteEntry{
			Kind:     "cpython",
			Version:  v,
			OS:       "linux",
			Arch:     "x86_64",
			URL:      "https://example.invalid/cpython-" + v + ".tar.gz",
			Checksum: "deadbeef",
		})
	}
	data, err := json.Marshal(entries)
	if err != nil {
		panic(err)
	}
	return data
}

func serveListing(t *testing.T, body []byte, hits *atomic.Int64) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits != nil {
			hits.Add(1)
		}
		_, _ = w.Write(body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func mustSpec(t *testing.T, token string) channel.Spec {
	t.Helper()
	spec, err := channel.Parse(token)
	if err != nil {
		t.Fatal(err)
	}
	return spec
}

func TestMatchPartialSpecs(t *testing.T) {
	srv := serveListing(t, listingJSON("3.11.4", "3.11.5", "3.12.0"), nil)
	idx := New(testClient(), srv.URL, t.TempDir())
	ctx := context.Background()

	cases := []struct {
		token string
		want  string
	}{
		{"3.11", "3.11.5"},
		{"3", "3.12.0"},
		{"3.11.4", "3.11.4"},
	}
	for _, tc := range cases {
		release, err := idx.Match(ctx, mustSpec(t, tc.token), testPlatform)
		if err != nil {
			t.Fatalf("%s: %v", tc.token, err)
		}
		if got := release.Version.String(); got != tc.want {
			t.Fatalf("%s: matched %s, want %s", tc.token, got, tc.want)
		}
	}

	_, err := idx.Match(ctx, mustSpec(t, "4"), testPlatform)
	if !errors.Is(err, ErrNoMatchingRelease) {
		t.Fatalf("got %v, want ErrNoMatchingRelease", err)
	}
}

func TestListImplicitFetchOnce(t *testing.T) {
	var hits atomic.Int64
	srv := serveListing(t, listingJSON("3.12.0"), &hits)
	idx := New(testClient(), srv.URL, t.TempDir())
	ctx := context.Background()

	releases, err := idx.List(ctx, testPlatform)
	if err != nil {
		t.Fatal(err)
	}
	if len(releases) != 1 {
		t.Fatalf("got %d releases, want 1", len(releases))
	}

	// Second List serves memory; no extra request.
	if _, err := idx.List(ctx, testPlatform); err != nil {
		t.Fatal(err)
	}
	if hits.Load() != 1 {
		t.Fatalf("upstream hit %d times, want 1", hits.Load())
	}
}

func TestListServesDiskCacheWithoutNetwork(t *testing.T) {
	cacheDir := t.TempDir()
	srv := serveListing(t, listingJSON("3.11.5"), nil)
	ctx := context.Background()

	if err := New(testClient(), srv.URL, cacheDir).Fetch(ctx); err != nil {
		t.Fatal(err)
	}
	srv.Close()

	// Fresh Index, dead upstream: the persisted cache must be enough.
	idx := New(testClient(), srv.URL, cacheDir)
	releases, err := idx.List(ctx, testPlatform)
	if err != nil {
		t.Fatal(err)
	}
	if len(releases) != 1 || releases[0].Version.String() != "3.11.5" {
		t.Fatalf("got %v", releases)
	}
}

func TestFetchAlwaysHitsNetwork(t *testing.T) {
	var hits atomic.Int64
	srv := serveListing(t, listingJSON("3.12.0"), &hits)
	idx := New(testClient(), srv.URL, t.TempDir())
	ctx := context.Background()

	if err := idx.Fetch(ctx); err != nil {
		t.Fatal(err)
	}
	if err := idx.Fetch(ctx); err != nil {
		t.Fatal(err)
	}
	if hits.Load() != 2 {
		t.Fatalf("upstream hit %d times, want 2", hits.Load())
	}
}

func TestFetchRetriesServerErrors(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			http.Error(w, "temporary", http.StatusInternalServerError)
			return
		}
		_, _ = w.Write(listingJSON("3.12.0"))
	}))
	t.Cleanup(srv.Close)

	idx := New(testClient(), srv.URL, t.TempDir())
	if err := idx.Fetch(context.Background()); err != nil {
		t.Fatal(err)
	}
	if hits.Load() != 2 {
		t.Fatalf("upstream hit %d times, want 2", hits.Load())
	}
}

func TestFetchFailsFastOnNotFound(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.NotFound(w, r)
	}))
	t.Cleanup(srv.Close)

	idx := New(testClient(), srv.URL, t.TempDir())
	err := idx.Fetch(context.Background())

	var httpErr *HTTPError
	if !errors.As(err, &httpErr) || !httpErr.IsNotFound() {
		t.Fatalf("got %v, want 404 HTTPError", err)
	}
	if hits.Load() != 1 {
		t.Fatalf("upstream hit %d times, want 1 (no retries on 4xx)", hits.Load())
	}
}

func TestFetchMalformedPayload(t *testing.T) {
	srv := serveListing(t, []byte("<html>not json</html>"), nil)
	idx := New(testClient(), srv.URL, t.TempDir())

	err := idx.Fetch(context.Background())
	var formatErr *RemoteFormatError
	if !errors.As(err, &formatErr) {
		t.Fatalf("got %v, want RemoteFormatError", err)
	}
}

func TestFetchSkipsUnknownPlatforms(t *testing.T) {
	entries := []remoteEntry{
		{Kind: "cpython", Version: "3.12.0", OS: "linux", Arch: "x86_64", URL: "https://example.invalid/a.tar.gz", Checksum: "aa"},
		{Kind: "cpython", Version: "3.12.0", OS: "plan9", Arch: "mips", URL: "https://example.invalid/b.tar.gz", Checksum: "bb"},
	}
	body, err := json.Marshal(entries)
	if err != nil {
		t.Fatal(err)
	}
	srv := serveListing(t, body, nil)
	idx := New(testClient(), srv.URL, t.TempDir())

	releases, err := idx.List(context.Background(), testPlatform)
	if err != nil {
		t.Fatal(err)
	}
	if len(releases) != 1 {
		t.Fatalf("got %d releases, want 1", len(releases))
	}
}

func TestFetchRejectsUnknownAlgorithm(t *testing.T) {
	entries := []remoteEntry{
		{Kind: "cpython", Version: "3.12.0", OS: "linux", Arch: "x86_64", URL: "https://example.invalid/a.tar.gz", Checksum: "aa", Algorithm: "md5"},
	}
	body, err := json.Marshal(entries)
	if err != nil {
		t.Fatal(err)
	}
	srv := serveListing(t, body, nil)
	idx := New(testClient(), srv.URL, t.TempDir())

	fetchErr := idx.Fetch(context.Background())
	var formatErr *RemoteFormatError
	if !errors.As(fetchErr, &formatErr) {
		t.Fatalf("got %v, want RemoteFormatError", fetchErr)
	}
}

func TestDownloadStreamsBody(t *testing.T) {
	payload := []byte("toolchain bytes")
	srv := serveListing(t, payload, nil)

	var buf bytes.Buffer
	if err := testClient().Download(context.Background(), srv.URL, &buf); err != nil {
		t.Fatal(err)
	}
	if buf.String() != string(payload) {
		t.Fatalf("got %q, want %q", buf.String(), payload)
	}
}

func TestDownloadRetryDiscardsPartialBody(t *testing.T) {
	payload := []byte("0123456789abcdefghijklmnopqrstuv")

	// First attempt dies mid-body: the declared length exceeds what gets
	// written, so the server drops the connection and the client sees a
	// truncated stream. The retry must not append to the partial bytes.
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.Header().Set("Content-Length", strconv.Itoa(len(payload)))
			_, _ = w.Write(payload[:10])
			return
		}
		_, _ = w.Write(payload)
	}))
	t.Cleanup(srv.Close)

	// Download into a file, as the installer does with its staging file.
	sink, err := os.CreateTemp(t.TempDir(), "download-*.tmp")
	if err != nil {
		t.Fatal(err)
	}
	defer sink.Close()

	if err := testClient().Download(context.Background(), srv.URL, sink); err != nil {
		t.Fatal(err)
	}
	if hits.Load() != 2 {
		t.Fatalf("upstream hit %d times, want 2", hits.Load())
	}

	got, err := os.ReadFile(sink.Name())
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("got %d bytes %q, want %d bytes %q", len(got), got, len(payload), payload)
	}
}

func TestCacheRoundTrip(t *testing.T) {
	cacheDir := t.TempDir()
	idx := New(testClient(), "https://example.invalid/index.json", cacheDir)

	version, err := channel.ParseVersion("3.11.5")
	if err != nil {
		t.Fatal(err)
	}
	in := []Release{{
		Kind:      "cpython",
		Version:   version,
		Platform:  testPlatform,
		URL:       "https://example.invalid/cpython-3.11.5.tar.gz",
		Checksum:  "deadbeef",
		Algorithm: SHA256,
	}}
	if err := idx.saveCached(testPlatform.String(), in); err != nil {
		t.Fatal(err)
	}

	out, ok := New(testClient(), "", cacheDir).loadCached(testPlatform)
	if !ok {
		t.Fatal("cache miss after save")
	}
	if len(out) != 1 || out[0] != in[0] {
		t.Fatalf("got %+v, want %+v", out, in)
	}
}

func TestLoadCachedToleratesGarbage(t *testing.T) {
	cacheDir := t.TempDir()
	idx := New(testClient(), "", cacheDir)

	path := idx.cachePath(testPlatform.String())
	if err := os.WriteFile(path, []byte("{broken"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, ok := idx.loadCached(testPlatform); ok {
		t.Fatal("garbage cache read as hit")
	}
}
