// Package index fetches, caches, and resolves the upstream toolchain
// release listing. The cache never expires on its own; only an explicit
// fetch hits the network, so commands never make surprise network calls.
package index

import (
	"errors"
	"fmt"

	"pyforge/internal/channel"
	"pyforge/internal/platform"
)

// Algorithm identifies the hash used for a release checksum. Dispatch to
// the matching implementation happens at verification time; nothing here
// assumes a single algorithm.
type Algorithm string

const (
	SHA256 Algorithm = "sha256"
	BLAKE3 Algorithm = "blake3"
)

// Release describes one downloadable toolchain build for one platform.
// Immutable once fetched; one Release exists per (version, platform).
type Release struct {
	Kind      string            `json:"kind"`
	Version   channel.Version   `json:"-"`
	Platform  platform.Platform `json:"-"`
	URL       string            `json:"url"`
	Checksum  string            `json:"checksum"`
	Algorithm Algorithm         `json:"checksum_algorithm"`
}

// ErrNoMatchingRelease reports that no cached release satisfies a
// channel request for a platform.
var ErrNoMatchingRelease = errors.New("no matching release")

// NetworkError wraps a transient transport failure. Retryable.
type NetworkError struct {
	URL string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error fetching %s: %v", e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// RemoteFormatError reports a payload the index source produced that we
// could not interpret. Terminal; retrying cannot change the payload.
type RemoteFormatError struct {
	URL string
	Err error
}

func (e *RemoteFormatError) Error() string {
	return fmt.Sprintf("malformed index payload from %s: %v", e.URL, e.Err)
}

func (e *RemoteFormatError) Unwrap() error { return e.Err }

// HTTPError reports a non-success status from the upstream source.
type HTTPError struct {
	StatusCode int
	URL        string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.URL)
}

// IsNotFound reports whether the error represents a 404 response, which
// is never retried since retrying cannot change that outcome.
func (e *HTTPError) IsNotFound() bool { return e.StatusCode == 404 }
