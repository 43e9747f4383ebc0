package toolchain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"
	"strings"

	"github.com/zeebo/blake3"

	"pyforge/internal/index"
)

// ChecksumMismatchError reports that downloaded bytes do not match the
// digest the release index declared. Fatal: integrity failures surface to
// the user rather than auto-retrying and masking a corrupted or
// compromised download.
type ChecksumMismatchError struct {
	URL       string
	Algorithm index.Algorithm
	Expected  string
	Actual    string
}

func (e *ChecksumMismatchError) Error() string {
	return fmt.Sprintf("checksum mismatch for %s: %s expected %s, got %s",
		e.URL, e.Algorithm, e.Expected, e.Actual)
}

func newHasher(algorithm index.Algorithm) (hash.Hash, error) {
	switch algorithm {
	case index.SHA256:
		return sha256.New(), nil
	case index.BLAKE3:
		return blake3.New(), nil
	default:
		return nil, fmt.Errorf("unsupported checksum algorithm %q", algorithm)
	}
}

// verifyChecksum hashes the file at path with the release's declared
// algorithm and compares against the expected hex digest.
func verifyChecksum(path string, release index.Release) error {
	h, err := newHasher(release.Algorithm)
	if err != nil {
		return err
	}

	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open for checksum: %w", err)
	}
	defer file.Close()

	if _, err := io.Copy(h, file); err != nil {
		return fmt.Errorf("hash file: %w", err)
	}

	actual := hex.EncodeToString(h.Sum(nil))
	if !strings.EqualFold(actual, release.Checksum) {
		return &ChecksumMismatchError{
			URL:       release.URL,
			Algorithm: release.Algorithm,
			Expected:  strings.ToLower(release.Checksum),
			Actual:    actual,
		}
	}
	return nil
}
