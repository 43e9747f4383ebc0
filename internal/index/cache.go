package index

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"pyforge/internal/channel"
	"pyforge/internal/platform"
)

// cacheDocument is the on-disk shape of one platform's cached listing.
// Entries carry no TTL; the cache is replaced only by an explicit fetch.
type cacheDocument struct {
	FetchedAt time.Time    `json:"fetched_at"`
	Releases  []cacheEntry `json:"releases"`
}

type cacheEntry struct {
	Kind      string `json:"kind"`
	Version   string `json:"version"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
	URL       string `json:"url"`
	Checksum  string `json:"checksum"`
	Algorithm string `json:"checksum_algorithm"`
}

func (idx *Index) cachePath(platformKey string) string {
	return filepath.Join(idx.cacheDir, "index-"+platformKey+".json")
}

// loadCached reads a platform's persisted listing. Any unreadable or
// undecodable cache file reads as a miss; the cache is disposable state.
func (idx *Index) loadCached(p platform.Platform) ([]Release, bool) {
	data, err := os.ReadFile(idx.cachePath(p.String()))
	if err != nil {
		return nil, false
	}

	var doc cacheDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, false
	}

	releases := make([]Release, 0, len(doc.Releases))
	for _, entry := range doc.Releases {
		version, err := channel.ParseVersion(entry.Version)
		if err != nil {
			return nil, false
		}
		entryPlatform, err := platform.Parse(entry.OS + "-" + entry.Arch)
		if err != nil {
			return nil, false
		}
		releases = append(releases, Release{
			Kind:      entry.Kind,
			Version:   version,
			Platform:  entryPlatform,
			URL:       entry.URL,
			Checksum:  entry.Checksum,
			Algorithm: Algorithm(entry.Algorithm),
		})
	}
	sortNewestFirst(releases)
	return releases, true
}

// saveCached atomically replaces a platform's persisted listing.
func (idx *Index) saveCached(platformKey string, releases []Release) error {
	doc := cacheDocument{FetchedAt: time.Now().UTC()}
	for _, release := range releases {
		doc.Releases = append(doc.Releases, cacheEntry{
			Kind:      release.Kind,
			Version:   release.Version.String(),
			OS:        string(release.Platform.OS),
			Arch:      string(release.Platform.Arch),
			URL:       release.URL,
			Checksum:  release.Checksum,
			Algorithm: string(release.Algorithm),
		})
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode cache: %w", err)
	}

	if err := os.MkdirAll(idx.cacheDir, 0o755); err != nil {
		return fmt.Errorf("prepare cache dir: %w", err)
	}

	path := idx.cachePath(platformKey)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write temp cache: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace cache: %w", err)
	}
	return nil
}
