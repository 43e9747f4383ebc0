package index

import (
	"context"
	"fmt"
	"sort"

	"pyforge/internal/channel"
	"pyforge/internal/platform"
)

// remoteEntry is the shape of one record in the upstream listing. Any
// source exposing these fields is substitutable; records for platforms we
// do not recognize are skipped rather than rejected.
type remoteEntry struct {
	Kind      string `json:"kind"`
	Version   string `json:"version"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
	URL       string `json:"url"`
	Checksum  string `json:"checksum"`
	Algorithm string `json:"checksum_algorithm"`
}

// Index resolves channel requests against the upstream release listing,
// backed by a per-platform disk cache.
type Index struct {
	client   *Client
	url      string
	cacheDir string

	// listings maps platform strings to newest-first release sets. A
	// refresh replaces a platform's whole slice; entries are never
	// mutated in place.
	listings map[string][]Release
}

// New returns an Index reading from the given source URL and caching
// under cacheDir.
func New(client *Client, url, cacheDir string) *Index {
	return &Index{
		client:   client,
		url:      url,
		cacheDir: cacheDir,
		listings: make(map[string][]Release),
	}
}

// List returns the cached releases for a platform, newest first. An empty
// cache triggers one implicit fetch; after that the cache is served until
// an explicit Fetch.
func (idx *Index) List(ctx context.Context, p platform.Platform) ([]Release, error) {
	if releases, ok := idx.listings[p.String()]; ok {
		return releases, nil
	}

	if releases, ok := idx.loadCached(p); ok {
		idx.listings[p.String()] = releases
		return releases, nil
	}

	if err := idx.Fetch(ctx); err != nil {
		return nil, err
	}
	return idx.listings[p.String()], nil
}

// Fetch refreshes the cache from the upstream source. Always hits the
// network, replacing every platform's cached set for consistency.
func (idx *Index) Fetch(ctx context.Context) error {
	var entries []remoteEntry
	if err := idx.client.GetJSON(ctx, idx.url, &entries); err != nil {
		return err
	}

	listings := make(map[string][]Release)
	for _, entry := range entries {
		release, ok, err := entry.toRelease()
		if err != nil {
			return &RemoteFormatError{URL: idx.url, Err: err}
		}
		if !ok {
			continue
		}
		key := release.Platform.String()
		listings[key] = append(listings[key], release)
	}

	for key := range listings {
		sortNewestFirst(listings[key])
	}

	idx.listings = listings
	for p, releases := range listings {
		if err := idx.saveCached(p, releases); err != nil {
			return fmt.Errorf("persist index cache for %s: %w", p, err)
		}
	}
	return nil
}

// Match resolves a possibly-partial spec against the newest cached
// listing for a platform. Among releases matching the specified
// components, the highest unspecified components win ("latest patch
// matching major.minor"). Fails with ErrNoMatchingRelease when nothing
// qualifies.
func (idx *Index) Match(ctx context.Context, spec channel.Spec, p platform.Platform) (Release, error) {
	releases, err := idx.List(ctx, p)
	if err != nil {
		return Release{}, err
	}

	for _, release := range releases {
		if release.Kind == spec.Kind && spec.Matches(release.Version) {
			return release, nil
		}
	}
	return Release{}, fmt.Errorf("%w: %s-%s on %s", ErrNoMatchingRelease, spec.Kind, spec.String(), p)
}

func (e remoteEntry) toRelease() (Release, bool, error) {
	p, err := platform.Parse(e.OS + "-" + e.Arch)
	if err != nil {
		// Platforms this build does not know about are fine to skip;
		// the source serves more than one consumer.
		return Release{}, false, nil
	}

	version, err := channel.ParseVersion(e.Version)
	if err != nil {
		return Release{}, false, fmt.Errorf("entry version %q: %w", e.Version, err)
	}
	if e.URL == "" {
		return Release{}, false, fmt.Errorf("entry %s %s missing download url", e.Kind, e.Version)
	}

	algorithm := Algorithm(e.Algorithm)
	switch algorithm {
	case SHA256, BLAKE3:
	case "":
		algorithm = SHA256
	default:
		return Release{}, false, fmt.Errorf("entry %s %s: unknown checksum algorithm %q", e.Kind, e.Version, e.Algorithm)
	}

	kind := e.Kind
	if kind == "" {
		kind = channel.DefaultKind
	}

	return Release{
		Kind:      kind,
		Version:   version,
		Platform:  p,
		URL:       e.URL,
		Checksum:  e.Checksum,
		Algorithm: algorithm,
	}, true, nil
}

func sortNewestFirst(releases []Release) {
	sort.SliceStable(releases, func(i, j int) bool {
		return releases[i].Version.Compare(releases[j].Version) > 0
	})
}
