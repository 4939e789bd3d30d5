package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

const (
	cacheDirName     = ".jolokia"
	metadataFileName = "metadata.json"
	metadataMaxAge   = 24 * time.Hour

	// DefaultMetadataURL is where the agent metadata document is published.
	DefaultMetadataURL = "https://download.jolokia-tools.org/metadata.json"
)

// ErrMetadataUnavailable is returned when neither the local cache nor the
// remote endpoint can provide a metadata document. Operations that need
// metadata (version resolution, signature lookup) become unusable.
var ErrMetadataUnavailable = errors.New("agent metadata unavailable")

// MetadataOrigin says where a loaded metadata document came from.
type MetadataOrigin string

const (
	OriginCache      MetadataOrigin = "cache"
	OriginRemote     MetadataOrigin = "remote"
	OriginStaleCache MetadataOrigin = "stale-cache"
)

// MetadataStore fetches the agent metadata document and caches it on disk.
// The cache is refreshed when it is older than 24 hours or when the caller
// forces a refresh.
type MetadataStore struct {
	cacheDir string
	url      string
	client   *http.Client
}

// DefaultCacheDir returns the per-user cache directory (~/.jolokia).
func DefaultCacheDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}
	return filepath.Join(home, cacheDirName), nil
}

// NewMetadataStore creates a MetadataStore caching under cacheDir and
// fetching from url. A nil client falls back to http.DefaultClient.
func NewMetadataStore(cacheDir, url string, client *http.Client) *MetadataStore {
	if client == nil {
		client = http.DefaultClient
	}
	return &MetadataStore{cacheDir: cacheDir, url: url, client: client}
}

// CachePath returns the full path of the on-disk metadata cache.
func (ms *MetadataStore) CachePath() string {
	return filepath.Join(ms.cacheDir, metadataFileName)
}

// Load returns the metadata document. A fresh cache is used as-is; otherwise
// the remote endpoint is fetched and cached. When the remote fetch fails a
// stale cache is still accepted (with OriginStaleCache so callers can warn).
// force skips the cache entirely and always refreshes from the remote.
func (ms *MetadataStore) Load(force bool) (*MetadataDocument, MetadataOrigin, error) {
	if !force {
		doc, age, err := ms.loadCache()
		if err == nil && age < metadataMaxAge {
			return doc, OriginCache, nil
		}
	}

	doc, fetchErr := ms.fetch()
	if fetchErr == nil {
		if err := ms.saveCache(doc); err != nil {
			// A cache write failure must not fail the command; the
			// document itself is already in hand.
			return doc, OriginRemote, nil
		}
		return doc, OriginRemote, nil
	}

	if !force {
		if doc, _, err := ms.loadCache(); err == nil {
			return doc, OriginStaleCache, nil
		}
	}

	return nil, "", fmt.Errorf("%w: %v", ErrMetadataUnavailable, fetchErr)
}

// loadCache reads the cached document and reports its age.
func (ms *MetadataStore) loadCache() (*MetadataDocument, time.Duration, error) {
	path := ms.CachePath()
	info, err := os.Stat(path)
	if err != nil {
		return nil, 0, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, 0, fmt.Errorf("reading metadata cache: %w", err)
	}
	doc, err := parseMetadata(data)
	if err != nil {
		return nil, 0, fmt.Errorf("parsing metadata cache: %w", err)
	}
	return doc, time.Since(info.ModTime()), nil
}

// saveCache writes the document atomically (temp file then rename).
func (ms *MetadataStore) saveCache(doc *MetadataDocument) error {
	if err := os.MkdirAll(ms.cacheDir, 0o755); err != nil {
		return fmt.Errorf("creating cache directory: %w", err)
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling metadata: %w", err)
	}
	tmpPath := ms.CachePath() + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("writing metadata cache: %w", err)
	}
	if err := os.Rename(tmpPath, ms.CachePath()); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("saving metadata cache: %w", err)
	}
	return nil
}

func (ms *MetadataStore) fetch() (*MetadataDocument, error) {
	resp, err := ms.client.Get(ms.url)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", ms.url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching %s: unexpected status %s", ms.url, resp.Status)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("reading metadata response: %w", err)
	}
	return parseMetadata(data)
}

func parseMetadata(data []byte) (*MetadataDocument, error) {
	var doc MetadataDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing metadata document: %w", err)
	}
	if len(doc.Agents) == 0 {
		return nil, fmt.Errorf("metadata document lists no agents")
	}
	if len(doc.Repositories) == 0 {
		return nil, fmt.Errorf("metadata document lists no repositories")
	}
	return &doc, nil
}
