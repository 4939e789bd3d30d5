package core

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

const versionPlaceholder = "{version}"

// Attempt records one failed download attempt against a repository.
type Attempt struct {
	Repository string
	Err        error
}

// RepositoryExhaustedError reports that every candidate repository failed to
// serve an artifact, naming each one tried.
type RepositoryExhaustedError struct {
	Coordinate string
	Attempts   []Attempt
}

func (e *RepositoryExhaustedError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "no repository could serve %s; tried %d:", e.Coordinate, len(e.Attempts))
	for _, a := range e.Attempts {
		fmt.Fprintf(&b, "\n  %s: %v", a.Repository, a.Err)
	}
	return b.String()
}

// FetchOptions configures a download.
type FetchOptions struct {
	OutDir       string   // target directory; default "."
	Repositories []string // overrides the metadata repository list when set
	FileName     string   // overrides the descriptor's local file name
	SkipVerify   bool     // template downloads tolerate a missing checksum
}

// Fetcher downloads artifacts, trying candidate repositories in order and
// verifying each download before declaring success.
type Fetcher struct {
	client   *http.Client
	verifier *Verifier

	// Logf, when set, receives per-attempt progress suitable for verbose
	// output. Core never prints directly.
	Logf func(format string, args ...any)
}

// NewFetcher creates a Fetcher. A nil client falls back to http.DefaultClient.
func NewFetcher(client *http.Client, verifier *Verifier) *Fetcher {
	if client == nil {
		client = http.DefaultClient
	}
	return &Fetcher{client: client, verifier: verifier}
}

func (f *Fetcher) logf(format string, args ...any) {
	if f.Logf != nil {
		f.Logf(format, args...)
	}
}

// FetchAgent downloads the named agent at the given resolved version.
func (f *Fetcher) FetchAgent(doc *MetadataDocument, name, ver string, opts FetchOptions) (*ResolvedArtifact, error) {
	desc, err := LookupAgent(doc, name)
	if err != nil {
		return nil, err
	}
	fileName := opts.FileName
	if fileName == "" {
		fileName = desc.FileName
	}
	art, err := f.fetchCoordinate(doc, desc.Coordinate, fileName, ver, opts)
	if err != nil {
		return nil, err
	}
	art.Name = name
	return art, nil
}

// FetchTemplate downloads the named configuration template at the given
// version. Templates publish no signature; a missing checksum is tolerated.
func (f *Fetcher) FetchTemplate(doc *MetadataDocument, name, ver string, opts FetchOptions) (*ResolvedArtifact, error) {
	desc, err := LookupTemplate(doc, name)
	if err != nil {
		return nil, err
	}
	if opts.FileName == "" {
		opts.FileName = desc.FileName
	}
	opts.SkipVerify = true
	art, err := f.fetchCoordinate(doc, desc.Coordinate, opts.FileName, ver, opts)
	if err != nil {
		return nil, err
	}
	art.Name = name
	return art, nil
}

// fetchCoordinate tries each candidate repository in order and returns on the
// first download that completes and verifies. Failures are recorded and the
// next candidate is tried; only full exhaustion is an error.
func (f *Fetcher) fetchCoordinate(doc *MetadataDocument, coordinate, fileName, ver string, opts FetchOptions) (*ResolvedArtifact, error) {
	outDir := opts.OutDir
	if outDir == "" {
		outDir = "."
	}

	repos := opts.Repositories
	if len(repos) == 0 {
		repos = doc.Repositories
		if IsSnapshotVersion(ver) && len(doc.SnapshotRepositories) > 0 {
			repos = doc.SnapshotRepositories
		}
	}
	if len(repos) == 0 {
		return nil, fmt.Errorf("no repositories configured for version %s", ver)
	}

	var attempts []Attempt
	for _, repo := range repos {
		url, err := f.resolveURL(repo, coordinate, ver)
		if err != nil {
			attempts = append(attempts, Attempt{Repository: repo, Err: err})
			f.logf("repository %s: %v", repo, err)
			continue
		}

		localPath := filepath.Join(outDir, fileName)
		method, err := f.downloadAndVerify(url, localPath, opts.SkipVerify)
		if err != nil {
			attempts = append(attempts, Attempt{Repository: repo, Err: err})
			f.logf("repository %s: %v", repo, err)
			continue
		}

		return &ResolvedArtifact{
			Version:     ver,
			DownloadURL: url,
			LocalPath:   localPath,
			Verified:    method,
		}, nil
	}

	return nil, &RepositoryExhaustedError{Coordinate: strings.ReplaceAll(coordinate, versionPlaceholder, ver), Attempts: attempts}
}

// resolveURL builds the download URL for one repository. Snapshot versions
// first consult the per-artifact build metadata to obtain the concrete
// timestamped file version; the directory keeps the base snapshot version.
func (f *Fetcher) resolveURL(repo, coordinate, ver string) (string, error) {
	dir, file := splitCoordinate(coordinate)
	dir = strings.ReplaceAll(dir, versionPlaceholder, ver)

	fileVer := ver
	if IsSnapshotVersion(ver) {
		build, err := f.snapshotBuild(joinURL(repo, dir), ver)
		if err != nil {
			return "", fmt.Errorf("resolving snapshot build: %w", err)
		}
		fileVer = build
	}
	file = strings.ReplaceAll(file, versionPlaceholder, fileVer)

	return joinURL(repo, dir+"/"+file), nil
}

// mavenMetadata is the subset of maven-metadata.xml needed for snapshot
// build resolution.
type mavenMetadata struct {
	Versioning struct {
		Snapshot struct {
			Timestamp   string `xml:"timestamp"`
			BuildNumber string `xml:"buildNumber"`
		} `xml:"snapshot"`
	} `xml:"versioning"`
}

// snapshotBuild fetches the build metadata under dirURL and returns the
// concrete file version, e.g. "2.1.0-20260102.094500-7" for "2.1.0-SNAPSHOT".
func (f *Fetcher) snapshotBuild(dirURL, ver string) (string, error) {
	url := dirURL + "/maven-metadata.xml"
	resp, err := f.client.Get(url)
	if err != nil {
		return "", fmt.Errorf("fetching %s: %w", url, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetching %s: unexpected status %s", url, resp.Status)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 256<<10))
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", url, err)
	}

	var meta mavenMetadata
	if err := xml.Unmarshal(data, &meta); err != nil {
		return "", fmt.Errorf("parsing %s: %w", url, err)
	}
	snap := meta.Versioning.Snapshot
	if snap.Timestamp == "" || snap.BuildNumber == "" {
		return "", fmt.Errorf("%s has no snapshot build information", url)
	}

	return strings.Replace(ver, "SNAPSHOT", snap.Timestamp+"-"+snap.BuildNumber, 1), nil
}

// downloadAndVerify streams url into a temp file next to the target, runs
// signature verification, and only then moves it into place. No partial or
// unverified file ever lands at the final path.
func (f *Fetcher) downloadAndVerify(url, localPath string, skipVerify bool) (string, error) {
	resp, err := f.client.Get(url)
	if err != nil {
		return "", fmt.Errorf("downloading %s: %w", url, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("downloading %s: unexpected status %s", url, resp.Status)
	}

	dir := filepath.Dir(localPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating output directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".jolokia-download-*")
	if err != nil {
		return "", fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() { _ = os.Remove(tmpPath) }()

	if _, err := io.Copy(tmp, resp.Body); err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("writing %s: %w", tmpPath, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("closing %s: %w", tmpPath, err)
	}

	method := "none"
	if f.verifier != nil {
		method, err = f.verifier.Verify(url, tmpPath)
		if err != nil {
			if skipVerify && errors.Is(err, ErrNoSignature) {
				method = "none"
			} else {
				return "", err
			}
		}
	}

	if err := os.Rename(tmpPath, localPath); err != nil {
		return "", fmt.Errorf("moving download into place: %w", err)
	}
	return method, nil
}

// VerifyExisting checks an already-downloaded agent archive against the
// signature published for its type and version. A signature that is found
// but does not match is conclusive; repositories that cannot provide one
// are skipped like failed download candidates.
func (f *Fetcher) VerifyExisting(doc *MetadataDocument, typ AgentType, ver, path string, repos []string) (string, error) {
	if f.verifier == nil {
		return "", errors.New("no verifier configured")
	}
	desc, ok := agentByType(doc, typ)
	if !ok {
		return "", fmt.Errorf("metadata lists no agent of type %q", typ)
	}
	if _, known := doc.Versions[ver]; !known {
		return "", &UnknownNameError{Kind: "version", Name: ver, Available: doc.VersionNames()}
	}

	if len(repos) == 0 {
		repos = doc.Repositories
		if IsSnapshotVersion(ver) && len(doc.SnapshotRepositories) > 0 {
			repos = doc.SnapshotRepositories
		}
	}

	var attempts []Attempt
	for _, repo := range repos {
		url, err := f.resolveURL(repo, desc.Coordinate, ver)
		if err != nil {
			attempts = append(attempts, Attempt{Repository: repo, Err: err})
			continue
		}
		method, err := f.verifier.Verify(url, path)
		if err != nil {
			var mismatch *SignatureMismatchError
			if errors.As(err, &mismatch) {
				return "", err
			}
			attempts = append(attempts, Attempt{Repository: repo, Err: err})
			continue
		}
		return method, nil
	}
	return "", &RepositoryExhaustedError{Coordinate: strings.ReplaceAll(desc.Coordinate, versionPlaceholder, ver), Attempts: attempts}
}

// agentByType finds the agent descriptor with the given type tag.
func agentByType(doc *MetadataDocument, typ AgentType) (AgentDescriptor, bool) {
	for _, desc := range doc.Agents {
		if desc.Type == typ {
			return desc, true
		}
	}
	return AgentDescriptor{}, false
}

// splitCoordinate separates a repository-relative coordinate into its
// directory and file parts.
func splitCoordinate(coordinate string) (dir, file string) {
	idx := strings.LastIndex(coordinate, "/")
	if idx < 0 {
		return "", coordinate
	}
	return coordinate[:idx], coordinate[idx+1:]
}

func joinURL(base, path string) string {
	return strings.TrimSuffix(base, "/") + "/" + strings.TrimPrefix(path, "/")
}
