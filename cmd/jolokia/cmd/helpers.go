package cmd

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/jolokia-tools/jolokia-cli/internal/core"
	"github.com/jolokia-tools/jolokia-cli/internal/ui"
)

// metadataURLEnv overrides the metadata endpoint, mainly for testing against
// a local server.
const metadataURLEnv = "JOLOKIA_METADATA_URL"

const httpTimeout = 2 * time.Minute

// newPrinter builds the console printer from the persistent output flags.
func newPrinter(cmd *cobra.Command) *ui.Printer {
	fs := cmd.Flags()
	quiet, _ := fs.GetBool("quiet")
	verbose, _ := fs.GetBool("verbose")
	noColor, _ := fs.GetBool("no-color")
	return ui.NewPrinter(os.Stdout, os.Stderr, ui.Options{
		Quiet:   quiet,
		Verbose: verbose,
		NoColor: noColor,
	})
}

// newHTTPClient builds the download client, honoring the proxy flags.
func newHTTPClient(fs *pflag.FlagSet) (*http.Client, error) {
	proxy, _ := fs.GetString("proxy")
	if proxy == "" {
		return &http.Client{Timeout: httpTimeout}, nil
	}

	proxyURL, err := url.Parse(proxy)
	if err != nil {
		return nil, fmt.Errorf("invalid proxy URL %q: %w", proxy, err)
	}
	if user, _ := fs.GetString("proxy-user"); user != "" {
		password, _ := fs.GetString("proxy-password")
		proxyURL.User = url.UserPassword(user, password)
	}

	return &http.Client{
		Timeout:   httpTimeout,
		Transport: &http.Transport{Proxy: http.ProxyURL(proxyURL)},
	}, nil
}

// loadMetadata loads the agent metadata document, warning when only a stale
// cache could be used.
func loadMetadata(cmd *cobra.Command, client *http.Client, p *ui.Printer) (*core.MetadataDocument, error) {
	cacheDir, err := core.DefaultCacheDir()
	if err != nil {
		return nil, err
	}

	metadataURL := os.Getenv(metadataURLEnv)
	if metadataURL == "" {
		metadataURL = core.DefaultMetadataURL
	}

	noCache, _ := cmd.Flags().GetBool("no-cache")
	store := core.NewMetadataStore(cacheDir, metadataURL, client)

	doc, origin, err := store.Load(noCache)
	if err != nil {
		return nil, err
	}
	switch origin {
	case core.OriginStaleCache:
		p.Warnf("metadata refresh failed, using stale cache %s", store.CachePath())
	case core.OriginRemote:
		p.Verbosef("refreshed metadata from %s", metadataURL)
	}
	return doc, nil
}

// newFetcher wires client, verifier and verbose logging into a Fetcher.
func newFetcher(cmd *cobra.Command, client *http.Client, p *ui.Printer) (*core.Fetcher, error) {
	policy := core.DefaultVerifyPolicy()
	if cmd.Flags().Lookup("verify-fallback") != nil {
		fallback, _ := cmd.Flags().GetString("verify-fallback")
		parsed, err := core.ParseVerifyFallback(fallback)
		if err != nil {
			return nil, err
		}
		policy.Fallback = parsed
	}

	keyringPath := ""
	if cacheDir, err := core.DefaultCacheDir(); err == nil {
		keyringPath = core.DefaultKeyringPath(cacheDir)
	}

	verifier := core.NewVerifier(client, policy, keyringPath)
	fetcher := core.NewFetcher(client, verifier)
	fetcher.Logf = p.Verbosef
	return fetcher, nil
}

// repositoryOverride turns the --repository flag into a candidate list
// override (nil when unset).
func repositoryOverride(fs *pflag.FlagSet) []string {
	repo, _ := fs.GetString("repository")
	if repo == "" {
		return nil
	}
	return []string{repo}
}

// triState reads a --<name>/--no-<name> flag pair into a tri-state bool:
// nil when neither was given, an error when both were.
func triState(fs *pflag.FlagSet, name string) (*bool, error) {
	on := fs.Changed(name)
	off := fs.Changed("no-" + name)
	if on && off {
		return nil, fmt.Errorf("--%s and --no-%s are mutually exclusive", name, name)
	}
	switch {
	case on:
		v := true
		return &v, nil
	case off:
		v := false
		return &v, nil
	}
	return nil, nil
}

// describeUnavailable rewrites a metadata failure into the dedicated
// cannot-verify diagnostic used by verification paths.
func describeUnavailable(err error) string {
	if errors.Is(err, core.ErrMetadataUnavailable) {
		return "cannot verify: agent metadata unavailable"
	}
	return "cannot verify: " + err.Error()
}
