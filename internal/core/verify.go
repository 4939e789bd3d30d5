package core

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/ProtonMail/go-crypto/openpgp"
	"github.com/ProtonMail/go-crypto/openpgp/packet"
)

// Verification tiers, strongest first. PGP needs a local keyring; the digest
// tiers compare against a published sidecar file (<url>.sha256 etc).
const (
	VerifyPGP    = "pgp"
	VerifySHA256 = "sha256"
	VerifySHA1   = "sha1"
	VerifyMD5    = "md5"
)

// VerifyPolicy controls how weak a verification method may be. Fallback is
// the weakest digest tier the user accepts; SHA-1 and MD5 are not adequate
// integrity checks and must be opted into explicitly.
type VerifyPolicy struct {
	Fallback string
}

// DefaultVerifyPolicy accepts PGP and SHA-256 only.
func DefaultVerifyPolicy() VerifyPolicy {
	return VerifyPolicy{Fallback: VerifySHA256}
}

// ParseVerifyFallback validates a --verify-fallback value.
func ParseVerifyFallback(s string) (string, error) {
	switch s {
	case VerifySHA256, VerifySHA1, VerifyMD5:
		return s, nil
	}
	return "", fmt.Errorf("invalid verification fallback %q (one of: sha256, sha1, md5)", s)
}

// tierRank orders digest tiers; higher is weaker.
func tierRank(tier string) int {
	switch tier {
	case VerifySHA256:
		return 0
	case VerifySHA1:
		return 1
	case VerifyMD5:
		return 2
	}
	return -1
}

// digestTiers lists the digest tiers the policy admits, strongest first.
func (p VerifyPolicy) digestTiers() []string {
	max := tierRank(p.Fallback)
	if max < 0 {
		max = tierRank(VerifySHA256)
	}
	all := []string{VerifySHA256, VerifySHA1, VerifyMD5}
	return all[:max+1]
}

// SignatureMismatchError reports that a downloaded file does not match its
// published signature or checksum.
type SignatureMismatchError struct {
	URL    string
	Method string
	Detail string
}

func (e *SignatureMismatchError) Error() string {
	return fmt.Sprintf("%s verification failed for %s: %s", e.Method, e.URL, e.Detail)
}

// ErrNoSignature is returned when no signature or acceptable checksum sidecar
// exists for an artifact.
var ErrNoSignature = errors.New("no signature or acceptable checksum published")

// Verifier checks downloaded artifacts against their published signatures.
// The PGP tier is active only when a keyring file exists; otherwise the
// digest tiers admitted by the policy are tried in order.
type Verifier struct {
	client      *http.Client
	policy      VerifyPolicy
	keyringPath string
}

// DefaultKeyringPath returns the keyring location under the cache directory.
func DefaultKeyringPath(cacheDir string) string {
	return filepath.Join(cacheDir, "pubring.asc")
}

// NewVerifier creates a Verifier. A nil client falls back to
// http.DefaultClient; an empty keyringPath disables the PGP tier.
func NewVerifier(client *http.Client, policy VerifyPolicy, keyringPath string) *Verifier {
	if client == nil {
		client = http.DefaultClient
	}
	return &Verifier{client: client, policy: policy, keyringPath: keyringPath}
}

// Verify checks the local file at path against signature sidecars published
// next to fileURL. It returns the verification method used. Tiers are tried
// strongest first; a tier whose sidecar is missing falls through, but a tier
// whose sidecar exists and does not match fails immediately.
func (v *Verifier) Verify(fileURL, path string) (string, error) {
	if keyring, err := v.loadKeyring(); err == nil {
		sig, fetchErr := v.fetchSidecar(fileURL + ".asc")
		if fetchErr == nil {
			if err := verifyPGP(keyring, path, sig); err != nil {
				return "", &SignatureMismatchError{URL: fileURL, Method: VerifyPGP, Detail: err.Error()}
			}
			return VerifyPGP, nil
		}
	}

	for _, tier := range v.policy.digestTiers() {
		sidecar, err := v.fetchSidecar(fileURL + "." + tier)
		if err != nil {
			continue
		}
		if err := verifyDigest(tier, path, sidecar); err != nil {
			return "", &SignatureMismatchError{URL: fileURL, Method: tier, Detail: err.Error()}
		}
		return tier, nil
	}

	return "", fmt.Errorf("%w for %s", ErrNoSignature, fileURL)
}

func (v *Verifier) loadKeyring() (openpgp.EntityList, error) {
	if v.keyringPath == "" {
		return nil, errors.New("no keyring configured")
	}
	f, err := os.Open(v.keyringPath)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	return openpgp.ReadArmoredKeyRing(f)
}

func (v *Verifier) fetchSidecar(url string) ([]byte, error) {
	resp, err := v.client.Get(url)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}
	return io.ReadAll(io.LimitReader(resp.Body, 64<<10))
}

func verifyPGP(keyring openpgp.EntityList, path string, armoredSig []byte) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	_, err = openpgp.CheckArmoredDetachedSignature(keyring, f, strings.NewReader(string(armoredSig)), &packet.Config{})
	if err != nil {
		return fmt.Errorf("checking detached signature: %w", err)
	}
	return nil
}

func verifyDigest(tier, path string, sidecar []byte) error {
	var h hash.Hash
	switch tier {
	case VerifySHA256:
		h = sha256.New()
	case VerifySHA1:
		h = sha1.New()
	case VerifyMD5:
		h = md5.New()
	default:
		return fmt.Errorf("unsupported digest %q", tier)
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	if _, err := io.Copy(h, f); err != nil {
		return fmt.Errorf("hashing %s: %w", path, err)
	}
	got := hex.EncodeToString(h.Sum(nil))

	// Checksum sidecars may carry "<hex>" or "<hex>  <filename>".
	want := strings.ToLower(strings.TrimSpace(string(sidecar)))
	if idx := strings.IndexAny(want, " \t"); idx > 0 {
		want = want[:idx]
	}
	if want == "" {
		return errors.New("empty checksum file")
	}
	if got != want {
		return fmt.Errorf("checksum mismatch: got %s, want %s", got, want)
	}
	return nil
}
