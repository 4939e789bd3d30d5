package core

import (
	"bytes"
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/ProtonMail/go-crypto/openpgp"
	"github.com/ProtonMail/go-crypto/openpgp/armor"
	"github.com/ProtonMail/go-crypto/openpgp/packet"
)

// sidecarServer serves a fixed artifact body plus whatever sidecar files a
// test registers next to it.
type sidecarServer struct {
	srv      *httptest.Server
	sidecars map[string][]byte // extension (e.g. "sha256") -> body
}

func newSidecarServer(t *testing.T, artifact []byte) *sidecarServer {
	t.Helper()
	ss := &sidecarServer{sidecars: make(map[string][]byte)}
	ss.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/jolokia.war" {
			_, _ = w.Write(artifact)
			return
		}
		for ext, body := range ss.sidecars {
			if r.URL.Path == "/jolokia.war."+ext {
				_, _ = w.Write(body)
				return
			}
		}
		http.NotFound(w, r)
	}))
	t.Cleanup(ss.srv.Close)
	return ss
}

func (ss *sidecarServer) fileURL() string { return ss.srv.URL + "/jolokia.war" }

func writeArtifact(t *testing.T, body []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "jolokia.war")
	if err := os.WriteFile(path, body, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func hexSum(tier string, body []byte) string {
	switch tier {
	case VerifySHA256:
		sum := sha256.Sum256(body)
		return hex.EncodeToString(sum[:])
	case VerifySHA1:
		sum := sha1.Sum(body)
		return hex.EncodeToString(sum[:])
	case VerifyMD5:
		sum := md5.Sum(body)
		return hex.EncodeToString(sum[:])
	}
	return ""
}

func TestVerify_SHA256(t *testing.T) {
	body := []byte("artifact bytes")
	ss := newSidecarServer(t, body)
	ss.sidecars["sha256"] = []byte(hexSum(VerifySHA256, body) + "\n")

	v := NewVerifier(ss.srv.Client(), DefaultVerifyPolicy(), "")
	method, err := v.Verify(ss.fileURL(), writeArtifact(t, body))
	if err != nil {
		t.Fatalf("Verify() error: %v", err)
	}
	if method != VerifySHA256 {
		t.Errorf("method = %q, want %q", method, VerifySHA256)
	}
}

func TestVerify_SidecarWithFilenameSuffix(t *testing.T) {
	body := []byte("artifact bytes")
	ss := newSidecarServer(t, body)
	ss.sidecars["sha256"] = []byte(hexSum(VerifySHA256, body) + "  jolokia.war\n")

	v := NewVerifier(ss.srv.Client(), DefaultVerifyPolicy(), "")
	if _, err := v.Verify(ss.fileURL(), writeArtifact(t, body)); err != nil {
		t.Errorf("Verify() error with \"<hex>  <filename>\" sidecar: %v", err)
	}
}

func TestVerify_Mismatch(t *testing.T) {
	body := []byte("artifact bytes")
	ss := newSidecarServer(t, body)
	ss.sidecars["sha256"] = []byte(hexSum(VerifySHA256, []byte("different bytes")))

	v := NewVerifier(ss.srv.Client(), DefaultVerifyPolicy(), "")
	_, err := v.Verify(ss.fileURL(), writeArtifact(t, body))
	if err == nil {
		t.Fatal("Verify() expected mismatch error")
	}
	var mismatch *SignatureMismatchError
	if !errors.As(err, &mismatch) {
		t.Fatalf("error is %T, want *SignatureMismatchError", err)
	}
	if mismatch.Method != VerifySHA256 {
		t.Errorf("Method = %q, want %q", mismatch.Method, VerifySHA256)
	}
}

func TestVerify_WeakTiersNeedOptIn(t *testing.T) {
	body := []byte("artifact bytes")
	ss := newSidecarServer(t, body)
	ss.sidecars["sha1"] = []byte(hexSum(VerifySHA1, body))
	ss.sidecars["md5"] = []byte(hexSum(VerifyMD5, body))
	path := writeArtifact(t, body)

	// Default policy refuses to fall back to sha1 or md5.
	v := NewVerifier(ss.srv.Client(), DefaultVerifyPolicy(), "")
	_, err := v.Verify(ss.fileURL(), path)
	if !errors.Is(err, ErrNoSignature) {
		t.Fatalf("error = %v, want ErrNoSignature under the default policy", err)
	}

	v = NewVerifier(ss.srv.Client(), VerifyPolicy{Fallback: VerifySHA1}, "")
	method, err := v.Verify(ss.fileURL(), path)
	if err != nil {
		t.Fatalf("Verify() error with sha1 fallback: %v", err)
	}
	if method != VerifySHA1 {
		t.Errorf("method = %q, want %q", method, VerifySHA1)
	}

	v = NewVerifier(ss.srv.Client(), VerifyPolicy{Fallback: VerifyMD5}, "")
	method, err = v.Verify(ss.fileURL(), path)
	if err != nil {
		t.Fatalf("Verify() error with md5 fallback: %v", err)
	}
	// sha1 outranks md5 even when md5 is admitted.
	if method != VerifySHA1 {
		t.Errorf("method = %q, want %q", method, VerifySHA1)
	}
}

func TestVerify_NoSidecarsAtAll(t *testing.T) {
	body := []byte("artifact bytes")
	ss := newSidecarServer(t, body)

	v := NewVerifier(ss.srv.Client(), VerifyPolicy{Fallback: VerifyMD5}, "")
	_, err := v.Verify(ss.fileURL(), writeArtifact(t, body))
	if !errors.Is(err, ErrNoSignature) {
		t.Errorf("error = %v, want ErrNoSignature", err)
	}
}

// signingKey generates a throwaway PGP identity, writes its public key to a
// keyring file, and returns the keyring path plus the entity for signing.
func signingKey(t *testing.T) (string, *openpgp.Entity) {
	t.Helper()
	entity, err := openpgp.NewEntity("Release Signing", "", "releases@jolokia.example", &packet.Config{
		Algorithm: packet.PubKeyAlgoEdDSA,
	})
	if err != nil {
		t.Fatalf("generating key: %v", err)
	}

	var pub bytes.Buffer
	aw, err := armor.Encode(&pub, openpgp.PublicKeyType, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := entity.Serialize(aw); err != nil {
		t.Fatalf("serializing public key: %v", err)
	}
	if err := aw.Close(); err != nil {
		t.Fatal(err)
	}

	keyring := filepath.Join(t.TempDir(), "pubring.asc")
	if err := os.WriteFile(keyring, pub.Bytes(), 0o600); err != nil {
		t.Fatal(err)
	}
	return keyring, entity
}

func armoredSignature(t *testing.T, entity *openpgp.Entity, body []byte) []byte {
	t.Helper()
	var sig bytes.Buffer
	if err := openpgp.ArmoredDetachSign(&sig, entity, bytes.NewReader(body), nil); err != nil {
		t.Fatalf("signing: %v", err)
	}
	return sig.Bytes()
}

func TestVerify_PGP(t *testing.T) {
	body := []byte("artifact bytes")
	keyring, entity := signingKey(t)

	ss := newSidecarServer(t, body)
	ss.sidecars["asc"] = armoredSignature(t, entity, body)

	v := NewVerifier(ss.srv.Client(), DefaultVerifyPolicy(), keyring)
	method, err := v.Verify(ss.fileURL(), writeArtifact(t, body))
	if err != nil {
		t.Fatalf("Verify() error: %v", err)
	}
	if method != VerifyPGP {
		t.Errorf("method = %q, want %q", method, VerifyPGP)
	}
}

func TestVerify_PGPMismatchIsConclusive(t *testing.T) {
	body := []byte("artifact bytes")
	keyring, entity := signingKey(t)

	ss := newSidecarServer(t, body)
	ss.sidecars["asc"] = armoredSignature(t, entity, []byte("different bytes"))
	// A correct checksum must not rescue a bad signature.
	ss.sidecars["sha256"] = []byte(hexSum(VerifySHA256, body))

	v := NewVerifier(ss.srv.Client(), DefaultVerifyPolicy(), keyring)
	_, err := v.Verify(ss.fileURL(), writeArtifact(t, body))
	if err == nil {
		t.Fatal("Verify() expected error for a bad signature")
	}
	var mismatch *SignatureMismatchError
	if !errors.As(err, &mismatch) {
		t.Fatalf("error is %T, want *SignatureMismatchError", err)
	}
	if mismatch.Method != VerifyPGP {
		t.Errorf("Method = %q, want %q", mismatch.Method, VerifyPGP)
	}
}

func TestVerify_PGPOutranksChecksums(t *testing.T) {
	body := []byte("artifact bytes")
	keyring, entity := signingKey(t)

	ss := newSidecarServer(t, body)
	ss.sidecars["asc"] = armoredSignature(t, entity, body)
	// The stale checksum would fail; the valid signature wins first.
	ss.sidecars["sha256"] = []byte(hexSum(VerifySHA256, []byte("stale bytes")))

	v := NewVerifier(ss.srv.Client(), DefaultVerifyPolicy(), keyring)
	method, err := v.Verify(ss.fileURL(), writeArtifact(t, body))
	if err != nil {
		t.Fatalf("Verify() error: %v", err)
	}
	if method != VerifyPGP {
		t.Errorf("method = %q, want %q", method, VerifyPGP)
	}
}

func TestVerify_MissingKeyringFallsBackToDigest(t *testing.T) {
	body := []byte("artifact bytes")
	ss := newSidecarServer(t, body)
	ss.sidecars["sha256"] = []byte(hexSum(VerifySHA256, body))

	v := NewVerifier(ss.srv.Client(), DefaultVerifyPolicy(), filepath.Join(t.TempDir(), "absent.asc"))
	method, err := v.Verify(ss.fileURL(), writeArtifact(t, body))
	if err != nil {
		t.Fatalf("Verify() error: %v", err)
	}
	if method != VerifySHA256 {
		t.Errorf("method = %q, want %q", method, VerifySHA256)
	}
}

func TestParseVerifyFallback(t *testing.T) {
	for _, valid := range []string{VerifySHA256, VerifySHA1, VerifyMD5} {
		if _, err := ParseVerifyFallback(valid); err != nil {
			t.Errorf("ParseVerifyFallback(%q) error: %v", valid, err)
		}
	}
	if _, err := ParseVerifyFallback("crc32"); err == nil {
		t.Error("ParseVerifyFallback(crc32) expected error")
	}
}
