package core

import (
	"archive/zip"
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func boolPtr(b bool) *bool { return &b }

// archiveEntries reads all entries of a zip file, keyed by name, together
// with their compressed sizes.
func archiveEntries(t *testing.T, path string) (map[string][]byte, map[string]uint64) {
	t.Helper()
	zr, err := zip.OpenReader(path)
	if err != nil {
		t.Fatalf("opening %s: %v", path, err)
	}
	defer func() { _ = zr.Close() }()

	contents := make(map[string][]byte)
	compressed := make(map[string]uint64)
	for _, f := range zr.File {
		data, err := readFile(f)
		if err != nil {
			t.Fatalf("reading %s: %v", f.Name, err)
		}
		contents[f.Name] = data
		compressed[f.Name] = f.CompressedSize64
	}
	return contents, compressed
}

func TestRepack_NoActions(t *testing.T) {
	path := buildArchive(t, t.TempDir(), "jolokia.war", warEntries(testDescriptor, "1.2.0"))

	_, err := Repack(path, RepackOptions{})
	if err == nil {
		t.Fatal("Repack() expected usage error without actions")
	}
	if !strings.Contains(err.Error(), "no repack action") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestRepack_PolicyRoundTrip(t *testing.T) {
	path := buildArchive(t, t.TempDir(), "jolokia.war", warEntries(testDescriptor, "1.2.0"))
	origContents, origCompressed := archiveEntries(t, path)

	if _, err := Repack(path, RepackOptions{Policy: boolPtr(true)}); err != nil {
		t.Fatalf("Repack(add policy) error: %v", err)
	}

	withPolicy, _ := archiveEntries(t, path)
	policyData, ok := withPolicy[warPolicyEntry]
	if !ok {
		t.Fatal("policy entry missing after add")
	}
	if !bytes.Equal(policyData, DefaultPolicy()) {
		t.Error("policy entry does not match the default policy")
	}

	if _, err := Repack(path, RepackOptions{Policy: boolPtr(false)}); err != nil {
		t.Fatalf("Repack(remove policy) error: %v", err)
	}

	// Round-trip law: every entry except the policy is byte-identical to
	// the original, down to the compressed representation.
	finalContents, finalCompressed := archiveEntries(t, path)
	if _, ok := finalContents[warPolicyEntry]; ok {
		t.Fatal("policy entry still present after remove")
	}
	if len(finalContents) != len(origContents) {
		t.Fatalf("entry count = %d, want %d", len(finalContents), len(origContents))
	}
	for name, data := range origContents {
		if !bytes.Equal(finalContents[name], data) {
			t.Errorf("entry %s changed contents across the round trip", name)
		}
		if finalCompressed[name] != origCompressed[name] {
			t.Errorf("entry %s changed compressed size across the round trip", name)
		}
	}
}

func TestRepack_PolicyRemoveAbsentIsNoop(t *testing.T) {
	path := buildArchive(t, t.TempDir(), "jolokia.war", warEntries(testDescriptor, "1.2.0"))
	before, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}

	result, err := Repack(path, RepackOptions{Policy: boolPtr(false)})
	if err != nil {
		t.Fatalf("Repack() error: %v (removing an absent policy must not fail)", err)
	}
	if len(result.Actions) != 1 || !strings.Contains(result.Actions[0], "nothing to remove") {
		t.Errorf("unexpected actions: %v", result.Actions)
	}

	after, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(before, after) {
		t.Error("no-op repack rewrote the archive")
	}
}

func TestRepack_CustomPolicyFile(t *testing.T) {
	dir := t.TempDir()
	path := buildArchive(t, dir, "jolokia.war", warEntries(testDescriptor, "1.2.0"))

	custom := "<restrict><host>10.0.0.1</host></restrict>\n"
	policyPath := filepath.Join(dir, "my-policy.xml")
	if err := os.WriteFile(policyPath, []byte(custom), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := Repack(path, RepackOptions{Policy: boolPtr(true), PolicyFile: policyPath}); err != nil {
		t.Fatalf("Repack() error: %v", err)
	}

	contents, _ := archiveEntries(t, path)
	if got := string(contents[warPolicyEntry]); got != custom {
		t.Errorf("policy entry = %q, want %q", got, custom)
	}
}

func TestRepack_SecurityLifecycle(t *testing.T) {
	path := buildArchive(t, t.TempDir(), "jolokia.war", warEntries(testDescriptor, "1.2.0"))

	if _, err := Repack(path, RepackOptions{Security: boolPtr(true), SecurityRole: "ops"}); err != nil {
		t.Fatalf("Repack(add security) error: %v", err)
	}
	info, err := Inspect(path)
	if err != nil {
		t.Fatalf("Inspect() error: %v", err)
	}
	if !info.SecurityEnabled || info.SecurityRole != "ops" {
		t.Fatalf("after add: security = %v/%q, want enabled for ops", info.SecurityEnabled, info.SecurityRole)
	}

	if _, err := Repack(path, RepackOptions{Security: boolPtr(false)}); err != nil {
		t.Fatalf("Repack(remove security) error: %v", err)
	}
	info, err = Inspect(path)
	if err != nil {
		t.Fatalf("Inspect() error: %v", err)
	}
	if info.SecurityEnabled {
		t.Error("after remove: security still enabled")
	}
}

func TestRepack_SecurityPreservesUnrelatedEntries(t *testing.T) {
	path := buildArchive(t, t.TempDir(), "jolokia.war", warEntries(testDescriptor, "1.2.0"))
	origContents, origCompressed := archiveEntries(t, path)

	if _, err := Repack(path, RepackOptions{Security: boolPtr(true), SecurityRole: "ops"}); err != nil {
		t.Fatalf("Repack() error: %v", err)
	}

	contents, compressed := archiveEntries(t, path)
	for name, data := range origContents {
		if name == descriptorEntry {
			continue
		}
		if !bytes.Equal(contents[name], data) {
			t.Errorf("unrelated entry %s changed contents", name)
		}
		if compressed[name] != origCompressed[name] {
			t.Errorf("unrelated entry %s changed compressed size", name)
		}
	}
	if bytes.Equal(contents[descriptorEntry], origContents[descriptorEntry]) {
		t.Error("descriptor should have changed")
	}
}

func TestRepack_ProxyToggle(t *testing.T) {
	path := buildArchive(t, t.TempDir(), "jolokia.war", warEntries(testDescriptor, "1.2.0"))

	if _, err := Repack(path, RepackOptions{Proxy: boolPtr(true)}); err != nil {
		t.Fatalf("Repack(enable proxy) error: %v", err)
	}
	info, err := Inspect(path)
	if err != nil {
		t.Fatal(err)
	}
	if !info.ProxyEnabled {
		t.Fatal("proxy not enabled after repack")
	}

	if _, err := Repack(path, RepackOptions{Proxy: boolPtr(false)}); err != nil {
		t.Fatalf("Repack(disable proxy) error: %v", err)
	}
	info, err = Inspect(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.ProxyEnabled {
		t.Error("proxy still enabled after disable")
	}
}

func TestRepack_SecurityOnJarUnsupported(t *testing.T) {
	path := buildArchive(t, t.TempDir(), "agent.jar", map[string]string{
		"META-INF/MANIFEST.MF": "Manifest-Version: 1.0\r\n" +
			"Agent-Class: org.jolokia.jvmagent.JvmAgent\r\n\r\n",
		"META-INF/maven/org.jolokia/jolokia-jvm/pom.properties": pomProperties("jolokia-jvm", "1.2.0"),
	})
	before, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}

	_, err = Repack(path, RepackOptions{Security: boolPtr(true), SecurityRole: "ops"})
	if err == nil {
		t.Fatal("Repack() expected error for security on a jvm agent")
	}
	var unsupported *UnsupportedOperationError
	if !errors.As(err, &unsupported) {
		t.Errorf("error is %T, want *UnsupportedOperationError", err)
	}

	after, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(before, after) {
		t.Error("failed repack modified the archive")
	}
}

func TestRepack_PolicyOnJarAllowed(t *testing.T) {
	path := buildArchive(t, t.TempDir(), "agent.jar", map[string]string{
		"META-INF/MANIFEST.MF": "Manifest-Version: 1.0\r\n" +
			"Agent-Class: org.jolokia.jvmagent.JvmAgent\r\n\r\n",
		"META-INF/maven/org.jolokia/jolokia-jvm/pom.properties": pomProperties("jolokia-jvm", "1.2.0"),
	})

	if _, err := Repack(path, RepackOptions{Policy: boolPtr(true)}); err != nil {
		t.Fatalf("Repack() error: %v", err)
	}
	contents, _ := archiveEntries(t, path)
	if _, ok := contents[jarPolicyEntry]; !ok {
		t.Error("policy entry missing at the jar policy location")
	}
}

func TestRepack_FailureLeavesOriginalUntouched(t *testing.T) {
	dir := t.TempDir()
	path := buildArchive(t, dir, "jolokia.war", warEntries(testDescriptor, "1.2.0"))
	before, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}

	_, err = Repack(path, RepackOptions{Policy: boolPtr(true), PolicyFile: filepath.Join(dir, "missing.xml")})
	if err == nil {
		t.Fatal("Repack() expected error for a missing policy file")
	}

	after, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(before, after) {
		t.Error("failed repack modified the archive")
	}

	// No stray temp files either.
	matches, err := filepath.Glob(filepath.Join(dir, ".jolokia-repack-*"))
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 0 {
		t.Errorf("temp files left behind: %v", matches)
	}
}

func TestRepack_IdempotentEditSkipsRewrite(t *testing.T) {
	path := buildArchive(t, t.TempDir(), "jolokia.war", warEntries(testDescriptor, "1.2.0"))

	if _, err := Repack(path, RepackOptions{Security: boolPtr(true), SecurityRole: "ops"}); err != nil {
		t.Fatal(err)
	}
	before, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}

	result, err := Repack(path, RepackOptions{Security: boolPtr(true), SecurityRole: "ops"})
	if err != nil {
		t.Fatalf("Repack() error: %v", err)
	}
	if len(result.Actions) != 1 || !strings.Contains(result.Actions[0], "already") {
		t.Errorf("unexpected actions: %v", result.Actions)
	}

	after, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(before, after) {
		t.Error("idempotent repack rewrote the archive")
	}
}
