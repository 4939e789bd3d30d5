package core

import (
	"archive/zip"
	"fmt"
	"io"
	"path"
	"strings"
)

// Well-known archive entries.
const (
	descriptorEntry = "WEB-INF/web.xml"
	warPolicyEntry  = "WEB-INF/classes/jolokia-access.xml"
	jarPolicyEntry  = "jolokia-access.xml"
	manifestEntry   = "META-INF/MANIFEST.MF"
)

// ArchiveFormatError reports an archive whose contents don't match any known
// agent layout, or whose expected entries are missing or unparsable.
type ArchiveFormatError struct {
	Path   string
	Detail string
}

func (e *ArchiveFormatError) Error() string {
	return fmt.Sprintf("%s: %s", e.Path, e.Detail)
}

// ArchiveInfo is what inspection derives from an agent archive. Everything
// comes from the archive's contents; the file name plays no part.
type ArchiveInfo struct {
	Type            AgentType
	Version         string
	HasPolicy       bool
	SecurityEnabled bool
	SecurityRole    string
	ProxyEnabled    bool
}

// Inspect opens an agent archive and derives its type, version, policy
// presence and, for web archives, the security and proxy state of its
// deployment descriptor.
func Inspect(archivePath string) (*ArchiveInfo, error) {
	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		return nil, &ArchiveFormatError{Path: archivePath, Detail: fmt.Sprintf("not a readable zip archive: %v", err)}
	}
	defer func() { _ = zr.Close() }()

	info := &ArchiveInfo{}

	info.Type, err = detectType(&zr.Reader)
	if err != nil {
		return nil, &ArchiveFormatError{Path: archivePath, Detail: err.Error()}
	}

	info.Version, err = extractVersion(&zr.Reader)
	if err != nil {
		return nil, &ArchiveFormatError{Path: archivePath, Detail: err.Error()}
	}

	info.HasPolicy = hasEntry(&zr.Reader, PolicyEntryPath(info.Type))

	if info.Type == AgentWar {
		descriptor, ok, err := readEntry(&zr.Reader, descriptorEntry)
		if err != nil {
			return nil, &ArchiveFormatError{Path: archivePath, Detail: err.Error()}
		}
		if !ok {
			return nil, &ArchiveFormatError{Path: archivePath, Detail: "web archive has no " + descriptorEntry}
		}
		if role, ok := SecurityRole(descriptor); ok {
			info.SecurityEnabled = true
			info.SecurityRole = role
		}
		info.ProxyEnabled = HasProxy(descriptor)
	}

	return info, nil
}

// PolicyEntryPath returns where the access policy lives inside an archive of
// the given type: on the classpath root for web archives, at the archive
// root for everything else.
func PolicyEntryPath(typ AgentType) string {
	if typ == AgentWar {
		return warPolicyEntry
	}
	return jarPolicyEntry
}

// detectType classifies the archive from its layout and manifest.
func detectType(zr *zip.Reader) (AgentType, error) {
	if hasEntry(zr, descriptorEntry) {
		return AgentWar, nil
	}

	manifest, ok, err := readEntry(zr, manifestEntry)
	if err != nil {
		return "", err
	}
	if ok {
		attrs := parseManifest(manifest)
		if attrs["Agent-Class"] != "" || attrs["Premain-Class"] != "" {
			return AgentJvm, nil
		}
		switch name := attrs["Bundle-SymbolicName"]; {
		case strings.HasSuffix(name, ".osgi-bundle"):
			return AgentOsgiBundle, nil
		case strings.HasSuffix(name, ".osgi"):
			return AgentOsgi, nil
		}
	}

	for _, f := range zr.File {
		if strings.HasPrefix(f.Name, "org/jolokia/mule/") {
			return AgentMule, nil
		}
	}

	return "", fmt.Errorf("contents match no known agent type")
}

// extractVersion reads the artifact version from the embedded Maven
// pom.properties.
func extractVersion(zr *zip.Reader) (string, error) {
	for _, f := range zr.File {
		if !strings.HasPrefix(f.Name, "META-INF/maven/org.jolokia/") || path.Base(f.Name) != "pom.properties" {
			continue
		}
		data, err := readFile(f)
		if err != nil {
			return "", err
		}
		for _, line := range strings.Split(string(data), "\n") {
			line = strings.TrimSpace(line)
			if v, ok := strings.CutPrefix(line, "version="); ok {
				return strings.TrimSpace(v), nil
			}
		}
	}
	return "", fmt.Errorf("no Maven pom.properties with a version found")
}

// parseManifest reads MANIFEST.MF main attributes, folding continuation
// lines (a leading space continues the previous value).
func parseManifest(data []byte) map[string]string {
	attrs := make(map[string]string)
	var lastKey string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimRight(line, "\r")
		if line == "" {
			break // end of main section
		}
		if strings.HasPrefix(line, " ") {
			if lastKey != "" {
				attrs[lastKey] += strings.TrimPrefix(line, " ")
			}
			continue
		}
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		lastKey = key
		attrs[key] = strings.TrimSpace(value)
	}
	return attrs
}

func hasEntry(zr *zip.Reader, name string) bool {
	for _, f := range zr.File {
		if f.Name == name {
			return true
		}
	}
	return false
}

func readEntry(zr *zip.Reader, name string) ([]byte, bool, error) {
	for _, f := range zr.File {
		if f.Name == name {
			data, err := readFile(f)
			return data, err == nil, err
		}
	}
	return nil, false, nil
}

func readFile(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("opening entry %s: %w", f.Name, err)
	}
	defer func() { _ = rc.Close() }()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("reading entry %s: %w", f.Name, err)
	}
	return data, nil
}
