package core

import (
	"fmt"
	"strings"

	goversion "github.com/hashicorp/go-version"
)

// ArtifactSpec is a parsed `name[:version]` artifact request.
type ArtifactSpec struct {
	Name    string
	Version string // empty means "latest compatible"
}

// SpecParseError reports a malformed `name[:version]` string.
type SpecParseError struct {
	Input  string
	Reason string
}

func (e *SpecParseError) Error() string {
	return fmt.Sprintf("invalid artifact spec %q: %s", e.Input, e.Reason)
}

// ParseArtifactSpec parses `name[:version]`. The name is a non-empty run of
// letters, digits, '-' and '_'; everything after a single ':' is the version.
func ParseArtifactSpec(input string) (ArtifactSpec, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return ArtifactSpec{}, &SpecParseError{Input: input, Reason: "empty"}
	}

	name := input
	ver := ""
	if idx := strings.Index(input, ":"); idx >= 0 {
		name = input[:idx]
		ver = input[idx+1:]
		if ver == "" {
			return ArtifactSpec{}, &SpecParseError{Input: input, Reason: "empty version after ':'"}
		}
		if strings.Contains(ver, ":") {
			return ArtifactSpec{}, &SpecParseError{Input: input, Reason: "more than one ':'"}
		}
	}

	if name == "" {
		return ArtifactSpec{}, &SpecParseError{Input: input, Reason: "empty name before ':'"}
	}
	for _, r := range name {
		if !isNameRune(r) {
			return ArtifactSpec{}, &SpecParseError{Input: input, Reason: fmt.Sprintf("invalid character %q in name", r)}
		}
	}

	return ArtifactSpec{Name: name, Version: ver}, nil
}

func isNameRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	case r == '-' || r == '_':
		return true
	}
	return false
}

// UnknownNameError reports a request for an agent/template/version that the
// metadata document does not know, listing the valid choices.
type UnknownNameError struct {
	Kind      string // "agent", "template" or "version"
	Name      string
	Available []string
}

func (e *UnknownNameError) Error() string {
	if len(e.Available) == 0 {
		return fmt.Sprintf("unknown %s %q", e.Kind, e.Name)
	}
	return fmt.Sprintf("unknown %s %q. Available: %s", e.Kind, e.Name, strings.Join(e.Available, ", "))
}

// ResolvedVersion is the outcome of version resolution. Warning is non-empty
// when the version is known but outside the client's compatibility range.
type ResolvedVersion struct {
	Version string
	Warning string
}

// VersionResolver validates requested versions against the metadata document
// and resolves "latest compatible" when no version is requested.
type VersionResolver struct {
	doc    *MetadataDocument
	client *goversion.Version // nil for non-semver dev builds: every version is accepted
}

// NewVersionResolver creates a resolver anchored at the given client version.
// A client version that does not parse (e.g. "dev") disables range checks.
func NewVersionResolver(doc *MetadataDocument, clientVersion string) *VersionResolver {
	cv, err := goversion.NewVersion(clientVersion)
	if err != nil {
		cv = nil
	}
	return &VersionResolver{doc: doc, client: cv}
}

// Resolve validates spec against the known version set. Without an explicit
// version it returns the highest non-snapshot version whose compatibility
// range admits the client version; with one, the version must be a known
// member, and a range mismatch is reported as a warning rather than an error.
func (r *VersionResolver) Resolve(spec ArtifactSpec) (ResolvedVersion, error) {
	if spec.Version != "" {
		info, ok := r.doc.Versions[spec.Version]
		if !ok {
			return ResolvedVersion{}, &UnknownNameError{
				Kind:      "version",
				Name:      spec.Version,
				Available: r.doc.VersionNames(),
			}
		}
		res := ResolvedVersion{Version: spec.Version}
		if ok, reason := r.compatible(info); !ok {
			res.Warning = fmt.Sprintf("version %s is not certified for this client (%s)", spec.Version, reason)
		}
		return res, nil
	}

	var best *goversion.Version
	for ver, info := range r.doc.Versions {
		if IsSnapshotVersion(ver) {
			continue
		}
		parsed, err := goversion.NewVersion(ver)
		if err != nil {
			continue
		}
		if ok, _ := r.compatible(info); !ok {
			continue
		}
		if best == nil || parsed.GreaterThan(best) {
			best = parsed
		}
	}
	if best == nil {
		return ResolvedVersion{}, fmt.Errorf("no compatible version found for client %s (known versions: %s)",
			r.clientString(), strings.Join(r.doc.VersionNames(), ", "))
	}
	return ResolvedVersion{Version: best.Original()}, nil
}

// compatible checks the client version against a version's declared range.
func (r *VersionResolver) compatible(info VersionInfo) (bool, string) {
	if info.ClientRange == "" || r.client == nil {
		return true, ""
	}
	constraint, err := goversion.NewConstraint(info.ClientRange)
	if err != nil {
		// A malformed range in the metadata must not block resolution.
		return true, ""
	}
	if constraint.Check(r.client) {
		return true, ""
	}
	return false, fmt.Sprintf("client %s outside range %q", r.client.Original(), info.ClientRange)
}

func (r *VersionResolver) clientString() string {
	if r.client == nil {
		return "dev"
	}
	return r.client.Original()
}

// IsSnapshotVersion reports whether a version string denotes an unreleased
// timestamped build.
func IsSnapshotVersion(ver string) bool {
	return strings.HasSuffix(ver, "-SNAPSHOT")
}

// LookupAgent returns the descriptor for a named agent or an UnknownNameError.
func LookupAgent(doc *MetadataDocument, name string) (AgentDescriptor, error) {
	desc, ok := doc.Agents[name]
	if !ok {
		return AgentDescriptor{}, &UnknownNameError{Kind: "agent", Name: name, Available: doc.AgentNames()}
	}
	return desc, nil
}

// LookupTemplate returns the descriptor for a named template or an UnknownNameError.
func LookupTemplate(doc *MetadataDocument, name string) (TemplateDescriptor, error) {
	desc, ok := doc.Templates[name]
	if !ok {
		return TemplateDescriptor{}, &UnknownNameError{Kind: "template", Name: name, Available: doc.TemplateNames()}
	}
	return desc, nil
}
