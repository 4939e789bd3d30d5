// Package core provides the business logic for the jolokia CLI.
// It has zero UI dependencies and is independently testable.
package core

import "sort"

// AgentType identifies a deployable agent artifact variant.
type AgentType string

const (
	AgentWar        AgentType = "war"
	AgentOsgi       AgentType = "osgi"
	AgentOsgiBundle AgentType = "osgi-bundle"
	AgentMule       AgentType = "mule"
	AgentJvm        AgentType = "jvm"
)

// AgentDescriptor describes one downloadable agent artifact.
// Coordinate is a repository-relative path template containing the
// literal placeholder "{version}"; FileName is the local name the
// artifact is written to after download.
type AgentDescriptor struct {
	Type       AgentType `json:"type"`
	Coordinate string    `json:"coordinate"`
	FileName   string    `json:"fileName"`
}

// TemplateDescriptor describes a downloadable plain configuration template.
// Templates have no signature sidecar; only checksums are published for them.
type TemplateDescriptor struct {
	Coordinate string `json:"coordinate"`
	FileName   string `json:"fileName"`
}

// VersionInfo carries per-version compatibility data. ClientRange is a
// version constraint (e.g. ">= 1.0, < 3.0") that the running client
// version must satisfy for the agent version to be considered compatible.
type VersionInfo struct {
	ClientRange string `json:"clientRange,omitempty"`
}

// MetadataDocument is the parsed agent metadata fetched from the product
// site and cached locally. It lists every known agent and template, the
// candidate repositories, and the known version set.
type MetadataDocument struct {
	Agents               map[string]AgentDescriptor    `json:"agents"`
	Templates            map[string]TemplateDescriptor `json:"templates,omitempty"`
	Repositories         []string                      `json:"repositories"`
	SnapshotRepositories []string                      `json:"snapshotRepositories,omitempty"`
	Versions             map[string]VersionInfo        `json:"versions"`
}

// AgentNames returns the known agent names in sorted order.
func (d *MetadataDocument) AgentNames() []string {
	names := make([]string, 0, len(d.Agents))
	for name := range d.Agents {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// TemplateNames returns the known template names in sorted order.
func (d *MetadataDocument) TemplateNames() []string {
	names := make([]string, 0, len(d.Templates))
	for name := range d.Templates {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// VersionNames returns the known version strings in sorted (string) order.
func (d *MetadataDocument) VersionNames() []string {
	names := make([]string, 0, len(d.Versions))
	for v := range d.Versions {
		names = append(names, v)
	}
	sort.Strings(names)
	return names
}

// ResolvedArtifact is the outcome of a successful download: which artifact,
// from where, and where it ended up locally. It is not persisted.
type ResolvedArtifact struct {
	Name        string
	Version     string
	DownloadURL string
	LocalPath   string
	Verified    string // verification method used ("pgp", "sha256", ...)
}
