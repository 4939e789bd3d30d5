// Package checks ships the bundled monitoring check definitions: purely
// declarative descriptions of JMX metrics worth alerting on, usable as a
// starting point for any JMX-over-HTTP monitoring setup.
package checks

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

//go:embed coherence.yaml
var coherenceYAML []byte

// Check describes one JMX metric check: which attribute to read and the
// warning/critical threshold ranges (Nagios range syntax).
type Check struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description,omitempty"`
	MBean       string `yaml:"mbean"`
	Attribute   string `yaml:"attribute"`
	Path        string `yaml:"path,omitempty"` // inner path for composite attributes
	Warning     string `yaml:"warning,omitempty"`
	Critical    string `yaml:"critical,omitempty"`
	Unit        string `yaml:"unit,omitempty"`
}

// Set is a named collection of checks for one monitored system.
type Set struct {
	Name        string  `yaml:"name"`
	Description string  `yaml:"description,omitempty"`
	Checks      []Check `yaml:"checks"`
}

// Coherence returns the bundled check definitions for an Oracle Coherence
// data grid.
func Coherence() (*Set, error) {
	return Parse(coherenceYAML)
}

// Parse reads and validates a check definition document.
func Parse(data []byte) (*Set, error) {
	var set Set
	if err := yaml.Unmarshal(data, &set); err != nil {
		return nil, fmt.Errorf("parsing check definitions: %w", err)
	}
	if set.Name == "" {
		return nil, fmt.Errorf("check definition set has no name")
	}

	seen := make(map[string]bool)
	for i, c := range set.Checks {
		if c.Name == "" {
			return nil, fmt.Errorf("check #%d has no name", i+1)
		}
		if seen[c.Name] {
			return nil, fmt.Errorf("duplicate check name %q", c.Name)
		}
		seen[c.Name] = true
		if c.MBean == "" || c.Attribute == "" {
			return nil, fmt.Errorf("check %q needs both an mbean and an attribute", c.Name)
		}
	}
	return &set, nil
}

// Find returns the named check from the set.
func (s *Set) Find(name string) (*Check, bool) {
	for i := range s.Checks {
		if s.Checks[i].Name == name {
			return &s.Checks[i], true
		}
	}
	return nil, false
}
