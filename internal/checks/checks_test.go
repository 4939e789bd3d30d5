package checks

import (
	"strings"
	"testing"
)

func TestCoherence(t *testing.T) {
	set, err := Coherence()
	if err != nil {
		t.Fatalf("Coherence() error: %v", err)
	}
	if set.Name == "" {
		t.Error("bundled set has no name")
	}
	if len(set.Checks) == 0 {
		t.Fatal("bundled set has no checks")
	}

	check, ok := set.Find("cluster-size")
	if !ok {
		t.Fatal("cluster-size check missing from the bundled set")
	}
	if check.MBean == "" || check.Attribute == "" {
		t.Errorf("cluster-size incomplete: mbean=%q attribute=%q", check.MBean, check.Attribute)
	}
}

func TestFind_Unknown(t *testing.T) {
	set, err := Coherence()
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := set.Find("no-such-check"); ok {
		t.Error("Find() returned a check for an unknown name")
	}
}

func TestParse_Validation(t *testing.T) {
	tests := []struct {
		desc    string
		yaml    string
		wantErr string
	}{
		{
			desc:    "missing set name",
			yaml:    "checks:\n  - name: a\n    mbean: x\n    attribute: y\n",
			wantErr: "no name",
		},
		{
			desc:    "unnamed check",
			yaml:    "name: s\nchecks:\n  - mbean: x\n    attribute: y\n",
			wantErr: "no name",
		},
		{
			desc:    "duplicate check name",
			yaml:    "name: s\nchecks:\n  - name: a\n    mbean: x\n    attribute: y\n  - name: a\n    mbean: x\n    attribute: y\n",
			wantErr: "duplicate",
		},
		{
			desc:    "missing attribute",
			yaml:    "name: s\nchecks:\n  - name: a\n    mbean: x\n",
			wantErr: "mbean and an attribute",
		},
		{
			desc:    "not yaml",
			yaml:    "{{{",
			wantErr: "parsing",
		},
	}

	for _, tt := range tests {
		_, err := Parse([]byte(tt.yaml))
		if err == nil {
			t.Errorf("%s: Parse() expected error", tt.desc)
			continue
		}
		if !strings.Contains(err.Error(), tt.wantErr) {
			t.Errorf("%s: error = %v, want substring %q", tt.desc, err, tt.wantErr)
		}
	}
}

func TestParse_Valid(t *testing.T) {
	set, err := Parse([]byte(`name: custom
description: hand-written checks
checks:
  - name: heap-used
    description: JVM heap usage
    mbean: java.lang:type=Memory
    attribute: HeapMemoryUsage
    path: used
    warning: "0:800000000"
    critical: "0:950000000"
    unit: bytes
`))
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	check, ok := set.Find("heap-used")
	if !ok {
		t.Fatal("heap-used not found")
	}
	if check.Path != "used" || check.Unit != "bytes" {
		t.Errorf("check = %+v, want path/unit preserved", check)
	}
}
