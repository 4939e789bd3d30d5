package core

import (
	"archive/zip"
	_ "embed"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// defaultPolicy is the access policy installed by a policy-add action when
// the caller supplies no policy file of their own.
//
//go:embed jolokia-access-default.xml
var defaultPolicy []byte

// DefaultPolicy returns the built-in access policy document.
func DefaultPolicy() []byte {
	out := make([]byte, len(defaultPolicy))
	copy(out, defaultPolicy)
	return out
}

// UnsupportedOperationError reports a repack action that the archive's type
// cannot carry (security and proxy edits need a deployment descriptor).
type UnsupportedOperationError struct {
	Op   string
	Type AgentType
}

func (e *UnsupportedOperationError) Error() string {
	return fmt.Sprintf("cannot %s a %s agent: only web archives have a deployment descriptor", e.Op, e.Type)
}

// RepackOptions selects the edits to apply. The pointer fields are tri-state:
// nil leaves the aspect alone, true adds/enables, false removes/disables.
type RepackOptions struct {
	Policy       *bool
	PolicyFile   string // policy document for a policy add; default embedded policy
	Security     *bool
	SecurityRole string // role for a security add; required when Security adds
	Proxy        *bool
}

// HasActions reports whether any edit was requested.
func (o RepackOptions) HasActions() bool {
	return o.Policy != nil || o.Security != nil || o.Proxy != nil
}

// RepackResult describes what a repack did.
type RepackResult struct {
	Type    AgentType
	Actions []string
}

// Repack applies the requested edits to an agent archive. The edit is atomic
// from the caller's perspective: the archive is rewritten into a temp file
// (untouched entries copied byte-for-byte) and renamed over the original
// only after every edit has succeeded. On any failure the original file is
// left exactly as it was.
func Repack(archivePath string, opts RepackOptions) (*RepackResult, error) {
	if !opts.HasActions() {
		return nil, fmt.Errorf("no repack action requested (use --policy, --security or --jsr160-proxy)")
	}

	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		return nil, &ArchiveFormatError{Path: archivePath, Detail: fmt.Sprintf("not a readable zip archive: %v", err)}
	}
	defer func() { _ = zr.Close() }()

	typ, err := detectType(&zr.Reader)
	if err != nil {
		return nil, &ArchiveFormatError{Path: archivePath, Detail: err.Error()}
	}

	if typ != AgentWar {
		if opts.Security != nil {
			return nil, &UnsupportedOperationError{Op: "edit security of", Type: typ}
		}
		if opts.Proxy != nil {
			return nil, &UnsupportedOperationError{Op: "edit the JSR-160 proxy of", Type: typ}
		}
	}

	result := &RepackResult{Type: typ}

	// replace maps entry names to new contents; remove marks entries to drop.
	replace := make(map[string][]byte)
	remove := make(map[string]bool)

	if err := planPolicyEdit(&zr.Reader, typ, opts, replace, remove, result); err != nil {
		return nil, err
	}
	if err := planDescriptorEdit(&zr.Reader, archivePath, opts, replace, result); err != nil {
		return nil, err
	}

	if len(replace) == 0 && len(remove) == 0 {
		// Every requested edit was already in place.
		return result, nil
	}

	if err := rewriteArchive(archivePath, &zr.Reader, replace, remove); err != nil {
		return nil, err
	}
	return result, nil
}

// planPolicyEdit stages the policy entry add or remove.
func planPolicyEdit(zr *zip.Reader, typ AgentType, opts RepackOptions, replace map[string][]byte, remove map[string]bool, result *RepackResult) error {
	if opts.Policy == nil {
		return nil
	}
	entry := PolicyEntryPath(typ)

	if !*opts.Policy {
		if hasEntry(zr, entry) {
			remove[entry] = true
			result.Actions = append(result.Actions, "removed access policy "+entry)
		} else {
			result.Actions = append(result.Actions, "no access policy present, nothing to remove")
		}
		return nil
	}

	policy := DefaultPolicy()
	if opts.PolicyFile != "" {
		data, err := os.ReadFile(opts.PolicyFile)
		if err != nil {
			return fmt.Errorf("reading policy file: %w", err)
		}
		policy = data
	}
	replace[entry] = policy
	result.Actions = append(result.Actions, "installed access policy "+entry)
	return nil
}

// planDescriptorEdit stages the security and proxy edits on the deployment
// descriptor.
func planDescriptorEdit(zr *zip.Reader, archivePath string, opts RepackOptions, replace map[string][]byte, result *RepackResult) error {
	if opts.Security == nil && opts.Proxy == nil {
		return nil
	}

	descriptor, ok, err := readEntry(zr, descriptorEntry)
	if err != nil {
		return &ArchiveFormatError{Path: archivePath, Detail: err.Error()}
	}
	if !ok {
		return &ArchiveFormatError{Path: archivePath, Detail: "web archive has no " + descriptorEntry}
	}

	edited := descriptor
	changed := false

	if opts.Security != nil {
		if *opts.Security {
			role := opts.SecurityRole
			if role == "" {
				return fmt.Errorf("a role name is required to enable security")
			}
			var didChange bool
			edited, didChange, err = AddSecurity(edited, role)
			if err != nil {
				return &ArchiveFormatError{Path: archivePath, Detail: err.Error()}
			}
			if didChange {
				result.Actions = append(result.Actions, "enabled authentication for role "+role)
				changed = true
			} else {
				result.Actions = append(result.Actions, "authentication already enabled for role "+role)
			}
		} else {
			var didChange bool
			edited, didChange = RemoveSecurity(edited)
			if didChange {
				result.Actions = append(result.Actions, "disabled authentication")
				changed = true
			} else {
				result.Actions = append(result.Actions, "authentication not enabled, nothing to remove")
			}
		}
	}

	if opts.Proxy != nil {
		if *opts.Proxy {
			var didChange bool
			edited, didChange, err = AddProxy(edited)
			if err != nil {
				return &ArchiveFormatError{Path: archivePath, Detail: err.Error()}
			}
			if didChange {
				result.Actions = append(result.Actions, "enabled the JSR-160 proxy")
				changed = true
			} else {
				result.Actions = append(result.Actions, "JSR-160 proxy already enabled")
			}
		} else {
			var didChange bool
			edited, didChange = RemoveProxy(edited)
			if didChange {
				result.Actions = append(result.Actions, "disabled the JSR-160 proxy")
				changed = true
			} else {
				result.Actions = append(result.Actions, "JSR-160 proxy not enabled, nothing to remove")
			}
		}
	}

	if changed {
		replace[descriptorEntry] = edited
	}
	return nil
}

// rewriteArchive writes the edited archive next to the original and renames
// it into place. Entries that are neither replaced nor removed are copied
// raw, compressed bytes and all, so they stay byte-identical.
func rewriteArchive(archivePath string, zr *zip.Reader, replace map[string][]byte, remove map[string]bool) (err error) {
	info, err := os.Stat(archivePath)
	if err != nil {
		return fmt.Errorf("stat %s: %w", archivePath, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(archivePath), ".jolokia-repack-*")
	if err != nil {
		return fmt.Errorf("creating temp archive: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	zw := zip.NewWriter(tmp)
	written := make(map[string]bool)

	for _, f := range zr.File {
		if remove[f.Name] {
			continue
		}
		if data, ok := replace[f.Name]; ok {
			if err = writeEntry(zw, f.Name, f.Modified, data); err != nil {
				return err
			}
			written[f.Name] = true
			continue
		}
		if err = copyRaw(zw, f); err != nil {
			return err
		}
	}

	for name, data := range replace {
		if written[name] {
			continue
		}
		if err = writeEntry(zw, name, info.ModTime(), data); err != nil {
			return err
		}
	}

	if err = zw.Close(); err != nil {
		return fmt.Errorf("finalizing archive: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("closing temp archive: %w", err)
	}
	if err = os.Chmod(tmpPath, info.Mode()); err != nil {
		return fmt.Errorf("setting archive permissions: %w", err)
	}
	if err = os.Rename(tmpPath, archivePath); err != nil {
		return fmt.Errorf("replacing archive: %w", err)
	}
	return nil
}

func writeEntry(zw *zip.Writer, name string, modified time.Time, data []byte) error {
	w, err := zw.CreateHeader(&zip.FileHeader{
		Name:     name,
		Method:   zip.Deflate,
		Modified: modified,
	})
	if err != nil {
		return fmt.Errorf("creating entry %s: %w", name, err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("writing entry %s: %w", name, err)
	}
	return nil
}

func copyRaw(zw *zip.Writer, f *zip.File) error {
	fh := f.FileHeader
	w, err := zw.CreateRaw(&fh)
	if err != nil {
		return fmt.Errorf("creating entry %s: %w", f.Name, err)
	}
	r, err := f.OpenRaw()
	if err != nil {
		return fmt.Errorf("opening entry %s: %w", f.Name, err)
	}
	if _, err := io.Copy(w, r); err != nil {
		return fmt.Errorf("copying entry %s: %w", f.Name, err)
	}
	return nil
}
