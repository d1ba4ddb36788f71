// Package archive implements C1, the Archive Loader: it parses a
// submission zip, validates its manifest fail-fast (spec.md §4.1), and
// materializes the program/data tree into a scratch directory with
// parameter placeholders substituted for sandbox-visible paths.
package archive

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/imxieyi/carp-judge-worker/internal/judgeerr"
)

// CaseType is the submission category (spec.md Glossary).
type CaseType string

const (
	CaseTypeCARP CaseType = "CARP"
	CaseTypeIMP  CaseType = "IMP"
	CaseTypeISE  CaseType = "ISE"
)

// Loaded is the validated, materialized result of loading an archive:
// the Case skeleton described in spec.md §3.
type Loaded struct {
	Manifest
	ScratchDir string
}

// sandboxWorkspaceRoot is the fixed sandbox mount point referenced by
// substituted parameters (spec.md §4.1).
const sandboxWorkspaceRoot = "/workspace"

// Load validates zipData against the manifest rules in spec.md §4.1, in
// the fail-fast order specified, then materializes program/ and data/
// into scratchDir and substitutes placeholders in Parameters.
func Load(zipData []byte, scratchDir string) (*Loaded, error) {
	zr, err := zip.NewReader(bytes.NewReader(zipData), int64(len(zipData)))
	if err != nil {
		return nil, judgeerr.NewArchiveError("invalid zip archive: %v", err)
	}

	entries := make(map[string]*zip.File, len(zr.File))
	for _, f := range zr.File {
		entries[f.Name] = f
	}

	// 1. config.json must exist at archive root.
	configFile, ok := entries["config.json"]
	if !ok {
		return nil, judgeerr.NewArchiveError("no config.json in archive")
	}

	// 2. Manifest parses as JSON with required fields.
	raw, err := readZipEntry(configFile)
	if err != nil {
		return nil, judgeerr.NewArchiveError("cannot read config.json: %v", err)
	}
	var manifest Manifest
	if err := json.Unmarshal(raw, &manifest); err != nil {
		return nil, judgeerr.NewArchiveError("malformed config.json: %v", err)
	}

	// 3. entry non-empty; program/<entry> present among archive entries.
	if strings.TrimSpace(manifest.Entry) == "" {
		return nil, judgeerr.NewArchiveError("no entry point")
	}
	if _, ok := entries["program/"+manifest.Entry]; !ok {
		return nil, judgeerr.NewArchiveError("entry file not found: %s", manifest.Entry)
	}

	// 4. data/network/seeds present under data/ when named.
	if manifest.Data != "" {
		if _, ok := entries["data/"+manifest.Data]; !ok {
			return nil, judgeerr.NewArchiveError("data file not found: %s", manifest.Data)
		}
	}
	if manifest.Network != "" {
		if _, ok := entries["data/"+manifest.Network]; !ok {
			return nil, judgeerr.NewArchiveError("network file not found: %s", manifest.Network)
		}
	}
	if manifest.Seeds != "" {
		if _, ok := entries["data/"+manifest.Seeds]; !ok {
			return nil, judgeerr.NewArchiveError("seeds file not found: %s", manifest.Seeds)
		}
	}

	// 5. seedCount, when present, is > 0.
	var fields map[string]json.RawMessage
	_ = json.Unmarshal(raw, &fields)
	if _, present := fields["seedCount"]; present && manifest.SeedCount <= 0 {
		return nil, judgeerr.NewArchiveError("invalid seedCount")
	}

	if err := materialize(zr, scratchDir); err != nil {
		return nil, err
	}

	manifest.Parameters = substituteParameters(manifest)

	return &Loaded{Manifest: manifest, ScratchDir: scratchDir}, nil
}

// materialize iterates every zip entry prefixed by program/ or data/
// (excluding the bare directory names themselves) and writes it under
// scratchDir, creating intermediate directories as needed. Directory
// entries (trailing "/") just create the directory.
func materialize(zr *zip.Reader, scratchDir string) error {
	for _, f := range zr.File {
		name := f.Name
		isProgram := strings.HasPrefix(name, "program/") && name != "program/"
		isData := strings.HasPrefix(name, "data/") && name != "data/"
		if !isProgram && !isData {
			continue
		}

		target := filepath.Join(scratchDir, filepath.FromSlash(name))
		if !strings.HasPrefix(target, filepath.Clean(scratchDir)+string(filepath.Separator)) {
			return judgeerr.NewArchiveError("entry escapes scratch directory: %s", name)
		}
		if strings.HasSuffix(name, "/") {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return judgeerr.NewArchiveError("create directory %s: %v", name, err)
			}
			continue
		}

		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return judgeerr.NewArchiveError("create directory for %s: %v", name, err)
		}

		data, err := readZipEntry(f)
		if err != nil {
			return judgeerr.NewArchiveError("read %s: %v", name, err)
		}

		if isProgram {
			data = bytes.ReplaceAll(data, []byte("\r"), nil)
		}

		if err := os.WriteFile(target, data, 0o644); err != nil {
			return judgeerr.NewArchiveError("write %s: %v", name, err)
		}
	}
	return nil
}

// substituteParameters replaces each placeholder in manifest.Parameters
// with its sandbox-visible path or numeric literal. A placeholder is
// substituted only when its source field is present/non-empty, so an
// absent field never renders as a path or value; its placeholder text
// (e.g. a literal $data) is left as-is in the rendered command line.
func substituteParameters(m Manifest) string {
	params := m.Parameters

	if m.Data != "" {
		params = strings.ReplaceAll(params, "$data", filepath.ToSlash(filepath.Join(sandboxWorkspaceRoot, "data", m.Data)))
	}
	if m.Network != "" {
		params = strings.ReplaceAll(params, "$network", filepath.ToSlash(filepath.Join(sandboxWorkspaceRoot, "data", m.Network)))
	}
	if m.Seeds != "" {
		params = strings.ReplaceAll(params, "$seeds", filepath.ToSlash(filepath.Join(sandboxWorkspaceRoot, "data", m.Seeds)))
	}
	if m.SeedCount != 0 {
		params = strings.ReplaceAll(params, "$seedCount", strconv.Itoa(m.SeedCount))
	}
	if m.Model != "" {
		params = strings.ReplaceAll(params, "$model", m.Model)
	}
	params = strings.ReplaceAll(params, "$time", strconv.Itoa(m.Time))
	params = strings.ReplaceAll(params, "$cpu", strconv.Itoa(m.CPU))
	params = strings.ReplaceAll(params, "$memory", strconv.Itoa(m.Memory))
	if m.Seed != nil {
		params = strings.ReplaceAll(params, "$seed", strconv.FormatInt(*m.Seed, 10))
	}

	return params
}

// EntrySandboxPath returns the sandbox-visible path of the submission's
// entry file, for building the interpreter command line (spec.md §4.2).
func EntrySandboxPath(entry string) string {
	return filepath.ToSlash(filepath.Join(sandboxWorkspaceRoot, "program", entry))
}

func readZipEntry(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}
