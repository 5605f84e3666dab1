// Package config implements spec.md §4.4's configuration document: a
// mutable, TOML-backed, tagged collection of stage sections that every
// pipeline stage reads from and writes back into. Grounded on ppb's
// utils/Persistent.go (section->key map shape, atomic save) generalized
// from JSON to TOML — the spec's own [[jobs]] syntax (§6) is TOML syntax,
// so BurntSushi/toml (already present in the retrieval pack) is the natural
// fit rather than re-deriving a bespoke format.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/cxxforge/cxxforge/internal/base"
)

var LogConfig = base.NewLogCategory("Config")

const SchemaVersion = 1

// StageName enumerates the document's recognized top-level sections, per
// spec.md §4.4's table.
type StageName string

const (
	StageProject   StageName = "project"
	StageDiscovery StageName = "discovery"
	StageCompile   StageName = "compile"
	StageLink      StageName = "link"
	StageBinary    StageName = "binary"
	StageSymbols   StageName = "symbols"
	StageWrap      StageName = "wrap"
	StageLLVM      StageName = "llvm"
	StageTarget    StageName = "target"
	StageCache     StageName = "cache"
)

var AllStages = []StageName{
	StageProject, StageDiscovery, StageCompile, StageLink, StageBinary,
	StageSymbols, StageWrap, StageLLVM, StageTarget, StageCache,
}

// Document is the canonical, human-editable configuration. Raw holds every
// section as a free-form map so unknown keys survive a load/save round
// trip; the typed accessors in sections.go project a schema onto specific
// keys without discarding the rest.
type Document struct {
	LastModified  time.Time
	SchemaVersion int
	Sections      map[string]Section
	raw           map[string]interface{}
}

// Section is a stage's free-form key/value mapping.
type Section map[string]interface{}

func (s Section) Enabled() bool {
	if v, ok := s["enabled"]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return true
}

// New returns a default-populated document, used when the file at Load's
// path is absent.
func New() *Document {
	doc := &Document{
		SchemaVersion: SchemaVersion,
		Sections:      map[string]Section{},
	}
	for _, stage := range AllStages {
		doc.Sections[string(stage)] = Section{}
	}
	return doc
}

// Load parses the document at path, returning a default-populated document
// if the file is absent (spec.md §4.4's load() operation).
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return New(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var raw map[string]interface{}
	if _, err := toml.Decode(string(data), &raw); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	doc := New()
	if lm, ok := raw["last_modified"].(time.Time); ok {
		doc.LastModified = lm
	}
	if sv, ok := raw["schema_version"].(int64); ok {
		doc.SchemaVersion = int(sv)
	}
	for _, stage := range AllStages {
		if section, ok := raw[string(stage)]; ok {
			if m, ok := section.(map[string]interface{}); ok {
				doc.Sections[string(stage)] = Section(m)
			}
		}
	}
	// job_queue/jobs and any other top-level keys not in AllStages are kept
	// verbatim so a document shared with the job queue format round-trips.
	doc.raw = raw
	return doc, nil
}

// Save atomically persists the document: write to a sibling temp file,
// fsync, then rename over the destination. Grounded on ppb's
// UFS.CreateFile/CreateTemp pattern.
func Save(doc *Document, path string) error {
	doc.LastModified = time.Now()
	doc.SchemaVersion = SchemaVersion

	out := map[string]interface{}{
		"last_modified":  doc.LastModified,
		"schema_version": doc.SchemaVersion,
	}
	for name, section := range doc.Sections {
		out[name] = map[string]interface{}(section)
	}
	// Preserve any keys the document held but that this process doesn't
	// know about (e.g. a job_queue section shared with jobqueue.Manager).
	for k, v := range doc.raw {
		if _, handled := out[k]; !handled {
			out[k] = v
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("config: mkdir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("config: create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op once the rename below succeeds

	enc := toml.NewEncoder(tmp)
	if err := enc.Encode(out); err != nil {
		tmp.Close()
		return fmt.Errorf("config: encode: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("config: fsync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("config: close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("config: rename into place: %w", err)
	}
	base.LogVerbose(LogConfig, "saved configuration to %s", path)
	return nil
}

// StageView returns a read/write handle to one stage's section.
func StageView(doc *Document, stage StageName) Section {
	section, ok := doc.Sections[string(stage)]
	if !ok {
		section = Section{}
		doc.Sections[string(stage)] = section
	}
	return section
}

// Update merges results into stage's section, preserving keys outside the
// known set (spec.md §4.4's update() operation).
func Update(doc *Document, stage StageName, results map[string]interface{}) {
	section := StageView(doc, stage)
	for k, v := range results {
		section[k] = v
	}
	doc.Sections[string(stage)] = section
}

// Enabled reports whether a stage is enabled: true unless its section sets
// `enabled = false`.
func Enabled(doc *Document, stage StageName) bool {
	return StageView(doc, stage).Enabled()
}
