// Package skills loads the workspace-scoped skill manifest that
// supplements the backend's own Skills listing with locally declared
// metadata (name, scope, default-enabled, summary). The actor reports
// only the manifest's size (Count, in /status); OneShot-Skills
// filtering does not read the manifest.
// Grounded on peakyragnar-subluminal's pkg/policy/yaml.go and
// zjrosen-perles's config loader: both parse a YAML manifest into a
// typed slice with gopkg.in/yaml.v3, tolerating a missing file.
package skills

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Manifest is the on-disk shape of a skills manifest file.
type Manifest struct {
	Skills []Entry `yaml:"skills"`
}

// Entry is one declared skill.
type Entry struct {
	Name    string `yaml:"name"`
	Scope   string `yaml:"scope"`
	Enabled bool   `yaml:"enabled"`
	Summary string `yaml:"summary"`
}

// Catalog is the loaded, queryable manifest.
type Catalog struct {
	entries []Entry
	path    string
}

// Load reads and parses the manifest at path. A missing file yields an
// empty Catalog rather than an error, since a workspace without a
// manifest is the common case.
func Load(path string) (*Catalog, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Catalog{path: path}, nil
		}
		return nil, fmt.Errorf("skills: read manifest: %w", err)
	}
	var m Manifest
	if err := yaml.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("skills: parse manifest %s: %w", path, err)
	}
	return &Catalog{entries: m.Skills, path: path}, nil
}

// Entries returns the declared skills, in manifest order.
func (c *Catalog) Entries() []Entry {
	if c == nil {
		return nil
	}
	return c.entries
}

// Lookup returns the manifest entry for name, if declared.
func (c *Catalog) Lookup(name string) (Entry, bool) {
	if c == nil {
		return Entry{}, false
	}
	for _, e := range c.entries {
		if e.Name == name {
			return e, true
		}
	}
	return Entry{}, false
}

// Count reports how many skills the manifest declares, used by C6's
// /status rendering to show manifest size without dumping every entry.
func (c *Catalog) Count() int {
	if c == nil {
		return 0
	}
	return len(c.entries)
}
