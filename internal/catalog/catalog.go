// Package catalog holds the enumerations a pass refers to: the sites a
// visitor can apply for and the purposes of a visit.
package catalog

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultYAML []byte

type Entry struct {
	ID   string `yaml:"id" json:"id"`
	Name string `yaml:"name" json:"name"`
}

type file struct {
	Sites    []Entry `yaml:"sites"`
	Purposes []Entry `yaml:"purposes"`
}

// Catalog is immutable after construction and safe for concurrent use.
type Catalog struct {
	sites    map[string]string
	purposes map[string]string
}

// Default returns the built-in catalog.
func Default() *Catalog {
	c, err := Parse(defaultYAML)
	if err != nil {
		panic(fmt.Sprintf("catalog: built-in default.yaml is invalid: %v", err))
	}
	return c
}

// Load reads a catalog YAML file. An empty path yields the default catalog.
func Load(path string) (*Catalog, error) {
	if strings.TrimSpace(path) == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading catalog %s: %w", path, err)
	}
	c, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("catalog %s: %w", path, err)
	}
	return c, nil
}

func Parse(data []byte) (*Catalog, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing yaml: %w", err)
	}

	sites, err := index("site", f.Sites)
	if err != nil {
		return nil, err
	}
	purposes, err := index("purpose", f.Purposes)
	if err != nil {
		return nil, err
	}
	if len(sites) == 0 {
		return nil, fmt.Errorf("at least one site is required")
	}
	if len(purposes) == 0 {
		return nil, fmt.Errorf("at least one purpose is required")
	}
	return &Catalog{sites: sites, purposes: purposes}, nil
}

func index(kind string, entries []Entry) (map[string]string, error) {
	out := make(map[string]string, len(entries))
	for _, e := range entries {
		id := strings.TrimSpace(e.ID)
		if id == "" {
			return nil, fmt.Errorf("%s with empty id", kind)
		}
		if _, dup := out[id]; dup {
			return nil, fmt.Errorf("duplicate %s id %q", kind, id)
		}
		out[id] = e.Name
	}
	return out, nil
}

func (c *Catalog) HasSite(id string) bool {
	_, ok := c.sites[id]
	return ok
}

func (c *Catalog) HasPurpose(id string) bool {
	_, ok := c.purposes[id]
	return ok
}

// Sites returns all sites ordered by id.
func (c *Catalog) Sites() []Entry { return sorted(c.sites) }

// Purposes returns all purposes ordered by id.
func (c *Catalog) Purposes() []Entry { return sorted(c.purposes) }

// SiteIDs returns the site ids in order.
func (c *Catalog) SiteIDs() []string {
	ids := make([]string, 0, len(c.sites))
	for id := range c.sites {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func sorted(m map[string]string) []Entry {
	out := make([]Entry, 0, len(m))
	for id, name := range m {
		out = append(out, Entry{ID: id, Name: name})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
