// Package catalog holds the static reference taxonomies: cities, category trees
// and flat option lists. The data is embedded and parsed once.
package catalog

import (
	_ "embed"
	"fmt"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var rawCatalog []byte

// Tree names.
const (
	TreeSkills        = "skills"
	TreeIntroductions = "introductions"
	TreeSpecialists   = "specialists"
)

// City is a selectable location.
type City struct {
	Name string `yaml:"name"`
	Flag string `yaml:"flag"`
}

// Label is the display text for the city.
func (c City) Label() string {
	if c.Flag == "" {
		return c.Name
	}
	return c.Name + " " + c.Flag
}

// Category is one key of a tree with its ordered leaf items.
type Category struct {
	Key   string   `yaml:"key"`
	Name  string   `yaml:"name"`
	Items []string `yaml:"items"`
}

// Tree maps category keys to leaf items.
type Tree struct {
	Name       string     `yaml:"name"`
	Categories []Category `yaml:"categories"`
}

// Category returns the category with the given key.
func (t Tree) Category(key string) (Category, bool) {
	for _, c := range t.Categories {
		if c.Key == key {
			return c, true
		}
	}
	return Category{}, false
}

// Catalog is the full reference data set.
type Catalog struct {
	Cities []City              `yaml:"cities"`
	Trees  map[string]Tree     `yaml:"trees"`
	Lists  map[string][]string `yaml:"lists"`
}

// Parse decodes and validates catalog YAML.
func Parse(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	if len(c.Cities) == 0 {
		return nil, fmt.Errorf("catalog has no cities")
	}
	for name, tree := range c.Trees {
		seen := make(map[string]bool, len(tree.Categories))
		for _, cat := range tree.Categories {
			if cat.Key == "" {
				return nil, fmt.Errorf("tree %s: category without key", name)
			}
			if seen[cat.Key] {
				return nil, fmt.Errorf("tree %s: duplicate category %q", name, cat.Key)
			}
			seen[cat.Key] = true
			if len(cat.Items) == 0 {
				return nil, fmt.Errorf("tree %s: category %q has no items", name, cat.Key)
			}
		}
	}
	return &c, nil
}

var (
	defaultOnce sync.Once
	defaultCat  *Catalog
	defaultErr  error
)

// Default returns the embedded catalog, parsed on first use.
func Default() (*Catalog, error) {
	defaultOnce.Do(func() {
		defaultCat, defaultErr = Parse(rawCatalog)
	})
	return defaultCat, defaultErr
}

// MustDefault is Default for process start-up paths.
func MustDefault() *Catalog {
	c, err := Default()
	if err != nil {
		panic(err)
	}
	return c
}

// Tree returns the named tree or panics; tree names are compile-time constants.
func (c *Catalog) Tree(name string) Tree {
	t, ok := c.Trees[name]
	if !ok {
		panic(fmt.Sprintf("catalog: unknown tree %q", name))
	}
	return t
}

// List returns the named option list or panics.
func (c *Catalog) List(name string) []string {
	l, ok := c.Lists[name]
	if !ok {
		panic(fmt.Sprintf("catalog: unknown list %q", name))
	}
	return l
}

// CityNames returns the city values in catalog order.
func (c *Catalog) CityNames() []string {
	names := make([]string, len(c.Cities))
	for i, city := range c.Cities {
		names[i] = city.Name
	}
	return names
}

// CityLabels returns the city display labels in catalog order.
func (c *Catalog) CityLabels() []string {
	labels := make([]string, len(c.Cities))
	for i, city := range c.Cities {
		labels[i] = city.Label()
	}
	return labels
}
