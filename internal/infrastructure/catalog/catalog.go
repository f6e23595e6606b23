// Package catalog holds the garments a session can be submitted with.
package catalog

import (
	_ "embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kirillkom/virtual-fitting/internal/core/domain"
)

//go:embed garments.yaml
var builtin []byte

type Catalog struct {
	items []domain.Garment
	byID  map[string]int
}

type catalogFile struct {
	Garments []domain.Garment `yaml:"garments"`
}

// Default returns the compiled-in catalog.
func Default() (*Catalog, error) {
	return Parse(builtin)
}

// Parse reads a catalog document. Ids must be unique and non-empty.
func Parse(data []byte) (*Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	c := &Catalog{byID: make(map[string]int, len(file.Garments))}
	for _, g := range file.Garments {
		g.ID = strings.TrimSpace(g.ID)
		if g.ID == "" {
			return nil, domain.WrapError(domain.ErrInvalidInput, "parse catalog", fmt.Errorf("garment %q has no id", g.Name))
		}
		if _, dup := c.byID[g.ID]; dup {
			return nil, domain.WrapError(domain.ErrInvalidInput, "parse catalog", fmt.Errorf("duplicate garment id %q", g.ID))
		}
		c.byID[g.ID] = len(c.items)
		c.items = append(c.items, g)
	}
	return c, nil
}

func (c *Catalog) List() []domain.Garment {
	out := make([]domain.Garment, len(c.items))
	copy(out, c.items)
	return out
}

func (c *Catalog) Lookup(id string) (domain.Garment, bool) {
	idx, ok := c.byID[strings.TrimSpace(id)]
	if !ok {
		return domain.Garment{}, false
	}
	return c.items[idx], true
}
