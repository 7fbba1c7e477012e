// Package catalog knows the icons of the preset business contexts.
package catalog

import (
	"github.com/chatscope/chatscope/internal/errors"
	"github.com/chatscope/chatscope/internal/models"
	"gopkg.in/yaml.v3"
	"strings"

	_ "embed"
)

//go:embed businesses.yaml
var businessesYAML []byte

type iconTable struct {
	CDN   string            `yaml:"cdn"`
	Icons map[string]string `yaml:"icons"`
}

// Catalog maps business IDs to icon URLs.
type Catalog struct {
	icons map[string]string
}

// Business is a preset business with its icon. IconURL is empty for businesses without a known icon.
type Business struct {
	models.Business
	IconURL string
}

// Load parses the embedded icon table.
func Load() (*Catalog, error) {
	return Parse(businessesYAML)
}

// Parse parses an icon table in the embedded format.
func Parse(data []byte) (*Catalog, error) {
	var table iconTable
	if err := yaml.Unmarshal(data, &table); err != nil {
		return nil, errors.Wrap(err, "parse business icons")
	}
	cdn := strings.TrimSuffix(table.CDN, "/")
	icons := make(map[string]string, len(table.Icons))
	for id, file := range table.Icons {
		icons[strings.ToLower(id)] = cdn + "/" + strings.TrimPrefix(file, "/")
	}
	return &Catalog{icons: icons}, nil
}

// IconURL returns the icon of the business with the given ID, matched case-insensitively.
func (c *Catalog) IconURL(id string) (string, bool) {
	u, ok := c.icons[strings.ToLower(id)]
	return u, ok
}

// Decorate attaches icons to businesses as returned by the backend, keeping their order.
func (c *Catalog) Decorate(businesses []models.Business) []Business {
	decorated := make([]Business, len(businesses))
	for i, b := range businesses {
		u, _ := c.IconURL(b.ID)
		decorated[i] = Business{Business: b, IconURL: u}
	}
	return decorated
}
