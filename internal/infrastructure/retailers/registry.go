// Package retailers resolves backend retailer keys to display metadata.
package retailers

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
	"unicode"

	"github.com/pricelens/gateway/internal/domain"
	"gopkg.in/yaml.v3"
)

//go:embed retailers.yaml
var defaultTable []byte

type tableFile struct {
	Fallback  domain.RetailerInfo   `yaml:"fallback"`
	Retailers []domain.RetailerInfo `yaml:"retailers"`
}

// Registry is an immutable lookup table keyed by lowercase retailer key
type Registry struct {
	entries  map[string]domain.RetailerInfo
	fallback domain.RetailerInfo
}

// Default returns the registry built from the embedded table
func Default() *Registry {
	r, err := Parse(defaultTable)
	if err != nil {
		panic(fmt.Sprintf("retailers: embedded table is invalid: %v", err))
	}
	return r
}

// Load reads a retailer table from path. An empty path returns the default table.
func Load(path string) (*Registry, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read retailer table: %w", err)
	}
	return Parse(data)
}

// Parse builds a registry from YAML
func Parse(data []byte) (*Registry, error) {
	var file tableFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse retailer table: %w", err)
	}

	r := &Registry{
		entries:  make(map[string]domain.RetailerInfo, len(file.Retailers)),
		fallback: file.Fallback,
	}
	for i, entry := range file.Retailers {
		key := strings.ToLower(strings.TrimSpace(entry.Key))
		if key == "" {
			return nil, fmt.Errorf("retailer entry %d has no key", i)
		}
		if _, dup := r.entries[key]; dup {
			return nil, fmt.Errorf("duplicate retailer key %q", key)
		}
		entry.Key = key
		if entry.Name == "" {
			entry.Name = titleCase(key)
		}
		r.entries[key] = entry
	}
	return r, nil
}

// Lookup returns metadata for key. Unknown keys get the fallback logo and a
// name derived from the key itself.
func (r *Registry) Lookup(key string) domain.RetailerInfo {
	normalized := strings.ToLower(strings.TrimSpace(key))
	if entry, ok := r.entries[normalized]; ok {
		return entry
	}
	return domain.RetailerInfo{
		Key:  normalized,
		Name: titleCase(normalized),
		Logo: r.fallback.Logo,
	}
}

// Len returns the number of configured retailers
func (r *Registry) Len() int {
	return len(r.entries)
}

// titleCase turns "vijay_sales" or "vijay-sales" into "Vijay Sales"
func titleCase(key string) string {
	words := strings.FieldsFunc(key, func(c rune) bool {
		return c == '_' || c == '-' || unicode.IsSpace(c)
	})
	for i, w := range words {
		runes := []rune(w)
		runes[0] = unicode.ToUpper(runes[0])
		words[i] = string(runes)
	}
	return strings.Join(words, " ")
}
