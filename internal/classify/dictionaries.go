package classify

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed dictionaries.yaml
var defaultDictionaries []byte

// Dictionaries holds the curated canonical names per category.
type Dictionaries struct {
	Regions     []string `yaml:"regions"`
	Settlements []string `yaml:"settlements"`
	Factions    []string `yaml:"factions"`
	Dungeons    []string `yaml:"dungeons"`
}

// DefaultDictionaries returns the bundled dictionaries.
func DefaultDictionaries() Dictionaries {
	d, err := ParseDictionaries(defaultDictionaries)
	if err != nil {
		panic(fmt.Sprintf("bundled dictionaries: %v", err))
	}
	return d
}

// ParseDictionaries decodes a YAML dictionary document.
func ParseDictionaries(data []byte) (Dictionaries, error) {
	var d Dictionaries
	if err := yaml.Unmarshal(data, &d); err != nil {
		return Dictionaries{}, fmt.Errorf("parse dictionaries: %w", err)
	}
	return d, nil
}

// LoadDictionaries reads a dictionary file. An empty path yields the
// bundled defaults.
func LoadDictionaries(path string) (Dictionaries, error) {
	if path == "" {
		return DefaultDictionaries(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Dictionaries{}, fmt.Errorf("read dictionaries %s: %w", path, err)
	}
	return ParseDictionaries(data)
}

// ordered returns the category lists in classification priority order.
func (d Dictionaries) ordered() []dictionary {
	return []dictionary{
		{category: CategoryRegion, names: d.Regions},
		{category: CategorySettlement, names: d.Settlements},
		{category: CategoryFaction, names: d.Factions},
		{category: CategoryDungeon, names: d.Dungeons},
	}
}

type dictionary struct {
	category Category
	names    []string
}

// Names returns the names for category, or nil.
func (d Dictionaries) Names(c Category) []string {
	for _, dict := range d.ordered() {
		if dict.category == c {
			return dict.names
		}
	}
	return nil
}
