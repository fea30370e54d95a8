// Package seeds loads the read-only library of thematic text, name
// fragments and archetype, quest and trait templates that code emission
// draws on, and assigns regions their place on the corruption curve.
package seeds

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/Masterminds/semver/v3"
	"gopkg.in/yaml.v3"

	"github.com/julianshen/worldforge/internal/fsutil"
	"github.com/julianshen/worldforge/internal/logger"
	"github.com/julianshen/worldforge/internal/worlderr"
)

//go:embed bundle/*.yaml
var bundle embed.FS

// Compatible is the bundle version range this build understands.
const Compatible = "^1"

// DefaultTag keys templates that apply to any region type.
const DefaultTag = "default"

// Bundle files.
const (
	IndexFile       = "seeds.yaml"
	LiteratureFile  = "literature.yaml"
	LinguisticsFile = "linguistics.yaml"
	ArchetypesFile  = "archetypes.yaml"
	QuestsFile      = "quests.yaml"
	TraitsFile      = "traits.yaml"
)

var bundleFiles = []string{IndexFile, LiteratureFile, LinguisticsFile, ArchetypesFile, QuestsFile, TraitsFile}

// Index is the bundle's seeds.yaml.
type Index struct {
	Version     string              `yaml:"version"`
	Themes      []string            `yaml:"themes"`
	RegionTypes []string            `yaml:"region_types"`
	Biomes      map[string]string   `yaml:"biomes"`
	Weather     map[string][]string `yaml:"weather"`
}

// Archetype is an NPC template.
type Archetype struct {
	Name     string   `yaml:"name"`
	Tags     []string `yaml:"tags"`
	Greeting string   `yaml:"greeting"`
	Farewell string   `yaml:"farewell"`
}

// QuestPattern is a quest template gated by act and corruption level.
type QuestPattern struct {
	Name          string   `yaml:"name"`
	Tags          []string `yaml:"tags"`
	MinAct        int      `yaml:"min_act"`
	MaxAct        int      `yaml:"max_act"`
	MinCorruption float64  `yaml:"min_corruption"`
	MaxCorruption float64  `yaml:"max_corruption"`
	Template      string   `yaml:"template"`
}

// Eligible reports whether the quest may be offered at act and level.
func (q QuestPattern) Eligible(act int, level float64) bool {
	return act >= q.MinAct && act <= q.MaxAct && level >= q.MinCorruption && level <= q.MaxCorruption
}

// TraitTemplate is a personality trait keyed by theme.
type TraitTemplate struct {
	Name string   `yaml:"name"`
	Tags []string `yaml:"tags"`
	Text string   `yaml:"text"`
}

// Library is a loaded, indexed seed bundle. It is read-only.
type Library struct {
	Index       Index
	literature  map[string][]string
	linguistics map[string][]string
	archetypes  []Archetype
	quests      []QuestPattern
	traits      []TraitTemplate
	biomeKeys   []string
}

// EnsureCache initialises dir from the bundled defaults when it holds no
// seed index yet. Existing caches are never modified. It reports whether
// the cache was created.
func EnsureCache(dir string) (bool, error) {
	if fsutil.Exists(filepath.Join(dir, IndexFile)) {
		return false, nil
	}
	for _, name := range bundleFiles {
		data, err := bundle.ReadFile("bundle/" + name)
		if err != nil {
			return false, fmt.Errorf("read bundled %s: %w", name, err)
		}
		if err := fsutil.WriteFileAtomic(filepath.Join(dir, name), data, 0o644); err != nil {
			return false, worlderr.New(worlderr.KindIO, "seeds.EnsureCache", err)
		}
	}
	logger.Info("seeds cache initialised", "dir", dir)
	return true, nil
}

// Load reads the bundle in dir. An empty dir loads the bundled defaults.
func Load(dir string) (*Library, error) {
	var fsys fs.FS
	if dir == "" {
		sub, err := fs.Sub(bundle, "bundle")
		if err != nil {
			return nil, err
		}
		fsys = sub
	} else {
		fsys = os.DirFS(dir)
	}
	return load(fsys)
}

// Default loads the bundled defaults.
func Default() (*Library, error) {
	return Load("")
}

func load(fsys fs.FS) (*Library, error) {
	lib := &Library{}
	if err := decode(fsys, IndexFile, &lib.Index); err != nil {
		return nil, err
	}
	if err := checkVersion(lib.Index.Version); err != nil {
		return nil, err
	}
	for _, f := range []struct {
		name string
		dst  any
	}{
		{LiteratureFile, &lib.literature},
		{LinguisticsFile, &lib.linguistics},
		{ArchetypesFile, &lib.archetypes},
		{QuestsFile, &lib.quests},
		{TraitsFile, &lib.traits},
	} {
		if err := decode(fsys, f.name, f.dst); err != nil {
			return nil, err
		}
	}
	if err := lib.validate(); err != nil {
		return nil, err
	}

	for k := range lib.Index.Biomes {
		lib.biomeKeys = append(lib.biomeKeys, k)
	}
	// Longest key first so the most specific match wins.
	slices.SortFunc(lib.biomeKeys, func(a, b string) int {
		if len(a) != len(b) {
			return len(b) - len(a)
		}
		return strings.Compare(a, b)
	})
	return lib, nil
}

func decode(fsys fs.FS, name string, dst any) error {
	data, err := fs.ReadFile(fsys, name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("seed bundle is missing %s: %w", name, err)
		}
		return fmt.Errorf("read %s: %w", name, err)
	}
	if err := yaml.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("parse %s: %w", name, err)
	}
	return nil
}

func checkVersion(v string) error {
	if v == "" {
		return fmt.Errorf("seed bundle: version is required")
	}
	sv, err := semver.NewVersion(v)
	if err != nil {
		return fmt.Errorf("seed bundle: invalid version %q: %w", v, err)
	}
	c, err := semver.NewConstraint(Compatible)
	if err != nil {
		return err
	}
	if !c.Check(sv) {
		return fmt.Errorf("seed bundle version %s does not satisfy %s", v, Compatible)
	}
	return nil
}

func (l *Library) validate() error {
	for _, q := range l.quests {
		if q.MinAct < 1 || q.MaxAct > 3 || q.MinAct > q.MaxAct {
			return fmt.Errorf("quest %s: act range %d..%d outside 1..3", q.Name, q.MinAct, q.MaxAct)
		}
		if q.MinCorruption > q.MaxCorruption {
			return fmt.Errorf("quest %s: corruption range is inverted", q.Name)
		}
	}
	for _, a := range l.archetypes {
		if a.Name == "" {
			return fmt.Errorf("archetype without a name")
		}
	}
	return nil
}

// LiteratureByTheme returns the titles for theme.
func (l *Library) LiteratureByTheme(theme string) []string {
	return l.literature[theme]
}

// LinguisticPatterns returns the fragments for a region type.
func (l *Library) LinguisticPatterns(regionType string) []string {
	return l.linguistics[regionType]
}

// Archetypes returns the archetypes tagged with tag, falling back to the
// default-tagged ones.
func (l *Library) Archetypes(tag string) []Archetype {
	return byTag(l.archetypes, tag, func(a Archetype) []string { return a.Tags })
}

// QuestPatterns returns the quests tagged with tag or default.
func (l *Library) QuestPatterns(tag string) []QuestPattern {
	var out []QuestPattern
	for _, q := range l.quests {
		if slices.Contains(q.Tags, tag) || slices.Contains(q.Tags, DefaultTag) {
			out = append(out, q)
		}
	}
	return out
}

// EligibleQuests filters QuestPatterns(tag) by act and corruption level.
func (l *Library) EligibleQuests(tag string, act int, level float64) []QuestPattern {
	var out []QuestPattern
	for _, q := range l.QuestPatterns(tag) {
		if q.Eligible(act, level) {
			out = append(out, q)
		}
	}
	return out
}

// TraitTemplates returns the traits tagged with a theme.
func (l *Library) TraitTemplates(tag string) []TraitTemplate {
	return byTag(l.traits, tag, func(t TraitTemplate) []string { return t.Tags })
}

func byTag[T any](items []T, tag string, tags func(T) []string) []T {
	var out, fallback []T
	for _, it := range items {
		switch {
		case slices.Contains(tags(it), tag):
			out = append(out, it)
		case slices.Contains(tags(it), DefaultTag):
			fallback = append(fallback, it)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}

// RegionType maps a snapshot biome tag onto the library's region types.
// Unmatched biomes map to the first region type.
func (l *Library) RegionType(biome string) string {
	b := strings.ToLower(biome)
	for _, k := range l.biomeKeys {
		if strings.Contains(b, k) {
			return l.Index.Biomes[k]
		}
	}
	if len(l.Index.RegionTypes) > 0 {
		return l.Index.RegionTypes[0]
	}
	return DefaultTag
}

// WeatherFor returns the weather condition of a region type at a dread
// band: conditions are listed calmest first and the band picks one,
// clamped to the list.
func (l *Library) WeatherFor(regionType string, dread int) string {
	conds := l.Index.Weather[regionType]
	if len(conds) == 0 {
		return "clear"
	}
	return conds[min(max(dread, 0), len(conds)-1)]
}

// Sizes reports how many entries each index holds.
func (l *Library) Sizes() map[string]int {
	count := func(m map[string][]string) int {
		n := 0
		for _, v := range m {
			n += len(v)
		}
		return n
	}
	return map[string]int{
		"themes":       len(l.Index.Themes),
		"region_types": len(l.Index.RegionTypes),
		"literature":   count(l.literature),
		"linguistics":  count(l.linguistics),
		"archetypes":   len(l.archetypes),
		"quests":       len(l.quests),
		"traits":       len(l.traits),
	}
}
