package emit

import (
	"bytes"
	"embed"
	"fmt"
	"go/format"
	"strconv"
	"strings"
	"text/template"
)

//go:embed templates/*.go.tmpl
var templateFS embed.FS

// Template names, without the .go.tmpl suffix.
const (
	tmplBiomes   = "biomes"
	tmplHexes    = "hexes"
	tmplHex      = "hex"
	tmplRegions  = "regions"
	tmplRegion   = "region"
	tmplDungeons = "dungeons"
	tmplDungeon  = "dungeon"
	tmplArea     = "area"
	tmplDialogue = "dialogue"
	tmplNPC      = "npc"
)

var funcs = template.FuncMap{
	"quote": strconv.Quote,
	"strs":  goStrings,
	"ints":  goInts,
	"float": goFloat,
}

var defaultTemplates = template.Must(template.New("worldgen").Funcs(funcs).ParseFS(templateFS, "templates/*.go.tmpl"))

// render executes the named template and gofmts the result.
func render(t *template.Template, name string, data any) ([]byte, error) {
	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, name+".go.tmpl", data); err != nil {
		return nil, fmt.Errorf("execute %s: %w", name, err)
	}
	src, err := format.Source(buf.Bytes())
	if err != nil {
		return nil, fmt.Errorf("format %s: %w", name, err)
	}
	return src, nil
}

func goStrings(ss []string) string {
	if len(ss) == 0 {
		return "nil"
	}
	quoted := make([]string, len(ss))
	for i, s := range ss {
		quoted[i] = strconv.Quote(s)
	}
	return "[]string{" + strings.Join(quoted, ", ") + "}"
}

func goInts(ns []int) string {
	if len(ns) == 0 {
		return "nil"
	}
	parts := make([]string, len(ns))
	for i, n := range ns {
		parts[i] = strconv.Itoa(n)
	}
	return "[]int{" + strings.Join(parts, ", ") + "}"
}

func goFloat(f float64) string {
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

// Ident turns a free-form tag into an exported Go identifier: words are
// split on anything that is not a letter or digit and title-cased. A tag
// with no usable characters becomes "Unknown"; a leading digit gets a "B"
// prefix.
func Ident(tag string) string {
	var b strings.Builder
	upper := true
	for _, r := range tag {
		switch {
		case r >= 'a' && r <= 'z':
			if upper {
				r -= 'a' - 'A'
			}
			b.WriteRune(r)
			upper = false
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
			upper = false
		default:
			upper = true
		}
	}
	s := b.String()
	if s == "" {
		return "Unknown"
	}
	if s[0] >= '0' && s[0] <= '9' {
		return "B" + s
	}
	return s
}

// FileID lowercases id and replaces anything outside [a-z0-9] with an
// underscore so it can be embedded in a file name. Distinct ids can map to
// the same FileID; the emitter disambiguates them with a namer.
func FileID(id string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(id) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	if b.Len() == 0 {
		return "x"
	}
	return b.String()
}

// namer hands out unique names within one namespace. Every name an input
// produces on its own is reserved up front, so a suffixed duplicate never
// takes a name that belongs to another input.
type namer struct {
	sep      string
	reserved map[string]bool
	used     map[string]bool
}

func newNamer(sep string, natural []string) *namer {
	n := &namer{sep: sep, reserved: make(map[string]bool, len(natural)), used: map[string]bool{}}
	for _, s := range natural {
		n.reserved[s] = true
	}
	return n
}

// name returns base the first time it is asked for, then base<sep>2,
// base<sep>3 and so on, skipping reserved names.
func (n *namer) name(base string) string {
	if !n.used[base] {
		n.used[base] = true
		return base
	}
	for i := 2; ; i++ {
		c := base + n.sep + strconv.Itoa(i)
		if !n.used[c] && !n.reserved[c] {
			n.used[c] = true
			return c
		}
	}
}
