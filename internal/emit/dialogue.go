package emit

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"math/rand/v2"
	"strings"
	"text/template"

	"github.com/julianshen/worldforge/internal/hexgrid"
	"github.com/julianshen/worldforge/internal/seeds"
	"github.com/julianshen/worldforge/internal/world"
)

// LineCount is the number of lines between an NPC's greeting and farewell.
const LineCount = 3

type questData struct {
	Name string
	Text string
}

type npcData struct {
	UUID       string
	Name       string
	Settlement string
	Hex        string
	Archetype  string
	Tone       string
	Trait      string
	Lines      []string
	Quest      *questData
}

// rngFor seeds a PCG source from the sha256 of id so every NPC draws the
// same sequence on every run.
func rngFor(id string) *rand.Rand {
	sum := sha256.Sum256([]byte(id))
	return rand.New(rand.NewPCG(binary.LittleEndian.Uint64(sum[:8]), binary.LittleEndian.Uint64(sum[8:16])))
}

// dialogueFor generates the dialogue of one NPC node. The draw order is
// fixed: archetype, fragments, literature, trait, quest.
func (r *run) dialogueFor(n world.Node) (npcData, error) {
	g, m, lib := r.in.Graph, r.in.Map, r.in.Seeds
	rng := rngFor(n.UUID)

	d := npcData{UUID: n.UUID, Name: n.Name}
	place := ""
	for _, e := range g.OutOfKind(n.UUID, world.NPCInSettlement) {
		if s, ok := g.Node(e.Target); ok {
			d.Settlement = s.UUID
			place = s.Name
			break
		}
	}

	biome := ""
	placement := seeds.PlacementFor(n.UUID)
	if c, ok := g.Location(n.UUID); ok {
		d.Hex = hexgrid.EncodeToken(c)
		if t, ok := m.TileAt(c); ok {
			biome = t.Biome
			placement = seeds.PlacementFor(world.PlacementKey(t))
			if place == "" {
				place = m.Regions[t.Region]
			}
		}
		if place == "" {
			place = d.Hex
		}
	}
	if place == "" {
		place = "the wilds"
	}
	regionType := lib.RegionType(biome)
	d.Tone = seeds.ToneForBand(placement.Dread)

	greeting, farewell := "Well met.", "Safe roads."
	if archetypes := lib.Archetypes(regionType); len(archetypes) > 0 {
		a := archetypes[rng.IntN(len(archetypes))]
		d.Archetype = a.Name
		if a.Greeting != "" {
			greeting = a.Greeting
		}
		if a.Farewell != "" {
			farewell = a.Farewell
		}
	}

	d.Lines = append(d.Lines, greeting)
	d.Lines = append(d.Lines, drawLines(rng, lib.LinguisticPatterns(regionType), placement.Dread, lib.LiteratureByTheme(d.Tone))...)
	d.Lines = append(d.Lines, farewell)

	if traits := lib.TraitTemplates(d.Tone); len(traits) > 0 {
		d.Trait = traits[rng.IntN(len(traits))].Text
	}

	eligible := lib.EligibleQuests(regionType, placement.Act, placement.Level)
	if len(eligible) > 0 && rng.IntN(2) == 0 {
		q := eligible[rng.IntN(len(eligible))]
		text, err := renderQuest(q, place)
		if err != nil {
			return npcData{}, err
		}
		d.Quest = &questData{Name: q.Name, Text: text}
	}
	return d, nil
}

// drawLines renders LineCount lines. Fragments are listed calmest first
// and the dread band bounds how far into the list a draw may reach. The
// last line cites a title of the tone's literature when there is one.
func drawLines(rng *rand.Rand, fragments []string, dread int, literature []string) []string {
	reach := len(fragments)
	if reach > 0 {
		reach = max(1, (len(fragments)*(dread+1)+seeds.MaxLevel)/(seeds.MaxLevel+1))
	}
	out := make([]string, 0, LineCount)
	for i := range LineCount {
		switch {
		case i == LineCount-1 && len(literature) > 0:
			out = append(out, fmt.Sprintf("Have you read %q? It tells of this place.", literature[rng.IntN(len(literature))]))
		case reach > 0:
			out = append(out, sentence(fragments[rng.IntN(reach)]))
		default:
			out = append(out, "...")
		}
	}
	return out
}

func sentence(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return s
	}
	s = strings.ToUpper(s[:1]) + s[1:]
	if !strings.HasSuffix(s, ".") {
		s += "."
	}
	return s
}

func renderQuest(q seeds.QuestPattern, place string) (string, error) {
	t, err := template.New(q.Name).Option("missingkey=error").Parse(q.Template)
	if err != nil {
		return "", fmt.Errorf("quest %s: %w", q.Name, err)
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, struct{ Place string }{place}); err != nil {
		return "", fmt.Errorf("quest %s: %w", q.Name, err)
	}
	return buf.String(), nil
}
