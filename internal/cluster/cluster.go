// Package cluster groups classified entities by category and canonical
// name, lays them out on disk and derives each cluster's schema.
package cluster

import (
	"cmp"
	"context"
	"slices"
	"strings"

	"github.com/julianshen/worldforge/internal/aianalysis"
	"github.com/julianshen/worldforge/internal/classify"
	"github.com/julianshen/worldforge/internal/logger"
	"github.com/julianshen/worldforge/internal/mapdata"
	"github.com/julianshen/worldforge/internal/patterns"
	"github.com/julianshen/worldforge/internal/world"
)

// JSONClusterName names the pseudo-cluster holding every JSON entity.
const JSONClusterName = "json"

// Key identifies a cluster.
type Key struct {
	Category classify.Category `json:"category"`
	Name     string            `json:"name"`
}

// Cluster is a group of entities sharing category and canonical name.
type Cluster struct {
	Key
	Slug    string   `json:"slug"`
	Members []string `json:"members"`
}

// Options configures Build.
type Options struct {
	// AnalysisDir is the root of the canonical layout. Empty skips writing.
	AnalysisDir string
}

// Result is the clustering outcome.
type Result struct {
	Clusters      []Cluster
	Uncategorized []string
	// Schemas maps category to its merged field schema.
	Schemas map[classify.Category][]SchemaField
	Graph   *world.Graph
	Layout  LayoutStats
}

// Cluster returns the cluster for key.
func (r *Result) Cluster(k Key) (Cluster, bool) {
	for _, c := range r.Clusters {
		if c.Key == k {
			return c, true
		}
	}
	return Cluster{}, false
}

// InCategory returns the clusters of category in name order.
func (r *Result) InCategory(cat classify.Category) []Cluster {
	var out []Cluster
	for _, c := range r.Clusters {
		if c.Category == cat {
			out = append(out, c)
		}
	}
	return out
}

// Group partitions entities into clusters and the uncategorized bucket.
// Clusters are ordered by category, then name; members by uuid.
func Group(entities []classify.RawEntity) ([]Cluster, []string) {
	byKey := map[Key]*Cluster{}
	var uncategorized []string
	for _, e := range entities {
		var k Key
		switch {
		case e.Category == classify.CategoryUnknown:
			uncategorized = append(uncategorized, e.UUID)
			continue
		case e.Category == classify.CategoryJSON:
			k = Key{Category: classify.CategoryJSON, Name: JSONClusterName}
		case e.Name == "":
			uncategorized = append(uncategorized, e.UUID)
			continue
		default:
			k = Key{Category: e.Category, Name: e.Name}
		}
		c, ok := byKey[k]
		if !ok {
			c = &Cluster{Key: k, Slug: Slug(k.Name)}
			byKey[k] = c
		}
		c.Members = append(c.Members, e.UUID)
	}

	out := make([]Cluster, 0, len(byKey))
	for _, c := range byKey {
		slices.Sort(c.Members)
		out = append(out, *c)
	}
	slices.SortFunc(out, func(a, b Cluster) int {
		return cmp.Or(
			cmp.Compare(categoryRank(a.Category), categoryRank(b.Category)),
			cmp.Compare(a.Name, b.Name),
		)
	})
	slices.Sort(uncategorized)
	return out, uncategorized
}

func categoryRank(c classify.Category) int {
	if i := slices.Index(classify.Categories, c); i >= 0 {
		return i
	}
	return len(classify.Categories)
}

// Slug lowercases name and folds every run of characters outside [a-z0-9]
// into one underscore.
func Slug(name string) string {
	var b strings.Builder
	pending := false
	for _, r := range strings.ToLower(name) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			if pending && b.Len() > 0 {
				b.WriteByte('_')
			}
			pending = false
			b.WriteRune(r)
			continue
		}
		pending = true
	}
	if b.Len() == 0 {
		return "unnamed"
	}
	return b.String()
}

// Build groups entities, writes the canonical layout, merges cluster
// schemas and derives the entity graph.
func Build(ctx context.Context, entities []classify.RawEntity, m *mapdata.World, tables []patterns.TableSchema, inventory map[string][]aianalysis.Field, opts Options) (*Result, error) {
	clusters, uncategorized := Group(entities)
	res := &Result{
		Clusters:      clusters,
		Uncategorized: uncategorized,
		Schemas:       MergeSchemas(tables, inventory),
	}

	if opts.AnalysisDir != "" {
		byUUID := make(map[string]classify.RawEntity, len(entities))
		for _, e := range entities {
			byUUID[e.UUID] = e
		}
		stats, err := WriteLayout(ctx, opts.AnalysisDir, clusters, byUUID, res.Schemas)
		if err != nil {
			return nil, err
		}
		res.Layout = stats
	}

	res.Graph = world.BuildGraph(entities, m)
	logger.Info("clusters built",
		"clusters", len(clusters),
		"uncategorized", len(uncategorized),
		"edges", len(res.Graph.Edges()),
		"written", res.Layout.Written,
		"pruned", res.Layout.Pruned)
	return res, nil
}
