package cluster

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/julianshen/worldforge/internal/classify"
	"github.com/julianshen/worldforge/internal/fsutil"
	"github.com/julianshen/worldforge/internal/worlderr"
)

// LayoutStats counts what a layout pass did.
type LayoutStats struct {
	Written   int `json:"written"`
	Unchanged int `json:"unchanged"`
	Pruned    int `json:"pruned"`
}

// SchemaFile is the per-category schema written beside the clusters.
const SchemaFile = "schema.json"

// EntityPath returns the canonical path of e inside cluster c:
// <root>/<category>/<slug>/entity_<uuid>.<ext>. The JSON pseudo-cluster
// follows the same layout under json/json/.
func EntityPath(root string, c Cluster, e classify.RawEntity) string {
	return filepath.Join(root, c.Category.Plural(), c.Slug, "entity_"+e.UUID+"."+e.Ext())
}

// WriteLayout writes every cluster member under root. Files that already
// hold the right bytes are not touched; entity files no cluster claims any
// more are removed.
func WriteLayout(ctx context.Context, root string, clusters []Cluster, byUUID map[string]classify.RawEntity, schemas map[classify.Category][]SchemaField) (LayoutStats, error) {
	var stats LayoutStats
	want := map[string]bool{}
	write := func(path string, data []byte) error {
		wrote, err := fsutil.WriteIfChanged(path, data, 0o644)
		if err != nil {
			return worlderr.New(worlderr.KindIO, "cluster.WriteLayout", err)
		}
		want[path] = true
		if wrote {
			stats.Written++
		} else {
			stats.Unchanged++
		}
		return nil
	}

	for _, c := range clusters {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		for _, id := range c.Members {
			e, ok := byUUID[id]
			if !ok {
				return stats, fmt.Errorf("cluster %s/%s: member %s not found", c.Category, c.Name, id)
			}
			if err := write(EntityPath(root, c, e), []byte(e.Value)); err != nil {
				return stats, err
			}
		}
	}
	for _, cat := range classify.Categories {
		fields, ok := schemas[cat]
		if !ok {
			continue
		}
		data, err := json.MarshalIndent(fields, "", "  ")
		if err != nil {
			return stats, fmt.Errorf("encode %s schema: %w", cat, err)
		}
		if err := write(filepath.Join(root, cat.Plural(), SchemaFile), append(data, '\n')); err != nil {
			return stats, err
		}
	}

	pruned, err := prune(root, want)
	stats.Pruned = pruned
	if err != nil {
		return stats, worlderr.New(worlderr.KindIO, "cluster.WriteLayout", err)
	}
	return stats, nil
}

// prune removes stale entity files under the category directories.
func prune(root string, want map[string]bool) (int, error) {
	n := 0
	for _, cat := range classify.Categories {
		dir := filepath.Join(root, cat.Plural())
		files, err := fsutil.CollectFiles(dir, nil)
		if err != nil {
			return n, err
		}
		for _, rel := range files {
			if !strings.HasPrefix(filepath.Base(rel), "entity_") {
				continue
			}
			path := filepath.Join(dir, rel)
			if want[path] {
				continue
			}
			if err := os.Remove(path); err != nil {
				return n, err
			}
			n++
		}
		if err := fsutil.RemoveEmptyDirs(dir); err != nil {
			return n, err
		}
	}
	return n, nil
}
