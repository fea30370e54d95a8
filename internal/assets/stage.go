// Package assets stages 3D model families for the adjacent tool: each OBJ
// under the models directory is copied, with the material libraries and
// textures it references, into its own directory under the output root.
// A family is only recopied when its OBJ-family hash changes.
package assets

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/sourcegraph/conc/pool"

	"github.com/julianshen/worldforge/internal/fsutil"
	"github.com/julianshen/worldforge/internal/logger"
	"github.com/julianshen/worldforge/internal/manifest"
	"github.com/julianshen/worldforge/internal/worlderr"
)

const component = "assets"

// ModelsDir is the staging directory under the output root.
const ModelsDir = "assets/models"

// Options tunes staging.
type Options struct {
	// Concurrency bounds the families staged at once.
	Concurrency int
	// Exclude lists glob patterns of OBJ paths, relative to the models
	// directory, that are never staged. "dir/**" excludes a subtree.
	Exclude []string
}

// Model is one staged family.
type Model struct {
	Name        string   `json:"name"`
	Source      string   `json:"source"`
	Destination string   `json:"destination"`
	Members     []string `json:"members"`
	Staged      bool     `json:"staged"`
}

// Result summarises a staging run.
type Result struct {
	Models   []Model            `json:"models"`
	Staged   int                `json:"staged"`
	Skipped  int                `json:"skipped"`
	Warnings []worlderr.Warning `json:"warnings,omitempty"`
}

// Stage copies every OBJ family under modelsDir into outDir through m.
// A missing models directory stages nothing. Families whose members escape
// the OBJ's directory or are missing are staged without those members and
// warned about.
func Stage(ctx context.Context, m *manifest.Manifest, modelsDir, outDir string, opts Options) (*Result, error) {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	objs, err := fsutil.CollectFiles(modelsDir, []string{".obj"})
	if err != nil {
		return nil, worlderr.New(worlderr.KindIO, "assets.Stage", err)
	}
	objs = slices.DeleteFunc(objs, func(rel string) bool {
		return fsutil.IsExcluded(filepath.ToSlash(rel), opts.Exclude)
	})

	res := &Result{Models: make([]Model, len(objs))}
	var mu sync.Mutex
	warn := func(subject, format string, args ...any) {
		mu.Lock()
		defer mu.Unlock()
		res.Warnings = append(res.Warnings, worlderr.Warnf(worlderr.KindIO, component, subject, format, args...))
	}

	p := pool.New().WithContext(ctx).WithMaxGoroutines(opts.Concurrency)
	for i, rel := range objs {
		p.Go(func(ctx context.Context) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			model, err := stageOne(m, modelsDir, outDir, rel, warn)
			if err != nil {
				return err
			}
			res.Models[i] = model
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		return nil, err
	}

	for _, model := range res.Models {
		if model.Staged {
			res.Staged++
		} else {
			res.Skipped++
		}
	}
	logger.Info("models staged", "models", len(res.Models), "staged", res.Staged, "skipped", res.Skipped)
	return res, nil
}

func stageOne(m *manifest.Manifest, modelsDir, outDir, rel string, warn func(string, string, ...any)) (Model, error) {
	obj := filepath.Join(modelsDir, rel)
	name := ModelName(rel)
	model := Model{
		Name:        name,
		Source:      obj,
		Destination: filepath.Join(outDir, filepath.FromSlash(ModelsDir), name, filepath.Base(obj)),
	}

	mtls, textures, err := manifest.OBJFamily(obj)
	if err != nil {
		return Model{}, worlderr.New(worlderr.KindIO, "assets.OBJFamily", err)
	}
	srcDir := filepath.Dir(obj)
	model.Members = []string{filepath.Base(obj)}
	for _, member := range append(mtls, textures...) {
		if !filepath.IsLocal(member) {
			warn(filepath.ToSlash(rel), "member %s escapes the model directory", filepath.ToSlash(member))
			continue
		}
		if !fsutil.Exists(filepath.Join(srcDir, member)) {
			warn(filepath.ToSlash(rel), "member %s is missing", filepath.ToSlash(member))
			continue
		}
		model.Members = append(model.Members, member)
	}

	hash, err := manifest.HashOBJFamily(obj)
	if err != nil {
		return Model{}, worlderr.New(worlderr.KindIO, "assets.HashOBJFamily", err)
	}
	dstDir := filepath.Dir(model.Destination)
	model.Staged, err = m.Sync(manifest.Candidate{
		Key:         "model:" + filepath.ToSlash(rel),
		Hash:        hash,
		Destination: model.Destination,
	}, func(string) error {
		return copyMembers(srcDir, dstDir, model.Members)
	})
	if err != nil {
		return Model{}, worlderr.New(worlderr.KindIO, "assets.Stage", err)
	}
	return model, nil
}

// copyMembers copies the OBJ last so an interrupted copy never leaves a
// destination OBJ next to stale materials.
func copyMembers(srcDir, dstDir string, members []string) error {
	for i := len(members) - 1; i >= 0; i-- {
		data, err := os.ReadFile(filepath.Join(srcDir, members[i]))
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return err
		}
		if err := fsutil.WriteFileAtomic(filepath.Join(dstDir, members[i]), data, 0o644); err != nil {
			return err
		}
	}
	return nil
}

// ModelName derives a family's directory name from the OBJ path relative
// to the models directory: the extension is dropped and separators become
// underscores.
func ModelName(rel string) string {
	rel = filepath.ToSlash(strings.TrimSuffix(rel, filepath.Ext(rel)))
	return strings.ToLower(strings.ReplaceAll(rel, "/", "_"))
}
