package assets

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/julianshen/worldforge/internal/manifest"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func modelsFixture(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "props", "Barrel.obj"), "mtllib barrel.mtl\nv 0 0 0\n")
	writeFile(t, filepath.Join(dir, "props", "barrel.mtl"), "newmtl wood\nmap_Kd -s 1 1 1 tex/wood.png\nmap_Bump ../../outside.png\n")
	writeFile(t, filepath.Join(dir, "props", "tex", "wood.png"), "PNG")
	writeFile(t, filepath.Join(dir, "rock.obj"), "mtllib rock.mtl\nv 1 1 1\n")
	writeFile(t, filepath.Join(dir, "notes.txt"), "ignored")
	return dir
}

func TestStageCopiesFamilies(t *testing.T) {
	models := modelsFixture(t)
	out := t.TempDir()
	m, err := manifest.Load(filepath.Join(out, "manifest.json"))
	require.NoError(t, err)

	res, err := Stage(context.Background(), m, models, out, Options{})
	require.NoError(t, err)
	require.Len(t, res.Models, 2)
	assert.Equal(t, 2, res.Staged)

	barrel := res.Models[0]
	assert.Equal(t, "props_barrel", barrel.Name)
	assert.Equal(t, []string{"Barrel.obj", "barrel.mtl", filepath.Join("tex", "wood.png")}, barrel.Members)
	staged := filepath.Join(out, "assets", "models", "props_barrel")
	assert.FileExists(t, filepath.Join(staged, "Barrel.obj"))
	assert.FileExists(t, filepath.Join(staged, "barrel.mtl"))
	assert.FileExists(t, filepath.Join(staged, "tex", "wood.png"))

	// rock.mtl is missing, outside.png escapes: both are warned about.
	assert.Len(t, res.Warnings, 2)
	assert.FileExists(t, filepath.Join(out, "assets", "models", "rock", "rock.obj"))
}

func TestStageSkipsUnchangedAndRestagesOnTextureChange(t *testing.T) {
	models := modelsFixture(t)
	out := t.TempDir()
	manPath := filepath.Join(out, "manifest.json")
	ctx := context.Background()

	m, err := manifest.Load(manPath)
	require.NoError(t, err)
	_, err = Stage(ctx, m, models, out, Options{Concurrency: 1})
	require.NoError(t, err)
	require.NoError(t, m.Save())

	m, err = manifest.Load(manPath)
	require.NoError(t, err)
	res, err := Stage(ctx, m, models, out, Options{})
	require.NoError(t, err)
	assert.Zero(t, res.Staged)
	assert.Equal(t, 2, res.Skipped)
	require.NoError(t, m.Save())

	writeFile(t, filepath.Join(models, "props", "tex", "wood.png"), "PNG v2")
	m, err = manifest.Load(manPath)
	require.NoError(t, err)
	res, err = Stage(ctx, m, models, out, Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Staged)
	assert.True(t, res.Models[0].Staged)
	data, err := os.ReadFile(filepath.Join(out, "assets", "models", "props_barrel", "tex", "wood.png"))
	require.NoError(t, err)
	assert.Equal(t, "PNG v2", string(data))
}

func TestStageMissingModelsDir(t *testing.T) {
	out := t.TempDir()
	m, err := manifest.Load(filepath.Join(out, "manifest.json"))
	require.NoError(t, err)
	res, err := Stage(context.Background(), m, filepath.Join(out, "nope"), out, Options{})
	require.NoError(t, err)
	assert.Empty(t, res.Models)
}

func TestModelName(t *testing.T) {
	assert.Equal(t, "props_barrel", ModelName(filepath.Join("props", "Barrel.obj")))
	assert.Equal(t, "rock", ModelName("rock.obj"))
}

func TestStageHonoursExcludePatterns(t *testing.T) {
	models := modelsFixture(t)
	out := t.TempDir()
	m, err := manifest.Load(filepath.Join(out, "manifest.json"))
	require.NoError(t, err)

	res, err := Stage(context.Background(), m, models, out, Options{Exclude: []string{"props/**"}})
	require.NoError(t, err)
	require.Len(t, res.Models, 1)
	assert.Equal(t, "rock", res.Models[0].Name)
	assert.NoDirExists(t, filepath.Join(out, "assets", "models", "props_barrel"))
}
