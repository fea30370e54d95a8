package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/julianshen/worldforge/internal/config"
	"github.com/julianshen/worldforge/internal/output"
	"github.com/julianshen/worldforge/internal/runner"
	"github.com/julianshen/worldforge/internal/snapshot/snapshottest"
	"github.com/julianshen/worldforge/internal/store"
)

// execute runs the root command with an isolated, absent config file.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(append([]string{"--config", filepath.Join(t.TempDir(), "config.toml")}, args...))
	err := cmd.Execute()
	return buf.String(), err
}

func TestVersionString(t *testing.T) {
	s := versionString()
	assert.Contains(t, s, "worldforge")
	assert.Contains(t, s, version)
	assert.Contains(t, s, commit)
	assert.Contains(t, s, date)
}

func TestVersionStringDefaults(t *testing.T) {
	s := versionString()
	assert.Contains(t, s, "dev")
	assert.Contains(t, s, "none")
	assert.Contains(t, s, "unknown")
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, versionString()+"\n", out)
}

func TestLoadConfigAppliesFlags(t *testing.T) {
	configPath = filepath.Join(t.TempDir(), "config.toml")
	modelFlag = "gpt-test"
	logLevelFlag = "debug"
	t.Cleanup(func() { configPath, modelFlag, logLevelFlag = "", "", "" })

	cfg, err := loadConfig()
	require.NoError(t, err)
	assert.Equal(t, "gpt-test", cfg.LLM.Model)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestRunOptionsApply(t *testing.T) {
	cfg := config.DefaultConfig()
	opts := runOptions{strict: true, outDir: "out", reportsDir: "rep", noLLM: true, modelsDir: "models"}
	opts.apply(cfg)

	assert.True(t, cfg.Analysis.Strict)
	assert.Equal(t, "out", cfg.Paths.OutDir)
	assert.Equal(t, "rep", cfg.Paths.ReportsDir)
	assert.Equal(t, "models", cfg.Paths.ModelsDir)
	assert.False(t, cfg.LLM.Enabled)
	assert.Equal(t, config.DefaultConfig().Paths.SeedsDir, cfg.Paths.SeedsDir)
}

func TestNewSubmitter(t *testing.T) {
	st, err := store.NewStore(":memory:")
	require.NoError(t, err)
	defer st.Close()

	cfg := config.DefaultConfig()
	cfg.LLM.Enabled = false
	assert.Nil(t, newSubmitter(cfg, st, false))

	t.Setenv(config.EnvAPIKey, "")
	cfg.LLM.Enabled = true
	assert.NotNil(t, newSubmitter(cfg, st, false), "a missing key still replays the cache")
	assert.NotNil(t, newSubmitter(cfg, st, true))
}

func TestPrintSummaryJSON(t *testing.T) {
	var buf bytes.Buffer
	s := &output.Summary{Command: "ingest", Snapshot: "world.db", Verdict: "ready", Counts: map[string]int{"region": 1}}
	require.NoError(t, printSummary(&buf, s, "json"))

	var got output.Summary
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "ready", got.Verdict)
	assert.Equal(t, 1, got.Counts["region"])
}

func TestPrintSummaryMarkdownToBuffer(t *testing.T) {
	var buf bytes.Buffer
	s := &output.Summary{Command: "ingest", Snapshot: "world.db", Counts: map[string]int{}}
	require.NoError(t, printSummary(&buf, s, "markdown"))
	assert.Contains(t, buf.String(), "world.db")
}

func TestHexCommands(t *testing.T) {
	out, err := execute(t, "hex", "decode", "W2S51")
	require.NoError(t, err)
	assert.Contains(t, out, "x=-2 y=51")

	out, err = execute(t, "hex", "encode", "0", "0")
	require.NoError(t, err)
	assert.Equal(t, "E0S0\n", out)

	out, err = execute(t, "hex", "distance", "E4N10", "E4N9")
	require.NoError(t, err)
	assert.Equal(t, "1\n", out)

	_, err = execute(t, "hex", "decode", "nowhere")
	assert.Error(t, err)

	_, err = execute(t, "hex", "encode", "a", "0")
	assert.Error(t, err)
}

func TestSeedsInitAndShow(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "seeds")

	out, err := execute(t, "seeds", "init", "--dir", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "initialised")

	out, err = execute(t, "seeds", "init", "--dir", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "already present")

	out, err = execute(t, "seeds", "show", "--dir", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "INDEX")
	assert.Contains(t, out, "archetypes")

	bundled, err := execute(t, "seeds", "show", "--bundled")
	require.NoError(t, err)
	assert.Equal(t, out, bundled)
}

func TestRunsCommand(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "runs.db")
	s, err := store.NewStore(dbPath)
	require.NoError(t, err)

	ctx := context.Background()
	started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	id, err := s.StartRun(ctx, "/data/world.db", started)
	require.NoError(t, err)
	require.NoError(t, s.FinishRun(ctx, store.Run{
		ID: id, FinishedAt: started.Add(2 * time.Second), Verdict: "ready",
	}))
	require.NoError(t, s.Close())

	out, err := execute(t, "runs", "--store", dbPath)
	require.NoError(t, err)
	assert.Contains(t, out, "VERDICT")
	assert.Contains(t, out, "/data/world.db")
	assert.Contains(t, out, "ready")
	assert.Contains(t, out, "2s")
}

func TestRunsCommandEmpty(t *testing.T) {
	out, err := execute(t, "runs", "--store", filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	assert.Contains(t, out, "No runs recorded.")
}

func TestIngestMissingSnapshotExitCode(t *testing.T) {
	_, err := execute(t, "ingest", filepath.Join(t.TempDir(), "absent.db"), "--no-llm")
	require.Error(t, err)

	var ee *runner.ExitError
	require.True(t, errors.As(err, &ee))
	assert.Equal(t, runner.ExitSnapshotMissing, ee.Code)
}

const (
	regionUUID     = "6a1f2c3d-4b5e-4f60-8a7b-9c0d1e2f3a4b"
	settlementUUID = "8c3b4e5f-6d70-4182-8c9d-1e2f3a4b5c6d"
)

const mapPayload = `{
  "map": [
    {"x": 0, "y": 0, "type": "ForestHex", "uuid": "t1", "feature": "Village", "feature_uuid": "` + settlementUUID + `", "region": "` + regionUUID + `"}
  ],
  "realms": {},
  "regions": {"` + regionUUID + `": "Aurora Bushes"},
  "borders": {}
}`

func TestAnalyzeCommand(t *testing.T) {
	dir := t.TempDir()
	snap := snapshottest.Write(t, dir, snapshottest.Fixture{
		MapPayload: mapPayload,
		Entities: [][2]string{
			{regionUUID, `<div class="region"><h2>Aurora Bushes</h2><p>Hex W2S51 is thick with thorns.</p></div>`},
			{settlementUUID, `<div><h2>Town of Devilville</h2></div>`},
		},
		Refs: []snapshottest.Ref{{Value: "Town of Devilville", UUID: settlementUUID, Type: "settlement"}},
	})
	out := filepath.Join(dir, "build")

	stdout, err := execute(t, "analyze", snap,
		"--no-llm",
		"--summary", "json",
		"--out", out,
		"--reports", filepath.Join(out, "reports"),
		"--analysis", filepath.Join(out, "analysis"),
		"--seeds", filepath.Join(out, "seeds"),
	)
	require.NoError(t, err)

	var s output.Summary
	require.NoError(t, json.Unmarshal([]byte(stdout), &s))
	assert.Equal(t, "analyze", s.Command)
	assert.Equal(t, snap, s.Snapshot)
	assert.NotEmpty(t, s.Verdict)
	assert.Empty(t, s.Error)
	assert.NoDirExists(t, filepath.Join(out, "worldgen"))
	assert.DirExists(t, filepath.Join(out, "reports"))

	runs, err := execute(t, "runs", "--store", filepath.Join(out, "llm_cache.db"))
	require.NoError(t, err)
	assert.Contains(t, runs, snap)
}
