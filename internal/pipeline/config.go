package pipeline

import (
	"github.com/julianshen/worldforge/internal/aianalysis"
	"github.com/julianshen/worldforge/internal/config"
)

// Config holds all pipeline configuration.
type Config struct {
	Snapshot     string
	Dictionaries string // empty uses the bundled dictionaries
	AnalysisDir  string // canonical entity layout; empty skips it
	OutDir       string
	ReportsDir   string // empty skips the audit
	SeedsDir     string // empty uses the bundled seeds
	ModelsDir    string // empty stages no models
	ManifestPath string
	GameDB       string
	PlayerDB     string

	SampleCap      int
	ReadyThreshold float64
	// Strict turns a not-ready verdict into a fatal error.
	Strict bool
	// AnalyzeOnly stops after cross-validation.
	AnalyzeOnly bool

	Model            aianalysis.Options
	AssetConcurrency int
	ModelsExclude    []string
}

// FromConfig maps the file configuration onto a run of snapshot.
func FromConfig(c *config.Config, snapshot string) Config {
	return Config{
		Snapshot:       snapshot,
		Dictionaries:   c.Paths.Dictionaries,
		AnalysisDir:    c.Paths.AnalysisDir,
		OutDir:         c.Paths.OutDir,
		ReportsDir:     c.Paths.ReportsDir,
		SeedsDir:       c.Paths.SeedsDir,
		ModelsDir:      c.Paths.ModelsDir,
		ModelsExclude:  c.Paths.ModelsExclude,
		ManifestPath:   c.Paths.ManifestPath(),
		GameDB:         c.Paths.GameDBPath(),
		PlayerDB:       c.Paths.PlayerDBPath(),
		SampleCap:      c.Analysis.SampleCap,
		ReadyThreshold: c.Analysis.ReadyThreshold,
		Strict:         c.Analysis.Strict,
		Model: aianalysis.Options{
			Model:       c.LLM.Model,
			Samples:     c.LLM.SamplesPerCategory,
			Concurrency: c.LLM.Concurrency,
		},
	}
}
