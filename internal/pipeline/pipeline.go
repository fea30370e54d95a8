// Package pipeline runs the ingestion stages in order: read and classify the
// snapshot, decode the map, analyse it twice and cross-validate, then
// cluster, emit sources, write the game database and audit the run.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/julianshen/worldforge/internal/aianalysis"
	"github.com/julianshen/worldforge/internal/assets"
	"github.com/julianshen/worldforge/internal/audit"
	"github.com/julianshen/worldforge/internal/classify"
	"github.com/julianshen/worldforge/internal/cluster"
	"github.com/julianshen/worldforge/internal/crossval"
	"github.com/julianshen/worldforge/internal/emit"
	"github.com/julianshen/worldforge/internal/gamedb"
	"github.com/julianshen/worldforge/internal/llm"
	"github.com/julianshen/worldforge/internal/logger"
	"github.com/julianshen/worldforge/internal/manifest"
	"github.com/julianshen/worldforge/internal/mapdata"
	"github.com/julianshen/worldforge/internal/normview"
	"github.com/julianshen/worldforge/internal/output"
	"github.com/julianshen/worldforge/internal/patterns"
	"github.com/julianshen/worldforge/internal/seeds"
	"github.com/julianshen/worldforge/internal/snapshot"
	"github.com/julianshen/worldforge/internal/world"
	"github.com/julianshen/worldforge/internal/worlderr"
)

// Stage names.
const (
	StageSnapshot = "snapshot"
	StageMap      = "map"
	StageAnalysis = "analysis"
	StageCrossVal = "crossval"
	StageCluster  = "cluster"
	StageSeeds    = "seeds"
	StageEmit     = "emit"
	StageDatabase = "database"
	StageAssets   = "assets"
	StageManifest = "manifest"
	StageAudit    = "audit"
)

// Deps are the collaborators of a run.
type Deps struct {
	// Submitter answers model requests. Nil runs on pattern evidence only.
	Submitter aianalysis.Submitter
	// Seeds overrides the library loaded from Config.SeedsDir.
	Seeds *seeds.Library
	// Reporter overrides the audit reporter for Config.ReportsDir.
	Reporter *audit.Reporter
}

// Result is everything a run produced. Fields of stages that did not run
// are nil.
type Result struct {
	Snapshot string
	Entities []classify.RawEntity
	Counts   map[classify.Category]int
	Map      *mapdata.World
	Report   *patterns.Report
	AI       *aianalysis.Result
	CrossVal *crossval.Result
	Clusters *cluster.Result
	Index    world.SpatialIndex
	Emit     *emit.Result
	DB       *gamedb.WriteResult
	Assets   *assets.Result
	Audit    *audit.Result
	LLM      *llm.Stats
	Manifest string
	Partial  bool
	Warnings []worlderr.Warning
	Stages   []output.StageLog
	Err      error
	Started  time.Time
	Finished time.Time
}

// Run executes the pipeline. The returned Result is never nil; the error is
// the fatal failure that stopped the run, if any. In strict mode a
// not-ready verdict is fatal. The audit runs after fatal failures too, but
// not after cancellation.
func Run(ctx context.Context, cfg Config, deps Deps) (*Result, error) {
	p := &run{cfg: cfg, deps: deps, res: &Result{Snapshot: cfg.Snapshot, Started: time.Now()}}

	err := p.execute(ctx)
	p.res.Err = err
	if err != nil {
		logger.Error("pipeline failed", "err", err)
	}
	if ctx.Err() == nil {
		if auditErr := p.audit(); auditErr != nil && err == nil {
			err = auditErr
			p.res.Err = err
		}
	}
	p.res.Finished = time.Now()
	return p.res, err
}

type run struct {
	cfg  Config
	deps Deps
	res  *Result
}

type statser interface {
	Stats() llm.Stats
}

type warner interface {
	Warnings() []worlderr.Warning
}

func (p *run) stage(name, status, detail string, written, skipped int) {
	p.res.Stages = append(p.res.Stages, output.StageLog{
		Name: name, Status: status, Detail: detail, Written: written, Skipped: skipped,
	})
}

func (p *run) fail(name string, err error) error {
	p.stage(name, output.StageFailed, err.Error(), 0, 0)
	return err
}

func (p *run) warn(ws ...worlderr.Warning) {
	p.res.Warnings = append(p.res.Warnings, ws...)
}

func (p *run) execute(ctx context.Context) error {
	// C1, C2
	logger.Info("reading snapshot", "path", p.cfg.Snapshot)
	r, err := snapshot.Open(ctx, p.cfg.Snapshot)
	if err != nil {
		return p.fail(StageSnapshot, err)
	}
	defer r.Close()
	if tables, err := r.Tables(ctx); err == nil {
		logger.Debug("snapshot tables", "tables", tables)
	}

	dicts, err := classify.LoadDictionaries(p.cfg.Dictionaries)
	if err != nil {
		return p.fail(StageSnapshot, worlderr.New(worlderr.KindIO, "pipeline.dictionaries", err))
	}
	refs, err := snapshot.CollectRefs(r.Refs(ctx))
	if err != nil {
		return p.fail(StageSnapshot, worlderr.New(worlderr.KindSnapshotCorrupt, "pipeline.refs", err))
	}
	entities, err := classify.New(dicts, classify.RefTypes(refs)).ClassifyAll(r.Entities(ctx))
	if err != nil {
		return p.fail(StageSnapshot, err)
	}
	p.res.Entities = entities
	p.res.Counts = classify.CountByCategory(entities)
	p.stage(StageSnapshot, output.StageOK, fmt.Sprintf("%d entities, %d refs", len(entities), len(refs)), 0, 0)

	// C3
	payload, err := r.MapPayload(ctx)
	if err != nil {
		return p.fail(StageMap, err)
	}
	m, err := mapdata.Decode(payload)
	if err != nil {
		return p.fail(StageMap, err)
	}
	p.res.Map = m
	p.warn(m.Warnings...)
	p.stage(StageMap, output.StageOK, fmt.Sprintf("%d tiles, %d regions", len(m.Tiles), len(m.Regions)), 0, 0)

	// C4 || C5
	if err := p.analyze(ctx, entities, refs, m); err != nil {
		return p.fail(StageAnalysis, err)
	}

	// C6
	cv := crossval.Validate(p.res.Report, p.res.AI, crossval.Options{ReadyThreshold: p.cfg.ReadyThreshold})
	p.res.CrossVal = cv
	if cv.Verdict != crossval.Ready {
		p.warn(worlderr.Warnf(worlderr.KindCrossValidationNotReady, StageCrossVal, "", "%s", cv.Remedy))
		if p.cfg.Strict {
			return p.fail(StageCrossVal, cv.Err())
		}
	}
	p.stage(StageCrossVal, output.StageOK, fmt.Sprintf("%s, agreement %.2f", cv.Verdict, cv.Agreement), 0, 0)
	if p.cfg.AnalyzeOnly {
		return nil
	}

	return p.build(ctx, entities, m)
}

// analyze builds the normalised view and runs the pattern and model
// analyzers side by side. They share no state; the join is the return.
func (p *run) analyze(ctx context.Context, entities []classify.RawEntity, refs []snapshot.RefRow, m *mapdata.World) error {
	view, err := normview.Build(ctx, entities, refs, m)
	if err != nil {
		return worlderr.New(worlderr.KindIO, "pipeline.normview", err)
	}
	defer view.Close()

	tables, err := patterns.Schemas(ctx, view.DB())
	if err != nil {
		return worlderr.New(worlderr.KindIO, "pipeline.schemas", err)
	}
	known := make(map[string]bool, len(entities)+len(m.Regions)+len(m.Realms))
	for _, e := range entities {
		known[e.UUID] = true
	}
	for id := range m.Regions {
		known[id] = true
	}
	for id := range m.Realms {
		known[id] = true
	}

	var (
		report *patterns.Report
		ai     *aianalysis.Result
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		r, err := patterns.Analyze(gctx, view.DB(), patterns.Options{
			SampleCap:  p.cfg.SampleCap,
			KnownUUIDs: known,
			Entities:   entities,
		})
		if err != nil {
			return fmt.Errorf("pattern analysis: %w", err)
		}
		report = r
		return nil
	})
	if p.deps.Submitter != nil {
		g.Go(func() error {
			r, err := aianalysis.Analyze(gctx, entities, tables, p.deps.Submitter, p.cfg.Model)
			if err != nil {
				return fmt.Errorf("model analysis: %w", err)
			}
			ai = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	p.res.Report = report
	p.res.AI = ai
	p.warn(report.Warnings...)
	detail := "pattern evidence only"
	if ai != nil {
		p.warn(ai.Warnings...)
		detail = fmt.Sprintf("%d model relationships", len(ai.Relationships))
	}
	if s, ok := p.deps.Submitter.(statser); ok {
		stats := s.Stats()
		p.res.LLM = &stats
	}
	if w, ok := p.deps.Submitter.(warner); ok {
		p.warn(w.Warnings()...)
	}
	p.stage(StageAnalysis, output.StageOK, fmt.Sprintf("%d pattern relationships, %s", len(report.Relationships), detail), 0, 0)
	return nil
}

// build runs C7 to C10 and saves the manifest last.
func (p *run) build(ctx context.Context, entities []classify.RawEntity, m *mapdata.World) error {
	man, err := manifest.Load(p.cfg.ManifestPath)
	if err != nil {
		return p.fail(StageManifest, err)
	}
	man.PruneMissing()
	p.res.Manifest = man.Path()

	// C7
	var inventory map[string][]aianalysis.Field
	if p.res.AI != nil {
		inventory = p.res.AI.FieldInventory
	}
	cl, err := cluster.Build(ctx, entities, m, p.res.Report.Tables, inventory, cluster.Options{AnalysisDir: p.cfg.AnalysisDir})
	if err != nil {
		return p.fail(StageCluster, err)
	}
	p.res.Clusters = cl
	p.res.Index = world.BuildSpatialIndex(cl.Graph, m.Tiles)
	p.stage(StageCluster, output.StageOK, fmt.Sprintf("%d clusters, %d located hexes", len(cl.Clusters), len(p.res.Index)),
		cl.Layout.Written, cl.Layout.Unchanged)

	// C8
	lib, err := p.loadSeeds()
	if err != nil {
		return p.fail(StageSeeds, err)
	}
	p.stage(StageSeeds, output.StageOK, "", 0, 0)

	// C9
	em, err := emit.New(man, p.cfg.OutDir).Emit(ctx, emit.Input{
		Map:      m,
		Graph:    cl.Graph,
		Index:    p.res.Index,
		Entities: entities,
		Seeds:    lib,
	})
	if err != nil {
		return p.fail(StageEmit, err)
	}
	p.res.Emit = em
	p.warn(em.Warnings...)
	status := output.StageOK
	if len(em.Skipped) > 0 {
		status = output.StagePartial
		p.res.Partial = true
	}
	p.stage(StageEmit, status, fmt.Sprintf("%d modules, %d skipped", len(em.Modules), len(em.Skipped)),
		em.Written, len(em.Modules)-em.Written)

	// C10
	fields := make(map[string]map[string]any)
	for _, e := range entities {
		if e.Fields != nil {
			fields[e.UUID] = e.Fields
		}
	}
	content := gamedb.BuildContent(m, cl.Graph, p.res.Index, lib, fields)
	dbRes, err := gamedb.Publish(ctx, man, p.cfg.GameDB, content)
	if err != nil {
		return p.fail(StageDatabase, err)
	}
	p.res.DB = dbRes
	p.warn(dbRes.Warnings...)
	if err := gamedb.InitPlayerState(p.cfg.PlayerDB); err != nil {
		return p.fail(StageDatabase, worlderr.New(worlderr.KindIO, "pipeline.playerstate", err))
	}
	switch {
	case dbRes.Partial:
		p.res.Partial = true
		p.stage(StageDatabase, output.StagePartial, fmt.Sprintf("failed tables: %v, previous content kept", dbRes.Failed), 0, 0)
	case dbRes.Skipped:
		p.stage(StageDatabase, output.StageOK, "content unchanged", 0, 1)
	default:
		p.stage(StageDatabase, output.StageOK, "", 1, 0)
	}

	if p.cfg.ModelsDir != "" {
		as, err := assets.Stage(ctx, man, p.cfg.ModelsDir, p.cfg.OutDir, assets.Options{Concurrency: p.cfg.AssetConcurrency, Exclude: p.cfg.ModelsExclude})
		if err != nil {
			return p.fail(StageAssets, err)
		}
		p.res.Assets = as
		p.warn(as.Warnings...)
		p.stage(StageAssets, output.StageOK, fmt.Sprintf("%d models", len(as.Models)), as.Staged, as.Skipped)
	}

	if err := ctx.Err(); err != nil {
		return p.fail(StageManifest, err)
	}
	dropped := man.Retain()
	if err := man.Save(); err != nil {
		return p.fail(StageManifest, err)
	}
	p.stage(StageManifest, output.StageOK, fmt.Sprintf("%d entries, %d dropped", man.Len(), dropped), 0, 0)
	return nil
}

func (p *run) loadSeeds() (*seeds.Library, error) {
	if p.deps.Seeds != nil {
		return p.deps.Seeds, nil
	}
	if p.cfg.SeedsDir == "" {
		return seeds.Default()
	}
	if _, err := seeds.EnsureCache(p.cfg.SeedsDir); err != nil {
		return nil, err
	}
	lib, err := seeds.Load(p.cfg.SeedsDir)
	if err != nil {
		return nil, worlderr.New(worlderr.KindIO, "pipeline.seeds", err)
	}
	return lib, nil
}

// audit records whatever state exists. It runs after fatal failures too.
func (p *run) audit() error {
	if p.cfg.ReportsDir == "" {
		return nil
	}
	rep := p.deps.Reporter
	if rep == nil {
		rep = audit.NewReporter(p.cfg.ReportsDir)
	}
	tables := audit.Tables(audit.Input{
		Entities: p.res.Entities,
		Report:   p.res.Report,
		CrossVal: p.res.CrossVal,
		Warnings: p.res.Warnings,
		Summary:  p.res.Metrics(),
	})
	res, err := rep.Write(tables)
	if err != nil {
		var werr *worlderr.Error
		if !errors.As(err, &werr) {
			err = worlderr.New(worlderr.KindIO, "pipeline.audit", err)
		}
		return p.fail(StageAudit, err)
	}
	p.res.Audit = res
	p.stage(StageAudit, output.StageOK, fmt.Sprintf("%d reports, %d archived", len(res.Reports), res.Archived), len(res.Reports), 0)
	return nil
}
