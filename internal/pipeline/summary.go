package pipeline

import (
	"slices"
	"strconv"

	"github.com/julianshen/worldforge/internal/audit"
	"github.com/julianshen/worldforge/internal/classify"
	"github.com/julianshen/worldforge/internal/output"
	"github.com/julianshen/worldforge/internal/worlderr"
)

// Verdict is the cross-validation verdict, or "" when it was not reached.
func (r *Result) Verdict() string {
	if r.CrossVal == nil {
		return ""
	}
	return string(r.CrossVal.Verdict)
}

// Reinforced counts findings both analyzers attested.
func (r *Result) Reinforced() int {
	if r.CrossVal == nil {
		return 0
	}
	return len(r.CrossVal.Reinforced)
}

// Metrics are the summary rows of the audit.
func (r *Result) Metrics() []audit.Metric {
	var out []audit.Metric
	add := func(name, value string) {
		out = append(out, audit.Metric{Name: name, Value: value})
	}
	add("snapshot", r.Snapshot)
	add("entities", strconv.Itoa(len(r.Entities)))
	for _, cat := range classify.Categories {
		add("entities."+string(cat), strconv.Itoa(r.Counts[cat]))
	}
	if r.Map != nil {
		add("tiles", strconv.Itoa(len(r.Map.Tiles)))
		add("biomes", strconv.Itoa(len(r.Map.Biomes())))
	}
	if r.CrossVal != nil {
		add("verdict", r.Verdict())
		add("agreement_rate", strconv.FormatFloat(r.CrossVal.Agreement, 'f', 4, 64))
		add("reinforced", strconv.Itoa(r.Reinforced()))
		add("promoted", strconv.Itoa(len(r.CrossVal.Promoted)))
	}
	if r.LLM != nil {
		add("llm.calls", strconv.FormatInt(r.LLM.Calls, 10))
		add("llm.cache_hits", strconv.FormatInt(r.LLM.Hits, 10))
	}
	if r.Emit != nil {
		add("modules", strconv.Itoa(len(r.Emit.Modules)))
		add("modules.written", strconv.Itoa(r.Emit.Written))
		add("modules.skipped", strconv.Itoa(len(r.Emit.Skipped)))
	}
	if r.DB != nil {
		rows := 0
		for _, n := range r.DB.Rows {
			rows += n
		}
		add("db.rows", strconv.Itoa(rows))
		add("db.skipped", strconv.FormatBool(r.DB.Skipped))
	}
	add("manifest", r.Manifest)
	add("partial", strconv.FormatBool(r.Partial))
	add("warnings", strconv.Itoa(len(r.Warnings)))
	if r.Err != nil {
		add("fatal", r.Err.Error())
	}
	return out
}

// Summary renders the exit summary of the run for command.
func (r *Result) Summary(command string) *output.Summary {
	s := &output.Summary{
		Command:    command,
		Snapshot:   r.Snapshot,
		Counts:     map[string]int{},
		Verdict:    r.Verdict(),
		Reinforced: r.Reinforced(),
		Manifest:   r.Manifest,
		Partial:    r.Partial,
		Stages:     slices.Clone(r.Stages),
		DurationMs: r.Finished.Sub(r.Started).Milliseconds(),
	}
	for cat, n := range r.Counts {
		s.Counts[string(cat)] = n
	}
	if r.CrossVal != nil {
		s.Agreement = r.CrossVal.Agreement
	}
	if r.LLM != nil {
		s.LLM = &output.LLMStats{Calls: int(r.LLM.Calls), Hits: int(r.LLM.Hits), Misses: int(r.LLM.Misses)}
	}
	if r.Err != nil {
		s.Error = r.Err.Error()
		if k, ok := worlderr.KindOf(r.Err); ok {
			s.ErrorKind = string(k)
		}
	}
	for _, w := range r.Warnings {
		s.Warnings = append(s.Warnings, w.String())
	}
	return s
}
