package crossval

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/julianshen/worldforge/internal/aianalysis"
	"github.com/julianshen/worldforge/internal/classify"
	"github.com/julianshen/worldforge/internal/patterns"
	"github.com/julianshen/worldforge/internal/worlderr"
)

func rel(ft, fc, tt, tc string, conf float64, card patterns.Cardinality) patterns.ImplicitRelationship {
	return patterns.ImplicitRelationship{FromTable: ft, FromColumn: fc, ToTable: tt, ToColumn: tc, Confidence: conf, Cardinality: card}
}

func aiRel(ft, fc, tt, tc string, card string) aianalysis.Relationship {
	return aianalysis.Relationship{FromTable: ft, FromColumn: fc, ToTable: tt, ToColumn: tc, Confidence: 0.9, Cardinality: card}
}

func TestAllReinforcedIsReady(t *testing.T) {
	report := &patterns.Report{Relationships: []patterns.ImplicitRelationship{
		rel("entity_refs", "ref_uuid", "entities", "uuid", 0.9, patterns.ManyToOne),
		rel("map_tiles", "region_uuid", "regions", "uuid", 1.0, patterns.ManyToOne),
	}}
	ai := &aianalysis.Result{Relationships: []aianalysis.Relationship{
		// Stated from the other side; still the same column pair.
		aiRel("entities", "uuid", "entity_refs", "ref_uuid", "one_to_many"),
		aiRel("map_tiles", "region_uuid", "regions", "uuid", "many_to_one"),
	}}

	res := Validate(report, ai, Options{})
	assert.Len(t, res.Reinforced, 2)
	assert.Empty(t, res.Conflicts)
	assert.Equal(t, 1.0, res.Agreement)
	assert.Equal(t, Ready, res.Verdict)
	assert.NoError(t, res.Err())
	assert.Len(t, res.Promoted, 2)
}

func TestAgreementAndPromotion(t *testing.T) {
	report := &patterns.Report{Relationships: []patterns.ImplicitRelationship{
		rel("a", "uuid", "b", "entity_uuid", 0.8, patterns.OneToOne),
		rel("a", "uuid", "c", "a_uuid", 0.85, patterns.ManyToOne),
		rel("a", "uuid", "d", "a_uuid", 0.3, patterns.ManyToOne),
	}}
	ai := &aianalysis.Result{Relationships: []aianalysis.Relationship{
		aiRel("b", "entity_uuid", "a", "uuid", "one_to_one"),
		aiRel("e", "ref", "a", "uuid", "many_to_one"),
	}}

	res := Validate(report, ai, Options{})
	require.Len(t, res.Reinforced, 1)
	assert.Len(t, res.PatternOnly, 2)
	assert.Len(t, res.AIOnly, 1)
	assert.Equal(t, 4, res.Union())
	assert.InDelta(t, 0.25, res.Agreement, 1e-9)
	assert.Equal(t, NotReady, res.Verdict)
	assert.True(t, worlderr.Has(res.Err(), worlderr.KindCrossValidationNotReady))
	assert.NotEmpty(t, res.Remedy)

	// Reinforced plus the confident pattern-only finding; never the ai-only one.
	var promoted []string
	for _, p := range res.Promoted {
		promoted = append(promoted, p.Key().String())
	}
	assert.ElementsMatch(t, []string{"a.uuid <-> b.entity_uuid", "a.uuid <-> c.a_uuid"}, promoted)
}

func TestConflicts(t *testing.T) {
	report := &patterns.Report{Relationships: []patterns.ImplicitRelationship{
		rel("npcs", "settlement_uuid", "settlements", "uuid", 0.9, patterns.ManyToOne),
	}}
	ai := &aianalysis.Result{Relationships: []aianalysis.Relationship{
		aiRel("settlements", "uuid", "npcs", "settlement_uuid", "many_to_one"),
	}}

	res := Validate(report, ai, Options{})
	require.Len(t, res.Conflicts, 1)
	assert.Contains(t, res.Conflicts[0].Reason, "direction")
	assert.Len(t, res.Reinforced, 1)
	require.NotEmpty(t, res.Recommendations)
	assert.Equal(t, patterns.BandMedium, res.Recommendations[0].Band)
}

func TestEmptyUnionIsNotReady(t *testing.T) {
	res := Validate(&patterns.Report{}, nil, Options{})
	assert.Equal(t, 0.0, res.Agreement)
	assert.Equal(t, NotReady, res.Verdict)
	assert.Contains(t, res.Reasons[0], "neither analyzer")
}

func TestCriticalIssuesBlockReady(t *testing.T) {
	report := &patterns.Report{
		Relationships:  []patterns.ImplicitRelationship{rel("b", "a_id", "a", "id", 1, patterns.ManyToOne)},
		CriticalIssues: []string{"category faction has no discovered references"},
	}
	ai := &aianalysis.Result{Relationships: []aianalysis.Relationship{aiRel("a", "id", "b", "a_id", "one_to_many")}}

	res := Validate(report, ai, Options{})
	assert.Equal(t, 1.0, res.Agreement)
	assert.Equal(t, NotReady, res.Verdict)
	assert.Equal(t, []string{"category faction has no discovered references"}, res.Reasons)
}

func TestFallbackCategoriesAreMarked(t *testing.T) {
	ai := &aianalysis.Result{Categories: []aianalysis.CategoryResult{
		{Category: classify.CategoryRegion},
		{Category: classify.CategoryDungeon, PatternOnly: true},
	}}
	res := Validate(&patterns.Report{}, ai, Options{})
	assert.Equal(t, []string{"dungeon"}, res.FallbackCategories)
	require.NotEmpty(t, res.Recommendations)
	assert.Equal(t, "category:dungeon", res.Recommendations[0].Subject)
	assert.Contains(t, res.Remedy, "dungeon")
}

func TestThresholdOption(t *testing.T) {
	report := &patterns.Report{Relationships: []patterns.ImplicitRelationship{
		rel("b", "a_id", "a", "id", 1, patterns.ManyToOne),
		rel("a", "id", "c", "a_id", 0.2, patterns.ManyToOne),
	}}
	ai := &aianalysis.Result{Relationships: []aianalysis.Relationship{aiRel("b", "a_id", "a", "id", "many_to_one")}}

	assert.Equal(t, NotReady, Validate(report, ai, Options{}).Verdict)
	assert.Equal(t, Ready, Validate(report, ai, Options{ReadyThreshold: 0.5}).Verdict)
}
