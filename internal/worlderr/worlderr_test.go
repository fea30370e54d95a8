package worlderr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindFatal(t *testing.T) {
	fatal := []Kind{KindSnapshotMissing, KindSnapshotCorrupt, KindSchemaMismatch, KindDuplicateEntityUUID, KindMapPayloadMalformed}
	for _, k := range fatal {
		assert.True(t, k.Fatal(), k)
	}
	nonFatal := []Kind{KindPatternAnalysisPartial, KindLLMUnavailable, KindLLMSchemaViolation, KindLLMCacheCorrupt,
		KindCrossValidationNotReady, KindDBTransactionFailed, KindEmitterTemplateError, KindMapTileInvalid}
	for _, k := range nonFatal {
		assert.False(t, k.Fatal(), k)
	}
}

func TestErrorWrapping(t *testing.T) {
	cause := errors.New("boom")
	err := fmt.Errorf("stage: %w", New(KindSnapshotCorrupt, "snapshot.MapPayload", cause))

	assert.ErrorIs(t, err, cause)
	assert.True(t, Has(err, KindSnapshotCorrupt))
	assert.False(t, Has(err, KindSnapshotMissing))
	assert.True(t, errors.Is(err, New(KindSnapshotCorrupt, "", nil)))
	assert.Contains(t, err.Error(), "SnapshotCorrupt")
}

func TestIsFatal(t *testing.T) {
	assert.False(t, IsFatal(nil))
	assert.True(t, IsFatal(errors.New("unclassified")))
	assert.True(t, IsFatal(New(KindSchemaMismatch, "op", nil)))
	assert.False(t, IsFatal(New(KindDBTransactionFailed, "op", nil)))
}

func TestWarningString(t *testing.T) {
	w := Warnf(KindMapTileInvalid, "mapdata", "tile 3,4", "river bit %d out of range", 9)
	assert.Equal(t, "[mapdata] MapTileInvalid (tile 3,4): river bit 9 out of range", w.String())

	w.Subject = ""
	assert.Equal(t, "[mapdata] MapTileInvalid: river bit 9 out of range", w.String())
}
