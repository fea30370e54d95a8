package seeds

import (
	"crypto/sha256"
	"encoding/binary"
)

// Act and band ranges of the corruption curve.
const (
	Acts     = 3
	Bands    = 60
	MaxLevel = 4
)

var actSpans = [Acts + 1][2]float64{
	1: {0.0, 0.3},
	2: {0.3, 0.7},
	3: {0.7, 1.0},
}

// ActBandFor places a region on the corruption curve from a stable hash of
// its uuid: act in 1..3 and band in 1..60.
func ActBandFor(regionUUID string) (act, band int) {
	sum := sha256.Sum256([]byte(regionUUID))
	h := binary.BigEndian.Uint64(sum[:8])
	return int(h%Acts) + 1, int((h/Acts)%Bands) + 1
}

// CorruptionLevel maps an act and band to [0,1]: each act spans its own
// interval and the band interpolates linearly within it. Out-of-range
// inputs are clamped.
func CorruptionLevel(act, band int) float64 {
	act = min(max(act, 1), Acts)
	band = min(max(band, 1), Bands)
	span := actSpans[act]
	return span[0] + (span[1]-span[0])*float64(band-1)/float64(Bands-1)
}

// BandFromLevel maps a corruption level onto the ordinal dread band 0..4.
func BandFromLevel(level float64) int {
	if level <= 0 {
		return 0
	}
	return min(int(level*(MaxLevel+1)), MaxLevel)
}

var tones = [MaxLevel + 1]string{"peace", "unease", "dread", "terror", "horror"}

// ToneForBand names the literature theme matching a dread band.
func ToneForBand(band int) string {
	return tones[min(max(band, 0), MaxLevel)]
}

// Placement is a region's position on the corruption curve.
type Placement struct {
	Act   int     `json:"act"`
	Band  int     `json:"band"`
	Level float64 `json:"level"`
	// Dread is the ordinal 0..4 band attached to generated content.
	Dread int `json:"dread"`
}

// PlacementFor derives the placement of the region keyed by id.
func PlacementFor(id string) Placement {
	act, band := ActBandFor(id)
	level := CorruptionLevel(act, band)
	return Placement{Act: act, Band: band, Level: level, Dread: BandFromLevel(level)}
}
