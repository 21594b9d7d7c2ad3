package domain

import (
	"fmt"
	"sort"
)

// StorageMode describes how tile pixel data is held by the database.
type StorageMode int

const (
	// StorageUnknown means the mode has not been detected yet.
	StorageUnknown StorageMode = iota
	// StorageInline stores raw raster bytes directly in the tile row.
	StorageInline
	// StorageEncoded references pixel data outside the row; the server
	// encodes it into an image format when it is read.
	StorageEncoded
)

func (m StorageMode) String() string {
	switch m {
	case StorageInline:
		return "inline"
	case StorageEncoded:
		return "encoded"
	default:
		return "unknown"
	}
}

// ParseStorageMode parses the persisted form of a storage mode.
func ParseStorageMode(s string) (StorageMode, bool) {
	switch s {
	case "inline":
		return StorageInline, true
	case "encoded":
		return StorageEncoded, true
	default:
		return StorageUnknown, false
	}
}

// PyramidLevel is one resolution tier of a coverage.
// Values are immutable once bootstrap has produced them.
type PyramidLevel struct {
	CoverageName string
	LevelID      int
	TileTable    string   // Table holding the tiles of this level.
	Extent       Envelope // Union of all tile footprints.
	ResX, ResY   float64  // World units per pixel.
	SRID         int
	CRS          CRS
	Storage      StorageMode
	SelectSQL    string // Cached tile SELECT for the storage mode.
}

// Resolution returns the coarser of the two axis resolutions.
func (l PyramidLevel) Resolution() float64 {
	if l.ResY > l.ResX {
		return l.ResY
	}
	return l.ResX
}

// Validate checks the level invariants.
func (l PyramidLevel) Validate() error {
	if l.ResX <= 0 || l.ResY <= 0 {
		return fmt.Errorf("level %s/%d: resolution must be positive (got %g, %g)", l.CoverageName, l.LevelID, l.ResX, l.ResY)
	}
	if err := l.Extent.Validate(); err != nil {
		return fmt.Errorf("level %s/%d: %w", l.CoverageName, l.LevelID, err)
	}
	return nil
}

func (l PyramidLevel) String() string {
	return fmt.Sprintf("%s/%d (res %g, %s)", l.CoverageName, l.LevelID, l.Resolution(), l.Storage)
}

// LevelSet is the ordered set of pyramid levels of a coverage.
// Index 0 is the most detailed level, the last index the coarsest overview.
type LevelSet struct {
	levels []PyramidLevel
}

// NewLevelSet validates and sorts levels ascending by resolution.
func NewLevelSet(levels []PyramidLevel) (LevelSet, error) {
	sorted := make([]PyramidLevel, len(levels))
	copy(sorted, levels)

	seen := make(map[string]struct{}, len(sorted))
	for _, l := range sorted {
		if err := l.Validate(); err != nil {
			return LevelSet{}, err
		}
		key := fmt.Sprintf("%s\x00%d", l.CoverageName, l.LevelID)
		if _, dup := seen[key]; dup {
			return LevelSet{}, fmt.Errorf("duplicate level %s/%d", l.CoverageName, l.LevelID)
		}
		seen[key] = struct{}{}
	}

	sort.SliceStable(sorted, func(i, j int) bool {
		ri, rj := sorted[i].Resolution(), sorted[j].Resolution()
		if ri != rj {
			return ri < rj
		}
		return sorted[i].LevelID < sorted[j].LevelID
	})
	return LevelSet{levels: sorted}, nil
}

// Len returns the number of levels.
func (s LevelSet) Len() int { return len(s.levels) }

// Level returns the level at index i.
func (s LevelSet) Level(i int) PyramidLevel { return s.levels[i] }

// Levels returns a copy of the ordered levels.
func (s LevelSet) Levels() []PyramidLevel {
	out := make([]PyramidLevel, len(s.levels))
	copy(out, s.levels)
	return out
}

// MostDetailed returns level 0.
func (s LevelSet) MostDetailed() PyramidLevel { return s.levels[0] }

// Coarsest returns the last level.
func (s LevelSet) Coarsest() PyramidLevel { return s.levels[len(s.levels)-1] }

// Select returns the index of the coarsest level that still resolves the
// requested pixel size. When every level is coarser than requested, the
// most detailed level (0) is returned.
func (s LevelSet) Select(env Envelope, px PixelDimension) int {
	if len(s.levels) == 0 || px.Width <= 0 || px.Height <= 0 {
		return 0
	}
	want := env.Width() / float64(px.Width)
	if ry := env.Height() / float64(px.Height); ry < want {
		want = ry
	}
	// Small tolerance so an exact match picks the matching level.
	const slack = 1e-9
	idx := 0
	for i, l := range s.levels {
		if l.Resolution() <= want*(1+slack) {
			idx = i
		}
	}
	return idx
}
