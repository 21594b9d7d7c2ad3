package usecase

import (
	"bytes"
	"context"
	"encoding/base64"
	"image/png"
	"time"

	"github.com/juju/errors"

	"go.ngs.io/raster-pyramid/internal/domain"
	"go.ngs.io/raster-pyramid/internal/tilestream"
)

// TileSource is the access layer as seen by the use case.
// *pyramid.Access satisfies it.
type TileSource interface {
	Coverage() string
	Levels() domain.LevelSet
	Query(env domain.Envelope, px domain.PixelDimension, level int) (domain.TileQuery, error)
	StartTileDecoders(ctx context.Context, query domain.TileQuery, out *tilestream.Queue) error
}

// TileRequest encapsulates a tile request.
type TileRequest struct {
	Envelope domain.Envelope
	Width    int
	Height   int

	// Level is an explicit level index; nil picks one from the resolution.
	Level *int

	// IncludeData adds PNG-encoded pixels to every tile.
	IncludeData bool
}

// Validate checks the request before any database access.
func (r *TileRequest) Validate() error {
	if err := r.Envelope.Validate(); err != nil {
		return errors.NewNotValid(err, "bbox")
	}
	if r.Width <= 0 || r.Height <= 0 {
		return errors.NotValidf("size %dx%d", r.Width, r.Height)
	}
	if r.Level != nil && *r.Level < 0 {
		return errors.NotValidf("level %d", *r.Level)
	}
	return nil
}

// LevelInfo describes one pyramid level.
type LevelInfo struct {
	Index   int        `json:"index"`
	LevelID int        `json:"level_id"`
	ResX    float64    `json:"res_x"`
	ResY    float64    `json:"res_y"`
	SRID    int        `json:"srid"`
	CRS     string     `json:"crs"`
	Storage string     `json:"storage"`
	Extent  [4]float64 `json:"extent"`
}

// TileInfo is one decoded tile.
type TileInfo struct {
	BBox   [4]float64 `json:"bbox"`
	Width  int        `json:"width"`
	Height int        `json:"height"`
	PNG    string     `json:"png,omitempty"`
}

// TileResponse contains the tiles answering one request.
type TileResponse struct {
	Coverage string            `json:"coverage"`
	Level    LevelInfo         `json:"level"`
	Tiles    []TileInfo        `json:"tiles"`
	Meta     map[string]string `json:"meta"`
}

// TileUseCase orchestrates tile queries.
type TileUseCase struct {
	source TileSource
}

// NewTileUseCase creates a new tile use case.
func NewTileUseCase(source TileSource) *TileUseCase {
	return &TileUseCase{source: source}
}

// Execute runs a tile request and collects every tile.
func (uc *TileUseCase) Execute(ctx context.Context, req TileRequest) (*TileResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	index := -1
	if req.Level != nil {
		index = *req.Level
	}
	px := domain.PixelDimension{Width: req.Width, Height: req.Height}
	query, err := uc.source.Query(req.Envelope, px, index)
	if err != nil {
		return nil, errors.Trace(err)
	}
	if index < 0 {
		index = uc.source.Levels().Select(req.Envelope, px)
	}

	start := time.Now()
	out := tilestream.NewQueue()
	if err := uc.source.StartTileDecoders(ctx, query, out); err != nil {
		return nil, errors.Trace(err)
	}
	tiles, err := out.Drain(ctx)
	if err != nil {
		return nil, errors.Trace(err)
	}

	resp := &TileResponse{
		Coverage: uc.source.Coverage(),
		Level:    levelInfo(index, query.Level),
		Tiles:    make([]TileInfo, 0, len(tiles)),
		Meta: map[string]string{
			"generated_at": time.Now().UTC().Format(time.RFC3339),
			"elapsed":      time.Since(start).String(),
			"request_bbox": query.Envelope.String(),
		},
	}
	for _, t := range tiles {
		info, err := tileInfo(t, req.IncludeData)
		if err != nil {
			return nil, err
		}
		resp.Tiles = append(resp.Tiles, info)
	}
	return resp, nil
}

// ListLevels returns the pyramid levels, most detailed first.
func (uc *TileUseCase) ListLevels() []LevelInfo {
	levels := uc.source.Levels()
	out := make([]LevelInfo, levels.Len())
	for i := range out {
		out[i] = levelInfo(i, levels.Level(i))
	}
	return out
}

func levelInfo(index int, l domain.PyramidLevel) LevelInfo {
	return LevelInfo{
		Index:   index,
		LevelID: l.LevelID,
		ResX:    l.ResX,
		ResY:    l.ResY,
		SRID:    l.SRID,
		CRS:     l.CRS.String(),
		Storage: l.Storage.String(),
		Extent:  bbox(l.Extent),
	}
}

func tileInfo(t domain.DecodedTile, withData bool) (TileInfo, error) {
	b := t.Image.Bounds()
	info := TileInfo{BBox: bbox(t.Envelope), Width: b.Dx(), Height: b.Dy()}
	if withData {
		var buf bytes.Buffer
		if err := png.Encode(&buf, t.Image); err != nil {
			return TileInfo{}, errors.Annotate(err, "encode tile")
		}
		info.PNG = base64.StdEncoding.EncodeToString(buf.Bytes())
	}
	return info, nil
}

func bbox(e domain.Envelope) [4]float64 {
	return [4]float64{e.MinX(), e.MinY(), e.MaxX(), e.MaxY()}
}
