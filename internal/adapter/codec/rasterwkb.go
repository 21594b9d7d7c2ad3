package codec

import (
	"bytes"
	"encoding/binary"
	"io"
	"math"

	"github.com/juju/errors"

	"go.ngs.io/raster-pyramid/internal/domain"
)

// ErrUnsupportedPixelType is returned for band types the codec cannot read.
const ErrUnsupportedPixelType = errors.ConstError("unsupported pixel type")

// PixelType is a raster band storage type.
type PixelType uint8

// Band pixel types, in on-disk order.
const (
	Pixel1BB   PixelType = 0
	Pixel2BUI  PixelType = 1
	Pixel4BUI  PixelType = 2
	Pixel8BSI  PixelType = 3
	Pixel8BUI  PixelType = 4
	Pixel16BSI PixelType = 5
	Pixel16BUI PixelType = 6
	Pixel32BSI PixelType = 7
	Pixel32BUI PixelType = 8
	Pixel32BF  PixelType = 10
	Pixel64BF  PixelType = 11
)

const (
	bandOffline   = 0x80
	bandHasNoData = 0x40
	pixelTypeMask = 0x0f
)

// Size returns the number of bytes used to store one pixel.
func (p PixelType) Size() (int, error) {
	switch p {
	case Pixel1BB, Pixel2BUI, Pixel4BUI, Pixel8BSI, Pixel8BUI:
		return 1, nil
	case Pixel16BSI, Pixel16BUI:
		return 2, nil
	case Pixel32BSI, Pixel32BUI, Pixel32BF:
		return 4, nil
	case Pixel64BF:
		return 8, nil
	default:
		return 0, errors.Annotatef(ErrUnsupportedPixelType, "type %d", p)
	}
}

// Raster is a decoded in-row raster: a geotransform plus band values.
type Raster struct {
	ScaleX, ScaleY   float64 // ScaleY is negative for north-up rasters.
	OriginX, OriginY float64 // Upper-left corner.
	SkewX, SkewY     float64
	SRID             int32
	Width, Height    int
	Bands            []Band
}

// Band holds one band's pixels in row-major order.
type Band struct {
	Type      PixelType
	HasNoData bool
	NoData    float64
	Values    []float64
}

// Footprint returns the world envelope covered by the raster. Skew is ignored.
func (r *Raster) Footprint(crs domain.CRS) domain.Envelope {
	x1 := r.OriginX + float64(r.Width)*r.ScaleX
	y1 := r.OriginY + float64(r.Height)*r.ScaleY
	return domain.NewEnvelope(r.OriginX, y1, x1, r.OriginY, crs)
}

// DecodeRaster parses the PostGIS raster WKB format.
func DecodeRaster(data []byte) (*Raster, error) {
	rd := bytes.NewReader(data)

	endian, err := rd.ReadByte()
	if err != nil {
		return nil, errors.Annotate(err, "read endianness")
	}
	var order binary.ByteOrder
	switch endian {
	case 0:
		order = binary.BigEndian
	case 1:
		order = binary.LittleEndian
	default:
		return nil, errors.NotValidf("raster endianness flag %d", endian)
	}

	var hdr struct {
		Version uint16
		Bands   uint16
		ScaleX  float64
		ScaleY  float64
		IPX     float64
		IPY     float64
		SkewX   float64
		SkewY   float64
		SRID    int32
		Width   uint16
		Height  uint16
	}
	if err := binary.Read(rd, order, &hdr); err != nil {
		return nil, errors.Annotate(err, "read raster header")
	}
	if hdr.Version != 0 {
		return nil, errors.NotSupportedf("raster WKB version %d", hdr.Version)
	}

	r := &Raster{
		ScaleX:  hdr.ScaleX,
		ScaleY:  hdr.ScaleY,
		OriginX: hdr.IPX,
		OriginY: hdr.IPY,
		SkewX:   hdr.SkewX,
		SkewY:   hdr.SkewY,
		SRID:    hdr.SRID,
		Width:   int(hdr.Width),
		Height:  int(hdr.Height),
		Bands:   make([]Band, 0, min(int(hdr.Bands), rd.Len())),
	}
	n := r.Width * r.Height

	for i := 0; i < int(hdr.Bands); i++ {
		flags, err := rd.ReadByte()
		if err != nil {
			return nil, errors.Annotatef(err, "read band %d flags", i)
		}
		if flags&bandOffline != 0 {
			return nil, errors.NotSupportedf("out-of-row band %d", i)
		}
		pt := PixelType(flags & pixelTypeMask)
		size, err := pt.Size()
		if err != nil {
			return nil, errors.Annotatef(err, "band %d", i)
		}

		// The header sizes are untrusted; check them against the payload
		// before allocating.
		if need := size * (n + 1); need > rd.Len() {
			return nil, errors.NotValidf("band %d of %dx%d needs %d bytes, %d left", i, r.Width, r.Height, need, rd.Len())
		}
		buf := make([]byte, size*(n+1))
		if _, err := io.ReadFull(rd, buf); err != nil {
			return nil, errors.Annotatef(err, "read band %d pixels", i)
		}
		values := make([]float64, n+1)
		readValues(buf, pt, order, values)

		r.Bands = append(r.Bands, Band{
			Type:      pt,
			HasNoData: flags&bandHasNoData != 0,
			NoData:    values[0],
			Values:    values[1:],
		})
	}
	return r, nil
}

func readValues(buf []byte, pt PixelType, order binary.ByteOrder, out []float64) {
	for i := range out {
		switch pt {
		case Pixel1BB, Pixel2BUI, Pixel4BUI, Pixel8BUI:
			out[i] = float64(buf[i])
		case Pixel8BSI:
			out[i] = float64(int8(buf[i]))
		case Pixel16BSI:
			out[i] = float64(int16(order.Uint16(buf[i*2:])))
		case Pixel16BUI:
			out[i] = float64(order.Uint16(buf[i*2:]))
		case Pixel32BSI:
			out[i] = float64(int32(order.Uint32(buf[i*4:])))
		case Pixel32BUI:
			out[i] = float64(order.Uint32(buf[i*4:]))
		case Pixel32BF:
			out[i] = float64(math.Float32frombits(order.Uint32(buf[i*4:])))
		case Pixel64BF:
			out[i] = math.Float64frombits(order.Uint64(buf[i*8:]))
		}
	}
}

// EncodeRaster writes r in little-endian PostGIS raster WKB.
func EncodeRaster(r *Raster) ([]byte, error) {
	if r.Width <= 0 || r.Height <= 0 || r.Width > math.MaxUint16 || r.Height > math.MaxUint16 {
		return nil, errors.NotValidf("raster size %dx%d", r.Width, r.Height)
	}
	order := binary.LittleEndian
	var buf bytes.Buffer
	buf.WriteByte(1)

	hdr := []any{
		uint16(0), uint16(len(r.Bands)),
		r.ScaleX, r.ScaleY, r.OriginX, r.OriginY, r.SkewX, r.SkewY,
		r.SRID, uint16(r.Width), uint16(r.Height),
	}
	for _, v := range hdr {
		if err := binary.Write(&buf, order, v); err != nil {
			return nil, errors.Trace(err)
		}
	}

	n := r.Width * r.Height
	for i, b := range r.Bands {
		if len(b.Values) != n {
			return nil, errors.NotValidf("band %d has %d values for %dx%d raster", i, len(b.Values), r.Width, r.Height)
		}
		size, err := b.Type.Size()
		if err != nil {
			return nil, errors.Annotatef(err, "band %d", i)
		}
		flags := byte(b.Type)
		if b.HasNoData {
			flags |= bandHasNoData
		}
		buf.WriteByte(flags)

		px := make([]byte, size)
		writeValue(px, b.Type, order, b.NoData)
		buf.Write(px)
		for _, v := range b.Values {
			writeValue(px, b.Type, order, v)
			buf.Write(px)
		}
	}
	return buf.Bytes(), nil
}

func writeValue(px []byte, pt PixelType, order binary.ByteOrder, v float64) {
	switch pt {
	case Pixel1BB, Pixel2BUI, Pixel4BUI, Pixel8BUI:
		px[0] = byte(v)
	case Pixel8BSI:
		px[0] = byte(int8(v))
	case Pixel16BSI:
		order.PutUint16(px, uint16(int16(v)))
	case Pixel16BUI:
		order.PutUint16(px, uint16(v))
	case Pixel32BSI:
		order.PutUint32(px, uint32(int32(v)))
	case Pixel32BUI:
		order.PutUint32(px, uint32(v))
	case Pixel32BF:
		order.PutUint32(px, math.Float32bits(float32(v)))
	case Pixel64BF:
		order.PutUint64(px, math.Float64bits(v))
	}
}
