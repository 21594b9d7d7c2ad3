package codec

import (
	"image"
	"image/color"
	"math"
)

// Image converts the raster to an image.
//
// Single 8-bit unsigned bands become Gray, 16-bit unsigned bands Gray16,
// three or four 8-bit bands NRGBA. Anything else is rendered from the first
// band, linearly stretched between its minimum and maximum, with nodata
// pixels left black.
func (r *Raster) Image() image.Image {
	rect := image.Rect(0, 0, r.Width, r.Height)
	if len(r.Bands) == 0 {
		return image.NewGray(rect)
	}

	if allBandsOfType(r.Bands, Pixel8BUI) && (len(r.Bands) == 3 || len(r.Bands) == 4) {
		img := image.NewNRGBA(rect)
		for i := 0; i < r.Width*r.Height; i++ {
			a := uint8(255)
			if len(r.Bands) == 4 {
				a = uint8(r.Bands[3].Values[i])
			}
			img.Pix[i*4] = uint8(r.Bands[0].Values[i])
			img.Pix[i*4+1] = uint8(r.Bands[1].Values[i])
			img.Pix[i*4+2] = uint8(r.Bands[2].Values[i])
			img.Pix[i*4+3] = a
		}
		return img
	}

	b := r.Bands[0]
	switch b.Type {
	case Pixel1BB, Pixel2BUI, Pixel4BUI, Pixel8BUI:
		scale := map[PixelType]float64{Pixel1BB: 255, Pixel2BUI: 85, Pixel4BUI: 17, Pixel8BUI: 1}[b.Type]
		img := image.NewGray(rect)
		for i, v := range b.Values {
			img.Pix[i] = uint8(v * scale)
		}
		return img
	case Pixel16BUI:
		img := image.NewGray16(rect)
		for i, v := range b.Values {
			img.SetGray16(i%r.Width, i/r.Width, color.Gray16{Y: uint16(v)})
		}
		return img
	default:
		return stretch(b, rect)
	}
}

func stretch(b Band, rect image.Rectangle) *image.Gray {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range b.Values {
		if isNoData(b, v) {
			continue
		}
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}

	img := image.NewGray(rect)
	span := hi - lo
	for i, v := range b.Values {
		if isNoData(b, v) {
			continue
		}
		if span <= 0 {
			img.Pix[i] = 255
			continue
		}
		img.Pix[i] = uint8(math.Round((v - lo) / span * 255))
	}
	return img
}

func isNoData(b Band, v float64) bool {
	return math.IsNaN(v) || (b.HasNoData && v == b.NoData)
}

func allBandsOfType(bands []Band, pt PixelType) bool {
	for _, b := range bands {
		if b.Type != pt {
			return false
		}
	}
	return true
}
