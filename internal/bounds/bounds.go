// Package bounds finds the smallest rectangle enclosing the non-background
// pixels of a decoded image.
//
// This is the fallback path of the crop pipeline: it runs only when the
// primary border trim leaves the image dimensions unchanged. It is a single
// linear pass with no auxiliary allocations.
package bounds

import (
	"fmt"
	"image"
	"image/draw"
)

// DefaultThreshold is the near-white cutoff on a 0-255 scale. A pixel whose
// red, green and blue samples are all at or above it is background.
const DefaultThreshold uint8 = 250

// PixelBuffer is a raw decoded image: row-major, interleaved samples with
// Channels samples per pixel (3 = RGB, 4 = RGBA).
type PixelBuffer struct {
	Width    int
	Height   int
	Channels int
	Pix      []byte
}

// Validate reports whether the buffer dimensions agree with its sample data.
func (b PixelBuffer) Validate() error {
	if b.Width <= 0 || b.Height <= 0 {
		return fmt.Errorf("invalid buffer dimensions %dx%d", b.Width, b.Height)
	}
	if b.Channels != 3 && b.Channels != 4 {
		return fmt.Errorf("unsupported channel count %d", b.Channels)
	}
	if want := b.Width * b.Height * b.Channels; len(b.Pix) < want {
		return fmt.Errorf("buffer too short: have %d samples, want %d", len(b.Pix), want)
	}
	return nil
}

// Bounds is an inclusive-exclusive pixel rectangle expressed as origin plus size.
type Bounds struct {
	Left   int `json:"left"`
	Top    int `json:"top"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Rect converts the bounds to an image.Rectangle.
func (b Bounds) Rect() image.Rectangle {
	return image.Rect(b.Left, b.Top, b.Left+b.Width, b.Top+b.Height)
}

// IsFull reports whether the bounds cover an entire w×h image.
func (b Bounds) IsFull(w, h int) bool {
	return b.Left == 0 && b.Top == 0 && b.Width == w && b.Height == h
}

func (b Bounds) String() string {
	return fmt.Sprintf("%dx%d+%d+%d", b.Width, b.Height, b.Left, b.Top)
}

// FromImage converts any image to a 4-channel NRGBA PixelBuffer whose origin
// is (0,0), regardless of the source image's bounds.
func FromImage(img image.Image) PixelBuffer {
	r := img.Bounds()
	var nrgba *image.NRGBA
	if n, ok := img.(*image.NRGBA); ok && r.Min == (image.Point{}) && n.Stride == 4*r.Dx() {
		nrgba = n
	} else {
		nrgba = image.NewNRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
		draw.Draw(nrgba, nrgba.Bounds(), img, r.Min, draw.Src)
	}
	return PixelBuffer{
		Width:    r.Dx(),
		Height:   r.Dy(),
		Channels: 4,
		Pix:      nrgba.Pix,
	}
}

// Detect scans every pixel of buf and returns the minimal rectangle enclosing
// all foreground pixels. A pixel is background when its first three channels
// are all >= threshold; alpha is ignored. ok is false when the whole image
// is background.
func Detect(buf PixelBuffer, threshold uint8) (b Bounds, ok bool) {
	if buf.Validate() != nil {
		return Bounds{}, false
	}

	minX, minY := buf.Width, buf.Height
	maxX, maxY := -1, -1
	ch := buf.Channels

	for y := 0; y < buf.Height; y++ {
		row := buf.Pix[y*buf.Width*ch : (y+1)*buf.Width*ch]
		for x := 0; x < buf.Width; x++ {
			p := row[x*ch : x*ch+3]
			if p[0] >= threshold && p[1] >= threshold && p[2] >= threshold {
				continue
			}
			if x < minX {
				minX = x
			}
			if x > maxX {
				maxX = x
			}
			if y < minY {
				minY = y
			}
			maxY = y
		}
	}

	if maxX < 0 {
		return Bounds{}, false
	}
	return Bounds{
		Left:   minX,
		Top:    minY,
		Width:  maxX - minX + 1,
		Height: maxY - minY + 1,
	}, true
}
