package cropper

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"

	"golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	"golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/fpang/autocrop/internal/bounds"
)

// Codec is the image codec the engine delegates to.
type Codec interface {
	// DecodeConfig reads only the header: dimensions and format name.
	DecodeConfig(data []byte) (image.Config, string, error)

	// Decode fully decodes data and reports the format name.
	Decode(data []byte) (image.Image, string, error)

	// Trim returns the rectangle left after removing border rows and columns
	// matching bg within tolerance. An all-border image yields img.Bounds().
	Trim(img image.Image, bg color.NRGBA, tolerance int) image.Rectangle

	// Raw converts img to an origin-based pixel buffer.
	Raw(img image.Image) bounds.PixelBuffer

	// Extract copies the rectangle r of img into a new origin-based image.
	Extract(img image.Image, r image.Rectangle) (image.Image, error)

	// Encode writes img to w in the named format.
	Encode(w io.Writer, img image.Image, format string) error
}

// Format names as reported by image.Decode.
const (
	FormatJPEG = "jpeg"
	FormatPNG  = "png"
	FormatGIF  = "gif"
	FormatBMP  = "bmp"
	FormatTIFF = "tiff"
	FormatWebP = "webp"
)

// JPEGQuality is the quality used when re-encoding JPEG output.
const JPEGQuality = 95

// encodable lists formats StdCodec can write. WebP has no pure-Go encoder.
var encodable = map[string]bool{
	FormatJPEG: true,
	FormatPNG:  true,
	FormatGIF:  true,
	FormatBMP:  true,
	FormatTIFF: true,
}

// formatExtensions maps output formats to the file extension used on disk.
var formatExtensions = map[string]string{
	FormatJPEG: ".jpg",
	FormatPNG:  ".png",
	FormatGIF:  ".gif",
	FormatBMP:  ".bmp",
	FormatTIFF: ".tiff",
	FormatWebP: ".webp",
}

// FormatExtension returns the canonical file extension for format.
func FormatExtension(format string) string {
	if ext, ok := formatExtensions[format]; ok {
		return ext
	}
	return ".png"
}

// StdCodec implements Codec with the standard library decoders plus
// golang.org/x/image (webp, bmp, tiff, draw).
type StdCodec struct{}

var _ Codec = StdCodec{}

func (StdCodec) DecodeConfig(data []byte) (image.Config, string, error) {
	return image.DecodeConfig(bytes.NewReader(data))
}

func (StdCodec) Decode(data []byte) (image.Image, string, error) {
	return image.Decode(bytes.NewReader(data))
}

func (StdCodec) Raw(img image.Image) bounds.PixelBuffer {
	return bounds.FromImage(img)
}

func (StdCodec) Trim(img image.Image, bg color.NRGBA, tolerance int) image.Rectangle {
	full := img.Bounds()
	buf := bounds.FromImage(img)
	if buf.Validate() != nil {
		return full
	}

	w, h := buf.Width, buf.Height
	border := func(x, y int) bool {
		p := buf.Pix[(y*w+x)*4 : (y*w+x)*4+4]
		if p[3] == 0 {
			return true
		}
		return absDiff(p[0], bg.R) <= tolerance &&
			absDiff(p[1], bg.G) <= tolerance &&
			absDiff(p[2], bg.B) <= tolerance
	}
	rowBorder := func(y, x0, x1 int) bool {
		for x := x0; x < x1; x++ {
			if !border(x, y) {
				return false
			}
		}
		return true
	}
	colBorder := func(x, y0, y1 int) bool {
		for y := y0; y < y1; y++ {
			if !border(x, y) {
				return false
			}
		}
		return true
	}

	top := 0
	for top < h && rowBorder(top, 0, w) {
		top++
	}
	if top == h {
		return full
	}
	bottom := h
	for bottom > top && rowBorder(bottom-1, 0, w) {
		bottom--
	}
	left := 0
	for left < w && colBorder(left, top, bottom) {
		left++
	}
	right := w
	for right > left && colBorder(right-1, top, bottom) {
		right--
	}

	return image.Rect(left, top, right, bottom).Add(full.Min)
}

func (StdCodec) Extract(img image.Image, r image.Rectangle) (image.Image, error) {
	if r.Empty() || !r.In(img.Bounds()) {
		return nil, fmt.Errorf("extract area %v outside image %v", r, img.Bounds())
	}
	dstRect := image.Rect(0, 0, r.Dx(), r.Dy())

	if p, ok := img.(*image.Paletted); ok {
		dst := image.NewPaletted(dstRect, p.Palette)
		draw.Draw(dst, dstRect, p, r.Min, draw.Src)
		return dst, nil
	}
	dst := image.NewNRGBA(dstRect)
	draw.Draw(dst, dstRect, img, r.Min, draw.Src)
	return dst, nil
}

func (StdCodec) Encode(w io.Writer, img image.Image, format string) error {
	switch format {
	case FormatJPEG:
		return jpeg.Encode(w, img, &jpeg.Options{Quality: JPEGQuality})
	case FormatPNG:
		enc := png.Encoder{CompressionLevel: png.BestCompression}
		return enc.Encode(w, img)
	case FormatGIF:
		return gif.Encode(w, img, nil)
	case FormatBMP:
		return bmp.Encode(w, img)
	case FormatTIFF:
		return tiff.Encode(w, img, &tiff.Options{Compression: tiff.Deflate})
	default:
		return fmt.Errorf("no encoder for format %q", format)
	}
}

func absDiff(a, b uint8) int {
	if a > b {
		return int(a - b)
	}
	return int(b - a)
}
