// Package cropper decides how to crop whitespace from a single image.
//
// Three ordered attempts are made:
//   - Primary trim: remove border rows and columns matching the configured
//     background color within a tolerance.
//   - Fallback bounds: when trim leaves the dimensions unchanged, decode to a
//     raw pixel buffer and crop to the bounds of all non-near-white pixels.
//   - Passthrough: when no foreground exists at all, re-encode the original.
//
// Every codec failure is reported as a Failed outcome instead of an error so
// that batch callers can record it and move on to the next image.
package cropper

import (
	"bytes"
	"fmt"
	"image"

	"github.com/rs/zerolog/log"

	"github.com/fpang/autocrop/internal/apperr"
	"github.com/fpang/autocrop/internal/bounds"
)

// Kind identifies which crop outcome variant holds.
type Kind string

const (
	KindCropped     Kind = "cropped"
	KindUnchanged   Kind = "unchanged"
	KindPassthrough Kind = "passthrough"
	KindFailed      Kind = "failed"
)

// Crop methods recorded on Cropped outcomes.
const (
	MethodTrim   = "trim"
	MethodBounds = "bounds"
)

// OutputPolicy selects the encoding of the produced image.
type OutputPolicy int

const (
	// PreserveFormat keeps the source encoding when an encoder exists for it.
	PreserveFormat OutputPolicy = iota
	// Lossless always writes PNG.
	Lossless
)

// OutputFormat resolves the output format for a source format under policy.
func OutputFormat(source string, policy OutputPolicy) string {
	if policy == Lossless || !encodable[source] {
		return FormatPNG
	}
	return source
}

// Outcome is the result of one crop attempt. Exactly one Kind holds; Data is
// set for every kind except KindFailed, Err only for KindFailed.
type Outcome struct {
	Kind   Kind
	Method string
	Data   []byte
	Format string

	// Bounds is the kept rectangle relative to the original image.
	Bounds bounds.Bounds

	Width          int
	Height         int
	OriginalWidth  int
	OriginalHeight int

	Err error
}

// OK reports whether the attempt produced an output image.
func (o Outcome) OK() bool {
	return o.Kind != KindFailed
}

func failed(err error) Outcome {
	return Outcome{Kind: KindFailed, Err: err}
}

// Engine applies the crop policy using a Codec.
type Engine struct {
	cfg   Config
	codec Codec
}

// NewEngine returns an Engine. A nil codec selects StdCodec.
func NewEngine(cfg Config, codec Codec) *Engine {
	if codec == nil {
		codec = StdCodec{}
	}
	return &Engine{cfg: cfg, codec: codec}
}

// Config returns the engine's crop configuration.
func (e *Engine) Config() Config {
	return e.cfg
}

// Process crops whitespace from the encoded image in data.
func (e *Engine) Process(data []byte, policy OutputPolicy) Outcome {
	if len(data) == 0 {
		return failed(apperr.Validation("crop", "empty image data"))
	}

	hdr, _, err := e.codec.DecodeConfig(data)
	if err != nil {
		return failed(apperr.New(apperr.KindDecode, "decode header", err))
	}
	if e.cfg.MaxPixels > 0 && int64(hdr.Width)*int64(hdr.Height) > e.cfg.MaxPixels {
		return failed(apperr.New(apperr.KindDecode, "decode header",
			fmt.Errorf("image is %dx%d, exceeds the %d pixel limit", hdr.Width, hdr.Height, e.cfg.MaxPixels)))
	}

	img, srcFormat, err := e.codec.Decode(data)
	if err != nil {
		return failed(apperr.New(apperr.KindDecode, "decode", err))
	}
	full := img.Bounds()
	outFormat := OutputFormat(srcFormat, policy)

	base := Outcome{
		Format:         outFormat,
		OriginalWidth:  full.Dx(),
		OriginalHeight: full.Dy(),
	}

	trimmed := e.codec.Trim(img, e.cfg.Background, e.cfg.Tolerance)
	if trimmed.Size() != full.Size() {
		log.Debug().
			Str("format", srcFormat).
			Str("from", full.Size().String()).
			Str("to", trimmed.Size().String()).
			Msg("Primary trim changed dimensions")
		return e.crop(base, img, trimmed, MethodTrim)
	}

	buf := e.codec.Raw(img)
	b, ok := bounds.Detect(buf, e.cfg.FallbackThreshold)
	switch {
	case !ok:
		log.Debug().Str("format", srcFormat).Msg("No foreground content, passing image through")
		base.Kind = KindPassthrough
		base.Bounds = bounds.Bounds{Width: full.Dx(), Height: full.Dy()}
		return e.encode(base, img)
	case b.IsFull(full.Dx(), full.Dy()):
		base.Kind = KindUnchanged
		base.Bounds = b
		return e.encode(base, img)
	default:
		log.Debug().
			Str("format", srcFormat).
			Str("bounds", b.String()).
			Msg("Fallback bounds detected")
		return e.crop(base, img, b.Rect().Add(full.Min), MethodBounds)
	}
}

// crop extracts r (in img coordinates) and encodes it as a Cropped outcome.
func (e *Engine) crop(base Outcome, img image.Image, r image.Rectangle, method string) Outcome {
	out, err := e.codec.Extract(img, r)
	if err != nil {
		return failed(apperr.New(apperr.KindDecode, "extract", err))
	}
	origin := img.Bounds().Min
	base.Kind = KindCropped
	base.Method = method
	base.Bounds = bounds.Bounds{
		Left:   r.Min.X - origin.X,
		Top:    r.Min.Y - origin.Y,
		Width:  r.Dx(),
		Height: r.Dy(),
	}
	return e.encode(base, out)
}

func (e *Engine) encode(o Outcome, img image.Image) Outcome {
	var buf bytes.Buffer
	if err := e.codec.Encode(&buf, img, o.Format); err != nil {
		return failed(apperr.New(apperr.KindEncode, "encode "+o.Format, err))
	}
	o.Data = buf.Bytes()
	o.Width = img.Bounds().Dx()
	o.Height = img.Bounds().Dy()
	return o
}
