package bounds

import (
	"image"
	"image/color"
	"testing"
)

// whiteBuffer returns a w×h buffer filled with pure white.
func whiteBuffer(w, h, channels int) PixelBuffer {
	pix := make([]byte, w*h*channels)
	for i := range pix {
		pix[i] = 255
	}
	return PixelBuffer{Width: w, Height: h, Channels: channels, Pix: pix}
}

func setPixel(b PixelBuffer, x, y int, r, g, bl byte) {
	off := (y*b.Width + x) * b.Channels
	b.Pix[off] = r
	b.Pix[off+1] = g
	b.Pix[off+2] = bl
}

func TestDetect_SinglePixel(t *testing.T) {
	points := []image.Point{{0, 0}, {50, 50}, {99, 0}, {0, 99}, {99, 99}, {13, 77}}
	for _, channels := range []int{3, 4} {
		for _, p := range points {
			buf := whiteBuffer(100, 100, channels)
			setPixel(buf, p.X, p.Y, 0, 0, 0)

			got, ok := Detect(buf, DefaultThreshold)
			if !ok {
				t.Fatalf("channels=%d point=%v: Detect() reported no content", channels, p)
			}
			want := Bounds{Left: p.X, Top: p.Y, Width: 1, Height: 1}
			if got != want {
				t.Errorf("channels=%d point=%v: Detect() = %+v, want %+v", channels, p, got, want)
			}
		}
	}
}

func TestDetect_AllBackground(t *testing.T) {
	tests := []struct {
		name  string
		value byte
	}{
		{"pure white", 255},
		{"at threshold", 250},
		{"just above threshold", 251},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := whiteBuffer(40, 30, 4)
			for i := 0; i < len(buf.Pix); i += 4 {
				buf.Pix[i], buf.Pix[i+1], buf.Pix[i+2] = tt.value, tt.value, tt.value
			}
			if got, ok := Detect(buf, DefaultThreshold); ok {
				t.Errorf("Detect() = %+v, want no content", got)
			}
		})
	}
}

func TestDetect_SingleChannelBelowThreshold(t *testing.T) {
	tests := []struct {
		name    string
		r, g, b byte
	}{
		{"red low", 249, 255, 255},
		{"green low", 255, 249, 255},
		{"blue low", 255, 255, 249},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := whiteBuffer(10, 10, 3)
			setPixel(buf, 4, 6, tt.r, tt.g, tt.b)
			got, ok := Detect(buf, DefaultThreshold)
			if !ok || got != (Bounds{Left: 4, Top: 6, Width: 1, Height: 1}) {
				t.Errorf("Detect() = %+v, %v", got, ok)
			}
		})
	}
}

func TestDetect_FullyForeground(t *testing.T) {
	buf := PixelBuffer{Width: 7, Height: 5, Channels: 3, Pix: make([]byte, 7*5*3)}
	got, ok := Detect(buf, DefaultThreshold)
	if !ok {
		t.Fatal("Detect() reported no content for a black image")
	}
	if !got.IsFull(7, 5) {
		t.Errorf("Detect() = %+v, want full image", got)
	}
}

func TestDetect_IgnoresAlpha(t *testing.T) {
	buf := whiteBuffer(8, 8, 4)
	// Transparent white is still background.
	for i := 3; i < len(buf.Pix); i += 4 {
		buf.Pix[i] = 0
	}
	if _, ok := Detect(buf, DefaultThreshold); ok {
		t.Error("alpha channel should not affect classification")
	}
}

func TestDetect_Rectangle(t *testing.T) {
	buf := whiteBuffer(60, 40, 4)
	setPixel(buf, 10, 5, 200, 200, 200)
	setPixel(buf, 45, 30, 10, 250, 250)
	setPixel(buf, 20, 20, 0, 0, 0)

	got, ok := Detect(buf, DefaultThreshold)
	if !ok {
		t.Fatal("Detect() reported no content")
	}
	want := Bounds{Left: 10, Top: 5, Width: 36, Height: 26}
	if got != want {
		t.Errorf("Detect() = %+v, want %+v", got, want)
	}
	if r := got.Rect(); r != image.Rect(10, 5, 46, 31) {
		t.Errorf("Rect() = %v", r)
	}
}

func TestDetect_InvalidBuffer(t *testing.T) {
	tests := []struct {
		name string
		buf  PixelBuffer
	}{
		{"empty", PixelBuffer{}},
		{"two channels", PixelBuffer{Width: 1, Height: 1, Channels: 2, Pix: []byte{0, 0}}},
		{"short pix", PixelBuffer{Width: 2, Height: 2, Channels: 3, Pix: []byte{0, 0, 0}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.buf.Validate() == nil {
				t.Error("Validate() = nil, want error")
			}
			if _, ok := Detect(tt.buf, DefaultThreshold); ok {
				t.Error("Detect() on invalid buffer should report no content")
			}
		})
	}
}

func TestFromImage_OffsetBounds(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 20, 20))
	for y := 0; y < 20; y++ {
		for x := 0; x < 20; x++ {
			src.Set(x, y, color.White)
		}
	}
	src.Set(12, 14, color.Black)

	sub := src.SubImage(image.Rect(10, 10, 20, 20))
	buf := FromImage(sub)
	if buf.Width != 10 || buf.Height != 10 || buf.Channels != 4 {
		t.Fatalf("FromImage() = %dx%dx%d", buf.Width, buf.Height, buf.Channels)
	}

	got, ok := Detect(buf, DefaultThreshold)
	if !ok || got != (Bounds{Left: 2, Top: 4, Width: 1, Height: 1}) {
		t.Errorf("Detect(FromImage(sub)) = %+v, %v", got, ok)
	}
}
