package video

import (
	"errors"
	"fmt"
	"image"
	"image/draw"
	"time"

	"github.com/nfnt/resize"
)

var (
	ErrUnsupportedEncoding = errors.New("unsupported pixel encoding")
	ErrShortBuffer         = errors.New("pixel buffer shorter than frame")
	ErrFrameSize           = errors.New("invalid frame size")
)

// Largest frame accepted from configuration or the command bus, in pixels
const MaxFramePixels = 8192 * 8192

// Reports whether width x height is positive and at most MaxFramePixels
func ValidSize(width, height int) bool {
	return width > 0 && height > 0 && width <= MaxFramePixels && height <= MaxFramePixels/width
}

// Represents a decoded frame, 4 bytes per pixel in BGRA order
type Frame struct {
	Pix       []byte
	Width     int
	Height    int
	Timestamp time.Duration
}

// Creates an all-zero frame
func NewFrame(width, height int) *Frame {
	return &Frame{
		Pix:    make([]byte, width*height*4),
		Width:  width,
		Height: height,
	}
}

// Reports whether the frame has the given dimensions and a matching buffer
func (f *Frame) HasSize(width, height int) bool {
	return f.Width == width && f.Height == height && len(f.Pix) == width*height*4
}

// Reports whether every byte of the frame is zero
func (f *Frame) IsCleared() bool {
	for _, b := range f.Pix {
		if b != 0 {
			return false
		}
	}
	return true
}

// Converts any image into a BGRA frame of the same size. Alpha is kept.
func FromImage(img image.Image) *Frame {
	rgba, ok := img.(*image.RGBA)
	if !ok || rgba.Rect.Min != (image.Point{}) || rgba.Stride != rgba.Rect.Dx()*4 {
		b := img.Bounds()
		rgba = image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
		draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Src)
	}
	f := &Frame{
		Pix:    make([]byte, len(rgba.Pix)),
		Width:  rgba.Rect.Dx(),
		Height: rgba.Rect.Dy(),
	}
	swapRB(rgba.Pix, f.Pix)
	return f
}

// Returns the frame as an RGBA image (copy)
func (f *Frame) RGBA() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, f.Width, f.Height))
	swapRB(f.Pix, img.Pix)
	return img
}

// Resizes the frame to width x height if needed. Frames that already
// match are returned as is.
func Normalize(f *Frame, width, height int) *Frame {
	if f == nil {
		return NewFrame(width, height)
	}
	if f.HasSize(width, height) {
		return f
	}
	if f.Width <= 0 || f.Height <= 0 {
		return NewFrame(width, height)
	}

	out := resize.Resize(uint(width), uint(height), f.RGBA(), resize.Bilinear)
	n := FromImage(out)
	n.Timestamp = f.Timestamp
	return n
}

// Raw pixel data pushed over the command bus
type RawImage struct {
	Width    int
	Height   int
	Encoding string
	Data     []byte
}

// Converts the raw data to a BGRA frame of its own size
func (r RawImage) ToFrame() (*Frame, error) {
	if !ValidSize(r.Width, r.Height) {
		return nil, fmt.Errorf("%w: %dx%d", ErrFrameSize, r.Width, r.Height)
	}
	bpp, ok := bytesPerPixel[r.Encoding]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedEncoding, r.Encoding)
	}
	pixels := r.Width * r.Height
	if len(r.Data) < pixels*bpp {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrShortBuffer, len(r.Data), pixels*bpp)
	}

	f := NewFrame(r.Width, r.Height)
	src, dst := r.Data, f.Pix
	switch r.Encoding {
	case EncodingBGRA8:
		copy(dst, src[:pixels*4])
	case EncodingRGBA8:
		swapRB(src[:pixels*4], dst)
	case EncodingBGR8:
		for i, j := 0, 0; j < len(dst); i, j = i+3, j+4 {
			dst[j], dst[j+1], dst[j+2], dst[j+3] = src[i], src[i+1], src[i+2], 255
		}
	case EncodingRGB8:
		convertRGB24ToBGRA(src[:pixels*3], dst)
	case EncodingMono8:
		for i, j := 0, 0; j < len(dst); i, j = i+1, j+4 {
			dst[j], dst[j+1], dst[j+2], dst[j+3] = src[i], src[i], src[i], 255
		}
	}
	return f, nil
}

const (
	EncodingRGB8  = "rgb8"
	EncodingBGR8  = "bgr8"
	EncodingRGBA8 = "rgba8"
	EncodingBGRA8 = "bgra8"
	EncodingMono8 = "mono8"
)

var bytesPerPixel = map[string]int{
	EncodingRGB8:  3,
	EncodingBGR8:  3,
	EncodingRGBA8: 4,
	EncodingBGRA8: 4,
	EncodingMono8: 1,
}

// swaps the first and third byte of every 4-byte pixel
func swapRB(src, dst []byte) {
	for i := 0; i+3 < len(src); i += 4 {
		dst[i] = src[i+2]
		dst[i+1] = src[i+1]
		dst[i+2] = src[i]
		dst[i+3] = src[i+3]
	}
}

func convertRGB24ToBGRA(src, dst []byte) {
	for i, j := 0, 0; i+2 < len(src) && j+3 < len(dst); i, j = i+3, j+4 {
		dst[j] = src[i+2]
		dst[j+1] = src[i+1]
		dst[j+2] = src[i]
		dst[j+3] = 255
	}
}
