// Package surface holds the frame handed from the playback context to the
// host renderer, and the interfaces the host implements to receive it.
package surface

// Describes the texture the host allocated for the video
type Spec struct {
	Width  int
	Height int
	// DoubleSided disables back-face culling when the surface is a plane.
	DoubleSided bool
}

// Returns the byte length of one BGRA frame for this surface
func (s Spec) FrameSize() int {
	return s.Width * s.Height * 4
}

// RenderSink is the host side of the surface.
type RenderSink interface {
	// Upload copies one BGRA frame of the surface's size into the render target.
	Upload(pix []byte)
	// ConnectPreRender registers fn to run once per render tick, on the
	// host's render context. The returned func removes it.
	ConnectPreRender(fn func()) (disconnect func())
}
