package video

import "math"

// FrameBuffer is a fully decoded source held in memory for instant seeking.
// It is not safe for concurrent use; the playback controller guards it.
type FrameBuffer struct {
	frames []*Frame
	cursor int
}

// Creates an empty frame buffer
func NewFrameBuffer() *FrameBuffer {
	return &FrameBuffer{}
}

// Decodes src until its first failed read, normalizing every frame to
// width x height. Returns the number of frames buffered.
func (b *FrameBuffer) Fill(src FrameSource, width, height int) int {
	b.Reset()
	for {
		f, err := src.ReadNext()
		if err != nil {
			break
		}
		b.frames = append(b.frames, Normalize(f, width, height))
	}
	return len(b.frames)
}

func (b *FrameBuffer) Len() int {
	return len(b.frames)
}

func (b *FrameBuffer) Cursor() int {
	return b.cursor
}

// Moves the cursor to round((Len()-1) * f)
func (b *FrameBuffer) SeekFraction(f float64) error {
	if !ValidFraction(f) {
		return ErrInvalidSeek
	}
	if len(b.frames) == 0 {
		return ErrEndOfStream
	}
	b.cursor = int(math.Round(float64(len(b.frames)-1) * f))
	return nil
}

// Returns the frame under the cursor and advances it. On overrun the
// cursor wraps to 0 and ok is false.
func (b *FrameBuffer) Next() (f *Frame, ok bool) {
	if b.cursor >= len(b.frames) {
		b.cursor = 0
		return nil, false
	}
	f = b.frames[b.cursor]
	b.cursor++
	return f, true
}

// Moves the cursor back to the first frame
func (b *FrameBuffer) Rewind() {
	b.cursor = 0
}

// Drops all frames
func (b *FrameBuffer) Reset() {
	b.frames = nil
	b.cursor = 0
}
