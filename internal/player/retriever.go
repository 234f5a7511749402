package player

import "github.com/0bVdnt/PixlSurface/internal/video"

// retriever is how the controller pulls frames from the current source.
// One is chosen per source change: buffered when pre-buffering is on,
// live otherwise.
type retriever interface {
	Seek(fraction float64) error
	// Next returns video.ErrEndOfStream (or another error) when no frame is left.
	Next() (*video.Frame, error)
	// Rewind restarts from the first frame.
	Rewind() error
	Position() (index, total int)
}

type liveRetriever struct {
	src  video.FrameSource
	path string
}

func (r *liveRetriever) Seek(fraction float64) error {
	return r.src.SeekFraction(fraction)
}

func (r *liveRetriever) Next() (*video.Frame, error) {
	return r.src.ReadNext()
}

func (r *liveRetriever) Rewind() error {
	return r.src.Open(r.path)
}

func (r *liveRetriever) Position() (int, int) {
	return r.src.Position(), r.src.FrameCount()
}

type bufferedRetriever struct {
	buf *video.FrameBuffer
}

func (r *bufferedRetriever) Seek(fraction float64) error {
	return r.buf.SeekFraction(fraction)
}

func (r *bufferedRetriever) Next() (*video.Frame, error) {
	f, ok := r.buf.Next()
	if !ok {
		return nil, video.ErrEndOfStream
	}
	return f, nil
}

func (r *bufferedRetriever) Rewind() error {
	r.buf.Rewind()
	return nil
}

func (r *bufferedRetriever) Position() (int, int) {
	return r.buf.Cursor(), r.buf.Len()
}
