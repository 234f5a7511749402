// Package videotest provides an in-memory FrameSource for tests.
package videotest

import (
	"fmt"
	"math"
	"sync"

	"github.com/0bVdnt/PixlSurface/internal/video"
)

// Source serves pre-built frames keyed by path
type Source struct {
	mu     sync.Mutex
	files  map[string][]*video.Frame
	fps    float64
	path   string
	frames []*video.Frame
	index  int
	opened bool

	Opens  int
	Reads  int
	Closed bool
}

var _ video.FrameSource = (*Source)(nil)

// Creates an empty source reporting fps as its native rate
func NewSource(fps float64) *Source {
	return &Source{files: map[string][]*video.Frame{}, fps: fps}
}

// Registers frames under path
func (s *Source) Add(path string, frames ...*video.Frame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[path] = frames
}

// Builds n frames of width x height; every byte of frame i is i+1
func Frames(n, width, height int) []*video.Frame {
	frames := make([]*video.Frame, n)
	for i := range frames {
		f := video.NewFrame(width, height)
		for j := range f.Pix {
			f.Pix[j] = byte(i + 1)
		}
		frames[i] = f
	}
	return frames
}

// Returns which frame of Frames() f is, or -1
func Index(f *video.Frame) int {
	if f == nil || len(f.Pix) == 0 || f.IsCleared() {
		return -1
	}
	return int(f.Pix[0]) - 1
}

func (s *Source) Open(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Opens++
	s.path = path
	s.index = 0
	frames, ok := s.files[path]
	if !ok {
		s.opened = false
		s.frames = nil
		return fmt.Errorf("%w: %s", video.ErrSourceOpen, path)
	}
	s.frames = frames
	s.opened = true
	return nil
}

func (s *Source) ReadNext() (*video.Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Reads++
	if !s.opened {
		return nil, video.ErrNotOpened
	}
	if s.index >= len(s.frames) {
		return nil, video.ErrEndOfStream
	}
	f := s.frames[s.index]
	s.index++
	return f, nil
}

func (s *Source) SeekFraction(f float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !video.ValidFraction(f) {
		return video.ErrInvalidSeek
	}
	if !s.opened {
		return video.ErrNotOpened
	}
	s.index = int(math.Floor(float64(len(s.frames)) * f))
	return nil
}

func (s *Source) NativeFPS() float64 {
	return s.fps
}

func (s *Source) FrameCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.frames)
}

func (s *Source) Position() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index
}

func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Closed = true
	s.opened = false
	return nil
}
