package video

import (
	"context"
	"fmt"
	"math"
	"os"
	"os/exec"
	"time"

	"github.com/sirupsen/logrus"
)

// FrameSource is a decodable video yielding sequential frames.
//
// A source that failed to open stays "not opened": every read fails with
// ErrNotOpened. Implementations are not safe for concurrent use.
type FrameSource interface {
	// Open (re)opens path and positions the source at its first frame.
	Open(path string) error
	// ReadNext returns the next frame at the source's native size.
	ReadNext() (*Frame, error)
	// SeekFraction positions the source at frame floor(FrameCount() * f).
	SeekFraction(f float64) error
	NativeFPS() float64
	FrameCount() int
	// Position returns the index of the next frame to be read.
	Position() int
	Close() error
}

// FrameSource backed by ffprobe and an ffmpeg subprocess
type Source struct {
	ctx context.Context
	log logrus.FieldLogger

	path   string
	meta   Metadata
	stream *Stream
	index  int
	opened bool
}

var _ FrameSource = (*Source)(nil)

// Creates a closed source. ctx bounds the lifetime of ffmpeg processes.
func NewSource(ctx context.Context, log logrus.FieldLogger) *Source {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Source{ctx: ctx, log: log}
}

// Opens path, replacing any previous stream
func (s *Source) Open(path string) error {
	s.stopStream()
	s.opened = false
	s.path = path
	s.index = 0

	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSourceOpen, err)
	}

	if _, err := exec.LookPath("ffmpeg"); err != nil {
		return fmt.Errorf("%w: ffmpeg not found", ErrSourceOpen)
	}

	meta, err := Probe(path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSourceOpen, err)
	}
	s.meta = *meta

	s.log.WithFields(logrus.Fields{
		"function":    "Source.Open",
		"path":        path,
		"size":        info.Size(),
		"width":       meta.Width,
		"height":      meta.Height,
		"fps":         meta.FPS,
		"frame_count": meta.FrameCount,
		"codec":       meta.Codec,
		"duration":    meta.Duration,
	}).Info("Opened video source")

	if err := s.startAt(0); err != nil {
		return fmt.Errorf("%w: %v", ErrSourceOpen, err)
	}
	s.opened = true
	return nil
}

func (s *Source) startAt(index int) error {
	s.stopStream()
	stream, err := StartStream(s.ctx, s.path, StreamConfig{
		Width:    s.meta.Width,
		Height:   s.meta.Height,
		FPS:      s.meta.FPS,
		StartPos: time.Duration(float64(index) / s.meta.FPS * float64(time.Second)),
	}, s.log)
	if err != nil {
		return err
	}
	s.stream = stream
	s.index = index
	return nil
}

func (s *Source) ReadNext() (*Frame, error) {
	if !s.opened || s.stream == nil {
		return nil, ErrNotOpened
	}
	frame, err := s.stream.ReadFrame()
	if err != nil {
		return nil, err
	}
	s.index++
	return frame, nil
}

func (s *Source) SeekFraction(f float64) error {
	if !ValidFraction(f) {
		return ErrInvalidSeek
	}
	if !s.opened {
		return ErrNotOpened
	}
	index := int(math.Floor(float64(s.meta.FrameCount) * f))
	s.log.WithFields(logrus.Fields{
		"function": "Source.SeekFraction",
		"fraction": f,
		"index":    index,
	}).Debug("Seeking")
	return s.startAt(index)
}

func (s *Source) NativeFPS() float64 {
	return s.meta.FPS
}

func (s *Source) FrameCount() int {
	return s.meta.FrameCount
}

func (s *Source) Position() int {
	return s.index
}

func (s *Source) stopStream() {
	if s.stream != nil {
		s.stream.Stop()
		s.stream = nil
	}
}

// Stops any running decode process
func (s *Source) Close() error {
	s.stopStream()
	s.opened = false
	return nil
}

// Decodes the frame at timestamp, scaled by ffmpeg to width x height
func ExtractFrame(path string, timestamp time.Duration, width, height int) (*Frame, error) {
	width = normalizeEven(width, 4, 4096)
	height = normalizeEven(height, 4, 4096)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-ss", fmt.Sprintf("%.3f", timestamp.Seconds()),
		"-i", path,
		"-vframes", "1",
		"-vf", fmt.Sprintf("scale=%d:%d", width, height),
		"-pix_fmt", "bgra",
		"-f", "rawvideo",
		"-loglevel", "error",
		"-",
	)

	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("extract frame: %w", err)
	}

	expectedSize := width * height * 4
	if len(out) < expectedSize {
		return nil, fmt.Errorf("incomplete: got %d, want %d", len(out), expectedSize)
	}

	return &Frame{
		Pix:       out[:expectedSize],
		Width:     width,
		Height:    height,
		Timestamp: timestamp,
	}, nil
}

func normalizeEven(v, min, max int) int {
	v = (v / 2) * 2
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
