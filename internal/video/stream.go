package video

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"
	"runtime"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Holds streaming parameters
type StreamConfig struct {
	Width    int
	Height   int
	FPS      float64
	StartPos time.Duration
}

// Manages one ffmpeg decode process writing rawvideo to a pipe
type Stream struct {
	cmd    *exec.Cmd
	cancel context.CancelFunc
	stdout io.ReadCloser
	stderr io.ReadCloser
	reader *bufio.Reader
	log    logrus.FieldLogger

	width     int
	height    int
	frameSize int
	frameDur  time.Duration
	pos       time.Duration
	rgb       []byte

	mu      sync.Mutex
	stopped bool
	done    chan struct{}
}

// Creates and starts a new decode stream
func StartStream(ctx context.Context, path string, config StreamConfig, log logrus.FieldLogger) (*Stream, error) {
	args := buildFFmpegArgs(path, config.StartPos)
	log.WithFields(logrus.Fields{
		"function": "StartStream",
		"path":     path,
		"args":     args,
	}).Debug("Starting ffmpeg")

	cmdCtx, cancel := context.WithCancel(ctx)
	cmd := exec.CommandContext(cmdCtx, "ffmpeg", args...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}

	stderr, err := cmd.StderrPipe()
	if err != nil {
		cancel()
		stdout.Close()
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		cancel()
		stdout.Close()
		stderr.Close()
		return nil, fmt.Errorf("start: %w", err)
	}

	frameSize := config.Width * config.Height * 3
	fps := config.FPS
	if fps <= 0 {
		fps = 25
	}

	s := &Stream{
		cmd:       cmd,
		cancel:    cancel,
		stdout:    stdout,
		stderr:    stderr,
		reader:    bufio.NewReaderSize(stdout, frameSize*2),
		log:       log,
		width:     config.Width,
		height:    config.Height,
		frameSize: frameSize,
		frameDur:  time.Duration(float64(time.Second) / fps),
		pos:       config.StartPos,
		rgb:       make([]byte, frameSize),
		done:      make(chan struct{}),
	}

	go s.drainStderr()

	log.WithFields(logrus.Fields{
		"function": "StartStream",
		"pid":      cmd.Process.Pid,
	}).Debug("FFmpeg started")

	return s, nil
}

// Builds arguments for FFmpeg. Frames come out at native size and rate.
func buildFFmpegArgs(path string, startPos time.Duration) []string {
	args := []string{
		"-threads", fmt.Sprintf("%d", runtime.NumCPU()),
	}

	if startPos > 0 {
		args = append(args, "-ss", fmt.Sprintf("%.3f", startPos.Seconds()))
	}

	args = append(args,
		"-i", path,
		"-pix_fmt", "rgb24",
		"-f", "rawvideo",
		"-an",
		"-sn",
		"-loglevel", "error",
		"-",
	)
	return args
}

// Reads the next frame, blocking until ffmpeg produces it.
// Returns ErrEndOfStream once the pipe is drained.
func (s *Stream) ReadFrame() (*Frame, error) {
	s.mu.Lock()
	stopped := s.stopped
	s.mu.Unlock()
	if stopped {
		return nil, ErrEndOfStream
	}

	if _, err := io.ReadFull(s.reader, s.rgb); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, ErrEndOfStream
		}
		return nil, fmt.Errorf("%w: %v", ErrDecodeFailed, err)
	}

	frame := NewFrame(s.width, s.height)
	convertRGB24ToBGRA(s.rgb, frame.Pix)
	frame.Timestamp = s.pos
	s.pos += s.frameDur
	return frame, nil
}

func (s *Stream) drainStderr() {
	defer close(s.done)
	buf := make([]byte, 1024)
	for {
		n, err := s.stderr.Read(buf)
		if n > 0 {
			s.log.WithField("function", "Stream.drainStderr").
				Debugf("FFmpeg stderr: %s", string(buf[:n]))
		}
		if err != nil {
			break
		}
	}
}

// Terminates the stream and waits for ffmpeg to exit
func (s *Stream) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}
	if s.cmd != nil && s.cmd.Process != nil {
		s.cmd.Process.Kill()
	}
	s.stdout.Close()

	select {
	case <-s.done:
	case <-time.After(500 * time.Millisecond):
	}
	s.cmd.Wait()
}
