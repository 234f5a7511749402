package player

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/0bVdnt/PixlSurface/internal/video"
)

const defaultFPS = 24

// ControllerConfig holds the initial playback settings
type ControllerConfig struct {
	Width     int
	Height    int
	FPS       float64
	Loop      bool
	Buffering bool
	Paused    bool
	// LoadImage reads still images; defaults to video.LoadImage
	LoadImage func(path string) (*video.Frame, error)
	Log       logrus.FieldLogger
}

// Controller is the playback state machine.
//
// mu is the video lock. It guards state, phase and the status fields and
// is only held for short mutations; commands take it from any goroutine.
// Everything below the lock (source, buffer, retr) belongs to the playback
// goroutine calling Step, so decoding never runs with mu held.
type Controller struct {
	mu        sync.Mutex
	state     PlaybackState
	phase     State
	nativeFPS float64
	position  int
	total     int

	width     int
	height    int
	source    video.FrameSource
	buffer    *video.FrameBuffer
	retr      retriever
	zero      *video.Frame
	loadImage func(string) (*video.Frame, error)
	log       logrus.FieldLogger
}

// Output is a frame produced by one playback tick
type Output struct {
	Frame      *video.Frame
	Generation uint64
}

// Status is a snapshot for displays
type Status struct {
	State      State
	VideoPath  string
	Paused     bool
	Position   int
	Total      int
	NativeFPS  float64
	Generation uint64
}

// Returns the played fraction, or 0 when the length is unknown
func (s Status) Progress() float64 {
	if s.Total <= 0 {
		return 0
	}
	p := float64(s.Position) / float64(s.Total)
	if p > 1 {
		return 1
	}
	return p
}

// Creates an idle controller
func NewController(source video.FrameSource, cfg ControllerConfig) *Controller {
	if cfg.LoadImage == nil {
		cfg.LoadImage = video.LoadImage
	}
	if cfg.Log == nil {
		cfg.Log = logrus.StandardLogger()
	}
	return &Controller{
		state: PlaybackState{
			Loop:      cfg.Loop,
			Buffering: cfg.Buffering,
			Paused:    cfg.Paused,
			FPS:       cfg.FPS,
		},
		phase:     StateIdle,
		width:     cfg.Width,
		height:    cfg.Height,
		source:    source,
		buffer:    video.NewFrameBuffer(),
		zero:      video.NewFrame(cfg.Width, cfg.Height),
		loadImage: cfg.LoadImage,
		log:       cfg.Log,
	}
}

// Returns the current state
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// Returns a copy of the playback state
func (c *Controller) PlaybackState() PlaybackState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Status{
		State:      c.phase,
		VideoPath:  c.state.VideoPath,
		Paused:     c.state.Paused,
		Position:   c.position,
		Total:      c.total,
		NativeFPS:  c.nativeFPS,
		Generation: c.state.Generation,
	}
}

// Returns the tick period: the configured fps, else the source's native
// rate, else 24 fps
func (c *Controller) Interval() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	fps := c.state.FPS
	if fps <= 0 {
		fps = c.nativeFPS
	}
	if fps <= 0 {
		fps = defaultFPS
	}
	return time.Duration(float64(time.Second) / fps)
}

// work pending for one tick, taken under the video lock
type tick struct {
	generation uint64
	image      *string
	clear      bool
	stopped    bool
	open       bool
	path       string
	seek       *float64
	paused     bool
	loop       bool
	buffering  bool
}

func (c *Controller) take() tick {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := &c.state
	t := tick{
		generation: s.Generation,
		image:      s.ImagePath,
		clear:      s.ClearPending,
		stopped:    s.StopRequested,
		open:       s.SourceChanged,
		path:       s.VideoPath,
		paused:     s.Paused,
		loop:       s.Loop,
		buffering:  s.Buffering,
	}
	s.ImagePath = nil
	s.ClearPending = false
	s.SourceChanged = false
	if !t.stopped {
		t.seek = s.Seek
		s.Seek = nil
	}
	return t
}

// Step runs one playback iteration. It returns the frame to display, if
// the display should change, normalized to the surface size.
// Step must only be called from one goroutine.
func (c *Controller) Step() (Output, bool) {
	t := c.take()
	frame := c.run(t)
	c.updatePosition()
	if frame == nil {
		return Output{}, false
	}
	return Output{
		Frame:      video.Normalize(frame, c.width, c.height),
		Generation: t.generation,
	}, true
}

func (c *Controller) run(t tick) *video.Frame {
	switch {
	case t.image != nil:
		c.halt()
		return c.still(*t.image)
	case t.clear:
		c.halt()
		return c.zero
	case t.stopped:
		c.halt()
		return nil
	}

	if t.open {
		if !c.open(t) {
			return c.stop(t.generation)
		}
	}
	if c.retr == nil {
		return nil
	}

	seeked := false
	if t.seek != nil {
		if err := c.retr.Seek(*t.seek); err != nil {
			c.log.WithFields(logrus.Fields{
				"function": "Controller.run",
				"fraction": *t.seek,
				"error":    err,
			}).Warn("Seek failed")
		} else {
			seeked = true
		}
	}

	if t.paused && !seeked {
		if t.open {
			return c.zero
		}
		return nil
	}

	frame, err := c.retr.Next()
	if err == nil {
		return frame
	}
	if !t.loop {
		c.log.WithFields(logrus.Fields{
			"function": "Controller.run",
			"path":     t.path,
			"reason":   err,
		}).Info("Playback finished")
		return c.stop(t.generation)
	}

	if err := c.retr.Rewind(); err != nil {
		c.log.WithFields(logrus.Fields{
			"function": "Controller.run",
			"path":     t.path,
			"error":    err,
		}).Warn("Reopening source for loop failed")
		return c.stop(t.generation)
	}
	frame, err = c.retr.Next()
	if err != nil {
		return c.stop(t.generation)
	}
	return frame
}

// Opens the source and picks the retriever. Pre-buffering happens here.
func (c *Controller) open(t tick) bool {
	c.halt()
	c.setPhaseIf(t.generation, StateSourceOpening)

	log := c.log.WithFields(logrus.Fields{
		"function": "Controller.open",
		"path":     t.path,
	})

	if err := c.source.Open(t.path); err != nil {
		log.WithField("error", err).Warn("Unable to open video source")
		return false
	}

	if t.buffering {
		c.setPhaseIf(t.generation, StatePreBuffering)
		start := time.Now()
		n := c.buffer.Fill(c.source, c.width, c.height)
		log.WithFields(logrus.Fields{
			"frames":  n,
			"elapsed": time.Since(start),
		}).Info("Buffered all frames")
		if n == 0 {
			return false
		}
		c.retr = &bufferedRetriever{buf: c.buffer}
	} else {
		c.retr = &liveRetriever{src: c.source, path: t.path}
	}

	c.mu.Lock()
	c.nativeFPS = c.source.NativeFPS()
	current := c.state.Generation == t.generation
	if current {
		c.phase = StatePlaying
		if c.state.Paused {
			c.phase = StatePaused
		}
	}
	c.mu.Unlock()

	if current {
		log.WithField("native_fps", c.source.NativeFPS()).Info("Playing video")
	}
	return true
}

func (c *Controller) still(path string) *video.Frame {
	if path == "" {
		return c.zero
	}
	frame, err := c.loadImage(path)
	if err != nil {
		c.log.WithFields(logrus.Fields{
			"function": "Controller.still",
			"path":     path,
			"error":    err,
		}).Warn("Unable to load image")
		return c.zero
	}
	return frame
}

// Stops playback unless a newer command already changed the state, and
// returns the cleared frame
func (c *Controller) stop(generation uint64) *video.Frame {
	c.halt()
	c.mu.Lock()
	if c.state.Generation == generation {
		c.state.StopRequested = true
		c.phase = StateStopped
	}
	c.mu.Unlock()
	return c.zero
}

// drops the retriever and any buffered frames
func (c *Controller) halt() {
	c.retr = nil
	c.buffer.Reset()
}

// sets the phase unless a command changed the state since generation
func (c *Controller) setPhaseIf(generation uint64, s State) {
	c.mu.Lock()
	if c.state.Generation == generation {
		c.phase = s
	}
	c.mu.Unlock()
}

func (c *Controller) updatePosition() {
	pos, total := 0, 0
	if c.retr != nil {
		pos, total = c.retr.Position()
	}
	c.mu.Lock()
	c.position, c.total = pos, total
	c.mu.Unlock()
}

// Requests playback of path. An empty path stops playback and clears the
// display.
func (c *Controller) requestVideo(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := &c.state
	s.Generation++
	s.VideoPath = path
	s.ImagePath = nil
	if path == "" {
		s.StopRequested = true
		s.SourceChanged = false
		s.ClearPending = true
		c.phase = StateStopped
		return
	}
	s.StopRequested = false
	s.SourceChanged = true
	s.ClearPending = false
	c.phase = StateSourceOpening
}

// Stops playback and queues path to be shown on the next tick
func (c *Controller) requestImage(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := &c.state
	s.Generation++
	s.StopRequested = true
	s.SourceChanged = false
	s.ClearPending = false
	s.ImagePath = &path
	c.phase = StateStopped
}

// Queues a seek. Fractions outside [0, 1] leave any pending seek untouched.
func (c *Controller) requestSeek(fraction float64) error {
	if !video.ValidFraction(fraction) {
		return video.ErrInvalidSeek
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.state.Seek = &fraction
	return nil
}

// Returns false when playback is stopped and the request was ignored
func (c *Controller) requestPause(paused bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state.StopRequested {
		return false
	}
	c.state.Paused = paused
	switch c.phase {
	case StatePlaying, StatePaused:
		c.phase = StatePlaying
		if paused {
			c.phase = StatePaused
		}
	}
	return true
}

// Stops playback for an externally pushed frame and returns the generation
// the frame must be stored under
func (c *Controller) preempt() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := &c.state
	s.Generation++
	s.StopRequested = true
	s.SourceChanged = false
	s.ClearPending = false
	s.ImagePath = nil
	c.phase = StateStopped
	return s.Generation
}
