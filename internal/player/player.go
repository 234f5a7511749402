package player

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"

	"github.com/0bVdnt/PixlSurface/internal/command"
	"github.com/0bVdnt/PixlSurface/internal/config"
	"github.com/0bVdnt/PixlSurface/internal/surface"
	"github.com/0bVdnt/PixlSurface/internal/video"
)

var ErrAlreadyStarted = errors.New("player already started")

// Options are the host-provided collaborators of a Player
type Options struct {
	Logger logrus.FieldLogger
	// WallClock paces playback when useWallRate is set; defaults to the system clock
	WallClock clock.Clock
	// SimClock paces playback otherwise
	SimClock  clock.Clock
	LoadImage func(path string) (*video.Frame, error)
	// Resolve maps configured default paths to files; defaults to cfg.Resolve
	Resolve func(path string) string
}

// Player streams a video source or still images onto a render surface.
type Player struct {
	cfg      config.Config
	source   video.FrameSource
	sink     surface.RenderSink
	commands command.Source

	ctrl   *Controller
	router *Router
	slot   *surface.Slot
	rate   *rate
	log    logrus.FieldLogger

	disconnect func()

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	errs    *multierror.Error

	closeOnce sync.Once
	closeErr  error
}

// Creates a player drawing into sink. The default video path, then the
// default image path, are requested before the first tick.
func New(cfg config.Config, source video.FrameSource, sink surface.RenderSink, commands command.Source, opts Options) (*Player, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if source == nil || sink == nil {
		return nil, errors.New("player needs a frame source and a render sink")
	}

	log := opts.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	resolve := opts.Resolve
	if resolve == nil {
		resolve = cfg.Resolve
	}

	ctrl := NewController(source, ControllerConfig{
		Width:     cfg.Width,
		Height:    cfg.Height,
		FPS:       cfg.VideoFPS,
		Loop:      cfg.LoopVideo,
		Buffering: cfg.BufferAllFramesForFastSeek,
		Paused:    cfg.VideoPaused,
		LoadImage: opts.LoadImage,
		Log:       log,
	})
	slot := surface.NewSlot()

	p := &Player{
		cfg:      cfg,
		source:   source,
		sink:     sink,
		commands: commands,
		ctrl:     ctrl,
		router:   NewRouter(ctrl, slot, cfg.Width, cfg.Height, log),
		slot:     slot,
		rate:     newRate(pickClock(cfg, opts, log)),
		log:      log,
	}

	sink.Upload(video.NewFrame(cfg.Width, cfg.Height).Pix)
	p.disconnect = sink.ConnectPreRender(func() {
		slot.Sample(sink)
	})

	if path := cfg.DefaultVideoPath; path != "" {
		if resolved, ok := p.resolveDefault(resolve, path); ok {
			p.router.SetVideoPath(resolved)
		}
	}
	if path := cfg.DefaultImagePath; path != "" {
		if resolved, ok := p.resolveDefault(resolve, path); ok {
			p.router.SetImagePath(resolved)
		}
	}

	return p, nil
}

func pickClock(cfg config.Config, opts Options, log logrus.FieldLogger) clock.Clock {
	if !cfg.UseWallRate {
		if opts.SimClock != nil {
			return opts.SimClock
		}
		log.WithField("function", "player.New").
			Warn("No simulation clock provided, pacing with the wall clock")
	}
	if opts.WallClock != nil {
		return opts.WallClock
	}
	return clock.New()
}

// unresolvable paths are kept so the failure surfaces on open
// unresolvable defaults are skipped and the player stays idle
func (p *Player) resolveDefault(resolve func(string) string, path string) (string, bool) {
	resolved := resolve(path)
	if resolved == "" {
		p.log.WithFields(logrus.Fields{
			"function": "Player.resolveDefault",
			"path":     path,
		}).Warn("Default path not found, skipping")
		return "", false
	}
	return resolved, true
}

// Launches the command loop and the playback loop. They run until ctx is
// cancelled or Close is called.
func (p *Player) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		return ErrAlreadyStarted
	}
	p.started = true

	ctx, p.cancel = context.WithCancel(ctx)

	if p.commands != nil {
		p.wg.Add(1)
		go p.commandLoop(ctx)
	}
	p.wg.Add(1)
	go p.playbackLoop(ctx)
	return nil
}

func (p *Player) commandLoop(ctx context.Context) {
	defer p.wg.Done()

	err := p.commands.Run(ctx, p.router)
	if err == nil || errors.Is(err, context.Canceled) {
		return
	}
	p.log.WithFields(logrus.Fields{
		"function": "Player.commandLoop",
		"error":    err,
	}).Error("Command source stopped")

	p.mu.Lock()
	p.errs = multierror.Append(p.errs, fmt.Errorf("command source: %w", err))
	p.mu.Unlock()
}

func (p *Player) playbackLoop(ctx context.Context) {
	defer p.wg.Done()

	p.rate.reset()
	for ctx.Err() == nil {
		p.Tick()
		if err := p.rate.sleep(ctx, p.ctrl.Interval()); err != nil {
			return
		}
	}
}

// Runs one playback iteration and publishes its frame, if any
func (p *Player) Tick() {
	out, ok := p.ctrl.Step()
	if !ok {
		return
	}
	p.slot.Store(out.Frame, out.Generation)
}

// Returns the command entry points
func (p *Player) Router() *Router {
	return p.router
}

func (p *Player) Controller() *Controller {
	return p.ctrl
}

func (p *Player) Slot() *surface.Slot {
	return p.slot
}

// Stops both loops, waits for them, detaches from the sink and closes the
// frame source
func (p *Player) Close() error {
	p.closeOnce.Do(func() {
		p.mu.Lock()
		cancel := p.cancel
		p.mu.Unlock()
		if cancel != nil {
			cancel()
		}
		p.wg.Wait()

		if p.disconnect != nil {
			p.disconnect()
		}

		p.mu.Lock()
		errs := p.errs
		p.mu.Unlock()
		if err := p.source.Close(); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("close source: %w", err))
		}
		p.closeErr = errs.ErrorOrNil()
	})
	return p.closeErr
}
