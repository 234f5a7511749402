package player

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0bVdnt/PixlSurface/internal/command"
	"github.com/0bVdnt/PixlSurface/internal/config"
	"github.com/0bVdnt/PixlSurface/internal/logger"
	"github.com/0bVdnt/PixlSurface/internal/surface"
	"github.com/0bVdnt/PixlSurface/internal/video"
	"github.com/0bVdnt/PixlSurface/internal/video/videotest"
)

const clip = "clip.mp4"

type fixture struct {
	player *Player
	source *videotest.Source
	tex    *surface.Texture
}

func testConfig() config.Config {
	cfg := config.Default()
	cfg.Width = 2
	cfg.Height = 2
	cfg.VideoFPS = 0
	cfg.LoopVideo = false
	return cfg
}

func newFixture(t *testing.T, cfg config.Config, frames int, opts Options) *fixture {
	t.Helper()

	src := videotest.NewSource(30)
	src.Add(clip, videotest.Frames(frames, 2, 2)...)
	tex := surface.NewTexture(surface.Spec{Width: cfg.Width, Height: cfg.Height})

	if opts.Logger == nil {
		opts.Logger = logger.Noop()
	}
	if opts.Resolve == nil {
		opts.Resolve = func(path string) string { return path }
	}

	p, err := New(cfg, src, tex, nil, opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })

	return &fixture{player: p, source: src, tex: tex}
}

// runs one playback tick and one render tick, returning the displayed frame
// index (-1 when cleared)
func (f *fixture) step() int {
	f.player.Tick()
	f.tex.Tick()
	return f.shown()
}

func (f *fixture) shown() int {
	return videotest.Index(&video.Frame{Pix: f.tex.Pixels(), Width: 2, Height: 2})
}

func TestPlaybackStopsAtEndOfStream(t *testing.T) {
	f := newFixture(t, testConfig(), 3, Options{})
	r := f.player.Router()

	assert.Equal(t, StateIdle, f.player.Controller().State())
	assert.Equal(t, 1, f.tex.Uploads(), "sink cleared on construction")

	r.SetVideoPath(clip)
	assert.Equal(t, StateSourceOpening, f.player.Controller().State())

	assert.Equal(t, 0, f.step())
	assert.Equal(t, StatePlaying, f.player.Controller().State())
	assert.Equal(t, 1, f.step())
	assert.Equal(t, 2, f.step())

	assert.Equal(t, -1, f.step())
	assert.Len(t, f.tex.Pixels(), 16)
	assert.Equal(t, StateStopped, f.player.Controller().State())

	uploads := f.tex.Uploads()
	f.step()
	f.step()
	assert.Equal(t, uploads, f.tex.Uploads(), "nothing published while stopped")
}

func TestPlaybackLoops(t *testing.T) {
	cfg := testConfig()
	cfg.LoopVideo = true
	f := newFixture(t, cfg, 3, Options{})

	f.player.Router().SetVideoPath(clip)

	var got []int
	for i := 0; i < 7; i++ {
		got = append(got, f.step())
	}
	assert.Equal(t, []int{0, 1, 2, 0, 1, 2, 0}, got)
	assert.Equal(t, 3, f.source.Opens, "live playback reopens to loop")
	assert.Equal(t, StatePlaying, f.player.Controller().State())
}

func TestBufferedPlaybackLoopsWithoutReopening(t *testing.T) {
	cfg := testConfig()
	cfg.LoopVideo = true
	cfg.BufferAllFramesForFastSeek = true
	f := newFixture(t, cfg, 3, Options{})

	f.player.Router().SetVideoPath(clip)

	var got []int
	for i := 0; i < 5; i++ {
		got = append(got, f.step())
	}
	assert.Equal(t, []int{0, 1, 2, 0, 1}, got)
	assert.Equal(t, 1, f.source.Opens)

	st := f.player.Controller().Status()
	assert.Equal(t, 3, st.Total)
	assert.Equal(t, 2, st.Position)
}

func TestBufferedPlaybackStopsAtEnd(t *testing.T) {
	cfg := testConfig()
	cfg.BufferAllFramesForFastSeek = true
	f := newFixture(t, cfg, 2, Options{})

	f.player.Router().SetVideoPath(clip)

	assert.Equal(t, 0, f.step())
	assert.Equal(t, 1, f.step())
	assert.Equal(t, -1, f.step())
	assert.Equal(t, StateStopped, f.player.Controller().State())
	assert.Equal(t, 0, f.player.Controller().Status().Total, "buffer dropped")
}

func TestPausedPlayback(t *testing.T) {
	cfg := testConfig()
	cfg.VideoPaused = true
	f := newFixture(t, cfg, 3, Options{})
	r := f.player.Router()

	r.SetVideoPath(clip)
	assert.Equal(t, -1, f.step(), "paused open shows a cleared frame")
	assert.Equal(t, StatePaused, f.player.Controller().State())

	uploads := f.tex.Uploads()
	for i := 0; i < 3; i++ {
		f.step()
	}
	assert.Equal(t, uploads, f.tex.Uploads(), "paused ticks leave the display alone")

	r.Seek(0.5)
	assert.Equal(t, 1, f.step(), "a seek while paused shows one frame")
	uploads = f.tex.Uploads()
	f.step()
	assert.Equal(t, uploads, f.tex.Uploads())

	r.SetPaused(false)
	assert.Equal(t, StatePlaying, f.player.Controller().State())
	assert.Equal(t, 2, f.step())
}

func TestBufferedSeekRounds(t *testing.T) {
	cfg := testConfig()
	cfg.BufferAllFramesForFastSeek = true
	f := newFixture(t, cfg, 5, Options{})
	r := f.player.Router()

	r.SetVideoPath(clip)
	require.Equal(t, 0, f.step())

	tests := []struct {
		fraction float64
		want     int
	}{
		{0.5, 2},
		{0.3, 1},
		{0.4, 2},
		{1.0, 4},
		{0.0, 0},
	}
	for _, tt := range tests {
		r.Seek(tt.fraction)
		assert.Equal(t, tt.want, f.step(), "seek %v", tt.fraction)
	}
}

func TestSeekIsMonotonic(t *testing.T) {
	cfg := testConfig()
	cfg.BufferAllFramesForFastSeek = true
	cfg.VideoPaused = true
	f := newFixture(t, cfg, 10, Options{})
	r := f.player.Router()

	r.SetVideoPath(clip)
	f.step()

	prev := -1
	for i := 0; i <= 20; i++ {
		r.Seek(float64(i) / 20)
		got := f.step()
		if got == -1 {
			// same frame as before, nothing republished
			got = prev
		}
		assert.GreaterOrEqual(t, got, prev)
		prev = got
	}
}

func TestInvalidSeekKeepsPendingSeek(t *testing.T) {
	cfg := testConfig()
	cfg.BufferAllFramesForFastSeek = true
	f := newFixture(t, cfg, 5, Options{})
	r := f.player.Router()

	r.SetVideoPath(clip)
	f.step()

	r.Seek(0.5)
	r.Seek(1.5)
	r.Seek(-0.1)
	assert.Equal(t, 2, f.step())
}

func TestSeekBeforeEndOfStream(t *testing.T) {
	f := newFixture(t, testConfig(), 3, Options{})
	r := f.player.Router()

	r.SetVideoPath(clip)
	for i := 0; i < 3; i++ {
		f.step()
	}
	r.Seek(0)
	assert.Equal(t, 0, f.step())
	assert.Equal(t, StatePlaying, f.player.Controller().State())
}

func TestEmptyVideoPathClears(t *testing.T) {
	f := newFixture(t, testConfig(), 3, Options{})
	r := f.player.Router()

	r.SetVideoPath(clip)
	require.Equal(t, 0, f.step())

	r.SetVideoPath("")
	assert.Equal(t, -1, f.step())
	assert.Equal(t, StateStopped, f.player.Controller().State())
}

func TestOpenFailureStops(t *testing.T) {
	f := newFixture(t, testConfig(), 3, Options{})
	r := f.player.Router()

	r.SetVideoPath(clip)
	require.Equal(t, 0, f.step())

	r.SetVideoPath("missing.mp4")
	assert.Equal(t, -1, f.step())
	assert.Equal(t, StateStopped, f.player.Controller().State())
	assert.True(t, f.player.Controller().PlaybackState().StopRequested)
}

func TestPauseIgnoredWhileStopped(t *testing.T) {
	f := newFixture(t, testConfig(), 1, Options{})
	r := f.player.Router()

	r.SetVideoPath("")
	r.SetPaused(true)
	assert.False(t, f.player.Controller().PlaybackState().Paused)
}

func stillImage(value byte) *video.Frame {
	f := video.NewFrame(2, 2)
	for i := range f.Pix {
		f.Pix[i] = value
	}
	return f
}

func TestSetImagePathStopsVideo(t *testing.T) {
	var loads []string
	opts := Options{
		LoadImage: func(path string) (*video.Frame, error) {
			loads = append(loads, path)
			if path == "bad.png" {
				return nil, errors.New("decode")
			}
			return stillImage(9), nil
		},
	}
	cfg := testConfig()
	cfg.LoopVideo = true
	f := newFixture(t, cfg, 3, opts)
	r := f.player.Router()

	r.SetVideoPath(clip)
	require.Equal(t, 0, f.step())

	r.SetImagePath("still.png")
	assert.Empty(t, loads, "image loads on the playback tick")
	assert.Equal(t, 8, f.step())
	assert.Equal(t, StateStopped, f.player.Controller().State())

	uploads := f.tex.Uploads()
	f.step()
	assert.Equal(t, uploads, f.tex.Uploads(), "video no longer advances")

	r.SetImagePath("bad.png")
	assert.Equal(t, -1, f.step())

	r.SetImagePath("still.png")
	f.step()
	r.SetImagePath("")
	assert.Equal(t, -1, f.step())
	assert.Equal(t, []string{"still.png", "bad.png", "still.png"}, loads)
}

func TestPushImageHaltsVideo(t *testing.T) {
	cfg := testConfig()
	cfg.LoopVideo = true
	f := newFixture(t, cfg, 3, Options{})
	r := f.player.Router()

	r.SetVideoPath(clip)
	require.Equal(t, 0, f.step())

	data := make([]byte, 2*2*4)
	for i := range data {
		data[i] = 7
	}
	r.PushImage(video.RawImage{Width: 2, Height: 2, Encoding: "bgra8", Data: data})
	assert.Equal(t, StateStopped, f.player.Controller().State())

	f.tex.Tick()
	assert.Equal(t, 6, f.shown())

	f.step()
	f.step()
	assert.Equal(t, 6, f.shown(), "playback does not overwrite a pushed frame")
}

func TestPushImageResizes(t *testing.T) {
	f := newFixture(t, testConfig(), 1, Options{})

	data := make([]byte, 4*4*3)
	f.player.Router().PushImage(video.RawImage{Width: 4, Height: 4, Encoding: "rgb8", Data: data})
	f.tex.Tick()

	assert.Equal(t, 2, f.tex.Uploads())
	assert.Len(t, f.tex.Pixels(), 16)
}

func TestPushImageBadEncodingIgnored(t *testing.T) {
	f := newFixture(t, testConfig(), 3, Options{})
	r := f.player.Router()

	r.SetVideoPath(clip)
	f.step()
	r.PushImage(video.RawImage{Width: 2, Height: 2, Encoding: "yuv422", Data: make([]byte, 8)})

	assert.Equal(t, StatePlaying, f.player.Controller().State())
	assert.Equal(t, 1, f.step())
}

func TestStaleFrameRejectedAfterPush(t *testing.T) {
	cfg := testConfig()
	cfg.LoopVideo = true
	f := newFixture(t, cfg, 3, Options{})
	r := f.player.Router()

	r.SetVideoPath(clip)
	out, ok := f.player.Controller().Step()
	require.True(t, ok)

	r.PushImage(video.RawImage{Width: 2, Height: 2, Encoding: "mono8", Data: []byte{5, 5, 5, 5}})

	assert.False(t, f.player.Slot().Store(out.Frame, out.Generation))
	f.tex.Tick()
	assert.Equal(t, 4, f.shown())
	assert.Equal(t, uint64(1), f.player.Slot().Stats().Rejected)
}

// runs onOpen once before the wrapped source opens
type hookedSource struct {
	*videotest.Source
	onOpen func()
}

func (s *hookedSource) Open(path string) error {
	if fn := s.onOpen; fn != nil {
		s.onOpen = nil
		fn()
	}
	return s.Source.Open(path)
}

func TestPushDuringOpenStops(t *testing.T) {
	cfg := testConfig()
	cfg.BufferAllFramesForFastSeek = true
	cfg.LoopVideo = true

	src := &hookedSource{Source: videotest.NewSource(30)}
	src.Add(clip, videotest.Frames(3, 2, 2)...)
	tex := surface.NewTexture(surface.Spec{Width: 2, Height: 2})
	log, hook := logtest.NewNullLogger()

	p, err := New(cfg, src, tex, nil, Options{Logger: log, Resolve: func(path string) string { return path }})
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })

	data := make([]byte, 2*2*4)
	for i := range data {
		data[i] = 7
	}
	src.onOpen = func() {
		p.Router().PushImage(video.RawImage{Width: 2, Height: 2, Encoding: "bgra8", Data: data})
	}

	p.Router().SetVideoPath(clip)
	for i := 0; i < 3; i++ {
		p.Tick()
		tex.Tick()
	}

	c := p.Controller()
	assert.Equal(t, StateStopped, c.State())
	assert.True(t, c.PlaybackState().StopRequested)
	assert.Equal(t, 6, videotest.Index(&video.Frame{Pix: tex.Pixels(), Width: 2, Height: 2}))
	for _, e := range hook.AllEntries() {
		assert.NotEqual(t, "Playing video", e.Message)
	}
}

func TestPushImageHugeDimensionsIgnored(t *testing.T) {
	f := newFixture(t, testConfig(), 3, Options{})
	r := f.player.Router()

	r.SetVideoPath(clip)
	require.Equal(t, 0, f.step())
	before := f.player.Controller().PlaybackState()

	assert.NotPanics(t, func() {
		r.PushImage(video.RawImage{Width: 1 << 32, Height: 1 << 32, Encoding: "bgra8", Data: make([]byte, 16)})
	})
	assert.Equal(t, before, f.player.Controller().PlaybackState())
	assert.Equal(t, StatePlaying, f.player.Controller().State())
	assert.Equal(t, 1, f.step())
}

func TestDefaultPaths(t *testing.T) {
	cfg := testConfig()
	cfg.DefaultVideoPath = "default.mp4"
	var resolved []string
	opts := Options{
		Resolve: func(path string) string {
			resolved = append(resolved, path)
			if path == "default.mp4" {
				return clip
			}
			return ""
		},
	}
	f := newFixture(t, cfg, 3, opts)

	assert.Equal(t, []string{"default.mp4"}, resolved)
	assert.Equal(t, clip, f.player.Controller().PlaybackState().VideoPath)
	assert.Equal(t, 0, f.step())
}

func TestDefaultImageWinsOverDefaultVideo(t *testing.T) {
	cfg := testConfig()
	cfg.DefaultVideoPath = clip
	cfg.DefaultImagePath = "still.png"
	opts := Options{
		LoadImage: func(string) (*video.Frame, error) { return stillImage(3), nil },
	}
	f := newFixture(t, cfg, 3, opts)

	assert.Equal(t, 2, f.step())
	assert.Equal(t, StateStopped, f.player.Controller().State())
}

func TestUnresolvedDefaultStaysIdle(t *testing.T) {
	cfg := testConfig()
	cfg.DefaultVideoPath = "missing.mp4"
	cfg.DefaultImagePath = "missing.png"
	f := newFixture(t, cfg, 3, Options{Resolve: func(string) string { return "" }})
	c := f.player.Controller()

	assert.Equal(t, StateIdle, c.State())
	st := c.PlaybackState()
	assert.False(t, st.StopRequested)
	assert.Empty(t, st.VideoPath)
	assert.Nil(t, st.ImagePath)

	f.player.Router().SetPaused(true)
	assert.True(t, c.PlaybackState().Paused)
	assert.Zero(t, f.source.Opens)
}

func TestInterval(t *testing.T) {
	cfg := testConfig()
	f := newFixture(t, cfg, 3, Options{})
	c := f.player.Controller()

	assert.Equal(t, time.Second/24, c.Interval())

	f.player.Router().SetVideoPath(clip)
	f.step()
	assert.Equal(t, time.Second/30, c.Interval())

	cfg.VideoFPS = 10
	g := newFixture(t, cfg, 3, Options{})
	assert.Equal(t, 100*time.Millisecond, g.player.Controller().Interval())
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Width = 0
	_, err := New(cfg, videotest.NewSource(30), surface.NewTexture(surface.Spec{}), nil, Options{Logger: logger.Noop()})
	assert.Error(t, err)
}

func TestStatusLine(t *testing.T) {
	f := newFixture(t, testConfig(), 60, Options{})
	f.player.Router().SetVideoPath(clip)
	for i := 0; i < 30; i++ {
		f.step()
	}

	line, progress := f.player.StatusLine()
	assert.Contains(t, line, "playing")
	assert.Contains(t, line, clip)
	assert.Contains(t, line, "0:01/0:02")
	assert.InDelta(t, 0.5, progress, 0.001)
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "0:00", formatDuration(-time.Second))
	assert.Equal(t, "1:05", formatDuration(65*time.Second))
	assert.Equal(t, "1:01:01", formatDuration(time.Hour+61*time.Second))
}

type scriptedSource struct {
	run func(ctx context.Context, h command.Handler) error
}

func (s scriptedSource) Run(ctx context.Context, h command.Handler) error {
	return s.run(ctx, h)
}

func TestStartAndClose(t *testing.T) {
	cfg := testConfig()
	cfg.UseWallRate = false
	cfg.LoopVideo = true

	mock := clock.NewMock()
	src := videotest.NewSource(30)
	src.Add(clip, videotest.Frames(3, 2, 2)...)
	tex := surface.NewTexture(surface.Spec{Width: 2, Height: 2})

	commands := scriptedSource{run: func(ctx context.Context, h command.Handler) error {
		h.SetVideoPath(clip)
		<-ctx.Done()
		return ctx.Err()
	}}

	p, err := New(cfg, src, tex, commands, Options{Logger: logger.Noop(), SimClock: mock})
	require.NoError(t, err)
	assert.Equal(t, 1, tex.Hooks())

	require.NoError(t, p.Start(context.Background()))
	assert.ErrorIs(t, p.Start(context.Background()), ErrAlreadyStarted)

	require.Eventually(t, func() bool {
		mock.Add(40 * time.Millisecond)
		tex.Tick()
		return videotest.Index(&video.Frame{Pix: tex.Pixels()}) >= 0
	}, 2*time.Second, time.Millisecond)

	require.NoError(t, p.Close())
	assert.NoError(t, p.Close())
	assert.True(t, src.Closed)
	assert.Equal(t, 0, tex.Hooks())
}

func TestCloseReportsCommandError(t *testing.T) {
	src := videotest.NewSource(30)
	tex := surface.NewTexture(surface.Spec{Width: 2, Height: 2})
	boom := errors.New("bus down")
	commands := scriptedSource{run: func(context.Context, command.Handler) error {
		return boom
	}}

	p, err := New(testConfig(), src, tex, commands, Options{Logger: logger.Noop()})
	require.NoError(t, err)
	require.NoError(t, p.Start(context.Background()))

	err = p.Close()
	assert.ErrorIs(t, err, boom)
}

type checkSink struct {
	size    int
	hooks   sync.Mutex
	fn      func()
	uploads atomic.Int64
	bad     atomic.Int64
}

func (s *checkSink) Upload(pix []byte) {
	s.uploads.Add(1)
	if len(pix) != s.size {
		s.bad.Add(1)
	}
}

func (s *checkSink) ConnectPreRender(fn func()) func() {
	s.hooks.Lock()
	s.fn = fn
	s.hooks.Unlock()
	return func() {
		s.hooks.Lock()
		s.fn = nil
		s.hooks.Unlock()
	}
}

func (s *checkSink) tick() {
	s.hooks.Lock()
	fn := s.fn
	s.hooks.Unlock()
	if fn != nil {
		fn()
	}
}

func TestConcurrentCommandsKeepFrameSize(t *testing.T) {
	cfg := testConfig()
	cfg.Width, cfg.Height = 4, 3
	cfg.VideoFPS = 500
	cfg.LoopVideo = true

	src := videotest.NewSource(30)
	src.Add(clip, videotest.Frames(5, 8, 6)...)
	sink := &checkSink{size: 4 * 3 * 4}

	p, err := New(cfg, src, sink, nil, Options{
		Logger:    logger.Noop(),
		LoadImage: func(string) (*video.Frame, error) { return video.NewFrame(7, 5), nil },
	})
	require.NoError(t, err)
	require.NoError(t, p.Start(context.Background()))

	r := p.Router()
	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		w := w
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				switch (i + w) % 6 {
				case 0:
					r.SetVideoPath(clip)
				case 1:
					r.Seek(float64(i%10) / 10)
				case 2:
					r.SetPaused(i%2 == 0)
				case 3:
					r.SetImagePath("still.png")
				case 4:
					r.PushImage(video.RawImage{Width: 3, Height: 3, Encoding: "mono8", Data: make([]byte, 9)})
				case 5:
					r.SetVideoPath("")
				}
			}
		}()
	}

	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-done:
				return
			default:
				sink.tick()
			}
		}
	}()

	wg.Wait()
	time.Sleep(20 * time.Millisecond)
	close(done)

	require.NoError(t, p.Close())
	assert.Zero(t, sink.bad.Load())
	assert.Positive(t, sink.uploads.Load())
}
