// Package renderer previews the video surface in a terminal.
package renderer

import (
	"context"
	"sync"
	"time"

	"github.com/gdamore/tcell/v2"

	"github.com/0bVdnt/PixlSurface/internal/surface"
)

// StatusFunc describes playback for the status bar: a line of text and the
// played fraction
type StatusFunc func() (line string, progress float64)

// Renderer is a surface.RenderSink drawing BGRA frames with half blocks.
type Renderer struct {
	mu         sync.Mutex
	screen     tcell.Screen
	spec       surface.Spec
	frame      []byte
	hasFrame   bool
	prevCells  []uint64
	prevW      int
	prevH      int
	closed     bool
	needsClear bool
	status     StatusFunc

	hooksMu sync.Mutex
	hooks   map[int]func()
	nextID  int
}

var _ surface.RenderSink = (*Renderer)(nil)

// Creates a new terminal renderer
func New(spec surface.Spec) (*Renderer, error) {
	screen, err := tcell.NewScreen()
	if err != nil {
		return nil, err
	}

	if err := screen.Init(); err != nil {
		return nil, err
	}

	return NewWithScreen(screen, spec), nil
}

// Creates a renderer on an initialized screen
func NewWithScreen(screen tcell.Screen, spec surface.Spec) *Renderer {
	screen.SetStyle(tcell.StyleDefault.Background(tcell.ColorBlack))
	screen.Clear()

	return &Renderer{
		screen:     screen,
		spec:       spec,
		frame:      make([]byte, spec.FrameSize()),
		needsClear: true,
		hooks:      map[int]func(){},
	}
}

// Sets the status bar source
func (r *Renderer) SetStatus(fn StatusFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status = fn
}

// Copies one BGRA frame; frames of the wrong size are ignored
func (r *Renderer) Upload(pix []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(pix) != len(r.frame) {
		return
	}
	copy(r.frame, pix)
	r.hasFrame = true
}

func (r *Renderer) ConnectPreRender(fn func()) func() {
	r.hooksMu.Lock()
	defer r.hooksMu.Unlock()

	id := r.nextID
	r.nextID++
	r.hooks[id] = fn
	return func() {
		r.hooksMu.Lock()
		defer r.hooksMu.Unlock()
		delete(r.hooks, id)
	}
}

func (r *Renderer) runHooks() {
	r.hooksMu.Lock()
	hooks := make([]func(), 0, len(r.hooks))
	for _, fn := range r.hooks {
		hooks = append(hooks, fn)
	}
	r.hooksMu.Unlock()

	for _, fn := range hooks {
		fn()
	}
}

// Runs one render tick: pre-render hooks first, then the frame and the
// status bar
func (r *Renderer) Frame() {
	if r.IsClosed() {
		return
	}
	r.runHooks()

	if r.NeedsClear() {
		r.ClearVideoArea()
	}

	r.mu.Lock()
	hasFrame := r.hasFrame
	status := r.status
	r.mu.Unlock()

	w, h := r.Size()
	if hasFrame {
		cellH := (r.spec.Height + 1) / 2
		offsetX := max((w-r.spec.Width)/2, 0)
		offsetY := max((h-cellH-2)/2, 0)
		r.RenderFrame(offsetX, offsetY)
	} else {
		r.RenderMessage("Waiting for frames...", tcell.ColorDarkBlue)
	}

	if status != nil {
		line, progress := status()
		r.renderStatus(w, h, line, progress)
	}
	r.Show()
}

func (r *Renderer) renderStatus(w, h int, line string, progress float64) {
	if w < 10 || h < 5 {
		return
	}

	barY := h - 2
	r.FillLine(barY, tcell.StyleDefault.Background(tcell.ColorBlack))
	r.ProgressBar(barY, progress, tcell.ColorGreen, tcell.ColorDarkGray)

	statusY := h - 1
	statusStyle := tcell.StyleDefault.
		Background(tcell.ColorDarkBlue).
		Foreground(tcell.ColorWhite)
	r.FillLine(statusY, statusStyle)

	line += " │ Q: quit"
	if runes := []rune(line); len(runes) > w {
		line = string(runes[:w])
	}
	r.DrawText(0, statusY, line, statusStyle)
}

// Renders at fps until ctx is done or the user quits with q, Esc or Ctrl-C
func (r *Renderer) Run(ctx context.Context, fps float64) {
	if fps <= 0 {
		fps = 30
	}

	events := make(chan tcell.Event, 16)
	quit := make(chan struct{})
	defer close(quit)
	go r.pollEvents(events, quit)

	ticker := time.NewTicker(time.Duration(float64(time.Second) / fps))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-events:
			if ev == nil || r.handleEvent(ev) {
				return
			}
		case <-ticker.C:
			r.Frame()
		}
	}
}

func (r *Renderer) pollEvents(events chan<- tcell.Event, quit <-chan struct{}) {
	screen := r.Screen()
	if screen == nil {
		return
	}
	for {
		ev := screen.PollEvent()
		select {
		case events <- ev:
		case <-quit:
			return
		}
		if ev == nil {
			return
		}
	}
}

// Returns true when the event asks to quit
func (r *Renderer) handleEvent(ev tcell.Event) bool {
	switch ev := ev.(type) {
	case *tcell.EventResize:
		r.Sync()
		r.Clear()
	case *tcell.EventKey:
		if ev.Key() == tcell.KeyEscape || ev.Key() == tcell.KeyCtrlC {
			return true
		}
		if ev.Key() == tcell.KeyRune && (ev.Rune() == 'q' || ev.Rune() == 'Q') {
			return true
		}
	}
	return false
}

// Returns undelying tcell screen
func (r *Renderer) Screen() tcell.Screen {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.screen
}

// Returns terminal dimensions
func (r *Renderer) Size() (width, height int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.screen == nil || r.closed {
		return 80, 24
	}
	return r.screen.Size()
}

// Clears the screen
func (r *Renderer) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.screen != nil && !r.closed {
		r.screen.Clear()
	}
	r.prevCells = nil
	r.needsClear = true
}

// Forces a full screen refresh
func (r *Renderer) Sync() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.screen != nil && !r.closed {
		r.screen.Sync()
	}
}

// Updates the screen
func (r *Renderer) Show() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.screen != nil && !r.closed {
		r.screen.Show()
	}
}

// Returns whether the renderer is closed
func (r *Renderer) IsClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed || r.screen == nil
}

// Shuts down the renderer
func (r *Renderer) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}
	r.closed = true

	if r.screen != nil {
		r.screen.Fini()
		r.screen = nil
	}
}

// Clears video display area
func (r *Renderer) ClearVideoArea() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.screen == nil || r.closed {
		return
	}

	w, h := r.screen.Size()
	style := tcell.StyleDefault.Background(tcell.ColorBlack)

	for y := 0; y < h-2; y++ {
		for x := 0; x < w; x++ {
			r.screen.SetContent(x, y, ' ', nil, style)
		}
	}

	r.needsClear = false
}

// returns and clears the needsClear flag
func (r *Renderer) NeedsClear() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	result := r.needsClear
	r.needsClear = false
	return result
}
