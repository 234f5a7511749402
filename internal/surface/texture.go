package surface

import "sync"

// Texture is an in-memory RenderSink. The host drives render ticks by
// calling Tick.
type Texture struct {
	mu      sync.Mutex
	pix     []byte
	uploads int

	hooksMu sync.Mutex
	hooks   map[int]func()
	nextID  int
}

var _ RenderSink = (*Texture)(nil)

// Allocates a zeroed texture
func NewTexture(spec Spec) *Texture {
	return &Texture{
		pix:   make([]byte, spec.FrameSize()),
		hooks: map[int]func(){},
	}
}

// Copies pix into the texture; frames of the wrong size are ignored
func (t *Texture) Upload(pix []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(pix) != len(t.pix) {
		return
	}
	copy(t.pix, pix)
	t.uploads++
}

func (t *Texture) ConnectPreRender(fn func()) func() {
	t.hooksMu.Lock()
	defer t.hooksMu.Unlock()
	id := t.nextID
	t.nextID++
	t.hooks[id] = fn
	return func() {
		t.hooksMu.Lock()
		defer t.hooksMu.Unlock()
		delete(t.hooks, id)
	}
}

// Runs one render tick
func (t *Texture) Tick() {
	t.hooksMu.Lock()
	hooks := make([]func(), 0, len(t.hooks))
	for _, fn := range t.hooks {
		hooks = append(hooks, fn)
	}
	t.hooksMu.Unlock()

	for _, fn := range hooks {
		fn()
	}
}

// Returns a copy of the texture contents
func (t *Texture) Pixels() []byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]byte, len(t.pix))
	copy(out, t.pix)
	return out
}

// Returns the number of accepted uploads
func (t *Texture) Uploads() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.uploads
}

// Returns the number of connected pre-render hooks
func (t *Texture) Hooks() int {
	t.hooksMu.Lock()
	defer t.hooksMu.Unlock()
	return len(t.hooks)
}
