package surface

import (
	"sync"

	"github.com/0bVdnt/PixlSurface/internal/video"
)

// Slot holds the latest frame to display plus a dirty flag.
//
// Producers tag frames with the playback generation they were built under.
// Once a newer generation has been forced into the slot, stale frames are
// rejected, so a frame decoded just before a stop never overwrites the
// cleared or pushed image that followed it.
type Slot struct {
	mu    sync.Mutex
	frame *video.Frame
	dirty bool
	floor uint64

	writes   uint64
	samples  uint64
	dropped  uint64
	rejected uint64
}

// Counters describing slot traffic
type Stats struct {
	Writes   uint64
	Samples  uint64
	Dropped  uint64 // overwritten before the renderer saw them
	Rejected uint64 // stale generation
}

// Creates an empty slot
func NewSlot() *Slot {
	return &Slot{}
}

// Saves a new frame unless generation is older than the slot's floor
func (s *Slot) Store(f *video.Frame, generation uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if generation < s.floor {
		s.rejected++
		return false
	}
	s.put(f)
	return true
}

// Saves a frame and raises the floor to generation
func (s *Slot) StoreForce(f *video.Frame, generation uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if generation > s.floor {
		s.floor = generation
	}
	s.put(f)
}

func (s *Slot) put(f *video.Frame) {
	if s.dirty {
		s.dropped++
	}
	s.frame = f
	s.dirty = true
	s.writes++
}

// Copies the frame into sink if it changed since the last sample
func (s *Slot) Sample(sink RenderSink) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.dirty || s.frame == nil {
		return false
	}
	sink.Upload(s.frame.Pix)
	s.dirty = false
	s.samples++
	return true
}


func (s *Slot) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{
		Writes:   s.writes,
		Samples:  s.samples,
		Dropped:  s.dropped,
		Rejected: s.rejected,
	}
}
