// Package command adapts external message buses to the player's command
// entry points.
package command

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/hashicorp/go-multierror"

	"github.com/0bVdnt/PixlSurface/internal/video"
)

var ErrUnknownTopic = errors.New("unknown topic")

// Handler receives decoded commands. Implementations must not block on I/O.
type Handler interface {
	SetImagePath(path string)
	SetVideoPath(path string)
	Seek(fraction float64)
	SetPaused(paused bool)
	PushImage(img video.RawImage)
}

// Source delivers commands to a Handler until ctx is cancelled.
type Source interface {
	Run(ctx context.Context, h Handler) error
}

// Topic names a bus uses for each command
type Topics struct {
	Image      string
	ImagePath  string
	VideoPath  string
	VideoSeek  string
	VideoPause string
}

// Returns the topic names used when none are configured
func DefaultTopics() Topics {
	return Topics{
		Image:      "image_raw",
		ImagePath:  "set_image_path",
		VideoPath:  "set_video_path",
		VideoSeek:  "set_video_seek",
		VideoPause: "set_video_paused",
	}
}

// Decodes a textual argument for topic and calls the matching handler
// method. Raw images cannot be sent as text.
func (t Topics) Dispatch(h Handler, topic, arg string) error {
	switch topic {
	case t.ImagePath:
		h.SetImagePath(arg)
	case t.VideoPath:
		h.SetVideoPath(arg)
	case t.VideoSeek:
		f, err := strconv.ParseFloat(strings.TrimSpace(arg), 64)
		if err != nil {
			return fmt.Errorf("seek %q: %w", arg, err)
		}
		h.Seek(f)
	case t.VideoPause:
		b, err := strconv.ParseBool(strings.TrimSpace(arg))
		if err != nil {
			return fmt.Errorf("pause %q: %w", arg, err)
		}
		h.SetPaused(b)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownTopic, topic)
	}
	return nil
}

// Runs several sources concurrently against the same handler
type Multi []Source

func (m Multi) Run(ctx context.Context, h Handler) error {
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		result *multierror.Error
	)
	for _, src := range m {
		wg.Add(1)
		go func(src Source) {
			defer wg.Done()
			if err := src.Run(ctx, h); err != nil && !errors.Is(err, context.Canceled) {
				mu.Lock()
				result = multierror.Append(result, err)
				mu.Unlock()
			}
		}(src)
	}
	wg.Wait()
	return result.ErrorOrNil()
}
