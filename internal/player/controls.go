package player

import (
	"github.com/sirupsen/logrus"

	"github.com/0bVdnt/PixlSurface/internal/command"
	"github.com/0bVdnt/PixlSurface/internal/surface"
	"github.com/0bVdnt/PixlSurface/internal/video"
)

var _ command.Handler = (*Router)(nil)

// Router applies bus commands to the controller and the frame slot.
// None of its methods wait for decoding or file I/O.
type Router struct {
	ctrl   *Controller
	slot   *surface.Slot
	width  int
	height int
	log    logrus.FieldLogger
}

// Creates a router for a width x height surface
func NewRouter(ctrl *Controller, slot *surface.Slot, width, height int, log logrus.FieldLogger) *Router {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Router{
		ctrl:   ctrl,
		slot:   slot,
		width:  width,
		height: height,
		log:    log,
	}
}

func (r *Router) SetVideoPath(path string) {
	r.log.WithFields(logrus.Fields{
		"function": "Router.SetVideoPath",
		"path":     path,
	}).Info("Video path requested")
	r.ctrl.requestVideo(path)
}

// Stops the video and shows the image at path on the next tick.
// An empty path clears the display.
func (r *Router) SetImagePath(path string) {
	r.log.WithFields(logrus.Fields{
		"function": "Router.SetImagePath",
		"path":     path,
	}).Info("Image path requested")
	r.ctrl.requestImage(path)
}

func (r *Router) Seek(fraction float64) {
	if err := r.ctrl.requestSeek(fraction); err != nil {
		r.log.WithFields(logrus.Fields{
			"function": "Router.Seek",
			"fraction": fraction,
			"error":    err,
		}).Warn("Ignoring seek")
	}
}

func (r *Router) SetPaused(paused bool) {
	if !r.ctrl.requestPause(paused) {
		r.log.WithFields(logrus.Fields{
			"function": "Router.SetPaused",
			"paused":   paused,
		}).Debug("Ignoring pause while stopped")
	}
}

// Converts img to the surface format, halts the video and makes img the
// next frame the renderer samples.
func (r *Router) PushImage(img video.RawImage) {
	frame, err := img.ToFrame()
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"function": "Router.PushImage",
			"encoding": img.Encoding,
			"width":    img.Width,
			"height":   img.Height,
			"error":    err,
		}).Warn("Dropping raw image")
		return
	}
	frame = video.Normalize(frame, r.width, r.height)

	generation := r.ctrl.preempt()
	r.slot.StoreForce(frame, generation)
}
