package player

import (
	"fmt"
	"path/filepath"
	"time"
)

// Describes the playback state in one line for status bars, along with
// the played fraction
func (p *Player) StatusLine() (string, float64) {
	st := p.ctrl.Status()
	stats := p.slot.Stats()

	name := "-"
	if st.VideoPath != "" {
		name = filepath.Base(st.VideoPath)
	}

	position := fmt.Sprintf("%d/%d", st.Position, st.Total)
	if st.NativeFPS > 0 {
		position = fmt.Sprintf("%s/%s",
			formatDuration(frameTime(st.Position, st.NativeFPS)),
			formatDuration(frameTime(st.Total, st.NativeFPS)),
		)
	}

	droppedStr := ""
	if stats.Dropped > 0 {
		droppedStr = fmt.Sprintf(" D:%d", stats.Dropped)
	}

	line := fmt.Sprintf(" %s %s │ %s │ %s │ %dx%d%s",
		st.State.Icon(),
		st.State,
		name,
		position,
		p.cfg.Width, p.cfg.Height,
		droppedStr,
	)
	return line, st.Progress()
}

func frameTime(index int, fps float64) time.Duration {
	return time.Duration(float64(index) / fps * float64(time.Second))
}

func formatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}

	d = d.Round(time.Second)
	h := d / time.Hour
	m := (d % time.Hour) / time.Minute
	s := (d % time.Minute) / time.Second

	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}
