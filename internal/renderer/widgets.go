package renderer

import "github.com/gdamore/tcell/v2"

// draws runes from x on row y, clipped to width w; caller holds r.mu
func (r *Renderer) putRunes(x, y, w int, text []rune, style tcell.Style) {
	for i, ch := range text {
		if x+i >= 0 && x+i < w {
			r.screen.SetContent(x+i, y, ch, nil, style)
		}
	}
}

// draw text at specified position
func (r *Renderer) DrawText(x, y int, text string, style tcell.Style) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.screen == nil || r.closed {
		return
	}

	w, h := r.screen.Size()
	if y < 0 || y >= h {
		return
	}
	r.putRunes(x, y, w, []rune(text), style)
}

// Fills a horizontal line with a style
func (r *Renderer) FillLine(y int, style tcell.Style) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.screen == nil || r.closed {
		return
	}

	w, h := r.screen.Size()
	if y < 0 || y >= h {
		return
	}

	for x := 0; x < w; x++ {
		r.screen.SetContent(x, y, ' ', nil, style)
	}
}

// Displays a message centered in the video area
func (r *Renderer) RenderMessage(msg string, bgColor tcell.Color) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.screen == nil || r.closed {
		return
	}

	w, h := r.screen.Size()
	if w <= 0 || h <= 0 {
		return
	}

	style := tcell.StyleDefault.Background(bgColor).Foreground(tcell.ColorWhite)
	text := []rune(msg)

	y := max((h-2)/2, 0)
	for x := 0; x < w; x++ {
		r.screen.SetContent(x, y, ' ', nil, style)
	}
	r.putRunes(max((w-len(text))/2, 0), y, w, text, style)

	// the frame underneath is gone, redraw every cell next time
	r.prevCells = nil
}

// Draws a horizontal progress bar
func (r *Renderer) ProgressBar(y int, progress float64, filledColor, emptyColor tcell.Color) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.screen == nil || r.closed {
		return
	}

	w, h := r.screen.Size()
	if y < 0 || y >= h || w < 4 {
		return
	}

	progress = min(max(progress, 0), 1)

	barW := w - 2
	filled := int(float64(barW) * progress)

	filledStyle := tcell.StyleDefault.Background(filledColor)
	emptyStyle := tcell.StyleDefault.Background(emptyColor)

	for x := 1; x < 1+filled && x < w-1; x++ {
		r.screen.SetContent(x, y, '━', nil, filledStyle)
	}
	for x := 1 + filled; x < 1+barW && x < w-1; x++ {
		r.screen.SetContent(x, y, '─', nil, emptyStyle)
	}

	mx := min(1+filled, w-2)
	r.screen.SetContent(mx, y, '●', nil, tcell.StyleDefault.Foreground(tcell.ColorWhite))
}
