package renderer

import (
	"fmt"
	"image"
	"image/color"
	"strings"
)

// Renders an image as ascii art, one character per pixel
func RenderASCII(img *image.RGBA) string {
	if img == nil {
		return ""
	}
	bounds := img.Bounds()

	chars := []rune(" .:-=+*#%@")

	var sb strings.Builder
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			c := img.RGBAAt(x, y)
			brightness := (int(c.R) + int(c.G) + int(c.B)) / 3
			sb.WriteRune(chars[brightness*(len(chars)-1)/255])
		}
		sb.WriteRune('\n')
	}
	return sb.String()
}

// Renders an image with ANSI true colors using half blocks, two pixel rows
// per line
func RenderColor(img *image.RGBA) string {
	if img == nil {
		return ""
	}
	bounds := img.Bounds()

	var sb strings.Builder
	for y := bounds.Min.Y; y < bounds.Max.Y; y += 2 {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			top := img.RGBAAt(x, y)

			var bottom color.RGBA
			if y+1 < bounds.Max.Y {
				bottom = img.RGBAAt(x, y+1)
			} else {
				bottom = top
			}

			fmt.Fprintf(&sb, "\x1b[38;2;%d;%d;%dm\x1b[48;2;%d;%d;%dm▀",
				top.R, top.G, top.B,
				bottom.R, bottom.G, bottom.B)
		}
		sb.WriteString("\x1b[0m\n")
	}
	return sb.String()
}
