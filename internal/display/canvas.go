package display

import (
	"strings"
	"sync"
)

// Text is one string drawn on the canvas.
type Text struct {
	X, Y   int
	S      string
	Font   Font
	Invert bool
}

// Canvas is an in-memory Drawer. It keeps a pixel buffer for shapes and
// images and a list of the strings drawn, since glyphs are not rasterized.
type Canvas struct {
	mu         sync.Mutex
	back       []bool
	front      []bool
	backTexts  []Text
	frontTexts []Text
	frames     int
}

// NewCanvas creates a blank canvas.
func NewCanvas() *Canvas {
	return &Canvas{
		back:  make([]bool, Width*Height),
		front: make([]bool, Width*Height),
	}
}

func (c *Canvas) fill(x, y, w, h int, on bool) {
	for j := y; j < y+h; j++ {
		if j < 0 || j >= Height {
			continue
		}
		for i := x; i < x+w; i++ {
			if i < 0 || i >= Width {
				continue
			}
			c.back[j*Width+i] = on
		}
	}
}

func (c *Canvas) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.back {
		c.back[i] = false
	}
	c.backTexts = nil
}

func (c *Canvas) DrawText(x, y int, s string, font Font, invert bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	max := (Width - x) / font.Width
	if max <= 0 || y >= Height {
		return
	}
	if len(s) > max {
		s = s[:max]
	}
	c.fill(x, y, len(s)*font.Width, font.Height, invert)
	c.backTexts = append(c.backTexts, Text{X: x, Y: y, S: s, Font: font, Invert: invert})
}

func (c *Canvas) DrawImage(x, y int, img Image, invert bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for j := 0; j < img.Height; j++ {
		for i := 0; i < img.Width; i++ {
			v := img.At(i, j)
			if invert {
				v = !v
			}
			c.fill(x+i, y+j, 1, 1, v)
		}
	}
}

func (c *Canvas) FillArea(x, y, w, h int, on bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fill(x, y, w, h, on)
}

func (c *Canvas) DrawHLine(x, y, w, stroke int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fill(x, y, w, stroke, true)
}

func (c *Canvas) DrawVLine(x, y, h, stroke int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fill(x, y, stroke, h, true)
}

// DrawRect draws an outline; a stroke of zero or less fills the rectangle.
func (c *Canvas) DrawRect(x, y, w, h, stroke int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if stroke <= 0 || stroke*2 >= w || stroke*2 >= h {
		c.fill(x, y, w, h, true)
		return
	}
	c.fill(x, y, w, stroke, true)
	c.fill(x, y+h-stroke, w, stroke, true)
	c.fill(x, y, stroke, h, true)
	c.fill(x+w-stroke, y, stroke, h, true)
}

func (c *Canvas) Refresh() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	copy(c.front, c.back)
	c.frontTexts = append(c.frontTexts[:0], c.backTexts...)
	c.frames++
	return nil
}

// Frames returns the number of refreshes so far.
func (c *Canvas) Frames() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.frames
}

// Pixel reports whether (x, y) is lit on screen.
func (c *Canvas) Pixel(x, y int) bool {
	if x < 0 || y < 0 || x >= Width || y >= Height {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.front[y*Width+x]
}

// Texts returns the strings on screen.
func (c *Canvas) Texts() []Text {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Text(nil), c.frontTexts...)
}

// Contains reports whether any string on screen contains sub.
func (c *Canvas) Contains(sub string) bool {
	for _, t := range c.Texts() {
		if strings.Contains(t.S, sub) {
			return true
		}
	}
	return false
}

// Cell is one terminal character of a rendered canvas.
type Cell struct {
	R      rune
	Invert bool
}

// Render turns the screen into terminal cells: pixels become braille
// characters (2x4 pixels per cell) and strings are laid over them.
func (c *Canvas) Render() [][]Cell {
	const cw, ch = 2, 4
	dots := [ch][cw]rune{{0x01, 0x08}, {0x02, 0x10}, {0x04, 0x20}, {0x40, 0x80}}

	c.mu.Lock()
	defer c.mu.Unlock()

	rows := make([][]Cell, Height/ch)
	for r := range rows {
		rows[r] = make([]Cell, Width/cw)
		for col := range rows[r] {
			var bits rune
			for dy := 0; dy < ch; dy++ {
				for dx := 0; dx < cw; dx++ {
					if c.front[(r*ch+dy)*Width+col*cw+dx] {
						bits |= dots[dy][dx]
					}
				}
			}
			if bits == 0 {
				rows[r][col] = Cell{R: ' '}
			} else {
				rows[r][col] = Cell{R: 0x2800 + bits}
			}
		}
	}

	for _, t := range c.frontTexts {
		r := (t.Y + t.Font.Height/2) / ch
		if r >= len(rows) {
			continue
		}
		col := t.X / cw
		for _, ch := range t.S {
			if col >= len(rows[r]) {
				break
			}
			rows[r][col] = Cell{R: ch, Invert: t.Invert}
			col++
		}
	}
	return rows
}
