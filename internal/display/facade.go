package display

// Screen geometry of the 128x64 monochrome panel.
const (
	Width  = 128
	Height = 64
)

// Font describes a fixed-width glyph cell.
type Font struct {
	Name   string
	Width  int
	Height int
}

var (
	FontSmall = Font{Name: "6x8", Width: 6, Height: 8}
	FontLarge = Font{Name: "8x16", Width: 8, Height: 16}
)

// Image is a monochrome bitmap, row-major, one bool per pixel.
type Image struct {
	Width  int
	Height int
	Pixels []bool
}

// At reports whether pixel (x, y) is set.
func (img Image) At(x, y int) bool {
	if x < 0 || y < 0 || x >= img.Width || y >= img.Height {
		return false
	}
	return img.Pixels[y*img.Width+x]
}

// Drawer is the drawing surface of the panel. Drawing calls only touch a
// back buffer; Refresh pushes it to the screen.
type Drawer interface {
	Clear()
	DrawText(x, y int, s string, font Font, invert bool)
	DrawImage(x, y int, img Image, invert bool)
	FillArea(x, y, w, h int, on bool)
	DrawHLine(x, y, w, stroke int)
	DrawVLine(x, y, h, stroke int)
	DrawRect(x, y, w, h, stroke int)
	Refresh() error
}

// LED is the status light. Flash lights the LED during slot i when bit i
// of pattern is set; mask marks the valid slots as a run of ones from bit
// 0 (fewer than two ones means all 32 slots are valid).
type LED interface {
	Set(on bool) error
	Flash(pattern, mask uint32) error
}

// LED patterns for the station states.
const (
	PatternConnecting   uint32 = 0x55555555
	PatternDisconnected uint32 = 0x00000001
	PatternMaskAll      uint32 = 0xFFFFFFFF
)

// SlotsInUse returns how many slots of a flash pattern are cycled.
func SlotsInUse(mask uint32) int {
	n := 0
	for i := 0; i < 32; i++ {
		if mask&(1<<i) == 0 {
			break
		}
		n++
	}
	if n <= 1 {
		return 32
	}
	return n
}
