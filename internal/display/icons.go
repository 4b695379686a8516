package display

import (
	qrcode "github.com/skip2/go-qrcode"
)

// imageFrom builds an image from rows of '#' (set) and anything else.
func imageFrom(rows ...string) Image {
	img := Image{Height: len(rows)}
	for _, r := range rows {
		if len(r) > img.Width {
			img.Width = len(r)
		}
	}
	img.Pixels = make([]bool, img.Width*img.Height)
	for y, r := range rows {
		for x, ch := range r {
			img.Pixels[y*img.Width+x] = ch == '#'
		}
	}
	return img
}

var signalIcons = [5]Image{
	imageFrom(
		"#.....#.....",
		".#...#......",
		"..#.#.......",
		"...#........",
		"..#.#.......",
		".#...#......",
		"#.....#.....",
		".#.#.#.#.#.#",
	),
	imageFrom(
		"............",
		"............",
		"............",
		"............",
		"............",
		"............",
		"##..........",
		"##.#..#..#..",
	),
	imageFrom(
		"............",
		"............",
		"............",
		"............",
		"...##.......",
		"...##.......",
		"##.##.......",
		"##.##..#..#.",
	),
	imageFrom(
		"............",
		"............",
		"......##....",
		"......##....",
		"...##.##....",
		"...##.##....",
		"##.##.##....",
		"##.##.##..#.",
	),
	imageFrom(
		".........##.",
		".........##.",
		"......##.##.",
		"......##.##.",
		"...##.##.##.",
		"...##.##.##.",
		"##.##.##.##.",
		"##.##.##.##.",
	),
}

// SignalIcon returns the 12x8 icon for a signal level 0..4.
func SignalIcon(level uint8) Image {
	if level > 4 {
		level = 4
	}
	return signalIcons[level]
}

// QRImage encodes content as a QR code, one pixel per module including
// the quiet zone.
func QRImage(content string) (Image, error) {
	q, err := qrcode.New(content, qrcode.Low)
	if err != nil {
		return Image{}, err
	}
	bm := q.Bitmap()
	img := Image{Width: len(bm), Height: len(bm)}
	img.Pixels = make([]bool, img.Width*img.Height)
	for y, row := range bm {
		for x, v := range row {
			img.Pixels[y*img.Width+x] = v
		}
	}
	return img, nil
}
