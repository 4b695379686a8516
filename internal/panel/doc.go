// Package panel is a terminal stand-in for the device's front panel.
//
// It draws the display canvas with braille characters, shows the status
// LED following its blink pattern and turns keys into button events:
//
//   - space: one click; presses within ClickWindow add up to a multi-click
//   - 2, 3: an immediate double or triple click
//   - l: a three second long press
//   - q: quit
//
// Button events go through the same bounded queue as the hardware button,
// so a burst that overflows it is dropped and counted in the status line.
//
// # Devices
//
// RenderDevices formats mDNS browse results for the discover command.
package panel
