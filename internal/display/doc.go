// Package display runs the front panel: a 128x64 monochrome screen, a
// status LED and a single button.
//
// The Controller is driven by a 20 Hz loop. Each tick drains the button
// queue, resamples the station and the bridge every SampleInterval, moves
// the Home animation, expires popups and pages, and redraws when anything
// changed.
//
// # Pages
//
// Home is the default page and never expires. A single click opens the
// menu (Uart, Network, Help), further single clicks move the selector and a
// double click enters the selected page for PageTimeout. A triple click
// toggles the CPU readout, and holding the button for StatsResetHold
// seconds resets the bridge counters.
//
// The Network page starts a scan on entry and annotates each stored
// network with the signal level it was seen at. Choosing a network starts
// a connect in the background with up to ConnectRetries retries.
//
// When no network is stored at start the Help page is shown and the
// button is ignored until a record appears.
//
// # LED
//
// The LED follows the station state: solid when connected, a fast blink
// while connecting and a short flash once every 32 slots when disconnected.
//
// # Drawing
//
// The Controller only talks to the Drawer and LED interfaces. Canvas is an
// in-memory Drawer used by the terminal panel and the tests; its Render
// method turns the frame into braille characters.
package display
