// Package cli implements the serial console menu.
//
// A Console reads raw keystrokes, echoes printable characters, handles
// backspace and passes each completed line to a Machine. The first byte
// received only prints a welcome banner; Enter then shows the main menu.
//
// # Menus
//
//	Main         Status, WiFi Setting, UART Setting, About
//	WiFi Setting Auto Connect, Scan & Connect, Disconnect,
//	             List Networks, Delete Network, Add Network, Exit
//	UART Setting one entry per supported baud rate
//
// Malformed input re-prompts. Only an explicit 0 or the inactivity
// timeout leaves a menu; a result screen returns on Enter.
//
// # Activity
//
// While any menu other than Main is open the console is active and the
// station's auto-connect is suspended, so scans and connects started by
// the user are not pre-empted. Returning to Main, or ActivityTimeout
// without input, ends the session and auto-connect follows the user's
// preference again. A connect already running when the session ends is
// not interrupted.
package cli
