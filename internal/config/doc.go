// Package config loads and saves the serial2ip daemon configuration.
//
// The configuration is a YAML file stored in a platform-appropriate location:
//   - Linux: $XDG_CONFIG_HOME/serial2ip/config.yaml or $HOME/.config/serial2ip/config.yaml
//   - macOS: $HOME/.config/serial2ip/config.yaml
//   - Windows: %LOCALAPPDATA%\serial2ip\config.yaml
//
// Keys missing from the file keep the values of Default(), so a file only
// needs the settings that differ:
//
//	version: 1
//	serial:
//	  device: /dev/ttyUSB0
//	wifi:
//	  driver: iwd
//	  interface: wlan0
//
// # Device Settings
//
// The TCP port and the UART baudrate chosen on the device are persisted in
// the key/value store, not here. The bridge section only provides the
// values used until the device has stored its own.
//
// # Security
//
// Wi-Fi passwords are never written to this file, except for the access
// points of the simulated radio, which are test fixtures.
package config
