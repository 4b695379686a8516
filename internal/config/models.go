package config

import (
	"fmt"
	"net"
	"path/filepath"

	"github.com/muurk/serial2ip/internal/bridge"
	"github.com/muurk/serial2ip/internal/uart"
	"github.com/muurk/serial2ip/internal/wifi"
)

// CurrentVersion is the config file format version.
const CurrentVersion = 1

// Wi-Fi drivers.
const (
	DriverIWD = "iwd"
	DriverSim = "sim"
)

// Config represents the daemon configuration file.
type Config struct {
	Version   int             `yaml:"version"`
	Log       LogConfig       `yaml:"log"`
	Serial    SerialConfig    `yaml:"serial"`
	Store     StoreConfig     `yaml:"store"`
	Wifi      WifiConfig      `yaml:"wifi"`
	Bridge    BridgeConfig    `yaml:"bridge"`
	StatusAPI StatusAPIConfig `yaml:"status_api"`
	MDNS      MDNSConfig      `yaml:"mdns"`
	Display   DisplayConfig   `yaml:"display"`
}

// LogConfig selects the log level. Empty means SERIAL2IP_LOG_LEVEL, or silent.
type LogConfig struct {
	Level string `yaml:"level,omitempty"` // debug, info, warn, error
}

// SerialConfig describes the UART device.
type SerialConfig struct {
	Device string `yaml:"device"` // e.g. /dev/ttyUSB0; empty runs a loopback port
}

// StoreConfig locates the non-volatile key/value store.
type StoreConfig struct {
	Path string `yaml:"path,omitempty"` // sqlite file; empty means <config dir>/nvs.db
}

// WifiConfig selects and tunes the station driver.
type WifiConfig struct {
	Driver      string       `yaml:"driver"`              // iwd or sim
	Interface   string       `yaml:"interface,omitempty"` // iwd station name, empty for the first one
	AutoConnect bool         `yaml:"auto_connect"`
	SimNetworks []SimNetwork `yaml:"sim_networks,omitempty"` // access points seen by the sim driver
}

// SimNetwork is an access point of the simulated radio.
type SimNetwork struct {
	SSID     string `yaml:"ssid"`
	Password string `yaml:"password,omitempty"`
	RSSI     int8   `yaml:"rssi"`
}

// BridgeConfig holds defaults used until the device stores its own values.
type BridgeConfig struct {
	Host            string `yaml:"host,omitempty"` // listen address, empty for all interfaces
	DefaultTCPPort  uint16 `yaml:"default_tcp_port"`
	DefaultBaudrate uint32 `yaml:"default_baudrate"`
	Allow1500k      bool   `yaml:"allow_1500k"`
	Verbose         bool   `yaml:"verbose"` // log every forwarded chunk
}

// StatusAPIConfig configures the HTTP status API.
type StatusAPIConfig struct {
	Listen string `yaml:"listen,omitempty"` // empty disables the API
}

// MDNSConfig configures service advertisement.
type MDNSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Instance string `yaml:"instance,omitempty"`
}

// DisplayConfig configures the front panel.
type DisplayConfig struct {
	Simulator bool   `yaml:"simulator"` // draw the panel in the terminal
	HelpURL   string `yaml:"help_url,omitempty"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		Version: CurrentVersion,
		Wifi: WifiConfig{
			Driver:      DriverIWD,
			AutoConnect: true,
		},
		Bridge: BridgeConfig{
			DefaultTCPPort:  bridge.DefaultTCPPort,
			DefaultBaudrate: uart.DefaultBaudrate,
		},
		StatusAPI: StatusAPIConfig{Listen: "127.0.0.1:8080"},
		MDNS:      MDNSConfig{Enabled: true},
	}
}

// Validate checks the configuration for values the daemon cannot run with.
func (c *Config) Validate() error {
	if c.Version != CurrentVersion {
		return fmt.Errorf("unsupported config version: %d (expected %d)", c.Version, CurrentVersion)
	}

	switch c.Wifi.Driver {
	case DriverIWD, DriverSim:
	default:
		return fmt.Errorf("wifi.driver must be %q or %q, got %q", DriverIWD, DriverSim, c.Wifi.Driver)
	}
	for i, n := range c.Wifi.SimNetworks {
		if n.SSID == "" || len(n.SSID) > wifi.MaxSSIDLen {
			return fmt.Errorf("wifi.sim_networks[%d]: ssid must be 1-%d bytes", i, wifi.MaxSSIDLen)
		}
		if len(n.Password) > wifi.MaxPasswordLen {
			return fmt.Errorf("wifi.sim_networks[%d]: password longer than %d bytes", i, wifi.MaxPasswordLen)
		}
	}

	if c.Bridge.DefaultTCPPort == 0 {
		return fmt.Errorf("bridge.default_tcp_port must not be 0")
	}
	if !uart.IsSupported(c.Bridge.DefaultBaudrate, c.Bridge.Allow1500k) {
		return fmt.Errorf("bridge.default_baudrate %d is not supported", c.Bridge.DefaultBaudrate)
	}

	if c.StatusAPI.Listen != "" {
		if _, _, err := net.SplitHostPort(c.StatusAPI.Listen); err != nil {
			return fmt.Errorf("status_api.listen: %w", err)
		}
	}

	switch c.Log.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level %q is not one of debug, info, warn, error", c.Log.Level)
	}
	return nil
}

// StorePath returns the sqlite file of the key/value store.
func (c *Config) StorePath() (string, error) {
	if c.Store.Path != "" {
		return c.Store.Path, nil
	}
	dir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, storeFile), nil
}

// SimNetworks converts the configured access points for the sim radio.
func (c *Config) SimNetworks() []wifi.SimNetwork {
	out := make([]wifi.SimNetwork, 0, len(c.Wifi.SimNetworks))
	for _, n := range c.Wifi.SimNetworks {
		out = append(out, wifi.SimNetwork{SSID: n.SSID, Password: n.Password, RSSI: n.RSSI})
	}
	return out
}
