package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

func TestGetConfigDir(t *testing.T) {
	if runtime.GOOS != "windows" && runtime.GOOS != "darwin" {
		t.Setenv("XDG_CONFIG_HOME", "/tmp/xdg")
		dir, err := GetConfigDir()
		if err != nil {
			t.Fatalf("GetConfigDir() error = %v", err)
		}
		if dir != filepath.Join("/tmp/xdg", "serial2ip") {
			t.Errorf("GetConfigDir() = %v, want /tmp/xdg/serial2ip", dir)
		}
	}

	path, err := GetConfigPath()
	if err != nil {
		t.Fatalf("GetConfigPath() error = %v", err)
	}
	if filepath.Base(path) != "config.yaml" {
		t.Errorf("GetConfigPath() should end with 'config.yaml', got: %v", path)
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()

	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default().Validate() error = %v", err)
	}
	if cfg.Bridge.DefaultTCPPort != 5678 {
		t.Errorf("Default().Bridge.DefaultTCPPort = %v, want 5678", cfg.Bridge.DefaultTCPPort)
	}
	if cfg.Bridge.DefaultBaudrate != 115200 {
		t.Errorf("Default().Bridge.DefaultBaudrate = %v, want 115200", cfg.Bridge.DefaultBaudrate)
	}
	if cfg.Wifi.Driver != DriverIWD || !cfg.Wifi.AutoConnect {
		t.Errorf("Default().Wifi = %+v, want iwd with auto connect", cfg.Wifi)
	}
	if !cfg.MDNS.Enabled {
		t.Error("Default().MDNS.Enabled should be true")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"default", func(c *Config) {}, ""},
		{"bad version", func(c *Config) { c.Version = 2 }, "unsupported config version"},
		{"bad driver", func(c *Config) { c.Wifi.Driver = "nm" }, "wifi.driver"},
		{"sim driver", func(c *Config) { c.Wifi.Driver = DriverSim }, ""},
		{"empty sim ssid", func(c *Config) {
			c.Wifi.SimNetworks = []SimNetwork{{SSID: ""}}
		}, "sim_networks[0]"},
		{"long sim password", func(c *Config) {
			c.Wifi.SimNetworks = []SimNetwork{{SSID: "lab", Password: strings.Repeat("p", 64)}}
		}, "password longer"},
		{"zero port", func(c *Config) { c.Bridge.DefaultTCPPort = 0 }, "default_tcp_port"},
		{"unsupported baud", func(c *Config) { c.Bridge.DefaultBaudrate = 1234 }, "not supported"},
		{"1500k not allowed", func(c *Config) { c.Bridge.DefaultBaudrate = 1500000 }, "not supported"},
		{"1500k allowed", func(c *Config) {
			c.Bridge.DefaultBaudrate = 1500000
			c.Bridge.Allow1500k = true
		}, ""},
		{"bad listen", func(c *Config) { c.StatusAPI.Listen = "8080" }, "status_api.listen"},
		{"api disabled", func(c *Config) { c.StatusAPI.Listen = "" }, ""},
		{"bad log level", func(c *Config) { c.Log.Level = "verbose" }, "log.level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Version != CurrentVersion {
		t.Errorf("Load().Version = %v, want %v", cfg.Version, CurrentVersion)
	}
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `version: 1
serial:
  device: /dev/ttyUSB1
wifi:
  driver: sim
  sim_networks:
    - ssid: lab
      password: secret
      rssi: -50
`
	if err := os.WriteFile(path, []byte(data), 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Serial.Device != "/dev/ttyUSB1" {
		t.Errorf("Serial.Device = %v, want /dev/ttyUSB1", cfg.Serial.Device)
	}
	if cfg.Bridge.DefaultTCPPort != 5678 {
		t.Errorf("Bridge.DefaultTCPPort = %v, want default 5678", cfg.Bridge.DefaultTCPPort)
	}
	if !cfg.Wifi.AutoConnect {
		t.Error("Wifi.AutoConnect should keep its default")
	}
	nets := cfg.SimNetworks()
	if len(nets) != 1 || nets[0].SSID != "lab" || nets[0].RSSI != -50 {
		t.Errorf("SimNetworks() = %+v", nets)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"not yaml", "version: [1"},
		{"wrong version", "version: 3\n"},
		{"bad baud", "version: 1\nbridge:\n  default_baudrate: 7\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			if err := os.WriteFile(path, []byte(tt.data), 0600); err != nil {
				t.Fatalf("WriteFile() error = %v", err)
			}
			if _, err := Load(path); err == nil {
				t.Error("Load() error = nil, want error")
			}
		})
	}
}

func TestSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg := Default()
	cfg.Serial.Device = "/dev/ttyAMA0"
	cfg.Bridge.DefaultBaudrate = 921600
	cfg.MDNS.Instance = "bench"
	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if !strings.HasPrefix(string(raw), "# serial2ip configuration file") {
		t.Errorf("saved file does not start with the header comment")
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Errorf("temporary file left behind: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.Serial.Device != "/dev/ttyAMA0" || loaded.Bridge.DefaultBaudrate != 921600 || loaded.MDNS.Instance != "bench" {
		t.Errorf("Load() = %+v, want saved values", loaded)
	}

	if runtime.GOOS != "windows" {
		info, err := os.Stat(path)
		if err != nil {
			t.Fatalf("Stat() error = %v", err)
		}
		if info.Mode().Perm() != 0600 {
			t.Errorf("config file mode = %v, want 0600", info.Mode().Perm())
		}
	}
}

func TestStorePath(t *testing.T) {
	cfg := Default()
	cfg.Store.Path = "/var/lib/serial2ip/nvs.db"
	if got, _ := cfg.StorePath(); got != "/var/lib/serial2ip/nvs.db" {
		t.Errorf("StorePath() = %v, want explicit path", got)
	}

	cfg.Store.Path = ""
	got, err := cfg.StorePath()
	if err != nil {
		t.Fatalf("StorePath() error = %v", err)
	}
	if filepath.Base(got) != "nvs.db" {
		t.Errorf("StorePath() = %v, want nvs.db in config dir", got)
	}
}
