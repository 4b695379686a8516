package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/muurk/serial2ip/internal/bridge"
	"github.com/muurk/serial2ip/internal/cli"
	"github.com/muurk/serial2ip/internal/config"
	"github.com/muurk/serial2ip/internal/discovery"
	"github.com/muurk/serial2ip/internal/display"
	"github.com/muurk/serial2ip/internal/logging"
	"github.com/muurk/serial2ip/internal/nvs"
	"github.com/muurk/serial2ip/internal/panel"
	"github.com/muurk/serial2ip/internal/statusapi"
	"github.com/muurk/serial2ip/internal/uart"
	"github.com/muurk/serial2ip/internal/wifi"
	"github.com/muurk/serial2ip/internal/wifi/iwd"
)

// Run command flags
var (
	runDevice    string
	runDriver    string
	runIface     string
	runStore     string
	runListen    string
	runLogLevel  string
	runHost      string
	runPanel     bool
	runNoConsole bool
	runNoMDNS    bool
	runVerbose   bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the bridge daemon",
	Long: `Start the bridge daemon.

Settings come from the config file; flags override them for this run.
With no serial device the bridge runs on a detached port, which is handy
together with the simulated Wi-Fi driver and the terminal panel.`,
	Example: `  # Bridge /dev/ttyUSB0 over the iwd station wlan0
  serial2ip run --device /dev/ttyUSB0 --iface wlan0

  # Try the front panel without hardware
  serial2ip run --driver sim --panel

  # Verbose traffic logging
  serial2ip run --device /dev/ttyUSB0 --log-level debug --verbose`,
	RunE: runDaemon,
}

func init() {
	f := runCmd.Flags()
	f.StringVar(&runDevice, "device", "", "Serial device (e.g. /dev/ttyUSB0)")
	f.StringVar(&runDriver, "driver", "", "Wi-Fi driver (iwd, sim)")
	f.StringVar(&runIface, "iface", "", "iwd station interface")
	f.StringVar(&runStore, "store", "", "Key/value store file")
	f.StringVar(&runListen, "listen", "", "Status API address, 'off' to disable")
	f.StringVar(&runLogLevel, "log-level", "", "Log level (debug, info, warn, error)")
	f.StringVar(&runHost, "host", "", "Address the TCP bridge listens on")
	f.BoolVar(&runPanel, "panel", false, "Show the front panel in the terminal")
	f.BoolVar(&runNoConsole, "no-console", false, "Do not read the menu console from stdin")
	f.BoolVar(&runNoMDNS, "no-mdns", false, "Do not advertise the bridge over mDNS")
	f.BoolVar(&runVerbose, "verbose", false, "Log forwarded bytes")

	rootCmd.AddCommand(runCmd)
}

// applyRunFlags overlays flags that were set on the loaded config.
func applyRunFlags(cmd *cobra.Command, cfg *config.Config) error {
	f := cmd.Flags()
	if f.Changed("device") {
		cfg.Serial.Device = runDevice
	}
	if f.Changed("driver") {
		cfg.Wifi.Driver = runDriver
	}
	if f.Changed("iface") {
		cfg.Wifi.Interface = runIface
	}
	if f.Changed("store") {
		cfg.Store.Path = runStore
	}
	if f.Changed("listen") {
		cfg.StatusAPI.Listen = runListen
		if runListen == "off" {
			cfg.StatusAPI.Listen = ""
		}
	}
	if f.Changed("log-level") {
		cfg.Log.Level = runLogLevel
	}
	if f.Changed("host") {
		cfg.Bridge.Host = runHost
	}
	if runPanel {
		cfg.Display.Simulator = true
	}
	if runNoMDNS {
		cfg.MDNS.Enabled = false
	}
	if runVerbose {
		cfg.Bridge.Verbose = true
	}
	return cfg.Validate()
}

func runDaemon(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := applyRunFlags(cmd, cfg); err != nil {
		return err
	}

	if err := logging.Initialize(cfg.Log.Level); err != nil {
		return err
	}
	defer logging.Sync()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	d, err := startDaemon(ctx, cfg)
	if err != nil {
		return err
	}
	defer d.close()

	return d.wait(ctx, cfg)
}

// daemon holds the running components in start order.
type daemon struct {
	store   *nvs.Store
	station *wifi.Manager
	port    *uart.Driver
	bridge  *bridge.Bridge
	adv     *discovery.Advertiser
	api     *statusapi.Server

	canvas  *display.Canvas
	led     *display.MemoryLED
	buttons *display.ButtonQueue
	panel   *display.Controller

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func openStore(ctx context.Context, cfg *config.Config) (*nvs.Store, error) {
	path, err := cfg.StorePath()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}
	return nvs.OpenFile(ctx, path)
}

func newRadio(cfg *config.Config) wifi.Radio {
	if cfg.Wifi.Driver == config.DriverSim {
		return wifi.NewSimRadio(cfg.SimNetworks()...)
	}
	return iwd.New(cfg.Wifi.Interface)
}

func openUART(cfg *config.Config) (*uart.Driver, error) {
	baud := cfg.Bridge.DefaultBaudrate
	if cfg.Serial.Device == "" {
		logging.Warn("No serial device configured, running on a detached port")
		return uart.NewDriver(uart.NewFakePort(), baud)
	}
	return uart.Open(cfg.Serial.Device, baud)
}

func startDaemon(ctx context.Context, cfg *config.Config) (_ *daemon, err error) {
	d := &daemon{}
	defer func() {
		if err != nil {
			d.close()
		}
	}()

	if d.store, err = openStore(ctx, cfg); err != nil {
		return nil, err
	}
	wifiNS, err := d.store.Open(wifi.Namespace)
	if err != nil {
		return nil, err
	}
	bridgeNS, err := d.store.Open(bridge.Namespace)
	if err != nil {
		return nil, err
	}

	if d.port, err = openUART(cfg); err != nil {
		return nil, err
	}

	opts := bridge.Options{
		Host:       cfg.Bridge.Host,
		Allow1500k: cfg.Bridge.Allow1500k,
		Verbose:    cfg.Bridge.Verbose,
		Defaults: bridge.Config{
			TCPPort:  cfg.Bridge.DefaultTCPPort,
			Baudrate: cfg.Bridge.DefaultBaudrate,
		},
	}
	if cfg.MDNS.Enabled {
		d.adv = discovery.NewAdvertiser(cfg.MDNS.Instance, d.port.Baudrate)
		opts.OnServerChange = d.adv.Update
	}
	if d.bridge, err = bridge.New(d.port, bridgeNS, opts); err != nil {
		return nil, err
	}
	if err = d.bridge.Start(); err != nil {
		return nil, fmt.Errorf("failed to start bridge: %w", err)
	}

	wcfg := wifi.DefaultConfig()
	wcfg.AutoConnect = cfg.Wifi.AutoConnect
	d.station = wifi.NewManager(newRadio(cfg), wifiNS, wcfg)
	// Subscribe before the first event can be published.
	d.bridge.Attach(d.station)
	if err = d.station.Start(ctx); err != nil {
		return nil, fmt.Errorf("failed to start station: %w", err)
	}

	d.canvas = display.NewCanvas()
	d.led = display.NewMemoryLED()
	d.buttons = display.NewButtonQueue()
	d.panel, err = display.New(d.canvas, d.led, d.buttons, d.station, d.bridge, display.Options{
		Allow1500k: cfg.Bridge.Allow1500k,
		HelpURL:    cfg.Display.HelpURL,
	})
	if err != nil {
		return nil, err
	}

	if cfg.StatusAPI.Listen != "" {
		d.api, err = statusapi.New(statusapi.Config{Listen: cfg.StatusAPI.Listen}, d.station, d.bridge)
		if err != nil {
			return nil, err
		}
		if err = d.api.Start(); err != nil {
			return nil, err
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		if err := d.panel.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
			logging.Error("Display stopped", zap.Error(err))
		}
	}()

	logging.Info("Bridge running",
		zap.String("device", cfg.Serial.Device),
		zap.String("wifi_driver", cfg.Wifi.Driver),
		zap.String("status_api", cfg.StatusAPI.Listen))
	return d, nil
}

// wait blocks on the foreground UI: the terminal panel, the console, or
// just the signal context.
func (d *daemon) wait(ctx context.Context, cfg *config.Config) error {
	switch {
	case cfg.Display.Simulator:
		// The panel owns the terminal, so the console is not started.
		return panel.Run(ctx, d.canvas, d.led, d.buttons)
	case !runNoConsole:
		return d.runConsole(ctx, cfg)
	default:
		<-ctx.Done()
		return nil
	}
}

func (d *daemon) runConsole(ctx context.Context, cfg *config.Config) error {
	restore, raw, err := cli.MakeRaw(os.Stdin)
	if err != nil {
		return err
	}
	defer restore()

	var w io.Writer = os.Stdout
	if raw {
		w = cli.CRLF(os.Stdout)
	}
	m, err := cli.New(w, d.station, d.bridge, cli.Options{Allow1500k: cfg.Bridge.Allow1500k})
	if err != nil {
		return err
	}

	err = cli.NewConsole(os.Stdin, w, m).Run(ctx)
	switch {
	case errors.Is(err, cli.ErrInterrupted):
		return nil
	case err == nil && ctx.Err() == nil:
		// stdin closed; keep bridging until a signal arrives.
		<-ctx.Done()
		return nil
	default:
		return err
	}
}

// close stops everything that was started, in reverse order.
func (d *daemon) close() {
	if d.cancel != nil {
		d.cancel()
	}
	d.wg.Wait()

	if d.api != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := d.api.Shutdown(shutdownCtx); err != nil {
			logging.Warn("Status API shutdown failed", zap.Error(err))
		}
		cancel()
	}
	if d.station != nil {
		if err := d.station.Stop(); err != nil {
			logging.Warn("Station stop failed", zap.Error(err))
		}
	}
	if d.bridge != nil {
		if err := d.bridge.Stop(); err != nil {
			logging.Warn("Bridge stop failed", zap.Error(err))
		}
	}
	if d.adv != nil {
		d.adv.Close()
	}
	if d.port != nil {
		_ = d.port.Close()
	}
	if d.store != nil {
		if err := d.store.Close(); err != nil {
			logging.Warn("Store close failed", zap.Error(err))
		}
	}
	logging.Info("Bridge stopped")
}
