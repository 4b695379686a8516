package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/muurk/serial2ip/internal/config"
	"github.com/muurk/serial2ip/internal/discovery"
	"github.com/muurk/serial2ip/internal/nvs"
	"github.com/muurk/serial2ip/internal/panel"
	"github.com/muurk/serial2ip/internal/uart"
	"github.com/muurk/serial2ip/internal/wifi"
)

// Discover command flags
var (
	discoverTimeout time.Duration
	discoverSerial  string
)

// Config command flags
var configForce bool

func init() {
	discoverCmd.Flags().DurationVar(&discoverTimeout, "timeout", discovery.DefaultScanTimeout, "How long to browse")
	discoverCmd.Flags().StringVar(&discoverSerial, "serial", "", "Wait for the bridge with this serial number")

	configInitCmd.Flags().BoolVar(&configForce, "force", false, "Overwrite an existing config file")
	configCmd.AddCommand(configInitCmd, configShowCmd, configPathCmd)

	rootCmd.AddCommand(discoverCmd, portsCmd, configCmd, recordsCmd)
}

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Find bridges on the local network",
	Long: `Browse mDNS for serial2ip bridges and print their TCP endpoints.

Bridges advertise themselves while their TCP server is listening.`,
	Example: `  # List every bridge that answers within five seconds
  serial2ip discover

  # Wait for one specific bridge
  serial2ip discover --serial SN20250520 --timeout 30s`,
	RunE: runDiscover,
}

func runDiscover(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), discoverTimeout)
	defer cancel()

	scanner := discovery.NewScanner()
	scanner.Timeout = discoverTimeout

	if discoverSerial != "" {
		dev, err := scanner.WaitForDevice(ctx, discoverSerial)
		if err != nil {
			return err
		}
		fmt.Print(panel.RenderDevices([]*discovery.Device{dev}))
		return nil
	}

	fmt.Printf("Browsing for %s (%s)...\n", discovery.ServiceType, discoverTimeout)
	devices, err := scanner.Scan(ctx)
	if err != nil {
		return err
	}
	fmt.Print(panel.RenderDevices(devices))
	return nil
}

var portsCmd = &cobra.Command{
	Use:   "ports",
	Short: "List serial ports",
	RunE: func(cmd *cobra.Command, args []string) error {
		ports, err := uart.ListPorts()
		if err != nil {
			return err
		}
		if len(ports) == 0 {
			fmt.Println("No serial ports found")
			return nil
		}
		for _, p := range ports {
			fmt.Println(p)
		}
		return nil
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the config file",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a config file with default settings",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := resolveConfigPath()
		if err != nil {
			return err
		}
		if _, err := os.Stat(path); err == nil && !configForce {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
		if err := config.Default().Save(path); err != nil {
			return err
		}
		fmt.Printf("Wrote %s\n", path)
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		data, err := cfg.Marshal()
		if err != nil {
			return err
		}
		fmt.Print(string(data))
		return nil
	},
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the config file location",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := resolveConfigPath()
		if err != nil {
			return err
		}
		fmt.Println(path)
		return nil
	},
}

func resolveConfigPath() (string, error) {
	if configPath != "" {
		return configPath, nil
	}
	return config.GetConfigPath()
}

var recordsCmd = &cobra.Command{
	Use:   "records",
	Short: "List stored Wi-Fi networks",
	Long: `List the Wi-Fi networks saved in the key/value store.

Passwords are never printed. Stop the daemon first if the store is busy.`,
	RunE: runRecords,
}

func runRecords(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	path, err := cfg.StorePath()
	if err != nil {
		return err
	}
	if _, err := os.Stat(path); err != nil {
		fmt.Println("No stored networks")
		return nil
	}

	store, err := nvs.OpenFile(cmd.Context(), path)
	if err != nil {
		return err
	}
	defer store.Close()

	h, err := store.Open(wifi.Namespace)
	if err != nil {
		return err
	}
	records := wifi.NewStore(h, nil)
	if err := records.Load(); err != nil {
		return err
	}

	list := records.Records()
	if len(list) == 0 {
		fmt.Println("No stored networks")
		return nil
	}
	fmt.Printf("%-4s %-32s %-9s %s\n", "ID", "SSID", "SEQUENCE", "FLAGS")
	for _, r := range list {
		var flags []string
		if r.EverSuccess {
			flags = append(flags, "connected-before")
		}
		if r.UserDisconnected {
			flags = append(flags, "user-disconnected")
		}
		if r.Password == "" {
			flags = append(flags, "open")
		}
		fmt.Printf("%-4d %-32s %-9d %s\n", r.ID, r.SSID, r.Sequence, strings.Join(flags, ","))
	}
	return nil
}
