// Package config provides configuration management for labfleet.
//
// The config file doubles as the static device directory: it names the
// devices the lab already knows about (addresses, logins, relay
// eligibility, power-switch wiring) alongside the sweep/identify tunables.
// Absence of the file is tolerated; discovery still runs against whatever
// networks are passed on the command line.
//
// Config file locations (priority order):
//  1. $LABFLEET_CONFIG
//  2. ./labfleet.yaml
//  3. ~/.config/labfleet/config.yaml
//  4. /etc/labfleet/config.yaml
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Load finds and loads the config file, or returns defaults if none found
func Load() (*Config, string, error) {
	path := FindConfigPath()

	if path == "" {
		return DefaultConfig(), "", nil
	}

	return LoadFromPath(path)
}

// LoadFromPath loads config from a specific path
func LoadFromPath(path string) (*Config, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, path, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, path, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.validate(); err != nil {
		return nil, path, err
	}

	return &cfg, path, nil
}

// Save writes config to the specified path
func (c *Config) Save(path string) error {
	if err := EnsureConfigDir(path); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0o644)
}

// DefaultConfig returns sensible defaults for a new installation
func DefaultConfig() *Config {
	cfg := &Config{Version: 1}
	cfg.applyDefaults()
	return cfg
}

// applyDefaults fills in missing values with defaults
func (c *Config) applyDefaults() {
	if c.Version == 0 {
		c.Version = 1
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}

	if c.Scan.Backend == "" {
		c.Scan.Backend = "tcp"
	}
	if len(c.Scan.Ports) == 0 {
		// SSH plus the web/SCPI ports the lab's switches and instruments answer on
		c.Scan.Ports = []int{22, 80, 443, 5025}
	}
	if c.Scan.Timeout == 0 {
		c.Scan.Timeout = Duration(1 * time.Second)
	}
	if c.Scan.Workers == 0 {
		c.Scan.Workers = 100
	}
	if c.Scan.MaxHosts == 0 {
		c.Scan.MaxHosts = 1024
	}

	if len(c.Identify.Principals) == 0 {
		c.Identify.Principals = []Principal{
			{User: "fio", Password: "fio"},
			{User: "root", Password: "root"},
		}
	}
	if c.Identify.Timeout == 0 {
		c.Identify.Timeout = Duration(5 * time.Second)
	}
	if c.Identify.Workers == 0 {
		c.Identify.Workers = 10
	}
	if c.Identify.SNMPCommunity == "" {
		c.Identify.SNMPCommunity = "public"
	}

	if c.Cache.TTL == 0 {
		// VPN addresses rarely change; identity facts stay valid for a week
		c.Cache.TTL = Duration(7 * 24 * time.Hour)
	}
	if c.Cache.LivenessTTL == 0 {
		c.Cache.LivenessTTL = Duration(1 * time.Hour)
	}

	if c.Gateway != nil {
		if c.Gateway.Port == 0 {
			c.Gateway.Port = 5025
		}
		if c.Gateway.Principal == "" {
			c.Gateway.Principal = "root"
		}
		if c.Gateway.Password == "" {
			c.Gateway.Password = os.Getenv("GATEWAY_PASSWORD")
		}
		if c.Gateway.Timeout == 0 {
			c.Gateway.Timeout = Duration(60 * time.Second)
		}
	}

	for i := range c.Devices {
		if c.Devices[i].Port == 0 {
			c.Devices[i].Port = 22
		}
		if c.Devices[i].Principal == "" {
			c.Devices[i].Principal = "root"
		}
	}
}

// validate rejects configs that cannot possibly work
func (c *Config) validate() error {
	switch c.Scan.Backend {
	case "tcp", "nmap":
	default:
		return fmt.Errorf("config: unknown scan backend %q", c.Scan.Backend)
	}

	seen := make(map[string]string, len(c.Devices))
	for _, d := range c.Devices {
		if d.Address == "" {
			return fmt.Errorf("config: device %q has no address", d.Name)
		}
		if prev, ok := seen[d.Address]; ok {
			return fmt.Errorf("config: devices %q and %q share address %s", prev, d.Name, d.Address)
		}
		seen[d.Address] = d.Name
		if d.RelayEligible && c.Gateway == nil {
			return fmt.Errorf("config: device %q is relay eligible but no gateway is configured", d.Name)
		}
	}

	return nil
}

// Device returns the static device entry for an address, if any
func (c *Config) Device(address string) (*StaticDevice, bool) {
	for i := range c.Devices {
		if c.Devices[i].Address == address {
			return &c.Devices[i], true
		}
	}
	return nil, false
}

// DeviceByName returns the static device entry with the given name, if any
func (c *Config) DeviceByName(name string) (*StaticDevice, bool) {
	for i := range c.Devices {
		if c.Devices[i].Name == name {
			return &c.Devices[i], true
		}
	}
	return nil, false
}
