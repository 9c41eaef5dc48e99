package config

import (
	"time"

	"labfleet/internal/domain"
)

// Config is the root configuration structure
type Config struct {
	Version  int            `yaml:"version"`
	Log      LogConfig      `yaml:"log,omitempty"`
	Networks []string       `yaml:"networks,omitempty"`
	Scan     ScanConfig     `yaml:"scan"`
	Identify IdentifyConfig `yaml:"identify"`
	Cache    CacheConfig    `yaml:"cache"`
	Gateway  *GatewayConfig `yaml:"gateway,omitempty"`
	Devices  []StaticDevice `yaml:"devices,omitempty"`
}

// LogConfig holds logging settings
type LogConfig struct {
	Level   string `yaml:"level,omitempty"`   // trace, debug, info, warn, error
	Console bool   `yaml:"console,omitempty"` // human-readable output instead of JSON
}

// ScanConfig holds liveness sweep settings
type ScanConfig struct {
	// Backend selects the sweep implementation: "tcp" (built in) or "nmap"
	Backend string `yaml:"backend,omitempty"`
	// Ports probed to decide whether a host is alive
	Ports []int `yaml:"ports,omitempty"`
	// Timeout for a single probe
	Timeout Duration `yaml:"timeout,omitempty"`
	// Workers bounds concurrent probes for a sweep
	Workers int `yaml:"workers,omitempty"`
	// MaxHosts caps the number of addresses a CIDR may expand to
	MaxHosts int `yaml:"max_hosts,omitempty"`
}

// IdentifyConfig holds identity-probing settings
type IdentifyConfig struct {
	// Principals are raced concurrently against each live host, in the
	// order given here the first entry is the preferred login.
	Principals []Principal `yaml:"principals,omitempty"`
	// Timeout for a single handshake attempt
	Timeout Duration `yaml:"timeout,omitempty"`
	// Workers bounds hosts identified concurrently in one pass
	Workers int `yaml:"workers,omitempty"`
	// SNMPCommunity used by the SNMP classification probe
	SNMPCommunity string `yaml:"snmp_community,omitempty"`
}

// Principal is a candidate SSH login
type Principal struct {
	User     string `yaml:"user"`
	Password string `yaml:"password,omitempty"`
}

// CacheConfig holds durable device-cache settings
type CacheConfig struct {
	// Path of the JSON snapshot file; empty means in-memory only
	Path string `yaml:"path,omitempty"`
	// TTL for identity facts
	TTL Duration `yaml:"ttl,omitempty"`
	// LivenessTTL for last-contact facts, shorter than identity TTL
	LivenessTTL Duration `yaml:"liveness_ttl,omitempty"`
}

// GatewayConfig describes the relay gateway used when a device is only
// reachable by executing from the gateway's vantage point.
type GatewayConfig struct {
	Host      string `yaml:"host"`
	Port      int    `yaml:"port,omitempty"`
	Principal string `yaml:"principal,omitempty"`
	// Password may be left empty and supplied via $GATEWAY_PASSWORD
	Password string `yaml:"password,omitempty"`
	// Timeout budget for relayed operations, longer than direct ones
	Timeout Duration `yaml:"timeout,omitempty"`
}

// StaticDevice is a known device from the static directory file
type StaticDevice struct {
	Name      string `yaml:"name"`
	Address   string `yaml:"address"`
	Principal string `yaml:"principal,omitempty"`
	Password  string `yaml:"password,omitempty"`
	Port      int    `yaml:"port,omitempty"`
	// Classification hint; discovery may refine it
	Classification domain.Classification `yaml:"classification,omitempty"`
	// RelayEligible marks devices reachable only through the gateway
	RelayEligible bool `yaml:"relay_eligible,omitempty"`
	// ControlledBy names the power switch feeding this device
	ControlledBy string `yaml:"controlled_by,omitempty"`
}

// Duration wraps time.Duration for human-readable YAML ("30s", "5m")
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Duration returns the underlying time.Duration
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}
