package codec

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"labfleet/internal/directory"
)

// YAMLExporter writes the listing as YAML, shaped like the static device
// section of the config file so a discovered fleet can be pasted back in.
type YAMLExporter struct{}

// NewYAMLExporter creates a YAML exporter.
func NewYAMLExporter() *YAMLExporter {
	return &YAMLExporter{}
}

// Format returns the format identifier.
func (e *YAMLExporter) Format() string {
	return "yaml"
}

type yamlListing struct {
	Devices []yamlDevice `yaml:"devices"`
}

type yamlDevice struct {
	Name           string  `yaml:"name"`
	Address        string  `yaml:"address"`
	Hostname       string  `yaml:"hostname,omitempty"`
	Classification string  `yaml:"classification,omitempty"`
	Principal      string  `yaml:"principal,omitempty"`
	Source         string  `yaml:"source,omitempty"`
	Reachable      bool    `yaml:"reachable"`
	PowerState     string  `yaml:"power_state,omitempty"`
	PowerWatts     float64 `yaml:"power_watts,omitempty"`
	Instrument     string  `yaml:"instrument_model,omitempty"`
	ControlledBy   string  `yaml:"controlled_by,omitempty"`
	RelayEligible  bool    `yaml:"relay_eligible,omitempty"`
}

// Export writes entries to w.
func (e *YAMLExporter) Export(entries []directory.Entry, w io.Writer) error {
	listing := yamlListing{Devices: make([]yamlDevice, 0, len(entries))}
	for _, entry := range entries {
		listing.Devices = append(listing.Devices, yamlDevice{
			Name:           entry.Name,
			Address:        entry.Address,
			Hostname:       entry.Identity.Hostname,
			Classification: string(entry.Identity.Classification),
			Principal:      entry.Identity.Principal,
			Source:         string(entry.Identity.Source),
			Reachable:      entry.Reachable,
			PowerState:     entry.Identity.PowerState,
			PowerWatts:     entry.Identity.PowerWatts,
			Instrument:     entry.Identity.InstrumentModel,
			ControlledBy:   entry.Identity.ControlledBy,
			RelayEligible:  entry.RelayEligible,
		})
	}

	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	defer encoder.Close()

	if err := encoder.Encode(&listing); err != nil {
		return fmt.Errorf("encode listing: %w", err)
	}
	return nil
}
