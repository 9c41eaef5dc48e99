package codec

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"labfleet/internal/directory"
	"labfleet/internal/domain"
)

// JSONExporter writes the listing as indented JSON.
type JSONExporter struct{}

// NewJSONExporter creates a JSON exporter.
func NewJSONExporter() *JSONExporter {
	return &JSONExporter{}
}

// Format returns the format identifier.
func (e *JSONExporter) Format() string {
	return "json"
}

// jsonEntry flattens a directory entry for machine consumers.
type jsonEntry struct {
	Name           string                `json:"name"`
	Address        string                `json:"address"`
	Hostname       string                `json:"hostname,omitempty"`
	Classification domain.Classification `json:"classification"`
	Source         domain.Source         `json:"source,omitempty"`
	Principal      string                `json:"principal,omitempty"`
	Reachable      bool                  `json:"reachable"`
	LatencyMS      float64               `json:"latency_ms,omitempty"`
	PowerState     string                `json:"power_state,omitempty"`
	PowerWatts     float64               `json:"power_watts,omitempty"`
	Instrument     string                `json:"instrument_model,omitempty"`
	ControlledBy   string                `json:"controlled_by,omitempty"`
	LastSSHError   string                `json:"last_ssh_error,omitempty"`
	LastContact    *time.Time            `json:"last_contact,omitempty"`
	RelayEligible  bool                  `json:"relay_eligible,omitempty"`
}

// Export writes entries to w.
func (e *JSONExporter) Export(entries []directory.Entry, w io.Writer) error {
	out := make([]jsonEntry, 0, len(entries))
	for _, entry := range entries {
		je := jsonEntry{
			Name:           entry.Name,
			Address:        entry.Address,
			Hostname:       entry.Identity.Hostname,
			Classification: entry.Identity.Classification,
			Source:         entry.Identity.Source,
			Principal:      entry.Identity.Principal,
			Reachable:      entry.Reachable,
			PowerState:     entry.Identity.PowerState,
			PowerWatts:     entry.Identity.PowerWatts,
			Instrument:     entry.Identity.InstrumentModel,
			ControlledBy:   entry.Identity.ControlledBy,
			LastSSHError:   entry.Identity.LastSSHError,
			RelayEligible:  entry.RelayEligible,
		}
		if entry.Latency > 0 {
			je.LatencyMS = float64(entry.Latency.Microseconds()) / 1000.0
		}
		if !entry.Identity.LastContact.IsZero() {
			t := entry.Identity.LastContact
			je.LastContact = &t
		}
		out = append(out, je)
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(out); err != nil {
		return fmt.Errorf("encode listing: %w", err)
	}
	return nil
}
