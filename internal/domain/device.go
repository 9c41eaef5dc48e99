package domain

import "time"

// Classification indicates what kind of device an address belongs to
type Classification string

const (
	ClassificationGeneric     Classification = "generic"
	ClassificationPowerSwitch Classification = "power-switch"
	ClassificationInstrument  Classification = "instrument"
	ClassificationUnknown     Classification = "unclassified"
)

// Source indicates where a device record came from
type Source string

const (
	SourceStatic     Source = "static"
	SourceDiscovered Source = "discovered"
)

// HostRecord is the result of a single liveness probe during a scan pass.
// Records are ephemeral; they are merged into the directory and discarded.
type HostRecord struct {
	Address   string        `json:"address"`
	Reachable bool          `json:"reachable"`
	Latency   time.Duration `json:"latency"`
}

// Identity is the durable, cached record of who/what a network address is.
// At most one Identity exists per address; entries older than the cache
// expiry window are treated as absent and re-derived.
type Identity struct {
	Address        string         `json:"address"`
	Hostname       string         `json:"hostname,omitempty"`
	Classification Classification `json:"classification"`
	// Principal is the username that won the identification race, empty
	// when the address was discovered but never identified.
	Principal string `json:"principal,omitempty"`
	// Confidence of the classification: 1.0 for protocol probes, lower
	// for heuristic fallbacks such as hostname substring matching.
	Confidence float64 `json:"confidence,omitempty"`

	// Power-switch attributes
	PowerState string  `json:"power_state,omitempty"`
	PowerWatts float64 `json:"power_watts,omitempty"`

	// Instrument attributes
	InstrumentModel string `json:"instrument_model,omitempty"`

	// ControlledBy references the address of the power switch feeding this
	// device. Lookup-only; the relation never owns either side.
	ControlledBy string `json:"controlled_by,omitempty"`

	// LastSSHError records why the most recent identification attempt
	// failed ("auth", "timeout", "refused"), empty on success.
	LastSSHError string `json:"last_ssh_error,omitempty"`

	Source      Source    `json:"source"`
	LastContact time.Time `json:"last_contact,omitempty"`
	CachedAt    time.Time `json:"cached_at"`
}

// Identified reports whether the identity race produced a stable hostname.
func (id *Identity) Identified() bool {
	return id.Hostname != "" && id.Principal != ""
}

// Merge copies classification attributes from other into id without
// discarding an already-resolved identity. A winner is never overridden.
func (id *Identity) Merge(other *Identity) {
	if other == nil {
		return
	}
	if other.Classification != "" && other.Classification != ClassificationUnknown {
		if id.Classification == "" || id.Classification == ClassificationUnknown ||
			other.Confidence >= id.Confidence {
			id.Classification = other.Classification
			id.Confidence = other.Confidence
		}
	}
	if !id.Identified() && other.Identified() {
		id.Hostname = other.Hostname
		id.Principal = other.Principal
	}
	// The most recent identification attempt decides the SSH error label:
	// a success clears it, a failure replaces it.
	if other.Identified() {
		id.LastSSHError = ""
	} else if other.LastSSHError != "" {
		id.LastSSHError = other.LastSSHError
	}
	if other.PowerState != "" {
		id.PowerState = other.PowerState
		id.PowerWatts = other.PowerWatts
	}
	if other.InstrumentModel != "" {
		id.InstrumentModel = other.InstrumentModel
	}
	if other.ControlledBy != "" {
		id.ControlledBy = other.ControlledBy
	}
	if other.LastContact.After(id.LastContact) {
		id.LastContact = other.LastContact
	}
}
