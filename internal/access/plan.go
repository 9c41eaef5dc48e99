package access

import (
	"time"

	"labfleet/internal/domain"
)

// PlanMode says which route an operation travels.
type PlanMode string

const (
	// PlanDirect connects straight to the device address.
	PlanDirect PlanMode = "direct"
	// PlanRelayed executes from the relay gateway's vantage point.
	PlanRelayed PlanMode = "relayed"
)

// Relay holds the gateway coordinates for a relayed plan.
type Relay struct {
	Host      string
	Port      int
	Principal string
	Password  string
}

// Target is everything the router needs to reach one device. Resolved on
// demand from the directory and static config; never persisted.
type Target struct {
	// Name is the friendly device name when known, else the address.
	Name      string
	Address   string
	Port      int
	Principal string
	Password  string
	// Relay is non-nil for relay-eligible devices; the router falls back
	// to it when the direct plan fails retryably.
	Relay *Relay
}

// Resolver turns a device reference (name or address) into a Target.
type Resolver interface {
	Resolve(ref string) (*Target, error)
}

// Report tells the caller what happened and which plan serviced the
// request, so operators can see whether relay fallback was exercised.
type Report struct {
	Device  string
	Address string
	// Attempted lists the plans tried, in order.
	Attempted []PlanMode
	// ServedBy is the plan that completed the operation, empty on failure.
	ServedBy PlanMode
	Success  bool
	// Kind classifies the final failure, empty on success.
	Kind     domain.ErrorKind
	Err      error
	Stdout   string
	Stderr   string
	ExitCode int
	Duration time.Duration
}
