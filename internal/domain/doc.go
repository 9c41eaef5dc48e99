// Package domain defines the core types for the labfleet discovery and
// access subsystem.
//
// # Identity Model
//
// Identity is the durable record of who or what a network address is:
// hostname, the SSH principal that answers there, a device
// classification, and per-kind attributes (power telemetry for switches,
// the *IDN? model string for instruments). At most one Identity exists
// per address; the cache treats entries older than the expiry window as
// absent and discovery re-derives them.
//
// HostRecord is the ephemeral result of one liveness probe during a
// sweep. Records are merged into the directory and discarded.
//
// # Classification
//
// Devices classify as generic (SSH-reachable boards), power-switch
// (Tasmota-style smart plugs), instrument (SCPI test equipment), or
// unclassified. Classifications carry a confidence so a protocol probe
// always outranks a hostname guess.
//
// # Error Taxonomy
//
// Error wraps a failure with an ErrorKind (unreachable, auth_failed,
// timeout, refused, cache_corrupt, relay_unavailable, internal) and the
// address it concerns. KindOf classifies arbitrary errors, including
// net and context failures, into the taxonomy; Retryable marks the kinds
// a relay fallback may recover from.
package domain
