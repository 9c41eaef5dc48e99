package probe

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"labfleet/internal/domain"
)

// ClassifyOutcome is the typed result of one classification probe. A nil
// outcome from a classifier means "not this kind of device", which is a
// normal result, not a failure.
type ClassifyOutcome struct {
	Classification  domain.Classification
	Confidence      float64
	Hostname        string
	PowerState      string
	PowerWatts      float64
	InstrumentModel string
}

// Classifier detects one device kind. The set is closed: power switches,
// instruments, and the SNMP probe that covers whatever answers on 161.
type Classifier interface {
	Name() string
	Classify(ctx context.Context, address string) (*ClassifyOutcome, error)
}

// ---- Power switch (Tasmota-style HTTP status endpoint) ----

// PowerSwitchProbe detects smart power switches by querying the Tasmota
// status endpoint and reading the relay state and energy telemetry.
type PowerSwitchProbe struct {
	client *http.Client
	port   int
}

// NewPowerSwitchProbe creates the probe with its own bounded HTTP client.
func NewPowerSwitchProbe(timeout time.Duration) *PowerSwitchProbe {
	if timeout == 0 {
		timeout = 2 * time.Second
	}
	return &PowerSwitchProbe{
		client: &http.Client{Timeout: timeout},
		port:   80,
	}
}

// SetPort overrides the HTTP port, used by tests.
func (p *PowerSwitchProbe) SetPort(port int) { p.port = port }

func (p *PowerSwitchProbe) Name() string { return "power-switch" }

// tasmotaStatus mirrors the fields of interest from `Status 0`.
type tasmotaStatus struct {
	Status struct {
		FriendlyName []string `json:"FriendlyName"`
		Power        int      `json:"Power"`
	} `json:"Status"`
	StatusSNS struct {
		Energy struct {
			Power float64 `json:"Power"`
		} `json:"ENERGY"`
	} `json:"StatusSNS"`
}

func (p *PowerSwitchProbe) Classify(ctx context.Context, address string) (*ClassifyOutcome, error) {
	url := fmt.Sprintf("http://%s/cm?cmnd=Status%%200", net.JoinHostPort(address, fmt.Sprintf("%d", p.port)))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := p.client.Do(req)
	if err != nil {
		// No HTTP listener is the common case; not a power switch.
		return nil, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, nil
	}

	var status tasmotaStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, nil
	}
	if len(status.Status.FriendlyName) == 0 {
		// Something answered on /cm but it is not a Tasmota device.
		return nil, nil
	}

	state := "off"
	if status.Status.Power != 0 {
		state = "on"
	}

	return &ClassifyOutcome{
		Classification: domain.ClassificationPowerSwitch,
		Confidence:     1.0,
		Hostname:       status.Status.FriendlyName[0],
		PowerState:     state,
		PowerWatts:     status.StatusSNS.Energy.Power,
	}, nil
}

// ---- Instrument (SCPI identification query) ----

// InstrumentProbe detects test instruments by asking *IDN? on the SCPI
// raw-socket port.
type InstrumentProbe struct {
	port    int
	timeout time.Duration
}

// NewInstrumentProbe creates the probe. SCPI raw sockets listen on 5025.
func NewInstrumentProbe(timeout time.Duration) *InstrumentProbe {
	if timeout == 0 {
		timeout = 2 * time.Second
	}
	return &InstrumentProbe{port: 5025, timeout: timeout}
}

// SetPort overrides the SCPI port, used by tests.
func (p *InstrumentProbe) SetPort(port int) { p.port = port }

func (p *InstrumentProbe) Name() string { return "instrument" }

func (p *InstrumentProbe) Classify(ctx context.Context, address string) (*ClassifyOutcome, error) {
	dialer := net.Dialer{Timeout: p.timeout}
	conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(address, fmt.Sprintf("%d", p.port)))
	if err != nil {
		return nil, nil
	}
	defer conn.Close()

	deadline := time.Now().Add(p.timeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	_ = conn.SetDeadline(deadline)

	if _, err := fmt.Fprintf(conn, "*IDN?\n"); err != nil {
		return nil, nil
	}

	buf := make([]byte, 256)
	n, err := conn.Read(buf)
	if err != nil || n == 0 {
		return nil, nil
	}

	idn := strings.TrimSpace(string(buf[:n]))
	if idn == "" {
		return nil, nil
	}

	return &ClassifyOutcome{
		Classification:  domain.ClassificationInstrument,
		Confidence:      1.0,
		InstrumentModel: idn,
	}, nil
}

// ---- Hostname heuristic (last-resort fallback) ----

// powerSwitchHints and instrumentHints classify by hostname substring when
// every protocol probe came up empty. Inherently ambiguous, so the
// confidence is low and a later protocol probe always overrides it.
var (
	powerSwitchHints = []string{"tasmota", "plug", "shelly", "pdu", "powerswitch"}
	instrumentHints  = []string{"scope", "dmm", "psu", "keysight", "rigol", "instr"}
)

// HeuristicClassify guesses a classification from the hostname alone.
// Returns nil when the name suggests nothing.
func HeuristicClassify(hostname string) *ClassifyOutcome {
	name := strings.ToLower(hostname)
	if name == "" {
		return nil
	}
	for _, hint := range powerSwitchHints {
		if strings.Contains(name, hint) {
			return &ClassifyOutcome{
				Classification: domain.ClassificationPowerSwitch,
				Confidence:     0.3,
			}
		}
	}
	for _, hint := range instrumentHints {
		if strings.Contains(name, hint) {
			return &ClassifyOutcome{
				Classification: domain.ClassificationInstrument,
				Confidence:     0.3,
			}
		}
	}
	return nil
}
