package probe

import (
	"context"
	"strings"
	"time"

	"github.com/gosnmp/gosnmp"

	"labfleet/internal/domain"
)

const (
	oidSysDescr = "1.3.6.1.2.1.1.1.0"
	oidSysName  = "1.3.6.1.2.1.1.5.0"
)

// SNMPProbe classifies devices that expose the standard MIB-2 system
// group. It is a supporting signal: sysName fills in a display name for
// hosts that never answer SSH, and sysDescr occasionally names the device
// kind outright. Confidence sits between the protocol probes and the
// hostname heuristic.
type SNMPProbe struct {
	community string
	timeout   time.Duration
}

// NewSNMPProbe creates the probe with the given community string.
func NewSNMPProbe(community string, timeout time.Duration) *SNMPProbe {
	if community == "" {
		community = "public"
	}
	if timeout == 0 {
		timeout = 2 * time.Second
	}
	return &SNMPProbe{community: community, timeout: timeout}
}

func (p *SNMPProbe) Name() string { return "snmp" }

func (p *SNMPProbe) Classify(ctx context.Context, address string) (*ClassifyOutcome, error) {
	client := &gosnmp.GoSNMP{
		Target:    address,
		Port:      161,
		Community: p.community,
		Version:   gosnmp.Version2c,
		Timeout:   p.timeout,
		Retries:   0,
		Context:   ctx,
	}

	if err := client.Connect(); err != nil {
		return nil, nil
	}
	defer client.Conn.Close()

	result, err := client.Get([]string{oidSysDescr, oidSysName})
	if err != nil {
		// Most lab boards simply do not speak SNMP.
		return nil, nil
	}

	var descr, name string
	for _, v := range result.Variables {
		text, ok := pduString(v)
		if !ok {
			continue
		}
		switch strings.TrimPrefix(v.Name, ".") {
		case oidSysDescr:
			descr = text
		case oidSysName:
			name = text
		}
	}

	if descr == "" && name == "" {
		return nil, nil
	}

	outcome := &ClassifyOutcome{
		Classification: domain.ClassificationGeneric,
		Confidence:     0.5,
		Hostname:       name,
	}

	// sysDescr sometimes names the kind directly.
	if hint := HeuristicClassify(descr); hint != nil {
		outcome.Classification = hint.Classification
		outcome.Confidence = 0.5
	}

	return outcome, nil
}

func pduString(v gosnmp.SnmpPDU) (string, bool) {
	switch v.Type {
	case gosnmp.OctetString:
		if b, ok := v.Value.([]byte); ok {
			return string(b), true
		}
	}
	return "", false
}
