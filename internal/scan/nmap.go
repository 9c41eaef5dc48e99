package scan

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	nmap "github.com/Ullaakut/nmap/v3"
	"github.com/rs/zerolog"

	"labfleet/internal/domain"
)

// NmapScanner is the alternative sweep backend for environments where the
// nmap binary is available. It trades the built-in sweeper's portability
// for nmap's host-discovery heuristics.
type NmapScanner struct {
	cfg Config
	log zerolog.Logger
}

var _ Scanner = (*NmapScanner)(nil)

// NewNmapScanner creates the nmap-backed scanner.
func NewNmapScanner(cfg Config, log zerolog.Logger) *NmapScanner {
	if cfg.MaxHosts == 0 {
		cfg.MaxHosts = 1024
	}
	return &NmapScanner{cfg: cfg, log: log}
}

// Available reports whether the nmap binary can be invoked.
func (s *NmapScanner) Available(ctx context.Context) bool {
	scanner, err := nmap.NewScanner(
		ctx,
		nmap.WithTargets("localhost"),
		nmap.WithListScan(),
	)
	if err != nil {
		return false
	}
	_, _, err = scanner.Run()
	return err == nil
}

// Sweep runs an nmap ping sweep over cidr and reports every expanded
// address, reachable or not, matching the built-in sweeper's contract.
func (s *NmapScanner) Sweep(ctx context.Context, cidr string) ([]domain.HostRecord, error) {
	addrs, err := ExpandCIDR(cidr, s.cfg.MaxHosts)
	if err != nil {
		return nil, fmt.Errorf("sweep %s: %w", cidr, err)
	}

	scanner, err := nmap.NewScanner(
		ctx,
		nmap.WithTargets(cidr),
		nmap.WithPingScan(),
	)
	if err != nil {
		return nil, fmt.Errorf("create nmap scanner: %w", err)
	}

	s.log.Debug().Str("cidr", cidr).Msg("starting nmap sweep")

	result, warnings, err := scanner.Run()
	if err != nil {
		return nil, fmt.Errorf("nmap sweep %s: %w", cidr, err)
	}
	if warnings != nil && len(*warnings) > 0 {
		s.log.Debug().Strs("warnings", *warnings).Msg("nmap warnings")
	}

	up := make(map[string]time.Duration)
	for _, host := range result.Hosts {
		if host.Status.State != "up" || len(host.Addresses) == 0 {
			continue
		}
		addr := host.Addresses[0].Addr
		for _, a := range host.Addresses {
			if a.AddrType == "ipv4" {
				addr = a.Addr
				break
			}
		}
		up[addr] = srttLatency(host.Times.SRTT)
	}

	records := make([]domain.HostRecord, 0, len(addrs))
	for _, addr := range addrs {
		record := domain.HostRecord{Address: addr}
		if latency, ok := up[addr]; ok {
			record.Reachable = true
			record.Latency = latency
		}
		records = append(records, record)
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].Address < records[j].Address
	})

	s.log.Info().Str("cidr", cidr).Int("hosts", len(records)).
		Int("reachable", len(up)).Msg("nmap sweep complete")

	return records, nil
}

// srttLatency converts nmap's smoothed RTT (microseconds) to a duration.
func srttLatency(srtt string) time.Duration {
	if srtt == "" {
		return 0
	}
	us, err := strconv.ParseInt(srtt, 10, 64)
	if err != nil {
		return 0
	}
	return time.Duration(us) * time.Microsecond
}
