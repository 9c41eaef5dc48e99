// Package scan finds live addresses in a network range. A sweep probes
// every expanded address with a bounded worker pool and reports one
// HostRecord per address; individual probe failures are results, never
// errors, so a sweep only fails on malformed input.
package scan

import (
	"context"
	"fmt"
	"net"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"labfleet/internal/domain"
)

// Scanner sweeps a CIDR range for live hosts.
type Scanner interface {
	Sweep(ctx context.Context, cidr string) ([]domain.HostRecord, error)
}

// ProbeFunc checks one address/port pair for liveness and reports the
// round-trip latency on success. Injected by tests.
type ProbeFunc func(ctx context.Context, address string, port int, timeout time.Duration) (bool, time.Duration)

// Config holds sweep tunables.
type Config struct {
	// Ports probed per address; a host answering on any is reachable.
	Ports []int
	// Timeout for a single probe.
	Timeout time.Duration
	// Workers bounds concurrent probes.
	Workers int
	// MaxHosts caps how many addresses a CIDR may expand to.
	MaxHosts int
}

// DefaultConfig returns the sweep defaults used by the daemon.
func DefaultConfig() Config {
	return Config{
		Ports:    []int{22, 80, 443, 5025},
		Timeout:  1 * time.Second,
		Workers:  100,
		MaxHosts: 1024,
	}
}

// TCPSweeper probes TCP connect liveness with a worker pool.
type TCPSweeper struct {
	cfg   Config
	probe ProbeFunc
	log   zerolog.Logger
}

var _ Scanner = (*TCPSweeper)(nil)

// NewTCPSweeper creates a sweeper; a nil probe uses real TCP dials.
func NewTCPSweeper(cfg Config, log zerolog.Logger) *TCPSweeper {
	if cfg.Timeout == 0 {
		cfg.Timeout = 1 * time.Second
	}
	if cfg.Workers == 0 {
		cfg.Workers = 100
	}
	if cfg.MaxHosts == 0 {
		cfg.MaxHosts = 1024
	}
	if len(cfg.Ports) == 0 {
		cfg.Ports = DefaultConfig().Ports
	}
	return &TCPSweeper{cfg: cfg, probe: tcpProbe, log: log}
}

// SetProbe substitutes the probe implementation, used by tests.
func (s *TCPSweeper) SetProbe(probe ProbeFunc) {
	s.probe = probe
}

// Sweep expands cidr and probes every address. All addresses are accounted
// for in the result; completion order within the pass is unspecified, so
// records are sorted by address before returning.
func (s *TCPSweeper) Sweep(ctx context.Context, cidr string) ([]domain.HostRecord, error) {
	addrs, err := ExpandCIDR(cidr, s.cfg.MaxHosts)
	if err != nil {
		return nil, fmt.Errorf("sweep %s: %w", cidr, err)
	}

	s.log.Debug().Str("cidr", cidr).Int("hosts", len(addrs)).
		Int("workers", s.cfg.Workers).Msg("starting sweep")

	jobs := make(chan string, len(addrs))
	results := make(chan domain.HostRecord, len(addrs))

	var wg sync.WaitGroup
	for i := 0; i < s.cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for addr := range jobs {
				select {
				case <-ctx.Done():
					// Treat cancelled probes as unreachable so the
					// pass still accounts for every address.
					results <- domain.HostRecord{Address: addr}
				default:
					results <- s.probeHost(ctx, addr)
				}
			}
		}()
	}

	for _, addr := range addrs {
		jobs <- addr
	}
	close(jobs)

	wg.Wait()
	close(results)

	records := make([]domain.HostRecord, 0, len(addrs))
	for r := range results {
		records = append(records, r)
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].Address < records[j].Address
	})

	reachable := 0
	for _, r := range records {
		if r.Reachable {
			reachable++
		}
	}
	s.log.Info().Str("cidr", cidr).Int("hosts", len(records)).
		Int("reachable", reachable).Msg("sweep complete")

	return records, nil
}

// probeHost tries each configured port and keeps the fastest response.
func (s *TCPSweeper) probeHost(ctx context.Context, addr string) domain.HostRecord {
	record := domain.HostRecord{Address: addr}
	for _, port := range s.cfg.Ports {
		ok, latency := s.probe(ctx, addr, port, s.cfg.Timeout)
		if !ok {
			continue
		}
		if !record.Reachable || latency < record.Latency {
			record.Reachable = true
			record.Latency = latency
		}
	}
	return record
}

// tcpProbe is the production ProbeFunc: a connect attempt with latency.
func tcpProbe(ctx context.Context, address string, port int, timeout time.Duration) (bool, time.Duration) {
	dialer := net.Dialer{Timeout: timeout}
	start := time.Now()
	conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(address, fmt.Sprintf("%d", port)))
	if err != nil {
		return false, 0
	}
	conn.Close()
	return true, time.Since(start)
}
