package directory

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"labfleet/internal/probe"
	"labfleet/internal/scan"
)

// Refresher runs the discovery pipeline end to end: sweep the configured
// networks, fold the results into the directory, then identify whatever
// is alive but not yet known.
type Refresher struct {
	dir      *Directory
	scanner  scan.Scanner
	prober   *probe.Prober
	networks []string
	log      zerolog.Logger
}

// NewRefresher wires a refresher over an existing directory.
func NewRefresher(dir *Directory, scanner scan.Scanner, prober *probe.Prober, networks []string, log zerolog.Logger) *Refresher {
	return &Refresher{
		dir:      dir,
		scanner:  scanner,
		prober:   prober,
		networks: networks,
		log:      log,
	}
}

// Summary reports what one refresh pass accomplished.
type Summary struct {
	Networks   int
	Swept      int
	Reachable  int
	Identified int
	Classified int
	Failed     int
}

// Refresh performs one pass. A network whose sweep fails is logged and
// skipped; the pass only errors when no network could be swept at all.
func (r *Refresher) Refresh(ctx context.Context) (Summary, error) {
	var summary Summary
	var sweepErr error
	swept := 0

	for _, network := range r.networks {
		records, err := r.scanner.Sweep(ctx, network)
		if err != nil {
			r.log.Warn().Err(err).Str("network", network).Msg("sweep failed")
			sweepErr = err
			continue
		}
		swept++
		summary.Swept += len(records)
		r.dir.RecordSweep(records)
	}
	summary.Networks = swept

	if swept == 0 && len(r.networks) > 0 {
		return summary, fmt.Errorf("refresh: no network could be swept: %w", sweepErr)
	}

	addresses := r.dir.ReachableAddresses()
	summary.Reachable = len(addresses)

	for _, outcome := range r.prober.Pass(ctx, addresses) {
		if outcome.Identified {
			summary.Identified++
		}
		if outcome.Classified {
			summary.Classified++
		}
		if outcome.Err != nil {
			summary.Failed++
		}
	}

	r.log.Info().
		Int("networks", summary.Networks).
		Int("reachable", summary.Reachable).
		Int("identified", summary.Identified).
		Int("classified", summary.Classified).
		Msg("directory refresh complete")

	return summary, nil
}
