// Package probe turns live addresses into identified, classified devices.
//
// Two kinds of probing run in parallel for each address: classification
// probes (power switch, instrument, SNMP) that need no login, and an
// identification race that tries every candidate SSH principal
// concurrently and keeps the first success. Results land in the device
// cache; an address that defeats every probe stays visible as
// "discovered but unidentified" until a later pass succeeds.
package probe

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"labfleet/internal/cache"
	"labfleet/internal/domain"
	"labfleet/internal/sshx"
)

// Prober resolves identity and classification for live addresses.
type Prober struct {
	dialer      sshx.Dialer
	store       *cache.Store
	classifiers []Classifier
	principals  []Principal
	portFor     func(address string) int
	timeout     time.Duration
	workers     int
	now         func() time.Time
	log         zerolog.Logger
}

// Config holds prober tunables.
type Config struct {
	// Principals raced per address, preferred login first.
	Principals []Principal
	// Timeout per handshake or classification attempt.
	Timeout time.Duration
	// Workers bounds addresses probed concurrently in one pass.
	Workers int
	// PortFor returns the SSH port to race for an address, for hosts
	// statically configured off the default. Nil means port 22 everywhere.
	PortFor func(address string) int
}

// New creates a prober. The classifier set is fixed at construction;
// passing none disables classification probing.
func New(dialer sshx.Dialer, store *cache.Store, classifiers []Classifier, cfg Config, log zerolog.Logger) *Prober {
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.Workers == 0 {
		cfg.Workers = 10
	}
	if len(cfg.Principals) == 0 {
		cfg.Principals = []Principal{{User: "fio", Password: "fio"}, {User: "root", Password: "root"}}
	}
	if cfg.PortFor == nil {
		cfg.PortFor = func(string) int { return 22 }
	}
	return &Prober{
		dialer:      dialer,
		store:       store,
		classifiers: classifiers,
		principals:  cfg.Principals,
		portFor:     cfg.PortFor,
		timeout:     cfg.Timeout,
		workers:     cfg.Workers,
		now:         time.Now,
		log:         log,
	}
}

// Outcome reports what one address yielded during a pass.
type Outcome struct {
	Address  string
	Identity domain.Identity
	// Identified is true when the SSH race produced a stable identity.
	Identified bool
	// Classified is true when any classification probe matched.
	Classified bool
	Err        error
}

// Pass probes a set of addresses with bounded concurrency. Each address's
// outcome is independent; one host's failure never aborts the pass.
func (p *Prober) Pass(ctx context.Context, addresses []string) []Outcome {
	if len(addresses) == 0 {
		return nil
	}

	jobs := make(chan string, len(addresses))
	results := make(chan Outcome, len(addresses))

	var wg sync.WaitGroup
	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for addr := range jobs {
				results <- p.ProbeAddress(ctx, addr)
			}
		}()
	}

	for _, addr := range addresses {
		jobs <- addr
	}
	close(jobs)

	wg.Wait()
	close(results)

	outcomes := make([]Outcome, 0, len(addresses))
	for o := range results {
		outcomes = append(outcomes, o)
	}

	identified := 0
	for _, o := range outcomes {
		if o.Identified {
			identified++
		}
	}
	p.log.Info().Int("addresses", len(addresses)).Int("identified", identified).
		Msg("identification pass complete")

	return outcomes
}

// ProbeAddress classifies and identifies a single live address, updating
// the cache with whatever was learned.
func (p *Prober) ProbeAddress(ctx context.Context, address string) Outcome {
	if cached, ok := p.store.Get(address); ok && cached.Identified() {
		// Fresh identity; nothing to re-derive.
		return Outcome{Address: address, Identity: cached, Identified: true,
			Classified: cached.Classification != domain.ClassificationUnknown}
	}

	// Classification and identification need different protocols, so they
	// run concurrently rather than sequentially.
	type classifyResults struct {
		outcomes []*ClassifyOutcome
	}
	classifyCh := make(chan classifyResults, 1)
	go func() {
		classifyCh <- classifyResults{outcomes: p.classify(ctx, address)}
	}()

	raceCtx, cancel := context.WithTimeout(ctx, p.raceBudget())
	user, hostname, raceErr := p.race(raceCtx, address)
	cancel()

	classified := <-classifyCh

	identity := domain.Identity{
		Address:        address,
		Classification: domain.ClassificationUnknown,
		Source:         domain.SourceDiscovered,
	}

	for _, outcome := range classified.outcomes {
		applyOutcome(&identity, outcome)
	}

	if raceErr == nil {
		identity.Hostname = hostname
		identity.Principal = user
		identity.LastContact = p.now()
		identity.LastSSHError = ""
		if identity.Classification == domain.ClassificationUnknown {
			identity.Classification = domain.ClassificationGeneric
			identity.Confidence = 1.0
		}
	} else {
		identity.LastSSHError = sshErrorLabel(raceErr)
	}

	// Protocol probes came up empty: fall back to the hostname heuristic,
	// a low-confidence guess that a later probe will override.
	if identity.Classification == domain.ClassificationUnknown {
		if hint := HeuristicClassify(identity.Hostname); hint != nil {
			identity.Classification = hint.Classification
			identity.Confidence = hint.Confidence
		}
	}

	// Merge into any stale cached entry so attributes learned earlier
	// survive a pass that only partially succeeded.
	if prior, ok := p.store.Get(address); ok {
		prior.Merge(&identity)
		identity = prior
	}

	if err := p.store.Put(address, identity); err != nil {
		p.log.Warn().Err(err).Str("address", address).Msg("cache update failed")
	}

	outcome := Outcome{
		Address:    address,
		Identity:   identity,
		Identified: identity.Identified(),
		Classified: identity.Classification != domain.ClassificationUnknown,
	}
	if raceErr != nil && !outcome.Identified {
		outcome.Err = raceErr
	}

	p.log.Debug().Str("address", address).
		Str("classification", string(identity.Classification)).
		Bool("identified", outcome.Identified).
		Msg("probe complete")

	return outcome
}

// classify runs every classifier concurrently and returns the outcomes
// that matched, in no particular order.
func (p *Prober) classify(ctx context.Context, address string) []*ClassifyOutcome {
	if len(p.classifiers) == 0 {
		return nil
	}

	results := make(chan *ClassifyOutcome, len(p.classifiers))
	var wg sync.WaitGroup
	for _, c := range p.classifiers {
		wg.Add(1)
		go func(c Classifier) {
			defer wg.Done()
			classifyCtx, cancel := context.WithTimeout(ctx, p.timeout)
			defer cancel()
			outcome, err := c.Classify(classifyCtx, address)
			if err != nil {
				p.log.Debug().Err(err).Str("address", address).
					Str("classifier", c.Name()).Msg("classification probe failed")
				return
			}
			if outcome != nil {
				results <- outcome
			}
		}(c)
	}
	wg.Wait()
	close(results)

	var outcomes []*ClassifyOutcome
	for o := range results {
		outcomes = append(outcomes, o)
	}
	return outcomes
}

// applyOutcome folds a classification outcome into the identity, keeping
// the highest-confidence classification seen so far.
func applyOutcome(id *domain.Identity, outcome *ClassifyOutcome) {
	if outcome.Confidence >= id.Confidence || id.Classification == domain.ClassificationUnknown {
		if outcome.Classification != domain.ClassificationGeneric ||
			id.Classification == domain.ClassificationUnknown {
			id.Classification = outcome.Classification
			id.Confidence = outcome.Confidence
		}
	}
	if outcome.Hostname != "" && id.Hostname == "" {
		id.Hostname = outcome.Hostname
	}
	if outcome.PowerState != "" {
		id.PowerState = outcome.PowerState
		id.PowerWatts = outcome.PowerWatts
	}
	if outcome.InstrumentModel != "" {
		id.InstrumentModel = outcome.InstrumentModel
	}
}
