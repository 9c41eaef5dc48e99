// Package access executes commands and transfers against devices,
// preferring a direct pooled connection and falling back to a two-hop
// execution through the relay gateway when the device is relay-eligible
// and the direct plan fails. Callers receive a Report naming the plan
// that actually serviced the request.
package access

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"labfleet/internal/domain"
	"labfleet/internal/pool"
	"labfleet/internal/sshx"
)

// Router resolves devices to access plans and drives operations through
// them.
type Router struct {
	resolver Resolver
	pool     *pool.Pool
	dialer   sshx.Dialer
	log      zerolog.Logger

	// directTimeout bounds an interactive direct attempt; relayTimeout is
	// the longer budget for the extra hop.
	directTimeout time.Duration
	relayTimeout  time.Duration
	batchWorkers  int
}

// Config holds router tunables.
type Config struct {
	DirectTimeout time.Duration
	RelayTimeout  time.Duration
	BatchWorkers  int
}

// New creates a router.
func New(resolver Resolver, p *pool.Pool, dialer sshx.Dialer, cfg Config, log zerolog.Logger) *Router {
	if cfg.DirectTimeout == 0 {
		cfg.DirectTimeout = 10 * time.Second
	}
	if cfg.RelayTimeout == 0 {
		cfg.RelayTimeout = 60 * time.Second
	}
	if cfg.BatchWorkers == 0 {
		cfg.BatchWorkers = 10
	}
	return &Router{
		resolver:      resolver,
		pool:          p,
		dialer:        dialer,
		log:           log,
		directTimeout: cfg.DirectTimeout,
		relayTimeout:  cfg.RelayTimeout,
		batchWorkers:  cfg.BatchWorkers,
	}
}

// Run executes a command on the device referenced by ref.
func (r *Router) Run(ctx context.Context, ref, command string) Report {
	return r.operate(ctx, ref, command, nil)
}

// Push copies the payload to remotePath on the device. The payload
// streams through stdin of a remote write, so it travels the relay hop
// without staging on the gateway.
func (r *Router) Push(ctx context.Context, ref string, payload io.Reader, remotePath string) Report {
	command := fmt.Sprintf("cat > %s", ShellQuote(remotePath))
	return r.operate(ctx, ref, command, payload)
}

// SyncDir replicates a local directory tree into remoteDir via a tar
// stream, over whichever plan is reachable.
func (r *Router) SyncDir(ctx context.Context, ref string, tarStream io.Reader, remoteDir string) Report {
	command := fmt.Sprintf("mkdir -p %s && tar -xf - -C %s", ShellQuote(remoteDir), ShellQuote(remoteDir))
	return r.operate(ctx, ref, command, tarStream)
}

// RunBatch executes command on every referenced device with bounded
// concurrency. Outcomes are independent: one unreachable device never
// aborts the rest, and every ref appears in the result.
func (r *Router) RunBatch(ctx context.Context, refs []string, command string) []Report {
	if len(refs) == 0 {
		return nil
	}

	reports := make([]Report, len(refs))
	jobs := make(chan int, len(refs))

	var wg sync.WaitGroup
	workers := r.batchWorkers
	if workers > len(refs) {
		workers = len(refs)
	}
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				reports[idx] = r.Run(ctx, refs[idx], command)
			}
		}()
	}

	for i := range refs {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	return reports
}

// operate drives the resolve -> direct -> relay state machine.
func (r *Router) operate(ctx context.Context, ref, command string, stdin io.Reader) Report {
	start := time.Now()

	target, err := r.resolver.Resolve(ref)
	if err != nil {
		return Report{
			Device:   ref,
			Kind:     domain.KindInternal,
			Err:      fmt.Errorf("resolve %s: %w", ref, err),
			Duration: time.Since(start),
		}
	}

	report := Report{Device: target.Name, Address: target.Address}

	// Attempt direct.
	report.Attempted = append(report.Attempted, PlanDirect)
	result, directErr := r.runDirect(ctx, target, command, stdin)
	if directErr == nil {
		r.fill(&report, PlanDirect, result, start)
		return report
	}

	kind := domain.KindOf(directErr)
	r.log.Debug().Str("device", target.Name).Str("kind", string(kind)).
		Err(directErr).Msg("direct attempt failed")

	if target.Relay == nil || !kind.Retryable() {
		report.Kind = kind
		report.Err = directErr
		report.Duration = time.Since(start)
		return report
	}

	// Stdin may be partially consumed by a failed direct attempt; a
	// relayed retry of a stream needs a fresh reader from the caller.
	if stdin != nil {
		if seeker, ok := stdin.(io.Seeker); ok {
			if _, err := seeker.Seek(0, io.SeekStart); err != nil {
				report.Kind = kind
				report.Err = directErr
				report.Duration = time.Since(start)
				return report
			}
		} else {
			report.Kind = kind
			report.Err = fmt.Errorf("direct transfer failed and payload is not rewindable: %w", directErr)
			report.Duration = time.Since(start)
			return report
		}
	}

	// Switch to the relayed plan.
	report.Attempted = append(report.Attempted, PlanRelayed)
	result, relayErr := r.runRelayed(ctx, target, command, stdin)
	if relayErr == nil {
		r.fill(&report, PlanRelayed, result, start)
		r.log.Info().Str("device", target.Name).Msg("served via relay fallback")
		return report
	}

	report.Kind = domain.KindOf(relayErr)
	report.Err = relayErr
	report.Duration = time.Since(start)
	return report
}

// runDirect executes over the pooled connection, degrading to a fresh
// single-use dial when the pool cannot produce a live handle.
func (r *Router) runDirect(ctx context.Context, target *Target, command string, stdin io.Reader) (*sshx.Result, error) {
	opCtx, cancel := context.WithTimeout(ctx, r.directTimeout)
	defer cancel()

	cfg := sshx.Config{
		User:     target.Principal,
		Password: target.Password,
		Timeout:  r.directTimeout,
	}
	key := pool.Key{Address: target.Address, Principal: target.Principal, Port: target.Port}

	client, err := r.pool.Acquire(opCtx, key, cfg)
	if err != nil {
		// Graceful degradation: one fresh, unpooled transport for this
		// operation only.
		fresh, dialErr := r.dialer.Dial(opCtx, target.Address, target.Port, cfg)
		if dialErr != nil {
			return nil, dialErr
		}
		defer fresh.Close()
		return fresh.RunInput(opCtx, command, stdin)
	}

	result, err := client.RunInput(opCtx, command, stdin)
	if err != nil {
		// A broken pooled transport should not poison the next caller.
		r.pool.Invalidate(key)
		return nil, err
	}
	return result, nil
}

// runRelayed executes the nested command from the gateway. The gateway
// connection itself is pooled; the device hop rides inside the command.
func (r *Router) runRelayed(ctx context.Context, target *Target, command string, stdin io.Reader) (*sshx.Result, error) {
	relay := target.Relay

	opCtx, cancel := context.WithTimeout(ctx, r.relayTimeout)
	defer cancel()

	cfg := sshx.Config{
		User:     relay.Principal,
		Password: relay.Password,
		Timeout:  r.relayTimeout,
	}
	key := pool.Key{Address: relay.Host, Principal: relay.Principal, Port: relay.Port}

	gateway, err := r.pool.Acquire(opCtx, key, cfg)
	if err != nil {
		fresh, dialErr := r.dialer.Dial(opCtx, relay.Host, relay.Port, cfg)
		if dialErr != nil {
			return nil, domain.NewError(domain.KindRelayUnavailable, target.Address,
				fmt.Errorf("gateway %s: %w", relay.Host, dialErr))
		}
		defer fresh.Close()
		return fresh.RunInput(opCtx, NestedCommand(target, command), stdin)
	}

	result, err := gateway.RunInput(opCtx, NestedCommand(target, command), stdin)
	if err != nil {
		r.pool.Invalidate(key)
		return nil, domain.NewError(domain.KindRelayUnavailable, target.Address,
			fmt.Errorf("relayed execution via %s: %w", relay.Host, err))
	}
	return result, nil
}

func (r *Router) fill(report *Report, plan PlanMode, result *sshx.Result, start time.Time) {
	report.ServedBy = plan
	report.Success = result.ExitCode == 0
	report.Stdout = result.Stdout
	report.Stderr = result.Stderr
	report.ExitCode = result.ExitCode
	report.Duration = time.Since(start)
}
