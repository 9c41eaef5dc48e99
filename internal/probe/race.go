package probe

import (
	"context"
	"strings"
	"time"

	"labfleet/internal/domain"
	"labfleet/internal/sshx"
)

// Principal is one candidate SSH login to race.
type Principal struct {
	User     string
	Password string
}

// raceResult is one attempt's outcome inside an identification race.
type raceResult struct {
	user     string
	hostname string
	err      error
}

// race issues a handshake attempt for every candidate principal
// concurrently and accepts the first success. Losing attempts are
// cancelled once a winner is known; cancellation is cooperative, so a
// loser may still finish, but its result is discarded and a winner is
// never overridden by a late arrival.
func (p *Prober) race(ctx context.Context, address string) (user, hostname string, err error) {
	raceCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make(chan raceResult, len(p.principals))
	for _, principal := range p.principals {
		go func(pr Principal) {
			results <- p.attempt(raceCtx, address, pr)
		}(principal)
	}

	var failures []raceResult
	for range p.principals {
		res := <-results
		if res.err == nil && res.hostname != "" {
			cancel()
			return res.user, res.hostname, nil
		}
		failures = append(failures, res)
	}

	// No winner: prefer reporting a credential rejection over a timeout,
	// since it tells the operator the host is alive but needs new
	// credentials.
	var firstErr error
	for _, f := range failures {
		if f.err == nil {
			continue
		}
		if firstErr == nil {
			firstErr = f.err
		}
		if domain.IsKind(f.err, domain.KindAuthFailed) {
			return "", "", f.err
		}
	}
	if firstErr == nil {
		firstErr = domain.NewError(domain.KindInternal, address, nil)
	}
	return "", "", firstErr
}

// attempt performs one handshake and hostname read against an address.
func (p *Prober) attempt(ctx context.Context, address string, principal Principal) raceResult {
	attemptCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	client, err := p.dialer.Dial(attemptCtx, address, p.portFor(address), sshx.Config{
		User:     principal.User,
		Password: principal.Password,
		Timeout:  p.timeout,
	})
	if err != nil {
		return raceResult{user: principal.User, err: err}
	}
	defer client.Close()

	result, err := client.Run(attemptCtx, "hostname")
	if err != nil {
		return raceResult{user: principal.User, err: err}
	}
	if result.ExitCode != 0 {
		return raceResult{user: principal.User, err: domain.NewError(domain.KindInternal, address, nil)}
	}

	return raceResult{
		user:     principal.User,
		hostname: strings.TrimSpace(result.Stdout),
	}
}

// sshErrorLabel reduces a race failure to the short label stored with the
// cached identity so the directory can filter by SSH status.
func sshErrorLabel(err error) string {
	switch domain.KindOf(err) {
	case domain.KindAuthFailed:
		return "auth"
	case domain.KindTimeout:
		return "timeout"
	case domain.KindRefused:
		return "refused"
	case domain.KindUnreachable:
		return "unreachable"
	}
	return "error"
}

// raceBudget bounds a whole race: every attempt runs under its own
// timeout, so the race as a whole cannot exceed one attempt budget plus
// scheduling slack.
func (p *Prober) raceBudget() time.Duration {
	return p.timeout + time.Second
}
