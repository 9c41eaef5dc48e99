// Package directory is the read side of discovery: one merged view of
// every device the lab knows about, whether it came from the static
// config file, the durable identity cache, or the most recent sweep.
// The directory also resolves device references into access targets for
// the router.
package directory

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"labfleet/internal/access"
	"labfleet/internal/cache"
	"labfleet/internal/config"
	"labfleet/internal/domain"
)

// Entry is one device in the merged directory view.
type Entry struct {
	// Name is the static device name when configured, else the hostname
	// discovery learned, else the address.
	Name     string
	Address  string
	Identity domain.Identity
	// Reachable and Latency reflect the most recent sweep; a device never
	// swept reports false/0.
	Reachable bool
	Latency   time.Duration
	// RelayEligible devices fall back to the gateway when direct access fails.
	RelayEligible bool
}

// Filter narrows a directory listing. Zero value matches everything.
type Filter struct {
	// Classification restricts to one device kind when non-empty.
	Classification domain.Classification
	// Source restricts to static or discovered entries when non-empty.
	Source domain.Source
	// OnlyReachable keeps entries the last sweep saw answering.
	OnlyReachable bool
	// OnlyIdentified keeps entries with a resolved SSH identity;
	// OnlyUnidentified keeps the opposite set.
	OnlyIdentified   bool
	OnlyUnidentified bool
	// WithSSHError keeps entries whose last identification attempt failed.
	WithSSHError bool
}

// Directory merges static devices, cached identities, and sweep results.
type Directory struct {
	cfg   *config.Config
	store *cache.Store
	log   zerolog.Logger

	mu    sync.RWMutex
	hosts map[string]domain.HostRecord
}

var _ access.Resolver = (*Directory)(nil)

// New creates a directory over the given config and cache.
func New(cfg *config.Config, store *cache.Store, log zerolog.Logger) *Directory {
	return &Directory{
		cfg:   cfg,
		store: store,
		log:   log,
		hosts: make(map[string]domain.HostRecord),
	}
}

// RecordSweep folds a sweep's host records into the directory. Merging is
// idempotent per address; re-recording the same sweep changes nothing.
func (d *Directory) RecordSweep(records []domain.HostRecord) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, r := range records {
		d.hosts[r.Address] = r
	}
}

// ReachableAddresses returns every address the last recorded sweeps saw
// answering, sorted.
func (d *Directory) ReachableAddresses() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var addrs []string
	for addr, r := range d.hosts {
		if r.Reachable {
			addrs = append(addrs, addr)
		}
	}
	sort.Strings(addrs)
	return addrs
}

// Snapshot returns the merged directory, sorted by address. Static config
// wins for naming and wiring; discovery wins for identity facts.
func (d *Directory) Snapshot() []Entry {
	d.mu.RLock()
	defer d.mu.RUnlock()

	byAddress := make(map[string]*Entry)

	for addr, id := range d.store.All() {
		byAddress[addr] = &Entry{Address: addr, Identity: id}
	}

	for _, dev := range d.cfg.Devices {
		e, ok := byAddress[dev.Address]
		if !ok {
			e = &Entry{Address: dev.Address}
			e.Identity = domain.Identity{
				Address:        dev.Address,
				Classification: domain.ClassificationUnknown,
			}
			byAddress[dev.Address] = e
		}
		e.Name = dev.Name
		e.RelayEligible = dev.RelayEligible
		e.Identity.Source = domain.SourceStatic
		if dev.ControlledBy != "" {
			e.Identity.ControlledBy = dev.ControlledBy
		}
		// A config classification hint stands until discovery learns better.
		if e.Identity.Classification == domain.ClassificationUnknown ||
			e.Identity.Classification == "" {
			if dev.Classification != "" {
				e.Identity.Classification = dev.Classification
			}
		}
	}

	for addr, r := range d.hosts {
		e, ok := byAddress[addr]
		if !ok {
			if !r.Reachable {
				// Swept-but-dark addresses with no other facts stay out of
				// the directory.
				continue
			}
			e = &Entry{Address: addr}
			e.Identity = domain.Identity{
				Address:        addr,
				Classification: domain.ClassificationUnknown,
				Source:         domain.SourceDiscovered,
			}
			byAddress[addr] = e
		}
		e.Reachable = r.Reachable
		e.Latency = r.Latency
	}

	entries := make([]Entry, 0, len(byAddress))
	for _, e := range byAddress {
		if e.Name == "" {
			if e.Identity.Hostname != "" {
				e.Name = e.Identity.Hostname
			} else {
				e.Name = e.Address
			}
		}
		entries = append(entries, *e)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Address < entries[j].Address
	})
	return entries
}

// List returns the snapshot narrowed by f.
func (d *Directory) List(f Filter) []Entry {
	var out []Entry
	for _, e := range d.Snapshot() {
		if f.Classification != "" && e.Identity.Classification != f.Classification {
			continue
		}
		if f.Source != "" && e.Identity.Source != f.Source {
			continue
		}
		if f.OnlyReachable && !e.Reachable {
			continue
		}
		if f.OnlyIdentified && !e.Identity.Identified() {
			continue
		}
		if f.OnlyUnidentified && e.Identity.Identified() {
			continue
		}
		if f.WithSSHError && e.Identity.LastSSHError == "" {
			continue
		}
		out = append(out, e)
	}
	return out
}

// Resolve turns a device reference into an access target. A reference is
// tried as a static device name, then a static address, then a cached
// address, then a discovered hostname.
func (d *Directory) Resolve(ref string) (*access.Target, error) {
	if dev, ok := d.cfg.DeviceByName(ref); ok {
		return d.staticTarget(dev), nil
	}
	if dev, ok := d.cfg.Device(ref); ok {
		return d.staticTarget(dev), nil
	}

	if id, ok := d.store.Get(ref); ok {
		return d.discoveredTarget(ref, id), nil
	}
	for addr, id := range d.store.All() {
		if id.Hostname == ref {
			return d.discoveredTarget(addr, id), nil
		}
	}

	return nil, fmt.Errorf("directory: no device matches %q", ref)
}

// Controller returns the directory entry for the power switch feeding the
// referenced device, following the controlled-by relation one hop.
func (d *Directory) Controller(ref string) (*Entry, error) {
	controlledBy := ""
	if dev, ok := d.cfg.DeviceByName(ref); ok {
		controlledBy = dev.ControlledBy
	} else if dev, ok := d.cfg.Device(ref); ok {
		controlledBy = dev.ControlledBy
	} else if id, ok := d.store.Get(ref); ok {
		controlledBy = id.ControlledBy
	}
	if controlledBy == "" {
		return nil, fmt.Errorf("directory: %q has no controlling power switch", ref)
	}

	for _, e := range d.Snapshot() {
		if e.Name == controlledBy || e.Address == controlledBy {
			return &e, nil
		}
	}
	return nil, fmt.Errorf("directory: controller %q of %q is not in the directory", controlledBy, ref)
}

func (d *Directory) staticTarget(dev *config.StaticDevice) *access.Target {
	t := &access.Target{
		Name:      dev.Name,
		Address:   dev.Address,
		Port:      dev.Port,
		Principal: dev.Principal,
		Password:  dev.Password,
	}
	if t.Port == 0 {
		t.Port = 22
	}
	if t.Password == "" {
		t.Password = d.passwordFor(t.Principal)
	}
	if dev.RelayEligible {
		t.Relay = d.relay()
	}
	return t
}

func (d *Directory) discoveredTarget(address string, id domain.Identity) *access.Target {
	t := &access.Target{
		Name:      id.Hostname,
		Address:   address,
		Port:      22,
		Principal: id.Principal,
	}
	if t.Name == "" {
		t.Name = address
	}
	if t.Principal == "" && len(d.cfg.Identify.Principals) > 0 {
		t.Principal = d.cfg.Identify.Principals[0].User
	}
	t.Password = d.passwordFor(t.Principal)
	return t
}

// passwordFor looks up the configured password for a login.
func (d *Directory) passwordFor(user string) string {
	for _, p := range d.cfg.Identify.Principals {
		if p.User == user {
			return p.Password
		}
	}
	return ""
}

func (d *Directory) relay() *access.Relay {
	gw := d.cfg.Gateway
	if gw == nil {
		return nil
	}
	return &access.Relay{
		Host:      gw.Host,
		Port:      gw.Port,
		Principal: gw.Principal,
		Password:  gw.Password,
	}
}
