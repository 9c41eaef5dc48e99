package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"labfleet/internal/access"
	"labfleet/internal/cache"
	"labfleet/internal/codec"
	"labfleet/internal/config"
	"labfleet/internal/directory"
	"labfleet/internal/pool"
	"labfleet/internal/probe"
	"labfleet/internal/scan"
	"labfleet/internal/sshx"
	"labfleet/internal/watcher"
)

func main() {
	// Command line flags
	configPath := flag.String("config", "", "config file path (default: search chain)")
	networksFlag := flag.String("networks", "", "comma-separated CIDR ranges to sweep (overrides config)")
	once := flag.Bool("once", false, "run a single discovery pass and exit")
	interval := flag.Duration("interval", 10*time.Minute, "delay between discovery passes")
	output := flag.String("output", "table", "listing format: table, json, yaml, ansible-inventory")
	device := flag.String("device", "", "device name or address to run -cmd against")
	command := flag.String("cmd", "", "command to execute on -device instead of discovering")
	flag.Parse()

	// Credentials such as GATEWAY_PASSWORD may live in a .env next to the
	// binary; absence is fine.
	_ = godotenv.Load()

	cfg, cfgPath, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "labfleetd: %v\n", err)
		os.Exit(1)
	}

	log := newLogger(cfg.Log)
	if cfgPath != "" {
		log.Debug().Str("path", cfgPath).Msg("config loaded")
	}

	if *networksFlag != "" {
		cfg.Networks = splitList(*networksFlag)
	}

	exporter, err := codec.ForFormat(*output)
	if err != nil {
		log.Fatal().Err(err).Msg("bad -output flag")
	}

	cachePath := cfg.Cache.Path
	if cachePath == "" {
		cachePath = config.DefaultCachePath()
	}
	store, err := cache.Open(cachePath, cfg.Cache.TTL.Duration(), log,
		cache.WithLivenessTTL(cfg.Cache.LivenessTTL.Duration()))
	if err != nil {
		log.Fatal().Err(err).Str("path", cachePath).Msg("cannot open device cache")
	}
	defer store.Close()

	dialer := &sshx.NetDialer{}
	connections := pool.New(dialer, log)
	defer connections.CloseAll()

	app := &app{
		cfg:      cfg,
		store:    store,
		dialer:   dialer,
		pool:     connections,
		exporter: exporter,
		log:      log,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *command != "" {
		if *device == "" {
			log.Fatal().Msg("-cmd requires -device")
		}
		os.Exit(app.runCommand(ctx, *device, *command))
	}

	if *once {
		if err := app.discover(ctx); err != nil {
			log.Fatal().Err(err).Msg("discovery pass failed")
		}
		return
	}

	app.watch(ctx, cfgPath, *interval)
}

// app holds the wired subsystem for one daemon run.
type app struct {
	mu       sync.Mutex
	cfg      *config.Config
	store    *cache.Store
	dialer   sshx.Dialer
	pool     *pool.Pool
	exporter codec.Exporter
	log      zerolog.Logger
}

// discover runs one sweep-and-identify pass and prints the directory.
func (a *app) discover(ctx context.Context) error {
	a.mu.Lock()
	cfg := a.cfg
	a.mu.Unlock()

	dir := directory.New(cfg, a.store, a.log)
	refresher := directory.NewRefresher(dir, a.scanner(ctx, cfg), a.prober(cfg), cfg.Networks, a.log)

	if _, err := refresher.Refresh(ctx); err != nil {
		return err
	}
	return a.exporter.Export(dir.Snapshot(), os.Stdout)
}

// runCommand executes a single command through the access router and
// mirrors the remote exit code.
func (a *app) runCommand(ctx context.Context, ref, command string) int {
	a.mu.Lock()
	cfg := a.cfg
	a.mu.Unlock()

	dir := directory.New(cfg, a.store, a.log)
	router := access.New(dir, a.pool, a.dialer, access.Config{
		RelayTimeout: gatewayTimeout(cfg),
	}, a.log)

	report := router.Run(ctx, ref, command)
	fmt.Print(report.Stdout)
	fmt.Fprint(os.Stderr, report.Stderr)

	if report.Err != nil {
		a.log.Error().Err(report.Err).Str("device", report.Device).
			Str("kind", string(report.Kind)).Msg("command failed")
		return 1
	}
	a.log.Debug().Str("device", report.Device).
		Str("served_by", string(report.ServedBy)).
		Dur("duration", report.Duration).Msg("command complete")
	return report.ExitCode
}

// watch runs discovery passes on a timer, reloading config when the file
// changes, until the context is cancelled.
func (a *app) watch(ctx context.Context, cfgPath string, interval time.Duration) {
	if cfgPath != "" {
		w := watcher.New(cfgPath, func() {
			cfg, _, err := config.LoadFromPath(cfgPath)
			if err != nil {
				a.log.Warn().Err(err).Msg("config reload failed, keeping previous")
				return
			}
			a.mu.Lock()
			a.cfg = cfg
			a.mu.Unlock()
		}, a.log)
		go func() {
			if err := w.Watch(ctx); err != nil && ctx.Err() == nil {
				a.log.Warn().Err(err).Msg("config watch stopped")
			}
		}()
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := a.discover(ctx); err != nil {
			a.log.Error().Err(err).Msg("discovery pass failed")
		}
		select {
		case <-ctx.Done():
			a.log.Info().Msg("shutting down")
			return
		case <-ticker.C:
		}
	}
}

// scanner picks the sweep backend, falling back to the TCP sweeper when
// nmap is configured but not installed.
func (a *app) scanner(ctx context.Context, cfg *config.Config) scan.Scanner {
	scanCfg := scan.Config{
		Ports:    cfg.Scan.Ports,
		Timeout:  cfg.Scan.Timeout.Duration(),
		Workers:  cfg.Scan.Workers,
		MaxHosts: cfg.Scan.MaxHosts,
	}

	if cfg.Scan.Backend == "nmap" {
		ns := scan.NewNmapScanner(scanCfg, a.log)
		if ns.Available(ctx) {
			return ns
		}
		a.log.Warn().Msg("nmap backend configured but binary not found, using tcp sweeper")
	}
	return scan.NewTCPSweeper(scanCfg, a.log)
}

func (a *app) prober(cfg *config.Config) *probe.Prober {
	timeout := cfg.Identify.Timeout.Duration()
	classifiers := []probe.Classifier{
		probe.NewPowerSwitchProbe(timeout),
		probe.NewInstrumentProbe(timeout),
		probe.NewSNMPProbe(cfg.Identify.SNMPCommunity, timeout),
	}

	principals := make([]probe.Principal, 0, len(cfg.Identify.Principals))
	for _, p := range cfg.Identify.Principals {
		principals = append(principals, probe.Principal{User: p.User, Password: p.Password})
	}

	return probe.New(a.dialer, a.store, classifiers, probe.Config{
		Principals: principals,
		Timeout:    timeout,
		Workers:    cfg.Identify.Workers,
		PortFor: func(address string) int {
			if dev, ok := cfg.Device(address); ok && dev.Port != 0 {
				return dev.Port
			}
			return 22
		},
	}, a.log)
}

func loadConfig(path string) (*config.Config, string, error) {
	if path != "" {
		return config.LoadFromPath(path)
	}
	return config.Load()
}

func newLogger(lc config.LogConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(lc.Level)
	if err != nil || lc.Level == "" {
		level = zerolog.InfoLevel
	}

	var log zerolog.Logger
	if lc.Console {
		log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	} else {
		log = zerolog.New(os.Stderr)
	}
	return log.Level(level).With().Timestamp().Logger()
}

func gatewayTimeout(cfg *config.Config) time.Duration {
	if cfg.Gateway == nil {
		return 0
	}
	return cfg.Gateway.Timeout.Duration()
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
