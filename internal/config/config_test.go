package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"labfleet/internal/domain"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 1, cfg.Version)
	assert.Equal(t, "tcp", cfg.Scan.Backend)
	assert.Equal(t, 100, cfg.Scan.Workers)
	assert.Equal(t, time.Second, cfg.Scan.Timeout.Duration())
	assert.Equal(t, 7*24*time.Hour, cfg.Cache.TTL.Duration())

	require.Len(t, cfg.Identify.Principals, 2)
	assert.Equal(t, "fio", cfg.Identify.Principals[0].User, "preferred principal is raced first")
	assert.Equal(t, "root", cfg.Identify.Principals[1].User)
}

func TestLoadFromPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "labfleet.yaml")

	content := `
version: 1
networks:
  - 10.42.0.0/24
scan:
  timeout: 500ms
  workers: 50
identify:
  timeout: 3s
cache:
  path: /tmp/devices.json
  ttl: 48h
gateway:
  host: gw.lab.example.com
devices:
  - name: jaguar-1
    address: 10.42.0.7
    principal: fio
    relay_eligible: true
  - name: bench-plug
    address: 10.42.0.30
    classification: power-switch
  - name: scope
    address: 10.42.0.40
    classification: instrument
    controlled_by: bench-plug
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, loaded, err := LoadFromPath(path)
	require.NoError(t, err)
	assert.Equal(t, path, loaded)

	assert.Equal(t, []string{"10.42.0.0/24"}, cfg.Networks)
	assert.Equal(t, 500*time.Millisecond, cfg.Scan.Timeout.Duration())
	assert.Equal(t, 50, cfg.Scan.Workers)
	assert.Equal(t, 3*time.Second, cfg.Identify.Timeout.Duration())
	assert.Equal(t, 48*time.Hour, cfg.Cache.TTL.Duration())

	// Gateway defaults fill in around the configured host
	require.NotNil(t, cfg.Gateway)
	assert.Equal(t, "gw.lab.example.com", cfg.Gateway.Host)
	assert.Equal(t, 5025, cfg.Gateway.Port)
	assert.Equal(t, "root", cfg.Gateway.Principal)
	assert.Equal(t, 60*time.Second, cfg.Gateway.Timeout.Duration())

	dev, ok := cfg.Device("10.42.0.7")
	require.True(t, ok)
	assert.Equal(t, "jaguar-1", dev.Name)
	assert.Equal(t, 22, dev.Port)
	assert.True(t, dev.RelayEligible)

	plug, ok := cfg.DeviceByName("bench-plug")
	require.True(t, ok)
	assert.Equal(t, domain.ClassificationPowerSwitch, plug.Classification)

	scope, ok := cfg.DeviceByName("scope")
	require.True(t, ok)
	assert.Equal(t, "bench-plug", scope.ControlledBy)
}

func TestLoadRejectsBadConfig(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "unknown backend",
			content: "scan:\n  backend: icmp\n",
			wantErr: "unknown scan backend",
		},
		{
			name:    "device without address",
			content: "devices:\n  - name: nameless\n",
			wantErr: "no address",
		},
		{
			name: "duplicate address",
			content: "devices:\n" +
				"  - name: a\n    address: 10.0.0.1\n" +
				"  - name: b\n    address: 10.0.0.1\n",
			wantErr: "share address",
		},
		{
			name:    "relay without gateway",
			content: "devices:\n  - name: a\n    address: 10.0.0.1\n    relay_eligible: true\n",
			wantErr: "no gateway",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "labfleet.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o644))

			_, _, err := LoadFromPath(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "labfleet.yaml")

	cfg := DefaultConfig()
	cfg.Networks = []string{"192.168.1.0/24"}
	require.NoError(t, cfg.Save(path))

	loaded, _, err := LoadFromPath(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.Networks, loaded.Networks)
	assert.Equal(t, cfg.Scan.Ports, loaded.Scan.Ports)
}

func TestFindConfigPathEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte("version: 1\n"), 0o644))

	t.Setenv(EnvConfigPath, path)
	assert.Equal(t, path, FindConfigPath())

	t.Setenv(EnvConfigPath, filepath.Join(dir, "missing.yaml"))
	// A pointed-to file that does not exist falls through the search chain
	assert.NotEqual(t, filepath.Join(dir, "missing.yaml"), FindConfigPath())
}
