package codec

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"labfleet/internal/directory"
	"labfleet/internal/domain"
)

func sampleEntries() []directory.Entry {
	return []directory.Entry{
		{
			Name:      "jaguar-1",
			Address:   "10.42.0.7",
			Reachable: true,
			Latency:   3 * time.Millisecond,
			Identity: domain.Identity{
				Hostname:       "imx8mm-jaguar-2240a",
				Classification: domain.ClassificationGeneric,
				Principal:      "fio",
				Source:         domain.SourceStatic,
				ControlledBy:   "bench-plug",
			},
			RelayEligible: true,
		},
		{
			Name:      "bench-plug",
			Address:   "10.42.0.30",
			Reachable: true,
			Identity: domain.Identity{
				Classification: domain.ClassificationPowerSwitch,
				PowerState:     "on",
				PowerWatts:     17.2,
				Source:         domain.SourceDiscovered,
			},
		},
		{
			Name:    "10.42.0.40",
			Address: "10.42.0.40",
			Identity: domain.Identity{
				Classification: domain.ClassificationUnknown,
				LastSSHError:   "auth",
			},
		},
	}
}

func TestForFormat(t *testing.T) {
	for _, format := range []string{"table", "json", "yaml", "ansible-inventory"} {
		e, err := ForFormat(format)
		require.NoError(t, err)
		assert.Equal(t, format, e.Format())
	}

	_, err := ForFormat("xml")
	assert.ErrorContains(t, err, "unknown output format")
}

func TestJSONExport(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewJSONExporter().Export(sampleEntries(), &buf))

	var decoded []map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	require.Len(t, decoded, 3)

	assert.Equal(t, "jaguar-1", decoded[0]["name"])
	assert.Equal(t, "imx8mm-jaguar-2240a", decoded[0]["hostname"])
	assert.Equal(t, 3.0, decoded[0]["latency_ms"])
	assert.Equal(t, true, decoded[0]["relay_eligible"])

	assert.Equal(t, "on", decoded[1]["power_state"])
	assert.Equal(t, "auth", decoded[2]["last_ssh_error"])
}

func TestYAMLExportRoundTripsAsDeviceList(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewYAMLExporter().Export(sampleEntries(), &buf))

	var listing struct {
		Devices []struct {
			Name           string `yaml:"name"`
			Address        string `yaml:"address"`
			Classification string `yaml:"classification"`
		} `yaml:"devices"`
	}
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &listing))
	require.Len(t, listing.Devices, 3)
	assert.Equal(t, "jaguar-1", listing.Devices[0].Name)
	assert.Equal(t, "power-switch", listing.Devices[1].Classification)
}

func TestTableExport(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewTableExporter().Export(sampleEntries(), &buf))

	out := buf.String()
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 4, "header plus one row per entry")

	assert.Contains(t, lines[0], "NAME")
	assert.Contains(t, out, "jaguar-1")
	assert.Contains(t, out, "power on (17.2W)")
	assert.Contains(t, out, "ssh: auth")
	assert.Contains(t, out, "down")
}

func TestAnsibleExportGroupsByKind(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewAnsibleExporter().Export(sampleEntries(), &buf))

	var inv struct {
		All struct {
			Children map[string]struct {
				Hosts map[string]map[string]any `yaml:"hosts"`
			} `yaml:"children"`
		} `yaml:"all"`
	}
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &inv))

	boards := inv.All.Children["boards"].Hosts
	require.Contains(t, boards, "jaguar-1")
	assert.Equal(t, "10.42.0.7", boards["jaguar-1"]["ansible_host"])
	assert.Equal(t, "fio", boards["jaguar-1"]["ansible_user"])
	assert.Equal(t, "bench-plug", boards["jaguar-1"]["controlled_by"])

	assert.Contains(t, inv.All.Children["power_switches"].Hosts, "bench-plug")
	assert.Contains(t, inv.All.Children["unclassified"].Hosts, "10.42.0.40")
}
