package codec

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"labfleet/internal/directory"
	"labfleet/internal/domain"
)

// AnsibleExporter writes the fleet as an Ansible inventory, one group per
// device kind, so provisioning playbooks can run against the discovered
// lab directly.
type AnsibleExporter struct{}

// NewAnsibleExporter creates an Ansible inventory exporter.
func NewAnsibleExporter() *AnsibleExporter {
	return &AnsibleExporter{}
}

// Format returns the format identifier.
func (e *AnsibleExporter) Format() string {
	return "ansible-inventory"
}

type ansibleInventory struct {
	All ansibleGroup `yaml:"all"`
}

type ansibleGroup struct {
	Children map[string]ansibleGroupDef `yaml:"children,omitempty"`
}

type ansibleGroupDef struct {
	Hosts map[string]ansibleHost `yaml:"hosts,omitempty"`
}

type ansibleHost struct {
	AnsibleHost string         `yaml:"ansible_host"`
	Vars        map[string]any `yaml:",inline"`
}

// groupFor maps a classification onto an inventory group name.
func groupFor(c domain.Classification) string {
	switch c {
	case domain.ClassificationPowerSwitch:
		return "power_switches"
	case domain.ClassificationInstrument:
		return "instruments"
	case domain.ClassificationGeneric:
		return "boards"
	default:
		return "unclassified"
	}
}

// Export writes entries to w.
func (e *AnsibleExporter) Export(entries []directory.Entry, w io.Writer) error {
	inv := ansibleInventory{All: ansibleGroup{Children: make(map[string]ansibleGroupDef)}}

	for _, entry := range entries {
		group := groupFor(entry.Identity.Classification)
		def, ok := inv.All.Children[group]
		if !ok {
			def = ansibleGroupDef{Hosts: make(map[string]ansibleHost)}
			inv.All.Children[group] = def
		}

		host := ansibleHost{
			AnsibleHost: entry.Address,
			Vars:        make(map[string]any),
		}
		if entry.Identity.Principal != "" {
			host.Vars["ansible_user"] = entry.Identity.Principal
		}
		if entry.Identity.ControlledBy != "" {
			host.Vars["controlled_by"] = entry.Identity.ControlledBy
		}
		def.Hosts[entry.Name] = host
	}

	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	defer encoder.Close()

	if err := encoder.Encode(&inv); err != nil {
		return fmt.Errorf("encode inventory: %w", err)
	}
	return nil
}
