package codec

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"labfleet/internal/directory"
	"labfleet/internal/domain"
)

// TableExporter writes a human-readable column listing, the default CLI
// output.
type TableExporter struct{}

// NewTableExporter creates a table exporter.
func NewTableExporter() *TableExporter {
	return &TableExporter{}
}

// Format returns the format identifier.
func (e *TableExporter) Format() string {
	return "table"
}

// Export writes entries to w.
func (e *TableExporter) Export(entries []directory.Entry, w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tADDRESS\tKIND\tSTATE\tLOGIN\tDETAIL")

	for _, entry := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			entry.Name,
			entry.Address,
			entry.Identity.Classification,
			stateColumn(entry),
			entry.Identity.Principal,
			detailColumn(entry),
		)
	}

	return tw.Flush()
}

func stateColumn(entry directory.Entry) string {
	if !entry.Reachable {
		return "down"
	}
	if entry.Latency > 0 {
		return fmt.Sprintf("up %s", entry.Latency.Round(100*time.Microsecond))
	}
	return "up"
}

// detailColumn picks the most useful per-kind fact for the last column.
func detailColumn(entry directory.Entry) string {
	id := entry.Identity
	switch id.Classification {
	case domain.ClassificationPowerSwitch:
		if id.PowerState != "" {
			return fmt.Sprintf("power %s (%.1fW)", id.PowerState, id.PowerWatts)
		}
	case domain.ClassificationInstrument:
		if id.InstrumentModel != "" {
			return id.InstrumentModel
		}
	}
	if id.LastSSHError != "" {
		return "ssh: " + id.LastSSHError
	}
	if id.Hostname != "" && id.Hostname != entry.Name {
		return id.Hostname
	}
	return ""
}
