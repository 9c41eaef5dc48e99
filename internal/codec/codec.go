// Package codec renders directory listings for the CLI and for export
// into other tooling. Each exporter writes the same merged device view in
// a different format.
package codec

import (
	"fmt"
	"io"

	"labfleet/internal/directory"
)

// Exporter writes a directory listing to w.
type Exporter interface {
	Export(entries []directory.Entry, w io.Writer) error
	Format() string
}

// ForFormat returns the exporter for a format name.
func ForFormat(format string) (Exporter, error) {
	switch format {
	case "table":
		return NewTableExporter(), nil
	case "json":
		return NewJSONExporter(), nil
	case "yaml":
		return NewYAMLExporter(), nil
	case "ansible-inventory":
		return NewAnsibleExporter(), nil
	default:
		return nil, fmt.Errorf("codec: unknown output format %q", format)
	}
}
