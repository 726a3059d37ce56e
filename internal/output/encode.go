package output

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/blackwell-systems/luciprune/internal/inventory"
	"github.com/blackwell-systems/luciprune/internal/luci"
)

// Output formats accepted by WriteInventory.
const (
	FormatTable = "table"
	FormatJSON  = "json"
	FormatYAML  = "yaml"
)

// PackageRecord is the machine-readable form of one inventory entry.
type PackageRecord struct {
	Name        string     `json:"name" yaml:"name"`
	Version     string     `json:"version,omitempty" yaml:"version,omitempty"`
	InstalledAt *time.Time `json:"installed_at,omitempty" yaml:"installed_at,omitempty"`
	Recent      bool       `json:"recent" yaml:"recent"`
}

// Records converts a snapshot to machine-readable records.
func Records(pkgs luci.Snapshot, now time.Time, threshold time.Duration) []PackageRecord {
	records := make([]PackageRecord, 0, len(pkgs))
	for _, pkg := range pkgs {
		rec := PackageRecord{
			Name:    pkg.Name,
			Version: pkg.Version,
			Recent:  inventory.Recent(pkg, now, threshold),
		}
		if !pkg.InstalledAt.IsZero() {
			t := pkg.InstalledAt.UTC()
			rec.InstalledAt = &t
		}
		records = append(records, rec)
	}
	return records
}

// WriteRecords encodes records as JSON or YAML.
func WriteRecords(w io.Writer, format string, records []PackageRecord) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(records); err != nil {
			return fmt.Errorf("failed to encode json: %w", err)
		}
		return nil
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(records); err != nil {
			return fmt.Errorf("failed to encode yaml: %w", err)
		}
		return enc.Close()
	default:
		return fmt.Errorf("unsupported format %q: must be one of: table, json, yaml", format)
	}
}
