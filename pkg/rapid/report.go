package rapid

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"gopkg.in/yaml.v3"

	"github.com/Sumatoshi-tech/indexbag/pkg/safeconv"
)

// Format selects how a Report is rendered.
type Format string

// Report formats.
const (
	FormatTable Format = "table"
	FormatJSON  Format = "json"
	FormatYAML  Format = "yaml"
)

// ErrUnknownFormat is returned for unsupported report formats.
var ErrUnknownFormat = errors.New("rapid: unknown report format")

const yamlIndent = 2

// ParseFormat parses a case-insensitive format name.
func ParseFormat(name string) (Format, error) {
	format := Format(strings.ToLower(strings.TrimSpace(name)))

	switch format {
	case FormatTable, FormatJSON, FormatYAML:
		return format, nil
	}

	return "", fmt.Errorf("%w: %q", ErrUnknownFormat, name)
}

// Report summarizes a driver run.
type Report struct {
	Weights      Weights       `json:"weights"      yaml:"weights"`
	Duration     time.Duration `json:"duration_ns"  yaml:"duration"`
	Seed         uint64        `json:"seed"         yaml:"seed"`
	Inserts      uint64        `json:"inserts"      yaml:"inserts"`
	Removes      uint64        `json:"removes"      yaml:"removes"`
	Lookups      uint64        `json:"lookups"      yaml:"lookups"`
	Skipped      uint64        `json:"skipped"      yaml:"skipped"`
	Hibernations uint64        `json:"hibernations" yaml:"hibernations"`
	PoolSize     uint64        `json:"pool_size"    yaml:"pool_size"`
	Unused       uint64        `json:"unused"       yaml:"unused"`
	Live         uint64        `json:"live"         yaml:"live"`
	Depth        int           `json:"depth"        yaml:"depth"`
	Occupancy    float64       `json:"occupancy"    yaml:"occupancy"`
}

// Report snapshots the driver counters and bag statistics.
func (d *Driver) Report(elapsed time.Duration) Report {
	stats := d.bag.Stats()

	return Report{
		Weights:      d.opts.weights,
		Duration:     elapsed,
		Seed:         d.opts.seed,
		Inserts:      d.counts[Insert],
		Removes:      d.counts[Remove],
		Lookups:      d.counts[Lookup],
		Skipped:      d.skipped,
		Hibernations: d.hibernations,
		PoolSize:     stats.PoolSize,
		Unused:       stats.Unused,
		Live:         stats.Live,
		Depth:        stats.Depth,
		Occupancy:    stats.Occupancy(),
	}
}

// Actions returns the number of actions that touched the bag.
func (r Report) Actions() uint64 {
	return r.Inserts + r.Removes + r.Lookups
}

// Throughput returns actions per second, or 0 for an instant run.
func (r Report) Throughput() float64 {
	if r.Duration <= 0 {
		return 0
	}

	return float64(r.Actions()) / r.Duration.Seconds()
}

// Render writes the report to w in the given format.
func (r Report) Render(w io.Writer, format Format) error {
	switch format {
	case FormatTable:
		r.renderTable(w)

		return nil
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")

		err := enc.Encode(r)
		if err != nil {
			return fmt.Errorf("encode json report: %w", err)
		}

		return nil
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(yamlIndent)

		err := enc.Encode(r)
		if err != nil {
			return fmt.Errorf("encode yaml report: %w", err)
		}

		err = enc.Close()
		if err != nil {
			return fmt.Errorf("flush yaml report: %w", err)
		}

		return nil
	}

	return fmt.Errorf("%w: %q", ErrUnknownFormat, format)
}

func (r Report) renderTable(w io.Writer) {
	tbl := table.NewWriter()
	tbl.SetOutputMirror(w)
	tbl.SetStyle(table.StyleLight)
	tbl.SetTitle("indexbag rapid run")
	tbl.AppendHeader(table.Row{"Metric", "Value"})

	tbl.AppendRows([]table.Row{
		{"Seed", "0x" + strconv.FormatUint(r.Seed, 16)},
		{"Inserts", comma(r.Inserts)},
		{"Removes", comma(r.Removes)},
		{"Lookups", comma(r.Lookups)},
		{"Skipped", comma(r.Skipped)},
		{"Hibernations", comma(r.Hibernations)},
	})
	tbl.AppendSeparator()
	tbl.AppendRows([]table.Row{
		{"Pool size", comma(r.PoolSize)},
		{"Unused", comma(r.Unused)},
		{"Live", comma(r.Live)},
		{"Depth", r.Depth},
		{"Occupancy", fmt.Sprintf("%.1f%%", r.Occupancy*100)},
	})
	tbl.AppendFooter(table.Row{
		"Duration",
		fmt.Sprintf("%s (%s ops/s)", r.Duration.Round(time.Microsecond), humanize.CommafWithDigits(r.Throughput(), 0)),
	})

	tbl.Render()
}

func comma(v uint64) string {
	return humanize.Comma(int64(safeconv.MustUint64ToInt(v)))
}
