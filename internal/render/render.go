package render

import (
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"gopkg.in/yaml.v3"

	"github.com/muurk/shellyscan/internal/scan"
)

// Format selects an output format
type Format string

const (
	FormatList   Format = "list"
	FormatName   Format = "name"
	FormatAddr   Format = "addr"
	FormatCSV    Format = "csv"
	FormatTable  Format = "table"
	FormatGLM    Format = "glm"
	FormatJSON   Format = "json"
	FormatYAML   Format = "yaml"
	FormatPretty Format = "pretty"
)

var formats = []Format{
	FormatList, FormatName, FormatAddr, FormatCSV, FormatTable,
	FormatGLM, FormatJSON, FormatYAML, FormatPretty,
}

// Formats returns the names of every supported format
func Formats() []string {
	out := make([]string, len(formats))
	for i, f := range formats {
		out[i] = string(f)
	}
	return out
}

// ParseFormat validates a format name
func ParseFormat(s string) (Format, error) {
	f := Format(strings.ToLower(strings.TrimSpace(s)))
	if !slices.Contains(formats, f) {
		return "", fmt.Errorf("'%s' is not a valid format (valid: %s)", s, strings.Join(Formats(), ", "))
	}
	return f, nil
}

// Options controls delimited and GLM output
type Options struct {
	ColDelim string
	RowDelim string
	Quote    string
	HubName  string // GLM hub object name
}

// DefaultOptions returns "," between columns, newline between rows, no quoting
func DefaultOptions() Options {
	return Options{ColDelim: ",", RowDelim: "\n"}
}

// Record is the full description of a device used by record formats
type Record struct {
	Name       string `json:"name" yaml:"name"`
	Addr       string `json:"addr" yaml:"addr"`
	ID         string `json:"id" yaml:"id"`
	Model      string `json:"model,omitempty" yaml:"model,omitempty"`
	MAC        string `json:"mac,omitempty" yaml:"mac,omitempty"`
	Vendor     string `json:"vendor,omitempty" yaml:"vendor,omitempty"`
	Generation int    `json:"gen,omitempty" yaml:"gen,omitempty"`
	App        string `json:"app,omitempty" yaml:"app,omitempty"`
	Firmware   string `json:"firmware,omitempty" yaml:"firmware,omitempty"`
	Auth       bool   `json:"auth" yaml:"auth"`
}

// Records converts scan entries to records
func Records(entries []scan.Entry) []Record {
	out := make([]Record, 0, len(entries))
	for _, e := range entries {
		id := e.Identification
		out = append(out, Record{
			Name:       e.Name(),
			Addr:       e.Addr.String(),
			ID:         id.ID,
			Model:      id.Model,
			MAC:        id.MAC,
			Vendor:     id.Vendor,
			Generation: id.Generation,
			App:        id.App,
			Firmware:   id.Firmware,
			Auth:       id.AuthEnabled,
		})
	}
	return out
}

// IsRecord reports whether f needs full device records rather than
// (name, address) pairs
func (f Format) IsRecord() bool {
	return f == FormatJSON || f == FormatYAML || f == FormatPretty
}

// Result writes a scan result in format f. Pair formats see only the
// result's devices; record formats see everything each device reported.
func Result(w io.Writer, f Format, r *scan.Result, opts Options) error {
	if f.IsRecord() {
		return RenderRecords(w, f, Records(r.Entries))
	}
	return Render(w, f, r.Devices(), opts)
}

// Render writes devices to w in pair format f
func Render(w io.Writer, f Format, devices []scan.Device, opts Options) error {
	switch f {
	case FormatList:
		return writeList(w, devices)
	case FormatName:
		return writeObject(w, devices, func(d scan.Device) (string, string) { return d.Name, d.Addr.String() })
	case FormatAddr:
		return writeObject(w, devices, func(d scan.Device) (string, string) { return d.Addr.String(), d.Name })
	case FormatCSV:
		return writeDelimited(w, devices, opts, false)
	case FormatTable:
		return writeDelimited(w, devices, opts, true)
	case FormatGLM:
		return WriteGLM(w, devices, opts.HubName)
	case FormatJSON, FormatYAML, FormatPretty:
		return fmt.Errorf("'%s' needs device records", f)
	default:
		return fmt.Errorf("'%s' is not a valid format", f)
	}
}

// RenderRecords writes records to w in record format f
func RenderRecords(w io.Writer, f Format, records []Record) error {
	switch f {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(records)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(records); err != nil {
			return err
		}
		return enc.Close()
	case FormatPretty:
		_, err := fmt.Fprintln(w, Pretty(records))
		return err
	default:
		return fmt.Errorf("'%s' is not a record format", f)
	}
}

func writeList(w io.Writer, devices []scan.Device) error {
	rows := make([][2]string, 0, len(devices))
	for _, d := range devices {
		rows = append(rows, [2]string{d.Name, d.Addr.String()})
	}
	data, err := json.Marshal(rows)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "%s\n", data)
	return err
}

// writeObject writes a JSON object whose keys keep discovery order. A later
// duplicate key replaces the earlier value in place.
func writeObject(w io.Writer, devices []scan.Device, kv func(scan.Device) (string, string)) error {
	var keys []string
	values := make(map[string]string)
	for _, d := range devices {
		k, v := kv(d)
		if _, seen := values[k]; !seen {
			keys = append(keys, k)
		}
		values[k] = v
	}

	var b strings.Builder
	b.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		key, _ := json.Marshal(k)
		value, _ := json.Marshal(values[k])
		b.Write(key)
		b.WriteByte(':')
		b.Write(value)
	}
	b.WriteString("}\n")
	_, err := io.WriteString(w, b.String())
	return err
}

func writeDelimited(w io.Writer, devices []scan.Device, opts Options, header bool) error {
	q := opts.Quote
	row := func(cols ...string) string {
		quoted := make([]string, len(cols))
		for i, c := range cols {
			quoted[i] = q + c + q
		}
		return strings.Join(quoted, opts.ColDelim)
	}

	rows := make([]string, 0, len(devices))
	for _, d := range devices {
		rows = append(rows, row(d.Name, d.Addr.String()))
	}

	var out string
	if header {
		out = row("name", "addr") + opts.RowDelim
	}
	out += strings.Join(rows, opts.RowDelim) + "\n"

	_, err := io.WriteString(w, out)
	return err
}

// Pretty renders records as a bordered terminal table
func Pretty(records []Record) string {
	headerStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7D56F4")).Padding(0, 1)
	cellStyle := lipgloss.NewStyle().Padding(0, 1)
	mutedStyle := cellStyle.Foreground(lipgloss.Color("#626262"))

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("#626262"))).
		Headers("NAME", "ADDRESS", "ID", "MODEL", "GEN", "FIRMWARE", "VENDOR").
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return headerStyle
			case col >= 2:
				return mutedStyle
			default:
				return cellStyle
			}
		})

	for _, r := range records {
		gen := ""
		if r.Generation > 0 {
			gen = strconv.Itoa(r.Generation)
		}
		t.Row(r.Name, r.Addr, r.ID, r.Model, gen, r.Firmware, r.Vendor)
	}
	return t.String()
}
