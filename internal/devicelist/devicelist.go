// Package devicelist reads and writes the "name,addr" device files produced
// by `shellyscan scan -f csv` and consumed by `shellyscan status`.
package devicelist

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/netip"
	"os"
	"strings"

	"github.com/muurk/shellyscan/internal/scan"
)

// DefaultFile is the device list looked for in the working directory
const DefaultFile = "shelly_config.csv"

// ErrNotFound is returned by Lookup for unknown names
var ErrNotFound = errors.New("device not in list")

// List is an ordered device list
type List []scan.Device

// Read parses a device list. A "name,addr" header row is skipped, as are
// blank lines.
func Read(r io.Reader) (List, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	var list List
	for line := 1; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read device list: %w", err)
		}
		if len(record) != 2 {
			return nil, fmt.Errorf("line %d: expected name,addr but got %d fields", line, len(record))
		}

		name, addrText := strings.TrimSpace(record[0]), strings.TrimSpace(record[1])
		if line == 1 && strings.EqualFold(name, "name") && strings.EqualFold(addrText, "addr") {
			continue
		}

		addr, err := netip.ParseAddr(addrText)
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid address %q: %w", line, addrText, err)
		}
		list = append(list, scan.Device{Name: name, Addr: addr})
	}
	return list, nil
}

// Load reads a device list file
func Load(path string) (List, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	return Read(f)
}

// Write writes the list as "name,addr" rows without a header
func (l List) Write(w io.Writer) error {
	cw := csv.NewWriter(w)
	for _, d := range l {
		if err := cw.Write([]string{d.Name, d.Addr.String()}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// Save writes the list to path
func (l List) Save(path string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	if err := l.Write(f); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// Lookup finds a device by name. The last entry wins when a name repeats.
func (l List) Lookup(name string) (scan.Device, error) {
	for i := len(l) - 1; i >= 0; i-- {
		if l[i].Name == name {
			return l[i], nil
		}
	}
	return scan.Device{}, fmt.Errorf("%w: %s", ErrNotFound, name)
}

// FromResult builds a list from scan results
func FromResult(r *scan.Result) List {
	return List(r.Devices())
}
