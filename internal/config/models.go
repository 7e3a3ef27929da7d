package config

import "time"

// CurrentVersion is the only supported file version
const CurrentVersion = 1

// Registry represents the entire preferences file.
type Registry struct {
	Version int          `yaml:"version"`
	Scan    *ScanPrefs   `yaml:"scan,omitempty"`
	Output  *OutputPrefs `yaml:"output,omitempty"`
	Auth    *AuthPrefs   `yaml:"auth,omitempty"`
}

// ScanPrefs holds defaults for the scan command.
type ScanPrefs struct {
	Networks    []string `yaml:"networks,omitempty"` // Ranges scanned when -n is not given
	Timeout     float64  `yaml:"timeout"`            // Per-probe timeout in seconds
	Concurrency int      `yaml:"concurrency"`        // Ceiling on in-flight probes
	AllowLarge  bool     `yaml:"allow_large"`        // Permit large scans
	Port        int      `yaml:"port,omitempty"`     // Probe port (0 means 80)
	Path        string   `yaml:"path,omitempty"`     // Probe path (empty means "shelly")
	Prefix      string   `yaml:"prefix,omitempty"`   // Device id prefix (empty means "shelly")
	MDNS        bool     `yaml:"mdns"`               // Add mDNS candidates to every scan
	MDNSTimeout float64  `yaml:"mdns_timeout"`       // mDNS browse time in seconds
}

// OutputPrefs holds defaults for rendering.
type OutputPrefs struct {
	Format     string `yaml:"format"`
	ColDelim   string `yaml:"coldelim"`
	RowDelim   string `yaml:"rowdelim"`
	Quote      string `yaml:"quote"`
	DeviceList string `yaml:"device_list,omitempty"` // Default device list for the status command
}

// AuthPrefs holds the RPC username for password protected devices.
// Passwords are never stored.
type AuthPrefs struct {
	Username string `yaml:"username"`
}

// NewRegistry creates a Registry with default values.
func NewRegistry() *Registry {
	r := &Registry{Version: CurrentVersion}
	r.fillDefaults()
	return r
}

// fillDefaults initialises any missing section
func (r *Registry) fillDefaults() {
	if r.Scan == nil {
		r.Scan = &ScanPrefs{
			Timeout:     2,
			Concurrency: 256,
			MDNSTimeout: 3,
		}
	}
	if r.Output == nil {
		r.Output = &OutputPrefs{
			Format:   "csv",
			ColDelim: ",",
			RowDelim: "\n",
		}
	}
	if r.Auth == nil {
		r.Auth = &AuthPrefs{Username: "admin"}
	}
}

// ScanTimeout returns the probe timeout as a duration
func (r *Registry) ScanTimeout() time.Duration {
	return seconds(r.Scan.Timeout)
}

// MDNSTimeout returns the mDNS browse time as a duration
func (r *Registry) MDNSTimeout() time.Duration {
	return seconds(r.Scan.MDNSTimeout)
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
