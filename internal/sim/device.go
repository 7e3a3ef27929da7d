package sim

import (
	"fmt"
	"maps"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/muurk/shellyscan/internal/shelly"
)

// RPC error codes used by Gen2 firmware
const (
	codeInvalidArgument = -103
	codeNotFound        = -105
	codeNoHandler       = http.StatusNotFound
)

// Device is the state of one simulated device
type Device struct {
	ID       string
	Name     string // empty reports "name": null like an unnamed device
	Model    string
	MAC      string
	Gen      int
	App      string
	Firmware string

	// Password enables authentication on /rpc; /shelly stays open
	Password string

	mu         sync.Mutex
	components map[string]map[string]any // status by component key, e.g. "switch:0"
	config     map[string]map[string]any
}

// NewDevice creates a single-switch Plus device
func NewDevice(id, name string) *Device {
	return &Device{
		ID:       id,
		Name:     name,
		Model:    "SNSW-001X16EU",
		MAC:      macFromID(id),
		Gen:      2,
		App:      "Plus1",
		Firmware: "1.4.4",
		components: map[string]map[string]any{
			"switch:0": {"id": 0, "source": "init", "output": false, "temperature": map[string]any{"tC": 41.2}},
			"sys":      {"mac": macFromID(id), "restart_required": false, "uptime": 3600},
			"wifi":     {"sta_ip": nil, "status": "got ip", "rssi": -58},
		},
		config: map[string]map[string]any{
			"switch:0": {"id": 0, "name": nil, "initial_state": "restore_last"},
			"sys":      {"device": map[string]any{"name": name, "mac": macFromID(id)}},
		},
	}
}

// macFromID takes the hex suffix of ids like "shellyplus1-a8032ab12345"
func macFromID(id string) string {
	_, suffix, ok := strings.Cut(id, "-")
	if !ok || len(suffix) != 12 {
		return "A8032AB00000"
	}
	return strings.ToUpper(suffix)
}

// SetStatus replaces the status of a component
func (d *Device) SetStatus(component string, status map[string]any) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.components[component] = status
}

// Identity is the /shelly reply body
func (d *Device) Identity() map[string]any {
	var name any
	if d.Name != "" {
		name = d.Name
	}
	return map[string]any{
		"id":      d.ID,
		"name":    name,
		"mac":     d.MAC,
		"model":   d.Model,
		"gen":     d.Gen,
		"fw_id":   "20241011-114455/" + d.Firmware,
		"ver":     d.Firmware,
		"app":     d.App,
		"auth_en": d.Password != "",
	}
}

// Call runs one RPC method. Method names are case-insensitive.
func (d *Device) Call(method string, params map[string]any) (any, *shelly.FrameError) {
	component, verb, ok := strings.Cut(method, ".")
	if !ok {
		return nil, &shelly.FrameError{Code: codeNoHandler, Message: "No handler for " + method}
	}
	component = strings.ToLower(component)

	d.mu.Lock()
	defer d.mu.Unlock()

	switch {
	case component == "shelly" && strings.EqualFold(verb, "GetDeviceInfo"):
		return d.Identity(), nil
	case component == "shelly" && strings.EqualFold(verb, "GetStatus"):
		return copyAll(d.components), nil
	case component == "shelly" && strings.EqualFold(verb, "GetConfig"):
		return copyAll(d.config), nil
	case strings.EqualFold(verb, "GetStatus"):
		return lookup(d.components, component, params)
	case strings.EqualFold(verb, "GetConfig"):
		return lookup(d.config, component, params)
	default:
		return nil, &shelly.FrameError{Code: codeNoHandler, Message: "No handler for " + method}
	}
}

func copyAll(src map[string]map[string]any) map[string]any {
	out := make(map[string]any, len(src))
	for k, v := range src {
		out[k] = maps.Clone(v)
	}
	return out
}

// lookup finds "component" or "component:<id>" when params carry an id
func lookup(src map[string]map[string]any, component string, params map[string]any) (any, *shelly.FrameError) {
	key := component
	if raw, ok := params["id"]; ok {
		id, ok := raw.(float64)
		if !ok {
			return nil, &shelly.FrameError{Code: codeInvalidArgument, Message: fmt.Sprintf("Argument 'id', value type %T is invalid", raw)}
		}
		key = component + ":" + strconv.Itoa(int(id))
	}

	v, ok := src[key]
	if !ok {
		if _, hasID := params["id"]; hasID {
			return nil, &shelly.FrameError{Code: codeNotFound, Message: fmt.Sprintf("Argument 'id', value %v not found!", params["id"])}
		}
		return nil, &shelly.FrameError{Code: codeNoHandler, Message: "No handler for " + component}
	}
	return maps.Clone(v), nil
}
