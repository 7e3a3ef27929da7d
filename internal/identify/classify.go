package identify

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/endobit/oui"

	"github.com/muurk/shellyscan/internal/probe"
)

// DefaultPrefix is the id prefix shared by every Shelly device
const DefaultPrefix = "shelly"

// Verdict says whether, and why not, a reply identified a device
type Verdict int

const (
	// Match means the reply identified a device
	Match Verdict = iota
	// NoReply means the probe got no HTTP response
	NoReply
	// BadStatus means the response status was not 200
	BadStatus
	// Undecodable means the body is not a JSON object
	Undecodable
	// MissingID means the object has no string "id"
	MissingID
	// WrongFamily means "id" does not start with the prefix
	WrongFamily
)

// String returns a short name for the verdict
func (v Verdict) String() string {
	switch v {
	case Match:
		return "match"
	case NoReply:
		return "no-reply"
	case BadStatus:
		return "bad-status"
	case Undecodable:
		return "undecodable"
	case MissingID:
		return "missing-id"
	case WrongFamily:
		return "wrong-family"
	default:
		return fmt.Sprintf("Verdict(%d)", v)
	}
}

// Identification is what a matching device says about itself.
type Identification struct {
	ID          string
	Name        string // Device name, or ID when the device has none
	Model       string
	MAC         string // Colon separated, upper case
	App         string
	Firmware    string
	Generation  int
	AuthEnabled bool
	Vendor      string // NIC vendor from the MAC prefix, when known

	// Attributes holds every field of the reply, including the above
	Attributes map[string]any
}

// Classifier turns probe outcomes into identifications.
type Classifier struct {
	// Prefix is the required id prefix; empty means DefaultPrefix
	Prefix string

	// SkipVendor disables the MAC vendor lookup
	SkipVendor bool
}

// Classify applies the default classifier to an outcome
func Classify(out probe.Outcome) (Identification, Verdict) {
	return Classifier{}.Classify(out)
}

// Classify decides whether out came from a device of the configured family.
func (c Classifier) Classify(out probe.Outcome) (Identification, Verdict) {
	if out.Kind != probe.KindReply {
		return Identification{}, NoReply
	}
	if out.Status != http.StatusOK {
		return Identification{}, BadStatus
	}

	var attrs map[string]any
	if err := json.Unmarshal(out.Body, &attrs); err != nil || attrs == nil {
		return Identification{}, Undecodable
	}

	id, ok := attrs["id"].(string)
	if !ok {
		return Identification{}, MissingID
	}

	prefix := c.Prefix
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if !strings.HasPrefix(id, prefix) {
		return Identification{}, WrongFamily
	}

	ident := Identification{
		ID:          id,
		Name:        stringField(attrs, "name"),
		Model:       firstString(attrs, "model", "type"),
		MAC:         NormalizeMAC(stringField(attrs, "mac")),
		App:         stringField(attrs, "app"),
		Firmware:    firstString(attrs, "ver", "fw"),
		AuthEnabled: boolField(attrs, "auth_en") || boolField(attrs, "auth"),
		Attributes:  attrs,
	}
	if ident.Name == "" {
		ident.Name = id
	}
	if gen, ok := attrs["gen"].(float64); ok {
		ident.Generation = int(gen)
	}
	if !c.SkipVendor && ident.MAC != "" {
		ident.Vendor = oui.Vendor(strings.ToLower(ident.MAC))
	}

	return ident, Match
}

// NormalizeMAC formats a MAC address as "AA:BB:CC:DD:EE:FF". Shelly devices
// report their MAC without separators. Returns "" for anything that is not
// twelve hex digits.
func NormalizeMAC(raw string) string {
	hex := strings.NewReplacer(":", "", "-", "", ".", "").Replace(strings.TrimSpace(raw))
	if len(hex) != 12 {
		return ""
	}
	for _, r := range hex {
		if !strings.ContainsRune("0123456789abcdefABCDEF", r) {
			return ""
		}
	}

	hex = strings.ToUpper(hex)
	parts := make([]string, 6)
	for i := range parts {
		parts[i] = hex[i*2 : i*2+2]
	}
	return strings.Join(parts, ":")
}

func stringField(attrs map[string]any, key string) string {
	s, _ := attrs[key].(string)
	return s
}

func firstString(attrs map[string]any, keys ...string) string {
	for _, k := range keys {
		if s := stringField(attrs, k); s != "" {
			return s
		}
	}
	return ""
}

func boolField(attrs map[string]any, key string) bool {
	b, _ := attrs[key].(bool)
	return b
}
