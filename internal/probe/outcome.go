package probe

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"os"
	"strings"
	"syscall"
	"time"
)

// DefaultPort is the HTTP port Shelly devices listen on
const DefaultPort = 80

// DefaultPath is the unauthenticated identification endpoint
const DefaultPath = "shelly"

// Target is one address to probe. Targets are immutable once queued.
type Target struct {
	Addr netip.Addr
	Port uint16 // 0 means DefaultPort
	Path string // "" means DefaultPath
}

// URL returns the probe URL, e.g. "http://192.168.1.20/shelly"
func (t Target) URL() string {
	path := t.Path
	if path == "" {
		path = DefaultPath
	}
	host := t.Addr.String()
	if t.Port != 0 && t.Port != DefaultPort {
		host = netip.AddrPortFrom(t.Addr, t.Port).String()
	}
	return fmt.Sprintf("http://%s/%s", host, strings.TrimPrefix(path, "/"))
}

// Kind is the category of a probe outcome
type Kind int

const (
	// KindReply means an HTTP response arrived; see Outcome.Status
	KindReply Kind = iota
	// KindTimeout means no response within the probe timeout
	KindTimeout
	// KindRefused means the address actively refused the connection
	KindRefused
	// KindUnreachable means the host or network could not be reached
	KindUnreachable
	// KindTransportError is any other transport failure
	KindTransportError
)

// String returns a short name for the kind
func (k Kind) String() string {
	switch k {
	case KindReply:
		return "reply"
	case KindTimeout:
		return "timeout"
	case KindRefused:
		return "refused"
	case KindUnreachable:
		return "unreachable"
	case KindTransportError:
		return "error"
	default:
		return fmt.Sprintf("Kind(%d)", k)
	}
}

// Outcome is the typed result of one probe. It is a value passed from the
// worker to the consumer; nothing else is shared.
type Outcome struct {
	Target  Target
	Kind    Kind
	Status  int    // HTTP status, KindReply only
	Body    []byte // Response body, KindReply only, capped at MaxBodySize
	Err     error  // Transport error, non-reply kinds only
	Elapsed time.Duration
}

// ClassifyError maps a transport error to a Kind.
func ClassifyError(err error) Kind {
	if err == nil {
		return KindReply
	}

	if os.IsTimeout(err) || errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}

	if errors.Is(err, syscall.ECONNREFUSED) {
		return KindRefused
	}

	if errors.Is(err, syscall.EHOSTUNREACH) || errors.Is(err, syscall.ENETUNREACH) {
		return KindUnreachable
	}

	return KindTransportError
}
