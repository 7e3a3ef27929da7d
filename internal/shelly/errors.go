package shelly

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/muurk/shellyscan/internal/probe"
	"github.com/muurk/shellyscan/internal/urls"
)

// ErrorType represents the category of error that occurred
type ErrorType int

const (
	// ErrTypeNetwork indicates a network-level error not covered by a more specific type
	ErrTypeNetwork ErrorType = iota
	// ErrTypeTimeout indicates the device did not answer in time
	ErrTypeTimeout
	// ErrTypeConnectionRefused indicates the device refused the connection
	ErrTypeConnectionRefused
	// ErrTypeUnreachable indicates the host or network could not be reached
	ErrTypeUnreachable
	// ErrTypeDNS indicates a hostname could not be resolved
	ErrTypeDNS
	// ErrTypeAuth indicates the device requires credentials that were missing or wrong
	ErrTypeAuth
	// ErrTypeHTTP indicates an unexpected HTTP status
	ErrTypeHTTP
	// ErrTypeRPC indicates the device answered with an RPC error object
	ErrTypeRPC
	// ErrTypeParse indicates a malformed reply
	ErrTypeParse
	// ErrTypeNotShelly indicates the address answered but is not a Shelly device
	ErrTypeNotShelly
)

// String returns a human-readable name for the error type
func (et ErrorType) String() string {
	switch et {
	case ErrTypeNetwork:
		return "Network Error"
	case ErrTypeTimeout:
		return "Timeout"
	case ErrTypeConnectionRefused:
		return "Connection Refused"
	case ErrTypeUnreachable:
		return "Unreachable"
	case ErrTypeDNS:
		return "DNS Error"
	case ErrTypeAuth:
		return "Authentication Error"
	case ErrTypeHTTP:
		return "HTTP Error"
	case ErrTypeRPC:
		return "RPC Error"
	case ErrTypeParse:
		return "Parse Error"
	case ErrTypeNotShelly:
		return "Not A Shelly"
	default:
		return fmt.Sprintf("ErrorType(%d)", et)
	}
}

// DeviceError represents an error that occurred during device communication
type DeviceError struct {
	Type       ErrorType // Category of error
	Message    string    // Human-readable error message
	StatusCode int       // HTTP status code (if applicable)
	Code       int       // RPC error code (ErrTypeRPC only)
	Method     string    // RPC method being called, if any
	Device     string    // Device address (for context)
	Err        error     // Underlying error (if any)
}

// Error implements the error interface
func (e *DeviceError) Error() string {
	prefix := e.Type.String()
	if e.Method != "" {
		prefix += " (" + e.Method + ")"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", prefix, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", prefix, e.Message)
}

// Unwrap returns the underlying error for error chain inspection
func (e *DeviceError) Unwrap() error {
	return e.Err
}

// ClassifyNetworkError maps a transport error to a DeviceError. It shares the
// timeout, refused and unreachable rules used by the scanner's prober.
func ClassifyNetworkError(err error, device string) *DeviceError {
	if err == nil {
		return nil
	}

	devErr := &DeviceError{Err: err, Device: device}

	var dnsErr *net.DNSError
	switch kind := probe.ClassifyError(err); {
	case kind == probe.KindTimeout:
		devErr.Type = ErrTypeTimeout
		devErr.Message = "request timed out"
	case kind == probe.KindRefused:
		devErr.Type = ErrTypeConnectionRefused
		devErr.Message = "device refused connection"
	case kind == probe.KindUnreachable:
		devErr.Type = ErrTypeUnreachable
		devErr.Message = "device unreachable"
	case errors.As(err, &dnsErr):
		devErr.Type = ErrTypeDNS
		devErr.Message = fmt.Sprintf("DNS resolution failed for %s", dnsErr.Name)
	default:
		devErr.Type = ErrTypeNetwork
		devErr.Message = "network error occurred"
	}
	return devErr
}

// NewNetworkError creates a network-level error with automatic classification
func NewNetworkError(message string, err error) *DeviceError {
	classified := ClassifyNetworkError(err, "")
	if classified == nil {
		return &DeviceError{Type: ErrTypeNetwork, Message: message}
	}
	classified.Message = message
	return classified
}

// NewAuthError creates an authentication error
func NewAuthError(message string) *DeviceError {
	return &DeviceError{
		Type:       ErrTypeAuth,
		Message:    message,
		StatusCode: http.StatusUnauthorized,
	}
}

// NewHTTPError creates an HTTP-level error
func NewHTTPError(statusCode int, message string) *DeviceError {
	return &DeviceError{
		Type:       ErrTypeHTTP,
		Message:    message,
		StatusCode: statusCode,
	}
}

// NewRPCError creates an error from a device RPC error object
func NewRPCError(code int, message string) *DeviceError {
	if code == http.StatusUnauthorized {
		return &DeviceError{Type: ErrTypeAuth, Message: message, Code: code, StatusCode: code}
	}
	return &DeviceError{Type: ErrTypeRPC, Message: message, Code: code}
}

// NewParseError creates a parsing error
func NewParseError(message string, err error) *DeviceError {
	return &DeviceError{
		Type:    ErrTypeParse,
		Message: message,
		Err:     err,
	}
}

func isType(err error, types ...ErrorType) bool {
	var devErr *DeviceError
	if !errors.As(err, &devErr) {
		return false
	}
	for _, t := range types {
		if devErr.Type == t {
			return true
		}
	}
	return false
}

// IsNetworkError checks if an error is a transport failure of any kind
func IsNetworkError(err error) bool {
	return isType(err, ErrTypeNetwork, ErrTypeTimeout, ErrTypeConnectionRefused, ErrTypeUnreachable, ErrTypeDNS)
}

// IsAuthError checks if an error is an authentication error
func IsAuthError(err error) bool {
	return isType(err, ErrTypeAuth)
}

// IsRPCError checks if the device rejected the call
func IsRPCError(err error) bool {
	return isType(err, ErrTypeRPC)
}

// GetTroubleshootingHint returns user-friendly troubleshooting advice for an error
func GetTroubleshootingHint(err error) string {
	var devErr *DeviceError
	if !errors.As(err, &devErr) {
		return "An unexpected error occurred. Please try again."
	}

	switch devErr.Type {
	case ErrTypeTimeout:
		return strings.Join([]string{
			"The device did not respond in time.",
			"Troubleshooting:",
			"  • Check that the device is powered on and joined to your network",
			"  • Try increasing the timeout with -t",
			"  • Run a fresh scan; the address may have changed",
		}, "\n")

	case ErrTypeConnectionRefused:
		return strings.Join([]string{
			"The address refused the connection.",
			"Troubleshooting:",
			"  • Another host may now own this address; run a fresh scan",
			"  • Verify the port number (default is 80)",
		}, "\n")

	case ErrTypeUnreachable:
		return strings.Join([]string{
			"The device is not reachable from this host.",
			"Troubleshooting:",
			"  • Check that you are on the same network as the device",
			"  • Try pinging the device: ping " + devErr.Device,
		}, "\n")

	case ErrTypeDNS:
		return "Could not resolve the device hostname. Use the IP address instead."

	case ErrTypeAuth:
		return strings.Join([]string{
			"The device has authentication enabled.",
			"Troubleshooting:",
			"  • Pass the device password with --password",
			"  • The username for Shelly devices is always \"admin\"",
			"  • See " + urls.Authentication,
		}, "\n")

	case ErrTypeRPC:
		return fmt.Sprintf("The device rejected the request (code %d). Check the component name against %s", devErr.Code, urls.Gen2API)

	case ErrTypeHTTP:
		if devErr.StatusCode == http.StatusNotFound {
			return "The device does not implement this method. Gen1 devices have no RPC API, see " + urls.Gen1API
		}
		return fmt.Sprintf("The device returned HTTP error %d.", devErr.StatusCode)

	case ErrTypeParse, ErrTypeNotShelly:
		return "The address answered, but not like a Shelly device. Run a fresh scan."

	default:
		return "A network error occurred. Check your connection and try again."
	}
}

// GetShortErrorMessage returns a concise, user-friendly error message
func GetShortErrorMessage(err error) string {
	var devErr *DeviceError
	if !errors.As(err, &devErr) {
		return err.Error()
	}

	switch devErr.Type {
	case ErrTypeTimeout:
		return "Device not responding (timeout)"
	case ErrTypeConnectionRefused:
		return "Device refused connection"
	case ErrTypeUnreachable:
		return "Device unreachable - check network connection"
	case ErrTypeDNS:
		return "Cannot resolve device hostname"
	case ErrTypeAuth:
		return "Authentication required - check password"
	case ErrTypeRPC:
		return fmt.Sprintf("Device error %d: %s", devErr.Code, devErr.Message)
	case ErrTypeHTTP:
		return fmt.Sprintf("Device error (HTTP %d)", devErr.StatusCode)
	case ErrTypeParse:
		return "Failed to parse device response"
	case ErrTypeNotShelly:
		return "Not a Shelly device"
	default:
		return devErr.Message
	}
}
