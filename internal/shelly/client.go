package shelly

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/muurk/shellyscan/internal/identify"
	"github.com/muurk/shellyscan/internal/logging"
	"github.com/muurk/shellyscan/internal/probe"
)

const (
	// DefaultUsername is the fixed username Shelly devices use for authentication
	DefaultUsername = "admin"

	// DefaultTimeout is the default request timeout
	DefaultTimeout = 2 * time.Second

	// MaxReplySize caps how much of a reply is read
	MaxReplySize = 1 << 20
)

// Caller performs one RPC call and returns the raw result object
type Caller interface {
	Call(ctx context.Context, method string, params map[string]any) (json.RawMessage, error)
}

// Client talks to a device over the HTTP RPC transport
type Client struct {
	// BaseURL is the base URL for the device (e.g., "http://192.168.1.20")
	BaseURL string

	// Username for HTTP Basic Auth (default: "admin")
	Username string

	// Password for HTTP Basic Auth; empty disables authentication
	Password string

	// HTTPClient is the underlying HTTP client
	HTTPClient *http.Client
}

// NewClient creates a client for the device at addr
func NewClient(addr netip.Addr, port uint16) *Client {
	return NewClientWithURL("http://" + hostPort(addr, port))
}

// NewClientWithURL creates a client with a full base URL
func NewClientWithURL(baseURL string) *Client {
	return &Client{
		BaseURL:    strings.TrimSuffix(baseURL, "/"),
		Username:   DefaultUsername,
		HTTPClient: &http.Client{Timeout: DefaultTimeout},
	}
}

func hostPort(addr netip.Addr, port uint16) string {
	if port == 0 || port == probe.DefaultPort {
		return addr.String()
	}
	return netip.AddrPortFrom(addr, port).String()
}

// SetTimeout sets the request timeout
func (c *Client) SetTimeout(timeout time.Duration) {
	c.HTTPClient.Timeout = timeout
}

// SetAuth sets HTTP Basic Auth credentials
func (c *Client) SetAuth(username, password string) {
	c.Username = username
	c.Password = password
}

// Identify fetches /shelly and classifies the reply the same way a scan does.
func (c *Client) Identify(ctx context.Context) (identify.Identification, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/"+probe.DefaultPath, nil)
	if err != nil {
		return identify.Identification{}, NewNetworkError("failed to create request", err)
	}

	status, body, err := c.do(req)
	if err != nil {
		return identify.Identification{}, err
	}

	ident, verdict := identify.Classify(probe.Outcome{Kind: probe.KindReply, Status: status, Body: body})
	switch verdict {
	case identify.Match:
		return ident, nil
	case identify.BadStatus:
		return identify.Identification{}, NewHTTPError(status, fmt.Sprintf("unexpected status code: %d", status))
	default:
		return identify.Identification{}, &DeviceError{
			Type:    ErrTypeNotShelly,
			Message: "identification reply rejected: " + verdict.String(),
			Device:  c.BaseURL,
		}
	}
}

// Call posts params to /rpc/<method> and returns the result object.
func (c *Client) Call(ctx context.Context, method string, params map[string]any) (json.RawMessage, error) {
	if params == nil {
		params = map[string]any{}
	}
	payload, err := json.Marshal(params)
	if err != nil {
		return nil, NewParseError("failed to encode parameters", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/rpc/"+method, bytes.NewReader(payload))
	if err != nil {
		return nil, NewNetworkError("failed to create request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	logging.Debug("RPC call", zap.String("device", c.BaseURL), zap.String("method", method))

	status, body, err := c.do(req)
	if err != nil {
		if devErr, ok := err.(*DeviceError); ok {
			devErr.Method = method
		}
		return nil, err
	}
	logging.LogRawBody(method, body)

	if status != http.StatusOK {
		devErr := replyError(status, body)
		devErr.Method = method
		devErr.Device = c.BaseURL
		return nil, devErr
	}

	if !json.Valid(body) {
		return nil, &DeviceError{Type: ErrTypeParse, Message: "reply is not JSON", Method: method, Device: c.BaseURL}
	}
	return json.RawMessage(body), nil
}

func (c *Client) do(req *http.Request) (int, []byte, error) {
	if c.Password != "" {
		req.SetBasicAuth(c.Username, c.Password)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return 0, nil, ClassifyNetworkError(err, c.BaseURL)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusUnauthorized {
		return 0, nil, NewAuthError("authentication failed (check credentials)")
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxReplySize))
	if err != nil {
		return 0, nil, NewNetworkError("failed to read response body", err)
	}
	return resp.StatusCode, body, nil
}

// replyError turns a non-200 reply into an error. Gen2 devices put an
// {"code":..,"message":..} object in the body.
func replyError(status int, body []byte) *DeviceError {
	var rpcErr struct {
		Code    *int   `json:"code"`
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &rpcErr) == nil && rpcErr.Code != nil {
		devErr := NewRPCError(*rpcErr.Code, rpcErr.Message)
		devErr.StatusCode = status
		return devErr
	}
	msg := strings.TrimSpace(string(body))
	if msg == "" {
		msg = http.StatusText(status)
	}
	return NewHTTPError(status, msg)
}

// GetStatus calls <Component>.GetStatus
func (c *Client) GetStatus(ctx context.Context, component string) (map[string]any, error) {
	return GetStatus(ctx, c, component)
}

// GetConfig calls <Component>.GetConfig
func (c *Client) GetConfig(ctx context.Context, component string) (map[string]any, error) {
	return GetConfig(ctx, c, component)
}

// GetStatus calls <Component>.GetStatus through any transport
func GetStatus(ctx context.Context, c Caller, component string) (map[string]any, error) {
	return callObject(ctx, c, component, "GetStatus")
}

// GetConfig calls <Component>.GetConfig through any transport
func GetConfig(ctx context.Context, c Caller, component string) (map[string]any, error) {
	return callObject(ctx, c, component, "GetConfig")
}

func callObject(ctx context.Context, c Caller, component, verb string) (map[string]any, error) {
	method, params, err := MethodFor(component, verb)
	if err != nil {
		return nil, err
	}

	raw, err := c.Call(ctx, method, params)
	if err != nil {
		return nil, err
	}

	var result map[string]any
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, &DeviceError{Type: ErrTypeParse, Message: "result is not an object", Method: method, Err: err}
	}
	return result, nil
}

// MethodFor builds the RPC method name and parameters for a component.
// Components are case-insensitive and may carry an instance id, so
// "switch:0" becomes Switch.GetStatus with {"id": 0}.
func MethodFor(component, verb string) (string, map[string]any, error) {
	name, idText, hasID := strings.Cut(strings.TrimSpace(component), ":")
	if name == "" {
		return "", nil, &DeviceError{Type: ErrTypeRPC, Message: "empty component name"}
	}

	method := strings.ToUpper(name[:1]) + strings.ToLower(name[1:]) + "." + verb
	if !hasID {
		return method, nil, nil
	}

	id, err := strconv.Atoi(idText)
	if err != nil {
		return "", nil, &DeviceError{Type: ErrTypeRPC, Message: fmt.Sprintf("invalid component id %q", idText), Err: err}
	}
	return method, map[string]any{"id": id}, nil
}
