package shelly

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/muurk/shellyscan/internal/logging"
)

// DefaultSource is the "src" sent in request frames. Devices address
// replies to it.
const DefaultSource = "shellyscan"

// Frame is a JSON-RPC frame on the /rpc WebSocket. Requests carry Method and
// Params; replies carry Result or Error; notifications have no id.
type Frame struct {
	ID     uint64          `json:"id,omitempty"`
	Src    string          `json:"src,omitempty"`
	Dst    string          `json:"dst,omitempty"`
	Method string          `json:"method,omitempty"`
	Params map[string]any  `json:"params,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *FrameError     `json:"error,omitempty"`
}

// FrameError is the error object of a failed call
type FrameError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// WSClient talks to a device over the WebSocket RPC transport. Calls are
// serialized on the one connection.
type WSClient struct {
	URL     string
	Source  string
	Timeout time.Duration

	mu     sync.Mutex
	conn   *websocket.Conn
	nextID uint64
}

// WebSocketURL converts an http:// base URL to the ws:// RPC endpoint
func WebSocketURL(baseURL string) string {
	u := strings.TrimSuffix(baseURL, "/")
	switch {
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	case !strings.Contains(u, "://"):
		u = "ws://" + u
	}
	return u + "/rpc"
}

// DialWS opens the WebSocket transport to the client's device using the
// client's credentials and timeout.
func (c *Client) DialWS(ctx context.Context) (*WSClient, error) {
	header := http.Header{}
	if c.Password != "" {
		creds := base64.StdEncoding.EncodeToString([]byte(c.Username + ":" + c.Password))
		header.Set("Authorization", "Basic "+creds)
	}
	return DialWS(ctx, WebSocketURL(c.BaseURL), header, c.HTTPClient.Timeout)
}

// DialWS connects to a ws:// RPC endpoint
func DialWS(ctx context.Context, url string, header http.Header, timeout time.Duration) (*WSClient, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	dialer := websocket.Dialer{HandshakeTimeout: timeout}

	conn, resp, err := dialer.DialContext(ctx, url, header)
	if err != nil {
		if resp != nil {
			_ = resp.Body.Close()
			if resp.StatusCode == http.StatusUnauthorized {
				return nil, NewAuthError("authentication failed (check credentials)")
			}
			return nil, NewHTTPError(resp.StatusCode, fmt.Sprintf("websocket handshake failed with status %d", resp.StatusCode))
		}
		devErr := ClassifyNetworkError(err, url)
		devErr.Message = "websocket dial failed"
		return nil, devErr
	}

	logging.LogConnection(url, "websocket_connected")
	return &WSClient{URL: url, Source: DefaultSource, Timeout: timeout, conn: conn}, nil
}

// Call sends one request frame and waits for the reply with the same id.
// Notifications received in the meantime are skipped.
func (w *WSClient) Call(ctx context.Context, method string, params map[string]any) (json.RawMessage, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.conn == nil {
		return nil, &DeviceError{Type: ErrTypeNetwork, Message: "connection closed", Method: method, Device: w.URL}
	}

	w.nextID++
	req := Frame{ID: w.nextID, Src: w.Source, Method: method, Params: params}
	data, err := json.Marshal(req)
	if err != nil {
		return nil, NewParseError("failed to encode request", err)
	}

	deadline := time.Now().Add(w.Timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	_ = w.conn.SetWriteDeadline(deadline)
	if err := w.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return nil, w.transportError(method, "failed to send request", err)
	}
	logging.LogWebSocketMessage(w.URL, "sent", websocket.TextMessage, data)

	_ = w.conn.SetReadDeadline(deadline)
	for {
		if err := ctx.Err(); err != nil {
			return nil, w.transportError(method, "call cancelled", err)
		}

		msgType, payload, err := w.conn.ReadMessage()
		if err != nil {
			return nil, w.transportError(method, "failed to read reply", err)
		}
		logging.LogWebSocketMessage(w.URL, "received", msgType, payload)

		var reply Frame
		if err := json.Unmarshal(payload, &reply); err != nil {
			logging.Debug("Skipping undecodable frame", zap.String("device", w.URL), zap.Error(err))
			continue
		}
		if reply.ID != req.ID {
			continue
		}

		if reply.Error != nil {
			devErr := NewRPCError(reply.Error.Code, reply.Error.Message)
			devErr.Method = method
			devErr.Device = w.URL
			return nil, devErr
		}
		if len(reply.Result) == 0 {
			return nil, &DeviceError{Type: ErrTypeParse, Message: "reply has no result", Method: method, Device: w.URL}
		}
		return reply.Result, nil
	}
}

func (w *WSClient) transportError(method, message string, err error) *DeviceError {
	devErr := ClassifyNetworkError(err, w.URL)
	devErr.Message = message
	devErr.Method = method
	if websocket.IsUnexpectedCloseError(err) || errors.Is(err, websocket.ErrCloseSent) {
		devErr.Type = ErrTypeNetwork
	}
	return devErr
}

// GetStatus calls <Component>.GetStatus
func (w *WSClient) GetStatus(ctx context.Context, component string) (map[string]any, error) {
	return GetStatus(ctx, w, component)
}

// GetConfig calls <Component>.GetConfig
func (w *WSClient) GetConfig(ctx context.Context, component string) (map[string]any, error) {
	return GetConfig(ctx, w, component)
}

// Close sends a close frame and closes the connection
func (w *WSClient) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.conn == nil {
		return nil
	}
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = w.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	err := w.conn.Close()
	w.conn = nil
	logging.LogConnection(w.URL, "websocket_closed")
	return err
}
