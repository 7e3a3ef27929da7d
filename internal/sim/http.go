package sim

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/muurk/shellyscan/internal/logging"
	"github.com/muurk/shellyscan/internal/probe"
	"github.com/muurk/shellyscan/internal/shelly"
)

// maxRequestSize bounds RPC request bodies
const maxRequestSize = 16 << 10

// statusRecorder remembers the status written so requests can be logged
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /"+probe.DefaultPath, s.handleIdentify)
	mux.HandleFunc("/rpc", s.handleWebSocket)
	mux.HandleFunc("/rpc/{method}", s.handleRPC)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if websocket.IsWebSocketUpgrade(r) {
			mux.ServeHTTP(w, r)
			return
		}
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		mux.ServeHTTP(rec, r)
		logging.LogHTTPRequest(r.RemoteAddr, r.Method, r.URL.Path, rec.status)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) authorized(r *http.Request) bool {
	if s.device.Password == "" {
		return true
	}
	user, pass, ok := r.BasicAuth()
	return ok && user == shelly.DefaultUsername && pass == s.device.Password
}

func (s *Server) handleIdentify(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.device.Identity())
}

// handleRPC serves POST /rpc/<method> with a JSON object body, and GET with
// query parameters as some clients send them.
func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		writeJSON(w, http.StatusUnauthorized, shelly.FrameError{Code: http.StatusUnauthorized, Message: "Unauthorized"})
		return
	}

	params := map[string]any{}
	switch r.Method {
	case http.MethodPost:
		body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestSize))
		if err != nil {
			writeJSON(w, http.StatusBadRequest, shelly.FrameError{Code: codeInvalidArgument, Message: err.Error()})
			return
		}
		if len(strings.TrimSpace(string(body))) > 0 {
			if err := json.Unmarshal(body, &params); err != nil {
				writeJSON(w, http.StatusBadRequest, shelly.FrameError{Code: codeInvalidArgument, Message: "Invalid JSON"})
				return
			}
		}
	case http.MethodGet:
		for key, values := range r.URL.Query() {
			var v any
			if json.Unmarshal([]byte(values[0]), &v) != nil {
				v = values[0]
			}
			params[key] = v
		}
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	method := r.PathValue("method")
	result, rpcErr := s.device.Call(method, params)
	if rpcErr != nil {
		status := http.StatusBadRequest
		if rpcErr.Code == codeNoHandler {
			status = http.StatusNotFound
		}
		logging.Debug("Simulated RPC failed",
			zap.String("method", method),
			zap.Int("code", rpcErr.Code),
		)
		writeJSON(w, status, rpcErr)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
