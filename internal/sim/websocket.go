package sim

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/muurk/shellyscan/internal/logging"
	"github.com/muurk/shellyscan/internal/shelly"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed between messages from the peer
	readWait = 60 * time.Second

	// Maximum message size allowed from peer
	maxMessageSize = 8192
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// handleWebSocket serves JSON-RPC frames on /rpc until the peer goes away.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if !websocket.IsWebSocketUpgrade(r) {
		http.Error(w, "websocket upgrade required", http.StatusBadRequest)
		return
	}
	if !s.authorized(r) {
		w.WriteHeader(http.StatusUnauthorized)
		logging.LogHTTPRequest(r.RemoteAddr, r.Method, r.URL.Path, http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Error("Failed to upgrade WebSocket connection", zap.Error(err))
		return
	}
	logging.LogHTTPRequest(r.RemoteAddr, r.Method, r.URL.Path, http.StatusSwitchingProtocols)

	remoteAddr := r.RemoteAddr
	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		_ = conn.Close()
		return
	}
	s.activeConns[remoteAddr] = conn.NetConn()
	s.wg.Add(1)
	s.mu.Unlock()

	defer func() {
		_ = conn.Close()
		s.forget(remoteAddr)
		s.wg.Done()
	}()

	logging.LogConnection(remoteAddr, "websocket_upgraded")
	conn.SetReadLimit(maxMessageSize)

	for {
		_ = conn.SetReadDeadline(time.Now().Add(readWait))
		msgType, payload, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logging.Debug("WebSocket closed", zap.String("remote_addr", remoteAddr), zap.Error(err))
			}
			return
		}
		logging.LogWebSocketMessage(remoteAddr, "received", msgType, payload)

		var req shelly.Frame
		if err := json.Unmarshal(payload, &req); err != nil || req.Method == "" {
			logging.Debug("Ignoring frame without method", zap.String("remote_addr", remoteAddr))
			continue
		}

		reply := shelly.Frame{ID: req.ID, Src: s.device.ID, Dst: req.Src}
		result, rpcErr := s.device.Call(req.Method, req.Params)
		if rpcErr != nil {
			reply.Error = rpcErr
		} else if reply.Result, err = json.Marshal(result); err != nil {
			reply.Error = &shelly.FrameError{Code: -1, Message: err.Error()}
		}

		data, _ := json.Marshal(reply)
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			logging.Debug("WebSocket write failed", zap.String("remote_addr", remoteAddr), zap.Error(err))
			return
		}
		logging.LogWebSocketMessage(remoteAddr, "sent", websocket.TextMessage, data)
	}
}
