package logging

import (
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var logger *zap.Logger

// LogLevelEnvVar is the environment variable that controls logging verbosity.
// When unset or empty, logging is silent.
// Valid values: "debug", "info", "warn", "error"
const LogLevelEnvVar = "SHELLYSCAN_LOG_LEVEL"

// maxDump caps hex and ascii dumps of payloads
const maxDump = 256

// Initialize creates the global logger at the given level.
// If level is empty, SHELLYSCAN_LOG_LEVEL is used; if that is empty too the
// logger stays silent.
func Initialize(level string) error {
	if level == "" {
		level = os.Getenv(LogLevelEnvVar)
	}

	if level == "" {
		logger = zap.NewNop()
		return nil
	}

	zapLevel, err := zapcore.ParseLevel(strings.ToLower(level))
	if err != nil {
		// Explicit but unknown levels fall back to info
		zapLevel = zapcore.InfoLevel
	}

	config := zap.Config{
		Level:            zap.NewAtomicLevelAt(zapLevel),
		Development:      false,
		Encoding:         "console",
		EncoderConfig:    zap.NewDevelopmentEncoderConfig(),
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
	}

	config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	config.EncoderConfig.EncodeCaller = zapcore.ShortCallerEncoder

	built, err := config.Build()
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	logger = built

	return nil
}

// SetLogger replaces the global logger. Tests use it with zaptest/observer.
func SetLogger(l *zap.Logger) {
	logger = l
}

// GetLogger returns the global logger instance
func GetLogger() *zap.Logger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return logger
}

// Info logs an info message
func Info(msg string, fields ...zap.Field) {
	GetLogger().Info(msg, fields...)
}

// Debug logs a debug message
func Debug(msg string, fields ...zap.Field) {
	GetLogger().Debug(msg, fields...)
}

// Warn logs a warning message
func Warn(msg string, fields ...zap.Field) {
	GetLogger().Warn(msg, fields...)
}

// Error logs an error message
func Error(msg string, fields ...zap.Field) {
	GetLogger().Error(msg, fields...)
}

// LogScanStart logs the start of a scan
func LogScanStart(ranges []string, targets uint64, workers int, timeout time.Duration) {
	Info("Scan started",
		zap.Strings("ranges", ranges),
		zap.Uint64("targets", targets),
		zap.Int("workers", workers),
		zap.Duration("timeout", timeout),
	)
}

// LogScanDone logs scan completion
func LogScanDone(probed uint64, matches int, elapsed time.Duration) {
	Info("Scan complete",
		zap.Uint64("probed", probed),
		zap.Int("matches", matches),
		zap.Duration("elapsed", elapsed),
	)
}

// LogProbe logs the outcome of a single probe. Probes are frequent, so this
// is debug only.
func LogProbe(addr string, outcome string, status int, elapsed time.Duration) {
	Debug("Probe",
		zap.String("addr", addr),
		zap.String("outcome", outcome),
		zap.Int("status", status),
		zap.Duration("elapsed", elapsed),
	)
}

// LogMatch logs a positively identified device
func LogMatch(addr string, id string, name string) {
	Info("Device found",
		zap.String("addr", addr),
		zap.String("id", id),
		zap.String("name", name),
	)
}

// LogConnection logs a connection event
func LogConnection(remoteAddr string, event string) {
	Debug("Connection event",
		zap.String("remote_addr", remoteAddr),
		zap.String("event", event),
	)
}

// LogHTTPRequest logs an HTTP request
func LogHTTPRequest(remoteAddr string, method string, path string, status int) {
	Info("HTTP request",
		zap.String("remote_addr", remoteAddr),
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", status),
	)
}

// LogWebSocketMessage logs a WebSocket frame
func LogWebSocketMessage(remoteAddr string, direction string, messageType int, data []byte) {
	fields := []zap.Field{
		zap.String("remote_addr", remoteAddr),
		zap.String("direction", direction),
		zap.String("message_type", wsMessageTypeName(messageType)),
		zap.Int("length", len(data)),
	}

	if messageType == 1 {
		fields = append(fields, zap.String("content", string(truncate(data))))
	} else {
		fields = append(fields, zap.String("hex_dump", hexDump(data)))
	}

	Debug("WebSocket message", fields...)
}

// LogRawBody logs a raw response body (useful when a reply fails to decode)
func LogRawBody(label string, data []byte) {
	Debug(label,
		zap.Int("length", len(data)),
		zap.String("hex", hexDump(data)),
		zap.String("ascii", asciiDump(data)),
	)
}

func wsMessageTypeName(msgType int) string {
	switch msgType {
	case 1:
		return "text"
	case 2:
		return "binary"
	case 8:
		return "close"
	case 9:
		return "ping"
	case 10:
		return "pong"
	default:
		return fmt.Sprintf("unknown(%d)", msgType)
	}
}

func truncate(data []byte) []byte {
	if len(data) > maxDump {
		return data[:maxDump]
	}
	return data
}

func hexDump(data []byte) string {
	if len(data) == 0 {
		return ""
	}
	if len(data) > maxDump {
		return hex.EncodeToString(data[:maxDump]) + "..."
	}
	return hex.EncodeToString(data)
}

func asciiDump(data []byte) string {
	data = truncate(data)
	if len(data) == 0 {
		return ""
	}

	result := make([]byte, len(data))
	for i, b := range data {
		if b >= 32 && b <= 126 {
			result[i] = b
		} else {
			result[i] = '.'
		}
	}
	return string(result)
}

// Sync flushes any buffered log entries
func Sync() {
	if logger != nil {
		_ = logger.Sync()
	}
}
