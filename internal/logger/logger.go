package logger

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/hashicorp/go-hclog"
)

var (
	mu        sync.RWMutex
	debugMode bool
	base      hclog.Logger
)

func init() {
	base = newLogger(os.Stderr, hclog.Info)
}

func newLogger(w io.Writer, level hclog.Level) hclog.Logger {
	return hclog.New(&hclog.LoggerOptions{
		Name:            "notesai",
		Level:           level,
		Output:          w,
		IncludeLocation: level == hclog.Debug,
		// Debug/Info/... below add one frame on top of hclog.
		AdditionalLocationOffset: 1,
	})
}

func SetDebugMode(enabled bool) {
	mu.Lock()
	debugMode = enabled
	if enabled {
		base.SetLevel(hclog.Debug)
	} else {
		base.SetLevel(hclog.Info)
	}
	mu.Unlock()
	if enabled {
		Debug("Debug mode enabled")
	}
}

func IsDebugMode() bool {
	mu.RLock()
	defer mu.RUnlock()
	return debugMode
}

// SetOutput redirects all log output. Used by the MCP command, where stdout
// belongs to the protocol, and by tests.
func SetOutput(w io.Writer) {
	level := hclog.Info
	if IsDebugMode() {
		level = hclog.Debug
	}
	mu.Lock()
	base = newLogger(w, level)
	mu.Unlock()
}

// Named returns an hclog logger for libraries that take one directly.
func Named(name string) hclog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return base.Named(name)
}

func current() hclog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return base
}

func Debug(format string, args ...interface{}) {
	current().Debug(fmt.Sprintf(format, args...))
}

func Info(format string, args ...interface{}) {
	current().Info(fmt.Sprintf(format, args...))
}

func Warn(format string, args ...interface{}) {
	current().Warn(fmt.Sprintf(format, args...))
}

func Error(format string, args ...interface{}) {
	current().Error(fmt.Sprintf(format, args...))
}

// Request logging function for HTTP requests
func LogRequest(method, path, remoteAddr string) {
	current().Debug("http request", "method", method, "path", path, "remote", remoteAddr)
}

// Response logging function for HTTP responses
func LogResponse(method, path string, statusCode int, duration string) {
	current().Debug("http response", "method", method, "path", path, "status", statusCode, "duration", duration)
}
