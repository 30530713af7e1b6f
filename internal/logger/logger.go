// Package logger wires zerolog to the console, a size-rotated log file and a
// bounded in-memory buffer that backs the logs API endpoint.
package logger

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/dylanmazurek/resolvarr/internal/config"
	"github.com/rs/zerolog"
	"github.com/stanNthe5/stringbuf"
	"gopkg.in/natefinch/lumberjack.v2"
)

const maxBufferedLines = 2000

var (
	once     sync.Once
	instance zerolog.Logger

	bufMu     sync.Mutex
	logBuffer = stringbuf.New("")
	bufLines  int
)

// bufferWriter appends log lines to the in-memory buffer, resetting it once
// it grows past maxBufferedLines so the tail stays bounded.
type bufferWriter struct{}

func (bufferWriter) Write(p []byte) (int, error) {
	bufMu.Lock()
	defer bufMu.Unlock()
	if bufLines >= maxBufferedLines {
		logBuffer = stringbuf.New("")
		bufLines = 0
	}
	logBuffer.Append(string(p))
	bufLines++
	return len(p), nil
}

// GetLogsBuffer returns the buffered recent log output.
func GetLogsBuffer() string {
	bufMu.Lock()
	defer bufMu.Unlock()
	return logBuffer.String()
}

// FlushLogs discards the buffered log output.
func FlushLogs() {
	bufMu.Lock()
	defer bufMu.Unlock()
	logBuffer = stringbuf.New("")
	bufLines = 0
}

func setup() {
	cfg := config.Get()

	level, err := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel))
	if err != nil {
		level = zerolog.InfoLevel
	}

	writers := []io.Writer{
		zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339},
		bufferWriter{},
	}
	if err := os.MkdirAll(cfg.LogsDir(), 0755); err == nil {
		writers = append(writers, &lumberjack.Logger{
			Filename:   filepath.Join(cfg.LogsDir(), "resolvarr.log"),
			MaxSize:    100, // megabytes
			MaxBackups: 3,
			MaxAge:     28, // days
			Compress:   true,
		})
	}

	instance = zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(level).
		With().
		Timestamp().
		Logger()
}

// Default returns the process-wide logger, configured once from config.
func Default() zerolog.Logger {
	once.Do(setup)
	return instance
}

// New returns a child logger tagged with a component name.
func New(component string) zerolog.Logger {
	return Default().With().Str("component", component).Logger()
}
