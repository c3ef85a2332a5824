package logging

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LogFileName is the rotated log file written when file logging is on.
const LogFileName = "board.log"

// Rotation limits for the log file. The CLI logs little; the stub
// backend logs one line per request.
const (
	maxLogSizeMB  = 10
	maxLogBackups = 3
)

var (
	setupOnce sync.Once
	writerMu  sync.Mutex
	logFile   *lumberjack.Logger
)

// SetupBaseLogger routes the logger to stderr with caller info and points
// gin's writers at it, so the stub backend's own output shares the format.
func SetupBaseLogger() {
	setupOnce.Do(func() {
		SetOutput(os.Stderr)
		SetLevel(slog.LevelInfo)
		SetReportCaller(true)

		gin.SetMode(gin.ReleaseMode)
		gin.DefaultWriter = WriterLevel(slog.LevelInfo)
		gin.DefaultErrorWriter = WriterLevel(slog.LevelError)
		gin.DebugPrintFunc = func(format string, values ...any) {
			Debugf(strings.TrimSuffix(format, "\n"), values...)
		}

		RegisterExitHandler(CloseLogOutputs)
	})
}

// LogDir is where board.log goes: $BOARD_LOG_DIR, then $WRITABLE_PATH/logs,
// then the user cache dir, then ./logs.
func LogDir() string {
	if dir := strings.TrimSpace(os.Getenv("BOARD_LOG_DIR")); dir != "" {
		return filepath.Clean(dir)
	}
	if base := writablePath(); base != "" {
		return filepath.Join(base, "logs")
	}
	if cache, err := os.UserCacheDir(); err == nil && cache != "" {
		return filepath.Join(cache, "board", "logs")
	}
	return "logs"
}

// ConfigureLogOutput sends log lines to a rotated file under LogDir when
// toFile is set, and back to stderr otherwise.
func ConfigureLogOutput(toFile bool) error {
	SetupBaseLogger()

	writerMu.Lock()
	defer writerMu.Unlock()
	closeFileLocked()

	if !toFile {
		SetOutput(os.Stderr)
		return nil
	}
	dir := LogDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("logging: create %s: %w", dir, err)
	}
	logFile = &lumberjack.Logger{
		Filename:   filepath.Join(dir, LogFileName),
		MaxSize:    maxLogSizeMB,
		MaxBackups: maxLogBackups,
	}
	SetOutput(logFile)
	return nil
}

// CloseLogOutputs closes the log file, if any.
func CloseLogOutputs() {
	writerMu.Lock()
	defer writerMu.Unlock()
	closeFileLocked()
}

func closeFileLocked() {
	if logFile != nil {
		_ = logFile.Close()
		logFile = nil
	}
}
