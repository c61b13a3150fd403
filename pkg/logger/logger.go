package logger

import (
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

var log *zap.Logger

// EnsureLogPermissions creates the log directory and file with owner-only
// permissions.
func EnsureLogPermissions(logFilePath string) error {
	dir := filepath.Dir(logFilePath)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return err
	}

	if _, err := os.Stat(logFilePath); os.IsNotExist(err) {
		file, err := os.Create(logFilePath)
		if err != nil {
			return err
		}
		if err := file.Close(); err != nil {
			return err
		}
	}

	return os.Chmod(logFilePath, 0600)
}

// L returns the global logger, initializing the console fallback on first use.
func L() *zap.Logger {
	if log == nil {
		InitFallback()
	}
	return log
}

// InitFallback installs a console-only logger as the process global.
func InitFallback() {
	if log != nil {
		return
	}
	log = NewFallbackLogger()
	zap.ReplaceGlobals(log)
}

// Sync flushes any buffered log entries. Should be called before the application exits.
func Sync() {
	if log != nil {
		// stdout/stderr sync returns EINVAL on most terminals
		_ = log.Sync()
	}
}
