// Package logging configures the structured log sink every process
// installs at startup: JSON output for production runs, human-readable
// text when attached to an interactive terminal.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/ncruces/go-strftime"
)

// New returns a logger correlated by connection-id and world-id via the
// attribute keys callers attach at each log site (e.g. "conn_id" and
// "world_id"). It
// writes JSON unless w is a real terminal, in which case it switches to a
// human-readable text handler.
func New(w *os.File) *slog.Logger {
	var handler slog.Handler
	if isatty.IsTerminal(w.Fd()) {
		handler = slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelInfo})
	} else {
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: slog.LevelInfo})
	}
	return slog.New(handler)
}

// RotatedLogPath returns a timestamp-suffixed log file path under dir, for
// callers that want one file per process run rather than appending forever.
func RotatedLogPath(dir, prefix string) (string, error) {
	suffix, err := strftime.Format("%Y%m%d-%H%M%S", time.Now())
	if err != nil {
		return "", fmt.Errorf("logging.RotatedLogPath: %w", err)
	}
	return fmt.Sprintf("%s/%s-%s.log", dir, prefix, suffix), nil
}

// OpenRotated opens (creating) a fresh rotated log file under dir.
func OpenRotated(dir, prefix string) (io.WriteCloser, string, error) {
	path, err := RotatedLogPath(dir, prefix)
	if err != nil {
		return nil, "", err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, "", fmt.Errorf("logging.OpenRotated: %w", err)
	}
	return f, path, nil
}
