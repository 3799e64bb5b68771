package config

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/pseudomuto/hermes/pkg/consts"
)

// LevelCritical sits above slog.LevelError.
const LevelCritical = slog.LevelError + 4

// NewLogger builds a logger from the log-* settings. Records go to stream
// when log-to-stream is set and to the log file when log-to-file is set. The
// returned close function releases the log file and is always non-nil.
//
// Example usage:
//
//	logger, closeLog, err := config.NewLogger(cfg, os.Stderr)
//	if err != nil {
//		return err
//	}
//	defer closeLog()
//
//	slog.SetDefault(logger)
func NewLogger(cfg *Config, stream io.Writer) (*slog.Logger, func() error, error) {
	level, err := parseLevel(cfg.LogLevel)
	if err != nil {
		return nil, nil, err
	}

	closer := func() error { return nil }

	var writers []io.Writer
	if cfg.LogToStream && stream != nil {
		writers = append(writers, stream)
	}

	if cfg.LogToFile {
		path := cfg.LogFilePath
		if path == "" {
			path = consts.DefaultLogFilePath
		}

		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, consts.ModeFile)
		if err != nil {
			return nil, nil, errors.Wrapf(err, "failed to open log file: %s", path)
		}

		writers = append(writers, f)
		closer = f.Close
	}

	var w io.Writer = io.Discard
	switch len(writers) {
	case 0:
	case 1:
		w = writers[0]
	default:
		w = io.MultiWriter(writers...)
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if strings.EqualFold(cfg.LogFormat, "json") {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	return slog.New(handler), closer, nil
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	case "critical":
		return LevelCritical, nil
	default:
		return 0, errors.Errorf("unsupported log level: %q", s)
	}
}
