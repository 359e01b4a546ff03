package logging

import (
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// New creates a zerolog logger at the given level writing to the
// console and, when path is non-empty, to a log file as well. Unknown
// levels fall back to info.
func New(level, path string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}

	console := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}

	var out zerolog.LevelWriter = zerolog.MultiLevelWriter(console)
	if path != "" {
		os.MkdirAll(filepath.Dir(path), 0o755)
		logFile, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to open log file")
		}
		out = zerolog.MultiLevelWriter(console, logFile)
	}

	return zerolog.New(out).Level(lvl).With().Timestamp().Logger()
}
