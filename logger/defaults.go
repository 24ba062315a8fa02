package logger

import (
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
	"sync/atomic"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

type DefaultLogger struct {
	Logger
}

var Default = &DefaultLogger{}

var (
	logger   = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	safeLogs atomic.Bool
	debugOn  atomic.Bool
)

var urlRegex = regexp.MustCompile(`[a-zA-Z][a-zA-Z0-9+.-]*:\/\/[a-zA-Z0-9+%/.\-:_?&=#@+]+`)

type Options struct {
	Level      string
	File       string
	MaxSize    int
	MaxBackups int
	MaxAge     int
	SafeLogs   bool
}

// Configure rebuilds the package logger. Console output is always kept; a
// rotating file is added when File is set.
func Configure(opts Options) {
	var out io.Writer = zerolog.ConsoleWriter{Out: os.Stdout}
	if opts.File != "" {
		out = zerolog.MultiLevelWriter(out, &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    opts.MaxSize,
			MaxBackups: opts.MaxBackups,
			MaxAge:     opts.MaxAge,
			Compress:   true,
		})
	}

	level, err := zerolog.ParseLevel(strings.ToLower(opts.Level))
	if err != nil || opts.Level == "" {
		level = zerolog.InfoLevel
	}
	if os.Getenv("DEBUG") == "true" && level > zerolog.DebugLevel {
		level = zerolog.DebugLevel
	}

	logger = zerolog.New(out).Level(level).With().Timestamp().Logger()
	debugOn.Store(level <= zerolog.DebugLevel)
	safeLogs.Store(opts.SafeLogs)
}

func cleanString(text string) string {
	return urlRegex.ReplaceAllString(text, "[redacted url]")
}

func safeLogf(format string, v ...any) string {
	safeString := fmt.Sprintf(format, v...)
	if safeLogs.Load() || os.Getenv("SAFE_LOGS") == "true" {
		return cleanString(safeString)
	}
	return safeString
}

func debugEnabled() bool {
	return debugOn.Load() || os.Getenv("DEBUG") == "true"
}

func (*DefaultLogger) Log(msg string) {
	logger.Info().Msg(safeLogf("%s", msg))
}

func (*DefaultLogger) Logf(format string, v ...any) {
	logger.Info().Msg(safeLogf(format, v...))
}

func (*DefaultLogger) Debug(msg string) {
	if debugEnabled() {
		logger.Debug().Msg(safeLogf("%s", msg))
	}
}

func (*DefaultLogger) Debugf(format string, v ...any) {
	if debugEnabled() {
		logger.Debug().Msg(safeLogf(format, v...))
	}
}

func (*DefaultLogger) Error(msg string) {
	logger.Error().Msg(safeLogf("%s", msg))
}

func (*DefaultLogger) Errorf(format string, v ...any) {
	logger.Error().Msg(safeLogf(format, v...))
}

func (*DefaultLogger) Warn(msg string) {
	logger.Warn().Msg(safeLogf("%s", msg))
}

func (*DefaultLogger) Warnf(format string, v ...any) {
	logger.Warn().Msg(safeLogf(format, v...))
}

func (*DefaultLogger) Fatal(msg string) {
	logger.Fatal().Msg(safeLogf("%s", msg))
}

func (*DefaultLogger) Fatalf(format string, v ...any) {
	logger.Fatal().Msg(safeLogf(format, v...))
}
