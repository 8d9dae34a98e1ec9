// Package logging builds the slog loggers used by pppring.
//
// Every component logs through a child logger tagged with a
// "component" attribute. The log spec decides, per component, which
// levels reach the output:
//
//	info                       everything at info and above
//	warn,watchdog=debug        quiet, but trace watchdog decisions
//	info,ring=trace,helper=debug
package logging

import (
	"fmt"
	"log/slog"
	"strings"
)

// Level extends slog's levels with trace, used for per-packet logging.
type Level int

const (
	// LevelTrace sits below debug, for per-packet detail.
	LevelTrace Level = -8
	// LevelDebug matches slog.LevelDebug.
	LevelDebug Level = Level(slog.LevelDebug)
	// LevelInfo matches slog.LevelInfo.
	LevelInfo Level = Level(slog.LevelInfo)
	// LevelWarn matches slog.LevelWarn.
	LevelWarn Level = Level(slog.LevelWarn)
	// LevelError matches slog.LevelError.
	LevelError Level = Level(slog.LevelError)
)

// ParseLevel accepts trace, debug, info, warn and error in any case.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return LevelTrace, nil
	case "debug":
		return LevelDebug, nil
	case "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error", "err":
		return LevelError, nil
	}
	return LevelInfo, fmt.Errorf("unknown log level: %q", s)
}

// ToSlog converts to the equivalent slog.Level.
func (l Level) ToSlog() slog.Level { return slog.Level(l) }

func (l Level) String() string {
	switch l {
	case LevelTrace:
		return "trace"
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	}
	return fmt.Sprintf("Level(%d)", int(l))
}
