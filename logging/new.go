package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// EnvVar names the environment variable holding a log spec.
const EnvVar = "PPPRING_LOG"

// Format selects the output encoding.
type Format string

const (
	// FormatText is slog's key=value text output.
	FormatText Format = "text"
	// FormatJSON emits one JSON object per record.
	FormatJSON Format = "json"
)

// ParseFormat accepts "text" (or empty) and "json".
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "text":
		return FormatText, nil
	case "json":
		return FormatJSON, nil
	}
	return FormatText, fmt.Errorf("unknown log format: %q", s)
}

// Options configures New. The first non-empty spec of CLISpec, EnvSpec
// and ConfigSpec wins.
type Options struct {
	// CLISpec is the spec given with --log.
	CLISpec string
	// EnvSpec is the spec read from PPPRING_LOG.
	EnvSpec string
	// ConfigSpec is rendered from the [logging] section.
	ConfigSpec string
	// Format is the output encoding. Empty means text.
	Format Format
	// Output receives log records. Nil means os.Stderr.
	Output io.Writer
}

// New returns a logger honouring the selected spec.
func New(opts Options) (*slog.Logger, error) {
	raw := opts.ConfigSpec
	if opts.EnvSpec != "" {
		raw = opts.EnvSpec
	}
	if opts.CLISpec != "" {
		raw = opts.CLISpec
	}

	spec, err := ParseSpec(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid log spec: %w", err)
	}

	out := opts.Output
	if out == nil {
		out = os.Stderr
	}

	// The inner handler lets everything through; componentHandler filters.
	hopts := &slog.HandlerOptions{Level: LevelTrace.ToSlog()}
	var inner slog.Handler
	if opts.Format == FormatJSON {
		inner = slog.NewJSONHandler(out, hopts)
	} else {
		inner = slog.NewTextHandler(out, hopts)
	}
	return slog.New(NewComponentHandler(inner, &spec)), nil
}
