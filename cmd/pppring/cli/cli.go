// Package cli implements the pppring command line.
package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/alecthomas/kong"

	"github.com/frobware/go-pppring/config"
	"github.com/frobware/go-pppring/logging"
)

// CLI is the root command structure for pppring.
type CLI struct {
	Config string `name:"config" help:"Config file path." default:"${default_config_path}"`
	Log    string `name:"log" help:"Log spec (e.g., 'info,ring=debug'). Overrides PPPRING_LOG."`
	RunDir string `name:"run-dir" help:"Runtime directory (journal, locks, health socket)." default:"${default_run_dir}"`

	Serve  ServeCmd  `cmd:"" help:"Run the heartbeat ring daemon."`
	Check  CheckCmd  `cmd:"" help:"Validate the configuration without starting anything."`
	Status StatusCmd `cmd:"" help:"Show per-link health from a running daemon."`
	Events EventsCmd `cmd:"" help:"List journalled link transitions."`

	// Out receives command output. Nil means stdout.
	Out io.Writer `kong:"-"`
}

// KongOptions returns the Kong configuration options for the CLI.
func KongOptions() []kong.Option {
	return []kong.Option{
		kong.Name("pppring"),
		kong.Description("Cluster heartbeat ring over serial PPP links."),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
		kong.Vars{
			"default_config_path": config.DefaultConfigPath,
			"default_run_dir":     config.DefaultRuntimeDirs().Base(),
		},
	}
}

// LoadConfig loads the configuration from the config file path.
func (c *CLI) LoadConfig() (config.Config, error) {
	return config.Load(c.Config)
}

// RuntimeDirs returns the runtime layout rooted at --run-dir.
func (c *CLI) RuntimeDirs() (config.RuntimeDirs, error) {
	return config.NewRuntimeDirs(c.RunDir)
}

// Logger creates a logger for short-lived commands. They default to
// warn unless --log or PPPRING_LOG says otherwise.
func (c *CLI) Logger() (*slog.Logger, error) {
	cfg, err := c.LoadConfig()
	if err != nil {
		return nil, err
	}
	spec := c.Log
	if spec == "" && os.Getenv(logging.EnvVar) == "" {
		spec = "warn"
	}
	return c.logger(cfg, spec, os.Stderr)
}

// LoggerFromConfig creates a logger using config file settings, for
// the daemon. Output goes to stdout for log collection.
func (c *CLI) LoggerFromConfig() (*slog.Logger, error) {
	cfg, err := c.LoadConfig()
	if err != nil {
		return nil, err
	}
	return c.logger(cfg, c.Log, os.Stdout)
}

func (c *CLI) logger(cfg config.Config, cliSpec string, out io.Writer) (*slog.Logger, error) {
	format, err := logging.ParseFormat(cfg.Logging.Format)
	if err != nil {
		return nil, err
	}
	return logging.New(logging.Options{
		CLISpec:    cliSpec,
		EnvSpec:    os.Getenv(logging.EnvVar),
		ConfigSpec: cfg.Logging.ToSpec(),
		Format:     format,
		Output:     out,
	})
}

func (c *CLI) out() io.Writer {
	if c.Out == nil {
		return os.Stdout
	}
	return c.Out
}

// WriteOut writes p in full, treating a short write as an error.
func (c *CLI) WriteOut(p []byte) error {
	n, err := c.out().Write(p)
	if err != nil {
		return err
	}
	if n != len(p) {
		return io.ErrShortWrite
	}
	return nil
}

// PrintOut writes s to the command output.
func (c *CLI) PrintOut(s string) error {
	return c.WriteOut([]byte(s))
}

// PrintOutf formats and writes to the command output.
func (c *CLI) PrintOutf(format string, args ...any) error {
	return c.WriteOut([]byte(fmt.Sprintf(format, args...)))
}
