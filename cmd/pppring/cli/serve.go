package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/frobware/go-pppring/server"
)

// ServeCmd runs the daemon.
type ServeCmd struct {
	Restarting  bool          `name:"restarting" help:"Adopt helpers left running by a previous instance instead of killing them."`
	LockTimeout time.Duration `name:"lock-timeout" help:"How long to wait for each serial port lock." default:"5s"`
}

// Run executes the serve command.
func (c *ServeCmd) Run(cli *CLI) error {
	logger, err := cli.LoggerFromConfig()
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}

	appConfig, err := cli.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	dirs, err := cli.RuntimeDirs()
	if err != nil {
		return err
	}

	cfg := server.RunConfig{
		Dirs:        dirs,
		Config:      appConfig,
		Restarting:  c.Restarting,
		LockTimeout: c.LockTimeout,
		Logger:      logger,
	}

	// Create context that cancels on SIGINT/SIGTERM
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	return server.Run(ctx, cfg)
}
