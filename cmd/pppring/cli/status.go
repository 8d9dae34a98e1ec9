package cli

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	grpcstatus "google.golang.org/grpc/status"

	"github.com/frobware/go-pppring/server"
)

// StatusCmd queries the daemon's health service for every configured
// link.
type StatusCmd struct {
	Socket  string        `name:"socket" help:"Health socket path. Defaults to the one under --run-dir."`
	Timeout time.Duration `name:"timeout" help:"Per-query timeout." default:"2s"`
}

// Run executes the status command.
func (c *StatusCmd) Run(cli *CLI, ctx context.Context) error {
	cfg, err := cli.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	links, err := cfg.Links()
	if err != nil {
		return err
	}

	socket := c.Socket
	if socket == "" {
		dirs, err := cli.RuntimeDirs()
		if err != nil {
			return err
		}
		socket = dirs.SocketPath()
	}

	conn, err := grpc.NewClient(socketTarget(socket), grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return fmt.Errorf("connect to %s: %w", socket, err)
	}
	defer conn.Close()
	client := healthpb.NewHealthClient(conn)

	overall, err := c.check(ctx, client, "")
	if err != nil {
		return fmt.Errorf("daemon not reachable on %s: %w", socket, err)
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "daemon: %s\n", overall)
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "DEVICE\tLOCAL\tSTATUS")
	for _, l := range links {
		st, err := c.check(ctx, client, server.HealthService(l.Device))
		if err != nil {
			st = "error: " + err.Error()
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", l.Device, l.LocalAddr, st)
	}
	w.Flush()
	return cli.WriteOut(buf.Bytes())
}

// check returns the serving status of service, or "unknown" when the
// daemon does not know it.
func (c *StatusCmd) check(ctx context.Context, client healthpb.HealthClient, service string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()
	resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: service})
	if grpcstatus.Code(err) == codes.NotFound {
		return "unknown", nil
	}
	if err != nil {
		return "", err
	}
	return strings.ToLower(resp.GetStatus().String()), nil
}

// socketTarget normalises a socket path for gRPC.
func socketTarget(path string) string {
	if strings.HasPrefix(path, "unix://") {
		return path
	}
	return "unix://" + path
}
