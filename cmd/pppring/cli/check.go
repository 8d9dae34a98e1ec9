package cli

import (
	"bytes"
	"fmt"
	"strings"
	"text/tabwriter"
)

// CheckCmd validates the configuration offline: every media line is
// parsed, each port must be a character device and each address a
// private IPv4 address.
type CheckCmd struct{}

// Run executes the check command.
func (c *CheckCmd) Run(cli *CLI) error {
	cfg, err := cli.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("%s: %w", cli.Config, err)
	}
	node, err := cfg.NodeName()
	if err != nil {
		return fmt.Errorf("failed to determine node name: %w", err)
	}
	links, err := cfg.Links()
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "node %s, %d link(s), udp port %d\n", node, len(links), cfg.Ring.UDPPort)
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "DEVICE\tLOCAL\tHELPER")
	for _, l := range links {
		fmt.Fprintf(w, "%s\t%s\t%s %s\n", l.Device, l.LocalAddr, cfg.Ring.Helper, strings.Join(cfg.Ring.HelperOptions, " "))
	}
	w.Flush()
	return cli.WriteOut(buf.Bytes())
}
