package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/frobware/go-pppring/store/sqlite"
)

// EventsCmd lists journalled link transitions, newest first.
type EventsCmd struct {
	Device string `name:"device" help:"Only show transitions for this serial port."`
	Limit  int    `name:"limit" short:"n" help:"Maximum number of transitions (0 for all)." default:"50"`
	Output string `name:"output" short:"o" help:"Output format: table or json." default:"table" enum:"table,json"`
}

type eventJSON struct {
	RunID  string    `json:"run_id"`
	Device string    `json:"device"`
	From   string    `json:"from"`
	To     string    `json:"to"`
	Reason string    `json:"reason"`
	PID    int       `json:"pid,omitempty"`
	At     time.Time `json:"at"`
}

// Run executes the events command.
func (c *EventsCmd) Run(cli *CLI, ctx context.Context) error {
	logger, err := cli.Logger()
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	dirs, err := cli.RuntimeDirs()
	if err != nil {
		return err
	}

	st, err := sqlite.New(ctx, dirs.DBPath(), logger)
	if err != nil {
		return fmt.Errorf("failed to open journal: %w", err)
	}
	defer st.Close()

	events, err := st.List(ctx, sqlite.ListOptions{Device: c.Device, Limit: c.Limit})
	if err != nil {
		return err
	}
	if len(events) == 0 {
		return cli.PrintOut("No transitions recorded\n")
	}

	out, err := formatEvents(events, c.Output)
	if err != nil {
		return err
	}
	return cli.WriteOut(out)
}

func formatEvents(events []sqlite.Event, format string) ([]byte, error) {
	if format == "json" {
		rows := make([]eventJSON, 0, len(events))
		for _, e := range events {
			rows = append(rows, eventJSON{
				RunID:  e.RunID,
				Device: e.Device,
				From:   e.From.String(),
				To:     e.To.String(),
				Reason: e.Reason,
				PID:    e.PID,
				At:     e.At,
			})
		}
		out, err := json.MarshalIndent(rows, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("failed to marshal result: %w", err)
		}
		return append(out, '\n'), nil
	}

	var buf bytes.Buffer
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tDEVICE\tFROM\tTO\tREASON\tPID")
	for _, e := range events {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\n",
			e.At.Format(time.RFC3339), e.Device, e.From, e.To, e.Reason, e.PID)
	}
	w.Flush()
	return buf.Bytes(), nil
}
