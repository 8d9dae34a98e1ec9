// pppring runs a cluster heartbeat ring over serial PPP links.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/alecthomas/kong"

	"github.com/frobware/go-pppring/cmd/pppring/cli"
)

func main() {
	var c cli.CLI
	ctx := context.Background()

	kctx := kong.Parse(&c, append(cli.KongOptions(), kong.BindTo(ctx, (*context.Context)(nil)))...)
	if err := kctx.Run(&c); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
