// Command kasbook is the operator CLI for the print-shop cash book.
package main

import (
	"fmt"
	"os"

	"go.uber.org/multierr"

	"kasbook/internal/cli"
)

func main() {
	ctx, stop := cli.GracefulShutdown()
	defer stop()

	root, closeApp := newRootCmd()
	err := root.ExecuteContext(ctx)
	if err = multierr.Append(err, closeApp()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}
