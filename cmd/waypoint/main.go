// waypoint serves the report-analysis workflow behind approval gates.
//
// Usage:
//
//	waypoint serve   [--config=<file>] [--store=<driver>] [--dsn=<dsn>] [--addr=<addr>]
//	waypoint migrate [--config=<file>] [--store=<driver>] [--dsn=<dsn>]
//	waypoint nodes   [--gates=<node,...>]
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
