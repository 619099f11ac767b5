package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/acto-dev/ajax/internal/cmd"
)

var (
	executeCmd  = cmd.Execute
	mapExitCode = cmd.ExitCode
	terminate   = os.Exit
)

func run(ctx context.Context, args []string) int {
	return mapExitCode(executeCmd(ctx, args))
}

func main() {
	// An interrupt cancels in-flight requests instead of killing the process.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:])
	stop()
	terminate(code)
}
