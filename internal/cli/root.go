package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// Run is the main CLI entry point. It parses args and dispatches to the
// appropriate subcommand, returning a process exit code.
func Run(args []string) int {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if len(args) == 0 {
		return runServer(ctx, nil)
	}

	switch args[0] {
	case "server":
		return runServer(ctx, args[1:])
	case "token":
		return runTokenAdmin(ctx, args[1:], os.Stdout)
	case "version", "--version", "-v":
		printVersion()
		return 0
	case "-h", "--help", "help":
		printUsage()
		return 0
	default:
		return runServer(ctx, args)
	}
}
