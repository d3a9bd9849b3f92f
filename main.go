package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mrlokans/librarian/internal/cli"
	"github.com/mrlokans/librarian/internal/config"
	"github.com/mrlokans/librarian/internal/entrypoint"
)

// Set with -ldflags "-X main.Version=... -X main.Commit=...".
var (
	Version = "dev"
	Commit  = "unknown"
)

type command struct {
	name    string
	summary string
	run     func(ctx context.Context, cfg *config.Config, args []string) error
}

var commands = []command{
	{"serve", "Start the HTTP server (default)", func(_ context.Context, cfg *config.Config, _ []string) error {
		entrypoint.Run(cfg, Version)
		return nil
	}},
	{"create-staff", "Create a staff account", func(_ context.Context, cfg *config.Config, args []string) error {
		cmd := cli.NewCreateStaffCommand(cfg)
		if err := cmd.ParseFlags(args); err != nil {
			return err
		}
		return cmd.Run()
	}},
	{"overdue-report", "Write the overdue lendings workbook", func(ctx context.Context, cfg *config.Config, args []string) error {
		cmd := cli.NewOverdueReportCommand(cfg)
		if err := cmd.ParseFlags(args); err != nil {
			return err
		}
		return cmd.Run(ctx)
	}},
	{"purge-audit", "Delete audit events past their retention", func(_ context.Context, cfg *config.Config, args []string) error {
		cmd := cli.NewPurgeAuditCommand(cfg)
		if err := cmd.ParseFlags(args); err != nil {
			return err
		}
		return cmd.Run()
	}},
	{"version", "Print the version", func(context.Context, *config.Config, []string) error {
		fmt.Printf("librarian %s (%s)\n", Version, Commit)
		return nil
	}},
}

func main() {
	name, args := "serve", []string(nil)
	if len(os.Args) > 1 {
		name, args = os.Args[1], os.Args[2:]
	}

	if name == "help" || name == "-h" || name == "--help" {
		usage()
		return
	}

	for _, c := range commands {
		if c.name != name {
			continue
		}
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		if name == "serve" {
			// the server installs its own signal handling
			stop()
			ctx = context.Background()
		}
		err := c.run(ctx, config.NewConfig(), args)
		stop()
		exit(err)
		return
	}

	fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", name)
	usage()
	os.Exit(2)
}

func exit(err error) {
	switch {
	case err == nil, errors.Is(err, flag.ErrHelp):
		return
	default:
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: %s <command> [options]\n\nCommands:\n", os.Args[0])
	for _, c := range commands {
		fmt.Fprintf(os.Stderr, "  %-15s %s\n", c.name, c.summary)
	}
	fmt.Fprintf(os.Stderr, "\nRun '%s <command> -h' for the options of a command.\n", os.Args[0])
}
