package main

import (
	"context"
	"os"

	"github.com/fatih/color"
	"github.com/urfave/cli/v3"

	"github.com/secaudit/secaudit-go/internal/app"
)

func main() {
	ctx := context.Background()

	appl := &cli.Command{
		Name:    "secaudit",
		Usage:   "Android security audit assistant",
		Version: app.Version,
		Commands: []*cli.Command{
			serveCommand(),
			hexdumpCommand(),
			auditCodeCommand(),
			fridaCommand(),
		},
	}

	if err := appl.Run(ctx, os.Args); err != nil {
		color.New(color.FgRed).Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
