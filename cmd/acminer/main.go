package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/urfave/cli/v2"
)

var (
	version = "dev"
	commit  = "none"    //nolint:unused // set via ldflags at build time
	date    = "unknown" //nolint:unused // set via ldflags at build time
)

func newApp(stdout, stderr io.Writer) *cli.App {
	return &cli.App{
		Name:      "acminer",
		Usage:     "Definition-use graphs for mining authorization logic",
		Version:   version,
		Writer:    stdout,
		ErrWriter: stderr,
		Metadata:  make(map[string]interface{}),
		// Exit codes are handled by main so that tests can run the app.
		ExitErrHandler: func(*cli.Context, error) {},
		Description: `acminer walks the code reachable from each entry point of a program,
collects every if/switch statement and builds a graph of the definitions
its values depend on. Nodes are rendered with stable local aliases so
that graphs can be persisted, reloaded against fresh code and compared.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to config file (TOML, YAML, or JSON)",
				EnvVars: []string{"ACMINER_CONFIG"},
			},
			&cli.StringFlag{
				Name:    "format",
				Aliases: []string{"f"},
				Usage:   "Output format: text, json, markdown, toon (default from config)",
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Write output to file",
			},
			&cli.BoolFlag{
				Name:  "no-cache",
				Usage: "Disable caching",
			},
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "Enable verbose output",
			},
		},
		Before: func(c *cli.Context) error {
			e, err := setup(c)
			if err != nil {
				return err
			}
			c.App.Metadata[envKey] = e
			return nil
		},
		Commands: []*cli.Command{
			mineCmd(),
			showCmd(),
			verifyCmd(),
			reinterpretCmd(),
			countCmd(),
			configCmd(),
			mcpCmd(),
		},
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := newApp(os.Stdout, os.Stderr)
	if err := app.RunContext(ctx, os.Args); err != nil {
		if exit, ok := err.(cli.ExitCoder); ok {
			if msg := exit.Error(); msg != "" {
				color.Red("Error: %s", msg)
			}
			os.Exit(exit.ExitCode())
		}
		color.Red("Error: %v", err)
		os.Exit(1)
	}
}

// usageError reports a missing or invalid argument.
func usageError(format string, args ...any) error {
	return cli.Exit(fmt.Sprintf(format, args...), 2)
}
