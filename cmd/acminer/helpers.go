package main

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/fatih/color"
	"github.com/urfave/cli/v2"

	"github.com/panbanda/acminer/internal/cache"
	"github.com/panbanda/acminer/internal/logging"
	"github.com/panbanda/acminer/internal/output"
	"github.com/panbanda/acminer/internal/progress"
	"github.com/panbanda/acminer/internal/service/mining"
	"github.com/panbanda/acminer/pkg/config"
)

const envKey = "env"

// env is the per-invocation state shared by every command.
type env struct {
	cfg    *config.Config
	source string
	log    *slog.Logger
	svc    *mining.Service
}

// setup loads the configuration, applies the global flags and builds the
// logger and the mining service.
func setup(c *cli.Context) (*env, error) {
	e := &env{}
	path := c.String("config")
	if path == "" {
		path = config.Find()
	}
	if path != "" {
		cfg, err := config.Load(path)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		e.cfg, e.source = cfg, path
	} else {
		e.cfg = config.DefaultConfig()
	}

	if f := c.String("format"); f != "" {
		e.cfg.Output.Format = string(output.ParseFormat(f))
	}
	if c.Bool("no-cache") {
		e.cfg.Cache.Enabled = false
	}

	log, err := logging.New(c.App.ErrWriter, e.cfg.Log.Level, e.cfg.Log.JSON, c.Bool("verbose"))
	if err != nil {
		return nil, err
	}
	e.log = log

	opts := []mining.Option{mining.WithConfig(e.cfg), mining.WithLogger(log)}
	if e.cfg.Cache.Enabled {
		ch, err := cache.New(e.cfg.Cache.Dir, e.cfg.Cache.TTL, true)
		if err != nil {
			log.Warn("cache disabled", "dir", e.cfg.Cache.Dir, "error", err)
		} else {
			opts = append(opts, mining.WithCache(ch))
		}
	}
	e.svc = mining.New(opts...)
	return e, nil
}

func getEnv(c *cli.Context) *env {
	return c.App.Metadata[envKey].(*env)
}

// formatter returns the output formatter selected by the global flags.
func (e *env) formatter(c *cli.Context) (*output.Formatter, error) {
	format := output.ParseFormat(e.cfg.Output.Format)
	colored := e.cfg.Output.Color && !color.NoColor
	if path := c.String("output"); path != "" {
		return output.NewFormatter(format, path, false)
	}
	return output.NewWriterFormatter(format, c.App.Writer, colored), nil
}

// showProgress reports whether progress bars should be drawn.
func (e *env) showProgress(c *cli.Context) bool {
	return e.cfg.Output.Color && !color.NoColor && !c.Bool("verbose")
}

func (e *env) tracker(c *cli.Context, label string, total int) *progress.Tracker {
	var w io.Writer = io.Discard
	if e.showProgress(c) {
		w = c.App.ErrWriter
	}
	return progress.NewTrackerTo(w, label, total)
}

// programFlag is the --program flag shared by the graph commands.
func programFlag() cli.Flag {
	return &cli.StringFlag{
		Name:     "program",
		Aliases:  []string{"p"},
		Usage:    "Program file (YAML)",
		Required: true,
	}
}

// dbArg returns the database path argument, defaulting to the configured
// store path.
func (e *env) dbArg(c *cli.Context) string {
	if c.Args().Len() > 0 {
		return c.Args().First()
	}
	return e.cfg.Store.Path
}

// truncate shortens a string to maxLen, adding "..." if truncated.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen < 4 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
