package main

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/panbanda/acminer/pkg/config"
)

func configCmd() *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "Inspect or create the configuration file",
		Subcommands: []*cli.Command{
			{
				Name:   "show",
				Usage:  "Print the effective configuration as TOML",
				Action: runConfigShowCmd,
			},
			{
				Name:      "init",
				Usage:     "Write the default configuration",
				ArgsUsage: "[PATH]",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "force",
						Usage: "Overwrite an existing file",
					},
				},
				Action: runConfigInitCmd,
			},
		},
	}
}

func runConfigShowCmd(c *cli.Context) error {
	e := getEnv(c)
	data, err := e.cfg.TOML()
	if err != nil {
		return err
	}
	source := e.source
	if source == "" {
		source = "defaults"
	}
	fmt.Fprintf(c.App.Writer, "# source: %s\n%s", source, data)
	return nil
}

func runConfigInitCmd(c *cli.Context) error {
	path := "acminer.toml"
	if c.Args().Len() > 0 {
		path = c.Args().First()
	}
	if err := config.WriteDefault(path, c.Bool("force")); err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "Wrote %s\n", path)
	return nil
}
