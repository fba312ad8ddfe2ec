package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/panbanda/acminer/internal/mcpserver"
)

func mcpCmd() *cli.Command {
	return &cli.Command{
		Name:  "mcp",
		Usage: "Start the MCP server over stdio",
		Description: `Exposes the count_resolutions and show_definitions tools to LLM
clients. Configure it in the client's MCP settings, for example:

  {"mcpServers": {"acminer": {"command": "acminer", "args": ["mcp"]}}}`,
		Action: func(c *cli.Context) error {
			return mcpserver.NewServer(version, getEnv(c).svc).Run(c.Context)
		},
		Subcommands: []*cli.Command{
			{
				Name:  "manifest",
				Usage: "Write the MCP registry manifest (server.json)",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "out",
						Usage: "Manifest path (default: stdout)",
					},
					&cli.StringFlag{
						Name:  "image",
						Usage: "OCI repository of the published image, without tag",
					},
				},
				Action: runManifestCmd,
			},
		},
	}
}

func runManifestCmd(c *cli.Context) error {
	data, err := mcpserver.GenerateManifest(mcpserver.ManifestOptions{
		Version: version,
		Image:   c.String("image"),
	})
	if err != nil {
		return usageError("%v", err)
	}

	out := c.String("out")
	if out == "" {
		_, err := c.App.Writer.Write(data)
		return err
	}
	if err := os.WriteFile(out, data, 0o644); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	fmt.Fprintf(c.App.Writer, "Wrote %s\n", out)
	return nil
}
