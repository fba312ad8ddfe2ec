package main

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/panbanda/acminer/internal/output"
	"github.com/panbanda/acminer/internal/service/mining"
	"github.com/panbanda/acminer/pkg/defuse"
)

func reinterpretCmd() *cli.Command {
	return &cli.Command{
		Name:      "reinterpret",
		Usage:     "Rewrite a database under another receiver policy",
		ArgsUsage: "[DATABASE]",
		Description: `Reloads the database against the program and re-interns every node with
call and field receivers kept or dropped. Dropping receivers prunes the
edges through them. Keeping receivers on a database mined without them
leaves the receiver uses unresolved; mine again to resolve them.`,
		Flags: []cli.Flag{
			programFlag(),
			&cli.BoolFlag{
				Name:  "keep-receiver",
				Usage: "Keep call and field receivers as operands (default: drop them)",
			},
			&cli.StringFlag{
				Name:  "out",
				Usage: "Database path (default: overwrite DATABASE)",
			},
			&cli.BoolFlag{
				Name:    "definitions",
				Aliases: []string{"d"},
				Usage:   "Include the definition strings of every start",
			},
		},
		Action: runReinterpretCmd,
	}
}

func runReinterpretCmd(c *cli.Context) error {
	e, p, res, err := reload(c)
	if err != nil {
		return err
	}

	var graphs []*defuse.Graph
	for _, entry := range res.Entries() {
		if g, ok := res.Graphs[entry]; ok {
			graphs = append(graphs, g)
		}
	}
	if len(graphs) == 0 {
		return usageError("no graph of %s binds to the program", e.dbArg(c))
	}
	m, err := e.svc.Reinterpret(p, graphs, c.Bool("keep-receiver"))
	if err != nil {
		return err
	}

	out := c.String("out")
	if out == "" {
		out = e.dbArg(c)
	}
	if err := e.svc.Save(m, out); err != nil {
		return err
	}

	withDefs := c.Bool("definitions")
	var sums []mining.EntrySummary
	for _, g := range m.Graphs {
		sums = append(sums, mining.Summarize(g, withDefs))
	}
	sums = append(sums, mining.Failed(res.Failures)...)

	formatter, err := e.formatter(c)
	if err != nil {
		return err
	}
	defer formatter.Close()

	if err := formatter.Output(summaryReport("Reinterpreted entry points", sums, formatter.Colored(), withDefs)); err != nil {
		return err
	}
	if formatter.Format() == output.FormatText {
		fmt.Fprintln(formatter.Writer())
		formatter.Info("Database written to %s", out)
		for _, entry := range res.Entries() {
			if err, ok := res.Failures[entry]; ok {
				formatter.Warning("%s was dropped: %v", entry, err)
			}
		}
	}
	return nil
}
