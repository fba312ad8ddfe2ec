package main

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/panbanda/acminer/internal/output"
	"github.com/panbanda/acminer/internal/service/mining"
)

func mineCmd() *cli.Command {
	return &cli.Command{
		Name:  "mine",
		Usage: "Build and persist the definition-use graphs of a program's entry points",
		Flags: []cli.Flag{
			programFlag(),
			&cli.StringSliceFlag{
				Name:    "entry",
				Aliases: []string{"e"},
				Usage:   "Entry point signature (repeatable; default: entry points declared in the program)",
			},
			&cli.StringFlag{
				Name:  "out",
				Usage: "Database path (default from config)",
			},
			&cli.BoolFlag{
				Name:    "definitions",
				Aliases: []string{"d"},
				Usage:   "Include the definition strings of every start",
			},
		},
		Action: runMineCmd,
	}
}

func runMineCmd(c *cli.Context) error {
	e := getEnv(c)
	p, err := e.svc.LoadProgram(c.String("program"))
	if err != nil {
		return err
	}

	aliases := e.tracker(c, "Assigning aliases", len(p.Methods()))
	entries := c.StringSlice("entry")
	total := len(entries)
	if total == 0 {
		total = len(p.EntryPoints())
	}
	mined := e.tracker(c, "Mining", total)
	m, err := e.svc.Mine(c.Context, p, mining.MineOptions{
		Entries:       entries,
		OnAliasMethod: aliases.Method,
		OnEntry:       mined.Entry,
	})
	aliases.FinishSuccess()
	if err != nil {
		mined.FinishError(err)
		return err
	}
	if m.Cached {
		mined.FinishSkipped("cached")
	} else {
		mined.FinishSuccess()
	}

	out := c.String("out")
	if out == "" {
		out = e.cfg.Store.Path
	}
	if err := e.svc.Save(m, out); err != nil {
		return err
	}

	withDefs := c.Bool("definitions")
	var sums []mining.EntrySummary
	for _, g := range m.Graphs {
		sums = append(sums, mining.Summarize(g, withDefs))
	}
	failed := make(map[string]error, len(m.Failures))
	for _, f := range m.Failures {
		failed[f.Entry] = f.Err
	}
	sums = append(sums, mining.Failed(failed)...)

	formatter, err := e.formatter(c)
	if err != nil {
		return err
	}
	defer formatter.Close()

	if err := formatter.Output(summaryReport("Mined entry points", sums, formatter.Colored(), withDefs)); err != nil {
		return err
	}
	if formatter.Format() == output.FormatText {
		fmt.Fprintln(formatter.Writer())
		formatter.Info("Database written to %s", out)
		for _, f := range m.Failures {
			formatter.Warning("%s: %v", f.Entry, f.Err)
		}
	}
	return nil
}

// summaryReport renders entry summaries as a table followed, when
// withDefs is set, by one section per entry with its definitions.
func summaryReport(title string, sums []mining.EntrySummary, colored, withDefs bool) output.Renderable {
	rows := make([][]string, 0, len(sums))
	starts, ok := 0, 0
	for _, s := range sums {
		count := s.Resolutions
		if colored {
			count = output.CountColor(s.Resolutions, s.Resolutions)
		}
		status := "ok"
		if s.Error != "" {
			status = truncate(s.Error, 60)
		}
		rows = append(rows, []string{
			s.Entry,
			fmt.Sprintf("%d", s.Starts),
			fmt.Sprintf("%d", s.Nodes),
			fmt.Sprintf("%d", s.Edges),
			fmt.Sprintf("%d", s.InlineConstants),
			fmt.Sprintf("%d", s.Cycles),
			count,
			status,
		})
		starts += s.Starts
		if s.Error == "" {
			ok++
		}
	}
	table := output.NewTable(title,
		[]string{"Entry", "Starts", "Nodes", "Edges", "Inline", "Cycles", "Resolutions", "Status"},
		rows,
		[]string{fmt.Sprintf("Entries: %d", len(sums)), fmt.Sprintf("%d", starts), "", "", "", "", "", fmt.Sprintf("OK: %d", ok)},
		struct {
			Entries []mining.EntrySummary `json:"entries" toon:"entries"`
		}{sums},
	)
	if !withDefs {
		return table
	}

	report := &output.Report{Sections: []output.Renderable{table}, Data: table.Data}
	for _, s := range sums {
		if len(s.Definitions) == 0 {
			continue
		}
		report.Sections = append(report.Sections, definitionsSection(s))
	}
	return report
}

func definitionsSection(s mining.EntrySummary) *output.Section {
	sec := &output.Section{Title: s.Entry}
	for _, d := range s.Definitions {
		sec.Blocks = append(sec.Blocks, output.Block{
			Heading: fmt.Sprintf("%s (%s, %s resolutions)", d.Stmt, d.Source, d.Resolutions),
			Lines:   d.Definitions,
		})
	}
	return sec
}
