package main

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/panbanda/acminer/internal/output"
	"github.com/panbanda/acminer/internal/service/mining"
	"github.com/panbanda/acminer/pkg/ir"
	"github.com/panbanda/acminer/pkg/store"
)

func showCmd() *cli.Command {
	return &cli.Command{
		Name:      "show",
		Usage:     "Reload a database against a program and print its definitions",
		ArgsUsage: "[DATABASE]",
		Flags: []cli.Flag{
			programFlag(),
			&cli.StringSliceFlag{
				Name:    "entry",
				Aliases: []string{"e"},
				Usage:   "Only show these entry points (repeatable)",
			},
		},
		Action: runShowCmd,
	}
}

func verifyCmd() *cli.Command {
	return &cli.Command{
		Name:      "verify",
		Usage:     "Check that every graph of a database still binds to a program",
		ArgsUsage: "[DATABASE]",
		Flags:     []cli.Flag{programFlag()},
		Action:    runVerifyCmd,
	}
}

func reload(c *cli.Context) (*env, *ir.Program, *store.Result, error) {
	e := getEnv(c)
	p, err := e.svc.LoadProgram(c.String("program"))
	if err != nil {
		return nil, nil, nil, err
	}
	res, err := e.svc.Reload(p, e.dbArg(c))
	if err != nil {
		return nil, nil, nil, err
	}
	return e, p, res, nil
}

func runShowCmd(c *cli.Context) error {
	e, _, res, err := reload(c)
	if err != nil {
		return err
	}

	only := make(map[string]bool)
	for _, entry := range c.StringSlice("entry") {
		only[entry] = true
	}
	var sums []mining.EntrySummary
	for _, entry := range res.Entries() {
		if len(only) > 0 && !only[entry] {
			continue
		}
		if g, ok := res.Graphs[entry]; ok {
			sums = append(sums, mining.Summarize(g, true))
			continue
		}
		sums = append(sums, mining.Failed(map[string]error{entry: res.Failures[entry]})...)
	}
	if len(sums) == 0 {
		return usageError("no matching entry points in %s", e.dbArg(c))
	}

	formatter, err := e.formatter(c)
	if err != nil {
		return err
	}
	defer formatter.Close()

	if err := formatter.Output(summaryReport("Definitions", sums, formatter.Colored(), true)); err != nil {
		return err
	}
	if res.Stale && formatter.Format() == output.FormatText {
		formatter.Warning("%s was written for a different program", e.dbArg(c))
	}
	return nil
}

type verifyRow struct {
	Entry  string `json:"entry" toon:"entry"`
	Status string `json:"status" toon:"status"`
	Error  string `json:"error,omitempty" toon:"error,omitempty"`
}

func runVerifyCmd(c *cli.Context) error {
	e, _, res, err := reload(c)
	if err != nil {
		return err
	}

	var rows [][]string
	var data []verifyRow
	failed := 0
	for _, entry := range res.Entries() {
		row := verifyRow{Entry: entry, Status: "ok"}
		if err, ok := res.Failures[entry]; ok {
			row.Status, row.Error = "failed", err.Error()
			failed++
		}
		data = append(data, row)
		rows = append(rows, []string{row.Entry, row.Status, truncate(row.Error, 80)})
	}

	formatter, err := e.formatter(c)
	if err != nil {
		return err
	}
	defer formatter.Close()

	table := output.NewTable("Verification", []string{"Entry", "Status", "Error"}, rows,
		[]string{fmt.Sprintf("Entries: %d", len(rows)), fmt.Sprintf("Failed: %d", failed), ""},
		struct {
			Stale   bool        `json:"stale" toon:"stale"`
			Entries []verifyRow `json:"entries" toon:"entries"`
		}{res.Stale, data})
	if err := formatter.Output(table); err != nil {
		return err
	}

	if failed > 0 {
		return cli.Exit(fmt.Sprintf("%d of %d graphs no longer bind", failed, len(rows)), 1)
	}
	if formatter.Format() == output.FormatText {
		if res.Stale {
			formatter.Warning("program changed since the database was written, but every graph still binds")
		} else {
			formatter.Success("all %d graphs bind", len(rows))
		}
	}
	return nil
}
