package main

import (
	"bytes"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/panbanda/acminer/internal/output"
	"github.com/panbanda/acminer/internal/service/mining"
	"github.com/panbanda/acminer/pkg/store"
)

func countCmd() *cli.Command {
	return &cli.Command{
		Name:      "count",
		Usage:     "Count resolutions from a database or a text dump without a program",
		ArgsUsage: "FILE",
		Action:    runCountCmd,
	}
}

func runCountCmd(c *cli.Context) error {
	if c.Args().Len() != 1 {
		return usageError("count expects exactly one FILE argument")
	}
	e := getEnv(c)
	path := c.Args().First()

	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var starts []mining.StartSummary
	if bytes.HasPrefix(bytes.TrimSpace(data), []byte("{")) {
		var opts []store.ReadOption
		if !e.cfg.Store.ValidateSchema {
			opts = append(opts, store.WithoutSchema())
		}
		doc, err := store.Read(bytes.NewReader(data), opts...)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		sums, err := mining.CountDocument(doc)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		for _, s := range sums {
			starts = append(starts, s.Definitions...)
		}
	} else {
		starts, err = mining.CountDump(bytes.NewReader(data))
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
	}

	formatter, err := e.formatter(c)
	if err != nil {
		return err
	}
	defer formatter.Close()

	rows := make([][]string, 0, len(starts))
	for i := range starts {
		count := starts[i].Resolutions
		if formatter.Colored() {
			count = output.CountColor(count, count)
		}
		rows = append(rows, []string{starts[i].Stmt, starts[i].Source, count})
		starts[i].Definitions = nil
	}
	return formatter.Output(output.NewTable("Resolutions", []string{"Stmt", "Source", "Resolutions"}, rows, nil,
		struct {
			Starts []mining.StartSummary `json:"starts" toon:"starts"`
		}{starts}))
}
