package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/joshp123/solarcloud/internal/config"
	"github.com/joshp123/solarcloud/internal/sink"
)

func historyMain(args []string) {
	flags := flag.NewFlagSet("history", flag.ExitOnError)
	configPath := flags.String("config", envOrDefault("SOLARCLOUD_CONFIG", config.DefaultPath), "Path to config.yaml")
	plantID := flags.String("plant", "", "Plant id")
	code := flags.String("code", "", "Measure point code, e.g. daily_yield")
	limit := flags.Int("limit", 50, "Maximum rows")
	jsonOut := flags.Bool("json", false, "Output JSON")
	_ = flags.Parse(args)

	if *plantID == "" || *code == "" {
		usage()
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fatal("history", err)
	}
	if cfg.Sinks == nil || cfg.Sinks.SQLite == nil {
		fatal("history", fmt.Errorf("sinks.sqlite is not configured"))
	}

	store, err := sink.NewSQLiteSink(cfg.Sinks.SQLite.Path)
	if err != nil {
		fatal("history", err)
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	rows, err := store.History(ctx, *plantID, *code, *limit)
	if err != nil {
		fatal("history", err)
	}

	if *jsonOut {
		payload, err := jsoniter.ConfigCompatibleWithStandardLibrary.MarshalIndent(rows, "", "  ")
		if err != nil {
			fatal("history", err)
		}
		fmt.Println(string(payload))
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "COLLECTED\tVALUE\tUNIT\tRUN")
	for _, row := range rows {
		unit := ""
		if row.Unit != nil {
			unit = *row.Unit
		}
		value := "-"
		if row.Value != nil {
			value = fmt.Sprint(row.Value)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", row.CollectedAt.Format(time.RFC3339), value, unit, row.RunID)
	}
	_ = w.Flush()
}
