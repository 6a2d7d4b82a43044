package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	jsoniter "github.com/json-iterator/go"
)

type outputMode struct {
	json bool
}

func (o outputMode) printJSON(value any) {
	data, err := jsoniter.ConfigCompatibleWithStandardLibrary.MarshalIndent(value, "", "  ")
	if err != nil {
		fatal("format json", err)
	}
	fmt.Println(string(data))
}

func (o outputMode) table(rows [][]string) {
	w := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
	for _, row := range rows {
		fmt.Fprintln(w, strings.Join(row, "\t"))
	}
	_ = w.Flush()
}
