package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"

	"google.golang.org/grpc"

	"github.com/joshp123/solarcloud/plugins/isolarcloud"
)

type plantsPayload struct {
	Plants []isolarcloud.Plant `json:"plants"`
}

type realtimePayload struct {
	Plants isolarcloud.RealtimeResult `json:"plants"`
}

type pointsPayload struct {
	MeasurePoints []isolarcloud.MeasurePoint `json:"measure_points"`
}

type supportPayload struct {
	UUID    string `json:"uuid"`
	SetType string `json:"set_type"`
	Support string `json:"support"`
}

func isolarcloudCmd(ctx context.Context, conn *grpc.ClientConn, args []string, jsonOutput bool) {
	out := outputMode{json: jsonOutput}
	if len(args) == 0 {
		isolarcloudUsage()
		os.Exit(2)
	}

	svc := isolarcloud.ServiceName
	switch args[0] {
	case "plants", "list":
		var resp plantsPayload
		invoke(ctx, conn, "isolarcloud plants", svc, "ListPlants", nil, &resp)
		printPlants(out, resp)
	case "details":
		if len(args) < 2 {
			fatal("isolarcloud details", fmt.Errorf("usage: solarcloud-cli isolarcloud details <plant_id>..."))
		}
		var resp plantsPayload
		invoke(ctx, conn, "isolarcloud details", svc, "GetPlantDetails", map[string]any{"plant_ids": args[1:]}, &resp)
		printPlants(out, resp)
	case "realtime":
		flags := flag.NewFlagSet("realtime", flag.ExitOnError)
		points := flags.String("points", "", "Comma-separated measure point codes or ids (default: all)")
		_ = flags.Parse(args[1:])
		req := map[string]any{
			"plant_ids":      flags.Args(),
			"measure_points": splitList(*points),
		}
		var resp realtimePayload
		invoke(ctx, conn, "isolarcloud realtime", svc, "GetRealtimeData", req, &resp)
		if out.json {
			out.printJSON(resp)
			return
		}
		out.table(realtimeRows(resp.Plants))
	case "points":
		var resp pointsPayload
		invoke(ctx, conn, "isolarcloud points", svc, "ListMeasurePoints", nil, &resp)
		if out.json {
			out.printJSON(resp)
			return
		}
		rows := [][]string{{"ID", "CODE"}}
		for _, p := range resp.MeasurePoints {
			rows = append(rows, []string{p.ID, p.Code})
		}
		out.table(rows)
	case "support":
		flags := flag.NewFlagSet("support", flag.ExitOnError)
		setType := flags.String("set-type", "read", "read or update")
		_ = flags.Parse(args[1:])
		if flags.NArg() < 1 {
			fatal("isolarcloud support", fmt.Errorf("usage: solarcloud-cli isolarcloud support [--set-type read|update] <device_uuid>"))
		}
		var resp supportPayload
		invoke(ctx, conn, "isolarcloud support", svc, "CheckSupport", map[string]any{"uuid": flags.Arg(0), "set_type": *setType}, &resp)
		if out.json {
			out.printJSON(resp)
			return
		}
		fmt.Printf("%s (%s): %s\n", resp.UUID, resp.SetType, resp.Support)
	default:
		isolarcloudUsage()
		os.Exit(2)
	}
}

func printPlants(out outputMode, resp plantsPayload) {
	if out.json {
		out.printJSON(resp)
		return
	}
	rows := [][]string{{"ID", "NAME", "TYPE", "STATUS", "LOCATION"}}
	for _, plant := range resp.Plants {
		rows = append(rows, []string{plant.ID, plant.Name, plant.Type, plant.OnlineStatus, plant.Location})
	}
	out.table(rows)
}

func realtimeRows(result isolarcloud.RealtimeResult) [][]string {
	rows := [][]string{{"PLANT", "CODE", "VALUE", "UNIT"}}
	plantIDs := make([]string, 0, len(result))
	for id := range result {
		plantIDs = append(plantIDs, id)
	}
	sort.Strings(plantIDs)
	for _, plantID := range plantIDs {
		readings := result[plantID]
		codes := make([]string, 0, len(readings))
		for code := range readings {
			codes = append(codes, code)
		}
		sort.Strings(codes)
		for _, code := range codes {
			reading := readings[code]
			value := "-"
			if reading.Value != nil {
				value = fmt.Sprint(reading.Value)
			}
			unit := ""
			if reading.Unit != nil {
				unit = *reading.Unit
			}
			rows = append(rows, []string{plantID, code, value, unit})
		}
	}
	return rows
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func isolarcloudUsage() {
	fmt.Println("solarcloud-cli isolarcloud <command>")
	fmt.Println("")
	fmt.Println("Commands:")
	fmt.Println("  plants")
	fmt.Println("  details <plant_id>...")
	fmt.Println("  realtime [--points daily_yield,power] [plant_id...]")
	fmt.Println("  points")
	fmt.Println("  support [--set-type read|update] <device_uuid>")
}
