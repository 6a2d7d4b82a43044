package isolarcloud

import (
	"context"
	"fmt"
	"strings"
)

const (
	plantListPath   = "/openapi/platform/queryPowerStationList"
	plantDetailPath = "/openapi/platform/getPowerStationDetail"
	plantPageSize   = 100
	maxPlantPages   = 50
)

// ListPlants returns every plant accessible to the authorized user.
func (c *Client) ListPlants(ctx context.Context) ([]Plant, error) {
	var plants []Plant
	for page := 1; page <= maxPlantPages; page++ {
		resp, err := c.call(ctx, plantListPath, map[string]any{"page": page, "size": plantPageSize})
		if err != nil {
			return nil, err
		}
		rows, err := resp.list("pageList", false)
		if err != nil {
			return nil, err
		}
		for _, row := range rows {
			plants = append(plants, parsePlant(row))
		}

		total, ok := parseFloat(resp.data["rowCount"])
		if !ok || len(rows) < plantPageSize || len(plants) >= int(total) {
			break
		}
	}
	c.logger.Debugw("list plants", "count", len(plants))
	return plants, nil
}

// PlantDetails returns detail rows for one or more plants.
func (c *Client) PlantDetails(ctx context.Context, plantIDs []string) ([]Plant, error) {
	if len(plantIDs) == 0 {
		return nil, ErrNoPlants
	}
	resp, err := c.call(ctx, plantDetailPath, map[string]any{"ps_ids": strings.Join(plantIDs, ",")})
	if err != nil {
		return nil, err
	}
	rows, err := resp.list("data_list", false)
	if err != nil {
		return nil, err
	}
	plants := make([]Plant, 0, len(rows))
	for _, row := range rows {
		plants = append(plants, parsePlant(row))
	}
	c.logger.Debugw("plant details", "ps_ids", plantIDs, "count", len(plants))
	return plants, nil
}

// ResolvePlants picks the plants a request targets: the requested ids, else the
// configured ids, else every plant on the account.
func (c *Client) ResolvePlants(ctx context.Context, requested []string) ([]string, error) {
	if len(requested) > 0 {
		return requested, nil
	}
	if len(c.plantIDs) > 0 {
		return append([]string(nil), c.plantIDs...), nil
	}

	plants, err := c.ListPlants(ctx)
	if err != nil {
		return nil, err
	}
	if len(plants) == 0 {
		return nil, fmt.Errorf("no plants found; set plant_ids")
	}
	ids := make([]string, 0, len(plants))
	for _, plant := range plants {
		ids = append(ids, plant.ID)
	}
	return ids, nil
}
