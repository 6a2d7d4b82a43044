package isolarcloud

import (
	"context"
	"sort"
)

const (
	realtimePath = "/openapi/platform/getPowerStationRealTimeData"

	// pointKeyPrefix marks the per-point columns in a device_point_list record,
	// e.g. "p83022".
	pointKeyPrefix = 'p'
)

// RealtimeData returns the latest readings for one or more plants in a single
// request. A nil measurePoints requests every registered point; an empty non-nil
// slice sends an empty selection. Names made of
// digits are sent as raw point ids; other names must be registered codes.
//
// The vendor refreshes data every five minutes, so polling faster gains nothing.
func (c *Client) RealtimeData(ctx context.Context, plantIDs []string, measurePoints []string) (RealtimeResult, error) {
	if len(plantIDs) == 0 {
		return nil, ErrNoPlants
	}
	pointIDs, err := resolvePointIDs(measurePoints)
	if err != nil {
		return nil, err
	}

	params := map[string]any{
		"ps_id_list":        append([]string(nil), plantIDs...),
		"point_id_list":     pointIDs,
		"is_get_point_dict": "1",
	}
	c.logger.Debugw("realtime request", "ps_id_list", plantIDs, "point_id_list", pointIDs, "lang", c.lang)

	resp, err := c.call(ctx, realtimePath, params)
	if err != nil {
		return nil, err
	}

	catalog, err := buildCatalog(resp)
	if err != nil {
		return nil, err
	}
	records, err := resp.list("device_point_list", false)
	if err != nil {
		return nil, err
	}

	result := make(RealtimeResult, len(records))
	for _, record := range records {
		plantID := parseString(record["ps_id"])
		if plantID == "" {
			return nil, resp.fail("device_point_list record without ps_id")
		}
		result[plantID] = reshapeRecord(record, pointIDs, catalog)
	}

	c.logger.Debugw("realtime result", "plants", len(result), "result", result)
	return result, nil
}

// RealtimePlant is RealtimeData for a single plant.
func (c *Client) RealtimePlant(ctx context.Context, plantID string, measurePoints []string) (map[string]Reading, error) {
	result, err := c.RealtimeData(ctx, []string{plantID}, measurePoints)
	if err != nil {
		return nil, err
	}
	return result[plantID], nil
}

// resolvePointIDs maps caller names to numeric ids, failing on the first unknown
// name so no request is sent with a partial selection.
func resolvePointIDs(measurePoints []string) ([]string, error) {
	if measurePoints == nil {
		ids := AllIDs().ToSlice()
		sort.Strings(ids)
		return ids, nil
	}
	ids := make([]string, 0, len(measurePoints))
	for _, name := range measurePoints {
		id, err := ResolveID(name)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func buildCatalog(resp response) (PointCatalog, error) {
	entries, err := resp.list("point_dict", true)
	if err != nil {
		return nil, err
	}
	catalog := make(PointCatalog, len(entries))
	for _, entry := range entries {
		id := parseString(entry["point_id"])
		if id == "" {
			continue
		}
		catalog[id] = PointInfo{
			Unit: optionalString(entry["point_unit"]),
			Name: optionalString(entry["point_name"]),
		}
	}
	return catalog, nil
}

// reshapeRecord turns one flat plant record into readings keyed by code. Requested
// points the record leaves out are reported with a nil value.
func reshapeRecord(record map[string]any, requested []string, catalog PointCatalog) map[string]Reading {
	readings := make(map[string]Reading, len(requested))
	seen := make(map[string]bool, len(record))
	for key, raw := range record {
		id, ok := pointIDFromKey(key)
		if !ok {
			continue
		}
		seen[id] = true
		reading := newReading(id, raw, catalog)
		readings[reading.Code] = reading
	}
	for _, id := range requested {
		if seen[id] {
			continue
		}
		reading := newReading(id, nil, catalog)
		if _, ok := readings[reading.Code]; !ok {
			readings[reading.Code] = reading
		}
	}
	return readings
}

func newReading(id string, raw any, catalog PointCatalog) Reading {
	info := catalog[id]
	return Reading{
		ID:    id,
		Code:  CodeOf(id),
		Value: coerceValue(raw),
		Unit:  info.Unit,
		Name:  info.Name,
	}
}

// pointIDFromKey matches record keys of the form "p" followed only by digits.
func pointIDFromKey(key string) (string, bool) {
	if len(key) < 2 || key[0] != pointKeyPrefix {
		return "", false
	}
	id := key[1:]
	if !isDigits(id) {
		return "", false
	}
	return id, true
}
