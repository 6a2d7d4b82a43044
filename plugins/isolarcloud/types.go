package isolarcloud

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Reading is one measure point value for one plant.
type Reading struct {
	ID    string  `json:"id"`
	Code  string  `json:"code"`
	Value any     `json:"value"`
	Unit  *string `json:"unit"`
	Name  *string `json:"name"`
}

// Float returns the reading as a number when the vendor sent a numeric value.
func (r Reading) Float() (float64, bool) {
	v, ok := r.Value.(float64)
	return v, ok
}

// PointInfo is the vendor's description of a point, scoped to one response.
type PointInfo struct {
	Unit *string
	Name *string
}

// PointCatalog maps numeric point ids to their descriptions.
type PointCatalog map[string]PointInfo

// RealtimeResult maps plant id to readings keyed by measure point code.
type RealtimeResult map[string]map[string]Reading

// Plant is a power station row from the plant list or plant detail endpoints.
type Plant struct {
	ID           string         `json:"ps_id"`
	Name         string         `json:"ps_name"`
	Type         string         `json:"ps_type,omitempty"`
	Location     string         `json:"ps_location,omitempty"`
	OnlineStatus string         `json:"online_status,omitempty"`
	InstallDate  string         `json:"install_date,omitempty"`
	Latitude     *float64       `json:"latitude,omitempty"`
	Longitude    *float64       `json:"longitude,omitempty"`
	Raw          map[string]any `json:"-"`
}

// SetType selects the parameter class a capability check asks about.
type SetType int

const (
	SetTypeUpdate SetType = 0
	SetTypeRead   SetType = 2
)

// Support is the outcome of a capability check. The vendor answers with "1" or "0";
// anything else is kept as SupportUnknown instead of being folded into a boolean.
type Support int

const (
	SupportUnknown Support = iota
	Supported
	Unsupported
)

func (s Support) String() string {
	switch s {
	case Supported:
		return "supported"
	case Unsupported:
		return "unsupported"
	default:
		return "unknown"
	}
}

func parsePlant(row map[string]any) Plant {
	plant := Plant{
		ID:           parseString(row["ps_id"]),
		Name:         parseString(row["ps_name"]),
		Type:         parseString(row["ps_type"]),
		Location:     parseString(row["ps_location"]),
		OnlineStatus: parseString(row["online_status"]),
		InstallDate:  parseString(row["install_date"]),
		Raw:          row,
	}
	if v, ok := parseFloat(row["latitude"]); ok {
		plant.Latitude = &v
	}
	if v, ok := parseFloat(row["longitude"]); ok {
		plant.Longitude = &v
	}
	return plant
}

// coerceValue turns a raw point payload into a float when it parses as one, keeps the
// original text otherwise, and maps an absent payload to nil.
func coerceValue(raw any) any {
	switch typed := raw.(type) {
	case nil:
		return nil
	case string:
		if v, ok := parseFiniteFloat(typed); ok {
			return v
		}
		return typed
	case json.Number:
		if v, ok := parseFiniteFloat(typed.String()); ok {
			return v
		}
		return typed.String()
	case float64:
		return typed
	case float32:
		return float64(typed)
	case int:
		return float64(typed)
	case int64:
		return float64(typed)
	case bool:
		if typed {
			return float64(1)
		}
		return float64(0)
	}
	return fmt.Sprint(raw)
}

// parseFiniteFloat rejects NaN, infinities and values that overflow float64, so
// text like "1e400" stays text.
func parseFiniteFloat(text string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.TrimSpace(text), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

func parseFloat(value any) (float64, bool) {
	switch typed := value.(type) {
	case float64:
		return typed, true
	case json.Number:
		return parseFiniteFloat(typed.String())
	case int:
		return float64(typed), true
	case int64:
		return float64(typed), true
	case string:
		if typed == "" {
			return 0, false
		}
		return parseFiniteFloat(typed)
	}
	return 0, false
}

// parseString stringifies ids and codes, which the gateway sends either as JSON
// strings or as numbers.
func parseString(value any) string {
	switch typed := value.(type) {
	case nil:
		return ""
	case string:
		return typed
	case json.Number:
		return typed.String()
	case float64:
		return strconv.FormatFloat(typed, 'f', -1, 64)
	case int:
		return strconv.Itoa(typed)
	case int64:
		return strconv.FormatInt(typed, 10)
	case []byte:
		return string(typed)
	}
	return fmt.Sprint(value)
}

func optionalString(value any) *string {
	if value == nil {
		return nil
	}
	s := parseString(value)
	return &s
}
