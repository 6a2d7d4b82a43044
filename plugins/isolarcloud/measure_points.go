package isolarcloud

import (
	"sort"

	mapset "github.com/deckarep/golang-set/v2"
)

// MeasurePoint pairs a vendor numeric point id with its readable code.
type MeasurePoint struct {
	ID   string `json:"id"`
	Code string `json:"code"`
}

// Units are not tracked here; the point dictionary returned with each response
// carries them.
var registeredPoints = []MeasurePoint{
	{"83022", "daily_yield"},
	{"83024", "total_yield"},
	{"83033", "power"},
	{"83019", "power_fraction"},
	{"83006", "meter_daily_yield"},
	{"83020", "meter_total_yield"},
	{"83011", "meter_e_daily_consumption"},
	{"83021", "accumulative_power_consumption_by_meter"},
	{"83032", "meter_ac_power"},
	{"83007", "meter_pr"},
	{"83002", "inverter_ac_power"},
	{"83009", "inverter_daily_yield"},
	{"83004", "inverter_total_yield"},
	{"83012", "p_radiation_h"},
	{"83013", "daily_irradiation"},
	{"83023", "plant_pr"},
	{"83005", "daily_equivalent_hours"},
	{"83025", "plant_equivalent_hours"},
	{"83018", "daily_yield_theoretical"},
	{"83001", "inverter_ac_power_normalization"},
	{"83008", "daily_equivalent_hours_of_inverter"},
	{"83010", "inverter_pr"},
	{"83016", "plant_ambient_temperature"},
	{"83017", "plant_module_temperature"},
	{"83046", "pcs_total_active_power"},
	{"83052", "total_load_active_power"},
	{"83067", "total_active_power_of_pv"},
	{"83097", "daily_direct_energy_consumption"},
	{"83100", "total_direct_energy_consumption"},
	{"83102", "energy_purchased_today"},
	{"83105", "total_purchased_energy"},
	{"83106", "load_power"},
	{"83118", "daily_load_consumption"},
	{"83124", "total_load_consumption"},
	{"83119", "daily_feed_in_energy_pv"},
	{"83072", "feed_in_energy_today"},
	{"83075", "feed_in_energy_total"},
	{"83252", "battery_level_soc"},
	{"83129", "battery_soc"},
	{"83232", "total_field_soc"},
	{"83233", "total_field_maximum_rechargeable_power"},
	{"83234", "total_field_maximum_dischargeable_power"},
	{"83235", "total_field_chargeable_energy"},
	{"83236", "total_field_dischargeable_energy"},
	{"83237", "total_field_energy_storage_maximum_reactive_power"},
	{"83238", "total_field_energy_storage_active_power"},
	{"83239", "total_field_reactive_power"},
	{"83240", "total_field_power_factor"},
	{"83243", "daily_field_charge_capacity"},
	{"83241", "total_field_charge_capacity"},
	{"83244", "daily_field_discharge_capacity"},
	{"83242", "total_field_discharge_capacity"},
	{"83548", "total_number_of_charge_discharge"},
	{"83549", "grid_active_power"},
	{"83419", "daily_highest_inverter_power_inverter_installed_capacity"},
	{"83317", "power_forecast"},
	{"83318", "planned_es_charging_discharging_power"},
	{"83319", "planned_es_soc"},
	{"83320", "planned_charging_power"},
	{"83321", "planned_discharging_power"},
	{"83322", "ess_daily_charge_ems"},
	{"83324", "energy_storage_cumulative_charge"},
	{"83323", "ess_daily_discharge_ems"},
	{"83325", "cumulative_discharge"},
	{"83327", "energy_storage_remaining_charge"},
	{"83326", "energy_storage_active_power_ems"},
	{"83328", "grid_active_power_ems"},
	{"83329", "pv_active_power_ems"},
	{"83330", "load_active_power_ems"},
	{"83331", "daily_pv_yield_ems"},
	{"83332", "total_pv_yield"},
	{"83334", "energy_storage_soc_ems"},
	{"83335", "energy_storage_remaining_charge_ems"},
}

var (
	codeByID = make(map[string]string, len(registeredPoints))
	idByCode = make(map[string]string, len(registeredPoints))
)

func init() {
	for _, point := range registeredPoints {
		if _, dup := codeByID[point.ID]; dup {
			panic("isolarcloud: duplicate measure point id " + point.ID)
		}
		if _, dup := idByCode[point.Code]; dup {
			panic("isolarcloud: duplicate measure point code " + point.Code)
		}
		codeByID[point.ID] = point.Code
		idByCode[point.Code] = point.ID
	}
}

// CodeOf returns the readable code for a numeric point id, or the id itself when the
// point is not registered.
func CodeOf(id string) string {
	if code, ok := codeByID[id]; ok {
		return code
	}
	return id
}

// IDOf returns the numeric point id registered for code.
func IDOf(code string) (string, error) {
	if id, ok := idByCode[code]; ok {
		return id, nil
	}
	return "", &UnknownMeasurePointError{Name: code}
}

// ResolveID maps a caller-supplied measure point name to a numeric id. Names made
// only of digits are treated as raw vendor ids and returned unchanged.
func ResolveID(name string) (string, error) {
	if isDigits(name) {
		return name, nil
	}
	return IDOf(name)
}

// AllIDs returns a fresh set holding every registered point id.
func AllIDs() mapset.Set[string] {
	ids := mapset.NewThreadUnsafeSetWithSize[string](len(registeredPoints))
	for _, point := range registeredPoints {
		ids.Add(point.ID)
	}
	return ids
}

// MeasurePoints lists the registry ordered by numeric id.
func MeasurePoints() []MeasurePoint {
	out := make([]MeasurePoint, len(registeredPoints))
	copy(out, registeredPoints)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func isDigits(value string) bool {
	if value == "" {
		return false
	}
	for i := 0; i < len(value); i++ {
		if value[i] < '0' || value[i] > '9' {
			return false
		}
	}
	return true
}
