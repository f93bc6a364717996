package state

import "strings"

// StateType represents the type of a state variable
type StateType string

const (
	TypeBool   StateType = "bool"
	TypeString StateType = "string"
	TypeNumber StateType = "number"
	TypeJSON   StateType = "json"
)

// StateVariable defines metadata for a state variable
type StateVariable struct {
	Key       string      // Go variable name (e.g., "azanEnabled")
	EntityID  string      // HA entity ID (e.g., "input_boolean.solat_azan_enabled")
	Type      StateType   // bool, string, number, json
	Default   interface{} // Default value
	ReadOnly  bool        // Whether it's read-only from HA
	LocalOnly bool        // If true, only exists in memory, not synced with HA
}

// Keys of the variables the plugins read and write
const (
	KeyAzanEnabled      = "azanEnabled"
	KeyAzanVolume       = "azanVolume"
	KeyReset            = "reset"
	KeyNextPrayer       = "nextPrayer"
	KeyNextPrayerTime   = "nextPrayerTime"
	KeyTimeToNextPrayer = "timeToNextPrayer"
	KeyHijriDate        = "hijriDate"
	KeyTodaySchedule    = "todaySchedule"
	KeyLastAzan         = "lastAzan"
)

// AllVariables contains every helper entity the service owns plus local-only values
var AllVariables = []StateVariable{
	// Booleans
	{Key: KeyAzanEnabled, EntityID: "input_boolean.solat_azan_enabled", Type: TypeBool, Default: false},
	{Key: "azanFajr", EntityID: "input_boolean.solat_azan_fajr", Type: TypeBool, Default: true},
	{Key: "azanDhuhr", EntityID: "input_boolean.solat_azan_dhuhr", Type: TypeBool, Default: true},
	{Key: "azanAsr", EntityID: "input_boolean.solat_azan_asr", Type: TypeBool, Default: true},
	{Key: "azanMaghrib", EntityID: "input_boolean.solat_azan_maghrib", Type: TypeBool, Default: true},
	{Key: "azanIsha", EntityID: "input_boolean.solat_azan_isha", Type: TypeBool, Default: true},
	{Key: KeyReset, EntityID: "input_boolean.solat_reset", Type: TypeBool, Default: false},

	// Numbers
	{Key: KeyAzanVolume, EntityID: "input_number.solat_azan_volume", Type: TypeNumber, Default: 0.7},

	// Text
	{Key: KeyNextPrayer, EntityID: "input_text.solat_next_prayer", Type: TypeString, Default: "", ReadOnly: true},
	{Key: KeyNextPrayerTime, EntityID: "input_text.solat_next_prayer_time", Type: TypeString, Default: "", ReadOnly: true},
	{Key: KeyTimeToNextPrayer, EntityID: "input_text.solat_time_to_next_prayer", Type: TypeString, Default: "", ReadOnly: true},
	{Key: KeyHijriDate, EntityID: "input_text.solat_hijri_date", Type: TypeString, Default: "", ReadOnly: true},
	{Key: "fajrTime", EntityID: "input_text.solat_fajr_time", Type: TypeString, Default: "", ReadOnly: true},
	{Key: "syurukTime", EntityID: "input_text.solat_syuruk_time", Type: TypeString, Default: "", ReadOnly: true},
	{Key: "dhuhrTime", EntityID: "input_text.solat_dhuhr_time", Type: TypeString, Default: "", ReadOnly: true},
	{Key: "asrTime", EntityID: "input_text.solat_asr_time", Type: TypeString, Default: "", ReadOnly: true},
	{Key: "maghribTime", EntityID: "input_text.solat_maghrib_time", Type: TypeString, Default: "", ReadOnly: true},
	{Key: "ishaTime", EntityID: "input_text.solat_isha_time", Type: TypeString, Default: "", ReadOnly: true},

	// JSON - Local Only (not synced with HA)
	{Key: KeyTodaySchedule, EntityID: "", Type: TypeJSON, Default: map[string]interface{}{}, LocalOnly: true},
	{Key: KeyLastAzan, EntityID: "", Type: TypeJSON, Default: map[string]interface{}{}, LocalOnly: true},
}

// AzanSwitchKey returns the key of the per-prayer azan switch, e.g. "azanFajr"
func AzanSwitchKey(prayer string) string {
	if prayer == "" {
		return ""
	}
	return "azan" + strings.ToUpper(prayer[:1]) + prayer[1:]
}

// PrayerTimeKey returns the key holding a prayer's HH:MM text, e.g. "fajrTime"
func PrayerTimeKey(prayer string) string {
	return prayer + "Time"
}

// VariablesByKey creates a map of variables by their key
func VariablesByKey() map[string]StateVariable {
	vars := make(map[string]StateVariable)
	for _, v := range AllVariables {
		vars[v.Key] = v
	}
	return vars
}

// VariablesByEntityID creates a map of variables by their entity ID
func VariablesByEntityID() map[string]StateVariable {
	vars := make(map[string]StateVariable)
	for _, v := range AllVariables {
		if v.LocalOnly {
			continue
		}
		vars[v.EntityID] = v
	}
	return vars
}
