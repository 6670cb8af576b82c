package scheduler

import (
	"strings"
	"time"

	"guestflow/internal/types"
)

// countryZones maps ISO 3166-1 alpha-2 country codes to a representative IANA
// zone. Used when an organization has no explicit timezone configured. The
// table covers the markets the platform operates in; anything else falls back
// to UTC.
var countryZones = map[string]string{
	"AR": "America/Argentina/Buenos_Aires",
	"BO": "America/La_Paz",
	"BR": "America/Sao_Paulo",
	"CL": "America/Santiago",
	"CO": "America/Bogota",
	"CR": "America/Costa_Rica",
	"CU": "America/Havana",
	"DO": "America/Santo_Domingo",
	"EC": "America/Guayaquil",
	"ES": "Europe/Madrid",
	"GB": "Europe/London",
	"GT": "America/Guatemala",
	"HN": "America/Tegucigalpa",
	"MX": "America/Mexico_City",
	"NI": "America/Managua",
	"PA": "America/Panama",
	"PE": "America/Lima",
	"PY": "America/Asuncion",
	"SV": "America/El_Salvador",
	"US": "America/New_York",
	"UY": "America/Montevideo",
	"VE": "America/Caracas",
}

// ZoneForCountry returns the IANA zone name for a country code.
func ZoneForCountry(code string) (string, bool) {
	tz, ok := countryZones[strings.ToUpper(code)]
	return tz, ok
}

// orgLocation resolves the organization's time.Location: explicit timezone
// first, then the country table, then UTC.
func orgLocation(org *types.Organization) *time.Location {
	if org.Timezone != "" {
		if loc, err := time.LoadLocation(org.Timezone); err == nil {
			return loc
		}
	}
	if tz, ok := ZoneForCountry(org.CountryCode); ok {
		if loc, err := time.LoadLocation(tz); err == nil {
			return loc
		}
	}
	return time.UTC
}

// localDayStart returns midnight of t's calendar day in loc. time.Date in an
// explicit location keeps this correct across DST transitions.
func localDayStart(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
}
