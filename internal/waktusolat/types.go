package waktusolat

import (
	"fmt"
	"time"
)

// Prayer names as used by the upstream API
const (
	Fajr    = "fajr"
	Syuruk  = "syuruk"
	Dhuhr   = "dhuhr"
	Asr     = "asr"
	Maghrib = "maghrib"
	Isha    = "isha"
)

// Row is one calendar day of a monthly schedule. Prayer fields are Unix
// timestamps in seconds.
type Row struct {
	Day     int    `json:"day"`
	Hijri   string `json:"hijri"`
	Fajr    int64  `json:"fajr"`
	Syuruk  int64  `json:"syuruk"`
	Dhuhr   int64  `json:"dhuhr"`
	Asr     int64  `json:"asr"`
	Maghrib int64  `json:"maghrib"`
	Isha    int64  `json:"isha"`
}

// Timestamps returns the row's non-zero prayer timestamps keyed by prayer name
func (r Row) Timestamps() map[string]int64 {
	all := map[string]int64{
		Fajr:    r.Fajr,
		Syuruk:  r.Syuruk,
		Dhuhr:   r.Dhuhr,
		Asr:     r.Asr,
		Maghrib: r.Maghrib,
		Isha:    r.Isha,
	}
	out := make(map[string]int64, len(all))
	for name, ts := range all {
		if ts != 0 {
			out[name] = ts
		}
	}
	return out
}

// MonthlySchedule is the decoded body of GET /v2/solat/{zone}
type MonthlySchedule struct {
	Zone   string     `json:"zone"`
	Year   int        `json:"year"`
	Month  time.Month `json:"-"`
	Rows   []Row      `json:"prayers"`
	Source string     `json:"-"`
}

// Row returns the entry for the given day of month
func (s *MonthlySchedule) Row(day int) (Row, bool) {
	for _, r := range s.Rows {
		if r.Day == day {
			return r, true
		}
	}
	return Row{}, false
}

// Validate checks that the schedule has rows and that their days are unique
// and exist in the schedule's month
func (s *MonthlySchedule) Validate() error {
	if len(s.Rows) == 0 {
		return fmt.Errorf("no prayer rows")
	}
	daysInMonth := time.Date(s.Year, s.Month+1, 0, 0, 0, 0, 0, time.UTC).Day()
	seen := make(map[int]bool, len(s.Rows))
	for _, r := range s.Rows {
		if r.Day < 1 || r.Day > daysInMonth {
			return fmt.Errorf("day %d outside %04d-%02d", r.Day, s.Year, int(s.Month))
		}
		if seen[r.Day] {
			return fmt.Errorf("duplicate day %d", r.Day)
		}
		seen[r.Day] = true
	}
	return nil
}

// apiResponse mirrors the wire format. The month field is sometimes an
// abbreviated name ("JAN") and sometimes a number, so it is decoded loosely.
type apiResponse struct {
	Zone        string `json:"zone"`
	Year        int    `json:"year"`
	Month       any    `json:"month"`
	MonthNumber int    `json:"month_number"`
	Prayers     *[]Row `json:"prayers"`
}

// ZoneInfo is one entry of GET /zones
type ZoneInfo struct {
	Code   string `json:"jakimCode"`
	Negeri string `json:"negeri"`
	Daerah string `json:"daerah"`
}
