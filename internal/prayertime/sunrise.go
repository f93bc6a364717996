package prayertime

import (
	"time"

	"github.com/nathan-osman/go-sunrise"

	"github.com/walnadz/solatsyncmy/internal/waktusolat"
)

// DefaultSunriseTolerance is how far syuruk may drift from the computed sunrise
const DefaultSunriseTolerance = 20 * time.Minute

// SunriseCheck compares the published syuruk against an astronomical sunrise
// for the configured coordinates. It only flags, it never corrects.
type SunriseCheck struct {
	Latitude  float64
	Longitude float64
	Tolerance time.Duration
}

// Deviation is a day whose syuruk is out of tolerance
type Deviation struct {
	Day     int
	Syuruk  time.Time
	Sunrise time.Time
	Diff    time.Duration
}

// Deviations returns the days of schedule that fail the check
func (s *SunriseCheck) Deviations(schedule *waktusolat.MonthlySchedule) []Deviation {
	if s == nil || schedule == nil {
		return nil
	}
	tolerance := s.Tolerance
	if tolerance <= 0 {
		tolerance = DefaultSunriseTolerance
	}

	var out []Deviation
	for _, row := range schedule.Rows {
		if row.Syuruk == 0 {
			continue
		}
		rise, _ := sunrise.SunriseSunset(s.Latitude, s.Longitude, schedule.Year, schedule.Month, row.Day)
		if rise.IsZero() {
			continue
		}
		syuruk := time.Unix(row.Syuruk, 0)
		diff := syuruk.Sub(rise)

		// Normalize to the nearest sunrise so a date-line offset cannot flag every day
		for diff > 12*time.Hour {
			diff -= 24 * time.Hour
		}
		for diff < -12*time.Hour {
			diff += 24 * time.Hour
		}

		if diff > tolerance || diff < -tolerance {
			out = append(out, Deviation{Day: row.Day, Syuruk: syuruk, Sunrise: rise, Diff: diff})
		}
	}
	return out
}
