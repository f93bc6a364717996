package prayertime

import (
	"fmt"
	"strings"
	"time"

	"github.com/walnadz/solatsyncmy/internal/waktusolat"
)

// Prayer names one of the six daily times published per zone
type Prayer string

const (
	Fajr    Prayer = waktusolat.Fajr
	Syuruk  Prayer = waktusolat.Syuruk
	Dhuhr   Prayer = waktusolat.Dhuhr
	Asr     Prayer = waktusolat.Asr
	Maghrib Prayer = waktusolat.Maghrib
	Isha    Prayer = waktusolat.Isha
)

// AllPrayers lists every published time in daily order
var AllPrayers = []Prayer{Fajr, Syuruk, Dhuhr, Asr, Maghrib, Isha}

// AzanPrayers lists the prayers that carry an azan, in daily order.
// Syuruk marks sunrise and has no azan.
var AzanPrayers = []Prayer{Fajr, Dhuhr, Asr, Maghrib, Isha}

var malayNames = map[Prayer]string{
	Fajr:    "Subuh",
	Syuruk:  "Syuruk",
	Dhuhr:   "Zohor",
	Asr:     "Asar",
	Maghrib: "Maghrib",
	Isha:    "Isyak",
}

// MalayName returns the display name used in Malaysia
func (p Prayer) MalayName() string {
	if name, ok := malayNames[p]; ok {
		return name
	}
	return string(p)
}

// HasAzan reports whether an azan is called for p
func (p Prayer) HasAzan() bool {
	return p != Syuruk && malayNames[p] != ""
}

// ParsePrayer accepts either the API name or the Malay display name
func ParsePrayer(s string) (Prayer, error) {
	needle := strings.ToLower(strings.TrimSpace(s))
	for _, p := range AllPrayers {
		if needle == string(p) || needle == strings.ToLower(p.MalayName()) {
			return p, nil
		}
	}
	return "", fmt.Errorf("unknown prayer %q", s)
}

// DailyPrayerTimes is one day's schedule in the configured local timezone.
// Values are derived from the cached month and never mutated.
type DailyPrayerTimes struct {
	Zone          string               `json:"zone"`
	Date          time.Time            `json:"date"`
	Times         map[Prayer]time.Time `json:"times"`
	Hijri         string               `json:"hijri_date"`
	HijriComputed bool                 `json:"hijri_computed,omitempty"`
}

// Time returns the time for p
func (d *DailyPrayerTimes) Time(p Prayer) (time.Time, bool) {
	t, ok := d.Times[p]
	return t, ok
}

// Formatted returns each time as HH:MM
func (d *DailyPrayerTimes) Formatted() map[Prayer]string {
	out := make(map[Prayer]string, len(d.Times))
	for p, t := range d.Times {
		out[p] = t.Format("15:04")
	}
	return out
}

func (d *DailyPrayerTimes) clone() *DailyPrayerTimes {
	if d == nil {
		return nil
	}
	cp := *d
	cp.Times = make(map[Prayer]time.Time, len(d.Times))
	for p, t := range d.Times {
		cp.Times[p] = t
	}
	return &cp
}

// NextPrayerInfo describes the next azan relative to a reference time
type NextPrayerInfo struct {
	Prayer        Prayer        `json:"prayer"`
	Time          time.Time     `json:"time"`
	IsTomorrow    bool          `json:"is_tomorrow"`
	Remaining     time.Duration `json:"-"`
	RemainingText string        `json:"time_to_next_prayer"`
}

func newNextPrayerInfo(p Prayer, at time.Time, tomorrow bool, now time.Time) *NextPrayerInfo {
	remaining := at.Sub(now)
	return &NextPrayerInfo{
		Prayer:        p,
		Time:          at,
		IsTomorrow:    tomorrow,
		Remaining:     remaining,
		RemainingText: FormatRemaining(remaining),
	}
}

// At returns a copy with the remaining duration measured from now
func (n NextPrayerInfo) At(now time.Time) NextPrayerInfo {
	n.Remaining = n.Time.Sub(now)
	if n.Remaining < 0 {
		n.Remaining = 0
	}
	n.RemainingText = FormatRemaining(n.Remaining)
	return n
}

// FormatRemaining renders d as H:MM:SS with seconds truncated.
// Negative durations render as 0:00:00.
func FormatRemaining(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int64(d / time.Second)
	return fmt.Sprintf("%d:%02d:%02d", total/3600, (total/60)%60, total%60)
}

// Snapshot is the last complete result of a tick
type Snapshot struct {
	Daily       *DailyPrayerTimes `json:"daily,omitempty"`
	Next        *NextPrayerInfo   `json:"next,omitempty"`
	UpdatedAt   time.Time         `json:"updated_at"`
	LastAttempt time.Time         `json:"last_attempt"`
	LastError   string            `json:"last_error,omitempty"`
}

// Ready reports whether at least one tick has succeeded
func (s Snapshot) Ready() bool {
	return s.Daily != nil && s.Next != nil
}

// Stale reports whether the last success is older than maxAge
func (s Snapshot) Stale(now time.Time, maxAge time.Duration) bool {
	return !s.Ready() || now.Sub(s.UpdatedAt) > maxAge
}

func (s Snapshot) clone() Snapshot {
	cp := s
	cp.Daily = s.Daily.clone()
	if s.Next != nil {
		next := *s.Next
		cp.Next = &next
	}
	return cp
}

// NotFoundError means the upstream month has no row for a requested day
type NotFoundError struct {
	Zone string
	Date time.Time
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no prayer times for zone %s on %s", e.Zone, e.Date.Format("2006-01-02"))
}

func (e *NotFoundError) Unwrap() error {
	return waktusolat.ErrUpstreamFormat
}
