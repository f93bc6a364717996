package testutil

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/walnadz/solatsyncmy/internal/waktusolat"
)

// MYT is Malaysia time as a fixed zone, so tests do not depend on tzdata
var MYT = time.FixedZone("MYT", 8*60*60)

// DefaultTimes are the local times MakeMonth gives every day, in
// fajr, syuruk, dhuhr, asr, maghrib, isha order.
var DefaultTimes = [6][2]int{{5, 45}, {7, 5}, {13, 5}, {16, 25}, {19, 20}, {20, 35}}

// MakeMonth builds a month for zone where every day has DefaultTimes in MYT
func MakeMonth(zone string, year int, month time.Month) *waktusolat.MonthlySchedule {
	days := time.Date(year, month+1, 0, 0, 0, 0, 0, MYT).Day()
	s := &waktusolat.MonthlySchedule{Zone: zone, Year: year, Month: month, Source: "test"}
	for d := 1; d <= days; d++ {
		at := func(i int) int64 {
			return time.Date(year, month, d, DefaultTimes[i][0], DefaultTimes[i][1], 0, 0, MYT).Unix()
		}
		s.Rows = append(s.Rows, waktusolat.Row{
			Day:     d,
			Hijri:   fmt.Sprintf("1447-01-%02d", d),
			Fajr:    at(0),
			Syuruk:  at(1),
			Dhuhr:   at(2),
			Asr:     at(3),
			Maghrib: at(4),
			Isha:    at(5),
		})
	}
	return s
}

// StaticFetcher serves months built by MakeMonth for any requested month,
// unless an error is set. Calls are recorded.
type StaticFetcher struct {
	mu    sync.Mutex
	calls []string
	err   error
}

// FetchMonth implements prayertime.Fetcher
func (f *StaticFetcher) FetchMonth(ctx context.Context, zone string, year int, month time.Month) (*waktusolat.MonthlySchedule, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, fmt.Sprintf("%04d-%02d", year, int(month)))
	if f.err != nil {
		return nil, f.err
	}
	return MakeMonth(zone, year, month), nil
}

// SetErr makes subsequent fetches fail with err; nil restores them
func (f *StaticFetcher) SetErr(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

// Calls returns the fetched months as "YYYY-MM"
func (f *StaticFetcher) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}
