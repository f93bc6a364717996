package prayertime

import (
	"fmt"
	"time"

	"github.com/hablullah/go-hijri"
)

// computeHijri returns the Umm al-Qura date for a civil date as YYYY-MM-DD,
// the same layout the upstream API uses. It returns "" when date is outside
// the supported range.
func computeHijri(date time.Time) string {
	// The library converts to UTC first; pin the civil date before it does.
	civil := time.Date(date.Year(), date.Month(), date.Day(), 12, 0, 0, 0, time.UTC)
	h, err := hijri.CreateUmmAlQuraDate(civil)
	if err != nil {
		return ""
	}
	return fmt.Sprintf("%04d-%02d-%02d", h.Year, h.Month, h.Day)
}
