package output

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/walnadz/solatsyncmy/internal/azan"
	"github.com/walnadz/solatsyncmy/internal/prayertime"
	"github.com/walnadz/solatsyncmy/internal/waktusolat"
)

var (
	colorPrimary   = lipgloss.Color("#0F766E") // Teal
	colorSecondary = lipgloss.Color("#10B981") // Green
	colorMuted     = lipgloss.Color("#6B7280") // Gray
	colorWarning   = lipgloss.Color("#F59E0B") // Yellow
	colorError     = lipgloss.Color("#EF4444") // Red

	styleTitle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorPrimary)

	styleSubtitle = lipgloss.NewStyle().
			Foreground(colorMuted)

	styleNext = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorSecondary)

	stylePast = lipgloss.NewStyle().
			Foreground(colorMuted)

	styleSuccess = lipgloss.NewStyle().
			Foreground(colorSecondary)

	styleWarning = lipgloss.NewStyle().
			Foreground(colorWarning)

	styleError = lipgloss.NewStyle().
			Foreground(colorError)

	styleKey = lipgloss.NewStyle().
			Bold(true)
)

// CLIFormatter prints prayer data for humans, or as JSON when the
// formatter is set to FormatJSON.
type CLIFormatter struct {
	*Formatter
}

// NewCLIFormatter creates a new CLI formatter.
func NewCLIFormatter(f *Formatter) *CLIFormatter {
	return &CLIFormatter{Formatter: f}
}

func (c *CLIFormatter) render(style lipgloss.Style, text string) string {
	if c.IsColorEnabled() {
		return style.Render(text)
	}
	return text
}

// Title prints a title.
func (c *CLIFormatter) Title(text string) {
	c.Println(c.render(styleTitle, text))
}

// Success prints a success message.
func (c *CLIFormatter) Success(text string) {
	c.Println(c.render(styleSuccess, "✓ "+text))
}

// Warning prints a warning message.
func (c *CLIFormatter) Warning(text string) {
	c.Println(c.render(styleWarning, "⚠ "+text))
}

// Error prints an error message.
func (c *CLIFormatter) Error(text string) {
	c.Println(c.render(styleError, "✗ "+text))
}

// dailyJSON is the JSON form of a day's schedule
type dailyJSON struct {
	Zone      string            `json:"zone"`
	Date      string            `json:"date"`
	HijriDate string            `json:"hijri_date"`
	Times     map[string]string `json:"times"`
}

// PrintSchedule prints one day's schedule. Prayers before now are dimmed
// and next is highlighted; next may be nil.
func (c *CLIFormatter) PrintSchedule(daily *prayertime.DailyPrayerTimes, next *prayertime.NextPrayerInfo, now time.Time) error {
	formatted := daily.Formatted()

	if c.Format == FormatJSON {
		out := dailyJSON{
			Zone:      daily.Zone,
			Date:      daily.Date.Format("2006-01-02"),
			HijriDate: daily.Hijri,
			Times:     make(map[string]string, len(formatted)),
		}
		for p, hhmm := range formatted {
			out.Times[string(p)] = hhmm
		}
		return c.JSON(out)
	}

	header := fmt.Sprintf("Waktu Solat %s  %s", daily.Zone, daily.Date.Format("Mon, 02 Jan 2006"))
	c.Title(header)
	if daily.Hijri != "" {
		hijri := daily.Hijri + " H"
		if daily.HijriComputed {
			hijri += " (computed)"
		}
		c.Println(c.render(styleSubtitle, hijri))
	}
	c.Println()

	for _, p := range prayertime.AllPrayers {
		t, ok := daily.Time(p)
		if !ok {
			continue
		}
		line := fmt.Sprintf("  %-8s %s", p.MalayName(), formatted[p])
		switch {
		case next != nil && next.Prayer == p && next.Time.Equal(t):
			c.Println(c.render(styleNext, line+"  ◀ "+Relative(t, now)))
		case !t.After(now):
			c.Println(c.render(stylePast, line))
		default:
			c.Println(line)
		}
	}
	return nil
}

// nextJSON is the JSON form of the next prayer
type nextJSON struct {
	Prayer           string `json:"prayer"`
	Name             string `json:"name"`
	Time             string `json:"time"`
	IsTomorrow       bool   `json:"is_tomorrow"`
	TimeToNextPrayer string `json:"time_to_next_prayer"`
}

// PrintNext prints the next prayer and the time remaining.
func (c *CLIFormatter) PrintNext(next prayertime.NextPrayerInfo, now time.Time) error {
	if c.Format == FormatJSON {
		return c.JSON(nextJSON{
			Prayer:           string(next.Prayer),
			Name:             next.Prayer.MalayName(),
			Time:             next.Time.Format(time.RFC3339),
			IsTomorrow:       next.IsTomorrow,
			TimeToNextPrayer: next.RemainingText,
		})
	}

	when := next.Time.Format("15:04")
	if next.IsTomorrow {
		when += " tomorrow"
	}
	c.Printf("%s at %s\n", c.render(styleNext, next.Prayer.MalayName()), when)
	c.Printf("  %s  (%s)\n", next.RemainingText, Relative(next.Time, now))
	return nil
}

// PrintZones prints zones grouped by state.
func (c *CLIFormatter) PrintZones(zones []waktusolat.Zone) error {
	if c.Format == FormatJSON {
		return c.JSON(zones)
	}

	byState := make(map[string][]waktusolat.Zone)
	var states []string
	for _, z := range zones {
		if _, ok := byState[z.State]; !ok {
			states = append(states, z.State)
		}
		byState[z.State] = append(byState[z.State], z)
	}
	sort.Strings(states)

	for i, state := range states {
		if i > 0 {
			c.Println()
		}
		c.Title(state)
		for _, z := range byState[state] {
			c.Printf("  %s  %s\n", c.render(styleKey, z.Code), z.Description)
		}
	}
	return nil
}

// PrintPlayback prints the outcome of a one-off azan.
func (c *CLIFormatter) PrintPlayback(result *azan.Result) error {
	if c.Format == FormatJSON {
		return c.JSON(result)
	}

	msg := fmt.Sprintf("Azan for %s sent to %s", result.Prayer.MalayName(), result.MediaPlayer)
	if result.DryRun {
		c.Warning(msg + " (read-only, nothing played)")
	} else {
		c.Success(msg)
	}
	c.Printf("  url:     %s\n", result.URL)
	c.Printf("  profile: %s (attempt %d, %s)\n", result.Profile, result.Attempt, result.ContentType)
	c.Printf("  volume:  %.2f\n", result.Volume)
	return nil
}

// PrintSettings prints a flat key/value map, sorted by key.
func (c *CLIFormatter) PrintSettings(settings map[string]interface{}) error {
	if c.Format == FormatJSON {
		return c.JSON(settings)
	}

	keys := make([]string, 0, len(settings))
	width := 0
	for k := range settings {
		keys = append(keys, k)
		if len(k) > width {
			width = len(k)
		}
	}
	sort.Strings(keys)

	for _, k := range keys {
		pad := strings.Repeat(" ", width-len(k))
		c.Printf("%s%s  %v\n", c.render(styleKey, k), pad, settings[k])
	}
	return nil
}
