// Package prayertime caches monthly prayer schedules for one zone and derives
// today's times and the next azan from them.
package prayertime

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/walnadz/solatsyncmy/internal/clock"
	"github.com/walnadz/solatsyncmy/internal/store"
	"github.com/walnadz/solatsyncmy/internal/waktusolat"
)

// ErrTickInProgress is returned when Tick is called while another tick runs
var ErrTickInProgress = errors.New("tick already in progress")

// maxCachedMonths keeps the current month plus the look-ahead month needed
// for tomorrow's fajr on the last evening of a month.
const maxCachedMonths = 2

// Fetcher retrieves a month of prayer times from upstream
type Fetcher interface {
	FetchMonth(ctx context.Context, zone string, year int, month time.Month) (*waktusolat.MonthlySchedule, error)
}

// Options configures a Cache
type Options struct {
	Zone     string
	Location *time.Location
	Fetcher  Fetcher
	Clock    clock.Clock

	// Store is an optional second level consulted before the network
	Store store.Store

	// Sunrise is an optional syuruk sanity check
	Sunrise *SunriseCheck
}

// Cache is the single owner of the schedule for one zone. Tick is the only
// writer of the published snapshot.
type Cache struct {
	zone    string
	loc     *time.Location
	fetcher Fetcher
	store   store.Store
	sunrise *SunriseCheck
	clock   clock.Clock
	logger  *zap.Logger

	mu        sync.RWMutex
	months    []*waktusolat.MonthlySchedule // most recently used first
	snapshot  Snapshot
	listeners []func(Snapshot)

	flight  singleflight.Group
	ticking atomic.Bool

	// skipStore sends loads to the network from Invalidate until the next
	// successful tick
	skipStore atomic.Bool
}

// NewCache creates a cache. Zone must already be validated.
func NewCache(opts Options, logger *zap.Logger) *Cache {
	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}
	clk := opts.Clock
	if clk == nil {
		clk = clock.NewRealClock()
	}

	return &Cache{
		zone:    opts.Zone,
		loc:     loc,
		fetcher: opts.Fetcher,
		store:   opts.Store,
		sunrise: opts.Sunrise,
		clock:   clk,
		logger:  logger.Named("prayertime"),
	}
}

// Zone returns the zone this cache serves
func (c *Cache) Zone() string {
	return c.zone
}

// Location returns the timezone times are rendered in
func (c *Cache) Location() *time.Location {
	return c.loc
}

// GetDailyTimes returns the schedule for date's calendar day, fetching the
// month first when it is not cached.
func (c *Cache) GetDailyTimes(ctx context.Context, date time.Time) (*DailyPrayerTimes, error) {
	date = date.In(c.loc)

	schedule, err := c.month(ctx, date.Year(), date.Month())
	if err != nil {
		return nil, err
	}
	return c.dayOf(schedule, date)
}

// Lookup returns the schedule for date's calendar day without changing the
// cache. Cached months are used as they are; any other month is loaded for
// this call only, so ad hoc reads never evict the months Tick relies on.
func (c *Cache) Lookup(ctx context.Context, date time.Time) (*DailyPrayerTimes, error) {
	date = date.In(c.loc)
	year, month := date.Year(), date.Month()

	schedule := c.peek(year, month)
	if schedule == nil {
		key := fmt.Sprintf("lookup:%04d-%02d", year, int(month))
		v, err, _ := c.flight.Do(key, func() (interface{}, error) {
			return c.load(ctx, year, month)
		})
		if err != nil {
			return nil, err
		}
		schedule = v.(*waktusolat.MonthlySchedule)
	}
	return c.dayOf(schedule, date)
}

// GetNextPrayer returns the first azan strictly after now. A prayer whose
// time equals now is already due. After isha it returns tomorrow's fajr,
// which may require fetching the next month.
func (c *Cache) GetNextPrayer(ctx context.Context, now time.Time) (*NextPrayerInfo, error) {
	return c.nextPrayer(ctx, now, c.GetDailyTimes)
}

// LookupNextPrayer is GetNextPrayer built on Lookup
func (c *Cache) LookupNextPrayer(ctx context.Context, now time.Time) (*NextPrayerInfo, error) {
	return c.nextPrayer(ctx, now, c.Lookup)
}

func (c *Cache) nextPrayer(ctx context.Context, now time.Time, day func(context.Context, time.Time) (*DailyPrayerTimes, error)) (*NextPrayerInfo, error) {
	now = now.In(c.loc)

	today, err := day(ctx, now)
	if err != nil {
		return nil, err
	}

	for _, p := range AzanPrayers {
		t, ok := today.Times[p]
		if !ok {
			continue
		}
		if t.After(now) {
			return newNextPrayerInfo(p, t, false, now), nil
		}
	}

	// Noon keeps the date arithmetic clear of any midnight offset quirks
	tomorrow := time.Date(now.Year(), now.Month(), now.Day()+1, 12, 0, 0, 0, c.loc)
	next, err := day(ctx, tomorrow)
	if err != nil {
		return nil, err
	}
	fajr, ok := next.Times[Fajr]
	if !ok {
		return nil, &NotFoundError{Zone: c.zone, Date: tomorrow}
	}
	return newNextPrayerInfo(Fajr, fajr, true, now), nil
}

// Tick recomputes today's times and the next prayer and publishes them.
// On failure the previous snapshot is kept and the error returned.
func (c *Cache) Tick(ctx context.Context) error {
	if !c.ticking.CompareAndSwap(false, true) {
		c.logger.Debug("Tick skipped, previous tick still running")
		return ErrTickInProgress
	}
	defer c.ticking.Store(false)

	now := c.clock.Now().In(c.loc)

	daily, err := c.GetDailyTimes(ctx, now)
	var next *NextPrayerInfo
	if err == nil {
		next, err = c.GetNextPrayer(ctx, now)
	}

	c.mu.Lock()
	c.snapshot.LastAttempt = now
	if err != nil {
		c.snapshot.LastError = err.Error()
		c.mu.Unlock()
		c.logFailure(err, now)
		return err
	}
	c.snapshot = Snapshot{
		Daily:       daily,
		Next:        next,
		UpdatedAt:   now,
		LastAttempt: now,
	}
	snap := c.snapshot.clone()
	listeners := append([]func(Snapshot){}, c.listeners...)
	c.mu.Unlock()
	c.skipStore.Store(false)

	c.logger.Debug("Prayer times updated",
		zap.String("zone", c.zone),
		zap.String("next_prayer", string(next.Prayer)),
		zap.Time("next_prayer_time", next.Time),
		zap.Bool("is_tomorrow", next.IsTomorrow))

	for _, fn := range listeners {
		fn(snap)
	}
	return nil
}

// Snapshot returns a copy of the last published result
func (c *Cache) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshot.clone()
}

// OnUpdate registers fn to run after every successful tick
func (c *Cache) OnUpdate(fn func(Snapshot)) {
	c.mu.Lock()
	c.listeners = append(c.listeners, fn)
	c.mu.Unlock()
}

// Invalidate drops cached months so the next access refetches from upstream.
// The store is bypassed until a tick succeeds, and the published snapshot is
// kept until that tick replaces it.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	c.months = nil
	c.mu.Unlock()
	c.skipStore.Store(true)
}

// CachedMonths lists the cached (year, month) pairs, most recent first
func (c *Cache) CachedMonths() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]string, 0, len(c.months))
	for _, m := range c.months {
		out = append(out, fmt.Sprintf("%04d-%02d", m.Year, int(m.Month)))
	}
	return out
}

func (c *Cache) month(ctx context.Context, year int, month time.Month) (*waktusolat.MonthlySchedule, error) {
	if s := c.cached(year, month); s != nil {
		return s, nil
	}

	key := fmt.Sprintf("%04d-%02d", year, int(month))
	v, err, _ := c.flight.Do(key, func() (interface{}, error) {
		if s := c.cached(year, month); s != nil {
			return s, nil
		}
		s, err := c.load(ctx, year, month)
		if err != nil {
			return nil, err
		}
		c.install(s)
		return s, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*waktusolat.MonthlySchedule), nil
}

// cached returns a cached month and marks it most recently used
func (c *Cache) cached(year int, month time.Month) *waktusolat.MonthlySchedule {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i, s := range c.months {
		if s.Year == year && s.Month == month {
			if i > 0 {
				copy(c.months[1:i+1], c.months[:i])
				c.months[0] = s
			}
			return s
		}
	}
	return nil
}

// peek returns a cached month without touching the LRU order
func (c *Cache) peek(year int, month time.Month) *waktusolat.MonthlySchedule {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, s := range c.months {
		if s.Year == year && s.Month == month {
			return s
		}
	}
	return nil
}

// install publishes a freshly loaded month. Existing months stay in place
// until this point so a failed load never disturbs them.
func (c *Cache) install(s *waktusolat.MonthlySchedule) {
	c.mu.Lock()
	defer c.mu.Unlock()

	months := []*waktusolat.MonthlySchedule{s}
	for _, m := range c.months {
		if m.Year == s.Year && m.Month == s.Month {
			continue
		}
		months = append(months, m)
	}
	if len(months) > maxCachedMonths {
		months = months[:maxCachedMonths]
	}
	c.months = months
}

func (c *Cache) load(ctx context.Context, year int, month time.Month) (*waktusolat.MonthlySchedule, error) {
	if c.store != nil && !c.skipStore.Load() {
		s, err := c.store.Load(ctx, c.zone, year, month)
		switch {
		case err == nil:
			c.logger.Debug("Loaded schedule from store",
				zap.String("zone", c.zone),
				zap.Int("year", year),
				zap.Int("month", int(month)),
				zap.String("source", s.Source))
			return s, nil
		case !errors.Is(err, store.ErrNotFound):
			c.logger.Warn("Failed to read schedule store",
				zap.String("zone", c.zone),
				zap.Int("year", year),
				zap.Int("month", int(month)),
				zap.Error(err))
		}
	}

	if c.fetcher == nil {
		return nil, fmt.Errorf("no fetcher configured")
	}

	s, err := c.fetcher.FetchMonth(ctx, c.zone, year, month)
	if err != nil {
		return nil, err
	}

	c.logger.Info("Fetched prayer schedule",
		zap.String("zone", c.zone),
		zap.Int("year", year),
		zap.Int("month", int(month)),
		zap.Int("days", len(s.Rows)))

	if deviations := c.sunrise.Deviations(s); len(deviations) > 0 {
		c.logger.Warn("Syuruk differs from computed sunrise",
			zap.String("zone", c.zone),
			zap.Int("year", year),
			zap.Int("month", int(month)),
			zap.Int("days", len(deviations)),
			zap.Int("first_day", deviations[0].Day),
			zap.Duration("first_diff", deviations[0].Diff))
	}

	if c.store != nil {
		if err := c.store.Save(ctx, s); err != nil {
			c.logger.Warn("Failed to persist schedule",
				zap.String("zone", c.zone),
				zap.Int("year", year),
				zap.Int("month", int(month)),
				zap.Error(err))
		}
	}

	return s, nil
}

func (c *Cache) dayOf(schedule *waktusolat.MonthlySchedule, date time.Time) (*DailyPrayerTimes, error) {
	row, ok := schedule.Row(date.Day())
	if !ok {
		return nil, &NotFoundError{Zone: c.zone, Date: date}
	}
	return c.daily(row, date), nil
}

func (c *Cache) daily(row waktusolat.Row, date time.Time) *DailyPrayerTimes {
	times := make(map[Prayer]time.Time, len(AllPrayers))
	for name, ts := range row.Timestamps() {
		times[Prayer(name)] = time.Unix(ts, 0).In(c.loc)
	}

	d := &DailyPrayerTimes{
		Zone:  c.zone,
		Date:  time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, c.loc),
		Times: times,
		Hijri: row.Hijri,
	}
	if d.Hijri == "" {
		d.Hijri = computeHijri(d.Date)
		d.HijriComputed = d.Hijri != ""
	}
	return d
}

func (c *Cache) logFailure(err error, now time.Time) {
	year, month, status := now.Year(), int(now.Month()), 0

	var fetchErr *waktusolat.FetchError
	if errors.As(err, &fetchErr) {
		year, month, status = fetchErr.Year, int(fetchErr.Month), fetchErr.StatusCode
	}

	fields := []zap.Field{
		zap.String("zone", c.zone),
		zap.Int("year", year),
		zap.Int("month", month),
		zap.Int("status", status),
		zap.Bool("has_data", c.Snapshot().Ready()),
		zap.Error(err),
	}

	if errors.Is(err, waktusolat.ErrNetwork) {
		c.logger.Warn("Prayer time update failed, serving last good data", fields...)
		return
	}
	c.logger.Error("Prayer time update failed, serving last good data", fields...)
}
