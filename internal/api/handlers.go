package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/walnadz/solatsyncmy/internal/azan"
	"github.com/walnadz/solatsyncmy/internal/prayertime"
	"github.com/walnadz/solatsyncmy/internal/shadowstate"
	"github.com/walnadz/solatsyncmy/internal/state"
	"github.com/walnadz/solatsyncmy/internal/waktusolat"
)

const (
	requestTimeout = 30 * time.Second
	playTimeout    = 2 * time.Minute
)

// Error is returned by a handler to produce {"error": Message} with Code
type Error struct {
	Code    int
	Message string
}

// HandlerFunc returns either a JSON body or an error
type HandlerFunc func(c *gin.Context) (any, *Error)

func resolve(h HandlerFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		result, apiErr := h(c)
		if apiErr != nil {
			c.JSON(apiErr.Code, gin.H{"error": apiErr.Message})
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

// errorFor maps domain errors onto HTTP status codes
func errorFor(err error) *Error {
	var notFound *prayertime.NotFoundError
	switch {
	case errors.Is(err, prayertime.ErrTickInProgress), errors.Is(err, azan.ErrPlaybackInProgress):
		return &Error{Code: http.StatusConflict, Message: err.Error()}
	case errors.As(err, &notFound):
		return &Error{Code: http.StatusNotFound, Message: err.Error()}
	case errors.Is(err, waktusolat.ErrConfiguration), errors.Is(err, azan.ErrNoAzan), errors.Is(err, azan.ErrNoMediaPlayer):
		return &Error{Code: http.StatusBadRequest, Message: err.Error()}
	case errors.Is(err, context.DeadlineExceeded):
		return &Error{Code: http.StatusGatewayTimeout, Message: err.Error()}
	default:
		return &Error{Code: http.StatusBadGateway, Message: err.Error()}
	}
}

func unavailable(what string) *Error {
	return &Error{Code: http.StatusServiceUnavailable, Message: what + " is not configured"}
}

// notReady reports that no refresh has succeeded yet, with the last failure
func notReady(snap prayertime.Snapshot) *Error {
	msg := "prayer times not available yet"
	if snap.LastError != "" {
		msg += ": " + snap.LastError
	}
	return &Error{Code: http.StatusServiceUnavailable, Message: msg}
}

// HealthResponse is the body of GET /health
type HealthResponse struct {
	Status      string     `json:"status"`
	Zone        string     `json:"zone,omitempty"`
	LastSuccess *time.Time `json:"last_success,omitempty"`
	LastAttempt *time.Time `json:"last_attempt,omitempty"`
	LastError   string     `json:"last_error,omitempty"`
	Stale       bool       `json:"stale"`
}

// handleHealth reports "ok", "stale" or "starting". Only "starting" is
// unhealthy: a stale schedule is still served.
func (s *Server) handleHealth(c *gin.Context) {
	if s.opts.Cache == nil {
		c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
		return
	}

	snap := s.opts.Cache.Snapshot()
	resp := HealthResponse{
		Status:    "ok",
		Zone:      s.opts.Cache.Zone(),
		LastError: snap.LastError,
	}
	if !snap.UpdatedAt.IsZero() {
		resp.LastSuccess = &snap.UpdatedAt
	}
	if !snap.LastAttempt.IsZero() {
		resp.LastAttempt = &snap.LastAttempt
	}

	if !snap.Ready() {
		resp.Status = "starting"
		c.JSON(http.StatusServiceUnavailable, resp)
		return
	}
	if snap.Stale(s.clock.Now(), s.opts.StaleAfter) {
		resp.Status = "stale"
		resp.Stale = true
	}
	c.JSON(http.StatusOK, resp)
}

// DailyResponse is the body of GET /api/prayer/today
type DailyResponse struct {
	Zone          string            `json:"zone"`
	Date          string            `json:"date"`
	HijriDate     string            `json:"hijri_date"`
	HijriComputed bool              `json:"hijri_computed,omitempty"`
	Times         map[string]string `json:"times"`
	Formatted     map[string]string `json:"formatted"`
	Names         map[string]string `json:"names"`
}

func newDailyResponse(d *prayertime.DailyPrayerTimes) DailyResponse {
	resp := DailyResponse{
		Zone:          d.Zone,
		Date:          d.Date.Format("2006-01-02"),
		HijriDate:     d.Hijri,
		HijriComputed: d.HijriComputed,
		Times:         make(map[string]string, len(d.Times)),
		Formatted:     make(map[string]string, len(d.Times)),
		Names:         make(map[string]string, len(d.Times)),
	}
	for p, t := range d.Times {
		resp.Times[string(p)] = t.Format(time.RFC3339)
		resp.Names[string(p)] = p.MalayName()
	}
	for p, hhmm := range d.Formatted() {
		resp.Formatted[string(p)] = hhmm
	}
	return resp
}

// handleToday returns the times for ?date=YYYY-MM-DD, or today. Today comes
// from the published snapshot; other days are looked up without touching the
// cached months.
func (s *Server) handleToday(c *gin.Context) (any, *Error) {
	cache := s.opts.Cache
	if cache == nil {
		return nil, unavailable("prayer time cache")
	}

	date := s.clock.Now().In(cache.Location())
	if raw := c.Query("date"); raw != "" {
		parsed, err := time.ParseInLocation("2006-01-02", raw, cache.Location())
		if err != nil {
			return nil, &Error{Code: http.StatusBadRequest, Message: "date must be YYYY-MM-DD"}
		}
		date = parsed
	} else {
		snap := cache.Snapshot()
		if !snap.Ready() {
			return nil, notReady(snap)
		}
		if sameDay(snap.Daily.Date, date) {
			return newDailyResponse(snap.Daily), nil
		}
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	daily, err := cache.Lookup(ctx, date)
	if err != nil {
		return nil, errorFor(err)
	}
	return newDailyResponse(daily), nil
}

// NextResponse is the body of GET /api/prayer/next
type NextResponse struct {
	Prayer           string `json:"prayer"`
	Name             string `json:"name"`
	Time             string `json:"time"`
	IsTomorrow       bool   `json:"is_tomorrow"`
	RemainingSeconds int64  `json:"remaining_seconds"`
	Remaining        string `json:"time_to_next_prayer"`
}

func newNextResponse(n prayertime.NextPrayerInfo) NextResponse {
	return NextResponse{
		Prayer:           string(n.Prayer),
		Name:             n.Prayer.MalayName(),
		Time:             n.Time.Format(time.RFC3339),
		IsTomorrow:       n.IsTomorrow,
		RemainingSeconds: int64(n.Remaining / time.Second),
		Remaining:        n.RemainingText,
	}
}

// handleNext returns the next prayer. The published snapshot is used while
// its next prayer is still ahead; once it is due and before the next tick,
// the answer is looked up without touching the cached months.
func (s *Server) handleNext(c *gin.Context) (any, *Error) {
	cache := s.opts.Cache
	if cache == nil {
		return nil, unavailable("prayer time cache")
	}

	now := s.clock.Now()
	snap := cache.Snapshot()
	if !snap.Ready() {
		return nil, notReady(snap)
	}
	if snap.Next.Time.After(now) {
		return newNextResponse(snap.Next.At(now)), nil
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	next, err := cache.LookupNextPrayer(ctx, now)
	if err != nil {
		return nil, errorFor(err)
	}
	return newNextResponse(*next), nil
}

func (s *Server) handleZones(c *gin.Context) (any, *Error) {
	return waktusolat.Zones(), nil
}

// StateResponse represents the JSON response for the state endpoint
type StateResponse struct {
	Booleans map[string]bool    `json:"booleans"`
	Numbers  map[string]float64 `json:"numbers"`
	Strings  map[string]string  `json:"strings"`
	JSONs    map[string]any     `json:"jsons"`
}

// handleGetState returns all state variables grouped by type
func (s *Server) handleGetState(c *gin.Context) (any, *Error) {
	if s.opts.StateManager == nil {
		return nil, unavailable("state manager")
	}

	response := StateResponse{
		Booleans: make(map[string]bool),
		Numbers:  make(map[string]float64),
		Strings:  make(map[string]string),
		JSONs:    make(map[string]any),
	}

	sm := s.opts.StateManager
	for _, variable := range state.AllVariables {
		var err error
		switch variable.Type {
		case state.TypeBool:
			var v bool
			if v, err = sm.GetBool(variable.Key); err == nil {
				response.Booleans[variable.Key] = v
			}
		case state.TypeNumber:
			var v float64
			if v, err = sm.GetNumber(variable.Key); err == nil {
				response.Numbers[variable.Key] = v
			}
		case state.TypeString:
			var v string
			if v, err = sm.GetString(variable.Key); err == nil {
				response.Strings[variable.Key] = v
			}
		case state.TypeJSON:
			var v any
			if err = sm.GetJSON(variable.Key, &v); err == nil {
				response.JSONs[variable.Key] = v
			}
		}
		if err != nil {
			s.logger.Error("Failed to get state variable",
				zap.String("key", variable.Key),
				zap.Error(err))
		}
	}

	return response, nil
}

func (s *Server) handleShadow(c *gin.Context) (any, *Error) {
	if s.opts.Shadow == nil {
		return map[string]shadowstate.PluginShadowState{}, nil
	}
	return s.opts.Shadow.GetAllPluginStates(), nil
}

// handleRefresh runs a schedule refresh and returns the new next prayer
func (s *Server) handleRefresh(c *gin.Context) (any, *Error) {
	if s.opts.Refresher == nil {
		return nil, unavailable("schedule refresh")
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	if err := s.opts.Refresher.Refresh(ctx); err != nil {
		s.logger.Warn("Manual refresh failed", zap.Error(err))
		return nil, errorFor(err)
	}

	snap := s.opts.Cache.Snapshot()
	if !snap.Ready() {
		return gin.H{"status": "refreshed"}, nil
	}
	return gin.H{
		"status":     "refreshed",
		"updated_at": snap.UpdatedAt.Format(time.RFC3339),
		"next":       newNextResponse(snap.Next.At(s.clock.Now())),
	}, nil
}

func (s *Server) handleReset(c *gin.Context) (any, *Error) {
	if s.opts.Resetter == nil {
		return nil, unavailable("reset")
	}
	if err := s.opts.Resetter.Trigger(); err != nil {
		return nil, &Error{Code: http.StatusInternalServerError, Message: err.Error()}
	}
	return gin.H{"status": "reset"}, nil
}

// PlayRequest is the body of POST /api/azan/play
type PlayRequest struct {
	Prayer      string   `json:"prayer" binding:"required"`
	MediaPlayer string   `json:"media_player"`
	Volume      *float64 `json:"volume"`
	File        string   `json:"file"`
}

// handlePlay plays the azan once on request, bypassing the enable switches
func (s *Server) handlePlay(c *gin.Context) (any, *Error) {
	if s.opts.Player == nil {
		return nil, unavailable("azan player")
	}

	var req PlayRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		return nil, &Error{Code: http.StatusBadRequest, Message: "invalid request: " + err.Error()}
	}
	prayer, err := prayertime.ParsePrayer(req.Prayer)
	if err != nil {
		return nil, &Error{Code: http.StatusBadRequest, Message: err.Error()}
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), playTimeout)
	defer cancel()

	result, err := s.opts.Player.Play(ctx, azan.Request{
		Prayer:      prayer,
		MediaPlayer: req.MediaPlayer,
		Volume:      req.Volume,
		File:        req.File,
	})
	if err != nil {
		s.logger.Warn("Requested azan failed",
			zap.String("prayer", string(prayer)),
			zap.Error(err))
		return nil, errorFor(err)
	}
	return result, nil
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.In(a.Location()).Date()
	return ay == by && am == bm && ad == bd
}
