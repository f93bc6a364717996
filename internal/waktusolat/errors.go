package waktusolat

import (
	"errors"
	"fmt"
	"time"
)

// Error categories. Concrete errors returned by this package match one of
// these through errors.Is.
var (
	// ErrNetwork covers transport failures, timeouts and non-2xx responses.
	// The caller retries on its next scheduled tick.
	ErrNetwork = errors.New("network error")

	// ErrUpstreamFormat covers bodies that decode but do not hold a usable schedule
	ErrUpstreamFormat = errors.New("upstream format error")

	// ErrConfiguration is fatal at startup and never retried
	ErrConfiguration = errors.New("configuration error")
)

// FetchError describes a failed monthly schedule request
type FetchError struct {
	Kind       error
	Zone       string
	Year       int
	Month      time.Month
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	msg := fmt.Sprintf("%v: zone=%s year=%d month=%d", e.Kind, e.Zone, e.Year, int(e.Month))
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" status=%d", e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *FetchError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// ConfigurationError reports an invalid setting
type ConfigurationError struct {
	Field  string
	Value  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid %s %q: %s", e.Field, e.Value, e.Reason)
}

func (e *ConfigurationError) Unwrap() error {
	return ErrConfiguration
}

// IsRetryable reports whether err is worth retrying on a later tick
func IsRetryable(err error) bool {
	return errors.Is(err, ErrNetwork)
}
