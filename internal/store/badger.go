package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
	badger "github.com/dgraph-io/badger/v4"

	"github.com/walnadz/solatsyncmy/internal/waktusolat"
)

// AppName names the XDG data directory
const AppName = "solatsync"

// DefaultPath returns the default badger directory following the XDG spec
func DefaultPath() string {
	return filepath.Join(xdg.DataHome, AppName, "schedules")
}

// BadgerOptions configures the embedded store.
type BadgerOptions struct {
	// Path is the database directory. Empty uses in-memory mode.
	Path string
	// TTL expires stored months; zero uses DefaultTTL.
	TTL time.Duration
}

// Badger is a Store backed by an embedded badger database
type Badger struct {
	db  *badger.DB
	ttl time.Duration
}

// OpenBadger opens or creates a badger store
func OpenBadger(opts BadgerOptions) (*Badger, error) {
	var badgerOpts badger.Options
	if opts.Path == "" {
		badgerOpts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(opts.Path, 0o755); err != nil {
			return nil, fmt.Errorf("creating %s: %w", opts.Path, err)
		}
		badgerOpts = badger.DefaultOptions(opts.Path)
	}
	badgerOpts = badgerOpts.WithLoggingLevel(badger.ERROR)

	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, fmt.Errorf("opening badger: %w", err)
	}

	ttl := opts.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Badger{db: db, ttl: ttl}, nil
}

// Load returns a stored schedule
func (b *Badger) Load(_ context.Context, zone string, year int, month time.Month) (*waktusolat.MonthlySchedule, error) {
	var data []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(Key(zone, year, month)))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading schedule: %w", err)
	}
	return decode(data, "badger")
}

// Save stores a schedule with the configured TTL
func (b *Badger) Save(_ context.Context, schedule *waktusolat.MonthlySchedule) error {
	data, err := encode(schedule)
	if err != nil {
		return err
	}
	key := []byte(Key(schedule.Zone, schedule.Year, schedule.Month))
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.SetEntry(badger.NewEntry(key, data).WithTTL(b.ttl))
	})
}

// Close closes the database
func (b *Badger) Close() error {
	return b.db.Close()
}
