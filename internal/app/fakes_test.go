package app

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/cabapp/salary-ledger/internal/domain/booking"
	"github.com/cabapp/salary-ledger/internal/domain/driver"
	"github.com/cabapp/salary-ledger/internal/domain/event"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

var t0 = time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

func days(n int) time.Duration { return time.Duration(n) * 24 * time.Hour }

func testLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// memRepo stores cloned aggregates and enforces the optimistic version check.
type memRepo struct {
	mu        sync.Mutex
	drivers   map[uuid.UUID]*driver.Driver
	saves     int
	saveErr   error
	conflicts int // number of upcoming saves that report a version conflict
	getErr    error
	// beforeSave runs outside the lock before every save, to widen race windows.
	beforeSave func()
}

func newMemRepo() *memRepo {
	return &memRepo{drivers: make(map[uuid.UUID]*driver.Driver)}
}

func (r *memRepo) Create(_ context.Context, d *driver.Driver) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.drivers[d.ID]; ok {
		return driver.ErrDuplicate
	}
	r.drivers[d.ID] = d.Clone()
	return nil
}

func (r *memRepo) Get(_ context.Context, id uuid.UUID) (*driver.Driver, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.getErr != nil {
		return nil, r.getErr
	}
	d, ok := r.drivers[id]
	if !ok {
		return nil, driver.ErrNotFound
	}
	return d.Clone(), nil
}

func (r *memRepo) Save(_ context.Context, d *driver.Driver) error {
	if r.beforeSave != nil {
		r.beforeSave()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.saveErr != nil {
		return r.saveErr
	}
	if r.conflicts > 0 {
		r.conflicts--
		return driver.ErrVersionConflict
	}
	stored, ok := r.drivers[d.ID]
	if !ok {
		return driver.ErrNotFound
	}
	if stored.Version != d.Version {
		return driver.ErrVersionConflict
	}
	d.Version++
	r.drivers[d.ID] = d.Clone()
	r.saves++
	return nil
}

func (r *memRepo) GetIDByTelegramID(_ context.Context, telegramID int64) (uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, d := range r.drivers {
		if d.TelegramID == telegramID {
			return id, nil
		}
	}
	return uuid.Nil, driver.ErrNotFound
}

func (r *memRepo) ListProfiles(context.Context) ([]driver.Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]driver.Profile, 0, len(r.drivers))
	for _, d := range r.drivers {
		out = append(out, d.Profile)
	}
	return out, nil
}

func (r *memRepo) stored(id uuid.UUID) *driver.Driver {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.drivers[id].Clone()
}

func (r *memRepo) saveCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.saves
}

type mutexLocker struct {
	mu sync.Mutex
}

func (l *mutexLocker) Lock(context.Context, string) (func(), error) {
	l.mu.Lock()
	return l.mu.Unlock, nil
}

// openLocker never blocks, leaving the version check as the only guard.
type openLocker struct{}

func (openLocker) Lock(context.Context, string) (func(), error) { return func() {}, nil }

type failingLocker struct{}

func (failingLocker) Lock(context.Context, string) (func(), error) {
	return nil, errors.New("lock busy")
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []event.Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, e event.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return p.err
}

func (p *recordingPublisher) types() []event.Type {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]event.Type, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

type stubBookings struct {
	bookings []booking.Booking
	err      error
}

func (s stubBookings) ListByDriver(context.Context, uuid.UUID) ([]booking.Booking, error) {
	return s.bookings, s.err
}
