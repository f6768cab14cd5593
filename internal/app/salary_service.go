package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cabapp/salary-ledger/internal/domain/booking"
	"github.com/cabapp/salary-ledger/internal/domain/driver"
	"github.com/cabapp/salary-ledger/internal/domain/event"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const (
	defaultWriteRetries = 3
	defaultHistoryLimit = 20
)

// Locker serializes ledger writes for one key. The returned func releases the lock.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

type SalaryOptions struct {
	WriteRetries int              // retries after a version conflict
	HistoryLimit int              // entries in SalaryStatus.RecentTransactions
	Now          func() time.Time // defaults to time.Now
}

// CycleStatus is the result of a ledger mutation.
type CycleStatus struct {
	DriverID     uuid.UUID
	DriverName   string
	CurrentCycle driver.Cycle
	Remaining    decimal.Decimal
	RolledOver   bool
}

type SalaryStatus struct {
	DriverID           uuid.UUID
	DriverName         string
	CurrentCycle       driver.Cycle
	SalaryHistory      []driver.Cycle
	RecentTransactions []driver.HistoryEntry
	RegistrationDate   time.Time
}

type DriverReport struct {
	Driver            driver.Profile
	Salary            decimal.Decimal
	TotalAdvance      decimal.Decimal
	RemainingSalary   decimal.Decimal
	Bookings          []booking.Booking
	CompletedBookings int
	TotalEarnings     decimal.Decimal
	CurrentCycle      driver.Cycle
	SalaryHistory     []driver.Cycle
	Transactions      []driver.HistoryEntry
}

// SalaryService runs the salary-cycle ledger operations. Every operation
// brings the driver's cycle up to date before acting on it.
type SalaryService struct {
	drivers      driver.Repository
	bookings     booking.Source
	locker       Locker
	publisher    event.Publisher
	logger       *logrus.Entry
	now          func() time.Time
	retries      int
	historyLimit int
}

func NewSalaryService(
	dr driver.Repository,
	bs booking.Source,
	locker Locker,
	publisher event.Publisher,
	logger *logrus.Entry,
	opts SalaryOptions,
) *SalaryService {
	s := &SalaryService{
		drivers:      dr,
		bookings:     bs,
		locker:       locker,
		publisher:    publisher,
		logger:       logger.WithField("component", "salary_service"),
		now:          opts.Now,
		retries:      opts.WriteRetries,
		historyLimit: opts.HistoryLimit,
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.retries <= 0 {
		s.retries = defaultWriteRetries
	}
	if s.historyLimit <= 0 {
		s.historyLimit = defaultHistoryLimit
	}
	if s.publisher == nil {
		s.publisher = event.NopPublisher{}
	}
	return s
}

// SetSalary replaces the base salary of the driver's active cycle.
func (s *SalaryService) SetSalary(ctx context.Context, driverID uuid.UUID, in SetSalaryInput) (*CycleStatus, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}
	d, rolled, err := s.update(ctx, "set_salary", driverID, func(d *driver.Driver, now time.Time) event.Event {
		tx := d.SetBaseSalary(in.Amount, in.Note, now)
		return newEvent(event.SalarySet, d, tx, in.ActorID)
	})
	if err != nil {
		return nil, err
	}
	return cycleStatus(d, rolled), nil
}

// AdjustSalary raises or lowers the base salary. A decrease never takes it below zero.
func (s *SalaryService) AdjustSalary(ctx context.Context, driverID uuid.UUID, in AdjustSalaryInput) (*CycleStatus, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}
	delta := in.Amount
	if in.ChangeType == Decrease {
		delta = delta.Neg()
	}
	d, rolled, err := s.update(ctx, "adjust_salary", driverID, func(d *driver.Driver, now time.Time) event.Event {
		tx := d.AdjustBaseSalary(delta, in.Note, now)
		return newEvent(event.SalaryAdjusted, d, tx, in.ActorID)
	})
	if err != nil {
		return nil, err
	}
	return cycleStatus(d, rolled), nil
}

// GiveAdvance draws an approved cash advance against the active cycle.
func (s *SalaryService) GiveAdvance(ctx context.Context, driverID uuid.UUID, in GiveAdvanceInput) (*CycleStatus, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}
	d, rolled, err := s.update(ctx, "give_advance", driverID, func(d *driver.Driver, now time.Time) event.Event {
		date := in.Date
		if date.IsZero() {
			date = now
		}
		tx := d.GiveAdvance(in.Amount, in.Note, date, in.ApprovedBy, now)
		return newEvent(event.AdvanceGiven, d, tx, in.ApprovedBy)
	})
	if err != nil {
		return nil, err
	}
	return cycleStatus(d, rolled), nil
}

// GetSalaryStatus returns the caught-up active cycle and the archived cycles.
func (s *SalaryService) GetSalaryStatus(ctx context.Context, driverID uuid.UUID) (*SalaryStatus, error) {
	d, err := s.current(ctx, driverID)
	if err != nil {
		return nil, err
	}
	return &SalaryStatus{
		DriverID:           d.ID,
		DriverName:         d.Name,
		CurrentCycle:       d.CurrentCycle,
		SalaryHistory:      d.SalaryCycles,
		RecentTransactions: driver.Flatten(d, s.historyLimit),
		RegistrationDate:   d.RegistrationDate,
	}, nil
}

// GetHistory returns every transaction of the driver, newest first.
func (s *SalaryService) GetHistory(ctx context.Context, driverID uuid.UUID) ([]driver.HistoryEntry, error) {
	d, err := s.current(ctx, driverID)
	if err != nil {
		return nil, err
	}
	return driver.Flatten(d, 0), nil
}

// GetDriverReport combines the salary state with the driver's booking earnings.
func (s *SalaryService) GetDriverReport(ctx context.Context, driverID uuid.UUID) (*DriverReport, error) {
	d, err := s.current(ctx, driverID)
	if err != nil {
		return nil, err
	}
	bookings, err := s.bookings.ListByDriver(ctx, driverID)
	if err != nil {
		s.logger.WithError(err).WithField("driver_id", driverID).Error("Failed to list bookings")
		return nil, fmt.Errorf("list bookings for driver %s: %w", driverID, err)
	}
	completed, earnings := booking.Earnings(bookings)
	return &DriverReport{
		Driver:            d.Profile,
		Salary:            d.CurrentCycle.BaseSalary,
		TotalAdvance:      d.CurrentCycle.Advances,
		RemainingSalary:   d.CurrentCycle.Remaining(),
		Bookings:          bookings,
		CompletedBookings: completed,
		TotalEarnings:     earnings,
		CurrentCycle:      d.CurrentCycle,
		SalaryHistory:     d.SalaryCycles,
		Transactions:      driver.Flatten(d, 0),
	}, nil
}

// current loads a driver for reading. If a rollover is due it is applied and
// persisted under the driver lock first.
func (s *SalaryService) current(ctx context.Context, driverID uuid.UUID) (*driver.Driver, error) {
	d, err := s.load(ctx, driverID)
	if err != nil {
		return nil, err
	}
	if _, due := driver.Rollover(s.now(), d.Clone()); !due {
		return d, nil
	}
	d, _, err = s.update(ctx, "catch_up", driverID, nil)
	return d, err
}

func (s *SalaryService) load(ctx context.Context, driverID uuid.UUID) (*driver.Driver, error) {
	d, err := s.drivers.Get(ctx, driverID)
	if err == nil {
		return d, nil
	}
	if errors.Is(err, driver.ErrNotFound) {
		return nil, err
	}
	s.logger.WithError(err).WithField("driver_id", driverID).Error("Failed to load driver")
	return nil, fmt.Errorf("%w: load driver %s: %w", ErrPersistence, driverID, err)
}

type mutation func(d *driver.Driver, now time.Time) event.Event

// update runs load, rollover, mutation and save for one driver under its lock,
// retrying from a fresh load when the save loses a version race. A nil
// mutation only persists a due rollover.
func (s *SalaryService) update(ctx context.Context, op string, driverID uuid.UUID, apply mutation) (*driver.Driver, bool, error) {
	log := s.logger.WithFields(logrus.Fields{"operation": op, "driver_id": driverID})

	unlock, err := s.locker.Lock(ctx, lockKey(driverID))
	if err != nil {
		log.WithError(err).Warn("Could not lock driver")
		return nil, false, fmt.Errorf("%w: %w", ErrLockNotObtained, err)
	}
	defer unlock()

	for attempt := 0; ; attempt++ {
		d, err := s.load(ctx, driverID)
		if err != nil {
			return nil, false, err
		}

		now := s.now()
		var events []event.Event
		summary, rolled := driver.Rollover(now, d)
		if rolled {
			events = append(events, rolloverEvent(d, summary, now))
		}
		if apply != nil {
			events = append(events, apply(d, now))
		} else if !rolled {
			return d, false, nil
		}

		err = s.drivers.Save(ctx, d)
		if errors.Is(err, driver.ErrVersionConflict) && attempt < s.retries {
			log.WithField("attempt", attempt+1).Warn("Version conflict, retrying")
			continue
		}
		if err != nil {
			log.WithError(err).Error("Failed to save driver")
			return nil, false, fmt.Errorf("%w: save driver %s: %w", ErrPersistence, driverID, err)
		}

		if rolled {
			log.WithFields(logrus.Fields{
				"closed_cycle":  summary.Closed.Number,
				"opened_cycle":  summary.Opened.Number,
				"cycles_passed": summary.CyclesPassed,
				"carry_forward": summary.CarryForward.String(),
			}).Info("Salary cycle rolled over")
		}
		log.WithField("version", d.Version).Debug("Driver ledger saved")
		s.publish(ctx, log, events)
		return d, rolled, nil
	}
}

func (s *SalaryService) publish(ctx context.Context, log *logrus.Entry, events []event.Event) {
	for _, e := range events {
		if err := s.publisher.Publish(ctx, e); err != nil {
			log.WithError(err).WithField("event", e.Type).Warn("Failed to publish ledger event")
		}
	}
}

func lockKey(driverID uuid.UUID) string {
	return "driver-salary:" + driverID.String()
}

func cycleStatus(d *driver.Driver, rolled bool) *CycleStatus {
	return &CycleStatus{
		DriverID:     d.ID,
		DriverName:   d.Name,
		CurrentCycle: d.CurrentCycle,
		Remaining:    d.CurrentCycle.Remaining(),
		RolledOver:   rolled,
	}
}

func newEvent(t event.Type, d *driver.Driver, tx driver.Transaction, actorID int64) event.Event {
	return event.Event{
		Type:             t,
		DriverID:         d.ID,
		DriverName:       d.Name,
		DriverTelegramID: d.TelegramID,
		CycleNumber:      d.CurrentCycle.Number,
		Amount:           tx.Amount,
		BaseSalary:       d.CurrentCycle.BaseSalary,
		Remaining:        d.CurrentCycle.Remaining(),
		ActorID:          actorID,
		Note:             tx.Note,
		At:               tx.Date,
	}
}

func rolloverEvent(d *driver.Driver, sum driver.RolloverSummary, now time.Time) event.Event {
	return event.Event{
		Type:             event.CycleRolledOver,
		DriverID:         d.ID,
		DriverName:       d.Name,
		DriverTelegramID: d.TelegramID,
		CycleNumber:      sum.Opened.Number,
		Amount:           sum.CarryForward,
		BaseSalary:       sum.Opened.BaseSalary,
		Remaining:        sum.Opened.Remaining(),
		At:               now,
	}
}
