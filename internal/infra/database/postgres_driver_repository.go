package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/cabapp/salary-ledger/internal/domain/driver"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

const uniqueViolation = "23505"

// PostgresDriverRepository stores the active cycle as a versioned head row and
// everything else as insert-only ledger rows keyed by driver and cycle number.
type PostgresDriverRepository struct {
	db *sql.DB
}

func NewPostgresDriverRepository(db *sql.DB) *PostgresDriverRepository {
	return &PostgresDriverRepository{db: db}
}

func (r *PostgresDriverRepository) Create(ctx context.Context, d *driver.Driver) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("error starting transaction: %w", err)
	}
	defer tx.Rollback()

	query := `INSERT INTO drivers (id, name, telegram_id, registration_date, version, cycle_number, cycle_start,
                  base_salary, current_advances, total_paid, last_updated)
               VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	c := d.CurrentCycle
	_, err = tx.ExecContext(ctx, query, d.ID, d.Name, nullableTelegramID(d.TelegramID), d.RegistrationDate.UTC(), d.Version,
		c.Number, c.StartDate.UTC(), c.BaseSalary, c.Advances, c.TotalPaid, c.LastUpdated.UTC())
	if err != nil {
		if isUniqueViolation(err) {
			return driver.ErrDuplicate
		}
		return fmt.Errorf("error creating driver: %w", err)
	}
	if err := appendLedger(ctx, tx, d, 0); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("error committing driver: %w", err)
	}
	return nil
}

func (r *PostgresDriverRepository) Get(ctx context.Context, id uuid.UUID) (*driver.Driver, error) {
	// one snapshot for the head row and the ledger rows
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("error starting transaction: %w", err)
	}
	defer tx.Rollback()

	d := &driver.Driver{}
	var telegramID sql.NullInt64
	c := &d.CurrentCycle
	query := `SELECT id, name, telegram_id, registration_date, version, cycle_number, cycle_start,
                  base_salary, current_advances, total_paid, last_updated
               FROM drivers WHERE id = $1`
	err = tx.QueryRowContext(ctx, query, id).Scan(&d.ID, &d.Name, &telegramID, &d.RegistrationDate, &d.Version,
		&c.Number, &c.StartDate, &c.BaseSalary, &c.Advances, &c.TotalPaid, &c.LastUpdated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, driver.ErrNotFound
		}
		return nil, fmt.Errorf("error getting driver by ID: %w", err)
	}
	d.TelegramID = telegramID.Int64
	d.RegistrationDate = d.RegistrationDate.UTC()
	c.StartDate = c.StartDate.UTC()
	c.LastUpdated = c.LastUpdated.UTC()
	c.Status = driver.StatusActive

	if d.SalaryCycles, err = loadCycles(ctx, tx, id); err != nil {
		return nil, err
	}
	if err := loadTransactions(ctx, tx, d); err != nil {
		return nil, err
	}
	if d.Advances, err = loadAdvances(ctx, tx, id); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("error finishing driver read: %w", err)
	}
	return d, nil
}

// Save moves the head row forward and appends the ledger rows written since
// the stored head cycle. Rows of earlier cycles are never touched.
func (r *PostgresDriverRepository) Save(ctx context.Context, d *driver.Driver) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("error starting transaction: %w", err)
	}
	defer tx.Rollback()

	var storedVersion int64
	var storedCycle int
	err = tx.QueryRowContext(ctx, `SELECT version, cycle_number FROM drivers WHERE id = $1 FOR UPDATE`, d.ID).
		Scan(&storedVersion, &storedCycle)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return driver.ErrNotFound
		}
		return fmt.Errorf("error locking driver: %w", err)
	}
	if storedVersion != d.Version {
		return driver.ErrVersionConflict
	}

	c := d.CurrentCycle
	query := `UPDATE drivers
               SET cycle_number = $1, cycle_start = $2, base_salary = $3, current_advances = $4,
                   total_paid = $5, last_updated = $6, version = version + 1, updated_at = NOW()
               WHERE id = $7`
	_, err = tx.ExecContext(ctx, query, c.Number, c.StartDate.UTC(), c.BaseSalary, c.Advances, c.TotalPaid, c.LastUpdated.UTC(), d.ID)
	if err != nil {
		return fmt.Errorf("error updating driver: %w", err)
	}
	if err := appendLedger(ctx, tx, d, storedCycle); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("error committing driver: %w", err)
	}
	d.Version++
	return nil
}

func (r *PostgresDriverRepository) GetIDByTelegramID(ctx context.Context, telegramID int64) (uuid.UUID, error) {
	var id uuid.UUID
	err := r.db.QueryRowContext(ctx, `SELECT id FROM drivers WHERE telegram_id = $1`, telegramID).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return uuid.Nil, driver.ErrNotFound
		}
		return uuid.Nil, fmt.Errorf("error getting driver by Telegram ID: %w", err)
	}
	return id, nil
}

func (r *PostgresDriverRepository) ListProfiles(ctx context.Context) ([]driver.Profile, error) {
	query := `SELECT id, name, telegram_id, registration_date FROM drivers ORDER BY name, id`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("error listing drivers: %w", err)
	}
	defer rows.Close()

	profiles := make([]driver.Profile, 0)
	for rows.Next() {
		var p driver.Profile
		var telegramID sql.NullInt64
		if err := rows.Scan(&p.ID, &p.Name, &telegramID, &p.RegistrationDate); err != nil {
			return nil, fmt.Errorf("error scanning driver: %w", err)
		}
		p.TelegramID = telegramID.Int64
		p.RegistrationDate = p.RegistrationDate.UTC()
		profiles = append(profiles, p)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating drivers: %w", err)
	}
	return profiles, nil
}

// appendLedger inserts archived cycles and transactions of every cycle numbered
// fromCycle or later, plus advances not yet stored.
func appendLedger(ctx context.Context, tx *sql.Tx, d *driver.Driver, fromCycle int) error {
	for _, c := range d.SalaryCycles {
		if c.Number < fromCycle {
			continue
		}
		query := `INSERT INTO salary_cycles (driver_id, cycle_number, start_date, end_date, base_salary,
                      total_advances, total_paid, status, last_updated)
                   VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
                   ON CONFLICT DO NOTHING`
		_, err := tx.ExecContext(ctx, query, d.ID, c.Number, c.StartDate.UTC(), c.EndDate.UTC(), c.BaseSalary,
			c.Advances, c.TotalPaid, string(c.Status), c.LastUpdated.UTC())
		if err != nil {
			return fmt.Errorf("error archiving cycle %d: %w", c.Number, err)
		}
		if err := insertTransactions(ctx, tx, d.ID, c); err != nil {
			return err
		}
	}
	if err := insertTransactions(ctx, tx, d.ID, d.CurrentCycle); err != nil {
		return err
	}

	var storedAdvances int
	err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) FROM advances WHERE driver_id = $1`, d.ID).Scan(&storedAdvances)
	if err != nil {
		return fmt.Errorf("error reading advance sequence: %w", err)
	}
	for _, a := range d.Advances {
		if a.Seq <= storedAdvances {
			continue
		}
		query := `INSERT INTO advances (driver_id, seq, amount, date, notes, status, approved_by, approved_at)
                   VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
		_, err := tx.ExecContext(ctx, query, d.ID, a.Seq, a.Amount, a.Date.UTC(), a.Notes, string(a.Status), a.ApprovedBy, a.ApprovedAt.UTC())
		if err != nil {
			return fmt.Errorf("error inserting advance %d: %w", a.Seq, err)
		}
	}
	return nil
}

func insertTransactions(ctx context.Context, tx *sql.Tx, driverID uuid.UUID, c driver.Cycle) error {
	if len(c.Transactions) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO ledger_transactions (id, driver_id, cycle_number, seq, type, amount, date, note, reference)
               VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
               ON CONFLICT DO NOTHING`)
	if err != nil {
		return fmt.Errorf("error preparing transaction insert: %w", err)
	}
	defer stmt.Close()

	for _, t := range c.Transactions {
		_, err := stmt.ExecContext(ctx, t.ID, driverID, c.Number, t.Seq, string(t.Type), t.Amount, t.Date.UTC(), t.Note, t.Reference)
		if err != nil {
			return fmt.Errorf("error inserting transaction %d of cycle %d: %w", t.Seq, c.Number, err)
		}
	}
	return nil
}

func loadCycles(ctx context.Context, tx *sql.Tx, driverID uuid.UUID) ([]driver.Cycle, error) {
	query := `SELECT cycle_number, start_date, end_date, base_salary, total_advances, total_paid, status, last_updated
               FROM salary_cycles WHERE driver_id = $1 ORDER BY cycle_number`
	rows, err := tx.QueryContext(ctx, query, driverID)
	if err != nil {
		return nil, fmt.Errorf("error listing salary cycles: %w", err)
	}
	defer rows.Close()

	var cycles []driver.Cycle
	for rows.Next() {
		var c driver.Cycle
		var status string
		if err := rows.Scan(&c.Number, &c.StartDate, &c.EndDate, &c.BaseSalary, &c.Advances, &c.TotalPaid, &status, &c.LastUpdated); err != nil {
			return nil, fmt.Errorf("error scanning salary cycle: %w", err)
		}
		c.Status = driver.CycleStatus(status)
		c.StartDate, c.EndDate, c.LastUpdated = c.StartDate.UTC(), c.EndDate.UTC(), c.LastUpdated.UTC()
		cycles = append(cycles, c)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating salary cycles: %w", err)
	}
	return cycles, nil
}

// loadTransactions replays the ledger rows into the cycle that owns them.
func loadTransactions(ctx context.Context, tx *sql.Tx, d *driver.Driver) error {
	owners := make(map[int]*driver.Cycle, len(d.SalaryCycles)+1)
	for i := range d.SalaryCycles {
		owners[d.SalaryCycles[i].Number] = &d.SalaryCycles[i]
	}
	owners[d.CurrentCycle.Number] = &d.CurrentCycle

	query := `SELECT id, cycle_number, seq, type, amount, date, note, reference
               FROM ledger_transactions WHERE driver_id = $1 ORDER BY cycle_number, seq`
	rows, err := tx.QueryContext(ctx, query, d.ID)
	if err != nil {
		return fmt.Errorf("error listing ledger transactions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var t driver.Transaction
		var cycleNumber int
		var txType string
		if err := rows.Scan(&t.ID, &cycleNumber, &t.Seq, &txType, &t.Amount, &t.Date, &t.Note, &t.Reference); err != nil {
			return fmt.Errorf("error scanning ledger transaction: %w", err)
		}
		t.Type = driver.TransactionType(txType)
		t.Date = t.Date.UTC()
		owner, ok := owners[cycleNumber]
		if !ok {
			return fmt.Errorf("ledger transaction %s references unknown cycle %d", t.ID, cycleNumber)
		}
		owner.Transactions = append(owner.Transactions, t)
	}
	if err = rows.Err(); err != nil {
		return fmt.Errorf("error iterating ledger transactions: %w", err)
	}
	return nil
}

func loadAdvances(ctx context.Context, tx *sql.Tx, driverID uuid.UUID) ([]driver.Advance, error) {
	query := `SELECT seq, amount, date, notes, status, approved_by, approved_at
               FROM advances WHERE driver_id = $1 ORDER BY seq`
	rows, err := tx.QueryContext(ctx, query, driverID)
	if err != nil {
		return nil, fmt.Errorf("error listing advances: %w", err)
	}
	defer rows.Close()

	var advances []driver.Advance
	for rows.Next() {
		var a driver.Advance
		var status string
		if err := rows.Scan(&a.Seq, &a.Amount, &a.Date, &a.Notes, &status, &a.ApprovedBy, &a.ApprovedAt); err != nil {
			return nil, fmt.Errorf("error scanning advance: %w", err)
		}
		a.Status = driver.AdvanceStatus(status)
		a.Date, a.ApprovedAt = a.Date.UTC(), a.ApprovedAt.UTC()
		advances = append(advances, a)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating advances: %w", err)
	}
	return advances, nil
}

func nullableTelegramID(id int64) sql.NullInt64 {
	return sql.NullInt64{Int64: id, Valid: id != 0}
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

var _ driver.Repository = (*PostgresDriverRepository)(nil)
