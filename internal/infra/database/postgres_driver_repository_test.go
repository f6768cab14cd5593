package database

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/cabapp/salary-ledger/internal/domain/driver"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func testDB(t *testing.T) *sql.DB {
	t.Helper()
	dsn := os.Getenv("LEDGER_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("set LEDGER_TEST_DATABASE_URL to run postgres tests")
	}
	ctx := context.Background()
	db, err := NewPostgresConnection(ctx, dsn)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := EnsureSchema(ctx, db); err != nil {
		t.Fatalf("schema: %v", err)
	}
	return db
}

func uniqueTelegramID() int64 {
	return time.Now().UnixNano()
}

func TestPostgresDriverRepository_RoundTrip(t *testing.T) {
	db := testDB(t)
	repo := NewPostgresDriverRepository(db)
	ctx := context.Background()

	start := time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)
	d := driver.New(uuid.New(), "Ravi", uniqueTelegramID(), start)
	d.SetBaseSalary(decimal.NewFromInt(3000), "initial", start.Add(time.Hour))
	if err := repo.Create(ctx, d); err != nil {
		t.Fatalf("create: %v", err)
	}

	loaded, err := repo.Get(ctx, d.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !loaded.CurrentCycle.BaseSalary.Equal(decimal.NewFromInt(3000)) {
		t.Errorf("base salary = %s", loaded.CurrentCycle.BaseSalary)
	}
	if len(loaded.CurrentCycle.Transactions) != 1 {
		t.Fatalf("expected 1 transaction, got %d", len(loaded.CurrentCycle.Transactions))
	}

	loaded.GiveAdvance(decimal.NewFromInt(1000), "fuel", start.Add(2*time.Hour), 42, start.Add(2*time.Hour))
	if err := repo.Save(ctx, loaded); err != nil {
		t.Fatalf("save advance: %v", err)
	}
	if loaded.Version != 1 {
		t.Errorf("version = %d, want 1", loaded.Version)
	}

	summary, rolled := driver.Rollover(start.Add(31*24*time.Hour), loaded)
	if !rolled {
		t.Fatal("expected rollover")
	}
	if err := repo.Save(ctx, loaded); err != nil {
		t.Fatalf("save rollover: %v", err)
	}

	got, err := repo.Get(ctx, d.ID)
	if err != nil {
		t.Fatalf("get after rollover: %v", err)
	}
	if got.CurrentCycle.Number != 2 {
		t.Errorf("current cycle = %d, want 2", got.CurrentCycle.Number)
	}
	if !got.CurrentCycle.BaseSalary.Equal(summary.CarryForward) {
		t.Errorf("carry forward = %s, want %s", got.CurrentCycle.BaseSalary, summary.CarryForward)
	}
	if len(got.SalaryCycles) != 1 {
		t.Fatalf("expected 1 archived cycle, got %d", len(got.SalaryCycles))
	}
	archived := got.SalaryCycles[0]
	if archived.Status != driver.StatusCompleted || len(archived.Transactions) != 2 {
		t.Errorf("archived cycle = %+v", archived)
	}
	if len(got.Advances) != 1 || got.Advances[0].ApprovedBy != 42 {
		t.Errorf("advances = %+v", got.Advances)
	}
	if err := got.Validate(); err != nil {
		t.Errorf("validate: %v", err)
	}
}

func TestPostgresDriverRepository_KeepsSubCentAmountsExact(t *testing.T) {
	db := testDB(t)
	repo := NewPostgresDriverRepository(db)
	ctx := context.Background()

	start := time.Date(2025, 2, 1, 9, 0, 0, 0, time.UTC)
	d := driver.New(uuid.New(), "Kiran", uniqueTelegramID(), start)
	d.SetBaseSalary(decimal.RequireFromString("1234.5678"), "", start)
	if err := repo.Create(ctx, d); err != nil {
		t.Fatalf("create: %v", err)
	}

	for i := 0; i < 2; i++ {
		loaded, err := repo.Get(ctx, d.ID)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		at := start.Add(time.Duration(i+1) * time.Hour)
		loaded.GiveAdvance(decimal.RequireFromString("0.0005"), "", at, 1, at)
		if err := repo.Save(ctx, loaded); err != nil {
			t.Fatalf("save advance %d: %v", i+1, err)
		}
	}

	got, err := repo.Get(ctx, d.ID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if err := got.Validate(); err != nil {
		t.Fatalf("validate after reload: %v", err)
	}
	if !got.CurrentCycle.Advances.Equal(decimal.RequireFromString("0.001")) {
		t.Errorf("current advances = %s, want 0.001", got.CurrentCycle.Advances)
	}
	if !got.CurrentCycle.BaseSalary.Equal(decimal.RequireFromString("1234.5678")) {
		t.Errorf("base salary = %s, want 1234.5678", got.CurrentCycle.BaseSalary)
	}
	for _, a := range got.Advances {
		if !a.Amount.Equal(decimal.RequireFromString("0.0005")) {
			t.Errorf("advance %d amount = %s, want 0.0005", a.Seq, a.Amount)
		}
	}
}

func TestPostgresDriverRepository_Errors(t *testing.T) {
	db := testDB(t)
	repo := NewPostgresDriverRepository(db)
	ctx := context.Background()

	if _, err := repo.Get(ctx, uuid.New()); !errors.Is(err, driver.ErrNotFound) {
		t.Errorf("get unknown: %v", err)
	}
	if _, err := repo.GetIDByTelegramID(ctx, -1); !errors.Is(err, driver.ErrNotFound) {
		t.Errorf("telegram lookup: %v", err)
	}

	now := time.Now().UTC()
	tg := uniqueTelegramID()
	d := driver.New(uuid.New(), "Anil", tg, now)
	if err := repo.Create(ctx, d); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := repo.Create(ctx, driver.New(uuid.New(), "Anil again", tg, now)); !errors.Is(err, driver.ErrDuplicate) {
		t.Errorf("duplicate telegram id: %v", err)
	}
	id, err := repo.GetIDByTelegramID(ctx, tg)
	if err != nil || id != d.ID {
		t.Errorf("telegram lookup = %s, %v", id, err)
	}

	a, _ := repo.Get(ctx, d.ID)
	b, _ := repo.Get(ctx, d.ID)
	a.SetBaseSalary(decimal.NewFromInt(100), "", now)
	if err := repo.Save(ctx, a); err != nil {
		t.Fatalf("first save: %v", err)
	}
	b.SetBaseSalary(decimal.NewFromInt(200), "", now)
	if err := repo.Save(ctx, b); !errors.Is(err, driver.ErrVersionConflict) {
		t.Errorf("stale save: %v", err)
	}

	profiles, err := repo.ListProfiles(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	found := false
	for _, p := range profiles {
		if p.ID == d.ID {
			found = true
		}
	}
	if !found {
		t.Error("registered driver missing from profiles")
	}
}

func TestPostgresBookingSource(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	_, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS bookings (
		id TEXT PRIMARY KEY, driver_id UUID NOT NULL, fare NUMERIC(20,4) NOT NULL, status TEXT NOT NULL)`)
	if err != nil {
		t.Fatalf("bookings table: %v", err)
	}
	driverID := uuid.New()
	prefix := driverID.String()
	_, err = db.ExecContext(ctx, `INSERT INTO bookings (id, driver_id, fare, status) VALUES
		($1, $3, 250.50, 'completed'), ($2, $3, 100, 'cancelled')`, prefix+"-a", prefix+"-b", driverID)
	if err != nil {
		t.Fatalf("seed bookings: %v", err)
	}

	got, err := NewPostgresBookingSource(db).ListByDriver(ctx, driverID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 || got[0].Status != "completed" || !got[0].Fare.Equal(decimal.RequireFromString("250.5")) {
		t.Errorf("bookings = %+v", got)
	}
}
