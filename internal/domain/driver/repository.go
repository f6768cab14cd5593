package driver

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	ErrNotFound        = errors.New("driver not found")
	ErrDuplicate       = errors.New("driver already exists")
	ErrVersionConflict = errors.New("driver was modified concurrently")
)

// Repository persists Driver aggregates.
type Repository interface {
	Create(ctx context.Context, d *Driver) error
	Get(ctx context.Context, id uuid.UUID) (*Driver, error)
	// Save writes d if the stored version still equals d.Version, otherwise it
	// returns ErrVersionConflict. On success d.Version is incremented.
	Save(ctx context.Context, d *Driver) error
	GetIDByTelegramID(ctx context.Context, telegramID int64) (uuid.UUID, error)
	ListProfiles(ctx context.Context) ([]Profile, error)
}
