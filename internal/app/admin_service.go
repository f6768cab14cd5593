package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cabapp/salary-ledger/internal/domain/driver"

	"github.com/google/uuid"
)

// AdminService authorizes admin actions and onboards drivers into the ledger.
type AdminService struct {
	driverRepo driver.Repository
	adminIDs   map[int64]struct{}
	now        func() time.Time
}

func NewAdminService(dr driver.Repository, adminIDs []int64) *AdminService {
	ids := make(map[int64]struct{}, len(adminIDs))
	for _, id := range adminIDs {
		ids[id] = struct{}{}
	}
	return &AdminService{
		driverRepo: dr,
		adminIDs:   ids,
		now:        time.Now,
	}
}

// IsAdmin reports whether the Telegram user may act on the ledger.
func (s *AdminService) IsAdmin(telegramID int64) bool {
	_, ok := s.adminIDs[telegramID]
	return ok
}

// Authorize returns ErrAdminNotAuthorized unless the user is a configured admin.
func (s *AdminService) Authorize(performingAdminID int64) error {
	if !s.IsAdmin(performingAdminID) {
		return ErrAdminNotAuthorized
	}
	return nil
}

// RegisterDriver creates a driver whose first salary cycle opens on the
// registration date. A zero date means today.
func (s *AdminService) RegisterDriver(ctx context.Context, performingAdminID int64, in RegisterDriverInput) (*driver.Driver, error) {
	if err := s.Authorize(performingAdminID); err != nil {
		return nil, err
	}
	in.Name = strings.TrimSpace(in.Name)
	if err := validateInput(in); err != nil {
		return nil, err
	}

	// Check if a driver already uses this Telegram ID
	if in.TelegramID != 0 {
		_, err := s.driverRepo.GetIDByTelegramID(ctx, in.TelegramID)
		if err == nil {
			return nil, ErrDriverAlreadyExists
		}
		if !errors.Is(err, driver.ErrNotFound) {
			return nil, fmt.Errorf("failed to check existing driver: %w", err)
		}
	}

	registered := in.RegistrationDate
	if registered.IsZero() {
		registered = s.now()
	}
	newDriver := driver.New(uuid.New(), in.Name, in.TelegramID, registered)

	if err := s.driverRepo.Create(ctx, newDriver); err != nil {
		if errors.Is(err, driver.ErrDuplicate) {
			return nil, ErrDriverAlreadyExists
		}
		return nil, fmt.Errorf("failed to create driver in repository: %w", err)
	}
	return newDriver, nil
}

// ListDrivers returns every registered driver profile.
func (s *AdminService) ListDrivers(ctx context.Context, performingAdminID int64) ([]driver.Profile, error) {
	if err := s.Authorize(performingAdminID); err != nil {
		return nil, err
	}
	profiles, err := s.driverRepo.ListProfiles(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list drivers: %w", err)
	}
	return profiles, nil
}

// FindDriverByTelegramID resolves the driver linked to a Telegram chat.
func (s *AdminService) FindDriverByTelegramID(ctx context.Context, telegramID int64) (uuid.UUID, error) {
	id, err := s.driverRepo.GetIDByTelegramID(ctx, telegramID)
	if err != nil {
		if errors.Is(err, driver.ErrNotFound) {
			return uuid.Nil, err
		}
		return uuid.Nil, fmt.Errorf("failed to get driver by Telegram ID: %w", err)
	}
	return id, nil
}
