package scheduler

import (
	"context"
	"fmt"
	"time"

	"guestflow/internal/external"
	"guestflow/internal/types"
)

// DefaultCleanupHour is the local hour on checkout day after which a door
// passcode is revoked.
const DefaultCleanupHour = 11

// DefaultCleanupInterval is how often the passcode cleanup scheduler polls.
const DefaultCleanupInterval = 5 * time.Minute

// CleanupReservationStore provides the reservations still holding a passcode
// and clears the stored code once the lock side is revoked.
type CleanupReservationStore interface {
	// ListExpiredCodes returns reservations with an access code whose
	// check-out is at or before the cutoff. The local-hour deadline is
	// applied per reservation on top of this coarse filter.
	ListExpiredCodes(ctx context.Context, cutoff time.Time) ([]*types.Reservation, error)
	ClearAccessCode(ctx context.Context, id int64) error
}

// CleanupOrgStore resolves organizations for their timezone.
type CleanupOrgStore interface {
	GetByID(ctx context.Context, id int64) (*types.Organization, error)
}

// PasscodeCleanupScheduler revokes door passcodes once checkout day has
// passed the cleanup hour in the organization's timezone. A failed revocation
// stays eligible and is retried on the next pass; a code the lock no longer
// knows counts as revoked.
type PasscodeCleanupScheduler struct {
	reservations CleanupReservationStore
	orgs         CleanupOrgStore
	locks        external.LockProvider
	hour         int
	logger       types.Logger
}

var _ Task = (*PasscodeCleanupScheduler)(nil)

func NewPasscodeCleanupScheduler(reservations CleanupReservationStore, orgs CleanupOrgStore, locks external.LockProvider, hour int, logger types.Logger) *PasscodeCleanupScheduler {
	if hour < 0 || hour > 23 {
		hour = DefaultCleanupHour
	}
	return &PasscodeCleanupScheduler{
		reservations: reservations,
		orgs:         orgs,
		locks:        locks,
		hour:         hour,
		logger:       logger,
	}
}

func (s *PasscodeCleanupScheduler) Name() string { return string(types.SchedulerPasscodeCleanup) }

func (s *PasscodeCleanupScheduler) RunOnce(ctx context.Context, now time.Time) error {
	reservations, err := s.reservations.ListExpiredCodes(ctx, now)
	if err != nil {
		return fmt.Errorf("RunOnce: list expired codes: %w", err)
	}
	if len(reservations) == 0 {
		return nil
	}

	// Organizations are looked up once per pass, not once per reservation.
	orgCache := make(map[int64]*types.Organization)

	cleaned := 0
	for _, res := range reservations {
		org, ok := orgCache[res.OrganizationID]
		if !ok {
			org, err = s.orgs.GetByID(ctx, res.OrganizationID)
			if err != nil {
				s.logger.Error("failed to load organization for cleanup",
					"org_id", res.OrganizationID, "reservation_id", res.ID, "error", err)
				continue
			}
			orgCache[res.OrganizationID] = org
		}

		if now.Before(s.revokeDeadline(res, org)) {
			continue
		}
		if err := s.cleanupReservation(ctx, res); err != nil {
			s.logger.Error("passcode cleanup failed",
				"reservation_id", res.ID, "error", err)
			continue
		}
		cleaned++
	}

	if cleaned > 0 {
		s.logger.Info("passcodes revoked", "count", cleaned)
	}
	return nil
}

// revokeDeadline is the cleanup hour on the reservation's checkout day, in
// the organization's timezone.
func (s *PasscodeCleanupScheduler) revokeDeadline(res *types.Reservation, org *types.Organization) time.Time {
	loc := orgLocation(org)
	co := res.CheckOut.In(loc)
	return time.Date(co.Year(), co.Month(), co.Day(), s.hour, 0, 0, 0, loc)
}

func (s *PasscodeCleanupScheduler) cleanupReservation(ctx context.Context, res *types.Reservation) error {
	if res.AccessCode == nil || *res.AccessCode == "" {
		return nil
	}

	if res.LockID != nil && s.locks != nil {
		found, err := s.locks.DeleteCodeByValue(ctx, *res.LockID, *res.AccessCode)
		if err != nil {
			return fmt.Errorf("delete code on lock %d: %w", *res.LockID, err)
		}
		if !found {
			s.logger.Warn("passcode already absent from lock",
				"reservation_id", res.ID, "lock_id", *res.LockID)
		}
	}

	if err := s.reservations.ClearAccessCode(ctx, res.ID); err != nil {
		return fmt.Errorf("clear stored code: %w", err)
	}
	return nil
}
