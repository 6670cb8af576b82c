package scheduler

import (
	"context"
	"fmt"
	"time"

	"guestflow/internal/types"
)

// DefaultInvitationHour is the local hour at which check-in invitations go
// out, the morning before arrival.
const DefaultInvitationHour = 8

// DefaultInvitationInterval is how often the invitation scheduler polls.
const DefaultInvitationInterval = 10 * time.Minute

// InvitationReservationStore lists the reservations an invitation pass
// enqueues work for.
type InvitationReservationStore interface {
	// ListArrivingBetween returns reservations checking in within [from, to)
	// that have not been sent an invitation yet.
	ListArrivingBetween(ctx context.Context, orgID int64, from, to time.Time) ([]*types.Reservation, error)
}

// OrgLister enumerates the tenants a scheduler pass walks.
type OrgLister interface {
	ListAll(ctx context.Context) ([]*types.Organization, error)
}

// guardRetentionDays is how long daily run markers are kept before the
// winning pass prunes them.
const guardRetentionDays = 90

// RunGuard is the persisted once-per-day marker. TryMarkRun returns true for
// exactly one process per (scheduler, org, local date). DeleteBefore prunes
// markers older than the cutoff local date.
type RunGuard interface {
	TryMarkRun(ctx context.Context, scheduler types.SchedulerName, orgID int64, localDate string) (bool, error)
	DeleteBefore(ctx context.Context, cutoffDate string) (int64, error)
}

// JobEnqueuer pushes background jobs. Satisfied by queue.Queue.
type JobEnqueuer interface {
	Enqueue(ctx context.Context, payload types.JobPayload) error
}

// InvitationScheduler sends fulfillment jobs for reservations arriving
// tomorrow, once per day per organization at the configured local hour.
type InvitationScheduler struct {
	orgs         OrgLister
	reservations InvitationReservationStore
	guard        RunGuard
	queue        JobEnqueuer
	hour         int
	logger       types.Logger
}

var _ Task = (*InvitationScheduler)(nil)

func NewInvitationScheduler(orgs OrgLister, reservations InvitationReservationStore, guard RunGuard, queue JobEnqueuer, hour int, logger types.Logger) *InvitationScheduler {
	if hour < 0 || hour > 23 {
		hour = DefaultInvitationHour
	}
	return &InvitationScheduler{
		orgs:         orgs,
		reservations: reservations,
		guard:        guard,
		queue:        queue,
		hour:         hour,
		logger:       logger,
	}
}

func (s *InvitationScheduler) Name() string { return string(types.SchedulerInvitation) }

// RunOnce walks every organization and, where the local clock has entered the
// send hour and today's run has not happened yet, enqueues one fulfillment
// job per reservation checking in tomorrow. Per-organization and
// per-reservation errors are logged and isolated.
func (s *InvitationScheduler) RunOnce(ctx context.Context, now time.Time) error {
	orgs, err := s.orgs.ListAll(ctx)
	if err != nil {
		return fmt.Errorf("RunOnce: list organizations: %w", err)
	}

	for _, org := range orgs {
		if err := s.runOrg(ctx, org, now); err != nil {
			s.logger.Error("invitation pass failed for organization", "org_id", org.ID, "error", err)
		}
	}
	return nil
}

func (s *InvitationScheduler) runOrg(ctx context.Context, org *types.Organization, now time.Time) error {
	loc := orgLocation(org)
	local := now.In(loc)
	if local.Hour() != s.hour {
		return nil
	}

	won, err := s.guard.TryMarkRun(ctx, types.SchedulerInvitation, org.ID, local.Format("2006-01-02"))
	if err != nil {
		return fmt.Errorf("mark run: %w", err)
	}
	if !won {
		return nil
	}

	// The winner of the day also prunes stale run markers. A failed prune
	// only delays housekeeping until the next win.
	cutoff := local.AddDate(0, 0, -guardRetentionDays).Format("2006-01-02")
	if deleted, err := s.guard.DeleteBefore(ctx, cutoff); err != nil {
		s.logger.Warn("failed to prune scheduler run markers", "org_id", org.ID, "error", err)
	} else if deleted > 0 {
		s.logger.Info("pruned scheduler run markers", "count", deleted)
	}

	// Tomorrow as the organization's local calendar day.
	from := localDayStart(now, loc).AddDate(0, 0, 1)
	to := from.AddDate(0, 0, 1)

	reservations, err := s.reservations.ListArrivingBetween(ctx, org.ID, from.UTC(), to.UTC())
	if err != nil {
		return fmt.Errorf("list arrivals: %w", err)
	}

	s.logger.Info("invitation window open",
		"org_id", org.ID, "local_date", local.Format("2006-01-02"), "reservations", len(reservations))

	enqueued := 0
	for _, res := range reservations {
		err := s.queue.Enqueue(ctx, types.JobPayload{
			Type:          types.JobFulfillReservation,
			ReservationID: res.ID,
			Override:      res.ContactSnapshot(),
		})
		if err != nil {
			s.logger.Error("failed to enqueue invitation",
				"org_id", org.ID, "reservation_id", res.ID, "error", err)
			continue
		}
		enqueued++
	}

	if enqueued > 0 {
		s.logger.Info("invitations enqueued", "org_id", org.ID, "count", enqueued)
	}
	return nil
}
