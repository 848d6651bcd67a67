// README: Periodic lifecycle jobs: complete trips past arrival and expire stale pending bookings.
package service

import (
	"context"
	"log"
	"time"

	"carpool/internal/apperrors"
	"carpool/internal/metrics"
	"carpool/internal/storage"
)

const (
	JobAutoComplete  = "auto_complete_trips"
	JobExpirePending = "expire_pending_bookings"
)

// Leaser runs fn under a cluster-wide lease and reports false when another
// replica holds it.
type Leaser interface {
	Do(ctx context.Context, name string, ttl time.Duration, fn func(context.Context) error) (bool, error)
}

type LifecycleService struct {
	uow    storage.UnitOfWork
	leaser Leaser
	now    Clock

	PendingTTLHours int
	LeaseTTL        time.Duration
}

func NewLifecycleService(uow storage.UnitOfWork, leaser Leaser, pendingTTLHours int) *LifecycleService {
	return &LifecycleService{
		uow:             uow,
		leaser:          leaser,
		now:             systemClock,
		PendingTTLHours: pendingTTLHours,
		LeaseTTL:        50 * time.Second,
	}
}

func (s *LifecycleService) WithClock(c Clock) *LifecycleService {
	s.now = c
	return s
}

// AutoCompleteTrips completes published trips whose estimated arrival is
// before now. The bulk write re-checks the status, so a trip canceled or
// started after selection is left alone. Returns the rows changed.
func (s *LifecycleService) AutoCompleteTrips(ctx context.Context, now time.Time) (int64, error) {
	ids, err := s.uow.Trips().FindPublishedPastArrival(ctx, now)
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}
	n, err := s.uow.Trips().BulkSetCompleted(ctx, ids, now)
	if err != nil {
		return 0, err
	}
	metrics.AddJobRows(JobAutoComplete, n)
	return n, nil
}

// ExpirePendingBookings expires bookings that have been pending longer than
// ttlHours. Returns the rows changed.
func (s *LifecycleService) ExpirePendingBookings(ctx context.Context, ttlHours int) (int64, error) {
	if ttlHours <= 0 {
		return 0, apperrors.BadRequest("ttl hours must be positive")
	}
	now := s.now()
	cutoff := now.Add(-time.Duration(ttlHours) * time.Hour)
	n, err := s.uow.Bookings().BulkExpireOlderThan(ctx, cutoff, now)
	if err != nil {
		return 0, err
	}
	metrics.AddJobRows(JobExpirePending, n)
	return n, nil
}

// RunOnce runs both jobs, holding the lease when a leaser is configured.
func (s *LifecycleService) RunOnce(ctx context.Context) error {
	if s.leaser == nil {
		return s.runJobs(ctx)
	}
	ran, err := s.leaser.Do(ctx, "lifecycle", s.LeaseTTL, s.runJobs)
	if err == nil && !ran {
		log.Printf("lifecycle: lease held elsewhere, skipping tick")
	}
	return err
}

func (s *LifecycleService) runJobs(ctx context.Context) error {
	completed, err := s.AutoCompleteTrips(ctx, s.now())
	if err != nil {
		return err
	}
	expired, err := s.ExpirePendingBookings(ctx, s.PendingTTLHours)
	if err != nil {
		return err
	}
	if completed > 0 || expired > 0 {
		log.Printf("lifecycle: completed %d trips, expired %d bookings", completed, expired)
	}
	return nil
}

// RunScheduler runs the jobs every tick until ctx is canceled.
func (s *LifecycleService) RunScheduler(ctx context.Context, tick time.Duration) {
	ticker := time.NewTicker(tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.RunOnce(ctx); err != nil {
				log.Printf("lifecycle: tick failed: %v", err)
			}
		}
	}
}
