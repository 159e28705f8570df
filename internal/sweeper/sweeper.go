// Package sweeper periodically reconciles Pro plans whose period has ended,
// so owners who never come back are still renewed or downgraded.
package sweeper

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MarkoPoloResearchLab/menuwallet/internal/observability"
	"github.com/MarkoPoloResearchLab/menuwallet/pkg/wallet"
	"go.uber.org/zap"
)

const (
	resultSwept   = "swept"
	resultSkipped = "skipped"
	resultFailed  = "failed"
)

var ErrInvalidConfig = errors.New("sweeper: invalid config")

// PlanService is the slice of the wallet service the sweeper drives.
type PlanService interface {
	ProUsersDue(ctx context.Context, limit int) ([]wallet.UserID, error)
	EnsurePlanStatus(ctx context.Context, userID wallet.UserID) (wallet.SyncOutcome, error)
}

// Report summarises one sweep.
type Report struct {
	Checked  int
	Outcomes map[wallet.SyncOutcome]int
	Failures int
	Skipped  bool
}

type Sweeper struct {
	service PlanService
	locker  Locker
	log     *zap.Logger
	cfg     Config
}

// New builds a Sweeper. A nil locker means this process is the only sweeper.
func New(service PlanService, locker Locker, log *zap.Logger, cfg Config) (*Sweeper, error) {
	if service == nil || log == nil {
		return nil, ErrInvalidConfig
	}
	return &Sweeper{
		service: service,
		locker:  locker,
		log:     log.Named("sweeper"),
		cfg:     cfg.withDefaults(),
	}, nil
}

// RunOnce reconciles up to BatchSize due users. Per-user failures are counted, not returned.
func (s *Sweeper) RunOnce(ctx context.Context) (Report, error) {
	report := Report{Outcomes: map[wallet.SyncOutcome]int{}}
	if s.locker != nil {
		token, acquired, err := s.locker.TryLock(ctx, s.cfg.LockKey, s.cfg.LockTTL)
		if err != nil {
			observability.RecordSweep(resultFailed)
			return report, fmt.Errorf("acquire sweep lock: %w", err)
		}
		if !acquired {
			observability.RecordSweep(resultSkipped)
			report.Skipped = true
			return report, nil
		}
		defer func() {
			if releaseErr := s.locker.Release(context.Background(), s.cfg.LockKey, token); releaseErr != nil {
				s.log.Warn("release sweep lock", zap.Error(releaseErr))
			}
		}()
	}

	userIDs, err := s.service.ProUsersDue(ctx, s.cfg.BatchSize)
	if err != nil {
		observability.RecordSweep(resultFailed)
		return report, fmt.Errorf("list due users: %w", err)
	}
	for _, userID := range userIDs {
		if ctx.Err() != nil {
			break
		}
		report.Checked++
		outcome, syncErr := s.service.EnsurePlanStatus(ctx, userID)
		if syncErr != nil {
			report.Failures++
			s.log.Warn("sweep user failed", zap.String("user_id", userID.String()), zap.Error(syncErr))
			continue
		}
		report.Outcomes[outcome]++
	}
	observability.RecordSweep(resultSwept)
	if report.Checked > 0 {
		s.log.Info("sweep finished",
			zap.Int("checked", report.Checked),
			zap.Int("renewed", report.Outcomes[wallet.SyncOutcomeRenewed]),
			zap.Int("repaired", report.Outcomes[wallet.SyncOutcomeRepaired]),
			zap.Int("downgraded", report.Outcomes[wallet.SyncOutcomeDowngraded]),
			zap.Int("failures", report.Failures),
		)
	}
	return report, nil
}

// RunForever sweeps immediately and then on every tick until ctx is done.
func (s *Sweeper) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		if _, err := s.RunOnce(ctx); err != nil {
			s.log.Warn("sweep run failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
