package scheduler

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/dragonfly/internal/common"
	"github.com/ternarybob/dragonfly/internal/interfaces"
	"github.com/ternarybob/dragonfly/internal/models"
)

// Service triggers the detection pipeline on a cron schedule. Every
// cycle it enumerates tracked accounts and enqueues one check job per
// eligible account. The dedup key check-<accountID> keeps a second
// cycle from stacking jobs for an account whose check is still live.
type Service struct {
	accounts     interfaces.AccountStorage
	enqueuer     interfaces.Enqueuer
	cron         *cron.Cron
	logger       arbor.ILogger
	mu           sync.Mutex // Protects isProcessing
	running      bool
	isProcessing bool
}

// NewService creates a new scheduler service
func NewService(accounts interfaces.AccountStorage, enqueuer interfaces.Enqueuer, logger arbor.ILogger) *Service {
	return &Service{
		accounts: accounts,
		enqueuer: enqueuer,
		cron:     cron.New(cron.WithSeconds()),
		logger:   logger,
	}
}

// Start begins the scheduler with the given cron expression
func (s *Service) Start(cronExpr string) error {
	if s.running {
		return fmt.Errorf("scheduler already running")
	}

	if cronExpr == "" {
		cronExpr = "*/30 * * * * *" // Default: every 30 seconds
	}
	if err := common.ValidateSchedule(cronExpr); err != nil {
		return fmt.Errorf("invalid schedule: %w", err)
	}

	// The cron runner expects a seconds field; prepend one for standard
	// 5-field expressions.
	if len(strings.Fields(cronExpr)) == 5 {
		cronExpr = "0 " + cronExpr
	}

	if _, err := s.cron.AddFunc(cronExpr, s.runCycle); err != nil {
		return fmt.Errorf("failed to add cron job: %w", err)
	}

	s.cron.Start()
	s.running = true

	s.logger.Info().
		Str("cron_expr", cronExpr).
		Msg("Scheduler started")

	return nil
}

// Stop halts the scheduler
func (s *Service) Stop() error {
	if !s.running {
		return nil
	}

	s.cron.Stop()
	s.running = false

	s.logger.Info().Msg("Scheduler stopped")
	return nil
}

// IsRunning returns true if scheduler is active
func (s *Service) IsRunning() bool {
	return s.running
}

// TriggerNow runs one check cycle immediately
func (s *Service) TriggerNow() {
	go s.runCycle()
}

// runCycle enumerates accounts and enqueues check jobs
func (s *Service) runCycle() {
	// Panic recovery to prevent service crash
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().
				Str("panic", fmt.Sprintf("%v", r)).
				Msg("Panic recovered in scheduler cycle")
		}
	}()

	s.mu.Lock()
	if s.isProcessing {
		s.mu.Unlock()
		s.logger.Debug().Msg("Previous cycle still running, skipping")
		return
	}
	s.isProcessing = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.isProcessing = false
		s.mu.Unlock()
	}()

	ctx := context.Background()

	if err := s.RunCycle(ctx); err != nil {
		s.logger.Error().Err(err).Msg("Scheduler cycle failed")
	}
}

// RunCycle performs one enumeration pass. Accounts without a
// destination credential are skipped with a warning; an enumeration
// failure skips the whole cycle.
func (s *Service) RunCycle(ctx context.Context) error {
	accounts, err := s.accounts.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to enumerate accounts: %w", err)
	}

	enqueued := 0
	for _, account := range accounts {
		if !account.Eligible() {
			s.logger.Warn().
				Str("account_id", account.ID).
				Msg("Account has no destination credential, skipping check")
			continue
		}

		job := models.CheckJob{
			AccountID: account.ID,
			SecUID:    account.SecUID,
		}
		_, err := s.enqueuer.Enqueue(ctx, models.QueueCheck, job, interfaces.EnqueueOptions{
			DedupKey: "check-" + account.ID,
		})
		if err != nil {
			s.logger.Error().
				Err(err).
				Str("account_id", account.ID).
				Msg("Failed to enqueue check job")
			continue
		}
		enqueued++
	}

	s.logger.Debug().
		Int("accounts", len(accounts)).
		Int("enqueued", enqueued).
		Msg("Scheduler cycle completed")

	return nil
}
