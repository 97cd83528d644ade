package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/example/saukimart/internal/models"
)

// PendingLister finds transactions still awaiting payment confirmation.
type PendingLister interface {
	ListPending(ctx context.Context, createdAfter, createdBefore time.Time, limit int) ([]models.Transaction, error)
}

// PendingSweeper periodically reconciles pending transactions whose customer
// stopped polling and whose webhook never arrived. It only ever selects
// pending transactions, so it cannot retry a failed delivery.
type PendingSweeper struct {
	lister     PendingLister
	reconciler TransactionReconciler
	minAge     time.Duration
	maxAge     time.Duration
	batchSize  int
	log        *slog.Logger
	now        func() time.Time
	scheduler  gocron.Scheduler
}

// NewPendingSweeper creates a new PendingSweeper.
func NewPendingSweeper(lister PendingLister, reconciler TransactionReconciler, minAge, maxAge time.Duration, log *slog.Logger) *PendingSweeper {
	if log == nil {
		log = slog.Default()
	}
	return &PendingSweeper{
		lister:     lister,
		reconciler: reconciler,
		minAge:     minAge,
		maxAge:     maxAge,
		batchSize:  50,
		log:        log.With("component", "sweeper"),
		now:        time.Now,
	}
}

// Start schedules Sweep every interval. Runs never overlap.
func (s *PendingSweeper) Start(interval time.Duration) error {
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("create scheduler: %w", err)
	}

	_, err = scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			ctx, cancel := context.WithTimeout(context.Background(), interval)
			defer cancel()
			s.Sweep(ctx)
		}),
		gocron.WithName("pending-transaction-sweep"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = scheduler.Shutdown()
		return fmt.Errorf("schedule sweep: %w", err)
	}

	scheduler.Start()
	s.scheduler = scheduler
	s.log.Info("pending sweep scheduled", "interval", interval, "min_age", s.minAge, "max_age", s.maxAge)
	return nil
}

// Shutdown stops the scheduler and waits for a running sweep.
func (s *PendingSweeper) Shutdown() error {
	if s.scheduler == nil {
		return nil
	}
	return s.scheduler.Shutdown()
}

// Sweep reconciles one batch and returns how many transactions it visited.
func (s *PendingSweeper) Sweep(ctx context.Context) int {
	now := s.now()
	txns, err := s.lister.ListPending(ctx, now.Add(-s.maxAge), now.Add(-s.minAge), s.batchSize)
	if err != nil {
		s.log.Error("list pending transactions", "error", err)
		return 0
	}

	visited := 0
	for _, txn := range txns {
		if ctx.Err() != nil {
			break
		}
		visited++
		status, err := s.reconciler.Reconcile(ctx, ReconcileRequest{TxRef: txn.TxRef, Source: SourceSweeper})
		if err != nil {
			s.log.Warn("sweep reconcile failed", "tx_ref", txn.TxRef, "error", err)
			continue
		}
		if status != models.StatusPending {
			s.log.Info("sweep advanced transaction", "tx_ref", txn.TxRef, "status", status)
		}
	}
	return visited
}
