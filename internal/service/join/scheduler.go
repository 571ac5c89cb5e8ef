package join

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"lakegov/internal/domain"
)

// revalidateConcurrency bounds concurrent candidate sampling.
const revalidateConcurrency = 4

// revalidateTimeout bounds one scheduled revalidation run.
const revalidateTimeout = 30 * time.Minute

// schedulerActor is the identity scheduled revalidations run and audit as.
var schedulerActor = domain.Actor{Name: "join-scheduler", Role: domain.RoleEngineer}

// RevalidateSummary counts the outcome of one revalidation pass.
type RevalidateSummary struct {
	Checked      int64
	HardFailures int64
	Errors       int64
}

// Revalidate re-samples every proposed candidate. Per-candidate failures are
// logged and counted; only listing the candidates can fail the pass.
func (e *Engine) Revalidate(ctx context.Context) (RevalidateSummary, error) {
	var sum RevalidateSummary
	candidates, err := e.joins.ListCandidates(ctx, nil, nil, ptr(domain.CandidateProposed))
	if err != nil {
		return sum, err
	}

	var checked, failed, errs atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(revalidateConcurrency)
	for _, c := range candidates {
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			report, err := e.Validate(gctx, schedulerActor, c.ID, false)
			if err != nil {
				errs.Add(1)
				e.logger.Warn("scheduled revalidation failed", "candidate_id", c.ID, "error", err)
				return nil
			}
			checked.Add(1)
			if hf := report.HardFailure(); hf != nil {
				failed.Add(1)
				e.logger.Warn("proposed join no longer validates",
					"candidate_id", c.ID,
					"table_a", c.TableA,
					"table_b", c.TableB,
					"check", hf.Name,
					"detail", hf.Detail,
				)
			}
			return nil
		})
	}
	err = g.Wait()
	sum = RevalidateSummary{Checked: checked.Load(), HardFailures: failed.Load(), Errors: errs.Load()}
	return sum, err
}

// Scheduler periodically revalidates proposed join candidates.
type Scheduler struct {
	cron     *cron.Cron
	engine   *Engine
	schedule string
	logger   *slog.Logger
}

// NewScheduler creates a scheduler for a cron expression. An empty schedule
// disables revalidation.
func NewScheduler(engine *Engine, schedule string, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		cron:     cron.New(),
		engine:   engine,
		schedule: schedule,
		logger:   logger.With("component", "join-scheduler"),
	}
}

// Start registers the revalidation job and starts the cron scheduler.
func (s *Scheduler) Start() error {
	if s.schedule == "" {
		s.logger.Info("join revalidation disabled")
		return nil
	}
	if _, err := s.cron.AddFunc(s.schedule, s.run); err != nil {
		return fmt.Errorf("join revalidation schedule %q: %w", s.schedule, err)
	}
	s.cron.Start()
	s.logger.Info("join scheduler started", "schedule", s.schedule)
	return nil
}

// Stop stops the scheduler and waits for a running pass to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("join scheduler stopped")
}

func (s *Scheduler) run() {
	ctx, cancel := context.WithTimeout(context.Background(), revalidateTimeout)
	defer cancel()

	start := time.Now()
	sum, err := s.engine.Revalidate(ctx)
	if err != nil {
		s.logger.Error("join revalidation failed", "error", err)
		return
	}
	s.logger.Info("join revalidation completed",
		"checked", sum.Checked,
		"hard_failures", sum.HardFailures,
		"errors", sum.Errors,
		"duration", time.Since(start),
	)
}
