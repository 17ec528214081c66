// Package scheduler drives the recurring billing run: issue the current
// period's invoices, then sweep newly overdue ones. Both jobs are
// idempotent, so an interrupted run is simply picked up by the next
// tick.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	auditdomain "github.com/baladiya/wastebilling/internal/audit/domain"
	"github.com/baladiya/wastebilling/internal/auditcontext"
	"github.com/baladiya/wastebilling/internal/clock"
	invoicedomain "github.com/baladiya/wastebilling/internal/invoice/domain"
	obsmetrics "github.com/baladiya/wastebilling/internal/observability/metrics"
	"github.com/baladiya/wastebilling/internal/period"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	jobGenerateInvoices = "generate_invoices"
	jobMarkOverdue      = "mark_overdue"
)

var ErrInvalidConfig = errors.New("scheduler: missing required dependency")

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	InvoiceSvc invoicedomain.Service
	AuditSvc   auditdomain.Service
	GenID      *snowflake.Node
	Clock      clock.Clock
	Config     Config `optional:"true"`
}

type Scheduler struct {
	db         *gorm.DB
	log        *zap.Logger
	cfg        Config
	genID      *snowflake.Node
	clock      clock.Clock
	invoiceSvc invoicedomain.Service
	auditSvc   auditdomain.Service
}

func New(p Params) (*Scheduler, error) {
	if p.DB == nil || p.Log == nil || p.InvoiceSvc == nil || p.AuditSvc == nil || p.GenID == nil || p.Clock == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		db:         p.DB,
		log:        p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:        p.Config.withDefaults(),
		genID:      p.GenID,
		clock:      p.Clock,
		invoiceSvc: p.InvoiceSvc,
		auditSvc:   p.AuditSvc,
	}, nil
}

func (s *Scheduler) runJob(parent context.Context, name string, fn func(ctx context.Context) error) error {
	start := time.Now()
	ctx, cancel := context.WithTimeout(parent, s.cfg.JobTimeout)
	defer cancel()

	ctx = auditcontext.WithActor(ctx, "scheduler")
	runID := s.genID.Generate().String()
	log := s.log.With(zap.String("job", name), zap.String("run_id", runID))

	schedMetrics := obsmetrics.Scheduler()
	schedMetrics.IncJobRun(name)
	log.Info("job started")

	err := fn(ctx)
	schedMetrics.ObserveJobDuration(name, time.Since(start))
	if err == nil {
		log.Info("job finished", zap.Duration("elapsed", time.Since(start)))
		return nil
	}

	schedMetrics.IncJobError(name, err)
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		// Soft timeout: the next tick resumes where this one stopped.
		log.Warn("job timed out", zap.Duration("timeout", s.cfg.JobTimeout), zap.Error(err))
		return nil
	}

	log.Error("job failed", zap.Error(err))
	return fmt.Errorf("%s: %w", name, err)
}

// RunOnce executes one billing run: generation first so freshly issued
// invoices are never swept overdue by the same tick.
func (s *Scheduler) RunOnce(parent context.Context) error {
	var err error

	if s.cfg.jobEnabled(jobGenerateInvoices) {
		err = errors.Join(err, s.runJob(parent, jobGenerateInvoices, s.GenerateInvoicesJob))
	}
	if s.cfg.jobEnabled(jobMarkOverdue) {
		err = errors.Join(err, s.runJob(parent, jobMarkOverdue, s.MarkOverdueJob))
	}
	return err
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()
	nextRun := time.Now().Add(s.cfg.RunInterval)
	schedMetrics := obsmetrics.Scheduler()

	for {
		if lag := time.Since(nextRun); lag > 0 {
			schedMetrics.ObserveRunLoopLag(lag)
		}
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}
		nextRun = nextRun.Add(s.cfg.RunInterval)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// GenerateInvoicesJob issues invoices for the current calendar period.
// Generation is idempotent per (service, customer, period), so a rerun
// within the same month only reports skips.
func (s *Scheduler) GenerateInvoicesJob(ctx context.Context) error {
	current := period.FromTime(s.clock.Now())
	result, err := s.invoiceSvc.GenerateForPeriod(ctx, invoicedomain.GenerateRequest{Period: current.String()})

	schedMetrics := obsmetrics.Scheduler()
	schedMetrics.AddBatchProcessed(jobGenerateInvoices, "invoices", result.Created)
	if result.Created > 0 || result.Skipped > 0 {
		s.log.Info("billing run generated invoices",
			zap.String("period", result.Period),
			zap.Int("created", result.Created),
			zap.Int("skipped", result.Skipped),
		)
	}
	return err
}

// MarkOverdueJob flips still-unpaid invoices whose due date passed.
func (s *Scheduler) MarkOverdueJob(ctx context.Context) error {
	swept, err := s.invoiceSvc.MarkOverdue(ctx, s.clock.Now())
	if err != nil {
		return err
	}
	obsmetrics.Scheduler().AddBatchProcessed(jobMarkOverdue, "invoices", swept)
	return nil
}
