// internal/service/engine.go
//
// Run Coordinator: processes every ACTIVE campaign under the run
// lease. Campaigns fail independently; only store or deadline failures
// abort the run.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	appErrors "github.com/optiportal/campaign-engine/internal/errors"
	"github.com/optiportal/campaign-engine/internal/lease"
	"github.com/optiportal/campaign-engine/internal/metrics"
	"github.com/optiportal/campaign-engine/internal/model"
	"github.com/optiportal/campaign-engine/internal/repository"
	"github.com/optiportal/campaign-engine/internal/segment"
	"github.com/optiportal/campaign-engine/internal/transport"
)

const (
	runLeaseName       = "campaign-run"
	defaultRunTimeout  = 4 * time.Minute
	defaultConcurrency = 4
	leaseGrace         = 30 * time.Second
)

type Engine struct {
	Campaigns   repository.CampaignRepositoryInterface
	Customers   repository.CustomerRepositoryInterface
	Enrollments repository.EnrollmentRepositoryInterface
	Messages    repository.MessageRepositoryInterface
	Templates   repository.TemplateRepositoryInterface
	Sender      transport.Sender
	Lease       lease.Lease
	Logger      *slog.Logger

	Concurrency int
	SendTimeout time.Duration
	RunTimeout  time.Duration

	// Now is a test hook; nil means time.Now.
	Now func() time.Time
}

// ProcessAllCampaigns runs one coordinated batch over every ACTIVE
// campaign and returns the per-campaign summary. ErrRunInProgress
// means another process holds the lease; FatalError means the store
// was unreachable or the run deadline was exceeded.
func (e *Engine) ProcessAllCampaigns(ctx context.Context) (*model.RunSummary, error) {
	started := time.Now()
	now := e.now()

	runTimeout := e.RunTimeout
	if runTimeout <= 0 {
		runTimeout = defaultRunTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, runTimeout)
	defer cancel()

	token, acquired, err := e.Lease.Acquire(ctx, runLeaseName, runTimeout+leaseGrace)
	if err != nil {
		metrics.RunsTotal.WithLabelValues("fatal").Inc()
		return nil, appErrors.NewFatal(fmt.Errorf("acquire run lease: %w", err))
	}
	if !acquired {
		metrics.RunsTotal.WithLabelValues("skipped").Inc()
		return nil, appErrors.ErrRunInProgress
	}
	defer func() {
		if err := e.Lease.Release(context.WithoutCancel(ctx), runLeaseName, token); err != nil {
			e.logger().Error("failed to release run lease", "err", err)
		}
	}()

	campaigns, err := e.Campaigns.ListByStatus(model.StatusActive)
	if err != nil {
		metrics.RunsTotal.WithLabelValues("fatal").Inc()
		return nil, appErrors.NewFatal(fmt.Errorf("list active campaigns: %w", err))
	}
	population, err := e.Customers.ListPopulation()
	if err != nil {
		metrics.RunsTotal.WithLabelValues("fatal").Inc()
		return nil, appErrors.NewFatal(fmt.Errorf("load customer population: %w", err))
	}
	seed, err := e.Messages.LastContactTimes()
	if err != nil {
		metrics.RunsTotal.WithLabelValues("fatal").Inc()
		return nil, appErrors.NewFatal(fmt.Errorf("load contact history: %w", err))
	}
	contacts := newContactLog(seed)

	concurrency := e.Concurrency
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}

	results := make([]model.CampaignRunResult, len(campaigns))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, c := range campaigns {
		i, c := i, c
		g.Go(func() error {
			results[i] = e.processCampaign(gctx, c, population, contacts, now)
			// A deadline mid-campaign turns the whole run fatal; a
			// campaign's own failure stays in its result.
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		metrics.RunsTotal.WithLabelValues("fatal").Inc()
		return nil, appErrors.NewFatal(fmt.Errorf("run aborted: %w", err))
	}

	summary := &model.RunSummary{
		RunID:       uuid.NewString(),
		ProcessedAt: now,
		DurationMs:  time.Since(started).Milliseconds(),
		Campaigns:   len(campaigns),
		Results:     results,
	}
	for _, r := range results {
		summary.TotalSent += r.MessagesSent
		summary.TotalFailed += r.MessagesFailed
	}

	metrics.RunsTotal.WithLabelValues("ok").Inc()
	metrics.RunDuration.Observe(time.Since(started).Seconds())
	e.logger().Info("campaign run complete",
		"run_id", summary.RunID, "campaigns", summary.Campaigns,
		"sent", summary.TotalSent, "failed", summary.TotalFailed,
		"duration_ms", summary.DurationMs)
	return summary, nil
}

// processCampaign handles one campaign end to end. All failures are
// folded into the returned result so sibling campaigns are unaffected.
func (e *Engine) processCampaign(ctx context.Context, c *model.Campaign, population []model.Customer, contacts *contactLog, now time.Time) (res model.CampaignRunResult) {
	res = model.CampaignRunResult{CampaignID: c.ID, CampaignName: c.Name}
	defer func() {
		if r := recover(); r != nil {
			res.Error = fmt.Sprintf("panic: %v", r)
			res.MessagesFailed++
		}
	}()

	if err := c.Config.Validate(); err != nil {
		return e.failCampaign(res, appErrors.NewConfiguration(c.ID, "%v", err))
	}
	seg, err := segment.Compile(c.ID, c.Segment)
	if err != nil {
		return e.failCampaign(res, err)
	}

	matched := seg.Filter(population, contacts.anySnapshot(), now)
	tracker := EnrollmentTracker{Enrollments: e.Enrollments}
	enrollments, err := tracker.Sync(c, matched, now)
	if err != nil {
		return e.failCampaign(res, fmt.Errorf("sync enrollments: %w", err))
	}

	byID := make(map[int]*model.Customer, len(population))
	for i := range population {
		byID[population[i].ID] = &population[i]
	}

	dispatcher := &Dispatcher{
		Enrollments: e.Enrollments,
		Messages:    e.Messages,
		Templates:   e.Templates,
		Sender:      e.Sender,
		SendTimeout: e.SendTimeout,
		Logger:      e.Logger,
	}
	var scheduler StepScheduler

	for i := range enrollments {
		if ctx.Err() != nil {
			break
		}
		en := &enrollments[i]
		customer := byID[en.CustomerID]
		if customer == nil {
			continue
		}
		lastOther, _ := contacts.lastOther(en.CustomerID, c.ID)
		step, due := scheduler.NextDue(en, c.Config, c.Schedule, lastOther, now)
		if !due {
			continue
		}

		err := dispatcher.Dispatch(ctx, c, en, customer, step, now)
		switch {
		case err == nil:
			res.MessagesSent++
			contacts.record(en.CustomerID, c.ID, now)
		case errors.Is(err, appErrors.ErrStepAlreadyClaimed):
			// another process already advanced this enrollment
		default:
			res.MessagesFailed++
			e.logger().Warn("send failed",
				"campaign", c.ID, "customer", en.CustomerID,
				"step", step.StepIndex, "err", err)
		}
	}
	return res
}

func (e *Engine) failCampaign(res model.CampaignRunResult, err error) model.CampaignRunResult {
	res.Error = err.Error()
	res.MessagesFailed++
	e.logger().Warn("campaign skipped", "campaign", res.CampaignID, "err", err)
	return res
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e *Engine) logger() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.Default()
}
