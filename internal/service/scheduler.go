// internal/service/scheduler.go
package service

import (
	"time"

	"github.com/optiportal/campaign-engine/internal/model"
)

// StepScheduler computes the next due step, if any, for one
// enrollment. Step delays are relative to the previous send, or to
// enrollment time for step 0.
type StepScheduler struct{}

// NextDue returns the due step and true when a send is warranted right
// now. lastOtherContact is the customer's most recent message from any
// other campaign; the cooldown floor suppresses sends inside that
// window. The decision is re-evaluated every run; the dispatcher's
// claim is what makes it at-most-once.
func (StepScheduler) NextDue(e *model.Enrollment, cfg model.CampaignConfig, sched model.ScheduleConfig, lastOtherContact time.Time, now time.Time) (model.DripStep, bool) {
	if e.Terminal(cfg) {
		return model.DripStep{}, false
	}

	steps := cfg.SortedSteps()
	next := e.LastStepSent + 1
	if next < 0 || next >= len(steps) {
		return model.DripStep{}, false
	}
	step := steps[next]

	base := e.EnrolledAt
	if e.LastSentAt != nil {
		base = *e.LastSentAt
	}
	due := base.AddDate(0, 0, step.DelayDays)
	if now.Before(due) {
		return model.DripStep{}, false
	}

	if cfg.CooldownDays > 0 && !lastOtherContact.IsZero() {
		cooldown := time.Duration(cfg.CooldownDays) * 24 * time.Hour
		if now.Sub(lastOtherContact) < cooldown {
			return model.DripStep{}, false
		}
	}

	if !sched.Allows(now) {
		return model.DripStep{}, false
	}
	return step, true
}
