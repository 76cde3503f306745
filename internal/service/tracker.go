// internal/service/tracker.go
package service

import (
	"time"

	"github.com/optiportal/campaign-engine/internal/model"
	"github.com/optiportal/campaign-engine/internal/repository"
)

// EnrollmentTracker decides which (campaign, customer) pairs carry an
// enrollment. Auto mode creates them for fresh segment matches; manual
// mode only advances what staff created. There is no automatic
// re-enrollment: an existing row, terminal or not, blocks a new one.
type EnrollmentTracker struct {
	Enrollments repository.EnrollmentRepositoryInterface
}

// Sync returns every enrollment of the campaign, creating missing ones
// for matched customers when the campaign auto-enrolls.
func (t *EnrollmentTracker) Sync(campaign *model.Campaign, matched []model.Customer, now time.Time) ([]model.Enrollment, error) {
	existing, err := t.Enrollments.ListByCampaign(campaign.ID)
	if err != nil {
		return nil, err
	}
	if campaign.Config.EnrollmentMode != model.EnrollAuto {
		return existing, nil
	}

	have := make(map[int]bool, len(existing))
	for _, e := range existing {
		have[e.CustomerID] = true
	}
	for _, c := range matched {
		if have[c.ID] {
			continue
		}
		e := &model.Enrollment{
			CampaignID:   campaign.ID,
			CustomerID:   c.ID,
			EnrolledAt:   now,
			LastStepSent: -1,
		}
		if err := t.Enrollments.Create(e); err != nil {
			return nil, err
		}
		existing = append(existing, *e)
	}
	return existing, nil
}
