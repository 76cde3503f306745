// internal/model/campaign.go
package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

type CampaignStatus string

const (
	StatusDraft     CampaignStatus = "DRAFT"
	StatusActive    CampaignStatus = "ACTIVE"
	StatusPaused    CampaignStatus = "PAUSED"
	StatusCompleted CampaignStatus = "COMPLETED"
	StatusArchived  CampaignStatus = "ARCHIVED"
)

// CampaignType is one of the fixed marketing archetypes the portal
// offers. New types get added here and nowhere else.
type CampaignType string

const (
	TypeWelcome           CampaignType = "new_customer_welcome"
	TypeExamReminder      CampaignType = "exam_reminder"
	TypeAnnualRecall      CampaignType = "annual_recall"
	TypeBirthday          CampaignType = "birthday"
	TypeLapsedCustomer    CampaignType = "lapsed_customer"
	TypeContactLensRefill CampaignType = "contact_lens_refill"
	TypeGlassesReady      CampaignType = "glasses_ready_followup"
	TypePostPurchase      CampaignType = "post_purchase_care"
	TypeSeasonalPromo     CampaignType = "seasonal_promo"
	TypeInsuranceBenefits CampaignType = "insurance_benefits_reminder"
	TypeAbandonedOrder    CampaignType = "abandoned_order"
	TypeReferralRequest   CampaignType = "referral_request"
	TypeReviewRequest     CampaignType = "review_request"
	TypeNewArrivals       CampaignType = "frame_new_arrivals"
	TypeSunglassesSeason  CampaignType = "sunglasses_season"
	TypeBackToSchool      CampaignType = "back_to_school"
	TypeHolidayPromo      CampaignType = "holiday_promo"
	TypeVIPAppreciation   CampaignType = "vip_appreciation"
	TypeWinBack           CampaignType = "win_back"
	TypeCustom            CampaignType = "custom"
)

type Channel string

const (
	ChannelSMS   Channel = "SMS"
	ChannelEmail Channel = "EMAIL"
)

type EnrollmentMode string

const (
	EnrollAuto   EnrollmentMode = "auto"
	EnrollManual EnrollmentMode = "manual"
)

type Campaign struct {
	ID        int               `db:"id" json:"id"`
	Name      string            `db:"name" json:"name"`
	Type      CampaignType      `db:"type" json:"type"`
	Status    CampaignStatus    `db:"status" json:"status"`
	Segment   SegmentDefinition `db:"segment_config" json:"segment_config"`
	Schedule  ScheduleConfig    `db:"schedule_config" json:"schedule_config"`
	Config    CampaignConfig    `db:"config" json:"config"`
	CreatedAt time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt *time.Time        `db:"updated_at" json:"updated_at,omitempty"`
}

// DripStep is one scheduled message in the campaign sequence.
// DelayDays is relative to the previous send, or to enrollment for
// step 0.
type DripStep struct {
	StepIndex       int     `json:"step_index"`
	DelayDays       int     `json:"delay_days"`
	Channel         Channel `json:"channel"`
	TemplateBody    string  `json:"template_body,omitempty"`
	TemplateSubject string  `json:"template_subject,omitempty"`
}

type CampaignConfig struct {
	Steps            []DripStep     `json:"steps"`
	StopOnConversion bool           `json:"stop_on_conversion"`
	CooldownDays     int            `json:"cooldown_days"`
	EnrollmentMode   EnrollmentMode `json:"enrollment_mode"`
}

// Validate re-checks what the portal's validation layer should have
// enforced before persistence: unique non-negative step indexes
// covering 0..n-1 and non-negative delays.
func (c CampaignConfig) Validate() error {
	if len(c.Steps) == 0 {
		return fmt.Errorf("campaign config has no steps")
	}
	seen := make(map[int]bool, len(c.Steps))
	for _, s := range c.Steps {
		if s.StepIndex < 0 || s.StepIndex >= len(c.Steps) {
			return fmt.Errorf("step index %d out of range", s.StepIndex)
		}
		if seen[s.StepIndex] {
			return fmt.Errorf("duplicate step index %d", s.StepIndex)
		}
		seen[s.StepIndex] = true
		if s.DelayDays < 0 {
			return fmt.Errorf("step %d has negative delay", s.StepIndex)
		}
		if s.Channel != ChannelSMS && s.Channel != ChannelEmail {
			return fmt.Errorf("step %d has unknown channel %q", s.StepIndex, s.Channel)
		}
	}
	return nil
}

// SortedSteps returns the steps ordered by StepIndex.
func (c CampaignConfig) SortedSteps() []DripStep {
	steps := make([]DripStep, len(c.Steps))
	copy(steps, c.Steps)
	sort.Slice(steps, func(i, j int) bool { return steps[i].StepIndex < steps[j].StepIndex })
	return steps
}

// ScheduleConfig constrains when messages may go out. Zero hours mean
// no window; empty DaysOfWeek means every day.
type ScheduleConfig struct {
	Frequency     string         `json:"frequency,omitempty"`
	SendStartHour int            `json:"send_start_hour,omitempty"`
	SendEndHour   int            `json:"send_end_hour,omitempty"`
	DaysOfWeek    []time.Weekday `json:"days_of_week,omitempty"`
}

// Allows reports whether t falls inside the configured send window.
func (s ScheduleConfig) Allows(t time.Time) bool {
	if len(s.DaysOfWeek) > 0 {
		ok := false
		for _, d := range s.DaysOfWeek {
			if t.Weekday() == d {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	if s.SendStartHour == 0 && s.SendEndHour == 0 {
		return true
	}
	h := t.Hour()
	return h >= s.SendStartHour && h < s.SendEndHour
}

// ====================== JSONB column plumbing ======================

func jsonValue(v any) (driver.Value, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return b, nil
}

func jsonScan(src, dst any) error {
	switch b := src.(type) {
	case []byte:
		return json.Unmarshal(b, dst)
	case string:
		return json.Unmarshal([]byte(b), dst)
	case nil:
		return nil
	default:
		return fmt.Errorf("unsupported jsonb source type %T", src)
	}
}

func (c CampaignConfig) Value() (driver.Value, error) { return jsonValue(c) }
func (c *CampaignConfig) Scan(src any) error          { return jsonScan(src, c) }

func (s ScheduleConfig) Value() (driver.Value, error) { return jsonValue(s) }
func (s *ScheduleConfig) Scan(src any) error          { return jsonScan(src, s) }
