// internal/service/campaign_service.go
package service

import (
	"fmt"
	"time"

	appErrors "github.com/optiportal/campaign-engine/internal/errors"
	"github.com/optiportal/campaign-engine/internal/model"
	"github.com/optiportal/campaign-engine/internal/repository"
	"github.com/optiportal/campaign-engine/internal/segment"
)

// CampaignService backs the staff-facing CRUD surface.
type CampaignService struct {
	CampaignRepo   repository.CampaignRepositoryInterface
	CustomerRepo   repository.CustomerRepositoryInterface
	EnrollmentRepo repository.EnrollmentRepositoryInterface
	MessageRepo    repository.MessageRepositoryInterface
	TemplateRepo   repository.TemplateRepositoryInterface
}

type CampaignDetails struct {
	*model.Campaign
	Stats map[string]int `json:"stats"`
}

// legalTransitions: campaigns are archived, never deleted.
var legalTransitions = map[model.CampaignStatus][]model.CampaignStatus{
	model.StatusDraft:     {model.StatusActive, model.StatusArchived},
	model.StatusActive:    {model.StatusPaused, model.StatusCompleted, model.StatusArchived},
	model.StatusPaused:    {model.StatusActive, model.StatusArchived},
	model.StatusCompleted: {model.StatusArchived},
	model.StatusArchived:  {},
}

// CreateCampaign validates the drip config and compiles the segment
// before persisting, so a bad field name fails here instead of at the
// next cron run.
func (s *CampaignService) CreateCampaign(c *model.Campaign) (*model.Campaign, error) {
	if c.Name == "" {
		return nil, fmt.Errorf("campaign name is required")
	}
	if c.Type == "" {
		c.Type = model.TypeCustom
	}
	if c.Config.EnrollmentMode == "" {
		c.Config.EnrollmentMode = model.EnrollAuto
	}
	if c.Segment.Logic == "" {
		c.Segment.Logic = model.LogicAnd
	}
	if err := c.Config.Validate(); err != nil {
		return nil, appErrors.NewConfiguration(0, "%v", err)
	}
	if _, err := segment.Compile(0, c.Segment); err != nil {
		return nil, err
	}
	c.Status = model.StatusDraft
	if err := s.CampaignRepo.Create(c); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *CampaignService) UpdateCampaign(c *model.Campaign) error {
	existing, err := s.CampaignRepo.GetByID(c.ID)
	if err != nil {
		return err
	}
	if existing.Status == model.StatusArchived {
		return fmt.Errorf("archived campaigns cannot be edited")
	}
	if err := c.Config.Validate(); err != nil {
		return appErrors.NewConfiguration(c.ID, "%v", err)
	}
	if _, err := segment.Compile(c.ID, c.Segment); err != nil {
		return err
	}
	return s.CampaignRepo.Update(c)
}

// TransitionStatus enforces the campaign lifecycle.
func (s *CampaignService) TransitionStatus(campaignID int, to model.CampaignStatus) error {
	c, err := s.CampaignRepo.GetByID(campaignID)
	if err != nil {
		return err
	}
	for _, allowed := range legalTransitions[c.Status] {
		if allowed == to {
			return s.CampaignRepo.UpdateStatus(campaignID, to)
		}
	}
	return fmt.Errorf("cannot transition campaign from %s to %s", c.Status, to)
}

// ListCampaigns fetches campaigns with pagination
func (s *CampaignService) ListCampaigns(page, pageSize int, status, campaignType string) ([]model.Campaign, map[string]int, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}
	offset := (page - 1) * pageSize

	ptrs, total, err := s.CampaignRepo.List(offset, pageSize, status, campaignType)
	if err != nil {
		return nil, nil, err
	}

	campaigns := make([]model.Campaign, len(ptrs))
	for i, c := range ptrs {
		campaigns[i] = *c
	}

	totalPages := (total + pageSize - 1) / pageSize
	pagination := map[string]int{
		"page":        page,
		"page_size":   pageSize,
		"total_count": total,
		"total_pages": totalPages,
	}

	return campaigns, pagination, nil
}

func (s *CampaignService) GetCampaignDetailsWithStats(campaignID int) (*CampaignDetails, error) {
	campaign, err := s.CampaignRepo.GetByID(campaignID)
	if err != nil {
		return nil, err
	}
	stats, err := s.MessageRepo.StatsByCampaign(campaignID)
	if err != nil {
		return nil, err
	}
	return &CampaignDetails{Campaign: campaign, Stats: stats}, nil
}

// RenderPreview renders one step of a campaign against a real
// customer, for the staff preview pane.
func (s *CampaignService) RenderPreview(campaignID, customerID, stepIndex int) (string, error) {
	campaign, err := s.CampaignRepo.GetByID(campaignID)
	if err != nil {
		return "", err
	}
	customer, err := s.CustomerRepo.GetByID(customerID)
	if err != nil {
		return "", err
	}
	if customer == nil {
		return "", fmt.Errorf("customer not found")
	}

	steps := campaign.Config.SortedSteps()
	if stepIndex < 0 || stepIndex >= len(steps) {
		return "", fmt.Errorf("campaign has no step %d", stepIndex)
	}
	step := steps[stepIndex]
	body := step.TemplateBody
	if body == "" && s.TemplateRepo != nil {
		tpl, err := s.TemplateRepo.DefaultFor(step.Channel, campaign.Type)
		if err != nil {
			return "", err
		}
		if tpl != nil {
			body = tpl.Body
		}
	}
	if body == "" {
		return "", appErrors.NewConfiguration(campaignID, "step %d has no template", stepIndex)
	}
	return RenderTemplate(body, CustomerPlaceholders(customer)), nil
}

// ManualEnroll adds one customer to a manual-mode campaign. An
// existing enrollment, terminal or not, blocks a second one; re-running
// a customer through the same campaign needs a new campaign.
func (s *CampaignService) ManualEnroll(campaignID, customerID int) (*model.Enrollment, error) {
	campaign, err := s.CampaignRepo.GetByID(campaignID)
	if err != nil {
		return nil, err
	}
	if campaign.Status == model.StatusArchived {
		return nil, fmt.Errorf("campaign is archived")
	}
	customer, err := s.CustomerRepo.GetByID(customerID)
	if err != nil {
		return nil, err
	}
	if customer == nil {
		return nil, fmt.Errorf("customer not found")
	}

	existing, err := s.EnrollmentRepo.Get(campaignID, customerID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, fmt.Errorf("customer %d is already enrolled in campaign %d", customerID, campaignID)
	}

	e := &model.Enrollment{
		CampaignID:   campaignID,
		CustomerID:   customerID,
		EnrolledAt:   time.Now(),
		LastStepSent: -1,
	}
	if err := s.EnrollmentRepo.Create(e); err != nil {
		return nil, err
	}
	return e, nil
}

func (s *CampaignService) ListEnrollments(campaignID int) ([]model.Enrollment, error) {
	if _, err := s.CampaignRepo.GetByID(campaignID); err != nil {
		return nil, err
	}
	return s.EnrollmentRepo.ListByCampaign(campaignID)
}
