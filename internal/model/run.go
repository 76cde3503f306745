// internal/model/run.go
package model

import "time"

// CampaignRunResult is one campaign's tally for a single run.
type CampaignRunResult struct {
	CampaignID     int    `json:"campaignId"`
	CampaignName   string `json:"campaignName,omitempty"`
	MessagesSent   int    `json:"messagesSent"`
	MessagesFailed int    `json:"messagesFailed"`
	Error          string `json:"error,omitempty"`
}

// RunSummary is what the cron trigger gets back.
type RunSummary struct {
	RunID       string              `json:"runId"`
	ProcessedAt time.Time           `json:"processedAt"`
	DurationMs  int64               `json:"durationMs"`
	Campaigns   int                 `json:"campaigns"`
	TotalSent   int                 `json:"totalSent"`
	TotalFailed int                 `json:"totalFailed"`
	Results     []CampaignRunResult `json:"results"`
}
