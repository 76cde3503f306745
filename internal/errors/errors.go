// internal/errors/errors.go
package appErrors

import (
	"errors"
	"fmt"
)

// ErrCampaignNotFound is a sentinel error
type ErrCampaignNotFound struct {
	CampaignID int
}

func (e *ErrCampaignNotFound) Error() string {
	return fmt.Sprintf("campaign with ID %d not found", e.CampaignID)
}

// Helper constructor
func NewCampaignNotFound(id int) error {
	return &ErrCampaignNotFound{CampaignID: id}
}

// ConfigurationError means one campaign's segment or step config is
// malformed. Caught at the per-campaign boundary and counted against
// that campaign only; the rest of the run keeps going.
type ConfigurationError struct {
	CampaignID int
	Reason     string
}

func (e *ConfigurationError) Error() string {
	if e.CampaignID > 0 {
		return fmt.Sprintf("campaign %d configuration: %s", e.CampaignID, e.Reason)
	}
	return fmt.Sprintf("campaign configuration: %s", e.Reason)
}

func NewConfiguration(campaignID int, format string, args ...any) error {
	return &ConfigurationError{CampaignID: campaignID, Reason: fmt.Sprintf(format, args...)}
}

// TransportError means a single message failed to send. Caught
// per-message; enrollment state is left unchanged so the step is
// retried on the next run.
type TransportError struct {
	Channel string
	Reason  string
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s transport: %s", e.Channel, e.Reason)
}

func NewTransport(channel, format string, args ...any) error {
	return &TransportError{Channel: channel, Reason: fmt.Sprintf(format, args...)}
}

// ErrStepAlreadyClaimed: the claim-before-send compare-and-swap lost
// the race. Callers treat it as a no-op, never as a failure.
var ErrStepAlreadyClaimed = errors.New("step already claimed by a concurrent run")

// ErrRunInProgress: the run lease is held by another process.
var ErrRunInProgress = errors.New("campaign run already in progress")

// FatalError aborts the whole run: store unreachable or the run
// deadline exceeded. Surfaced as the 500 response at the trigger.
type FatalError struct {
	Err error
}

func (e *FatalError) Error() string { return "fatal run error: " + e.Err.Error() }
func (e *FatalError) Unwrap() error { return e.Err }

func NewFatal(err error) error {
	if err == nil {
		return nil
	}
	return &FatalError{Err: err}
}
