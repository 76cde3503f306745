// internal/service/dispatcher.go
package service

import (
	"context"
	"log/slog"
	"time"

	appErrors "github.com/optiportal/campaign-engine/internal/errors"
	"github.com/optiportal/campaign-engine/internal/metrics"
	"github.com/optiportal/campaign-engine/internal/model"
	"github.com/optiportal/campaign-engine/internal/repository"
	"github.com/optiportal/campaign-engine/internal/transport"
)

const defaultSendTimeout = 10 * time.Second

// Dispatcher renders and sends one step to one customer. It claims the
// step on the enrollment before sending; together with the scheduler's
// due check that is the at-most-once guarantee. A transport failure
// rolls the claim back so the next run retries.
type Dispatcher struct {
	Enrollments repository.EnrollmentRepositoryInterface
	Messages    repository.MessageRepositoryInterface
	Templates   repository.TemplateRepositoryInterface
	Sender      transport.Sender
	SendTimeout time.Duration
	Logger      *slog.Logger
}

func (d *Dispatcher) Dispatch(ctx context.Context, campaign *model.Campaign, e *model.Enrollment, customer *model.Customer, step model.DripStep, now time.Time) error {
	body, subject, err := d.resolveTemplate(campaign, step)
	if err != nil {
		return err
	}
	data := CustomerPlaceholders(customer)
	renderedBody := RenderTemplate(body, data)
	renderedSubject := RenderTemplate(subject, data)

	prevStep := e.LastStepSent
	prevSentAt := e.LastSentAt
	if err := d.Enrollments.ClaimStep(e.ID, prevStep, step.StepIndex, now); err != nil {
		return err
	}

	timeout := d.SendTimeout
	if timeout <= 0 {
		timeout = defaultSendTimeout
	}
	sendCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	sendErr := d.Sender.Send(sendCtx, transport.Message{
		Channel: step.Channel,
		To:      destination(customer, step.Channel),
		Subject: renderedSubject,
		Body:    renderedBody,
	})
	if sendErr != nil {
		if rerr := d.Enrollments.ReleaseStep(e.ID, prevStep, step.StepIndex, prevSentAt); rerr != nil {
			d.logger().Error("failed to release claimed step", "enrollment", e.ID, "step", step.StepIndex, "err", rerr)
		}
		d.recordOutcome(campaign, e, step, model.MessageFailed, renderedBody, renderedSubject, sendErr.Error(), now)
		metrics.MessagesTotal.WithLabelValues(string(step.Channel), model.MessageFailed).Inc()
		return sendErr
	}

	e.LastStepSent = step.StepIndex
	sentAt := now
	e.LastSentAt = &sentAt
	d.recordOutcome(campaign, e, step, model.MessageSent, renderedBody, renderedSubject, "", now)
	metrics.MessagesTotal.WithLabelValues(string(step.Channel), model.MessageSent).Inc()
	return nil
}

// resolveTemplate prefers the step's inline template, falling back to
// the default template for the (channel, campaign type) pair.
func (d *Dispatcher) resolveTemplate(campaign *model.Campaign, step model.DripStep) (body, subject string, err error) {
	if step.TemplateBody != "" {
		return step.TemplateBody, step.TemplateSubject, nil
	}
	if d.Templates != nil {
		tpl, err := d.Templates.DefaultFor(step.Channel, campaign.Type)
		if err != nil {
			return "", "", err
		}
		if tpl != nil {
			subject = tpl.Subject
			if step.TemplateSubject != "" {
				subject = step.TemplateSubject
			}
			return tpl.Body, subject, nil
		}
	}
	return "", "", appErrors.NewConfiguration(campaign.ID, "step %d has no template and no default exists for %s/%s",
		step.StepIndex, step.Channel, campaign.Type)
}

func (d *Dispatcher) recordOutcome(campaign *model.Campaign, e *model.Enrollment, step model.DripStep, status, body, subject, lastError string, now time.Time) {
	msg := &model.OutboundMessage{
		EnrollmentID:    e.ID,
		CampaignID:      campaign.ID,
		CustomerID:      e.CustomerID,
		StepIndex:       step.StepIndex,
		Channel:         step.Channel,
		Status:          status,
		RenderedBody:    body,
		RenderedSubject: subject,
		LastError:       lastError,
		SentAt:          now,
	}
	if err := d.Messages.Record(msg); err != nil {
		// History is reporting, not the correctness gate; the claim
		// already happened. Log and move on.
		d.logger().Error("failed to record send history", "enrollment", e.ID, "step", step.StepIndex, "err", err)
	}
}

func (d *Dispatcher) logger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}

func destination(c *model.Customer, ch model.Channel) string {
	switch ch {
	case model.ChannelSMS:
		return c.Phone
	case model.ChannelEmail:
		return c.Email
	}
	return ""
}
