// internal/transport/transport.go
package transport

import (
	"context"
	"log/slog"
	"math/rand"

	"golang.org/x/time/rate"

	appErrors "github.com/optiportal/campaign-engine/internal/errors"
	"github.com/optiportal/campaign-engine/internal/model"
)

// Message is one rendered outbound message.
type Message struct {
	Channel model.Channel
	To      string
	Subject string
	Body    string
}

// Sender delivers one message. Implementations wrap the real SMS and
// email providers; failures come back as TransportError.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Mux routes by channel.
type Mux struct {
	SMS   Sender
	Email Sender
}

func (m *Mux) Send(ctx context.Context, msg Message) error {
	var next Sender
	switch msg.Channel {
	case model.ChannelSMS:
		next = m.SMS
	case model.ChannelEmail:
		next = m.Email
	}
	if next == nil {
		return appErrors.NewTransport(string(msg.Channel), "no sender configured")
	}
	if msg.To == "" {
		return appErrors.NewTransport(string(msg.Channel), "no destination")
	}
	return next.Send(ctx, msg)
}

// LogSender is the dev/test provider: logs the message and fails a
// configurable fraction of the time.
type LogSender struct {
	Logger   *slog.Logger
	FailRate float64
	Rand     *rand.Rand
}

func (s *LogSender) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return appErrors.NewTransport(string(msg.Channel), "send cancelled: %v", err)
	}
	roll := rand.Float64()
	if s.Rand != nil {
		roll = s.Rand.Float64()
	}
	if roll < s.FailRate {
		return appErrors.NewTransport(string(msg.Channel), "simulated provider rejection")
	}
	if s.Logger != nil {
		s.Logger.Info("message sent", "channel", msg.Channel, "to", msg.To, "bytes", len(msg.Body))
	}
	return nil
}

// Throttled caps the outbound send rate so a big audience doesn't
// hammer the provider.
type Throttled struct {
	Next    Sender
	Limiter *rate.Limiter
}

func NewThrottled(next Sender, perSecond float64) *Throttled {
	return &Throttled{Next: next, Limiter: rate.NewLimiter(rate.Limit(perSecond), 1)}
}

func (t *Throttled) Send(ctx context.Context, msg Message) error {
	if err := t.Limiter.Wait(ctx); err != nil {
		return appErrors.NewTransport(string(msg.Channel), "rate limiter: %v", err)
	}
	return t.Next.Send(ctx, msg)
}

var _ Sender = (*Mux)(nil)
var _ Sender = (*LogSender)(nil)
var _ Sender = (*Throttled)(nil)
