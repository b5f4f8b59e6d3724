// Package notifier delivers issued codes to their recipients.
package notifier

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"log/slog"
	"time"

	"github.com/ErlanBelekov/otp-auth/internal/bus"
	"github.com/ErlanBelekov/otp-auth/internal/domain"
	"github.com/ErlanBelekov/otp-auth/internal/email"
	"github.com/ErlanBelekov/otp-auth/internal/metrics"
	"github.com/ErlanBelekov/otp-auth/internal/sms"
)

const subject = "Your sign-in code"

var htmlBody = template.Must(template.New("code").Parse(
	`<p>Your sign-in code is <strong>{{.}}</strong>.</p><p>It expires in a few minutes. If you did not request it, ignore this email.</p>`,
))

type Notifier struct {
	email      email.Sender
	sms        sms.Sender
	staleAfter time.Duration
	logger     *slog.Logger
	now        func() time.Time
}

func New(emailSender email.Sender, smsSender sms.Sender, staleAfter time.Duration, logger *slog.Logger) *Notifier {
	return &Notifier{
		email:      emailSender,
		sms:        smsSender,
		staleAfter: staleAfter,
		logger:     logger.With("component", "notifier"),
		now:        time.Now,
	}
}

// Handle delivers one otp.delivery_requested event. A request older than
// staleAfter is dropped since the code it carries has expired by then.
func (n *Notifier) Handle(ctx context.Context, env bus.Envelope) error {
	var req domain.DeliveryRequested
	if err := env.Decode(&req); err != nil {
		metrics.DeliveriesTotal.WithLabelValues("unknown", "malformed").Inc()
		return err
	}

	if n.staleAfter > 0 && n.now().Sub(env.EmittedAt) > n.staleAfter {
		metrics.DeliveriesTotal.WithLabelValues(string(req.Channel), "stale").Inc()
		n.logger.InfoContext(ctx, "drop stale delivery request", "channel", req.Channel, "emitted_at", env.EmittedAt)
		return nil
	}

	var err error
	switch req.Channel {
	case domain.ChannelEmail:
		err = n.sendEmail(ctx, req)
	case domain.ChannelSMS:
		err = n.sms.Send(ctx, req.Recipient, smsText(req.Content))
	default:
		metrics.DeliveriesTotal.WithLabelValues("unknown", "malformed").Inc()
		return bus.Permanent(fmt.Errorf("unknown channel %q", req.Channel))
	}

	if err != nil {
		metrics.DeliveriesTotal.WithLabelValues(string(req.Channel), "failed").Inc()
		n.logger.ErrorContext(ctx, "deliver code", "channel", req.Channel, "error", err)
		return fmt.Errorf("%w: %s: %w", domain.ErrDeliveryFailed, req.Channel, err)
	}

	metrics.DeliveriesTotal.WithLabelValues(string(req.Channel), "sent").Inc()
	n.logger.InfoContext(ctx, "code delivered", "channel", req.Channel)
	return nil
}

func (n *Notifier) sendEmail(ctx context.Context, req domain.DeliveryRequested) error {
	var html bytes.Buffer
	if err := htmlBody.Execute(&html, req.Content); err != nil {
		return fmt.Errorf("render email: %w", err)
	}
	return n.email.Send(ctx, email.Message{
		To:      req.Recipient,
		Subject: subject,
		Text:    fmt.Sprintf("Your sign-in code is %s. It expires in a few minutes.", req.Content),
		HTML:    html.String(),
	})
}

func smsText(code string) string {
	return fmt.Sprintf("Your sign-in code is %s", code)
}
