// Package mailer delivers transactional email such as account verification codes.
package mailer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
	"gopkg.in/mail.v2"

	"github.com/skillswap/backend/internal/config"
	"github.com/skillswap/backend/internal/logging"
	"github.com/skillswap/backend/internal/metrics"
)

// ErrUnavailable is returned while the breaker is open.
var ErrUnavailable = errors.New("mail delivery unavailable")

// Verification is the content of an account verification message.
type Verification struct {
	To        string
	Username  string
	Code      string
	ExpiresAt time.Time
}

// Sender delivers verification messages.
type Sender interface {
	SendVerification(ctx context.Context, v Verification) error
}

var verificationTemplate = template.Must(template.New("verification").Parse(`<!DOCTYPE html>
<html>
  <body style="font-family: sans-serif">
    <p>Hi {{.Username}},</p>
    <p>Your SkillSwap verification code is:</p>
    <p style="font-size: 24px; letter-spacing: 4px"><strong>{{.Code}}</strong></p>
    <p>The code expires at {{.ExpiresAt.Format "15:04 MST"}}.</p>
  </body>
</html>
`))

// RenderVerification produces the HTML body of a verification message.
func RenderVerification(v Verification) (string, error) {
	var buf bytes.Buffer
	if err := verificationTemplate.Execute(&buf, v); err != nil {
		return "", fmt.Errorf("render verification mail: %w", err)
	}
	return buf.String(), nil
}

// DialFunc sends a fully built message.
type DialFunc func(m *mail.Message) error

// SMTPSender sends mail through an SMTP relay behind a circuit breaker.
type SMTPSender struct {
	from    string
	dial    DialFunc
	breaker *gobreaker.CircuitBreaker[struct{}]
}

// NewSMTPSender builds a sender for cfg. The breaker opens after five
// consecutive failures and probes again after a minute.
func NewSMTPSender(cfg config.MailConfig, logger *slog.Logger) *SMTPSender {
	dialer := mail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	dialer.Timeout = 10 * time.Second
	return NewSMTPSenderWithDialer(cfg.From, func(m *mail.Message) error {
		return dialer.DialAndSend(m)
	}, logger)
}

// NewSMTPSenderWithDialer wires a sender around an arbitrary delivery function.
func NewSMTPSenderWithDialer(from string, dial DialFunc, logger *slog.Logger) *SMTPSender {
	if logger == nil {
		logger = slog.Default()
	}
	settings := gobreaker.Settings{
		Name:        "smtp",
		MaxRequests: 1,
		Interval:    5 * time.Minute,
		Timeout:     time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("mail circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
	}
	return &SMTPSender{
		from:    from,
		dial:    dial,
		breaker: gobreaker.NewCircuitBreaker[struct{}](settings),
	}
}

// SendVerification renders and sends v. Delivery is attempted once.
func (s *SMTPSender) SendVerification(ctx context.Context, v Verification) error {
	body, err := RenderVerification(v)
	if err != nil {
		return err
	}

	m := mail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", v.To)
	m.SetHeader("Subject", "Your SkillSwap verification code")
	m.SetBody("text/html", body)

	_, span := logging.StartSpan(ctx, "mailer.send_verification", slog.String("to", v.To))
	defer span.End()

	_, err = s.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, s.dial(m)
	})
	switch {
	case err == nil:
		metrics.MailDeliveries.WithLabelValues("sent").Inc()
		return nil
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		metrics.MailDeliveries.WithLabelValues("skipped").Inc()
		span.Fail(err)
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	default:
		metrics.MailDeliveries.WithLabelValues("failed").Inc()
		span.Fail(err)
		return fmt.Errorf("send verification mail: %w", err)
	}
}

// LogSender records verification codes in the log instead of mailing them.
type LogSender struct{}

// SendVerification logs v at info level.
func (LogSender) SendVerification(ctx context.Context, v Verification) error {
	logging.FromContext(ctx).Info("verification mail disabled; code logged", "to", v.To, "username", v.Username, "code", v.Code)
	metrics.MailDeliveries.WithLabelValues("logged").Inc()
	return nil
}

var (
	_ Sender = (*SMTPSender)(nil)
	_ Sender = LogSender{}
)
