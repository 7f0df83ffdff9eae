// Package notify delivers new-post notifications over SMTP.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"syscall"
	"time"

	mail "github.com/wneessen/go-mail"

	"feedwatch/internal/config"
)

const smtpTimeout = 10 * time.Second

var errDisabled = errors.New("mailer disabled: SMTP_HOST is not set")

// Payload is one rendered notification about a newly published post.
type Payload struct {
	FeedTitle string
	PostTitle string
	PostLink  string
	Summary   string
}

// RetryPolicy bounds redelivery attempts after transient transport errors.
type RetryPolicy struct {
	MaxAttempts int
	Delay       time.Duration
}

// Mailer sends notification email through an SMTP relay.
type Mailer struct {
	client *mail.Client
	from   string
	to     string
	retry  RetryPolicy
	logger *log.Logger

	// send is swapped out in tests.
	send func(ctx context.Context, msg *mail.Msg) error
}

// NewMailer builds a Mailer from config. With no SMTP host configured the
// mailer is disabled and every send reports an error.
func NewMailer(cfg config.Config, logger *log.Logger) (*Mailer, error) {
	m := &Mailer{
		from:   cfg.MailFrom,
		to:     cfg.MailTo,
		retry:  RetryPolicy{MaxAttempts: 2, Delay: 2 * time.Second},
		logger: logger,
	}
	if cfg.SMTPHost == "" {
		return m, nil
	}

	opts := []mail.Option{
		mail.WithPort(cfg.SMTPPort),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(cfg.SMTPUser),
		mail.WithPassword(cfg.SMTPPass),
		mail.WithTimeout(smtpTimeout),
	}
	// Port 465 speaks SSL from the first byte; everything else upgrades
	// with STARTTLS.
	if cfg.SMTPPort == 465 {
		opts = append(opts, mail.WithSSL())
	} else {
		opts = append(opts, mail.WithTLSPolicy(mail.TLSMandatory))
	}

	client, err := mail.NewClient(cfg.SMTPHost, opts...)
	if err != nil {
		return nil, fmt.Errorf("build smtp client: %w", err)
	}
	m.client = client
	m.send = func(ctx context.Context, msg *mail.Msg) error {
		return client.DialAndSendWithContext(ctx, msg)
	}
	return m, nil
}

// Send delivers a single new-post notification.
func (m *Mailer) Send(ctx context.Context, p Payload) error {
	subject := fmt.Sprintf("New post on %s: %s", p.FeedTitle, p.PostTitle)
	body, err := renderBody([]Payload{p})
	if err != nil {
		return err
	}
	return m.deliver(ctx, subject, body)
}

// SendBatch delivers several notifications as one message; the subject
// carries the count.
func (m *Mailer) SendBatch(ctx context.Context, payloads []Payload) error {
	if len(payloads) == 0 {
		return nil
	}
	subject := fmt.Sprintf("%d new posts from your feeds", len(payloads))
	body, err := renderBody(payloads)
	if err != nil {
		return err
	}
	return m.deliver(ctx, subject, body)
}

func (m *Mailer) deliver(ctx context.Context, subject, body string) error {
	if m.send == nil {
		return errDisabled
	}

	msg := mail.NewMsg()
	if err := msg.From(m.from); err != nil {
		return fmt.Errorf("set mail sender: %w", err)
	}
	if err := msg.To(m.to); err != nil {
		return fmt.Errorf("set mail recipient: %w", err)
	}
	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextHTML, body)

	var err error
	for attempt := 1; attempt <= m.retry.MaxAttempts; attempt++ {
		err = m.send(ctx, msg)
		if err == nil {
			return nil
		}
		if !transient(err) || attempt == m.retry.MaxAttempts {
			break
		}
		m.logger.Printf("mail send attempt %d failed: %v, retrying in %s", attempt, err, m.retry.Delay)
		select {
		case <-time.After(m.retry.Delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return fmt.Errorf("send mail %q: %w", subject, err)
}

// transient reports whether the error looks like a timeout or refused
// connection, the class of failure worth one more attempt.
func transient(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET)
}
