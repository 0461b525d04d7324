// Package mailer delivers outbound reminder mail. The reminder engine only
// sees the Sender interface; the SMTP implementation lives here so jobs can
// be tested with a recording fake.
package mailer

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/smtp"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"clientdesk/pkg/logx"
)

// Sender dispatches one message. Any returned error is treated by callers
// as a send failure for that record; there is no partial success.
type Sender interface {
	Send(ctx context.Context, to, subject, textBody, htmlBody string) error
}

// Config configures the SMTP sender.
type Config struct {
	Host       string
	Port       int
	Username   string
	Password   string
	From       string
	RatePerSec int // outbound throttle; <=0 means 1/sec
}

type SMTPSender struct {
	cfg     Config
	log     logx.Logger
	limiter *rate.Limiter
}

func NewSMTP(cfg Config, log logx.Logger) (*SMTPSender, error) {
	if strings.TrimSpace(cfg.Host) == "" {
		return nil, errors.New("mailer host is required")
	}
	if strings.TrimSpace(cfg.From) == "" {
		return nil, errors.New("mailer from address is required")
	}
	if cfg.Port <= 0 {
		cfg.Port = 587
	}
	rps := cfg.RatePerSec
	if rps <= 0 {
		rps = 1
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &SMTPSender{
		cfg:     cfg,
		log:     log.With(logx.String("comp", "mailer")),
		limiter: rate.NewLimiter(rate.Limit(rps), rps),
	}, nil
}

func (s *SMTPSender) Send(ctx context.Context, to, subject, textBody, htmlBody string) error {
	if strings.TrimSpace(to) == "" {
		return errors.New("empty recipient")
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}

	msg := buildMessage(s.cfg.From, to, subject, textBody, htmlBody)
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)

	var auth smtp.Auth
	if s.cfg.Username != "" {
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	}

	start := time.Now()
	err := smtp.SendMail(addr, auth, s.cfg.From, []string{to}, msg)
	if err != nil {
		s.log.Warn("send failed", logx.String("to", to), logx.Err(err), logx.Duration("dur", time.Since(start)))
		return fmt.Errorf("smtp send to %s: %w", to, err)
	}
	s.log.Debug("sent", logx.String("to", to), logx.Duration("dur", time.Since(start)))
	return nil
}

// Disabled stands in when no SMTP host is configured. Every send fails so
// reminder records land in failed rather than silently vanishing.
type Disabled struct{}

func (Disabled) Send(context.Context, string, string, string, string) error {
	return errors.New("outbound mail is not configured")
}

const mimeBoundary = "clientdesk-alt-7f3a"

func buildMessage(from, to, subject, textBody, htmlBody string) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", subject))
	b.WriteString("MIME-Version: 1.0\r\n")

	if strings.TrimSpace(htmlBody) == "" {
		b.WriteString("Content-Type: text/plain; charset=utf-8\r\n\r\n")
		b.WriteString(textBody)
		return []byte(b.String())
	}

	fmt.Fprintf(&b, "Content-Type: multipart/alternative; boundary=%s\r\n\r\n", mimeBoundary)
	fmt.Fprintf(&b, "--%s\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n%s\r\n", mimeBoundary, textBody)
	fmt.Fprintf(&b, "--%s\r\nContent-Type: text/html; charset=utf-8\r\n\r\n%s\r\n", mimeBoundary, htmlBody)
	fmt.Fprintf(&b, "--%s--\r\n", mimeBoundary)
	return []byte(b.String())
}
