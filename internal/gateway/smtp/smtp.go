package smtp

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/wneessen/go-mail"

	"github.com/Shailesh-Murmu/AutoMpp/internal/gateway"
	"github.com/Shailesh-Murmu/AutoMpp/internal/outcome"
)

var ErrNoCredentials = errors.New("smtp credentials not configured")

type Config struct {
	Host     string
	Port     int
	Username string
	Password string
}

// Mailer sends plain-text messages over implicit TLS with PLAIN auth. Each
// Send dials a fresh connection.
type Mailer struct {
	cfg  Config
	dial func(ctx context.Context, client *mail.Client, msg *mail.Msg) error
}

func New(cfg Config) *Mailer {
	if cfg.Host == "" {
		cfg.Host = "smtp.gmail.com"
	}
	if cfg.Port == 0 {
		cfg.Port = 465
	}
	return &Mailer{
		cfg: cfg,
		dial: func(ctx context.Context, client *mail.Client, msg *mail.Msg) error {
			return client.DialAndSendWithContext(ctx, msg)
		},
	}
}

func (m *Mailer) Send(ctx context.Context, msg gateway.Message) error {
	if strings.TrimSpace(m.cfg.Username) == "" || m.cfg.Password == "" {
		return outcome.Configuration("", "%v", ErrNoCredentials)
	}
	built, err := m.build(msg)
	if err != nil {
		return err
	}
	client, err := mail.NewClient(m.cfg.Host,
		mail.WithPort(m.cfg.Port),
		mail.WithSSL(),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(m.cfg.Username),
		mail.WithPassword(m.cfg.Password),
	)
	if err != nil {
		return err
	}
	if err := m.dial(ctx, client, built); err != nil {
		return fmt.Errorf("send to %s: %w", msg.To, err)
	}
	return nil
}

func (m *Mailer) build(msg gateway.Message) (*mail.Msg, error) {
	out := mail.NewMsg()
	if err := out.From(m.cfg.Username); err != nil {
		return nil, fmt.Errorf("sender %q: %w", m.cfg.Username, err)
	}
	if err := out.To(msg.To); err != nil {
		return nil, fmt.Errorf("recipient %q: %w", msg.To, err)
	}
	if len(msg.CC) > 0 {
		if err := out.Cc(msg.CC...); err != nil {
			return nil, fmt.Errorf("cc %v: %w", msg.CC, err)
		}
	}
	out.Subject(msg.Subject)
	out.SetBodyString(mail.TypeTextPlain, msg.Body)
	return out, nil
}

// ParseCC splits a comma-separated CC field, dropping blanks.
func ParseCC(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
