// Package email delivers reminders over SMTP.
package email

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"strings"
	"time"

	"mindwatch/internal/channel"
	"mindwatch/internal/mind"
	logx "mindwatch/pkg/logx"

	"github.com/wneessen/go-mail"
)

const (
	DefaultPort    = 994
	DefaultTimeout = 15 * time.Second
)

type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	// SSL selects implicit TLS. Without it STARTTLS is used when offered.
	SSL     bool
	Timeout time.Duration
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Host) == "" {
		return errors.New("email: host required")
	}
	if strings.TrimSpace(c.From) == "" && strings.TrimSpace(c.Username) == "" {
		return errors.New("email: from or username required")
	}
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("email: invalid port %d", c.Port)
	}
	return nil
}

// deliverer is the part of *mail.Client the sender uses.
type deliverer interface {
	DialAndSendWithContext(ctx context.Context, messages ...*mail.Msg) error
}

type Sender struct {
	cfg    Config
	client deliverer
	log    logx.Logger
}

func New(cfg Config, log logx.Logger) (*Sender, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if strings.TrimSpace(cfg.From) == "" {
		cfg.From = cfg.Username
	}

	opts := []mail.Option{
		mail.WithPort(cfg.Port),
		mail.WithTimeout(cfg.Timeout),
	}
	if cfg.SSL {
		opts = append(opts, mail.WithSSL())
	} else {
		opts = append(opts, mail.WithTLSPolicy(mail.TLSOpportunistic))
	}
	if cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password),
		)
	}
	client, err := mail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("email: client: %w", err)
	}
	return newWithClient(cfg, client, log), nil
}

func newWithClient(cfg Config, client deliverer, log logx.Logger) *Sender {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Sender{cfg: cfg, client: client, log: log}
}

func (s *Sender) Kind() mind.Kind { return mind.KindEmail }

func (s *Sender) Send(ctx context.Context, msg channel.Message) error {
	m, err := s.build(msg)
	if err != nil {
		return err
	}
	if err := s.client.DialAndSendWithContext(ctx, m); err != nil {
		return fmt.Errorf("email: send to %s: %w", msg.Target, err)
	}
	s.log.Debug("email sent", logx.String("mind", msg.MindID), logx.String("to", msg.Target))
	return nil
}

func (s *Sender) build(msg channel.Message) (*mail.Msg, error) {
	body, err := RenderHTML(msg)
	if err != nil {
		return nil, err
	}
	m := mail.NewMsg()
	if err := m.From(s.cfg.From); err != nil {
		return nil, fmt.Errorf("email: from: %w", err)
	}
	if err := m.To(msg.Target); err != nil {
		return nil, fmt.Errorf("email: to: %w", err)
	}
	m.Subject(Subject(msg))
	m.SetDate()
	m.SetBodyString(mail.TypeTextHTML, body)
	return m, nil
}

func Subject(msg channel.Message) string {
	return "Mind: " + msg.Title
}

var bodyTmpl = template.Must(template.New("mind").Parse(`<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto;">
  <h2>Reminder: {{.Title}}</h2>
  <p><strong>Description:</strong></p>
  <p>{{if .Description}}{{.Description}}{{else}}No description provided{{end}}</p>
  <p><strong>Scheduled Time:</strong> {{.Time}}</p>
  <hr>
  <p style="font-size: 12px; color: #666;">This is an automated reminder sent by the subscription reminder system.</p>
  {{if .CancelURL}}<p><a href="{{.CancelURL}}">取消提醒</a></p>{{end}}
</div>
`))

// RenderHTML renders the message body with all user text escaped.
func RenderHTML(msg channel.Message) (string, error) {
	var b bytes.Buffer
	if err := bodyTmpl.Execute(&b, msg); err != nil {
		return "", fmt.Errorf("email: render: %w", err)
	}
	return b.String(), nil
}
