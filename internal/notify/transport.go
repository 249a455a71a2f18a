package notify

import (
	"context"
	"fmt"

	"github.com/wneessen/go-mail"
	"go.uber.org/zap"
)

// SMTPConfig holds the SMTP relay settings.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
}

// SMTPTransport sends messages through an SMTP relay. A connection is
// opened per message.
type SMTPTransport struct {
	client *mail.Client
}

// NewSMTPTransport builds a client for cfg. Authentication is enabled only
// when a username is configured; STARTTLS is used when offered.
func NewSMTPTransport(cfg SMTPConfig) (*SMTPTransport, error) {
	opts := []mail.Option{
		mail.WithPort(cfg.Port),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
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
		return nil, fmt.Errorf("smtp client: %w", err)
	}
	return &SMTPTransport{client: client}, nil
}

// Send delivers msg.
func (t *SMTPTransport) Send(ctx context.Context, msg Message) error {
	m := mail.NewMsg()
	if err := m.From(msg.From); err != nil {
		return fmt.Errorf("from address: %w", err)
	}
	if err := m.To(msg.To); err != nil {
		return fmt.Errorf("to address: %w", err)
	}
	m.Subject(msg.Subject)
	m.SetBodyString(mail.TypeTextHTML, msg.HTML)
	return t.client.DialAndSendWithContext(ctx, m)
}

// LogTransport writes messages to the logger instead of sending them.
// It is used when no SMTP relay is configured.
type LogTransport struct {
	log *zap.Logger
}

func NewLogTransport(log *zap.Logger) *LogTransport {
	if log == nil {
		log = zap.NewNop()
	}
	return &LogTransport{log: log.Named("mail")}
}

// Send logs the envelope at info. The body carries the magic-link secrets
// and is only logged at debug.
func (t *LogTransport) Send(_ context.Context, msg Message) error {
	t.log.Info("email",
		zap.String("from", msg.From),
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject))
	t.log.Debug("email body", zap.String("to", msg.To), zap.String("body", msg.HTML))
	return nil
}
