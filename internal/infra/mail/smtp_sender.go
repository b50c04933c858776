package mail

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"course-tokens/internal/config"
	"course-tokens/internal/domain"
	"course-tokens/internal/domain/ports/adapter"

	"github.com/rs/zerolog"
)

// Ensure implementation satisfies the interface.
var _ adapter.MailSender = (*SMTPSender)(nil)

// SMTPSender delivers mail over a plain SMTP relay. Messages carrying both
// an HTML and a plain body go out as multipart/alternative.
type SMTPSender struct {
	addr     string
	host     string
	username string
	password string
	log      *zerolog.Logger
}

func NewSMTPSender(cfg *config.MailConfig, logger *zerolog.Logger) *SMTPSender {
	return &SMTPSender{
		addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		host:     cfg.Host,
		username: cfg.Username,
		password: cfg.Password,
		log:      logger,
	}
}

func (s *SMTPSender) Send(ctx context.Context, msg adapter.MailMessage) error {
	if msg.To == "" {
		return domain.ErrInvalidArgument
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	var auth smtp.Auth
	if s.username != "" {
		auth = smtp.PlainAuth("", s.username, s.password, s.host)
	}

	body := compose(msg)
	if err := smtp.SendMail(s.addr, auth, msg.From, []string{msg.To}, body); err != nil {
		s.log.Warn().Err(err).Str("to", msg.To).Str("subject", msg.Subject).Msg("smtp send failed")
		return fmt.Errorf("%w: %v", domain.ErrMailNotSent, err)
	}
	return nil
}

const multipartBoundary = "MIXED-COURSE-TOKENS"

func compose(msg adapter.MailMessage) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s <%s>\r\n", msg.FromName, msg.From)
	fmt.Fprintf(&b, "To: %s <%s>\r\n", msg.ToName, msg.To)
	fmt.Fprintf(&b, "Subject: %s\r\n", msg.Subject)
	b.WriteString("MIME-Version: 1.0\r\n")

	switch {
	case msg.HTMLBody != "" && msg.PlainBody != "":
		fmt.Fprintf(&b, "Content-Type: multipart/alternative; boundary=%q\r\n\r\n", multipartBoundary)
		fmt.Fprintf(&b, "--%s\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n%s\r\n", multipartBoundary, msg.PlainBody)
		fmt.Fprintf(&b, "--%s\r\nContent-Type: text/html; charset=utf-8\r\n\r\n%s\r\n", multipartBoundary, msg.HTMLBody)
		fmt.Fprintf(&b, "--%s--\r\n", multipartBoundary)
	case msg.HTMLBody != "":
		fmt.Fprintf(&b, "Content-Type: text/html; charset=utf-8\r\n\r\n%s\r\n", msg.HTMLBody)
	default:
		fmt.Fprintf(&b, "Content-Type: text/plain; charset=utf-8\r\n\r\n%s\r\n", msg.PlainBody)
	}
	return []byte(b.String())
}
