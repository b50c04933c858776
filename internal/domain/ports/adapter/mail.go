package adapter

import "context"

// MailMessage carries both an HTML and a plain-text body; the transport picks
// per its configuration.
type MailMessage struct {
	To        string
	ToName    string
	Subject   string
	HTMLBody  string
	PlainBody string
	From      string
	FromName  string
}

// MailSender delivers notification email. Delivery is always best-effort for
// callers: failures are logged and never fail the primary operation.
type MailSender interface {
	Send(ctx context.Context, msg MailMessage) error
}
