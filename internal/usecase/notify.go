package usecase

import (
	"context"
	"fmt"
	"strings"

	"course-tokens/internal/domain/model"
	"course-tokens/internal/domain/ports/adapter"
	"course-tokens/internal/infra/metrics"
	"course-tokens/internal/infra/retry"

	"github.com/rs/zerolog"
)

// EmailFormat selects how notification bodies are rendered.
type EmailFormat string

const (
	EmailFormatHTML  EmailFormat = "html"
	EmailFormatPlain EmailFormat = "plain"
)

// notifier composes and delivers the engine's notification emails.
// Delivery is best-effort: every failure is logged and swallowed; callers
// only learn whether the mail went out so they can surface a warning.
type notifier struct {
	mail      adapter.MailSender
	exec      *retry.Executor
	mailRetry retry.Policy
	format    EmailFormat
	fromEmail string
	fromName  string
	loginURL  string
	log       *zerolog.Logger
}

func newNotifier(mail adapter.MailSender, exec *retry.Executor, mailRetry retry.Policy, format EmailFormat, fromEmail, fromName, loginURL string, logger *zerolog.Logger) *notifier {
	return &notifier{
		mail:      mail,
		exec:      exec,
		mailRetry: mailRetry,
		format:    format,
		fromEmail: fromEmail,
		fromName:  fromName,
		loginURL:  loginURL,
		log:       logger,
	}
}

// NewNotifier builds the notification sender shared by the token and
// redemption use cases.
func NewNotifier(mail adapter.MailSender, exec *retry.Executor, mailRetry retry.Policy, format EmailFormat, fromEmail, fromName, loginURL string, logger *zerolog.Logger) *notifier {
	return newNotifier(mail, exec, mailRetry, format, fromEmail, fromName, loginURL, logger)
}

// send delivers under the mail retry budget and reports delivery success.
func (n *notifier) send(ctx context.Context, to, toName, subject, body string) bool {
	msg := adapter.MailMessage{
		To:       to,
		ToName:   toName,
		Subject:  subject,
		From:     n.fromEmail,
		FromName: n.fromName,
	}
	if n.format == EmailFormatHTML {
		msg.HTMLBody = body
		msg.PlainBody = stripTags(body)
	} else {
		msg.PlainBody = body
	}

	err := n.exec.Execute(ctx, "send-mail", n.mailRetry, func(ctx context.Context) error {
		if err := n.mail.Send(ctx, msg); err != nil {
			return retry.Transient(err)
		}
		return nil
	})
	if err != nil {
		metrics.IncMailFailure()
		n.log.Warn().Err(err).Str("to", to).Str("subject", subject).Msg("notification email not sent")
		return false
	}
	return true
}

// NewAccountEmail tells a freshly created user their credentials.
func (n *notifier) newAccountEmail(ctx context.Context, acct *model.Account, plainPassword string) bool {
	subject := "Your new account"
	var body string
	if plainPassword == "" {
		// Placeholder credential path: the fixed password must be changed on
		// first login.
		body = n.render(
			fmt.Sprintf("Dear %s,", acct.FullName()),
			"Your new account has been created.",
			fmt.Sprintf("Your username is %s and your default password is \"%s\". You will be asked to change your password on the first login.", acct.Username, placeholderPassword),
			fmt.Sprintf("Please log in at %s", n.loginURL),
			"Thank you.",
		)
	} else {
		body = n.render(
			fmt.Sprintf("Dear %s,", acct.FullName()),
			"Your new account has been created. Here are your login details:",
			fmt.Sprintf("Email: %s", acct.Email),
			fmt.Sprintf("Password: %s", plainPassword),
			fmt.Sprintf("Please log in at %s", n.loginURL),
			"If you have any concerns, please reply here.",
			"Thank you.",
		)
	}
	return n.send(ctx, acct.Email, acct.FullName(), subject, body)
}

// tokensIssuedEmail tells the owner how many tokens they received.
func (n *notifier) tokensIssuedEmail(ctx context.Context, owner *model.Account, course *model.Course, quantity int, orderNumber string) bool {
	word := "tokens"
	if quantity == 1 {
		word = "token"
	}
	subject := fmt.Sprintf("%s: course %s", course.FullName, word)
	lines := []string{
		fmt.Sprintf("Dear %s,", owner.FullName()),
		fmt.Sprintf("You have received %d %s for the course %s.", quantity, word, course.FullName),
	}
	if orderNumber != "" {
		lines = append(lines, fmt.Sprintf("Order Number: #%s", orderNumber))
	}
	lines = append(lines,
		fmt.Sprintf("You can view your tokens at: %s", n.loginURL),
		"Thank you.",
	)
	return n.send(ctx, owner.Email, owner.FullName(), subject, n.render(lines...))
}

// welcomeEmail greets the enrolled identity after redemption. New accounts get
// credentials; returning users get a shorter enrolled notice.
func (n *notifier) welcomeEmail(ctx context.Context, acct *model.Account, course *model.Course, isNew bool, plainPassword string) bool {
	subject := fmt.Sprintf("Welcome to the %s Course", course.FullName)
	var body string
	if isNew {
		credential := plainPassword
		if credential == "" {
			credential = placeholderPassword
		}
		body = n.render(
			fmt.Sprintf("Dear %s,", acct.FullName()),
			fmt.Sprintf("Thank you for joining the %s course.", course.FullName),
			fmt.Sprintf("Please log in at this link: %s", n.loginURL),
			fmt.Sprintf("Your username is %s and your password is \"%s\".", acct.Username, credential),
			"Thank you.",
		)
	} else {
		body = n.render(
			fmt.Sprintf("Dear %s,", acct.FullName()),
			fmt.Sprintf("Welcome back! You have been successfully enrolled in the %s course.", course.FullName),
			fmt.Sprintf("Please visit: %s", n.loginURL),
			"We are excited to have you in the course.",
			"Thank you.",
		)
	}
	return n.send(ctx, acct.Email, acct.FullName(), subject, body)
}

// ownerUsedEmail tells the token owner their token was spent by someone else.
func (n *notifier) ownerUsedEmail(ctx context.Context, owner, redeemee *model.Account, token *model.CourseToken, course *model.Course) bool {
	subject := "Your course token has been used"
	body := n.render(
		fmt.Sprintf("Dear %s,", owner.FullName()),
		fmt.Sprintf("Your course token '%s' was just used to enroll %s (%s) in the course: %s.",
			token.Code, redeemee.FullName(), redeemee.Email, course.FullName),
		fmt.Sprintf("The enrollment was successful. %s will receive an email shortly with login instructions.", redeemee.FullName()),
		"Thank you.",
	)
	return n.send(ctx, owner.Email, owner.FullName(), subject, body)
}

// render joins paragraphs into the configured body format.
func (n *notifier) render(paragraphs ...string) string {
	if n.format == EmailFormatHTML {
		var b strings.Builder
		b.WriteString("<html><body>")
		for _, p := range paragraphs {
			b.WriteString("<p>")
			b.WriteString(p)
			b.WriteString("</p>")
		}
		b.WriteString("</body></html>")
		return b.String()
	}
	return strings.Join(paragraphs, "\n\n")
}

// stripTags produces the plain-text fallback for HTML bodies.
func stripTags(s string) string {
	var b strings.Builder
	inTag := false
	for _, r := range s {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			if inTag {
				inTag = false
				b.WriteRune('\n')
			}
		case !inTag:
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}
