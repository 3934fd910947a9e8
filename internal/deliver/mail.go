package deliver

import (
	"bytes"
	"context"
	"fmt"

	"github.com/wneessen/go-mail"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"go.uber.org/zap"

	"github-summary/internal/config"
	"github-summary/internal/report"
)

var markdown = goldmark.New(goldmark.WithExtensions(extension.GFM))

// MailTarget emails the report as a multipart message with a plain
// markdown body and an HTML alternative. One recipient failing does not
// block the others.
type MailTarget struct {
	SMTP       config.SMTP
	Recipients []string
	log        *zap.Logger
}

func NewMailTarget(smtp config.SMTP, recipients []string, log *zap.Logger) *MailTarget {
	return &MailTarget{SMTP: smtp, Recipients: recipients, log: log}
}

func (t *MailTarget) Name() string { return "email" }

func (t *MailTarget) Deliver(ctx context.Context, rep *report.Report) error {
	text := rep.Render()
	html, err := renderHTML(text)
	if err != nil {
		return fmt.Errorf("rendering HTML body: %w", err)
	}
	subject := "GitHub Summary - " + rep.GeneratedAt.Format("2006-01-02")

	from := t.SMTP.From
	if from == "" {
		from = t.SMTP.User
	}

	client, err := mail.NewClient(t.SMTP.Host,
		mail.WithPort(t.SMTP.Port),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(t.SMTP.User),
		mail.WithPassword(t.SMTP.Password),
		mail.WithTLSPolicy(mail.TLSMandatory),
	)
	if err != nil {
		return fmt.Errorf("creating SMTP client: %w", err)
	}

	failed := 0
	for _, to := range t.Recipients {
		msg := mail.NewMsg()
		if err := msg.From(from); err != nil {
			return fmt.Errorf("invalid sender %q: %w", from, err)
		}
		if err := msg.To(to); err != nil {
			t.log.Error("invalid recipient", zap.String("to", to), zap.Error(err))
			failed++
			continue
		}
		msg.Subject(subject)
		msg.SetBodyString(mail.TypeTextPlain, text)
		msg.AddAlternativeString(mail.TypeTextHTML, html)

		if err := client.DialAndSendWithContext(ctx, msg); err != nil {
			t.log.Error("failed to send email", zap.String("to", to), zap.Error(err))
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d recipients failed", failed, len(t.Recipients))
	}
	return nil
}

// renderHTML wraps the GFM-converted report in a minimal email-friendly
// shell.
func renderHTML(source string) (string, error) {
	var body bytes.Buffer
	if err := markdown.Convert([]byte(source), &body); err != nil {
		return "", err
	}

	return `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<style>
body { font-family: -apple-system, 'Segoe UI', Helvetica, Arial, sans-serif; line-height: 1.6; color: #24292e; max-width: 900px; margin: 0 auto; padding: 20px; }
h1 { border-bottom: 2px solid #e1e4e8; padding-bottom: 10px; }
h2 { color: #0366d6; margin-top: 30px; }
a { color: #0366d6; text-decoration: none; }
code { font-family: Consolas, Menlo, monospace; font-size: 13px; background-color: #f6f8fa; padding: 2px 6px; border-radius: 3px; }
hr { border: none; border-top: 1px solid #e1e4e8; margin: 30px 0; }
</style>
</head>
<body>
` + body.String() + `</body>
</html>
`, nil
}
