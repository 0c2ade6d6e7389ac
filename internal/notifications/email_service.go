package notifications

import (
	"context"
	"crypto/tls"
	"fmt"
	"html"
	"net/http"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
)

var (
	sendgridHost     = "https://api.sendgrid.com"
	sendgridEndpoint = "/v3/mail/send"
)

// EmailIdentity is the From header used by every email sender
type EmailIdentity struct {
	FromEmail string
	FromName  string
}

func (id EmailIdentity) subject(msg *OutboundMessage) string {
	if msg.Subject != "" {
		return msg.Subject
	}
	return id.FromName + " waitlist update"
}

// htmlBody wraps the plain text body for clients that prefer HTML
func htmlBody(text string) string {
	return "<p>" + strings.ReplaceAll(html.EscapeString(text), "\n", "<br>") + "</p>"
}

// SendGridSender delivers email through the SendGrid v3 API
type SendGridSender struct {
	key      string
	identity EmailIdentity
	api      func(rest.Request) (*rest.Response, error)
}

func NewSendGridSender(apiKey string, identity EmailIdentity) *SendGridSender {
	return &SendGridSender{key: apiKey, identity: identity, api: sendgrid.API}
}

func (s *SendGridSender) prepare(msg *OutboundMessage) *sgmail.SGMailV3 {
	from := sgmail.NewEmail(s.identity.FromName, s.identity.FromEmail)
	to := sgmail.NewEmail("", msg.Address)
	return sgmail.NewSingleEmail(from, s.identity.subject(msg), to, msg.Body, htmlBody(msg.Body))
}

func (s *SendGridSender) Send(ctx context.Context, msg *OutboundMessage) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	req := sendgrid.GetRequest(s.key, sendgridEndpoint, sendgridHost)
	req.Method = http.MethodPost
	req.Body = sgmail.GetRequestBody(s.prepare(msg))

	res, err := s.api(req)
	if err != nil {
		return "", fmt.Errorf("sendgrid: %w", err)
	}
	if res.StatusCode >= http.StatusBadRequest {
		return "", fmt.Errorf("sendgrid: status %d: %s", res.StatusCode, res.Body)
	}
	if ids := res.Headers["X-Message-Id"]; len(ids) > 0 {
		return ids[0], nil
	}
	return "", nil
}

// SMTPConfig holds SMTP configuration
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	UseTLS   bool
	Identity EmailIdentity
}

func (c *SMTPConfig) validate() error {
	if c.Host == "" {
		return fmt.Errorf("SMTP host is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("SMTP port must be between 1 and 65535")
	}
	if c.Identity.FromEmail == "" {
		return fmt.Errorf("from email is required")
	}
	return nil
}

// SMTPSender delivers email over plain SMTP, upgrading with STARTTLS when configured
type SMTPSender struct {
	config *SMTPConfig
}

func NewSMTPSender(config *SMTPConfig) (*SMTPSender, error) {
	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid SMTP configuration: %w", err)
	}
	return &SMTPSender{config: config}, nil
}

func (s *SMTPSender) Send(ctx context.Context, msg *OutboundMessage) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	message := s.buildMessage(msg)
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	var auth smtp.Auth
	if s.config.Username != "" {
		auth = smtp.PlainAuth("", s.config.Username, s.config.Password, s.config.Host)
	}

	var err error
	if s.config.UseTLS {
		err = s.sendWithSTARTTLS(addr, auth, msg.Address, message)
	} else {
		err = smtp.SendMail(addr, auth, s.config.Identity.FromEmail, []string{msg.Address}, message)
	}
	if err != nil {
		return "", fmt.Errorf("smtp: %w", err)
	}
	return msg.ID.String(), nil
}

func (s *SMTPSender) sendWithSTARTTLS(addr string, auth smtp.Auth, to string, message []byte) error {
	client, err := smtp.Dial(addr)
	if err != nil {
		return fmt.Errorf("failed to connect to SMTP server: %w", err)
	}
	defer client.Quit()

	if err = client.StartTLS(&tls.Config{ServerName: s.config.Host}); err != nil {
		return fmt.Errorf("failed to start TLS: %w", err)
	}
	if auth != nil {
		if err = client.Auth(auth); err != nil {
			return fmt.Errorf("failed to authenticate: %w", err)
		}
	}
	if err = client.Mail(s.config.Identity.FromEmail); err != nil {
		return fmt.Errorf("failed to set sender: %w", err)
	}
	if err = client.Rcpt(to); err != nil {
		return fmt.Errorf("failed to set recipient: %w", err)
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("failed to get data writer: %w", err)
	}
	if _, err = w.Write(message); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	return w.Close()
}

// buildMessage renders a multipart/alternative message with text and HTML parts
func (s *SMTPSender) buildMessage(msg *OutboundMessage) []byte {
	boundary := "boundary_" + strconv.FormatInt(time.Now().UnixNano(), 10)

	var b strings.Builder
	fmt.Fprintf(&b, "From: %s <%s>\r\n", s.config.Identity.FromName, s.config.Identity.FromEmail)
	fmt.Fprintf(&b, "To: %s\r\n", msg.Address)
	fmt.Fprintf(&b, "Subject: %s\r\n", s.config.Identity.subject(msg))
	fmt.Fprintf(&b, "Date: %s\r\n", time.Now().Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&b, "Content-Type: multipart/alternative; boundary=%s\r\n\r\n", boundary)

	fmt.Fprintf(&b, "--%s\r\nContent-Type: text/plain; charset=UTF-8\r\n\r\n%s\r\n", boundary, msg.Body)
	fmt.Fprintf(&b, "--%s\r\nContent-Type: text/html; charset=UTF-8\r\n\r\n%s\r\n", boundary, htmlBody(msg.Body))
	fmt.Fprintf(&b, "--%s--\r\n", boundary)

	return []byte(b.String())
}
