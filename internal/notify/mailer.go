package notify

import (
	"bytes"
	"context"
	"fmt"
	"net/smtp"
	"time"

	"github.com/emersion/go-message/mail"

	apperrors "github.com/tudu/server/pkg/errors"
)

// SMTPMailer implements Mailer over plain SMTP submission.
type SMTPMailer struct {
	host   string
	port   string
	user   string
	pass   string
	from   string
	codeTTL time.Duration
}

// NewSMTPMailer creates a mailer for the given SMTP submission endpoint.
// codeTTL is only used for the expiry wording in the message body.
func NewSMTPMailer(host, port, user, pass, from string, codeTTL time.Duration) *SMTPMailer {
	return &SMTPMailer{host: host, port: port, user: user, pass: pass, from: from, codeTTL: codeTTL}
}

// SendChallengeCode emails the plaintext code to the recipient. The code
// never appears in logs or errors.
func (m *SMTPMailer) SendChallengeCode(_ context.Context, to, code, purposeLabel string) error {
	if m.host == "" {
		return apperrors.ErrDispatchFailed(fmt.Errorf("smtp host not configured"))
	}

	msg, err := m.buildMessage(to, code, purposeLabel)
	if err != nil {
		return apperrors.ErrDispatchFailed(err)
	}

	addr := m.host + ":" + m.port
	var auth smtp.Auth
	if m.user != "" {
		auth = smtp.PlainAuth("", m.user, m.pass, m.host)
	}
	if err := smtp.SendMail(addr, auth, m.from, []string{to}, msg); err != nil {
		return apperrors.ErrDispatchFailed(err)
	}
	return nil
}

func (m *SMTPMailer) buildMessage(to, code, purposeLabel string) ([]byte, error) {
	var buf bytes.Buffer

	var h mail.Header
	h.SetDate(time.Now())
	h.SetAddressList("From", []*mail.Address{{Name: "Tudu", Address: m.from}})
	h.SetAddressList("To", []*mail.Address{{Address: to}})
	h.SetSubject(fmt.Sprintf("Tudu - %s OTP", purposeLabel))
	h.SetContentType("text/html", map[string]string{"charset": "utf-8"})

	w, err := mail.CreateSingleInlineWriter(&buf, h)
	if err != nil {
		return nil, fmt.Errorf("create message writer: %w", err)
	}
	_, err = fmt.Fprintf(w, "<p>Your OTP for %s is <b>%s</b>. It expires in %d minutes.</p>",
		purposeLabel, code, int(m.codeTTL.Minutes()))
	if err != nil {
		return nil, fmt.Errorf("write message body: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("finalize message: %w", err)
	}
	return buf.Bytes(), nil
}
