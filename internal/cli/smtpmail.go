package cli

import (
	"fmt"
	"net/smtp"
	"strings"
)

// smtpMailer is the real fsckctl.MailTransport used outside of tests: a
// local MTA on localhost:25 with no authentication, matching the original
// grokmirror's use of Python's smtplib against the host's sendmail/relay.
// No library in the example pack covers SMTP, so this stays on net/smtp.
type smtpMailer struct {
	From string
	Addr string
}

func newSMTPMailer(from string) *smtpMailer {
	return &smtpMailer{From: from, Addr: "localhost:25"}
}

func (m *smtpMailer) Send(to, subject, body string) error {
	if to == "" {
		return nil
	}
	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s\r\n",
		m.From, to, subject, body)
	return smtp.SendMail(m.Addr, nil, m.From, strings.Split(to, ","), []byte(msg))
}
