package mail

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"text/template"

	"github.com/vibast-solutions/ms-go-identity/config"
)

var bodyTemplates = template.Must(template.New("mail").Parse(`
{{define "verify-email"}}Voici votre code de vérification : {{.verify_email_token}}

Ce code expire dans 60 minutes.{{end}}
{{define "magic-link"}}Cliquez sur ce lien pour vous connecter : {{.magic_link}}

Ce lien expire dans 10 minutes.{{end}}
{{define "reset-password"}}Pour réinitialiser votre mot de passe, cliquez sur ce lien : {{.reset_password_link}}

Ce lien expire dans 60 minutes.{{end}}
`))

type SMTPSender struct {
	cfg config.MailConfig
}

func NewSMTPSender(cfg config.MailConfig) *SMTPSender {
	return &SMTPSender{cfg: cfg}
}

func (s *SMTPSender) Send(_ context.Context, m Mail) error {
	body, err := renderBody(m.Template, m.Params)
	if err != nil {
		return err
	}

	var msg strings.Builder
	msg.WriteString(fmt.Sprintf("From: %s\r\n", s.cfg.From))
	msg.WriteString(fmt.Sprintf("To: %s\r\n", strings.Join(m.To, ", ")))
	msg.WriteString(fmt.Sprintf("Subject: %s\r\n", m.Subject))
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n\r\n")
	msg.WriteString(body)

	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))

	if s.cfg.Secure {
		return s.sendTLS(addr, m.To, msg.String())
	}

	var auth smtp.Auth
	if s.cfg.Username != "" {
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	}

	return smtp.SendMail(addr, auth, s.cfg.From, m.To, []byte(msg.String()))
}

func (s *SMTPSender) sendTLS(addr string, to []string, msg string) error {
	conn, err := tls.Dial("tcp", addr, &tls.Config{ServerName: s.cfg.Host})
	if err != nil {
		return err
	}
	client, err := smtp.NewClient(conn, s.cfg.Host)
	if err != nil {
		return err
	}
	defer client.Quit()

	if s.cfg.Username != "" {
		auth := smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
		if err := client.Auth(auth); err != nil {
			return err
		}
	}

	if err := client.Mail(s.cfg.From); err != nil {
		return err
	}
	for _, rcpt := range to {
		if err := client.Rcpt(rcpt); err != nil {
			return err
		}
	}

	w, err := client.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write([]byte(msg)); err != nil {
		return err
	}
	return w.Close()
}

func renderBody(name string, params map[string]string) (string, error) {
	tmpl := bodyTemplates.Lookup(name)
	if tmpl == nil {
		return "", fmt.Errorf("unknown mail template %q", name)
	}

	var body strings.Builder
	if err := tmpl.Execute(&body, params); err != nil {
		return "", err
	}
	return body.String(), nil
}
