package email

import (
	"bytes"
	"fmt"
	"html/template"
	"log"
	"net/smtp"
	"sort"
)

type Mailer interface {
	SendPasswordReset(to, name, link string) error
}

type Sender struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
	log      *log.Logger
}

func NewSender(logger *log.Logger, host, port, username, password, from string) *Sender {
	return &Sender{
		Host:     host,
		Port:     port,
		Username: username,
		Password: password,
		From:     from,
		log:      logger,
	}
}

var passwordResetTemplate = template.Must(template.New("password-reset").Parse(`
<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; line-height: 1.6; color: #333;">
    <div style="max-width: 600px; margin: 0 auto; padding: 20px;">
        <h1>Reset your VibeConnect password</h1>
        <p>Hi {{.Name}},</p>
        <p>We received a request to reset your password. The link below is valid for one hour.</p>
        <p style="text-align: center;">
            <a href="{{.Link}}">Reset Password</a>
        </p>
        <p>If you didn't ask for this, you can safely ignore this email.</p>
    </div>
</body>
</html>
`))

func renderPasswordReset(name, link string) (string, error) {
	var body bytes.Buffer
	if err := passwordResetTemplate.Execute(&body, map[string]string{"Name": name, "Link": link}); err != nil {
		return "", fmt.Errorf("execute template: %w", err)
	}

	return body.String(), nil
}

func buildMessage(headers map[string]string, body string) string {
	keys := make([]string, 0, len(headers))
	for k := range headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	message := ""
	for _, k := range keys {
		message += fmt.Sprintf("%s: %s\r\n", k, headers[k])
	}

	return message + "\r\n" + body
}

func (s *Sender) SendPasswordReset(to, name, link string) error {
	body, err := renderPasswordReset(name, link)
	if err != nil {
		return err
	}

	subject := "Reset your VibeConnect password"

	// without an SMTP host the mail is only logged, which is enough for local development
	if s.Host == "" {
		s.log.Printf("mail to %s: %s: %s", to, subject, link)
		return nil
	}

	message := buildMessage(map[string]string{
		"From":         s.From,
		"To":           to,
		"Subject":      subject,
		"MIME-Version": "1.0",
		"Content-Type": "text/html; charset=\"UTF-8\"",
	}, body)

	auth := smtp.PlainAuth("", s.Username, s.Password, s.Host)
	addr := fmt.Sprintf("%s:%s", s.Host, s.Port)

	return smtp.SendMail(addr, auth, s.From, []string{to}, []byte(message))
}
