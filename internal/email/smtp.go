package email

import (
	"errors"
	"fmt"
	"net/url"

	"gopkg.in/gomail.v2"
)

var ErrEmailNotConfigured = errors.New("email service not configured")

// SMTPSender dispatches verification emails through an SMTP relay.
type SMTPSender struct {
	host     string
	port     int
	user     string
	pass     string
	fromName string
	baseURL  string
}

func NewSMTPSender(host string, port int, user, pass, fromName, verifyBaseURL string) *SMTPSender {
	return &SMTPSender{
		host:     host,
		port:     port,
		user:     user,
		pass:     pass,
		fromName: fromName,
		baseURL:  verifyBaseURL,
	}
}

func (s *SMTPSender) IsConfigured() bool {
	return s.host != "" && s.user != "" && s.pass != ""
}

// VerificationURL builds the link embedded in the email. The base origin is
// fixed by configuration; token and email travel as query parameters.
func (s *SMTPSender) VerificationURL(email, token string) string {
	return fmt.Sprintf("%s?token=%s&email=%s", s.baseURL, url.QueryEscape(token), url.QueryEscape(email))
}

func (s *SMTPSender) SendVerificationEmail(to, token string) error {
	if !s.IsConfigured() {
		return ErrEmailNotConfigured
	}

	verifyURL := s.VerificationURL(to, token)
	htmlBody := fmt.Sprintf(`
<!DOCTYPE html>
<html>
<body style="margin: 0; padding: 0; font-family: 'Segoe UI', Tahoma, Geneva, Verdana, sans-serif; background-color: #f4f4f4;">
    <table role="presentation" style="width: 100%%; border-collapse: collapse;">
        <tr>
            <td align="center" style="padding: 40px 0;">
                <table role="presentation" style="width: 600px; border-collapse: collapse; background-color: #ffffff; border-radius: 8px;">
                    <tr>
                        <td style="padding: 40px 40px 20px 40px; text-align: center;">
                            <h1 style="margin: 0; color: #333333; font-size: 24px; font-weight: 600;">Verify Your Email</h1>
                        </td>
                    </tr>
                    <tr>
                        <td style="padding: 0 40px 40px 40px; text-align: center;">
                            <p style="margin: 0; color: #666666; font-size: 16px; line-height: 1.5;">Click to verify: <a href="%s">%s</a></p>
                        </td>
                    </tr>
                </table>
            </td>
        </tr>
    </table>
</body>
</html>
`, verifyURL, verifyURL)

	m := gomail.NewMessage()
	m.SetHeader("From", m.FormatAddress(s.user, s.fromName))
	m.SetHeader("To", to)
	m.SetHeader("Subject", "Verify Your Email")
	m.SetBody("text/html", htmlBody)

	d := gomail.NewDialer(s.host, s.port, s.user, s.pass)
	return d.DialAndSend(m)
}
