package notification

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"mime/multipart"
	"net/smtp"
	"net/textproto"
	"time"

	"tikiti/internal/config"
	"tikiti/internal/logger"
)

// TicketEmailData fills the confirmation mail sent after settlement.
type TicketEmailData struct {
	BuyerName string
	EventName string
	EventDate time.Time
	Venue     string
	TierName  string
	Amount    int64
	Receipt   string
}

// Mailer sends buyer notifications over SMTP. Callers treat delivery as
// fire-and-forget: a failed send is logged and never propagated into the
// settlement path.
type Mailer struct {
	cfg    config.EmailConfig
	logger *logger.Logger
}

func NewMailer(cfg config.EmailConfig, log *logger.Logger) *Mailer {
	return &Mailer{cfg: cfg, logger: log}
}

// SendTicketEmail mails the confirmation with the QR code attached.
func (m *Mailer) SendTicketEmail(to string, data TicketEmailData, qrPNG []byte) error {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	header := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: Your ticket for %s\r\nMIME-Version: 1.0\r\nContent-Type: multipart/mixed; boundary=%s\r\n\r\n",
		m.cfg.From, to, data.EventName, writer.Boundary())

	body, err := writer.CreatePart(textproto.MIMEHeader{
		"Content-Type": {"text/plain; charset=utf-8"},
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(body, "Hi %s,\r\n\r\nYour ticket for %s is confirmed.\r\n\r\nWhen: %s\r\nWhere: %s\r\nTier: %s\r\nAmount: KES %d\r\n",
		data.BuyerName, data.EventName, data.EventDate.Format("Mon, 2 Jan 2006 15:04"), data.Venue, data.TierName, data.Amount)
	if data.Receipt != "" {
		fmt.Fprintf(body, "Receipt: %s\r\n", data.Receipt)
	}
	fmt.Fprintf(body, "\r\nPresent the attached QR code at the gate. It activates 4 hours before the event.\r\n")

	if len(qrPNG) > 0 {
		attachment, err := writer.CreatePart(textproto.MIMEHeader{
			"Content-Type":              {"image/png; name=ticket.png"},
			"Content-Transfer-Encoding": {"base64"},
			"Content-Disposition":       {"attachment; filename=ticket.png"},
		})
		if err != nil {
			return err
		}
		encoded := base64.StdEncoding.EncodeToString(qrPNG)
		for len(encoded) > 76 {
			fmt.Fprintf(attachment, "%s\r\n", encoded[:76])
			encoded = encoded[76:]
		}
		fmt.Fprintf(attachment, "%s\r\n", encoded)
	}

	if err := writer.Close(); err != nil {
		return err
	}

	addr := m.cfg.SMTPHost + ":" + m.cfg.SMTPPort
	auth := smtp.PlainAuth("", m.cfg.SMTPUsername, m.cfg.SMTPPassword, m.cfg.SMTPHost)

	msg := append([]byte(header), buf.Bytes()...)
	if err := smtp.SendMail(addr, auth, m.cfg.From, []string{to}, msg); err != nil {
		m.logger.Warn("EMAIL", fmt.Sprintf("Failed to send ticket email to %s: %v", to, err))
		return err
	}

	m.logger.Info("EMAIL", fmt.Sprintf("Ticket email sent to %s", to))
	return nil
}
