package notificator

import (
	"fmt"
	"mime"
	"net/smtp"
	"strconv"

	"github.com/vipcontent/vipcheckout/pkg/logger"
)

const accessSubject = "Seu acesso VIP está liberado"

// sendMailFunc matches smtp.SendMail; swapped in tests.
type sendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// EmailNotificator mails the access links to the buyer.
type EmailNotificator struct {
	logger *logger.Logger

	SMTPHost   string
	SMTPPort   int
	SMTPSender string

	SMTPAuth smtp.Auth

	send sendMailFunc
}

func NewEmailNotificator(logger *logger.Logger, SMTPHost string, SMTPPort int, SMTPUser string, SMTPPassword string, SMTPSender string) *EmailNotificator {
	var auth smtp.Auth
	if SMTPUser != "" {
		auth = smtp.PlainAuth(
			"",
			SMTPUser,
			SMTPPassword,
			SMTPHost,
		)
	}

	return &EmailNotificator{
		logger:     logger,
		SMTPAuth:   auth,
		SMTPHost:   SMTPHost,
		SMTPPort:   SMTPPort,
		SMTPSender: SMTPSender,
		send:       smtp.SendMail,
	}
}

func (e *EmailNotificator) SendNotification(to, message string) error {
	addr := e.SMTPHost + ":" + strconv.Itoa(e.SMTPPort)
	msg := fmt.Sprintf(
		"From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/plain; charset=UTF-8\r\n\r\n%s",
		e.SMTPSender,
		to,
		mime.QEncoding.Encode("utf-8", accessSubject),
		message,
	)
	if err := e.send(addr, e.SMTPAuth, e.SMTPSender, []string{to}, []byte(msg)); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	return nil
}
