package mailer

import (
	"fmt"

	"github.com/disrupton/collaborators/pkg/logger"
)

type DevMailer struct{}

func NewDevMailer() *DevMailer {
	return &DevMailer{}
}

func (d *DevMailer) SendUnlockNotification(toEmail, toName string, price float64, currency string) error {
	logger.Info("📧 [DEV MAIL] Unlock Notification",
		"to", toEmail,
		"name", toName,
		"price", price,
		"currency", currency,
	)

	fmt.Printf("\n"+
		"━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n"+
		"📧 UNLOCK NOTIFICATION (DEV MODE)\n"+
		"━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n"+
		"To: %s (%s)\n"+
		"Subject: Someone unlocked your contact info\n"+
		"\n"+
		"A visitor paid %.2f %s to see your contact channels.\n"+
		"━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n\n",
		toEmail, toName, price, currency)

	return nil
}
