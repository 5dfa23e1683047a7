package mailer

type Service interface {
	// SendUnlockNotification tells a collaborator their contact channels
	// were unlocked by a paying user.
	SendUnlockNotification(toEmail, toName string, price float64, currency string) error
}
