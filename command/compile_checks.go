package command

import gocmd "github.com/goliatone/go-command"

var (
	_ gocmd.Commander[IssueActivationMessage]   = (*IssueActivationCommand)(nil)
	_ gocmd.Commander[RetryNotificationMessage] = (*RetryNotificationCommand)(nil)
	_ gocmd.Commander[PaymentSucceededMessage]  = (*PaymentSucceededCommand)(nil)
)
