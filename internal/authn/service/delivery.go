package service

import (
	"context"

	"github.com/aussiebroadwan/doorman/pkg/slogx"
)

// Delivery sends a reset token to the account owner out of band. The service
// layer never sees delivery addresses beyond the principal's email and never
// persists the plaintext token, so implementations receive it exactly once.
type Delivery interface {
	Send(ctx context.Context, to, subject, body string) error
}

// LogDelivery writes the message to the structured log instead of sending
// it. Suitable for development and single-node deployments where the
// operator reads the token out of the log.
type LogDelivery struct{}

func (LogDelivery) Send(ctx context.Context, to, subject, body string) error {
	slogx.FromContext(ctx).Info("reset delivery",
		"to", to,
		"subject", subject,
		"body", body,
	)
	return nil
}

var _ Delivery = LogDelivery{}
