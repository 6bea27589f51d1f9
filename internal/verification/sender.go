package verification

//go:generate mockgen -source=sender.go -destination=mocks/mocks.go -package=mocks Sender

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Sender delivers a code to a destination. Integrators provide implementations
// for at least the email and sms channels. A returned error must not corrupt
// verification state: the pending code stays valid so the caller can retry
// delivery.
//
// Delivery is a blocking network call; implementations should enforce their
// own provider timeout, and the service additionally bounds the call.
type Sender interface {
	Send(ctx context.Context, channel Channel, destination, code, subject, body string) error
}

// renderMessage produces the subject and body handed to the Sender. The code
// itself never appears in logs, only in the delivered message.
func renderMessage(purpose Purpose, code string, ttl time.Duration) (subject, body string) {
	var action string
	switch purpose {
	case PurposeOptOut:
		action = "confirm your opt-out"
	case PurposePreferenceChange:
		action = "confirm your preference change"
	default:
		action = "confirm your subscription"
	}
	subject = "Your verification code"
	body = fmt.Sprintf("Use code %s to %s. It expires in %d minutes.",
		code, action, int(ttl.Minutes()))
	return subject, body
}

// LogSender is the development sender: it logs that a delivery happened
// without the code itself. Deployments wire a real provider instead.
type LogSender struct {
	Logger *slog.Logger
}

func (s LogSender) Send(ctx context.Context, channel Channel, destination, _, subject, _ string) error {
	s.Logger.InfoContext(ctx, "verification code delivery (dev sender, not sent)",
		"channel", channel,
		"destination", destination,
		"subject", subject,
	)
	return nil
}
