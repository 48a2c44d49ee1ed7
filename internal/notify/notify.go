// Package notify delivers OTP codes and payment confirmations. Transports
// are black boxes behind Notifier; Router picks one per channel.
package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/hackgods/medverify-booking/internal/apperr"
)

type Channel string

const (
	ChannelSMS   Channel = "sms"
	ChannelEmail Channel = "email"
)

type Message struct {
	Subject string
	Body    string
}

type Receipt struct {
	MessageID string
}

type Notifier interface {
	Send(ctx context.Context, to string, channel Channel, msg Message) (Receipt, error)
}

var ErrChannelUnavailable = apperr.New(apperr.KindProvider, "notification channel unavailable")

// Router dispatches each message to the notifier registered for its channel.
type Router struct {
	routes map[Channel]Notifier
}

func NewRouter() *Router {
	return &Router{routes: make(map[Channel]Notifier)}
}

func (r *Router) Handle(ch Channel, n Notifier) *Router {
	r.routes[ch] = n
	return r
}

func (r *Router) Send(ctx context.Context, to string, channel Channel, msg Message) (Receipt, error) {
	n, ok := r.routes[channel]
	if !ok {
		return Receipt{}, ErrChannelUnavailable
	}
	rcpt, err := n.Send(ctx, to, channel, msg)
	if err != nil {
		return Receipt{}, apperr.Wrap(apperr.KindProvider, err, fmt.Sprintf("send %s notification", channel))
	}
	return rcpt, nil
}

func OTPMessage(code string, ttl time.Duration) Message {
	return Message{
		Subject: "Your verification code",
		Body:    fmt.Sprintf("Your verification code is %s. It expires in %d minutes.", code, int(ttl.Minutes())),
	}
}

func PaymentConfirmationMessage(orderID string, amountMinor int64, currency string) Message {
	return Message{
		Subject: "Payment received",
		Body: fmt.Sprintf("We received your payment of %s %d.%02d for order %s. Your appointment is confirmed.",
			currency, amountMinor/100, amountMinor%100, orderID),
	}
}
