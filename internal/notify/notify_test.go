package notify

import (
	"context"
	"errors"
	"net/smtp"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/hackgods/medverify-booking/internal/apperr"
)

type failingNotifier struct{}

func (failingNotifier) Send(context.Context, string, Channel, Message) (Receipt, error) {
	return Receipt{}, errors.New("gateway down")
}

func TestRouterDispatchesByChannel(t *testing.T) {
	t.Parallel()

	r := NewRouter().
		Handle(ChannelSMS, NewLogNotifier(zap.NewNop())).
		Handle(ChannelEmail, failingNotifier{})

	rcpt, err := r.Send(context.Background(), "+911234567890", ChannelSMS, OTPMessage("123456", 10*time.Minute))
	if err != nil {
		t.Fatalf("sms send: %v", err)
	}
	if rcpt.MessageID == "" {
		t.Error("expected a message id")
	}

	_, err = r.Send(context.Background(), "a@b.com", ChannelEmail, Message{})
	if !errors.Is(err, apperr.ErrProvider) {
		t.Errorf("expected ProviderError, got %v", err)
	}
}

func TestRouterUnknownChannel(t *testing.T) {
	t.Parallel()

	_, err := NewRouter().Send(context.Background(), "x", ChannelEmail, Message{})
	if !errors.Is(err, ErrChannelUnavailable) {
		t.Errorf("expected ErrChannelUnavailable, got %v", err)
	}
}

func TestSMTPMailerBuildsMessage(t *testing.T) {
	t.Parallel()

	m := NewSMTPMailer("mail.example.com:587", "", "", "no-reply@example.com")
	var gotTo []string
	var gotBody string
	m.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotTo = to
		gotBody = string(msg)
		return nil
	}

	rcpt, err := m.Send(context.Background(), "a@b.com", ChannelEmail, OTPMessage("654321", 10*time.Minute))
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(gotTo) != 1 || gotTo[0] != "a@b.com" {
		t.Errorf("unexpected recipients %v", gotTo)
	}
	if !strings.Contains(gotBody, "654321") || !strings.Contains(gotBody, "Subject: Your verification code") {
		t.Errorf("unexpected body %q", gotBody)
	}
	if !strings.HasSuffix(rcpt.MessageID, "@example.com>") {
		t.Errorf("unexpected message id %q", rcpt.MessageID)
	}
}

func TestPaymentConfirmationMessage(t *testing.T) {
	t.Parallel()

	msg := PaymentConfirmationMessage("order_1", 350050, "INR")
	if !strings.Contains(msg.Body, "INR 3500.50") {
		t.Errorf("unexpected body %q", msg.Body)
	}
}
