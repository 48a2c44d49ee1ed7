package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

// TwilioSMS sends text messages through the Twilio Messages API.
type TwilioSMS struct {
	client *twilio.RestClient
	from   string
}

func NewTwilioSMS(accountSID, authToken, from string) (*TwilioSMS, error) {
	if accountSID == "" || authToken == "" || from == "" {
		return nil, errors.New("missing Twilio credentials")
	}
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSID,
		Password: authToken,
	})
	return &TwilioSMS{client: client, from: from}, nil
}

func (t *TwilioSMS) Send(ctx context.Context, to string, _ Channel, msg Message) (Receipt, error) {
	if err := ctx.Err(); err != nil {
		return Receipt{}, err
	}

	params := &twilioApi.CreateMessageParams{}
	params.SetFrom(t.from)
	params.SetTo(to)
	params.SetBody(msg.Body)

	resp, err := t.client.Api.CreateMessage(params)
	if err != nil {
		return Receipt{}, fmt.Errorf("twilio create message: %w", err)
	}

	rcpt := Receipt{}
	if resp.Sid != nil {
		rcpt.MessageID = *resp.Sid
	}
	return rcpt, nil
}
