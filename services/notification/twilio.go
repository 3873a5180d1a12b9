package notification

import (
	"context"
	"fmt"
	"net/url"

	"github.com/twilio/twilio-go"
	twilioClient "github.com/twilio/twilio-go/client"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
	"go.uber.org/zap"
)

// TwilioSender sends SMS through the Twilio Messages API and validates its webhooks.
type TwilioSender struct {
	client         *twilio.RestClient
	validator      twilioClient.RequestValidator
	from           string
	statusCallback string
	logger         *zap.Logger
}

// NewTwilioSender builds a sender. statusCallback is the absolute URL of the
// delivery status webhook; booking id and kind are appended per message.
func NewTwilioSender(accountSID, authToken, from, statusCallback string, logger *zap.Logger) *TwilioSender {
	return &TwilioSender{
		client: twilio.NewRestClientWithParams(twilio.ClientParams{
			Username: accountSID,
			Password: authToken,
		}),
		validator:      twilioClient.NewRequestValidator(authToken),
		from:           from,
		statusCallback: statusCallback,
		logger:         logger,
	}
}

func (s *TwilioSender) Send(ctx context.Context, msg Message) (string, error) {
	params := &twilioApi.CreateMessageParams{}
	params.SetTo(msg.To)
	params.SetFrom(s.from)
	params.SetBody(msg.Body)
	if s.statusCallback != "" {
		q := url.Values{}
		q.Set("bookingId", msg.BookingID)
		q.Set("kind", string(msg.Kind))
		params.SetStatusCallback(s.statusCallback + "?" + q.Encode())
	}

	type result struct {
		sid string
		err error
	}
	done := make(chan result, 1)
	// The Twilio client takes no context, so the call is bounded here instead.
	go func() {
		resp, err := s.client.Api.CreateMessage(params)
		if err != nil {
			done <- result{err: err}
			return
		}
		sid := ""
		if resp.Sid != nil {
			sid = *resp.Sid
		}
		done <- result{sid: sid}
	}()

	select {
	case <-ctx.Done():
		return "", fmt.Errorf("twilio send to %s: %w", msg.To, ctx.Err())
	case r := <-done:
		if r.err != nil {
			return "", fmt.Errorf("twilio send to %s: %w", msg.To, r.err)
		}
		s.logger.Info("SMS sent",
			zap.String("bookingID", msg.BookingID),
			zap.String("kind", string(msg.Kind)),
			zap.String("sid", r.sid))
		return r.sid, nil
	}
}

func (s *TwilioSender) ValidSignature(url string, params map[string]string, signature string) bool {
	return s.validator.Validate(url, params, signature)
}
