package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"testing"

	"academy/internal/shared/config"
	"academy/pkg/logger"

	"github.com/sendgrid/rest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

type fakeTwilio struct {
	params *twilioApi.CreateMessageParams
	sid    *string
	err    error
}

func (f *fakeTwilio) CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error) {
	f.params = params
	if f.err != nil {
		return nil, f.err
	}
	return &twilioApi.ApiV2010Message{Sid: f.sid}, nil
}

func TestTwilioSender_Send(t *testing.T) {
	sid := "SM42"
	api := &fakeTwilio{sid: &sid}
	sender := &TwilioSender{api: api, from: "+15550001111"}

	id, err := sender.Send(context.Background(), NewOutboundMessage(ChannelSMS, "+15552223333", "Reply YES"))
	require.NoError(t, err)
	assert.Equal(t, "SM42", id)
	require.NotNil(t, api.params)
	assert.Equal(t, "+15552223333", *api.params.To)
	assert.Equal(t, "+15550001111", *api.params.From)
	assert.Equal(t, "Reply YES", *api.params.Body)
}

func TestTwilioSender_Errors(t *testing.T) {
	sender := &TwilioSender{api: &fakeTwilio{err: errors.New("21211 invalid number")}, from: "+1"}
	_, err := sender.Send(context.Background(), NewOutboundMessage(ChannelSMS, "bad", "x"))
	assert.ErrorContains(t, err, "21211")

	sender = &TwilioSender{api: &fakeTwilio{}, from: "+1"}
	_, err = sender.Send(context.Background(), NewOutboundMessage(ChannelSMS, "+1", "x"))
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	api := &fakeTwilio{}
	sender = &TwilioSender{api: api, from: "+1"}
	_, err = sender.Send(ctx, NewOutboundMessage(ChannelSMS, "+1", "x"))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, api.params)
}

func TestSendGridSender_Send(t *testing.T) {
	var captured rest.Request
	sender := NewSendGridSender("SG.key", EmailIdentity{FromEmail: "noreply@rypgolf.com", FromName: "RYP Golf"})
	sender.api = func(req rest.Request) (*rest.Response, error) {
		captured = req
		return &rest.Response{StatusCode: http.StatusAccepted, Headers: map[string][]string{"X-Message-Id": {"msg-1"}}}, nil
	}

	id, err := sender.Send(context.Background(), NewOutboundMessage(ChannelEmail, "parent@example.com", "A spot opened <now>"))
	require.NoError(t, err)
	assert.Equal(t, "msg-1", id)
	assert.Equal(t, http.MethodPost, string(captured.Method))
	assert.True(t, strings.HasSuffix(captured.BaseURL, "/v3/mail/send"))
	assert.Equal(t, "Bearer SG.key", captured.Headers["Authorization"])

	var payload struct {
		Subject string `json:"subject"`
		From    struct {
			Email string `json:"email"`
		} `json:"from"`
		Content []struct {
			Type  string `json:"type"`
			Value string `json:"value"`
		} `json:"content"`
	}
	require.NoError(t, json.Unmarshal(captured.Body, &payload))
	assert.Equal(t, "RYP Golf waitlist update", payload.Subject)
	assert.Equal(t, "noreply@rypgolf.com", payload.From.Email)
	require.Len(t, payload.Content, 2)
	assert.Contains(t, payload.Content[1].Value, "&lt;now&gt;")
}

func TestSendGridSender_HTTPError(t *testing.T) {
	sender := NewSendGridSender("SG.key", EmailIdentity{FromEmail: "a@b.com"})
	sender.api = func(rest.Request) (*rest.Response, error) {
		return &rest.Response{StatusCode: http.StatusUnauthorized, Body: "bad key"}, nil
	}

	_, err := sender.Send(context.Background(), NewOutboundMessage(ChannelEmail, "x@y.com", "hi"))
	assert.ErrorContains(t, err, "401")
}

func TestSMTPSender_Validation(t *testing.T) {
	_, err := NewSMTPSender(&SMTPConfig{Port: 587, Identity: EmailIdentity{FromEmail: "a@b.com"}})
	assert.Error(t, err)

	_, err = NewSMTPSender(&SMTPConfig{Host: "smtp.example.com", Port: 0, Identity: EmailIdentity{FromEmail: "a@b.com"}})
	assert.Error(t, err)

	s, err := NewSMTPSender(&SMTPConfig{Host: "smtp.example.com", Port: 587, Identity: EmailIdentity{FromEmail: "a@b.com", FromName: "Academy"}})
	require.NoError(t, err)

	raw := string(s.buildMessage(&OutboundMessage{Address: "to@example.com", Subject: "Offer", Body: "line1\nline2"}))
	assert.Contains(t, raw, "From: Academy <a@b.com>\r\n")
	assert.Contains(t, raw, "Subject: Offer\r\n")
	assert.Contains(t, raw, "line1<br>line2")
	assert.Contains(t, raw, "multipart/alternative")
}

func TestNewSenders(t *testing.T) {
	log := logger.NewNop()

	senders, err := NewSenders(config.NotificationConfig{Email: config.EmailConfig{Provider: "console"}}, log)
	require.NoError(t, err)
	assert.IsType(t, &ConsoleSender{}, senders[ChannelSMS])
	assert.IsType(t, &ConsoleSender{}, senders[ChannelEmail])

	senders, err = NewSenders(config.NotificationConfig{
		Twilio: config.TwilioConfig{AccountSID: "AC1", AuthToken: "tok", FromNumber: "+1555"},
		Email:  config.EmailConfig{Provider: "sendgrid", SendGridAPIKey: "SG.x"},
	}, log)
	require.NoError(t, err)
	assert.IsType(t, &TwilioSender{}, senders[ChannelSMS])
	assert.IsType(t, &SendGridSender{}, senders[ChannelEmail])

	_, err = NewSenders(config.NotificationConfig{Email: config.EmailConfig{Provider: "sendgrid"}}, log)
	assert.Error(t, err)

	_, err = NewSenders(config.NotificationConfig{Email: config.EmailConfig{Provider: "pigeon"}}, log)
	assert.Error(t, err)
}

func TestConsoleSender_Send(t *testing.T) {
	var buf strings.Builder
	sender := NewConsoleSender(ChannelSMS, logger.NewWithWriter(&buf, "info", true))

	id, err := sender.Send(context.Background(), NewOutboundMessage(ChannelSMS, "+15550000000", "hello"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(id, "console-"))
	assert.Contains(t, buf.String(), "+15550000000")
}
