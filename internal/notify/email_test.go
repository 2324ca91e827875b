package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stylebook/salon-reminders/pkg/logging"
)

type fakeSendGrid struct {
	status int
	err    error
	got    *mail.SGMailV3
}

func (f *fakeSendGrid) SendWithContext(ctx context.Context, email *mail.SGMailV3) (*rest.Response, error) {
	f.got = email
	if f.err != nil {
		return nil, f.err
	}
	return &rest.Response{StatusCode: f.status}, nil
}

type fakeSES struct {
	err error
	got *sesv2.SendEmailInput
}

func (f *fakeSES) SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	f.got = params
	if f.err != nil {
		return nil, f.err
	}
	return &sesv2.SendEmailOutput{MessageId: aws.String("ses-1")}, nil
}

func TestNewSendGridSender(t *testing.T) {
	assert.Nil(t, NewSendGridSender(SendGridConfig{FromEmail: "ops@stylebook.test"}, nil))

	sender := NewSendGridSender(SendGridConfig{APIKey: "key", FromEmail: "ops@stylebook.test"}, nil)
	require.NotNil(t, sender)
	assert.Equal(t, "StyleBook", sender.from.Name)

	sender = NewSendGridSender(SendGridConfig{APIKey: "key", FromName: "Glow Studio"}, nil)
	assert.Equal(t, "Glow Studio", sender.from.Name)
}

func TestSendGridSenderSend(t *testing.T) {
	api := &fakeSendGrid{status: 202}
	sender := newSendGridSender(api, SendGridConfig{FromEmail: "ops@stylebook.test"}, logging.New("error"))

	err := sender.Send(context.Background(), EmailMessage{To: "owner@salon.test", Subject: "Hi", Body: "plain"})
	require.NoError(t, err)
	require.NotNil(t, api.got)
	assert.Equal(t, "Hi", api.got.Subject)
	require.Len(t, api.got.Personalizations, 1)
	assert.Equal(t, "owner@salon.test", api.got.Personalizations[0].To[0].Address)

	api.status = 401
	assert.ErrorContains(t, sender.Send(context.Background(), EmailMessage{To: "x@y.test"}), "status 401")

	api.err = errors.New("tls handshake")
	assert.ErrorContains(t, sender.Send(context.Background(), EmailMessage{To: "x@y.test"}), "tls handshake")

	var unset *SendGridSender
	assert.Error(t, unset.Send(context.Background(), EmailMessage{}))
}

func TestSESSenderSend(t *testing.T) {
	api := &fakeSES{}
	sender := newSESSender(api, SESConfig{FromEmail: "ops@stylebook.test"}, logging.New("error"))

	err := sender.Send(context.Background(), EmailMessage{To: "owner@salon.test", Subject: "Alert", Body: "text", HTML: "<p>html</p>"})
	require.NoError(t, err)
	require.NotNil(t, api.got)
	assert.Equal(t, "StyleBook <ops@stylebook.test>", aws.ToString(api.got.FromEmailAddress))
	assert.Equal(t, []string{"owner@salon.test"}, api.got.Destination.ToAddresses)
	assert.Equal(t, "text", aws.ToString(api.got.Content.Simple.Body.Text.Data))
	assert.Equal(t, "<p>html</p>", aws.ToString(api.got.Content.Simple.Body.Html.Data))

	api.err = errors.New("throttled")
	assert.ErrorContains(t, sender.Send(context.Background(), EmailMessage{To: "x@y.test"}), "throttled")

	assert.Nil(t, NewSESSender(nil, SESConfig{}, nil))
}

func TestSendersCarryAlertMetadata(t *testing.T) {
	msg := EmailMessage{
		To:       "owner@salon.test",
		ReplyTo:  "desk@salon.test",
		Subject:  "Reminder failed for order SB-9",
		Body:     "text",
		Category: CategoryReminderFailure,
		Tags:     map[string]string{"order_id": "SB 9", "job_id": "abc"},
	}

	sg := &fakeSendGrid{status: 202}
	require.NoError(t, newSendGridSender(sg, SendGridConfig{FromEmail: "ops@stylebook.test"}, nil).Send(context.Background(), msg))
	assert.Equal(t, []string{CategoryReminderFailure}, sg.got.Categories)
	assert.Equal(t, map[string]string{"order_id": "SB 9", "job_id": "abc"}, sg.got.Personalizations[0].CustomArgs)
	require.NotNil(t, sg.got.ReplyTo)
	assert.Equal(t, "desk@salon.test", sg.got.ReplyTo.Address)
	require.Len(t, sg.got.Content, 1, "no html part without HTML")

	ses := &fakeSES{}
	sender := newSESSender(ses, SESConfig{FromEmail: "ops@stylebook.test", ConfigurationSet: "alerts"}, nil)
	require.NoError(t, sender.Send(context.Background(), msg))
	assert.Equal(t, "alerts", aws.ToString(ses.got.ConfigurationSetName))
	assert.Equal(t, []string{"desk@salon.test"}, ses.got.ReplyToAddresses)
	tags := map[string]string{}
	for _, tag := range ses.got.EmailTags {
		tags[aws.ToString(tag.Name)] = aws.ToString(tag.Value)
	}
	assert.Equal(t, map[string]string{
		"category": CategoryReminderFailure,
		"job_id":   "abc",
		"order_id": "SB_9",
	}, tags)
	assert.Nil(t, ses.got.Content.Simple.Body.Html)
}

func TestSendersRequireRecipient(t *testing.T) {
	sg := &fakeSendGrid{status: 202}
	ses := &fakeSES{}
	senders := map[string]EmailSender{
		"sendgrid": newSendGridSender(sg, SendGridConfig{}, nil),
		"ses":      newSESSender(ses, SESConfig{}, nil),
		"stub":     NewStubEmailSender(nil),
	}
	for name, sender := range senders {
		t.Run(name, func(t *testing.T) {
			assert.ErrorIs(t, sender.Send(context.Background(), EmailMessage{To: "  ", Subject: "s"}), errNoRecipient)
		})
	}
	assert.Nil(t, sg.got)
	assert.Nil(t, ses.got)
}

func TestStubEmailSender(t *testing.T) {
	stub := NewStubEmailSender(nil)
	require.NoError(t, stub.Send(context.Background(), EmailMessage{To: "a@b.test", Subject: "s"}))
	sent := stub.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "s", sent[0].Subject)
}
