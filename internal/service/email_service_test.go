package service

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"guildmembers/internal/models"
)

type fakeSES struct {
	inputs []*sesv2.SendEmailInput
	err    error
}

func (f *fakeSES) SendEmail(_ context.Context, in *sesv2.SendEmailInput, _ ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.inputs = append(f.inputs, in)
	return &sesv2.SendEmailOutput{MessageId: aws.String("msg-1")}, nil
}

func TestEmailServiceDisabled(t *testing.T) {
	s, err := NewEmailService(context.Background(), "ap-southeast-2", "", "The Guild", false)
	require.NoError(t, err)
	assert.False(t, s.IsEnabled())

	err = s.Send(context.Background(), Message{To: []string{"jane@guild.test"}, Subject: "hello"})
	assert.NoError(t, err)
}

func TestEmailServiceSend(t *testing.T) {
	client := &fakeSES{}
	s := &EmailService{client: client, fromEmail: "office@guild.test", fromName: "The Guild", enabled: true, debug: true}

	msg := welcomeMessage([]string{"jane@guild.test", "jane@work.test"}, &models.Member{Number: 12, Name: "Jane <Doe>"})
	require.NoError(t, s.Send(context.Background(), msg))

	require.Len(t, client.inputs, 1)
	in := client.inputs[0]
	assert.Equal(t, "The Guild <office@guild.test>", aws.ToString(in.FromEmailAddress))
	assert.Equal(t, []string{"jane@guild.test", "jane@work.test"}, in.Destination.ToAddresses)
	assert.Equal(t, "Thank you for becoming a Guild member", aws.ToString(in.Content.Simple.Subject.Data))
	assert.Contains(t, aws.ToString(in.Content.Simple.Body.Text.Data), "Your member number is 12.")
	assert.Contains(t, aws.ToString(in.Content.Simple.Body.Html.Data), "Jane &lt;Doe&gt;")

	t.Run("no recipients", func(t *testing.T) {
		assert.Error(t, s.Send(context.Background(), Message{Subject: "nobody"}))
	})

	t.Run("SES failure", func(t *testing.T) {
		client.err = errors.New("throttled")
		err := s.Send(context.Background(), msg)
		assert.ErrorIs(t, err, client.err)
	})
}

func TestSignupNoticeMessage(t *testing.T) {
	msg := signupNoticeMessage([]string{"door@guild.test"}, &models.TemporaryMember{
		ID:         7,
		MemberType: "junior",
		Name:       "Sam Lee",
		Email:      "sam@guild.test",
	})
	assert.Equal(t, "New junior signup: Sam Lee", msg.Subject)
	assert.Contains(t, msg.TextBody, "Signup ID: 7")
	assert.Contains(t, msg.HTMLBody, "sam@guild.test")
}
