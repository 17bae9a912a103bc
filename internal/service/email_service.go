package service

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"guildmembers/internal/models"
)

// Message is one email with plain text and HTML bodies
type Message struct {
	To       []string
	Subject  string
	TextBody string
	HTMLBody string
}

// Mailer delivers messages
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// sesAPI is the part of the SES client the email service uses
type sesAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// EmailService sends email via Amazon SES
type EmailService struct {
	client    sesAPI
	fromEmail string
	fromName  string
	enabled   bool
	debug     bool
}

// NewEmailService creates a new email service. An empty fromEmail yields a
// disabled service that logs and drops every message.
func NewEmailService(ctx context.Context, awsRegion, fromEmail, fromName string, debug bool) (*EmailService, error) {
	if fromEmail == "" {
		slog.Info("email service disabled: SES_FROM_EMAIL not configured")
		return &EmailService{enabled: false, debug: debug}, nil
	}

	if debug {
		slog.Debug("initializing email service with AWS SES", "region", awsRegion, "from", fromEmail, "from_name", fromName)
	}

	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(awsRegion))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	slog.Info("email service enabled", "from", fromEmail, "region", awsRegion)

	return &EmailService{
		client:    sesv2.NewFromConfig(cfg),
		fromEmail: fromEmail,
		fromName:  fromName,
		enabled:   true,
		debug:     debug,
	}, nil
}

// IsEnabled returns whether the email service is enabled
func (s *EmailService) IsEnabled() bool {
	return s.enabled
}

// Send delivers msg to all of its recipients in one SES call
func (s *EmailService) Send(ctx context.Context, msg Message) error {
	if len(msg.To) == 0 {
		return fmt.Errorf("failed to send %q: no recipients", msg.Subject)
	}

	if !s.enabled {
		slog.InfoContext(ctx, "skipping email send (service disabled)", "subject", msg.Subject, "to", msg.To)
		return nil
	}

	fromAddress := s.fromEmail
	if s.fromName != "" {
		fromAddress = fmt.Sprintf("%s <%s>", s.fromName, s.fromEmail)
	}

	if s.debug {
		slog.DebugContext(ctx, "sending email",
			"from", fromAddress, "to", msg.To, "subject", msg.Subject,
			"html_bytes", len(msg.HTMLBody), "text_bytes", len(msg.TextBody))
	}

	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(fromAddress),
		Destination: &types.Destination{
			ToAddresses: msg.To,
		},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{
					Data:    aws.String(msg.Subject),
					Charset: aws.String("UTF-8"),
				},
				Body: &types.Body{
					Html: &types.Content{
						Data:    aws.String(msg.HTMLBody),
						Charset: aws.String("UTF-8"),
					},
					Text: &types.Content{
						Data:    aws.String(msg.TextBody),
						Charset: aws.String("UTF-8"),
					},
				},
			},
		},
	}

	result, err := s.client.SendEmail(ctx, input)
	if err != nil {
		return fmt.Errorf("failed to send email to %s: %w", strings.Join(msg.To, ", "), err)
	}

	if s.debug && result.MessageId != nil {
		slog.DebugContext(ctx, "SES SendEmail succeeded", "message_id", *result.MessageId)
	}

	slog.InfoContext(ctx, "email sent", "to", msg.To, "subject", msg.Subject)
	return nil
}

const welcomeSubject = "Thank you for becoming a Guild member"

// welcomeMessage is the fixed welcome sent to a new member
func welcomeMessage(to []string, member *models.Member) Message {
	textBody := fmt.Sprintf(`Hi %s,

Thank you for becoming a Guild member.

Your member number is %d.
`, member.Name, member.Number)

	htmlBody := fmt.Sprintf(`<!DOCTYPE html>
<html>
<body>
	<p>Hi %s,</p>
	<p><strong>Thank you for becoming a Guild member.</strong></p>
	<p>Your member number is %d.</p>
</body>
</html>
`, html.EscapeString(member.Name), member.Number)

	return Message{To: to, Subject: welcomeSubject, TextBody: textBody, HTMLBody: htmlBody}
}

// signupNoticeMessage tells staff that a signup is waiting for review
func signupNoticeMessage(to []string, t *models.TemporaryMember) Message {
	subject := fmt.Sprintf("New %s signup: %s", t.MemberType, t.Name)

	lines := []string{
		"A new membership signup is waiting for review.",
		"",
		"Name: " + t.Name,
		"Member type: " + t.MemberType,
		"Email: " + t.Email,
		"Phone: " + t.Phone,
		"Suburb: " + t.Suburb + " " + t.Postcode + " " + t.State,
		"Payment method: " + t.PaymentMethod,
		fmt.Sprintf("Signup ID: %d", t.ID),
	}
	textBody := strings.Join(lines, "\n") + "\n"

	var b strings.Builder
	b.WriteString("<!DOCTYPE html>\n<html>\n<body>\n")
	for _, line := range lines {
		if line == "" {
			continue
		}
		fmt.Fprintf(&b, "\t<p>%s</p>\n", html.EscapeString(line))
	}
	b.WriteString("</body>\n</html>\n")

	return Message{To: to, Subject: subject, TextBody: textBody, HTMLBody: b.String()}
}
