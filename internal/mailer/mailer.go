package mailer

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"github.com/rs/zerolog/log"
)

// Mailer sends transactional mail through Amazon SES. When no sender
// address is configured the mailer runs disabled and drops messages,
// which keeps local development working without AWS credentials.
type Mailer struct {
	client     *sesv2.Client
	fromEmail  string
	fromName   string
	appBaseURL string
	enabled    bool
}

// New creates a mailer. An empty fromEmail yields a disabled instance.
func New(ctx context.Context, region, fromEmail, fromName, appBaseURL string) (*Mailer, error) {
	if fromEmail == "" {
		log.Info().Msg("Mailer disabled: MAIL_FROM_EMAIL not configured")
		return &Mailer{enabled: false}, nil
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	log.Info().Str("from", fromEmail).Str("region", region).Msg("Mailer enabled")
	return &Mailer{
		client:     sesv2.NewFromConfig(cfg),
		fromEmail:  fromEmail,
		fromName:   fromName,
		appBaseURL: appBaseURL,
		enabled:    true,
	}, nil
}

// IsEnabled reports whether mail is actually dispatched
func (m *Mailer) IsEnabled() bool {
	return m.enabled
}

// SendPasswordReset delivers the recovery link for a reset token
func (m *Mailer) SendPasswordReset(ctx context.Context, toEmail, toName, resetToken string) error {
	if !m.enabled {
		log.Info().Str("to", toEmail).Msg("Skipping password reset mail: mailer disabled")
		return nil
	}

	resetLink := fmt.Sprintf("%s/reset-password?token=%s", m.appBaseURL, resetToken)
	subject := "Reset your CareBridge password"

	htmlBody := fmt.Sprintf(`<html>
<body style="font-family: Arial, sans-serif; color: #333;">
	<h2>Password reset request</h2>
	<p>Hi %s,</p>
	<p>We received a request to reset the password for your CareBridge account.</p>
	<p><a href="%s" style="display:inline-block;padding:12px 24px;background:#2b6cb0;color:#fff;text-decoration:none;border-radius:4px;">Reset password</a></p>
	<p>Or copy this link into your browser:<br>%s</p>
	<p><strong>This link expires in 1 hour.</strong></p>
	<p>If you didn't request a reset, you can safely ignore this email.</p>
</body>
</html>`, toName, resetLink, resetLink)

	textBody := fmt.Sprintf(`Hi %s,

We received a request to reset the password for your CareBridge account.

Reset it here: %s

This link expires in 1 hour.

If you didn't request a reset, you can safely ignore this email.
`, toName, resetLink)

	return m.send(ctx, toEmail, subject, htmlBody, textBody)
}

func (m *Mailer) send(ctx context.Context, toEmail, subject, htmlBody, textBody string) error {
	from := fmt.Sprintf("%s <%s>", m.fromName, m.fromEmail)

	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(from),
		Destination: &types.Destination{
			ToAddresses: []string{toEmail},
		},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(subject)},
				Body: &types.Body{
					Html: &types.Content{Data: aws.String(htmlBody)},
					Text: &types.Content{Data: aws.String(textBody)},
				},
			},
		},
	}

	if _, err := m.client.SendEmail(ctx, input); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	log.Debug().Str("to", toEmail).Str("subject", subject).Msg("Email sent")
	return nil
}
