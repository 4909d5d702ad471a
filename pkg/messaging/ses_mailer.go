package messaging

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
)

// SESAPI is the subset of the SES v2 client used by SESMailer
type SESAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// WelcomeEmail is sent once a tenant signs up
type WelcomeEmail struct {
	To           string
	ContactName  string
	BusinessName string
}

// SESMailer sends transactional email through Amazon SES
type SESMailer struct {
	client SESAPI
	from   string
}

func NewSESMailer(client SESAPI, fromAddress string) *SESMailer {
	return &SESMailer{client: client, from: fromAddress}
}

// SendWelcomeEmail sends the signup welcome message and returns the SES message id
func (m *SESMailer) SendWelcomeEmail(ctx context.Context, email WelcomeEmail) (string, error) {
	if email.To == "" {
		return "", errors.New("no recipient specified")
	}

	subject, body := renderWelcome(email)
	out, err := m.client.SendEmail(ctx, &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(m.from),
		Destination:      &types.Destination{ToAddresses: []string{email.To}},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(subject), Charset: aws.String("UTF-8")},
				Body: &types.Body{
					Text: &types.Content{Data: aws.String(body), Charset: aws.String("UTF-8")},
				},
			},
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to send welcome email: %w", err)
	}
	return aws.ToString(out.MessageId), nil
}

func renderWelcome(email WelcomeEmail) (string, string) {
	name := strings.TrimSpace(email.ContactName)
	if name == "" {
		name = "there"
	}
	business := strings.TrimSpace(email.BusinessName)
	if business == "" {
		business = "your business"
	}

	subject := "Welcome aboard, " + business
	var b strings.Builder
	fmt.Fprintf(&b, "Hi %s,\n\n", name)
	fmt.Fprintf(&b, "Thanks for signing up %s. ", business)
	b.WriteString("Finish configuring your workspace, choose your tools and pick a plan to get started.\n")
	return subject, b.String()
}
