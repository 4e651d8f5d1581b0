package mail

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
)

const charset = "UTF-8"

type SESClient interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

var _ Sender = &SESSender{}

type SESSender struct {
	client SESClient
}

func NewSESSender(client SESClient) *SESSender {
	return &SESSender{client: client}
}

func (s *SESSender) SendEmail(ctx context.Context, email Email) error {
	if len(email.ToAddresses) == 0 {
		return fmt.Errorf("email %q has no recipients", email.Subject)
	}

	body := &types.Body{}
	if email.HTMLBody != "" {
		body.Html = &types.Content{Data: aws.String(email.HTMLBody), Charset: aws.String(charset)}
	}
	if email.TextBody != "" {
		body.Text = &types.Content{Data: aws.String(email.TextBody), Charset: aws.String(charset)}
	}

	_, err := s.client.SendEmail(ctx, &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(email.FromAddress),
		Destination: &types.Destination{
			ToAddresses: email.ToAddresses,
		},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(email.Subject), Charset: aws.String(charset)},
				Body:    body,
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to send email %q: %w", email.Subject, err)
	}

	return nil
}
