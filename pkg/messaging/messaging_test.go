package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockSES struct {
	mock.Mock
}

func (m *MockSES) SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*sesv2.SendEmailOutput), args.Error(1)
}

type MockSNS struct {
	mock.Mock
}

func (m *MockSNS) Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*sns.PublishOutput), args.Error(1)
}

func TestSESMailer_SendWelcomeEmail(t *testing.T) {
	client := new(MockSES)
	mailer := NewSESMailer(client, "hello@bizhub.io")

	client.On("SendEmail", mock.Anything, mock.MatchedBy(func(in *sesv2.SendEmailInput) bool {
		return aws.ToString(in.FromEmailAddress) == "hello@bizhub.io" &&
			assert.ObjectsAreEqual([]string{"jane@acme.io"}, in.Destination.ToAddresses) &&
			aws.ToString(in.Content.Simple.Subject.Data) == "Welcome aboard, Acme"
	})).Return(&sesv2.SendEmailOutput{MessageId: aws.String("msg-1")}, nil).Once()

	id, err := mailer.SendWelcomeEmail(context.Background(), WelcomeEmail{To: "jane@acme.io", ContactName: "Jane", BusinessName: "Acme"})
	require.NoError(t, err)
	assert.Equal(t, "msg-1", id)
	client.AssertExpectations(t)
}

func TestSESMailer_Errors(t *testing.T) {
	client := new(MockSES)
	mailer := NewSESMailer(client, "hello@bizhub.io")

	_, err := mailer.SendWelcomeEmail(context.Background(), WelcomeEmail{})
	assert.EqualError(t, err, "no recipient specified")

	cause := errors.New("throttled")
	client.On("SendEmail", mock.Anything, mock.Anything).Return(nil, cause)
	_, err = mailer.SendWelcomeEmail(context.Background(), WelcomeEmail{To: "a@b.com"})
	assert.ErrorIs(t, err, cause)
}

func TestRenderWelcome(t *testing.T) {
	subject, body := renderWelcome(WelcomeEmail{})
	assert.Equal(t, "Welcome aboard, your business", subject)
	assert.Contains(t, body, "Hi there,")

	_, body = renderWelcome(WelcomeEmail{ContactName: "Jane", BusinessName: "Acme"})
	assert.Contains(t, body, "Hi Jane,")
	assert.Contains(t, body, "Thanks for signing up Acme.")
}

func TestSNSPublisher_PublishEvent(t *testing.T) {
	client := new(MockSNS)
	publisher := NewSNSPublisher(client, "arn:aws:sns:us-east-1:123456789012:onboarding")
	occurred := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	var published *sns.PublishInput
	client.On("Publish", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { published = args.Get(1).(*sns.PublishInput) }).
		Return(&sns.PublishOutput{MessageId: aws.String("m-1")}, nil)

	err := publisher.PublishEvent(context.Background(), Event{
		Type:       "onboarding.completed",
		TenantID:   "t1",
		OccurredAt: occurred,
		Data:       map[string]any{"lastStep": "billing-plan"},
	})
	require.NoError(t, err)
	require.NotNil(t, published)

	assert.Equal(t, "arn:aws:sns:us-east-1:123456789012:onboarding", aws.ToString(published.TopicArn))
	assert.Equal(t, "onboarding.completed", aws.ToString(published.MessageAttributes["event_type"].StringValue))
	assert.Equal(t, "t1", aws.ToString(published.MessageAttributes["tenant_id"].StringValue))

	var body Event
	require.NoError(t, json.Unmarshal([]byte(aws.ToString(published.Message)), &body))
	assert.Equal(t, "t1", body.TenantID)
	assert.True(t, occurred.Equal(body.OccurredAt))
	assert.Equal(t, "billing-plan", body.Data["lastStep"])
}

func TestSNSPublisher_Error(t *testing.T) {
	client := new(MockSNS)
	client.On("Publish", mock.Anything, mock.Anything).Return(nil, errors.New("topic not found"))

	err := NewSNSPublisher(client, "arn").PublishEvent(context.Background(), Event{Type: "x"})
	assert.ErrorContains(t, err, "failed to publish x")
}
