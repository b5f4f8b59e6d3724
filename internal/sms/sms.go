package sms

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
)

type Sender interface {
	Send(ctx context.Context, to, message string) error
}

// LogSender logs messages instead of sending them. Used in ENV=local.
type LogSender struct {
	logger *slog.Logger
}

func (s *LogSender) Send(ctx context.Context, to, message string) error {
	s.logger.InfoContext(ctx, "sms (local dev)", "to", to, "message", message)
	return nil
}

type publishAPI interface {
	Publish(ctx context.Context, in *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// SNSSender sends transactional SMS through SNS direct publish.
type SNSSender struct {
	client   publishAPI
	senderID string
}

func (s *SNSSender) Send(ctx context.Context, to, message string) error {
	attrs := map[string]types.MessageAttributeValue{
		"AWS.SNS.SMS.SMSType": {DataType: aws.String("String"), StringValue: aws.String("Transactional")},
	}
	if s.senderID != "" {
		attrs["AWS.SNS.SMS.SenderID"] = types.MessageAttributeValue{DataType: aws.String("String"), StringValue: aws.String(s.senderID)}
	}
	_, err := s.client.Publish(ctx, &sns.PublishInput{
		PhoneNumber:       aws.String(to),
		Message:           aws.String(message),
		MessageAttributes: attrs,
	})
	if err != nil {
		return fmt.Errorf("send sms: %w", err)
	}
	return nil
}

// NewSender returns a LogSender for ENV=local, SNSSender otherwise.
func NewSender(env string, client publishAPI, senderID string, logger *slog.Logger) Sender {
	if env == "local" {
		return &LogSender{logger: logger}
	}
	return &SNSSender{client: client, senderID: senderID}
}
