package sns

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ErlanBelekov/otp-auth/internal/bus"
	"github.com/ErlanBelekov/otp-auth/internal/domain"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
)

// API is the subset of *sns.Client used here.
type API interface {
	Publish(ctx context.Context, in *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// TopicPublisher publishes each event type to its own topic.
type TopicPublisher struct {
	client API
	topics map[domain.EventType]string
}

func NewTopicPublisher(client API, topics map[domain.EventType]string) *TopicPublisher {
	return &TopicPublisher{client: client, topics: topics}
}

func (p *TopicPublisher) Publish(ctx context.Context, env bus.Envelope) error {
	topicARN, ok := p.topics[env.Type]
	if !ok || topicARN == "" {
		return fmt.Errorf("no topic configured for %q", env.Type)
	}

	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	_, err = p.client.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(topicARN),
		Message:  aws.String(string(body)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"event_type": {DataType: aws.String("String"), StringValue: aws.String(string(env.Type))},
			"event_id":   {DataType: aws.String("String"), StringValue: aws.String(env.ID)},
		},
	})
	if err != nil {
		return fmt.Errorf("%w: publish %s: %w", domain.ErrUnavailable, env.Type, err)
	}
	return nil
}
