// Package sqs drains bus envelopes from an SQS queue subscribed to an SNS
// topic.
package sqs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ErlanBelekov/otp-auth/internal/bus"
	"github.com/ErlanBelekov/otp-auth/internal/metrics"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

const (
	maxMessages  = 10
	waitSeconds  = 20
	handleBudget = 30 * time.Second
	errorBackoff = 2 * time.Second
)

// API is the subset of *sqs.Client used here.
type API interface {
	ReceiveMessage(ctx context.Context, in *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, in *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
	GetQueueAttributes(ctx context.Context, in *sqs.GetQueueAttributesInput, optFns ...func(*sqs.Options)) (*sqs.GetQueueAttributesOutput, error)
}

type Consumer struct {
	client   API
	queueURL string
	handler  bus.Handler
	logger   *slog.Logger
	sem      chan struct{}
	wg       sync.WaitGroup
}

func NewConsumer(client API, queueURL string, handler bus.Handler, logger *slog.Logger, concurrency int) *Consumer {
	return &Consumer{
		client:   client,
		queueURL: queueURL,
		handler:  handler,
		logger:   logger.With("component", "sqs_consumer"),
		sem:      make(chan struct{}, max(concurrency, 1)),
	}
}

// Start long-polls until ctx is cancelled, then waits for in-flight handlers.
func (c *Consumer) Start(ctx context.Context) {
	c.logger.Info("consumer started", "queue_url", c.queueURL, "concurrency", cap(c.sem))

	for {
		if ctx.Err() != nil {
			break
		}
		if err := c.poll(ctx); err != nil && ctx.Err() == nil {
			c.logger.Error("receive messages", "error", err)
			select {
			case <-ctx.Done():
			case <-time.After(errorBackoff):
			}
		}
	}

	c.wg.Wait()
	c.logger.Info("consumer shut down")
}

func (c *Consumer) poll(ctx context.Context) error {
	out, err := c.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:              aws.String(c.queueURL),
		MaxNumberOfMessages:   maxMessages,
		WaitTimeSeconds:       waitSeconds,
		MessageAttributeNames: []string{"All"},
	})
	if err != nil {
		return err
	}

	for _, msg := range out.Messages {
		c.sem <- struct{}{}
		c.wg.Add(1)
		go func(m types.Message) {
			defer c.wg.Done()
			defer func() { <-c.sem }()
			c.process(ctx, m)
		}(msg)
	}
	return nil
}

// process handles one message. It is deleted on success or on a permanent
// failure; anything else is left to reappear after the visibility timeout.
func (c *Consumer) process(ctx context.Context, msg types.Message) {
	metrics.ConsumerInFlight.Inc()
	defer metrics.ConsumerInFlight.Dec()

	// Finish the current message even when shutdown has begun.
	hctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), handleBudget)
	defer cancel()

	env, err := decodeBody(aws.ToString(msg.Body))
	if err != nil {
		metrics.ConsumerMessagesTotal.WithLabelValues("unknown", "malformed").Inc()
		c.logger.Error("drop malformed message", "message_id", aws.ToString(msg.MessageId), "error", err)
		c.delete(hctx, msg)
		return
	}

	hctx = bus.WithEventID(hctx, env.ID)
	eventType := string(env.Type)

	start := time.Now()
	err = c.handler.Handle(hctx, env)
	metrics.ConsumerHandleDuration.WithLabelValues(eventType).Observe(time.Since(start).Seconds())

	switch {
	case err == nil:
		metrics.ConsumerMessagesTotal.WithLabelValues(eventType, "ok").Inc()
		c.delete(hctx, msg)
	case bus.IsPermanent(err):
		metrics.ConsumerMessagesTotal.WithLabelValues(eventType, "dropped").Inc()
		c.logger.ErrorContext(hctx, "drop message", "event_type", eventType, "error", err)
		c.delete(hctx, msg)
	default:
		metrics.ConsumerMessagesTotal.WithLabelValues(eventType, "retry").Inc()
		c.logger.WarnContext(hctx, "handle message, leaving for redelivery", "event_type", eventType, "error", err)
	}
}

func (c *Consumer) delete(ctx context.Context, msg types.Message) {
	_, err := c.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(c.queueURL),
		ReceiptHandle: msg.ReceiptHandle,
	})
	if err != nil {
		// Redelivery is harmless; handlers are idempotent.
		c.logger.WarnContext(ctx, "delete message", "message_id", aws.ToString(msg.MessageId), "error", err)
	}
}

// Ping checks the queue is reachable.
func (c *Consumer) Ping(ctx context.Context) error {
	_, err := c.client.GetQueueAttributes(ctx, &sqs.GetQueueAttributesInput{
		QueueUrl:       aws.String(c.queueURL),
		AttributeNames: []types.QueueAttributeName{types.QueueAttributeNameApproximateNumberOfMessages},
	})
	return err
}

// snsNotification is the JSON SNS wraps around a message when raw message
// delivery is off on the subscription.
type snsNotification struct {
	Type    string `json:"Type"`
	Message string `json:"Message"`
}

func decodeBody(body string) (bus.Envelope, error) {
	var note snsNotification
	if err := json.Unmarshal([]byte(body), &note); err == nil && note.Type == "Notification" {
		body = note.Message
	}

	var env bus.Envelope
	if err := json.Unmarshal([]byte(body), &env); err != nil {
		return bus.Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	if env.ID == "" || env.Type == "" {
		return bus.Envelope{}, errors.New("envelope missing id or type")
	}
	return env, nil
}
