// Package sqs публикует события outbox в Amazon SQS.
package sqs

import (
	"context"
	"errors"
	"fmt"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	awssqs "github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
	"github.com/vladislavdragonenkov/marketplace/internal/messaging"
)

const defaultRegion = "us-east-1"

// API: метод SQS клиента, который использует паблишер.
type API interface {
	SendMessage(ctx context.Context, params *awssqs.SendMessageInput, optFns ...func(*awssqs.Options)) (*awssqs.SendMessageOutput, error)
}

// NewClient загружает AWS конфигурацию из окружения. Пустой endpoint означает AWS,
// непустой используется для localstack.
func NewClient(ctx context.Context, region, endpoint string) (*awssqs.Client, error) {
	if region == "" {
		region = defaultRegion
	}
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return awssqs.NewFromConfig(cfg, func(o *awssqs.Options) {
		if endpoint != "" {
			o.BaseEndpoint = sdkaws.String(endpoint)
		}
	}), nil
}

// Publisher отправляет события в очередь. Для FIFO очередей MessageGroupId, ID заказа,
// дедупликация по ID outbox-записи.
type Publisher struct {
	api      API
	queueURL string
	fifo     bool
	wrap     bool
}

// NewPublisher создаёт паблишер событий заказов.
func NewPublisher(api API, queueURL string, fifo bool) (*Publisher, error) {
	return newPublisher(api, queueURL, fifo, true)
}

// NewDLQPublisher создаёт паблишер dead letter очереди. Payload уходит как есть.
func NewDLQPublisher(api API, queueURL string, fifo bool) (*Publisher, error) {
	return newPublisher(api, queueURL, fifo, false)
}

func newPublisher(api API, queueURL string, fifo, wrap bool) (*Publisher, error) {
	if api == nil {
		return nil, errors.New("sqs client is required")
	}
	if queueURL == "" {
		return nil, errors.New("sqs queue url is required")
	}
	return &Publisher{api: api, queueURL: queueURL, fifo: fifo, wrap: wrap}, nil
}

// Publish отправляет одно событие.
func (p *Publisher) Publish(ctx context.Context, event domain.OutboxMessage) error {
	body := string(event.Payload)
	if p.wrap {
		data, err := messaging.Marshal(event)
		if err != nil {
			return err
		}
		body = string(data)
	}

	input := &awssqs.SendMessageInput{
		QueueUrl:    sdkaws.String(p.queueURL),
		MessageBody: sdkaws.String(body),
		MessageAttributes: map[string]sqstypes.MessageAttributeValue{
			"event_type":     stringAttr(event.EventType),
			"aggregate_type": stringAttr(event.AggregateType),
			"outbox_id":      stringAttr(event.ID),
		},
	}
	if p.fifo {
		input.MessageGroupId = sdkaws.String(messaging.PartitionKey(event))
		input.MessageDeduplicationId = sdkaws.String(event.ID)
	}

	if _, err := p.api.SendMessage(ctx, input); err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}

func stringAttr(value string) sqstypes.MessageAttributeValue {
	if value == "" {
		value = "-"
	}
	return sqstypes.MessageAttributeValue{
		DataType:    sdkaws.String("String"),
		StringValue: sdkaws.String(value),
	}
}

var _ domain.OutboxPublisher = (*Publisher)(nil)
