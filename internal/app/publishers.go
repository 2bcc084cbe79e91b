package app

import (
	"context"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
	"github.com/vladislavdragonenkov/marketplace/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/marketplace/internal/messaging/rabbitmq"
	"github.com/vladislavdragonenkov/marketplace/internal/messaging/sqs"
)

// outboxPublishers: основной паблишер, опциональный DLQ и функция закрытия соединений.
type outboxPublishers struct {
	main  domain.OutboxPublisher
	dlq   domain.OutboxPublisher
	close func()
}

func noPublishers() outboxPublishers {
	return outboxPublishers{close: func() {}}
}

// initOutboxPublishers подключается к брокеру из конфигурации.
//
// Ошибка подключения не останавливает сервис: заказы продолжают оформляться, события копятся
// в outbox и уходят после перезапуска с рабочим брокером. Backlog виден в /healthz.
func initOutboxPublishers(ctx context.Context, cfg Config, logger *log.Entry) outboxPublishers {
	switch cfg.OutboxPublisher {
	case PublisherKafka:
		return initKafkaPublishers(cfg, logger)
	case PublisherRabbitMQ:
		return initRabbitMQPublishers(cfg, logger)
	case PublisherSQS:
		return initSQSPublishers(ctx, cfg, logger)
	default:
		logger.Info("outbox publisher не настроен, события остаются в outbox")
		return noPublishers()
	}
}

func initKafkaPublishers(cfg Config, logger *log.Entry) outboxPublishers {
	producer, err := kafka.NewProducer(cfg.KafkaBrokers, cfg.KafkaClientID)
	if err != nil {
		logger.WithError(err).Warn("failed to create kafka producer, continuing without kafka")
		return noPublishers()
	}
	logger.WithField("brokers", cfg.KafkaBrokers).Info("kafka producer initialized")

	pubs := outboxPublishers{
		main:  kafka.NewOutboxPublisher(producer, cfg.KafkaTopic),
		close: func() { closeQuietly("kafka producer", producer.Close, logger) },
	}
	if cfg.OutboxDLQEnabled {
		pubs.dlq = kafka.NewDLQPublisher(producer, cfg.KafkaDLQTopic)
	}
	return pubs
}

func initRabbitMQPublishers(cfg Config, logger *log.Entry) outboxPublishers {
	client, err := rabbitmq.Dial(cfg.RabbitMQURL)
	if err != nil {
		logger.WithError(err).Warn("failed to connect to rabbitmq, continuing without broker")
		return noPublishers()
	}
	closeClient := func() { closeQuietly("rabbitmq client", client.Close, logger) }

	main, err := rabbitmq.NewPublisher(client.Channel(), cfg.RabbitMQQueue)
	if err != nil {
		logger.WithError(err).Warn("failed to declare rabbitmq queue, continuing without broker")
		closeClient()
		return noPublishers()
	}
	pubs := outboxPublishers{main: main, close: closeClient}
	if cfg.OutboxDLQEnabled {
		dlq, err := rabbitmq.NewDLQPublisher(client.Channel(), cfg.RabbitMQDLQQueue)
		if err != nil {
			logger.WithError(err).Warn("failed to declare rabbitmq dead letter queue, dlq disabled")
		} else {
			pubs.dlq = dlq
		}
	}
	return pubs
}

func initSQSPublishers(ctx context.Context, cfg Config, logger *log.Entry) outboxPublishers {
	client, err := sqs.NewClient(ctx, cfg.SQSRegion, cfg.SQSEndpoint)
	if err != nil {
		logger.WithError(err).Warn("failed to load aws config, continuing without sqs")
		return noPublishers()
	}
	main, err := sqs.NewPublisher(client, cfg.SQSQueueURL, cfg.SQSFIFO)
	if err != nil {
		logger.WithError(err).Warn("invalid sqs publisher settings, continuing without sqs")
		return noPublishers()
	}
	pubs := outboxPublishers{main: main, close: func() {}}
	if cfg.OutboxDLQEnabled {
		dlq, err := sqs.NewDLQPublisher(client, cfg.SQSDLQQueueURL, cfg.SQSFIFO)
		if err != nil {
			logger.WithError(err).Warn("invalid sqs dead letter queue settings, dlq disabled")
		} else {
			pubs.dlq = dlq
		}
	}
	logger.WithField("queue_url", cfg.SQSQueueURL).Info("sqs publisher initialized")
	return pubs
}

func closeQuietly(name string, closeFn func() error, logger *log.Entry) {
	if err := closeFn(); err != nil {
		logger.WithError(err).Warnf("failed to close %s", name)
		return
	}
	logger.Infof("%s closed", name)
}
