// Command dlq-replay возвращает события заказов из DLQ topic обратно в основной topic.
// По умолчанию работает в dry-run режиме.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/marketplace/internal/messaging/kafka"
)

type config struct {
	brokers []string
	opts    kafka.ReplayOptions
}

func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	log.SetLevel(log.InfoLevel)

	cfg, err := readConfig(os.Args[1:])
	if err != nil {
		fail("%v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		fail("dlq replay failed: %v", err)
	}
}

func readConfig(args []string) (config, error) {
	var (
		brokersRaw string
		cfg        config
	)

	fs := flag.NewFlagSet("dlq-replay", flag.ContinueOnError)
	fs.StringVar(&brokersRaw, "brokers", "", "Kafka brokers as comma-separated list (fallback: MARKETPLACE_KAFKA_BROKERS)")
	fs.StringVar(&cfg.opts.SourceTopic, "source-topic", kafka.TopicDeadLetterQueue, "DLQ source topic")
	fs.StringVar(&cfg.opts.TargetTopic, "target-topic", kafka.TopicOrderEvents, "target topic for replay")
	fs.IntVar(&cfg.opts.Limit, "limit", kafka.DefaultReplayLimit, "max number of messages to scan")
	fs.BoolVar(&cfg.opts.Execute, "execute", false, "execute replay; default is dry-run")
	fs.BoolVar(&cfg.opts.FromNewest, "from-newest", false, "scan latest messages first (bounded by limit)")
	fs.DurationVar(&cfg.opts.IdleTimeout, "idle-timeout", kafka.DefaultReplayIdleTimeout, "idle timeout per partition")
	if err := fs.Parse(args); err != nil {
		return config{}, err
	}

	if strings.TrimSpace(brokersRaw) == "" {
		brokersRaw = os.Getenv("MARKETPLACE_KAFKA_BROKERS")
	}
	cfg.brokers = parseBrokers(brokersRaw)

	switch {
	case len(cfg.brokers) == 0:
		return config{}, fmt.Errorf("kafka brokers are required (-brokers or MARKETPLACE_KAFKA_BROKERS)")
	case strings.TrimSpace(cfg.opts.SourceTopic) == "":
		return config{}, fmt.Errorf("source-topic is required")
	case strings.TrimSpace(cfg.opts.TargetTopic) == "":
		return config{}, fmt.Errorf("target-topic is required")
	case cfg.opts.Limit <= 0:
		return config{}, fmt.Errorf("limit must be > 0")
	case cfg.opts.IdleTimeout <= 0:
		return config{}, fmt.Errorf("idle-timeout must be > 0")
	}
	return cfg, nil
}

func parseBrokers(raw string) []string {
	chunks := strings.Split(raw, ",")
	brokers := make([]string, 0, len(chunks))
	for _, chunk := range chunks {
		if broker := strings.TrimSpace(chunk); broker != "" {
			brokers = append(brokers, broker)
		}
	}
	return brokers
}

func run(ctx context.Context, cfg config) error {
	log.WithFields(log.Fields{
		"source_topic": cfg.opts.SourceTopic,
		"target_topic": cfg.opts.TargetTopic,
		"limit":        cfg.opts.Limit,
		"execute":      cfg.opts.Execute,
	}).Info("starting dlq replay")

	saramaCfg := sarama.NewConfig()
	saramaCfg.Consumer.Return.Errors = true
	client, err := sarama.NewClient(cfg.brokers, saramaCfg)
	if err != nil {
		return fmt.Errorf("create kafka client: %w", err)
	}
	defer func() { _ = client.Close() }()

	consumer, err := sarama.NewConsumerFromClient(client)
	if err != nil {
		return fmt.Errorf("create kafka consumer: %w", err)
	}
	defer func() { _ = consumer.Close() }()

	var producer *kafka.Producer
	if cfg.opts.Execute {
		producer, err = kafka.NewProducer(cfg.brokers, "marketplace-dlq-replay")
		if err != nil {
			return err
		}
		defer func() { _ = producer.Close() }()
	}

	replayer, err := kafka.NewReplayer(client, kafka.SaramaPartitionSource{Consumer: consumer}, producer, cfg.opts, nil)
	if err != nil {
		return err
	}

	started := time.Now()
	stats, err := replayer.Run(ctx)
	log.WithFields(log.Fields{
		"scanned":  stats.Scanned,
		"replayed": stats.Replayed,
		"duration": time.Since(started).String(),
	}).Info("dlq replay stats")
	return err
}

func fail(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
