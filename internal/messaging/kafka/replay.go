package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/marketplace/internal/messaging"
)

const (
	DefaultReplayLimit       = 100
	DefaultReplayIdleTimeout = 2 * time.Second
)

// OffsetClient отдаёт границы партиций DLQ topic. Реализуется sarama.Client.
type OffsetClient interface {
	GetOffset(topic string, partition int32, time int64) (int64, error)
	Partitions(topic string) ([]int32, error)
}

// PartitionConsumer читает одну партицию.
type PartitionConsumer interface {
	Messages() <-chan *sarama.ConsumerMessage
	Errors() <-chan *sarama.ConsumerError
	Close() error
}

// PartitionSource открывает партицию с заданного offset.
type PartitionSource interface {
	ConsumePartition(topic string, partition int32, offset int64) (PartitionConsumer, error)
}

// ReplayOptions задаёт окно и режим повторной публикации.
type ReplayOptions struct {
	SourceTopic string
	TargetTopic string
	Limit       int
	Execute     bool
	FromNewest  bool
	IdleTimeout time.Duration
}

// ReplayStats: итог прогона.
type ReplayStats struct {
	Scanned  int
	Replayed int
	Skipped  int
}

func (s *ReplayStats) add(other ReplayStats) {
	s.Scanned += other.Scanned
	s.Replayed += other.Replayed
	s.Skipped += other.Skipped
}

// Replayer вычитывает dead letters и возвращает исходные события в основной topic.
// В dry-run режиме только логирует кандидатов.
type Replayer struct {
	client   OffsetClient
	source   PartitionSource
	producer *Producer
	opts     ReplayOptions
	logger   *log.Entry
}

// NewReplayer проверяет опции и собирает Replayer. Producer обязателен только при Execute.
func NewReplayer(client OffsetClient, source PartitionSource, producer *Producer, opts ReplayOptions, logger *log.Entry) (*Replayer, error) {
	if client == nil || source == nil {
		return nil, errors.New("kafka client and partition source are required")
	}
	if opts.Execute && producer == nil {
		return nil, errors.New("producer is required in execute mode")
	}
	if strings.TrimSpace(opts.SourceTopic) == "" {
		opts.SourceTopic = TopicDeadLetterQueue
	}
	if strings.TrimSpace(opts.TargetTopic) == "" {
		opts.TargetTopic = TopicOrderEvents
	}
	if opts.Limit <= 0 {
		opts.Limit = DefaultReplayLimit
	}
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = DefaultReplayIdleTimeout
	}
	if logger == nil {
		logger = log.WithField("component", "dlq-replay")
	}
	return &Replayer{client: client, source: source, producer: producer, opts: opts, logger: logger}, nil
}

// Run проходит партиции по возрастанию номера, пока не наберёт Limit сообщений.
func (r *Replayer) Run(ctx context.Context) (ReplayStats, error) {
	var total ReplayStats

	partitions, err := r.client.Partitions(r.opts.SourceTopic)
	if err != nil {
		return total, fmt.Errorf("get partitions for topic %s: %w", r.opts.SourceTopic, err)
	}
	if len(partitions) == 0 {
		r.logger.WithField("topic", r.opts.SourceTopic).Warn("source topic has no partitions")
		return total, nil
	}
	sort.Slice(partitions, func(i, j int) bool { return partitions[i] < partitions[j] })

	for _, partition := range partitions {
		remaining := r.opts.Limit - total.Scanned
		if remaining <= 0 {
			break
		}
		stats, err := r.replayPartition(ctx, partition, remaining)
		total.add(stats)
		if err != nil {
			return total, err
		}
	}

	mode := "dry-run"
	if r.opts.Execute {
		mode = "execute"
	}
	r.logger.WithFields(log.Fields{
		"mode":     mode,
		"scanned":  total.Scanned,
		"replayed": total.Replayed,
		"skipped":  total.Skipped,
	}).Info("dlq replay finished")

	return total, nil
}

func (r *Replayer) replayPartition(ctx context.Context, partition int32, limit int) (ReplayStats, error) {
	var stats ReplayStats

	oldest, err := r.client.GetOffset(r.opts.SourceTopic, partition, sarama.OffsetOldest)
	if err != nil {
		return stats, fmt.Errorf("get oldest offset for partition %d: %w", partition, err)
	}
	newest, err := r.client.GetOffset(r.opts.SourceTopic, partition, sarama.OffsetNewest)
	if err != nil {
		return stats, fmt.Errorf("get newest offset for partition %d: %w", partition, err)
	}
	if newest <= oldest {
		return stats, nil
	}

	start := oldest
	if r.opts.FromNewest {
		start = max(newest-int64(limit), oldest)
	}

	pc, err := r.source.ConsumePartition(r.opts.SourceTopic, partition, start)
	if err != nil {
		return stats, fmt.Errorf("consume partition %d: %w", partition, err)
	}
	defer func() { _ = pc.Close() }()

	idle := time.NewTimer(r.opts.IdleTimeout)
	defer idle.Stop()

	for stats.Scanned < limit {
		select {
		case <-ctx.Done():
			return stats, ctx.Err()
		case cerr := <-pc.Errors():
			if cerr != nil {
				return stats, fmt.Errorf("partition %d consumer error: %w", partition, cerr)
			}
		case msg, ok := <-pc.Messages():
			if !ok || msg == nil || msg.Offset >= newest {
				return stats, nil
			}
			idle.Reset(r.opts.IdleTimeout)

			stats.Scanned++
			if err := r.replayMessage(ctx, msg); err != nil {
				if errors.Is(err, errNotDeadLetter) {
					stats.Skipped++
					r.logger.WithError(err).WithFields(log.Fields{
						"partition": msg.Partition,
						"offset":    msg.Offset,
					}).Warn("skip unsupported dlq message")
					continue
				}
				return stats, err
			}
			stats.Replayed++

			if msg.Offset+1 >= newest {
				return stats, nil
			}
		case <-idle.C:
			return stats, nil
		}
	}
	return stats, nil
}

var errNotDeadLetter = errors.New("message is not a dead letter")

func (r *Replayer) replayMessage(ctx context.Context, msg *sarama.ConsumerMessage) error {
	letter, err := DecodeDeadLetter(msg.Value)
	if err != nil {
		return err
	}
	event := letter.OutboxMessage()

	if !r.opts.Execute {
		r.logger.WithFields(log.Fields{
			"partition":    msg.Partition,
			"offset":       msg.Offset,
			"target_topic": r.opts.TargetTopic,
			"outbox_id":    event.ID,
			"event_type":   event.EventType,
			"error":        letter.PublishError,
		}).Info("dlq replay candidate")
		return nil
	}

	body, err := messaging.Marshal(event)
	if err != nil {
		return err
	}
	if err := r.producer.Send(ctx, r.opts.TargetTopic, messaging.PartitionKey(event), body, headersFor(event)); err != nil {
		return fmt.Errorf("publish replay message: %w", err)
	}
	return nil
}

// DecodeDeadLetter разбирает сообщение DLQ. Сообщения без outbox_id или payload пропускаются.
func DecodeDeadLetter(value []byte) (messaging.DeadLetter, error) {
	var letter messaging.DeadLetter
	if err := json.Unmarshal(value, &letter); err != nil {
		return letter, fmt.Errorf("%w: %v", errNotDeadLetter, err)
	}
	if strings.TrimSpace(letter.OutboxID) == "" {
		return letter, fmt.Errorf("%w: outbox_id is empty", errNotDeadLetter)
	}
	if len(letter.Payload) == 0 {
		return letter, fmt.Errorf("%w: original payload is missing", errNotDeadLetter)
	}
	return letter, nil
}

// SaramaPartitionSource адаптирует sarama.Consumer к PartitionSource.
type SaramaPartitionSource struct {
	Consumer sarama.Consumer
}

// ConsumePartition открывает партицию.
func (s SaramaPartitionSource) ConsumePartition(topic string, partition int32, offset int64) (PartitionConsumer, error) {
	pc, err := s.Consumer.ConsumePartition(topic, partition, offset)
	if err != nil {
		return nil, err
	}
	return pc, nil
}
