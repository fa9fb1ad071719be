package kafka

import (
	"context"
	stderrors "errors"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/turtacn/terminal-planner/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/terminal-planner/pkg/errors"
)

const (
	TopicPlanningEvents    = "tplanner.planning.events"
	TopicDeadLetterDefault = "tplanner.dead_letter"

	eventRetention = 30 * 24 * time.Hour
)

// TopicConfig describes a topic to create. A zero Retention keeps the broker
// default.
type TopicConfig struct {
	Name        string
	Partitions  int
	Replication int
	Retention   time.Duration
}

func (c TopicConfig) validate() error {
	if c.Name == "" {
		return errors.New(errors.ErrCodeValidation, "topic name required")
	}
	if c.Partitions <= 0 || c.Replication <= 0 {
		return errors.New(errors.ErrCodeValidation, "topic needs at least one partition and one replica").WithDetail(c.Name)
	}
	return nil
}

func (c TopicConfig) toKafka() kafka.TopicConfig {
	kc := kafka.TopicConfig{Topic: c.Name, NumPartitions: c.Partitions, ReplicationFactor: c.Replication}
	if c.Retention > 0 {
		kc.ConfigEntries = []kafka.ConfigEntry{{
			ConfigName:  "retention.ms",
			ConfigValue: strconv.FormatInt(c.Retention.Milliseconds(), 10),
		}}
	}
	return kc
}

// DefaultTopics returns the event topic (the default name when eventsTopic is
// empty) and the dead-letter topic.
func DefaultTopics(eventsTopic string) []TopicConfig {
	if eventsTopic == "" {
		eventsTopic = TopicPlanningEvents
	}
	return []TopicConfig{
		{Name: eventsTopic, Partitions: 6, Replication: 1, Retention: eventRetention},
		{Name: TopicDeadLetterDefault, Partitions: 1, Replication: 1, Retention: eventRetention},
	}
}

// adminConn is the part of kafka.Conn the topic manager uses.
type adminConn interface {
	CreateTopics(topics ...kafka.TopicConfig) error
	ReadPartitions(topics ...string) ([]kafka.Partition, error)
	Close() error
}

// TopicManager creates topics through one broker connection.
type TopicManager struct {
	conn   adminConn
	logger logging.Logger
}

// NewTopicManager dials the first broker.
func NewTopicManager(brokers []string, logger logging.Logger) (*TopicManager, error) {
	if len(brokers) == 0 {
		return nil, errors.New(errors.ErrCodeValidation, "brokers required")
	}
	conn, err := kafka.Dial("tcp", brokers[0])
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeServiceUnavailable, "dial kafka").WithDetail(brokers[0])
	}
	return &TopicManager{conn: conn, logger: logger}, nil
}

// EnsureTopics creates every missing topic and stops at the first failure.
// A topic that exists already, or that another client created meanwhile,
// counts as created.
func (m *TopicManager) EnsureTopics(ctx context.Context, topics []TopicConfig) error {
	for _, t := range topics {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := t.validate(); err != nil {
			return err
		}
		err := m.conn.CreateTopics(t.toKafka())
		switch {
		case err == nil:
			m.logger.Info("kafka topic created", logging.String("topic", t.Name))
		case stderrors.Is(err, kafka.TopicAlreadyExists), m.exists(t.Name):
		default:
			return errors.Wrap(err, errors.ErrCodeServiceUnavailable, "create topic").WithDetail(t.Name)
		}
	}
	return nil
}

func (m *TopicManager) exists(name string) bool {
	partitions, err := m.conn.ReadPartitions(name)
	return err == nil && len(partitions) > 0
}

func (m *TopicManager) Close() error {
	return m.conn.Close()
}
