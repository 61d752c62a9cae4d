// Package kafka publishes batches to a Kafka topic consumed by a worker
// consumer group. A batch is alive until the group's committed offset for its
// partition moves past the batch's message.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/IBM/sarama"
	"github.com/cenkalti/backoff"
	"github.com/google/uuid"

	"datahandler/internal/batchqueue"
	"datahandler/internal/config"
	"datahandler/internal/logging"
	"datahandler/internal/services"
)

// BatchMessage is the wire form of one submitted batch.
type BatchMessage struct {
	Kind        batchqueue.Kind      `json:"kind"`
	Chain       bool                 `json:"chain"`
	Tasks       []batchqueue.TaskRef `json:"tasks"`
	SubmittedAt time.Time            `json:"submitted_at"`
}

// OffsetReader reports the next offset a consumer group will read for a
// partition, or a negative value when nothing has been committed.
type OffsetReader interface {
	CommittedOffset(ctx context.Context, topic string, partition int32) (int64, error)
}

// Client is a batchqueue.Client backed by a Kafka topic.
type Client struct {
	producer sarama.SyncProducer
	offsets  OffsetReader
	topic    string
	logger   *slog.Logger
}

// NewClient builds the sarama client with settings shared by producer and
// worker consumers.
func NewClient(cfg config.Kafka) (sarama.Client, error) {
	saramaCfg := sarama.NewConfig()
	saramaCfg.ClientID = cfg.ClientID

	// Consumer settings
	saramaCfg.Consumer.Return.Errors = true
	saramaCfg.Consumer.Group.Rebalance.Strategy = sarama.NewBalanceStrategyRoundRobin()
	saramaCfg.Consumer.Offsets.Initial = sarama.OffsetOldest
	saramaCfg.Consumer.Group.Session.Timeout = 20 * time.Second
	saramaCfg.Consumer.Group.Heartbeat.Interval = 6 * time.Second
	saramaCfg.Consumer.Offsets.AutoCommit.Enable = false

	// Producer settings
	saramaCfg.Producer.RequiredAcks = sarama.WaitForAll
	saramaCfg.Producer.Return.Successes = true
	saramaCfg.Producer.Partitioner = sarama.NewHashPartitioner

	saramaCfg.Version = sarama.V3_6_0_0

	return sarama.NewClient(cfg.Brokers, saramaCfg)
}

// Connect dials the brokers with exponential backoff and returns a submitting
// Client.
func Connect(cfg config.Kafka, logger *slog.Logger) (*Client, error) {
	var (
		client   sarama.Client
		producer sarama.SyncProducer
		admin    sarama.ClusterAdmin
	)

	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.MaxElapsedTime = 2 * time.Minute
	expBackoff.InitialInterval = 2 * time.Second

	operation := func() error {
		var err error
		client, err = NewClient(cfg)
		if err != nil {
			return fmt.Errorf("creating client: %w", err)
		}
		producer, err = sarama.NewSyncProducerFromClient(client)
		if err != nil {
			client.Close()
			return fmt.Errorf("creating producer: %w", err)
		}
		admin, err = sarama.NewClusterAdminFromClient(client)
		if err != nil {
			producer.Close()
			client.Close()
			return fmt.Errorf("creating cluster admin: %w", err)
		}
		return nil
	}
	if err := backoff.Retry(operation, expBackoff); err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "batchqueue", "kafka connect", strings.Join(cfg.Brokers, ","), err)
	}

	return NewWithProducer(producer, &adminOffsets{admin: admin, group: cfg.GroupID}, cfg.Topic, logger), nil
}

// NewWithProducer wraps an existing producer and offset source.
func NewWithProducer(producer sarama.SyncProducer, offsets OffsetReader, topic string, logger *slog.Logger) *Client {
	return &Client{
		producer: producer,
		offsets:  offsets,
		topic:    topic,
		logger:   logging.NewComponentLogger(logger, "batchqueue.kafka"),
	}
}

// Submit publishes one message per group. The batch id is
// "topic:partition:offset".
func (c *Client) Submit(ctx context.Context, kind batchqueue.Kind, args [][]int64, chunkSize int, chain bool) ([]batchqueue.Outcome, error) {
	groups := batchqueue.Partition(args, chunkSize)
	outcomes := make([]batchqueue.Outcome, 0, len(groups))
	for _, group := range groups {
		if err := ctx.Err(); err != nil {
			return outcomes, err
		}
		msg := BatchMessage{Kind: kind, Chain: chain, SubmittedAt: time.Now().UTC()}
		for _, a := range group {
			msg.Tasks = append(msg.Tasks, batchqueue.TaskRef{ID: uuid.NewString(), Args: append([]int64(nil), a...)})
		}
		payload, err := json.Marshal(msg)
		if err != nil {
			return outcomes, fmt.Errorf("marshal batch: %w", err)
		}
		partition, offset, err := c.producer.SendMessage(&sarama.ProducerMessage{
			Topic: c.topic,
			Key:   sarama.StringEncoder(kind),
			Value: sarama.ByteEncoder(payload),
		})
		if err != nil {
			return outcomes, services.Wrap(services.ErrSubmission, "batchqueue", "publish batch", string(kind), err)
		}
		batchID := formatBatchID(c.topic, partition, offset)
		c.logger.Debug("published batch",
			logging.String(logging.FieldSchedID, batchID),
			logging.String(logging.FieldTaskKind, string(kind)),
			logging.Int("tasks", len(msg.Tasks)),
		)
		outcomes = append(outcomes, batchqueue.Outcome{BatchID: batchID, Tasks: msg.Tasks})
	}
	return outcomes, nil
}

// IsAlive reports whether the worker group has not yet committed past the
// batch's message.
func (c *Client) IsAlive(ctx context.Context, batchID string) (bool, error) {
	topic, partition, offset, err := parseBatchID(batchID)
	if err != nil {
		return false, nil
	}
	committed, err := c.offsets.CommittedOffset(ctx, topic, partition)
	if err != nil {
		return false, services.Wrap(services.ErrTransient, "batchqueue", "committed offset", batchID, err)
	}
	return committed <= offset, nil
}

// Close releases the producer.
func (c *Client) Close() error {
	return c.producer.Close()
}

func formatBatchID(topic string, partition int32, offset int64) string {
	return fmt.Sprintf("%s:%d:%d", topic, partition, offset)
}

func parseBatchID(batchID string) (string, int32, int64, error) {
	idx := strings.LastIndex(batchID, ":")
	if idx < 0 {
		return "", 0, 0, fmt.Errorf("malformed batch id %q", batchID)
	}
	rest, offsetText := batchID[:idx], batchID[idx+1:]
	idx = strings.LastIndex(rest, ":")
	if idx < 0 {
		return "", 0, 0, fmt.Errorf("malformed batch id %q", batchID)
	}
	topic, partitionText := rest[:idx], rest[idx+1:]
	partition, err := strconv.ParseInt(partitionText, 10, 32)
	if err != nil {
		return "", 0, 0, fmt.Errorf("parse partition: %w", err)
	}
	offset, err := strconv.ParseInt(offsetText, 10, 64)
	if err != nil {
		return "", 0, 0, fmt.Errorf("parse offset: %w", err)
	}
	return topic, int32(partition), offset, nil
}

type adminOffsets struct {
	admin sarama.ClusterAdmin
	group string
}

func (a *adminOffsets) CommittedOffset(_ context.Context, topic string, partition int32) (int64, error) {
	resp, err := a.admin.ListConsumerGroupOffsets(a.group, map[string][]int32{topic: {partition}})
	if err != nil {
		return 0, err
	}
	block := resp.GetBlock(topic, partition)
	if block == nil {
		return -1, nil
	}
	if block.Err != sarama.ErrNoError {
		return 0, block.Err
	}
	return block.Offset, nil
}
