package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/IBM/sarama"

	"datahandler/internal/batchqueue"
	"datahandler/internal/config"
	"datahandler/internal/logging"
)

// Worker consumes batches from the topic and runs them through a Runner.
// Offsets are committed after every batch, finished or failed, so IsAlive
// flips to false once a batch has been attempted.
type Worker struct {
	client sarama.Client
	group  sarama.ConsumerGroup
	topic  string
	runner batchqueue.Runner
	logger *slog.Logger
}

// NewWorker joins the configured consumer group.
func NewWorker(cfg config.Kafka, runner batchqueue.Runner, logger *slog.Logger) (*Worker, error) {
	client, err := NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("creating client: %w", err)
	}
	group, err := sarama.NewConsumerGroupFromClient(cfg.GroupID, client)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("creating consumer group: %w", err)
	}
	return newWorker(client, group, cfg.Topic, runner, logger), nil
}

func newWorker(client sarama.Client, group sarama.ConsumerGroup, topic string, runner batchqueue.Runner, logger *slog.Logger) *Worker {
	return &Worker{
		client: client,
		group:  group,
		topic:  topic,
		runner: runner,
		logger: logging.NewComponentLogger(logger, "batchqueue.kafka.worker"),
	}
}

// Run consumes until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	go func() {
		for err := range w.group.Errors() {
			logging.WarnWithContext(w.logger, "consumer group error", "kafka_consumer_error", logging.Error(err))
		}
	}()

	handler := &batchHandler{runner: w.runner, logger: w.logger}
	for {
		if err := w.group.Consume(ctx, []string{w.topic}, handler); err != nil {
			if errors.Is(err, sarama.ErrClosedConsumerGroup) {
				return nil
			}
			return fmt.Errorf("consume: %w", err)
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

// Close leaves the consumer group and closes the client it was built on.
func (w *Worker) Close() error {
	groupErr := w.group.Close()
	if err := w.client.Close(); err != nil && !errors.Is(err, sarama.ErrClosedClient) {
		return errors.Join(groupErr, fmt.Errorf("close client: %w", err))
	}
	return groupErr
}

type batchHandler struct {
	runner batchqueue.Runner
	logger *slog.Logger
}

func (h *batchHandler) Setup(sess sarama.ConsumerGroupSession) error {
	h.logger.Info("consumer group session setup",
		logging.Int("generation_id", int(sess.GenerationID())),
		logging.String("member_id", sess.MemberID()),
	)
	return nil
}

func (h *batchHandler) Cleanup(sess sarama.ConsumerGroupSession) error {
	h.logger.Info("consumer group session cleanup",
		logging.Int("generation_id", int(sess.GenerationID())),
		logging.String("member_id", sess.MemberID()),
	)
	return nil
}

func (h *batchHandler) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for msg := range claim.Messages() {
		if err := h.handle(sess.Context(), msg); err != nil {
			logging.WarnWithContext(h.logger, "batch failed", "batch_failed",
				logging.String(logging.FieldSchedID, formatBatchID(msg.Topic, msg.Partition, msg.Offset)),
				logging.Error(err),
			)
		}
		sess.MarkMessage(msg, "")
		sess.Commit()
	}
	return nil
}

func (h *batchHandler) handle(ctx context.Context, msg *sarama.ConsumerMessage) error {
	var batch BatchMessage
	if err := json.Unmarshal(msg.Value, &batch); err != nil {
		return fmt.Errorf("decode batch: %w", err)
	}
	if _, ok := batchqueue.ParseKind(string(batch.Kind)); !ok {
		return fmt.Errorf("unknown task kind %q", batch.Kind)
	}
	return batchqueue.RunBatch(ctx, h.runner, batch.Kind, batch.Tasks, batch.Chain)
}
