package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"datahandler/internal/batchqueue"
	"datahandler/internal/logging"
)

type stubOffsets struct {
	committed int64
	err       error
}

func (s *stubOffsets) CommittedOffset(context.Context, string, int32) (int64, error) {
	return s.committed, s.err
}

func TestSubmitPublishesOneMessagePerGroup(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	var published []BatchMessage
	check := func(value []byte) error {
		var msg BatchMessage
		if err := json.Unmarshal(value, &msg); err != nil {
			return err
		}
		published = append(published, msg)
		return nil
	}
	producer.ExpectSendMessageWithCheckerFunctionAndSucceed(check)
	producer.ExpectSendMessageWithCheckerFunctionAndSucceed(check)

	client := NewWithProducer(producer, &stubOffsets{committed: -1}, "batches", logging.NewNop())
	t.Cleanup(func() { _ = client.Close() })

	outcomes, err := client.Submit(context.Background(), batchqueue.KindProcess, [][]int64{{1}, {2}, {3}, {4}, {5}, {6}}, 5, false)
	require.NoError(t, err)
	require.Len(t, outcomes, 2)
	assert.Len(t, outcomes[0].Tasks, 5)
	assert.Len(t, outcomes[1].Tasks, 1)
	require.Len(t, published, 2)
	assert.Equal(t, batchqueue.KindProcess, published[0].Kind)
	assert.False(t, published[0].Chain)
	assert.Equal(t, int64(6), published[1].Tasks[0].Args[0])

	topic, partition, _, err := parseBatchID(outcomes[0].BatchID)
	require.NoError(t, err)
	assert.Equal(t, "batches", topic)
	assert.Equal(t, int32(0), partition)
}

func TestSubmitWrapsProducerFailure(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)
	client := NewWithProducer(producer, &stubOffsets{}, "batches", nil)
	t.Cleanup(func() { _ = client.Close() })

	_, err := client.Submit(context.Background(), batchqueue.KindFetch, [][]int64{{1}}, 10, true)
	require.Error(t, err)
	assert.True(t, errors.Is(err, sarama.ErrOutOfBrokers))
}

func TestIsAliveComparesCommittedOffset(t *testing.T) {
	offsets := &stubOffsets{committed: -1}
	client := NewWithProducer(mocks.NewSyncProducer(t, nil), offsets, "batches", nil)
	ctx := context.Background()
	batchID := formatBatchID("batches", 2, 41)

	alive, err := client.IsAlive(ctx, batchID)
	require.NoError(t, err)
	assert.True(t, alive, "nothing committed yet")

	offsets.committed = 41
	alive, err = client.IsAlive(ctx, batchID)
	require.NoError(t, err)
	assert.True(t, alive, "group has not moved past the batch")

	offsets.committed = 42
	alive, err = client.IsAlive(ctx, batchID)
	require.NoError(t, err)
	assert.False(t, alive, "batch consumed")

	alive, err = client.IsAlive(ctx, "garbage")
	require.NoError(t, err)
	assert.False(t, alive)

	offsets.err = errors.New("broker down")
	_, err = client.IsAlive(ctx, batchID)
	assert.Error(t, err)
}

func TestParseBatchIDAllowsColonsInTopic(t *testing.T) {
	topic, partition, offset, err := parseBatchID("ns:topic:3:17")
	require.NoError(t, err)
	assert.Equal(t, "ns:topic", topic)
	assert.Equal(t, int32(3), partition)
	assert.Equal(t, int64(17), offset)
}

func TestHandlerRunsDecodedBatch(t *testing.T) {
	var ran [][]int64
	runner := batchqueue.RunnerFunc(func(_ context.Context, kind batchqueue.Kind, args []int64) error {
		assert.Equal(t, batchqueue.KindFetch, kind)
		ran = append(ran, args)
		return nil
	})
	h := &batchHandler{runner: runner, logger: logging.NewNop()}
	payload, err := json.Marshal(BatchMessage{
		Kind:  batchqueue.KindFetch,
		Chain: true,
		Tasks: []batchqueue.TaskRef{{ID: "a", Args: []int64{3}}, {ID: "b", Args: []int64{4}}},
	})
	require.NoError(t, err)

	require.NoError(t, h.handle(context.Background(), &sarama.ConsumerMessage{Value: payload}))
	assert.Equal(t, [][]int64{{3}, {4}}, ran)

	assert.Error(t, h.handle(context.Background(), &sarama.ConsumerMessage{Value: []byte("{")}))
	bad, _ := json.Marshal(BatchMessage{Kind: "rip"})
	assert.Error(t, h.handle(context.Background(), &sarama.ConsumerMessage{Value: bad}))
}

type closeCountingClient struct {
	sarama.Client
	closed int
}

func (c *closeCountingClient) Close() error {
	c.closed++
	return nil
}

type closeCountingGroup struct {
	sarama.ConsumerGroup
	closed int
	err    error
}

func (g *closeCountingGroup) Close() error {
	g.closed++
	return g.err
}

func TestWorkerCloseReleasesClient(t *testing.T) {
	client := &closeCountingClient{}
	group := &closeCountingGroup{}
	w := newWorker(client, group, "batches", batchqueue.RunnerFunc(func(context.Context, batchqueue.Kind, []int64) error { return nil }), nil)

	require.NoError(t, w.Close())
	assert.Equal(t, 1, group.closed)
	assert.Equal(t, 1, client.closed)

	group.err = errors.New("leave failed")
	assert.ErrorIs(t, w.Close(), group.err)
	assert.Equal(t, 2, client.closed, "client closes even when leaving the group fails")
}
