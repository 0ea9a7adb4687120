package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbd888/riskproxy/internal/testutil"
)

func TestKafkaSink_Publish(t *testing.T) {
	p := mocks.NewSyncProducer(t, nil)
	sink := NewKafkaSinkFromProducer(p, "registry-events")

	ev := New(AddressCreated, "alice", "0x00000000000000000000000000000000000000aa", map[string]any{"risk": 7})

	p.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		var got Event
		if err := json.Unmarshal(val, &got); err != nil {
			return err
		}
		if got.ID != ev.ID || got.Type != AddressCreated {
			return errors.New("unexpected event payload")
		}
		return nil
	})

	require.NoError(t, sink.Publish(context.Background(), ev))
	require.NoError(t, sink.Close())
}

func TestKafkaSink_RetriesThenFails(t *testing.T) {
	p := mocks.NewSyncProducer(t, nil)
	sink := NewKafkaSinkFromProducer(p, "registry-events")
	sink.backoff = time.Millisecond

	p.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)
	p.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)
	p.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	err := sink.Publish(context.Background(), New(OwnerChanged, "alice", "bob", nil))
	assert.ErrorIs(t, err, sarama.ErrOutOfBrokers)
	require.NoError(t, sink.Close())
}

func TestKafkaSink_RecoversOnRetry(t *testing.T) {
	p := mocks.NewSyncProducer(t, nil)
	sink := NewKafkaSinkFromProducer(p, "registry-events")
	sink.backoff = time.Millisecond

	p.ExpectSendMessageAndFail(sarama.ErrNotLeaderForPartition)
	p.ExpectSendMessageAndSucceed()

	assert.NoError(t, sink.Publish(context.Background(), New(OwnerChanged, "alice", "bob", nil)))
	require.NoError(t, sink.Close())
}

func TestKafkaSink_Integration(t *testing.T) {
	brokers, cleanup := testutil.KafkaTest(t)
	defer cleanup()

	const topic = "riskproxy-events-test"
	sink, err := NewKafkaSink(brokers, topic, nil)
	require.NoError(t, err)
	defer func() { _ = sink.Close() }()

	ev := New(ReporterCreated, "alice", "bob", map[string]any{"role": 2})
	require.NoError(t, sink.Publish(context.Background(), ev))

	consumer, err := sarama.NewConsumer(brokers, sarama.NewConfig())
	require.NoError(t, err)
	defer func() { _ = consumer.Close() }()

	pc, err := consumer.ConsumePartition(topic, 0, sarama.OffsetOldest)
	require.NoError(t, err)
	defer func() { _ = pc.Close() }()

	select {
	case msg := <-pc.Messages():
		assert.Equal(t, "bob", string(msg.Key))
		var got Event
		require.NoError(t, json.Unmarshal(msg.Value, &got))
		assert.Equal(t, ev.ID, got.ID)
	case <-time.After(30 * time.Second):
		t.Fatal("timed out waiting for event")
	}
}
