package audit

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/IBM/sarama"
	saramamocks "github.com/IBM/sarama/mocks"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testEvent() *Event {
	return &Event{
		Metadata:       Metadata{ID: uuid.New(), OriginatorID: OriginatorID, Type: EventClass},
		BusinessObject: BusinessObject{ID: uuid.New(), Type: "orders"},
		Summary:        "created",
		EventData:      &ActivityEventData{EventDataBase: EventDataBase{Type: string(ActivityDataType)}},
	}
}

func TestChannelPublisherDelivers(t *testing.T) {
	var mu sync.Mutex
	var keys []string
	deliver := func(ctx context.Context, key, payload []byte) error {
		var e Event
		if err := json.Unmarshal(payload, &e); err != nil {
			return err
		}
		mu.Lock()
		keys = append(keys, string(key))
		mu.Unlock()
		return nil
	}

	p := NewChannelPublisher(Config{BufferSize: 4, BlockOnFull: true}, deliver, discardLogger())
	events := []*Event{testEvent(), testEvent(), testEvent()}
	for _, e := range events {
		require.NoError(t, p.Publish(context.Background(), "audit", e))
	}
	require.NoError(t, p.Close())

	require.Len(t, keys, 3)
	for i, e := range events {
		assert.Equal(t, e.Metadata.ID.String(), keys[i])
	}

	assert.ErrorIs(t, p.Publish(context.Background(), "audit", testEvent()), ErrPublisherClosed)
	assert.NoError(t, p.Close())
}

func TestChannelPublisherDropsWhenFull(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	deliver := func(ctx context.Context, key, payload []byte) error {
		select {
		case started <- struct{}{}:
		default:
		}
		<-release
		return nil
	}

	p := NewChannelPublisher(Config{BufferSize: 1, BlockOnFull: false}, deliver, discardLogger())

	// First event occupies the worker, second fills the buffer.
	require.NoError(t, p.Publish(context.Background(), "audit", testEvent()))
	<-started
	require.NoError(t, p.Publish(context.Background(), "audit", testEvent()))
	assert.ErrorIs(t, p.Publish(context.Background(), "audit", testEvent()), ErrPublisherFull)
	assert.ErrorIs(t, p.Publish(context.Background(), "audit", testEvent()), ErrPublisherFull)

	assert.EqualValues(t, 2, p.Dropped())
	close(release)
	require.NoError(t, p.Close())
}

func TestChannelPublisherBlockingHonoursContext(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	deliver := func(ctx context.Context, key, payload []byte) error {
		select {
		case started <- struct{}{}:
		default:
		}
		<-release
		return nil
	}

	p := NewChannelPublisher(Config{BufferSize: 1, BlockOnFull: true}, deliver, discardLogger())
	require.NoError(t, p.Publish(context.Background(), "audit", testEvent()))
	<-started
	require.NoError(t, p.Publish(context.Background(), "audit", testEvent()))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, p.Publish(ctx, "audit", testEvent()), context.DeadlineExceeded)

	close(release)
	require.NoError(t, p.Close())
}

func TestKafkaPublisher(t *testing.T) {
	producer := saramamocks.NewAsyncProducer(t, nil)
	event := testEvent()

	producer.ExpectInputWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		if msg.Topic != "platform.audit.events" {
			return errors.New("unexpected topic " + msg.Topic)
		}
		key, _ := msg.Key.Encode()
		if string(key) != event.Metadata.ID.String() {
			return errors.New("unexpected key " + string(key))
		}
		return nil
	})
	producer.ExpectInputAndFail(sarama.ErrOutOfBrokers)

	p := newKafkaPublisher(producer, discardLogger())
	require.NoError(t, p.Publish(context.Background(), "platform.audit.events", event))
	// Broker failures are not reported to the caller.
	require.NoError(t, p.Publish(context.Background(), "platform.audit.events", testEvent()))
	require.NoError(t, p.Close())
}
