package events

import (
	"context"
	"libradesk/internal/journal"
	"sync"
	"testing"
	"time"

	jsoniter "github.com/json-iterator/go"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type published struct {
	exchange string
	key      string
	msg      amqp.Publishing
}

type fakeChannel struct {
	mu       sync.Mutex
	sent     []published
	confirms chan amqp.Confirmation
	nack     int    // nack this many publishes first
	nackFrom uint64 // nack every publish from this delivery tag on
	// holdFirst delivers the first confirmation only alongside the second one,
	// as a broker answering after the publisher gave up waiting.
	holdFirst bool
	held      []amqp.Confirmation
	closed    bool
}

func (f *fakeChannel) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, published{exchange: exchange, key: key, msg: msg})
	tag := uint64(len(f.sent))

	ack := f.nack == 0
	if !ack {
		f.nack--
	}
	if f.nackFrom != 0 && tag >= f.nackFrom {
		ack = false
	}
	confirm := amqp.Confirmation{DeliveryTag: tag, Ack: ack}

	for _, c := range f.held {
		f.confirms <- c
	}
	f.held = nil
	if f.holdFirst && tag == 1 {
		f.held = append(f.held, confirm)
		return nil
	}
	f.confirms <- confirm
	return nil
}

func (f *fakeChannel) NotifyPublish(c chan amqp.Confirmation) chan amqp.Confirmation {
	f.confirms = c
	return c
}

func (f *fakeChannel) Close() error {
	f.closed = true
	return nil
}

func loanOpened(t *testing.T, seq int64) journal.Event {
	t.Helper()
	ev, err := journal.NewEvent(journal.LoanOpened, "loan-1", map[string]string{"book_isbn": "B1"}, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	ev.Seq = seq
	return ev
}

func TestPublisherSendsJournalEvents(t *testing.T) {
	ch := &fakeChannel{}
	p := newPublisher(ch, zap.NewNop())

	require.NoError(t, p.Publish(context.Background(), loanOpened(t, 7)))
	require.NoError(t, p.Close())

	require.Len(t, ch.sent, 1)
	sent := ch.sent[0]
	assert.Equal(t, exchangeName, sent.exchange)
	assert.Equal(t, "loan.opened", sent.key)
	assert.Equal(t, "LoanOpened", sent.msg.Headers["event_type"])
	assert.Equal(t, amqp.Persistent, sent.msg.DeliveryMode)
	assert.True(t, ch.closed)

	var env Envelope
	require.NoError(t, jsoniter.Unmarshal(sent.msg.Body, &env))
	assert.Equal(t, int64(7), env.Seq)
	assert.Equal(t, "loan-1", env.SubjectID)
	assert.Equal(t, "2024-01-01T00:00:00Z", env.Timestamp)
	assert.JSONEq(t, `{"book_isbn":"B1"}`, string(env.Payload))
}

func TestPublisherRetriesOnNack(t *testing.T) {
	ch := &fakeChannel{nack: 1}
	p := newPublisher(ch, zap.NewNop())

	require.NoError(t, p.Publish(context.Background(), loanOpened(t, 1)))
	require.NoError(t, p.Close())

	assert.Len(t, ch.sent, 2)
}

func TestLateConfirmationIsNotTakenForTheNextPublish(t *testing.T) {
	ch := &fakeChannel{holdFirst: true, nackFrom: 3}
	p := newPublisher(ch, zap.NewNop())
	p.confirmTimeout = 20 * time.Millisecond
	defer p.Close()
	ctx := context.Background()

	// tag 1 times out, its ack arrives with tag 2
	require.NoError(t, p.publishWithRetry(ctx, loanOpened(t, 1)))

	// the broker nacks tags 3, 4 and 5
	err := p.publishWithRetry(ctx, loanOpened(t, 2))
	require.Error(t, err)
	assert.ErrorIs(t, err, errNotAcknowledged)

	ch.mu.Lock()
	defer ch.mu.Unlock()
	assert.Len(t, ch.sent, 5)
}

func TestPublishAfterClose(t *testing.T) {
	p := newPublisher(&fakeChannel{}, zap.NewNop())
	require.NoError(t, p.Close())

	assert.ErrorIs(t, p.Publish(context.Background(), loanOpened(t, 1)), ErrPublisherClosed)
	assert.NoError(t, p.Close())
	assert.False(t, p.IsHealthy())
}
