package worker

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ricirt/pigeonpost/internal/domain"
	"github.com/ricirt/pigeonpost/internal/payload"
)

func (p *pipeline) stageAll() {
	p.t.Helper()
	_, err := p.processor.Process(context.Background(), ProcessOptions{Force: true})
	require.NoError(p.t, err)
}

func TestDispatch_DeliversAndMarksSucceeded(t *testing.T) {
	p := newPipeline(t)
	p.enqueue("a1", 0)
	p.stageAll()

	report, err := p.dispatcher.Dispatch(context.Background(), DispatchOptions{MaxRetries: 3})
	require.NoError(t, err)
	assert.Equal(t, DispatchReport{Selected: 3, Sent: 3}, report)
	assert.Equal(t, []string{"r1@example.com", "r2@example.com", "r3@example.com"}, p.transport.sentTo())
	assert.Equal(t, 1, p.transport.dials, "one connection for the whole batch")
	assert.Equal(t, 1, p.transport.closes)

	for _, e := range p.outbox.All() {
		assert.True(t, e.Succeeded)
		assert.Equal(t, 0, e.FailureCount)
		require.NotNil(t, e.SentAt)
		assert.Equal(t, p.now, *e.SentAt)
	}

	report, err = p.dispatcher.Dispatch(context.Background(), DispatchOptions{MaxRetries: 3})
	require.NoError(t, err)
	assert.Zero(t, report.Selected)
	assert.Equal(t, 1, p.transport.dials, "nothing to send, no dial")
}

func TestDispatch_AlwaysFailingTransportStopsAtMaxRetries(t *testing.T) {
	p := newPipeline(t)
	p.enqueue("a1", 0, func(n *domain.Notification) {
		id := "r1"
		n.RecipientID = &id
	})
	p.stageAll()
	p.transport.failAll = true
	ctx := context.Background()

	report, err := p.dispatcher.Dispatch(ctx, DispatchOptions{MaxRetries: 3})
	require.NoError(t, err, "per-entry failures do not fail the batch")
	assert.Equal(t, 1, report.Failed)

	entry := p.outbox.All()[0]
	assert.False(t, entry.Succeeded)
	assert.Equal(t, 1, entry.FailureCount)
	require.NotNil(t, entry.SentAt, "attempt time is recorded on failure")
	require.NotNil(t, entry.LastError)
	assert.Contains(t, *entry.LastError, "421")

	for i := 0; i < 2; i++ {
		_, err := p.dispatcher.Dispatch(ctx, DispatchOptions{MaxRetries: 3})
		require.NoError(t, err)
	}
	entry = p.outbox.All()[0]
	assert.Equal(t, 3, entry.FailureCount)
	assert.False(t, entry.Succeeded)

	report, err = p.dispatcher.Dispatch(ctx, DispatchOptions{MaxRetries: 3})
	require.NoError(t, err)
	assert.Zero(t, report.Selected, "exhausted entry is no longer selected")
	assert.Equal(t, 3, p.outbox.All()[0].FailureCount)
	assert.Equal(t, 3, p.transport.dials)
}

func TestDispatch_TransportUnavailableMutatesNothing(t *testing.T) {
	p := newPipeline(t)
	p.enqueue("a1", 0)
	p.stageAll()
	p.transport.dialErr = errors.New("connection refused")

	report, err := p.dispatcher.Dispatch(context.Background(), DispatchOptions{MaxRetries: 3})
	require.ErrorIs(t, err, domain.ErrTransportUnavailable)
	assert.Equal(t, 3, report.Selected)
	assert.Zero(t, report.Sent+report.Failed)
	assert.Equal(t, 3, p.transport.dials, "initial attempt plus two retries")

	for _, e := range p.outbox.All() {
		assert.False(t, e.Succeeded)
		assert.Zero(t, e.FailureCount)
		assert.Nil(t, e.SentAt)
	}
}

func TestDispatch_SinkReroutesEveryMessage(t *testing.T) {
	p := newPipeline(t, withSink("sink@example.test", 0))
	p.enqueue("a1", 0)
	p.stageAll()

	_, err := p.dispatcher.Dispatch(context.Background(), DispatchOptions{MaxRetries: 3})
	require.NoError(t, err)
	assert.Equal(t, []string{"sink@example.test", "sink@example.test", "sink@example.test"}, p.transport.sentTo())

	msg, err := payload.Decode(p.outbox.All()[0].Payload)
	require.NoError(t, err)
	assert.Equal(t, []string{"r1@example.com"}, msg.To, "stored payload keeps the real recipient")
}

func TestDispatch_ScopedToNotification(t *testing.T) {
	p := newPipeline(t)
	first := p.enqueue("a1", 0)
	p.enqueue("a2", 0)
	p.stageAll()

	report, err := p.dispatcher.Dispatch(context.Background(), DispatchOptions{MaxRetries: 3, NotificationID: &first.ID})
	require.NoError(t, err)
	assert.Equal(t, 3, report.Sent)

	for _, e := range p.outbox.All() {
		assert.Equal(t, *e.NotificationID == first.ID, e.Succeeded)
	}
}

func TestDispatch_UndecodablePayloadCountsAsFailure(t *testing.T) {
	p := newPipeline(t)
	ctx := context.Background()
	_, err := p.outbox.Create(ctx, &domain.OutboxEntry{ID: uuid.NewString(), RecipientID: "r1", Payload: []byte("not avro")})
	require.NoError(t, err)

	report, err := p.dispatcher.Dispatch(ctx, DispatchOptions{MaxRetries: 3})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Failed)
	assert.Empty(t, p.transport.sentTo())

	entry := p.outbox.All()[0]
	assert.Equal(t, 1, entry.FailureCount)
	assert.Contains(t, *entry.LastError, "decode payload")
}

func TestDispatch_AdHocEntryWithoutNotification(t *testing.T) {
	p := newPipeline(t)
	ctx := context.Background()
	blob, err := payload.Encode(&domain.Message{To: []string{"ops@example.com"}, Subject: "now"})
	require.NoError(t, err)
	_, err = p.outbox.Create(ctx, &domain.OutboxEntry{ID: uuid.NewString(), RecipientID: "r1", Payload: blob})
	require.NoError(t, err)

	report, err := p.dispatcher.Dispatch(ctx, DispatchOptions{MaxRetries: 3})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Sent)
	assert.Equal(t, []string{"ops@example.com"}, p.transport.sentTo())
}
