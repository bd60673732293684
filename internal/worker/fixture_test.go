package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ricirt/pigeonpost/internal/domain"
	"github.com/ricirt/pigeonpost/internal/lock"
	"github.com/ricirt/pigeonpost/internal/ratelimiter"
	"github.com/ricirt/pigeonpost/internal/recipient"
	"github.com/ricirt/pigeonpost/internal/repository"
	"github.com/ricirt/pigeonpost/internal/source"
	"github.com/ricirt/pigeonpost/internal/transport"
)

var errRenderBoom = errors.New("template exploded")

// articles is a tiny source type used by every worker test.
type articles struct {
	mu           sync.Mutex
	titles       map[string]string
	unsubscribed map[string]bool
	failFor      map[string]bool
	renders      int
}

func (a *articles) sourceType() source.Type {
	render := func(_ context.Context, src source.Entity, rc domain.Recipient) (*domain.Message, error) {
		a.mu.Lock()
		defer a.mu.Unlock()
		a.renders++
		if a.failFor[rc.ID] {
			return nil, errRenderBoom
		}
		if a.unsubscribed[rc.ID] {
			return nil, nil
		}
		title, _ := src.(string)
		return &domain.Message{
			From:    "news@example.com",
			To:      []string{rc.Email},
			Subject: "New: " + title,
			Body:    "Read " + title,
		}, nil
	}
	return source.Type{
		Name: "article",
		Load: func(_ context.Context, id string) (source.Entity, error) {
			a.mu.Lock()
			defer a.mu.Unlock()
			title, ok := a.titles[id]
			if !ok {
				return nil, fmt.Errorf("article %s: %w", id, domain.ErrMissingSource)
			}
			return title, nil
		},
		Renderers: map[string]source.RenderFunc{domain.DefaultRenderMethod: render},
		RecipientMethods: map[string]source.RecipientsFunc{
			"authors": func(context.Context, source.Entity) ([]domain.Recipient, error) {
				return []domain.Recipient{
					{ID: "r1", Email: "r1@example.com"},
					{ID: "r1", Email: "r1@example.com"},
				}, nil
			},
		},
	}
}

// fakeTransport records every delivery. failAll makes Send fail; dialErr
// makes Dial fail.
type fakeTransport struct {
	mu      sync.Mutex
	dialErr error
	failAll bool
	dials   int
	closes  int
	sent    []*domain.Message
}

func (f *fakeTransport) Dial(context.Context) (transport.Conn, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dials++
	if f.dialErr != nil {
		return nil, f.dialErr
	}
	return &fakeConn{t: f}, nil
}

func (f *fakeTransport) sentTo() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, m := range f.sent {
		out = append(out, m.To...)
	}
	return out
}

type fakeConn struct{ t *fakeTransport }

func (c *fakeConn) Send(_ context.Context, msg *domain.Message) error {
	c.t.mu.Lock()
	defer c.t.mu.Unlock()
	if c.t.failAll {
		return errors.New("421 service not available")
	}
	c.t.sent = append(c.t.sent, msg)
	return nil
}

func (c *fakeConn) Close() error {
	c.t.mu.Lock()
	defer c.t.mu.Unlock()
	c.t.closes++
	return nil
}

type pipeline struct {
	t             *testing.T
	articles      *articles
	notifications *repository.MockNotificationRepository
	outbox        *repository.MockOutboxRepository
	recipients    *repository.MockRecipientRepository
	transport     *fakeTransport
	processor     *QueueProcessor
	dispatcher    *OutboxDispatcher
	deployer      *Deployer
	locker        *lock.FileLocker
	now           time.Time
	results       []string
}

type pipelineOption func(*pipelineConfig)

type pipelineConfig struct {
	policy         RenderFailurePolicy
	recipientLimit int
	sink           string
}

func withPolicy(p RenderFailurePolicy) pipelineOption {
	return func(c *pipelineConfig) { c.policy = p }
}

func withSink(addr string, limit int) pipelineOption {
	return func(c *pipelineConfig) { c.sink, c.recipientLimit = addr, limit }
}

// newPipeline wires the full deploy pipeline over in-memory repositories
// with three active recipients r1..r3 and one inactive r4.
func newPipeline(t *testing.T, opts ...pipelineOption) *pipeline {
	t.Helper()
	cfg := pipelineConfig{policy: RenderAbort}
	for _, o := range opts {
		o(&cfg)
	}

	p := &pipeline{
		t: t,
		articles: &articles{
			titles:       map[string]string{"a1": "Gophers", "a2": "Channels"},
			unsubscribed: map[string]bool{},
			failFor:      map[string]bool{},
		},
		notifications: repository.NewMockNotificationRepository(),
		outbox:        repository.NewMockOutboxRepository(),
		recipients:    repository.NewMockRecipientRepository(),
		transport:     &fakeTransport{},
		now:           time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}

	ctx := context.Background()
	for i := 1; i <= 4; i++ {
		id := fmt.Sprintf("r%d", i)
		require.NoError(t, p.recipients.Create(ctx, &domain.Recipient{
			ID: id, Email: id + "@example.com", Active: i < 4,
		}))
	}

	reg := source.NewRegistry()
	reg.MustRegister(p.articles.sourceType())

	logger := zap.NewNop()
	p.processor = NewQueueProcessor(
		p.notifications, p.outbox, reg,
		recipient.NewResolver(reg, p.recipients),
		cfg.policy, cfg.recipientLimit, 3, logger, ProcessorHooks{},
	)
	p.processor.now = func() time.Time { return p.now }

	p.dispatcher = NewOutboxDispatcher(
		p.outbox, p.transport, ratelimiter.New(0, 1),
		DispatcherOptions{SinkAddress: cfg.sink, DialRetries: 2, DialBackoff: time.Millisecond},
		logger, DispatcherHooks{},
	)
	p.dispatcher.now = func() time.Time { return p.now }

	p.locker = lock.NewFileLocker(t.TempDir(), logger)
	p.deployer = NewDeployer(
		p.locker, "deploy", p.processor, p.dispatcher,
		p.notifications, p.outbox, 3, logger,
		DeployHooks{OnRun: func(r string) { p.results = append(p.results, r) }},
	)
	return p
}

// enqueue stores a pending notification for article id, scheduled at offset
// from the pipeline clock.
func (p *pipeline) enqueue(articleID string, offset time.Duration, mutate ...func(*domain.Notification)) *domain.Notification {
	p.t.Helper()
	n := &domain.Notification{
		ID:           uuid.NewString(),
		Source:       domain.SourceRef{Type: "article", ID: articleID},
		RenderMethod: domain.DefaultRenderMethod,
		ScheduledFor: p.now.Add(offset),
		CreatedAt:    p.now,
	}
	for _, m := range mutate {
		m(n)
	}
	_, err := p.notifications.Upsert(context.Background(), n)
	require.NoError(p.t, err)
	return n
}

func (p *pipeline) notification(id string) *domain.Notification {
	p.t.Helper()
	n, err := p.notifications.GetByID(context.Background(), id)
	require.NoError(p.t, err)
	return n
}

func (p *pipeline) entryRecipients() []string {
	var out []string
	for _, e := range p.outbox.All() {
		out = append(out, e.RecipientID)
	}
	return out
}
