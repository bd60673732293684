package transport

import (
	"context"

	"go.uber.org/zap"

	"github.com/ricirt/pigeonpost/internal/domain"
)

// LogTransport writes messages to the logger instead of delivering them.
// Used for local development.
type LogTransport struct {
	logger      *zap.Logger
	defaultFrom string
}

func NewLogTransport(logger *zap.Logger, defaultFrom string) *LogTransport {
	return &LogTransport{logger: logger.Named("transport.log"), defaultFrom: defaultFrom}
}

func (t *LogTransport) Dial(_ context.Context) (Conn, error) {
	return t, nil
}

func (t *LogTransport) Send(_ context.Context, msg *domain.Message) error {
	msg = withDefaultFrom(msg, t.defaultFrom)
	if err := msg.Validate(); err != nil {
		return err
	}
	t.logger.Info("message",
		zap.String("from", msg.From),
		zap.Strings("to", msg.To),
		zap.Strings("cc", msg.Cc),
		zap.Strings("bcc", msg.Bcc),
		zap.String("subject", msg.Subject),
		zap.Int("body_bytes", len(msg.Body)),
		zap.Int("attachments", len(msg.Attachments)),
	)
	return nil
}

func (t *LogTransport) Close() error { return nil }
