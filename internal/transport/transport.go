// Package transport hands rendered messages to an outside delivery system.
package transport

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ricirt/pigeonpost/internal/config"
	"github.com/ricirt/pigeonpost/internal/domain"
)

// Transport opens delivery connections. A single Conn is reused for every
// message of one dispatch run.
type Transport interface {
	Dial(ctx context.Context) (Conn, error)
}

// Conn delivers messages one at a time. A Send error concerns only that
// message; the connection stays usable for the next one.
type Conn interface {
	Send(ctx context.Context, msg *domain.Message) error
	Close() error
}

// New builds the transport selected by cfg.Transport.
func New(cfg *config.Config, logger *zap.Logger) (Transport, error) {
	switch cfg.Transport {
	case config.TransportSMTP:
		return NewSMTPTransport(SMTPOptions{
			Host:        cfg.SMTPHost,
			Port:        cfg.SMTPPort,
			Username:    cfg.SMTPUsername,
			Password:    cfg.SMTPPassword,
			StartTLS:    cfg.SMTPStartTLS,
			Timeout:     cfg.TransportTimeout,
			DefaultFrom: cfg.DefaultFrom,
		}), nil
	case config.TransportWebhook:
		return NewWebhookTransport(cfg.WebhookURL, cfg.TransportTimeout, cfg.DefaultFrom), nil
	case config.TransportLog:
		return NewLogTransport(logger, cfg.DefaultFrom), nil
	default:
		return nil, fmt.Errorf("unknown transport %q", cfg.Transport)
	}
}

func withDefaultFrom(msg *domain.Message, from string) *domain.Message {
	if msg.From != "" || from == "" {
		return msg
	}
	cp := *msg
	cp.From = from
	return &cp
}
