package news

import (
	"context"
	"errors"
	"fmt"

	"github.com/ricirt/pigeonpost/internal/domain"
	"github.com/ricirt/pigeonpost/internal/source"
)

// StaffDirectory lists the recipients allowed to moderate.
type StaffDirectory interface {
	ListStaff(ctx context.Context) ([]domain.Recipient, error)
}

// Register adds the news source type to reg. from is the sender address of
// every news mail.
func Register(reg *source.Registry, repo Repository, staff StaffDirectory, from string) error {
	load := func(ctx context.Context, id string) (source.Entity, error) {
		it, err := repo.GetByID(ctx, id)
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("news %s: %w", id, domain.ErrMissingSource)
		}
		if err != nil {
			return nil, err
		}
		return it, nil
	}

	// Subscribers get the item only while it is still published.
	toSubscribers := func(ctx context.Context, src source.Entity, rc domain.Recipient) (*domain.Message, error) {
		it, ok := src.(*Item)
		if !ok {
			return nil, fmt.Errorf("news renderer: unexpected source %T", src)
		}
		if !it.Published {
			return nil, nil
		}
		subscribed, err := repo.IsSubscribed(ctx, rc.ID)
		if err != nil || !subscribed {
			return nil, err
		}
		return message(it, from, rc), nil
	}

	toModerators := func(_ context.Context, src source.Entity, rc domain.Recipient) (*domain.Message, error) {
		it, ok := src.(*Item)
		if !ok {
			return nil, fmt.Errorf("news renderer: unexpected source %T", src)
		}
		if !rc.Staff {
			return nil, nil
		}
		msg := message(it, from, rc)
		msg.Subject = "[moderate] " + it.Subject
		return msg, nil
	}

	return reg.Register(source.Type{
		Name:             SourceType,
		RequiresInstance: true,
		Load:             load,
		Renderers: map[string]source.RenderFunc{
			domain.DefaultRenderMethod: toSubscribers,
			RenderModerators:           toModerators,
		},
		RecipientMethods: map[string]source.RecipientsFunc{
			RecipientsStaff: func(ctx context.Context, _ source.Entity) ([]domain.Recipient, error) {
				return staff.ListStaff(ctx)
			},
		},
	})
}

func message(it *Item, from string, rc domain.Recipient) *domain.Message {
	return &domain.Message{
		From:    from,
		To:      []string{rc.Email},
		Subject: it.Subject,
		Body:    it.Body,
		Headers: map[string]string{"X-Pigeonpost-Source": SourceType + ":" + it.ID},
	}
}
