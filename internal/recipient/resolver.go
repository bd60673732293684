package recipient

import (
	"context"
	"fmt"

	"github.com/samber/lo"

	"github.com/ricirt/pigeonpost/internal/domain"
	"github.com/ricirt/pigeonpost/internal/source"
)

// Directory is the part of the recipient store the resolver reads.
type Directory interface {
	GetByID(ctx context.Context, id string) (*domain.Recipient, error)
	ListActive(ctx context.Context) ([]domain.Recipient, error)
}

// Resolver turns a notification's recipient selector into the ordered list of
// recipients to render for.
type Resolver struct {
	registry *source.Registry
	dir      Directory
}

func NewResolver(registry *source.Registry, dir Directory) *Resolver {
	return &Resolver{registry: registry, dir: dir}
}

// Resolve applies, in priority order: the explicit recipient (even if it is
// no longer active), the named recipient method on the source, or every
// active recipient. Later duplicates are dropped; first occurrences keep
// their position.
func (r *Resolver) Resolve(ctx context.Context, n *domain.Notification, src source.Entity) ([]domain.Recipient, error) {
	var candidates []domain.Recipient

	switch n.RecipientSpec() {
	case domain.RecipientExplicit:
		rc, err := r.dir.GetByID(ctx, *n.RecipientID)
		if err != nil {
			return nil, fmt.Errorf("load recipient %s: %w", *n.RecipientID, err)
		}
		return []domain.Recipient{*rc}, nil

	case domain.RecipientMethod:
		fn, err := r.registry.RecipientMethod(n.Source.Type, *n.RecipientMethod)
		if err != nil {
			return nil, err
		}
		candidates, err = fn(ctx, src)
		if err != nil {
			return nil, fmt.Errorf("recipient method %s.%s: %w", n.Source.Type, *n.RecipientMethod, err)
		}

	default:
		var err error
		candidates, err = r.dir.ListActive(ctx)
		if err != nil {
			return nil, fmt.Errorf("list active recipients: %w", err)
		}
	}

	return lo.UniqBy(candidates, func(rc domain.Recipient) string { return rc.ID }), nil
}
