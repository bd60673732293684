package source_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ricirt/pigeonpost/internal/domain"
	"github.com/ricirt/pigeonpost/internal/source"
)

func noopRender(context.Context, source.Entity, domain.Recipient) (*domain.Message, error) {
	return nil, nil
}

func newRegistry(t *testing.T) *source.Registry {
	t.Helper()
	reg := source.NewRegistry()
	require.NoError(t, reg.Register(source.Type{
		Name: "article",
		Load: func(_ context.Context, id string) (source.Entity, error) {
			if id == "gone" {
				return nil, fmt.Errorf("article %s: %w", id, domain.ErrMissingSource)
			}
			return "article-" + id, nil
		},
		Renderers: map[string]source.RenderFunc{domain.DefaultRenderMethod: noopRender},
		RecipientMethods: map[string]source.RecipientsFunc{
			"authors": func(context.Context, source.Entity) ([]domain.Recipient, error) { return nil, nil },
		},
	}))
	require.NoError(t, reg.Register(source.Type{
		Name:      "digest",
		Renderers: map[string]source.RenderFunc{domain.DefaultRenderMethod: noopRender},
	}))
	return reg
}

func TestRegistry_Register(t *testing.T) {
	reg := newRegistry(t)

	assert.Error(t, reg.Register(source.Type{Name: "article", Renderers: map[string]source.RenderFunc{"x": noopRender}}))
	assert.Error(t, reg.Register(source.Type{Name: "empty"}))
	assert.Error(t, reg.Register(source.Type{Renderers: map[string]source.RenderFunc{"x": noopRender}}))
	assert.Equal(t, []string{"article", "digest"}, reg.Types())
}

func TestRegistry_Load(t *testing.T) {
	reg := newRegistry(t)
	ctx := context.Background()

	got, err := reg.Load(ctx, domain.SourceRef{Type: "article", ID: "1"})
	require.NoError(t, err)
	assert.Equal(t, "article-1", got)

	_, err = reg.Load(ctx, domain.SourceRef{Type: "article", ID: "gone"})
	assert.ErrorIs(t, err, domain.ErrMissingSource)

	got, err = reg.Load(ctx, domain.SourceRef{Type: "digest"})
	require.NoError(t, err)
	assert.Nil(t, got, "type-only references load as nil")

	_, err = reg.Load(ctx, domain.SourceRef{Type: "digest", ID: "3"})
	assert.ErrorIs(t, err, domain.ErrMissingSource)

	_, err = reg.Load(ctx, domain.SourceRef{Type: "unknown", ID: "1"})
	assert.ErrorIs(t, err, domain.ErrUnknownSourceType)
}

func TestRegistry_RequiresInstance(t *testing.T) {
	reg := newRegistry(t)
	require.NoError(t, reg.Register(source.Type{
		Name:             "invoice",
		RequiresInstance: true,
		Load:             func(_ context.Context, id string) (source.Entity, error) { return id, nil },
		Renderers:        map[string]source.RenderFunc{domain.DefaultRenderMethod: noopRender},
	}))

	assert.NoError(t, reg.Check(domain.SourceRef{Type: "invoice", ID: "7"}))
	assert.NoError(t, reg.Check(domain.SourceRef{Type: "digest"}))
	assert.ErrorIs(t, reg.Check(domain.SourceRef{Type: "invoice"}), domain.ErrSourceIDRequired)
	assert.ErrorIs(t, reg.Check(domain.SourceRef{Type: "podcast"}), domain.ErrUnknownSourceType)

	_, err := reg.Load(context.Background(), domain.SourceRef{Type: "invoice"})
	assert.ErrorIs(t, err, domain.ErrMissingSource, "stored type-only rows close as terminal")
}

func TestRegistry_Methods(t *testing.T) {
	reg := newRegistry(t)

	_, err := reg.Renderer("article", domain.DefaultRenderMethod)
	require.NoError(t, err)
	_, err = reg.Renderer("article", "missing")
	assert.ErrorIs(t, err, domain.ErrUnknownRenderMethod)

	_, err = reg.RecipientMethod("article", "authors")
	require.NoError(t, err)
	_, err = reg.RecipientMethod("digest", "authors")
	assert.ErrorIs(t, err, domain.ErrUnknownRecipientFunc)
}
