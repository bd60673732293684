package recipient_test

import (
	"context"
	"errors"
	"testing"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ricirt/pigeonpost/internal/domain"
	"github.com/ricirt/pigeonpost/internal/recipient"
	"github.com/ricirt/pigeonpost/internal/repository"
	"github.com/ricirt/pigeonpost/internal/source"
)

func seedDirectory(t *testing.T) *repository.MockRecipientRepository {
	t.Helper()
	dir := repository.NewMockRecipientRepository()
	ctx := context.Background()
	for _, rc := range []domain.Recipient{
		{ID: "a", Email: "a@example.com", Active: true},
		{ID: "b", Email: "b@example.com", Active: true},
		{ID: "c", Email: "c@foo.org", Active: false},
		{ID: "d", Email: "d@example.com", Active: true},
	} {
		require.NoError(t, dir.Create(ctx, &rc))
	}
	return dir
}

func newResolver(t *testing.T, method source.RecipientsFunc) *recipient.Resolver {
	t.Helper()
	reg := source.NewRegistry()
	reg.MustRegister(source.Type{
		Name: "article",
		Renderers: map[string]source.RenderFunc{
			domain.DefaultRenderMethod: func(context.Context, source.Entity, domain.Recipient) (*domain.Message, error) {
				return nil, nil
			},
		},
		RecipientMethods: map[string]source.RecipientsFunc{"editors": method},
	})
	return recipient.NewResolver(reg, seedDirectory(t))
}

func ids(rs []domain.Recipient) []string {
	return lo.Map(rs, func(r domain.Recipient, _ int) string { return r.ID })
}

func TestResolve_AllActive(t *testing.T) {
	res := newResolver(t, nil)
	n := &domain.Notification{Source: domain.SourceRef{Type: "article", ID: "1"}}

	got, err := res.Resolve(context.Background(), n, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "d"}, ids(got))
}

func TestResolve_ExplicitOverridesActiveStatus(t *testing.T) {
	res := newResolver(t, nil)
	inactive := "c"
	n := &domain.Notification{Source: domain.SourceRef{Type: "article"}, RecipientID: &inactive}

	got, err := res.Resolve(context.Background(), n, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"c"}, ids(got))
}

func TestResolve_ExplicitMissing(t *testing.T) {
	res := newResolver(t, nil)
	missing := "zz"
	n := &domain.Notification{Source: domain.SourceRef{Type: "article"}, RecipientID: &missing}

	_, err := res.Resolve(context.Background(), n, nil)
	assert.ErrorIs(t, err, domain.ErrRecipientNotFound)
}

func TestResolve_MethodDedupKeepsFirstOccurrence(t *testing.T) {
	var gotSrc source.Entity
	res := newResolver(t, func(_ context.Context, src source.Entity) ([]domain.Recipient, error) {
		gotSrc = src
		return []domain.Recipient{{ID: "d"}, {ID: "a"}, {ID: "d"}, {ID: "b"}, {ID: "a"}}, nil
	})
	method := "editors"
	n := &domain.Notification{Source: domain.SourceRef{Type: "article", ID: "1"}, RecipientMethod: &method}

	got, err := res.Resolve(context.Background(), n, "the-article")
	require.NoError(t, err)
	assert.Equal(t, []string{"d", "a", "b"}, ids(got))
	assert.Equal(t, "the-article", gotSrc)
}

func TestResolve_MethodErrors(t *testing.T) {
	boom := errors.New("boom")
	res := newResolver(t, func(context.Context, source.Entity) ([]domain.Recipient, error) { return nil, boom })

	method := "editors"
	n := &domain.Notification{Source: domain.SourceRef{Type: "article"}, RecipientMethod: &method}
	_, err := res.Resolve(context.Background(), n, nil)
	assert.ErrorIs(t, err, boom)

	unknown := "nobody"
	n.RecipientMethod = &unknown
	_, err = res.Resolve(context.Background(), n, nil)
	assert.ErrorIs(t, err, domain.ErrUnknownRecipientFunc)
}
