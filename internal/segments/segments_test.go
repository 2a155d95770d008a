package segments

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/outreachd/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(":memory:", zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStoreResolver_Resolve(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	_, err := st.ApplyContextPayload(ctx, "acme", "general", store.Document{
		"industry":     "saas",
		"company_size": "mid",
	})
	require.NoError(t, err)

	seg, err := NewStoreResolver(st).Resolve(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, Segment{Industry: "saas", CompanySize: "mid"}, seg)
}

func TestStoreResolver_NoGeneralContext(t *testing.T) {
	st := newTestStore(t)

	_, err := NewStoreResolver(st).Resolve(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrUnresolved)
}

func TestStoreResolver_MissingSegmentFields(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	_, err := st.ApplyContextPayload(ctx, "acme", "general", store.Document{"name": "Acme Corp"})
	require.NoError(t, err)

	_, err = NewStoreResolver(st).Resolve(ctx, "acme")
	assert.ErrorIs(t, err, ErrUnresolved)
}

func TestStoreResolver_PartialSegment(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	_, err := st.ApplyContextPayload(ctx, "acme", "general", store.Document{"industry": "fintech"})
	require.NoError(t, err)

	seg, err := NewStoreResolver(st).Resolve(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, "fintech", seg.Industry)
	assert.Empty(t, seg.CompanySize)
}

func TestStatic_Resolve(t *testing.T) {
	r := Static{"acme": {Industry: "saas", CompanySize: "mid"}}

	seg, err := r.Resolve(context.Background(), "acme")
	require.NoError(t, err)
	assert.Equal(t, "saas", seg.Industry)

	_, err = r.Resolve(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrUnresolved)
}
