package staleness

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/outreachd/internal/events"
	"github.com/fyrsmithlabs/outreachd/internal/store"
)

func newTestEngine(t *testing.T) (*Engine, *store.Store) {
	t.Helper()
	st, err := store.Open(":memory:", zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	e, err := NewEngine(st, nil, nil, zap.NewNop())
	require.NoError(t, err)
	return e, st
}

func seedAllSteps(t *testing.T, e *Engine, project string) {
	t.Helper()
	ctx := context.Background()
	for _, step := range []string{StepOverview, StepAccount, StepPersona, StepEmail, StepPlan} {
		_, err := e.SaveStep(ctx, project, step, store.Document{"step": step})
		require.NoError(t, err)
	}
}

func TestNewEngine_RejectsInvalidGraph(t *testing.T) {
	st, err := store.Open(":memory:", zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	_, err = NewEngine(st, Graph{"a": {"b"}, "b": {"a"}}, nil, zap.NewNop())
	assert.Error(t, err)
}

func TestSaveStep_UnknownStep(t *testing.T) {
	e, _ := newTestEngine(t)

	_, err := e.SaveStep(context.Background(), "proj-1", "newsletter", store.Document{})
	assert.Error(t, err)
}

func TestSaveStep_PublishesEvent(t *testing.T) {
	st, err := store.Open(":memory:", zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	bus := events.NewBus(zap.NewNop())
	got := make(chan events.Event, 1)
	bus.Subscribe(events.TypeStepSaved, func(_ context.Context, ev events.Event) error {
		got <- ev
		return nil
	})

	e, err := NewEngine(st, nil, bus, zap.NewNop())
	require.NoError(t, err)

	_, err = e.SaveStep(context.Background(), "proj-1", StepEmail, store.Document{"subject": "hi"})
	require.NoError(t, err)

	select {
	case ev := <-got:
		assert.Equal(t, "proj-1", ev.Data["project"])
		assert.Equal(t, StepEmail, ev.Data["step_key"])
	default:
		t.Fatal("step.saved event not published")
	}
}

func TestMarkDependentsStale_OverviewCascades(t *testing.T) {
	e, st := newTestEngine(t)
	ctx := context.Background()
	seedAllSteps(t, e, "proj-1")

	affected, err := e.MarkDependentsStale(ctx, "proj-1", StepOverview)
	require.NoError(t, err)
	assert.Equal(t, []string{StepAccount, StepPersona, StepEmail, StepPlan}, affected)

	// The changed step itself is never marked.
	doc, err := st.GetStepDocument(ctx, "proj-1", StepOverview)
	require.NoError(t, err)
	assert.False(t, doc.Stale)

	doc, err = st.GetStepDocument(ctx, "proj-1", StepPlan)
	require.NoError(t, err)
	assert.True(t, doc.Stale)
	assert.Equal(t, "Dependency 'overview' was regenerated", doc.StaleReason)
}

func TestMarkDependentsStale_PersonaMarksEmailAndPlan(t *testing.T) {
	e, st := newTestEngine(t)
	ctx := context.Background()
	seedAllSteps(t, e, "proj-1")

	affected, err := e.MarkDependentsStale(ctx, "proj-1", StepPersona)
	require.NoError(t, err)
	assert.Equal(t, []string{StepEmail, StepPlan}, affected)

	for _, step := range []string{StepOverview, StepAccount} {
		doc, err := st.GetStepDocument(ctx, "proj-1", step)
		require.NoError(t, err)
		assert.False(t, doc.Stale, step)
	}
}

func TestMarkDependentsStale_OnlyExistingDocuments(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	// Only email was ever generated; persona's other dependents are
	// skipped without error.
	_, err := e.SaveStep(ctx, "proj-1", StepEmail, store.Document{})
	require.NoError(t, err)

	affected, err := e.MarkDependentsStale(ctx, "proj-1", StepPersona)
	require.NoError(t, err)
	assert.Equal(t, []string{StepEmail}, affected)
}

func TestMarkDependentsStale_Idempotent(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()
	seedAllSteps(t, e, "proj-1")

	first, err := e.MarkDependentsStale(ctx, "proj-1", StepPersona)
	require.NoError(t, err)

	second, err := e.MarkDependentsStale(ctx, "proj-1", StepPersona)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestMarkDependentsStale_UnknownStep(t *testing.T) {
	e, _ := newTestEngine(t)

	_, err := e.MarkDependentsStale(context.Background(), "proj-1", "newsletter")
	assert.Error(t, err)
}

func TestMarkDependentsStale_ScopedToProject(t *testing.T) {
	e, st := newTestEngine(t)
	ctx := context.Background()
	seedAllSteps(t, e, "proj-1")
	seedAllSteps(t, e, "proj-2")

	_, err := e.MarkDependentsStale(ctx, "proj-1", StepOverview)
	require.NoError(t, err)

	doc, err := st.GetStepDocument(ctx, "proj-2", StepPlan)
	require.NoError(t, err)
	assert.False(t, doc.Stale)
}

func TestSaveStep_ClearsOwnStalenessOnly(t *testing.T) {
	e, st := newTestEngine(t)
	ctx := context.Background()
	seedAllSteps(t, e, "proj-1")

	_, err := e.MarkDependentsStale(ctx, "proj-1", StepPersona)
	require.NoError(t, err)

	_, err = e.SaveStep(ctx, "proj-1", StepEmail, store.Document{"subject": "v2"})
	require.NoError(t, err)

	doc, err := st.GetStepDocument(ctx, "proj-1", StepEmail)
	require.NoError(t, err)
	assert.False(t, doc.Stale)

	doc, err = st.GetStepDocument(ctx, "proj-1", StepPlan)
	require.NoError(t, err)
	assert.True(t, doc.Stale, "plan staleness must survive email regeneration")
}
