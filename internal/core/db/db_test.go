package db

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solatis/formkeeper/internal/rules"
	"github.com/solatis/formkeeper/internal/types"
)

func openTestDB(t *testing.T) *sqlx.DB {
	t.Helper()
	db, err := Open("sqlite://" + filepath.Join(t.TempDir(), "formkeeper.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func newTestStore(t *testing.T) *RuleStore {
	t.Helper()
	db := openTestDB(t)
	_, err := MigrateUp(context.Background(), db, zerolog.Nop())
	require.NoError(t, err)
	store, err := NewRuleStore(db, zerolog.Nop())
	require.NoError(t, err)
	return store
}

func testRule(id string, priority int) *types.Rule {
	return &types.Rule{
		ID:       types.RuleID(id),
		Name:     "Rule " + id,
		Enabled:  true,
		Priority: priority,
		Category: "safety",
		Tags:     []string{"test"},
		Condition: types.Or(
			types.Leaf(types.Condition{Field: "vitals.systolic", Operator: types.OpGreaterThanOrEqual, Value: float64(140)}),
			types.Leaf(types.Condition{Field: "patient.allergies", Operator: types.OpIsNotEmpty}),
		),
		Actions: []types.Action{
			{ID: "a1", Type: types.ActionShowAlert, Target: "vitals", Message: "check"},
		},
	}
}

func TestOpen_UnsupportedScheme(t *testing.T) {
	_, err := Open("mysql://localhost/formkeeper")
	assert.ErrorContains(t, err, "unsupported database scheme")
}

func TestMigrateUp(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	applied, err := MigrateUp(ctx, db, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, 1, applied)

	// Second run is a no-op
	applied, err = MigrateUp(ctx, db, zerolog.Nop())
	require.NoError(t, err)
	assert.Zero(t, applied)

	statuses, err := MigrateStatus(ctx, db)
	require.NoError(t, err)
	require.Len(t, statuses, 1)
	assert.Equal(t, "001_initial_schema.sql", statuses[0].ID)
	assert.True(t, statuses[0].Applied)
	require.NotNil(t, statuses[0].AppliedAt)
}

func TestMigrateStatus_Pending(t *testing.T) {
	statuses, err := MigrateStatus(context.Background(), openTestDB(t))
	require.NoError(t, err)
	require.Len(t, statuses, 1)
	assert.False(t, statuses[0].Applied)
	assert.Nil(t, statuses[0].AppliedAt)
	assert.Len(t, statuses[0].Checksum, 64)
}

func TestMigrateUp_ChecksumMismatch(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	_, err := MigrateUp(ctx, db, zerolog.Nop())
	require.NoError(t, err)

	_, err = db.Exec("UPDATE migrations SET checksum = 'tampered'")
	require.NoError(t, err)

	_, err = MigrateUp(ctx, db, zerolog.Nop())
	assert.ErrorContains(t, err, "checksum mismatch")
}

func TestRuleStore_UpsertAndGet(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	rule := testRule("hypertension", 10)
	require.NoError(t, store.Upsert(ctx, rule))

	got, err := store.Get(ctx, "hypertension")
	require.NoError(t, err)
	assert.Equal(t, rule, got)

	rule.Priority = 1
	rule.Name = "Renamed"
	require.NoError(t, store.Upsert(ctx, rule))

	got, err = store.Get(ctx, "hypertension")
	require.NoError(t, err)
	assert.Equal(t, 1, got.Priority)
	assert.Equal(t, "Renamed", got.Name)

	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestRuleStore_ListKeepsInsertOrder(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	for _, id := range []string{"c", "a", "b"} {
		require.NoError(t, store.Upsert(ctx, testRule(id, 0)))
	}
	// Updating an existing rule keeps its position
	require.NoError(t, store.Upsert(ctx, testRule("c", 99)))

	list, err := store.List(ctx)
	require.NoError(t, err)
	ids := make([]types.RuleID, len(list))
	for i, r := range list {
		ids[i] = r.ID
	}
	assert.Equal(t, []types.RuleID{"c", "a", "b"}, ids)
}

func TestRuleStore_NotFound(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	_, err := store.Get(ctx, "missing")
	assert.ErrorIs(t, err, types.ErrRuleNotFound)
	assert.ErrorIs(t, store.Delete(ctx, "missing"), types.ErrRuleNotFound)
	assert.ErrorIs(t, store.SetEnabled(ctx, "missing", false), types.ErrRuleNotFound)
}

func TestRuleStore_SetEnabledWinsOnLoad(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, store.Upsert(ctx, testRule("r1", 0)))
	require.NoError(t, store.SetEnabled(ctx, "r1", false))

	got, err := store.Get(ctx, "r1")
	require.NoError(t, err)
	assert.False(t, got.Enabled)
}

func TestRuleStore_Delete(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, store.Upsert(ctx, testRule("r1", 0)))
	require.NoError(t, store.Delete(ctx, "r1"))

	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRuleStore_ReplaceAll(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, store.Upsert(ctx, testRule("old", 0)))
	require.NoError(t, store.ReplaceAll(ctx, []*types.Rule{testRule("x", 2), testRule("y", 1)}))

	list, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, types.RuleID("x"), list[0].ID)
	assert.Equal(t, types.RuleID("y"), list[1].ID)

	_, err = store.Get(ctx, "old")
	assert.ErrorIs(t, err, types.ErrRuleNotFound)
}

func TestRuleStore_LoadInto(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	reg, err := rules.NewRegistry(testRule("seed", 0))
	require.NoError(t, err)

	// Empty store leaves the registry alone
	n, err := store.LoadInto(ctx, reg)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, 1, reg.Len())

	require.NoError(t, store.ReplaceAll(ctx, []*types.Rule{testRule("a", 0), testRule("b", 0)}))
	n, err = store.LoadInto(ctx, reg)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, err = reg.Get("seed")
	assert.ErrorIs(t, err, types.ErrRuleNotFound)

	result := rules.Evaluate(reg.List(), types.DataContext{"vitals": map[string]any{"systolic": 150}}, rules.DefaultOptions())
	assert.Equal(t, []types.RuleID{"a", "b"}, result.FiredIDs())
}
