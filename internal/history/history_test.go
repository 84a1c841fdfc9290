package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/gray-logic-haptics/internal/device"
	"github.com/nerrad567/gray-logic-haptics/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-haptics/internal/infrastructure/database"
	_ "github.com/nerrad567/gray-logic-haptics/migrations"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	ctx := context.Background()

	db, err := database.Open(ctx, config.DatabaseConfig{
		Path:        filepath.Join(t.TempDir(), "history.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup

	require.NoError(t, db.Migrate(ctx))
	return NewSQLiteRepository(db.DB)
}

var base = time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)

func TestRecord_FillsDefaults(t *testing.T) {
	repo := newTestRepo(t)
	repo.now = func() time.Time { return base }

	e := &Event{Kind: KindStart, Address: "all_vibrate", Pattern: "pulse", Loop: true}
	require.NoError(t, repo.Record(context.Background(), e))

	assert.Len(t, e.ID, 36, "uuid assigned")
	assert.Equal(t, base, e.CreatedAt)
	assert.NotNil(t, e.Keys)
}

func TestRecord_Invalid(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	assert.ErrorIs(t, repo.Record(ctx, nil), ErrInvalidEvent)
	assert.ErrorIs(t, repo.Record(ctx, &Event{Kind: "pause", Address: "all"}), ErrInvalidEvent)
	assert.ErrorIs(t, repo.Record(ctx, &Event{Kind: KindStop, Address: "  "}), ErrInvalidEvent)
}

func TestList_RoundTripNewestFirst(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	keys := []device.FeatureKey{
		{DeviceID: "dev-wand", Category: device.CategoryScalar, Index: 0},
		{DeviceID: "dev-wand", Category: device.CategoryScalar, Index: 1},
	}
	start := &Event{Kind: KindStart, Address: "wand", Pattern: "pulse", Loop: true, Keys: keys, Source: "api", CreatedAt: base}
	stop := &Event{Kind: KindStop, Address: "wand", Keys: keys, Source: "api", CreatedAt: base.Add(1500 * time.Millisecond)}
	require.NoError(t, repo.Record(ctx, start))
	require.NoError(t, repo.Record(ctx, stop))

	result, err := repo.List(ctx, Filter{})
	require.NoError(t, err)

	assert.Equal(t, 2, result.Total)
	assert.Equal(t, DefaultLimit, result.Limit)
	if diff := cmp.Diff([]Event{*stop, *start}, result.Events); diff != "" {
		t.Errorf("events mismatch (-want +got):\n%s", diff)
	}
}

func TestList_Filters(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	events := []*Event{
		{Kind: KindStart, Address: "wand", Pattern: "pulse", CreatedAt: base},
		{Kind: KindStart, Address: "cage", Pattern: "ramp", CreatedAt: base.Add(time.Second)},
		{Kind: KindStop, Address: "wand", CreatedAt: base.Add(2 * time.Second)},
		{Kind: KindStart, Address: "all", Pattern: "pulse", CreatedAt: base.Add(3 * time.Second)},
	}
	for _, e := range events {
		require.NoError(t, repo.Record(ctx, e))
	}

	tests := []struct {
		name   string
		filter Filter
		want   []string // addresses, newest first
	}{
		{"kind", Filter{Kind: KindStart}, []string{"all", "cage", "wand"}},
		{"address", Filter{Address: "wand"}, []string{"wand", "wand"}},
		{"pattern", Filter{Pattern: "pulse"}, []string{"all", "wand"}},
		{"since", Filter{Since: base.Add(2 * time.Second)}, []string{"all", "wand"}},
		{"combined", Filter{Kind: KindStart, Pattern: "pulse", Since: base.Add(time.Second)}, []string{"all"}},
		{"page", Filter{Limit: 2, Offset: 1}, []string{"wand", "cage"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := repo.List(ctx, tt.filter)
			require.NoError(t, err)

			got := make([]string, 0, len(result.Events))
			for _, e := range result.Events {
				got = append(got, e.Address)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestList_LimitClamp(t *testing.T) {
	repo := newTestRepo(t)

	result, err := repo.List(context.Background(), Filter{Limit: 10_000, Offset: -5})
	require.NoError(t, err)

	assert.Equal(t, MaxLimit, result.Limit)
	assert.Equal(t, 0, result.Offset)
	assert.Empty(t, result.Events)
	assert.NotNil(t, result.Events)
}
