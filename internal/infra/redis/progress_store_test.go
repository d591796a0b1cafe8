package redis

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"lesson-progress-service/internal/domain"
)

func TestStorePersistsVersionedEntries(t *testing.T) {
	mr, client := newClient(t)
	store := NewStore(client, 0)
	ctx := context.Background()

	ledger, err := store.LoadProgress(ctx, "6e-1")
	require.NoError(t, err)
	require.Empty(t, ledger)

	want := domain.Ledger{"sections.0.subsections.0": {Completed: true, Timestamp: 42}}
	require.NoError(t, store.SaveProgress(ctx, "6e-1", want))

	raw, err := mr.Get("lessons-progress:6e-1")
	require.NoError(t, err)
	require.JSONEq(t, `{"v":1,"data":{"sections.0.subsections.0":{"completed":true,"timestamp":42}}}`, raw)

	got, err := store.LoadProgress(ctx, "6e-1")
	require.NoError(t, err)
	require.True(t, got.Equal(want))

	require.NoError(t, store.DeleteProgress(ctx, "6e-1"))
	require.False(t, mr.Exists("lessons-progress:6e-1"))
}

func TestStoreMeta(t *testing.T) {
	mr, client := newClient(t)
	store := NewStore(client, 0)
	ctx := context.Background()

	_, ok, err := store.LoadMeta(ctx, "6e-1")
	require.NoError(t, err)
	require.False(t, ok)

	meta := domain.LastVisited{LastSectionID: "section-1-a", LastSubsectionID: "section-1-sub-1-b"}
	require.NoError(t, store.SaveMeta(ctx, "6e-1", meta))
	got, ok, err := store.LoadMeta(ctx, "6e-1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, meta, got)

	require.NoError(t, mr.Set("lessons-meta:6e-2", `{"lastSectionId":"x"}`))
	_, _, err = store.LoadMeta(ctx, "6e-2")
	require.True(t, errors.Is(err, domain.ErrVersionMismatch))
}
