package grant

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"bastion/internal/capability/models"
	"bastion/internal/sentinel"
)

func record(task string, expiresAt time.Time) *models.GrantRecord {
	return &models.GrantRecord{
		Key:               models.GrantKey{SubjectID: "u1", ResourceID: "c1", TaskID: task},
		SecretHash:        "hash",
		AllowedOperations: []models.Operation{models.OpGetStatus},
		CreatedAt:         expiresAt.Add(-time.Hour),
		ExpiresAt:         expiresAt,
	}
}

func TestPutReplacesExistingKey(t *testing.T) {
	store := New()
	ctx := context.Background()
	now := time.Now()

	first := record("t1", now.Add(time.Hour))
	require.NoError(t, store.Put(ctx, first))

	second := record("t1", now.Add(2*time.Hour))
	second.SecretHash = "other-hash"
	require.NoError(t, store.Put(ctx, second))

	found, err := store.Find(ctx, first.Key)
	require.NoError(t, err)
	require.Equal(t, "other-hash", found.SecretHash)

	count, err := store.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, count)
}

func TestFindMissingReturnsNotFound(t *testing.T) {
	store := New()
	_, err := store.Find(context.Background(), models.GrantKey{SubjectID: "x"})
	require.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestDeleteIsIdempotent(t *testing.T) {
	store := New()
	ctx := context.Background()
	rec := record("t1", time.Now().Add(time.Hour))
	require.NoError(t, store.Put(ctx, rec))
	require.NoError(t, store.Delete(ctx, rec.Key))
	require.NoError(t, store.Delete(ctx, rec.Key))

	_, err := store.Find(ctx, rec.Key)
	require.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestDeleteExpired(t *testing.T) {
	store := New()
	ctx := context.Background()
	now := time.Now()

	expired := record("old", now.Add(-time.Minute))
	live := record("new", now.Add(time.Hour))
	require.NoError(t, store.Put(ctx, expired))
	require.NoError(t, store.Put(ctx, live))

	removed, err := store.DeleteExpired(ctx, now)
	require.NoError(t, err)
	require.Equal(t, []models.GrantKey{expired.Key}, removed)

	_, err = store.Find(ctx, live.Key)
	require.NoError(t, err)
}
