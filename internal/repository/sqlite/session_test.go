package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/photoshare/internal/apperror"
	"github.com/sakif/photoshare/internal/model"
)

func TestSession_CreateGetDelete(t *testing.T) {
	db := newTestDB(t)
	alice := createTestUser(t, db, "alice")
	ctx := context.Background()

	now := time.Now()
	s := &model.Session{ID: "sess-1", UserID: alice.ID, CreatedAt: now, ExpiresAt: now.Add(time.Hour)}
	require.NoError(t, db.CreateSession(ctx, s))

	found, err := db.GetSession(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, alice.ID, found.UserID)
	assert.Equal(t, s.ExpiresAt.UnixNano(), found.ExpiresAt.UnixNano())

	require.NoError(t, db.DeleteSession(ctx, "sess-1"))
	_, err = db.GetSession(ctx, "sess-1")
	assert.True(t, errors.Is(err, apperror.ErrNotFound), "got %v", err)

	// Idempotent.
	assert.NoError(t, db.DeleteSession(ctx, "sess-1"))
}

func TestSession_UnknownUserRejected(t *testing.T) {
	db := newTestDB(t)

	err := db.CreateSession(context.Background(), &model.Session{
		ID: "s", UserID: "nobody", CreatedAt: time.Now(), ExpiresAt: time.Now().Add(time.Hour),
	})
	assert.Error(t, err)
}

func TestDeleteExpiredSessions(t *testing.T) {
	db := newTestDB(t)
	alice := createTestUser(t, db, "alice")
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, db.CreateSession(ctx, &model.Session{ID: "old", UserID: alice.ID, CreatedAt: now.Add(-2 * time.Hour), ExpiresAt: now.Add(-time.Hour)}))
	require.NoError(t, db.CreateSession(ctx, &model.Session{ID: "live", UserID: alice.ID, CreatedAt: now, ExpiresAt: now.Add(time.Hour)}))

	n, err := db.DeleteExpiredSessions(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = db.GetSession(ctx, "old")
	assert.True(t, errors.Is(err, apperror.ErrNotFound))
	_, err = db.GetSession(ctx, "live")
	assert.NoError(t, err)
}
