package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/d60-Lab/anonrelay/internal/repository"
)

func TestAdmin_BanUnban(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	rec, err := env.admin.BanUser(ctx, 5, 100, "")
	require.NoError(t, err)
	assert.Equal(t, "manual", rec.Reason)

	_, err = env.admin.BanUser(ctx, 5, 101, "again")
	assert.ErrorIs(t, err, ErrAlreadyBanned)
	rec, err = env.reg.GetBan(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, int64(100), rec.BannedBy)

	_, err = env.admin.BanUser(ctx, 0, 100, "")
	assert.ErrorIs(t, err, repository.ErrInvalidUserID)

	require.NoError(t, env.admin.UnbanUser(ctx, 5, 100))
	assert.ErrorIs(t, env.admin.UnbanUser(ctx, 5, 100), ErrNotBanned)
}

func TestAdmin_PendingFallsBackToSnapshot(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, 100)

	_, t1 := env.send(t, 1, 2, "first")
	_, t2 := env.send(t, 3, 4, "second")
	r1, err := env.moderation.FileReport(ctx, 2, t1)
	require.NoError(t, err)
	r2, err := env.moderation.FileReport(ctx, 4, t2)
	require.NoError(t, err)

	_, err = env.reg.DeleteMessagesOf(ctx, 4)
	require.NoError(t, err)

	pending, err := env.admin.Pending(ctx, 0)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, r1.Report.ID, pending[0].ID)
	assert.Equal(t, "first", pending[0].Text)
	assert.Equal(t, r2.Report.ID, pending[1].ID)
	assert.Equal(t, "second", pending[1].Text)

	st, err := env.admin.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), st.Reports["pending"])
	assert.Equal(t, int64(1), st.Messages)
}
