package service

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/d60-Lab/anonrelay/internal/messenger"
	"github.com/d60-Lab/anonrelay/internal/model"
)

func TestEndToEnd_SendReportBan(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, 100)

	// A(1) -> B(2) "hello"
	msgID, transportID := env.send(t, 1, 2, "hello")
	msg, err := env.reg.GetMessage(ctx, msgID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), msg.ReceiverID)
	require.NotNil(t, msg.SenderID)
	assert.Equal(t, int64(1), *msg.SenderID)

	// B 回复该投递并举报
	res, err := env.moderation.FileReport(ctx, 2, transportID)
	require.NoError(t, err)
	assert.True(t, res.Notified)
	assert.Equal(t, model.ReportPending, res.Report.Status)
	require.NotNil(t, res.Report.ReportedUserID)
	assert.Equal(t, int64(1), *res.Report.ReportedUserID)
	assert.Equal(t, "hello", res.Report.ContentSnapshot)

	notices := env.review.Notices()
	require.Len(t, notices, 1)
	assert.Equal(t, int64(100), notices[0].Target)
	assert.Equal(t, messenger.ReportActions(res.Report.ID), notices[0].Actions)

	outcome, err := env.moderation.AdminBan(ctx, res.Report.ID, 100)
	require.NoError(t, err)
	assert.Equal(t, OutcomeBanned, outcome)

	ban, err := env.reg.GetBan(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(100), ban.BannedBy)
	assert.Equal(t, "reported", ban.Reason)

	rep, err := env.reg.GetReport(ctx, res.Report.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ReportBanned, rep.Status)
	require.NotNil(t, rep.ReviewedAt)
	reviewed := *rep.ReviewedAt

	outcome, err = env.moderation.AdminDismiss(ctx, res.Report.ID, 101)
	require.NoError(t, err)
	assert.Equal(t, OutcomeAlreadyHandled, outcome)

	rep, err = env.reg.GetReport(ctx, res.Report.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ReportBanned, rep.Status)
	assert.True(t, reviewed.Equal(*rep.ReviewedAt))

	// 被封禁的发送者不能再发消息
	sender := int64(1)
	_, err = env.relay.Send(ctx, SendRequest{ReceiverID: 2, SenderID: &sender, Text: "again"})
	assert.ErrorIs(t, err, ErrBanned)
}

func TestFileReport_NotEligible(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, 100)

	t.Run("no delivery mapping", func(t *testing.T) {
		_, err := env.moderation.FileReport(ctx, 2, 424242)
		assert.ErrorIs(t, err, ErrNotEligible)
	})

	t.Run("mapping belongs to another receiver", func(t *testing.T) {
		_, transportID := env.send(t, 1, 2, "hello")
		_, err := env.moderation.FileReport(ctx, 3, transportID)
		assert.ErrorIs(t, err, ErrNotEligible)
	})

	t.Run("sender unknown", func(t *testing.T) {
		_, transportID := env.send(t, 0, 2, "anon")
		_, err := env.moderation.FileReport(ctx, 2, transportID)
		assert.ErrorIs(t, err, ErrSenderUnknown)
		assert.ErrorIs(t, err, ErrNotEligible)
	})

	t.Run("message deleted", func(t *testing.T) {
		_, transportID := env.send(t, 1, 5, "gone")
		_, err := env.reg.DeleteMessagesOf(ctx, 5)
		require.NoError(t, err)
		_, err = env.moderation.FileReport(ctx, 5, transportID)
		assert.ErrorIs(t, err, ErrNotEligible)
	})

	pending, err := env.reg.ListPendingReports(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestFileReport_NotifyFailureKeepsReport(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, 100, 101)
	env.review.Fail(100, 101)

	_, transportID := env.send(t, 1, 2, "hello")
	res, err := env.moderation.FileReport(ctx, 2, transportID)
	require.NoError(t, err)
	assert.False(t, res.Notified)

	rep, err := env.reg.GetReport(ctx, res.Report.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ReportPending, rep.Status)
}

func TestFileReport_OfflineTransportNotNotified(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, 100)
	offline := messenger.NewOffline()
	env.relay = NewRelay(env.reg, offline, 0)
	env.moderation = NewModeration(env.reg, NewNotifier(offline, 0), []int64{100}, "reported")

	sender := int64(1)
	res, err := env.relay.Send(ctx, SendRequest{ReceiverID: 2, SenderID: &sender, Text: "hello"})
	require.NoError(t, err)
	require.True(t, res.Delivered)

	filed, err := env.moderation.FileReport(ctx, 2, res.TransportMessageID)
	require.NoError(t, err)
	assert.False(t, filed.Notified)
	assert.Equal(t, model.ReportPending, filed.Report.Status)
}

func TestAdminBan_AlreadyBannedPreservesRecord(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, 100)

	_, transportID := env.send(t, 1, 2, "hello")
	res, err := env.moderation.FileReport(ctx, 2, transportID)
	require.NoError(t, err)

	// 举报之后、处理之前被独立封禁
	require.NoError(t, env.reg.Ban(ctx, 1, 77, "earlier ban"))

	outcome, err := env.moderation.AdminBan(ctx, res.Report.ID, 100)
	require.NoError(t, err)
	assert.Equal(t, OutcomeAlreadyBanned, outcome)

	ban, err := env.reg.GetBan(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(77), ban.BannedBy)
	assert.Equal(t, "earlier ban", ban.Reason)

	rep, err := env.reg.GetReport(ctx, res.Report.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ReportAlreadyBanned, rep.Status)
}

func TestAdminActions_NotFound(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.moderation.AdminBan(context.Background(), 999, 100)
	assert.ErrorIs(t, err, ErrReportNotFound)
	_, err = env.moderation.AdminDismiss(context.Background(), 999, 100)
	assert.ErrorIs(t, err, ErrReportNotFound)
}

func TestHandleAction(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, 100)

	_, transportID := env.send(t, 1, 2, "hello")
	res, err := env.moderation.FileReport(ctx, 2, transportID)
	require.NoError(t, err)

	act, err := messenger.ParseAction(messenger.Action{Verb: messenger.VerbDismiss, ReportID: res.Report.ID}.Data())
	require.NoError(t, err)
	outcome, err := env.moderation.HandleAction(ctx, 100, act)
	require.NoError(t, err)
	assert.Equal(t, OutcomeDismissed, outcome)

	banned, err := env.reg.IsBanned(ctx, 1)
	require.NoError(t, err)
	assert.False(t, banned)

	_, err = env.moderation.HandleAction(ctx, 100, messenger.Action{Verb: "delete", ReportID: res.Report.ID})
	assert.ErrorIs(t, err, messenger.ErrInvalidAction)
}

func TestAdminBanDismissRace(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, 100)

	const rounds = 10
	for r := 0; r < rounds; r++ {
		_, transportID := env.send(t, int64(10+r), 2, "race")
		res, err := env.moderation.FileReport(ctx, 2, transportID)
		require.NoError(t, err)

		const actors = 8
		outcomes := make([]Outcome, actors)
		var wg sync.WaitGroup
		for i := 0; i < actors; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				var err error
				if i%2 == 0 {
					outcomes[i], err = env.moderation.AdminBan(ctx, res.Report.ID, int64(100+i))
				} else {
					outcomes[i], err = env.moderation.AdminDismiss(ctx, res.Report.ID, int64(100+i))
				}
				assert.NoError(t, err)
			}(i)
		}
		wg.Wait()

		winners := 0
		var winner Outcome
		for _, o := range outcomes {
			if o != OutcomeAlreadyHandled {
				winners++
				winner = o
			}
		}
		require.Equal(t, 1, winners, "exactly one action must win")

		rep, err := env.reg.GetReport(ctx, res.Report.ID)
		require.NoError(t, err)
		banned, err := env.reg.IsBanned(ctx, int64(10+r))
		require.NoError(t, err)
		switch winner {
		case OutcomeBanned:
			assert.Equal(t, model.ReportBanned, rep.Status)
			assert.True(t, banned)
		case OutcomeDismissed:
			assert.Equal(t, model.ReportDismissed, rep.Status)
			assert.False(t, banned, "a losing ban must roll back")
		default:
			t.Fatalf("unexpected winner %q", winner)
		}
	}
}

func TestUnbanAll_LeavesReports(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, 100)

	_, transportID := env.send(t, 1, 2, "hello")
	res, err := env.moderation.FileReport(ctx, 2, transportID)
	require.NoError(t, err)
	_, err = env.moderation.AdminBan(ctx, res.Report.ID, 100)
	require.NoError(t, err)
	require.NoError(t, env.reg.Ban(ctx, 9, 100, "x"))

	n, err := env.moderation.UnbanAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	rep, err := env.reg.GetReport(ctx, res.Report.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ReportBanned, rep.Status)

	_, err = env.relay.Send(ctx, SendRequest{ReceiverID: 2, SenderID: res.Report.ReportedUserID, Text: "back"})
	assert.NoError(t, err)
}
