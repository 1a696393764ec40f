package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/d60-Lab/anonrelay/internal/messenger"
	"github.com/d60-Lab/anonrelay/internal/repository"
	"github.com/d60-Lab/anonrelay/internal/reputation"
)

type testEnv struct {
	reg        *repository.Registry
	main       *messenger.Fake
	review     *messenger.Fake
	relay      *Relay
	moderation *Moderation
	admin      *Admin
	account    *Account
}

func setupTestDB(t testing.TB) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, repository.AutoMigrate(db))
	return db
}

func newTestEnv(t testing.TB, admins ...int64) *testEnv {
	t.Helper()
	tiers := reputation.MustNew([]reputation.Level{{Threshold: 0, Label: "novice"}, {Threshold: 5, Label: "active"}, {Threshold: 20, Label: "star"}}, "max")
	reg := repository.NewRegistry(setupTestDB(t), tiers)
	env := &testEnv{reg: reg, main: messenger.NewFake(), review: messenger.NewFake()}
	env.relay = NewRelay(reg, env.main, 0)
	env.moderation = NewModeration(reg, NewNotifier(env.review, 0), admins, "reported")
	env.admin = NewAdmin(reg, "manual")
	env.account = NewAccount(reg, "@relay_bot")
	return env
}

// send 发送并返回 (messageID, transportID)
func (e *testEnv) send(t testing.TB, from, to int64, text string) (int64, int64) {
	t.Helper()
	var sender *int64
	if from != 0 {
		sender = &from
	}
	res, err := e.relay.Send(context.Background(), SendRequest{ReceiverID: to, SenderID: sender, Text: text})
	require.NoError(t, err)
	require.True(t, res.Delivered)
	return res.MessageID, res.TransportMessageID
}
