package service

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"telegram-zao-bot/internal/model"
	"telegram-zao-bot/internal/storage"
)

func newStore(t *testing.T) storage.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	store, err := storage.OpenSQLite(storage.Config{Path: path, CutoffHour: 4})
	require.NoError(t, err)
	t.Cleanup(store.Close)
	require.NoError(t, store.Init(context.Background()))
	return store
}

func seedIdentity(t *testing.T, store storage.Store, chatID int64, userIDs ...int64) {
	t.Helper()
	ctx := context.Background()
	chat := model.Chat{ChatID: chatID, Title: "群", Type: "supergroup"}
	for _, uid := range userIDs {
		u := model.User{UserID: uid, Username: "u", FirstName: "User"}
		require.NoError(t, store.UpsertUserAndChat(ctx, u, chat, time.Now()))
	}
}

var monday = time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)

func mondayAt(hour, minute int) time.Time {
	return monday.Add(time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute)
}

func TestSessionCheckIn(t *testing.T) {
	store := newStore(t)
	seedIdentity(t, store, 100, 1, 2)
	svc := NewSessionService(store, 4)
	ctx := context.Background()

	out, err := svc.CheckIn(ctx, 100, 1, mondayAt(7, 0))
	require.NoError(t, err)
	assert.Equal(t, CheckInOK, out.Status)
	assert.Equal(t, "2025-03-10", out.Day)
	assert.Equal(t, 1, out.Position)
	assert.NotZero(t, out.SessionID)

	out, err = svc.CheckIn(ctx, 100, 2, mondayAt(7, 30))
	require.NoError(t, err)
	assert.Equal(t, CheckInOK, out.Status)
	assert.Equal(t, 2, out.Position)

	out, err = svc.CheckIn(ctx, 100, 1, mondayAt(8, 0))
	require.NoError(t, err)
	assert.Equal(t, CheckInDuplicate, out.Status)
}

func TestSessionCheckOutStatuses(t *testing.T) {
	store := newStore(t)
	seedIdentity(t, store, 100, 1)
	svc := NewSessionService(store, 4)
	ctx := context.Background()

	// nothing to close
	out, err := svc.CheckOut(ctx, 100, 1, mondayAt(18, 0))
	require.NoError(t, err)
	assert.Equal(t, CheckOutNoSession, out.Status)

	// normal close
	_, err = svc.CheckIn(ctx, 100, 1, mondayAt(8, 0))
	require.NoError(t, err)
	out, err = svc.CheckOut(ctx, 100, 1, mondayAt(16, 0))
	require.NoError(t, err)
	assert.Equal(t, CheckOutOK, out.Status)
	require.NotNil(t, out.Result)
	assert.Equal(t, 8*time.Hour, out.Result.Duration)

	// the day is done
	out, err = svc.CheckOut(ctx, 100, 1, mondayAt(17, 0))
	require.NoError(t, err)
	assert.Equal(t, CheckOutDayCompleted, out.Status)
}

func TestSessionCheckOutStaleOpen(t *testing.T) {
	store := newStore(t)
	seedIdentity(t, store, 100, 1)
	svc := NewSessionService(store, 4)
	ctx := context.Background()

	// checked in two days ago, never checked out
	_, err := svc.CheckIn(ctx, 100, 1, monday.AddDate(0, 0, -2).Add(9*time.Hour))
	require.NoError(t, err)

	out, err := svc.CheckOut(ctx, 100, 1, mondayAt(18, 0))
	require.NoError(t, err)
	assert.Equal(t, CheckOutStaleOpen, out.Status)
	assert.Equal(t, "2025-03-08", out.StaleDay)

	// the stale session is untouched
	open, err := svc.Awake(ctx, 100, 1)
	require.NoError(t, err)
	assert.NotNil(t, open)
}

func TestSessionAwake(t *testing.T) {
	store := newStore(t)
	seedIdentity(t, store, 100, 1)
	svc := NewSessionService(store, 4)
	ctx := context.Background()

	open, err := svc.Awake(ctx, 100, 1)
	require.NoError(t, err)
	assert.Nil(t, open)

	_, err = svc.CheckIn(ctx, 100, 1, mondayAt(8, 0))
	require.NoError(t, err)

	open, err = svc.Awake(ctx, 100, 1)
	require.NoError(t, err)
	require.NotNil(t, open)
	assert.Equal(t, mondayAt(8, 0).Unix(), open.CheckIn.Unix())
}
