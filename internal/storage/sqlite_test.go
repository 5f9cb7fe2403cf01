package storage

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"telegram-zao-bot/internal/model"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	store, err := OpenSQLite(Config{Path: path, CutoffHour: 4})
	require.NoError(t, err)
	t.Cleanup(store.Close)
	require.NoError(t, store.Init(context.Background()))
	return store
}

// seed satisfies the foreign keys before session rows are written.
func seed(t *testing.T, store Store, chatID int64, users ...model.User) {
	t.Helper()
	ctx := context.Background()
	chat := model.Chat{ChatID: chatID, Title: "测试群", Type: "supergroup"}
	for _, u := range users {
		require.NoError(t, store.UpsertUserAndChat(ctx, u, chat, time.Now()))
	}
}

func user(id int64, username string) model.User {
	return model.User{UserID: id, Username: username, FirstName: "User"}
}

var testDay = time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC) // a Monday

func at(hour, minute int) time.Time {
	return testDay.Add(time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute)
}

func TestCheckInDuplicate(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seed(t, store, 100, user(1, "alice"))

	ok, err := store.CheckIn(ctx, 100, 1, at(8, 0))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.CheckIn(ctx, 100, 1, at(9, 0))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCheckInConcurrent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seed(t, store, 100, user(1, "alice"))

	const n = 10
	results := make([]bool, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ok, err := store.CheckIn(ctx, 100, 1, at(8, i))
			require.NoError(t, err)
			results[i] = ok
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, ok := range results {
		if ok {
			wins++
		}
	}
	assert.Equal(t, 1, wins)
}

func TestCheckInAcrossCutoff(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seed(t, store, 100, user(1, "alice"))

	// 23:50 and next-day 03:30 share a business day
	ok, err := store.CheckIn(ctx, 100, 1, at(23, 50))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.CheckIn(ctx, 100, 1, testDay.AddDate(0, 0, 1).Add(3*time.Hour+30*time.Minute))
	require.NoError(t, err)
	assert.False(t, ok)

	// 05:00 next day is a fresh business day
	ok, err = store.CheckIn(ctx, 100, 1, testDay.AddDate(0, 0, 1).Add(5*time.Hour))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCheckOut(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seed(t, store, 100, user(1, "alice"))

	checkIn := at(8, 0)
	ok, err := store.CheckIn(ctx, 100, 1, checkIn)
	require.NoError(t, err)
	require.True(t, ok)

	res, err := store.CheckOut(ctx, 100, 1, at(16, 0))
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, 8*time.Hour, res.Duration)
	assert.Equal(t, checkIn.Unix(), res.CheckIn.Unix())

	// already closed
	res, err = store.CheckOut(ctx, 100, 1, at(17, 0))
	require.NoError(t, err)
	assert.Nil(t, res)
}

func TestCheckOutClampsToCheckIn(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seed(t, store, 100, user(1, "alice"))

	ok, err := store.CheckIn(ctx, 100, 1, at(8, 0))
	require.NoError(t, err)
	require.True(t, ok)

	res, err := store.CheckOut(ctx, 100, 1, at(7, 0))
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, time.Duration(0), res.Duration)
	assert.Equal(t, res.CheckIn.Unix(), res.CheckOut.Unix())
}

func TestCheckOutIgnoresStaleOpenSession(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seed(t, store, 100, user(1, "alice"))

	// open session from two days ago, never closed
	stale := testDay.AddDate(0, 0, -2).Add(9 * time.Hour)
	ok, err := store.CheckIn(ctx, 100, 1, stale)
	require.NoError(t, err)
	require.True(t, ok)

	res, err := store.CheckOut(ctx, 100, 1, at(18, 0))
	require.NoError(t, err)
	assert.Nil(t, res)

	// the stale session is still open
	open, err := store.GetOpenSession(ctx, 100, 1, "")
	require.NoError(t, err)
	require.NotNil(t, open)
	assert.Equal(t, stale.Unix(), open.CheckIn.Unix())
}

func TestSessionTodayFlags(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seed(t, store, 100, user(1, "alice"))

	exists, err := store.SessionTodayExists(ctx, 100, 1, "2025-03-10")
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = store.CheckIn(ctx, 100, 1, at(8, 0))
	require.NoError(t, err)

	exists, err = store.SessionTodayExists(ctx, 100, 1, "2025-03-10")
	require.NoError(t, err)
	assert.True(t, exists)

	completed, err := store.SessionTodayCompleted(ctx, 100, 1, "2025-03-10")
	require.NoError(t, err)
	assert.False(t, completed)

	_, err = store.CheckOut(ctx, 100, 1, at(16, 0))
	require.NoError(t, err)

	completed, err = store.SessionTodayCompleted(ctx, 100, 1, "2025-03-10")
	require.NoError(t, err)
	assert.True(t, completed)
}

func TestTodayCheckinPosition(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seed(t, store, 100, user(1, "alice"), user(2, "bob"), user(3, "carol"))

	for i, uid := range []int64{1, 2, 3} {
		ok, err := store.CheckIn(ctx, 100, uid, at(7, i*10))
		require.NoError(t, err)
		require.True(t, ok)
	}

	for i, uid := range []int64{1, 2, 3} {
		open, err := store.GetOpenSession(ctx, 100, uid, "2025-03-10")
		require.NoError(t, err)
		require.NotNil(t, open)
		pos, err := store.TodayCheckinPosition(ctx, 100, open.SessionID, open.CheckIn, "2025-03-10")
		require.NoError(t, err)
		assert.Equal(t, i+1, pos)
	}
}

func TestUserCheckinDays(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seed(t, store, 100, user(1, "alice"))

	for _, d := range []int{0, 1, 3} {
		_, err := store.CheckIn(ctx, 100, 1, testDay.AddDate(0, 0, d).Add(8*time.Hour))
		require.NoError(t, err)
	}

	days, err := store.UserCheckinDays(ctx, 1, "2025-03-10", "2025-03-16")
	require.NoError(t, err)
	assert.Len(t, days, 3)
	assert.Contains(t, days, "2025-03-10")
	assert.Contains(t, days, "2025-03-11")
	assert.Contains(t, days, "2025-03-13")
}

func TestDailyEarliestRace(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seed(t, store, 100, user(1, "alice"), user(2, "bob"))

	const n = 8
	results := make([]bool, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			uid := int64(i%2 + 1)
			won, err := store.SetDailyEarliest(ctx, 100, "2025-03-10", uid, int64(i+1), at(7, 0), at(7, 0))
			require.NoError(t, err)
			results[i] = won
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, won := range results {
		if won {
			wins++
		}
	}
	assert.Equal(t, 1, wins)
}

func TestUpdateStreak(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seed(t, store, 100, user(1, "alice"))

	streak, err := store.UpdateStreak(ctx, 100, 1, "earliest", "2025-03-10", at(7, 0))
	require.NoError(t, err)
	assert.Equal(t, 1, streak)

	streak, err = store.UpdateStreak(ctx, 100, 1, "earliest", "2025-03-11", at(7, 0))
	require.NoError(t, err)
	assert.Equal(t, 2, streak)

	streak, err = store.UpdateStreak(ctx, 100, 1, "earliest", "2025-03-12", at(7, 0))
	require.NoError(t, err)
	assert.Equal(t, 3, streak)

	// a gap resets to 1
	streak, err = store.UpdateStreak(ctx, 100, 1, "earliest", "2025-03-15", at(7, 0))
	require.NoError(t, err)
	assert.Equal(t, 1, streak)

	got, err := store.GetStreak(ctx, 100, 1, "earliest")
	require.NoError(t, err)
	assert.Equal(t, 1, got)
}

func TestBestStreakGlobal(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seed(t, store, 100, user(1, "alice"))
	seed(t, store, 200, user(1, "alice"))

	_, err := store.UpdateStreak(ctx, 100, 1, "earliest", "2025-03-10", at(7, 0))
	require.NoError(t, err)
	for _, d := range []string{"2025-03-10", "2025-03-11", "2025-03-12"} {
		_, err := store.UpdateStreak(ctx, 200, 1, "earliest", d, at(7, 0))
		require.NoError(t, err)
	}

	best, err := store.BestStreakGlobal(ctx, 1, "earliest")
	require.NoError(t, err)
	assert.Equal(t, 3, best.Streak)
	assert.Equal(t, int64(200), best.ChatID)

	// unknown user gets a zero value, not an error
	best, err = store.BestStreakGlobal(ctx, 999, "earliest")
	require.NoError(t, err)
	assert.Zero(t, best.Streak)
}

func TestAwardAchievementDedup(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seed(t, store, 100, user(1, "alice"), user(2, "bob"))

	// daily_earliest is unique per (chat, day) across users
	newly, err := store.AwardAchievement(ctx, 100, 1, model.AchDailyEarliest, "2025-03-10", 0, at(7, 0))
	require.NoError(t, err)
	assert.True(t, newly)

	newly, err = store.AwardAchievement(ctx, 100, 2, model.AchDailyEarliest, "2025-03-10", 0, at(7, 5))
	require.NoError(t, err)
	assert.False(t, newly)

	// next day is a fresh slot
	newly, err = store.AwardAchievement(ctx, 100, 1, model.AchDailyEarliest, "2025-03-11", 0, at(7, 0))
	require.NoError(t, err)
	assert.True(t, newly)

	// session-keyed awards are unique per session
	_, err = store.CheckIn(ctx, 100, 1, at(8, 0))
	require.NoError(t, err)
	open, err := store.GetOpenSession(ctx, 100, 1, "2025-03-10")
	require.NoError(t, err)
	require.NotNil(t, open)

	newly, err = store.AwardAchievement(ctx, 100, 1, model.AchLongday12h, "", open.SessionID, at(23, 0))
	require.NoError(t, err)
	assert.True(t, newly)

	newly, err = store.AwardAchievement(ctx, 100, 1, model.AchLongday12h, "", open.SessionID, at(23, 0))
	require.NoError(t, err)
	assert.False(t, newly)
}

func TestAchievementStatsAccumulate(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seed(t, store, 100, user(1, "alice"))

	for _, d := range []string{"2025-03-10", "2025-03-11", "2025-03-12"} {
		newly, err := store.AwardAchievement(ctx, 100, 1, model.AchDailyEarliest, d, 0, at(7, 0))
		require.NoError(t, err)
		require.True(t, newly)
	}
	// a rejected insert must not bump the count
	newly, err := store.AwardAchievement(ctx, 100, 1, model.AchDailyEarliest, "2025-03-12", 0, at(7, 0))
	require.NoError(t, err)
	require.False(t, newly)

	count, err := store.AchievementCount(ctx, 100, 1, model.AchDailyEarliest)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	stats, err := store.AchievementStats(ctx, 100, 1)
	require.NoError(t, err)
	require.Len(t, stats, 1)
	assert.Equal(t, model.AchDailyEarliest, stats[0].Key)
	assert.Equal(t, 3, stats[0].Count)
}

func TestLeaderboardAllMode(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seed(t, store, 100, user(1, "alice"), user(2, "bob"))

	// alice: 8h completed; bob: 2h completed plus an open session next day
	_, err := store.CheckIn(ctx, 100, 1, at(8, 0))
	require.NoError(t, err)
	_, err = store.CheckOut(ctx, 100, 1, at(16, 0))
	require.NoError(t, err)

	_, err = store.CheckIn(ctx, 100, 2, at(9, 0))
	require.NoError(t, err)
	_, err = store.CheckOut(ctx, 100, 2, at(11, 0))
	require.NoError(t, err)
	_, err = store.CheckIn(ctx, 100, 2, testDay.AddDate(0, 0, 1).Add(8*time.Hour))
	require.NoError(t, err)

	entries, err := store.Leaderboard(ctx, 100, model.RankAll, at(18, 0))
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, int64(1), entries[0].UserID)
	assert.Equal(t, "@alice", entries[0].Name)
	assert.InDelta(t, 8*3600, entries[0].Score, 1)
	assert.Equal(t, int64(2), entries[1].UserID)
	assert.InDelta(t, 2*3600, entries[1].Score, 1)
}

func TestLeaderboardTodayValuesOpenSessions(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seed(t, store, 100, user(1, "alice"), user(2, "bob"))

	// alice open since 08:00, bob completed 09:00-10:00
	_, err := store.CheckIn(ctx, 100, 1, at(8, 0))
	require.NoError(t, err)
	_, err = store.CheckIn(ctx, 100, 2, at(9, 0))
	require.NoError(t, err)
	_, err = store.CheckOut(ctx, 100, 2, at(10, 0))
	require.NoError(t, err)

	now := at(12, 0)
	entries, err := store.Leaderboard(ctx, 100, model.RankToday, now)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, int64(1), entries[0].UserID)
	assert.InDelta(t, 4*3600, entries[0].Score, 1)
	assert.Equal(t, int64(2), entries[1].UserID)
	assert.InDelta(t, 3600, entries[1].Score, 1)

	open, err := store.OpenUserIDs(ctx, 100, "")
	require.NoError(t, err)
	assert.Contains(t, open, int64(1))
	assert.NotContains(t, open, int64(2))
}

func TestLeaderboardTodayExcludesOtherDays(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seed(t, store, 100, user(1, "alice"))

	_, err := store.CheckIn(ctx, 100, 1, testDay.AddDate(0, 0, -1).Add(8*time.Hour))
	require.NoError(t, err)
	_, err = store.CheckOut(ctx, 100, 1, testDay.AddDate(0, 0, -1).Add(16*time.Hour))
	require.NoError(t, err)

	entries, err := store.Leaderboard(ctx, 100, model.RankToday, at(12, 0))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestStreakRankGlobalPicksBestChat(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seed(t, store, 100, user(1, "alice"), user(2, "bob"))
	seed(t, store, 200, user(1, "alice"))

	for _, d := range []string{"2025-03-10", "2025-03-11"} {
		_, err := store.UpdateStreak(ctx, 100, 1, "earliest", d, at(7, 0))
		require.NoError(t, err)
	}
	for _, d := range []string{"2025-03-10", "2025-03-11", "2025-03-12"} {
		_, err := store.UpdateStreak(ctx, 200, 1, "earliest", d, at(7, 0))
		require.NoError(t, err)
	}
	_, err := store.UpdateStreak(ctx, 100, 2, "earliest", "2025-03-10", at(7, 0))
	require.NoError(t, err)

	rows, err := store.StreakRankGlobal(ctx, "earliest", 20)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	// alice appears once, with her best chat
	assert.Equal(t, int64(1), rows[0].UserID)
	assert.Equal(t, int64(3), rows[0].Score)
	assert.Equal(t, int64(200), rows[0].ChatID)
	assert.Equal(t, int64(2), rows[1].UserID)
	assert.Equal(t, int64(1), rows[1].Score)
}

func TestReminderLifecycle(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seed(t, store, 100, user(1, "alice"))

	trigger := at(8, 0)
	id, err := store.CreateReminder(ctx, 100, 1, "08:00", trigger, true, at(7, 0))
	require.NoError(t, err)
	assert.Positive(t, id)

	// not due yet
	due, err := store.PendingReminders(ctx, at(7, 30))
	require.NoError(t, err)
	assert.Empty(t, due)

	due, err = store.PendingReminders(ctx, at(8, 1))
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, id, due[0].ID)
	assert.True(t, due[0].Repeat)

	require.NoError(t, store.UpdateReminderNextTrigger(ctx, id, trigger.AddDate(0, 0, 1)))
	due, err = store.PendingReminders(ctx, at(8, 1))
	require.NoError(t, err)
	assert.Empty(t, due)

	list, err := store.UserReminders(ctx, 100, 1)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, store.DeleteUserReminders(ctx, 100, 1))
	list, err = store.UserReminders(ctx, 100, 1)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestRouletteLifecycle(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seed(t, store, 100, user(1, "alice"))

	game, err := store.ActiveRoulette(ctx, 100)
	require.NoError(t, err)
	assert.Nil(t, game)

	require.NoError(t, store.CreateRoulette(ctx, 100, 6, 3, 1, at(12, 0)))

	game, err = store.ActiveRoulette(ctx, 100)
	require.NoError(t, err)
	require.NotNil(t, game)
	assert.Equal(t, 6, game.Chambers)
	assert.Equal(t, 3, game.BulletPosition)
	assert.Equal(t, 0, game.CurrentPosition)

	require.NoError(t, store.UpdateRoulettePosition(ctx, 100, 1))
	require.NoError(t, store.RecordRouletteAttempt(ctx, 100, 1, 1, model.RouletteResultSafe, at(12, 1)))

	game, err = store.ActiveRoulette(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, 1, game.CurrentPosition)

	require.NoError(t, store.DeleteRoulette(ctx, 100))
	game, err = store.ActiveRoulette(ctx, 100)
	require.NoError(t, err)
	assert.Nil(t, game)
}

func TestRSPGameFlow(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seed(t, store, 100, user(1, "alice"), user(2, "bob"))

	id, err := store.CreateRSPGame(ctx, 100, 1, 2, 555, at(12, 0))
	require.NoError(t, err)

	pending, err := store.PendingRSPGame(ctx, 100, 2)
	require.NoError(t, err)
	require.NotNil(t, pending)
	assert.Equal(t, id, pending.ID)
	assert.Equal(t, model.RSPStatusPending, pending.Status)

	require.NoError(t, store.UpdateRSPChoice(ctx, id, 1, model.RSPRock))
	require.NoError(t, store.UpdateRSPChoice(ctx, id, 2, model.RSPScissors))

	game, err := store.GetRSPGame(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.RSPRock, game.ChallengerChoice)
	assert.Equal(t, model.RSPScissors, game.OpponentChoice)

	require.NoError(t, store.CompleteRSPGame(ctx, id, 1))

	pending, err = store.PendingRSPGame(ctx, 100, 1)
	require.NoError(t, err)
	assert.Nil(t, pending)

	stats, err := store.RSPStats(ctx, 100, 1)
	require.NoError(t, err)
	assert.Equal(t, model.RSPStats{Total: 1, Wins: 1}, stats)

	stats, err = store.RSPStats(ctx, 100, 2)
	require.NoError(t, err)
	assert.Equal(t, model.RSPStats{Total: 1, Losses: 1}, stats)

	// a draw completes with no winner
	id2, err := store.CreateRSPGame(ctx, 100, 1, 2, 556, at(13, 0))
	require.NoError(t, err)
	require.NoError(t, store.CompleteRSPGame(ctx, id2, 0))

	stats, err = store.RSPStatsGlobal(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, model.RSPStats{Total: 2, Wins: 1, Draws: 1}, stats)
}

func TestChatTitle(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seed(t, store, 100, user(1, "alice"))

	title, err := store.ChatTitle(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, "测试群", title)

	title, err = store.ChatTitle(ctx, 404)
	require.NoError(t, err)
	assert.Empty(t, title)
}
