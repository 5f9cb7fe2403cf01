package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"telegram-zao-bot/internal/model"
)

func awardKeys(awards []Award) []string {
	keys := make([]string, 0, len(awards))
	for _, a := range awards {
		keys = append(keys, a.Key)
	}
	return keys
}

// checkInAt runs the full check-in path and returns the session outcome.
func checkInAt(t *testing.T, sessions *SessionService, chatID, userID int64, ts time.Time) *CheckInOutcome {
	t.Helper()
	out, err := sessions.CheckIn(context.Background(), chatID, userID, ts)
	require.NoError(t, err)
	require.Equal(t, CheckInOK, out.Status)
	return out
}

func TestOnCheckInDailyEarliest(t *testing.T) {
	store := newStore(t)
	seedIdentity(t, store, 100, 1, 2)
	sessions := NewSessionService(store, 4)
	ach := NewAchievementService(store, 4, false)
	ctx := context.Background()

	first := checkInAt(t, sessions, 100, 1, mondayAt(7, 0))
	awards, err := ach.OnCheckIn(ctx, 100, 1, first.SessionID, first.CheckIn, first.Day)
	require.NoError(t, err)
	assert.Equal(t, []string{model.AchDailyEarliest}, awardKeys(awards))

	// the second check-in of the day wins nothing
	second := checkInAt(t, sessions, 100, 2, mondayAt(7, 30))
	awards, err = ach.OnCheckIn(ctx, 100, 2, second.SessionID, second.CheckIn, second.Day)
	require.NoError(t, err)
	assert.Empty(t, awards)

	count, err := store.AchievementCount(ctx, 100, 1, model.AchDailyEarliest)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestOnCheckInStreakSeven(t *testing.T) {
	store := newStore(t)
	seedIdentity(t, store, 100, 1)
	sessions := NewSessionService(store, 4)
	ach := NewAchievementService(store, 4, false)
	ctx := context.Background()

	for d := 0; d < 7; d++ {
		ts := monday.AddDate(0, 0, d).Add(7 * time.Hour)
		out := checkInAt(t, sessions, 100, 1, ts)
		awards, err := ach.OnCheckIn(ctx, 100, 1, out.SessionID, out.CheckIn, out.Day)
		require.NoError(t, err)

		if d < 6 {
			assert.Equal(t, []string{model.AchDailyEarliest}, awardKeys(awards), "day %d", d)
			continue
		}
		require.Len(t, awards, 2, "seventh consecutive day")
		assert.Equal(t, model.AchDailyEarliest, awards[0].Key)
		assert.Equal(t, model.AchStreakEarliest7, awards[1].Key)
		assert.Equal(t, 7, awards[1].Streak)
	}

	streak, err := store.GetStreak(ctx, 100, 1, model.StreakKeyEarliest)
	require.NoError(t, err)
	assert.Equal(t, 7, streak)
}

func TestOnCheckOutOntimeWindow(t *testing.T) {
	tests := []struct {
		name     string
		duration time.Duration
		awarded  bool
	}{
		{"exactly 8h", 8 * time.Hour, true},
		{"59s over", 8*time.Hour + 59*time.Second, true},
		{"60s under", 8*time.Hour - 60*time.Second, true},
		{"61s over", 8*time.Hour + 61*time.Second, false},
		{"well under", 7 * time.Hour, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newStore(t)
			seedIdentity(t, store, 100, 1)
			sessions := NewSessionService(store, 4)
			ach := NewAchievementService(store, 4, false)
			ctx := context.Background()

			out := checkInAt(t, sessions, 100, 1, mondayAt(8, 0))
			res, err := sessions.CheckOut(ctx, 100, 1, mondayAt(8, 0).Add(tt.duration))
			require.NoError(t, err)
			require.Equal(t, CheckOutOK, res.Status)
			_ = out

			awards, err := ach.OnCheckOut(ctx, 100, 1, res.Result)
			require.NoError(t, err)
			if tt.awarded {
				assert.Equal(t, []string{model.AchOntime8h}, awardKeys(awards))
			} else {
				assert.Empty(t, awards)
			}
		})
	}
}

func TestOnCheckOutOntimeOncePerChat(t *testing.T) {
	store := newStore(t)
	seedIdentity(t, store, 100, 1)
	sessions := NewSessionService(store, 4)
	ach := NewAchievementService(store, 4, false)
	ctx := context.Background()

	// qualifying session on Monday
	checkInAt(t, sessions, 100, 1, mondayAt(8, 0))
	res, err := sessions.CheckOut(ctx, 100, 1, mondayAt(16, 0))
	require.NoError(t, err)
	awards, err := ach.OnCheckOut(ctx, 100, 1, res.Result)
	require.NoError(t, err)
	assert.Equal(t, []string{model.AchOntime8h}, awardKeys(awards))

	// qualifying session on Tuesday is not awarded again
	tuesday := monday.AddDate(0, 0, 1)
	checkInAt(t, sessions, 100, 1, tuesday.Add(8*time.Hour))
	res, err = sessions.CheckOut(ctx, 100, 1, tuesday.Add(16*time.Hour))
	require.NoError(t, err)
	awards, err = ach.OnCheckOut(ctx, 100, 1, res.Result)
	require.NoError(t, err)
	assert.Empty(t, awards)
}

func TestOnCheckOutOntimeRepeatable(t *testing.T) {
	store := newStore(t)
	seedIdentity(t, store, 100, 1)
	sessions := NewSessionService(store, 4)
	ach := NewAchievementService(store, 4, true)
	ctx := context.Background()

	for d := 0; d < 2; d++ {
		day := monday.AddDate(0, 0, d)
		checkInAt(t, sessions, 100, 1, day.Add(8*time.Hour))
		res, err := sessions.CheckOut(ctx, 100, 1, day.Add(16*time.Hour))
		require.NoError(t, err)
		awards, err := ach.OnCheckOut(ctx, 100, 1, res.Result)
		require.NoError(t, err)
		assert.Equal(t, []string{model.AchOntime8h}, awardKeys(awards), "day %d", d)
	}

	count, err := store.AchievementCount(ctx, 100, 1, model.AchOntime8h)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestOnCheckOutLongDay(t *testing.T) {
	store := newStore(t)
	seedIdentity(t, store, 100, 1)
	sessions := NewSessionService(store, 4)
	ach := NewAchievementService(store, 4, false)
	ctx := context.Background()

	checkInAt(t, sessions, 100, 1, mondayAt(8, 0))
	res, err := sessions.CheckOut(ctx, 100, 1, mondayAt(20, 30))
	require.NoError(t, err)

	awards, err := ach.OnCheckOut(ctx, 100, 1, res.Result)
	require.NoError(t, err)
	assert.Equal(t, []string{model.AchLongday12h}, awardKeys(awards))

	// exactly 12h does not qualify
	store2 := newStore(t)
	seedIdentity(t, store2, 100, 1)
	sessions2 := NewSessionService(store2, 4)
	ach2 := NewAchievementService(store2, 4, false)

	checkInAt(t, sessions2, 100, 1, mondayAt(8, 0))
	res, err = sessions2.CheckOut(ctx, 100, 1, mondayAt(20, 0))
	require.NoError(t, err)
	awards, err = ach2.OnCheckOut(ctx, 100, 1, res.Result)
	require.NoError(t, err)
	assert.Empty(t, awards)
}

func TestOnCheckOutSkipsWeekends(t *testing.T) {
	store := newStore(t)
	seedIdentity(t, store, 100, 1)
	sessions := NewSessionService(store, 4)
	ach := NewAchievementService(store, 4, false)
	ctx := context.Background()

	saturday := time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC)
	checkInAt(t, sessions, 100, 1, saturday.Add(8*time.Hour))
	res, err := sessions.CheckOut(ctx, 100, 1, saturday.Add(22*time.Hour))
	require.NoError(t, err)
	require.Equal(t, CheckOutOK, res.Status)

	awards, err := ach.OnCheckOut(ctx, 100, 1, res.Result)
	require.NoError(t, err)
	assert.Empty(t, awards)
}

func TestOnCheckOutWeekdayOfCheckIn(t *testing.T) {
	store := newStore(t)
	seedIdentity(t, store, 100, 1)
	sessions := NewSessionService(store, 4)
	ach := NewAchievementService(store, 4, false)
	ctx := context.Background()

	// Friday 20:00 into Saturday 08:30: the session belongs to Friday
	friday := time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC)
	checkInAt(t, sessions, 100, 1, friday.Add(20*time.Hour))
	res, err := sessions.CheckOut(ctx, 100, 1, friday.AddDate(0, 0, 1).Add(8*time.Hour+30*time.Minute))
	require.NoError(t, err)
	require.Equal(t, CheckOutOK, res.Status)

	awards, err := ach.OnCheckOut(ctx, 100, 1, res.Result)
	require.NoError(t, err)
	assert.Equal(t, []string{model.AchLongday12h}, awardKeys(awards))
}
