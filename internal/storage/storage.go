// Package storage persists all attendance state behind a single capability
// interface with two interchangeable engines: an embedded SQLite file and a
// networked PostgreSQL server. Both expose the same logical schema and the
// same uniqueness constraints, so the behavioral contract is identical
// regardless of which engine is configured.
//
// Expected conflicts (duplicate check-in, duplicate award, losing the
// daily-earliest race) surface as a false boolean, never as an error: the
// engines convert unique-constraint violations into "not applied". Any other
// storage failure is returned as-is and is fatal to the operation.
package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"telegram-zao-bot/internal/model"
)

// Store is the capability set both engines implement.
type Store interface {
	// Init runs schema migrations. Additive and idempotent: safe to run
	// against an already-migrated database.
	Init(ctx context.Context) error
	Close()

	// --- users/chats ---
	UpsertUserAndChat(ctx context.Context, user model.User, chat model.Chat, updatedAt time.Time) error
	ChatTitle(ctx context.Context, chatID int64) (string, error)

	// --- sessions ---

	// CheckIn inserts a session for the business day of ts. Returns false
	// when a session already exists for that (chat, user, day).
	CheckIn(ctx context.Context, chatID, userID int64, ts time.Time) (bool, error)
	// CheckOut closes the open session of the current business day, clamping
	// the check-out to the check-in time when ts precedes it. Returns nil
	// when no open session exists for today; an open session left over from
	// an earlier business day is deliberately not touched.
	CheckOut(ctx context.Context, chatID, userID int64, ts time.Time) (*model.CheckOutResult, error)
	// GetOpenSession returns the newest open session, restricted to a
	// business day when day is non-empty. Nil when there is none.
	GetOpenSession(ctx context.Context, chatID, userID int64, day string) (*model.OpenSession, error)
	SessionTodayExists(ctx context.Context, chatID, userID int64, day string) (bool, error)
	SessionTodayCompleted(ctx context.Context, chatID, userID int64, day string) (bool, error)
	// TodayCheckinPosition ranks a session within its (chat, day) by
	// (check_in ASC, id ASC); the id tie-break disambiguates near-simultaneous
	// check-ins. Never below 1.
	TodayCheckinPosition(ctx context.Context, chatID, sessionID int64, checkIn time.Time, day string) (int, error)
	UserCheckinDays(ctx context.Context, userID int64, startDay, endDay string) (map[string]struct{}, error)

	// --- leaderboard ---
	Leaderboard(ctx context.Context, chatID int64, mode model.RankMode, now time.Time) ([]model.RankEntry, error)
	LeaderboardGlobal(ctx context.Context, mode model.RankMode, now time.Time) ([]model.RankEntry, error)
	OpenUserIDs(ctx context.Context, chatID int64, day string) (map[int64]struct{}, error)
	OpenUserIDsGlobal(ctx context.Context, day string) (map[int64]struct{}, error)

	// --- achievements ---

	// SetDailyEarliest records the day's first check-in; exactly one caller
	// per (chat, day) wins. Returns false for everyone else.
	SetDailyEarliest(ctx context.Context, chatID int64, day string, userID, sessionID int64, checkIn, createdAt time.Time) (bool, error)
	// UpdateStreak increments when day is exactly one calendar day after the
	// stored last day, otherwise resets to 1. Read and write happen in one
	// transaction.
	UpdateStreak(ctx context.Context, chatID, userID int64, key, day string, createdAt time.Time) (int, error)
	GetStreak(ctx context.Context, chatID, userID int64, key string) (int, error)
	BestStreakGlobal(ctx context.Context, userID int64, key string) (model.StreakBest, error)

	// AwardAchievement appends to the ledger and bumps the stat row in one
	// transaction. Returns false when the ledger's dedup constraint for the
	// key rejects the insert (already awarded).
	AwardAchievement(ctx context.Context, chatID, userID int64, key, day string, sessionID int64, createdAt time.Time) (bool, error)
	AchievementStats(ctx context.Context, chatID, userID int64) ([]model.AchievementStat, error)
	AchievementStatsGlobal(ctx context.Context, userID int64) ([]model.AchievementStat, error)
	AchievementCount(ctx context.Context, chatID, userID int64, key string) (int, error)
	AchievementCountGlobal(ctx context.Context, userID int64, key string) (int, error)
	AchievementRank(ctx context.Context, chatID int64, key string, limit int) ([]model.RankEntry, error)
	AchievementRankGlobal(ctx context.Context, key string, limit int) ([]model.RankEntry, error)
	StreakRank(ctx context.Context, chatID int64, key string, limit int) ([]model.RankEntry, error)
	// StreakRankGlobal picks each user's single best-performing chat.
	StreakRankGlobal(ctx context.Context, key string, limit int) ([]model.RankEntry, error)

	// --- wake reminders ---
	CreateReminder(ctx context.Context, chatID, userID int64, wakeTime string, nextTrigger time.Time, repeat bool, createdAt time.Time) (int64, error)
	PendingReminders(ctx context.Context, now time.Time) ([]model.WakeReminder, error)
	UserReminders(ctx context.Context, chatID, userID int64) ([]model.WakeReminder, error)
	UpdateReminderNextTrigger(ctx context.Context, reminderID int64, nextTrigger time.Time) error
	DeleteReminder(ctx context.Context, reminderID int64) error
	DeleteUserReminders(ctx context.Context, chatID, userID int64) error

	// --- russian roulette ---
	ActiveRoulette(ctx context.Context, chatID int64) (*model.RouletteGame, error)
	CreateRoulette(ctx context.Context, chatID int64, chambers, bulletPosition int, createdBy int64, createdAt time.Time) error
	UpdateRoulettePosition(ctx context.Context, chatID int64, position int) error
	DeleteRoulette(ctx context.Context, chatID int64) error
	RecordRouletteAttempt(ctx context.Context, chatID, userID int64, position int, result string, createdAt time.Time) error

	// --- rock paper scissors ---
	CreateRSPGame(ctx context.Context, chatID, challengerID, opponentID, messageID int64, createdAt time.Time) (int64, error)
	GetRSPGame(ctx context.Context, gameID int64) (*model.RSPGame, error)
	PendingRSPGame(ctx context.Context, chatID, userID int64) (*model.RSPGame, error)
	UpdateRSPChoice(ctx context.Context, gameID, userID int64, choice string) error
	CompleteRSPGame(ctx context.Context, gameID, winnerID int64) error
	DeleteRSPGame(ctx context.Context, gameID int64) error
	RSPStats(ctx context.Context, chatID, userID int64) (model.RSPStats, error)
	RSPStatsGlobal(ctx context.Context, userID int64) (model.RSPStats, error)
}

// Config selects and parameterizes the engine.
type Config struct {
	// Engine is "sqlite" or "postgres".
	Engine string
	// CutoffHour is the business-day boundary applied by every operation.
	CutoffHour int

	// SQLite
	Path string

	// Postgres
	DSN             string
	PoolSize        int
	ConnectTimeout  time.Duration
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// Open creates the configured engine. The caller still has to Init it.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Engine {
	case "", "sqlite":
		return OpenSQLite(cfg)
	case "postgres":
		return OpenPostgres(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown storage engine %q", cfg.Engine)
	}
}

// displayName renders a leaderboard name the way the bot addresses people:
// a bare username gets an @ prefix, an empty name falls back to the id.
func displayName(name string, userID int64) string {
	nm := strings.TrimSpace(name)
	if nm == "" {
		return fmt.Sprintf("%d", userID)
	}
	if !strings.Contains(nm, " ") && !strings.HasPrefix(nm, "@") && !isDigits(nm) {
		nm = "@" + nm
	}
	return nm
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}
