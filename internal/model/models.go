// Package model defines the data models for the attendance bot.
package model

import "time"

// User is a Telegram user observed by the bot. Upserted on every event.
type User struct {
	UserID    int64     `db:"user_id"`
	Username  string    `db:"username"`
	FirstName string    `db:"first_name"`
	LastName  string    `db:"last_name"`
	UpdatedAt time.Time `db:"updated_at"`
}

// Chat is a Telegram chat observed by the bot. Upserted on every event.
type Chat struct {
	ChatID    int64     `db:"chat_id"`
	Title     string    `db:"title"`
	Type      string    `db:"chat_type"`
	UpdatedAt time.Time `db:"updated_at"`
}

// OpenSession is a check-in without a matching check-out.
type OpenSession struct {
	SessionID int64
	CheckIn   time.Time
}

// CheckOutResult describes a successfully closed session.
type CheckOutResult struct {
	SessionID int64
	CheckIn   time.Time
	CheckOut  time.Time
	Duration  time.Duration
}

// RankMode selects the time window of a leaderboard.
type RankMode string

const (
	// RankToday covers the current business day, valuing open sessions
	// against the query time.
	RankToday RankMode = "today"
	// RankAll covers completed sessions of all time. Open sessions are
	// excluded so a forgotten check-out does not grow without bound.
	RankAll RankMode = "all"
)

// RankEntry is one leaderboard row. Score carries awake seconds,
// achievement count or streak length depending on the query.
type RankEntry struct {
	UserID    int64
	Name      string
	Score     int64
	ChatID    int64  // best chat for global streak ranks, 0 otherwise
	ChatTitle string // title of that chat, "" when unknown
}

// AchievementStat is the denormalized per-key running count.
type AchievementStat struct {
	Key           string
	Count         int
	LastAwardedAt time.Time
}

// StreakBest is a user's best streak across all chats.
type StreakBest struct {
	Streak    int
	ChatID    int64
	ChatTitle string
}

// WakeReminder is a scheduled wake-up ping, polled by the host.
type WakeReminder struct {
	ID          int64
	ChatID      int64
	UserID      int64
	WakeTime    string // "HH:MM"
	NextTrigger time.Time
	Repeat      bool
	Enabled     bool
}

// RouletteGame is the active russian-roulette game of a chat.
type RouletteGame struct {
	ChatID          int64
	Chambers        int
	BulletPosition  int
	CurrentPosition int
	CreatedBy       int64
	CreatedAt       time.Time
}

// Roulette attempt results recorded in the attempts ledger.
const (
	RouletteResultBang = "bang"
	RouletteResultSafe = "safe"
)

// RSP game statuses.
const (
	RSPStatusPending   = "pending"
	RSPStatusCompleted = "completed"
)

// RSP choices.
const (
	RSPRock     = "rock"
	RSPPaper    = "paper"
	RSPScissors = "scissors"
)

// RSPGame is a rock-paper-scissors challenge between two users.
// WinnerID is 0 while pending and for draws.
type RSPGame struct {
	ID               int64
	ChatID           int64
	ChallengerID     int64
	OpponentID       int64
	ChallengerChoice string
	OpponentChoice   string
	Status           string
	WinnerID         int64
	MessageID        int64
	CreatedAt        time.Time
}

// RSPStats aggregates a user's completed rock-paper-scissors games.
type RSPStats struct {
	Total  int
	Wins   int
	Losses int
	Draws  int
}

// Achievement keys. The ledger's dedup constraints are keyed off these.
const (
	AchDailyEarliest   = "daily_earliest"    // first check-in of the chat's day
	AchStreakEarliest7 = "streak_earliest_7" // earliest streak hit a multiple of 7
	AchOntime8h        = "ontime_8h"         // weekday session within 8h±60s
	AchLongday12h      = "longday_12h"       // weekday session over 12h
)

// StreakKeyEarliest tracks consecutive days of being the daily earliest.
const StreakKeyEarliest = "earliest"
