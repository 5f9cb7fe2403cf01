package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"telegram-zao-bot/internal/calendar"
	"telegram-zao-bot/internal/model"
)

// SQLiteStore is the embedded engine, backed by a single database file.
type SQLiteStore struct {
	db     *sql.DB
	cutoff int
}

// OpenSQLite opens (creating if needed) the database file. WAL and a busy
// timeout keep concurrent writers from tripping over each other; the unique
// indexes still arbitrate duplicate actions.
func OpenSQLite(cfg Config) (*SQLiteStore, error) {
	path := cfg.Path
	if path == "" {
		path = "zao.db"
	}
	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_time_format=sqlite"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info().Str("path", path).Msg("Opened SQLite database")
	cutoff := cfg.CutoffHour
	if cutoff == 0 {
		cutoff = calendar.DefaultCutoffHour
	}
	return &SQLiteStore{db: db, cutoff: cutoff}, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() {
	if err := s.db.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close SQLite database")
	}
}

// isSQLiteUniqueViolation reports whether err is a constraint violation,
// the expected signal for "duplicate action".
func isSQLiteUniqueViolation(err error) bool {
	var se *sqlite.Error
	return errors.As(err, &se) && se.Code()&0xff == sqlite3.SQLITE_CONSTRAINT
}

// withTx runs fn inside a transaction, rolling back on error.
func (s *SQLiteStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// Init applies the schema; mirrors the PostgreSQL one statement for
// statement, including the legacy index drop.
func (s *SQLiteStore) Init(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
			user_id INTEGER PRIMARY KEY,
			username TEXT,
			first_name TEXT,
			last_name TEXT,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS chats (
			chat_id INTEGER PRIMARY KEY,
			title TEXT,
			chat_type TEXT NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS sessions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			chat_id INTEGER NOT NULL REFERENCES chats(chat_id),
			user_id INTEGER NOT NULL REFERENCES users(user_id),
			session_day TEXT,
			check_in TIMESTAMP NOT NULL,
			check_out TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_chat_checkin ON sessions(chat_id, check_in)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_chat_day ON sessions(chat_id, session_day)`,
		`DROP INDEX IF EXISTS idx_open_session`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_sessions_user_day
			ON sessions(chat_id, user_id, session_day)`,
		`CREATE TABLE IF NOT EXISTS daily_earliest (
			chat_id INTEGER NOT NULL REFERENCES chats(chat_id),
			day TEXT NOT NULL,
			user_id INTEGER NOT NULL REFERENCES users(user_id),
			session_id INTEGER NOT NULL REFERENCES sessions(id),
			check_in TIMESTAMP NOT NULL,
			created_at TIMESTAMP NOT NULL,
			PRIMARY KEY(chat_id, day)
		)`,
		`CREATE TABLE IF NOT EXISTS streaks (
			chat_id INTEGER NOT NULL REFERENCES chats(chat_id),
			user_id INTEGER NOT NULL REFERENCES users(user_id),
			key TEXT NOT NULL,
			last_day TEXT NOT NULL,
			streak INTEGER NOT NULL,
			updated_at TIMESTAMP NOT NULL,
			PRIMARY KEY(chat_id, user_id, key)
		)`,
		`CREATE TABLE IF NOT EXISTS achievement_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			chat_id INTEGER NOT NULL REFERENCES chats(chat_id),
			user_id INTEGER NOT NULL REFERENCES users(user_id),
			key TEXT NOT NULL,
			day TEXT,
			session_id INTEGER REFERENCES sessions(id),
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS achievement_stats (
			chat_id INTEGER NOT NULL REFERENCES chats(chat_id),
			user_id INTEGER NOT NULL REFERENCES users(user_id),
			key TEXT NOT NULL,
			count INTEGER NOT NULL,
			last_awarded_at TIMESTAMP NOT NULL,
			PRIMARY KEY(chat_id, user_id, key)
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_ae_daily_unique
			ON achievement_events(chat_id, key, day)
			WHERE key='daily_earliest'`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_ae_streak7_unique
			ON achievement_events(chat_id, user_id, key, day)
			WHERE key='streak_earliest_7'`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_ae_session_unique
			ON achievement_events(chat_id, user_id, key, session_id)
			WHERE key IN ('ontime_8h','longday_12h')`,
		`CREATE TABLE IF NOT EXISTS wake_reminders (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			chat_id INTEGER NOT NULL REFERENCES chats(chat_id),
			user_id INTEGER NOT NULL REFERENCES users(user_id),
			wake_time TEXT NOT NULL,
			next_trigger TIMESTAMP NOT NULL,
			repeat BOOLEAN DEFAULT 0,
			enabled BOOLEAN DEFAULT 1,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_wake_next_trigger ON wake_reminders(next_trigger, enabled)`,
		`CREATE TABLE IF NOT EXISTS russian_roulette (
			chat_id INTEGER PRIMARY KEY REFERENCES chats(chat_id),
			chambers INTEGER NOT NULL,
			bullet_position INTEGER NOT NULL,
			current_position INTEGER NOT NULL,
			created_by INTEGER NOT NULL REFERENCES users(user_id),
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS roulette_attempts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			chat_id INTEGER NOT NULL REFERENCES chats(chat_id),
			user_id INTEGER NOT NULL REFERENCES users(user_id),
			position INTEGER NOT NULL,
			result TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_roulette_attempts ON roulette_attempts(chat_id, created_at)`,
		`CREATE TABLE IF NOT EXISTS rsp_games (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			chat_id INTEGER NOT NULL REFERENCES chats(chat_id),
			challenger_id INTEGER NOT NULL REFERENCES users(user_id),
			opponent_id INTEGER NOT NULL REFERENCES users(user_id),
			challenger_choice TEXT,
			opponent_choice TEXT,
			status TEXT NOT NULL,
			winner_id INTEGER,
			message_id INTEGER,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_rsp_chat_status ON rsp_games(chat_id, status)`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	log.Info().Msg("SQLite schema is up to date")
	return nil
}

func (s *SQLiteStore) UpsertUserAndChat(ctx context.Context, user model.User, chat model.Chat, updatedAt time.Time) error {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO users(user_id, username, first_name, last_name, updated_at)
			VALUES(?,?,?,?,?)
			ON CONFLICT(user_id) DO UPDATE SET
			  username=excluded.username,
			  first_name=excluded.first_name,
			  last_name=excluded.last_name,
			  updated_at=excluded.updated_at
		`, user.UserID, user.Username, user.FirstName, user.LastName, updatedAt)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO chats(chat_id, title, chat_type, updated_at)
			VALUES(?,?,?,?)
			ON CONFLICT(chat_id) DO UPDATE SET
			  title=excluded.title,
			  chat_type=excluded.chat_type,
			  updated_at=excluded.updated_at
		`, chat.ChatID, chat.Title, chat.Type, updatedAt)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to upsert identity: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ChatTitle(ctx context.Context, chatID int64) (string, error) {
	var title sql.NullString
	err := s.db.QueryRowContext(ctx, `SELECT title FROM chats WHERE chat_id=?`, chatID).Scan(&title)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get chat title: %w", err)
	}
	return title.String, nil
}

func (s *SQLiteStore) CheckIn(ctx context.Context, chatID, userID int64, ts time.Time) (bool, error) {
	day := calendar.BusinessDayKey(ts, s.cutoff)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions(chat_id, user_id, session_day, check_in, check_out)
		VALUES(?,?,?,?,NULL)
	`, chatID, userID, day, ts)
	if err != nil {
		if isSQLiteUniqueViolation(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check in: %w", err)
	}
	return true, nil
}

func (s *SQLiteStore) CheckOut(ctx context.Context, chatID, userID int64, ts time.Time) (*model.CheckOutResult, error) {
	day := calendar.BusinessDayKey(ts, s.cutoff)
	var res *model.CheckOutResult
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var id int64
		var checkIn time.Time
		err := tx.QueryRowContext(ctx, `
			SELECT id, check_in
			FROM sessions
			WHERE chat_id=? AND user_id=? AND check_out IS NULL AND session_day=?
			ORDER BY id DESC
			LIMIT 1
		`, chatID, userID, day).Scan(&id, &checkIn)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		out := ts
		if out.Before(checkIn) {
			out = checkIn
		}
		if _, err := tx.ExecContext(ctx, `UPDATE sessions SET check_out=? WHERE id=?`, out, id); err != nil {
			return err
		}
		res = &model.CheckOutResult{
			SessionID: id,
			CheckIn:   checkIn,
			CheckOut:  out,
			Duration:  out.Sub(checkIn),
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to check out: %w", err)
	}
	return res, nil
}

func (s *SQLiteStore) GetOpenSession(ctx context.Context, chatID, userID int64, day string) (*model.OpenSession, error) {
	var sess model.OpenSession
	err := s.db.QueryRowContext(ctx, `
		SELECT id, check_in
		FROM sessions
		WHERE chat_id=? AND user_id=? AND check_out IS NULL
		  AND (? = '' OR session_day = ?)
		ORDER BY id DESC
		LIMIT 1
	`, chatID, userID, day, day).Scan(&sess.SessionID, &sess.CheckIn)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get open session: %w", err)
	}
	return &sess, nil
}

func (s *SQLiteStore) SessionTodayExists(ctx context.Context, chatID, userID int64, day string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(1) FROM sessions WHERE chat_id=? AND user_id=? AND session_day=?
	`, chatID, userID, day).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check session existence: %w", err)
	}
	return n > 0, nil
}

func (s *SQLiteStore) SessionTodayCompleted(ctx context.Context, chatID, userID int64, day string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(1) FROM sessions
		WHERE chat_id=? AND user_id=? AND session_day=? AND check_out IS NOT NULL
	`, chatID, userID, day).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check session completion: %w", err)
	}
	return n > 0, nil
}

func (s *SQLiteStore) TodayCheckinPosition(ctx context.Context, chatID, sessionID int64, checkIn time.Time, day string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(1)
		FROM sessions
		WHERE chat_id=? AND session_day=?
		  AND (check_in < ? OR (check_in = ? AND id <= ?))
	`, chatID, day, checkIn, checkIn, sessionID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to get checkin position: %w", err)
	}
	if n < 1 {
		n = 1
	}
	return n, nil
}

func (s *SQLiteStore) UserCheckinDays(ctx context.Context, userID int64, startDay, endDay string) (map[string]struct{}, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT session_day
		FROM sessions
		WHERE user_id=? AND session_day IS NOT NULL AND session_day BETWEEN ? AND ?
	`, userID, startDay, endDay)
	if err != nil {
		return nil, fmt.Errorf("failed to get checkin days: %w", err)
	}
	defer rows.Close()

	days := make(map[string]struct{})
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, fmt.Errorf("failed to scan checkin day: %w", err)
		}
		days[d] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating checkin days: %w", err)
	}
	return days, nil
}

// sqliteNameExpr renders a display name column; julianday math below needs
// the _time_format=sqlite storage layout to parse timestamps.
const sqliteNameExpr = `COALESCE(NULLIF(u.username,''), TRIM(COALESCE(u.first_name,'') || ' ' || COALESCE(u.last_name,'')))`

func (s *SQLiteStore) leaderboardQuery(ctx context.Context, chatFilter string, mode model.RankMode, now time.Time, chatArgs []any) ([]model.RankEntry, error) {
	secondsExpr := `CAST((julianday(s.check_out) - julianday(s.check_in)) * 86400 AS INTEGER)`
	extraWhere := "AND s.check_out IS NOT NULL"

	// Placeholders bind in query-text order: the "now" inside the SELECT
	// comes before the chat filter, the day filter after it.
	var args []any
	if mode == model.RankToday {
		secondsExpr = `CAST((julianday(COALESCE(s.check_out, ?)) - julianday(s.check_in)) * 86400 AS INTEGER)`
		extraWhere = "AND s.session_day = ?"
		args = append(args, now)
		args = append(args, chatArgs...)
		args = append(args, calendar.BusinessDayKey(now, s.cutoff))
	} else {
		args = chatArgs
	}

	query := fmt.Sprintf(`
		SELECT u.user_id, %s AS name, SUM(%s) AS seconds
		FROM sessions s
		JOIN users u ON u.user_id = s.user_id
		WHERE %s
		%s
		GROUP BY u.user_id
		ORDER BY seconds DESC
	`, sqliteNameExpr, secondsExpr, chatFilter, extraWhere)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query leaderboard: %w", err)
	}
	defer rows.Close()

	var out []model.RankEntry
	for rows.Next() {
		var e model.RankEntry
		var name sql.NullString
		var seconds sql.NullInt64
		if err := rows.Scan(&e.UserID, &name, &seconds); err != nil {
			return nil, fmt.Errorf("failed to scan leaderboard row: %w", err)
		}
		e.Name = displayName(name.String, e.UserID)
		e.Score = seconds.Int64
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating leaderboard: %w", err)
	}
	return out, nil
}

func (s *SQLiteStore) Leaderboard(ctx context.Context, chatID int64, mode model.RankMode, now time.Time) ([]model.RankEntry, error) {
	return s.leaderboardQuery(ctx, "s.chat_id = ?", mode, now, []any{chatID})
}

func (s *SQLiteStore) LeaderboardGlobal(ctx context.Context, mode model.RankMode, now time.Time) ([]model.RankEntry, error) {
	return s.leaderboardQuery(ctx, "1=1", mode, now, nil)
}

func (s *SQLiteStore) openUserIDs(ctx context.Context, query string, args ...any) (map[int64]struct{}, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query open users: %w", err)
	}
	defer rows.Close()

	ids := make(map[int64]struct{})
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan open user: %w", err)
		}
		ids[id] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating open users: %w", err)
	}
	return ids, nil
}

func (s *SQLiteStore) OpenUserIDs(ctx context.Context, chatID int64, day string) (map[int64]struct{}, error) {
	return s.openUserIDs(ctx, `
		SELECT DISTINCT user_id FROM sessions
		WHERE chat_id=? AND check_out IS NULL AND (? = '' OR session_day=?)
	`, chatID, day, day)
}

func (s *SQLiteStore) OpenUserIDsGlobal(ctx context.Context, day string) (map[int64]struct{}, error) {
	return s.openUserIDs(ctx, `
		SELECT DISTINCT user_id FROM sessions
		WHERE check_out IS NULL AND (? = '' OR session_day=?)
	`, day, day)
}

func (s *SQLiteStore) SetDailyEarliest(ctx context.Context, chatID int64, day string, userID, sessionID int64, checkIn, createdAt time.Time) (bool, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO daily_earliest(chat_id, day, user_id, session_id, check_in, created_at)
		VALUES(?,?,?,?,?,?)
	`, chatID, day, userID, sessionID, checkIn, createdAt)
	if err != nil {
		if isSQLiteUniqueViolation(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to set daily earliest: %w", err)
	}
	return true, nil
}

func (s *SQLiteStore) UpdateStreak(ctx context.Context, chatID, userID int64, key, day string, createdAt time.Time) (int, error) {
	var streak int
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var lastDay string
		var prev int
		err := tx.QueryRowContext(ctx, `
			SELECT last_day, streak FROM streaks
			WHERE chat_id=? AND user_id=? AND key=?
		`, chatID, userID, key).Scan(&lastDay, &prev)
		if errors.Is(err, sql.ErrNoRows) {
			streak = 1
			_, err = tx.ExecContext(ctx, `
				INSERT INTO streaks(chat_id, user_id, key, last_day, streak, updated_at)
				VALUES(?,?,?,?,1,?)
			`, chatID, userID, key, day, createdAt)
			return err
		}
		if err != nil {
			return err
		}
		streak = 1
		if gap, gerr := calendar.DayGap(lastDay, day); gerr == nil && gap == 1 {
			streak = prev + 1
		}
		_, err = tx.ExecContext(ctx, `
			UPDATE streaks SET last_day=?, streak=?, updated_at=?
			WHERE chat_id=? AND user_id=? AND key=?
		`, day, streak, createdAt, chatID, userID, key)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("failed to update streak: %w", err)
	}
	return streak, nil
}

func (s *SQLiteStore) GetStreak(ctx context.Context, chatID, userID int64, key string) (int, error) {
	var streak int
	err := s.db.QueryRowContext(ctx, `
		SELECT streak FROM streaks WHERE chat_id=? AND user_id=? AND key=?
	`, chatID, userID, key).Scan(&streak)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get streak: %w", err)
	}
	return streak, nil
}

func (s *SQLiteStore) BestStreakGlobal(ctx context.Context, userID int64, key string) (model.StreakBest, error) {
	var best model.StreakBest
	var title sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT st.streak, st.chat_id, c.title
		FROM streaks st
		LEFT JOIN chats c ON c.chat_id = st.chat_id
		WHERE st.user_id=? AND st.key=?
		ORDER BY st.streak DESC, st.chat_id ASC
		LIMIT 1
	`, userID, key).Scan(&best.Streak, &best.ChatID, &title)
	if errors.Is(err, sql.ErrNoRows) {
		return model.StreakBest{}, nil
	}
	if err != nil {
		return model.StreakBest{}, fmt.Errorf("failed to get best streak: %w", err)
	}
	best.ChatTitle = title.String
	return best, nil
}

func (s *SQLiteStore) AwardAchievement(ctx context.Context, chatID, userID int64, key, day string, sessionID int64, createdAt time.Time) (bool, error) {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var dayVal, sessVal any
		if day != "" {
			dayVal = day
		}
		if sessionID != 0 {
			sessVal = sessionID
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO achievement_events(chat_id, user_id, key, day, session_id, created_at)
			VALUES(?,?,?,?,?,?)
		`, chatID, userID, key, dayVal, sessVal, createdAt)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO achievement_stats(chat_id, user_id, key, count, last_awarded_at)
			VALUES(?,?,?,1,?)
			ON CONFLICT(chat_id, user_id, key) DO UPDATE SET
			  count = count + 1,
			  last_awarded_at = excluded.last_awarded_at
		`, chatID, userID, key, createdAt)
		return err
	})
	if err != nil {
		if isSQLiteUniqueViolation(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to award achievement: %w", err)
	}
	return true, nil
}

func (s *SQLiteStore) achievementStats(ctx context.Context, query string, args ...any) ([]model.AchievementStat, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query achievement stats: %w", err)
	}
	defer rows.Close()

	var out []model.AchievementStat
	for rows.Next() {
		var st model.AchievementStat
		if err := rows.Scan(&st.Key, &st.Count, &st.LastAwardedAt); err != nil {
			return nil, fmt.Errorf("failed to scan achievement stat: %w", err)
		}
		out = append(out, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating achievement stats: %w", err)
	}
	return out, nil
}

func (s *SQLiteStore) AchievementStats(ctx context.Context, chatID, userID int64) ([]model.AchievementStat, error) {
	return s.achievementStats(ctx, `
		SELECT key, count, last_awarded_at
		FROM achievement_stats
		WHERE chat_id=? AND user_id=?
		ORDER BY count DESC, key ASC
	`, chatID, userID)
}

func (s *SQLiteStore) AchievementStatsGlobal(ctx context.Context, userID int64) ([]model.AchievementStat, error) {
	return s.achievementStats(ctx, `
		SELECT key, SUM(count), MAX(last_awarded_at)
		FROM achievement_stats
		WHERE user_id=?
		GROUP BY key
		ORDER BY 2 DESC, key ASC
	`, userID)
}

func (s *SQLiteStore) AchievementCount(ctx context.Context, chatID, userID int64, key string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT count FROM achievement_stats WHERE chat_id=? AND user_id=? AND key=?
	`, chatID, userID, key).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get achievement count: %w", err)
	}
	return count, nil
}

func (s *SQLiteStore) AchievementCountGlobal(ctx context.Context, userID int64, key string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(count),0) FROM achievement_stats WHERE user_id=? AND key=?
	`, userID, key).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to get achievement count: %w", err)
	}
	return count, nil
}

func (s *SQLiteStore) rankEntries(ctx context.Context, query string, args ...any) ([]model.RankEntry, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query rank: %w", err)
	}
	defer rows.Close()

	var out []model.RankEntry
	for rows.Next() {
		var e model.RankEntry
		var name sql.NullString
		if err := rows.Scan(&e.UserID, &name, &e.Score); err != nil {
			return nil, fmt.Errorf("failed to scan rank row: %w", err)
		}
		e.Name = displayName(name.String, e.UserID)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rank: %w", err)
	}
	return out, nil
}

func (s *SQLiteStore) AchievementRank(ctx context.Context, chatID int64, key string, limit int) ([]model.RankEntry, error) {
	return s.rankEntries(ctx, fmt.Sprintf(`
		SELECT u.user_id, %s AS name, st.count
		FROM achievement_stats st
		JOIN users u ON u.user_id = st.user_id
		WHERE st.chat_id=? AND st.key=?
		ORDER BY st.count DESC, u.user_id ASC
		LIMIT ?
	`, sqliteNameExpr), chatID, key, limit)
}

func (s *SQLiteStore) AchievementRankGlobal(ctx context.Context, key string, limit int) ([]model.RankEntry, error) {
	return s.rankEntries(ctx, fmt.Sprintf(`
		SELECT u.user_id, %s AS name, SUM(st.count) AS cnt
		FROM achievement_stats st
		JOIN users u ON u.user_id = st.user_id
		WHERE st.key=?
		GROUP BY u.user_id
		ORDER BY cnt DESC, u.user_id ASC
		LIMIT ?
	`, sqliteNameExpr), key, limit)
}

func (s *SQLiteStore) StreakRank(ctx context.Context, chatID int64, key string, limit int) ([]model.RankEntry, error) {
	return s.rankEntries(ctx, fmt.Sprintf(`
		SELECT u.user_id, %s AS name, st.streak
		FROM streaks st
		JOIN users u ON u.user_id = st.user_id
		WHERE st.chat_id=? AND st.key=?
		ORDER BY st.streak DESC, u.user_id ASC
		LIMIT ?
	`, sqliteNameExpr), chatID, key, limit)
}

// StreakRankGlobal keeps each user's best chat only; a grouped MAX plus a
// correlated lookup stands in for the window function the other engine uses.
func (s *SQLiteStore) StreakRankGlobal(ctx context.Context, key string, limit int) ([]model.RankEntry, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT u.user_id, %s AS name, b.best,
		  (SELECT s2.chat_id FROM streaks s2
		   WHERE s2.user_id=b.user_id AND s2.key=? AND s2.streak=b.best
		   ORDER BY s2.chat_id ASC LIMIT 1) AS chat_id
		FROM (
		  SELECT user_id, MAX(streak) AS best
		  FROM streaks
		  WHERE key=?
		  GROUP BY user_id
		) b
		JOIN users u ON u.user_id = b.user_id
		ORDER BY b.best DESC, u.user_id ASC
		LIMIT ?
	`, sqliteNameExpr), key, key, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query global streak rank: %w", err)
	}
	defer rows.Close()

	var out []model.RankEntry
	for rows.Next() {
		var e model.RankEntry
		var name sql.NullString
		if err := rows.Scan(&e.UserID, &name, &e.Score, &e.ChatID); err != nil {
			return nil, fmt.Errorf("failed to scan global streak rank: %w", err)
		}
		e.Name = displayName(name.String, e.UserID)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating global streak rank: %w", err)
	}

	for i := range out {
		title, err := s.ChatTitle(ctx, out[i].ChatID)
		if err != nil {
			return nil, err
		}
		out[i].ChatTitle = title
	}
	return out, nil
}

func (s *SQLiteStore) CreateReminder(ctx context.Context, chatID, userID int64, wakeTime string, nextTrigger time.Time, repeat bool, createdAt time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO wake_reminders(chat_id, user_id, wake_time, next_trigger, repeat, enabled, created_at)
		VALUES(?,?,?,?,?,1,?)
	`, chatID, userID, wakeTime, nextTrigger, repeat, createdAt)
	if err != nil {
		return 0, fmt.Errorf("failed to create reminder: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get reminder id: %w", err)
	}
	return id, nil
}

func (s *SQLiteStore) scanReminders(rows *sql.Rows) ([]model.WakeReminder, error) {
	defer rows.Close()
	var out []model.WakeReminder
	for rows.Next() {
		var r model.WakeReminder
		if err := rows.Scan(&r.ID, &r.ChatID, &r.UserID, &r.WakeTime, &r.NextTrigger, &r.Repeat, &r.Enabled); err != nil {
			return nil, fmt.Errorf("failed to scan reminder: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating reminders: %w", err)
	}
	return out, nil
}

func (s *SQLiteStore) PendingReminders(ctx context.Context, now time.Time) ([]model.WakeReminder, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, chat_id, user_id, wake_time, next_trigger, repeat, enabled
		FROM wake_reminders
		WHERE enabled=1 AND next_trigger <= ?
		ORDER BY next_trigger
	`, now)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending reminders: %w", err)
	}
	return s.scanReminders(rows)
}

func (s *SQLiteStore) UserReminders(ctx context.Context, chatID, userID int64) ([]model.WakeReminder, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, chat_id, user_id, wake_time, next_trigger, repeat, enabled
		FROM wake_reminders
		WHERE chat_id=? AND user_id=? AND enabled=1
		ORDER BY wake_time
	`, chatID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query user reminders: %w", err)
	}
	return s.scanReminders(rows)
}

func (s *SQLiteStore) UpdateReminderNextTrigger(ctx context.Context, reminderID int64, nextTrigger time.Time) error {
	_, err := s.db.ExecContext(ctx, `UPDATE wake_reminders SET next_trigger=? WHERE id=?`, nextTrigger, reminderID)
	if err != nil {
		return fmt.Errorf("failed to update reminder: %w", err)
	}
	return nil
}

func (s *SQLiteStore) DeleteReminder(ctx context.Context, reminderID int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM wake_reminders WHERE id=?`, reminderID)
	if err != nil {
		return fmt.Errorf("failed to delete reminder: %w", err)
	}
	return nil
}

func (s *SQLiteStore) DeleteUserReminders(ctx context.Context, chatID, userID int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM wake_reminders WHERE chat_id=? AND user_id=?`, chatID, userID)
	if err != nil {
		return fmt.Errorf("failed to delete user reminders: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ActiveRoulette(ctx context.Context, chatID int64) (*model.RouletteGame, error) {
	var g model.RouletteGame
	err := s.db.QueryRowContext(ctx, `
		SELECT chat_id, chambers, bullet_position, current_position, created_by, created_at
		FROM russian_roulette WHERE chat_id=?
	`, chatID).Scan(&g.ChatID, &g.Chambers, &g.BulletPosition, &g.CurrentPosition, &g.CreatedBy, &g.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get roulette game: %w", err)
	}
	return &g, nil
}

func (s *SQLiteStore) CreateRoulette(ctx context.Context, chatID int64, chambers, bulletPosition int, createdBy int64, createdAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO russian_roulette(chat_id, chambers, bullet_position, current_position, created_by, created_at)
		VALUES(?,?,?,0,?,?)
	`, chatID, chambers, bulletPosition, createdBy, createdAt)
	if err != nil {
		return fmt.Errorf("failed to create roulette game: %w", err)
	}
	return nil
}

func (s *SQLiteStore) UpdateRoulettePosition(ctx context.Context, chatID int64, position int) error {
	_, err := s.db.ExecContext(ctx, `UPDATE russian_roulette SET current_position=? WHERE chat_id=?`, position, chatID)
	if err != nil {
		return fmt.Errorf("failed to update roulette position: %w", err)
	}
	return nil
}

func (s *SQLiteStore) DeleteRoulette(ctx context.Context, chatID int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM russian_roulette WHERE chat_id=?`, chatID)
	if err != nil {
		return fmt.Errorf("failed to delete roulette game: %w", err)
	}
	return nil
}

func (s *SQLiteStore) RecordRouletteAttempt(ctx context.Context, chatID, userID int64, position int, result string, createdAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO roulette_attempts(chat_id, user_id, position, result, created_at)
		VALUES(?,?,?,?,?)
	`, chatID, userID, position, result, createdAt)
	if err != nil {
		return fmt.Errorf("failed to record roulette attempt: %w", err)
	}
	return nil
}

func (s *SQLiteStore) CreateRSPGame(ctx context.Context, chatID, challengerID, opponentID, messageID int64, createdAt time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO rsp_games(chat_id, challenger_id, opponent_id, status, message_id, created_at)
		VALUES(?,?,?,'pending',?,?)
	`, chatID, challengerID, opponentID, messageID, createdAt)
	if err != nil {
		return 0, fmt.Errorf("failed to create rsp game: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get rsp game id: %w", err)
	}
	return id, nil
}

func scanSQLiteRSPGame(row *sql.Row) (*model.RSPGame, error) {
	var g model.RSPGame
	var cc, oc sql.NullString
	var winner, msgID sql.NullInt64
	err := row.Scan(&g.ID, &g.ChatID, &g.ChallengerID, &g.OpponentID, &cc, &oc, &g.Status, &winner, &msgID, &g.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan rsp game: %w", err)
	}
	g.ChallengerChoice = cc.String
	g.OpponentChoice = oc.String
	g.WinnerID = winner.Int64
	g.MessageID = msgID.Int64
	return &g, nil
}

func (s *SQLiteStore) GetRSPGame(ctx context.Context, gameID int64) (*model.RSPGame, error) {
	return scanSQLiteRSPGame(s.db.QueryRowContext(ctx, `
		SELECT id, chat_id, challenger_id, opponent_id, challenger_choice, opponent_choice,
		       status, winner_id, message_id, created_at
		FROM rsp_games WHERE id=?
	`, gameID))
}

func (s *SQLiteStore) PendingRSPGame(ctx context.Context, chatID, userID int64) (*model.RSPGame, error) {
	return scanSQLiteRSPGame(s.db.QueryRowContext(ctx, `
		SELECT id, chat_id, challenger_id, opponent_id, challenger_choice, opponent_choice,
		       status, winner_id, message_id, created_at
		FROM rsp_games
		WHERE chat_id=? AND status='pending' AND (challenger_id=? OR opponent_id=?)
		ORDER BY id DESC
		LIMIT 1
	`, chatID, userID, userID))
}

func (s *SQLiteStore) UpdateRSPChoice(ctx context.Context, gameID, userID int64, choice string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE rsp_games SET
		  challenger_choice = CASE WHEN challenger_id=? THEN ? ELSE challenger_choice END,
		  opponent_choice   = CASE WHEN opponent_id=? AND challenger_id<>? THEN ? ELSE opponent_choice END
		WHERE id=?
	`, userID, choice, userID, userID, choice, gameID)
	if err != nil {
		return fmt.Errorf("failed to update rsp choice: %w", err)
	}
	return nil
}

func (s *SQLiteStore) CompleteRSPGame(ctx context.Context, gameID, winnerID int64) error {
	var winner any
	if winnerID != 0 {
		winner = winnerID
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE rsp_games SET status='completed', winner_id=? WHERE id=?
	`, winner, gameID)
	if err != nil {
		return fmt.Errorf("failed to complete rsp game: %w", err)
	}
	return nil
}

func (s *SQLiteStore) DeleteRSPGame(ctx context.Context, gameID int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM rsp_games WHERE id=?`, gameID)
	if err != nil {
		return fmt.Errorf("failed to delete rsp game: %w", err)
	}
	return nil
}

func (s *SQLiteStore) rspStats(ctx context.Context, chatFilter string, userID int64, args ...any) (model.RSPStats, error) {
	query := fmt.Sprintf(`
		SELECT
		  COUNT(1),
		  SUM(CASE WHEN winner_id=? THEN 1 ELSE 0 END),
		  SUM(CASE WHEN winner_id IS NULL THEN 1 ELSE 0 END)
		FROM rsp_games
		WHERE status='completed' AND (challenger_id=? OR opponent_id=?) %s
	`, chatFilter)

	qargs := append([]any{userID, userID, userID}, args...)
	var st model.RSPStats
	var wins, draws sql.NullInt64
	if err := s.db.QueryRowContext(ctx, query, qargs...).Scan(&st.Total, &wins, &draws); err != nil {
		return model.RSPStats{}, fmt.Errorf("failed to get rsp stats: %w", err)
	}
	st.Wins = int(wins.Int64)
	st.Draws = int(draws.Int64)
	st.Losses = st.Total - st.Wins - st.Draws
	return st, nil
}

func (s *SQLiteStore) RSPStats(ctx context.Context, chatID, userID int64) (model.RSPStats, error) {
	return s.rspStats(ctx, "AND chat_id=?", userID, chatID)
}

func (s *SQLiteStore) RSPStatsGlobal(ctx context.Context, userID int64) (model.RSPStats, error) {
	return s.rspStats(ctx, "", userID)
}
