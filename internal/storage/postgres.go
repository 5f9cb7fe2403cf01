package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"telegram-zao-bot/internal/calendar"
	"telegram-zao-bot/internal/model"
)

// PostgresStore is the networked engine, backed by a pgx connection pool.
type PostgresStore struct {
	pool   *pgxpool.Pool
	cutoff int
}

// OpenPostgres connects a pool with sized connection limits and verifies
// connectivity.
func OpenPostgres(ctx context.Context, cfg Config) (*PostgresStore, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	if cfg.PoolSize > 0 {
		poolConfig.MaxConns = int32(cfg.PoolSize)
		poolConfig.MinConns = int32(cfg.PoolSize / 4)
		if poolConfig.MinConns < 1 {
			poolConfig.MinConns = 1
		}
	}
	if cfg.ConnectTimeout > 0 {
		poolConfig.ConnConfig.ConnectTimeout = cfg.ConnectTimeout
	} else {
		poolConfig.ConnConfig.ConnectTimeout = 10 * time.Second
	}
	if cfg.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime
	}
	poolConfig.HealthCheckPeriod = 30 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info().Msg("Connected to PostgreSQL")
	cutoff := cfg.CutoffHour
	if cutoff == 0 {
		cutoff = calendar.DefaultCutoffHour
	}
	return &PostgresStore{pool: pool, cutoff: cutoff}, nil
}

// Close closes the connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// isPgUniqueViolation reports whether err is a unique-constraint violation
// (SQLSTATE 23505), the expected signal for "duplicate action".
func isPgUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// Init applies the schema. Every statement is idempotent; the legacy
// one-open-session partial index is dropped in favor of the per-day
// uniqueness constraint.
func (s *PostgresStore) Init(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
			user_id BIGINT PRIMARY KEY,
			username TEXT,
			first_name TEXT,
			last_name TEXT,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS chats (
			chat_id BIGINT PRIMARY KEY,
			title TEXT,
			chat_type TEXT NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS sessions (
			id BIGSERIAL PRIMARY KEY,
			chat_id BIGINT NOT NULL REFERENCES chats(chat_id),
			user_id BIGINT NOT NULL REFERENCES users(user_id),
			session_day TEXT,
			check_in TIMESTAMPTZ NOT NULL,
			check_out TIMESTAMPTZ
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_chat_checkin ON sessions(chat_id, check_in)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_chat_day ON sessions(chat_id, session_day)`,
		// Legacy invariant ("one open session per user") broke when a prior
		// business day was never closed out; the per-day index replaces it.
		`DROP INDEX IF EXISTS idx_open_session`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_sessions_user_day
			ON sessions(chat_id, user_id, session_day)`,
		`CREATE TABLE IF NOT EXISTS daily_earliest (
			chat_id BIGINT NOT NULL REFERENCES chats(chat_id),
			day TEXT NOT NULL,
			user_id BIGINT NOT NULL REFERENCES users(user_id),
			session_id BIGINT NOT NULL REFERENCES sessions(id),
			check_in TIMESTAMPTZ NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			PRIMARY KEY(chat_id, day)
		)`,
		`CREATE TABLE IF NOT EXISTS streaks (
			chat_id BIGINT NOT NULL REFERENCES chats(chat_id),
			user_id BIGINT NOT NULL REFERENCES users(user_id),
			key TEXT NOT NULL,
			last_day TEXT NOT NULL,
			streak INTEGER NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL,
			PRIMARY KEY(chat_id, user_id, key)
		)`,
		`CREATE TABLE IF NOT EXISTS achievement_events (
			id BIGSERIAL PRIMARY KEY,
			chat_id BIGINT NOT NULL REFERENCES chats(chat_id),
			user_id BIGINT NOT NULL REFERENCES users(user_id),
			key TEXT NOT NULL,
			day TEXT,
			session_id BIGINT REFERENCES sessions(id),
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS achievement_stats (
			chat_id BIGINT NOT NULL REFERENCES chats(chat_id),
			user_id BIGINT NOT NULL REFERENCES users(user_id),
			key TEXT NOT NULL,
			count INTEGER NOT NULL,
			last_awarded_at TIMESTAMPTZ NOT NULL,
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
			id BIGSERIAL PRIMARY KEY,
			chat_id BIGINT NOT NULL REFERENCES chats(chat_id),
			user_id BIGINT NOT NULL REFERENCES users(user_id),
			wake_time TEXT NOT NULL,
			next_trigger TIMESTAMPTZ NOT NULL,
			repeat BOOLEAN DEFAULT false,
			enabled BOOLEAN DEFAULT true,
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_wake_next_trigger ON wake_reminders(next_trigger, enabled)`,
		`CREATE TABLE IF NOT EXISTS russian_roulette (
			chat_id BIGINT PRIMARY KEY REFERENCES chats(chat_id),
			chambers INT NOT NULL,
			bullet_position INT NOT NULL,
			current_position INT NOT NULL,
			created_by BIGINT NOT NULL REFERENCES users(user_id),
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS roulette_attempts (
			id BIGSERIAL PRIMARY KEY,
			chat_id BIGINT NOT NULL REFERENCES chats(chat_id),
			user_id BIGINT NOT NULL REFERENCES users(user_id),
			position INT NOT NULL,
			result TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_roulette_attempts ON roulette_attempts(chat_id, created_at)`,
		`CREATE TABLE IF NOT EXISTS rsp_games (
			id BIGSERIAL PRIMARY KEY,
			chat_id BIGINT NOT NULL REFERENCES chats(chat_id),
			challenger_id BIGINT NOT NULL REFERENCES users(user_id),
			opponent_id BIGINT NOT NULL REFERENCES users(user_id),
			challenger_choice TEXT,
			opponent_choice TEXT,
			status TEXT NOT NULL,
			winner_id BIGINT,
			message_id BIGINT,
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_rsp_chat_status ON rsp_games(chat_id, status)`,
	}

	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	log.Info().Msg("PostgreSQL schema is up to date")
	return nil
}

// UpsertUserAndChat refreshes identity rows; both upserts share one
// transaction so a partially observed event cannot leave a dangling session
// foreign key.
func (s *PostgresStore) UpsertUserAndChat(ctx context.Context, user model.User, chat model.Chat, updatedAt time.Time) error {
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO users(user_id, username, first_name, last_name, updated_at)
			VALUES($1,$2,$3,$4,$5)
			ON CONFLICT (user_id) DO UPDATE SET
			  username=EXCLUDED.username,
			  first_name=EXCLUDED.first_name,
			  last_name=EXCLUDED.last_name,
			  updated_at=EXCLUDED.updated_at
		`, user.UserID, user.Username, user.FirstName, user.LastName, updatedAt)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO chats(chat_id, title, chat_type, updated_at)
			VALUES($1,$2,$3,$4)
			ON CONFLICT (chat_id) DO UPDATE SET
			  title=EXCLUDED.title,
			  chat_type=EXCLUDED.chat_type,
			  updated_at=EXCLUDED.updated_at
		`, chat.ChatID, chat.Title, chat.Type, updatedAt)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to upsert identity: %w", err)
	}
	return nil
}

// ChatTitle returns the stored chat title, "" when unknown.
func (s *PostgresStore) ChatTitle(ctx context.Context, chatID int64) (string, error) {
	var title *string
	err := s.pool.QueryRow(ctx, `SELECT title FROM chats WHERE chat_id=$1`, chatID).Scan(&title)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get chat title: %w", err)
	}
	if title == nil {
		return "", nil
	}
	return *title, nil
}

func (s *PostgresStore) CheckIn(ctx context.Context, chatID, userID int64, ts time.Time) (bool, error) {
	day := calendar.BusinessDayKey(ts, s.cutoff)
	_, err := s.pool.Exec(ctx, `
		INSERT INTO sessions(chat_id, user_id, session_day, check_in, check_out)
		VALUES($1,$2,$3,$4,NULL)
	`, chatID, userID, day, ts)
	if err != nil {
		if isPgUniqueViolation(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check in: %w", err)
	}
	return true, nil
}

func (s *PostgresStore) CheckOut(ctx context.Context, chatID, userID int64, ts time.Time) (*model.CheckOutResult, error) {
	day := calendar.BusinessDayKey(ts, s.cutoff)
	var res *model.CheckOutResult
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		var id int64
		var checkIn time.Time
		err := tx.QueryRow(ctx, `
			SELECT id, check_in
			FROM sessions
			WHERE chat_id=$1 AND user_id=$2 AND check_out IS NULL AND session_day=$3
			ORDER BY id DESC
			LIMIT 1
			FOR UPDATE
		`, chatID, userID, day).Scan(&id, &checkIn)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		out := ts
		if out.Before(checkIn) {
			out = checkIn
		}
		if _, err := tx.Exec(ctx, `UPDATE sessions SET check_out=$1 WHERE id=$2`, out, id); err != nil {
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

func (s *PostgresStore) GetOpenSession(ctx context.Context, chatID, userID int64, day string) (*model.OpenSession, error) {
	var sess model.OpenSession
	err := s.pool.QueryRow(ctx, `
		SELECT id, check_in
		FROM sessions
		WHERE chat_id=$1 AND user_id=$2 AND check_out IS NULL
		  AND ($3 = '' OR session_day = $3)
		ORDER BY id DESC
		LIMIT 1
	`, chatID, userID, day).Scan(&sess.SessionID, &sess.CheckIn)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get open session: %w", err)
	}
	return &sess, nil
}

func (s *PostgresStore) SessionTodayExists(ctx context.Context, chatID, userID int64, day string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM sessions WHERE chat_id=$1 AND user_id=$2 AND session_day=$3)
	`, chatID, userID, day).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check session existence: %w", err)
	}
	return exists, nil
}

func (s *PostgresStore) SessionTodayCompleted(ctx context.Context, chatID, userID int64, day string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM sessions
			WHERE chat_id=$1 AND user_id=$2 AND session_day=$3 AND check_out IS NOT NULL
		)
	`, chatID, userID, day).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check session completion: %w", err)
	}
	return exists, nil
}

func (s *PostgresStore) TodayCheckinPosition(ctx context.Context, chatID, sessionID int64, checkIn time.Time, day string) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(1)
		FROM sessions
		WHERE chat_id=$1 AND session_day=$2
		  AND (check_in < $3 OR (check_in=$3 AND id <= $4))
	`, chatID, day, checkIn, sessionID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to get checkin position: %w", err)
	}
	if n < 1 {
		n = 1
	}
	return n, nil
}

func (s *PostgresStore) UserCheckinDays(ctx context.Context, userID int64, startDay, endDay string) (map[string]struct{}, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT DISTINCT session_day
		FROM sessions
		WHERE user_id=$1 AND session_day IS NOT NULL AND session_day BETWEEN $2 AND $3
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

// leaderboardQuery builds the shared awake-seconds aggregation. "today"
// values open sessions against now; "all" counts only completed sessions.
func (s *PostgresStore) leaderboardQuery(ctx context.Context, chatFilter string, mode model.RankMode, now time.Time, args []any) ([]model.RankEntry, error) {
	secondsExpr := "EXTRACT(EPOCH FROM (s.check_out - s.check_in))"
	extraWhere := "AND s.check_out IS NOT NULL"
	if mode == model.RankToday {
		nowIdx := len(args) + 1
		args = append(args, now)
		secondsExpr = fmt.Sprintf("EXTRACT(EPOCH FROM (COALESCE(s.check_out, $%d) - s.check_in))", nowIdx)
		dayIdx := len(args) + 1
		args = append(args, calendar.BusinessDayKey(now, s.cutoff))
		extraWhere = fmt.Sprintf("AND s.session_day = $%d", dayIdx)
	}

	query := fmt.Sprintf(`
		SELECT
		  u.user_id,
		  COALESCE(NULLIF(u.username, ''), CONCAT_WS(' ', u.first_name, u.last_name)) AS name,
		  SUM(%s)::bigint AS seconds
		FROM sessions s
		JOIN users u ON u.user_id = s.user_id
		WHERE %s
		%s
		GROUP BY u.user_id
		ORDER BY seconds DESC
	`, secondsExpr, chatFilter, extraWhere)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query leaderboard: %w", err)
	}
	defer rows.Close()

	var out []model.RankEntry
	for rows.Next() {
		var e model.RankEntry
		var name *string
		var seconds *int64
		if err := rows.Scan(&e.UserID, &name, &seconds); err != nil {
			return nil, fmt.Errorf("failed to scan leaderboard row: %w", err)
		}
		if name != nil {
			e.Name = *name
		}
		e.Name = displayName(e.Name, e.UserID)
		if seconds != nil {
			e.Score = *seconds
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating leaderboard: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) Leaderboard(ctx context.Context, chatID int64, mode model.RankMode, now time.Time) ([]model.RankEntry, error) {
	return s.leaderboardQuery(ctx, "s.chat_id = $1", mode, now, []any{chatID})
}

func (s *PostgresStore) LeaderboardGlobal(ctx context.Context, mode model.RankMode, now time.Time) ([]model.RankEntry, error) {
	return s.leaderboardQuery(ctx, "1=1", mode, now, nil)
}

func (s *PostgresStore) openUserIDs(ctx context.Context, query string, args ...any) (map[int64]struct{}, error) {
	rows, err := s.pool.Query(ctx, query, args...)
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

func (s *PostgresStore) OpenUserIDs(ctx context.Context, chatID int64, day string) (map[int64]struct{}, error) {
	return s.openUserIDs(ctx, `
		SELECT DISTINCT user_id FROM sessions
		WHERE chat_id=$1 AND check_out IS NULL AND ($2 = '' OR session_day=$2)
	`, chatID, day)
}

func (s *PostgresStore) OpenUserIDsGlobal(ctx context.Context, day string) (map[int64]struct{}, error) {
	return s.openUserIDs(ctx, `
		SELECT DISTINCT user_id FROM sessions
		WHERE check_out IS NULL AND ($1 = '' OR session_day=$1)
	`, day)
}

func (s *PostgresStore) SetDailyEarliest(ctx context.Context, chatID int64, day string, userID, sessionID int64, checkIn, createdAt time.Time) (bool, error) {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO daily_earliest(chat_id, day, user_id, session_id, check_in, created_at)
		VALUES($1,$2,$3,$4,$5,$6)
	`, chatID, day, userID, sessionID, checkIn, createdAt)
	if err != nil {
		if isPgUniqueViolation(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to set daily earliest: %w", err)
	}
	return true, nil
}

func (s *PostgresStore) UpdateStreak(ctx context.Context, chatID, userID int64, key, day string, createdAt time.Time) (int, error) {
	var streak int
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		var lastDay string
		var prev int
		err := tx.QueryRow(ctx, `
			SELECT last_day, streak FROM streaks
			WHERE chat_id=$1 AND user_id=$2 AND key=$3
			FOR UPDATE
		`, chatID, userID, key).Scan(&lastDay, &prev)
		if errors.Is(err, pgx.ErrNoRows) {
			streak = 1
			_, err = tx.Exec(ctx, `
				INSERT INTO streaks(chat_id, user_id, key, last_day, streak, updated_at)
				VALUES($1,$2,$3,$4,1,$5)
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
		_, err = tx.Exec(ctx, `
			UPDATE streaks SET last_day=$1, streak=$2, updated_at=$3
			WHERE chat_id=$4 AND user_id=$5 AND key=$6
		`, day, streak, createdAt, chatID, userID, key)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("failed to update streak: %w", err)
	}
	return streak, nil
}

func (s *PostgresStore) GetStreak(ctx context.Context, chatID, userID int64, key string) (int, error) {
	var streak int
	err := s.pool.QueryRow(ctx, `
		SELECT streak FROM streaks WHERE chat_id=$1 AND user_id=$2 AND key=$3
	`, chatID, userID, key).Scan(&streak)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get streak: %w", err)
	}
	return streak, nil
}

func (s *PostgresStore) BestStreakGlobal(ctx context.Context, userID int64, key string) (model.StreakBest, error) {
	var best model.StreakBest
	var title *string
	err := s.pool.QueryRow(ctx, `
		SELECT st.streak, st.chat_id, c.title
		FROM streaks st
		LEFT JOIN chats c ON c.chat_id = st.chat_id
		WHERE st.user_id=$1 AND st.key=$2
		ORDER BY st.streak DESC, st.chat_id ASC
		LIMIT 1
	`, userID, key).Scan(&best.Streak, &best.ChatID, &title)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.StreakBest{}, nil
	}
	if err != nil {
		return model.StreakBest{}, fmt.Errorf("failed to get best streak: %w", err)
	}
	if title != nil {
		best.ChatTitle = *title
	}
	return best, nil
}

func (s *PostgresStore) AwardAchievement(ctx context.Context, chatID, userID int64, key, day string, sessionID int64, createdAt time.Time) (bool, error) {
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		var dayVal, sessVal any
		if day != "" {
			dayVal = day
		}
		if sessionID != 0 {
			sessVal = sessionID
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO achievement_events(chat_id, user_id, key, day, session_id, created_at)
			VALUES($1,$2,$3,$4,$5,$6)
		`, chatID, userID, key, dayVal, sessVal, createdAt)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO achievement_stats(chat_id, user_id, key, count, last_awarded_at)
			VALUES($1,$2,$3,1,$4)
			ON CONFLICT (chat_id, user_id, key) DO UPDATE SET
			  count = achievement_stats.count + 1,
			  last_awarded_at = EXCLUDED.last_awarded_at
		`, chatID, userID, key, createdAt)
		return err
	})
	if err != nil {
		if isPgUniqueViolation(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to award achievement: %w", err)
	}
	return true, nil
}

func (s *PostgresStore) achievementStats(ctx context.Context, query string, args ...any) ([]model.AchievementStat, error) {
	rows, err := s.pool.Query(ctx, query, args...)
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

func (s *PostgresStore) AchievementStats(ctx context.Context, chatID, userID int64) ([]model.AchievementStat, error) {
	return s.achievementStats(ctx, `
		SELECT key, count, last_awarded_at
		FROM achievement_stats
		WHERE chat_id=$1 AND user_id=$2
		ORDER BY count DESC, key ASC
	`, chatID, userID)
}

func (s *PostgresStore) AchievementStatsGlobal(ctx context.Context, userID int64) ([]model.AchievementStat, error) {
	return s.achievementStats(ctx, `
		SELECT key, SUM(count)::int, MAX(last_awarded_at)
		FROM achievement_stats
		WHERE user_id=$1
		GROUP BY key
		ORDER BY 2 DESC, key ASC
	`, userID)
}

func (s *PostgresStore) AchievementCount(ctx context.Context, chatID, userID int64, key string) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `
		SELECT count FROM achievement_stats WHERE chat_id=$1 AND user_id=$2 AND key=$3
	`, chatID, userID, key).Scan(&count)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get achievement count: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) AchievementCountGlobal(ctx context.Context, userID int64, key string) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(count),0) FROM achievement_stats WHERE user_id=$1 AND key=$2
	`, userID, key).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to get achievement count: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) rankEntries(ctx context.Context, query string, args ...any) ([]model.RankEntry, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query rank: %w", err)
	}
	defer rows.Close()

	var out []model.RankEntry
	for rows.Next() {
		var e model.RankEntry
		var name *string
		if err := rows.Scan(&e.UserID, &name, &e.Score); err != nil {
			return nil, fmt.Errorf("failed to scan rank row: %w", err)
		}
		if name != nil {
			e.Name = *name
		}
		e.Name = displayName(e.Name, e.UserID)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rank: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) AchievementRank(ctx context.Context, chatID int64, key string, limit int) ([]model.RankEntry, error) {
	return s.rankEntries(ctx, `
		SELECT u.user_id,
		  COALESCE(NULLIF(u.username, ''), CONCAT_WS(' ', u.first_name, u.last_name)) AS name,
		  st.count::bigint
		FROM achievement_stats st
		JOIN users u ON u.user_id = st.user_id
		WHERE st.chat_id=$1 AND st.key=$2
		ORDER BY st.count DESC, u.user_id ASC
		LIMIT $3
	`, chatID, key, limit)
}

func (s *PostgresStore) AchievementRankGlobal(ctx context.Context, key string, limit int) ([]model.RankEntry, error) {
	return s.rankEntries(ctx, `
		SELECT u.user_id,
		  COALESCE(NULLIF(u.username, ''), CONCAT_WS(' ', u.first_name, u.last_name)) AS name,
		  SUM(st.count)::bigint AS count
		FROM achievement_stats st
		JOIN users u ON u.user_id = st.user_id
		WHERE st.key=$1
		GROUP BY u.user_id
		ORDER BY count DESC, u.user_id ASC
		LIMIT $2
	`, key, limit)
}

func (s *PostgresStore) StreakRank(ctx context.Context, chatID int64, key string, limit int) ([]model.RankEntry, error) {
	return s.rankEntries(ctx, `
		SELECT u.user_id,
		  COALESCE(NULLIF(u.username, ''), CONCAT_WS(' ', u.first_name, u.last_name)) AS name,
		  st.streak::bigint
		FROM streaks st
		JOIN users u ON u.user_id = st.user_id
		WHERE st.chat_id=$1 AND st.key=$2
		ORDER BY st.streak DESC, u.user_id ASC
		LIMIT $3
	`, chatID, key, limit)
}

// StreakRankGlobal keeps each user's best chat only, picked by streak then
// lowest chat id.
func (s *PostgresStore) StreakRankGlobal(ctx context.Context, key string, limit int) ([]model.RankEntry, error) {
	rows, err := s.pool.Query(ctx, `
		WITH ranked AS (
		  SELECT st.user_id, st.chat_id, st.streak,
		    ROW_NUMBER() OVER (PARTITION BY st.user_id ORDER BY st.streak DESC, st.chat_id ASC) AS rn
		  FROM streaks st
		  WHERE st.key=$1
		)
		SELECT u.user_id,
		  COALESCE(NULLIF(u.username, ''), CONCAT_WS(' ', u.first_name, u.last_name)) AS name,
		  r.streak::bigint, r.chat_id, c.title
		FROM ranked r
		JOIN users u ON u.user_id = r.user_id
		LEFT JOIN chats c ON c.chat_id = r.chat_id
		WHERE r.rn=1
		ORDER BY r.streak DESC, u.user_id ASC
		LIMIT $2
	`, key, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query global streak rank: %w", err)
	}
	defer rows.Close()

	var out []model.RankEntry
	for rows.Next() {
		var e model.RankEntry
		var name, title *string
		if err := rows.Scan(&e.UserID, &name, &e.Score, &e.ChatID, &title); err != nil {
			return nil, fmt.Errorf("failed to scan global streak rank: %w", err)
		}
		if name != nil {
			e.Name = *name
		}
		e.Name = displayName(e.Name, e.UserID)
		if title != nil {
			e.ChatTitle = *title
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating global streak rank: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) CreateReminder(ctx context.Context, chatID, userID int64, wakeTime string, nextTrigger time.Time, repeat bool, createdAt time.Time) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx, `
		INSERT INTO wake_reminders(chat_id, user_id, wake_time, next_trigger, repeat, enabled, created_at)
		VALUES($1,$2,$3,$4,$5,true,$6)
		RETURNING id
	`, chatID, userID, wakeTime, nextTrigger, repeat, createdAt).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to create reminder: %w", err)
	}
	return id, nil
}

func (s *PostgresStore) scanReminders(rows pgx.Rows) ([]model.WakeReminder, error) {
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

func (s *PostgresStore) PendingReminders(ctx context.Context, now time.Time) ([]model.WakeReminder, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, chat_id, user_id, wake_time, next_trigger, repeat, enabled
		FROM wake_reminders
		WHERE enabled=true AND next_trigger <= $1
		ORDER BY next_trigger
	`, now)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending reminders: %w", err)
	}
	return s.scanReminders(rows)
}

func (s *PostgresStore) UserReminders(ctx context.Context, chatID, userID int64) ([]model.WakeReminder, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, chat_id, user_id, wake_time, next_trigger, repeat, enabled
		FROM wake_reminders
		WHERE chat_id=$1 AND user_id=$2 AND enabled=true
		ORDER BY wake_time
	`, chatID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query user reminders: %w", err)
	}
	return s.scanReminders(rows)
}

func (s *PostgresStore) UpdateReminderNextTrigger(ctx context.Context, reminderID int64, nextTrigger time.Time) error {
	_, err := s.pool.Exec(ctx, `UPDATE wake_reminders SET next_trigger=$1 WHERE id=$2`, nextTrigger, reminderID)
	if err != nil {
		return fmt.Errorf("failed to update reminder: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteReminder(ctx context.Context, reminderID int64) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM wake_reminders WHERE id=$1`, reminderID)
	if err != nil {
		return fmt.Errorf("failed to delete reminder: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteUserReminders(ctx context.Context, chatID, userID int64) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM wake_reminders WHERE chat_id=$1 AND user_id=$2`, chatID, userID)
	if err != nil {
		return fmt.Errorf("failed to delete user reminders: %w", err)
	}
	return nil
}

func (s *PostgresStore) ActiveRoulette(ctx context.Context, chatID int64) (*model.RouletteGame, error) {
	var g model.RouletteGame
	err := s.pool.QueryRow(ctx, `
		SELECT chat_id, chambers, bullet_position, current_position, created_by, created_at
		FROM russian_roulette WHERE chat_id=$1
	`, chatID).Scan(&g.ChatID, &g.Chambers, &g.BulletPosition, &g.CurrentPosition, &g.CreatedBy, &g.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get roulette game: %w", err)
	}
	return &g, nil
}

func (s *PostgresStore) CreateRoulette(ctx context.Context, chatID int64, chambers, bulletPosition int, createdBy int64, createdAt time.Time) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO russian_roulette(chat_id, chambers, bullet_position, current_position, created_by, created_at)
		VALUES($1,$2,$3,0,$4,$5)
	`, chatID, chambers, bulletPosition, createdBy, createdAt)
	if err != nil {
		return fmt.Errorf("failed to create roulette game: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateRoulettePosition(ctx context.Context, chatID int64, position int) error {
	_, err := s.pool.Exec(ctx, `UPDATE russian_roulette SET current_position=$1 WHERE chat_id=$2`, position, chatID)
	if err != nil {
		return fmt.Errorf("failed to update roulette position: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteRoulette(ctx context.Context, chatID int64) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM russian_roulette WHERE chat_id=$1`, chatID)
	if err != nil {
		return fmt.Errorf("failed to delete roulette game: %w", err)
	}
	return nil
}

func (s *PostgresStore) RecordRouletteAttempt(ctx context.Context, chatID, userID int64, position int, result string, createdAt time.Time) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO roulette_attempts(chat_id, user_id, position, result, created_at)
		VALUES($1,$2,$3,$4,$5)
	`, chatID, userID, position, result, createdAt)
	if err != nil {
		return fmt.Errorf("failed to record roulette attempt: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreateRSPGame(ctx context.Context, chatID, challengerID, opponentID, messageID int64, createdAt time.Time) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx, `
		INSERT INTO rsp_games(chat_id, challenger_id, opponent_id, status, message_id, created_at)
		VALUES($1,$2,$3,'pending',$4,$5)
		RETURNING id
	`, chatID, challengerID, opponentID, messageID, createdAt).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to create rsp game: %w", err)
	}
	return id, nil
}

func scanPgRSPGame(row pgx.Row) (*model.RSPGame, error) {
	var g model.RSPGame
	var cc, oc *string
	var winner, msgID *int64
	err := row.Scan(&g.ID, &g.ChatID, &g.ChallengerID, &g.OpponentID, &cc, &oc, &g.Status, &winner, &msgID, &g.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan rsp game: %w", err)
	}
	if cc != nil {
		g.ChallengerChoice = *cc
	}
	if oc != nil {
		g.OpponentChoice = *oc
	}
	if winner != nil {
		g.WinnerID = *winner
	}
	if msgID != nil {
		g.MessageID = *msgID
	}
	return &g, nil
}

func (s *PostgresStore) GetRSPGame(ctx context.Context, gameID int64) (*model.RSPGame, error) {
	return scanPgRSPGame(s.pool.QueryRow(ctx, `
		SELECT id, chat_id, challenger_id, opponent_id, challenger_choice, opponent_choice,
		       status, winner_id, message_id, created_at
		FROM rsp_games WHERE id=$1
	`, gameID))
}

func (s *PostgresStore) PendingRSPGame(ctx context.Context, chatID, userID int64) (*model.RSPGame, error) {
	return scanPgRSPGame(s.pool.QueryRow(ctx, `
		SELECT id, chat_id, challenger_id, opponent_id, challenger_choice, opponent_choice,
		       status, winner_id, message_id, created_at
		FROM rsp_games
		WHERE chat_id=$1 AND status='pending' AND (challenger_id=$2 OR opponent_id=$2)
		ORDER BY id DESC
		LIMIT 1
	`, chatID, userID))
}

func (s *PostgresStore) UpdateRSPChoice(ctx context.Context, gameID, userID int64, choice string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE rsp_games SET
		  challenger_choice = CASE WHEN challenger_id=$2 THEN $3 ELSE challenger_choice END,
		  opponent_choice   = CASE WHEN opponent_id=$2 AND challenger_id<>$2 THEN $3 ELSE opponent_choice END
		WHERE id=$1
	`, gameID, userID, choice)
	if err != nil {
		return fmt.Errorf("failed to update rsp choice: %w", err)
	}
	return nil
}

func (s *PostgresStore) CompleteRSPGame(ctx context.Context, gameID, winnerID int64) error {
	var winner any
	if winnerID != 0 {
		winner = winnerID
	}
	_, err := s.pool.Exec(ctx, `
		UPDATE rsp_games SET status='completed', winner_id=$2 WHERE id=$1
	`, gameID, winner)
	if err != nil {
		return fmt.Errorf("failed to complete rsp game: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteRSPGame(ctx context.Context, gameID int64) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM rsp_games WHERE id=$1`, gameID)
	if err != nil {
		return fmt.Errorf("failed to delete rsp game: %w", err)
	}
	return nil
}

func (s *PostgresStore) rspStats(ctx context.Context, chatFilter string, args ...any) (model.RSPStats, error) {
	userIdx := len(args)
	query := fmt.Sprintf(`
		SELECT
		  COUNT(1),
		  COUNT(1) FILTER (WHERE winner_id=$%d),
		  COUNT(1) FILTER (WHERE winner_id IS NULL)
		FROM rsp_games
		WHERE status='completed' AND (challenger_id=$%d OR opponent_id=$%d) %s
	`, userIdx, userIdx, userIdx, chatFilter)

	var st model.RSPStats
	if err := s.pool.QueryRow(ctx, query, args...).Scan(&st.Total, &st.Wins, &st.Draws); err != nil {
		return model.RSPStats{}, fmt.Errorf("failed to get rsp stats: %w", err)
	}
	st.Losses = st.Total - st.Wins - st.Draws
	return st, nil
}

func (s *PostgresStore) RSPStats(ctx context.Context, chatID, userID int64) (model.RSPStats, error) {
	return s.rspStats(ctx, "AND chat_id=$1", chatID, userID)
}

func (s *PostgresStore) RSPStatsGlobal(ctx context.Context, userID int64) (model.RSPStats, error) {
	return s.rspStats(ctx, "", userID)
}
