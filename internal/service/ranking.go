package service

import (
	"context"
	"time"

	"telegram-zao-bot/internal/model"
	"telegram-zao-bot/internal/storage"
)

// RankLimit caps ranking output.
const RankLimit = 20

// RankingService answers leaderboard and achievement-summary queries.
type RankingService struct {
	store  storage.Store
	cutoff int
}

func NewRankingService(store storage.Store, cutoffHour int) *RankingService {
	return &RankingService{store: store, cutoff: cutoffHour}
}

// Leaderboard returns ranked awake times plus the set of users currently
// checked in, for the awake/asleep markers.
func (s *RankingService) Leaderboard(ctx context.Context, chatID int64, mode model.RankMode, global bool, now time.Time) ([]model.RankEntry, map[int64]struct{}, error) {
	var (
		entries []model.RankEntry
		open    map[int64]struct{}
		err     error
	)
	if global {
		entries, err = s.store.LeaderboardGlobal(ctx, mode, now)
	} else {
		entries, err = s.store.Leaderboard(ctx, chatID, mode, now)
	}
	if err != nil {
		return nil, nil, err
	}

	if global {
		open, err = s.store.OpenUserIDsGlobal(ctx, "")
	} else {
		open, err = s.store.OpenUserIDs(ctx, chatID, "")
	}
	if err != nil {
		return nil, nil, err
	}
	return entries, open, nil
}

// AchievementSummary is a user's per-key counts plus their current
// earliest-streak, either for one chat or their best across all chats.
type AchievementSummary struct {
	Stats         []model.AchievementStat
	Streak        int
	TotalEarliest int
	ChatTitle     string // best chat for global summaries
}

func (s *RankingService) AchievementSummary(ctx context.Context, chatID, userID int64, global bool) (*AchievementSummary, error) {
	sum := &AchievementSummary{}
	var err error
	if global {
		sum.Stats, err = s.store.AchievementStatsGlobal(ctx, userID)
		if err != nil {
			return nil, err
		}
		sum.TotalEarliest, err = s.store.AchievementCountGlobal(ctx, userID, model.AchDailyEarliest)
		if err != nil {
			return nil, err
		}
		best, err := s.store.BestStreakGlobal(ctx, userID, model.StreakKeyEarliest)
		if err != nil {
			return nil, err
		}
		sum.Streak = best.Streak
		sum.ChatTitle = best.ChatTitle
		return sum, nil
	}

	sum.Stats, err = s.store.AchievementStats(ctx, chatID, userID)
	if err != nil {
		return nil, err
	}
	sum.TotalEarliest, err = s.store.AchievementCount(ctx, chatID, userID, model.AchDailyEarliest)
	if err != nil {
		return nil, err
	}
	sum.Streak, err = s.store.GetStreak(ctx, chatID, userID, model.StreakKeyEarliest)
	if err != nil {
		return nil, err
	}
	return sum, nil
}

// AchievementRank ranks users of a chat (or everyone) by award count.
func (s *RankingService) AchievementRank(ctx context.Context, chatID int64, key string, global bool) ([]model.RankEntry, error) {
	if global {
		return s.store.AchievementRankGlobal(ctx, key, RankLimit)
	}
	return s.store.AchievementRank(ctx, chatID, key, RankLimit)
}

// StreakRank ranks users by earliest-streak length. Globally each user is
// represented by their single best chat.
func (s *RankingService) StreakRank(ctx context.Context, chatID int64, global bool) ([]model.RankEntry, error) {
	if global {
		return s.store.StreakRankGlobal(ctx, model.StreakKeyEarliest, RankLimit)
	}
	return s.store.StreakRank(ctx, chatID, model.StreakKeyEarliest, RankLimit)
}
