package service

import (
	"context"
	"time"

	"telegram-zao-bot/internal/calendar"
	"telegram-zao-bot/internal/model"
	"telegram-zao-bot/internal/storage"
)

// OntimeWindow is the tolerance around the 8 hour target.
const OntimeWindow = 60 * time.Second

// LongDayThreshold is the minimum duration of a long-day session.
const LongDayThreshold = 12 * time.Hour

// OntimeTarget is the session duration the on-time achievement rewards.
const OntimeTarget = 8 * time.Hour

// Award is one achievement granted by an event. Streak carries the streak
// length for streak-based keys, 0 otherwise.
type Award struct {
	Key    string
	Streak int
}

// AchievementService evaluates the award rules on check-in and check-out.
// Deduplication lives in the storage constraints, so concurrent evaluation
// of the same event cannot double-award.
type AchievementService struct {
	store  storage.Store
	cutoff int
	// ontimeRepeatable grants ontime_8h on every qualifying session instead
	// of once per chat.
	ontimeRepeatable bool
}

func NewAchievementService(store storage.Store, cutoffHour int, ontimeRepeatable bool) *AchievementService {
	return &AchievementService{store: store, cutoff: cutoffHour, ontimeRepeatable: ontimeRepeatable}
}

// OnCheckIn runs the earliest-of-the-day rules. Only the check-in that wins
// the daily_earliest row proceeds to awarding and streak maintenance.
func (s *AchievementService) OnCheckIn(ctx context.Context, chatID, userID, sessionID int64, checkIn time.Time, day string) ([]Award, error) {
	won, err := s.store.SetDailyEarliest(ctx, chatID, day, userID, sessionID, checkIn, checkIn)
	if err != nil {
		return nil, err
	}
	if !won {
		return nil, nil
	}

	var awards []Award
	newly, err := s.store.AwardAchievement(ctx, chatID, userID, model.AchDailyEarliest, day, 0, checkIn)
	if err != nil {
		return nil, err
	}
	if newly {
		awards = append(awards, Award{Key: model.AchDailyEarliest})
	}

	streak, err := s.store.UpdateStreak(ctx, chatID, userID, model.StreakKeyEarliest, day, checkIn)
	if err != nil {
		return nil, err
	}
	if streak > 0 && streak%7 == 0 {
		newly, err := s.store.AwardAchievement(ctx, chatID, userID, model.AchStreakEarliest7, day, 0, checkIn)
		if err != nil {
			return nil, err
		}
		if newly {
			awards = append(awards, Award{Key: model.AchStreakEarliest7, Streak: streak})
		}
	}
	return awards, nil
}

// OnCheckOut runs the duration rules. The weekday test applies to the
// business day the session was opened on, not the day it closed.
func (s *AchievementService) OnCheckOut(ctx context.Context, chatID, userID int64, res *model.CheckOutResult) ([]Award, error) {
	day := calendar.BusinessDayKey(res.CheckIn, s.cutoff)
	if !calendar.IsWeekday(day) {
		return nil, nil
	}

	var awards []Award
	diff := res.Duration - OntimeTarget
	if diff < 0 {
		diff = -diff
	}
	if diff <= OntimeWindow {
		eligible := true
		if !s.ontimeRepeatable {
			count, err := s.store.AchievementCount(ctx, chatID, userID, model.AchOntime8h)
			if err != nil {
				return nil, err
			}
			eligible = count == 0
		}
		if eligible {
			newly, err := s.store.AwardAchievement(ctx, chatID, userID, model.AchOntime8h, "", res.SessionID, res.CheckOut)
			if err != nil {
				return nil, err
			}
			if newly {
				awards = append(awards, Award{Key: model.AchOntime8h})
			}
		}
	}

	if res.Duration > LongDayThreshold {
		newly, err := s.store.AwardAchievement(ctx, chatID, userID, model.AchLongday12h, "", res.SessionID, res.CheckOut)
		if err != nil {
			return nil, err
		}
		if newly {
			awards = append(awards, Award{Key: model.AchLongday12h})
		}
	}
	return awards, nil
}
