package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"time"

	"telegram-zao-bot/internal/model"
	"telegram-zao-bot/internal/storage"
)

// ErrInvalidWakeTime rejects reminder times that are not HH:MM.
var ErrInvalidWakeTime = errors.New("invalid wake time, expected HH:MM")

var wakeTimeRe = regexp.MustCompile(`^([01]?\d|2[0-3]):([0-5]\d)$`)

// ReminderService manages wake reminders and computes their trigger times
// in the bot's configured location.
type ReminderService struct {
	store storage.Store
	loc   *time.Location
}

func NewReminderService(store storage.Store, loc *time.Location) *ReminderService {
	return &ReminderService{store: store, loc: loc}
}

// Create registers a reminder at wakeTime ("HH:MM"). The first trigger is
// the next occurrence of that wall-clock time after now.
func (s *ReminderService) Create(ctx context.Context, chatID, userID int64, wakeTime string, repeat bool, now time.Time) (*model.WakeReminder, error) {
	m := wakeTimeRe.FindStringSubmatch(wakeTime)
	if m == nil {
		return nil, ErrInvalidWakeTime
	}
	hour, _ := strconv.Atoi(m[1])
	minute, _ := strconv.Atoi(m[2])
	normalized := fmt.Sprintf("%02d:%02d", hour, minute)

	local := now.In(s.loc)
	next := time.Date(local.Year(), local.Month(), local.Day(), hour, minute, 0, 0, s.loc)
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}

	id, err := s.store.CreateReminder(ctx, chatID, userID, normalized, next, repeat, now)
	if err != nil {
		return nil, err
	}
	return &model.WakeReminder{
		ID:          id,
		ChatID:      chatID,
		UserID:      userID,
		WakeTime:    normalized,
		NextTrigger: next,
		Repeat:      repeat,
		Enabled:     true,
	}, nil
}

// List returns the user's enabled reminders in this chat.
func (s *ReminderService) List(ctx context.Context, chatID, userID int64) ([]model.WakeReminder, error) {
	return s.store.UserReminders(ctx, chatID, userID)
}

// Clear removes all of the user's reminders in this chat.
func (s *ReminderService) Clear(ctx context.Context, chatID, userID int64) error {
	return s.store.DeleteUserReminders(ctx, chatID, userID)
}

// Due returns reminders whose trigger time has passed.
func (s *ReminderService) Due(ctx context.Context, now time.Time) ([]model.WakeReminder, error) {
	return s.store.PendingReminders(ctx, now)
}

// Fired advances a repeating reminder past now in whole days and deletes a
// one-shot one.
func (s *ReminderService) Fired(ctx context.Context, r model.WakeReminder, now time.Time) error {
	if !r.Repeat {
		return s.store.DeleteReminder(ctx, r.ID)
	}
	next := r.NextTrigger
	for !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return s.store.UpdateReminderNextTrigger(ctx, r.ID, next)
}
