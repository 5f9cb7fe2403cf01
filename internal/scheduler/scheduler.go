// Package scheduler polls for due wake reminders and delivers them.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/rs/zerolog/log"

	"telegram-zao-bot/internal/messages"
	"telegram-zao-bot/internal/service"
)

// Sender delivers a text message to a chat.
type Sender interface {
	Send(chatID int64, text string) error
}

// Scheduler runs the reminder poll loop on a fixed interval.
type Scheduler struct {
	sched     gocron.Scheduler
	reminders *service.ReminderService
	sender    Sender
	msgs      *messages.Catalog
	loc       *time.Location
}

// New builds the scheduler and registers the poll job.
func New(reminders *service.ReminderService, sender Sender, msgs *messages.Catalog, interval time.Duration, loc *time.Location) (*Scheduler, error) {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}

	s := &Scheduler{
		sched:     sched,
		reminders: reminders,
		sender:    sender,
		msgs:      msgs,
		loc:       loc,
	}

	if _, err := sched.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(s.poll),
	); err != nil {
		return nil, fmt.Errorf("failed to register reminder job: %w", err)
	}
	return s, nil
}

// Start begins polling.
func (s *Scheduler) Start() {
	s.sched.Start()
	log.Info().Msg("Reminder scheduler started")
}

// Stop shuts the scheduler down.
func (s *Scheduler) Stop() {
	if err := s.sched.Shutdown(); err != nil {
		log.Error().Err(err).Msg("Failed to shut down scheduler")
	}
}

// poll delivers every due reminder, then advances repeating ones and
// deletes one-shot ones. A failed send leaves the reminder due so the next
// poll retries it.
func (s *Scheduler) poll() {
	ctx := context.Background()
	now := time.Now().In(s.loc)

	due, err := s.reminders.Due(ctx, now)
	if err != nil {
		log.Error().Err(err).Msg("Failed to query due reminders")
		return
	}

	for _, r := range due {
		text := s.msgs.Render("remind_fire", map[string]string{"time": r.WakeTime})
		if err := s.sender.Send(r.ChatID, text); err != nil {
			log.Error().Err(err).
				Int64("chat_id", r.ChatID).
				Int64("reminder_id", r.ID).
				Msg("Failed to deliver reminder")
			continue
		}
		if err := s.reminders.Fired(ctx, r, now); err != nil {
			log.Error().Err(err).
				Int64("reminder_id", r.ID).
				Msg("Failed to advance reminder")
		}
	}
}
