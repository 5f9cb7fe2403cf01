package handler

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"telegram-zao-bot/internal/calendar"
	"telegram-zao-bot/internal/messages"
	"telegram-zao-bot/internal/service"
)

// ReminderHandler serves /remind, /reminders and /unremind.
type ReminderHandler struct {
	reminders *service.ReminderService
	msgs      *messages.Catalog
	loc       *time.Location
}

func NewReminderHandler(reminders *service.ReminderService, msgs *messages.Catalog, loc *time.Location) *ReminderHandler {
	return &ReminderHandler{reminders: reminders, msgs: msgs, loc: loc}
}

func (h *ReminderHandler) fail(c tele.Context, err error, op string) error {
	log.Error().Err(err).Str("op", op).Msg("Handler failed")
	return c.Reply(h.msgs.Render("internal_error", nil))
}

// HandleRemind creates a wake reminder: /remind HH:MM [repeat].
func (h *ReminderHandler) HandleRemind(c tele.Context) error {
	chat, sender := c.Chat(), c.Sender()
	if chat == nil || sender == nil {
		return nil
	}
	args := argsLower(c)
	if len(args) == 0 {
		return c.Reply(h.msgs.Render("remind_usage", nil))
	}
	repeat := len(args) > 1 && (args[1] == "repeat" || args[1] == "daily")

	ctx := context.Background()
	now := EventTime(c, h.loc)
	r, err := h.reminders.Create(ctx, chat.ID, sender.ID, args[0], repeat, now)
	if err != nil {
		if errors.Is(err, service.ErrInvalidWakeTime) {
			return c.Reply(h.msgs.Render("remind_invalid", nil))
		}
		return h.fail(c, err, "remind")
	}
	return c.Reply(h.msgs.Render("remind_created", map[string]string{
		"time": r.WakeTime,
		"next": calendar.FormatTime(r.NextTrigger.In(h.loc)),
	}))
}

// HandleReminders lists the sender's reminders in this chat.
func (h *ReminderHandler) HandleReminders(c tele.Context) error {
	chat, sender := c.Chat(), c.Sender()
	if chat == nil || sender == nil {
		return nil
	}
	ctx := context.Background()
	list, err := h.reminders.List(ctx, chat.ID, sender.ID)
	if err != nil {
		return h.fail(c, err, "reminders")
	}
	if len(list) == 0 {
		return c.Reply(h.msgs.Render("remind_none", nil))
	}

	lines := make([]string, 0, len(list))
	for _, r := range list {
		repeat := ""
		if r.Repeat {
			repeat = h.msgs.Render("remind_repeat", nil)
		}
		lines = append(lines, h.msgs.Render("remind_line", map[string]string{
			"time":   r.WakeTime,
			"repeat": repeat,
		}))
	}
	return c.Reply(h.msgs.Render("remind_list", map[string]string{
		"lines": strings.Join(lines, "\n"),
	}))
}

// HandleUnremind removes all of the sender's reminders in this chat.
func (h *ReminderHandler) HandleUnremind(c tele.Context) error {
	chat, sender := c.Chat(), c.Sender()
	if chat == nil || sender == nil {
		return nil
	}
	if err := h.reminders.Clear(context.Background(), chat.ID, sender.ID); err != nil {
		return h.fail(c, err, "unremind")
	}
	return c.Reply(h.msgs.Render("remind_cleared", nil))
}
