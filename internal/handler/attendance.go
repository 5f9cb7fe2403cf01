package handler

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"telegram-zao-bot/internal/calendar"
	"telegram-zao-bot/internal/messages"
	"telegram-zao-bot/internal/service"
)

// AttendanceHandler serves /zao, /wan and /awake.
type AttendanceHandler struct {
	sessions     *service.SessionService
	achievements *service.AchievementService
	msgs         *messages.Catalog
	loc          *time.Location
}

func NewAttendanceHandler(sessions *service.SessionService, achievements *service.AchievementService, msgs *messages.Catalog, loc *time.Location) *AttendanceHandler {
	return &AttendanceHandler{sessions: sessions, achievements: achievements, msgs: msgs, loc: loc}
}

func (h *AttendanceHandler) fail(c tele.Context, err error, op string) error {
	log.Error().Err(err).Str("op", op).Msg("Handler failed")
	return c.Reply(h.msgs.Render("internal_error", nil))
}

// HandleZao checks the sender in for the current business day.
func (h *AttendanceHandler) HandleZao(c tele.Context) error {
	chat, sender := c.Chat(), c.Sender()
	if chat == nil || sender == nil {
		return nil
	}
	ctx := context.Background()
	now := EventTime(c, h.loc)
	name := DisplayName(sender)
	day := h.sessions.Day(now)

	completed, err := h.sessions.CompletedToday(ctx, chat.ID, sender.ID, day)
	if err != nil {
		return h.fail(c, err, "zao")
	}
	if completed {
		return c.Reply(h.msgs.Render("day_ended", map[string]string{"name": name}))
	}

	out, err := h.sessions.CheckIn(ctx, chat.ID, sender.ID, now)
	if err != nil {
		return h.fail(c, err, "zao")
	}

	if out.Status == service.CheckInDuplicate {
		open, err := h.sessions.OpenToday(ctx, chat.ID, sender.ID, day)
		if err != nil {
			return h.fail(c, err, "zao")
		}
		if open == nil {
			return c.Reply(h.msgs.Render("checkin_inconsistent", nil))
		}
		return c.Reply(h.msgs.Render("checkin_already", map[string]string{
			"name":     name,
			"check_in": calendar.FormatTime(open.CheckIn),
			"awake":    calendar.FormatDuration(now.Sub(open.CheckIn)),
		}))
	}

	if out.SessionID == 0 {
		return c.Reply(h.msgs.Render("checkin_ok", map[string]string{
			"name": name,
			"time": calendar.FormatTime(now),
		}))
	}

	if err := c.Reply(h.msgs.Render("checkin_ok_with_order", map[string]string{
		"name": name,
		"time": calendar.FormatTime(now),
		"n":    itoa(out.Position),
	})); err != nil {
		return err
	}

	awards, err := h.achievements.OnCheckIn(ctx, chat.ID, sender.ID, out.SessionID, out.CheckIn, out.Day)
	if err != nil {
		log.Error().Err(err).Msg("Achievement evaluation failed on check-in")
		return nil
	}
	return h.announceAwards(c, awards)
}

// HandleWan checks the sender out.
func (h *AttendanceHandler) HandleWan(c tele.Context) error {
	chat, sender := c.Chat(), c.Sender()
	if chat == nil || sender == nil {
		return nil
	}
	ctx := context.Background()
	now := EventTime(c, h.loc)
	name := DisplayName(sender)

	out, err := h.sessions.CheckOut(ctx, chat.ID, sender.ID, now)
	if err != nil {
		return h.fail(c, err, "wan")
	}

	switch out.Status {
	case service.CheckOutDayCompleted:
		return c.Reply(h.msgs.Render("day_ended", map[string]string{"name": name}))
	case service.CheckOutStaleOpen:
		return c.Reply(h.msgs.Render("checkout_stale_open", map[string]string{
			"name": name,
			"day":  out.StaleDay,
		}))
	case service.CheckOutNoSession:
		return c.Reply(h.msgs.Render("checkout_not_checked_in", map[string]string{"name": name}))
	}

	res := out.Result
	if err := c.Reply(h.msgs.Render("checkout_ok", map[string]string{
		"name":     name,
		"time":     calendar.FormatTime(res.CheckOut),
		"awake":    calendar.FormatDuration(res.Duration),
		"check_in": calendar.FormatTime(res.CheckIn),
	})); err != nil {
		return err
	}

	awards, err := h.achievements.OnCheckOut(ctx, chat.ID, sender.ID, res)
	if err != nil {
		log.Error().Err(err).Msg("Achievement evaluation failed on check-out")
		return nil
	}
	return h.announceAwards(c, awards)
}

// HandleAwake reports how long the target has been awake. Replying to
// someone's message queries them instead of the sender.
func (h *AttendanceHandler) HandleAwake(c tele.Context) error {
	chat := c.Chat()
	if chat == nil {
		return nil
	}
	target := TargetUser(c)
	if target == nil {
		return nil
	}
	ctx := context.Background()
	now := EventTime(c, h.loc)
	name := DisplayName(target)

	open, err := h.sessions.Awake(ctx, chat.ID, target.ID)
	if err != nil {
		return h.fail(c, err, "awake")
	}
	if open == nil {
		return c.Reply(h.msgs.Render("awake_none", map[string]string{"name": name}))
	}
	return c.Reply(h.msgs.Render("awake_open", map[string]string{
		"name":     name,
		"awake":    calendar.FormatDuration(now.Sub(open.CheckIn)),
		"check_in": calendar.FormatTime(open.CheckIn),
	}))
}

// HandleStart and HandleHelp both print the command overview.
func (h *AttendanceHandler) HandleStart(c tele.Context) error {
	return c.Reply(h.msgs.Render("help", nil))
}

func (h *AttendanceHandler) announceAwards(c tele.Context, awards []service.Award) error {
	if len(awards) == 0 {
		return nil
	}
	names := make([]string, 0, len(awards))
	for _, a := range awards {
		names = append(names, h.msgs.Render("ach_name_"+a.Key, nil))
	}
	return c.Reply(h.msgs.Render("ach_unlocked", map[string]string{
		"achievements": joinChinese(names),
	}))
}
