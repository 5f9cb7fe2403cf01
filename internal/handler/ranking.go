package handler

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"telegram-zao-bot/internal/calendar"
	"telegram-zao-bot/internal/messages"
	"telegram-zao-bot/internal/model"
	"telegram-zao-bot/internal/service"
)

// RankingHandler serves /rank, /ach and /achrank.
type RankingHandler struct {
	ranking *service.RankingService
	msgs    *messages.Catalog
	loc     *time.Location
}

func NewRankingHandler(ranking *service.RankingService, msgs *messages.Catalog, loc *time.Location) *RankingHandler {
	return &RankingHandler{ranking: ranking, msgs: msgs, loc: loc}
}

func (h *RankingHandler) fail(c tele.Context, err error, op string) error {
	log.Error().Err(err).Str("op", op).Msg("Handler failed")
	return c.Reply(h.msgs.Render("internal_error", nil))
}

// HandleRank prints the awake-time leaderboard. Arguments: "all" switches
// to the completed-sessions total, "global" spans all chats.
func (h *RankingHandler) HandleRank(c tele.Context) error {
	chat := c.Chat()
	if chat == nil {
		return nil
	}
	args, global := popGlobal(argsLower(c))

	mode := model.RankToday
	if len(args) > 0 {
		switch args[0] {
		case "all", "total", "overall":
			mode = model.RankAll
		case "today", "day", "daily":
			mode = model.RankToday
		}
	}

	titleKey := "rank_title_today"
	if mode == model.RankAll {
		titleKey = "rank_title_all"
	}
	if global {
		titleKey += "_global"
	}
	title := h.msgs.Render(titleKey, nil)

	ctx := context.Background()
	now := EventTime(c, h.loc)
	entries, open, err := h.ranking.Leaderboard(ctx, chat.ID, mode, global, now)
	if err != nil {
		return h.fail(c, err, "rank")
	}
	if len(entries) == 0 {
		return c.Reply(h.msgs.Render("rank_no_data", map[string]string{"title": title}))
	}

	lines := []string{h.msgs.Render("rank_header", map[string]string{
		"title": title,
		"time":  calendar.FormatTime(now),
	})}
	for i, e := range entries {
		if i >= service.RankLimit {
			break
		}
		emoji := "💤"
		if _, ok := open[e.UserID]; ok {
			emoji = "🔥"
		}
		lines = append(lines, h.msgs.Render("rank_line", map[string]string{
			"idx":   itoa(i + 1),
			"name":  e.Name,
			"awake": calendar.FormatDuration(time.Duration(e.Score) * time.Second),
			"emoji": emoji,
		}))
	}
	return c.Reply(strings.Join(lines, "\n"))
}

// HandleAch prints the target's achievements and earliest-streak, chat-local
// or global.
func (h *RankingHandler) HandleAch(c tele.Context) error {
	chat := c.Chat()
	if chat == nil {
		return nil
	}
	target := TargetUser(c)
	if target == nil {
		return nil
	}
	_, global := popGlobal(argsLower(c))
	name := DisplayName(target)

	ctx := context.Background()
	sum, err := h.ranking.AchievementSummary(ctx, chat.ID, target.ID, global)
	if err != nil {
		return h.fail(c, err, "ach")
	}

	headerKey := "ach_header"
	if global {
		headerKey = "ach_header_global"
	}
	lines := []string{h.msgs.Render(headerKey, map[string]string{"name": name})}

	if len(sum.Stats) == 0 {
		lines = append(lines, h.msgs.Render("ach_none", nil))
	} else {
		for _, st := range sum.Stats {
			lines = append(lines, h.msgs.Render("ach_line", map[string]string{
				"ach":   h.msgs.Render("ach_name_"+st.Key, nil),
				"count": itoa(st.Count),
			}))
		}
	}

	if global {
		chatTitle := sum.ChatTitle
		if chatTitle == "" {
			chatTitle = "-"
		}
		lines = append(lines, h.msgs.Render("ach_streak_earliest_global", map[string]string{
			"streak": itoa(sum.Streak),
			"total":  itoa(sum.TotalEarliest),
			"chat":   chatTitle,
		}))
	} else {
		lines = append(lines, h.msgs.Render("ach_streak_earliest", map[string]string{
			"streak": itoa(sum.Streak),
			"total":  itoa(sum.TotalEarliest),
		}))
	}
	return c.Reply(strings.Join(lines, "\n"))
}

// HandleAchRank prints one of the achievement leaderboards:
// daily, streak, ontime or longday, optionally global.
func (h *RankingHandler) HandleAchRank(c tele.Context) error {
	chat := c.Chat()
	if chat == nil {
		return nil
	}
	args, global := popGlobal(argsLower(c))
	kind := "daily"
	if len(args) > 0 {
		kind = args[0]
	}

	ctx := context.Background()
	switch kind {
	case "daily", "earliest":
		return h.countRank(ctx, c, chat.ID, model.AchDailyEarliest, "daily", global)
	case "streak", "consecutive":
		return h.streakRank(ctx, c, chat.ID, global)
	case "ontime", "8h", "8":
		return h.countRank(ctx, c, chat.ID, model.AchOntime8h, "ontime", global)
	case "longday", "12h", "12":
		return h.countRank(ctx, c, chat.ID, model.AchLongday12h, "longday", global)
	}
	return c.Reply(h.msgs.Render("ach_rank_help", nil))
}

func (h *RankingHandler) countRank(ctx context.Context, c tele.Context, chatID int64, key, titleKind string, global bool) error {
	titleKey := "ach_rank_title_" + titleKind
	if global {
		titleKey += "_global"
	}
	rows, err := h.ranking.AchievementRank(ctx, chatID, key, global)
	if err != nil {
		return h.fail(c, err, "achrank")
	}
	if len(rows) == 0 {
		return c.Reply(h.msgs.Render("ach_rank_empty", nil))
	}

	lines := []string{h.msgs.Render(titleKey, nil)}
	for i, e := range rows {
		lines = append(lines, h.msgs.Render("ach_rank_line_count", map[string]string{
			"idx":   itoa(i + 1),
			"name":  e.Name,
			"count": strconv.FormatInt(e.Score, 10),
		}))
	}
	return c.Reply(strings.Join(lines, "\n"))
}

func (h *RankingHandler) streakRank(ctx context.Context, c tele.Context, chatID int64, global bool) error {
	titleKey := "ach_rank_title_streak"
	if global {
		titleKey += "_global"
	}
	rows, err := h.ranking.StreakRank(ctx, chatID, global)
	if err != nil {
		return h.fail(c, err, "achrank")
	}
	if len(rows) == 0 {
		return c.Reply(h.msgs.Render("ach_rank_empty", nil))
	}

	lines := []string{h.msgs.Render(titleKey, nil)}
	for i, e := range rows {
		if global {
			chatTitle := e.ChatTitle
			if chatTitle == "" {
				chatTitle = "-"
			}
			lines = append(lines, h.msgs.Render("ach_rank_line_streak_global", map[string]string{
				"idx":    itoa(i + 1),
				"name":   e.Name,
				"streak": strconv.FormatInt(e.Score, 10),
				"chat":   chatTitle,
			}))
			continue
		}
		lines = append(lines, h.msgs.Render("ach_rank_line_streak", map[string]string{
			"idx":    itoa(i + 1),
			"name":   e.Name,
			"streak": strconv.FormatInt(e.Score, 10),
		}))
	}
	return c.Reply(strings.Join(lines, "\n"))
}
