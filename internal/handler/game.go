package handler

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"telegram-zao-bot/internal/messages"
	"telegram-zao-bot/internal/model"
	"telegram-zao-bot/internal/service"
)

// GameHandler serves the chat games: /roulette, /pull and /rsp.
type GameHandler struct {
	roulette *service.RouletteService
	rsp      *service.RSPService
	msgs     *messages.Catalog
	loc      *time.Location
}

func NewGameHandler(roulette *service.RouletteService, rsp *service.RSPService, msgs *messages.Catalog, loc *time.Location) *GameHandler {
	return &GameHandler{roulette: roulette, rsp: rsp, msgs: msgs, loc: loc}
}

func (h *GameHandler) fail(c tele.Context, err error, op string) error {
	log.Error().Err(err).Str("op", op).Msg("Handler failed")
	return c.Reply(h.msgs.Render("internal_error", nil))
}

// HandleRoulette loads a revolver: /roulette [chambers].
func (h *GameHandler) HandleRoulette(c tele.Context) error {
	chat, sender := c.Chat(), c.Sender()
	if chat == nil || sender == nil {
		return nil
	}
	chambers := service.DefaultChambers
	if args := argsLower(c); len(args) > 0 {
		if n, err := strconv.Atoi(args[0]); err == nil && n >= 2 && n <= 100 {
			chambers = n
		}
	}

	now := EventTime(c, h.loc)
	game, err := h.roulette.Start(context.Background(), chat.ID, sender.ID, chambers, now)
	if err != nil {
		if errors.Is(err, service.ErrGameInProgress) {
			return c.Reply(h.msgs.Render("roulette_in_progress", nil))
		}
		return h.fail(c, err, "roulette")
	}
	return c.Reply(h.msgs.Render("roulette_started", map[string]string{
		"chambers": itoa(game.Chambers),
	}))
}

// HandlePull pulls the trigger of the chat's active revolver.
func (h *GameHandler) HandlePull(c tele.Context) error {
	chat, sender := c.Chat(), c.Sender()
	if chat == nil || sender == nil {
		return nil
	}
	now := EventTime(c, h.loc)
	res, err := h.roulette.Pull(context.Background(), chat.ID, sender.ID, now)
	if err != nil {
		if errors.Is(err, service.ErrNoActiveGame) {
			return c.Reply(h.msgs.Render("roulette_none", nil))
		}
		return h.fail(c, err, "pull")
	}

	key := "roulette_safe"
	if res.Bang {
		key = "roulette_bang"
	}
	return c.Reply(h.msgs.Render(key, map[string]string{
		"name":     DisplayName(sender),
		"pos":      itoa(res.Position),
		"chambers": itoa(res.Chambers),
	}))
}

// HandleRSP starts a rock-paper-scissors challenge against the sender of
// the replied-to message.
func (h *GameHandler) HandleRSP(c tele.Context) error {
	chat, sender := c.Chat(), c.Sender()
	if chat == nil || sender == nil {
		return nil
	}
	m := c.Message()
	if m == nil || m.ReplyTo == nil || m.ReplyTo.Sender == nil {
		return c.Reply(h.msgs.Render("rsp_usage", nil))
	}
	opponent := m.ReplyTo.Sender

	now := EventTime(c, h.loc)
	gameID, err := h.rsp.Challenge(context.Background(), chat.ID, sender.ID, opponent.ID, int64(m.ID), now)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrSelfChallenge):
			return c.Reply(h.msgs.Render("rsp_self", nil))
		case errors.Is(err, service.ErrPendingGame):
			return c.Reply(h.msgs.Render("rsp_pending", nil))
		}
		return h.fail(c, err, "rsp")
	}

	markup := &tele.ReplyMarkup{}
	rock := markup.Data(h.msgs.Render("rsp_choice_rock", nil), "rsp", strconv.FormatInt(gameID, 10), model.RSPRock)
	paper := markup.Data(h.msgs.Render("rsp_choice_paper", nil), "rsp", strconv.FormatInt(gameID, 10), model.RSPPaper)
	scissors := markup.Data(h.msgs.Render("rsp_choice_scissors", nil), "rsp", strconv.FormatInt(gameID, 10), model.RSPScissors)
	markup.Inline(markup.Row(rock, paper, scissors))

	return c.Reply(h.msgs.Render("rsp_challenge", map[string]string{
		"challenger": DisplayName(sender),
		"opponent":   DisplayName(opponent),
	}), markup)
}

// HandleRSPCallback records a button press: data is "rsp|<gameID>|<choice>".
func (h *GameHandler) HandleRSPCallback(c tele.Context) error {
	cb := c.Callback()
	if cb == nil || cb.Sender == nil {
		return nil
	}
	data := strings.TrimPrefix(cb.Data, "\f")
	parts := strings.Split(data, "|")
	if len(parts) != 3 || parts[0] != "rsp" {
		return c.Respond()
	}
	gameID, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return c.Respond()
	}
	choice := parts[2]

	game, completed, err := h.rsp.Choose(context.Background(), gameID, cb.Sender.ID, choice)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrNotParticipant):
			return c.Respond(&tele.CallbackResponse{Text: h.msgs.Render("rsp_not_player", nil)})
		case errors.Is(err, service.ErrGameFinished):
			return c.Respond(&tele.CallbackResponse{Text: h.msgs.Render("rsp_finished", nil)})
		case errors.Is(err, service.ErrInvalidChoice):
			return c.Respond()
		}
		log.Error().Err(err).Msg("Handler failed")
		return c.Respond(&tele.CallbackResponse{Text: h.msgs.Render("internal_error", nil)})
	}

	if !completed {
		return c.Respond(&tele.CallbackResponse{Text: h.msgs.Render("rsp_chosen", nil)})
	}

	if err := c.Respond(); err != nil {
		return err
	}
	return c.Send(h.resultText(c, game))
}

func (h *GameHandler) resultText(c tele.Context, game *model.RSPGame) string {
	challenger := h.userName(c, game.ChatID, game.ChallengerID)
	opponent := h.userName(c, game.ChatID, game.OpponentID)

	if game.WinnerID == 0 {
		return h.msgs.Render("rsp_draw", map[string]string{
			"challenger": challenger,
			"opponent":   opponent,
			"choice":     h.choiceName(game.ChallengerChoice),
		})
	}

	winner := challenger
	if game.WinnerID == game.OpponentID {
		winner = opponent
	}
	return h.msgs.Render("rsp_win", map[string]string{
		"winner":     winner,
		"challenger": challenger,
		"opponent":   opponent,
		"cc":         h.choiceName(game.ChallengerChoice),
		"oc":         h.choiceName(game.OpponentChoice),
	})
}

func (h *GameHandler) choiceName(choice string) string {
	return h.msgs.Render("rsp_choice_"+choice, nil)
}

// userName resolves a participant's display name through the chat member
// API, falling back to the bare id.
func (h *GameHandler) userName(c tele.Context, chatID, userID int64) string {
	member, err := c.Bot().ChatMemberOf(&tele.Chat{ID: chatID}, &tele.User{ID: userID})
	if err != nil || member.User == nil {
		return strconv.FormatInt(userID, 10)
	}
	return DisplayName(member.User)
}
