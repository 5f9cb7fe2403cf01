package bot

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"telegram-zao-bot/internal/config"
	"telegram-zao-bot/internal/handler"
	"telegram-zao-bot/internal/messages"
	"telegram-zao-bot/internal/service"
	"telegram-zao-bot/internal/storage"
)

// Bot wraps the telebot instance with application dependencies.
type Bot struct {
	bot *tele.Bot
	cfg *config.Config

	attendanceHandler *handler.AttendanceHandler
	rankingHandler    *handler.RankingHandler
	yearHandler       *handler.YearHandler
	reminderHandler   *handler.ReminderHandler
	gameHandler       *handler.GameHandler
}

// Dependencies holds everything the bot handlers need.
type Dependencies struct {
	Config       *config.Config
	Store        storage.Store
	Messages     *messages.Catalog
	Sessions     *service.SessionService
	Achievements *service.AchievementService
	Ranking      *service.RankingService
	Reminders    *service.ReminderService
	Roulette     *service.RouletteService
	RSP          *service.RSPService
}

// New creates a new Bot instance with the given dependencies.
func New(deps *Dependencies) (*Bot, error) {
	if deps.Config.Bot.Token == "" {
		return nil, fmt.Errorf("bot token is required")
	}

	pref := tele.Settings{
		Token:  deps.Config.Bot.Token,
		Poller: &tele.LongPoller{Timeout: 10 * time.Second},
	}

	teleBot, err := tele.NewBot(pref)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	loc := deps.Config.Location()
	b := &Bot{
		bot: teleBot,
		cfg: deps.Config,

		attendanceHandler: handler.NewAttendanceHandler(deps.Sessions, deps.Achievements, deps.Messages, loc),
		rankingHandler:    handler.NewRankingHandler(deps.Ranking, deps.Messages, loc),
		yearHandler:       handler.NewYearHandler(loc),
		reminderHandler:   handler.NewReminderHandler(deps.Reminders, deps.Messages, loc),
		gameHandler:       handler.NewGameHandler(deps.Roulette, deps.RSP, deps.Messages, loc),
	}

	b.registerMiddleware(deps.Store, loc)
	b.registerHandlers()

	return b, nil
}

// registerMiddleware registers all middleware.
func (b *Bot) registerMiddleware(store storage.Store, loc *time.Location) {
	b.bot.Use(RecoveryMiddleware())
	b.bot.Use(WhitelistMiddleware(b.cfg))
	b.bot.Use(LoggingMiddleware())
	b.bot.Use(IdentityMiddleware(store, loc))
}

// registerHandlers registers all command and callback handlers.
func (b *Bot) registerHandlers() {
	b.bot.Handle("/start", b.attendanceHandler.HandleStart)
	b.bot.Handle("/help", b.attendanceHandler.HandleStart)

	// Attendance
	b.bot.Handle("/zao", b.attendanceHandler.HandleZao)
	b.bot.Handle("/wan", b.attendanceHandler.HandleWan)
	b.bot.Handle("/awake", b.attendanceHandler.HandleAwake)

	// Rankings
	b.bot.Handle("/rank", b.rankingHandler.HandleRank)
	b.bot.Handle("/ach", b.rankingHandler.HandleAch)
	b.bot.Handle("/achrank", b.rankingHandler.HandleAchRank)

	// Year progress
	b.bot.Handle("/year", b.yearHandler.HandleYear)

	// Wake reminders
	b.bot.Handle("/remind", b.reminderHandler.HandleRemind)
	b.bot.Handle("/reminders", b.reminderHandler.HandleReminders)
	b.bot.Handle("/unremind", b.reminderHandler.HandleUnremind)

	// Games
	b.bot.Handle("/roulette", b.gameHandler.HandleRoulette)
	b.bot.Handle("/pull", b.gameHandler.HandlePull)
	b.bot.Handle("/rsp", b.gameHandler.HandleRSP)

	b.bot.Handle(tele.OnCallback, b.handleCallback)
}

// handleCallback routes callbacks to the owning handler.
func (b *Bot) handleCallback(c tele.Context) error {
	callback := c.Callback()
	if callback == nil {
		return nil
	}

	data := strings.TrimPrefix(callback.Data, "\f")
	if strings.HasPrefix(data, "rsp|") {
		return b.gameHandler.HandleRSPCallback(c)
	}
	return c.Respond()
}

// Start starts the bot polling.
func (b *Bot) Start() {
	log.Info().Msg("Starting bot...")
	b.bot.Start()
}

// Stop stops the bot gracefully.
func (b *Bot) Stop() {
	log.Info().Msg("Stopping bot...")
	b.bot.Stop()
}

// Send delivers a message to a chat outside of a handler context, used by
// the reminder scheduler.
func (b *Bot) Send(chatID int64, text string) error {
	_, err := b.bot.Send(&tele.Chat{ID: chatID}, text)
	return err
}
