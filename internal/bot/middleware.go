// Package bot provides the Telegram bot initialization, middleware and
// handler registration.
package bot

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"telegram-zao-bot/internal/config"
	"telegram-zao-bot/internal/handler"
	"telegram-zao-bot/internal/model"
	"telegram-zao-bot/internal/storage"
)

// WhitelistMiddleware drops updates from chats outside the whitelist. An
// empty whitelist allows everything.
func WhitelistMiddleware(cfg *config.Config) tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			chat := c.Chat()
			if chat == nil {
				return nil
			}
			if !cfg.IsChatAllowed(chat.ID) {
				log.Debug().
					Int64("chat_id", chat.ID).
					Msg("Ignoring command from non-whitelisted chat")
				return nil
			}
			return next(c)
		}
	}
}

// IdentityMiddleware refreshes the sender's and chat's identity rows on
// every update, so sessions and rankings always have names to join against.
func IdentityMiddleware(store storage.Store, loc *time.Location) tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			sender, chat := c.Sender(), c.Chat()
			if sender != nil && chat != nil {
				ts := handler.EventTime(c, loc)
				user := model.User{
					UserID:    sender.ID,
					Username:  sender.Username,
					FirstName: sender.FirstName,
					LastName:  sender.LastName,
				}
				ch := model.Chat{
					ChatID: chat.ID,
					Title:  chat.Title,
					Type:   string(chat.Type),
				}
				if err := store.UpsertUserAndChat(context.Background(), user, ch, ts); err != nil {
					log.Error().Err(err).
						Int64("user_id", sender.ID).
						Int64("chat_id", chat.ID).
						Msg("Failed to upsert identity")
				}
			}
			return next(c)
		}
	}
}

// LoggingMiddleware logs all incoming messages.
func LoggingMiddleware() tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			sender := c.Sender()
			chat := c.Chat()

			logEvent := log.Debug()
			if sender != nil {
				logEvent = logEvent.
					Int64("user_id", sender.ID).
					Str("username", sender.Username)
			}
			if chat != nil {
				logEvent = logEvent.
					Int64("chat_id", chat.ID).
					Str("chat_type", string(chat.Type))
			}
			logEvent.
				Str("text", c.Text()).
				Msg("Received message")

			return next(c)
		}
	}
}

// RecoveryMiddleware recovers from panics in handlers.
func RecoveryMiddleware() tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			defer func() {
				if r := recover(); r != nil {
					log.Error().
						Interface("panic", r).
						Msg("Recovered from panic in handler")
					_ = c.Reply("😵 出了点问题，请稍后再试。")
				}
			}()
			return next(c)
		}
	}
}
