// Package handler implements the Telegram command handlers.
package handler

import (
	"strconv"
	"strings"
	"time"

	tele "gopkg.in/telebot.v3"
)

// EventTime is the time the user sent the message, converted to the bot's
// location. Processing time is used only when the update carries no message.
func EventTime(c tele.Context, loc *time.Location) time.Time {
	if m := c.Message(); m != nil && m.Unixtime > 0 {
		return m.Time().In(loc)
	}
	return time.Now().In(loc)
}

// DisplayName renders how the bot addresses a user: @username first, then
// the full name, then the bare id.
func DisplayName(u *tele.User) string {
	if u == nil {
		return ""
	}
	if u.Username != "" {
		return "@" + u.Username
	}
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name != "" {
		return name
	}
	return strconv.FormatInt(u.ID, 10)
}

// TargetUser resolves the subject of a query command: the sender of the
// replied-to message when there is one, the sender otherwise.
func TargetUser(c tele.Context) *tele.User {
	if m := c.Message(); m != nil && m.ReplyTo != nil && m.ReplyTo.Sender != nil {
		return m.ReplyTo.Sender
	}
	return c.Sender()
}

// argsLower lowercases and trims the command arguments.
func argsLower(c tele.Context) []string {
	var out []string
	for _, a := range c.Args() {
		a = strings.ToLower(strings.TrimSpace(a))
		if a != "" {
			out = append(out, a)
		}
	}
	return out
}

func itoa(n int) string {
	return strconv.Itoa(n)
}

// joinChinese joins award names with the enumeration comma.
func joinChinese(parts []string) string {
	return strings.Join(parts, "、")
}

// popGlobal removes the global flag from args and reports whether it was
// present.
func popGlobal(args []string) ([]string, bool) {
	var rest []string
	global := false
	for _, a := range args {
		if a == "global" || a == "g" {
			global = true
			continue
		}
		rest = append(rest, a)
	}
	return rest, global
}
