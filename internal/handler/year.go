package handler

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	tele "gopkg.in/telebot.v3"
)

// YearHandler serves /year: a progress bar of the current year.
type YearHandler struct {
	loc *time.Location
}

func NewYearHandler(loc *time.Location) *YearHandler {
	return &YearHandler{loc: loc}
}

const defaultBarLen = 20

// eighth-block characters give sub-cell resolution
var barPartials = []string{"", "▏", "▎", "▍", "▌", "▋", "▊", "▉"}

// HandleYear prints the year progress. An optional argument 8..60 sets the
// bar width.
func (h *YearHandler) HandleYear(c tele.Context) error {
	now := EventTime(c, h.loc)
	year := now.Year()

	start := time.Date(year, 1, 1, 0, 0, 0, 0, h.loc)
	end := time.Date(year+1, 1, 1, 0, 0, 0, 0, h.loc)
	totalDays := int(end.Sub(start).Hours() / 24)
	dayNo := now.YearDay()
	if totalDays <= 0 {
		totalDays = 365
	}
	if dayNo < 1 {
		dayNo = 1
	}
	if dayNo > totalDays {
		dayNo = totalDays
	}

	barLen := defaultBarLen
	if args := argsLower(c); len(args) > 0 {
		if n, err := strconv.Atoi(args[0]); err == nil && n >= 8 && n <= 60 {
			barLen = n
		}
	}

	ratio := float64(dayNo) / float64(totalDays)
	bar := renderBar(ratio, barLen)

	text := fmt.Sprintf("%d\n%s %.2f%%\n%d/%d %s",
		year, bar, ratio*100, dayNo, totalDays, now.Format("2006-01-02"))
	return c.Reply(text)
}

func renderBar(ratio float64, barLen int) string {
	totalUnits := barLen * 8
	filled := int(ratio * float64(totalUnits))
	if filled < 0 {
		filled = 0
	}
	if filled > totalUnits {
		filled = totalUnits
	}

	fullBlocks, rem := filled/8, filled%8
	var b strings.Builder
	b.WriteString(strings.Repeat("█", fullBlocks))
	if rem > 0 && fullBlocks < barLen {
		b.WriteString(barPartials[rem])
	}
	bar := b.String()
	pad := barLen - len([]rune(bar))
	if pad > 0 {
		bar += strings.Repeat(" ", pad)
	}
	return "├" + bar + "┤"
}
