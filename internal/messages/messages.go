// Package messages holds the user-facing text templates. Defaults cover
// every reply the bot sends; a flat TOML file can override individual keys.
// Templates use {placeholder} substitution.
package messages

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

var defaults = map[string]string{
	"help": "📌 指令说明：\n/zao 签到\n/wan 签退\n/awake 查询清醒时长（可回复某人消息后查询 TA）\n/rank 今日排行榜（/rank all 总榜；加 global=全局，例如：/rank global 或 /rank all global）\n/ach 成就查询（可加 global；也可回复某人消息后 /ach 查询 TA）\n/achrank 成就排行榜（daily｜streak｜ontime｜longday；可加 global，例如：/achrank global daily）\n/year 查看今年进度\n/remind HH:MM [repeat] 设置起床提醒｜/reminders 查看｜/unremind 清除\n/roulette 开一局轮盘｜/pull 扣扳机\n/rsp 回复某人发起猜拳\n\n🕓 说明：本 bot 的“今日”按业务日计算：凌晨 04:00 ~ 次日 04:00。",

	"day_ended":             "🛌 {name} 今天已经结束，请休息吧。",
	"checkin_ok":            "🌅 {name} ✅ 签到成功：{time}",
	"checkin_ok_with_order": "🌅 {name} ✅ 签到成功：{time}（今日第 {n} 个）",
	"checkin_order_today":   "📍 你是今日第 {n} 个签到的",
	"checkin_inconsistent":  "⚠️ 你可能已经签到过了，但我没查到未签退记录；请稍后重试。",
	"checkin_already":       "⏱️ {name} 你已经签到过了（{check_in}），已清醒 {awake}。",
	"checkout_ok":           "🌙 {name} 💤 签退成功：{time}\n本次清醒：{awake}（从 {check_in} 开始）",
	"checkout_stale_open":   "⚠️ {name} 你有一条 {day} 的未签退记录，今天还没有签到（/zao）。",

	"checkout_not_checked_in": "🙋 {name} 你还没有签到（/zao）哦。",
	"awake_open":              "👀 {name} 当前已清醒 {awake}（签到时间：{check_in}）",
	"awake_none":              "📭 {name} 当前没有未签退记录（可能已经签退 /wan）。",

	"rank_no_data":            "📊 {title}：暂无数据。先 /zao 签到吧～",
	"rank_header":             "📊 {title}（统计到 {time}）",
	"rank_title_today":        "🏆 今日清醒排行榜",
	"rank_title_all":          "🏆 总清醒排行榜",
	"rank_title_today_global": "🌐 今日清醒排行榜（全局）",
	"rank_title_all_global":   "🌐 总清醒排行榜（全局）",
	"rank_line":               "{idx}. {name} - {awake} {emoji}",

	"ach_unlocked":                   "🎉 解锁成就：{achievements}",
	"ach_name_daily_earliest":        "🥇 今日最早",
	"ach_name_streak_earliest_7":     "🔥 连续最早 7 天",
	"ach_name_ontime_8h":             "⏰ 准点下班",
	"ach_name_longday_12h":           "💪 辛苦的一天",
	"ach_header":                     "🏅 {name} 的成就",
	"ach_header_global":              "🌐🏅 {name} 的成就（全局）",
	"ach_line":                       "- {ach} × {count}",
	"ach_none":                       "暂无成就记录，先 /zao 开始吧～",
	"ach_streak_earliest":            "📈 当前“今日最早”连胜：{streak} 天｜累计最早：{total} 天",
	"ach_streak_earliest_global":     "🌐📈 最强“今日最早”连胜：{streak} 天（来自：{chat}）｜累计最早：{total} 天",
	"ach_rank_help":                  "📊 用法：/achrank daily｜streak｜ontime｜longday",
	"ach_rank_empty":                 "📭 暂无排行榜数据。",
	"ach_rank_title_daily":           "🥇 成就榜：今日最早（累计天数）",
	"ach_rank_title_streak":          "🔥 成就榜：连续今日最早（当前连胜）",
	"ach_rank_title_ontime":          "⏰ 成就榜：准点下班（累计次数）",
	"ach_rank_title_longday":         "💪 成就榜：辛苦的一天（累计次数）",
	"ach_rank_title_daily_global":    "🌐🥇 成就榜：今日最早（全局累计）",
	"ach_rank_title_streak_global":   "🌐🔥 成就榜：连续今日最早（全局最强连胜）",
	"ach_rank_title_ontime_global":   "🌐⏰ 成就榜：准点下班（全局累计）",
	"ach_rank_title_longday_global":  "🌐💪 成就榜：辛苦的一天（全局累计）",
	"ach_rank_line_count":            "{idx}. {name} - {count}",
	"ach_rank_line_streak":           "{idx}. {name} - {streak} 天",
	"ach_rank_line_streak_global":    "{idx}. {name} - {streak} 天（{chat}）",

	"remind_usage":   "⏰ 用法：/remind HH:MM [repeat]，例如 /remind 08:30 repeat",
	"remind_invalid": "⚠️ 时间格式不对，应为 HH:MM，例如 08:30。",
	"remind_created": "⏰ 已设置起床提醒：{time}（下次触发：{next}）",
	"remind_fire":    "⏰ 该起床啦！（{time}）",
	"remind_none":    "📭 你还没有设置提醒。",
	"remind_list":    "⏰ 你的提醒：\n{lines}",
	"remind_line":    "- {time}{repeat}",
	"remind_repeat":  "（每天）",
	"remind_cleared": "🗑️ 已清除你的所有提醒。",

	"roulette_started":     "🔫 轮盘已上膛：{chambers} 发弹巢，1 颗子弹。/pull 扣扳机！",
	"roulette_in_progress": "🔫 这一局还没结束，/pull 扣扳机！",
	"roulette_none":        "📭 当前没有进行中的轮盘，/roulette 开一局。",
	"roulette_safe":        "😮‍💨 {name} 扣下扳机……咔。安全！（第 {pos}/{chambers} 发）",
	"roulette_bang":        "💥 {name} 扣下扳机……砰！中弹出局！（第 {pos}/{chambers} 发）",

	"rsp_usage":      "✊ 用法：回复对方的消息并发送 /rsp 发起猜拳。",
	"rsp_self":       "🤨 不能跟自己猜拳。",
	"rsp_pending":    "⏳ 有一局猜拳还没结束，先打完这局。",
	"rsp_challenge":  "✊ {challenger} 向 {opponent} 发起猜拳！双方点击下方按钮出拳。",
	"rsp_not_player": "🙅 这局猜拳没你的事。",
	"rsp_chosen":     "🤫 已出拳，等对方。",
	"rsp_finished":   "📭 这局已经结束了。",
	"rsp_draw":       "🤝 平局！{challenger} 和 {opponent} 都出了 {choice}。",
	"rsp_win":        "🏆 {winner} 胜！{challenger} 出 {cc}，{opponent} 出 {oc}。",
	"rsp_choice_rock":     "✊ 石头",
	"rsp_choice_paper":    "✋ 布",
	"rsp_choice_scissors": "✌️ 剪刀",

	"internal_error": "😵 出了点问题，请稍后再试。",
}

// Catalog resolves message keys to rendered text.
type Catalog struct {
	messages map[string]string
}

// Default returns a catalog with the built-in templates.
func Default() *Catalog {
	m := make(map[string]string, len(defaults))
	for k, v := range defaults {
		m[k] = v
	}
	return &Catalog{messages: m}
}

// Load merges overrides from a flat TOML file on top of the defaults.
// A missing file is not an error; the defaults stand.
func Load(path string) (*Catalog, error) {
	c := Default()
	if path == "" {
		return c, nil
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read messages file: %w", err)
	}
	for key, val := range v.AllSettings() {
		if s, ok := val.(string); ok {
			c.messages[key] = s
		}
	}
	return c, nil
}

// Render substitutes {placeholder} values into the template for key. An
// unknown key renders as itself so a typo degrades instead of crashing.
func (c *Catalog) Render(key string, vars map[string]string) string {
	tpl, ok := c.messages[key]
	if !ok {
		tpl = defaults[key]
	}
	if tpl == "" {
		return key
	}
	if len(vars) == 0 {
		return tpl
	}
	pairs := make([]string, 0, len(vars)*2)
	for k, v := range vars {
		pairs = append(pairs, "{"+k+"}", v)
	}
	return strings.NewReplacer(pairs...).Replace(tpl)
}
