package handler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	tele "gopkg.in/telebot.v3"
)

func TestDisplayName(t *testing.T) {
	assert.Equal(t, "", DisplayName(nil))
	assert.Equal(t, "@alice", DisplayName(&tele.User{ID: 1, Username: "alice", FirstName: "Alice"}))
	assert.Equal(t, "Alice Liddell", DisplayName(&tele.User{ID: 1, FirstName: "Alice", LastName: "Liddell"}))
	assert.Equal(t, "Alice", DisplayName(&tele.User{ID: 1, FirstName: "Alice"}))
	assert.Equal(t, "42", DisplayName(&tele.User{ID: 42}))
}

func TestPopGlobal(t *testing.T) {
	rest, global := popGlobal([]string{"all", "global"})
	assert.True(t, global)
	assert.Equal(t, []string{"all"}, rest)

	rest, global = popGlobal([]string{"g"})
	assert.True(t, global)
	assert.Empty(t, rest)

	rest, global = popGlobal([]string{"today"})
	assert.False(t, global)
	assert.Equal(t, []string{"today"}, rest)

	rest, global = popGlobal(nil)
	assert.False(t, global)
	assert.Empty(t, rest)
}

func TestJoinChinese(t *testing.T) {
	assert.Equal(t, "甲、乙", joinChinese([]string{"甲", "乙"}))
	assert.Equal(t, "甲", joinChinese([]string{"甲"}))
}
