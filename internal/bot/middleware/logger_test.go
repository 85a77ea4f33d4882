package middleware

import (
	"strings"
	"testing"

	"github.com/mymmrac/telego"
	log "github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureLogs(t *testing.T) *test.Hook {
	t.Helper()
	hook := test.NewGlobal()
	level := log.GetLevel()
	log.SetLevel(log.DebugLevel)
	t.Cleanup(func() {
		log.SetLevel(level)
		hook.Reset()
		log.StandardLogger().ReplaceHooks(make(log.LevelHooks))
	})
	return hook
}

func message(text string) *telego.Message {
	return &telego.Message{
		From: &telego.User{ID: 1, Username: "reviewer"},
		Chat: telego.Chat{ID: 1, Type: telego.ChatTypePrivate},
		Text: text,
	}
}

func TestLogMessageRedacts(t *testing.T) {
	hook := captureLogs(t)
	redact := func(s string) string {
		if strings.Contains(s, "hunter2") {
			return "/login ***"
		}
		return s
	}

	LogMessage(message("!login hunter2"), redact)
	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, "/login ***", entry.Data["text"])
	assert.Equal(t, int64(1), entry.Data["user_id"])
}

func TestLogMessageTruncates(t *testing.T) {
	hook := captureLogs(t)

	LogMessage(message(strings.Repeat("ж", 60)), nil)
	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, strings.Repeat("ж", 50)+"...", entry.Data["text"])

	hook.Reset()
	LogMessage(&telego.Message{Text: "без отправителя"}, nil)
	assert.Nil(t, hook.LastEntry())
}
