package bot

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/mymmrac/telego"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"bitbee.app/rewards-core/internal/common"
	"bitbee.app/rewards-core/internal/config"
	"bitbee.app/rewards-core/internal/features/accounts"
	"bitbee.app/rewards-core/internal/features/tasks"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const (
	reviewerID = int64(1001)
	strangerID = int64(2002)
	password   = "hive-secret"
)

type fakeAPI struct {
	mu       sync.Mutex
	sent     []*telego.SendMessageParams
	answered []*telego.AnswerCallbackQueryParams
}

func (f *fakeAPI) SendMessage(_ context.Context, p *telego.SendMessageParams) (*telego.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, p)
	return &telego.Message{}, nil
}

func (f *fakeAPI) AnswerCallbackQuery(_ context.Context, p *telego.AnswerCallbackQueryParams) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.answered = append(f.answered, p)
	return nil
}

func (f *fakeAPI) texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.sent))
	for _, p := range f.sent {
		out = append(out, p.Text)
	}
	return out
}

func (f *fakeAPI) last() *telego.SendMessageParams {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		return nil
	}
	return f.sent[len(f.sent)-1]
}

type fixture struct {
	bot   *Bot
	api   *fakeAPI
	tasks *tasks.Service
	store *accounts.MemoryStore
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	hash, err := common.HashSecret(password)
	require.NoError(t, err)

	cfg := &config.Config{
		ReviewerIDs:          []int64{reviewerID},
		ReviewerPasswordHash: hash,
		BotMaxInflight:       4,
		ReviewSLAMinDays:     5,
		ReviewSLAMaxDays:     7,
	}
	store := accounts.NewMemoryStore()
	svc := tasks.NewService(store, tasks.DefaultCatalog(), cfg)
	api := &fakeAPI{}
	return &fixture{bot: New(api, svc, cfg), api: api, tasks: svc, store: store}
}

// submitForReview ставит imei-share аккаунта в очередь проверки.
func (f *fixture) submitForReview(t *testing.T, accountID string) {
	t.Helper()
	ctx := context.Background()
	_, err := f.tasks.Submit(ctx, accountID, tasks.TaskIdentity, tasks.Submission{Payload: "kyc"})
	require.NoError(t, err)
	_, err = f.tasks.Submit(ctx, accountID, tasks.TaskIMEIShare,
		tasks.Submission{Payload: "https://instagram.com/p/1", Platform: "instagram"})
	require.NoError(t, err)
}

func privateMessage(from int64, text string) telego.Update {
	return telego.Update{Message: &telego.Message{
		From: &telego.User{ID: from},
		Chat: telego.Chat{ID: from, Type: telego.ChatTypePrivate},
		Text: text,
	}}
}

func TestCommandsRequireSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.bot.handleUpdate(ctx, privateMessage(reviewerID, "/pending"))
	assert.Contains(t, f.api.last().Text, "/login")

	f.bot.handleUpdate(ctx, privateMessage(reviewerID, "/login wrong"))
	assert.Contains(t, f.api.last().Text, common.ErrWrongPassword.Error())

	f.bot.handleUpdate(ctx, privateMessage(reviewerID, "/login "+password))
	assert.Contains(t, f.api.last().Text, "Вход выполнен")

	f.bot.handleUpdate(ctx, privateMessage(reviewerID, "/pending"))
	assert.Contains(t, f.api.last().Text, "пуста")
}

func TestStrangersAreIgnored(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.bot.handleUpdate(ctx, privateMessage(strangerID, "/help"))

	group := privateMessage(reviewerID, "/help")
	group.Message.Chat = telego.Chat{ID: -100, Type: telego.ChatTypeSupergroup}
	f.bot.handleUpdate(ctx, group)

	assert.Empty(t, f.api.texts())
}

func TestApproveFromPendingList(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.submitForReview(t, "acc-1")

	require.NoError(t, f.bot.auth.Login(reviewerID, password))
	f.bot.handleUpdate(ctx, privateMessage(reviewerID, "/pending"))

	msg := f.api.last()
	require.NotNil(t, msg)
	assert.Contains(t, msg.Text, "acc-1")
	kb, ok := msg.ReplyMarkup.(*telego.InlineKeyboardMarkup)
	require.True(t, ok)
	approve := kb.InlineKeyboard[0][0].CallbackData
	assert.Equal(t, "a:imei-share:acc-1", approve)

	f.bot.handleUpdate(ctx, telego.Update{CallbackQuery: &telego.CallbackQuery{
		ID:   "cb-1",
		From: telego.User{ID: reviewerID},
		Data: approve,
	}})
	assert.Contains(t, f.api.last().Text, "одобрено")
	require.Len(t, f.api.answered, 1)

	acc, err := f.store.Get(ctx, "acc-1")
	require.NoError(t, err)
	assert.Equal(t, accounts.TaskCompleted, acc.Task(tasks.TaskIMEIShare).State)
}

func TestRejectCommand(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.submitForReview(t, "acc-1")
	require.NoError(t, f.bot.auth.Login(reviewerID, password))

	f.bot.handleUpdate(ctx, privateMessage(reviewerID, "/reject acc-1 imei-share"))
	assert.Contains(t, f.api.last().Text, "доработку")

	// повторный отказ уже не в PendingReview
	f.bot.handleUpdate(ctx, privateMessage(reviewerID, "/reject acc-1 imei-share"))
	assert.Contains(t, f.api.last().Text, common.ErrInvalidTransition.Error())

	f.bot.handleUpdate(ctx, privateMessage(reviewerID, "/approve acc-1"))
	assert.Contains(t, f.api.last().Text, "Использование")
}

func TestDecideRejectsCallbackTasks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.tasks.StartTask(ctx, "acc-1", tasks.TaskIdentity)
	require.NoError(t, err)
	require.NoError(t, f.bot.auth.Login(reviewerID, password))

	f.bot.handleUpdate(ctx, privateMessage(reviewerID, "/pending"))
	assert.Contains(t, f.api.last().Text, "пуста")

	f.bot.handleUpdate(ctx, privateMessage(reviewerID, "/approve acc-1 identity"))
	assert.Contains(t, f.api.last().Text, "не проверяется ревьюером")

	f.bot.handleUpdate(ctx, telego.Update{CallbackQuery: &telego.CallbackQuery{
		ID:   "cb-1",
		From: telego.User{ID: reviewerID},
		Data: "r:identity:acc-1",
	}})
	assert.Contains(t, f.api.last().Text, "не проверяется ревьюером")

	acc, err := f.store.Get(ctx, "acc-1")
	require.NoError(t, err)
	assert.Equal(t, accounts.TaskPendingReview, acc.Task(tasks.TaskIdentity).State)
	assert.True(t, acc.Balance("HONEY").IsZero())
}

func TestCallbackWithoutSession(t *testing.T) {
	f := newFixture(t)
	f.bot.handleUpdate(context.Background(), telego.Update{CallbackQuery: &telego.CallbackQuery{
		ID:   "cb-1",
		From: telego.User{ID: reviewerID},
		Data: "a:imei-share:acc-1",
	}})
	require.Len(t, f.api.answered, 1)
	assert.Equal(t, "Сначала /login", f.api.answered[0].Text)
	assert.Empty(t, f.api.texts())
}

func TestLoginLockout(t *testing.T) {
	f := newFixture(t)
	a := f.bot.auth
	now := time.Date(2025, 3, 3, 12, 0, 0, 0, time.UTC)
	a.now = func() time.Time { return now }

	for i := 0; i < maxLoginFailures; i++ {
		assert.ErrorIs(t, a.Login(reviewerID, "nope"), common.ErrWrongPassword)
	}
	assert.ErrorIs(t, a.Login(reviewerID, password), common.ErrTooManyAttempts)

	now = now.Add(failureWindow + time.Second)
	require.NoError(t, a.Login(reviewerID, password))
	assert.True(t, a.HasSession(reviewerID))

	now = now.Add(sessionTTL)
	assert.False(t, a.HasSession(reviewerID))
}

func TestStartStopsOnCancel(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.bot.auth.Login(reviewerID, password))

	updates := make(chan telego.Update)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		f.bot.Start(ctx, updates)
		close(done)
	}()

	updates <- privateMessage(reviewerID, "/help")
	cancel()
	<-done
	assert.Contains(t, f.api.texts(), helpText)
}

func TestNotify(t *testing.T) {
	f := newFixture(t)
	f.bot.Notify(context.Background(), "сводка")
	msg := f.api.last()
	require.NotNil(t, msg)
	assert.Equal(t, reviewerID, msg.ChatID.ID)
}

func TestParseCommand(t *testing.T) {
	p := NewCommandParser()

	cmd, args, ok := p.ParseCommand("/Approve@bitbee_review_bot acc-1 imei-share")
	require.True(t, ok)
	assert.Equal(t, "approve", cmd)
	assert.Equal(t, []string{"acc-1", "imei-share"}, args)

	_, _, ok = p.ParseCommand("просто текст")
	assert.False(t, ok)

	approve, task, account, ok := parseCallbackData("r:imei-buy:ext:42")
	require.True(t, ok)
	assert.False(t, approve)
	assert.Equal(t, "imei-buy", task)
	assert.Equal(t, "ext:42", account)

	_, _, _, ok = parseCallbackData("x:imei-buy:1")
	assert.False(t, ok)
}

func TestRedactLogin(t *testing.T) {
	p := NewCommandParser()
	for _, text := range []string{
		"/login hunter2",
		"!login hunter2",
		"  /LOGIN@bitbee_review_bot hunter2 extra",
		"!Login hunter2",
	} {
		got := p.Redact(text)
		assert.Equal(t, "/login ***", got, text)
		assert.NotContains(t, got, "hunter2")
	}
	assert.Equal(t, "/login", p.Redact("!login"))
	assert.Equal(t, "/approve acc-1 imei-share", p.Redact("/approve acc-1 imei-share"))
	assert.Equal(t, "просто текст", p.Redact("просто текст"))
}
