package bot

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"rezme/internal/chat"
	"rezme/internal/notify"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAPI struct {
	mu       sync.Mutex
	updates  chan tgbotapi.Update
	sent     []tgbotapi.Chattable
	requests []tgbotapi.Chattable
	sendErr  func(c tgbotapi.Chattable) error
	stopped  bool
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{updates: make(chan tgbotapi.Update, 16)}
}

func (f *fakeAPI) GetUpdatesChan(tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return f.updates
}

func (f *fakeAPI) StopReceivingUpdates() {
	f.mu.Lock()
	f.stopped = true
	f.mu.Unlock()
}

func (f *fakeAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		if err := f.sendErr(c); err != nil {
			return tgbotapi.Message{}, err
		}
	}
	f.sent = append(f.sent, c)
	return tgbotapi.Message{}, nil
}

func (f *fakeAPI) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, c)
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeAPI) Sent() []tgbotapi.Chattable {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]tgbotapi.Chattable(nil), f.sent...)
}

type handlerFunc func(ctx context.Context, ev chat.Event) []chat.Reply

func (h handlerFunc) Handle(ctx context.Context, ev chat.Event) []chat.Reply { return h(ctx, ev) }

func echo(replies ...chat.Reply) Handler {
	return handlerFunc(func(context.Context, chat.Event) []chat.Reply { return replies })
}

func TestToEventCommand(t *testing.T) {
	update := tgbotapi.Update{Message: &tgbotapi.Message{
		Text:     "/start promo",
		Entities: []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: 6}},
		From:     &tgbotapi.User{ID: 5, FirstName: "Ann", LastName: "Lee", UserName: "ann"},
		Chat:     &tgbotapi.Chat{ID: 5},
	}}

	ev, ok := ToEvent(update)
	require.True(t, ok)
	assert.Equal(t, chat.KindCommand, ev.Kind)
	assert.Equal(t, "start", ev.Command)
	assert.Equal(t, "promo", ev.Args)
	assert.Equal(t, "Ann Lee", ev.FullName)
	assert.Equal(t, "Ann", ev.FirstName())
	assert.Equal(t, "ann", ev.Username)
}

func TestToEventContact(t *testing.T) {
	update := tgbotapi.Update{Message: &tgbotapi.Message{
		From:    &tgbotapi.User{ID: 5, FirstName: "Ann"},
		Chat:    &tgbotapi.Chat{ID: 5},
		Contact: &tgbotapi.Contact{PhoneNumber: "+77001112233"},
	}}

	ev, ok := ToEvent(update)
	require.True(t, ok)
	assert.Equal(t, chat.KindText, ev.Kind)
	assert.Equal(t, "+77001112233", ev.Phone)
	assert.Equal(t, "Ann", ev.FullName)
}

func TestToEventCallback(t *testing.T) {
	update := tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID:      "cb1",
		From:    &tgbotapi.User{ID: 5},
		Data:    "cat:Караоке",
		Message: &tgbotapi.Message{MessageID: 77, Chat: &tgbotapi.Chat{ID: 500}},
	}}

	ev, ok := ToEvent(update)
	require.True(t, ok)
	assert.Equal(t, chat.KindCallback, ev.Kind)
	assert.Equal(t, "cat:Караоке", ev.Data)
	assert.Equal(t, "cb1", ev.CallbackID)
	assert.Equal(t, 77, ev.MessageID)
	assert.Equal(t, int64(500), ev.ChatID)
}

func TestToEventSkipsAnonymousUpdates(t *testing.T) {
	_, ok := ToEvent(tgbotapi.Update{})
	assert.False(t, ok)
	_, ok = ToEvent(tgbotapi.Update{Message: &tgbotapi.Message{Text: "hi"}})
	assert.False(t, ok)
}

func TestDeliverCallbackAlertOnly(t *testing.T) {
	api := newFakeAPI()
	b := NewBot(api, echo(chat.Alert("❌ Нельзя")), zerolog.Nop())

	b.Process(context.Background(), chat.Event{UserID: 1, ChatID: 1, Kind: chat.KindCallback, CallbackID: "x"})

	require.Len(t, api.requests, 1)
	cb, ok := api.requests[0].(tgbotapi.CallbackConfig)
	require.True(t, ok)
	assert.Equal(t, "x", cb.CallbackQueryID)
	assert.Equal(t, "❌ Нельзя", cb.Text)
	assert.True(t, cb.ShowAlert)
	assert.Empty(t, api.Sent(), "alert alone sends no message")
}

func TestDeliverEditsCallbackMessage(t *testing.T) {
	api := newFakeAPI()
	menu := chat.Inline(chat.Row(chat.Button{Text: "A", Data: "a"}))
	b := NewBot(api, echo(chat.Reply{Text: "step", Menu: menu, Edit: true}), zerolog.Nop())

	b.Process(context.Background(), chat.Event{UserID: 1, ChatID: 1, Kind: chat.KindCallback, CallbackID: "x", MessageID: 9})

	require.Len(t, api.requests, 1)
	cb := api.requests[0].(tgbotapi.CallbackConfig)
	assert.Empty(t, cb.Text)

	sent := api.Sent()
	require.Len(t, sent, 1)
	edit, ok := sent[0].(tgbotapi.EditMessageTextConfig)
	require.True(t, ok)
	assert.Equal(t, 9, edit.MessageID)
	assert.Equal(t, "step", edit.Text)
	assert.Equal(t, tgbotapi.ModeHTML, edit.ParseMode)
	require.NotNil(t, edit.ReplyMarkup)
	assert.Equal(t, "a", *edit.ReplyMarkup.InlineKeyboard[0][0].CallbackData)
}

func TestDeliverEditFallsBackToNewMessage(t *testing.T) {
	api := newFakeAPI()
	api.sendErr = func(c tgbotapi.Chattable) error {
		if _, ok := c.(tgbotapi.EditMessageTextConfig); ok {
			return errors.New("message is not modified")
		}
		return nil
	}
	b := NewBot(api, echo(chat.Reply{Text: "done", Edit: true}), zerolog.Nop())

	b.Process(context.Background(), chat.Event{UserID: 1, ChatID: 1, Kind: chat.KindCallback, MessageID: 9})

	sent := api.Sent()
	require.Len(t, sent, 1)
	msg, ok := sent[0].(tgbotapi.MessageConfig)
	require.True(t, ok)
	assert.Equal(t, "done", msg.Text)
}

func TestDeliverReplyKeyboardWithContact(t *testing.T) {
	api := newFakeAPI()
	menu := &chat.Menu{Keyboard: [][]string{{"📱 Отправить номер"}}, RequestContact: true, OneTime: true, Placeholder: "номер"}
	b := NewBot(api, echo(chat.WithMenu("phone?", menu)), zerolog.Nop())

	b.Process(context.Background(), chat.Event{UserID: 1, ChatID: 3, Kind: chat.KindText})

	sent := api.Sent()
	require.Len(t, sent, 1)
	msg := sent[0].(tgbotapi.MessageConfig)
	assert.Equal(t, int64(3), msg.ChatID)
	kb, ok := msg.ReplyMarkup.(tgbotapi.ReplyKeyboardMarkup)
	require.True(t, ok)
	assert.True(t, kb.ResizeKeyboard)
	assert.True(t, kb.OneTimeKeyboard)
	assert.Equal(t, "номер", kb.InputFieldPlaceholder)
	assert.True(t, kb.Keyboard[0][0].RequestContact)
}

func TestDeliverExplicitChatID(t *testing.T) {
	api := newFakeAPI()
	b := NewBot(api, echo(chat.Reply{ChatID: 42, Text: "to operator"}), zerolog.Nop())

	b.Process(context.Background(), chat.Event{UserID: 1, ChatID: 1, Kind: chat.KindText})

	sent := api.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, int64(42), sent[0].(tgbotapi.MessageConfig).ChatID)
}

func TestDeliverDocumentRemovesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bookings.xlsx")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	api := newFakeAPI()
	b := NewBot(api, echo(chat.Reply{Document: &chat.Document{Path: path, Caption: "Брони"}}), zerolog.Nop())

	b.Process(context.Background(), chat.Event{UserID: 1, ChatID: 1, Kind: chat.KindCommand})

	sent := api.Sent()
	require.Len(t, sent, 1)
	doc, ok := sent[0].(tgbotapi.DocumentConfig)
	require.True(t, ok)
	assert.Equal(t, "Брони", doc.Caption)

	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestProcessRecoversFromPanic(t *testing.T) {
	api := newFakeAPI()
	b := NewBot(api, handlerFunc(func(context.Context, chat.Event) []chat.Reply { panic("boom") }), zerolog.Nop())

	assert.NotPanics(t, func() {
		b.Process(context.Background(), chat.Event{UserID: 1, Kind: chat.KindText})
	})
}

func TestSplitText(t *testing.T) {
	assert.Equal(t, []string{"short"}, splitText("short", 10))

	text := strings.Repeat("a", 6) + "\n" + strings.Repeat("b", 6)
	parts := splitText(text, 10)
	assert.Equal(t, []string{"aaaaaa\n", "bbbbbb"}, parts)

	parts = splitText(strings.Repeat("я", 25), 10)
	require.Len(t, parts, 3)
	assert.Equal(t, strings.Repeat("я", 10), parts[0])
	assert.Equal(t, strings.Repeat("я", 5), parts[2])
}

func TestSendSplitsLongMessage(t *testing.T) {
	api := newFakeAPI()
	long := strings.Repeat("x", maxMessageLen+10)
	b := NewBot(api, echo(chat.WithMenu(long, &chat.Menu{Keyboard: [][]string{{"A"}}})), zerolog.Nop())

	b.Process(context.Background(), chat.Event{UserID: 1, ChatID: 1, Kind: chat.KindText})

	sent := api.Sent()
	require.Len(t, sent, 2)
	assert.Nil(t, sent[0].(tgbotapi.MessageConfig).ReplyMarkup)
	assert.NotNil(t, sent[1].(tgbotapi.MessageConfig).ReplyMarkup)
}

func TestStartProcessesUntilCancelled(t *testing.T) {
	api := newFakeAPI()
	b := NewBot(api, handlerFunc(func(_ context.Context, ev chat.Event) []chat.Reply {
		return []chat.Reply{chat.Text("echo: " + ev.Text)}
	}), zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		b.Start(ctx)
		close(done)
	}()

	api.updates <- tgbotapi.Update{Message: &tgbotapi.Message{
		Text: "hi",
		From: &tgbotapi.User{ID: 1},
		Chat: &tgbotapi.Chat{ID: 1},
	}}

	assert.Eventually(t, func() bool { return len(api.Sent()) == 1 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Start did not return after cancel")
	}
	assert.True(t, api.stopped)
	assert.Equal(t, "echo: hi", api.Sent()[0].(tgbotapi.MessageConfig).Text)
}

func TestOperatorNotifier(t *testing.T) {
	api := newFakeAPI()
	n := NewOperatorNotifier(api, 42)

	require.NoError(t, n.NotifyBooking(context.Background(), notify.BookingNotice{UserID: 1, VenueName: "Cafe Central", Date: "2026-10-20"}))
	sent := api.Sent()
	require.Len(t, sent, 1)
	msg := sent[0].(tgbotapi.MessageConfig)
	assert.Equal(t, int64(42), msg.ChatID)
	assert.Contains(t, msg.Text, "Cafe Central")
	assert.Contains(t, msg.Text, "20.10.2026")

	off := NewOperatorNotifier(api, 0)
	require.NoError(t, off.NotifyBooking(context.Background(), notify.BookingNotice{}))
	assert.Len(t, api.Sent(), 1)
}

func TestOperatorNotifierReportsSendError(t *testing.T) {
	api := newFakeAPI()
	api.sendErr = func(tgbotapi.Chattable) error { return errors.New("blocked") }

	err := NewOperatorNotifier(api, 42).NotifyBooking(context.Background(), notify.BookingNotice{})
	assert.ErrorContains(t, err, "blocked")
}
