package bot

import (
	"context"
	"os"
	"strings"
	"unicode/utf8"

	"rezme/internal/chat"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

// maxMessageLen - лимит Telegram на длину текста сообщения.
const maxMessageLen = 4096

// API - часть *tgbotapi.BotAPI, которой пользуется бот.
type API interface {
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Handler превращает событие в ответы.
type Handler interface {
	Handle(ctx context.Context, ev chat.Event) []chat.Reply
}

// Bot получает обновления Telegram и доставляет ответы роутера.
// Обновления одного пользователя обрабатываются последовательно.
type Bot struct {
	api     API
	handler Handler
	queue   *serializer
	log     zerolog.Logger
}

func NewBot(api API, handler Handler, log zerolog.Logger) *Bot {
	return &Bot{
		api:     api,
		handler: handler,
		queue:   newSerializer(),
		log:     log.With().Str("component", "telegram").Logger(),
	}
}

// Start читает обновления до отмены ctx и дожидается обработки уже принятых.
func (b *Bot) Start(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)
	b.log.Info().Msg("Bot started")

	defer func() {
		b.api.StopReceivingUpdates()
		b.queue.Wait()
		b.log.Info().Msg("Bot stopped")
	}()

	// уже принятые обновления дорабатываются после остановки
	work := context.WithoutCancel(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			ev, ok := ToEvent(update)
			if !ok {
				continue
			}
			b.queue.Do(ev.UserID, func() {
				b.Process(work, ev)
			})
		}
	}
}

// Process обрабатывает одно событие синхронно.
func (b *Bot) Process(ctx context.Context, ev chat.Event) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error().Interface("panic", r).Int64("user_id", ev.UserID).Msg("Handler panicked")
		}
	}()
	b.deliver(ev, b.handler.Handle(ctx, ev))
}

// ToEvent переводит обновление Telegram в событие. Обновления без
// отправителя и прочие типы пропускаются.
func ToEvent(update tgbotapi.Update) (chat.Event, bool) {
	if cq := update.CallbackQuery; cq != nil {
		if cq.From == nil {
			return chat.Event{}, false
		}
		ev := chat.Event{
			UserID:     cq.From.ID,
			ChatID:     cq.From.ID,
			Username:   cq.From.UserName,
			FullName:   fullName(cq.From),
			Kind:       chat.KindCallback,
			Data:       cq.Data,
			CallbackID: cq.ID,
		}
		if cq.Message != nil {
			ev.MessageID = cq.Message.MessageID
			if cq.Message.Chat != nil {
				ev.ChatID = cq.Message.Chat.ID
			}
		}
		return ev, true
	}

	msg := update.Message
	if msg == nil || msg.From == nil {
		return chat.Event{}, false
	}
	ev := chat.Event{
		UserID:   msg.From.ID,
		ChatID:   msg.From.ID,
		Username: msg.From.UserName,
		FullName: fullName(msg.From),
		Kind:     chat.KindText,
		Text:     strings.TrimSpace(msg.Text),
	}
	if msg.Chat != nil {
		ev.ChatID = msg.Chat.ID
	}
	switch {
	case msg.IsCommand():
		ev.Kind = chat.KindCommand
		ev.Command = msg.Command()
		ev.Args = strings.TrimSpace(msg.CommandArguments())
	case msg.Contact != nil:
		ev.Phone = msg.Contact.PhoneNumber
	}
	return ev, true
}

func fullName(u *tgbotapi.User) string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

func (b *Bot) deliver(ev chat.Event, replies []chat.Reply) {
	if ev.Kind == chat.KindCallback {
		b.answer(ev, replies)
	}
	for _, r := range replies {
		chatID := r.ChatID
		if chatID == 0 {
			chatID = ev.ChatID
		}
		switch {
		case r.Document != nil:
			b.sendDocument(chatID, r)
		case r.Text == "":
		case r.Edit && ev.MessageID != 0 && (r.Menu == nil || len(r.Menu.Keyboard) == 0):
			if !b.edit(chatID, ev.MessageID, r) {
				b.send(chatID, r)
			}
		default:
			b.send(chatID, r)
		}
	}
}

// answer закрывает "часики" на кнопке. Первый Alert среди ответов
// показывается пользователю.
func (b *Bot) answer(ev chat.Event, replies []chat.Reply) {
	cb := tgbotapi.NewCallback(ev.CallbackID, "")
	for _, r := range replies {
		if r.Alert != "" {
			cb.Text = r.Alert
			cb.ShowAlert = r.ShowAlert
			break
		}
	}
	if _, err := b.api.Request(cb); err != nil {
		b.log.Warn().Err(err).Int64("user_id", ev.UserID).Msg("Failed to answer callback")
	}
}

func (b *Bot) send(chatID int64, r chat.Reply) {
	parts := splitText(r.Text, maxMessageLen)
	for i, part := range parts {
		msg := tgbotapi.NewMessage(chatID, part)
		msg.ParseMode = tgbotapi.ModeHTML
		// клавиатура прикрепляется к последней части
		if i == len(parts)-1 && r.Menu != nil {
			msg.ReplyMarkup = markup(r.Menu)
		}
		if _, err := b.api.Send(msg); err != nil {
			b.log.Error().Err(err).Int64("chat_id", chatID).Msg("Failed to send message")
			return
		}
	}
}

func (b *Bot) edit(chatID int64, messageID int, r chat.Reply) bool {
	if utf8.RuneCountInString(r.Text) > maxMessageLen {
		return false
	}
	edit := tgbotapi.NewEditMessageText(chatID, messageID, r.Text)
	edit.ParseMode = tgbotapi.ModeHTML
	if r.Menu != nil && len(r.Menu.Rows) > 0 {
		kb := inlineMarkup(r.Menu.Rows)
		edit.ReplyMarkup = &kb
	}
	if _, err := b.api.Send(edit); err != nil {
		b.log.Debug().Err(err).Int64("chat_id", chatID).Msg("Edit failed, sending new message")
		return false
	}
	return true
}

func (b *Bot) sendDocument(chatID int64, r chat.Reply) {
	defer func() {
		if err := os.Remove(r.Document.Path); err != nil && !os.IsNotExist(err) {
			b.log.Warn().Err(err).Str("path", r.Document.Path).Msg("Failed to remove exported file")
		}
	}()

	doc := tgbotapi.NewDocument(chatID, tgbotapi.FilePath(r.Document.Path))
	doc.Caption = r.Document.Caption
	if _, err := b.api.Send(doc); err != nil {
		b.log.Error().Err(err).Int64("chat_id", chatID).Msg("Failed to send document")
		b.send(chatID, chat.Text("❌ Не удалось отправить файл"))
	}
}

func markup(m *chat.Menu) interface{} {
	if len(m.Rows) > 0 {
		return inlineMarkup(m.Rows)
	}
	rows := make([][]tgbotapi.KeyboardButton, 0, len(m.Keyboard))
	for i, labels := range m.Keyboard {
		row := make([]tgbotapi.KeyboardButton, 0, len(labels))
		for j, label := range labels {
			if m.RequestContact && i == 0 && j == 0 {
				row = append(row, tgbotapi.NewKeyboardButtonContact(label))
				continue
			}
			row = append(row, tgbotapi.NewKeyboardButton(label))
		}
		rows = append(rows, row)
	}
	return tgbotapi.ReplyKeyboardMarkup{
		Keyboard:              rows,
		ResizeKeyboard:        true,
		OneTimeKeyboard:       m.OneTime,
		InputFieldPlaceholder: m.Placeholder,
	}
}

func inlineMarkup(rows [][]chat.Button) tgbotapi.InlineKeyboardMarkup {
	keyboard := make([][]tgbotapi.InlineKeyboardButton, 0, len(rows))
	for _, buttons := range rows {
		row := make([]tgbotapi.InlineKeyboardButton, 0, len(buttons))
		for _, btn := range buttons {
			row = append(row, tgbotapi.NewInlineKeyboardButtonData(btn.Text, btn.Data))
		}
		keyboard = append(keyboard, row)
	}
	return tgbotapi.NewInlineKeyboardMarkup(keyboard...)
}

// splitText режет текст на части не длиннее limit символов, по возможности
// по переводу строки.
func splitText(text string, limit int) []string {
	runes := []rune(text)
	if len(runes) <= limit {
		return []string{text}
	}
	var parts []string
	for len(runes) > limit {
		cut := limit
		for i := limit - 1; i > limit/2; i-- {
			if runes[i] == '\n' {
				cut = i + 1
				break
			}
		}
		parts = append(parts, string(runes[:cut]))
		runes = runes[cut:]
	}
	if len(runes) > 0 {
		parts = append(parts, string(runes))
	}
	return parts
}
